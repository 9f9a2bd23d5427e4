package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/cobaltline/intake/internal/conversation"
	"github.com/cobaltline/intake/internal/finalizer"
	"github.com/cobaltline/intake/internal/orchestrator"
	"github.com/cobaltline/intake/internal/store"
)

// Orchestrator handles turn streaming. Implemented by orchestrator.Orchestrator.
type Orchestrator interface {
	Start(ctx context.Context, callerID, convID uuid.UUID, sink orchestrator.TurnSink) error
	HandleTurn(ctx context.Context, callerID, convID uuid.UUID, message, command string, sink orchestrator.TurnSink) error
}

// Finalizer converts drafts to final records. Implemented by finalizer.Engine.
type Finalizer interface {
	Finalize(ctx context.Context, callerID, convID uuid.UUID, sink finalizer.ProgressSink) (uuid.UUID, error)
}

// HistoryStore lists a user's drafts and final requests.
type HistoryStore interface {
	ListDraftsByOwner(ctx context.Context, ownerID uuid.UUID) ([]store.Draft, error)
	ListRequestsByOwner(ctx context.Context, ownerID uuid.UUID) ([]store.FinalRequest, error)
}

// Collector prunes abandoned drafts; invoked fire-and-forget from history.
type Collector interface {
	Collect(ctx context.Context, ownerID uuid.UUID) (int, error)
}

type Server struct {
	router    *chi.Mux
	port      int
	orch      Orchestrator
	finalizer Finalizer
	history   HistoryStore
	collector Collector
	logger    *slog.Logger
}

func NewServer(port int, verifier TokenVerifier, orch Orchestrator, fin Finalizer, history HistoryStore, collector Collector, logger *slog.Logger) *Server {
	router := chi.NewRouter()
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	s := &Server{
		router:    router,
		port:      port,
		orch:      orch,
		finalizer: fin,
		history:   history,
		collector: collector,
		logger:    logger,
	}

	router.Get("/health", s.health)
	router.Route("/api/v1/intake", func(r chi.Router) {
		r.Use(AuthMiddleware(verifier, logger))
		r.Post("/turn", s.turn)
		r.Post("/finalize", s.finalize)
		r.Get("/history", s.listHistory)
	})

	return s
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	slog.Info("API server starting", "addr", addr)
	return http.ListenAndServe(addr, s.router)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

type turnRequest struct {
	ConversationID string `json:"conversation_id"`
	Message        string `json:"message"`
	Command        string `json:"command"`
}

// streamSink writes turn output straight to the HTTP response, flushing
// per fragment so the client sees incremental progress.
type streamSink struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func newStreamSink(w http.ResponseWriter) *streamSink {
	flusher, _ := w.(http.Flusher)
	return &streamSink{w: w, flusher: flusher}
}

func (s *streamSink) Stage(stage conversation.Stage) {
	s.w.Header().Set("X-Intake-Stage", string(stage))
}

func (s *streamSink) Fragment(text string) error {
	if _, err := s.w.Write([]byte(text)); err != nil {
		return err
	}
	if s.flusher != nil {
		s.flusher.Flush()
	}
	return nil
}

func (s *streamSink) Progress(text string) {
	_ = s.Fragment(text)
}

func (s *Server) turn(w http.ResponseWriter, r *http.Request) {
	callerID, ok := CallerID(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req turnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	sink := newStreamSink(w)

	// No conversation id: open a new draft and stream the welcome.
	if req.ConversationID == "" {
		convID := uuid.New()
		w.Header().Set("X-Intake-Conversation", convID.String())
		if err := s.orch.Start(r.Context(), callerID, convID, sink); err != nil {
			// The sentinel is the client's terminal signal; a duplicate
			// line is harmless when the stream already carries one.
			s.logger.Error("start failed", "error", err)
			_ = sink.Fragment(orchestrator.ErrorSentinel)
		}
		return
	}

	convID, err := uuid.Parse(req.ConversationID)
	if err != nil {
		http.Error(w, "invalid conversation_id", http.StatusBadRequest)
		return
	}
	if req.Message == "" && req.Command == "" {
		http.Error(w, "message or command required", http.StatusBadRequest)
		return
	}

	if err := s.orch.HandleTurn(r.Context(), callerID, convID, req.Message, req.Command, sink); err != nil {
		switch {
		case errors.Is(err, orchestrator.ErrOwnership):
			http.Error(w, "forbidden", http.StatusForbidden)
		case errors.Is(err, store.ErrNotFound):
			http.Error(w, "conversation not found", http.StatusNotFound)
		case errors.Is(err, orchestrator.ErrUnknownCommand):
			http.Error(w, "unknown command", http.StatusBadRequest)
		default:
			// Streaming may already have begun; the sentinel inside the
			// stream is the client's terminal signal.
			s.logger.Error("turn failed", "conversation_id", convID.String(), "error", err)
		}
	}
}

type finalizeRequest struct {
	ConversationID string `json:"conversation_id"`
}

func (s *Server) finalize(w http.ResponseWriter, r *http.Request) {
	callerID, ok := CallerID(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req finalizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	convID, err := uuid.Parse(req.ConversationID)
	if err != nil {
		http.Error(w, "invalid conversation_id", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	sink := newStreamSink(w)

	id, err := s.finalizer.Finalize(r.Context(), callerID, convID, sink)
	if err != nil {
		if errors.Is(err, finalizer.ErrOwnership) {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		s.logger.Error("finalize failed", "conversation_id", convID.String(), "error", err)
		_ = sink.Fragment(fmt.Sprintf("\nERROR:%v\n", err))
		return
	}
	_ = sink.Fragment(fmt.Sprintf("\nDONE:%s\n", id))
}

type historyEntry struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"` // draft | request
	Title     string    `json:"title,omitempty"`
	Stage     string    `json:"stage,omitempty"`
	Status    string    `json:"status,omitempty"`
	Shared    bool      `json:"shared,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (s *Server) listHistory(w http.ResponseWriter, r *http.Request) {
	callerID, ok := CallerID(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	// Opportunistic cleanup, never on the response path.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if _, err := s.collector.Collect(ctx, callerID); err != nil {
			s.logger.Warn("draft gc failed", "owner_id", callerID.String(), "error", err)
		}
	}()

	drafts, err := s.history.ListDraftsByOwner(r.Context(), callerID)
	if err != nil {
		s.logger.Error("list drafts failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	requests, err := s.history.ListRequestsByOwner(r.Context(), callerID)
	if err != nil {
		s.logger.Error("list requests failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	entries := make([]historyEntry, 0, len(drafts)+len(requests))
	for _, d := range drafts {
		entries = append(entries, historyEntry{
			ID:        d.ID.String(),
			Kind:      "draft",
			Stage:     string(d.State.Stage),
			UpdatedAt: d.UpdatedAt,
		})
	}
	for _, fr := range requests {
		entries = append(entries, historyEntry{
			ID:        fr.ID.String(),
			Kind:      "request",
			Title:     fr.Title,
			Status:    fr.Status,
			Shared:    fr.Shared,
			UpdatedAt: fr.UpdatedAt,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].UpdatedAt.After(entries[j].UpdatedAt)
	})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]any{"items": entries})
}
