package finalizer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/cobaltline/intake/internal/anthropic"
	"github.com/cobaltline/intake/internal/conversation"
	"github.com/cobaltline/intake/internal/events"
	"github.com/cobaltline/intake/internal/store"
)

// ErrOwnership is returned when the caller does not own the draft.
var ErrOwnership = errors.New("draft owned by another user")

// DefaultTitle is the placeholder used when neither extraction nor the
// conversation yields a title. A record carrying it never enters the
// shared gallery.
const DefaultTitle = "Untitled automation idea"

// Default values for fields absent from both extraction and collection.
const (
	defaultCategory   = "Other"
	defaultComplexity = "medium"
)

// DraftStore is the slice of the document store the engine reads drafts
// from and retires them through.
type DraftStore interface {
	GetDraft(ctx context.Context, id uuid.UUID) (*store.Draft, error)
	DeleteDraft(ctx context.Context, id uuid.UUID) error
}

// RequestStore writes and reads final records.
type RequestStore interface {
	GetRequest(ctx context.Context, id uuid.UUID) (*store.FinalRequest, error)
	PutRequest(ctx context.Context, r *store.FinalRequest) error
}

// ProgressSink receives incremental progress text (the extraction call's
// thinking trace) while finalization runs. May be nil.
type ProgressSink interface {
	Progress(text string)
}

// Engine idempotently converts a draft conversation into a final request.
type Engine struct {
	drafts   DraftStore
	requests RequestStore
	llm      *anthropic.Client
	bus      *events.Publisher
	logger   *slog.Logger
}

func New(drafts DraftStore, requests RequestStore, llm *anthropic.Client, bus *events.Publisher, logger *slog.Logger) *Engine {
	return &Engine{drafts: drafts, requests: requests, llm: llm, bus: bus, logger: logger}
}

// extraction mirrors the schema the LLM is instructed to emit.
type extraction struct {
	Title             string   `json:"title"`
	Category          string   `json:"category"`
	PainPoints        []string `json:"pain_points"`
	ProcessSummary    string   `json:"process_summary"`
	Frequency         string   `json:"frequency"`
	DurationMinutes   int      `json:"duration_minutes"`
	PeopleInvolved    int      `json:"people_involved"`
	HoursSavedPerWeek float64  `json:"hours_saved_per_week"`
	Tools             []string `json:"tools"`
	Roles             []string `json:"roles"`
	Complexity        string   `json:"complexity"`
}

// Finalize converts the draft with the given id into a final request and
// retires the draft. Safe to call repeatedly and concurrently for the same
// id: a record that already exists, or a draft that is already gone, both
// count as success.
func (e *Engine) Finalize(ctx context.Context, callerID, convID uuid.UUID, sink ProgressSink) (uuid.UUID, error) {
	// A prior (or concurrent) finalization already produced the record.
	if existing, err := e.requests.GetRequest(ctx, convID); err == nil {
		e.logger.Info("finalize: record already exists", "conversation_id", convID.String())
		return existing.ID, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return uuid.Nil, fmt.Errorf("check existing request: %w", err)
	}

	draft, err := e.drafts.GetDraft(ctx, convID)
	if errors.Is(err, store.ErrNotFound) {
		// Someone else consumed the draft, or there was nothing to do.
		e.logger.Info("finalize: draft gone, nothing to do", "conversation_id", convID.String())
		return convID, nil
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("load draft: %w", err)
	}

	if draft.OwnerID != callerID {
		return uuid.Nil, ErrOwnership
	}

	ext := e.extract(ctx, draft, sink)
	record := e.buildRecord(draft, ext)

	// Write-then-delete, not atomic: the record's key equals the draft id,
	// so a racing second writer overwrites the same key and both deletes
	// converge (last-writer-wins, same key).
	if err := e.requests.PutRequest(ctx, record); err != nil {
		return uuid.Nil, fmt.Errorf("write final request: %w", err)
	}
	if err := e.drafts.DeleteDraft(ctx, convID); err != nil {
		return uuid.Nil, fmt.Errorf("delete draft: %w", err)
	}

	if err := e.bus.Publish(events.SubjectFinalized, map[string]any{
		"request_id": record.ID.String(),
		"owner_id":   record.OwnerID.String(),
		"title":      record.Title,
		"shared":     record.Shared,
	}); err != nil {
		e.logger.Warn("failed to publish finalized event", "error", err)
	}

	e.logger.Info("finalized",
		"request_id", record.ID.String(),
		"owner_id", record.OwnerID.String(),
		"shared", record.Shared,
	)
	return record.ID, nil
}

// extract runs the schema-constrained streaming extraction. Every failure
// mode is soft: the zero extraction is returned and the record falls back
// to the conversation's own collected data.
func (e *Engine) extract(ctx context.Context, draft *store.Draft, sink ProgressSink) extraction {
	transcript := conversation.RenderTranscript(draft.Messages)
	temp := 0.2

	stream, err := e.llm.CompleteStream(ctx, anthropic.StreamOptions{
		System:      extractionSystemPrompt,
		MaxTokens:   2048,
		Temperature: &temp,
		Thinking:    true,
	}, []anthropic.Message{
		{Role: "user", Content: fmt.Sprintf(extractionUserPrompt, transcript)},
	})
	if err != nil {
		e.logger.Warn("extraction call failed, using collected data only",
			"conversation_id", draft.ID.String(), "error", err)
		return extraction{}
	}

	var payload strings.Builder
	for frag := range stream {
		switch {
		case frag.Err != nil:
			e.logger.Warn("extraction stream error, using collected data only",
				"conversation_id", draft.ID.String(), "error", frag.Err)
			return extraction{}
		case frag.Thought:
			if sink != nil {
				sink.Progress(frag.Text)
			}
		default:
			payload.WriteString(frag.Text)
		}
	}

	var ext extraction
	raw := anthropic.StripFences(payload.String())
	if err := json.Unmarshal([]byte(raw), &ext); err != nil {
		e.logger.Warn("unparseable extraction payload, using collected data only",
			"conversation_id", draft.ID.String(), "error", err)
		return extraction{}
	}
	if len(ext.PainPoints) > 5 {
		ext.PainPoints = ext.PainPoints[:5]
	}
	return ext
}

// buildRecord applies the merge policy (extraction over collected over
// defaults) and computes the derived fields.
func (e *Engine) buildRecord(draft *store.Draft, ext extraction) *store.FinalRequest {
	col := draft.State.Collected

	title := firstNonEmpty(ext.Title, DefaultTitle)
	description := firstNonEmpty(ext.ProcessSummary, col.ProcessDescription, col.ChatSummary)

	fields := store.StructuredFields{
		Description:       description,
		PainPoints:        orEmpty(ext.PainPoints),
		Frequency:         firstNonEmpty(ext.Frequency, col.Frequency),
		DurationMinutes:   ext.DurationMinutes,
		PeopleInvolved:    ext.PeopleInvolved,
		Tools:             ext.Tools,
		Roles:             orEmpty(ext.Roles),
		HoursSavedPerWeek: ext.HoursSavedPerWeek,
		Category:          firstNonEmpty(ext.Category, defaultCategory),
		Complexity:        firstNonEmpty(ext.Complexity, defaultComplexity),
	}
	if len(fields.Tools) == 0 {
		fields.Tools = orEmpty(col.Tools)
	}

	summary := store.AttachmentsSummary{Count: len(col.Attachments)}
	for _, a := range col.Attachments {
		if a.ThumbURL != "" {
			summary.FirstThumbURL = a.ThumbURL
			break
		}
	}
	if summary.FirstThumbURL == "" && len(col.Attachments) > 0 {
		summary.FirstThumbURL = col.Attachments[0].URL
	}

	// Quality gate: low-information submissions stay out of the gallery.
	shared := title != "" && title != DefaultTitle && description != ""

	return &store.FinalRequest{
		ID:           draft.ID,
		OwnerID:      draft.OwnerID,
		Title:        title,
		Status:       store.StatusNew,
		Fields:       fields,
		Attachments:  summary,
		Shared:       shared,
		Conversation: draft.Messages,
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
