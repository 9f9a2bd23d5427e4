package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cobaltline/intake/internal/anthropic"
	"github.com/cobaltline/intake/internal/conversation"
	"github.com/cobaltline/intake/internal/finalizer"
	"github.com/cobaltline/intake/internal/profile"
	"github.com/cobaltline/intake/internal/store"
)

// ErrOwnership is returned when the caller does not own the draft.
var ErrOwnership = errors.New("draft owned by another user")

// ErrUnknownCommand is returned for a command the orchestrator does not
// recognize.
var ErrUnknownCommand = errors.New("unknown command")

// CommandSubmitNow is the explicit fast-path command that jumps the
// conversation straight to the terminal stage.
const CommandSubmitNow = "submit"

// ErrorSentinel is appended to an in-flight stream when a turn fails, so
// the client always receives a terminal signal.
const ErrorSentinel = "\n[error] the assistant could not finish this reply — please resend your message\n"

// welcomeKickoff seeds the welcome generation; the API requires at least
// one user message.
const welcomeKickoff = "The user just opened the intake assistant."

// DraftStore is the slice of the document store turns read and write.
type DraftStore interface {
	GetDraft(ctx context.Context, id uuid.UUID) (*store.Draft, error)
	PutDraft(ctx context.Context, d *store.Draft) error
}

// Finalizer converts a terminal-stage conversation into a final record.
type Finalizer interface {
	Finalize(ctx context.Context, callerID, convID uuid.UUID, sink finalizer.ProgressSink) (uuid.UUID, error)
}

// TurnSink receives one turn's output: the resulting stage first, then the
// assistant reply fragment by fragment as it arrives.
type TurnSink interface {
	Stage(s conversation.Stage)
	Fragment(text string) error
}

// Orchestrator handles one user turn end to end: decide the transition,
// stream the reply, persist the draft, and hand terminal conversations to
// the finalization engine.
type Orchestrator struct {
	drafts    DraftStore
	llm       *anthropic.Client
	machine   *conversation.Machine
	profiles  profile.Source
	finalizer Finalizer
	logger    *slog.Logger
	locks     *convLocks

	// finalizeTimeout bounds the async finalization kicked off after a
	// terminal turn.
	finalizeTimeout time.Duration
}

func New(drafts DraftStore, llm *anthropic.Client, machine *conversation.Machine, profiles profile.Source, fin Finalizer, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		drafts:          drafts,
		llm:             llm,
		machine:         machine,
		profiles:        profiles,
		finalizer:       fin,
		logger:          logger,
		locks:           newConvLocks(),
		finalizeTimeout: 5 * time.Minute,
	}
}

// Start creates a new draft conversation under the caller-supplied id and
// streams the personalized welcome message. The draft stays in the init
// stage until the first user turn.
func (o *Orchestrator) Start(ctx context.Context, callerID, convID uuid.UUID, sink TurnSink) error {
	state := conversation.State{Stage: conversation.StageInit}
	prompt := conversation.PromptFor(state, o.firstName(ctx, callerID))

	sink.Stage(conversation.StageInit)
	welcome, err := o.streamReply(ctx, prompt, []anthropic.Message{
		{Role: "user", Content: welcomeKickoff},
	}, sink)
	if err != nil {
		return err
	}

	draft := &store.Draft{
		ID:       convID,
		OwnerID:  callerID,
		Messages: []conversation.Message{conversation.NewMessage(conversation.RoleAssistant, welcome)},
		State:    state,
	}
	if err := o.drafts.PutDraft(ctx, draft); err != nil {
		return fmt.Errorf("persist new draft: %w", err)
	}

	o.logger.Info("conversation started",
		"conversation_id", draft.ID.String(),
		"owner_id", callerID.String(),
	)
	return nil
}

// HandleTurn processes one inbound user message or command. The assistant
// reply streams through the sink; the draft is persisted only after the
// stream completes successfully, so a failed turn can be resubmitted
// without duplicating the user message.
func (o *Orchestrator) HandleTurn(ctx context.Context, callerID, convID uuid.UUID, message, command string, sink TurnSink) error {
	release := o.locks.acquire(convID)
	defer release()

	draft, err := o.drafts.GetDraft(ctx, convID)
	if err != nil {
		return fmt.Errorf("load draft: %w", err)
	}
	if draft.OwnerID != callerID {
		return ErrOwnership
	}

	// Drafts written before the current stage enum carry legacy names.
	draft.State.Stage = conversation.MigrateStage(string(draft.State.Stage))

	if draft.State.Stage.Terminal() {
		return fmt.Errorf("conversation %s is already submitted", convID)
	}

	transcript := draft.Messages
	if message != "" {
		m := conversation.NewMessage(conversation.RoleUser, message)
		transcript = append(append([]conversation.Message{}, draft.Messages...), m)
	}

	var tr *conversation.Transition
	switch {
	case command == CommandSubmitNow:
		tr = conversation.SubmitNow(draft.State)
	case command != "":
		return fmt.Errorf("%w: %q", ErrUnknownCommand, command)
	default:
		tr = o.machine.Next(ctx, message, draft.State, transcript)
	}
	newState := conversation.Apply(draft.State, tr)

	sink.Stage(newState.Stage)

	// The assistant already speaks as the post-transition stage so the
	// user experiences a single cohesive turn.
	prompt := conversation.PromptFor(newState, o.firstName(ctx, callerID))

	reply, err := o.streamReply(ctx, prompt, toLLMMessages(transcript), sink)
	if err != nil {
		o.logger.Warn("turn stream failed",
			"conversation_id", convID.String(),
			"stage", string(newState.Stage),
			"error", err,
		)
		return err
	}

	if newState.Stage == conversation.StageSummary {
		newState.Collected.ChatSummary = reply
	}

	messages := append(transcript, conversation.NewMessage(conversation.RoleAssistant, reply))

	if newState.Stage.Terminal() {
		// The draft is about to become a final record; persisting an
		// intermediate draft state here is wasted work and a race source.
		o.kickFinalize(callerID, convID)
		return nil
	}

	draft.Messages = messages
	draft.State = newState
	if err := o.drafts.PutDraft(ctx, draft); err != nil {
		return fmt.Errorf("persist draft: %w", err)
	}

	o.logger.Info("turn complete",
		"conversation_id", convID.String(),
		"stage", string(newState.Stage),
		"messages", len(messages),
	)
	return nil
}

// streamReply forwards fragments to the sink verbatim in arrival order
// while accumulating the full reply for persistence. A hard truncation is
// a turn failure: the truncated reply is never persisted as complete.
func (o *Orchestrator) streamReply(ctx context.Context, system string, msgs []anthropic.Message, sink TurnSink) (string, error) {
	stream, err := o.llm.CompleteStream(ctx, anthropic.StreamOptions{
		System:    system,
		MaxTokens: 1024,
	}, msgs)
	if err != nil {
		_ = sink.Fragment(ErrorSentinel)
		return "", fmt.Errorf("open stream: %w", err)
	}

	var full strings.Builder
	for frag := range stream {
		switch {
		case frag.Err != nil:
			_ = sink.Fragment(ErrorSentinel)
			return "", fmt.Errorf("stream: %w", frag.Err)
		case frag.StopReason == anthropic.StopReasonMaxTokens:
			_ = sink.Fragment(ErrorSentinel)
			return "", fmt.Errorf("reply truncated at max tokens")
		case frag.Thought:
			continue
		case frag.Text != "":
			full.WriteString(frag.Text)
			if err := sink.Fragment(frag.Text); err != nil {
				return "", fmt.Errorf("write fragment: %w", err)
			}
		}
	}
	return full.String(), nil
}

// kickFinalize runs finalization in the background; the turn's response is
// the token stream itself and the client polls the finalize endpoint.
func (o *Orchestrator) kickFinalize(callerID, convID uuid.UUID) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), o.finalizeTimeout)
		defer cancel()
		if _, err := o.finalizer.Finalize(ctx, callerID, convID, nil); err != nil {
			o.logger.Error("async finalization failed",
				"conversation_id", convID.String(),
				"error", err,
			)
		}
	}()
}

// firstName resolves the caller's first name for prompt personalization.
// Lookup failures degrade to no personalization.
func (o *Orchestrator) firstName(ctx context.Context, callerID uuid.UUID) string {
	if o.profiles == nil {
		return ""
	}
	p, err := o.profiles.Get(ctx, callerID)
	if err != nil {
		o.logger.Debug("profile lookup failed", "owner_id", callerID.String(), "error", err)
		return ""
	}
	return p.FirstName
}

func toLLMMessages(msgs []conversation.Message) []anthropic.Message {
	out := make([]anthropic.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Role == conversation.RoleSystem {
			continue
		}
		out = append(out, anthropic.Message{Role: string(m.Role), Content: m.Content})
	}
	return out
}
