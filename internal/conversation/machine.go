package conversation

import (
	"context"
	"log/slog"

	"github.com/cobaltline/intake/internal/checker"
)

// CriterionChecker judges whether a transcript satisfies a natural-language
// criterion. Implemented by checker.Checker.
type CriterionChecker interface {
	Check(ctx context.Context, transcript, criterion string) checker.Verdict
}

// stageCriteria holds the gating criterion for each non-terminal stage
// past init. Advancement is decided semantically against the transcript,
// never by keyword matching or turn counts, so free-form and multilingual
// input still drives the flow forward.
var stageCriteria = map[Stage]string{
	StageDescription: "the user provided a description of the task or process they want to automate",
	StageDetails:     "the user supplied additional detail about the process, or explicitly signaled they are ready to move on",
	StageAttachments: "the user either attached files or explicitly declined to attach any",
	StageSummary:     "the user confirmed the summary and is ready to submit",
}

// Transition is the single state change (or none) produced per inbound
// user message.
type Transition struct {
	From Stage
	To   Stage
	// Command marks a submit-now jump that bypassed the criterion check.
	Command   bool
	Reasoning string
	// ProcessDescription carries the raw user text captured on the
	// description edge.
	ProcessDescription string
}

// Machine decides stage transitions for a draft conversation.
type Machine struct {
	checker CriterionChecker
	logger  *slog.Logger
}

func NewMachine(c CriterionChecker, logger *slog.Logger) *Machine {
	return &Machine{checker: c, logger: logger}
}

// SubmitNow produces the command-driven jump to the terminal stage from
// any stage. Returns nil if already terminal.
func SubmitNow(state State) *Transition {
	if state.Stage.Terminal() {
		return nil
	}
	return &Transition{From: state.Stage, To: StageSubmit, Command: true, Reasoning: "submit-now command"}
}

// Next computes the candidate transition for one user message. The
// transcript must already include the new message. A nil result means the
// stage is unchanged this turn.
func (m *Machine) Next(ctx context.Context, userMessage string, state State, transcript []Message) *Transition {
	stage := state.Stage
	if stage.Terminal() {
		return nil
	}

	// The welcome turn always advances.
	if stage == StageInit {
		return &Transition{From: StageInit, To: StageDescription, Reasoning: "welcome turn"}
	}

	criterion, ok := stageCriteria[stage]
	if !ok {
		return nil
	}

	v := m.checker.Check(ctx, RenderTranscript(transcript), criterion)
	m.logger.Debug("stage criterion checked",
		"stage", string(stage),
		"satisfied", v.Satisfied,
		"reasoning", v.Reasoning,
	)
	if !v.Satisfied {
		return nil
	}

	tr := &Transition{From: stage, To: stage.Successor(), Reasoning: v.Reasoning}
	if stage == StageDescription {
		tr.ProcessDescription = userMessage
	}
	return tr
}

// Apply is the pure reducer: it merges the transition payload into the
// collected data and moves the stage. A nil transition is a no-op.
func Apply(state State, tr *Transition) State {
	if tr == nil {
		return state
	}
	next := state
	next.Stage = tr.To
	if tr.ProcessDescription != "" {
		next.Collected.ProcessDescription = tr.ProcessDescription
	}
	return next
}
