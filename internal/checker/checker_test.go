package checker

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/cobaltline/intake/internal/anthropic"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func checkerWithReply(t *testing.T, reply string) (*Checker, func()) {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{
			"content":     []map[string]any{{"type": "text", "text": reply}},
			"stop_reason": "end_turn",
		})
	}))

	llm := anthropic.NewClient("test-key", "test-model")
	llm.SetTestTransport(server.URL)
	return New(llm, discardLogger()), server.Close
}

func TestCheck_SatisfiedJSON(t *testing.T) {
	c, done := checkerWithReply(t, `{"satisfied": true, "reasoning": "the user described the process"}`)
	defer done()

	v := c.Check(context.Background(), "user: I want to automate invoicing\n", "user described the task")
	if !v.Satisfied {
		t.Error("expected satisfied verdict")
	}
	if v.Reasoning != "the user described the process" {
		t.Errorf("unexpected reasoning: %q", v.Reasoning)
	}
}

func TestCheck_FencedJSON(t *testing.T) {
	c, done := checkerWithReply(t, "```json\n{\"satisfied\": false, \"reasoning\": \"no description yet\"}\n```")
	defer done()

	v := c.Check(context.Background(), "user: hello\n", "user described the task")
	if v.Satisfied {
		t.Error("expected unsatisfied verdict")
	}
	if v.Reasoning != "no description yet" {
		t.Errorf("unexpected reasoning: %q", v.Reasoning)
	}
}

func TestCheck_RegexFallback(t *testing.T) {
	// Malformed JSON that still mentions the fields: the regex sweep
	// should recover the verdict.
	c, done := checkerWithReply(t, `Sure! Here is my judgment: {"satisfied": true, "reasoning": "clear description", extra`)
	defer done()

	v := c.Check(context.Background(), "user: automate reports\n", "user described the task")
	if !v.Satisfied {
		t.Error("expected satisfied verdict via regex fallback")
	}
	if v.Reasoning != "clear description" {
		t.Errorf("unexpected reasoning: %q", v.Reasoning)
	}
}

func TestCheck_UnparseableReply(t *testing.T) {
	c, done := checkerWithReply(t, "I cannot evaluate this transcript.")
	defer done()

	v := c.Check(context.Background(), "user: hi\n", "user described the task")
	if v.Satisfied {
		t.Error("expected unsatisfied verdict for unparseable reply")
	}
	if !strings.Contains(v.Reasoning, "unparseable") {
		t.Errorf("expected diagnostic reasoning, got %q", v.Reasoning)
	}
}

func TestCheck_TransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]string{"type": "rate_limit_error", "message": "quota exhausted"},
		})
	}))
	defer server.Close()

	llm := anthropic.NewClient("test-key", "test-model")
	llm.SetTestTransport(server.URL)
	c := New(llm, discardLogger())

	// LLM errors must degrade to "not yet satisfied", never an error.
	v := c.Check(context.Background(), "user: hi\n", "user described the task")
	if v.Satisfied {
		t.Error("expected unsatisfied verdict on transport error")
	}
	if !strings.Contains(v.Reasoning, "check unavailable") {
		t.Errorf("expected diagnostic reasoning, got %q", v.Reasoning)
	}
}
