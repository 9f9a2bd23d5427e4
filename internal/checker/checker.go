package checker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/cobaltline/intake/internal/anthropic"
)

const systemPrompt = `You judge whether a conversation transcript satisfies a stated criterion.

Respond with ONLY a JSON object on a single line:
{"satisfied": true|false, "reasoning": "one sentence explaining the judgment"}

No prose, no markdown, no code fences. If the transcript is ambiguous, answer false.`

const userPromptTemplate = `Criterion: %s

Transcript:
%s`

// Verdict is the outcome of a criterion check.
type Verdict struct {
	Satisfied bool   `json:"satisfied"`
	Reasoning string `json:"reasoning"`
}

// Checker asks the LLM a yes/no question about a transcript. It never
// returns an error: every failure mode (transport, quota, malformed output,
// safety refusal) degrades to an unsatisfied verdict carrying a diagnostic,
// which callers must treat as "not yet satisfied".
type Checker struct {
	llm    *anthropic.Client
	logger *slog.Logger
}

func New(llm *anthropic.Client, logger *slog.Logger) *Checker {
	return &Checker{llm: llm, logger: logger}
}

var (
	satisfiedRe = regexp.MustCompile(`"satisfied"\s*:\s*(true|false)`)
	reasoningRe = regexp.MustCompile(`"reasoning"\s*:\s*"((?:[^"\\]|\\.)*)"`)
)

// Check evaluates one criterion against a rendered transcript.
func (c *Checker) Check(ctx context.Context, transcript, criterion string) Verdict {
	prompt := fmt.Sprintf(userPromptTemplate, criterion, transcript)

	raw, err := c.llm.Complete(ctx, systemPrompt, []anthropic.Message{
		{Role: "user", Content: prompt},
	}, 512)
	if err != nil {
		c.logger.Warn("criterion check failed", "criterion", criterion, "error", err)
		return Verdict{Satisfied: false, Reasoning: fmt.Sprintf("check unavailable: %v", err)}
	}

	return parseVerdict(raw)
}

// parseVerdict extracts a verdict from the model's reply. Strict JSON first,
// then a regex sweep over the raw text for misbehaving replies.
func parseVerdict(raw string) Verdict {
	cleaned := anthropic.StripFences(raw)

	var v Verdict
	if err := json.Unmarshal([]byte(cleaned), &v); err == nil {
		return v
	}

	m := satisfiedRe.FindStringSubmatch(cleaned)
	if m == nil {
		return Verdict{Satisfied: false, Reasoning: "unparseable checker response: " + truncate(cleaned, 200)}
	}
	v.Satisfied = m[1] == "true"
	if rm := reasoningRe.FindStringSubmatch(cleaned); rm != nil {
		v.Reasoning = rm[1]
	} else {
		v.Reasoning = "recovered from malformed checker response"
	}
	return v
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return strings.TrimSpace(s[:n]) + "…"
}
