package anthropic

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// StreamOptions configures a streaming completion.
type StreamOptions struct {
	System      string
	MaxTokens   int
	Temperature *float64
	// Thinking enables extended-thinking mode; thinking deltas arrive as
	// fragments with Thought set.
	Thinking       bool
	ThinkingBudget int
}

// StopReasonMaxTokens marks a reply cut off by output-length exhaustion.
const StopReasonMaxTokens = "max_tokens"

// Fragment is one unit of a streaming reply. Exactly one of the fields
// carries meaning per fragment; a StopReason fragment is always last
// unless an Err fragment terminates the stream early.
type Fragment struct {
	Text       string
	Thought    bool
	StopReason string
	Err        error
}

type contentBlockDelta struct {
	Delta struct {
		Type     string `json:"type"`
		Text     string `json:"text"`
		Thinking string `json:"thinking"`
	} `json:"delta"`
}

type messageDelta struct {
	Delta struct {
		StopReason string `json:"stop_reason"`
	} `json:"delta"`
}

type streamErrorEvent struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// CompleteStream opens a streaming messages call and returns a channel of
// fragments. The channel is closed after the terminal fragment. Errors
// after the stream opens arrive as Err fragments, never as panics.
func (c *Client) CompleteStream(ctx context.Context, opts StreamOptions, messages []Message) (<-chan Fragment, error) {
	maxTokens := opts.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}
	reqBody := request{
		Model:       c.model,
		MaxTokens:   maxTokens,
		System:      opts.System,
		Messages:    messages,
		Temperature: opts.Temperature,
		Stream:      true,
	}
	if opts.Thinking {
		budget := opts.ThinkingBudget
		if budget == 0 {
			budget = 2048
		}
		reqBody.Thinking = &thinkingConfig{Type: "enabled", BudgetTokens: budget}
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api call: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(resp.Body)
		var errResp errorResponse
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error.Message != "" {
			return nil, fmt.Errorf("api error %d: %s — %s", resp.StatusCode, errResp.Error.Type, errResp.Error.Message)
		}
		return nil, fmt.Errorf("api error %d: %s", resp.StatusCode, string(respBody))
	}

	out := make(chan Fragment)
	go c.streamReader(resp.Body, out)
	return out, nil
}

func (c *Client) streamReader(body io.ReadCloser, out chan<- Fragment) {
	defer close(out)
	defer body.Close()

	scanner := bufio.NewScanner(body)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	var currentEvent string
	var stopReason string

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "event: ") {
			currentEvent = strings.TrimPrefix(line, "event: ")
			continue
		}
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")

		switch currentEvent {
		case "content_block_delta":
			var ev contentBlockDelta
			if err := json.Unmarshal([]byte(data), &ev); err != nil {
				out <- Fragment{Err: fmt.Errorf("parse content_block_delta: %w", err)}
				return
			}
			switch ev.Delta.Type {
			case "text_delta":
				out <- Fragment{Text: ev.Delta.Text}
			case "thinking_delta":
				out <- Fragment{Text: ev.Delta.Thinking, Thought: true}
			}

		case "message_delta":
			var ev messageDelta
			if err := json.Unmarshal([]byte(data), &ev); err != nil {
				out <- Fragment{Err: fmt.Errorf("parse message_delta: %w", err)}
				return
			}
			if ev.Delta.StopReason != "" {
				stopReason = ev.Delta.StopReason
			}

		case "error":
			var ev streamErrorEvent
			if json.Unmarshal([]byte(data), &ev) == nil && ev.Error.Message != "" {
				out <- Fragment{Err: fmt.Errorf("stream error: %s — %s", ev.Error.Type, ev.Error.Message)}
			} else {
				out <- Fragment{Err: fmt.Errorf("stream error: %s", data)}
			}
			return

		case "message_stop":
			out <- Fragment{StopReason: stopReason}
			return

		case "ping", "message_start", "content_block_start", "content_block_stop":
			continue
		}
	}

	if err := scanner.Err(); err != nil {
		out <- Fragment{Err: fmt.Errorf("stream read: %w", err)}
	}
}
