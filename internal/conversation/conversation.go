package conversation

import (
	"strings"
	"time"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is one turn of a conversation. Messages are immutable once
// appended; ordering is append order.
type Message struct {
	Role      Role   `json:"role"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"` // unix millis
}

// NewMessage stamps a message with the current time.
func NewMessage(role Role, content string) Message {
	return Message{Role: role, Content: content, Timestamp: time.Now().UnixMilli()}
}

// Attachment is a file the user attached during the conversation.
type Attachment struct {
	Name     string `json:"name"`
	URL      string `json:"url"`
	ThumbURL string `json:"thumb_url,omitempty"`
}

// Collected accumulates partial fields opportunistically during the
// conversation. Nothing here is required to be complete before a stage
// transition; completeness is judged against the transcript.
type Collected struct {
	ProcessDescription string       `json:"process_description,omitempty"`
	ChatSummary        string       `json:"chat_summary,omitempty"`
	Attachments        []Attachment `json:"attachments,omitempty"`
	Frequency          string       `json:"frequency,omitempty"`
	Tools              []string     `json:"tools,omitempty"`
}

// State is the control-flow state of a draft conversation. Stage is the
// only field that drives transitions.
type State struct {
	Stage     Stage     `json:"stage"`
	Collected Collected `json:"collected"`
	Language  string    `json:"language,omitempty"` // ISO code
}

// RenderTranscript flattens messages into the plain-text form given to
// the LLM for criterion checks and extraction.
func RenderTranscript(messages []Message) string {
	var b strings.Builder
	for _, m := range messages {
		b.WriteString(string(m.Role))
		b.WriteString(": ")
		b.WriteString(m.Content)
		b.WriteString("\n")
	}
	return b.String()
}

// UserMessageCount returns how many messages the user authored.
func UserMessageCount(messages []Message) int {
	n := 0
	for _, m := range messages {
		if m.Role == RoleUser {
			n++
		}
	}
	return n
}
