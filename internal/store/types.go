package store

import (
	"time"

	"github.com/google/uuid"

	"github.com/cobaltline/intake/internal/conversation"
)

// ErrNotFound is returned by point reads for absent documents.
var ErrNotFound = errNotFound{}

type errNotFound struct{}

func (errNotFound) Error() string { return "document not found" }

// Draft is an in-progress, not-yet-finalized conversation record. The
// whole document is written on every mutation; there is no field-level
// locking.
type Draft struct {
	ID        uuid.UUID              `json:"id"`
	OwnerID   uuid.UUID              `json:"owner_id"`
	Messages  []conversation.Message `json:"messages"`
	State     conversation.State     `json:"state"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`
}

// Request statuses, administered outside the intake path after creation.
const (
	StatusNew       = "new"
	StatusInReview  = "in_review"
	StatusPilot     = "pilot"
	StatusCompleted = "completed"
	StatusRejected  = "rejected"
)

// StructuredFields is the schema-validated payload of a final request.
type StructuredFields struct {
	Description       string   `json:"description"`
	PainPoints        []string `json:"pain_points"`
	Frequency         string   `json:"frequency"`
	DurationMinutes   int      `json:"duration_minutes"`
	PeopleInvolved    int      `json:"people_involved"`
	Tools             []string `json:"tools"`
	Roles             []string `json:"roles"`
	HoursSavedPerWeek float64  `json:"hours_saved_per_week"`
	Category          string   `json:"category"`
	Complexity        string   `json:"complexity"` // low | medium | high
}

// AttachmentsSummary is derived from the conversation's attachment list.
type AttachmentsSummary struct {
	Count         int    `json:"count"`
	FirstThumbURL string `json:"first_thumb_url,omitempty"`
}

// FinalRequest is the permanent structured record produced by
// finalization. Its id equals the originating draft id; reusing the id as
// primary key is what makes finalization idempotent.
type FinalRequest struct {
	ID           uuid.UUID              `json:"id"`
	OwnerID      uuid.UUID              `json:"owner_id"`
	Title        string                 `json:"title"`
	Status       string                 `json:"status"`
	Fields       StructuredFields       `json:"fields"`
	Attachments  AttachmentsSummary     `json:"attachments_summary"`
	Shared       bool                   `json:"shared"`
	Conversation []conversation.Message `json:"conversation"`
	CreatedAt    time.Time              `json:"created_at"`
	UpdatedAt    time.Time              `json:"updated_at"`
}
