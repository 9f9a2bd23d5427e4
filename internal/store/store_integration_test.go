//go:build integration

package store

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/google/uuid"

	"github.com/cobaltline/intake/internal/conversation"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, dbURL)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}

	t.Cleanup(func() {
		s.Close()
	})
	return s
}

func TestIntegration_DraftRoundTrip(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	ownerID := uuid.New()

	d := &Draft{
		ID:      uuid.New(),
		OwnerID: ownerID,
		Messages: []conversation.Message{
			conversation.NewMessage(conversation.RoleUser, "automate invoice matching"),
		},
		State: conversation.State{
			Stage:    conversation.StageDescription,
			Language: "en",
		},
	}
	t.Cleanup(func() {
		s.pool.Exec(ctx, "DELETE FROM drafts WHERE id = $1", d.ID)
	})

	if err := s.PutDraft(ctx, d); err != nil {
		t.Fatalf("PutDraft failed: %v", err)
	}

	got, err := s.GetDraft(ctx, d.ID)
	if err != nil {
		t.Fatalf("GetDraft failed: %v", err)
	}
	if got.OwnerID != ownerID {
		t.Errorf("expected owner %s, got %s", ownerID, got.OwnerID)
	}
	if got.State.Stage != conversation.StageDescription {
		t.Errorf("expected description stage, got %q", got.State.Stage)
	}
	if len(got.Messages) != 1 || got.Messages[0].Content != "automate invoice matching" {
		t.Errorf("unexpected messages: %+v", got.Messages)
	}

	// Overwrite with an advanced stage and verify the replace.
	d.State.Stage = conversation.StageDetails
	if err := s.PutDraft(ctx, d); err != nil {
		t.Fatalf("PutDraft (update) failed: %v", err)
	}
	got, err = s.GetDraft(ctx, d.ID)
	if err != nil {
		t.Fatalf("GetDraft after update failed: %v", err)
	}
	if got.State.Stage != conversation.StageDetails {
		t.Errorf("expected details stage after update, got %q", got.State.Stage)
	}

	if err := s.DeleteDraft(ctx, d.ID); err != nil {
		t.Fatalf("DeleteDraft failed: %v", err)
	}
	if _, err := s.GetDraft(ctx, d.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}

	// Deleting again must stay a no-op.
	if err := s.DeleteDraft(ctx, d.ID); err != nil {
		t.Errorf("repeat DeleteDraft failed: %v", err)
	}
}

func TestIntegration_RequestRoundTrip(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	ownerID := uuid.New()

	r := &FinalRequest{
		ID:      uuid.New(),
		OwnerID: ownerID,
		Title:   "Invoice matching automation",
		Status:  StatusNew,
		Fields: StructuredFields{
			Description: "Match incoming invoices to purchase orders",
			Category:    "Finance",
			Complexity:  "medium",
		},
		Shared: true,
	}
	t.Cleanup(func() {
		s.pool.Exec(ctx, "DELETE FROM requests WHERE id = $1", r.ID)
	})

	if err := s.PutRequest(ctx, r); err != nil {
		t.Fatalf("PutRequest failed: %v", err)
	}

	got, err := s.GetRequest(ctx, r.ID)
	if err != nil {
		t.Fatalf("GetRequest failed: %v", err)
	}
	if got.Title != "Invoice matching automation" {
		t.Errorf("expected title, got %q", got.Title)
	}
	if got.Status != StatusNew {
		t.Errorf("expected status new, got %q", got.Status)
	}
	if !got.Shared {
		t.Error("expected shared record")
	}

	// Same-key write replaces the document.
	r.Fields.Complexity = "high"
	if err := s.PutRequest(ctx, r); err != nil {
		t.Fatalf("PutRequest (update) failed: %v", err)
	}
	got, err = s.GetRequest(ctx, r.ID)
	if err != nil {
		t.Fatalf("GetRequest after update failed: %v", err)
	}
	if got.Fields.Complexity != "high" {
		t.Errorf("expected complexity high, got %q", got.Fields.Complexity)
	}

	list, err := s.ListRequestsByOwner(ctx, ownerID)
	if err != nil {
		t.Fatalf("ListRequestsByOwner failed: %v", err)
	}
	if len(list) != 1 || list[0].ID != r.ID {
		t.Errorf("expected one request for owner, got %+v", list)
	}
}

func TestIntegration_DeleteDraftsBatch(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	ownerID := uuid.New()

	var ids []uuid.UUID
	for i := 0; i < 5; i++ {
		d := &Draft{
			ID:      uuid.New(),
			OwnerID: ownerID,
			State:   conversation.State{Stage: conversation.StageInit},
		}
		if err := s.PutDraft(ctx, d); err != nil {
			t.Fatalf("PutDraft failed: %v", err)
		}
		ids = append(ids, d.ID)
	}
	t.Cleanup(func() {
		s.pool.Exec(ctx, "DELETE FROM drafts WHERE owner_id = $1", ownerID)
	})

	if err := s.DeleteDraftsBatch(ctx, ids); err != nil {
		t.Fatalf("DeleteDraftsBatch failed: %v", err)
	}

	left, err := s.ListDraftsByOwner(ctx, ownerID)
	if err != nil {
		t.Fatalf("ListDraftsByOwner failed: %v", err)
	}
	if len(left) != 0 {
		t.Errorf("expected no drafts left, got %d", len(left))
	}
}
