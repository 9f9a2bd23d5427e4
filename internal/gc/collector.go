package gc

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/cobaltline/intake/internal/conversation"
	"github.com/cobaltline/intake/internal/events"
	"github.com/cobaltline/intake/internal/store"
)

// emptyMessageLimit is the message count below which a draft with no
// user-authored content counts as empty (only the welcome was ever sent).
const emptyMessageLimit = 3

// DraftStore is the slice of the document store the collector scans and
// prunes.
type DraftStore interface {
	ListDraftsByOwner(ctx context.Context, ownerID uuid.UUID) ([]store.Draft, error)
	DeleteDraftsBatch(ctx context.Context, ids []uuid.UUID) error
}

// Collector removes abandoned empty drafts. Best-effort: it runs as a
// side effect of listing history, never on the critical path of a turn.
type Collector struct {
	drafts    DraftStore
	bus       *events.Publisher
	logger    *slog.Logger
	retention time.Duration
	batchSize int
	now       func() time.Time
}

func New(drafts DraftStore, bus *events.Publisher, retention time.Duration, batchSize int, logger *slog.Logger) *Collector {
	if batchSize <= 0 || batchSize > store.MaxDeleteBatch {
		batchSize = store.MaxDeleteBatch
	}
	return &Collector{
		drafts:    drafts,
		bus:       bus,
		logger:    logger,
		retention: retention,
		batchSize: batchSize,
		now:       time.Now,
	}
}

// Collect scans one user's drafts and deletes the abandoned empty ones in
// concurrently-issued, size-bounded batches. Returns the number deleted.
func (c *Collector) Collect(ctx context.Context, ownerID uuid.UUID) (int, error) {
	drafts, err := c.drafts.ListDraftsByOwner(ctx, ownerID)
	if err != nil {
		return 0, err
	}

	cutoff := c.now().Add(-c.retention)
	var candidates []uuid.UUID
	for _, d := range drafts {
		if c.abandoned(&d, cutoff) {
			candidates = append(candidates, d.ID)
		}
	}
	if len(candidates) == 0 {
		return 0, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for start := 0; start < len(candidates); start += c.batchSize {
		end := min(start+c.batchSize, len(candidates))
		batch := candidates[start:end]
		g.Go(func() error {
			return c.drafts.DeleteDraftsBatch(gctx, batch)
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	if err := c.bus.Publish(events.SubjectPurged, map[string]any{
		"owner_id": ownerID.String(),
		"count":    len(candidates),
	}); err != nil {
		c.logger.Warn("failed to publish purge event", "error", err)
	}

	c.logger.Info("purged abandoned drafts",
		"owner_id", ownerID.String(),
		"count", len(candidates),
	)
	return len(candidates), nil
}

// abandoned reports whether a draft is an empty leftover old enough to
// remove. A draft with any user-authored message is never a candidate,
// regardless of age.
func (c *Collector) abandoned(d *store.Draft, cutoff time.Time) bool {
	if conversation.UserMessageCount(d.Messages) > 0 {
		return false
	}
	if d.State.Stage != conversation.StageInit {
		return false
	}
	if len(d.Messages) >= emptyMessageLimit {
		return false
	}
	return d.UpdatedAt.Before(cutoff)
}
