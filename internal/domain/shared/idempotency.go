package shared

import (
	"context"
	"time"
)

// DefaultDedupeTTL is how long a replicated event ID is remembered when the
// router is not given an explicit TTL.
const DefaultDedupeTTL = 10 * time.Minute

// IdempotencyStore remembers which replicated event IDs were already applied.
// The replication channel delivers at least once, so receivers consult it
// before fanning an event out.
type IdempotencyStore interface {
	// MarkProcessed records eventID for ttl. It reports false when the ID
	// was already recorded.
	MarkProcessed(ctx context.Context, eventID string, ttl time.Duration) (bool, error)

	IsProcessed(ctx context.Context, eventID string) (bool, error)

	Close() error
}
