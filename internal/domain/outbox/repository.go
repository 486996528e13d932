package outbox

import (
	"context"
	"time"

	"github.com/billforge/billforge/internal/types"
)

// Repository defines the interface for outbox record persistence.
//
// MarkSent is the optimistic-concurrency primitive guarding against double
// delivery under concurrent relays: it flips the record to sent only if it
// is still in the expected status and returns the affected-row count. A zero
// result means another relay already delivered the record.
type Repository interface {
	Create(ctx context.Context, record *Record) error
	Get(ctx context.Context, id string) (*Record, error)

	// ListDue returns pending or failed records whose next retry time is at
	// or before now (or unset), oldest first
	ListDue(ctx context.Context, now time.Time, limit int) ([]*Record, error)

	MarkSent(ctx context.Context, id string, expected types.OutboxStatus, sentAt time.Time) (int, error)

	// MarkFailed persists the failure state of a record. Losing this write
	// is tolerable: the record's status did not advance, so a later relay
	// pass will pick it up again.
	MarkFailed(ctx context.Context, record *Record) error

	Count(ctx context.Context, status types.OutboxStatus) (int, error)
}
