package payment

import (
	"context"
	"time"

	"github.com/billforge/billforge/internal/types"
)

// Repository defines the interface for payment record persistence.
//
// MarkPosted is the optimistic-concurrency primitive for book posting: it
// sets posted=true and the posted time only if the record is currently
// unposted, returning the affected-row count. A zero result means another
// posting pass already claimed the record.
type Repository interface {
	Create(ctx context.Context, record *Record) error
	Get(ctx context.Context, id string) (*Record, error)
	Update(ctx context.Context, record *Record) error
	List(ctx context.Context, filter *types.PaymentFilter) ([]*Record, error)
	Count(ctx context.Context, filter *types.PaymentFilter) (int, error)
	GetByIdempotencyKey(ctx context.Context, key string) (*Record, error)

	// ListUnposted returns succeeded, unposted payment records, oldest first
	ListUnposted(ctx context.Context, limit int) ([]*Record, error)

	MarkPosted(ctx context.Context, id string, postedAt time.Time) (int, error)
}
