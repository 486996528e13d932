package subscription

import (
	"context"
	"time"

	"github.com/billforge/billforge/internal/types"
)

// Repository defines the interface for subscription persistence.
//
// UpdateWithGuard is the optimistic-concurrency primitive: it persists the
// given model only if the stored row still has the expected business status
// and returns the number of affected rows. Callers must treat a zero result
// as "another writer already advanced this record", not as an error.
type Repository interface {
	Create(ctx context.Context, sub *Subscription) error
	Get(ctx context.Context, id string) (*Subscription, error)
	Update(ctx context.Context, sub *Subscription) error
	UpdateWithGuard(ctx context.Context, sub *Subscription, expected types.SubscriptionStatus) (int, error)
	List(ctx context.Context, filter *types.SubscriptionFilter) ([]*Subscription, error)
	Count(ctx context.Context, filter *types.SubscriptionFilter) (int, error)

	// GetNonTerminalByTenant returns the tenant's current non-cancelled
	// subscription, or a NotFound error when there is none
	GetNonTerminalByTenant(ctx context.Context) (*Subscription, error)

	// ListDueForBilling returns billable subscriptions whose next billing
	// time is at or before now, oldest first
	ListDueForBilling(ctx context.Context, now time.Time, limit int) ([]*Subscription, error)

	// ListExpiredTrials returns trialing subscriptions whose trial end time
	// is before now, oldest first
	ListExpiredTrials(ctx context.Context, now time.Time, limit int) ([]*Subscription, error)
}
