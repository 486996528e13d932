package invoice

import (
	"context"
	"time"

	"github.com/billforge/billforge/internal/types"
)

// Repository defines the interface for invoice persistence.
//
// UpdateWithGuard persists the model only if the stored row still has the
// expected invoice status and returns the affected-row count; a zero result
// means another writer won the race and must be handled as control flow.
type Repository interface {
	// Create inserts a new invoice. Implementations must reject a second
	// invoice for the same (subscription, period start, period end) with an
	// AlreadyExists error.
	Create(ctx context.Context, inv *Invoice) error
	Get(ctx context.Context, id string) (*Invoice, error)
	UpdateWithGuard(ctx context.Context, inv *Invoice, expected types.InvoiceStatus) (int, error)
	List(ctx context.Context, filter *types.InvoiceFilter) ([]*Invoice, error)
	Count(ctx context.Context, filter *types.InvoiceFilter) (int, error)

	// GetBySubscriptionAndPeriod returns the invoice already generated for
	// the given subscription period, or a NotFound error
	GetBySubscriptionAndPeriod(ctx context.Context, subscriptionID string, periodStart, periodEnd time.Time) (*Invoice, error)

	// ListOverdueCandidates returns pending invoices whose due date is
	// before now, oldest first
	ListOverdueCandidates(ctx context.Context, now time.Time, limit int) ([]*Invoice, error)
}
