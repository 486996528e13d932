package refund

import (
	"context"

	"github.com/shopspring/decimal"
)

// Repository defines the interface for refund record persistence.
//
// UpdateWithVersion persists the model only if the stored row still has the
// expected version, bumping the version on success, and returns the
// affected-row count. Callers retry once on a zero result after re-reading.
type Repository interface {
	Create(ctx context.Context, record *Record) error
	Get(ctx context.Context, id string) (*Record, error)
	UpdateWithVersion(ctx context.Context, record *Record, expectedVersion int) (int, error)
	ListByInvoice(ctx context.Context, invoiceID string) ([]*Record, error)

	// GetByIdempotencyKey returns the refund recorded under the caller's
	// idempotency key for an invoice, or a NotFound error
	GetByIdempotencyKey(ctx context.Context, invoiceID, key string) (*Record, error)

	// GetByRefundID returns the refund matching a gateway refund id for an
	// invoice, or a NotFound error
	GetByRefundID(ctx context.Context, invoiceID, refundID string) (*Record, error)

	// SumSucceeded returns the cumulative succeeded refund amount for an
	// invoice; zero refunds yields decimal zero
	SumSucceeded(ctx context.Context, invoiceID string) (decimal.Decimal, error)
}
