package usage

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Repository defines the interface for the append-only usage ledger.
// All queries are scoped to the tenant carried in the context.
type Repository interface {
	Create(ctx context.Context, record *Record) error
	Get(ctx context.Context, id string) (*Record, error)

	// SumByMetric returns the subscription's total unbilled quantity for a
	// metric over [periodStart, periodEnd). Zero usage yields decimal zero,
	// not an error.
	SumByMetric(ctx context.Context, subscriptionID string, metricType string, periodStart, periodEnd time.Time) (decimal.Decimal, error)

	// MarkBilled flips the subscription's unbilled records for the period to
	// billed and stamps the invoice id, returning how many records were
	// updated. A record is marked billed at most once.
	MarkBilled(ctx context.Context, subscriptionID string, invoiceID string, periodStart, periodEnd time.Time) (int, error)

	// ListByInvoice returns the records billed under one invoice
	ListByInvoice(ctx context.Context, invoiceID string) ([]*Record, error)
}
