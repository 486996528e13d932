package usage

import (
	"time"

	ierr "github.com/billforge/billforge/internal/errors"
	"github.com/billforge/billforge/internal/types"
	"github.com/shopspring/decimal"
)

// Record is one append-only usage measurement. Records are mutated exactly
// once after creation: the billing pass sets Billed and InvoiceID in a
// single batch scoped to tenant + period + invoice.
type Record struct {
	ID             string          `json:"id"`
	SubscriptionID *string         `json:"subscription_id,omitempty"`
	MetricType     string          `json:"metric_type"`
	Quantity       decimal.Decimal `json:"quantity"`
	RecordedAt     time.Time       `json:"recorded_at"`
	Billed         bool            `json:"billed"`
	InvoiceID      *string         `json:"invoice_id,omitempty"`

	types.BaseModel
}

// Validate validates the usage record
func (r *Record) Validate() error {
	if r.MetricType == "" {
		return ierr.NewError("metric type is required").
			WithHint("Metric type cannot be empty").
			Mark(ierr.ErrValidation)
	}
	if r.Quantity.IsNegative() {
		return ierr.NewError("invalid quantity").
			WithHint("Quantity must be non negative").
			Mark(ierr.ErrValidation)
	}
	if r.RecordedAt.IsZero() {
		return ierr.NewError("recorded at is required").
			WithHint("Recorded at cannot be zero").
			Mark(ierr.ErrValidation)
	}
	return nil
}

// TableName returns the table name for the usage record
func (r *Record) TableName() string {
	return "usage_records"
}
