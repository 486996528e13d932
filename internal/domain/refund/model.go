package refund

import (
	"time"

	ierr "github.com/billforge/billforge/internal/errors"
	"github.com/billforge/billforge/internal/types"
	"github.com/shopspring/decimal"
)

// Record represents one refund request against a paid invoice, successful
// or not. Records are kept for every gateway outcome as an audit trail.
// Version backs the optimistic-lock retry in the callback handler.
type Record struct {
	ID        string `json:"id"`
	InvoiceID string `json:"invoice_id"`
	// RefundID is the identifier assigned by the external gateway; empty
	// until the gateway has acknowledged the refund
	RefundID       string             `json:"refund_id,omitempty"`
	PaymentMethod  string             `json:"payment_method,omitempty"`
	Amount         decimal.Decimal    `json:"amount"`
	Currency       string             `json:"currency"`
	RefundStatus   types.RefundStatus `json:"refund_status"`
	Reason         string             `json:"reason,omitempty"`
	IdempotencyKey string             `json:"idempotency_key,omitempty"`
	// RawCallback holds the redacted gateway callback payload
	RawCallback  types.Metadata `json:"raw_callback,omitempty"`
	ErrorMessage *string        `json:"error_message,omitempty"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
	Version      int            `json:"version"`

	types.BaseModel
}

// Validate validates the refund record
func (r *Record) Validate() error {
	if r.InvoiceID == "" {
		return ierr.NewError("invoice id is required").
			WithHint("Invoice id cannot be empty").
			Mark(ierr.ErrValidation)
	}
	if r.Amount.IsZero() || r.Amount.IsNegative() {
		return ierr.NewError("invalid amount").
			WithHint("Refund amount must be greater than 0").
			Mark(ierr.ErrValidation)
	}
	if err := r.RefundStatus.Validate(); err != nil {
		return ierr.NewError("invalid refund status").
			WithHint("Refund status is invalid").
			Mark(ierr.ErrValidation)
	}
	return nil
}

// TableName returns the table name for the refund record
func (r *Record) TableName() string {
	return "refund_records"
}
