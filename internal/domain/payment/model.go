package payment

import (
	"time"

	ierr "github.com/billforge/billforge/internal/errors"
	"github.com/billforge/billforge/internal/types"
	"github.com/shopspring/decimal"
)

// Record represents a payment confirmation received for an invoice.
// Posted transitions false to true exactly once per record; the posting
// pass owns that transition under an optimistic guard.
type Record struct {
	ID        string `json:"id"`
	InvoiceID string `json:"invoice_id"`
	// TransactionID is the identifier assigned by the external gateway
	TransactionID     string                  `json:"transaction_id"`
	PaymentMethodType types.PaymentMethodType `json:"payment_method_type"`
	Amount            decimal.Decimal         `json:"amount"`
	Currency          string                  `json:"currency"`
	PaymentStatus     types.PaymentStatus     `json:"payment_status"`
	IdempotencyKey    string                  `json:"idempotency_key,omitempty"`
	Posted            bool                    `json:"posted"`
	PostedTime        *time.Time              `json:"posted_time,omitempty"`
	ErrorMessage      *string                 `json:"error_message,omitempty"`
	Metadata          types.Metadata          `json:"metadata,omitempty"`

	types.BaseModel
}

// Validate validates the payment record
func (p *Record) Validate() error {
	if p.InvoiceID == "" {
		return ierr.NewError("invoice id is required").
			WithHint("Invoice id cannot be empty").
			Mark(ierr.ErrValidation)
	}
	if p.Amount.IsZero() || p.Amount.IsNegative() {
		return ierr.NewError("invalid amount").
			WithHint("Amount must be greater than 0").
			Mark(ierr.ErrValidation)
	}
	if p.Currency == "" {
		return ierr.NewError("invalid currency").
			WithHint("Currency is required").
			Mark(ierr.ErrValidation)
	}
	if err := p.PaymentMethodType.Validate(); err != nil {
		return ierr.NewError("invalid payment method type").
			WithHint("Payment method type is invalid").
			Mark(ierr.ErrValidation)
	}
	return nil
}

// TableName returns the table name for the payment record
func (p *Record) TableName() string {
	return "payment_records"
}
