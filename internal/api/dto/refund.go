package dto

import (
	"github.com/billforge/billforge/internal/domain/refund"
	"github.com/billforge/billforge/internal/validator"
	"github.com/shopspring/decimal"
)

// RefundRequest requests a (partial) refund against a paid invoice
type RefundRequest struct {
	InvoiceID string          `json:"invoice_id" validate:"required"`
	Amount    decimal.Decimal `json:"amount" validate:"required"`
	Reason    string          `json:"reason,omitempty"`
	// IdempotencyKey makes a replayed request return the earlier outcome
	// without a second gateway call
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// Validate validates the request
func (r *RefundRequest) Validate() error {
	return validator.ValidateRequest(r)
}

// RefundResponse represents a refund record in API responses
type RefundResponse struct {
	*refund.Record
}

// NewRefundResponse creates a response from a domain refund record
func NewRefundResponse(record *refund.Record) *RefundResponse {
	return &RefundResponse{Record: record}
}
