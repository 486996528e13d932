package dto

import (
	"github.com/billforge/billforge/internal/domain/payment"
	"github.com/billforge/billforge/internal/validator"
	"github.com/shopspring/decimal"
)

// RecordPaymentRequest records a payment confirmation from the gateway
type RecordPaymentRequest struct {
	InvoiceID         string          `json:"invoice_id" validate:"required"`
	TransactionID     string          `json:"transaction_id" validate:"required"`
	PaymentMethodType string          `json:"payment_method_type" validate:"required"`
	Amount            decimal.Decimal `json:"amount" validate:"required"`
	Currency          string          `json:"currency" validate:"required"`
	IdempotencyKey    string          `json:"idempotency_key,omitempty"`
}

// Validate validates the request
func (r *RecordPaymentRequest) Validate() error {
	return validator.ValidateRequest(r)
}

// PaymentResponse represents a payment record in API responses
type PaymentResponse struct {
	*payment.Record
}

// NewPaymentResponse creates a response from a domain payment record
func NewPaymentResponse(record *payment.Record) *PaymentResponse {
	return &PaymentResponse{Record: record}
}
