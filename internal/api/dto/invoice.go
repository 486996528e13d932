package dto

import (
	"github.com/billforge/billforge/internal/domain/invoice"
)

// InvoiceResponse represents an invoice in API responses
type InvoiceResponse struct {
	*invoice.Invoice
}

// NewInvoiceResponse creates a response from a domain invoice
func NewInvoiceResponse(inv *invoice.Invoice) *InvoiceResponse {
	return &InvoiceResponse{Invoice: inv}
}
