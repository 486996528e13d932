package testutil

import (
	"context"
	"sync"

	ierr "github.com/billforge/billforge/internal/errors"
	"github.com/billforge/billforge/internal/gateway"
	"github.com/billforge/billforge/internal/types"
	"github.com/shopspring/decimal"
)

// MockGateway implements gateway.PaymentGatewayService with scripted
// responses and call accounting
type MockGateway struct {
	mu sync.Mutex

	// RefundResult is returned by ProcessRefund when RefundErr is nil
	RefundResult *gateway.RefundResult
	RefundErr    error

	refundCalls int
}

// NewMockGateway creates a mock gateway that approves refunds by default
func NewMockGateway() *MockGateway {
	return &MockGateway{
		RefundResult: &gateway.RefundResult{
			Success:  true,
			RefundID: "mock-refund-1",
		},
	}
}

func (g *MockGateway) ProcessRefund(ctx context.Context, transactionID string, amount decimal.Decimal, reason string) (*gateway.RefundResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.refundCalls++
	if g.RefundErr != nil {
		return nil, g.RefundErr
	}
	return g.RefundResult, nil
}

func (g *MockGateway) ParseRefundAmount(paymentMethod string, callbackData map[string]string) (decimal.Decimal, error) {
	raw, ok := callbackData["refund_amount"]
	if !ok {
		raw, ok = callbackData["amount"]
	}
	if !ok {
		return decimal.Zero, ierr.NewError("callback has no refund amount").
			WithHint("The gateway callback is missing the amount field").
			Mark(ierr.ErrValidation)
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, ierr.WithError(err).
			WithHint("The gateway callback amount is not a number").
			Mark(ierr.ErrValidation)
	}
	return amount, nil
}

func (g *MockGateway) IsRefundSuccess(paymentMethod string, callbackData map[string]string) bool {
	switch callbackData["status"] {
	case "succeeded", "success", "SUCCESS":
		return true
	default:
		return false
	}
}

// RefundCalls returns how many times ProcessRefund was invoked
func (g *MockGateway) RefundCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.refundCalls
}

var _ gateway.PaymentGatewayService = (*MockGateway)(nil)

// CapturingSender implements notification.Sender, recording every delivery
type CapturingSender struct {
	mu         sync.Mutex
	deliveries []CapturedNotification
}

// CapturedNotification is one recorded notification delivery
type CapturedNotification struct {
	Target       string
	Channel      types.NotificationChannel
	TemplateCode string
	Variables    map[string]string
}

// NewCapturingSender creates a sender that records deliveries
func NewCapturingSender() *CapturingSender {
	return &CapturingSender{}
}

func (s *CapturingSender) Deliver(ctx context.Context, target string, channel types.NotificationChannel, templateCode string, variables map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deliveries = append(s.deliveries, CapturedNotification{
		Target:       target,
		Channel:      channel,
		TemplateCode: templateCode,
		Variables:    variables,
	})
	return nil
}

// Deliveries returns the recorded notifications
func (s *CapturingSender) Deliveries() []CapturedNotification {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]CapturedNotification, len(s.deliveries))
	copy(out, s.deliveries)
	return out
}
