package service

import (
	"testing"

	"github.com/billforge/billforge/internal/api/dto"
	"github.com/billforge/billforge/internal/domain/plan"
	"github.com/billforge/billforge/internal/domain/refund"
	"github.com/billforge/billforge/internal/domain/subscription"
	ierr "github.com/billforge/billforge/internal/errors"
	"github.com/billforge/billforge/internal/gateway"
	"github.com/billforge/billforge/internal/testutil"
	"github.com/billforge/billforge/internal/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
)

type RefundServiceSuite struct {
	testutil.BaseServiceTestSuite
	service  RefundService
	testData struct {
		sub     *subscription.Subscription
		invoice *dto.InvoiceResponse
	}
}

func TestRefundService(t *testing.T) {
	suite.Run(t, new(RefundServiceSuite))
}

func (s *RefundServiceSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	s.service = NewRefundService(s.serviceParams())
	s.setupPaidInvoice()
}

func (s *RefundServiceSuite) serviceParams() ServiceParams {
	return ServiceParams{
		Logger:             s.GetLogger(),
		Config:             s.GetConfig(),
		PlanRepo:           s.GetStores().PlanRepo,
		SubRepo:            s.GetStores().SubRepo,
		InvoiceRepo:        s.GetStores().InvoiceRepo,
		UsageRepo:          s.GetStores().UsageRepo,
		PaymentRepo:        s.GetStores().PaymentRepo,
		RefundRepo:         s.GetStores().RefundRepo,
		OutboxRepo:         s.GetStores().OutboxRepo,
		PubSub:             s.GetPubSub(),
		EventPublisher:     s.GetPublisher(),
		NotificationClient: s.GetNotificationClient(),
		Gateway:            s.GetGateway(),
	}
}

// setupPaidInvoice generates a 110.00 invoice (100 base plus 10% tax) and
// settles it through the payment pipeline
func (s *RefundServiceSuite) setupPaidInvoice() {
	p := &plan.Plan{
		ID:               "plan_refund_test",
		Name:             "Pro",
		BasePrice:        decimal.NewFromInt(100),
		Currency:         "usd",
		BillingCycleDays: 30,
		BaseModel:        types.GetDefaultBaseModel(s.GetContext()),
	}
	s.NoError(s.GetStores().PlanRepo.Create(s.GetContext(), p))

	s.testData.sub = &subscription.Subscription{
		ID:                 "subs_refund_test",
		PlanID:             p.ID,
		SubscriptionStatus: types.SubscriptionStatusActive,
		NextBillingTime:    s.GetNow(),
		Currency:           "usd",
		BaseModel:          types.GetDefaultBaseModel(s.GetContext()),
	}
	s.NoError(s.GetStores().SubRepo.Create(s.GetContext(), s.testData.sub))

	params := s.serviceParams()
	inv, err := NewInvoiceService(params).GenerateInvoice(s.GetContext(), s.testData.sub.ID)
	s.NoError(err)
	s.testData.invoice = inv

	paymentService := NewPaymentService(params)
	_, err = paymentService.RecordPayment(s.GetContext(), dto.RecordPaymentRequest{
		InvoiceID:         inv.ID,
		TransactionID:     "txn_refund_test",
		PaymentMethodType: string(types.PaymentMethodTypeCard),
		Amount:            inv.TotalAmount,
		Currency:          "usd",
	})
	s.NoError(err)
	_, err = paymentService.PostSuccessPayments(s.GetContext(), 100)
	s.NoError(err)
}

func (s *RefundServiceSuite) requestRefund(amount decimal.Decimal, idempotencyKey string) (*dto.RefundResponse, error) {
	return s.service.RequestRefund(s.GetContext(), dto.RefundRequest{
		InvoiceID:      s.testData.invoice.ID,
		Amount:         amount,
		Reason:         "customer request",
		IdempotencyKey: idempotencyKey,
	})
}

func (s *RefundServiceSuite) TestFullRefund() {
	resp, err := s.requestRefund(s.testData.invoice.TotalAmount, "")
	s.NoError(err)
	s.Equal(types.RefundStatusSucceeded, resp.RefundStatus)
	s.Equal("mock-refund-1", resp.RefundID)
	s.NotNil(resp.CompletedAt)

	inv, err := s.GetStores().InvoiceRepo.Get(s.GetContext(), s.testData.invoice.ID)
	s.NoError(err)
	s.Equal(types.InvoiceStatusRefunded, inv.InvoiceStatus)
	s.NotNil(inv.RefundedAt)

	// A fully refunded invoice takes no further refunds
	_, err = s.requestRefund(decimal.NewFromInt(1), "")
	s.Error(err)
	s.True(ierr.IsInvalidOperation(err))
}

func (s *RefundServiceSuite) TestPartialRefundLeavesInvoicePaid() {
	resp, err := s.requestRefund(decimal.NewFromInt(40), "")
	s.NoError(err)
	s.Equal(types.RefundStatusSucceeded, resp.RefundStatus)

	inv, err := s.GetStores().InvoiceRepo.Get(s.GetContext(), s.testData.invoice.ID)
	s.NoError(err)
	s.Equal(types.InvoiceStatusPaid, inv.InvoiceStatus)

	// The second partial brings the total to exactly the invoice amount
	_, err = s.requestRefund(decimal.NewFromInt(70), "")
	s.NoError(err)

	inv, err = s.GetStores().InvoiceRepo.Get(s.GetContext(), s.testData.invoice.ID)
	s.NoError(err)
	s.Equal(types.InvoiceStatusRefunded, inv.InvoiceStatus)
}

func (s *RefundServiceSuite) TestOverRefundRejected() {
	_, err := s.requestRefund(decimal.NewFromInt(50), "")
	s.NoError(err)

	_, err = s.requestRefund(decimal.NewFromInt(70), "")
	s.Error(err)
	s.True(ierr.IsOverLimit(err))
	s.Equal(1, s.GetGateway().RefundCalls(), "a rejected request must not reach the gateway")
}

func (s *RefundServiceSuite) TestIdempotentReplaySkipsGateway() {
	first, err := s.requestRefund(decimal.NewFromInt(40), "refund-key-1")
	s.NoError(err)
	second, err := s.requestRefund(decimal.NewFromInt(40), "refund-key-1")
	s.NoError(err)

	s.Equal(first.ID, second.ID)
	s.Equal(1, s.GetGateway().RefundCalls())

	records, err := s.service.ListRefunds(s.GetContext(), s.testData.invoice.ID)
	s.NoError(err)
	s.Len(records, 1)
}

func (s *RefundServiceSuite) TestFailedAttemptDoesNotBlockRetryUnderSameKey() {
	s.GetGateway().RefundErr = ierr.NewError("gateway unreachable").
		WithHint("The payment gateway did not respond").
		Mark(ierr.ErrHTTPClient)

	_, err := s.requestRefund(decimal.NewFromInt(40), "refund-key-2")
	s.Error(err)

	// The gateway recovers; the same key must reach it again
	s.GetGateway().RefundErr = nil

	resp, err := s.requestRefund(decimal.NewFromInt(40), "refund-key-2")
	s.NoError(err)
	s.Equal(types.RefundStatusSucceeded, resp.RefundStatus)
	s.Equal(2, s.GetGateway().RefundCalls())

	// Once succeeded, the key replays without another gateway call
	replay, err := s.requestRefund(decimal.NewFromInt(40), "refund-key-2")
	s.NoError(err)
	s.Equal(resp.ID, replay.ID)
	s.Equal(2, s.GetGateway().RefundCalls())
}

func (s *RefundServiceSuite) TestGatewayErrorLeavesAuditRecord() {
	s.GetGateway().RefundErr = ierr.NewError("gateway unreachable").
		WithHint("The payment gateway did not respond").
		Mark(ierr.ErrHTTPClient)

	_, err := s.requestRefund(decimal.NewFromInt(40), "")
	s.Error(err)
	s.True(ierr.IsHTTPClient(err))

	records, err := s.service.ListRefunds(s.GetContext(), s.testData.invoice.ID)
	s.NoError(err)
	s.Len(records, 1)
	s.Equal(types.RefundStatusFailed, records[0].RefundStatus)
	s.NotNil(records[0].ErrorMessage)

	inv, err := s.GetStores().InvoiceRepo.Get(s.GetContext(), s.testData.invoice.ID)
	s.NoError(err)
	s.Equal(types.InvoiceStatusPaid, inv.InvoiceStatus)
}

func (s *RefundServiceSuite) TestGatewayDeclineRecordedWithoutError() {
	s.GetGateway().RefundResult = &gateway.RefundResult{
		Success:  false,
		RefundID: "mock-refund-declined",
		Message:  "insufficient gateway balance",
	}

	resp, err := s.requestRefund(decimal.NewFromInt(40), "")
	s.NoError(err)
	s.Equal(types.RefundStatusFailed, resp.RefundStatus)
	s.Equal("mock-refund-declined", resp.RefundID)
	s.NotNil(resp.ErrorMessage)

	inv, err := s.GetStores().InvoiceRepo.Get(s.GetContext(), s.testData.invoice.ID)
	s.NoError(err)
	s.Equal(types.InvoiceStatusPaid, inv.InvoiceStatus)
}

func (s *RefundServiceSuite) TestCallbackCreatesRecord() {
	resp, err := s.service.ProcessRefundCallback(s.GetContext(), s.testData.invoice.ID, string(types.PaymentMethodTypeCard), map[string]string{
		"refund_id":     "gw-refund-77",
		"refund_amount": "40.00",
		"status":        "succeeded",
		"card_number":   "4242424242424242",
	})
	s.NoError(err)
	s.Equal(types.RefundStatusSucceeded, resp.RefundStatus)
	s.Equal("gw-refund-77", resp.RefundID)
	s.True(resp.Amount.Equal(decimal.NewFromInt(40)))
	s.Equal("usd", resp.Currency)

	// Sensitive callback fields are never stored in clear text
	s.Equal("****", resp.RawCallback["card_number"])
	s.Equal("succeeded", resp.RawCallback["status"])
}

func (s *RefundServiceSuite) TestCallbackSettlesPendingRecord() {
	record := &refund.Record{
		ID:           types.GenerateUUIDWithPrefix(types.UUID_PREFIX_REFUND),
		InvoiceID:    s.testData.invoice.ID,
		RefundID:     "gw-refund-88",
		Amount:       s.testData.invoice.TotalAmount,
		Currency:     "usd",
		RefundStatus: types.RefundStatusPending,
		BaseModel:    types.GetDefaultBaseModel(s.GetContext()),
	}
	s.NoError(s.GetStores().RefundRepo.Create(s.GetContext(), record))

	resp, err := s.service.ProcessRefundCallback(s.GetContext(), s.testData.invoice.ID, string(types.PaymentMethodTypeCard), map[string]string{
		"refund_id": "gw-refund-88",
		"status":    "succeeded",
	})
	s.NoError(err)
	s.Equal(record.ID, resp.ID)
	s.Equal(types.RefundStatusSucceeded, resp.RefundStatus)
	s.NotNil(resp.CompletedAt)
	s.Equal(record.Version+1, resp.Version)

	// The full-amount refund settles the invoice
	inv, err := s.GetStores().InvoiceRepo.Get(s.GetContext(), s.testData.invoice.ID)
	s.NoError(err)
	s.Equal(types.InvoiceStatusRefunded, inv.InvoiceStatus)
}

func (s *RefundServiceSuite) TestCallbackFailureMarksPendingRecordFailed() {
	record := &refund.Record{
		ID:           types.GenerateUUIDWithPrefix(types.UUID_PREFIX_REFUND),
		InvoiceID:    s.testData.invoice.ID,
		RefundID:     "gw-refund-99",
		Amount:       decimal.NewFromInt(40),
		Currency:     "usd",
		RefundStatus: types.RefundStatusPending,
		BaseModel:    types.GetDefaultBaseModel(s.GetContext()),
	}
	s.NoError(s.GetStores().RefundRepo.Create(s.GetContext(), record))

	resp, err := s.service.ProcessRefundCallback(s.GetContext(), s.testData.invoice.ID, string(types.PaymentMethodTypeCard), map[string]string{
		"refund_id": "gw-refund-99",
		"status":    "failed",
	})
	s.NoError(err)
	s.Equal(types.RefundStatusFailed, resp.RefundStatus)
	s.Nil(resp.CompletedAt)

	inv, err := s.GetStores().InvoiceRepo.Get(s.GetContext(), s.testData.invoice.ID)
	s.NoError(err)
	s.Equal(types.InvoiceStatusPaid, inv.InvoiceStatus)
}

func (s *RefundServiceSuite) TestCallbackWithoutRefundID() {
	_, err := s.service.ProcessRefundCallback(s.GetContext(), s.testData.invoice.ID, string(types.PaymentMethodTypeCard), map[string]string{
		"status": "succeeded",
	})
	s.Error(err)
	s.True(ierr.IsValidation(err))
}

func (s *RefundServiceSuite) TestCallbackDeliveredTwice() {
	callback := map[string]string{
		"refund_id":     "gw-refund-55",
		"refund_amount": "110.00",
		"status":        "succeeded",
	}

	first, err := s.service.ProcessRefundCallback(s.GetContext(), s.testData.invoice.ID, string(types.PaymentMethodTypeCard), callback)
	s.NoError(err)
	second, err := s.service.ProcessRefundCallback(s.GetContext(), s.testData.invoice.ID, string(types.PaymentMethodTypeCard), callback)
	s.NoError(err)
	s.Equal(first.ID, second.ID)

	records, err := s.service.ListRefunds(s.GetContext(), s.testData.invoice.ID)
	s.NoError(err)
	s.Len(records, 1)

	// The invoice settles once and stays settled
	inv, err := s.GetStores().InvoiceRepo.Get(s.GetContext(), s.testData.invoice.ID)
	s.NoError(err)
	s.Equal(types.InvoiceStatusRefunded, inv.InvoiceStatus)
}
