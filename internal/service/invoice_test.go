package service

import (
	"testing"
	"time"

	"github.com/billforge/billforge/internal/domain/plan"
	"github.com/billforge/billforge/internal/domain/subscription"
	"github.com/billforge/billforge/internal/domain/usage"
	ierr "github.com/billforge/billforge/internal/errors"
	"github.com/billforge/billforge/internal/testutil"
	"github.com/billforge/billforge/internal/types"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
)

type InvoiceServiceSuite struct {
	testutil.BaseServiceTestSuite
	service  InvoiceService
	testData struct {
		plan *plan.Plan
		sub  *subscription.Subscription
	}
}

func TestInvoiceService(t *testing.T) {
	suite.Run(t, new(InvoiceServiceSuite))
}

func (s *InvoiceServiceSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	s.service = NewInvoiceService(s.serviceParams())
	s.setupTestData()
}

func (s *InvoiceServiceSuite) serviceParams() ServiceParams {
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

func (s *InvoiceServiceSuite) setupTestData() {
	s.testData.plan = &plan.Plan{
		ID:               "plan_invoice_test",
		Name:             "Pro",
		BasePrice:        decimal.NewFromInt(100),
		Currency:         "usd",
		BillingCycleDays: 30,
		TrialDays:        14,
		UsagePricing: map[string]decimal.Decimal{
			"api_calls": decimal.NewFromFloat(0.01),
		},
		BaseModel: types.GetDefaultBaseModel(s.GetContext()),
	}
	s.NoError(s.GetStores().PlanRepo.Create(s.GetContext(), s.testData.plan))

	// Billing is due now
	s.testData.sub = &subscription.Subscription{
		ID:                 "subs_invoice_test",
		PlanID:             s.testData.plan.ID,
		SubscriptionStatus: types.SubscriptionStatusActive,
		NextBillingTime:    s.GetNow().Truncate(time.Second),
		Currency:           "usd",
		BaseModel:          types.GetDefaultBaseModel(s.GetContext()),
	}
	s.NoError(s.GetStores().SubRepo.Create(s.GetContext(), s.testData.sub))
}

func (s *InvoiceServiceSuite) TestGenerateInvoiceBaseOnly() {
	// 100 base, no usage, no discount, 10% tax
	resp, err := s.service.GenerateInvoice(s.GetContext(), s.testData.sub.ID)
	s.NoError(err)
	s.Equal(types.InvoiceStatusPending, resp.InvoiceStatus)
	s.True(resp.BaseAmount.Equal(decimal.NewFromInt(100)))
	s.True(resp.UsageAmount.IsZero())
	s.True(resp.DiscountAmount.IsZero())
	s.True(resp.TaxAmount.Equal(decimal.NewFromInt(10)))
	s.True(resp.TotalAmount.Equal(decimal.NewFromInt(110)), "got %s", resp.TotalAmount)
	s.NotEmpty(resp.InvoiceNumber)
	s.NotEmpty(resp.IdempotencyKey)

	// Pricing parameters are frozen on the invoice
	s.Equal(s.testData.plan.ID, resp.PriceSnapshot.PlanID)
	s.True(resp.PriceSnapshot.BasePrice.Equal(s.testData.plan.BasePrice))
	s.True(resp.PriceSnapshot.TaxRatePercent.Equal(decimal.NewFromInt(10)))

	// The billing clock advanced by one cycle
	sub, err := s.GetStores().SubRepo.Get(s.GetContext(), s.testData.sub.ID)
	s.NoError(err)
	expected := resp.PeriodEnd.AddDate(0, 0, s.testData.plan.BillingCycleDays)
	s.True(sub.NextBillingTime.Equal(expected))
	s.True(sub.CurrentPeriodAmount.Equal(resp.TotalAmount))
}

func (s *InvoiceServiceSuite) TestGenerateInvoiceWithUsage() {
	periodEnd := s.testData.sub.NextBillingTime
	record := &usage.Record{
		ID:             types.GenerateUUIDWithPrefix(types.UUID_PREFIX_USAGE_RECORD),
		SubscriptionID: lo.ToPtr(s.testData.sub.ID),
		MetricType:     "api_calls",
		Quantity:       decimal.NewFromInt(500),
		RecordedAt:     periodEnd.Add(-time.Hour),
		BaseModel:      types.GetDefaultBaseModel(s.GetContext()),
	}
	s.NoError(s.GetStores().UsageRepo.Create(s.GetContext(), record))

	resp, err := s.service.GenerateInvoice(s.GetContext(), s.testData.sub.ID)
	s.NoError(err)
	s.True(resp.UsageAmount.Equal(decimal.NewFromInt(5)), "got %s", resp.UsageAmount)
	// (100 + 5) + 10% tax
	s.True(resp.TotalAmount.Equal(decimal.NewFromFloat(115.50)), "got %s", resp.TotalAmount)

	// Usage got stamped with the invoice
	billed, err := s.GetStores().UsageRepo.ListByInvoice(s.GetContext(), resp.ID)
	s.NoError(err)
	s.Len(billed, 1)
	s.True(billed[0].Billed)
}

func (s *InvoiceServiceSuite) TestGenerateInvoiceDuplicatePeriod() {
	first, err := s.service.GenerateInvoice(s.GetContext(), s.testData.sub.ID)
	s.NoError(err)

	// Rewind the billing clock to force the same period
	sub, err := s.GetStores().SubRepo.Get(s.GetContext(), s.testData.sub.ID)
	s.NoError(err)
	sub.NextBillingTime = first.PeriodEnd
	s.NoError(s.GetStores().SubRepo.Update(s.GetContext(), sub))

	second, err := s.service.GenerateInvoice(s.GetContext(), s.testData.sub.ID)
	s.NoError(err)
	s.Equal(first.ID, second.ID)

	count, err := s.GetStores().InvoiceRepo.Count(s.GetContext(), &types.InvoiceFilter{})
	s.NoError(err)
	s.Equal(1, count)
}

func (s *InvoiceServiceSuite) TestGenerateInvoiceRepairsLostClockAdvance() {
	first, err := s.service.GenerateInvoice(s.GetContext(), s.testData.sub.ID)
	s.NoError(err)

	// Simulate a crash after the invoice became durable but before the
	// billing clock advanced
	sub, err := s.GetStores().SubRepo.Get(s.GetContext(), s.testData.sub.ID)
	s.NoError(err)
	sub.NextBillingTime = first.PeriodEnd
	sub.CurrentPeriodAmount = decimal.Zero
	s.NoError(s.GetStores().SubRepo.Update(s.GetContext(), sub))

	second, err := s.service.GenerateInvoice(s.GetContext(), s.testData.sub.ID)
	s.NoError(err)
	s.Equal(first.ID, second.ID)

	// The clock is re-advanced past the billed period, so the subscription
	// is no longer due
	sub, err = s.GetStores().SubRepo.Get(s.GetContext(), s.testData.sub.ID)
	s.NoError(err)
	s.True(sub.NextBillingTime.Equal(first.PeriodEnd.AddDate(0, 0, s.testData.plan.BillingCycleDays)))
	s.True(sub.CurrentPeriodAmount.Equal(first.TotalAmount))

	due, err := s.GetStores().SubRepo.ListDueForBilling(s.GetContext(), first.PeriodEnd.Add(time.Hour), 10)
	s.NoError(err)
	s.Empty(due)
}

func (s *InvoiceServiceSuite) TestGenerateInvoiceDuringTrial() {
	trialEnd := s.GetNow().Truncate(time.Second)
	sub, err := s.GetStores().SubRepo.Get(s.GetContext(), s.testData.sub.ID)
	s.NoError(err)
	sub.SubscriptionStatus = types.SubscriptionStatusTrialing
	sub.InTrial = true
	sub.TrialEndTime = &trialEnd
	sub.NextBillingTime = trialEnd
	s.NoError(s.GetStores().SubRepo.Update(s.GetContext(), sub))

	resp, err := s.service.GenerateInvoice(s.GetContext(), sub.ID)
	s.NoError(err)
	s.True(resp.BaseAmount.IsZero(), "trial periods carry no base charge")
	s.True(resp.PeriodStart.Equal(trialEnd.AddDate(0, 0, -s.testData.plan.TrialDays)))
}

func (s *InvoiceServiceSuite) TestGenerateInvoiceAutoRenewDiscount() {
	sub, err := s.GetStores().SubRepo.Get(s.GetContext(), s.testData.sub.ID)
	s.NoError(err)
	sub.AutoRenew = true
	s.NoError(s.GetStores().SubRepo.Update(s.GetContext(), sub))

	resp, err := s.service.GenerateInvoice(s.GetContext(), sub.ID)
	s.NoError(err)
	// 100 - 5% discount = 95, + 10% tax = 104.50
	s.True(resp.DiscountAmount.Equal(decimal.NewFromInt(5)), "got %s", resp.DiscountAmount)
	s.True(resp.TotalAmount.Equal(decimal.NewFromFloat(104.50)), "got %s", resp.TotalAmount)
}

func (s *InvoiceServiceSuite) TestGenerateInvoiceRejectsPausedSubscription() {
	sub, err := s.GetStores().SubRepo.Get(s.GetContext(), s.testData.sub.ID)
	s.NoError(err)
	sub.SubscriptionStatus = types.SubscriptionStatusPaused
	s.NoError(s.GetStores().SubRepo.Update(s.GetContext(), sub))

	_, err = s.service.GenerateInvoice(s.GetContext(), sub.ID)
	s.Error(err)
	s.True(ierr.IsInvalidOperation(err))
}

func (s *InvoiceServiceSuite) TestGenerateDueInvoices() {
	generated, err := s.service.GenerateDueInvoices(s.GetContext(), 100)
	s.NoError(err)
	s.Equal(1, generated)

	// Nothing due on the second pass: the billing clock moved on
	generated, err = s.service.GenerateDueInvoices(s.GetContext(), 100)
	s.NoError(err)
	s.Equal(0, generated)
}

func (s *InvoiceServiceSuite) TestHandleOverdueInvoices() {
	resp, err := s.service.GenerateInvoice(s.GetContext(), s.testData.sub.ID)
	s.NoError(err)

	// Push the due date into the past
	inv, err := s.GetStores().InvoiceRepo.Get(s.GetContext(), resp.ID)
	s.NoError(err)
	inv.DueDate = s.GetNow().Add(-24 * time.Hour)
	affected, err := s.GetStores().InvoiceRepo.UpdateWithGuard(s.GetContext(), inv, types.InvoiceStatusPending)
	s.NoError(err)
	s.Equal(1, affected)

	flipped, err := s.service.HandleOverdueInvoices(s.GetContext(), 100)
	s.NoError(err)
	s.Equal(1, flipped)

	inv, err = s.GetStores().InvoiceRepo.Get(s.GetContext(), resp.ID)
	s.NoError(err)
	s.Equal(types.InvoiceStatusOverdue, inv.InvoiceStatus)

	// The subscription stops accruing new invoices until it settles up
	sub, err := s.GetStores().SubRepo.Get(s.GetContext(), s.testData.sub.ID)
	s.NoError(err)
	s.Equal(types.SubscriptionStatusPendingPayment, sub.SubscriptionStatus)

	// Idempotent second pass
	flipped, err = s.service.HandleOverdueInvoices(s.GetContext(), 100)
	s.NoError(err)
	s.Equal(0, flipped)
}
