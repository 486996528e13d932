package service

import (
	"testing"
	"time"

	"github.com/billforge/billforge/internal/domain/plan"
	"github.com/billforge/billforge/internal/domain/usage"
	"github.com/billforge/billforge/internal/testutil"
	"github.com/billforge/billforge/internal/types"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
)

type PricingServiceSuite struct {
	testutil.BaseServiceTestSuite
	service  PricingService
	testData struct {
		plan        *plan.Plan
		periodStart time.Time
		periodEnd   time.Time
	}
}

func TestPricingService(t *testing.T) {
	suite.Run(t, new(PricingServiceSuite))
}

func (s *PricingServiceSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	s.setupService()
	s.setupTestData()
}

func (s *PricingServiceSuite) setupService() {
	s.service = NewPricingService(ServiceParams{
		Logger:      s.GetLogger(),
		Config:      s.GetConfig(),
		PlanRepo:    s.GetStores().PlanRepo,
		SubRepo:     s.GetStores().SubRepo,
		InvoiceRepo: s.GetStores().InvoiceRepo,
		UsageRepo:   s.GetStores().UsageRepo,
	})
}

func (s *PricingServiceSuite) setupTestData() {
	s.testData.periodStart = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s.testData.periodEnd = time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)

	s.testData.plan = &plan.Plan{
		ID:               "plan_pricing_test",
		Name:             "Pro",
		BasePrice:        decimal.NewFromInt(100),
		Currency:         "usd",
		BillingCycleDays: 31,
		UsagePricing: map[string]decimal.Decimal{
			"api_calls": decimal.NewFromFloat(0.01),
		},
		Features: map[string]string{
			"api_calls_limit": "10000",
			"storage_limit":   "not-a-number",
		},
		BaseModel: types.GetDefaultBaseModel(s.GetContext()),
	}
	s.NoError(s.GetStores().PlanRepo.Create(s.GetContext(), s.testData.plan))
}

func (s *PricingServiceSuite) recordUsage(subscriptionID, metricType string, quantity float64, at time.Time) {
	record := &usage.Record{
		ID:             types.GenerateUUIDWithPrefix(types.UUID_PREFIX_USAGE_RECORD),
		SubscriptionID: lo.ToPtr(subscriptionID),
		MetricType:     metricType,
		Quantity:       decimal.NewFromFloat(quantity),
		RecordedAt:     at,
		BaseModel:      types.GetDefaultBaseModel(s.GetContext()),
	}
	s.NoError(s.GetStores().UsageRepo.Create(s.GetContext(), record))
}

func (s *PricingServiceSuite) TestCalculateUsageAmountFlatPrice() {
	// 500 api calls at 0.01 each
	s.recordUsage("subs_1", "api_calls", 200, s.testData.periodStart.Add(time.Hour))
	s.recordUsage("subs_1", "api_calls", 300, s.testData.periodStart.Add(2*time.Hour))

	total, breakdown, err := s.service.CalculateUsageAmount(s.GetContext(), "subs_1", s.testData.plan, s.testData.periodStart, s.testData.periodEnd)
	s.NoError(err)
	s.True(total.Equal(decimal.NewFromFloat(5.00)), "got %s", total)
	s.True(breakdown["api_calls"].Equal(decimal.NewFromFloat(5.00)))
}

func (s *PricingServiceSuite) TestCalculateUsageAmountZeroUsage() {
	total, breakdown, err := s.service.CalculateUsageAmount(s.GetContext(), "subs_1", s.testData.plan, s.testData.periodStart, s.testData.periodEnd)
	s.NoError(err)
	s.True(total.IsZero())
	s.True(breakdown["api_calls"].IsZero())
}

func (s *PricingServiceSuite) TestCalculateUsageAmountIgnoresOtherPeriods() {
	s.recordUsage("subs_1", "api_calls", 1000, s.testData.periodStart.Add(-time.Hour))
	s.recordUsage("subs_1", "api_calls", 1000, s.testData.periodEnd)

	total, _, err := s.service.CalculateUsageAmount(s.GetContext(), "subs_1", s.testData.plan, s.testData.periodStart, s.testData.periodEnd)
	s.NoError(err)
	s.True(total.IsZero(), "usage outside [start, end) must not be billed, got %s", total)
}

func (s *PricingServiceSuite) TestCalculateUsageAmountIgnoresOtherSubscriptions() {
	s.recordUsage("subs_other", "api_calls", 1000, s.testData.periodStart.Add(time.Hour))

	total, _, err := s.service.CalculateUsageAmount(s.GetContext(), "subs_1", s.testData.plan, s.testData.periodStart, s.testData.periodEnd)
	s.NoError(err)
	s.True(total.IsZero())
}

func (s *PricingServiceSuite) TestCalculateTieredPricing() {
	tiers := plan.TierMap{
		"0-1000": decimal.NewFromFloat(0.01),
		"1000-":  decimal.NewFromFloat(0.005),
	}

	// Fully inside the first tier
	amount, err := s.service.CalculateTieredPricing(decimal.NewFromInt(500), tiers)
	s.NoError(err)
	s.True(amount.Equal(decimal.NewFromFloat(5.00)), "got %s", amount)

	// Exactly at the boundary stays in the lower tier
	amount, err = s.service.CalculateTieredPricing(decimal.NewFromInt(1000), tiers)
	s.NoError(err)
	s.True(amount.Equal(decimal.NewFromFloat(10.00)), "got %s", amount)

	// Spills into the unbounded tier
	amount, err = s.service.CalculateTieredPricing(decimal.NewFromInt(1500), tiers)
	s.NoError(err)
	s.True(amount.Equal(decimal.NewFromFloat(12.50)), "got %s", amount)
}

func (s *PricingServiceSuite) TestCalculateTieredPricingMonotonic() {
	tiers := plan.TierMap{
		"0-100":   decimal.NewFromFloat(0.10),
		"100-500": decimal.NewFromFloat(0.05),
		"500-":    decimal.NewFromFloat(0.01),
	}

	previous := decimal.Zero
	for _, quantity := range []int64{0, 50, 100, 250, 500, 1000, 10000} {
		amount, err := s.service.CalculateTieredPricing(decimal.NewFromInt(quantity), tiers)
		s.NoError(err)
		s.True(amount.GreaterThanOrEqual(previous),
			"price must not decrease with quantity: %d units -> %s after %s", quantity, amount, previous)
		previous = amount
	}
}

func (s *PricingServiceSuite) TestCalculateTieredPricingZeroQuantity() {
	amount, err := s.service.CalculateTieredPricing(decimal.Zero, plan.TierMap{"0-": decimal.NewFromFloat(0.01)})
	s.NoError(err)
	s.True(amount.IsZero())
}

func (s *PricingServiceSuite) TestCalculateTieredPricingMalformedTier() {
	_, err := s.service.CalculateTieredPricing(decimal.NewFromInt(10), plan.TierMap{"banana": decimal.NewFromFloat(0.01)})
	s.Error(err)

	_, err = s.service.CalculateTieredPricing(decimal.NewFromInt(10), plan.TierMap{"100-50": decimal.NewFromFloat(0.01)})
	s.Error(err)
}

func (s *PricingServiceSuite) TestCheckLimit() {
	p := s.testData.plan

	s.True(s.service.CheckLimit(s.GetContext(), p, "api_calls", decimal.NewFromInt(10000)))
	s.False(s.service.CheckLimit(s.GetContext(), p, "api_calls", decimal.NewFromInt(10001)))

	// No limit configured means unlimited
	s.True(s.service.CheckLimit(s.GetContext(), p, "bandwidth", decimal.NewFromInt(1<<40)))

	// Malformed limit means unlimited
	s.True(s.service.CheckLimit(s.GetContext(), p, "storage", decimal.NewFromInt(1<<40)))
}

func (s *PricingServiceSuite) TestComputeTotals() {
	breakdown := s.service.ComputeTotals(
		decimal.NewFromInt(100), decimal.Zero,
		decimal.Zero, decimal.NewFromInt(10),
	)
	s.True(breakdown.DiscountAmount.IsZero())
	s.True(breakdown.TaxAmount.Equal(decimal.NewFromInt(10)))
	s.True(breakdown.TotalAmount.Equal(decimal.NewFromInt(110)), "got %s", breakdown.TotalAmount)
}

func (s *PricingServiceSuite) TestComputeTotalsWithDiscount() {
	// discount applies to base+usage, tax applies after discount
	breakdown := s.service.ComputeTotals(
		decimal.NewFromInt(100), decimal.NewFromInt(20),
		decimal.NewFromInt(5), decimal.NewFromInt(10),
	)
	s.True(breakdown.DiscountAmount.Equal(decimal.NewFromInt(6)), "got %s", breakdown.DiscountAmount)
	s.True(breakdown.TaxAmount.Equal(decimal.NewFromFloat(11.40)), "got %s", breakdown.TaxAmount)
	s.True(breakdown.TotalAmount.Equal(decimal.NewFromFloat(125.40)), "got %s", breakdown.TotalAmount)

	// total identity holds
	expected := breakdown.BaseAmount.Add(breakdown.UsageAmount).
		Sub(breakdown.DiscountAmount).Add(breakdown.TaxAmount)
	s.True(breakdown.TotalAmount.Equal(expected))
}
