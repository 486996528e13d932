package service

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/billforge/billforge/internal/domain/plan"
	ierr "github.com/billforge/billforge/internal/errors"
	"github.com/shopspring/decimal"
)

// limitSuffix is the plan feature key suffix holding a metric's usage cap
const limitSuffix = "_limit"

// PriceBreakdown is the result of composing an invoice's amount components.
// The composition order is a contract: discount applies to base+usage, tax
// applies after discount.
type PriceBreakdown struct {
	BaseAmount     decimal.Decimal
	UsageAmount    decimal.Decimal
	DiscountAmount decimal.Decimal
	TaxAmount      decimal.Decimal
	TotalAmount    decimal.Decimal
}

// PricingService computes usage-based charges. It has no side effects beyond
// reading usage aggregates from the ledger.
type PricingService interface {
	// CalculateUsageAmount sums the subscription's priced usage for every
	// metric in the plan over [periodStart, periodEnd). Zero usage
	// contributes zero.
	CalculateUsageAmount(ctx context.Context, subscriptionID string, p *plan.Plan, periodStart, periodEnd time.Time) (decimal.Decimal, map[string]decimal.Decimal, error)

	// CalculateTieredPricing prices a quantity against a tier map, consuming
	// usage greedily tier by tier in ascending order
	CalculateTieredPricing(quantity decimal.Decimal, tiers plan.TierMap) (decimal.Decimal, error)

	// CheckLimit reports whether the current usage is within the plan's
	// limit for a metric. A missing or malformed limit means unlimited.
	CheckLimit(ctx context.Context, p *plan.Plan, metricType string, currentUsage decimal.Decimal) bool

	// ComputeTotals composes base and usage amounts with discount and tax
	// rates (percentages) into the final invoice amounts
	ComputeTotals(base, usageAmount, discountRatePercent, taxRatePercent decimal.Decimal) PriceBreakdown
}

type pricingService struct {
	ServiceParams
}

// NewPricingService creates a new pricing service
func NewPricingService(params ServiceParams) PricingService {
	return &pricingService{ServiceParams: params}
}

func (s *pricingService) CalculateUsageAmount(ctx context.Context, subscriptionID string, p *plan.Plan, periodStart, periodEnd time.Time) (decimal.Decimal, map[string]decimal.Decimal, error) {
	total := decimal.Zero
	breakdown := make(map[string]decimal.Decimal, len(p.UsagePricing))

	// Deterministic metric order keeps logs and rounding stable
	metrics := make([]string, 0, len(p.UsagePricing))
	for metric := range p.UsagePricing {
		metrics = append(metrics, metric)
	}
	sort.Strings(metrics)

	for _, metric := range metrics {
		quantity, err := s.UsageRepo.SumByMetric(ctx, subscriptionID, metric, periodStart, periodEnd)
		if err != nil {
			return decimal.Zero, nil, err
		}
		if quantity.IsZero() {
			breakdown[metric] = decimal.Zero
			continue
		}

		var amount decimal.Decimal
		if tiers, ok := p.UsageTiers[metric]; ok && len(tiers) > 0 {
			amount, err = s.CalculateTieredPricing(quantity, tiers)
			if err != nil {
				return decimal.Zero, nil, err
			}
		} else {
			amount = quantity.Mul(p.UsagePricing[metric]).Round(2)
		}

		breakdown[metric] = amount
		total = total.Add(amount)
	}

	return total.Round(2), breakdown, nil
}

// tier is one parsed consumption bracket
type tier struct {
	start decimal.Decimal
	end   *decimal.Decimal // nil means unbounded
	price decimal.Decimal
}

func (s *pricingService) CalculateTieredPricing(quantity decimal.Decimal, tiers plan.TierMap) (decimal.Decimal, error) {
	if quantity.IsNegative() {
		return decimal.Zero, ierr.NewError("quantity must be non negative").
			WithHint("Usage quantity cannot be negative").
			Mark(ierr.ErrValidation)
	}
	if quantity.IsZero() {
		return decimal.Zero, nil
	}

	parsed, err := parseTiers(tiers)
	if err != nil {
		return decimal.Zero, err
	}

	amount := decimal.Zero
	remaining := quantity
	for _, t := range parsed {
		if remaining.IsZero() {
			break
		}

		// Tier capacity; the last (unbounded) tier swallows the rest.
		// A quantity exactly at a tier's upper bound stays in that tier.
		take := remaining
		if t.end != nil {
			capacity := t.end.Sub(t.start)
			if take.GreaterThan(capacity) {
				take = capacity
			}
		}

		amount = amount.Add(take.Mul(t.price))
		remaining = remaining.Sub(take)
	}

	return amount.Round(2), nil
}

// parseTiers converts "start-end" keyed tiers into brackets sorted ascending
func parseTiers(tiers plan.TierMap) ([]tier, error) {
	parsed := make([]tier, 0, len(tiers))
	for key, price := range tiers {
		bounds := strings.SplitN(key, "-", 2)
		if len(bounds) != 2 {
			return nil, ierr.NewError("malformed pricing tier").
				WithHintf("Tier key %q is not of the form start-end", key).
				Mark(ierr.ErrValidation)
		}

		start, err := decimal.NewFromString(strings.TrimSpace(bounds[0]))
		if err != nil {
			return nil, ierr.WithError(err).
				WithHintf("Tier key %q has an invalid start bound", key).
				Mark(ierr.ErrValidation)
		}

		t := tier{start: start, price: price}
		if endRaw := strings.TrimSpace(bounds[1]); endRaw != "" {
			end, err := decimal.NewFromString(endRaw)
			if err != nil {
				return nil, ierr.WithError(err).
					WithHintf("Tier key %q has an invalid end bound", key).
					Mark(ierr.ErrValidation)
			}
			if end.LessThan(start) {
				return nil, ierr.NewError("malformed pricing tier").
					WithHintf("Tier key %q ends before it starts", key).
					Mark(ierr.ErrValidation)
			}
			t.end = &end
		}
		parsed = append(parsed, t)
	}

	sort.Slice(parsed, func(i, j int) bool {
		return parsed[i].start.LessThan(parsed[j].start)
	})
	return parsed, nil
}

func (s *pricingService) CheckLimit(ctx context.Context, p *plan.Plan, metricType string, currentUsage decimal.Decimal) bool {
	raw, ok := p.Features[metricType+limitSuffix]
	if !ok {
		return true
	}

	limit, err := decimal.NewFromString(raw)
	if err != nil {
		s.Logger.Warnw("malformed usage limit, treating as unlimited",
			"plan_id", p.ID,
			"metric_type", metricType,
			"limit", raw,
		)
		return true
	}

	return currentUsage.LessThanOrEqual(limit)
}

func (s *pricingService) ComputeTotals(base, usageAmount, discountRatePercent, taxRatePercent decimal.Decimal) PriceBreakdown {
	hundred := decimal.NewFromInt(100)
	gross := base.Add(usageAmount)

	discount := gross.Mul(discountRatePercent).Div(hundred).Round(2)
	taxable := gross.Sub(discount)
	tax := taxable.Mul(taxRatePercent).Div(hundred).Round(2)

	return PriceBreakdown{
		BaseAmount:     base,
		UsageAmount:    usageAmount,
		DiscountAmount: discount,
		TaxAmount:      tax,
		TotalAmount:    taxable.Add(tax).Round(2),
	}
}
