package plan

import (
	ierr "github.com/billforge/billforge/internal/errors"
	"github.com/billforge/billforge/internal/types"
	"github.com/shopspring/decimal"
)

// TierMap describes usage-tiered pricing for one metric. Keys are consumption
// brackets of the form "start-end" ("end" omitted means unbounded, e.g.
// "1001-"), values are the per-unit price within the bracket. A quantity
// exactly at a bracket boundary belongs to the lower bracket.
type TierMap map[string]decimal.Decimal

// Plan is immutable reference data describing how a subscription is billed.
// The engine only ever reads plans; invoices freeze the relevant pricing
// parameters into a snapshot at generation time.
type Plan struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	// BasePrice is the fixed charge per billing cycle
	BasePrice decimal.Decimal `json:"base_price"`
	Currency  string          `json:"currency"`
	// BillingCycleDays is the length of one billing period in days
	BillingCycleDays int `json:"billing_cycle_days"`
	// TrialDays is the free-trial length; 0 or negative means no trial
	TrialDays int `json:"trial_days"`
	// UsagePricing maps a metric type to its flat per-unit price
	UsagePricing map[string]decimal.Decimal `json:"usage_pricing,omitempty"`
	// UsageTiers maps a metric type to tiered pricing; when present for a
	// metric it takes precedence over the flat unit price
	UsageTiers map[string]TierMap `json:"usage_tiers,omitempty"`
	// Features holds feature flags and "<metric>_limit" entries
	Features map[string]string `json:"features,omitempty"`

	types.BaseModel
}

// HasTrial returns true if the plan grants a trial period
func (p *Plan) HasTrial() bool {
	return p.TrialDays > 0
}

// Validate validates the plan
func (p *Plan) Validate() error {
	if p.Name == "" {
		return ierr.NewError("plan name is required").
			WithHint("Plan name cannot be empty").
			Mark(ierr.ErrValidation)
	}
	if p.BasePrice.IsNegative() {
		return ierr.NewError("invalid base price").
			WithHint("Base price must be non negative").
			Mark(ierr.ErrValidation)
	}
	if p.BillingCycleDays <= 0 {
		return ierr.NewError("invalid billing cycle").
			WithHint("Billing cycle must be at least one day").
			Mark(ierr.ErrValidation)
	}
	if p.Currency == "" {
		return ierr.NewError("invalid currency").
			WithHint("Currency is required").
			Mark(ierr.ErrValidation)
	}
	for metric, price := range p.UsagePricing {
		if price.IsNegative() {
			return ierr.NewError("invalid usage price").
				WithHintf("Usage price for metric %s must be non negative", metric).
				Mark(ierr.ErrValidation)
		}
	}
	return nil
}
