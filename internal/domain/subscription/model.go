package subscription

import (
	"time"

	ierr "github.com/billforge/billforge/internal/errors"
	"github.com/billforge/billforge/internal/types"
	"github.com/shopspring/decimal"
)

// Subscription represents a tenant's subscription to a plan. Subscriptions
// are never physically deleted; cancellation is a terminal business status.
type Subscription struct {
	ID     string `json:"id"`
	PlanID string `json:"plan_id"`
	// SubscriptionStatus is the business lifecycle state
	SubscriptionStatus types.SubscriptionStatus `json:"subscription_status"`
	// InTrial is true while the subscription is in its free-trial phase.
	// Invariant: status == trialing implies InTrial == true.
	InTrial      bool       `json:"in_trial"`
	TrialEndTime *time.Time `json:"trial_end_time,omitempty"`
	// NextBillingTime advances by exactly one billing cycle on each
	// successful invoice generation, never before.
	NextBillingTime     time.Time       `json:"next_billing_time"`
	CurrentPeriodAmount decimal.Decimal `json:"current_period_amount"`
	Currency            string          `json:"currency"`
	AutoRenew           bool            `json:"auto_renew"`
	// TrialConverted is set when the subscription leaves its trial; the
	// first post-trial invoice applies the trial-conversion discount.
	TrialConverted bool       `json:"trial_converted"`
	PausedAt       *time.Time `json:"paused_at,omitempty"`
	PauseReason    string     `json:"pause_reason,omitempty"`
	CancelledAt    *time.Time `json:"cancelled_at,omitempty"`
	CancelReason   string     `json:"cancel_reason,omitempty"`
	EndTime        *time.Time `json:"end_time,omitempty"`

	types.BaseModel
}

// Validate validates the subscription
func (s *Subscription) Validate() error {
	if s.PlanID == "" {
		return ierr.NewError("plan id is required").
			WithHint("Plan id cannot be empty").
			Mark(ierr.ErrValidation)
	}
	if err := s.SubscriptionStatus.Validate(); err != nil {
		return err
	}
	if s.SubscriptionStatus == types.SubscriptionStatusTrialing && !s.InTrial {
		return ierr.NewError("trialing subscription must be in trial").
			WithHint("Subscription state is inconsistent").
			Mark(ierr.ErrValidation)
	}
	if s.CurrentPeriodAmount.IsNegative() {
		return ierr.NewError("invalid current period amount").
			WithHint("Current period amount must be non negative").
			Mark(ierr.ErrValidation)
	}
	return nil
}

// IsBillable returns true if the subscription should be picked up by the
// periodic invoice generation pass
func (s *Subscription) IsBillable() bool {
	switch s.SubscriptionStatus {
	case types.SubscriptionStatusActive, types.SubscriptionStatusTrialing:
		return true
	default:
		return false
	}
}

// TableName returns the table name for the subscription
func (s *Subscription) TableName() string {
	return "subscriptions"
}
