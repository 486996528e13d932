package types

import (
	"time"

	ierr "github.com/billforge/billforge/internal/errors"
	"github.com/samber/lo"
)

// SubscriptionStatus is the business status of a subscription
type SubscriptionStatus string

const (
	SubscriptionStatusTrialing       SubscriptionStatus = "trialing"
	SubscriptionStatusActive         SubscriptionStatus = "active"
	SubscriptionStatusPendingPayment SubscriptionStatus = "pending_payment"
	SubscriptionStatusPaused         SubscriptionStatus = "paused"
	SubscriptionStatusCancelled      SubscriptionStatus = "cancelled"
)

func (s SubscriptionStatus) String() string {
	return string(s)
}

// IsTerminal returns true for states a subscription can never leave
func (s SubscriptionStatus) IsTerminal() bool {
	return s == SubscriptionStatusCancelled
}

func (s SubscriptionStatus) Validate() error {
	allowed := []SubscriptionStatus{
		SubscriptionStatusTrialing,
		SubscriptionStatusActive,
		SubscriptionStatusPendingPayment,
		SubscriptionStatusPaused,
		SubscriptionStatusCancelled,
	}
	if !lo.Contains(allowed, s) {
		return ierr.NewError("invalid subscription status").
			WithHint("Invalid subscription status").
			WithReportableDetails(map[string]any{
				"status":         s,
				"allowed_status": allowed,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// CanTransitionTo reports whether the subscription state machine allows
// moving from s to target. Cancelled is reachable from every state and
// is irreversible.
func (s SubscriptionStatus) CanTransitionTo(target SubscriptionStatus) bool {
	if s.IsTerminal() {
		return false
	}
	if target == SubscriptionStatusCancelled {
		return true
	}

	transitions := map[SubscriptionStatus][]SubscriptionStatus{
		SubscriptionStatusTrialing:       {SubscriptionStatusActive, SubscriptionStatusPendingPayment},
		SubscriptionStatusActive:         {SubscriptionStatusPendingPayment, SubscriptionStatusPaused},
		SubscriptionStatusPendingPayment: {SubscriptionStatusActive},
		SubscriptionStatusPaused:         {SubscriptionStatusActive},
	}
	return lo.Contains(transitions[s], target)
}

// SubscriptionFilter represents the filter for listing subscriptions
type SubscriptionFilter struct {
	*QueryFilter
	*TimeRangeFilter

	SubscriptionIDs    []string            `form:"subscription_ids"`
	PlanID             *string             `form:"plan_id"`
	SubscriptionStatus *SubscriptionStatus `form:"subscription_status"`
	BillingDueBefore   *time.Time          `form:"billing_due_before"`
	TrialEndedBefore   *time.Time          `form:"trial_ended_before"`
}

// NewNoLimitSubscriptionFilter creates a new subscription filter with no limit
func NewNoLimitSubscriptionFilter() *SubscriptionFilter {
	return &SubscriptionFilter{
		QueryFilter: NewNoLimitQueryFilter(),
	}
}

// Validate validates the subscription filter
func (f *SubscriptionFilter) Validate() error {
	if f == nil {
		return nil
	}
	if f.QueryFilter != nil {
		if err := f.QueryFilter.Validate(); err != nil {
			return err
		}
	}
	if f.TimeRangeFilter != nil {
		if err := f.TimeRangeFilter.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// GetLimit implements BaseFilter interface
func (f *SubscriptionFilter) GetLimit() int {
	if f.QueryFilter == nil {
		return NewDefaultQueryFilter().GetLimit()
	}
	return f.QueryFilter.GetLimit()
}

// GetOffset implements BaseFilter interface
func (f *SubscriptionFilter) GetOffset() int {
	if f.QueryFilter == nil {
		return NewDefaultQueryFilter().GetOffset()
	}
	return f.QueryFilter.GetOffset()
}

// IsUnlimited returns true if the filter has no limit
func (f *SubscriptionFilter) IsUnlimited() bool {
	if f.QueryFilter == nil {
		return NewDefaultQueryFilter().IsUnlimited()
	}
	return f.QueryFilter.IsUnlimited()
}
