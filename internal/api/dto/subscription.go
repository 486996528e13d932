package dto

import (
	"github.com/billforge/billforge/internal/domain/subscription"
	"github.com/billforge/billforge/internal/validator"
)

// CreateSubscriptionRequest subscribes the tenant in context to a plan
type CreateSubscriptionRequest struct {
	PlanID     string `json:"plan_id" validate:"required"`
	StartTrial bool   `json:"start_trial"`
	AutoRenew  bool   `json:"auto_renew"`
	// NotifyTarget is where the confirmation notification is sent
	NotifyTarget string `json:"notify_target,omitempty"`
}

// Validate validates the request
func (r *CreateSubscriptionRequest) Validate() error {
	return validator.ValidateRequest(r)
}

// UpgradeSubscriptionRequest moves a subscription to a more expensive plan
type UpgradeSubscriptionRequest struct {
	NewPlanID string `json:"new_plan_id" validate:"required"`
}

// Validate validates the request
func (r *UpgradeSubscriptionRequest) Validate() error {
	return validator.ValidateRequest(r)
}

// SubscriptionResponse represents a subscription in API responses
type SubscriptionResponse struct {
	*subscription.Subscription
}

// NewSubscriptionResponse creates a response from a domain subscription
func NewSubscriptionResponse(sub *subscription.Subscription) *SubscriptionResponse {
	return &SubscriptionResponse{Subscription: sub}
}
