package service

import (
	"context"
	"time"

	"github.com/billforge/billforge/internal/api/dto"
	"github.com/billforge/billforge/internal/domain/subscription"
	ierr "github.com/billforge/billforge/internal/errors"
	"github.com/billforge/billforge/internal/types"
)

// SubscriptionService owns the subscription lifecycle state machine
type SubscriptionService interface {
	CreateSubscription(ctx context.Context, req dto.CreateSubscriptionRequest) (*dto.SubscriptionResponse, error)
	GetSubscription(ctx context.Context, id string) (*dto.SubscriptionResponse, error)
	PauseSubscription(ctx context.Context, id string, reason string) (*dto.SubscriptionResponse, error)
	ResumeSubscription(ctx context.Context, id string) (*dto.SubscriptionResponse, error)
	CancelSubscription(ctx context.Context, id string, reason string) (*dto.SubscriptionResponse, error)
	UpgradeSubscription(ctx context.Context, id string, req dto.UpgradeSubscriptionRequest) (*dto.SubscriptionResponse, error)

	// ProcessTrialExpiry moves expired trials to pending_payment and
	// triggers their first real invoice. Re-running on an already
	// transitioned subscription is a no-op. Returns processed count.
	ProcessTrialExpiry(ctx context.Context, limit int) (int, error)
}

type subscriptionService struct {
	ServiceParams
}

// NewSubscriptionService creates a new subscription service
func NewSubscriptionService(params ServiceParams) SubscriptionService {
	return &subscriptionService{ServiceParams: params}
}

func (s *subscriptionService) CreateSubscription(ctx context.Context, req dto.CreateSubscriptionRequest) (*dto.SubscriptionResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	p, err := s.PlanRepo.Get(ctx, req.PlanID)
	if err != nil {
		return nil, err
	}

	// A tenant holds at most one non-terminal subscription at a time
	if existing, err := s.SubRepo.GetNonTerminalByTenant(ctx); err == nil {
		return nil, ierr.NewError("tenant already has a subscription").
			WithHint("Cancel the current subscription before creating a new one").
			WithReportableDetails(map[string]any{
				"subscription_id": existing.ID,
			}).
			Mark(ierr.ErrAlreadyExists)
	} else if !ierr.IsNotFound(err) {
		return nil, err
	}

	now := time.Now().UTC()
	sub := &subscription.Subscription{
		ID:        types.GenerateUUIDWithPrefix(types.UUID_PREFIX_SUBSCRIPTION),
		PlanID:    p.ID,
		Currency:  p.Currency,
		AutoRenew: req.AutoRenew,
		BaseModel: types.GetDefaultBaseModel(ctx),
	}

	if req.StartTrial && p.HasTrial() {
		trialEnd := now.AddDate(0, 0, p.TrialDays)
		sub.SubscriptionStatus = types.SubscriptionStatusTrialing
		sub.InTrial = true
		sub.TrialEndTime = types.ToNillableTime(trialEnd)
		sub.NextBillingTime = trialEnd
	} else {
		sub.SubscriptionStatus = types.SubscriptionStatusActive
		sub.NextBillingTime = now.AddDate(0, 0, p.BillingCycleDays)
		sub.CurrentPeriodAmount = p.BasePrice
	}

	if err := sub.Validate(); err != nil {
		return nil, err
	}
	if err := s.SubRepo.Create(ctx, sub); err != nil {
		return nil, err
	}

	outboxService := NewOutboxService(s.ServiceParams)
	if err := outboxService.SaveEvent(ctx, types.EventSubscriptionCreated, sub.ID, sub); err != nil {
		return nil, err
	}

	s.notify(ctx, req.NotifyTarget, types.TemplateSubscriptionConfirmed, map[string]string{
		"subscription_id": sub.ID,
		"plan_name":       p.Name,
	})

	s.Logger.Infow("created subscription",
		"subscription_id", sub.ID,
		"plan_id", p.ID,
		"status", sub.SubscriptionStatus,
		"next_billing_time", sub.NextBillingTime,
	)

	return dto.NewSubscriptionResponse(sub), nil
}

func (s *subscriptionService) GetSubscription(ctx context.Context, id string) (*dto.SubscriptionResponse, error) {
	sub, err := s.SubRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return dto.NewSubscriptionResponse(sub), nil
}

func (s *subscriptionService) PauseSubscription(ctx context.Context, id string, reason string) (*dto.SubscriptionResponse, error) {
	sub, err := s.SubRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	previous := sub.SubscriptionStatus
	if !previous.CanTransitionTo(types.SubscriptionStatusPaused) {
		return nil, ierr.NewError("subscription cannot be paused").
			WithHintf("A %s subscription cannot be paused", previous).
			Mark(ierr.ErrInvalidOperation)
	}

	sub.SubscriptionStatus = types.SubscriptionStatusPaused
	sub.PausedAt = types.ToNillableTime(time.Now().UTC())
	sub.PauseReason = reason

	if err := s.guardedUpdate(ctx, sub, previous); err != nil {
		return nil, err
	}

	outboxService := NewOutboxService(s.ServiceParams)
	if err := outboxService.SaveEvent(ctx, types.EventSubscriptionPaused, sub.ID, sub); err != nil {
		return nil, err
	}

	return dto.NewSubscriptionResponse(sub), nil
}

func (s *subscriptionService) ResumeSubscription(ctx context.Context, id string) (*dto.SubscriptionResponse, error) {
	sub, err := s.SubRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	previous := sub.SubscriptionStatus
	if previous != types.SubscriptionStatusPaused {
		return nil, ierr.NewError("subscription is not paused").
			WithHintf("A %s subscription cannot be resumed", previous).
			Mark(ierr.ErrInvalidOperation)
	}

	sub.SubscriptionStatus = types.SubscriptionStatusActive
	sub.PausedAt = nil
	sub.PauseReason = ""

	if err := s.guardedUpdate(ctx, sub, previous); err != nil {
		return nil, err
	}

	outboxService := NewOutboxService(s.ServiceParams)
	if err := outboxService.SaveEvent(ctx, types.EventSubscriptionResumed, sub.ID, sub); err != nil {
		return nil, err
	}

	return dto.NewSubscriptionResponse(sub), nil
}

func (s *subscriptionService) CancelSubscription(ctx context.Context, id string, reason string) (*dto.SubscriptionResponse, error) {
	sub, err := s.SubRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	previous := sub.SubscriptionStatus
	if !previous.CanTransitionTo(types.SubscriptionStatusCancelled) {
		return nil, ierr.NewError("subscription is already cancelled").
			WithHint("Cancellation is terminal").
			Mark(ierr.ErrInvalidOperation)
	}

	now := time.Now().UTC()
	sub.SubscriptionStatus = types.SubscriptionStatusCancelled
	sub.CancelledAt = types.ToNillableTime(now)
	sub.CancelReason = reason
	sub.EndTime = types.ToNillableTime(now)

	if err := s.guardedUpdate(ctx, sub, previous); err != nil {
		return nil, err
	}

	outboxService := NewOutboxService(s.ServiceParams)
	if err := outboxService.SaveEvent(ctx, types.EventSubscriptionCancelled, sub.ID, sub); err != nil {
		return nil, err
	}

	s.Logger.Infow("cancelled subscription",
		"subscription_id", sub.ID,
		"reason", reason,
	)

	return dto.NewSubscriptionResponse(sub), nil
}

func (s *subscriptionService) UpgradeSubscription(ctx context.Context, id string, req dto.UpgradeSubscriptionRequest) (*dto.SubscriptionResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	sub, err := s.SubRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	previous := sub.SubscriptionStatus
	if previous.IsTerminal() {
		return nil, ierr.NewError("subscription is cancelled").
			WithHint("A cancelled subscription cannot be upgraded").
			Mark(ierr.ErrInvalidOperation)
	}

	currentPlan, err := s.PlanRepo.Get(ctx, sub.PlanID)
	if err != nil {
		return nil, err
	}
	newPlan, err := s.PlanRepo.Get(ctx, req.NewPlanID)
	if err != nil {
		return nil, err
	}

	if !newPlan.BasePrice.GreaterThan(currentPlan.BasePrice) {
		return nil, ierr.NewError("upgrade requires a more expensive plan").
			WithHint("The new plan's base price must exceed the current plan's").
			WithReportableDetails(map[string]any{
				"current_base_price": currentPlan.BasePrice.String(),
				"new_base_price":     newPlan.BasePrice.String(),
			}).
			Mark(ierr.ErrValidation)
	}

	sub.PlanID = newPlan.ID
	sub.CurrentPeriodAmount = newPlan.BasePrice
	sub.Currency = newPlan.Currency

	if err := s.guardedUpdate(ctx, sub, previous); err != nil {
		return nil, err
	}

	outboxService := NewOutboxService(s.ServiceParams)
	if err := outboxService.SaveEvent(ctx, types.EventSubscriptionUpgraded, sub.ID, sub); err != nil {
		return nil, err
	}

	return dto.NewSubscriptionResponse(sub), nil
}

func (s *subscriptionService) ProcessTrialExpiry(ctx context.Context, limit int) (int, error) {
	now := time.Now().UTC()
	expired, err := s.SubRepo.ListExpiredTrials(ctx, now, limit)
	if err != nil {
		return 0, err
	}

	invoiceService := NewInvoiceService(s.ServiceParams)
	outboxService := NewOutboxService(s.ServiceParams)

	processed := 0
	for _, sub := range expired {
		// Re-check the state: the listing may race another scheduler
		if sub.SubscriptionStatus != types.SubscriptionStatusTrialing {
			continue
		}

		sub.SubscriptionStatus = types.SubscriptionStatusPendingPayment
		sub.InTrial = false
		sub.TrialConverted = true

		affected, err := s.SubRepo.UpdateWithGuard(ctx, sub, types.SubscriptionStatusTrialing)
		if err != nil {
			s.Logger.Errorw("failed to expire trial",
				"error", err,
				"subscription_id", sub.ID,
			)
			continue
		}
		if affected == 0 {
			// Another pass already transitioned this subscription
			s.Logger.Debugw("trial already expired by concurrent pass",
				"subscription_id", sub.ID,
			)
			continue
		}

		// First real invoice for the subscription; a failure here is
		// isolated and the next billing pass will retry it
		if _, err := invoiceService.GenerateInvoice(ctx, sub.ID); err != nil {
			s.Logger.Errorw("failed to generate first invoice after trial",
				"error", err,
				"subscription_id", sub.ID,
			)
		}

		if err := outboxService.SaveEvent(ctx, types.EventSubscriptionTrialExpired, sub.ID, sub); err != nil {
			s.Logger.Errorw("failed to save trial expiry event",
				"error", err,
				"subscription_id", sub.ID,
			)
		}

		s.notify(ctx, sub.TenantID, types.TemplateTrialExpired, map[string]string{
			"subscription_id": sub.ID,
		})

		processed++
	}

	return processed, nil
}

// guardedUpdate performs a state-guarded update and surfaces a lost race as
// a version conflict to the synchronous caller
func (s *subscriptionService) guardedUpdate(ctx context.Context, sub *subscription.Subscription, expected types.SubscriptionStatus) error {
	affected, err := s.SubRepo.UpdateWithGuard(ctx, sub, expected)
	if err != nil {
		return err
	}
	if affected == 0 {
		return ierr.NewError("subscription was modified concurrently").
			WithHint("Please retry the operation").
			Mark(ierr.ErrVersionConflict)
	}
	return nil
}

// notify sends a fire-and-forget notification; failures are logged only
func (s *subscriptionService) notify(ctx context.Context, target, templateCode string, variables map[string]string) {
	if target == "" || s.NotificationClient == nil {
		return
	}
	if err := s.NotificationClient.Send(ctx, target, types.NotificationChannelEmail, templateCode, variables); err != nil {
		s.Logger.Warnw("notification send failed",
			"error", err,
			"target", target,
			"template_code", templateCode,
		)
	}
}
