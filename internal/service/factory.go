package service

import (
	"context"

	"github.com/billforge/billforge/internal/config"
	"github.com/billforge/billforge/internal/domain/events"
	"github.com/billforge/billforge/internal/domain/invoice"
	"github.com/billforge/billforge/internal/domain/outbox"
	"github.com/billforge/billforge/internal/domain/payment"
	"github.com/billforge/billforge/internal/domain/plan"
	"github.com/billforge/billforge/internal/domain/refund"
	"github.com/billforge/billforge/internal/domain/subscription"
	"github.com/billforge/billforge/internal/domain/usage"
	"github.com/billforge/billforge/internal/gateway"
	"github.com/billforge/billforge/internal/logger"
	"github.com/billforge/billforge/internal/notification"
	"github.com/billforge/billforge/internal/publisher"
	"github.com/billforge/billforge/internal/pubsub"
)

// ServiceParams holds common dependencies for services
type ServiceParams struct {
	Logger *logger.Logger
	Config *config.Configuration

	// Repositories
	PlanRepo    plan.Repository
	SubRepo     subscription.Repository
	InvoiceRepo invoice.Repository
	UsageRepo   usage.Repository
	PaymentRepo payment.Repository
	RefundRepo  refund.Repository
	OutboxRepo  outbox.Repository

	// Collaborators
	PubSub             pubsub.Publisher
	EventPublisher     publisher.EventPublisher
	NotificationClient notification.Client
	Gateway            gateway.PaymentGatewayService
}

// publishEvent emits a best-effort in-process domain event. Failures are
// logged and swallowed; the durable path is the outbox, not the bus.
func publishEvent(ctx context.Context, params ServiceParams, eventName string, payload any) {
	if params.EventPublisher == nil {
		return
	}
	event, err := events.New(ctx, eventName, payload)
	if err != nil {
		params.Logger.Errorw("failed to build domain event",
			"error", err,
			"event_name", eventName,
		)
		return
	}
	if err := params.EventPublisher.Publish(ctx, event); err != nil {
		params.Logger.Errorw("failed to publish domain event",
			"error", err,
			"event_name", eventName,
		)
	}
}
