package main

import (
	"context"
	"time"

	"github.com/billforge/billforge/internal/config"
	"github.com/billforge/billforge/internal/gateway"
	"github.com/billforge/billforge/internal/httpclient"
	"github.com/billforge/billforge/internal/logger"
	"github.com/billforge/billforge/internal/notification"
	"github.com/billforge/billforge/internal/publisher"
	"github.com/billforge/billforge/internal/pubsub"
	"github.com/billforge/billforge/internal/pubsub/memory"
	"github.com/billforge/billforge/internal/scheduler"
	"github.com/billforge/billforge/internal/service"
	"github.com/billforge/billforge/internal/testutil"
	"github.com/billforge/billforge/internal/validator"
	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

func init() {
	// Set UTC timezone for the entire application
	time.Local = time.UTC

	// Load .env if present; environment variables win
	_ = godotenv.Load()
}

func main() {
	app := fx.New(
		fx.Provide(
			validator.NewValidator,
			config.NewConfig,
			logger.NewLogger,

			providePubSub,
			publisher.NewEventPublisher,
			provideNotificationClient,
			provideHTTPClient,
			gateway.NewHTTPGateway,

			provideServiceParams,
			scheduler.New,
		),
		fx.Invoke(startScheduler),
	)
	app.Run()
}

func providePubSub(log *logger.Logger) pubsub.PubSub {
	return memory.NewPubSub(log)
}

func provideNotificationClient(log *logger.Logger) notification.Client {
	return notification.NewClient(notification.NewLogSender(log), log)
}

func provideHTTPClient(cfg *config.Configuration) httpclient.Client {
	return httpclient.NewDefaultClient(cfg.Gateway.Timeout, cfg.Gateway.RetryMax)
}

// provideServiceParams wires the engine against in-process stores. Durable
// persistence is an external collaborator; the scheduler binary runs the
// full engine in local mode.
func provideServiceParams(
	cfg *config.Configuration,
	log *logger.Logger,
	ps pubsub.PubSub,
	eventPublisher publisher.EventPublisher,
	notificationClient notification.Client,
	paymentGateway gateway.PaymentGatewayService,
) service.ServiceParams {
	return service.ServiceParams{
		Logger: log,
		Config: cfg,

		PlanRepo:    testutil.NewInMemoryPlanStore(),
		SubRepo:     testutil.NewInMemorySubscriptionStore(),
		InvoiceRepo: testutil.NewInMemoryInvoiceStore(),
		UsageRepo:   testutil.NewInMemoryUsageStore(),
		PaymentRepo: testutil.NewInMemoryPaymentStore(),
		RefundRepo:  testutil.NewInMemoryRefundStore(),
		OutboxRepo:  testutil.NewInMemoryOutboxStore(),

		PubSub:             ps,
		EventPublisher:     eventPublisher,
		NotificationClient: notificationClient,
		Gateway:            paymentGateway,
	}
}

func startScheduler(lc fx.Lifecycle, s *scheduler.Scheduler, ps pubsub.PubSub, log *logger.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Infow("starting billing scheduler")
			return s.Start()
		},
		OnStop: func(ctx context.Context) error {
			log.Infow("stopping billing scheduler")
			s.Stop()
			return ps.Close()
		},
	})
}
