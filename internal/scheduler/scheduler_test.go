package scheduler

import (
	"testing"

	"github.com/billforge/billforge/internal/config"
	"github.com/billforge/billforge/internal/logger"
	"github.com/billforge/billforge/internal/publisher"
	"github.com/billforge/billforge/internal/pubsub/memory"
	"github.com/billforge/billforge/internal/service"
	"github.com/billforge/billforge/internal/testutil"
	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestScheduler(t *testing.T) *Scheduler {
	cfg := config.GetDefaultConfig()
	log, err := logger.NewLogger(cfg)
	require.NoError(t, err)

	ps := memory.NewPubSub(log)
	stores := testutil.NewStores()

	return New(service.ServiceParams{
		Logger:             log,
		Config:             cfg,
		PlanRepo:           stores.PlanRepo,
		SubRepo:            stores.SubRepo,
		InvoiceRepo:        stores.InvoiceRepo,
		UsageRepo:          stores.UsageRepo,
		PaymentRepo:        stores.PaymentRepo,
		RefundRepo:         stores.RefundRepo,
		OutboxRepo:         stores.OutboxRepo,
		PubSub:             ps,
		EventPublisher:     publisher.NewEventPublisher(ps, log),
		NotificationClient: nil,
		Gateway:            testutil.NewMockGateway(),
	})
}

func TestSchedulerStartStop(t *testing.T) {
	s := newTestScheduler(t)

	require.NoError(t, s.Start())
	s.Stop()
}

func TestDefaultSchedulesParse(t *testing.T) {
	cfg := config.GetDefaultConfig()
	specs := map[string]string{
		"invoice_generation": cfg.Scheduler.InvoiceSchedule,
		"trial_expiry":       cfg.Scheduler.TrialExpirySchedule,
		"outbox_relay":       cfg.Scheduler.OutboxRelaySchedule,
		"payment_posting":    cfg.Scheduler.PaymentPostingSchedule,
		"overdue_handling":   cfg.Scheduler.OverdueSchedule,
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	for name, spec := range specs {
		_, err := parser.Parse(spec)
		assert.NoError(t, err, "schedule %s must be a valid cron spec", name)
	}
}
