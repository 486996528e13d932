package scheduler

import (
	"context"

	"github.com/billforge/billforge/internal/config"
	"github.com/billforge/billforge/internal/logger"
	"github.com/billforge/billforge/internal/service"
	"github.com/billforge/billforge/internal/types"
	"github.com/robfig/cron/v3"
)

// Scheduler drives the periodic billing passes: invoice generation, trial
// expiry, outbox relay, payment posting and overdue handling. Each job is a
// batch service operation; job errors are logged at the job boundary and
// never stop the schedule.
type Scheduler struct {
	cron   *cron.Cron
	config *config.Configuration
	logger *logger.Logger

	subscriptionService service.SubscriptionService
	invoiceService      service.InvoiceService
	outboxService       service.OutboxService
	paymentService      service.PaymentService
}

// New creates a scheduler wired to the billing services
func New(params service.ServiceParams) *Scheduler {
	return &Scheduler{
		cron:                cron.New(),
		config:              params.Config,
		logger:              params.Logger,
		subscriptionService: service.NewSubscriptionService(params),
		invoiceService:      service.NewInvoiceService(params),
		outboxService:       service.NewOutboxService(params),
		paymentService:      service.NewPaymentService(params),
	}
}

// Start registers all jobs and starts the cron loop
func (s *Scheduler) Start() error {
	jobs := []struct {
		name string
		spec string
		run  func(ctx context.Context)
	}{
		{"invoice_generation", s.config.Scheduler.InvoiceSchedule, s.runInvoiceGeneration},
		{"trial_expiry", s.config.Scheduler.TrialExpirySchedule, s.runTrialExpiry},
		{"outbox_relay", s.config.Scheduler.OutboxRelaySchedule, s.runOutboxRelay},
		{"payment_posting", s.config.Scheduler.PaymentPostingSchedule, s.runPaymentPosting},
		{"overdue_handling", s.config.Scheduler.OverdueSchedule, s.runOverdueHandling},
	}

	for _, job := range jobs {
		job := job
		if _, err := s.cron.AddFunc(job.spec, func() {
			job.run(s.jobContext())
		}); err != nil {
			return err
		}
		s.logger.Infow("registered scheduler job",
			"job", job.name,
			"schedule", job.spec,
		)
	}

	s.cron.Start()
	return nil
}

// Stop stops the cron loop and waits for running jobs to finish
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// jobContext builds the background tenant context jobs run under
func (s *Scheduler) jobContext() context.Context {
	ctx := context.Background()
	ctx = types.SetTenantID(ctx, types.DefaultTenantID)
	ctx = types.SetUserID(ctx, types.DefaultUserID)
	return ctx
}

func (s *Scheduler) runInvoiceGeneration(ctx context.Context) {
	generated, err := s.invoiceService.GenerateDueInvoices(ctx, s.config.Billing.InvoiceBatchSize)
	if err != nil {
		s.logger.Errorw("invoice generation pass failed", "error", err)
		return
	}
	s.logger.Infow("invoice generation pass finished", "generated", generated)
}

func (s *Scheduler) runTrialExpiry(ctx context.Context) {
	processed, err := s.subscriptionService.ProcessTrialExpiry(ctx, s.config.Billing.InvoiceBatchSize)
	if err != nil {
		s.logger.Errorw("trial expiry pass failed", "error", err)
		return
	}
	s.logger.Infow("trial expiry pass finished", "processed", processed)
}

func (s *Scheduler) runOutboxRelay(ctx context.Context) {
	sent, err := s.outboxService.RelayPending(ctx, s.config.Outbox.RelayBatchSize)
	if err != nil {
		s.logger.Errorw("outbox relay pass failed", "error", err)
		return
	}
	if sent > 0 {
		s.logger.Infow("outbox relay pass finished", "sent", sent)
	}
}

func (s *Scheduler) runPaymentPosting(ctx context.Context) {
	posted, err := s.paymentService.PostSuccessPayments(ctx, s.config.Billing.InvoiceBatchSize)
	if err != nil {
		s.logger.Errorw("payment posting pass failed", "error", err)
		return
	}
	s.logger.Infow("payment posting pass finished", "posted", posted)
}

func (s *Scheduler) runOverdueHandling(ctx context.Context) {
	flipped, err := s.invoiceService.HandleOverdueInvoices(ctx, s.config.Billing.InvoiceBatchSize)
	if err != nil {
		s.logger.Errorw("overdue handling pass failed", "error", err)
		return
	}
	s.logger.Infow("overdue handling pass finished", "overdue", flipped)
}
