package service

import (
	"context"
	"time"

	"github.com/billforge/billforge/internal/api/dto"
	"github.com/billforge/billforge/internal/domain/events"
	"github.com/billforge/billforge/internal/domain/invoice"
	"github.com/billforge/billforge/internal/domain/plan"
	"github.com/billforge/billforge/internal/domain/subscription"
	ierr "github.com/billforge/billforge/internal/errors"
	"github.com/billforge/billforge/internal/idempotency"
	"github.com/billforge/billforge/internal/types"
	"github.com/shopspring/decimal"
)

// InvoiceService generates and maintains invoices.
type InvoiceService interface {
	GetInvoice(ctx context.Context, id string) (*dto.InvoiceResponse, error)

	// GenerateInvoice produces the invoice for the subscription's current
	// billing period. Generation is idempotent on (subscription, period):
	// a re-run returns the existing invoice instead of creating another.
	GenerateInvoice(ctx context.Context, subscriptionID string) (*dto.InvoiceResponse, error)

	// GenerateDueInvoices runs invoice generation for every subscription
	// whose billing time has arrived. Per-subscription failures are logged
	// and skipped. Returns the number of invoices generated.
	GenerateDueInvoices(ctx context.Context, limit int) (int, error)

	// HandleOverdueInvoices flips pending invoices past their due date to
	// overdue and moves their subscriptions to pending_payment. Returns the
	// number flipped.
	HandleOverdueInvoices(ctx context.Context, limit int) (int, error)
}

type invoiceService struct {
	ServiceParams
	idempGen *idempotency.Generator
}

// NewInvoiceService creates a new invoice service
func NewInvoiceService(params ServiceParams) InvoiceService {
	return &invoiceService{
		ServiceParams: params,
		idempGen:      idempotency.NewGenerator(),
	}
}

func (s *invoiceService) GetInvoice(ctx context.Context, id string) (*dto.InvoiceResponse, error) {
	inv, err := s.InvoiceRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return dto.NewInvoiceResponse(inv), nil
}

func (s *invoiceService) GenerateInvoice(ctx context.Context, subscriptionID string) (*dto.InvoiceResponse, error) {
	sub, err := s.SubRepo.Get(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}

	if !s.isInvoiceable(sub) {
		return nil, ierr.NewError("subscription is not billable").
			WithHintf("A %s subscription cannot be invoiced", sub.SubscriptionStatus).
			Mark(ierr.ErrInvalidOperation)
	}

	p, err := s.PlanRepo.Get(ctx, sub.PlanID)
	if err != nil {
		return nil, err
	}

	periodStart, periodEnd := s.billingPeriod(sub, p)

	// Idempotency pre-check; the repository's uniqueness constraint on
	// (subscription, period) closes the remaining race window
	if existing, err := s.InvoiceRepo.GetBySubscriptionAndPeriod(ctx, sub.ID, periodStart, periodEnd); err == nil {
		s.Logger.Debugw("invoice already exists for period",
			"subscription_id", sub.ID,
			"invoice_id", existing.ID,
			"period_start", periodStart,
			"period_end", periodEnd,
		)
		s.repairBillingClock(ctx, sub, existing, p)
		return dto.NewInvoiceResponse(existing), nil
	} else if !ierr.IsNotFound(err) {
		return nil, err
	}

	pricingService := NewPricingService(s.ServiceParams)

	// Trial periods carry no base charge; usage is still billed
	base := p.BasePrice
	if sub.InTrial {
		base = decimal.Zero
	}

	usageAmount, _, err := pricingService.CalculateUsageAmount(ctx, sub.ID, p, periodStart, periodEnd)
	if err != nil {
		return nil, err
	}

	discountRate := s.discountRate(sub)
	taxRate := decimal.NewFromFloat(s.Config.Billing.TaxRatePercent)
	breakdown := pricingService.ComputeTotals(base, usageAmount, discountRate, taxRate)

	now := time.Now().UTC()
	inv := &invoice.Invoice{
		ID:             types.GenerateUUIDWithPrefix(types.UUID_PREFIX_INVOICE),
		InvoiceNumber:  types.GenerateShortIDWithPrefix(types.SHORT_ID_PREFIX_INVOICE),
		SubscriptionID: sub.ID,
		PlanID:         p.ID,
		PeriodStart:    periodStart,
		PeriodEnd:      periodEnd,
		DueDate:        now.AddDate(0, 0, s.Config.Billing.DueDays),
		InvoiceStatus:  types.InvoiceStatusPending,
		BaseAmount:     breakdown.BaseAmount,
		UsageAmount:    breakdown.UsageAmount,
		DiscountAmount: breakdown.DiscountAmount,
		TaxAmount:      breakdown.TaxAmount,
		TotalAmount:    breakdown.TotalAmount,
		Currency:       sub.Currency,
		PriceSnapshot: invoice.PriceSnapshot{
			PlanID:              p.ID,
			BasePrice:           p.BasePrice,
			BillingCycleDays:    p.BillingCycleDays,
			UsagePricing:        p.UsagePricing,
			UsageTiers:          p.UsageTiers,
			DiscountRatePercent: discountRate,
			TaxRatePercent:      taxRate,
		},
		IdempotencyKey: s.idempGen.GenerateKey(idempotency.ScopeSubscriptionInvoice, map[string]interface{}{
			"subscription_id": sub.ID,
			"period_start":    periodStart.Format(time.RFC3339),
			"period_end":      periodEnd.Format(time.RFC3339),
		}),
		BaseModel: types.GetDefaultBaseModel(ctx),
	}

	if err := inv.Validate(); err != nil {
		return nil, err
	}

	if err := s.InvoiceRepo.Create(ctx, inv); err != nil {
		// A concurrent generator beat us past the pre-check
		if ierr.IsAlreadyExists(err) {
			existing, gerr := s.InvoiceRepo.GetBySubscriptionAndPeriod(ctx, sub.ID, periodStart, periodEnd)
			if gerr != nil {
				return nil, gerr
			}
			s.repairBillingClock(ctx, sub, existing, p)
			return dto.NewInvoiceResponse(existing), nil
		}
		return nil, err
	}

	billed, err := s.UsageRepo.MarkBilled(ctx, sub.ID, inv.ID, periodStart, periodEnd)
	if err != nil {
		s.Logger.Errorw("failed to mark usage billed",
			"error", err,
			"invoice_id", inv.ID,
			"subscription_id", sub.ID,
		)
	}

	// The billing clock advances only after the invoice is durable
	sub.NextBillingTime = periodEnd.AddDate(0, 0, p.BillingCycleDays)
	sub.CurrentPeriodAmount = breakdown.TotalAmount
	sub.TrialConverted = false
	if err := s.SubRepo.Update(ctx, sub); err != nil {
		return nil, err
	}

	outboxService := NewOutboxService(s.ServiceParams)
	if err := outboxService.SaveEvent(ctx, types.EventInvoiceGenerated, inv.ID, inv); err != nil {
		return nil, err
	}

	publishEvent(ctx, s.ServiceParams, events.InvoiceGenerated, inv)

	s.notify(ctx, sub.TenantID, types.TemplateInvoiceGenerated, map[string]string{
		"invoice_number": inv.InvoiceNumber,
		"total_amount":   inv.TotalAmount.String(),
		"currency":       inv.Currency,
		"due_date":       inv.DueDate.Format(time.RFC3339),
	})

	s.Logger.Infow("generated invoice",
		"invoice_id", inv.ID,
		"invoice_number", inv.InvoiceNumber,
		"subscription_id", sub.ID,
		"total_amount", inv.TotalAmount,
		"usage_records_billed", billed,
		"next_billing_time", sub.NextBillingTime,
	)

	return dto.NewInvoiceResponse(inv), nil
}

func (s *invoiceService) GenerateDueInvoices(ctx context.Context, limit int) (int, error) {
	now := time.Now().UTC()
	due, err := s.SubRepo.ListDueForBilling(ctx, now, limit)
	if err != nil {
		return 0, err
	}

	generated := 0
	for _, sub := range due {
		if _, err := s.GenerateInvoice(ctx, sub.ID); err != nil {
			s.Logger.Errorw("failed to generate invoice",
				"error", err,
				"subscription_id", sub.ID,
			)
			continue
		}
		generated++
	}

	return generated, nil
}

func (s *invoiceService) HandleOverdueInvoices(ctx context.Context, limit int) (int, error) {
	now := time.Now().UTC()
	candidates, err := s.InvoiceRepo.ListOverdueCandidates(ctx, now, limit)
	if err != nil {
		return 0, err
	}

	outboxService := NewOutboxService(s.ServiceParams)

	flipped := 0
	for _, inv := range candidates {
		inv.InvoiceStatus = types.InvoiceStatusOverdue
		affected, err := s.InvoiceRepo.UpdateWithGuard(ctx, inv, types.InvoiceStatusPending)
		if err != nil {
			s.Logger.Errorw("failed to mark invoice overdue",
				"error", err,
				"invoice_id", inv.ID,
			)
			continue
		}
		if affected == 0 {
			// Paid or cancelled since listing
			continue
		}

		s.suspendForOverdue(ctx, inv)

		if err := outboxService.SaveEvent(ctx, types.EventInvoiceOverdue, inv.ID, inv); err != nil {
			s.Logger.Errorw("failed to save overdue event",
				"error", err,
				"invoice_id", inv.ID,
			)
		}

		s.notify(ctx, inv.TenantID, types.TemplateInvoiceOverdue, map[string]string{
			"invoice_number": inv.InvoiceNumber,
			"total_amount":   inv.TotalAmount.String(),
			"due_date":       inv.DueDate.Format(time.RFC3339),
		})

		flipped++
	}

	return flipped, nil
}

// suspendForOverdue moves the subscription behind an overdue invoice to
// pending_payment so it stops accruing new invoices until it settles up.
// Best effort: a subscription that already left the active state stays put.
func (s *invoiceService) suspendForOverdue(ctx context.Context, inv *invoice.Invoice) {
	sub, err := s.SubRepo.Get(ctx, inv.SubscriptionID)
	if err != nil {
		s.Logger.Errorw("failed to load subscription for overdue invoice",
			"error", err,
			"invoice_id", inv.ID,
			"subscription_id", inv.SubscriptionID,
		)
		return
	}
	if sub.SubscriptionStatus != types.SubscriptionStatusActive {
		return
	}

	sub.SubscriptionStatus = types.SubscriptionStatusPendingPayment

	if _, err := s.SubRepo.UpdateWithGuard(ctx, sub, types.SubscriptionStatusActive); err != nil {
		s.Logger.Errorw("failed to suspend subscription for overdue invoice",
			"error", err,
			"invoice_id", inv.ID,
			"subscription_id", sub.ID,
		)
	}
}

// repairBillingClock re-advances the billing clock past an invoice that is
// already durable. A crash between invoice persistence and the subscription
// update leaves the clock inside the billed period; without the repair the
// subscription stays due forever and no later period is ever billed.
func (s *invoiceService) repairBillingClock(ctx context.Context, sub *subscription.Subscription, inv *invoice.Invoice, p *plan.Plan) {
	if sub.NextBillingTime.After(inv.PeriodEnd) {
		return
	}

	sub.NextBillingTime = inv.PeriodEnd.AddDate(0, 0, p.BillingCycleDays)
	sub.CurrentPeriodAmount = inv.TotalAmount
	sub.TrialConverted = false
	if err := s.SubRepo.Update(ctx, sub); err != nil {
		s.Logger.Errorw("failed to re-advance billing clock",
			"error", err,
			"subscription_id", sub.ID,
			"invoice_id", inv.ID,
		)
		return
	}

	s.Logger.Infow("re-advanced billing clock past existing invoice",
		"subscription_id", sub.ID,
		"invoice_id", inv.ID,
		"next_billing_time", sub.NextBillingTime,
	)
}

// notify sends a fire-and-forget notification; failures are logged only
func (s *invoiceService) notify(ctx context.Context, target, templateCode string, variables map[string]string) {
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

// isInvoiceable reports whether the subscription's state admits invoice
// generation. pending_payment is included so the first post-trial invoice
// can be produced.
func (s *invoiceService) isInvoiceable(sub *subscription.Subscription) bool {
	switch sub.SubscriptionStatus {
	case types.SubscriptionStatusActive,
		types.SubscriptionStatusTrialing,
		types.SubscriptionStatusPendingPayment:
		return true
	default:
		return false
	}
}

// billingPeriod derives the period covered by the next invoice. The period
// ends at the next billing time and spans one billing cycle; a trial period
// spans the trial instead.
func (s *invoiceService) billingPeriod(sub *subscription.Subscription, p *plan.Plan) (time.Time, time.Time) {
	if trialEnd := types.FromNillableTime(sub.TrialEndTime); sub.InTrial && !trialEnd.IsZero() {
		return trialEnd.AddDate(0, 0, -p.TrialDays), trialEnd
	}
	periodEnd := sub.NextBillingTime
	return periodEnd.AddDate(0, 0, -p.BillingCycleDays), periodEnd
}

// discountRate composes the applicable discount percentages
func (s *invoiceService) discountRate(sub *subscription.Subscription) decimal.Decimal {
	rate := decimal.Zero
	if sub.AutoRenew {
		rate = rate.Add(decimal.NewFromFloat(s.Config.Billing.AutoRenewDiscountPercent))
	}
	if sub.TrialConverted {
		rate = rate.Add(decimal.NewFromFloat(s.Config.Billing.TrialConversionDiscountPercent))
	}
	return rate
}
