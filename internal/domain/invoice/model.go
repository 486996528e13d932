package invoice

import (
	"time"

	"github.com/billforge/billforge/internal/domain/plan"
	ierr "github.com/billforge/billforge/internal/errors"
	"github.com/billforge/billforge/internal/types"
	"github.com/shopspring/decimal"
)

// PriceSnapshot is a frozen copy of the pricing parameters used to compute
// an invoice. It makes invoices self-describing even after the plan changes.
type PriceSnapshot struct {
	PlanID              string                     `json:"plan_id"`
	BasePrice           decimal.Decimal            `json:"base_price"`
	BillingCycleDays    int                        `json:"billing_cycle_days"`
	UsagePricing        map[string]decimal.Decimal `json:"usage_pricing,omitempty"`
	UsageTiers          map[string]plan.TierMap    `json:"usage_tiers,omitempty"`
	DiscountRatePercent decimal.Decimal            `json:"discount_rate_percent"`
	TaxRatePercent      decimal.Decimal            `json:"tax_rate_percent"`
}

// Invoice is an immutable billing snapshot for one subscription period.
// Once paid, the amount fields never change; only payment and refund
// metadata may be updated afterwards.
type Invoice struct {
	ID             string              `json:"id"`
	InvoiceNumber  string              `json:"invoice_number"`
	SubscriptionID string              `json:"subscription_id"`
	PlanID         string              `json:"plan_id"`
	PeriodStart    time.Time           `json:"period_start"`
	PeriodEnd      time.Time           `json:"period_end"`
	DueDate        time.Time           `json:"due_date"`
	InvoiceStatus  types.InvoiceStatus `json:"invoice_status"`

	BaseAmount     decimal.Decimal `json:"base_amount"`
	UsageAmount    decimal.Decimal `json:"usage_amount"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	TaxAmount      decimal.Decimal `json:"tax_amount"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	Currency       string          `json:"currency"`

	PriceSnapshot PriceSnapshot `json:"price_snapshot"`
	// IdempotencyKey is derived from (subscription, period) so a re-run of
	// invoice generation after a partial failure cannot create a duplicate
	IdempotencyKey string `json:"idempotency_key"`

	PaymentMethod        *string    `json:"payment_method,omitempty"`
	PaymentTransactionID *string    `json:"payment_transaction_id,omitempty"`
	PaidAt               *time.Time `json:"paid_at,omitempty"`
	RefundedAt           *time.Time `json:"refunded_at,omitempty"`

	types.BaseModel
}

// Validate checks the invoice amount identity and status
func (i *Invoice) Validate() error {
	if i.SubscriptionID == "" {
		return ierr.NewError("subscription id is required").
			WithHint("Subscription id cannot be empty").
			Mark(ierr.ErrValidation)
	}
	if err := i.InvoiceStatus.Validate(); err != nil {
		return err
	}
	if i.BaseAmount.IsNegative() || i.UsageAmount.IsNegative() ||
		i.DiscountAmount.IsNegative() || i.TaxAmount.IsNegative() {
		return ierr.NewError("invoice amounts must be non negative").
			WithHint("Invoice amounts are invalid").
			Mark(ierr.ErrValidation)
	}
	if !i.PeriodEnd.After(i.PeriodStart) {
		return ierr.NewError("invalid invoice period").
			WithHint("Period end must be after period start").
			Mark(ierr.ErrValidation)
	}

	// total = base + usage - discount + tax, within rounding tolerance
	expected := i.BaseAmount.Add(i.UsageAmount).Sub(i.DiscountAmount).Add(i.TaxAmount)
	tolerance := decimal.New(1, -2)
	if expected.Sub(i.TotalAmount).Abs().GreaterThan(tolerance) {
		return ierr.NewError("invoice total does not reconcile").
			WithHint("Invoice total must equal base + usage - discount + tax").
			WithReportableDetails(map[string]any{
				"expected": expected.String(),
				"total":    i.TotalAmount.String(),
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// IsPayable returns true if a payment can still be applied to the invoice
func (i *Invoice) IsPayable() bool {
	return i.InvoiceStatus == types.InvoiceStatusPending ||
		i.InvoiceStatus == types.InvoiceStatusOverdue
}

// TableName returns the table name for the invoice
func (i *Invoice) TableName() string {
	return "invoices"
}
