package service

import (
	"context"
	"time"

	"github.com/billforge/billforge/internal/api/dto"
	"github.com/billforge/billforge/internal/domain/events"
	"github.com/billforge/billforge/internal/domain/invoice"
	"github.com/billforge/billforge/internal/domain/payment"
	ierr "github.com/billforge/billforge/internal/errors"
	"github.com/billforge/billforge/internal/types"
)

// PaymentService records gateway payment confirmations and posts them to
// the books. Recording and posting are separate steps: a recorded payment
// is durable immediately, posting applies it to the invoice exactly once.
type PaymentService interface {
	// RecordPayment stores a payment confirmation. A replay carrying the
	// same idempotency key returns the original record without side effects.
	RecordPayment(ctx context.Context, req dto.RecordPaymentRequest) (*dto.PaymentResponse, error)

	GetPayment(ctx context.Context, id string) (*dto.PaymentResponse, error)

	// PostSuccessPayments applies unposted successful payments to their
	// invoices. Each record is posted at most once even under concurrent
	// passes. Returns the number posted.
	PostSuccessPayments(ctx context.Context, limit int) (int, error)
}

type paymentService struct {
	ServiceParams
}

// NewPaymentService creates a new payment service
func NewPaymentService(params ServiceParams) PaymentService {
	return &paymentService{ServiceParams: params}
}

func (s *paymentService) RecordPayment(ctx context.Context, req dto.RecordPaymentRequest) (*dto.PaymentResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	if req.IdempotencyKey != "" {
		if existing, err := s.PaymentRepo.GetByIdempotencyKey(ctx, req.IdempotencyKey); err == nil {
			s.Logger.Debugw("replaying recorded payment",
				"payment_id", existing.ID,
				"idempotency_key", req.IdempotencyKey,
			)
			return dto.NewPaymentResponse(existing), nil
		} else if !ierr.IsNotFound(err) {
			return nil, err
		}
	}

	inv, err := s.InvoiceRepo.Get(ctx, req.InvoiceID)
	if err != nil {
		return nil, err
	}
	if !inv.IsPayable() {
		return nil, ierr.NewError("invoice is not payable").
			WithHintf("A %s invoice cannot accept payments", inv.InvoiceStatus).
			Mark(ierr.ErrInvalidOperation)
	}
	if !req.Amount.Equal(inv.TotalAmount) {
		return nil, ierr.NewError("payment amount does not match invoice").
			WithHint("Partial payments are not supported").
			WithReportableDetails(map[string]any{
				"payment_amount": req.Amount.String(),
				"invoice_total":  inv.TotalAmount.String(),
			}).
			Mark(ierr.ErrValidation)
	}

	record := &payment.Record{
		ID:                types.GenerateUUIDWithPrefix(types.UUID_PREFIX_PAYMENT),
		InvoiceID:         inv.ID,
		TransactionID:     req.TransactionID,
		PaymentMethodType: types.PaymentMethodType(req.PaymentMethodType),
		Amount:            req.Amount,
		Currency:          req.Currency,
		PaymentStatus:     types.PaymentStatusSucceeded,
		IdempotencyKey:    req.IdempotencyKey,
		BaseModel:         types.GetDefaultBaseModel(ctx),
	}

	if err := record.Validate(); err != nil {
		return nil, err
	}
	if err := s.PaymentRepo.Create(ctx, record); err != nil {
		return nil, err
	}

	s.Logger.Infow("recorded payment",
		"payment_id", record.ID,
		"invoice_id", inv.ID,
		"transaction_id", record.TransactionID,
		"amount", record.Amount,
	)

	return dto.NewPaymentResponse(record), nil
}

func (s *paymentService) GetPayment(ctx context.Context, id string) (*dto.PaymentResponse, error) {
	record, err := s.PaymentRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return dto.NewPaymentResponse(record), nil
}

func (s *paymentService) PostSuccessPayments(ctx context.Context, limit int) (int, error) {
	unposted, err := s.PaymentRepo.ListUnposted(ctx, limit)
	if err != nil {
		return 0, err
	}

	posted := 0
	for _, record := range unposted {
		now := time.Now().UTC()

		// Claim the record first; a zero result means another posting pass
		// already took it
		affected, err := s.PaymentRepo.MarkPosted(ctx, record.ID, now)
		if err != nil {
			s.Logger.Errorw("failed to mark payment posted",
				"error", err,
				"payment_id", record.ID,
			)
			continue
		}
		if affected == 0 {
			s.Logger.Debugw("payment already posted by concurrent pass",
				"payment_id", record.ID,
			)
			continue
		}

		if err := s.applyToInvoice(ctx, record, now); err != nil {
			s.Logger.Errorw("failed to apply posted payment to invoice",
				"error", err,
				"payment_id", record.ID,
				"invoice_id", record.InvoiceID,
			)
			continue
		}

		posted++
	}

	return posted, nil
}

// applyToInvoice flips the paid invoice, reactivates the subscription when
// it was waiting on this payment, and emits the posting events
func (s *paymentService) applyToInvoice(ctx context.Context, record *payment.Record, now time.Time) error {
	inv, err := s.InvoiceRepo.Get(ctx, record.InvoiceID)
	if err != nil {
		return err
	}
	if !inv.IsPayable() {
		// Already settled; the payment record stays posted as an audit fact
		s.Logger.Warnw("posted payment against settled invoice",
			"payment_id", record.ID,
			"invoice_id", inv.ID,
			"invoice_status", inv.InvoiceStatus,
		)
		return nil
	}

	previous := inv.InvoiceStatus
	inv.InvoiceStatus = types.InvoiceStatusPaid
	inv.PaymentMethod = types.ToNillableString(string(record.PaymentMethodType))
	inv.PaymentTransactionID = types.ToNillableString(record.TransactionID)
	inv.PaidAt = types.ToNillableTime(now)

	affected, err := s.InvoiceRepo.UpdateWithGuard(ctx, inv, previous)
	if err != nil {
		return err
	}
	if affected == 0 {
		s.Logger.Debugw("invoice settled by concurrent writer",
			"invoice_id", inv.ID,
		)
		return nil
	}

	s.reactivateSubscription(ctx, inv)

	outboxService := NewOutboxService(s.ServiceParams)
	if err := outboxService.SaveEvent(ctx, types.EventPaymentPosted, record.ID, record); err != nil {
		return err
	}
	if err := outboxService.SaveEvent(ctx, types.EventInvoicePaid, inv.ID, inv); err != nil {
		return err
	}

	publishEvent(ctx, s.ServiceParams, events.PaymentSucceeded, record)

	s.Logger.Infow("posted payment",
		"payment_id", record.ID,
		"invoice_id", inv.ID,
		"amount", record.Amount,
	)

	return nil
}

// reactivateSubscription moves a subscription waiting on payment back to
// active. Best effort: a lost race means someone else already moved it.
func (s *paymentService) reactivateSubscription(ctx context.Context, inv *invoice.Invoice) {
	sub, err := s.SubRepo.Get(ctx, inv.SubscriptionID)
	if err != nil {
		s.Logger.Errorw("failed to load subscription after payment",
			"error", err,
			"invoice_id", inv.ID,
			"subscription_id", inv.SubscriptionID,
		)
		return
	}

	previous := sub.SubscriptionStatus
	switch previous {
	case types.SubscriptionStatusPendingPayment, types.SubscriptionStatusPaused:
	default:
		return
	}

	sub.SubscriptionStatus = types.SubscriptionStatusActive
	sub.PausedAt = nil
	sub.PauseReason = ""

	if _, err := s.SubRepo.UpdateWithGuard(ctx, sub, previous); err != nil {
		s.Logger.Errorw("failed to reactivate subscription after payment",
			"error", err,
			"subscription_id", sub.ID,
		)
		return
	}

	publishEvent(ctx, s.ServiceParams, events.SubscriptionResumed, sub)
}
