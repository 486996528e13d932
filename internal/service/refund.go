package service

import (
	"context"
	"time"

	"github.com/billforge/billforge/internal/api/dto"
	"github.com/billforge/billforge/internal/domain/events"
	"github.com/billforge/billforge/internal/domain/refund"
	ierr "github.com/billforge/billforge/internal/errors"
	"github.com/billforge/billforge/internal/security"
	"github.com/billforge/billforge/internal/types"
	"github.com/shopspring/decimal"
)

// RefundService issues refunds through the payment gateway and reconciles
// asynchronous gateway callbacks. Every gateway interaction leaves a refund
// record, successful or not.
type RefundService interface {
	// RequestRefund issues a refund against a paid invoice. A replay with
	// the same idempotency key returns the earlier outcome without calling
	// the gateway again. The cumulative refunded amount can never exceed
	// the invoice total.
	RequestRefund(ctx context.Context, req dto.RefundRequest) (*dto.RefundResponse, error)

	// ProcessRefundCallback reconciles an asynchronous gateway callback
	// into the matching refund record, creating one when the refund was
	// initiated outside this system. The raw payload is redacted before it
	// is stored.
	ProcessRefundCallback(ctx context.Context, invoiceID string, paymentMethod string, callbackData map[string]string) (*dto.RefundResponse, error)

	ListRefunds(ctx context.Context, invoiceID string) ([]*dto.RefundResponse, error)
}

type refundService struct {
	ServiceParams
}

// NewRefundService creates a new refund service
func NewRefundService(params ServiceParams) RefundService {
	return &refundService{ServiceParams: params}
}

func (s *refundService) RequestRefund(ctx context.Context, req dto.RefundRequest) (*dto.RefundResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	inv, err := s.InvoiceRepo.Get(ctx, req.InvoiceID)
	if err != nil {
		return nil, err
	}
	if inv.InvoiceStatus != types.InvoiceStatusPaid {
		return nil, ierr.NewError("invoice is not refundable").
			WithHintf("A %s invoice cannot be refunded", inv.InvoiceStatus).
			Mark(ierr.ErrInvalidOperation)
	}
	if inv.PaymentTransactionID == nil {
		return nil, ierr.NewError("invoice has no payment transaction").
			WithHint("The invoice was not settled through the gateway").
			Mark(ierr.ErrInvalidOperation)
	}

	// Only a successful outcome is replayable; a failed attempt under the
	// same key gets another shot at the gateway
	if req.IdempotencyKey != "" {
		if existing, err := s.RefundRepo.GetByIdempotencyKey(ctx, inv.ID, req.IdempotencyKey); err == nil {
			if existing.RefundStatus == types.RefundStatusSucceeded {
				s.Logger.Debugw("replaying refund request",
					"refund_record_id", existing.ID,
					"idempotency_key", req.IdempotencyKey,
				)
				return dto.NewRefundResponse(existing), nil
			}
		} else if !ierr.IsNotFound(err) {
			return nil, err
		}
	}

	refunded, err := s.RefundRepo.SumSucceeded(ctx, inv.ID)
	if err != nil {
		return nil, err
	}
	if refunded.Add(req.Amount).GreaterThan(inv.TotalAmount) {
		return nil, ierr.NewError("refund exceeds invoice total").
			WithHint("The cumulative refunded amount cannot exceed the invoice total").
			WithReportableDetails(map[string]any{
				"invoice_total":    inv.TotalAmount.String(),
				"already_refunded": refunded.String(),
				"requested":        req.Amount.String(),
			}).
			Mark(ierr.ErrOverLimit)
	}

	record := &refund.Record{
		ID:             types.GenerateUUIDWithPrefix(types.UUID_PREFIX_REFUND),
		InvoiceID:      inv.ID,
		Amount:         req.Amount,
		Currency:       inv.Currency,
		RefundStatus:   types.RefundStatusPending,
		Reason:         req.Reason,
		IdempotencyKey: req.IdempotencyKey,
		BaseModel:      types.GetDefaultBaseModel(ctx),
	}
	record.PaymentMethod = types.FromNillableString(inv.PaymentMethod)
	if err := record.Validate(); err != nil {
		return nil, err
	}

	result, gatewayErr := s.Gateway.ProcessRefund(ctx, *inv.PaymentTransactionID, req.Amount, req.Reason)

	now := time.Now().UTC()
	switch {
	case gatewayErr != nil:
		record.RefundStatus = types.RefundStatusFailed
		record.ErrorMessage = types.ToNillableString(gatewayErr.Error())
	case result.Success:
		record.RefundStatus = types.RefundStatusSucceeded
		record.RefundID = result.RefundID
		record.CompletedAt = types.ToNillableTime(now)
	default:
		record.RefundStatus = types.RefundStatusFailed
		record.RefundID = result.RefundID
		record.ErrorMessage = types.ToNillableString(result.Message)
	}

	// The record is an audit fact regardless of the gateway outcome
	if err := s.RefundRepo.Create(ctx, record); err != nil {
		return nil, err
	}

	if gatewayErr != nil {
		s.Logger.Errorw("refund gateway call failed",
			"error", gatewayErr,
			"refund_record_id", record.ID,
			"invoice_id", inv.ID,
		)
		return nil, ierr.WithError(gatewayErr).
			WithHint("The payment gateway rejected the refund request").
			Mark(ierr.ErrHTTPClient)
	}

	if record.RefundStatus == types.RefundStatusSucceeded {
		s.settleRefund(ctx, record, refunded)
	}

	s.Logger.Infow("processed refund request",
		"refund_record_id", record.ID,
		"invoice_id", inv.ID,
		"amount", record.Amount,
		"status", record.RefundStatus,
	)

	return dto.NewRefundResponse(record), nil
}

func (s *refundService) ProcessRefundCallback(ctx context.Context, invoiceID string, paymentMethod string, callbackData map[string]string) (*dto.RefundResponse, error) {
	refundID := callbackData["refund_id"]
	if refundID == "" {
		return nil, ierr.NewError("callback has no refund id").
			WithHint("The gateway callback is missing the refund_id field").
			Mark(ierr.ErrValidation)
	}

	succeeded := s.Gateway.IsRefundSuccess(paymentMethod, callbackData)
	masked := security.MaskCallbackData(callbackData)
	now := time.Now().UTC()

	record, err := s.RefundRepo.GetByRefundID(ctx, invoiceID, refundID)
	if ierr.IsNotFound(err) {
		return s.createFromCallback(ctx, invoiceID, refundID, paymentMethod, callbackData, masked, succeeded, now)
	}
	if err != nil {
		return nil, err
	}

	wasSucceeded := record.RefundStatus == types.RefundStatusSucceeded

	// One retry after re-reading covers a concurrent callback delivery
	for attempt := 0; attempt < 2; attempt++ {
		record.RawCallback = masked
		record.PaymentMethod = paymentMethod
		if succeeded {
			record.RefundStatus = types.RefundStatusSucceeded
			if record.CompletedAt == nil {
				record.CompletedAt = types.ToNillableTime(now)
			}
		} else if record.RefundStatus == types.RefundStatusPending {
			record.RefundStatus = types.RefundStatusFailed
		}

		affected, err := s.RefundRepo.UpdateWithVersion(ctx, record, record.Version)
		if err != nil {
			return nil, err
		}
		if affected > 0 {
			record.Version++
			break
		}
		if attempt == 1 {
			return nil, ierr.NewError("refund record is being updated concurrently").
				WithHint("Please retry the callback").
				Mark(ierr.ErrVersionConflict)
		}

		record, err = s.RefundRepo.Get(ctx, record.ID)
		if err != nil {
			return nil, err
		}
		wasSucceeded = record.RefundStatus == types.RefundStatusSucceeded
	}

	if succeeded && !wasSucceeded {
		refunded, err := s.RefundRepo.SumSucceeded(ctx, invoiceID)
		if err != nil {
			return nil, err
		}
		// settleRefund adds the record's amount itself; the sum already
		// includes it once the record is succeeded
		s.settleRefund(ctx, record, refunded.Sub(record.Amount))
	}

	s.Logger.Infow("processed refund callback",
		"refund_record_id", record.ID,
		"invoice_id", invoiceID,
		"refund_id", refundID,
		"status", record.RefundStatus,
	)

	return dto.NewRefundResponse(record), nil
}

func (s *refundService) ListRefunds(ctx context.Context, invoiceID string) ([]*dto.RefundResponse, error) {
	records, err := s.RefundRepo.ListByInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	responses := make([]*dto.RefundResponse, 0, len(records))
	for _, record := range records {
		responses = append(responses, dto.NewRefundResponse(record))
	}
	return responses, nil
}

// createFromCallback records a refund first seen through a callback, for
// refunds initiated directly at the gateway
func (s *refundService) createFromCallback(ctx context.Context, invoiceID, refundID, paymentMethod string, callbackData map[string]string, masked types.Metadata, succeeded bool, now time.Time) (*dto.RefundResponse, error) {
	amount, err := s.Gateway.ParseRefundAmount(paymentMethod, callbackData)
	if err != nil {
		return nil, err
	}

	record := &refund.Record{
		ID:            types.GenerateUUIDWithPrefix(types.UUID_PREFIX_REFUND),
		InvoiceID:     invoiceID,
		RefundID:      refundID,
		PaymentMethod: paymentMethod,
		Amount:        amount,
		RefundStatus:  types.RefundStatusFailed,
		RawCallback:   masked,
		BaseModel:     types.GetDefaultBaseModel(ctx),
	}
	if succeeded {
		record.RefundStatus = types.RefundStatusSucceeded
		record.CompletedAt = types.ToNillableTime(now)
	}

	inv, err := s.InvoiceRepo.Get(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	record.Currency = inv.Currency

	if err := record.Validate(); err != nil {
		return nil, err
	}
	if err := s.RefundRepo.Create(ctx, record); err != nil {
		return nil, err
	}

	if succeeded {
		refunded, err := s.RefundRepo.SumSucceeded(ctx, invoiceID)
		if err != nil {
			return nil, err
		}
		s.settleRefund(ctx, record, refunded.Sub(record.Amount))
	}

	return dto.NewRefundResponse(record), nil
}

// settleRefund emits the refund events and, when the invoice is now fully
// refunded, flips it to refunded. previouslyRefunded is the succeeded sum
// before this record.
func (s *refundService) settleRefund(ctx context.Context, record *refund.Record, previouslyRefunded decimal.Decimal) {
	outboxService := NewOutboxService(s.ServiceParams)
	if err := outboxService.SaveEvent(ctx, types.EventRefundSucceeded, record.ID, record); err != nil {
		s.Logger.Errorw("failed to save refund event",
			"error", err,
			"refund_record_id", record.ID,
		)
	}
	publishEvent(ctx, s.ServiceParams, events.RefundCompleted, record)

	inv, err := s.InvoiceRepo.Get(ctx, record.InvoiceID)
	if err != nil {
		s.Logger.Errorw("failed to load invoice after refund",
			"error", err,
			"invoice_id", record.InvoiceID,
		)
		return
	}
	if inv.InvoiceStatus != types.InvoiceStatusPaid {
		return
	}
	if previouslyRefunded.Add(record.Amount).LessThan(inv.TotalAmount) {
		return
	}

	inv.InvoiceStatus = types.InvoiceStatusRefunded
	inv.RefundedAt = types.ToNillableTime(time.Now().UTC())

	affected, err := s.InvoiceRepo.UpdateWithGuard(ctx, inv, types.InvoiceStatusPaid)
	if err != nil {
		s.Logger.Errorw("failed to mark invoice refunded",
			"error", err,
			"invoice_id", inv.ID,
		)
		return
	}
	if affected == 0 {
		return
	}

	s.Logger.Infow("invoice fully refunded",
		"invoice_id", inv.ID,
		"refund_record_id", record.ID,
	)
}
