package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/billforge/billforge/internal/domain/outbox"
	ierr "github.com/billforge/billforge/internal/errors"
	"github.com/billforge/billforge/internal/types"
)

// OutboxService persists events alongside domain mutations and relays them
// to the delivery topic with at-least-once semantics.
type OutboxService interface {
	// SaveEvent writes a pending outbox record for the given aggregate
	SaveEvent(ctx context.Context, eventType string, aggregateID string, payload any) error

	// RelayPending delivers due records and returns the number sent.
	// Delivery failures are isolated per record and rescheduled with
	// exponential backoff; they never abort the pass.
	RelayPending(ctx context.Context, limit int) (int, error)
}

type outboxService struct {
	ServiceParams
}

// NewOutboxService creates a new outbox service
func NewOutboxService(params ServiceParams) OutboxService {
	return &outboxService{ServiceParams: params}
}

func (s *outboxService) SaveEvent(ctx context.Context, eventType string, aggregateID string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Event payload is not serializable").
			Mark(ierr.ErrValidation)
	}

	record := &outbox.Record{
		ID:          types.GenerateUUIDWithPrefix(types.UUID_PREFIX_OUTBOX),
		EventType:   eventType,
		AggregateID: aggregateID,
		Payload:     raw,
		EventStatus: types.OutboxStatusPending,
		BaseModel:   types.GetDefaultBaseModel(ctx),
	}

	if err := record.Validate(); err != nil {
		return err
	}
	return s.OutboxRepo.Create(ctx, record)
}

func (s *outboxService) RelayPending(ctx context.Context, limit int) (int, error) {
	now := time.Now().UTC()
	due, err := s.OutboxRepo.ListDue(ctx, now, limit)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, record := range due {
		claimedStatus := record.EventStatus

		if err := s.deliver(ctx, record); err != nil {
			record.MarkDeliveryFailed(now, err)
			if ferr := s.OutboxRepo.MarkFailed(ctx, record); ferr != nil {
				s.Logger.Errorw("failed to record outbox delivery failure",
					"error", ferr,
					"outbox_id", record.ID,
				)
			}
			s.Logger.Warnw("outbox delivery failed",
				"error", err,
				"outbox_id", record.ID,
				"event_type", record.EventType,
				"retry_count", record.RetryCount,
				"next_retry_at", record.NextRetryAt,
			)
			continue
		}

		affected, err := s.OutboxRepo.MarkSent(ctx, record.ID, claimedStatus, now)
		if err != nil {
			s.Logger.Errorw("failed to mark outbox record sent",
				"error", err,
				"outbox_id", record.ID,
			)
			continue
		}
		if affected == 0 {
			// A concurrent relayer won the race; the duplicate delivery
			// is covered by the at-least-once contract
			s.Logger.Debugw("outbox record already relayed",
				"outbox_id", record.ID,
			)
			continue
		}

		sent++
	}

	if sent > 0 {
		s.Logger.Infow("relayed outbox records",
			"sent", sent,
			"due", len(due),
		)
	}

	return sent, nil
}

func (s *outboxService) deliver(ctx context.Context, record *outbox.Record) error {
	msg := message.NewMessage(record.ID, message.Payload(record.Payload))
	msg.Metadata.Set("event_type", record.EventType)
	msg.Metadata.Set("aggregate_id", record.AggregateID)
	msg.Metadata.Set("tenant_id", record.TenantID)

	return s.PubSub.Publish(ctx, s.Config.Outbox.Topic, msg)
}
