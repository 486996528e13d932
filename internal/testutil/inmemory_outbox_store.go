package testutil

import (
	"context"
	"time"

	"github.com/billforge/billforge/internal/domain/outbox"
	ierr "github.com/billforge/billforge/internal/errors"
	"github.com/billforge/billforge/internal/types"
)

// InMemoryOutboxStore implements outbox.Repository
type InMemoryOutboxStore struct {
	*InMemoryStore[*outbox.Record]
}

// NewInMemoryOutboxStore creates a new in-memory outbox store
func NewInMemoryOutboxStore() *InMemoryOutboxStore {
	return &InMemoryOutboxStore{
		InMemoryStore: NewInMemoryStore[*outbox.Record](),
	}
}

func outboxFilterFn(ctx context.Context, record *outbox.Record, filter interface{}) bool {
	if record == nil {
		return false
	}
	if tenantID := types.GetTenantID(ctx); tenantID != "" && record.TenantID != tenantID {
		return false
	}
	return true
}

func outboxSortFn(i, j *outbox.Record) bool {
	if i == nil || j == nil {
		return false
	}
	return i.CreatedAt.Before(j.CreatedAt)
}

func (s *InMemoryOutboxStore) Create(ctx context.Context, record *outbox.Record) error {
	if record == nil {
		return ierr.NewError("outbox record cannot be nil").
			Mark(ierr.ErrValidation)
	}
	copied := *record
	return s.InMemoryStore.Create(ctx, record.ID, &copied)
}

func (s *InMemoryOutboxStore) Get(ctx context.Context, id string) (*outbox.Record, error) {
	record, err := s.InMemoryStore.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	copied := *record
	return &copied, nil
}

func (s *InMemoryOutboxStore) ListDue(ctx context.Context, now time.Time, limit int) ([]*outbox.Record, error) {
	records, err := s.InMemoryStore.List(ctx, nil, outboxFilterFn, outboxSortFn)
	if err != nil {
		return nil, err
	}

	result := make([]*outbox.Record, 0)
	for _, record := range records {
		if !record.IsDue(now) {
			continue
		}
		copied := *record
		result = append(result, &copied)
		if len(result) == limit {
			break
		}
	}
	return result, nil
}

func (s *InMemoryOutboxStore) MarkSent(ctx context.Context, id string, expected types.OutboxStatus, sentAt time.Time) (int, error) {
	return s.InMemoryStore.Swap(ctx, id, func(stored *outbox.Record) (*outbox.Record, bool) {
		if stored.EventStatus != expected {
			return stored, false
		}
		copied := *stored
		copied.EventStatus = types.OutboxStatusSent
		copied.SentAt = &sentAt
		return &copied, true
	})
}

func (s *InMemoryOutboxStore) MarkFailed(ctx context.Context, record *outbox.Record) error {
	if record == nil {
		return ierr.NewError("outbox record cannot be nil").
			Mark(ierr.ErrValidation)
	}
	copied := *record
	_, err := s.InMemoryStore.Swap(ctx, record.ID, func(stored *outbox.Record) (*outbox.Record, bool) {
		// A record the relay already sent stays sent
		if stored.EventStatus == types.OutboxStatusSent {
			return stored, false
		}
		return &copied, true
	})
	return err
}

func (s *InMemoryOutboxStore) Count(ctx context.Context, status types.OutboxStatus) (int, error) {
	return s.InMemoryStore.Count(ctx, nil, func(ctx context.Context, record *outbox.Record, _ interface{}) bool {
		return outboxFilterFn(ctx, record, nil) && record.EventStatus == status
	})
}
