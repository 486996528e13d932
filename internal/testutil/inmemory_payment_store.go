package testutil

import (
	"context"
	"time"

	"github.com/billforge/billforge/internal/domain/payment"
	ierr "github.com/billforge/billforge/internal/errors"
	"github.com/billforge/billforge/internal/types"
)

// InMemoryPaymentStore implements payment.Repository
type InMemoryPaymentStore struct {
	*InMemoryStore[*payment.Record]
}

// NewInMemoryPaymentStore creates a new in-memory payment store
func NewInMemoryPaymentStore() *InMemoryPaymentStore {
	return &InMemoryPaymentStore{
		InMemoryStore: NewInMemoryStore[*payment.Record](),
	}
}

func paymentFilterFn(ctx context.Context, record *payment.Record, filter interface{}) bool {
	if record == nil {
		return false
	}
	if tenantID := types.GetTenantID(ctx); tenantID != "" && record.TenantID != tenantID {
		return false
	}

	f, ok := filter.(*types.PaymentFilter)
	if !ok || f == nil {
		return true
	}

	if f.InvoiceID != nil && record.InvoiceID != *f.InvoiceID {
		return false
	}
	if f.PaymentStatus != nil && record.PaymentStatus != *f.PaymentStatus {
		return false
	}
	if f.Posted != nil && record.Posted != *f.Posted {
		return false
	}
	return true
}

func paymentSortFn(i, j *payment.Record) bool {
	if i == nil || j == nil {
		return false
	}
	return i.CreatedAt.Before(j.CreatedAt)
}

func (s *InMemoryPaymentStore) Create(ctx context.Context, record *payment.Record) error {
	if record == nil {
		return ierr.NewError("payment record cannot be nil").
			Mark(ierr.ErrValidation)
	}
	copied := *record
	return s.InMemoryStore.Create(ctx, record.ID, &copied)
}

func (s *InMemoryPaymentStore) Get(ctx context.Context, id string) (*payment.Record, error) {
	record, err := s.InMemoryStore.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	copied := *record
	return &copied, nil
}

func (s *InMemoryPaymentStore) Update(ctx context.Context, record *payment.Record) error {
	if record == nil {
		return ierr.NewError("payment record cannot be nil").
			Mark(ierr.ErrValidation)
	}
	copied := *record
	return s.InMemoryStore.Update(ctx, record.ID, &copied)
}

func (s *InMemoryPaymentStore) List(ctx context.Context, filter *types.PaymentFilter) ([]*payment.Record, error) {
	return s.InMemoryStore.List(ctx, filter, paymentFilterFn, paymentSortFn)
}

func (s *InMemoryPaymentStore) Count(ctx context.Context, filter *types.PaymentFilter) (int, error) {
	return s.InMemoryStore.Count(ctx, filter, paymentFilterFn)
}

func (s *InMemoryPaymentStore) GetByIdempotencyKey(ctx context.Context, key string) (*payment.Record, error) {
	records, err := s.InMemoryStore.List(ctx, nil, paymentFilterFn, paymentSortFn)
	if err != nil {
		return nil, err
	}
	for _, record := range records {
		if record.IdempotencyKey != "" && record.IdempotencyKey == key {
			copied := *record
			return &copied, nil
		}
	}
	return nil, ierr.NewError("payment not found").
		WithHint("No payment recorded under this idempotency key").
		Mark(ierr.ErrNotFound)
}

func (s *InMemoryPaymentStore) ListUnposted(ctx context.Context, limit int) ([]*payment.Record, error) {
	records, err := s.InMemoryStore.List(ctx, nil, paymentFilterFn, paymentSortFn)
	if err != nil {
		return nil, err
	}

	result := make([]*payment.Record, 0)
	for _, record := range records {
		if record.Posted || record.PaymentStatus != types.PaymentStatusSucceeded {
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

func (s *InMemoryPaymentStore) MarkPosted(ctx context.Context, id string, postedAt time.Time) (int, error) {
	return s.InMemoryStore.Swap(ctx, id, func(stored *payment.Record) (*payment.Record, bool) {
		if stored.Posted {
			return stored, false
		}
		copied := *stored
		copied.Posted = true
		copied.PostedTime = &postedAt
		return &copied, true
	})
}
