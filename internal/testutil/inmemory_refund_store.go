package testutil

import (
	"context"

	"github.com/billforge/billforge/internal/domain/refund"
	ierr "github.com/billforge/billforge/internal/errors"
	"github.com/billforge/billforge/internal/types"
	"github.com/shopspring/decimal"
)

// InMemoryRefundStore implements refund.Repository
type InMemoryRefundStore struct {
	*InMemoryStore[*refund.Record]
}

// NewInMemoryRefundStore creates a new in-memory refund store
func NewInMemoryRefundStore() *InMemoryRefundStore {
	return &InMemoryRefundStore{
		InMemoryStore: NewInMemoryStore[*refund.Record](),
	}
}

func refundFilterFn(ctx context.Context, record *refund.Record, filter interface{}) bool {
	if record == nil {
		return false
	}
	if tenantID := types.GetTenantID(ctx); tenantID != "" && record.TenantID != tenantID {
		return false
	}
	return true
}

func refundSortFn(i, j *refund.Record) bool {
	if i == nil || j == nil {
		return false
	}
	return i.CreatedAt.Before(j.CreatedAt)
}

func (s *InMemoryRefundStore) Create(ctx context.Context, record *refund.Record) error {
	if record == nil {
		return ierr.NewError("refund record cannot be nil").
			Mark(ierr.ErrValidation)
	}
	copied := *record
	return s.InMemoryStore.Create(ctx, record.ID, &copied)
}

func (s *InMemoryRefundStore) Get(ctx context.Context, id string) (*refund.Record, error) {
	record, err := s.InMemoryStore.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	copied := *record
	return &copied, nil
}

func (s *InMemoryRefundStore) UpdateWithVersion(ctx context.Context, record *refund.Record, expectedVersion int) (int, error) {
	if record == nil {
		return 0, ierr.NewError("refund record cannot be nil").
			Mark(ierr.ErrValidation)
	}
	copied := *record
	return s.InMemoryStore.Swap(ctx, record.ID, func(stored *refund.Record) (*refund.Record, bool) {
		if stored.Version != expectedVersion {
			return stored, false
		}
		copied.Version = expectedVersion + 1
		return &copied, true
	})
}

func (s *InMemoryRefundStore) ListByInvoice(ctx context.Context, invoiceID string) ([]*refund.Record, error) {
	records, err := s.InMemoryStore.List(ctx, nil, refundFilterFn, refundSortFn)
	if err != nil {
		return nil, err
	}

	result := make([]*refund.Record, 0)
	for _, record := range records {
		if record.InvoiceID != invoiceID {
			continue
		}
		copied := *record
		result = append(result, &copied)
	}
	return result, nil
}

func (s *InMemoryRefundStore) GetByIdempotencyKey(ctx context.Context, invoiceID, key string) (*refund.Record, error) {
	records, err := s.ListByInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	// A key can accumulate failed attempts before one succeeds; the
	// succeeded record wins
	var match *refund.Record
	for _, record := range records {
		if record.IdempotencyKey == "" || record.IdempotencyKey != key {
			continue
		}
		if record.RefundStatus == types.RefundStatusSucceeded {
			return record, nil
		}
		match = record
	}
	if match != nil {
		return match, nil
	}
	return nil, ierr.NewError("refund not found").
		WithHint("No refund recorded under this idempotency key").
		Mark(ierr.ErrNotFound)
}

func (s *InMemoryRefundStore) GetByRefundID(ctx context.Context, invoiceID, refundID string) (*refund.Record, error) {
	records, err := s.ListByInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	for _, record := range records {
		if record.RefundID != "" && record.RefundID == refundID {
			return record, nil
		}
	}
	return nil, ierr.NewError("refund not found").
		WithHint("No refund matches this gateway refund id").
		Mark(ierr.ErrNotFound)
}

func (s *InMemoryRefundStore) SumSucceeded(ctx context.Context, invoiceID string) (decimal.Decimal, error) {
	records, err := s.ListByInvoice(ctx, invoiceID)
	if err != nil {
		return decimal.Zero, err
	}

	total := decimal.Zero
	for _, record := range records {
		if record.RefundStatus != types.RefundStatusSucceeded {
			continue
		}
		total = total.Add(record.Amount)
	}
	return total, nil
}
