package testutil

import (
	"context"
	"time"

	"github.com/billforge/billforge/internal/domain/usage"
	ierr "github.com/billforge/billforge/internal/errors"
	"github.com/billforge/billforge/internal/types"
	"github.com/shopspring/decimal"
)

// InMemoryUsageStore implements usage.Repository
type InMemoryUsageStore struct {
	*InMemoryStore[*usage.Record]
}

// NewInMemoryUsageStore creates a new in-memory usage store
func NewInMemoryUsageStore() *InMemoryUsageStore {
	return &InMemoryUsageStore{
		InMemoryStore: NewInMemoryStore[*usage.Record](),
	}
}

func usageFilterFn(ctx context.Context, record *usage.Record, filter interface{}) bool {
	if record == nil {
		return false
	}
	if tenantID := types.GetTenantID(ctx); tenantID != "" && record.TenantID != tenantID {
		return false
	}
	return true
}

func usageSortFn(i, j *usage.Record) bool {
	if i == nil || j == nil {
		return false
	}
	return i.RecordedAt.Before(j.RecordedAt)
}

func (s *InMemoryUsageStore) Create(ctx context.Context, record *usage.Record) error {
	if record == nil {
		return ierr.NewError("usage record cannot be nil").
			Mark(ierr.ErrValidation)
	}
	copied := *record
	return s.InMemoryStore.Create(ctx, record.ID, &copied)
}

func (s *InMemoryUsageStore) Get(ctx context.Context, id string) (*usage.Record, error) {
	record, err := s.InMemoryStore.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	copied := *record
	return &copied, nil
}

func (s *InMemoryUsageStore) SumByMetric(ctx context.Context, subscriptionID string, metricType string, periodStart, periodEnd time.Time) (decimal.Decimal, error) {
	records, err := s.InMemoryStore.List(ctx, nil, usageFilterFn, nil)
	if err != nil {
		return decimal.Zero, err
	}

	total := decimal.Zero
	for _, record := range records {
		if !s.inScope(record, subscriptionID, metricType, periodStart, periodEnd) || record.Billed {
			continue
		}
		total = total.Add(record.Quantity)
	}
	return total, nil
}

func (s *InMemoryUsageStore) MarkBilled(ctx context.Context, subscriptionID string, invoiceID string, periodStart, periodEnd time.Time) (int, error) {
	records, err := s.InMemoryStore.List(ctx, nil, usageFilterFn, nil)
	if err != nil {
		return 0, err
	}

	updated := 0
	for _, record := range records {
		if !s.inScope(record, subscriptionID, record.MetricType, periodStart, periodEnd) {
			continue
		}
		affected, err := s.InMemoryStore.Swap(ctx, record.ID, func(stored *usage.Record) (*usage.Record, bool) {
			if stored.Billed {
				return stored, false
			}
			copied := *stored
			copied.Billed = true
			copied.InvoiceID = &invoiceID
			return &copied, true
		})
		if err != nil {
			return updated, err
		}
		updated += affected
	}
	return updated, nil
}

func (s *InMemoryUsageStore) ListByInvoice(ctx context.Context, invoiceID string) ([]*usage.Record, error) {
	records, err := s.InMemoryStore.List(ctx, nil, usageFilterFn, usageSortFn)
	if err != nil {
		return nil, err
	}

	result := make([]*usage.Record, 0)
	for _, record := range records {
		if record.InvoiceID == nil || *record.InvoiceID != invoiceID {
			continue
		}
		copied := *record
		result = append(result, &copied)
	}
	return result, nil
}

// inScope matches a record against subscription, metric and [start, end)
func (s *InMemoryUsageStore) inScope(record *usage.Record, subscriptionID, metricType string, periodStart, periodEnd time.Time) bool {
	if record.SubscriptionID == nil || *record.SubscriptionID != subscriptionID {
		return false
	}
	if record.MetricType != metricType {
		return false
	}
	if record.RecordedAt.Before(periodStart) || !record.RecordedAt.Before(periodEnd) {
		return false
	}
	return true
}
