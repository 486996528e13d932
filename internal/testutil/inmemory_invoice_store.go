package testutil

import (
	"context"
	"time"

	"github.com/billforge/billforge/internal/domain/invoice"
	ierr "github.com/billforge/billforge/internal/errors"
	"github.com/billforge/billforge/internal/types"
)

// InMemoryInvoiceStore implements invoice.Repository
type InMemoryInvoiceStore struct {
	*InMemoryStore[*invoice.Invoice]
}

// NewInMemoryInvoiceStore creates a new in-memory invoice store
func NewInMemoryInvoiceStore() *InMemoryInvoiceStore {
	return &InMemoryInvoiceStore{
		InMemoryStore: NewInMemoryStore[*invoice.Invoice](),
	}
}

func invoiceFilterFn(ctx context.Context, inv *invoice.Invoice, filter interface{}) bool {
	if inv == nil {
		return false
	}
	if tenantID := types.GetTenantID(ctx); tenantID != "" && inv.TenantID != tenantID {
		return false
	}

	f, ok := filter.(*types.InvoiceFilter)
	if !ok || f == nil {
		return true
	}

	if f.SubscriptionID != nil && inv.SubscriptionID != *f.SubscriptionID {
		return false
	}
	if f.InvoiceStatus != nil && inv.InvoiceStatus != *f.InvoiceStatus {
		return false
	}
	if f.DueBefore != nil && inv.DueDate.After(*f.DueBefore) {
		return false
	}
	return true
}

func invoiceSortFn(i, j *invoice.Invoice) bool {
	if i == nil || j == nil {
		return false
	}
	return i.CreatedAt.Before(j.CreatedAt)
}

func (s *InMemoryInvoiceStore) Create(ctx context.Context, inv *invoice.Invoice) error {
	if inv == nil {
		return ierr.NewError("invoice cannot be nil").
			Mark(ierr.ErrValidation)
	}

	// Uniqueness on (subscription, period) closes the duplicate-generation
	// race behind the service-level pre-check
	if existing, err := s.GetBySubscriptionAndPeriod(ctx, inv.SubscriptionID, inv.PeriodStart, inv.PeriodEnd); err == nil {
		return ierr.NewError("invoice already exists for period").
			WithHintf("Invoice %s already covers this period", existing.ID).
			Mark(ierr.ErrAlreadyExists)
	}

	copied := *inv
	return s.InMemoryStore.Create(ctx, inv.ID, &copied)
}

func (s *InMemoryInvoiceStore) Get(ctx context.Context, id string) (*invoice.Invoice, error) {
	inv, err := s.InMemoryStore.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	copied := *inv
	return &copied, nil
}

func (s *InMemoryInvoiceStore) UpdateWithGuard(ctx context.Context, inv *invoice.Invoice, expected types.InvoiceStatus) (int, error) {
	if inv == nil {
		return 0, ierr.NewError("invoice cannot be nil").
			Mark(ierr.ErrValidation)
	}
	copied := *inv
	return s.InMemoryStore.Swap(ctx, inv.ID, func(stored *invoice.Invoice) (*invoice.Invoice, bool) {
		if stored.InvoiceStatus != expected {
			return stored, false
		}
		return &copied, true
	})
}

func (s *InMemoryInvoiceStore) List(ctx context.Context, filter *types.InvoiceFilter) ([]*invoice.Invoice, error) {
	return s.InMemoryStore.List(ctx, filter, invoiceFilterFn, invoiceSortFn)
}

func (s *InMemoryInvoiceStore) Count(ctx context.Context, filter *types.InvoiceFilter) (int, error) {
	return s.InMemoryStore.Count(ctx, filter, invoiceFilterFn)
}

func (s *InMemoryInvoiceStore) GetBySubscriptionAndPeriod(ctx context.Context, subscriptionID string, periodStart, periodEnd time.Time) (*invoice.Invoice, error) {
	invoices, err := s.InMemoryStore.List(ctx, nil, invoiceFilterFn, invoiceSortFn)
	if err != nil {
		return nil, err
	}
	for _, inv := range invoices {
		if inv.SubscriptionID == subscriptionID &&
			inv.PeriodStart.Equal(periodStart) &&
			inv.PeriodEnd.Equal(periodEnd) {
			copied := *inv
			return &copied, nil
		}
	}
	return nil, ierr.NewError("invoice not found for period").
		WithHint("No invoice covers this subscription period").
		Mark(ierr.ErrNotFound)
}

func (s *InMemoryInvoiceStore) ListOverdueCandidates(ctx context.Context, now time.Time, limit int) ([]*invoice.Invoice, error) {
	invoices, err := s.InMemoryStore.List(ctx, nil, invoiceFilterFn, invoiceSortFn)
	if err != nil {
		return nil, err
	}

	result := make([]*invoice.Invoice, 0)
	for _, inv := range invoices {
		if inv.InvoiceStatus != types.InvoiceStatusPending || inv.DueDate.After(now) {
			continue
		}
		copied := *inv
		result = append(result, &copied)
		if len(result) == limit {
			break
		}
	}
	return result, nil
}
