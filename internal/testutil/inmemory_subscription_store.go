package testutil

import (
	"context"
	"time"

	"github.com/billforge/billforge/internal/domain/subscription"
	ierr "github.com/billforge/billforge/internal/errors"
	"github.com/billforge/billforge/internal/types"
)

// InMemorySubscriptionStore implements subscription.Repository
type InMemorySubscriptionStore struct {
	*InMemoryStore[*subscription.Subscription]
}

// NewInMemorySubscriptionStore creates a new in-memory subscription store
func NewInMemorySubscriptionStore() *InMemorySubscriptionStore {
	return &InMemorySubscriptionStore{
		InMemoryStore: NewInMemoryStore[*subscription.Subscription](),
	}
}

func subscriptionFilterFn(ctx context.Context, sub *subscription.Subscription, filter interface{}) bool {
	if sub == nil {
		return false
	}
	if tenantID := types.GetTenantID(ctx); tenantID != "" && sub.TenantID != tenantID {
		return false
	}

	f, ok := filter.(*types.SubscriptionFilter)
	if !ok || f == nil {
		return true
	}

	if len(f.SubscriptionIDs) > 0 {
		found := false
		for _, id := range f.SubscriptionIDs {
			if sub.ID == id {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.PlanID != nil && sub.PlanID != *f.PlanID {
		return false
	}
	if f.SubscriptionStatus != nil && sub.SubscriptionStatus != *f.SubscriptionStatus {
		return false
	}
	if f.BillingDueBefore != nil && sub.NextBillingTime.After(*f.BillingDueBefore) {
		return false
	}
	if f.TrialEndedBefore != nil {
		if sub.TrialEndTime == nil || !sub.TrialEndTime.Before(*f.TrialEndedBefore) {
			return false
		}
	}
	return true
}

func subscriptionSortFn(i, j *subscription.Subscription) bool {
	if i == nil || j == nil {
		return false
	}
	return i.CreatedAt.Before(j.CreatedAt)
}

func (s *InMemorySubscriptionStore) Create(ctx context.Context, sub *subscription.Subscription) error {
	if sub == nil {
		return ierr.NewError("subscription cannot be nil").
			Mark(ierr.ErrValidation)
	}
	copied := *sub
	return s.InMemoryStore.Create(ctx, sub.ID, &copied)
}

func (s *InMemorySubscriptionStore) Get(ctx context.Context, id string) (*subscription.Subscription, error) {
	sub, err := s.InMemoryStore.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	copied := *sub
	return &copied, nil
}

func (s *InMemorySubscriptionStore) Update(ctx context.Context, sub *subscription.Subscription) error {
	if sub == nil {
		return ierr.NewError("subscription cannot be nil").
			Mark(ierr.ErrValidation)
	}
	copied := *sub
	return s.InMemoryStore.Update(ctx, sub.ID, &copied)
}

func (s *InMemorySubscriptionStore) UpdateWithGuard(ctx context.Context, sub *subscription.Subscription, expected types.SubscriptionStatus) (int, error) {
	if sub == nil {
		return 0, ierr.NewError("subscription cannot be nil").
			Mark(ierr.ErrValidation)
	}
	copied := *sub
	return s.InMemoryStore.Swap(ctx, sub.ID, func(stored *subscription.Subscription) (*subscription.Subscription, bool) {
		if stored.SubscriptionStatus != expected {
			return stored, false
		}
		return &copied, true
	})
}

func (s *InMemorySubscriptionStore) List(ctx context.Context, filter *types.SubscriptionFilter) ([]*subscription.Subscription, error) {
	return s.InMemoryStore.List(ctx, filter, subscriptionFilterFn, subscriptionSortFn)
}

func (s *InMemorySubscriptionStore) Count(ctx context.Context, filter *types.SubscriptionFilter) (int, error) {
	return s.InMemoryStore.Count(ctx, filter, subscriptionFilterFn)
}

func (s *InMemorySubscriptionStore) GetNonTerminalByTenant(ctx context.Context) (*subscription.Subscription, error) {
	subs, err := s.InMemoryStore.List(ctx, nil, subscriptionFilterFn, subscriptionSortFn)
	if err != nil {
		return nil, err
	}
	for _, sub := range subs {
		if !sub.SubscriptionStatus.IsTerminal() {
			copied := *sub
			return &copied, nil
		}
	}
	return nil, ierr.NewError("no active subscription for tenant").
		WithHint("The tenant has no non-cancelled subscription").
		Mark(ierr.ErrNotFound)
}

func (s *InMemorySubscriptionStore) ListDueForBilling(ctx context.Context, now time.Time, limit int) ([]*subscription.Subscription, error) {
	subs, err := s.InMemoryStore.List(ctx, nil, subscriptionFilterFn, subscriptionSortFn)
	if err != nil {
		return nil, err
	}

	result := make([]*subscription.Subscription, 0)
	for _, sub := range subs {
		if !sub.IsBillable() || sub.NextBillingTime.After(now) {
			continue
		}
		copied := *sub
		result = append(result, &copied)
		if len(result) == limit {
			break
		}
	}
	return result, nil
}

func (s *InMemorySubscriptionStore) ListExpiredTrials(ctx context.Context, now time.Time, limit int) ([]*subscription.Subscription, error) {
	subs, err := s.InMemoryStore.List(ctx, nil, subscriptionFilterFn, subscriptionSortFn)
	if err != nil {
		return nil, err
	}

	result := make([]*subscription.Subscription, 0)
	for _, sub := range subs {
		if sub.SubscriptionStatus != types.SubscriptionStatusTrialing {
			continue
		}
		if sub.TrialEndTime == nil || sub.TrialEndTime.After(now) {
			continue
		}
		copied := *sub
		result = append(result, &copied)
		if len(result) == limit {
			break
		}
	}
	return result, nil
}
