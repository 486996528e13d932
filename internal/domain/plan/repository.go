package plan

import (
	"context"

	"github.com/billforge/billforge/internal/types"
)

// Repository defines the interface for plan persistence
type Repository interface {
	Create(ctx context.Context, plan *Plan) error
	Get(ctx context.Context, id string) (*Plan, error)
	List(ctx context.Context, filter *types.QueryFilter) ([]*Plan, error)
}
