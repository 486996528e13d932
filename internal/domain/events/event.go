package events

import (
	"context"
	"encoding/json"
	"time"

	ierr "github.com/billforge/billforge/internal/errors"
	"github.com/billforge/billforge/internal/types"
)

// Event is an in-process domain event carried on the internal bus for
// decoupled side effects. It is distinct from the outbox: the bus gives no
// delivery guarantee and never leaves the process.
type Event struct {
	ID        string          `json:"id"`
	EventName string          `json:"event_name"`
	TenantID  string          `json:"tenant_id"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// In-process event names
const (
	PaymentSucceeded    = "payment.succeeded"
	InvoiceGenerated    = "invoice.generated"
	SubscriptionResumed = "subscription.resumed"
	RefundCompleted     = "refund.completed"
)

// New builds an event from the tenant context and an arbitrary payload
func New(ctx context.Context, eventName string, payload any) (*Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Event payload is not serializable").
			Mark(ierr.ErrValidation)
	}

	return &Event{
		ID:        types.GenerateUUIDWithPrefix(types.UUID_PREFIX_EVENT),
		EventName: eventName,
		TenantID:  types.GetTenantID(ctx),
		Timestamp: time.Now().UTC(),
		Payload:   raw,
	}, nil
}
