package outbox

import (
	"encoding/json"
	"time"

	ierr "github.com/billforge/billforge/internal/errors"
	"github.com/billforge/billforge/internal/types"
)

const (
	// MaxBackoff caps the retry delay between relay attempts
	MaxBackoff = 300 * time.Second
	// maxBackoffExponent caps the doubling so the shift cannot overflow
	maxBackoffExponent = 10
)

// Record is a durable delivery artifact written in the same transaction as
// the domain mutation that produced it. It references its aggregate by id
// only; the aggregate may have moved on by the time the record is relayed.
type Record struct {
	ID          string             `json:"id"`
	EventType   string             `json:"event_type"`
	AggregateID string             `json:"aggregate_id"`
	Payload     json.RawMessage    `json:"payload"`
	EventStatus types.OutboxStatus `json:"event_status"`
	RetryCount  int                `json:"retry_count"`
	NextRetryAt *time.Time         `json:"next_retry_at,omitempty"`
	LastError   *string            `json:"last_error,omitempty"`
	SentAt      *time.Time         `json:"sent_at,omitempty"`

	types.BaseModel
}

// NextBackoff returns the relay delay after the given number of failed
// attempts: min(300s, 2^min(10, retryCount)) seconds.
func NextBackoff(retryCount int) time.Duration {
	if retryCount < 0 {
		retryCount = 0
	}
	exp := retryCount
	if exp > maxBackoffExponent {
		exp = maxBackoffExponent
	}
	backoff := time.Duration(1<<uint(exp)) * time.Second
	if backoff > MaxBackoff {
		return MaxBackoff
	}
	return backoff
}

// MarkDeliveryFailed records a failed relay attempt: bumps the retry count
// and schedules the next attempt according to the backoff policy.
func (r *Record) MarkDeliveryFailed(now time.Time, cause error) {
	r.RetryCount++
	r.EventStatus = types.OutboxStatusFailed
	next := now.Add(NextBackoff(r.RetryCount))
	r.NextRetryAt = &next
	if cause != nil {
		msg := cause.Error()
		r.LastError = &msg
	}
}

// IsDue returns true if the record is eligible for relay at the given time
func (r *Record) IsDue(now time.Time) bool {
	if !r.EventStatus.IsRelayable() {
		return false
	}
	return r.NextRetryAt == nil || !r.NextRetryAt.After(now)
}

// Validate validates the outbox record
func (r *Record) Validate() error {
	if r.EventType == "" {
		return ierr.NewError("event type is required").
			WithHint("Event type cannot be empty").
			Mark(ierr.ErrValidation)
	}
	if r.AggregateID == "" {
		return ierr.NewError("aggregate id is required").
			WithHint("Aggregate id cannot be empty").
			Mark(ierr.ErrValidation)
	}
	if err := r.EventStatus.Validate(); err != nil {
		return ierr.NewError("invalid outbox status").
			WithHint("Outbox status is invalid").
			Mark(ierr.ErrValidation)
	}
	return nil
}

// TableName returns the table name for the outbox record
func (r *Record) TableName() string {
	return "outbox_records"
}
