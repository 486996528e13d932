package outbox

import (
	"testing"
	"time"

	"github.com/billforge/billforge/internal/types"
	"github.com/stretchr/testify/assert"
)

func TestNextBackoff(t *testing.T) {
	testCases := []struct {
		name       string
		retryCount int
		expected   time.Duration
	}{
		{"first retry", 1, 2 * time.Second},
		{"second retry", 2, 4 * time.Second},
		{"third retry", 3, 8 * time.Second},
		{"eighth retry hits the cap", 8, 256 * time.Second},
		{"ninth retry is capped", 9, 300 * time.Second},
		{"exponent is clamped", 50, 300 * time.Second},
		{"zero retries", 0, 1 * time.Second},
		{"negative is treated as zero", -3, 1 * time.Second},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, NextBackoff(tc.retryCount))
		})
	}
}

func TestMarkDeliveryFailed(t *testing.T) {
	now := time.Now().UTC()
	record := &Record{
		EventType:   "invoice.generated",
		AggregateID: "inv_1",
		EventStatus: types.OutboxStatusPending,
	}

	record.MarkDeliveryFailed(now, assert.AnError)
	assert.Equal(t, 1, record.RetryCount)
	assert.Equal(t, types.OutboxStatusFailed, record.EventStatus)
	assert.Equal(t, now.Add(2*time.Second), *record.NextRetryAt)
	assert.NotNil(t, record.LastError)

	record.MarkDeliveryFailed(now, nil)
	record.MarkDeliveryFailed(now, nil)
	assert.Equal(t, 3, record.RetryCount)
	assert.Equal(t, now.Add(8*time.Second), *record.NextRetryAt)
}

func TestRecordIsDue(t *testing.T) {
	now := time.Now().UTC()

	pending := &Record{EventStatus: types.OutboxStatusPending}
	assert.True(t, pending.IsDue(now))

	sent := &Record{EventStatus: types.OutboxStatusSent}
	assert.False(t, sent.IsDue(now))

	future := now.Add(time.Minute)
	backedOff := &Record{EventStatus: types.OutboxStatusFailed, NextRetryAt: &future}
	assert.False(t, backedOff.IsDue(now))
	assert.True(t, backedOff.IsDue(future))
}
