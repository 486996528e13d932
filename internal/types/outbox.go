package types

import (
	"fmt"

	"github.com/samber/lo"
)

// OutboxStatus represents the delivery status of an outbox record.
// Pending and Failed records are eligible for relay, Sent is terminal.
type OutboxStatus string

const (
	OutboxStatusPending OutboxStatus = "PENDING"
	OutboxStatusSent    OutboxStatus = "SENT"
	OutboxStatusFailed  OutboxStatus = "FAILED"
)

func (s OutboxStatus) String() string {
	return string(s)
}

func (s OutboxStatus) Validate() error {
	allowed := []OutboxStatus{
		OutboxStatusPending,
		OutboxStatusSent,
		OutboxStatusFailed,
	}
	if !lo.Contains(allowed, s) {
		return fmt.Errorf("invalid outbox status: %s", s)
	}
	return nil
}

// IsRelayable returns true if a record in this status may still be delivered
func (s OutboxStatus) IsRelayable() bool {
	return s == OutboxStatusPending || s == OutboxStatusFailed
}
