package types

import (
	"fmt"

	"github.com/samber/lo"
)

// RefundStatus represents the status of a refund
type RefundStatus string

const (
	RefundStatusPending   RefundStatus = "PENDING"
	RefundStatusSucceeded RefundStatus = "SUCCEEDED"
	RefundStatusFailed    RefundStatus = "FAILED"
)

func (s RefundStatus) String() string {
	return string(s)
}

func (s RefundStatus) Validate() error {
	allowed := []RefundStatus{
		RefundStatusPending,
		RefundStatusSucceeded,
		RefundStatusFailed,
	}
	if !lo.Contains(allowed, s) {
		return fmt.Errorf("invalid refund status: %s", s)
	}
	return nil
}
