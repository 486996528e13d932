package security

import (
	"strings"

	"github.com/billforge/billforge/internal/types"
	"github.com/samber/lo"
)

// sensitiveFields is the explicit deny-list of gateway callback fields that
// must never be stored in clear text. Matching is case-insensitive and also
// catches keys that merely contain one of these tokens (e.g. "card_number").
var sensitiveFields = []string{
	"card_number",
	"cvv",
	"cvc",
	"pan",
	"account_number",
	"routing_number",
	"password",
	"secret",
	"token",
	"signature",
}

const maskedValue = "****"

// MaskCallbackData returns a copy of the callback payload with every
// sensitive field replaced by a fixed mask. The original map is not
// modified. Masking is an allow-nothing deny-list transform, not a
// reflection-based traversal.
func MaskCallbackData(data map[string]string) types.Metadata {
	masked := make(types.Metadata, len(data))
	for k, v := range data {
		if isSensitive(k) {
			masked[k] = maskedValue
			continue
		}
		masked[k] = v
	}
	return masked
}

func isSensitive(key string) bool {
	lower := strings.ToLower(key)
	return lo.SomeBy(sensitiveFields, func(field string) bool {
		return strings.Contains(lower, field)
	})
}
