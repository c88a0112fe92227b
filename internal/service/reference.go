package service

import (
	"strconv"
	"strings"
	"time"
)

// BuildReference derives the provider-facing reference from the order id and a base36
// millisecond suffix. When the result exceeds maxLen the order id is truncated so the
// suffix always survives. maxLen <= 0 means unlimited.
func BuildReference(orderID string, maxLen int, now time.Time) string {
	suffix := strconv.FormatInt(now.UnixMilli(), 36)
	ref := orderID + "-" + suffix
	if maxLen <= 0 || len(ref) <= maxLen {
		return ref
	}

	keep := maxLen - len(suffix) - 1
	if keep <= 0 {
		return suffix[len(suffix)-min(maxLen, len(suffix)):]
	}
	return orderID[:keep] + "-" + suffix
}

// ReferenceMatchesOrder reports whether ref was built from orderID, in full or truncated form.
func ReferenceMatchesOrder(ref, orderID string) bool {
	i := strings.LastIndex(ref, "-")
	if i <= 0 {
		return false
	}
	if _, err := strconv.ParseInt(ref[i+1:], 36, 64); err != nil {
		return false
	}
	return strings.HasPrefix(orderID, ref[:i])
}
