package gateway

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Path is a key path into a decoded JSON object, outermost key first.
type Path []string

func (p Path) String() string {
	return strings.Join(p, ".")
}

// Payload shapes differ across Cashfree API versions, so every field is probed in order.
var (
	eventTypePaths = []Path{
		{"type"},
		{"event"},
		{"event_type"},
		{"data", "event_type"},
	}

	orderIDPaths = []Path{
		{"data", "order", "order_id"},
		{"data", "order_id"},
		{"order", "order_id"},
		{"order_id"},
		{"data", "refund", "order_id"},
		{"orderId"},
	}

	paymentIDPaths = []Path{
		{"data", "payment", "cf_payment_id"},
		{"data", "payment", "payment_id"},
		{"data", "cf_payment_id"},
		{"payment", "cf_payment_id"},
		{"cf_payment_id"},
		{"data", "refund", "cf_payment_id"},
		{"referenceId"},
	}

	refundStatusPaths = []Path{
		{"data", "refund", "refund_status"},
		{"refund", "refund_status"},
		{"refund_status"},
	}
)

// ExtractField returns the first non-empty scalar found along paths.
func ExtractField(payload map[string]any, paths []Path) (string, bool) {
	for _, path := range paths {
		if v, ok := lookup(payload, path); ok {
			return v, true
		}
	}
	return "", false
}

func lookup(payload map[string]any, path Path) (string, bool) {
	if len(path) == 0 {
		return "", false
	}

	var current any = payload
	for _, key := range path {
		obj, ok := current.(map[string]any)
		if !ok {
			return "", false
		}
		current, ok = obj[key]
		if !ok {
			return "", false
		}
	}

	s := scalarString(current)
	if s == "" {
		return "", false
	}
	return s, true
}

func scalarString(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case json.Number:
		return val.String()
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	default:
		return ""
	}
}
