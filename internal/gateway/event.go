package gateway

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"donation-service/internal/model"
)

var (
	ErrMalformedPayload = errors.New("malformed webhook payload")
	ErrMissingField     = errors.New("missing required webhook field")
)

// Kind is the closed set of webhook events this service acts on.
type Kind int

const (
	KindUnrecognized Kind = iota
	KindPaymentSuccess
	KindPaymentFailed
	KindPaymentUserDropped
	KindRefundSuccess
)

func (k Kind) String() string {
	switch k {
	case KindPaymentSuccess:
		return "payment_success"
	case KindPaymentFailed:
		return "payment_failed"
	case KindPaymentUserDropped:
		return "payment_user_dropped"
	case KindRefundSuccess:
		return "refund_success"
	default:
		return "unrecognized"
	}
}

// Status maps a kind to the donation status it settles on. The second value is
// false for kinds that are acknowledged but never acted upon.
func (k Kind) Status() (model.Status, bool) {
	switch k {
	case KindPaymentSuccess:
		return model.StatusCompleted, true
	case KindPaymentFailed, KindPaymentUserDropped:
		return model.StatusFailed, true
	case KindRefundSuccess:
		return model.StatusRefunded, true
	default:
		return "", false
	}
}

const refundStatusEvent = "REFUND_STATUS_WEBHOOK"

var eventKinds = map[string]Kind{
	"PAYMENT_SUCCESS_WEBHOOK":      KindPaymentSuccess,
	"PAYMENT_SUCCESS":              KindPaymentSuccess,
	"PAYMENT_FAILED_WEBHOOK":       KindPaymentFailed,
	"PAYMENT_FAILED":               KindPaymentFailed,
	"PAYMENT_USER_DROPPED_WEBHOOK": KindPaymentUserDropped,
	"PAYMENT_USER_DROPPED":         KindPaymentUserDropped,
	"REFUND_SUCCESS_WEBHOOK":       KindRefundSuccess,
	"REFUND_SUCCESS":               KindRefundSuccess,
}

func normalizeEventType(eventType string) string {
	t := strings.ToUpper(strings.TrimSpace(eventType))
	return strings.NewReplacer(".", "_", "-", "_").Replace(t)
}

func KindOf(eventType string) Kind {
	return eventKinds[normalizeEventType(eventType)]
}

// Classify maps a gateway event type to a donation status. Unknown types yield false.
func Classify(eventType string) (model.Status, bool) {
	return KindOf(eventType).Status()
}

// Event is a decoded webhook body reduced to the fields reconciliation needs.
type Event struct {
	Kind      Kind
	Type      string
	OrderID   string
	PaymentID string
}

func (e Event) Actionable() bool {
	_, ok := e.Kind.Status()
	return ok
}

// ParseEvent decodes a verified raw body. The event type is always required; the
// order id only for events that will be acted on.
func ParseEvent(rawBody []byte) (Event, error) {
	dec := json.NewDecoder(bytes.NewReader(rawBody))
	dec.UseNumber()

	var payload map[string]any
	if err := dec.Decode(&payload); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return Event{}, fmt.Errorf("%w: trailing data after JSON value", ErrMalformedPayload)
	}
	if payload == nil {
		return Event{}, fmt.Errorf("%w: body is not a JSON object", ErrMalformedPayload)
	}

	eventType, ok := ExtractField(payload, eventTypePaths)
	if !ok {
		return Event{}, fmt.Errorf("%w: event type", ErrMissingField)
	}

	event := Event{
		Kind: KindOf(eventType),
		Type: eventType,
	}
	event.OrderID, _ = ExtractField(payload, orderIDPaths)
	event.PaymentID, _ = ExtractField(payload, paymentIDPaths)

	if normalizeEventType(eventType) == refundStatusEvent {
		if refundStatus, _ := ExtractField(payload, refundStatusPaths); strings.EqualFold(refundStatus, "SUCCESS") {
			event.Kind = KindRefundSuccess
		}
	}

	if event.Actionable() && event.OrderID == "" {
		return Event{}, fmt.Errorf("%w: order id", ErrMissingField)
	}

	return event, nil
}
