package gatewaywebhook

import (
	"encoding/json"
	"time"

	pkgerrors "github.com/legalflow/billing-backend/pkg/errors"
)

// Event types the reconciler acts on. Anything else is logged and ignored;
// the gateway adds types without notice and an unknown type must never bounce
// a delivery.
const (
	EventPaymentCreated  = "payment.created"
	EventPaymentUpdated  = "payment.updated"
	EventChargeSucceeded = "charge.succeeded"
	EventChargeFailed    = "charge.failed"
)

var supportedEventTypes = map[string]struct{}{
	EventPaymentCreated:  {},
	EventPaymentUpdated:  {},
	EventChargeSucceeded: {},
	EventChargeFailed:    {},
}

// Event is one asynchronous gateway notification.
type Event struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	CreatedAt time.Time `json:"created_at"`
	Data      EventData `json:"data"`
}

// EventData carries the payment object the event refers to.
type EventData struct {
	ID          string            `json:"id"`
	Status      string            `json:"status"`
	AmountCents int64             `json:"amount"`
	Method      string            `json:"payment_method"`
	Metadata    map[string]string `json:"metadata"`
}

// ParseEvent decodes a raw webhook body.
func ParseEvent(raw []byte) (*Event, error) {
	var event Event
	if err := json.Unmarshal(raw, &event); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "malformed webhook payload")
	}
	if event.ID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "webhook event id missing")
	}
	return &event, nil
}
