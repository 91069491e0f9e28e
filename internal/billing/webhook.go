package billing

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v82/webhook"
)

// DefaultTolerance is how old a signed webhook timestamp may be.
const DefaultTolerance = webhook.DefaultTolerance

// Webhook event types the portal reacts to.
const (
	EventCheckoutCompleted   = "checkout.session.completed"
	EventSubscriptionDeleted = "customer.subscription.deleted"
	EventSubscriptionUpdated = "customer.subscription.updated"
)

var (
	ErrMissingSignature = errors.New("missing signature")
	ErrInvalidSignature = errors.New("invalid signature")
	ErrTimestampExpired = errors.New("timestamp outside the tolerance zone")
	ErrInvalidPayload   = errors.New("invalid payload")
)

// IsSignatureError reports whether err came from the signature check rather
// than from reading a correctly signed payload.
func IsSignatureError(err error) bool {
	return errors.Is(err, ErrMissingSignature) ||
		errors.Is(err, ErrInvalidSignature) ||
		errors.Is(err, ErrTimestampExpired)
}

// Event is the envelope of every webhook delivery.
type Event struct {
	ID      string
	Type    string
	Created int64
	Data    struct {
		Object json.RawMessage
	}
}

// ConstructEvent checks the Stripe-Signature header against payload and
// decodes the event. The signature is checked first, so a payload that
// fails to decode has already been verified. The event's API version is
// not compared with the SDK's; only the object fields read by this package
// matter.
func ConstructEvent(payload []byte, header, secret string, tolerance time.Duration) (*Event, error) {
	if strings.TrimSpace(header) == "" {
		return nil, ErrMissingSignature
	}

	sev, err := webhook.ConstructEventWithOptions(payload, header, secret, webhook.ConstructEventOptions{
		Tolerance:                tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	switch {
	case err == nil:
	case errors.Is(err, webhook.ErrNotSigned):
		return nil, ErrMissingSignature
	case errors.Is(err, webhook.ErrInvalidHeader), errors.Is(err, webhook.ErrNoValidSignature):
		return nil, ErrInvalidSignature
	case errors.Is(err, webhook.ErrTooOld):
		return nil, ErrTimestampExpired
	default:
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	if strings.TrimSpace(sev.ID) == "" || strings.TrimSpace(string(sev.Type)) == "" {
		return nil, fmt.Errorf("%w: missing id or type", ErrInvalidPayload)
	}
	ev := &Event{ID: sev.ID, Type: string(sev.Type), Created: sev.Created}
	if sev.Data != nil {
		ev.Data.Object = sev.Data.Raw
	}
	return ev, nil
}

// SignPayload builds a valid signature header for payload signed at the
// given time. Used by tests and local tooling.
func SignPayload(payload []byte, secret string, at time.Time) string {
	return webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: at,
	}).Header
}

// CheckoutSession decodes Data.Object as a checkout session.
func (e *Event) CheckoutSession() (*CheckoutSession, error) {
	var s CheckoutSession
	if err := json.Unmarshal(e.Data.Object, &s); err != nil {
		return nil, fmt.Errorf("%w: checkout session: %v", ErrInvalidPayload, err)
	}
	return &s, nil
}

// Subscription decodes Data.Object as a subscription.
func (e *Event) Subscription() (*Subscription, error) {
	var s Subscription
	if err := json.Unmarshal(e.Data.Object, &s); err != nil {
		return nil, fmt.Errorf("%w: subscription: %v", ErrInvalidPayload, err)
	}
	return &s, nil
}
