package billing

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v83"
	"github.com/stripe/stripe-go/v83/webhook"
)

// DefaultWebhookTolerance is the accepted age of a signed webhook timestamp.
const DefaultWebhookTolerance = webhook.DefaultTolerance

// VerifyWebhookSignature authenticates payload against the Stripe-Signature
// header and decodes the event. payload must be the exact bytes received on the
// wire. API version mismatches are tolerated so that a dashboard-side version
// bump does not stop ingestion.
func VerifyWebhookSignature(payload []byte, signatureHeader, webhookSecret string, tolerance time.Duration) (stripe.Event, error) {
	sig := strings.TrimSpace(signatureHeader)
	secret := strings.TrimSpace(webhookSecret)
	if sig == "" || secret == "" {
		return stripe.Event{}, ErrInvalidSignature
	}
	if tolerance <= 0 {
		tolerance = DefaultWebhookTolerance
	}

	event, err := webhook.ConstructEventWithOptions(payload, sig, secret, webhook.ConstructEventOptions{
		Tolerance:                tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		if isSignatureError(err) {
			return stripe.Event{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
		}
		return stripe.Event{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if strings.TrimSpace(string(event.Type)) == "" {
		return stripe.Event{}, fmt.Errorf("%w: event type missing", ErrInvalidPayload)
	}
	return event, nil
}

func isSignatureError(err error) bool {
	return errors.Is(err, webhook.ErrNotSigned) ||
		errors.Is(err, webhook.ErrNoValidSignature) ||
		errors.Is(err, webhook.ErrInvalidHeader) ||
		errors.Is(err, webhook.ErrTooOld)
}
