package billing

import "errors"

var (
	// ErrInvalidSignature is returned when the webhook signature header is
	// missing, malformed, outside the tolerance window or does not match.
	ErrInvalidSignature = errors.New("invalid webhook signature")

	// ErrInvalidPayload is returned when a verified body cannot be decoded.
	ErrInvalidPayload = errors.New("invalid webhook payload")

	// ErrPlanNotFound is returned when a plan id does not resolve.
	ErrPlanNotFound = errors.New("subscription plan not found")

	// ErrUserNotFound is returned when a user id does not resolve.
	ErrUserNotFound = errors.New("user not found")

	// ErrSubscriptionNotFound is returned when no local subscription carries
	// the requested gateway subscription id.
	ErrSubscriptionNotFound = errors.New("user subscription not found")

	// ErrNoCustomer is returned when a portal session is requested for a user
	// that never completed a checkout.
	ErrNoCustomer = errors.New("no billing customer for user")

	// ErrGatewayUnavailable wraps transport, timeout and API failures of
	// outbound gateway calls.
	ErrGatewayUnavailable = errors.New("billing gateway unavailable")

	// ErrNotConfigured is returned when required gateway credentials are missing.
	ErrNotConfigured = errors.New("billing gateway not configured")
)

// ErrMissingMetadata is returned when a checkout completion carries no user or
// plan metadata and therefore cannot be joined to a local record.
var ErrMissingMetadata = errors.New("checkout metadata missing user or plan")
