package billing

import "time"

// Metrics tracks webhook ingestion and outbound gateway calls.
// Implementations must be safe for concurrent use.
type Metrics interface {
	// RecordWebhookEvent counts a verified event.
	// outcome: "handled", "noop", "ignored", "duplicate" or "error"
	RecordWebhookEvent(eventType, outcome string)

	// RecordWebhookProcessingDuration records how long dispatch took.
	RecordWebhookProcessingDuration(eventType string, duration time.Duration)

	// RecordWebhookRejected counts requests that never reached dispatch.
	// reason: "invalid_signature" or "invalid_payload"
	RecordWebhookRejected(reason string)

	// RecordSubscriptionTransition counts a status change on a stored subscription.
	RecordSubscriptionTransition(fromStatus, toStatus string)

	// RecordAPICall records an outbound gateway call.
	// endpoint: "checkout_session" or "portal_session"; status: "success" or "error"
	RecordAPICall(endpoint, status string)

	// RecordAPICallDuration records how long an outbound gateway call took.
	RecordAPICallDuration(endpoint string, duration time.Duration)
}

// NoopMetrics is a no-op implementation of the Metrics interface.
type NoopMetrics struct{}

func (n *NoopMetrics) RecordWebhookEvent(_, _ string)                            {}
func (n *NoopMetrics) RecordWebhookProcessingDuration(_ string, _ time.Duration) {}
func (n *NoopMetrics) RecordWebhookRejected(_ string)                            {}
func (n *NoopMetrics) RecordSubscriptionTransition(_, _ string)                  {}
func (n *NoopMetrics) RecordAPICall(_, _ string)                                 {}
func (n *NoopMetrics) RecordAPICallDuration(_ string, _ time.Duration)           {}
