package prommetrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/subscription-engine/internal/pkg/billing"
)

var _ billing.Metrics = (*Metrics)(nil)

func TestMetricsRecordsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg, "test")

	m.RecordWebhookEvent("checkout.session.completed", "handled")
	m.RecordWebhookEvent("checkout.session.completed", "handled")
	m.RecordWebhookEvent("invoice.paid", "ignored")
	m.RecordWebhookRejected("invalid_signature")
	m.RecordSubscriptionTransition("active", "canceled")
	m.RecordAPICall("checkout_session", "success")
	m.RecordAPICallDuration("checkout_session", 150*time.Millisecond)
	m.RecordWebhookProcessingDuration("checkout.session.completed", 10*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.webhookEventsTotal.WithLabelValues("checkout.session.completed", "handled")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.webhookEventsTotal.WithLabelValues("invoice.paid", "ignored")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.webhookRejectedTotal.WithLabelValues("invalid_signature")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.transitionsTotal.WithLabelValues("active", "canceled")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.apiCallsTotal.WithLabelValues("checkout_session", "success")))

	count, err := testutil.GatherAndCount(reg, "test_billing_gateway_call_duration_seconds", "test_billing_webhook_processing_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}
