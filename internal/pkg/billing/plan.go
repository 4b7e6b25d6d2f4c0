package billing

import (
	"strings"

	"github.com/ManuelReschke/subscription-engine/app/models"
)

// normalizeStatus folds gateway subscription statuses onto the four local ones.
func normalizeStatus(status string) string {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "active", "trialing":
		return models.SubscriptionStatusActive
	case "past_due":
		return models.SubscriptionStatusPastDue
	case "canceled", "incomplete_expired":
		return models.SubscriptionStatusCanceled
	default:
		// unpaid, incomplete, paused and anything new the gateway adds
		return models.SubscriptionStatusUnpaid
	}
}

func normalizeInterval(interval string) string {
	switch strings.ToLower(strings.TrimSpace(interval)) {
	case models.BillingIntervalYear:
		return models.BillingIntervalYear
	default:
		return models.BillingIntervalMonth
	}
}

func normalizeCurrency(currency string) string {
	c := strings.ToLower(strings.TrimSpace(currency))
	if c == "" {
		return "usd"
	}
	return c
}
