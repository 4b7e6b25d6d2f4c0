package entitlements

import (
	"github.com/ManuelReschke/subscription-engine/app/models"
)

type Tier string

const (
	TierFree Tier = "free"
	TierPaid Tier = "paid"
)

// Grant is what a user may use right now.
type Grant struct {
	Tier     Tier
	PlanID   string
	Features []string
}

// ForSubscription derives the grant from the user's active subscription.
// Only an active status entitles; past_due and unpaid fall back to free.
func ForSubscription(sub *models.UserSubscription) Grant {
	if sub == nil || !sub.IsActive() {
		return Grant{Tier: TierFree, Features: []string{}}
	}
	g := Grant{Tier: TierPaid, PlanID: sub.PlanID, Features: []string{}}
	if sub.Plan != nil {
		if features := sub.Plan.FeatureList(); features != nil {
			g.Features = features
		}
	}
	return g
}

// Has reports whether the grant includes the named feature.
func (g Grant) Has(feature string) bool {
	for _, f := range g.Features {
		if f == feature {
			return true
		}
	}
	return false
}
