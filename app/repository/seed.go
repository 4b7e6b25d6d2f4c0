package repository

import (
	"context"

	"github.com/ManuelReschke/subscription-engine/app/models"
	"github.com/shopspring/decimal"
)

// DefaultPlans is the starter catalog loaded by `billingctl seed-plans`.
func DefaultPlans() []models.SubscriptionPlan {
	return []models.SubscriptionPlan{
		{
			Name:                 "Basic",
			Price:                decimal.RequireFromString("9.99"),
			Currency:             "USD",
			Interval:             models.BillingIntervalMonth,
			PlatformAvailability: models.NewStringList(models.PLATFORM_MOBILE, models.PLATFORM_WEB),
			Features:             models.NewStringList("Core features", "Email support"),
		},
		{
			Name:                 "Pro",
			Price:                decimal.RequireFromString("19.99"),
			Currency:             "USD",
			Interval:             models.BillingIntervalMonth,
			PlatformAvailability: models.NewStringList(models.PLATFORM_MOBILE, models.PLATFORM_WEB),
			Features:             models.NewStringList("Everything in Basic", "Priority support", "Advanced analytics"),
		},
		{
			Name:                 "Enterprise",
			Price:                decimal.RequireFromString("49.99"),
			Currency:             "USD",
			Interval:             models.BillingIntervalMonth,
			PlatformAvailability: models.NewStringList(models.PLATFORM_WEB),
			Features:             models.NewStringList("Everything in Pro", "Dedicated account manager", "Custom integrations"),
		},
	}
}

// SeedPlans upserts DefaultPlans and returns how many were newly created.
func SeedPlans(ctx context.Context, plans PlanRepository) (int, error) {
	created := 0
	for _, p := range DefaultPlans() {
		plan := p
		ok, err := plans.UpsertByName(ctx, &plan)
		if err != nil {
			return created, err
		}
		if ok {
			created++
		}
	}
	return created, nil
}
