package repository

import (
	"context"
	"errors"

	"github.com/ManuelReschke/subscription-engine/app/models"
	"gorm.io/gorm"
)

type planRepository struct {
	db *gorm.DB
}

// NewPlanRepository creates a new plan repository instance
func NewPlanRepository(db *gorm.DB) PlanRepository {
	return &planRepository{db: db}
}

// ListPlans returns the whole catalog, cheapest first
func (r *planRepository) ListPlans(ctx context.Context) ([]models.SubscriptionPlan, error) {
	var plans []models.SubscriptionPlan
	err := r.db.WithContext(ctx).Order("price ASC").Order("name ASC").Find(&plans).Error
	return plans, err
}

// GetByID retrieves a plan by its ID
func (r *planRepository) GetByID(ctx context.Context, id string) (*models.SubscriptionPlan, error) {
	var plan models.SubscriptionPlan
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&plan).Error
	if err != nil {
		return nil, err
	}
	return &plan, nil
}

// UpsertByName inserts the plan or refreshes price, interval, availability
// and features of the existing plan with the same name. It reports whether a
// row was created.
func (r *planRepository) UpsertByName(ctx context.Context, plan *models.SubscriptionPlan) (bool, error) {
	db := r.db.WithContext(ctx)

	var existing models.SubscriptionPlan
	err := db.Where("name = ?", plan.Name).First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return true, db.Create(plan).Error
	}
	if err != nil {
		return false, err
	}

	plan.ID = existing.ID
	err = db.Model(&existing).Updates(map[string]interface{}{
		"price":                 plan.Price,
		"currency":              plan.Currency,
		"billing_interval":      plan.Interval,
		"platform_availability": plan.PlatformAvailability,
		"features":              plan.Features,
	}).Error
	return false, err
}

// Count returns the number of catalog entries
func (r *planRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.SubscriptionPlan{}).Count(&count).Error
	return count, err
}
