package billing

import (
	"context"
	"errors"
	"time"

	"github.com/ManuelReschke/subscription-engine/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SubscriptionState is a partial overwrite of a reconciled subscription.
// Nil fields are left untouched.
type SubscriptionState struct {
	Status             string
	CurrentPeriodStart *time.Time
	CurrentPeriodEnd   *time.Time
	CancelAtPeriodEnd  *bool
}

// Repository provides DB operations used by the billing service.
type Repository interface {
	FindPlanByID(ctx context.Context, planID string) (*models.SubscriptionPlan, error)
	GetUserByID(ctx context.Context, userID string) (*models.User, error)
	SetUserSubscriptionActive(ctx context.Context, userID string, active bool) error
	SetCustomerIDIfEmpty(ctx context.Context, userID, customerID string) (bool, error)
	UpsertUserSubscription(ctx context.Context, sub *models.UserSubscription, overwritePeriod bool) error
	FindSubscriptionByUserPlan(ctx context.Context, userID, planID string) (*models.UserSubscription, error)
	FindSubscriptionByPlatformSource(ctx context.Context, platformSource string) (*models.UserSubscription, error)
	UpdateSubscriptionState(ctx context.Context, subscriptionID string, state SubscriptionState) error
	GetActiveSubscriptionByUser(ctx context.Context, userID string) (*models.UserSubscription, error)
	CreateWebhookEventIfNotExists(ctx context.Context, event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error)
	MarkWebhookProcessed(ctx context.Context, id uint, processingError string) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a billing repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) FindPlanByID(ctx context.Context, planID string) (*models.SubscriptionPlan, error) {
	var plan models.SubscriptionPlan
	err := r.db.WithContext(ctx).Where("id = ?", planID).First(&plan).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPlanNotFound
		}
		return nil, err
	}
	return &plan, nil
}

func (r *gormRepository) GetUserByID(ctx context.Context, userID string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Where("id = ?", userID).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (r *gormRepository) SetUserSubscriptionActive(ctx context.Context, userID string, active bool) error {
	return r.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Update("subscription_active", active).Error
}

// SetCustomerIDIfEmpty assigns the gateway customer id only while the column is
// still NULL. The guard lives in the UPDATE so two concurrent completions for
// the same user cannot both win.
func (r *gormRepository) SetCustomerIDIfEmpty(ctx context.Context, userID, customerID string) (bool, error) {
	tx := r.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ? AND stripe_customer_id IS NULL", userID).
		Update("stripe_customer_id", customerID)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

func (r *gormRepository) UpsertUserSubscription(ctx context.Context, sub *models.UserSubscription, overwritePeriod bool) error {
	columns := []string{"status", "platform_source", "cancel_at_period_end", "updated_at"}
	if overwritePeriod {
		columns = append(columns, "current_period_start", "current_period_end")
	}

	db := r.db.WithContext(ctx)
	if err := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "user_id"},
			{Name: "plan_id"},
		},
		DoUpdates: clause.AssignmentColumns(columns),
	}).Create(sub).Error; err != nil {
		return err
	}

	// Reload into a fresh value: after a conflict sub.ID holds the discarded
	// uuid from BeforeCreate, which GORM would add to the WHERE clause.
	var stored models.UserSubscription
	if err := db.Where("user_id = ? AND plan_id = ?", sub.UserID, sub.PlanID).First(&stored).Error; err != nil {
		return err
	}
	*sub = stored
	return nil
}

func (r *gormRepository) FindSubscriptionByUserPlan(ctx context.Context, userID, planID string) (*models.UserSubscription, error) {
	var sub models.UserSubscription
	err := r.db.WithContext(ctx).Where("user_id = ? AND plan_id = ?", userID, planID).First(&sub).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, err
	}
	return &sub, nil
}

func (r *gormRepository) FindSubscriptionByPlatformSource(ctx context.Context, platformSource string) (*models.UserSubscription, error) {
	var sub models.UserSubscription
	err := r.db.WithContext(ctx).
		Where("platform_source = ?", platformSource).
		Order("updated_at DESC").
		First(&sub).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, err
	}
	return &sub, nil
}

func (r *gormRepository) UpdateSubscriptionState(ctx context.Context, subscriptionID string, state SubscriptionState) error {
	updates := map[string]interface{}{}
	if state.Status != "" {
		updates["status"] = state.Status
	}
	if state.CurrentPeriodStart != nil {
		updates["current_period_start"] = *state.CurrentPeriodStart
	}
	if state.CurrentPeriodEnd != nil {
		updates["current_period_end"] = *state.CurrentPeriodEnd
	}
	if state.CancelAtPeriodEnd != nil {
		updates["cancel_at_period_end"] = *state.CancelAtPeriodEnd
	}
	if len(updates) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Model(&models.UserSubscription{}).
		Where("id = ?", subscriptionID).
		Updates(updates).Error
}

func (r *gormRepository) GetActiveSubscriptionByUser(ctx context.Context, userID string) (*models.UserSubscription, error) {
	var sub models.UserSubscription
	err := r.db.WithContext(ctx).
		Preload("Plan").
		Where("user_id = ? AND status = ?", userID, models.SubscriptionStatusActive).
		Order("updated_at DESC").
		First(&sub).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, err
	}
	return &sub, nil
}

func (r *gormRepository) CreateWebhookEventIfNotExists(ctx context.Context, event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error) {
	db := r.db.WithContext(ctx)
	tx := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "provider_event_id"},
		},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.BillingWebhookEvent
	if err := db.Where("provider = ? AND provider_event_id = ?", event.Provider, event.ProviderEventID).
		First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *gormRepository) MarkWebhookProcessed(ctx context.Context, id uint, processingError string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"processed_at":     &now,
		"processing_error": processingError,
	}
	return r.db.WithContext(ctx).Model(&models.BillingWebhookEvent{}).Where("id = ?", id).Updates(updates).Error
}
