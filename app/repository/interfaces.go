package repository

import (
	"context"

	"github.com/ManuelReschke/subscription-engine/app/models"
	"gorm.io/gorm"
)

// UserRepository defines the interface for user-related database operations
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	Count(ctx context.Context) (int64, error)
}

// PlanRepository defines the interface for the subscription plan catalog
type PlanRepository interface {
	ListPlans(ctx context.Context) ([]models.SubscriptionPlan, error)
	GetByID(ctx context.Context, id string) (*models.SubscriptionPlan, error)
	UpsertByName(ctx context.Context, plan *models.SubscriptionPlan) (bool, error)
	Count(ctx context.Context) (int64, error)
}

// Repositories struct holds all repository instances
type Repositories struct {
	User UserRepository
	Plan PlanRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		User: NewUserRepository(db),
		Plan: NewPlanRepository(db),
	}
}
