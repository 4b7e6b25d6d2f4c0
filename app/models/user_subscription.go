package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	SubscriptionStatusActive   = "active"
	SubscriptionStatusCanceled = "canceled"
	SubscriptionStatusPastDue  = "past_due"
	SubscriptionStatusUnpaid   = "unpaid"
)

// UserSubscription is the locally reconciled mirror of a gateway subscription.
// (user_id, plan_id) is unique; PlatformSource carries the gateway subscription
// id and is the lookup key for update and delete events.
type UserSubscription struct {
	ID                 string            `gorm:"type:char(36);primaryKey" json:"id"`
	UserID             string            `gorm:"type:char(36);not null;index:ux_user_subscriptions_user_plan,unique,priority:1" json:"user_id"`
	PlanID             string            `gorm:"type:char(36);not null;index:ux_user_subscriptions_user_plan,unique,priority:2;index" json:"plan_id"`
	Status             string            `gorm:"type:varchar(16);not null;default:'active';index" json:"status"`
	CurrentPeriodStart time.Time         `gorm:"not null" json:"current_period_start"`
	CurrentPeriodEnd   time.Time         `gorm:"not null" json:"current_period_end"`
	CancelAtPeriodEnd  bool              `gorm:"not null;default:false" json:"cancel_at_period_end"`
	PlatformSource     string            `gorm:"type:varchar(191);not null;index" json:"platform_source"`
	Plan               *SubscriptionPlan `gorm:"foreignKey:PlanID" json:"plan,omitempty"`
	CreatedAt          time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}

func (s *UserSubscription) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}

// IsActive reports whether the subscription currently entitles the user.
func (s *UserSubscription) IsActive() bool {
	return s.Status == SubscriptionStatusActive
}
