package models

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	PLATFORM_MOBILE = "mobile"
	PLATFORM_WEB    = "web"
)

// User is the identity root. Registration and credentials live in the auth
// service; this service only reads identity and maintains the billing projection
// (SubscriptionActive, StripeCustomerID).
type User struct {
	ID                 string         `gorm:"type:char(36);primaryKey" json:"id"`
	Email              string         `gorm:"uniqueIndex;type:varchar(200)" json:"email" validate:"required,email,max=200"`
	Name               string         `gorm:"type:varchar(150);default:''" json:"name" validate:"max=150"`
	Platform           string         `gorm:"type:varchar(10);default:'mobile'" json:"platform" validate:"omitempty,oneof=mobile web"`
	SubscriptionActive bool           `gorm:"not null;default:false" json:"is_subscription_active"`
	StripeCustomerID   *string        `gorm:"type:varchar(191);default:null;uniqueIndex" json:"-"`
	CreatedAt          time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt          gorm.DeletedAt `gorm:"index" json:"-"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}

func (u *User) Validate() error {
	v := validator.New()

	return v.Struct(u)
}

// HasStripeCustomer reports whether the gateway already assigned a customer id.
func (u *User) HasStripeCustomer() bool {
	return u.StripeCustomerID != nil && strings.TrimSpace(*u.StripeCustomerID) != ""
}

// CustomerID returns the gateway customer id or an empty string.
func (u *User) CustomerID() string {
	if !u.HasStripeCustomer() {
		return ""
	}
	return strings.TrimSpace(*u.StripeCustomerID)
}
