package models

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	BillingIntervalMonth = "month"
	BillingIntervalYear  = "year"
)

// SubscriptionPlan is a read-only catalog entry. Prices are stored in major
// units (9.99) and converted to minor units when talking to the gateway.
type SubscriptionPlan struct {
	ID                   string          `gorm:"type:char(36);primaryKey" json:"id"`
	Name                 string          `gorm:"type:varchar(150);not null" json:"name"`
	Price                decimal.Decimal `gorm:"type:decimal(10,2);not null;index" json:"price"`
	Currency             string          `gorm:"type:varchar(3);not null;default:'USD'" json:"currency"`
	Interval             string          `gorm:"column:billing_interval;type:varchar(8);not null;default:'month'" json:"interval"`
	PlatformAvailability datatypes.JSON  `json:"platform_availability"`
	Features             datatypes.JSON  `json:"features"`
	CreatedAt            time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (p *SubscriptionPlan) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

// Platforms decodes the platform availability list. Malformed JSON yields nil.
func (p *SubscriptionPlan) Platforms() []string {
	return decodeStringList(p.PlatformAvailability)
}

// FeatureList decodes the feature list. Malformed JSON yields nil.
func (p *SubscriptionPlan) FeatureList() []string {
	return decodeStringList(p.Features)
}

// AvailableOn reports whether the plan can be bought on the given platform.
func (p *SubscriptionPlan) AvailableOn(platform string) bool {
	want := strings.ToLower(strings.TrimSpace(platform))
	for _, pl := range p.Platforms() {
		if strings.ToLower(strings.TrimSpace(pl)) == want {
			return true
		}
	}
	return false
}

// UnitAmount returns the price in minor currency units (cents).
func (p *SubscriptionPlan) UnitAmount() int64 {
	return p.Price.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

// NewStringList encodes a list for the JSON columns of the plan table.
func NewStringList(values ...string) datatypes.JSON {
	if values == nil {
		values = []string{}
	}
	raw, _ := json.Marshal(values)
	return datatypes.JSON(raw)
}

func decodeStringList(raw datatypes.JSON) []string {
	if len(raw) == 0 {
		return nil
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}
