package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// MembershipLevel is a loyalty tier reached at MinPoints.
type MembershipLevel struct {
	ID              uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	Name            string          `gorm:"column:name;not null"`
	DiscountPercent decimal.Decimal `gorm:"column:discount_percent;type:numeric(5,2);not null"`
	MinPoints       int             `gorm:"column:min_points;not null;uniqueIndex"`
	Color           string          `gorm:"column:color"`
	Icon            string          `gorm:"column:icon"`
	CreatedAt       time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (m *MembershipLevel) BeforeCreate(*gorm.DB) error {
	assignID(&m.ID)
	return nil
}
