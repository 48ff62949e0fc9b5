package models

import (
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// User is the shopper/admin profile. Points and MembershipLevelID move together.
type User struct {
	ID                uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	Email             string          `gorm:"column:email;type:text;not null;uniqueIndex"`
	PasswordHash      string          `gorm:"column:password_hash;not null"`
	DisplayName       string          `gorm:"column:display_name;not null"`
	Role              enums.UserRole  `gorm:"column:role;type:text;not null"`
	MembershipLevelID *uuid.UUID      `gorm:"column:membership_level_id;type:uuid"`
	Points            int             `gorm:"column:points;not null;default:0"`
	TotalSpent        decimal.Decimal `gorm:"column:total_spent;type:numeric(12,2);not null"`
	LastLoginAt       *time.Time      `gorm:"column:last_login_at"`
	CreatedAt         time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (u *User) BeforeCreate(*gorm.DB) error {
	assignID(&u.ID)
	if u.Role == "" {
		u.Role = enums.UserRoleUser
	}
	return nil
}
