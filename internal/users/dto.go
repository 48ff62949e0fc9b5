package users

import (
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// UserDTO is the transport shape that omits sensitive credentials.
type UserDTO struct {
	ID                uuid.UUID       `json:"id"`
	Email             string          `json:"email"`
	DisplayName       string          `json:"display_name"`
	Role              enums.UserRole  `json:"role"`
	MembershipLevelID *uuid.UUID      `json:"membership_level_id,omitempty"`
	Points            int             `json:"points"`
	TotalSpent        decimal.Decimal `json:"total_spent"`
	LastLoginAt       *time.Time      `json:"last_login_at,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// CreateUserDTO holds the data required to persist a new profile.
type CreateUserDTO struct {
	Email        string
	PasswordHash string
	DisplayName  string
	Role         enums.UserRole
}

// ToModel converts the DTO into a GORM model.
func (c CreateUserDTO) ToModel() *models.User {
	role := c.Role
	if role == "" {
		role = enums.UserRoleUser
	}
	return &models.User{
		Email:        c.Email,
		PasswordHash: c.PasswordHash,
		DisplayName:  c.DisplayName,
		Role:         role,
		TotalSpent:   decimal.Zero,
	}
}

func FromModel(u *models.User) *UserDTO {
	if u == nil {
		return nil
	}
	return &UserDTO{
		ID:                u.ID,
		Email:             u.Email,
		DisplayName:       u.DisplayName,
		Role:              u.Role,
		MembershipLevelID: u.MembershipLevelID,
		Points:            u.Points,
		TotalSpent:        u.TotalSpent,
		LastLoginAt:       u.LastLoginAt,
		CreatedAt:         u.CreatedAt,
		UpdatedAt:         u.UpdatedAt,
	}
}
