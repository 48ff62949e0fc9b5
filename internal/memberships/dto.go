package memberships

import (
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LevelDTO is the transport shape for a membership level.
type LevelDTO struct {
	ID              uuid.UUID       `json:"id"`
	Name            string          `json:"name"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	MinPoints       int             `json:"min_points"`
	Color           string          `json:"color,omitempty"`
	Icon            string          `json:"icon,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

// LevelInput is the validated payload for creating a level.
type LevelInput struct {
	Name            string
	DiscountPercent decimal.Decimal
	MinPoints       int
	Color           string
	Icon            string
}

// LevelUpdate carries optional mutations; nil fields stay untouched.
type LevelUpdate struct {
	Name            *string
	DiscountPercent *decimal.Decimal
	MinPoints       *int
	Color           *string
	Icon            *string
}

func FromModel(level models.MembershipLevel) LevelDTO {
	return LevelDTO{
		ID:              level.ID,
		Name:            level.Name,
		DiscountPercent: level.DiscountPercent,
		MinPoints:       level.MinPoints,
		Color:           level.Color,
		Icon:            level.Icon,
		CreatedAt:       level.CreatedAt,
	}
}

func fromModels(levels []models.MembershipLevel) []LevelDTO {
	out := make([]LevelDTO, 0, len(levels))
	for _, level := range levels {
		out = append(out, FromModel(level))
	}
	return out
}

// DefaultLevels is the ladder seeded into an empty database.
func DefaultLevels() []LevelInput {
	return []LevelInput{
		{Name: "Bronze", DiscountPercent: decimal.Zero, MinPoints: 0, Color: "#cd7f32", Icon: "bronze"},
		{Name: "Silver", DiscountPercent: decimal.NewFromInt(3), MinPoints: 500, Color: "#c0c0c0", Icon: "silver"},
		{Name: "Gold", DiscountPercent: decimal.NewFromInt(5), MinPoints: 2000, Color: "#ffd700", Icon: "gold"},
		{Name: "Platinum", DiscountPercent: decimal.NewFromInt(8), MinPoints: 5000, Color: "#e5e4e2", Icon: "platinum"},
	}
}
