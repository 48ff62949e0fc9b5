package memberships

import (
	"context"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository exposes membership level persistence.
type Repository struct {
	db *gorm.DB
}

// NewRepository binds the repo to the provided GORM connection.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{db: tx}
}

// List returns every level ordered by ascending threshold.
func (r *Repository) List(ctx context.Context) ([]models.MembershipLevel, error) {
	var levels []models.MembershipLevel
	if err := r.db.WithContext(ctx).Order("min_points ASC").Find(&levels).Error; err != nil {
		return nil, err
	}
	return levels, nil
}

// FindByID loads a single level.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.MembershipLevel, error) {
	var level models.MembershipLevel
	if err := r.db.WithContext(ctx).First(&level, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &level, nil
}

// CountAtOrBelow reports how many levels have MinPoints <= threshold.
func (r *Repository) CountAtOrBelow(ctx context.Context, threshold int) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.MembershipLevel{}).
		Where("min_points <= ?", threshold).
		Count(&count).Error
	return count, err
}

func (r *Repository) Create(ctx context.Context, level *models.MembershipLevel) error {
	return r.db.WithContext(ctx).Create(level).Error
}

func (r *Repository) Update(ctx context.Context, level *models.MembershipLevel) error {
	return r.db.WithContext(ctx).Save(level).Error
}

func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&models.MembershipLevel{}, "id = ?", id).Error
}

// Rebalance points every user at the level their points resolve to. levels
// must be sorted by ascending MinPoints; users below the first threshold land
// on the first level.
func (r *Repository) Rebalance(ctx context.Context, levels []models.MembershipLevel) error {
	if len(levels) == 0 {
		return nil
	}
	conn := r.db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true})
	for i, level := range levels {
		query := conn.Model(&models.User{})
		if i > 0 {
			query = query.Where("points >= ?", level.MinPoints)
		}
		if i < len(levels)-1 {
			query = query.Where("points < ?", levels[i+1].MinPoints)
		}
		if err := query.Update("membership_level_id", level.ID).Error; err != nil {
			return err
		}
	}
	return nil
}
