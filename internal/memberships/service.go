package memberships

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var hundred = decimal.NewFromInt(100)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service manages the loyalty ladder and resolves tiers for point balances.
type Service interface {
	List(ctx context.Context) ([]LevelDTO, error)
	Get(ctx context.Context, id uuid.UUID) (*LevelDTO, error)
	Create(ctx context.Context, input LevelInput) (*LevelDTO, error)
	Update(ctx context.Context, id uuid.UUID, input LevelUpdate) (*LevelDTO, error)
	Delete(ctx context.Context, id uuid.UUID) error
	EnsureDefaults(ctx context.Context) error
	ResolveTx(ctx context.Context, tx *gorm.DB, points int) (*models.MembershipLevel, error)
	LowestTx(ctx context.Context, tx *gorm.DB) (*models.MembershipLevel, error)
}

type service struct {
	repo *Repository
	tx   txRunner
	logg *logger.Logger
}

// NewService wires the membership service.
func NewService(repo *Repository, tx txRunner, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("membership repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &service{repo: repo, tx: tx, logg: logg}, nil
}

func (s *service) List(ctx context.Context) ([]LevelDTO, error) {
	levels, err := s.repo.List(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list membership levels")
	}
	return fromModels(levels), nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*LevelDTO, error) {
	level, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, mapLookupError(err)
	}
	dto := FromModel(*level)
	return &dto, nil
}

func (s *service) Create(ctx context.Context, input LevelInput) (*LevelDTO, error) {
	level := models.MembershipLevel{
		Name:            strings.TrimSpace(input.Name),
		DiscountPercent: input.DiscountPercent,
		MinPoints:       input.MinPoints,
		Color:           input.Color,
		Icon:            input.Icon,
	}
	if err := validateLevel(level); err != nil {
		return nil, err
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.Create(ctx, &level); err != nil {
			return mapWriteError(err)
		}
		return s.rebalance(ctx, repo)
	})
	if err != nil {
		return nil, err
	}
	dto := FromModel(level)
	return &dto, nil
}

func (s *service) Update(ctx context.Context, id uuid.UUID, input LevelUpdate) (*LevelDTO, error) {
	var updated models.MembershipLevel
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		level, err := repo.FindByID(ctx, id)
		if err != nil {
			return mapLookupError(err)
		}
		if input.MinPoints != nil && level.MinPoints == 0 && *input.MinPoints != 0 {
			return pkgerrors.New(pkgerrors.CodeConflict, "the base level must keep a zero threshold")
		}
		applyUpdate(level, input)
		if err := validateLevel(*level); err != nil {
			return err
		}
		if err := repo.Update(ctx, level); err != nil {
			return mapWriteError(err)
		}
		updated = *level
		if input.MinPoints == nil {
			return nil
		}
		return s.rebalance(ctx, repo)
	})
	if err != nil {
		return nil, err
	}
	dto := FromModel(updated)
	return &dto, nil
}

// Delete removes a level and moves its members to the tier their points now
// resolve to. The zero-threshold level cannot be deleted.
func (s *service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		level, err := repo.FindByID(ctx, id)
		if err != nil {
			return mapLookupError(err)
		}
		if level.MinPoints == 0 {
			return pkgerrors.New(pkgerrors.CodeConflict, "cannot delete the base membership level")
		}
		if err := repo.Delete(ctx, id); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete membership level")
		}
		return s.rebalance(ctx, repo)
	})
}

// EnsureDefaults seeds the default ladder when no zero-threshold level exists.
func (s *service) EnsureDefaults(ctx context.Context) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		count, err := repo.CountAtOrBelow(ctx, 0)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count base levels")
		}
		if count > 0 {
			return nil
		}

		existing, err := repo.List(ctx)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list membership levels")
		}
		taken := make(map[int]struct{}, len(existing))
		for _, level := range existing {
			taken[level.MinPoints] = struct{}{}
		}

		for _, input := range DefaultLevels() {
			if _, ok := taken[input.MinPoints]; ok {
				continue
			}
			level := models.MembershipLevel{
				Name:            input.Name,
				DiscountPercent: input.DiscountPercent,
				MinPoints:       input.MinPoints,
				Color:           input.Color,
				Icon:            input.Icon,
			}
			if err := repo.Create(ctx, &level); err != nil {
				return mapWriteError(err)
			}
		}
		if s.logg != nil {
			s.logg.Info(ctx, "default membership levels seeded")
		}
		return s.rebalance(ctx, repo)
	})
}

func (s *service) ResolveTx(ctx context.Context, tx *gorm.DB, points int) (*models.MembershipLevel, error) {
	levels, err := s.repo.WithTx(tx).List(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list membership levels")
	}
	level, err := ResolveTier(levels, points)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "resolve membership tier")
	}
	return level, nil
}

func (s *service) LowestTx(ctx context.Context, tx *gorm.DB) (*models.MembershipLevel, error) {
	levels, err := s.repo.WithTx(tx).List(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list membership levels")
	}
	level, err := Lowest(levels)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "resolve base membership level")
	}
	return level, nil
}

func (s *service) rebalance(ctx context.Context, repo *Repository) error {
	levels, err := repo.List(ctx)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list membership levels")
	}
	if err := repo.Rebalance(ctx, levels); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rebalance member tiers")
	}
	return nil
}

func applyUpdate(level *models.MembershipLevel, input LevelUpdate) {
	if input.Name != nil {
		level.Name = strings.TrimSpace(*input.Name)
	}
	if input.DiscountPercent != nil {
		level.DiscountPercent = *input.DiscountPercent
	}
	if input.MinPoints != nil {
		level.MinPoints = *input.MinPoints
	}
	if input.Color != nil {
		level.Color = *input.Color
	}
	if input.Icon != nil {
		level.Icon = *input.Icon
	}
}

func validateLevel(level models.MembershipLevel) error {
	if level.Name == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	}
	if level.MinPoints < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "min_points must be >= 0")
	}
	if level.DiscountPercent.IsNegative() || level.DiscountPercent.GreaterThan(hundred) {
		return pkgerrors.New(pkgerrors.CodeValidation, "discount_percent must be between 0 and 100")
	}
	return nil
}

func mapLookupError(err error) error {
	if db.IsNotFound(err) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "membership level not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load membership level")
}

func mapWriteError(err error) error {
	var typed *pkgerrors.Error
	if errors.As(err, &typed) {
		return err
	}
	if db.IsUniqueViolation(err, "") {
		return pkgerrors.New(pkgerrors.CodeConflict, "a level with this threshold already exists")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save membership level")
}
