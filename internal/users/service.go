package users

import (
	"context"
	"errors"
	"fmt"

	"github.com/angelmondragon/storefront-backend/internal/memberships"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type tierResolver interface {
	ResolveTx(ctx context.Context, tx *gorm.DB, points int) (*models.MembershipLevel, error)
	LowestTx(ctx context.Context, tx *gorm.DB) (*models.MembershipLevel, error)
}

// Service manages profiles and their loyalty balance.
type Service interface {
	Create(ctx context.Context, input CreateUserDTO) (*models.User, error)
	Get(ctx context.Context, id uuid.UUID) (*UserDTO, error)
	CurrentRole(ctx context.Context, id uuid.UUID) (enums.UserRole, error)
	List(ctx context.Context, params pagination.Params) (pagination.Page[UserDTO], error)
	SetRole(ctx context.Context, id uuid.UUID, role enums.UserRole) (*UserDTO, error)
	SetPoints(ctx context.Context, id uuid.UUID, points int) (*UserDTO, error)
	AddPoints(ctx context.Context, tx *gorm.DB, id uuid.UUID, delta int, spent decimal.Decimal) (*models.User, error)
	DeleteProfile(ctx context.Context, id uuid.UUID) error
}

type service struct {
	repo  *Repository
	tx    txRunner
	tiers tierResolver
	logg  *logger.Logger
}

// NewService wires the users service.
func NewService(repo *Repository, tx txRunner, tiers tierResolver, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("user repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if tiers == nil {
		return nil, fmt.Errorf("tier resolver required")
	}
	return &service{repo: repo, tx: tx, tiers: tiers, logg: logg}, nil
}

// Create inserts a profile placed on the lowest membership level.
func (s *service) Create(ctx context.Context, input CreateUserDTO) (*models.User, error) {
	user := input.ToModel()
	if !user.Role.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid role %q", user.Role)
	}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		level, err := s.tiers.LowestTx(ctx, tx)
		switch {
		case errors.Is(err, memberships.ErrNoLevels):
			if s.logg != nil {
				s.logg.Warn(ctx, "no membership levels configured; profile created without tier")
			}
		case err != nil:
			return err
		default:
			user.MembershipLevelID = &level.ID
		}
		if err := s.repo.WithTx(tx).Create(ctx, user); err != nil {
			if db.IsUniqueViolation(err, "") {
				return pkgerrors.New(pkgerrors.CodeConflict, "email already registered")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create user")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*UserDTO, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, s.lookupError(ctx, id, err)
	}
	return FromModel(user), nil
}

// CurrentRole reads the role stored on the profile. A missing profile has no
// role and is not an error.
func (s *service) CurrentRole(ctx context.Context, id uuid.UUID) (enums.UserRole, error) {
	user, err := s.repo.FindByID(ctx, id)
	if db.IsNotFound(err) {
		return "", nil
	}
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user role")
	}
	return user.Role, nil
}

func (s *service) List(ctx context.Context, params pagination.Params) (pagination.Page[UserDTO], error) {
	rows, err := s.repo.List(ctx, params)
	if err != nil {
		return pagination.Page[UserDTO]{}, listError(err)
	}
	dtos := make([]UserDTO, 0, len(rows))
	for i := range rows {
		dtos = append(dtos, *FromModel(&rows[i]))
	}
	return pagination.Build(dtos, params.Limit, func(u UserDTO) pagination.Cursor {
		return pagination.Cursor{CreatedAt: u.CreatedAt, ID: u.ID}
	}), nil
}

func (s *service) SetRole(ctx context.Context, id uuid.UUID, role enums.UserRole) (*UserDTO, error) {
	if !role.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid role %q", role)
	}
	found, err := s.repo.UpdateRole(ctx, id, role)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update role")
	}
	if !found {
		return nil, s.lookupError(ctx, id, gorm.ErrRecordNotFound)
	}
	return s.Get(ctx, id)
}

// SetPoints overwrites the balance and re-resolves the tier in one transaction.
func (s *service) SetPoints(ctx context.Context, id uuid.UUID, points int) (*UserDTO, error) {
	if points < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "points must be >= 0")
	}
	var updated *models.User
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		user, err := repo.FindByIDForUpdate(ctx, id)
		if err != nil {
			return s.lookupError(ctx, id, err)
		}
		updated, err = s.writeLoyalty(ctx, tx, user, points, user.TotalSpent)
		return err
	})
	if err != nil {
		return nil, err
	}
	return FromModel(updated), nil
}

// AddPoints applies a balance delta inside the caller's transaction. Neither
// points nor total spend drop below zero.
func (s *service) AddPoints(ctx context.Context, tx *gorm.DB, id uuid.UUID, delta int, spent decimal.Decimal) (*models.User, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	user, err := s.repo.WithTx(tx).FindByIDForUpdate(ctx, id)
	if err != nil {
		return nil, s.lookupError(ctx, id, err)
	}
	points := user.Points + delta
	if points < 0 {
		points = 0
	}
	total := user.TotalSpent.Add(spent)
	if total.IsNegative() {
		total = decimal.Zero
	}
	return s.writeLoyalty(ctx, tx, user, points, total)
}

func (s *service) writeLoyalty(ctx context.Context, tx *gorm.DB, user *models.User, points int, spent decimal.Decimal) (*models.User, error) {
	var levelID *uuid.UUID
	level, err := s.tiers.ResolveTx(ctx, tx, points)
	switch {
	case errors.Is(err, memberships.ErrNoLevels):
	case err != nil:
		return nil, err
	default:
		levelID = &level.ID
	}
	if err := s.repo.WithTx(tx).UpdateLoyalty(ctx, user.ID, points, spent, levelID); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update loyalty")
	}
	user.Points = points
	user.TotalSpent = spent
	user.MembershipLevelID = levelID
	return user, nil
}

func (s *service) DeleteProfile(ctx context.Context, id uuid.UUID) error {
	found, err := s.repo.Delete(ctx, id)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete user")
	}
	if !found {
		return s.lookupError(ctx, id, gorm.ErrRecordNotFound)
	}
	return nil
}

func (s *service) lookupError(ctx context.Context, id uuid.UUID, err error) error {
	if db.IsNotFound(err) {
		if s.logg != nil {
			s.logg.Warn(s.logg.WithUserID(ctx, id.String()), "user not found")
		}
		return pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user")
}

func listError(err error) error {
	if errors.Is(err, pagination.ErrInvalidCursor) {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list users")
}
