package coupons

import (
	"context"
	"errors"
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository persists coupons and the claims users hold on them.
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

// FindByCode looks up an already normalized code.
func (r *Repository) FindByCode(ctx context.Context, code string) (*models.Coupon, error) {
	var coupon models.Coupon
	if err := r.db.WithContext(ctx).Where("code = ?", code).First(&coupon).Error; err != nil {
		return nil, err
	}
	return &coupon, nil
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Coupon, error) {
	var coupon models.Coupon
	if err := r.db.WithContext(ctx).First(&coupon, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &coupon, nil
}

func (r *Repository) Create(ctx context.Context, coupon *models.Coupon) error {
	return r.db.WithContext(ctx).Create(coupon).Error
}

func (r *Repository) Update(ctx context.Context, coupon *models.Coupon) error {
	return r.db.WithContext(ctx).Save(coupon).Error
}

func (r *Repository) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).Delete(&models.Coupon{}, "id = ?", id)
	return res.RowsAffected > 0, res.Error
}

// SetActive flips the active flag; it reports false when no row matched.
func (r *Repository) SetActive(ctx context.Context, id uuid.UUID, active bool) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Coupon{}).
		Where("id = ?", id).
		Update("is_active", active)
	return res.RowsAffected > 0, res.Error
}

// List pages coupons newest first, optionally active only.
func (r *Repository) List(ctx context.Context, activeOnly bool, params pagination.Params) ([]models.Coupon, error) {
	query := r.db.WithContext(ctx).Model(&models.Coupon{})
	if activeOnly {
		query = query.Where("is_active = ?", true)
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, err
	}
	if cursor != nil {
		query = query.Where("(created_at < ?) OR (created_at = ? AND id < ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}
	var rows []models.Coupon
	err = query.
		Order("created_at DESC").
		Order("id DESC").
		Limit(pagination.LimitWithBuffer(params.Limit)).
		Find(&rows).Error
	return rows, err
}

// IncrementUsage consumes one use while the limit allows it. It reports false
// when the limit was already reached.
func (r *Repository) IncrementUsage(ctx context.Context, id uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Coupon{}).
		Where("id = ? AND (usage_limit IS NULL OR used_count < usage_limit)", id).
		UpdateColumn("used_count", gorm.Expr("used_count + 1"))
	return res.RowsAffected == 1, res.Error
}

// DecrementUsage gives one use back without going below zero.
func (r *Repository) DecrementUsage(ctx context.Context, id uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Coupon{}).
		Where("id = ? AND used_count > 0", id).
		UpdateColumn("used_count", gorm.Expr("used_count - 1"))
	return res.RowsAffected == 1, res.Error
}

// DeactivateEnded turns off active coupons whose window closed before now.
func (r *Repository) DeactivateEnded(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Coupon{}).
		Where("is_active = ? AND valid_until < ?", true, now).
		Update("is_active", false)
	return res.RowsAffected, res.Error
}

// HasUnusedClaim reports whether the user holds an unused claim on the coupon.
func (r *Repository) HasUnusedClaim(ctx context.Context, userID, couponID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.UserCoupon{}).
		Where("user_id = ? AND coupon_id = ? AND used = ?", userID, couponID, false).
		Count(&count).Error
	return count > 0, err
}

func (r *Repository) CreateClaim(ctx context.Context, claim *models.UserCoupon) error {
	return r.db.WithContext(ctx).Create(claim).Error
}

// ListClaims returns the user's claims with their coupons, newest first.
func (r *Repository) ListClaims(ctx context.Context, userID uuid.UUID) ([]models.UserCoupon, error) {
	var rows []models.UserCoupon
	err := r.db.WithContext(ctx).
		Preload("Coupon").
		Where("user_id = ?", userID).
		Order("claimed_at DESC").
		Find(&rows).Error
	return rows, err
}

// MarkClaimUsed flags the user's oldest unused claim on the coupon.
func (r *Repository) MarkClaimUsed(ctx context.Context, userID, couponID, orderID uuid.UUID, at time.Time) (bool, error) {
	var claim models.UserCoupon
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND coupon_id = ? AND used = ?", userID, couponID, false).
		Order("claimed_at ASC").
		First(&claim).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	res := r.db.WithContext(ctx).
		Model(&models.UserCoupon{}).
		Where("id = ? AND used = ?", claim.ID, false).
		Updates(map[string]any{"used": true, "used_at": at, "order_id": orderID})
	return res.RowsAffected == 1, res.Error
}

// UnmarkClaim reopens the claim consumed by orderID, if any.
func (r *Repository) UnmarkClaim(ctx context.Context, orderID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.UserCoupon{}).
		Where("order_id = ?", orderID).
		Updates(map[string]any{"used": false, "used_at": nil, "order_id": nil}).Error
}
