package coupons

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

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

type validationRecorder interface {
	CouponValidation(outcome string)
}

// Service covers previewing, claiming, consuming and administering coupons.
type Service interface {
	Validate(ctx context.Context, userID uuid.UUID, code string, subtotal decimal.Decimal) (*ValidationDTO, error)
	Evaluate(ctx context.Context, code string, subtotal decimal.Decimal) (ValidationResult, error)
	Claim(ctx context.Context, userID uuid.UUID, code string) (*ClaimDTO, error)
	ListClaimed(ctx context.Context, userID uuid.UUID) ([]ClaimDTO, error)
	Consume(ctx context.Context, tx *gorm.DB, couponID, userID, orderID uuid.UUID) (*models.Coupon, error)
	Release(ctx context.Context, tx *gorm.DB, couponID, userID, orderID uuid.UUID) error
	DeactivateEnded(ctx context.Context) (int64, error)

	Create(ctx context.Context, input CouponInput) (*CouponDTO, error)
	Replace(ctx context.Context, id uuid.UUID, input CouponInput) (*CouponDTO, error)
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
	Delete(ctx context.Context, id uuid.UUID) error
	Get(ctx context.Context, id uuid.UUID) (*CouponDTO, error)
	List(ctx context.Context, activeOnly bool, params pagination.Params) (pagination.Page[CouponDTO], error)
}

// ServiceParams bundles the dependencies required to build a coupon service.
type ServiceParams struct {
	Repo    *Repository
	Limiter *Limiter
	Metrics validationRecorder
	Logger  *logger.Logger
	Now     func() time.Time
}

type service struct {
	repo    *Repository
	limiter *Limiter
	metrics validationRecorder
	logg    *logger.Logger
	now     func() time.Time
}

// NewService constructs the coupon service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("coupon repository required")
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &service{
		repo:    params.Repo,
		limiter: params.Limiter,
		metrics: params.Metrics,
		logg:    params.Logger,
		now:     now,
	}, nil
}

// Validate previews a code for the cart page. It never writes.
func (s *service) Validate(ctx context.Context, userID uuid.UUID, code string, subtotal decimal.Decimal) (*ValidationDTO, error) {
	if !s.limiter.Allow(userID) {
		return nil, pkgerrors.New(pkgerrors.CodeRateLimit, "too many coupon checks, slow down")
	}
	if subtotal.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "subtotal must be >= 0")
	}
	result, err := s.Evaluate(ctx, code, subtotal)
	if err != nil {
		return nil, err
	}
	dto := validationFromResult(NormalizeCode(code), result)
	return &dto, nil
}

// Evaluate loads the coupon behind code and runs the validator against subtotal.
func (s *service) Evaluate(ctx context.Context, code string, subtotal decimal.Decimal) (ValidationResult, error) {
	normalized := NormalizeCode(code)
	if normalized == "" {
		s.record(OutcomeNotFound)
		return NotFound(), nil
	}
	coupon, err := s.repo.FindByCode(ctx, normalized)
	if err != nil {
		if db.IsNotFound(err) {
			if s.logg != nil {
				s.logg.Warn(s.logg.WithField(ctx, "coupon_code", normalized), "coupon not found")
			}
			s.record(OutcomeNotFound)
			return NotFound(), nil
		}
		return ValidationResult{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load coupon")
	}
	result := Validate(coupon, subtotal, s.now())
	s.record(result.Outcome)
	return result, nil
}

// Claim adds the coupon to the user's wallet. Holding an unused claim on the
// same coupon is a conflict.
func (s *service) Claim(ctx context.Context, userID uuid.UUID, code string) (*ClaimDTO, error) {
	normalized := NormalizeCode(code)
	coupon, err := s.repo.FindByCode(ctx, normalized)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "coupon not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load coupon")
	}
	if err := claimable(coupon, s.now()); err != nil {
		return nil, err
	}

	held, err := s.repo.HasUnusedClaim(ctx, userID, coupon.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check existing claim")
	}
	if held {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "coupon already claimed")
	}

	claim := &models.UserCoupon{UserID: userID, CouponID: coupon.ID, ClaimedAt: s.now(), Used: false}
	if err := s.repo.CreateClaim(ctx, claim); err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "coupon already claimed")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create claim")
	}
	claim.Coupon = coupon
	dto := claimFromModel(*claim)
	return &dto, nil
}

func (s *service) ListClaimed(ctx context.Context, userID uuid.UUID) ([]ClaimDTO, error) {
	rows, err := s.repo.ListClaims(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list claims")
	}
	out := make([]ClaimDTO, 0, len(rows))
	for _, row := range rows {
		out = append(out, claimFromModel(row))
	}
	return out, nil
}

// Consume takes one use of the coupon inside the checkout transaction and
// flags the user's claim, when they hold one, against the order.
func (s *service) Consume(ctx context.Context, tx *gorm.DB, couponID, userID, orderID uuid.UUID) (*models.Coupon, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	repo := s.repo.WithTx(tx)
	ok, err := repo.IncrementUsage(ctx, couponID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "consume coupon")
	}
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "usage limit reached")
	}
	if _, err := repo.MarkClaimUsed(ctx, userID, couponID, orderID, s.now()); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "flag claim used")
	}
	coupon, err := repo.FindByID(ctx, couponID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload coupon")
	}
	return coupon, nil
}

// Release hands a use back when the order that consumed it is cancelled.
func (s *service) Release(ctx context.Context, tx *gorm.DB, couponID, userID, orderID uuid.UUID) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	repo := s.repo.WithTx(tx)
	if _, err := repo.DecrementUsage(ctx, couponID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "release coupon")
	}
	held, err := repo.HasUnusedClaim(ctx, userID, couponID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check existing claim")
	}
	if held {
		return nil
	}
	if err := repo.UnmarkClaim(ctx, orderID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reopen claim")
	}
	return nil
}

func (s *service) DeactivateEnded(ctx context.Context) (int64, error) {
	n, err := s.repo.DeactivateEnded(ctx, s.now())
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "deactivate ended coupons")
	}
	return n, nil
}

func (s *service) Create(ctx context.Context, input CouponInput) (*CouponDTO, error) {
	var coupon models.Coupon
	input.apply(&coupon)
	if err := validateCoupon(&coupon); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, &coupon); err != nil {
		return nil, mapWriteError(err)
	}
	dto := FromModel(coupon)
	return &dto, nil
}

// Replace overwrites every editable field. used_count is preserved and a new
// usage limit may not fall below it.
func (s *service) Replace(ctx context.Context, id uuid.UUID, input CouponInput) (*CouponDTO, error) {
	coupon, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err)
	}
	input.apply(coupon)
	if err := validateCoupon(coupon); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, coupon); err != nil {
		return nil, mapWriteError(err)
	}
	dto := FromModel(*coupon)
	return &dto, nil
}

func (s *service) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	found, err := s.repo.SetActive(ctx, id, active)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update coupon")
	}
	if !found {
		return pkgerrors.New(pkgerrors.CodeNotFound, "coupon not found")
	}
	return nil
}

func (s *service) Delete(ctx context.Context, id uuid.UUID) error {
	found, err := s.repo.Delete(ctx, id)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete coupon")
	}
	if !found {
		return pkgerrors.New(pkgerrors.CodeNotFound, "coupon not found")
	}
	return nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*CouponDTO, error) {
	coupon, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err)
	}
	dto := FromModel(*coupon)
	return &dto, nil
}

func (s *service) List(ctx context.Context, activeOnly bool, params pagination.Params) (pagination.Page[CouponDTO], error) {
	rows, err := s.repo.List(ctx, activeOnly, params)
	if err != nil {
		return pagination.Page[CouponDTO]{}, listError(err)
	}
	dtos := make([]CouponDTO, 0, len(rows))
	for _, row := range rows {
		dtos = append(dtos, FromModel(row))
	}
	return pagination.Build(dtos, params.Limit, func(c CouponDTO) pagination.Cursor {
		return pagination.Cursor{CreatedAt: c.CreatedAt, ID: c.ID}
	}), nil
}

func (s *service) record(outcome Outcome) {
	if s.metrics != nil {
		s.metrics.CouponValidation(string(outcome))
	}
}

// claimable applies the subtotal-independent checks of the validator.
func claimable(coupon *models.Coupon, now time.Time) error {
	result := Validate(coupon, decimal.Zero, now)
	if result.Valid || result.Outcome == OutcomeMinPurchase {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeValidation, result.Message)
}

func validateCoupon(c *models.Coupon) error {
	switch {
	case c.Code == "":
		return pkgerrors.New(pkgerrors.CodeValidation, "code is required")
	case strings.TrimSpace(c.Name) == "":
		return pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	case !c.DiscountType.IsValid():
		return pkgerrors.Newf(pkgerrors.CodeValidation, "invalid discount type %q", c.DiscountType)
	case !c.DiscountValue.IsPositive():
		return pkgerrors.New(pkgerrors.CodeValidation, "discount_value must be greater than zero")
	case c.DiscountType == enums.DiscountTypePercentage && c.DiscountValue.GreaterThan(hundred):
		return pkgerrors.New(pkgerrors.CodeValidation, "percentage discount cannot exceed 100")
	case c.MinPurchase != nil && c.MinPurchase.IsNegative():
		return pkgerrors.New(pkgerrors.CodeValidation, "min_purchase must be >= 0")
	case c.MaxDiscount != nil && !c.MaxDiscount.IsPositive():
		return pkgerrors.New(pkgerrors.CodeValidation, "max_discount must be greater than zero")
	case !c.ValidFrom.Before(c.ValidUntil):
		return pkgerrors.New(pkgerrors.CodeValidation, "valid_from must be before valid_until")
	case c.UsageLimit != nil && *c.UsageLimit < 0:
		return pkgerrors.New(pkgerrors.CodeValidation, "usage_limit must be >= 0")
	case c.UsageLimit != nil && *c.UsageLimit < c.UsedCount:
		return pkgerrors.Newf(pkgerrors.CodeValidation, "usage_limit cannot be below used_count (%d)", c.UsedCount)
	}
	if c.DiscountType == enums.DiscountTypeFixed {
		c.MaxDiscount = nil
	}
	return nil
}

func lookupError(err error) error {
	if db.IsNotFound(err) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "coupon not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load coupon")
}

func mapWriteError(err error) error {
	if db.IsUniqueViolation(err, "") {
		return pkgerrors.New(pkgerrors.CodeConflict, "coupon code already exists")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save coupon")
}

func listError(err error) error {
	if errors.Is(err, pagination.ErrInvalidCursor) {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list coupons")
}
