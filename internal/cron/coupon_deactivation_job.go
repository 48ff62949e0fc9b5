package cron

import (
	"context"
	"fmt"

	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const couponDeactivationJobName = "coupon-deactivation"

type endedCouponDeactivator interface {
	DeactivateEnded(ctx context.Context) (int64, error)
}

type CouponDeactivationJobParams struct {
	Logger  *logger.Logger
	Coupons endedCouponDeactivator
	Metrics affectedRecorder
}

// NewCouponDeactivationJob flips is_active off for coupons past valid_until so
// admin listings reflect what the validator already rejects.
func NewCouponDeactivationJob(params CouponDeactivationJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Coupons == nil {
		return nil, fmt.Errorf("coupon service required")
	}
	var rec affectedRecorder = noopAffected{}
	if params.Metrics != nil {
		rec = params.Metrics
	}
	return &couponDeactivationJob{logg: params.Logger, coupons: params.Coupons, metrics: rec}, nil
}

type couponDeactivationJob struct {
	logg    *logger.Logger
	coupons endedCouponDeactivator
	metrics affectedRecorder
}

func (j *couponDeactivationJob) Name() string { return couponDeactivationJobName }

func (j *couponDeactivationJob) Run(ctx context.Context) error {
	n, err := j.coupons.DeactivateEnded(ctx)
	if err != nil {
		return fmt.Errorf("deactivate ended coupons: %w", err)
	}
	j.metrics.AddAffected(couponDeactivationJobName, int(n))
	j.logg.Info(j.logg.WithField(ctx, "deactivated", n), "coupon deactivation complete")
	return nil
}
