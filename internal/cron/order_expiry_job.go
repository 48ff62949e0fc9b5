package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const (
	orderExpiryJobName     = "pending-order-expiry"
	defaultPendingOrderTTL = 72 * time.Hour
)

type pendingExpirer interface {
	ExpirePending(ctx context.Context, olderThan time.Duration) (int, error)
}

// OrderExpiryJobParams configure the pending order sweeper.
type OrderExpiryJobParams struct {
	Logger  *logger.Logger
	Orders  pendingExpirer
	TTL     time.Duration
	Metrics affectedRecorder
}

// NewOrderExpiryJob builds the job that cancels orders left pending past TTL.
// Cancellation restores stock and releases coupons through the orders service.
func NewOrderExpiryJob(params OrderExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders service required")
	}
	ttl := params.TTL
	if ttl <= 0 {
		ttl = defaultPendingOrderTTL
	}
	var rec affectedRecorder = noopAffected{}
	if params.Metrics != nil {
		rec = params.Metrics
	}
	return &orderExpiryJob{
		logg:    params.Logger,
		orders:  params.Orders,
		ttl:     ttl,
		metrics: rec,
	}, nil
}

type orderExpiryJob struct {
	logg    *logger.Logger
	orders  pendingExpirer
	ttl     time.Duration
	metrics affectedRecorder
}

func (j *orderExpiryJob) Name() string { return orderExpiryJobName }

func (j *orderExpiryJob) Run(ctx context.Context) error {
	expired, err := j.orders.ExpirePending(ctx, j.ttl)
	j.metrics.AddAffected(orderExpiryJobName, expired)
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"ttl":     j.ttl.String(),
		"expired": expired,
	})
	if err != nil {
		return fmt.Errorf("expire pending orders: %w", err)
	}
	j.logg.Info(logCtx, "pending order expiry complete")
	return nil
}
