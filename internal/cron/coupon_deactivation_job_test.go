package cron

import (
	"context"
	"errors"
	"testing"

	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

type fakeDeactivator struct {
	n     int64
	err   error
	calls int
}

func (f *fakeDeactivator) DeactivateEnded(context.Context) (int64, error) {
	f.calls++
	return f.n, f.err
}

func TestCouponDeactivationJobRecordsRows(t *testing.T) {
	coupons := &fakeDeactivator{n: 4}
	rec := &recordedAffected{}
	job, err := NewCouponDeactivationJob(CouponDeactivationJobParams{
		Logger:  logger.New(logger.Options{ServiceName: "test"}),
		Coupons: coupons,
		Metrics: rec,
	})
	if err != nil {
		t.Fatalf("NewCouponDeactivationJob: %v", err)
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if coupons.calls != 1 {
		t.Fatalf("expected one call, got %d", coupons.calls)
	}
	if rec.counts[couponDeactivationJobName] != 4 {
		t.Fatalf("expected 4 recorded, got %d", rec.counts[couponDeactivationJobName])
	}
}

func TestCouponDeactivationJobPropagatesError(t *testing.T) {
	job, err := NewCouponDeactivationJob(CouponDeactivationJobParams{
		Logger:  logger.New(logger.Options{ServiceName: "test"}),
		Coupons: &fakeDeactivator{err: errors.New("db down")},
	})
	if err != nil {
		t.Fatalf("NewCouponDeactivationJob: %v", err)
	}
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}
