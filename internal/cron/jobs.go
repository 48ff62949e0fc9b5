package cron

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type affectedRecorder interface {
	AddAffected(job string, n int)
}

type noopAffected struct{}

func (noopAffected) AddAffected(string, int) {}

func utcNow() time.Time { return time.Now().UTC() }
