package cron

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const (
	outboxPruneJobName     = "outbox-retention"
	deadLetterPruneJobName = "dead-letter-retention"

	defaultOutboxKeep     = 30 * 24 * time.Hour
	defaultDeadLetterKeep = 90 * 24 * time.Hour
)

// Pruner deletes rows older than cutoff and reports how many went.
type Pruner func(tx *gorm.DB, cutoff time.Time) (int64, error)

type PruneJobParams struct {
	Logger  *logger.Logger
	DB      txRunner
	Prune   Pruner
	KeepFor time.Duration
	Metrics affectedRecorder
}

type pruneJob struct {
	name    string
	logg    *logger.Logger
	db      txRunner
	prune   Pruner
	keepFor time.Duration
	metrics affectedRecorder
	now     func() time.Time
}

// NewOutboxPruneJob drops published outbox rows once they are KeepFor old.
// Unpublished rows are never touched.
func NewOutboxPruneJob(params PruneJobParams) (Job, error) {
	return newPruneJob(outboxPruneJobName, defaultOutboxKeep, params)
}

// NewDeadLetterPruneJob drops dead letters nobody requeued within KeepFor.
func NewDeadLetterPruneJob(params PruneJobParams) (Job, error) {
	return newPruneJob(deadLetterPruneJobName, defaultDeadLetterKeep, params)
}

func newPruneJob(name string, fallback time.Duration, params PruneJobParams) (*pruneJob, error) {
	switch {
	case params.Logger == nil:
		return nil, fmt.Errorf("%s: logger required", name)
	case params.DB == nil:
		return nil, fmt.Errorf("%s: db runner required", name)
	case params.Prune == nil:
		return nil, fmt.Errorf("%s: pruner required", name)
	}
	job := &pruneJob{
		name:    name,
		logg:    params.Logger,
		db:      params.DB,
		prune:   params.Prune,
		keepFor: params.KeepFor,
		metrics: params.Metrics,
		now:     utcNow,
	}
	if job.keepFor <= 0 {
		job.keepFor = fallback
	}
	if job.metrics == nil {
		job.metrics = noopAffected{}
	}
	return job, nil
}

func (j *pruneJob) Name() string { return j.name }

func (j *pruneJob) Run(ctx context.Context) error {
	cutoff := j.now().Add(-j.keepFor)
	var removed int64
	err := j.db.WithTx(ctx, func(tx *gorm.DB) (err error) {
		removed, err = j.prune(tx, cutoff)
		return err
	})
	if err != nil {
		return fmt.Errorf("%s: %w", j.name, err)
	}
	j.metrics.AddAffected(j.name, int(removed))
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"job":     j.name,
		"cutoff":  cutoff.Format(time.RFC3339),
		"removed": removed,
	}), "retention sweep complete")
	return nil
}
