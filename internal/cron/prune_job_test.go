package cron

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/repo"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
)

type recordedAffected struct {
	counts map[string]int
}

func (r *recordedAffected) AddAffected(job string, n int) {
	if r.counts == nil {
		r.counts = map[string]int{}
	}
	r.counts[job] += n
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "cron-test", Format: "json", Output: io.Discard})
}

func TestOutboxPruneJobKeepsUnpublishedRows(t *testing.T) {
	t.Parallel()
	client := repo.OpenClient(t)
	conn := client.DB()
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	old, recent := now.Add(-40*24*time.Hour), now.Add(-time.Hour)

	seed := func(publishedAt *time.Time) {
		require.NoError(t, conn.Create(&models.OutboxEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   uuid.New(),
			Payload:       []byte(`{"data":{}}`),
			PublishedAt:   publishedAt,
		}).Error)
	}
	seed(&old)
	seed(&recent)
	seed(nil)

	rec := &recordedAffected{}
	job, err := newPruneJob(outboxPruneJobName, defaultOutboxKeep, PruneJobParams{
		Logger:  testLogger(),
		DB:      client,
		Prune:   outbox.NewRepository(conn).DeletePublishedBefore,
		Metrics: rec,
	})
	require.NoError(t, err)
	job.now = func() time.Time { return now }

	require.NoError(t, job.Run(context.Background()))

	var left int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Count(&left).Error)
	assert.Equal(t, int64(2), left)
	assert.Equal(t, 1, rec.counts[outboxPruneJobName])
}

func TestDeadLetterPruneJobUsesConfiguredWindow(t *testing.T) {
	t.Parallel()
	client := repo.OpenClient(t)
	conn := client.DB()
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	letters := outbox.NewDeadLetterRepository(conn)

	for _, age := range []time.Duration{2 * time.Hour, 10 * 24 * time.Hour} {
		event := models.OutboxEvent{ID: uuid.New(), EventType: enums.EventCouponConsumed, AggregateType: enums.AggregateCoupon, AggregateID: uuid.New(), Payload: []byte(`{"data":{}}`)}
		require.NoError(t, letters.Insert(conn, outbox.NewDeadLetter(event, enums.OutboxDLQReasonMaxAttempts, errors.New("gone"), now.Add(-age))))
	}

	jobIface, err := NewDeadLetterPruneJob(PruneJobParams{
		Logger:  testLogger(),
		DB:      client,
		Prune:   letters.DeleteFailedBefore,
		KeepFor: 7 * 24 * time.Hour,
	})
	require.NoError(t, err)
	job := jobIface.(*pruneJob)
	job.now = func() time.Time { return now }
	assert.Equal(t, deadLetterPruneJobName, job.Name())

	require.NoError(t, job.Run(context.Background()))

	var left int64
	require.NoError(t, conn.Model(&models.OutboxDLQ{}).Count(&left).Error)
	assert.Equal(t, int64(1), left)
}

func TestPruneJobWrapsFailure(t *testing.T) {
	t.Parallel()
	job, err := newPruneJob(outboxPruneJobName, defaultOutboxKeep, PruneJobParams{
		Logger: testLogger(),
		DB:     repo.OpenClient(t),
		Prune: func(*gorm.DB, time.Time) (int64, error) {
			return 0, errors.New("disk full")
		},
	})
	require.NoError(t, err)

	err = job.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), outboxPruneJobName)
}

func TestPruneJobRequiresCollaborators(t *testing.T) {
	t.Parallel()
	_, err := NewOutboxPruneJob(PruneJobParams{Logger: testLogger()})
	assert.Error(t, err)
	_, err = NewDeadLetterPruneJob(PruneJobParams{Logger: testLogger(), DB: repo.OpenClient(t)})
	assert.Error(t, err)
}
