// Package relay moves committed outbox rows onto Pub/Sub. Each batch runs in
// one transaction: rows are locked, delivered, then marked published, failed
// or dead-lettered before the lock is released.
package relay

import (
	"context"
	"errors"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/registry"
)

type txRunner interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type eventStore interface {
	FetchPending(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublished(tx *gorm.DB, id uuid.UUID, at time.Time) error
	MarkFailed(tx *gorm.DB, id uuid.UUID, cause error) error
	MarkDeadLettered(tx *gorm.DB, id uuid.UUID, cause error, ceiling int) error
}

type deadLetterStore interface {
	Insert(tx *gorm.DB, entry models.OutboxDLQ) error
}

type resolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

// Sender delivers one message and returns the broker's message id.
type Sender interface {
	Ping(context.Context) error
	Send(ctx context.Context, topic string, msg *gcppubsub.Message) (string, error)
}

// deliveryGuard remembers envelope ids that already reached the broker, so a
// row whose status update rolled back is not delivered twice.
type deliveryGuard interface {
	Claim(ctx context.Context, eventID string) (bool, error)
	Release(ctx context.Context, eventID string) error
}

// Settings tunes batch size and pacing.
type Settings struct {
	BatchSize      int
	MaxAttempts    int
	PollInterval   time.Duration
	PublishTimeout time.Duration
	MaxBackoff     time.Duration
}

// SettingsFrom reads the outbox config and fills defaults.
func SettingsFrom(cfg config.OutboxConfig) Settings {
	return Settings{
		BatchSize:    cfg.BatchSize,
		MaxAttempts:  cfg.MaxAttempts,
		PollInterval: time.Duration(cfg.PollIntervalMS) * time.Millisecond,
	}.withDefaults()
}

func (s Settings) withDefaults() Settings {
	if s.BatchSize <= 0 {
		s.BatchSize = 50
	}
	if s.MaxAttempts <= 0 {
		s.MaxAttempts = 10
	}
	if s.PollInterval <= 0 {
		s.PollInterval = 500 * time.Millisecond
	}
	if s.PublishTimeout <= 0 {
		s.PublishTimeout = 15 * time.Second
	}
	if s.MaxBackoff <= 0 {
		s.MaxBackoff = 10 * time.Second
	}
	return s
}

type Params struct {
	Logger      *logger.Logger
	DB          txRunner
	Events      eventStore
	DeadLetters deadLetterStore
	Registry    resolver
	Sender      Sender
	Guard       deliveryGuard
	Settings    Settings
	Now         func() time.Time
}

type Relay struct {
	logg        *logger.Logger
	db          txRunner
	events      eventStore
	deadLetters deadLetterStore
	registry    resolver
	sender      Sender
	guard       deliveryGuard
	settings    Settings
	now         func() time.Time
}

func New(p Params) (*Relay, error) {
	switch {
	case p.Logger == nil:
		return nil, errors.New("logger is required")
	case p.DB == nil:
		return nil, errors.New("database client is required")
	case p.Events == nil:
		return nil, errors.New("outbox repository is required")
	case p.DeadLetters == nil:
		return nil, errors.New("dead letter repository is required")
	case p.Registry == nil:
		return nil, errors.New("event registry is required")
	case p.Sender == nil:
		return nil, errors.New("sender is required")
	case p.Guard == nil:
		return nil, errors.New("delivery guard is required")
	}
	now := p.Now
	if now == nil {
		now = time.Now
	}
	return &Relay{
		logg:        p.Logger,
		db:          p.DB,
		events:      p.Events,
		deadLetters: p.DeadLetters,
		registry:    p.Registry,
		sender:      p.Sender,
		guard:       p.Guard,
		settings:    p.Settings.withDefaults(),
		now:         now,
	}, nil
}

// Run drains the outbox until ctx is cancelled. Full batches loop immediately,
// an empty outbox waits one poll interval and failures back off.
func (r *Relay) Run(ctx context.Context) error {
	if err := r.ping(ctx); err != nil {
		return err
	}
	wait := newBackoff(r.settings.PollInterval, r.settings.MaxBackoff)

	for {
		if err := ctx.Err(); err != nil {
			r.logg.Info(ctx, "outbox relay stopping")
			return err
		}

		handled, err := r.Drain(ctx)
		var delay time.Duration
		switch {
		case err != nil:
			r.logg.Error(ctx, "outbox relay batch failed", err)
			delay = wait.next()
		case handled > 0:
			wait.reset()
			continue
		default:
			wait.reset()
			delay = r.settings.PollInterval
		}
		if err := sleep(ctx, withJitter(delay)); err != nil {
			return err
		}
	}
}

// Drain handles one batch and reports how many rows it settled.
func (r *Relay) Drain(ctx context.Context) (int, error) {
	handled := 0
	err := r.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := r.events.FetchPending(tx, r.settings.BatchSize, r.settings.MaxAttempts)
		if err != nil {
			return fmt.Errorf("fetch pending outbox rows: %w", err)
		}
		for _, event := range events {
			if err := r.handle(ctx, tx, event); err != nil {
				return err
			}
			handled++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return handled, nil
}

func (r *Relay) ping(ctx context.Context) error {
	if err := r.db.Ping(ctx); err != nil {
		r.logg.Error(ctx, "database ping failed", err)
		return fmt.Errorf("database ping: %w", err)
	}
	if err := r.sender.Ping(ctx); err != nil {
		r.logg.Error(ctx, "pubsub ping failed", err)
		return fmt.Errorf("pubsub ping: %w", err)
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
