// Command cron-worker runs the periodic maintenance jobs under a redis lease
// so only one replica works a cycle.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/storefront-backend/internal/bootstrap"
	"github.com/angelmondragon/storefront-backend/internal/cron"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/migrate"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/redis"
)

const serviceName = "cron-worker"

func main() {
	bootLog := logger.New(logger.Options{ServiceName: serviceName})
	if err := godotenv.Load(); err != nil {
		bootLog.Warn(context.Background(), ".env file not found, relying on environment")
	}
	cfg, err := config.Load()
	if err != nil {
		bootLog.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = serviceName

	logg := logger.New(logger.Options{
		ServiceName: serviceName,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "serviceKind": serviceName})

	if err := run(ctx, cfg, logg); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		stop()
		os.Exit(1)
	}
	logg.Info(ctx, "cron worker shut down")
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) error {
	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("bootstrap database: %w", err)
	}
	defer closeWith(ctx, logg, "database", dbClient.Close)

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return fmt.Errorf("dev migrations: %w", err)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return fmt.Errorf("bootstrap redis: %w", err)
	}
	defer closeWith(ctx, logg, "redis", redisClient.Close)

	services, err := bootstrap.NewServices(cfg, logg, dbClient, redisClient, prometheus.DefaultRegisterer)
	if err != nil {
		return fmt.Errorf("wire services: %w", err)
	}

	jobMetrics := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)
	registry, err := buildRegistry(cfg, logg, dbClient, services, jobMetrics)
	if err != nil {
		return err
	}

	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey("cron"), 0)
	if err != nil {
		return fmt.Errorf("cron lock: %w", err)
	}
	worker, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  jobMetrics,
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		return err
	}

	logg.Info(logg.WithField(ctx, "jobs", registry.Names()), "starting cron worker")
	return worker.Run(ctx)
}

// buildRegistry lists the jobs in the order a cycle runs them. Orders expire
// first so the stock and coupons they release are visible to later jobs.
func buildRegistry(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, services *bootstrap.Services, jobMetrics *metrics.CronJobMetrics) (*cron.Registry, error) {
	deadLetters := outbox.NewDeadLetterRepository(dbClient.DB())

	builders := []struct {
		name  string
		build func() (cron.Job, error)
	}{
		{"order expiry", func() (cron.Job, error) {
			return cron.NewOrderExpiryJob(cron.OrderExpiryJobParams{
				Logger: logg, Orders: services.Orders, TTL: cfg.Checkout.PendingOrderTTL, Metrics: jobMetrics,
			})
		}},
		{"coupon deactivation", func() (cron.Job, error) {
			return cron.NewCouponDeactivationJob(cron.CouponDeactivationJobParams{
				Logger: logg, Coupons: services.Coupons, Metrics: jobMetrics,
			})
		}},
		{"outbox retention", func() (cron.Job, error) {
			return cron.NewOutboxPruneJob(cron.PruneJobParams{
				Logger: logg, DB: dbClient, Prune: services.OutboxRepo.DeletePublishedBefore,
				KeepFor: cfg.Outbox.PublishedRetention, Metrics: jobMetrics,
			})
		}},
		{"dead letter retention", func() (cron.Job, error) {
			return cron.NewDeadLetterPruneJob(cron.PruneJobParams{
				Logger: logg, DB: dbClient, Prune: deadLetters.DeleteFailedBefore,
				KeepFor: cfg.Outbox.DeadLetterRetention, Metrics: jobMetrics,
			})
		}},
	}

	jobs := make([]cron.Job, 0, len(builders))
	for _, b := range builders {
		job, err := b.build()
		if err != nil {
			return nil, fmt.Errorf("%s job: %w", b.name, err)
		}
		jobs = append(jobs, job)
	}
	return cron.NewRegistry(jobs...)
}

func closeWith(ctx context.Context, logg *logger.Logger, name string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logg.Error(ctx, "error closing "+name, err)
	}
}
