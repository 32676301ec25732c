package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pressly/goose/v3"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/wb-go/wbf/dbpg"
	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"

	employeehdl "github.com/hrnotify/anniversary-notifier/internal/api/handlers/employee"
	"github.com/hrnotify/anniversary-notifier/internal/api/handlers/health"
	"github.com/hrnotify/anniversary-notifier/internal/api/handlers/queuectl"
	"github.com/hrnotify/anniversary-notifier/internal/api/router"
	"github.com/hrnotify/anniversary-notifier/internal/api/server"
	"github.com/hrnotify/anniversary-notifier/internal/config"
	"github.com/hrnotify/anniversary-notifier/internal/lock"
	"github.com/hrnotify/anniversary-notifier/internal/queue"
	deliveryrepo "github.com/hrnotify/anniversary-notifier/internal/repository/delivery"
	employeerepo "github.com/hrnotify/anniversary-notifier/internal/repository/employee"
	"github.com/hrnotify/anniversary-notifier/internal/service/message"
	"github.com/hrnotify/anniversary-notifier/internal/service/scheduler"
	"github.com/hrnotify/anniversary-notifier/internal/worker"
	"github.com/hrnotify/anniversary-notifier/migrations"
	"github.com/hrnotify/anniversary-notifier/pkg/webhook"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	zlog.Init()
	cfg := config.Must()
	val := validator.New()

	opts := &dbpg.Options{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}

	slaveDSNs := make([]string, 0, len(cfg.Database.Slaves))
	for _, s := range cfg.Database.Slaves {
		slaveDSNs = append(slaveDSNs, s.DSN())
	}

	db, err := dbpg.New(cfg.Database.Master.DSN(), slaveDSNs, opts)
	if err != nil {
		zlog.Logger.Fatal().Err(err).Msg("failed to connect to database")
	}

	err = retry.Do(func() error {
		return db.Master.PingContext(ctx)
	}, cfg.Connect)
	if err != nil {
		zlog.Logger.Fatal().Err(err).Msg("database is not reachable")
	}

	goose.SetBaseFS(migrations.FS)
	if err = goose.SetDialect("postgres"); err != nil {
		zlog.Logger.Fatal().Err(err).Msg("failed to set goose dialect")
	}
	if err = goose.Up(db.Master, "."); err != nil {
		zlog.Logger.Fatal().Err(err).Msg("failed to apply migrations")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.Database,
	})

	err = retry.Do(func() error {
		return rdb.Ping(ctx).Err()
	}, cfg.Connect)
	if err != nil {
		zlog.Logger.Fatal().Err(err).Msg("redis is not reachable")
	}

	employees := employeerepo.NewRepository(db)
	deliveries := deliveryrepo.NewRepository(db)

	q := queue.New(rdb, cfg.Queue.Name, queue.Options{
		MaxAttempts:  cfg.Queue.MaxAttempts,
		BackoffDelay: cfg.Queue.BackoffDelay,
		KeepCompleted: queue.Retention{
			MaxAge:   cfg.Queue.KeepCompleted.MaxAge,
			MaxCount: cfg.Queue.KeepCompleted.MaxCount,
		},
		KeepFailed: queue.Retention{
			MaxAge:   cfg.Queue.KeepFailed.MaxAge,
			MaxCount: cfg.Queue.KeepFailed.MaxCount,
		},
	})

	locks := lock.NewLocker(rdb)

	webhookClient := webhook.NewClient(cfg.Webhook.URL, cfg.Webhook.Timeout)
	messages := message.NewService(webhookClient)

	scheduling := scheduler.NewService(employees, deliveries, q, locks, scheduler.Config{
		TargetHour:      cfg.Scheduler.TargetHour,
		LockTTL:         cfg.Scheduler.LockTTL,
		RecoveryLockTTL: cfg.Scheduler.RecoveryLockTTL,
	})

	jobHandler := worker.NewHandler(messages, deliveries)
	pool := worker.New(q, jobHandler, cfg.Queue.Concurrency, cfg.Queue.RatePerSec)
	pool.Start(ctx)

	crontab := cron.New()

	if cfg.Scheduler.Enabled {
		_, err = crontab.AddFunc("@every 24h", func() {
			if _, err := scheduling.ScheduleAll(ctx); err != nil {
				zlog.Logger.Error().Err(err).Msg("daily schedule run failed")
			}
		})
		if err != nil {
			zlog.Logger.Fatal().Err(err).Msg("failed to register daily schedule job")
		}
	}

	if cfg.Scheduler.RecoveryEnabled {
		_, err = crontab.AddFunc("@every 1h", func() {
			if _, err := scheduling.RecoverMissed(ctx, cfg.Scheduler.Lookback()); err != nil {
				zlog.Logger.Error().Err(err).Msg("recovery run failed")
			}
		})
		if err != nil {
			zlog.Logger.Fatal().Err(err).Msg("failed to register recovery job")
		}
	}

	crontab.Start()

	// Run both passes once on startup so a restart never waits a full
	// interval to catch up.
	go func() {
		if cfg.Scheduler.Enabled {
			if _, err := scheduling.ScheduleAll(ctx); err != nil {
				zlog.Logger.Error().Err(err).Msg("initial schedule run failed")
			}
		}
		if cfg.Scheduler.RecoveryEnabled {
			if _, err := scheduling.RecoverMissed(ctx, cfg.Scheduler.Lookback()); err != nil {
				zlog.Logger.Error().Err(err).Msg("initial recovery run failed")
			}
		}
	}()

	employeeHandler := employeehdl.NewHandler(employees, deliveries, val)
	queueHandler := queuectl.NewHandler(scheduling, q, deliveries, cfg.Scheduler.Lookback())
	healthHandler := health.NewHandler(db.Master, rdb)

	r := router.New(employeeHandler, queueHandler, healthHandler)
	s := server.New(cfg.Server.HTTPPort, r, cfg.Server.ReadTimeout, cfg.Server.WriteTimeout)

	go func() {
		if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	zlog.Logger.Info().Str("addr", cfg.Server.HTTPPort).Msg("service started")

	<-ctx.Done()
	zlog.Logger.Info().Msg("shutdown signal received")

	cronCtx := crontab.Stop()
	<-cronCtx.Done()

	pool.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	zlog.Logger.Info().Msg("shutting down server")
	if err := s.Shutdown(shutdownCtx); err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to shutdown server")
	}

	if errors.Is(shutdownCtx.Err(), context.DeadlineExceeded) {
		zlog.Logger.Info().Msg("timeout exceeded, forcing shutdown")
	}

	if err := rdb.Close(); err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to close redis client")
	}

	if err := db.Master.Close(); err != nil {
		zlog.Logger.Printf("failed to close master DB: %v", err)
	}

	for i, slave := range db.Slaves {
		if err := slave.Close(); err != nil {
			zlog.Logger.Printf("failed to close slave DB %d: %v", i, err)
		}
	}
}
