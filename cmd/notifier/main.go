package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata" // IANA zones for minimal container images

	"notification_scheduler/internal/app"
	"notification_scheduler/internal/domain/schedule"
	"notification_scheduler/internal/infra/config"
	idb "notification_scheduler/internal/infra/database"
	"notification_scheduler/internal/infra/httpserver"
	"notification_scheduler/internal/infra/lease"
	"notification_scheduler/internal/infra/logger"
	"notification_scheduler/internal/infra/mail"
	"notification_scheduler/internal/infra/metrics"
	"notification_scheduler/internal/infra/scheduler"
	"notification_scheduler/internal/infra/telegram"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Could not load application configuration: %v", err)
	}

	logger.Init(cfg)
	mainLogger := logger.Component("main")
	mainLogger.WithFields(logrus.Fields{
		"log_level":   cfg.LogLevel,
		"environment": cfg.Environment,
	}).Info("Notification scheduler starting...")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics.MustRegister(registry)

	// Initialize Database Connection
	db, err := idb.NewPostgresConnection(ctx, cfg.DatabaseURL, cfg.DBMaxOpenConns)
	if err != nil {
		mainLogger.WithError(err).Fatal("Could not connect to database")
	}
	defer db.Close()
	if err := idb.Migrate(ctx, db, cfg.ChangeFeedChannel); err != nil {
		mainLogger.WithError(err).Fatal("Could not apply database migrations")
	}
	mainLogger.Info("Database connection established and schema applied.")

	// Initialize Repositories
	records := idb.NewPostgresRecordStore(db)
	schedules := idb.NewPostgresScheduleStore(db)
	ledger := idb.NewPostgresSentLedger(db)
	feed := idb.NewPostgresChangeFeed(cfg.DatabaseURL, cfg.ChangeFeedChannel, logger.Component("change_feed"))

	checks := map[string]httpserver.HealthCheck{"postgres": db.PingContext}

	var leases schedule.LeaseStore
	if cfg.RedisAddr != "" {
		rdb, err := lease.Connect(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			mainLogger.WithError(err).Fatal("Could not connect to redis")
		}
		defer rdb.Close()
		redisLeases := lease.NewRedis(rdb, "")
		leases = redisLeases
		checks["redis"] = redisCheck(rdb)
		mainLogger.WithField("holder", redisLeases.Holder()).Info("Using redis execution leases.")
	} else {
		leases = lease.NewMemory()
		mainLogger.Warn("REDIS_ADDR is not set, using in-process leases: run a single instance only.")
	}

	transport, err := mail.NewSMTPTransport(mail.SMTPConfig{
		Host:          cfg.SMTPHost,
		Port:          cfg.SMTPPort,
		Username:      cfg.SMTPUsername,
		Password:      cfg.SMTPPassword,
		From:          cfg.MailFrom,
		RatePerSecond: cfg.MailRatePerSecond,
		Burst:         cfg.MailBurst,
	}, logger.Component("mail"))
	if err != nil {
		mainLogger.WithError(err).Fatal("Could not configure mail transport")
	}

	executorOpts := []app.ExecutorOption{app.WithSendTimeout(cfg.MailTimeout)}
	var alerter *telegram.DeliveryAlerter
	if cfg.AlertsEnabled() {
		bot, err := telegram.NewOfflineBot(cfg.TelegramToken)
		if err != nil {
			mainLogger.WithError(err).Fatal("Could not create Telegram bot")
		}
		alerter = telegram.NewDeliveryAlerter(telegram.NewTelebotAdapter(bot), cfg.AlertChatID, logger.Component("alerts"))
		executorOpts = append(executorOpts, app.WithAlerter(alerter))
		mainLogger.WithField("chat_id", cfg.AlertChatID).Info("Delivery failure alerts enabled.")
	}

	executor := app.NewNotificationExecutorImpl(records, ledger, transport, logger.Component("executor"), executorOpts...)

	notifScheduler := scheduler.NewNotificationScheduler(executor, schedules, leases, logger.Component("scheduler"), scheduler.Options{
		PlanningSpec:    cfg.PlanningCronSpec,
		Concurrency:     cfg.SchedulerConcurrency,
		LeaseTTL:        cfg.LeaseTTL,
		RetryMaxElapsed: cfg.StoreRetryMaxElapsed,
	})
	if err := notifScheduler.Start(ctx); err != nil {
		mainLogger.WithError(err).Fatal("Could not start scheduler")
	}

	reconciler := app.NewReconciler(records, feed, schedules, logger.Component("reconciler"), cfg.ReconcilerShards, 0)
	reconcilerDone := make(chan struct{})
	go func() {
		defer close(reconcilerDone)
		runReconciler(ctx, reconciler, mainLogger)
	}()

	httpserver.NewServer(logger.Component("http"), registry, checks).Start(ctx, cfg.MetricsAddr)

	mainLogger.Info("Application setup complete.")

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	mainLogger.Info("Shutting down application...")
	// Stop planning first: in-flight executions finish with their own context.
	notifScheduler.Stop()
	cancel()
	<-reconcilerDone
	if alerter != nil {
		alerter.Close()
	}
	mainLogger.Info("Application shut down gracefully.")
}

// runReconciler restarts the reconciler with backoff until ctx is cancelled.
func runReconciler(ctx context.Context, r *app.Reconciler, log *logrus.Entry) {
	b := backoff.NewExponentialBackOff()
	b.MaxInterval = time.Minute
	b.MaxElapsedTime = 0

	_ = backoff.RetryNotify(func() error {
		err := r.Run(ctx)
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		return err
	}, backoff.WithContext(b, ctx), func(err error, next time.Duration) {
		log.WithError(err).WithField("retry_in", next.String()).Error("Reconciler stopped, restarting")
	})
}

func redisCheck(rdb *redis.Client) httpserver.HealthCheck {
	return func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	}
}
