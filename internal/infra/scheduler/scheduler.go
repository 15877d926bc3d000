package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"notification_scheduler/internal/app" // For NotificationExecutor interface
	"notification_scheduler/internal/domain"
	"notification_scheduler/internal/domain/notification"
	"notification_scheduler/internal/domain/schedule"
	"notification_scheduler/internal/infra/metrics"

	"github.com/cenkalti/backoff/v4"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

const (
	DefaultPlanningSpec    = "* * * * *"
	DefaultConcurrency     = 5
	DefaultLeaseTTL        = 10 * time.Second
	DefaultRetryMaxElapsed = 45 * time.Second

	maxTickBudget = 55 * time.Second
)

// Options tune the planning loop.
type Options struct {
	PlanningSpec    string        // cron spec of the planning tick, UTC
	Concurrency     int           // max concurrent executions
	LeaseTTL        time.Duration // lifetime of a firing lease
	RetryMaxElapsed time.Duration // budget of one planning tick, store retries included
}

func (o Options) withDefaults() Options {
	if o.PlanningSpec == "" {
		o.PlanningSpec = DefaultPlanningSpec
	}
	if o.Concurrency <= 0 {
		o.Concurrency = DefaultConcurrency
	}
	if o.LeaseTTL <= 0 {
		o.LeaseTTL = DefaultLeaseTTL
	}
	if o.RetryMaxElapsed <= 0 {
		o.RetryMaxElapsed = DefaultRetryMaxElapsed
	}
	if o.RetryMaxElapsed > maxTickBudget {
		o.RetryMaxElapsed = maxTickBudget
	}
	return o
}

// NotificationScheduler turns live schedules into leased, dispatched firings.
type NotificationScheduler struct {
	cronEngine *cron.Cron
	store      schedule.Store
	leases     schedule.LeaseStore
	dispatcher *Dispatcher
	logger     *logrus.Entry
	opts       Options
	now        func() time.Time
}

func NewNotificationScheduler(
	executor app.NotificationExecutor,
	store schedule.Store,
	leases schedule.LeaseStore,
	logger *logrus.Entry,
	opts Options,
) *NotificationScheduler {
	opts = opts.withDefaults()
	cronLogger := NewCronLogger(logger)
	return &NotificationScheduler{
		cronEngine: cron.New(
			cron.WithLocation(time.UTC), // schedules carry their own timezone; the tick itself is zone-agnostic
			cron.WithLogger(cronLogger),
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		),
		store:      store,
		leases:     leases,
		dispatcher: NewDispatcher(executor, opts.Concurrency, logger),
		logger:     logger,
		opts:       opts,
		now:        time.Now,
	}
}

// Start registers the planning tick and starts the cron engine.
func (s *NotificationScheduler) Start(ctx context.Context) error {
	s.logger.WithFields(logrus.Fields{
		"planning_spec": s.opts.PlanningSpec,
		"concurrency":   s.opts.Concurrency,
		"lease_ttl":     s.opts.LeaseTTL.String(),
	}).Info("Starting notification scheduler...")

	_, err := s.cronEngine.AddFunc(s.opts.PlanningSpec, func() {
		if _, err := s.Plan(ctx, s.now()); err != nil && ctx.Err() == nil {
			s.logger.WithError(err).Error("Planning pass failed")
		}
	})
	if err != nil {
		return fmt.Errorf("could not add planning cron job: %w", err)
	}

	s.cronEngine.Start()
	s.logger.Info("Notification scheduler started.")
	return nil
}

// Plan runs one planning pass for the minute containing now and returns the
// number of firings dispatched. It never waits for executions to finish.
//
// The whole pass shares one RetryMaxElapsed budget. Due firings left without a
// lease when it runs out are skipped and reported in the returned error.
func (s *NotificationScheduler) Plan(ctx context.Context, now time.Time) (int, error) {
	metrics.PlanningTicks.Inc()
	minute := now.UTC().Truncate(time.Minute)

	tickCtx, cancel := context.WithTimeout(ctx, s.opts.RetryMaxElapsed)
	defer cancel()

	var records []*schedule.Record
	err := s.retry(tickCtx, func() error {
		var err error
		records, err = s.store.All(tickCtx)
		return err
	})
	if err != nil {
		metrics.PlanningErrors.Inc()
		return 0, fmt.Errorf("failed to list schedules: %w", err)
	}

	dispatched, skipped := 0, 0
	for _, rec := range records {
		loc, err := rec.Location()
		if err != nil {
			s.logger.WithError(err).WithField("owner", rec.Owner.String()).Warn("Schedule has an unknown timezone, skipping")
			continue
		}
		if !rec.Spec.Due(minute, loc) {
			continue
		}
		metrics.FiringsDue.WithLabelValues(string(rec.Owner.Kind)).Inc()

		if tickCtx.Err() != nil {
			skipped++
			continue
		}

		firing := notification.Firing{Owner: rec.Owner, Payload: rec.Payload, ScheduledAt: minute}
		log := s.logger.WithFields(logrus.Fields{
			"owner":        rec.Owner.String(),
			"scheduled_at": minute.Format(time.RFC3339),
		})

		var acquired bool
		err = s.retry(tickCtx, func() error {
			var err error
			acquired, err = s.leases.Acquire(tickCtx, firing.LeaseKey(), s.opts.LeaseTTL)
			return err
		})
		if err != nil {
			log.WithError(err).Error("Could not acquire execution lease")
			if tickCtx.Err() != nil {
				skipped++
			}
			continue
		}
		if !acquired {
			log.Debug("Firing already leased elsewhere")
			metrics.LeasesContended.Inc()
			continue
		}

		// Executions outlive the tick, so they get the parent context.
		s.dispatcher.Submit(ctx, firing)
		dispatched++
	}

	if dispatched > 0 {
		s.logger.WithFields(logrus.Fields{
			"minute":     minute.Format(time.RFC3339),
			"schedules":  len(records),
			"dispatched": dispatched,
		}).Info("Planning pass dispatched firings")
	}
	if skipped > 0 {
		metrics.PlanningErrors.Inc()
		return dispatched, fmt.Errorf("planning budget of %s exhausted, %d due firings skipped: %w",
			s.opts.RetryMaxElapsed, skipped, tickCtx.Err())
	}
	return dispatched, nil
}

// retry retries op on ErrStoreUnavailable until ctx, the tick budget, ends.
// The last store error stays in the returned chain.
func (s *NotificationScheduler) retry(ctx context.Context, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = 0 // bounded by ctx

	var last error
	err := backoff.Retry(func() error {
		err := op()
		if err == nil || errors.Is(err, domain.ErrStoreUnavailable) {
			last = err
			return err
		}
		return backoff.Permanent(err)
	}, backoff.WithContext(b, ctx))
	if err != nil && last != nil && !errors.Is(err, domain.ErrStoreUnavailable) {
		return fmt.Errorf("%w: %w", last, err)
	}
	return err
}

// Stop stops the planning tick and waits for dispatched executions.
func (s *NotificationScheduler) Stop() {
	s.logger.Info("Stopping notification scheduler...")
	ctx := s.cronEngine.Stop() // Stops adding new ticks, waits for a running tick.
	<-ctx.Done()
	s.dispatcher.Wait()
	s.logger.Info("Notification scheduler gracefully stopped.")
}
