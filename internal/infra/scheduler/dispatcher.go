package scheduler

import (
	"context"
	"sync"
	"time"

	"notification_scheduler/internal/app"
	"notification_scheduler/internal/domain/notification"
	"notification_scheduler/internal/infra/metrics"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

// Dispatcher runs firings asynchronously with at most limit executions at once.
// Submissions beyond the limit wait in line; Submit itself never blocks.
type Dispatcher struct {
	executor app.NotificationExecutor
	sem      *semaphore.Weighted
	logger   *logrus.Entry
	wg       sync.WaitGroup
}

func NewDispatcher(executor app.NotificationExecutor, limit int, logger *logrus.Entry) *Dispatcher {
	if limit <= 0 {
		limit = DefaultConcurrency
	}
	return &Dispatcher{
		executor: executor,
		sem:      semaphore.NewWeighted(int64(limit)),
		logger:   logger,
	}
}

// Submit queues firing for execution. ctx only bounds the wait for a worker
// slot; a started execution is not cancelled when ctx is.
func (d *Dispatcher) Submit(ctx context.Context, firing notification.Firing) {
	d.wg.Add(1)
	metrics.ExecutionsQueued.Inc()
	go func() {
		defer d.wg.Done()
		err := d.sem.Acquire(ctx, 1)
		metrics.ExecutionsQueued.Dec()
		if err != nil {
			d.logger.WithField("owner", firing.Owner.String()).Warn("Dropping queued firing on shutdown")
			return
		}
		defer d.sem.Release(1)

		metrics.ExecutionsInFlight.Inc()
		defer metrics.ExecutionsInFlight.Dec()

		log := d.logger.WithFields(logrus.Fields{
			"owner":        firing.Owner.String(),
			"scheduled_at": firing.ScheduledAt.Format(time.RFC3339),
		})
		if err := d.executor.Execute(context.WithoutCancel(ctx), firing); err != nil {
			log.WithError(err).Error("Firing execution failed")
			return
		}
		log.Debug("Firing executed")
	}()
}

// Wait blocks until every submitted firing has finished or been dropped.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
