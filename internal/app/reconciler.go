// internal/app/reconciler.go
package app

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"notification_scheduler/internal/domain"
	"notification_scheduler/internal/domain/schedule"
	"notification_scheduler/internal/domain/subscriber"
	"notification_scheduler/internal/infra/metrics"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
)

const shardQueueSize = 64

// Reconciler keeps the schedule store in line with the subscriber and group
// population, first by a full pass and then from the change feed.
type Reconciler struct {
	records         subscriber.Repository
	feed            subscriber.ChangeFeed
	store           schedule.Store
	logger          *logrus.Entry
	shards          int
	retryMaxElapsed time.Duration // 0 retries until ctx is done
	now             func() time.Time
}

func NewReconciler(
	records subscriber.Repository,
	feed subscriber.ChangeFeed,
	store schedule.Store,
	logger *logrus.Entry,
	shards int,
	retryMaxElapsed time.Duration,
) *Reconciler {
	if shards < 1 {
		shards = 1
	}
	return &Reconciler{
		records:         records,
		feed:            feed,
		store:           store,
		logger:          logger,
		shards:          shards,
		retryMaxElapsed: retryMaxElapsed,
		now:             time.Now,
	}
}

type shardItem struct {
	event   subscriber.ChangeEvent
	barrier *sync.WaitGroup
}

// Run subscribes to the change feed, seeds the schedule store and then applies
// change events until ctx is done or the feed closes. Events of the same owner
// are applied in arrival order; different owners may be applied concurrently.
func (r *Reconciler) Run(ctx context.Context) error {
	// Subscribe before seeding so no change made during the seed is lost.
	events, err := r.feed.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("failed to subscribe to change feed: %w", err)
	}

	if err := r.Seed(ctx); err != nil {
		return err
	}

	queues := make([]chan shardItem, r.shards)
	var workers sync.WaitGroup
	for i := range queues {
		queues[i] = make(chan shardItem, shardQueueSize)
		workers.Add(1)
		go func(queue <-chan shardItem) {
			defer workers.Done()
			for item := range queue {
				if item.barrier != nil {
					item.barrier.Done()
					continue
				}
				if err := r.Apply(ctx, item.event); err != nil && ctx.Err() == nil {
					r.logger.WithError(err).WithFields(logrus.Fields{
						"collection": item.event.Collection,
						"operation":  item.event.Operation,
						"owner_id":   item.event.ID,
					}).Error("Failed to apply change event")
				}
			}
		}(queues[i])
	}
	defer func() {
		for _, q := range queues {
			close(q)
		}
		workers.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return errors.New("change feed closed")
			}
			if ev.Resync {
				r.logger.Warn("Change feed requested a resync, re-seeding schedules")
				r.drain(ctx, queues)
				if err := r.Seed(ctx); err != nil {
					return err
				}
				continue
			}
			q := queues[r.shardFor(ev)]
			select {
			case q <- shardItem{event: ev}:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// drain waits until every shard has processed what was queued before it.
func (r *Reconciler) drain(ctx context.Context, queues []chan shardItem) {
	var barrier sync.WaitGroup
	barrier.Add(len(queues))
	for _, q := range queues {
		select {
		case q <- shardItem{barrier: &barrier}:
		case <-ctx.Done():
			return
		}
	}
	barrier.Wait()
}

func (r *Reconciler) shardFor(ev subscriber.ChangeEvent) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(string(ev.Collection) + ":" + ev.ID))
	return int(h.Sum32() % uint32(r.shards))
}

// Seed schedules every existing subscriber and group and cancels schedules
// whose owner no longer exists.
func (r *Reconciler) Seed(ctx context.Context) error {
	var subs []*subscriber.Subscriber
	if err := r.retry(ctx, "list_subscribers", func() error {
		var err error
		subs, err = r.records.ListSubscribers(ctx)
		return err
	}); err != nil {
		return fmt.Errorf("seed: %w", err)
	}
	var groups []*subscriber.Group
	if err := r.retry(ctx, "list_groups", func() error {
		var err error
		groups, err = r.records.ListGroups(ctx)
		return err
	}); err != nil {
		return fmt.Errorf("seed: %w", err)
	}

	live := make(map[schedule.Owner]struct{}, len(subs)+len(groups))
	for _, s := range subs {
		live[schedule.Owner{Kind: schedule.OwnerSubscriber, ID: s.ID}] = struct{}{}
		if err := r.ApplySubscriber(ctx, s); err != nil {
			r.logger.WithError(err).WithField("subscriber_id", s.ID).Error("Failed to seed subscriber schedule")
		}
	}
	for _, g := range groups {
		live[schedule.Owner{Kind: schedule.OwnerGroup, ID: g.ID}] = struct{}{}
		if err := r.ApplyGroup(ctx, g); err != nil {
			r.logger.WithError(err).WithField("group_id", g.ID).Error("Failed to seed group schedule")
		}
	}

	var existing []*schedule.Record
	if err := r.retry(ctx, "list_schedules", func() error {
		var err error
		existing, err = r.store.All(ctx)
		return err
	}); err != nil {
		return fmt.Errorf("seed: %w", err)
	}
	orphans := 0
	for _, rec := range existing {
		if _, ok := live[rec.Owner]; ok {
			continue
		}
		if err := r.cancel(ctx, rec.Owner); err != nil {
			r.logger.WithError(err).WithField("owner", rec.Owner.String()).Error("Failed to cancel orphaned schedule")
			continue
		}
		orphans++
	}

	r.logger.WithFields(logrus.Fields{
		"subscribers": len(subs),
		"groups":      len(groups),
		"orphans":     orphans,
	}).Info("Schedules seeded")
	return nil
}

// Apply reconciles the schedule of the owner named by ev.
func (r *Reconciler) Apply(ctx context.Context, ev subscriber.ChangeEvent) error {
	switch ev.Collection {
	case subscriber.CollectionSubscribers:
		owner := schedule.Owner{Kind: schedule.OwnerSubscriber, ID: ev.ID}
		if ev.Operation == subscriber.OperationDeleted {
			return r.cancel(ctx, owner)
		}
		sub := ev.Subscriber
		if sub == nil {
			err := r.retry(ctx, "find_subscriber", func() error {
				var err error
				sub, err = r.records.FindSubscriber(ctx, ev.ID)
				return err
			})
			if errors.Is(err, domain.ErrOwnerNotFound) {
				return r.cancel(ctx, owner)
			}
			if err != nil {
				return err
			}
		}
		return r.ApplySubscriber(ctx, sub)
	case subscriber.CollectionGroups:
		owner := schedule.Owner{Kind: schedule.OwnerGroup, ID: ev.ID}
		if ev.Operation == subscriber.OperationDeleted {
			return r.cancel(ctx, owner)
		}
		group := ev.Group
		if group == nil {
			err := r.retry(ctx, "find_group", func() error {
				var err error
				group, err = r.records.FindGroup(ctx, ev.ID)
				return err
			})
			if errors.Is(err, domain.ErrOwnerNotFound) {
				return r.cancel(ctx, owner)
			}
			if err != nil {
				return err
			}
		}
		return r.ApplyGroup(ctx, group)
	default:
		return fmt.Errorf("unknown collection %q", ev.Collection)
	}
}

// ApplySubscriber compiles the subscriber's cadence and upserts its schedule.
func (r *Reconciler) ApplySubscriber(ctx context.Context, s *subscriber.Subscriber) error {
	owner := schedule.Owner{Kind: schedule.OwnerSubscriber, ID: s.ID}
	return r.upsert(ctx, owner, s.Cadence(), logrus.Fields{"email": s.Email})
}

// ApplyGroup compiles the group's cadence and upserts its schedule.
func (r *Reconciler) ApplyGroup(ctx context.Context, g *subscriber.Group) error {
	owner := schedule.Owner{Kind: schedule.OwnerGroup, ID: g.ID}
	return r.upsert(ctx, owner, g.Cadence(), logrus.Fields{"group_name": g.Name})
}

func (r *Reconciler) upsert(ctx context.Context, owner schedule.Owner, cadence subscriber.Cadence, fields logrus.Fields) error {
	log := r.logger.WithFields(fields).WithField("owner", owner.String())

	spec, loc, err := CompileSchedule(cadence)
	if err != nil {
		// A malformed cadence never gets a schedule; drop a stale one.
		log.WithError(err).Warn("Rejected cadence, owner will not be scheduled")
		metrics.ScheduleChanges.WithLabelValues("rejected").Inc()
		return r.cancel(ctx, owner)
	}

	rec := &schedule.Record{
		Owner:     owner,
		Spec:      spec,
		Timezone:  loc.String(),
		Payload:   schedule.PayloadFor(owner),
		UpdatedAt: r.now().UTC(),
	}
	if err := r.retry(ctx, "upsert_schedule", func() error { return r.store.Upsert(ctx, rec) }); err != nil {
		return fmt.Errorf("failed to upsert schedule for %s: %w", owner, err)
	}
	metrics.ScheduleChanges.WithLabelValues("upsert").Inc()

	if sched, err := spec.Schedule(loc); err == nil {
		log = log.WithField("next_run", sched.Next(r.now()).Format(time.RFC3339))
	}
	log.WithFields(logrus.Fields{
		"cron":     spec.Expression(),
		"timezone": rec.Timezone,
	}).Info("Schedule upserted")
	return nil
}

func (r *Reconciler) cancel(ctx context.Context, owner schedule.Owner) error {
	if err := r.retry(ctx, "cancel_schedule", func() error { return r.store.Cancel(ctx, owner) }); err != nil {
		return fmt.Errorf("failed to cancel schedule for %s: %w", owner, err)
	}
	metrics.ScheduleChanges.WithLabelValues("cancel").Inc()
	r.logger.WithField("owner", owner.String()).Info("Schedule cancelled")
	return nil
}

// retry runs op until it succeeds, fails with a non-transient error, ctx is
// done or retryMaxElapsed passes. Only ErrStoreUnavailable is retried.
func (r *Reconciler) retry(ctx context.Context, operation string, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = r.retryMaxElapsed

	return backoff.RetryNotify(func() error {
		err := op()
		if err == nil || errors.Is(err, domain.ErrStoreUnavailable) {
			return err
		}
		return backoff.Permanent(err)
	}, backoff.WithContext(b, ctx), func(err error, wait time.Duration) {
		r.logger.WithError(err).WithFields(logrus.Fields{
			"operation": operation,
			"retry_in":  wait.String(),
		}).Warn("Store unavailable, retrying")
	})
}
