// internal/app/notification_executor.go
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"notification_scheduler/internal/domain"
	"notification_scheduler/internal/domain/mail"
	"notification_scheduler/internal/domain/notification"
	"notification_scheduler/internal/domain/schedule"
	"notification_scheduler/internal/domain/subscriber"
	"notification_scheduler/internal/infra/metrics"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const defaultSendTimeout = 30 * time.Second

// NotificationExecutor performs the side effect of one firing.
type NotificationExecutor interface {
	// Execute delivers the notification(s) of firing. A missing owner is a
	// successful no-op. For group firings the returned error joins the
	// failures of individual members; other members are still processed.
	Execute(ctx context.Context, firing notification.Firing) error
}

// DeliveryFailure describes a notification that could not be delivered.
type DeliveryFailure struct {
	Owner       schedule.Owner
	Recipient   string
	Category    notification.Category
	ScheduledAt time.Time
	Err         error
}

// FailureAlerter is told about failed deliveries. Implementations must not block for long.
type FailureAlerter interface {
	DeliveryFailed(ctx context.Context, failure DeliveryFailure)
}

type nopAlerter struct{}

func (nopAlerter) DeliveryFailed(context.Context, DeliveryFailure) {}

// NotificationExecutorImpl implements NotificationExecutor on top of the
// record store, the dedup ledger and a mail transport.
type NotificationExecutorImpl struct {
	records     subscriber.Repository
	ledger      notification.Ledger
	transport   mail.Transport
	templates   *Templates
	alerter     FailureAlerter
	logger      *logrus.Entry
	sendTimeout time.Duration
	now         func() time.Time
}

var _ NotificationExecutor = (*NotificationExecutorImpl)(nil)

// ExecutorOption customises a NotificationExecutorImpl.
type ExecutorOption func(*NotificationExecutorImpl)

// WithSendTimeout bounds each mail transport call.
func WithSendTimeout(d time.Duration) ExecutorOption {
	return func(e *NotificationExecutorImpl) {
		if d > 0 {
			e.sendTimeout = d
		}
	}
}

// WithTemplates replaces the built-in message templates.
func WithTemplates(t *Templates) ExecutorOption {
	return func(e *NotificationExecutorImpl) {
		if t != nil {
			e.templates = t
		}
	}
}

// WithAlerter installs a FailureAlerter.
func WithAlerter(a FailureAlerter) ExecutorOption {
	return func(e *NotificationExecutorImpl) {
		if a != nil {
			e.alerter = a
		}
	}
}

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) ExecutorOption {
	return func(e *NotificationExecutorImpl) {
		if now != nil {
			e.now = now
		}
	}
}

func NewNotificationExecutorImpl(
	records subscriber.Repository,
	ledger notification.Ledger,
	transport mail.Transport,
	logger *logrus.Entry,
	opts ...ExecutorOption,
) *NotificationExecutorImpl {
	e := &NotificationExecutorImpl{
		records:     records,
		ledger:      ledger,
		transport:   transport,
		templates:   DefaultTemplates(),
		alerter:     nopAlerter{},
		logger:      logger,
		sendTimeout: defaultSendTimeout,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute implements NotificationExecutor.
func (e *NotificationExecutorImpl) Execute(ctx context.Context, firing notification.Firing) error {
	start := time.Now()
	var err error
	if firing.GroupTarget() {
		err = e.executeGroup(ctx, firing)
	} else {
		err = e.executeSubscriber(ctx, firing)
	}
	metrics.ObserveExecution(string(firing.Owner.Kind), start, err)
	return err
}

// dayInstant is the instant whose local calendar day bounds the dedup window.
// It is the firing's scheduled minute so a late retry past midnight still
// counts against the day it was scheduled for.
func (e *NotificationExecutorImpl) dayInstant(firing notification.Firing) time.Time {
	if firing.ScheduledAt.IsZero() {
		return e.now()
	}
	return firing.ScheduledAt
}

func (e *NotificationExecutorImpl) executeSubscriber(ctx context.Context, firing notification.Firing) error {
	log := e.logger.WithFields(logrus.Fields{
		"subscriber_id": firing.Payload.SubscriberID,
		"scheduled_at":  firing.ScheduledAt.Format(time.RFC3339),
	})

	sub, err := e.records.FindSubscriber(ctx, firing.Payload.SubscriberID)
	if err != nil {
		if errors.Is(err, domain.ErrOwnerNotFound) {
			log.Info("Subscriber no longer exists, skipping firing")
			metrics.NotificationsSkipped.WithLabelValues("owner_not_found").Inc()
			return nil
		}
		return fmt.Errorf("failed to resolve subscriber %s: %w", firing.Payload.SubscriberID, err)
	}

	subject, body, err := e.templates.Subscriber(MessageData{Email: sub.Email, EmailType: string(sub.EmailType)})
	if err != nil {
		return fmt.Errorf("failed to render notification for subscriber %s: %w", sub.ID, err)
	}

	return e.deliver(ctx, log, firing, sub, "", notification.Category(sub.EmailType), subject, body)
}

func (e *NotificationExecutorImpl) executeGroup(ctx context.Context, firing notification.Firing) error {
	log := e.logger.WithFields(logrus.Fields{
		"group_id":     firing.Payload.GroupID,
		"scheduled_at": firing.ScheduledAt.Format(time.RFC3339),
	})

	group, err := e.records.FindGroup(ctx, firing.Payload.GroupID)
	if err != nil {
		if errors.Is(err, domain.ErrOwnerNotFound) {
			log.Info("Group no longer exists, skipping firing")
			metrics.NotificationsSkipped.WithLabelValues("owner_not_found").Inc()
			return nil
		}
		return fmt.Errorf("failed to resolve group %s: %w", firing.Payload.GroupID, err)
	}

	memberIDs := group.MemberIDs()
	if len(memberIDs) == 0 {
		log.Debug("Group has no members")
		return nil
	}
	members, err := e.records.FindSubscribers(ctx, memberIDs)
	if err != nil {
		return fmt.Errorf("failed to resolve members of group %s: %w", group.ID, err)
	}
	if len(members) < len(memberIDs) {
		log.WithField("missing", len(memberIDs)-len(members)).Warn("Some group members no longer exist")
	}

	var failures []error
	for _, member := range members {
		memberLog := log.WithField("subscriber_id", member.ID)
		subject, body, err := e.templates.Group(MessageData{Email: member.Email, EmailType: string(group.EmailType), GroupName: group.Name})
		if err != nil {
			failures = append(failures, fmt.Errorf("member %s: %w", member.ID, err))
			continue
		}
		if err := e.deliver(ctx, memberLog, firing, member, group.ID, notification.CategoryGroup, subject, body); err != nil {
			failures = append(failures, fmt.Errorf("member %s: %w", member.ID, err))
		}
	}
	if len(failures) > 0 {
		return fmt.Errorf("group %s: %d of %d members failed: %w", group.ID, len(failures), len(members), errors.Join(failures...))
	}
	return nil
}

// deliver runs check-send-record for one recipient.
// The send and the ledger append are not atomic: a crash between them leads to
// a resend on a later execution of the same day, never to a lost record of a
// failed send.
func (e *NotificationExecutorImpl) deliver(
	ctx context.Context,
	log *logrus.Entry,
	firing notification.Firing,
	recipient *subscriber.Subscriber,
	groupID string,
	category notification.Category,
	subject, body string,
) error {
	loc, err := time.LoadLocation(recipient.Timezone)
	if err != nil {
		log.WithField("timezone", recipient.Timezone).Warn("Unknown recipient timezone, using UTC for the dedup window")
		loc = time.UTC
	}
	window := notification.LocalDayWindow(e.dayInstant(firing), loc)

	already, err := e.ledger.SentWithin(ctx, recipient.ID, groupID, category, window)
	if err != nil {
		metrics.NotificationFailures.WithLabelValues("ledger_check").Inc()
		return fmt.Errorf("failed to check dedup ledger: %w", err)
	}
	if already {
		log.WithField("local_day", window.Date().Format("2006-01-02")).Debug("Notification already sent today, skipping")
		metrics.NotificationsSkipped.WithLabelValues("already_sent").Inc()
		return nil
	}

	sendCtx, cancel := context.WithTimeout(ctx, e.sendTimeout)
	err = e.transport.Send(sendCtx, recipient.Email, subject, body)
	cancel()
	if err != nil {
		if !errors.Is(err, mail.ErrTransportFailure) {
			err = fmt.Errorf("%w: %w", mail.ErrTransportFailure, err)
		}
		log.WithError(err).Error("Failed to send notification")
		metrics.NotificationFailures.WithLabelValues("send").Inc()
		e.alerter.DeliveryFailed(ctx, DeliveryFailure{
			Owner:       firing.Owner,
			Recipient:   recipient.Email,
			Category:    category,
			ScheduledAt: firing.ScheduledAt,
			Err:         err,
		})
		return err
	}

	rec := &notification.SentRecord{
		ID:           uuid.NewString(),
		SubscriberID: recipient.ID,
		GroupID:      groupID,
		Category:     category,
		SentAt:       e.now().UTC(),
		LocalDay:     window.Date(),
	}
	if err := e.ledger.Append(ctx, rec); err != nil {
		if errors.Is(err, notification.ErrDuplicateSentRecord) {
			log.Warn("Notification was recorded concurrently by another execution")
			return nil
		}
		log.WithError(err).Error("Notification sent but not recorded in dedup ledger")
		metrics.NotificationFailures.WithLabelValues("ledger_append").Inc()
		return fmt.Errorf("failed to record sent notification: %w", err)
	}

	metrics.NotificationsSent.WithLabelValues(string(category)).Inc()
	log.WithField("category", category).Info("Notification sent")
	return nil
}
