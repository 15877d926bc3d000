// internal/infra/telegram/alerter.go
package telegram

import (
	"context"
	"fmt"
	"sync"
	"time"

	"notification_scheduler/internal/app"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

const alertQueueSize = 64

// DeliveryAlerter forwards delivery failures to an operator chat. Alerts are
// queued and sent by a single worker; when the queue is full they are dropped
// and logged so a Telegram outage never slows down deliveries.
type DeliveryAlerter struct {
	client Client
	chatID int64
	logger *logrus.Entry

	queue  chan app.DeliveryFailure
	wg     sync.WaitGroup
	mu     sync.RWMutex // guards closed against sends on a closed queue
	closed bool
}

var _ app.FailureAlerter = (*DeliveryAlerter)(nil)

func NewDeliveryAlerter(client Client, chatID int64, logger *logrus.Entry) *DeliveryAlerter {
	a := &DeliveryAlerter{
		client: client,
		chatID: chatID,
		logger: logger,
		queue:  make(chan app.DeliveryFailure, alertQueueSize),
	}
	a.wg.Add(1)
	go a.run()
	return a
}

// DeliveryFailed implements app.FailureAlerter. Alerts raised after Close are
// logged and dropped.
func (a *DeliveryAlerter) DeliveryFailed(_ context.Context, failure app.DeliveryFailure) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		a.logger.WithField("recipient", failure.Recipient).Warn("Alerter closed, dropping delivery failure alert")
		return
	}
	select {
	case a.queue <- failure:
	default:
		a.logger.WithField("recipient", failure.Recipient).Warn("Alert queue full, dropping delivery failure alert")
	}
}

// Close flushes queued alerts and stops the worker.
func (a *DeliveryAlerter) Close() {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.queue)
	}
	a.mu.Unlock()
	a.wg.Wait()
}

func (a *DeliveryAlerter) run() {
	defer a.wg.Done()
	for failure := range a.queue {
		if err := a.client.SendMessage(a.chatID, FormatFailure(failure), &telebot.SendOptions{DisableWebPagePreview: true}); err != nil {
			a.logger.WithError(err).Error("Failed to send delivery failure alert")
		}
	}
}

// FormatFailure renders an alert message for failure.
func FormatFailure(failure app.DeliveryFailure) string {
	msg := fmt.Sprintf("Notification delivery failed\nowner: %s\nrecipient: %s\ncategory: %s",
		failure.Owner, failure.Recipient, failure.Category)
	if !failure.ScheduledAt.IsZero() {
		msg += "\nscheduled: " + failure.ScheduledAt.UTC().Format(time.RFC3339)
	}
	if failure.Err != nil {
		msg += "\nerror: " + failure.Err.Error()
	}
	return msg
}
