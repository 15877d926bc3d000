// internal/infra/database/change_feed.go
package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"notification_scheduler/internal/domain/subscriber"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

const (
	DefaultChangeChannel = "record_changes"

	listenerMinReconnect = 1 * time.Second
	listenerMaxReconnect = 1 * time.Minute
	listenerPingInterval = 90 * time.Second
	changeBufferSize     = 256
)

// PostgresChangeFeed turns NOTIFY messages published by the record-change
// triggers into change events. Postgres delivers notifications in commit
// order, which preserves per-document order.
type PostgresChangeFeed struct {
	dsn     string
	channel string
	logger  *logrus.Entry
}

var _ subscriber.ChangeFeed = (*PostgresChangeFeed)(nil)

func NewPostgresChangeFeed(dsn, channel string, logger *logrus.Entry) *PostgresChangeFeed {
	if channel == "" {
		channel = DefaultChangeChannel
	}
	return &PostgresChangeFeed{dsn: dsn, channel: channel, logger: logger}
}

type changePayload struct {
	Collection string `json:"collection"`
	Operation  string `json:"operation"`
	ID         string `json:"id"`
}

// Subscribe starts listening. After a reconnect the feed emits a Resync event,
// since notifications sent while disconnected are lost.
func (f *PostgresChangeFeed) Subscribe(ctx context.Context) (<-chan subscriber.ChangeEvent, error) {
	listener := pq.NewListener(f.dsn, listenerMinReconnect, listenerMaxReconnect, func(ev pq.ListenerEventType, err error) {
		switch ev {
		case pq.ListenerEventDisconnected:
			f.logger.WithError(err).Warn("Change feed listener disconnected")
		case pq.ListenerEventReconnected:
			f.logger.Info("Change feed listener reconnected")
		case pq.ListenerEventConnectionAttemptFailed:
			f.logger.WithError(err).Warn("Change feed listener connection attempt failed")
		}
	})
	if err := listener.Listen(f.channel); err != nil {
		listener.Close()
		return nil, fmt.Errorf("failed to listen on channel %s: %w", f.channel, err)
	}
	f.logger.WithField("channel", f.channel).Info("Listening for record changes")

	out := make(chan subscriber.ChangeEvent, changeBufferSize)
	go func() {
		defer close(out)
		defer listener.Close()

		ping := time.NewTicker(listenerPingInterval)
		defer ping.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ping.C:
				go func() {
					if err := listener.Ping(); err != nil {
						f.logger.WithError(err).Debug("Change feed ping failed")
					}
				}()
			case n, ok := <-listener.Notify:
				if !ok {
					return
				}
				var ev subscriber.ChangeEvent
				if n == nil {
					ev = subscriber.ChangeEvent{Resync: true}
				} else {
					decoded, err := DecodeChange(n.Extra)
					if err != nil {
						f.logger.WithError(err).WithField("payload", n.Extra).Error("Discarding malformed change notification")
						continue
					}
					ev = decoded
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// DecodeChange parses a NOTIFY payload produced by notify_record_change().
func DecodeChange(raw string) (subscriber.ChangeEvent, error) {
	var p changePayload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return subscriber.ChangeEvent{}, fmt.Errorf("decode change payload: %w", err)
	}
	if p.ID == "" {
		return subscriber.ChangeEvent{}, fmt.Errorf("change payload without id")
	}

	ev := subscriber.ChangeEvent{ID: p.ID}
	switch subscriber.Collection(p.Collection) {
	case subscriber.CollectionSubscribers, subscriber.CollectionGroups:
		ev.Collection = subscriber.Collection(p.Collection)
	default:
		return subscriber.ChangeEvent{}, fmt.Errorf("unknown collection %q", p.Collection)
	}
	switch subscriber.Operation(p.Operation) {
	case subscriber.OperationCreated, subscriber.OperationUpdated, subscriber.OperationDeleted:
		ev.Operation = subscriber.Operation(p.Operation)
	default:
		return subscriber.ChangeEvent{}, fmt.Errorf("unknown operation %q", p.Operation)
	}
	return ev, nil
}
