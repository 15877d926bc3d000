package subscriber

import (
	"context"
)

// Repository is the read side of the subscriber/group record store.
// Find methods return an error wrapping domain.ErrOwnerNotFound for missing records.
type Repository interface {
	FindSubscriber(ctx context.Context, id string) (*Subscriber, error)
	FindSubscribers(ctx context.Context, ids []string) ([]*Subscriber, error) // missing IDs are skipped
	ListSubscribers(ctx context.Context) ([]*Subscriber, error)
	FindGroup(ctx context.Context, id string) (*Group, error)
	ListGroups(ctx context.Context) ([]*Group, error)
}

// Collection names the record collection a change refers to.
type Collection string

const (
	CollectionSubscribers Collection = "subscribers"
	CollectionGroups      Collection = "groups"
)

// Operation is the kind of change applied to a record.
type Operation string

const (
	OperationCreated Operation = "created"
	OperationUpdated Operation = "updated"
	OperationDeleted Operation = "deleted"
)

// ChangeEvent describes one change in the record store.
// Resync is set when the feed may have lost events (e.g. after a reconnect);
// consumers must then re-read the whole population.
type ChangeEvent struct {
	Collection Collection
	Operation  Operation
	ID         string
	Subscriber *Subscriber // optional snapshot
	Group      *Group      // optional snapshot
	Resync     bool
}

// ChangeFeed delivers change events in per-document order.
// The returned channel is closed when ctx is done or the feed fails permanently.
type ChangeFeed interface {
	Subscribe(ctx context.Context) (<-chan ChangeEvent, error)
}
