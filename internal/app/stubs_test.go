package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"notification_scheduler/internal/domain"
	"notification_scheduler/internal/domain/notification"
	"notification_scheduler/internal/domain/schedule"
	"notification_scheduler/internal/domain/subscriber"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

func testLogger() (*logrus.Entry, *test.Hook) {
	l, hook := test.NewNullLogger()
	l.SetLevel(logrus.DebugLevel)
	return logrus.NewEntry(l), hook
}

func dow(d subscriber.DayOfWeek) *subscriber.DayOfWeek { return &d }

// stubRecords is an in-memory subscriber.Repository.
type stubRecords struct {
	mu          sync.Mutex
	subscribers map[string]*subscriber.Subscriber
	groups      map[string]*subscriber.Group
	err         error
}

func newStubRecords() *stubRecords {
	return &stubRecords{
		subscribers: make(map[string]*subscriber.Subscriber),
		groups:      make(map[string]*subscriber.Group),
	}
}

func (s *stubRecords) addSubscriber(sub *subscriber.Subscriber) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers[sub.ID] = sub
}

func (s *stubRecords) addGroup(g *subscriber.Group) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.groups[g.ID] = g
}

func (s *stubRecords) FindSubscriber(_ context.Context, id string) (*subscriber.Subscriber, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	sub, ok := s.subscribers[id]
	if !ok {
		return nil, fmt.Errorf("subscriber %s: %w", id, domain.ErrOwnerNotFound)
	}
	return sub, nil
}

func (s *stubRecords) FindSubscribers(_ context.Context, ids []string) ([]*subscriber.Subscriber, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	out := make([]*subscriber.Subscriber, 0, len(ids))
	for _, id := range ids {
		if sub, ok := s.subscribers[id]; ok {
			out = append(out, sub)
		}
	}
	return out, nil
}

func (s *stubRecords) ListSubscribers(context.Context) ([]*subscriber.Subscriber, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	out := make([]*subscriber.Subscriber, 0, len(s.subscribers))
	for _, sub := range s.subscribers {
		out = append(out, sub)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *stubRecords) FindGroup(_ context.Context, id string) (*subscriber.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	g, ok := s.groups[id]
	if !ok {
		return nil, fmt.Errorf("group %s: %w", id, domain.ErrOwnerNotFound)
	}
	return g, nil
}

func (s *stubRecords) ListGroups(context.Context) ([]*subscriber.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	out := make([]*subscriber.Group, 0, len(s.groups))
	for _, g := range s.groups {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// memLedger is an in-memory notification.Ledger with the same uniqueness rule
// as the sent_notifications table.
type memLedger struct {
	mu       sync.Mutex
	records  []*notification.SentRecord
	checkErr error
}

func (l *memLedger) SentWithin(_ context.Context, subscriberID, groupID string, category notification.Category, window notification.DayWindow) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.checkErr != nil {
		return false, l.checkErr
	}
	for _, r := range l.records {
		if r.SubscriberID == subscriberID && r.GroupID == groupID && r.Category == category && r.LocalDay.Equal(window.Date()) {
			return true, nil
		}
	}
	return false, nil
}

func (l *memLedger) Append(_ context.Context, rec *notification.SentRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, r := range l.records {
		if r.SubscriberID == rec.SubscriberID && r.GroupID == rec.GroupID && r.Category == rec.Category && r.LocalDay.Equal(rec.LocalDay) {
			return notification.ErrDuplicateSentRecord
		}
	}
	l.records = append(l.records, rec)
	return nil
}

func (l *memLedger) all() []*notification.SentRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*notification.SentRecord(nil), l.records...)
}

type sentMail struct {
	To, Subject, Body string
}

// stubTransport records sends and fails for addresses listed in failFor.
type stubTransport struct {
	mu      sync.Mutex
	sent    []sentMail
	failFor map[string]error
}

func (t *stubTransport) Send(_ context.Context, to, subject, body string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err, ok := t.failFor[to]; ok {
		return err
	}
	t.sent = append(t.sent, sentMail{To: to, Subject: subject, Body: body})
	return nil
}

func (t *stubTransport) heal(to string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.failFor, to)
}

func (t *stubTransport) sentTo(to string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, m := range t.sent {
		if m.To == to {
			n++
		}
	}
	return n
}

// memStore is an in-memory schedule.Store. The first failUpserts upserts fail
// with ErrStoreUnavailable.
type memStore struct {
	mu          sync.Mutex
	records     map[schedule.Owner]*schedule.Record
	failUpserts int
	upserts     int
	cancels     []schedule.Owner
}

func newMemStore() *memStore {
	return &memStore{records: make(map[schedule.Owner]*schedule.Record)}
}

func (s *memStore) Upsert(_ context.Context, rec *schedule.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failUpserts > 0 {
		s.failUpserts--
		return fmt.Errorf("upsert: %w: %w", domain.ErrStoreUnavailable, errors.New("connection reset"))
	}
	cp := *rec
	s.records[rec.Owner] = &cp
	s.upserts++
	return nil
}

func (s *memStore) Cancel(_ context.Context, owner schedule.Owner) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, owner)
	s.cancels = append(s.cancels, owner)
	return nil
}

func (s *memStore) All(context.Context) ([]*schedule.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*schedule.Record, 0, len(s.records))
	for _, r := range s.records {
		cp := *r
		out = append(out, &cp)
	}
	return out, nil
}

func (s *memStore) get(owner schedule.Owner) (*schedule.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[owner]
	return r, ok
}

func (s *memStore) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// chanFeed is a subscriber.ChangeFeed backed by a channel the test owns.
type chanFeed struct {
	events chan subscriber.ChangeEvent
	err    error
}

func (f *chanFeed) Subscribe(context.Context) (<-chan subscriber.ChangeEvent, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.events, nil
}
