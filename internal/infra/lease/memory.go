package lease

import (
	"context"
	"sync"
	"time"

	"notification_scheduler/internal/domain/schedule"
)

// MemoryLeases is a process-local lease store for single-instance deployments.
type MemoryLeases struct {
	mu      sync.Mutex
	expires map[string]time.Time
	now     func() time.Time
}

var _ schedule.LeaseStore = (*MemoryLeases)(nil)

func NewMemory() *MemoryLeases {
	return &MemoryLeases{expires: make(map[string]time.Time), now: time.Now}
}

// Acquire implements schedule.LeaseStore.
func (l *MemoryLeases) Acquire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if exp, ok := l.expires[key]; ok && now.Before(exp) {
		return false, nil
	}
	l.expires[key] = now.Add(ttl)

	// Leases are keyed per minute, so expired ones are never looked up again.
	for k, exp := range l.expires {
		if !now.Before(exp) {
			delete(l.expires, k)
		}
	}
	return true, nil
}
