// Package lock implements the distributed singleton lock that gates cron
// planners: only the process currently holding the lock runs them.
package lock

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/eykd/companion-memory/clock"
	"github.com/eykd/companion-memory/store"
)

const (
	defaultTTL             = 90 * time.Second
	defaultRefreshInterval = 30 * time.Second
)

// SingletonLock competes for the one system#scheduler lock record and
// tracks whether this process currently holds it.
type SingletonLock struct {
	store     store.LockStore
	clock     clock.Clock
	logger    *slog.Logger
	processID string
	ttl       time.Duration
	refresh   time.Duration

	mu      sync.RWMutex
	holding bool
}

// Option configures a SingletonLock.
type Option func(*SingletonLock)

// WithTTL sets the lock's time-to-live, refreshed on every successful
// Refresh call.
func WithTTL(d time.Duration) Option { return func(l *SingletonLock) { l.ttl = d } }

// WithRefreshInterval sets how often RunRefreshLoop attempts Acquire
// (when unheld) or Refresh (when held).
func WithRefreshInterval(d time.Duration) Option {
	return func(l *SingletonLock) { l.refresh = d }
}

// WithClock overrides the clock used for TTL math.
func WithClock(c clock.Clock) Option { return func(l *SingletonLock) { l.clock = c } }

// WithProcessID overrides the generated process identifier.
func WithProcessID(id string) Option { return func(l *SingletonLock) { l.processID = id } }

// New builds a SingletonLock over the given backing store.
func New(s store.LockStore, logger *slog.Logger, opts ...Option) *SingletonLock {
	l := &SingletonLock{
		store:     s,
		clock:     clock.New(),
		logger:    logger,
		processID: fmt.Sprintf("%d-%s", os.Getpid(), uuid.NewString()),
		ttl:       defaultTTL,
		refresh:   defaultRefreshInterval,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// ProcessID returns this instance's unique process identifier.
func (l *SingletonLock) ProcessID() string { return l.processID }

// IsLeader reports whether this process currently believes it holds the
// lock. This is a local, possibly-stale view between refresh ticks.
func (l *SingletonLock) IsLeader() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.holding
}

func (l *SingletonLock) instanceInfo() map[string]string {
	hostname, _ := os.Hostname()
	return map[string]string{
		"pid":      fmt.Sprintf("%d", os.Getpid()),
		"hostname": hostname,
	}
}

// TryAcquire attempts to become leader. Safe to call whether or not the
// lock is currently held.
func (l *SingletonLock) TryAcquire(ctx context.Context) (bool, error) {
	ok, err := l.store.Acquire(ctx, l.processID, l.ttl, l.clock.Now(), l.instanceInfo())
	if err != nil {
		return false, err
	}

	l.mu.Lock()
	l.holding = ok
	l.mu.Unlock()

	if ok {
		l.logger.Info("acquired singleton lock", slog.String("process_id", l.processID))
	}
	return ok, nil
}

// Refresh extends the lock's TTL if this process still holds it. If the
// lock was lost (expired and reclaimed elsewhere), holding flips to false
// and the caller should stop firing cron ticks.
func (l *SingletonLock) Refresh(ctx context.Context) (bool, error) {
	l.mu.RLock()
	wasHolding := l.holding
	l.mu.RUnlock()
	if !wasHolding {
		return false, nil
	}

	ok, err := l.store.Refresh(ctx, l.processID, l.ttl, l.clock.Now())
	if err != nil {
		return false, err
	}

	l.mu.Lock()
	l.holding = ok
	l.mu.Unlock()

	if !ok {
		l.logger.Warn("lost singleton lock", slog.String("process_id", l.processID))
	}
	return ok, nil
}

// Release gives up the lock if held. Best-effort: a failed release simply
// leaves the lock to expire on its own TTL.
func (l *SingletonLock) Release(ctx context.Context) {
	l.mu.Lock()
	wasHolding := l.holding
	l.holding = false
	l.mu.Unlock()

	if !wasHolding {
		return
	}
	if err := l.store.Release(ctx, l.processID); err != nil {
		l.logger.Warn("failed to release singleton lock", slog.String("error", err.Error()))
	}
}

// RunRefreshLoop alternates between Acquire (while not leader) and Refresh
// (while leader) on the configured interval, until ctx is cancelled.
func (l *SingletonLock) RunRefreshLoop(ctx context.Context) {
	ticker := time.NewTicker(l.refresh)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.Release(context.Background())
			return
		case <-ticker.C:
			if l.IsLeader() {
				if _, err := l.Refresh(ctx); err != nil {
					l.logger.Error("lock refresh error", slog.String("error", err.Error()))
				}
			} else {
				if _, err := l.TryAcquire(ctx); err != nil {
					l.logger.Error("lock acquire error", slog.String("error", err.Error()))
				}
			}
		}
	}
}
