// Package cronplanner runs the recurring planning jobs that fan scheduled
// work out to individual job records: a heartbeat diagnostic, per-user
// daily summary scheduling, per-user work-sampling prompt scheduling, and
// periodic user profile sync. Only the process holding the singleton lock
// actually fires ticks; the rest sit idle, competing for the lock.
package cronplanner

import (
	"context"
	"log/slog"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"

	"github.com/eykd/companion-memory/clock"
	"github.com/eykd/companion-memory/lock"
)

// cronParser matches standard 5-field cron plus "@every"/"@daily"-style
// descriptors.
var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor,
)

// Planner is one recurring job a Runner drives on its own cron schedule.
type Planner interface {
	// Name identifies the planner in logs.
	Name() string
	// Spec is the cron expression (or "@every ..." descriptor) governing
	// how often Run fires.
	Spec() string
	// Run executes one planning tick at the given instant.
	Run(ctx context.Context, now time.Time) error
}

type entry struct {
	planner Planner
	sched   cronlib.Schedule
	nextRun time.Time
}

// Runner drives a set of Planners on a tick loop, firing each only while
// this process holds the singleton lock.
type Runner struct {
	lock   *lock.SingletonLock
	clock  clock.Clock
	logger *slog.Logger

	tickInterval time.Duration

	mu      sync.Mutex
	entries []*entry

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// Option configures a Runner.
type Option func(*Runner)

// WithTickInterval sets how often the runner checks for due planners.
func WithTickInterval(d time.Duration) Option {
	return func(r *Runner) { r.tickInterval = d }
}

// WithClock overrides the clock used to evaluate cron schedules.
func WithClock(c clock.Clock) Option { return func(r *Runner) { r.clock = c } }

// NewRunner builds a Runner gated by l, registering each planner in
// planners. A malformed cron spec is a programming error and panics at
// construction time rather than surfacing as a runtime error on every
// tick.
func NewRunner(l *lock.SingletonLock, logger *slog.Logger, planners []Planner, opts ...Option) *Runner {
	r := &Runner{
		lock:         l,
		clock:        clock.New(),
		logger:       logger,
		tickInterval: 10 * time.Second,
		stopCh:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}

	now := r.clock.Now()
	for _, p := range planners {
		sched, err := cronParser.Parse(p.Spec())
		if err != nil {
			panic("cronplanner: invalid schedule for " + p.Name() + ": " + err.Error())
		}
		r.entries = append(r.entries, &entry{planner: p, sched: sched, nextRun: sched.Next(now)})
	}
	return r
}

// Run drives the lock refresh loop and the planner tick loop until ctx is
// cancelled.
func (r *Runner) Run(ctx context.Context) {
	r.wg.Add(2)
	go func() {
		defer r.wg.Done()
		r.lock.RunRefreshLoop(ctx)
	}()
	go func() {
		defer r.wg.Done()
		r.tickLoop(ctx)
	}()
	r.wg.Wait()
}

// Stop signals the tick loop to exit and returns without waiting for it.
// The lock refresh loop keeps running until the context passed to Run is
// cancelled, so Run returns only after that.
func (r *Runner) Stop() {
	select {
	case <-r.stopCh:
	default:
		close(r.stopCh)
	}
}

func (r *Runner) tickLoop(ctx context.Context) {
	ticker := time.NewTicker(r.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

func (r *Runner) tick(ctx context.Context) {
	if !r.lock.IsLeader() {
		return
	}

	now := r.clock.Now()

	r.mu.Lock()
	due := make([]*entry, 0)
	for _, e := range r.entries {
		if !e.nextRun.After(now) {
			due = append(due, e)
			e.nextRun = e.sched.Next(now)
		}
	}
	r.mu.Unlock()

	for _, e := range due {
		if err := e.planner.Run(ctx, now); err != nil {
			r.logger.Error("planner tick failed",
				slog.String("planner", e.planner.Name()),
				slog.String("error", err.Error()),
			)
		}
	}
}
