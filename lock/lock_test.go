package lock_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eykd/companion-memory/clock"
	"github.com/eykd/companion-memory/lock"
	"github.com/eykd/companion-memory/store/memory"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSingletonLock_ExclusiveAcquire(t *testing.T) {
	s := memory.New()
	fake := clock.NewFake(time.Now().UTC())

	l1 := lock.New(s, discardLogger(), lock.WithClock(fake), lock.WithProcessID("p1"))
	l2 := lock.New(s, discardLogger(), lock.WithClock(fake), lock.WithProcessID("p2"))

	ok1, err := l1.TryAcquire(context.Background())
	require.NoError(t, err)
	assert.True(t, ok1)
	assert.True(t, l1.IsLeader())

	ok2, err := l2.TryAcquire(context.Background())
	require.NoError(t, err)
	assert.False(t, ok2)
	assert.False(t, l2.IsLeader())
}

func TestSingletonLock_AcquirableAfterExpiryAndGapHasNoLeader(t *testing.T) {
	s := memory.New()
	fake := clock.NewFake(time.Now().UTC())

	l1 := lock.New(s, discardLogger(), lock.WithClock(fake), lock.WithProcessID("p1"), lock.WithTTL(90*time.Second))
	l2 := lock.New(s, discardLogger(), lock.WithClock(fake), lock.WithProcessID("p2"), lock.WithTTL(90*time.Second))

	ok, err := l1.TryAcquire(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	// l1 dies without releasing. During the gap, l2 must not be able to
	// acquire until the TTL has actually elapsed.
	fake.Advance(89 * time.Second)
	ok, err = l2.TryAcquire(context.Background())
	require.NoError(t, err)
	assert.False(t, ok, "lock must still be held just before expiry")

	fake.Advance(2 * time.Second)
	ok, err = l2.TryAcquire(context.Background())
	require.NoError(t, err)
	assert.True(t, ok, "lock must be acquirable once the TTL has elapsed")
}

func TestSingletonLock_RefreshLosesLockReturnsFalse(t *testing.T) {
	s := memory.New()
	fake := clock.NewFake(time.Now().UTC())

	l1 := lock.New(s, discardLogger(), lock.WithClock(fake), lock.WithProcessID("p1"), lock.WithTTL(time.Second))
	ok, err := l1.TryAcquire(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	fake.Advance(2 * time.Second)

	l2 := lock.New(s, discardLogger(), lock.WithClock(fake), lock.WithProcessID("p2"), lock.WithTTL(time.Second))
	ok, err = l2.TryAcquire(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	refreshed, err := l1.Refresh(context.Background())
	require.NoError(t, err)
	assert.False(t, refreshed)
	assert.False(t, l1.IsLeader())
}

func TestSingletonLock_ReleaseAllowsReacquire(t *testing.T) {
	s := memory.New()
	fake := clock.NewFake(time.Now().UTC())

	l1 := lock.New(s, discardLogger(), lock.WithClock(fake), lock.WithProcessID("p1"))
	ok, err := l1.TryAcquire(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	l1.Release(context.Background())
	assert.False(t, l1.IsLeader())

	l2 := lock.New(s, discardLogger(), lock.WithClock(fake), lock.WithProcessID("p2"))
	ok, err = l2.TryAcquire(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
}
