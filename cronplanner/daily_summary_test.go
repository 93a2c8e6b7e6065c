package cronplanner_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eykd/companion-memory/collab"
	"github.com/eykd/companion-memory/cronplanner"
	"github.com/eykd/companion-memory/registry"
	"github.com/eykd/companion-memory/scheduling"
	"github.com/eykd/companion-memory/store/memory"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeUserSettings struct {
	users    []string
	settings map[string]collab.UserSettings
}

func (f *fakeUserSettings) GetUserSettings(_ context.Context, userID string) (collab.UserSettings, error) {
	return f.settings[userID], nil
}

func (f *fakeUserSettings) UpdateUserSettings(_ context.Context, userID string, settings collab.UserSettings) error {
	if f.settings == nil {
		f.settings = make(map[string]collab.UserSettings)
	}
	f.settings[userID] = settings
	return nil
}

func (f *fakeUserSettings) GetAllUsers(_ context.Context) ([]string, error) {
	return f.users, nil
}

func newSchedulerWithDailySummary(s *memory.Store) *scheduling.Scheduler {
	reg := registry.New()
	registry.RegisterDefinition(reg, registry.NewDefinition("daily_summary", func(ctx *registry.RunContext, p cronplanner.DailySummaryPayload) error {
		return nil
	}))
	return scheduling.New(s, reg)
}

func TestDailySummaryPlanner_SchedulesNext7amPerUser(t *testing.T) {
	s := memory.New()
	sch := newSchedulerWithDailySummary(s)
	settings := &fakeUserSettings{
		users: []string{"U1"},
		settings: map[string]collab.UserSettings{
			"U1": {UserID: "U1", Timezone: "America/New_York"},
		},
	}

	p := cronplanner.NewDailySummaryPlanner(settings, sch, discardLogger())

	// Midnight UTC on 2025-07-12: still 2025-07-11 evening in New York.
	now := time.Date(2025, 7, 12, 0, 0, 0, 0, time.UTC)
	require.NoError(t, p.Run(context.Background(), now))

	due, err := s.QueryDue(context.Background(), now.Add(24*time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "daily_summary", due[0].JobType)

	nyLoc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	localScheduled := due[0].ScheduledFor.In(nyLoc)
	assert.Equal(t, 7, localScheduled.Hour())
}

func TestDailySummaryPlanner_DedupesWithinSameDay(t *testing.T) {
	s := memory.New()
	sch := newSchedulerWithDailySummary(s)
	settings := &fakeUserSettings{
		users: []string{"U1"},
		settings: map[string]collab.UserSettings{
			"U1": {UserID: "U1", Timezone: "UTC"},
		},
	}
	p := cronplanner.NewDailySummaryPlanner(settings, sch, discardLogger())

	now := time.Date(2025, 7, 12, 1, 0, 0, 0, time.UTC)
	require.NoError(t, p.Run(context.Background(), now))
	require.NoError(t, p.Run(context.Background(), now.Add(time.Hour)))

	due, err := s.QueryDue(context.Background(), now.Add(48*time.Hour), 10)
	require.NoError(t, err)
	assert.Len(t, due, 1, "repeated ticks within the same day must not double-book")
}

func TestDailySummaryPlanner_MissingTimezoneFallsBackToUTC(t *testing.T) {
	s := memory.New()
	sch := newSchedulerWithDailySummary(s)
	settings := &fakeUserSettings{users: []string{"U2"}}
	p := cronplanner.NewDailySummaryPlanner(settings, sch, discardLogger())

	now := time.Date(2025, 7, 12, 1, 0, 0, 0, time.UTC)
	require.NoError(t, p.Run(context.Background(), now))

	due, err := s.QueryDue(context.Background(), now.Add(48*time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, 7, due[0].ScheduledFor.UTC().Hour())
}
