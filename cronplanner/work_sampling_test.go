package cronplanner_test

import (
	"context"
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

func newSchedulerWithWorkSampling(s *memory.Store) *scheduling.Scheduler {
	reg := registry.New()
	registry.RegisterDefinition(reg, registry.NewDefinition("work_sampling_prompt", func(ctx *registry.RunContext, p cronplanner.WorkSamplingPayload) error {
		return nil
	}))
	return scheduling.New(s, reg)
}

func TestWorkSamplingPlanner_SchedulesFiveSlotsWithinWorkday(t *testing.T) {
	s := memory.New()
	sch := newSchedulerWithWorkSampling(s)
	settings := &fakeUserSettings{
		users: []string{"user1"},
		settings: map[string]collab.UserSettings{
			"user1": {UserID: "user1", Timezone: "America/New_York"},
		},
	}
	p := cronplanner.NewWorkSamplingPlanner(settings, sch, discardLogger())

	now := time.Date(2025, 7, 12, 0, 0, 0, 0, time.UTC)
	require.NoError(t, p.Run(context.Background(), now))

	due, err := s.QueryDue(context.Background(), now.Add(48*time.Hour), 100)
	require.NoError(t, err)
	require.Len(t, due, 5)

	nyLoc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	for _, rec := range due {
		local := rec.ScheduledFor.In(nyLoc)
		assert.True(t, local.Hour() >= 8 && local.Hour() < 17, "slot must fall within the 8-17 local workday")
	}
}

func TestWorkSamplingPlanner_RerunForSameDayIsDeduplicated(t *testing.T) {
	s := memory.New()
	sch := newSchedulerWithWorkSampling(s)
	settings := &fakeUserSettings{
		users: []string{"user1"},
		settings: map[string]collab.UserSettings{
			"user1": {UserID: "user1", Timezone: "America/New_York"},
		},
	}
	p := cronplanner.NewWorkSamplingPlanner(settings, sch, discardLogger())

	// Midnight UTC on July 12 is still July 11 locally in New York.
	now := time.Date(2025, 7, 12, 0, 0, 0, 0, time.UTC)
	require.NoError(t, p.Run(context.Background(), now))

	// Re-running the same tick must be fully deduplicated (same logical
	// IDs), proving the bucket/logical-id pair is deterministic.
	require.NoError(t, p.Run(context.Background(), now))

	due, err := s.QueryDue(context.Background(), now.Add(48*time.Hour), 100)
	require.NoError(t, err)
	assert.Len(t, due, 5, "re-running the planner for an already-scheduled day must not duplicate slots")
}

func TestWorkSamplingPlanner_DeterministicAcrossRuns(t *testing.T) {
	s1 := memory.New()
	s2 := memory.New()
	settings := &fakeUserSettings{users: []string{"user1"}}

	p1 := cronplanner.NewWorkSamplingPlanner(settings, newSchedulerWithWorkSampling(s1), discardLogger())
	p2 := cronplanner.NewWorkSamplingPlanner(settings, newSchedulerWithWorkSampling(s2), discardLogger())

	now := time.Date(2025, 7, 12, 0, 0, 0, 0, time.UTC)
	require.NoError(t, p1.Run(context.Background(), now))
	require.NoError(t, p2.Run(context.Background(), now))

	due1, err := s1.QueryDue(context.Background(), now.Add(48*time.Hour), 100)
	require.NoError(t, err)
	due2, err := s2.QueryDue(context.Background(), now.Add(48*time.Hour), 100)
	require.NoError(t, err)

	require.Len(t, due1, 5)
	require.Len(t, due2, 5)
	for i := range due1 {
		assert.Equal(t, due1[i].ScheduledFor, due2[i].ScheduledFor)
	}
}

func TestWorkSamplingPlanner_UnknownTimezoneFallsBackToUTC(t *testing.T) {
	s := memory.New()
	sch := newSchedulerWithWorkSampling(s)
	settings := &fakeUserSettings{
		users: []string{"user_bad_tz"},
		settings: map[string]collab.UserSettings{
			"user_bad_tz": {UserID: "user_bad_tz", Timezone: "Invalid/Timezone"},
		},
	}
	p := cronplanner.NewWorkSamplingPlanner(settings, sch, discardLogger())

	now := time.Date(2025, 7, 12, 0, 0, 0, 0, time.UTC)
	require.NoError(t, p.Run(context.Background(), now))

	due, err := s.QueryDue(context.Background(), now.Add(48*time.Hour), 100)
	require.NoError(t, err)
	require.Len(t, due, 5)
	for _, rec := range due {
		h := rec.ScheduledFor.UTC().Hour()
		assert.True(t, h >= 8 && h < 17)
	}
}
