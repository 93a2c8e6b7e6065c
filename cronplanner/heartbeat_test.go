package cronplanner_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eykd/companion-memory/cronplanner"
	"github.com/eykd/companion-memory/registry"
	"github.com/eykd/companion-memory/scheduling"
	"github.com/eykd/companion-memory/store/memory"
)

func TestHeartbeatPlanner_SchedulesEventJobTenSecondsOut(t *testing.T) {
	s := memory.New()
	reg := registry.New()
	registry.RegisterDefinition(reg, registry.NewDefinition(cronplanner.HeartbeatJobType, func(ctx *registry.RunContext, p cronplanner.HeartbeatPayload) error {
		return nil
	}))
	sch := scheduling.New(s, reg)

	p := cronplanner.NewHeartbeatPlanner(sch, discardLogger())
	assert.Equal(t, "@every 1m", p.Spec())

	now := time.Date(2025, 7, 12, 9, 0, 0, 0, time.UTC)
	require.NoError(t, p.Run(context.Background(), now))

	due, err := s.QueryDue(context.Background(), now.Add(time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, cronplanner.HeartbeatJobType, due[0].JobType)
	assert.Equal(t, now.Add(10*time.Second), due[0].ScheduledFor)
}
