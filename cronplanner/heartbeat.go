package cronplanner

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/eykd/companion-memory/scheduling"
)

// HeartbeatPayload is the payload for the follow-up heartbeat_event job a
// HeartbeatPlanner schedules after every timed tick.
type HeartbeatPayload struct {
	HeartbeatID string `json:"heartbeat_id" validate:"required"`
}

// heartbeatEventDelay is how far in the future the follow-up event job is
// scheduled after a timed heartbeat tick.
const heartbeatEventDelay = 10 * time.Second

// HeartbeatJobType is the job_type the follow-up heartbeat_event job is
// registered under.
const HeartbeatJobType = "heartbeat_event"

// HeartbeatPlanner logs a timed heartbeat once a minute and schedules an
// event-based follow-up job 10 seconds later, completing the round trip
// that proves the scheduler, the job queue, and a worker are all alive.
type HeartbeatPlanner struct {
	scheduler *scheduling.Scheduler
	logger    *slog.Logger
}

// NewHeartbeatPlanner builds a HeartbeatPlanner.
func NewHeartbeatPlanner(scheduler *scheduling.Scheduler, logger *slog.Logger) *HeartbeatPlanner {
	return &HeartbeatPlanner{scheduler: scheduler, logger: logger}
}

// Name identifies this planner in logs.
func (p *HeartbeatPlanner) Name() string { return "heartbeat_timed" }

// Spec fires the planner once a minute.
func (p *HeartbeatPlanner) Spec() string { return "@every 1m" }

// Run generates a time-ordered UUID, logs the timed heartbeat, and
// schedules the heartbeat_event follow-up.
func (p *HeartbeatPlanner) Run(ctx context.Context, now time.Time) error {
	u, err := uuid.NewUUID()
	if err != nil {
		u = uuid.New()
	}

	p.logger.Info("heartbeat (timed)", slog.String("uuid", u.String()))

	_, err = p.scheduler.Schedule(ctx, HeartbeatJobType, HeartbeatPayload{HeartbeatID: u.String()}, now.Add(heartbeatEventDelay))
	return err
}
