package cronplanner

import (
	"context"
	"log/slog"
	"time"

	"github.com/eykd/companion-memory/collab"
	"github.com/eykd/companion-memory/scheduling"
)

// DailySummaryJobType is the job_type a daily summary job is scheduled
// under.
const DailySummaryJobType = "daily_summary"

// DailySummaryPayload is the payload passed to the daily summary handler.
type DailySummaryPayload struct {
	UserID string `json:"user_id" validate:"required"`
}

// DailySummaryPlanner schedules one daily_summary job per known user for
// their next local 7:00 AM, deduplicated per calendar day so a repeated
// tick never double-books a user.
type DailySummaryPlanner struct {
	settings  collab.UserSettingsStore
	scheduler *scheduling.Scheduler
	logger    *slog.Logger
}

// NewDailySummaryPlanner builds a DailySummaryPlanner.
func NewDailySummaryPlanner(settings collab.UserSettingsStore, scheduler *scheduling.Scheduler, logger *slog.Logger) *DailySummaryPlanner {
	return &DailySummaryPlanner{settings: settings, scheduler: scheduler, logger: logger}
}

// Name identifies this planner in logs.
func (p *DailySummaryPlanner) Name() string { return "daily_summary_planner" }

// Spec fires the planner daily at 00:00 UTC; the dedup bucket (not this
// interval) is what guarantees one summary per user per day.
func (p *DailySummaryPlanner) Spec() string { return "0 0 * * *" }

// Run schedules the next daily summary for every known user.
func (p *DailySummaryPlanner) Run(ctx context.Context, now time.Time) error {
	users, err := p.settings.GetAllUsers(ctx)
	if err != nil {
		return err
	}

	for _, userID := range users {
		loc := p.userLocation(ctx, userID)
		nextLocal, nextUTC := nextLocalHour(now, loc, 7)

		_, err := p.scheduler.Schedule(ctx, DailySummaryJobType, DailySummaryPayload{UserID: userID}, nextUTC,
			scheduling.WithLogicalID("daily_summary:"+userID),
			scheduling.WithBucket(nextLocal.Format("2006-01-02")),
		)
		if err != nil {
			p.logger.Error("schedule daily summary failed",
				slog.String("user_id", userID), slog.String("error", err.Error()))
		}
	}
	return nil
}

func (p *DailySummaryPlanner) userLocation(ctx context.Context, userID string) *time.Location {
	settings, err := p.settings.GetUserSettings(ctx, userID)
	if err != nil || settings.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(settings.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// nextLocalHour returns the next occurrence of hour:00:00 in loc strictly
// after now (a now of exactly hour:00:00 yields the following day), both
// as a local-time value and its UTC equivalent.
func nextLocalHour(now time.Time, loc *time.Location, hour int) (local time.Time, utc time.Time) {
	nowLocal := now.In(loc)
	todayAtHour := time.Date(nowLocal.Year(), nowLocal.Month(), nowLocal.Day(), hour, 0, 0, 0, loc)

	next := todayAtHour
	if !nowLocal.Before(todayAtHour) {
		next = todayAtHour.AddDate(0, 0, 1)
	}
	return next, next.UTC()
}
