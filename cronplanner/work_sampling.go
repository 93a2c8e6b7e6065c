package cronplanner

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/eykd/companion-memory/collab"
	"github.com/eykd/companion-memory/scheduling"
)

// WorkSamplingJobType is the job_type a work sampling prompt job is
// scheduled under.
const WorkSamplingJobType = "work_sampling_prompt"

// defaultWorkSamplingSlots is how many prompts are scheduled per user per
// workday when PromptsPerDay is left at its zero value.
const defaultWorkSamplingSlots = 5

const (
	workdayStartHour = 8
	workdayEndHour   = 17
)

// WorkSamplingPayload is the payload passed to the work sampling prompt
// handler.
type WorkSamplingPayload struct {
	UserID    string `json:"user_id" validate:"required"`
	SlotIndex int    `json:"slot_index"`
}

// WorkSamplingPlanner schedules PromptsPerDay work-sampling prompts for
// every known user, spread across their local 8:00-17:00 workday. Slot
// times are derived from a seeded hash of (user, local date, slot index)
// so re-running the planner for a day already scheduled reproduces
// identical times; the dedup index (keyed on the same triple) is what
// actually prevents double-scheduling.
type WorkSamplingPlanner struct {
	settings      collab.UserSettingsStore
	scheduler     *scheduling.Scheduler
	logger        *slog.Logger
	PromptsPerDay int
}

// NewWorkSamplingPlanner builds a WorkSamplingPlanner with the default
// prompt count (5 per day).
func NewWorkSamplingPlanner(settings collab.UserSettingsStore, scheduler *scheduling.Scheduler, logger *slog.Logger) *WorkSamplingPlanner {
	return &WorkSamplingPlanner{settings: settings, scheduler: scheduler, logger: logger, PromptsPerDay: defaultWorkSamplingSlots}
}

// Name identifies this planner in logs.
func (p *WorkSamplingPlanner) Name() string { return "work_sampling_planner" }

// Spec fires the planner daily at 00:00 UTC; the dedup index (not this
// interval) is what guarantees each user gets exactly PromptsPerDay
// prompts per day.
func (p *WorkSamplingPlanner) Spec() string { return "0 0 * * *" }

// Run schedules every work-sampling prompt slot of each known user's
// local date at now, including slots whose time has already passed.
func (p *WorkSamplingPlanner) Run(ctx context.Context, now time.Time) error {
	n := p.PromptsPerDay
	if n <= 0 {
		n = defaultWorkSamplingSlots
	}

	users, err := p.settings.GetAllUsers(ctx)
	if err != nil {
		return err
	}

	for _, userID := range users {
		loc := p.userLocation(ctx, userID)
		nowLocal := now.In(loc)
		localDate := nowLocal.Format("2006-01-02")

		dayStart := time.Date(nowLocal.Year(), nowLocal.Month(), nowLocal.Day(), workdayStartHour, 0, 0, 0, loc)
		window := time.Duration(workdayEndHour-workdayStartHour) * time.Hour
		slotWidth := window / time.Duration(n)

		for i := 0; i < n; i++ {
			logicalID := fmt.Sprintf("%s:%s:%d", WorkSamplingJobType, userID, i)
			slotStart := dayStart.Add(time.Duration(i) * slotWidth)
			seed := fmt.Sprintf("%s-%s-%d", userID, localDate, i)
			offset := time.Duration(seededFraction(seed) * float64(slotWidth))
			scheduledLocal := slotStart.Add(offset)

			_, err := p.scheduler.Schedule(ctx, WorkSamplingJobType,
				WorkSamplingPayload{UserID: userID, SlotIndex: i}, scheduledLocal.UTC(),
				scheduling.WithLogicalID(logicalID),
				scheduling.WithBucket(localDate),
			)
			if err != nil {
				p.logger.Error("schedule work sampling prompt failed",
					slog.String("user_id", userID), slog.Int("slot_index", i), slog.String("error", err.Error()))
			}
		}
	}
	return nil
}

func (p *WorkSamplingPlanner) userLocation(ctx context.Context, userID string) *time.Location {
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

// seededFraction deterministically maps a string to a value in [0, 1) via
// its SHA-256 hash, giving reproducible-but-scattered slot offsets without
// needing a stateful PRNG.
func seededFraction(seed string) float64 {
	sum := sha256.Sum256([]byte(seed))
	bits := binary.BigEndian.Uint64(sum[:8])
	return float64(bits>>11) / math.Exp2(53)
}
