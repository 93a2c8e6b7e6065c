package cronplanner

import (
	"context"
	"log/slog"
	"time"

	"github.com/eykd/companion-memory/collab"
)

// UserSyncPlanner refreshes every known user's timezone from the chat
// platform into UserSettingsStore, so daily-summary and work-sampling
// scheduling always have a recent timezone to compute against.
type UserSyncPlanner struct {
	settings collab.UserSettingsStore
	chat     collab.ChatClient
	logger   *slog.Logger
}

// NewUserSyncPlanner builds a UserSyncPlanner.
func NewUserSyncPlanner(settings collab.UserSettingsStore, chat collab.ChatClient, logger *slog.Logger) *UserSyncPlanner {
	return &UserSyncPlanner{settings: settings, chat: chat, logger: logger}
}

// Name identifies this planner in logs.
func (p *UserSyncPlanner) Name() string { return "user_sync" }

// Spec fires the planner every 6 hours.
func (p *UserSyncPlanner) Spec() string { return "0 */6 * * *" }

// Run refreshes every known user's timezone from the chat platform.
func (p *UserSyncPlanner) Run(ctx context.Context, _ time.Time) error {
	users, err := p.settings.GetAllUsers(ctx)
	if err != nil {
		return err
	}

	for _, userID := range users {
		tz, err := p.chat.GetUserTimezone(ctx, userID)
		if err != nil {
			p.logger.Warn("fetch user timezone failed", slog.String("user_id", userID), slog.String("error", err.Error()))
			continue
		}
		if tz == "" {
			continue
		}

		if err := p.settings.UpdateUserSettings(ctx, userID, collab.UserSettings{UserID: userID, Timezone: tz}); err != nil {
			p.logger.Error("update user settings failed", slog.String("user_id", userID), slog.String("error", err.Error()))
		}
	}
	return nil
}
