// Package collab declares the external collaborators the scheduler core
// consumes but does not implement: log storage, user settings, the chat
// platform client, and the LLM client. Concrete implementations (HTTP
// ingestion, chat-platform signature verification, an LLM SDK client)
// live outside this module; only the interfaces the core depends on live
// here.
package collab

import (
	"context"
	"time"
)

// LogEntry is one stored activity-log line a handler may summarize.
type LogEntry struct {
	UserID    string
	Text      string
	Timestamp time.Time
}

// LogStore retrieves a user's activity log over a time range.
type LogStore interface {
	GetLogs(ctx context.Context, userID string, since, until time.Time) ([]LogEntry, error)
}

// UserSettings is the subset of per-user configuration the scheduler
// consults: timezone for local-time cron math, and anything a handler
// needs to address the user.
type UserSettings struct {
	UserID   string
	Timezone string
}

// UserSettingsStore reads and updates per-user settings.
type UserSettingsStore interface {
	GetUserSettings(ctx context.Context, userID string) (UserSettings, error)
	UpdateUserSettings(ctx context.Context, userID string, settings UserSettings) error

	// GetAllUsers lists every known user ID. Planners that fan out
	// per-user work (daily summary, work sampling, profile sync) use this
	// to enumerate their targets.
	GetAllUsers(ctx context.Context) ([]string, error)
}

// ChatMessage is a message delivered to or from the chat platform.
type ChatMessage struct {
	Channel string
	Text    string
}

// ChatClient sends messages to and reads profile information from the
// chat platform (e.g. Slack).
type ChatClient interface {
	PostMessage(ctx context.Context, msg ChatMessage) error
	GetUserTimezone(ctx context.Context, userID string) (string, error)
}

// LLMClient generates natural-language summaries from log entries.
type LLMClient interface {
	Summarize(ctx context.Context, entries []LogEntry) (string, error)
}
