// Package devstub provides placeholder implementations of the collab
// ports (LogStore, UserSettingsStore, ChatClient, LLMClient) for running
// cmd/scheduler, cmd/job-worker, and cmd/web locally without a real chat
// platform, LLM provider, or log store wired up. None of this is part of
// the scheduler core; swap it for real adapters in a deployment.
package devstub

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/eykd/companion-memory/collab"
)

// StaticUserSettingsStore serves a fixed, in-memory set of users (as
// configured by config.DailySummaryUsers) with UTC as every user's
// timezone until updated. UpdateUserSettings mutates the in-memory map,
// so a user_sync tick's timezone refresh is visible to later planner
// ticks within the same process.
type StaticUserSettingsStore struct {
	mu    sync.RWMutex
	users map[string]collab.UserSettings
}

// NewStaticUserSettingsStore seeds the store with userIDs, each
// defaulting to the UTC timezone.
func NewStaticUserSettingsStore(userIDs []string) *StaticUserSettingsStore {
	s := &StaticUserSettingsStore{users: make(map[string]collab.UserSettings, len(userIDs))}
	for _, id := range userIDs {
		s.users[id] = collab.UserSettings{UserID: id, Timezone: "UTC"}
	}
	return s
}

// GetUserSettings returns the stored settings for userID, or UTC defaults
// if the user was never configured.
func (s *StaticUserSettingsStore) GetUserSettings(_ context.Context, userID string) (collab.UserSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if settings, ok := s.users[userID]; ok {
		return settings, nil
	}
	return collab.UserSettings{UserID: userID, Timezone: "UTC"}, nil
}

// UpdateUserSettings overwrites the stored settings for userID.
func (s *StaticUserSettingsStore) UpdateUserSettings(_ context.Context, userID string, settings collab.UserSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[userID] = settings
	return nil
}

// GetAllUsers returns every configured user ID.
func (s *StaticUserSettingsStore) GetAllUsers(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.users))
	for id := range s.users {
		ids = append(ids, id)
	}
	return ids, nil
}

// LoggingChatClient logs every message instead of calling a real chat
// platform API.
type LoggingChatClient struct {
	Logger *slog.Logger
}

// PostMessage logs msg at info level.
func (c LoggingChatClient) PostMessage(_ context.Context, msg collab.ChatMessage) error {
	c.Logger.Info("chat message (stub)", slog.String("channel", msg.Channel), slog.String("text", msg.Text))
	return nil
}

// GetUserTimezone always reports UTC; a real adapter would call the chat
// platform's user-info API.
func (c LoggingChatClient) GetUserTimezone(context.Context, string) (string, error) {
	return "UTC", nil
}

// EmptyLogStore returns no log entries for any user. A real adapter
// would read from the activity-log database the chat ingestion endpoint
// writes to.
type EmptyLogStore struct{}

// GetLogs always returns an empty slice.
func (EmptyLogStore) GetLogs(context.Context, string, time.Time, time.Time) ([]collab.LogEntry, error) {
	return nil, nil
}

// PlaceholderLLMClient synthesizes a summary from the entry count instead
// of calling a real LLM provider.
type PlaceholderLLMClient struct{}

// Summarize returns a fixed-shape placeholder summary.
func (PlaceholderLLMClient) Summarize(_ context.Context, entries []collab.LogEntry) (string, error) {
	if len(entries) == 0 {
		return "No activity logged.", nil
	}
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, e.Text)
	}
	return "Summary (" + time.Now().UTC().Format("2006-01-02") + "): " + strings.Join(lines, "; "), nil
}
