package cronplanner_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eykd/companion-memory/collab"
	"github.com/eykd/companion-memory/cronplanner"
)

type fakeChatClient struct {
	timezones map[string]string
}

func (f *fakeChatClient) PostMessage(_ context.Context, _ collab.ChatMessage) error { return nil }

func (f *fakeChatClient) GetUserTimezone(_ context.Context, userID string) (string, error) {
	return f.timezones[userID], nil
}

func TestUserSyncPlanner_UpdatesTimezoneFromChat(t *testing.T) {
	settings := &fakeUserSettings{users: []string{"U1", "U2"}}
	chat := &fakeChatClient{timezones: map[string]string{"U1": "Europe/London", "U2": ""}}

	p := cronplanner.NewUserSyncPlanner(settings, chat, discardLogger())
	require.NoError(t, p.Run(context.Background(), time.Time{}))

	assert.Equal(t, "Europe/London", settings.settings["U1"].Timezone)
	_, hasU2 := settings.settings["U2"]
	assert.False(t, hasU2, "empty timezone from chat must not overwrite settings")
}
