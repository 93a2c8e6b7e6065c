// Package handlers registers the job handlers that turn scheduled jobs
// into calls against the external collaborators (collab.LogStore,
// collab.LLMClient, collab.ChatClient). These are the concrete
// registry.Definition values a scheduler/job-worker process wires at
// startup; the collaborators themselves remain interfaces the caller
// supplies (out of scope per spec.md §1).
package handlers

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/eykd/companion-memory/collab"
	"github.com/eykd/companion-memory/cronplanner"
	"github.com/eykd/companion-memory/registry"
	"github.com/eykd/companion-memory/scheduling"
)

// SendChatMessageJobType is the job_type a chat delivery job is
// scheduled under.
const SendChatMessageJobType = "send_chat_message"

// SendChatMessagePayload is the payload for a send_chat_message job.
type SendChatMessagePayload struct {
	Channel string `json:"channel" validate:"required"`
	Text    string `json:"text" validate:"required"`
	TraceID string `json:"trace_id,omitempty"`
}

// DailySummaryPayload mirrors cronplanner.DailySummaryPayload field for
// field; the two declarations must keep the same tags.
type DailySummaryPayload struct {
	UserID string `json:"user_id" validate:"required"`
}

// WorkSamplingPayload mirrors cronplanner.WorkSamplingPayload.
type WorkSamplingPayload struct {
	UserID    string `json:"user_id" validate:"required"`
	SlotIndex int    `json:"slot_index"`
}

// Deps collects the external collaborators and scheduling handle every
// handler in this package needs.
type Deps struct {
	Logs      collab.LogStore
	LLM       collab.LLMClient
	Chat      collab.ChatClient
	Scheduler *scheduling.Scheduler
	Logger    *slog.Logger
}

// RegisterAll registers every handler this package implements against
// reg. Call once during process init, before the worker or scheduler
// starts polling.
func RegisterAll(reg *registry.Registry, deps Deps) {
	registry.RegisterDefinition(reg, registry.NewDefinition(cronplanner.DailySummaryJobType, deps.dailySummary))
	registry.RegisterDefinition(reg, registry.NewDefinition(SendChatMessageJobType, deps.sendChatMessage))
	registry.RegisterDefinition(reg, registry.NewDefinition(cronplanner.WorkSamplingJobType, deps.workSamplingPrompt))
	registry.RegisterDefinition(reg, registry.NewDefinition(cronplanner.HeartbeatJobType, deps.heartbeatEvent))
}

// dailySummary generates a summary of the user's activity log via the
// LLM client and enqueues a follow-up send_chat_message job. It never
// posts to the chat platform directly, matching
// original_source/summary_jobs.py's generate_summary_job split between
// summary generation and delivery.
func (d Deps) dailySummary(ctx *registry.RunContext, payload DailySummaryPayload) error {
	until := time.Now().UTC()
	since := until.Add(-24 * time.Hour)

	entries, err := d.Logs.GetLogs(ctx, payload.UserID, since, until)
	if err != nil {
		return fmt.Errorf("handlers: fetch logs for %s: %w", payload.UserID, err)
	}

	summary, err := d.LLM.Summarize(ctx, entries)
	if err != nil {
		return fmt.Errorf("handlers: summarize logs for %s: %w", payload.UserID, err)
	}

	_, err = d.Scheduler.Schedule(ctx, SendChatMessageJobType,
		SendChatMessagePayload{Channel: payload.UserID, Text: summary, TraceID: ctx.JobID},
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("handlers: schedule chat delivery for %s: %w", payload.UserID, err)
	}
	return nil
}

// sendChatMessage delivers a previously generated message to the chat
// platform.
func (d Deps) sendChatMessage(ctx *registry.RunContext, payload SendChatMessagePayload) error {
	return d.Chat.PostMessage(ctx, collab.ChatMessage{Channel: payload.Channel, Text: payload.Text})
}

// workSamplingPrompt delivers one work-sampling check-in prompt to the
// user. The original implementation (work_sampling_handler.py) left this
// unimplemented; this repository completes it.
func (d Deps) workSamplingPrompt(ctx *registry.RunContext, payload WorkSamplingPayload) error {
	text := fmt.Sprintf("What are you working on right now? (check-in %d)", payload.SlotIndex+1)
	return d.Chat.PostMessage(ctx, collab.ChatMessage{Channel: payload.UserID, Text: text})
}

// heartbeatEvent logs the event-side half of the heartbeat round trip
// cronplanner.HeartbeatPlanner starts, matching
// original_source/heartbeat.py's run_heartbeat_event_job.
func (d Deps) heartbeatEvent(_ *registry.RunContext, payload cronplanner.HeartbeatPayload) error {
	d.Logger.Info("heartbeat (event)", slog.String("uuid", payload.HeartbeatID))
	return nil
}
