package reminders

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ironclaw/ironclaw/internal/agent"
	"github.com/ironclaw/ironclaw/internal/cron"
)

// CancelTool cancels a reminder by ID.
type CancelTool struct {
	scheduler *cron.Scheduler
}

// NewCancelTool creates a new reminder cancel tool.
func NewCancelTool(scheduler *cron.Scheduler) *CancelTool {
	return &CancelTool{scheduler: scheduler}
}

func (t *CancelTool) Name() string { return "reminder_cancel" }

func (t *CancelTool) Description() string {
	return "Cancel a reminder by its ID"
}

func (t *CancelTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"reminder_id": {
				"type": "string",
				"description": "The ID of the reminder to cancel"
			}
		},
		"required": ["reminder_id"]
	}`)
}

// CancelInput is the input for the reminder cancel tool.
type CancelInput struct {
	ReminderID string `json:"reminder_id"`
}

// Execute cancels a reminder.
func (t *CancelTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	if t.scheduler == nil {
		return &agent.ToolResult{Content: "reminder scheduler unavailable", IsError: true}, nil
	}

	var input CancelInput
	if err := json.Unmarshal(params, &input); err != nil {
		return nil, fmt.Errorf("parse input: %w", err)
	}

	if input.ReminderID == "" {
		return &agent.ToolResult{Content: "reminder_id is required", IsError: true}, nil
	}

	var found *cron.Job
	for _, job := range t.scheduler.Jobs() {
		if job.ID == input.ReminderID || job.ID == reminderIDPrefix+input.ReminderID {
			found = job
			break
		}
	}
	if found == nil {
		return &agent.ToolResult{Content: "reminder not found", IsError: true}, nil
	}
	if !strings.HasPrefix(found.ID, reminderIDPrefix) {
		return &agent.ToolResult{Content: "not a reminder", IsError: true}, nil
	}

	if !t.scheduler.UnregisterJob(found.ID) {
		return &agent.ToolResult{Content: "reminder already cancelled"}, nil
	}

	message := ""
	if found.Message != nil {
		message = found.Message.Content
	}
	return &agent.ToolResult{
		Content: fmt.Sprintf("Reminder cancelled: %s\nMessage was: %s", found.Name, message),
	}, nil
}
