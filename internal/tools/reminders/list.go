package reminders

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ironclaw/ironclaw/internal/agent"
	"github.com/ironclaw/ironclaw/internal/cron"
)

// ListTool lists active reminders for the current user/session.
type ListTool struct {
	scheduler *cron.Scheduler
}

// NewListTool creates a new reminder list tool.
func NewListTool(scheduler *cron.Scheduler) *ListTool {
	return &ListTool{scheduler: scheduler}
}

func (t *ListTool) Name() string { return "reminder_list" }

func (t *ListTool) Description() string {
	return "List all active reminders"
}

func (t *ListTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"include_completed": {
				"type": "boolean",
				"description": "Include completed/fired reminders (default false)"
			},
			"limit": {
				"type": "integer",
				"description": "Maximum number of reminders to return (default 20)"
			}
		}
	}`)
}

// ListInput is the input for the reminder list tool.
type ListInput struct {
	IncludeCompleted bool `json:"include_completed"`
	Limit            int  `json:"limit"`
}

// Execute lists reminders.
func (t *ListTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	if t.scheduler == nil {
		return &agent.ToolResult{Content: "reminder scheduler unavailable", IsError: true}, nil
	}

	var input ListInput
	if len(params) > 0 {
		if err := json.Unmarshal(params, &input); err != nil {
			return nil, fmt.Errorf("parse input: %w", err)
		}
	}

	if input.Limit <= 0 {
		input.Limit = 20
	}

	var reminders []*cron.Job
	for _, job := range t.scheduler.Jobs() {
		if !strings.HasPrefix(job.ID, reminderIDPrefix) {
			continue
		}
		if !input.IncludeCompleted && !job.Enabled {
			continue
		}
		reminders = append(reminders, job)
		if len(reminders) >= input.Limit {
			break
		}
	}

	if len(reminders) == 0 {
		return &agent.ToolResult{Content: "No active reminders found."}, nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Found %d reminder(s):\n\n", len(reminders)))

	for i, r := range reminders {
		message := ""
		if r.Message != nil {
			message = r.Message.Content
		}
		sb.WriteString(fmt.Sprintf("%d. **%s**\n", i+1, r.Name))
		sb.WriteString(fmt.Sprintf("   ID: %s\n", strings.TrimPrefix(r.ID, reminderIDPrefix)))
		sb.WriteString(fmt.Sprintf("   Message: %s\n", message))

		if !r.NextRun.IsZero() {
			duration := time.Until(r.NextRun)
			if duration > 0 {
				sb.WriteString(fmt.Sprintf("   Fires: %s (in %s)\n", r.NextRun.Format("Mon Jan 2 3:04 PM"), formatDuration(duration)))
			} else {
				sb.WriteString(fmt.Sprintf("   Fires: %s\n", r.NextRun.Format("Mon Jan 2 3:04 PM")))
			}
		}

		status := "active"
		if !r.Enabled {
			status = "cancelled"
		}
		sb.WriteString(fmt.Sprintf("   Status: %s\n", status))
		sb.WriteString("\n")
	}

	return &agent.ToolResult{Content: sb.String()}, nil
}
