package agent

import (
	"strings"

	"github.com/ironclaw/ironclaw/pkg/models"
)

// repairTranscript rewrites Tool-role messages whose tool_call_id no longer
// references a live tool call (the preceding Assistant message's ToolCalls)
// into user-role prose ("Tool result: ..."), so a history can be replayed
// against a provider that never saw the original tool call — required when
// switching providers mid-conversation, since every provider validates that
// a tool result's ID matches a call it itself emitted.
func repairTranscript(history []*models.Message) []*models.Message {
	if len(history) == 0 {
		return history
	}

	pending := make(map[string]struct{})
	pendingOrder := make([]string, 0)
	repaired := make([]*models.Message, 0, len(history))

	clearPending := func() {
		for k := range pending {
			delete(pending, k)
		}
		pendingOrder = pendingOrder[:0]
	}

	for _, msg := range history {
		if msg == nil {
			continue
		}

		switch msg.Role {
		case models.RoleAssistant:
			clearPending()
			if len(msg.ToolCalls) > 0 {
				for _, call := range msg.ToolCalls {
					if call.ID == "" {
						continue
					}
					pending[call.ID] = struct{}{}
					pendingOrder = append(pendingOrder, call.ID)
				}
			}
			repaired = append(repaired, msg)
		case models.RoleTool:
			if len(msg.ToolResults) == 0 {
				continue
			}
			live := make([]models.ToolResult, 0, len(msg.ToolResults))
			var orphaned []models.ToolResult
			for _, result := range msg.ToolResults {
				res := result
				if res.ToolCallID == "" && len(pendingOrder) > 0 {
					res.ToolCallID = pendingOrder[0]
				}
				if _, ok := pending[res.ToolCallID]; ok && res.ToolCallID != "" {
					delete(pending, res.ToolCallID)
					pendingOrder = removeID(pendingOrder, res.ToolCallID)
					live = append(live, res)
				} else {
					orphaned = append(orphaned, res)
				}
			}
			if len(live) > 0 {
				copied := *msg
				copied.ToolResults = live
				repaired = append(repaired, &copied)
			}
			if len(orphaned) > 0 {
				repaired = append(repaired, orphanedToolResultsToProse(msg, orphaned))
			}
		default:
			repaired = append(repaired, msg)
		}
	}

	return repaired
}

// orphanedToolResultsToProse converts tool results that no longer reference
// a live tool call into a single user-role message, preserving their
// content as plain text the model can still reason about.
func orphanedToolResultsToProse(src *models.Message, orphaned []models.ToolResult) *models.Message {
	var b strings.Builder
	for i, res := range orphaned {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString("Tool result: ")
		b.WriteString(res.Content)
	}
	return &models.Message{
		ID:        src.ID,
		SessionID: src.SessionID,
		Channel:   src.Channel,
		ChannelID: src.ChannelID,
		Direction: src.Direction,
		Role:      models.RoleUser,
		Content:   b.String(),
		CreatedAt: src.CreatedAt,
	}
}

func removeID(ids []string, target string) []string {
	for i, id := range ids {
		if id == target {
			copy(ids[i:], ids[i+1:])
			return ids[:len(ids)-1]
		}
	}
	return ids
}
