package deskmirror

import (
	"context"
	"encoding/json"
	"fmt"
)

// SessionTool implements the manage_session tool: session info, idempotent
// item disposition marking, focus tracking, and conversation-summary
// persistence. Grounded in
// original_source/slack_assistant/agent/tools/session_tool.py, whose
// _mark_item short-circuits with already_processed=true instead of
// re-recording a disposition that's already set.
type SessionTool struct {
	Session *Session
	Store   *SessionStore // persisted after every mutating action
}

var sessionToolDef = ToolDefinition{
	Name: "manage_session",
	Description: "Read or update the current working session: mark items reviewed/deferred/acted-on, " +
		"set the current focus, save a conversation summary, or list what's been processed.",
	InputSchema: json.RawMessage(`{
		"type": "object",
		"properties": {
			"action": {
				"type": "string",
				"enum": ["get_session_info", "mark_item_reviewed", "mark_item_deferred", "mark_item_acted_on", "set_focus", "save_summary", "get_processed_items"]
			},
			"channel_id": {"type": "string"},
			"message_ts": {"type": "string"},
			"thread_ts": {"type": "string"},
			"notes": {"type": "string"},
			"focus": {"type": "string"},
			"summary_text": {"type": "string"},
			"key_topics": {"type": "array", "items": {"type": "string"}},
			"pending_follow_ups": {"type": "array", "items": {"type": "string"}}
		},
		"required": ["action"]
	}`),
}

func (t *SessionTool) Definitions() []ToolDefinition { return []ToolDefinition{sessionToolDef} }

type sessionArgs struct {
	Action            string   `json:"action"`
	ChannelID         string   `json:"channel_id"`
	MessageTS         string   `json:"message_ts"`
	ThreadTS          string   `json:"thread_ts"`
	Notes             string   `json:"notes"`
	Focus             string   `json:"focus"`
	SummaryText       string   `json:"summary_text"`
	KeyTopics         []string `json:"key_topics"`
	PendingFollowUps  []string `json:"pending_follow_ups"`
}

func (t *SessionTool) Execute(ctx context.Context, name string, raw json.RawMessage) (ToolResult, error) {
	if name != sessionToolDef.Name {
		return ToolResult{Error: "unknown tool: " + name}, nil
	}
	var args sessionArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return ToolResult{Error: fmt.Sprintf("bad arguments: %v", err)}, nil
	}

	result := map[string]any{}
	mutated := false

	switch args.Action {
	case "get_session_info":
		now := NowUnix()
		result["session_id"] = t.Session.ID
		result["started_at"] = t.Session.StartedAt
		result["last_activity_at"] = t.Session.LastActivityAt
		result["age_hours"] = float64(now-t.Session.StartedAt) / 3600
		result["processed_items_count"] = len(t.Session.ProcessedItems)
		result["current_focus"] = t.Session.CurrentFocus
		result["has_summary"] = t.Session.ConversationSummary.SummaryText != ""

	case "mark_item_reviewed", "mark_item_deferred", "mark_item_acted_on":
		if args.ChannelID == "" || args.MessageTS == "" {
			return ToolResult{Error: args.Action + " requires channel_id and message_ts"}, nil
		}
		key := args.ChannelID + ":" + args.MessageTS
		if _, already := t.Session.ProcessedItems[key]; already {
			result["success"] = true
			result["already_processed"] = true
			break
		}
		t.Session.AddProcessed(ProcessedItem{
			ChannelID: args.ChannelID, MessageTS: args.MessageTS, ThreadTS: args.ThreadTS,
			Disposition: dispositionFor(args.Action), Notes: args.Notes, ProcessedAt: NowUnix(),
		})
		result["success"] = true
		result["already_processed"] = false
		mutated = true

	case "set_focus":
		t.Session.CurrentFocus = args.Focus
		result["success"] = true
		mutated = true

	case "save_summary":
		t.Session.ConversationSummary = ConversationSummary{
			SummaryText: args.SummaryText, KeyTopics: args.KeyTopics, PendingFollowUp: args.PendingFollowUps,
		}
		result["success"] = true
		mutated = true

	case "get_processed_items":
		items := make([]ProcessedItem, 0, len(t.Session.ProcessedItems))
		for _, it := range t.Session.ProcessedItems {
			items = append(items, it)
		}
		result["items"] = items

	default:
		return ToolResult{Error: fmt.Sprintf("unknown action: %s", args.Action)}, nil
	}

	if mutated && t.Store != nil {
		if err := t.Store.Save(*t.Session); err != nil {
			return ToolResult{}, fmt.Errorf("manage_session: persist: %w", err)
		}
	}

	body, err := json.Marshal(result)
	if err != nil {
		return ToolResult{}, fmt.Errorf("manage_session: marshal: %w", err)
	}
	return ToolResult{Content: string(body)}, nil
}

func dispositionFor(action string) ItemDisposition {
	switch action {
	case "mark_item_deferred":
		return DispositionDeferred
	case "mark_item_acted_on":
		return DispositionActedOn
	default:
		return DispositionReviewed
	}
}
