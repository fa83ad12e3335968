package deskmirror

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mjhale/deskmirror/internal/reminder"
)

// StatusTool implements the get_status tool: the pre-prioritized view from
// GetStatus (spec.md §4.6), plus a "Later" section of the user's pending
// reminders — grounded in
// original_source/slack_assistant/agent/tools/status_tool.py, whose
// docstring documents get_status as "Also returns pending reminders (Later
// section)" on top of the CRITICAL/HIGH/MEDIUM/LOW buckets.
type StatusTool struct {
	Store   Store
	Session *Session
	Prefs   *PreferenceSet
	UserID  string
}

var statusToolDef = ToolDefinition{
	Name: "get_status",
	Description: "Return a prioritized view of what needs attention: CRITICAL mentions, HIGH direct " +
		"messages, MEDIUM thread replies, demoted-to-LOW acknowledged items, plus a Later section of " +
		"your pending reminders.",
	InputSchema: json.RawMessage(`{
		"type": "object",
		"properties": {
			"hours_back": {"type": "integer", "description": "How far back to look, in hours", "default": 24},
			"include_processed": {"type": "boolean", "description": "Include items already processed this session", "default": false}
		}
	}`),
}

func (t *StatusTool) Definitions() []ToolDefinition { return []ToolDefinition{statusToolDef} }

type statusArgs struct {
	HoursBack        int  `json:"hours_back"`
	IncludeProcessed bool `json:"include_processed"`
}

type statusItemOut struct {
	ChannelID string `json:"channel_id"`
	TS        string `json:"ts"`
	ThreadTS  string `json:"thread_ts,omitempty"`
	Priority  string `json:"priority"`
	Reason    string `json:"reason"`
}

type laterReminderOut struct {
	ID   string `json:"id"`
	Text string `json:"text"`
	Due  string `json:"due"`
}

type statusOut struct {
	Items []statusItemOut    `json:"items"`
	Later []laterReminderOut `json:"later"`
}

func (t *StatusTool) Execute(ctx context.Context, name string, raw json.RawMessage) (ToolResult, error) {
	if name != statusToolDef.Name {
		return ToolResult{Error: "unknown tool: " + name}, nil
	}
	args := statusArgs{HoursBack: 24}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &args); err != nil {
			return ToolResult{Error: fmt.Sprintf("bad arguments: %v", err)}, nil
		}
	}

	var prefs PreferenceSet
	if t.Prefs != nil {
		prefs = *t.Prefs
	}
	items, err := GetStatus(ctx, t.Store, t.Session, prefs, t.UserID, args.HoursBack, args.IncludeProcessed)
	if err != nil {
		return ToolResult{}, fmt.Errorf("get_status: %w", err)
	}

	out := statusOut{Items: make([]statusItemOut, len(items))}
	for i, it := range items {
		out.Items[i] = statusItemOut{
			ChannelID: it.ChannelID,
			TS:        it.MessageTS,
			ThreadTS:  it.ThreadTS,
			Priority:  it.Priority.String(),
			Reason:    it.Reason,
		}
	}

	reminders, err := t.Store.ListReminders(ctx, t.UserID, false)
	if err != nil {
		return ToolResult{}, fmt.Errorf("get_status: reminders: %w", err)
	}
	out.Later = make([]laterReminderOut, 0, len(reminders))
	for _, r := range reminders {
		if !r.Pending() {
			continue
		}
		out.Later = append(out.Later, laterReminderOut{ID: r.ID, Text: r.Text, Due: reminder.FormatDue(r.Due)})
	}

	body, err := json.Marshal(out)
	if err != nil {
		return ToolResult{}, fmt.Errorf("get_status: marshal: %w", err)
	}
	return ToolResult{Content: string(body)}, nil
}
