package deskmirror

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mjhale/deskmirror/internal/reminder"
)

// RemindersTool implements the manage_reminders tool: create/list/complete/
// delete reminders against the Reminder entity spec.md §3 names. Grounded
// in original_source's reminders repository methods
// (get_pending_reminders, referenced by status.py's _get_reminders) and
// internal/reminder's recurrence math.
type RemindersTool struct {
	Store  Store
	UserID string
}

var remindersToolDef = ToolDefinition{
	Name: "manage_reminders",
	Description: "Create, list, complete, or delete reminders. A reminder may be one-shot (a bare " +
		"due time) or recurring (\"HH:MM daily\" / \"HH:MM weekly(monday)\").",
	InputSchema: json.RawMessage(`{
		"type": "object",
		"properties": {
			"action": {"type": "string", "enum": ["create", "list", "complete", "delete"]},
			"id": {"type": "string", "description": "Reminder ID, for complete/delete"},
			"text": {"type": "string", "description": "Reminder content, for create"},
			"due": {"type": "string", "description": "Due time as \"YYYY-MM-DD HH:MM\" UTC, for create"},
			"recurring": {"type": "string", "description": "Recurrence expression, for create; omit for one-shot"},
			"include_complete": {"type": "boolean", "default": false}
		},
		"required": ["action"]
	}`),
}

func (t *RemindersTool) Definitions() []ToolDefinition { return []ToolDefinition{remindersToolDef} }

type remindersArgs struct {
	Action          string `json:"action"`
	ID              string `json:"id"`
	Text            string `json:"text"`
	Due             string `json:"due"`
	Recurring       string `json:"recurring"`
	IncludeComplete bool   `json:"include_complete"`
}

func (t *RemindersTool) Execute(ctx context.Context, name string, raw json.RawMessage) (ToolResult, error) {
	if name != remindersToolDef.Name {
		return ToolResult{Error: "unknown tool: " + name}, nil
	}
	var args remindersArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return ToolResult{Error: fmt.Sprintf("bad arguments: %v", err)}, nil
	}

	result := map[string]any{}
	switch args.Action {
	case "create":
		if args.Text == "" || args.Due == "" {
			return ToolResult{Error: "create requires text and due"}, nil
		}
		if err := reminder.ValidateRecurrence(args.Recurring); err != nil {
			return ToolResult{Error: err.Error()}, nil
		}
		due, err := parseDue(args.Due)
		if err != nil {
			return ToolResult{Error: fmt.Sprintf("bad due: %v", err)}, nil
		}
		r := Reminder{ID: NewID(), Owner: t.UserID, Text: args.Text, Due: due, Recurring: args.Recurring}
		if err := t.Store.CreateReminder(ctx, r); err != nil {
			return ToolResult{}, fmt.Errorf("manage_reminders: create: %w", err)
		}
		result["success"] = true
		result["reminder"] = reminderOut(r)

	case "list":
		reminders, err := t.Store.ListReminders(ctx, t.UserID, args.IncludeComplete)
		if err != nil {
			return ToolResult{}, fmt.Errorf("manage_reminders: list: %w", err)
		}
		out := make([]map[string]any, len(reminders))
		for i, r := range reminders {
			out[i] = reminderOut(r)
		}
		result["reminders"] = out

	case "complete":
		if args.ID == "" {
			return ToolResult{Error: "complete requires id"}, nil
		}
		r, err := t.Store.GetReminder(ctx, args.ID)
		if err != nil {
			return ToolResult{Error: fmt.Sprintf("reminder %s not found", args.ID)}, nil
		}
		now := NowUnix()
		if r.Recurring != "" {
			next, ok := reminder.ComputeNextRun(r.Recurring, now)
			if ok {
				r.Due = next
			} else {
				r.CompleteTS = now
			}
		} else {
			r.CompleteTS = now
		}
		if err := t.Store.UpdateReminder(ctx, r); err != nil {
			return ToolResult{}, fmt.Errorf("manage_reminders: complete: %w", err)
		}
		result["success"] = true
		result["reminder"] = reminderOut(r)

	case "delete":
		if args.ID == "" {
			return ToolResult{Error: "delete requires id"}, nil
		}
		if err := t.Store.DeleteReminder(ctx, args.ID); err != nil {
			return ToolResult{}, fmt.Errorf("manage_reminders: delete: %w", err)
		}
		result["success"] = true

	default:
		return ToolResult{Error: fmt.Sprintf("unknown action: %s", args.Action)}, nil
	}

	body, err := json.Marshal(result)
	if err != nil {
		return ToolResult{}, fmt.Errorf("manage_reminders: marshal: %w", err)
	}
	return ToolResult{Content: string(body)}, nil
}

func reminderOut(r Reminder) map[string]any {
	return map[string]any{
		"id":        r.ID,
		"text":      r.Text,
		"due":       reminder.FormatDue(r.Due),
		"recurring": r.Recurring,
		"pending":   r.Pending(),
	}
}

// parseDue parses a "YYYY-MM-DD HH:MM" due time as UTC — the inverse of
// internal/reminder.FormatDue.
func parseDue(s string) (int64, error) {
	t, err := time.Parse("2006-01-02 15:04", s)
	if err != nil {
		return 0, fmt.Errorf("expected \"YYYY-MM-DD HH:MM\": %w", err)
	}
	return t.UTC().Unix(), nil
}
