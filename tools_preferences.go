package deskmirror

import (
	"context"
	"encoding/json"
	"fmt"
)

// PreferencesTool implements the manage_preferences tool: CRUD over rules,
// facts, and emoji patterns. Grounded in
// original_source/slack_assistant/agent/tools/prefs_tool.py's action set
// (get_all/add_rule/remove_rule/add_fact/remove_fact) plus spec.md §4.5's
// add_emoji_pattern/remove_emoji_pattern addition.
type PreferencesTool struct {
	Prefs *PreferenceSet
	Store *PrefsStore // persisted after every mutating action
}

var preferencesToolDef = ToolDefinition{
	Name: "manage_preferences",
	Description: "Read or change stored user preferences: free-text rules, remembered facts, and " +
		"emoji-reaction patterns that affect get_status's priority composition.",
	InputSchema: json.RawMessage(`{
		"type": "object",
		"properties": {
			"action": {
				"type": "string",
				"enum": ["get_all", "add_rule", "remove_rule", "add_fact", "remove_fact", "add_emoji_pattern", "remove_emoji_pattern"]
			},
			"id": {"type": "string", "description": "Rule or fact ID, for remove_rule/remove_fact"},
			"content": {"type": "string", "description": "Rule or fact text, for add_rule/add_fact"},
			"emoji": {"type": "string", "description": "Emoji name, for add_emoji_pattern/remove_emoji_pattern"},
			"meaning": {"type": "string", "description": "What the emoji means, for add_emoji_pattern"},
			"marks_as_handled": {"type": "boolean", "default": false},
			"priority_adjustment": {"type": "integer", "description": "Clamped to [-2, 2]", "default": 0}
		},
		"required": ["action"]
	}`),
}

func (t *PreferencesTool) Definitions() []ToolDefinition { return []ToolDefinition{preferencesToolDef} }

type preferencesArgs struct {
	Action             string `json:"action"`
	ID                 string `json:"id"`
	Content            string `json:"content"`
	Emoji              string `json:"emoji"`
	Meaning            string `json:"meaning"`
	MarksAsHandled     bool   `json:"marks_as_handled"`
	PriorityAdjustment int    `json:"priority_adjustment"`
}

func (t *PreferencesTool) Execute(ctx context.Context, name string, raw json.RawMessage) (ToolResult, error) {
	if name != preferencesToolDef.Name {
		return ToolResult{Error: "unknown tool: " + name}, nil
	}
	var args preferencesArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return ToolResult{Error: fmt.Sprintf("bad arguments: %v", err)}, nil
	}

	result := map[string]any{}
	switch args.Action {
	case "get_all":
		result["rules"] = t.Prefs.Rules
		result["facts"] = t.Prefs.Facts
		result["emoji_patterns"] = t.Prefs.EmojiPatterns

	case "add_rule":
		if args.Content == "" {
			return ToolResult{Error: "add_rule requires content"}, nil
		}
		result["success"] = true
		result["rule"] = t.Prefs.AddRule(args.Content)

	case "remove_rule":
		if args.ID == "" {
			return ToolResult{Error: "remove_rule requires id"}, nil
		}
		if !t.Prefs.RemoveRule(args.ID) {
			result["success"] = false
			result["error"] = fmt.Sprintf("rule with id %s not found", args.ID)
			break
		}
		result["success"] = true

	case "add_fact":
		if args.Content == "" {
			return ToolResult{Error: "add_fact requires content"}, nil
		}
		result["success"] = true
		result["fact"] = t.Prefs.AddFact(args.Content)

	case "remove_fact":
		if args.ID == "" {
			return ToolResult{Error: "remove_fact requires id"}, nil
		}
		if !t.Prefs.RemoveFact(args.ID) {
			result["success"] = false
			result["error"] = fmt.Sprintf("fact with id %s not found", args.ID)
			break
		}
		result["success"] = true

	case "add_emoji_pattern":
		if args.Emoji == "" {
			return ToolResult{Error: "add_emoji_pattern requires emoji"}, nil
		}
		result["success"] = true
		result["pattern"] = t.Prefs.AddEmojiPattern(args.Emoji, args.Meaning, args.MarksAsHandled, args.PriorityAdjustment)

	case "remove_emoji_pattern":
		if args.Emoji == "" {
			return ToolResult{Error: "remove_emoji_pattern requires emoji"}, nil
		}
		if !t.Prefs.RemoveEmojiPattern(args.Emoji) {
			result["success"] = false
			result["error"] = fmt.Sprintf("emoji pattern %q not found", args.Emoji)
			break
		}
		result["success"] = true

	default:
		return ToolResult{Error: fmt.Sprintf("unknown action: %s", args.Action)}, nil
	}

	if isMutatingPreferenceAction(args.Action) && t.Store != nil {
		if err := t.Store.Save(*t.Prefs); err != nil {
			return ToolResult{}, fmt.Errorf("manage_preferences: persist: %w", err)
		}
	}

	body, err := json.Marshal(result)
	if err != nil {
		return ToolResult{}, fmt.Errorf("manage_preferences: marshal: %w", err)
	}
	return ToolResult{Content: string(body)}, nil
}

func isMutatingPreferenceAction(action string) bool {
	switch action {
	case "add_rule", "remove_rule", "add_fact", "remove_fact", "add_emoji_pattern", "remove_emoji_pattern":
		return true
	default:
		return false
	}
}
