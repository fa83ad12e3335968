package deskmirror

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mjhale/deskmirror/internal/linkfmt"
)

// AnalyzeMessagesTool implements the analyze_messages tool: full-content
// access to recent messages with resolved author names and inlined entity
// substitution, plus the metadata-priority hint the Store computes when the
// messages are queried.
// Grounded in original_source/slack_assistant/agent/tools/analysis_tool.py.
type AnalyzeMessagesTool struct {
	Store    Store
	Resolver *EntityResolver
	Session  *Session
	UserID   string
	Host     string // upstream workspace host for message links; empty skips link rendering
}

var analyzeMessagesDef = ToolDefinition{
	Name: "analyze_messages",
	Description: "Return recent messages with resolved author names, rendered mentions, and a " +
		"metadata-priority hint (whether the message mentions you, is a DM, or your own). Use this " +
		"to read full message content before deciding what needs attention.",
	InputSchema: json.RawMessage(`{
		"type": "object",
		"properties": {
			"hours_back": {"type": "integer", "description": "How far back to look, in hours", "default": 24},
			"max_messages": {"type": "integer", "description": "Maximum number of messages to return", "default": 50},
			"include_own_messages": {"type": "boolean", "description": "Include messages you authored", "default": false},
			"text_limit": {"type": "integer", "description": "Truncate each message body to this many characters", "default": 500},
			"exclude_analyzed": {"type": "boolean", "description": "Skip messages already judged this session", "default": true}
		}
	}`),
}

func (t *AnalyzeMessagesTool) Definitions() []ToolDefinition { return []ToolDefinition{analyzeMessagesDef} }

type analyzeMessagesArgs struct {
	HoursBack          int   `json:"hours_back"`
	MaxMessages        int   `json:"max_messages"`
	IncludeOwnMessages bool  `json:"include_own_messages"`
	TextLimit          int   `json:"text_limit"`
	ExcludeAnalyzed    *bool `json:"exclude_analyzed"`
}

type analyzedMessageOut struct {
	ChannelID        string `json:"channel_id"`
	TS               string `json:"ts"`
	Author           string `json:"author"`
	Text             string `json:"text"`
	IsMention        bool   `json:"is_mention"`
	IsDM             bool   `json:"is_dm"`
	IsSelfDM         bool   `json:"is_self_dm"`
	MetadataPriority string `json:"metadata_priority"`
	Link             string `json:"link,omitempty"`
}

func (t *AnalyzeMessagesTool) Execute(ctx context.Context, name string, raw json.RawMessage) (ToolResult, error) {
	if name != analyzeMessagesDef.Name {
		return ToolResult{Error: "unknown tool: " + name}, nil
	}
	args := analyzeMessagesArgs{HoursBack: 24, MaxMessages: 50, TextLimit: 500}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &args); err != nil {
			return ToolResult{Error: fmt.Sprintf("bad arguments: %v", err)}, nil
		}
	}
	excludeAnalyzed := true
	if args.ExcludeAnalyzed != nil {
		excludeAnalyzed = *args.ExcludeAnalyzed
	}
	if args.MaxMessages <= 0 {
		args.MaxMessages = 50
	}
	if args.TextLimit <= 0 {
		args.TextLimit = 500
	}

	since := NowUnix() - int64(args.HoursBack)*3600
	msgs, err := t.Store.GetRecentMessagesForAnalysis(ctx, t.UserID, since, args.MaxMessages, args.IncludeOwnMessages)
	if err != nil {
		return ToolResult{}, fmt.Errorf("analyze_messages: %w", err)
	}

	out := make([]analyzedMessageOut, 0, len(msgs))
	for _, am := range msgs {
		if excludeAnalyzed && t.Session != nil {
			key := am.Message.ChannelID + ":" + am.Message.TS
			if _, ok := t.Session.AnalyzedItems[key]; ok {
				continue
			}
		}
		text, err := t.Resolver.RenderMessage(ctx, am.Message.Body)
		if err != nil {
			return ToolResult{}, fmt.Errorf("analyze_messages: render: %w", err)
		}
		text = truncateText(text, args.TextLimit)

		author := am.Message.AuthorID
		if users, _, err := t.Resolver.Resolve(ctx, CollectedEntities{UserIDs: map[string]bool{am.Message.AuthorID: true}}); err == nil {
			if u, ok := users[am.Message.AuthorID]; ok {
				author = u.ResolveName()
			}
		}

		entry := analyzedMessageOut{
			ChannelID:        am.Message.ChannelID,
			TS:               am.Message.TS,
			Author:           author,
			Text:             text,
			IsMention:        am.IsMention,
			IsDM:             am.IsDM,
			IsSelfDM:         am.IsSelfDM,
			MetadataPriority: am.MetadataPriority.String(),
		}
		if t.Host != "" {
			entry.Link = linkfmt.Format(t.Host, am.Message.ChannelID, am.Message.TS, am.Message.ParentTS)
		}
		out = append(out, entry)
	}

	body, err := json.Marshal(out)
	if err != nil {
		return ToolResult{}, fmt.Errorf("analyze_messages: marshal: %w", err)
	}
	return ToolResult{Content: string(body)}, nil
}

// truncateText clamps s to limit runes, appending an ellipsis if cut.
func truncateText(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit]) + "…"
}
