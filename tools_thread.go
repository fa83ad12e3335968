package deskmirror

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/mjhale/deskmirror/internal/linkfmt"
	"github.com/mjhale/deskmirror/internal/workspace"
)

// ThreadTool implements the get_thread tool: ordered messages in a thread
// with reactions grouped by emoji, optionally refreshed from upstream
// first. Grounded in
// original_source/slack_assistant/agent/tools/thread_tool.py and
// syncworker.go's syncThreadReplies, whose upsert loop the refresh path
// repeats with the same rawToMessage/reactionsFromRaw helpers.
type ThreadTool struct {
	Store    Store
	Resolver *EntityResolver
	Client   workspace.Client // nil disables refresh_reactions
	Gate     *RateGate
}

var threadToolDef = ToolDefinition{
	Name: "get_thread",
	Description: "Return every message in a thread, oldest first, with reactions grouped by emoji " +
		"name to the list of users who reacted. Accepts either a channel_id+thread_ts pair or a " +
		"single message_link.",
	InputSchema: json.RawMessage(`{
		"type": "object",
		"properties": {
			"channel_id": {"type": "string"},
			"thread_ts": {"type": "string"},
			"message_link": {"type": "string", "description": "A permalink identifying the thread, as an alternative to channel_id+thread_ts"},
			"refresh_reactions": {"type": "boolean", "description": "Fetch fresh replies/reactions from upstream before returning", "default": false}
		}
	}`),
}

func (t *ThreadTool) Definitions() []ToolDefinition { return []ToolDefinition{threadToolDef} }

type getThreadArgs struct {
	ChannelID        string `json:"channel_id"`
	ThreadTS         string `json:"thread_ts"`
	MessageLink      string `json:"message_link"`
	RefreshReactions bool   `json:"refresh_reactions"`
}

type threadMessageOut struct {
	TS        string              `json:"ts"`
	Author    string              `json:"author"`
	Text      string              `json:"text"`
	Reactions map[string][]string `json:"reactions,omitempty"`
}

func (t *ThreadTool) Execute(ctx context.Context, name string, raw json.RawMessage) (ToolResult, error) {
	if name != threadToolDef.Name {
		return ToolResult{Error: "unknown tool: " + name}, nil
	}
	var args getThreadArgs
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &args); err != nil {
			return ToolResult{Error: fmt.Sprintf("bad arguments: %v", err)}, nil
		}
	}
	channelID, threadTS := args.ChannelID, args.ThreadTS
	if args.MessageLink != "" {
		link, err := linkfmt.Parse(args.MessageLink)
		if err != nil {
			return ToolResult{Error: fmt.Sprintf("bad message_link: %v", err)}, nil
		}
		channelID = link.ChannelID
		threadTS = link.ThreadTS
		if threadTS == "" {
			threadTS = link.TS
		}
	}
	if channelID == "" || threadTS == "" {
		return ToolResult{Error: "get_thread requires channel_id+thread_ts or message_link"}, nil
	}

	if args.RefreshReactions {
		if t.Client == nil || t.Gate == nil {
			return ToolResult{Error: "refresh_reactions requested but no upstream client is configured"}, nil
		}
		if err := t.refresh(ctx, channelID, threadTS); err != nil {
			return ToolResult{}, fmt.Errorf("get_thread: refresh: %w", err)
		}
	}

	msgs, err := t.Store.GetThreadMessages(ctx, channelID, threadTS)
	if err != nil {
		return ToolResult{}, fmt.Errorf("get_thread: %w", err)
	}
	sort.Slice(msgs, func(i, j int) bool { return TSGreater(msgs[j].TS, msgs[i].TS) })

	out := make([]threadMessageOut, 0, len(msgs))
	for _, m := range msgs {
		text, err := t.Resolver.RenderMessage(ctx, m.Body)
		if err != nil {
			return ToolResult{}, fmt.Errorf("get_thread: render: %w", err)
		}
		author := m.AuthorID
		if users, _, err := t.Resolver.Resolve(ctx, CollectedEntities{UserIDs: map[string]bool{m.AuthorID: true}}); err == nil {
			if u, ok := users[m.AuthorID]; ok {
				author = u.ResolveName()
			}
		}

		reactions, err := t.Store.GetReactions(ctx, m.Key)
		if err != nil {
			return ToolResult{}, fmt.Errorf("get_thread: reactions: %w", err)
		}
		grouped := groupReactionsByEmoji(reactions)
		resolvedGroups := make(map[string][]string, len(grouped))
		for emoji, userIDs := range grouped {
			names := make([]string, 0, len(userIDs))
			for _, uid := range userIDs {
				name := uid
				if users, _, err := t.Resolver.Resolve(ctx, CollectedEntities{UserIDs: map[string]bool{uid: true}}); err == nil {
					if u, ok := users[uid]; ok {
						name = u.ResolveName()
					}
				}
				names = append(names, name)
			}
			resolvedGroups[emoji] = names
		}

		out = append(out, threadMessageOut{TS: m.TS, Author: author, Text: text, Reactions: resolvedGroups})
	}

	body, err := json.Marshal(out)
	if err != nil {
		return ToolResult{}, fmt.Errorf("get_thread: marshal: %w", err)
	}
	return ToolResult{Content: string(body)}, nil
}

func (t *ThreadTool) refresh(ctx context.Context, channelID, threadTS string) error {
	replies, err := Execute(ctx, t.Gate, "thread.replies", func(ctx context.Context) ([]workspace.RawMessage, error) {
		return t.Client.Replies(ctx, channelID, threadTS)
	})
	if err != nil {
		return &ErrTransport{Method: "thread.replies", Err: err}
	}
	for _, r := range replies {
		msg := rawToMessage(channelID, r)
		key, err := t.Store.UpsertMessage(ctx, msg)
		if err != nil {
			return err
		}
		if len(r.Reactions) > 0 {
			if err := t.Store.ReplaceReactions(ctx, key, reactionsFromRaw(key, r.Reactions)); err != nil {
				return err
			}
		}
	}
	return nil
}

func groupReactionsByEmoji(reactions []Reaction) map[string][]string {
	out := make(map[string][]string)
	for _, r := range reactions {
		out[r.Emoji] = append(out[r.Emoji], r.UserID)
	}
	return out
}
