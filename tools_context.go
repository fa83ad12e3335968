package deskmirror

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mjhale/deskmirror/internal/linkfmt"
)

// FindContextTool implements the find_context tool: related messages by
// semantic similarity to the message a link points at. Grounded in
// original_source/slack_assistant/agent/tools/context_tool.py, which wraps
// a SearchService+EmbeddingService keyed off a message_link.
type FindContextTool struct {
	Store      Store
	Embeddings EmbeddingProvider
	Resolver   *EntityResolver
}

var findContextToolDef = ToolDefinition{
	Name:        "find_context",
	Description: "Given a message link, return other messages related to it by semantic similarity — useful for recalling prior discussion on the same topic.",
	InputSchema: json.RawMessage(`{
		"type": "object",
		"properties": {
			"message_link": {"type": "string"},
			"limit": {"type": "integer", "description": "Maximum related messages to return (1-25)", "default": 10}
		},
		"required": ["message_link"]
	}`),
}

func (t *FindContextTool) Definitions() []ToolDefinition { return []ToolDefinition{findContextToolDef} }

type findContextArgs struct {
	MessageLink string `json:"message_link"`
	Limit       int    `json:"limit"`
}

type contextResultOut struct {
	ChannelID string  `json:"channel_id"`
	TS        string  `json:"ts"`
	Author    string  `json:"author"`
	Text      string  `json:"text"`
	Score     float64 `json:"score"`
}

func (t *FindContextTool) Execute(ctx context.Context, name string, raw json.RawMessage) (ToolResult, error) {
	if name != findContextToolDef.Name {
		return ToolResult{Error: "unknown tool: " + name}, nil
	}
	args := findContextArgs{Limit: 10}
	if err := json.Unmarshal(raw, &args); err != nil {
		return ToolResult{Error: fmt.Sprintf("bad arguments: %v", err)}, nil
	}
	if args.MessageLink == "" {
		return ToolResult{Error: "find_context requires message_link"}, nil
	}
	if args.Limit <= 0 || args.Limit > 25 {
		args.Limit = 10
	}
	if t.Embeddings == nil {
		return ToolResult{Error: "find_context requires an embedding provider, which is not configured"}, nil
	}

	link, err := linkfmt.Parse(args.MessageLink)
	if err != nil {
		return ToolResult{Error: fmt.Sprintf("bad message_link: %v", err)}, nil
	}
	anchor, err := t.Store.GetMessage(ctx, link.ChannelID, link.TS)
	var notFound *ErrNotFound
	if errors.As(err, &notFound) {
		return ToolResult{Error: "message_link does not resolve to a known message"}, nil
	}
	if err != nil {
		return ToolResult{}, fmt.Errorf("find_context: %w", err)
	}
	if anchor.Key == 0 {
		return ToolResult{Error: "message_link does not resolve to a known message"}, nil
	}

	vecs, err := t.Embeddings.Embed(ctx, []string{anchor.Body})
	if err != nil {
		return ToolResult{}, fmt.Errorf("find_context: embed: %w", err)
	}
	if len(vecs) != 1 {
		return ToolResult{}, fmt.Errorf("find_context: expected one embedding, got %d", len(vecs))
	}

	// Over-fetch by one to account for the anchor message itself usually
	// being its own nearest neighbor.
	hits, err := t.Store.KNN(ctx, vecs[0], args.Limit+1)
	if err != nil {
		return ToolResult{}, fmt.Errorf("find_context: knn: %w", err)
	}

	out := make([]contextResultOut, 0, len(hits))
	for _, h := range hits {
		if h.Message.ChannelID == anchor.ChannelID && h.Message.TS == anchor.TS {
			continue
		}
		text, err := t.Resolver.RenderMessage(ctx, h.Message.Body)
		if err != nil {
			return ToolResult{}, fmt.Errorf("find_context: render: %w", err)
		}
		author := h.Message.AuthorID
		if users, _, err := t.Resolver.Resolve(ctx, CollectedEntities{UserIDs: map[string]bool{h.Message.AuthorID: true}}); err == nil {
			if u, ok := users[h.Message.AuthorID]; ok {
				author = u.ResolveName()
			}
		}
		out = append(out, contextResultOut{ChannelID: h.Message.ChannelID, TS: h.Message.TS, Author: author, Text: text, Score: h.Score})
		if len(out) >= args.Limit {
			break
		}
	}

	body, err := json.Marshal(out)
	if err != nil {
		return ToolResult{}, fmt.Errorf("find_context: marshal: %w", err)
	}
	return ToolResult{Content: string(body)}, nil
}
