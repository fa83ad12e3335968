package deskmirror

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/mjhale/deskmirror/internal/workspace"
)

// SearchTool implements the search tool: hybrid vector k-NN ∪ text-substring
// ∪ optional upstream search, merged by score. Grounded in
// original_source/slack_assistant/agent/tools/search_tool.py's hybrid
// text+vector+optional-API search.
type SearchTool struct {
	Store      Store
	Embeddings EmbeddingProvider // nil disables the vector leg
	Resolver   *EntityResolver
	Client     workspace.Client // nil disables the use_slack_api leg
	Gate       *RateGate
}

var searchToolDef = ToolDefinition{
	Name:        "search",
	Description: "Search mirrored messages by meaning (vector similarity) and by literal text match, optionally also querying the upstream workspace search API.",
	InputSchema: json.RawMessage(`{
		"type": "object",
		"properties": {
			"query": {"type": "string"},
			"limit": {"type": "integer", "description": "Maximum results to return", "default": 10},
			"use_slack_api": {"type": "boolean", "description": "Also query the upstream workspace search API", "default": false}
		},
		"required": ["query"]
	}`),
}

func (t *SearchTool) Definitions() []ToolDefinition { return []ToolDefinition{searchToolDef} }

type searchArgs struct {
	Query       string `json:"query"`
	Limit       int    `json:"limit"`
	UseSlackAPI bool   `json:"use_slack_api"`
}

type searchResultOut struct {
	ChannelID string  `json:"channel_id"`
	TS        string  `json:"ts"`
	Author    string  `json:"author"`
	Text      string  `json:"text"`
	Score     float64 `json:"score"`
	Source    string  `json:"source"`
}

// scoreFor a text-substring hit and an upstream hit: both lack a model
// score, so they're seeded below the lowest plausible cosine-similarity
// match a user would act on, letting genuine vector hits rank above them
// when the same message appears in more than one leg.
const (
	textMatchScore     = 0.5
	upstreamMatchScore = 0.4
)

func (t *SearchTool) Execute(ctx context.Context, name string, raw json.RawMessage) (ToolResult, error) {
	if name != searchToolDef.Name {
		return ToolResult{Error: "unknown tool: " + name}, nil
	}
	args := searchArgs{Limit: 10}
	if err := json.Unmarshal(raw, &args); err != nil {
		return ToolResult{Error: fmt.Sprintf("bad arguments: %v", err)}, nil
	}
	if args.Query == "" {
		return ToolResult{Error: "search requires a non-empty query"}, nil
	}
	if args.Limit <= 0 || args.Limit > 50 {
		args.Limit = 10
	}

	type key struct{ channelID, ts string }
	merged := make(map[key]searchResultOut)

	upsert := func(channelID, ts, author, text string, score float64, source string) {
		k := key{channelID, ts}
		if existing, ok := merged[k]; !ok || score > existing.Score {
			merged[k] = searchResultOut{ChannelID: channelID, TS: ts, Author: author, Text: text, Score: score, Source: source}
		}
	}

	if t.Embeddings != nil {
		vecs, err := t.Embeddings.Embed(ctx, []string{args.Query})
		if err != nil {
			return ToolResult{}, fmt.Errorf("search: embed: %w", err)
		}
		if len(vecs) == 1 {
			hits, err := t.Store.KNN(ctx, vecs[0], args.Limit)
			if err != nil {
				return ToolResult{}, fmt.Errorf("search: knn: %w", err)
			}
			for _, h := range hits {
				text, err := t.Resolver.RenderMessage(ctx, h.Message.Body)
				if err != nil {
					return ToolResult{}, fmt.Errorf("search: render: %w", err)
				}
				upsert(h.Message.ChannelID, h.Message.TS, t.resolveAuthor(ctx, h.Message.AuthorID), text, h.Score, "vector")
			}
		}
	}

	textHits, err := t.Store.SearchMessagesText(ctx, args.Query, args.Limit)
	if err != nil {
		return ToolResult{}, fmt.Errorf("search: text: %w", err)
	}
	for _, m := range textHits {
		text, err := t.Resolver.RenderMessage(ctx, m.Body)
		if err != nil {
			return ToolResult{}, fmt.Errorf("search: render: %w", err)
		}
		upsert(m.ChannelID, m.TS, t.resolveAuthor(ctx, m.AuthorID), text, textMatchScore, "text")
	}

	if args.UseSlackAPI && t.Client != nil && t.Gate != nil {
		raws, err := Execute(ctx, t.Gate, "search.messages", func(ctx context.Context) ([]workspace.RawMessage, error) {
			return t.Client.Search(ctx, args.Query, args.Limit)
		})
		if err != nil {
			return ToolResult{}, fmt.Errorf("search: upstream: %w", &ErrTransport{Method: "search.messages", Err: err})
		}
		for _, r := range raws {
			text, err := t.Resolver.RenderMessage(ctx, r.Text)
			if err != nil {
				return ToolResult{}, fmt.Errorf("search: render: %w", err)
			}
			upsert("", r.TS, t.resolveAuthor(ctx, r.User), text, upstreamMatchScore, "upstream")
		}
	}

	out := make([]searchResultOut, 0, len(merged))
	for _, v := range merged {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > args.Limit {
		out = out[:args.Limit]
	}

	body, err := json.Marshal(out)
	if err != nil {
		return ToolResult{}, fmt.Errorf("search: marshal: %w", err)
	}
	return ToolResult{Content: string(body)}, nil
}

func (t *SearchTool) resolveAuthor(ctx context.Context, userID string) string {
	if userID == "" {
		return ""
	}
	users, _, err := t.Resolver.Resolve(ctx, CollectedEntities{UserIDs: map[string]bool{userID: true}})
	if err != nil {
		return userID
	}
	if u, ok := users[userID]; ok {
		return u.ResolveName()
	}
	return userID
}
