package deskmirror

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mjhale/deskmirror/internal/workspace"
)

func TestGetThreadReturnsOrderedMessagesWithGroupedReactions(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	store.UpsertUser(ctx, User{ID: "U1", DisplayName: "Ada"})
	parentKey, _ := store.UpsertMessage(ctx, Message{ChannelID: "C1", TS: "100.000000", AuthorID: "U1", Body: "parent"})
	replyKey, _ := store.UpsertMessage(ctx, Message{ChannelID: "C1", TS: "200.000000", AuthorID: "U1", Body: "reply", ParentTS: "100.000000"})
	store.ReplaceReactions(ctx, parentKey, []Reaction{{MessageKey: parentKey, Emoji: "eyes", UserID: "U1"}})
	store.ReplaceReactions(ctx, replyKey, nil)

	tool := &ThreadTool{Store: store, Resolver: NewEntityResolver(store, 0)}
	result, err := tool.Execute(ctx, "get_thread", json.RawMessage(`{"channel_id":"C1","thread_ts":"100.000000"}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	var out []threadMessageOut
	if err := json.Unmarshal([]byte(result.Content), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(out))
	}
	if out[0].TS != "100.000000" || out[1].TS != "200.000000" {
		t.Errorf("expected oldest-first order, got %+v", out)
	}
	if len(out[0].Reactions["eyes"]) != 1 || out[0].Reactions["eyes"][0] != "Ada" {
		t.Errorf("expected parent reactions grouped by emoji with resolved name, got %+v", out[0].Reactions)
	}
}

func TestGetThreadAcceptsMessageLink(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	store.UpsertMessage(ctx, Message{ChannelID: "C1", TS: "100.000000", AuthorID: "U1", Body: "parent"})

	tool := &ThreadTool{Store: store, Resolver: NewEntityResolver(store, 0)}
	link := "https://example.slack.com/archives/C1/p100000000"
	result, err := tool.Execute(ctx, "get_thread", json.RawMessage(`{"message_link":"`+link+`"}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	var out []threadMessageOut
	if err := json.Unmarshal([]byte(result.Content), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected 1 message from the linked thread, got %d", len(out))
	}
}

func TestGetThreadRefreshesReactionsFromUpstream(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	store.UpsertMessage(ctx, Message{ChannelID: "C1", TS: "100.000000", AuthorID: "U1", Body: "parent"})

	client := &fakeWorkspaceClient{
		replies: map[string][]workspace.RawMessage{
			"C1:100.000000": {{TS: "100.000000", User: "U1", Text: "parent", Reactions: []workspace.RawReaction{{Name: "eyes", Users: []string{"U1"}}}}},
		},
	}
	gate := NewRateGate(DefaultRetryConfig, nil)
	tool := &ThreadTool{Store: store, Resolver: NewEntityResolver(store, 0), Client: client, Gate: gate}

	result, err := tool.Execute(ctx, "get_thread", json.RawMessage(`{"channel_id":"C1","thread_ts":"100.000000","refresh_reactions":true}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if client.repliesCalls != 1 {
		t.Errorf("expected one Replies call, got %d", client.repliesCalls)
	}
	var out []threadMessageOut
	if err := json.Unmarshal([]byte(result.Content), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(out) != 1 || len(out[0].Reactions["eyes"]) != 1 {
		t.Errorf("expected refreshed reactions to be persisted and returned, got %+v", out)
	}
}
