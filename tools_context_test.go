package deskmirror

import (
	"context"
	"encoding/json"
	"testing"
)

func TestFindContextRequiresEmbeddingProvider(t *testing.T) {
	store := newFakeStore()
	tool := &FindContextTool{Store: store, Resolver: NewEntityResolver(store, 0)}
	result, err := tool.Execute(context.Background(), "find_context", json.RawMessage(`{"message_link":"https://x.slack.com/archives/C1/p100000000"}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Error == "" {
		t.Error("expected an error when no embedding provider is configured")
	}
}

func TestFindContextRejectsUnknownMessageLink(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	tool := &FindContextTool{Store: store, Embeddings: &fakeEmbeddingProvider{}, Resolver: NewEntityResolver(store, 0)}
	result, err := tool.Execute(ctx, "find_context", json.RawMessage(`{"message_link":"https://x.slack.com/archives/C1/p100000000"}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Error == "" {
		t.Error("expected an error for a message_link with no matching message")
	}
}

func TestFindContextExcludesAnchorMessage(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	store.UpsertMessage(ctx, Message{ChannelID: "C1", TS: "100.000000", AuthorID: "U1", Body: "anchor"})

	tool := &FindContextTool{Store: store, Embeddings: &fakeEmbeddingProvider{}, Resolver: NewEntityResolver(store, 0)}
	result, err := tool.Execute(ctx, "find_context", json.RawMessage(`{"message_link":"https://x.slack.com/archives/C1/p100000000"}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	var out []contextResultOut
	if err := json.Unmarshal([]byte(result.Content), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	// fakeStore.KNN always returns nil, so this first call has nothing to
	// filter and returns no related messages.
	if out == nil {
		out = []contextResultOut{}
	}
	if len(out) != 0 {
		t.Errorf("expected no related messages from a nil-KNN store, got %+v", out)
	}

	// Feed the anchor and one other message back as KNN hits: only the
	// other message is returned.
	anchor, _ := store.GetMessage(ctx, "C1", "100.000000")
	other := Message{ChannelID: "C1", TS: "200.000000", AuthorID: "U1", Body: "related"}
	store.UpsertMessage(ctx, other)
	knn := &knnFakeStore{fakeStore: store, hits: []ScoredMessage{{Message: anchor, Score: 1}, {Message: other, Score: 0.8}}}
	tool = &FindContextTool{Store: knn, Embeddings: &fakeEmbeddingProvider{}, Resolver: NewEntityResolver(knn, 0)}
	result, err = tool.Execute(ctx, "find_context", json.RawMessage(`{"message_link":"https://x.slack.com/archives/C1/p100000000"}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	out = nil
	if err := json.Unmarshal([]byte(result.Content), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(out) != 1 || out[0].TS != "200.000000" {
		t.Errorf("expected only the non-anchor hit, got %+v", out)
	}
}
