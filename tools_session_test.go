package deskmirror

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
)

func TestSessionToolMarkItemReviewedIsIdempotent(t *testing.T) {
	session := &Session{ID: "s1", StartedAt: 1000, LastActivityAt: 1000}
	tool := &SessionTool{Session: session}

	args := json.RawMessage(`{"action":"mark_item_reviewed","channel_id":"C1","message_ts":"100.000000"}`)
	result, err := tool.Execute(context.Background(), "manage_session", args)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	var first map[string]any
	json.Unmarshal([]byte(result.Content), &first)
	if first["already_processed"] != false {
		t.Errorf("expected already_processed=false on first mark, got %+v", first)
	}

	result, err = tool.Execute(context.Background(), "manage_session", args)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	var second map[string]any
	json.Unmarshal([]byte(result.Content), &second)
	if second["already_processed"] != true {
		t.Errorf("expected already_processed=true on repeat mark, got %+v", second)
	}
	if len(session.ProcessedItems) != 1 {
		t.Errorf("expected exactly 1 processed item, got %d", len(session.ProcessedItems))
	}
}

func TestSessionToolGetSessionInfo(t *testing.T) {
	session := &Session{ID: "s1", StartedAt: NowUnix() - 3600, LastActivityAt: NowUnix(), CurrentFocus: "launch"}
	tool := &SessionTool{Session: session}
	result, err := tool.Execute(context.Background(), "manage_session", json.RawMessage(`{"action":"get_session_info"}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(result.Content), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out["session_id"] != "s1" || out["current_focus"] != "launch" {
		t.Errorf("unexpected session info: %+v", out)
	}
}

func TestSessionToolSaveSummaryPersists(t *testing.T) {
	store, err := NewSessionStore(filepath.Join(t.TempDir(), "session.db"))
	if err != nil {
		t.Fatalf("NewSessionStore: %v", err)
	}
	defer store.Close()

	session := &Session{ID: "s1", StartedAt: 1000, LastActivityAt: 1000}
	tool := &SessionTool{Session: session, Store: store}
	args := json.RawMessage(`{"action":"save_summary","summary_text":"discussed launch","key_topics":["launch"],"pending_follow_ups":["file ticket"]}`)
	if _, err := tool.Execute(context.Background(), "manage_session", args); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	loaded, ok, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !ok {
		t.Fatal("expected a persisted session")
	}
	if loaded.ConversationSummary.SummaryText != "discussed launch" {
		t.Errorf("unexpected persisted summary: %+v", loaded.ConversationSummary)
	}
}

func TestSessionToolSetFocus(t *testing.T) {
	session := &Session{ID: "s1"}
	tool := &SessionTool{Session: session}
	if _, err := tool.Execute(context.Background(), "manage_session", json.RawMessage(`{"action":"set_focus","focus":"incident review"}`)); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if session.CurrentFocus != "incident review" {
		t.Errorf("CurrentFocus = %q", session.CurrentFocus)
	}
}
