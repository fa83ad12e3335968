package deskmirror

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
)

func TestPreferencesToolAddAndGetAll(t *testing.T) {
	var prefs PreferenceSet
	tool := &PreferencesTool{Prefs: &prefs}

	result, err := tool.Execute(context.Background(), "manage_preferences", json.RawMessage(`{"action":"add_rule","content":"cc on-call"}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	var addResult map[string]any
	if err := json.Unmarshal([]byte(result.Content), &addResult); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if addResult["success"] != true {
		t.Fatalf("expected success, got %+v", addResult)
	}

	result, err = tool.Execute(context.Background(), "manage_preferences", json.RawMessage(`{"action":"get_all"}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	var all map[string]any
	if err := json.Unmarshal([]byte(result.Content), &all); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	rules, _ := all["rules"].([]any)
	if len(rules) != 1 {
		t.Errorf("expected 1 rule in get_all, got %+v", all)
	}
}

func TestPreferencesToolRemoveRuleNotFound(t *testing.T) {
	var prefs PreferenceSet
	tool := &PreferencesTool{Prefs: &prefs}
	result, err := tool.Execute(context.Background(), "manage_preferences", json.RawMessage(`{"action":"remove_rule","id":"nonexistent"}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(result.Content), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out["success"] != false {
		t.Errorf("expected success=false, got %+v", out)
	}
}

func TestPreferencesToolAddEmojiPatternPersists(t *testing.T) {
	store, err := NewPrefsStore(filepath.Join(t.TempDir(), "prefs.db"))
	if err != nil {
		t.Fatalf("NewPrefsStore: %v", err)
	}
	defer store.Close()

	var prefs PreferenceSet
	tool := &PreferencesTool{Prefs: &prefs, Store: store}
	_, err = tool.Execute(context.Background(), "manage_preferences", json.RawMessage(`{"action":"add_emoji_pattern","emoji":":eyes:","meaning":"noted","priority_adjustment":5}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	persisted, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(persisted.EmojiPatterns) != 1 || persisted.EmojiPatterns[0].Emoji != "eyes" || persisted.EmojiPatterns[0].PriorityAdjust != 2 {
		t.Errorf("unexpected persisted prefs: %+v", persisted)
	}
}
