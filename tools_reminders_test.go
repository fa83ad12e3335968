package deskmirror

import (
	"context"
	"encoding/json"
	"testing"
)

func TestRemindersToolCreateAndList(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	tool := &RemindersTool{Store: store, UserID: "U1"}

	result, err := tool.Execute(ctx, "manage_reminders", json.RawMessage(`{"action":"create","text":"renew passport","due":"2026-08-01 09:00"}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	var created map[string]any
	json.Unmarshal([]byte(result.Content), &created)
	if created["success"] != true {
		t.Fatalf("expected success, got %+v", created)
	}

	result, err = tool.Execute(ctx, "manage_reminders", json.RawMessage(`{"action":"list"}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	var listed map[string]any
	json.Unmarshal([]byte(result.Content), &listed)
	reminders, _ := listed["reminders"].([]any)
	if len(reminders) != 1 {
		t.Fatalf("expected 1 reminder, got %+v", listed)
	}
}

func TestRemindersToolRejectsBadRecurrence(t *testing.T) {
	store := newFakeStore()
	tool := &RemindersTool{Store: store, UserID: "U1"}
	result, err := tool.Execute(context.Background(), "manage_reminders", json.RawMessage(`{"action":"create","text":"x","due":"2026-08-01 09:00","recurring":"bogus"}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Error == "" {
		t.Error("expected an error for a malformed recurrence expression")
	}
}

func TestRemindersToolCompleteRecurringAdvancesDue(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	store.CreateReminder(ctx, Reminder{ID: "r1", Owner: "U1", Text: "standup", Due: 0, Recurring: "09:00 daily"})

	tool := &RemindersTool{Store: store, UserID: "U1"}
	result, err := tool.Execute(ctx, "manage_reminders", json.RawMessage(`{"action":"complete","id":"r1"}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	var out map[string]any
	json.Unmarshal([]byte(result.Content), &out)
	if out["success"] != true {
		t.Fatalf("expected success, got %+v", out)
	}

	stored := store.reminders["r1"]
	if !stored.Pending() {
		t.Error("expected a recurring reminder to remain pending after complete, with a new due time")
	}
}

func TestRemindersToolCompleteOneShotMarksComplete(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	store.CreateReminder(ctx, Reminder{ID: "r1", Owner: "U1", Text: "one-off", Due: 1000})

	tool := &RemindersTool{Store: store, UserID: "U1"}
	if _, err := tool.Execute(ctx, "manage_reminders", json.RawMessage(`{"action":"complete","id":"r1"}`)); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if store.reminders["r1"].Pending() {
		t.Error("expected a one-shot reminder to be complete")
	}
}

func TestRemindersToolDelete(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	store.CreateReminder(ctx, Reminder{ID: "r1", Owner: "U1", Text: "x", Due: 1000})

	tool := &RemindersTool{Store: store, UserID: "U1"}
	if _, err := tool.Execute(ctx, "manage_reminders", json.RawMessage(`{"action":"delete","id":"r1"}`)); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if _, ok := store.reminders["r1"]; ok {
		t.Error("expected reminder to be deleted")
	}
}
