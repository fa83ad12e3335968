package deskmirror

import "testing"

func TestUserMessageIsNewTurn(t *testing.T) {
	msg := UserMessage("hello")
	if msg.Role != RoleUser {
		t.Errorf("Role = %q, want %q", msg.Role, RoleUser)
	}
	if !msg.IsNewTurn() {
		t.Error("a plain-text user message should open a new turn")
	}
}

func TestToolResultMessageIsNotNewTurn(t *testing.T) {
	msg := ToolResultMessage("call-123", "result data", false)
	if msg.Role != RoleUser {
		t.Errorf("Role = %q, want %q", msg.Role, RoleUser)
	}
	if msg.IsNewTurn() {
		t.Error("a tool_result-carrying user message must not open a new turn")
	}
	if len(msg.Content) != 1 || msg.Content[0].Kind != BlockToolResult {
		t.Fatalf("expected a single tool_result block, got %+v", msg.Content)
	}
	if msg.Content[0].ToolUseID != "call-123" || msg.Content[0].Text != "result data" {
		t.Errorf("unexpected block fields: %+v", msg.Content[0])
	}
}

func TestAssistantMessageDropsEmptyBlocks(t *testing.T) {
	msg := AssistantMessage("", nil)
	if len(msg.Content) != 0 {
		t.Errorf("expected zero content blocks for empty text and no tool calls, got %+v", msg.Content)
	}
}

func TestAssistantMessageWithTextAndTools(t *testing.T) {
	calls := []ToolCall{{ID: "t1", Name: "get_status"}}
	msg := AssistantMessage("checking now", calls)
	if len(msg.Content) != 2 {
		t.Fatalf("expected text + tool_use blocks, got %d", len(msg.Content))
	}
	if msg.Content[0].Kind != BlockText || msg.Content[0].Text != "checking now" {
		t.Errorf("unexpected first block: %+v", msg.Content[0])
	}
	if msg.Content[1].Kind != BlockToolUse || msg.Content[1].ToolName != "get_status" {
		t.Errorf("unexpected second block: %+v", msg.Content[1])
	}
}

func TestUserResolveNameFallback(t *testing.T) {
	tests := []struct {
		user User
		want string
	}{
		{User{ID: "U1", DisplayName: "ana"}, "ana"},
		{User{ID: "U1", RealName: "Ana Smith"}, "Ana Smith"},
		{User{ID: "U1", Login: "asmith"}, "asmith"},
		{User{ID: "U1"}, "U1"},
	}
	for _, tt := range tests {
		if got := tt.user.ResolveName(); got != tt.want {
			t.Errorf("ResolveName() = %q, want %q", got, tt.want)
		}
	}
}

func TestSessionAddProcessedIsIdempotent(t *testing.T) {
	var s Session
	item := ProcessedItem{ChannelID: "C1", MessageTS: "1000.0", Disposition: DispositionReviewed}
	s.AddProcessed(item)
	s.AddProcessed(item)
	if len(s.ProcessedItems) != 1 {
		t.Errorf("expected a single entry after two adds of the same key, got %d", len(s.ProcessedItems))
	}
}

func TestSessionAddAnalyzedUpsertsByKey(t *testing.T) {
	var s Session
	item := AnalyzedItem{ChannelID: "C1", MessageTS: "1000.0", Priority: PriorityHigh}
	s.AddAnalyzed(item)
	item.Priority = PriorityLow
	s.AddAnalyzed(item)
	if len(s.AnalyzedItems) != 1 {
		t.Fatalf("expected a single entry, got %d", len(s.AnalyzedItems))
	}
	if got := s.AnalyzedItems[item.Key()].Priority; got != PriorityLow {
		t.Errorf("expected upsert to replace priority, got %v", got)
	}
}

func TestSessionStale(t *testing.T) {
	s := Session{LastActivityAt: 1000}
	if s.Stale(1000 + staleSessionAge) {
		t.Error("exactly at the threshold should not yet be stale")
	}
	if !s.Stale(1000 + staleSessionAge + 1) {
		t.Error("past the threshold should be stale")
	}
}

func TestPriorityString(t *testing.T) {
	tests := map[Priority]string{
		PriorityCritical: "CRITICAL",
		PriorityHigh:     "HIGH",
		PriorityMedium:   "MEDIUM",
		PriorityLow:      "LOW",
	}
	for p, want := range tests {
		if got := p.String(); got != want {
			t.Errorf("Priority(%d).String() = %q, want %q", p, got, want)
		}
	}
}
