package llmhttp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	deskmirror "github.com/mjhale/deskmirror"
)

func TestAnthropicProviderComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("x-api-key"); got != "test-key" {
			t.Errorf("expected x-api-key header, got %q", got)
		}
		var req wireRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Model != "claude-test" {
			t.Errorf("expected model claude-test, got %q", req.Model)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(wireResponse{
			Content:    []wireContent{{Type: "text", Text: "hello"}},
			StopReason: "end_turn",
		})
	}))
	defer srv.Close()

	p := NewAnthropicProvider("test-key", "claude-test", WithBaseURL(srv.URL))
	resp, err := p.Complete(context.Background(), deskmirror.ChatRequest{
		Messages: []deskmirror.ChatMessage{deskmirror.UserMessage("hi")},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Text != "hello" {
		t.Errorf("expected text %q, got %q", "hello", resp.Text)
	}
	if resp.StopReason != deskmirror.StopEndTurn {
		t.Errorf("expected StopEndTurn, got %v", resp.StopReason)
	}
}

func TestAnthropicProviderToolUse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(wireResponse{
			Content: []wireContent{
				{Type: "text", Text: "let me check"},
				{Type: "tool_use", ID: "tu1", Name: "search", Input: json.RawMessage(`{"query":"x"}`)},
			},
			StopReason: "tool_use",
		})
	}))
	defer srv.Close()

	p := NewAnthropicProvider("k", "m", WithBaseURL(srv.URL))
	resp, err := p.Complete(context.Background(), deskmirror.ChatRequest{
		Messages: []deskmirror.ChatMessage{deskmirror.UserMessage("hi")},
		Tools:    []deskmirror.ToolDefinition{{Name: "search", Description: "d", InputSchema: json.RawMessage(`{}`)}},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.StopReason != deskmirror.StopToolUse {
		t.Errorf("expected StopToolUse, got %v", resp.StopReason)
	}
	if len(resp.ToolCalls) != 1 || resp.ToolCalls[0].Name != "search" {
		t.Fatalf("expected one search tool call, got %+v", resp.ToolCalls)
	}
}

func TestAnthropicProviderThrottled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "2")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	p := NewAnthropicProvider("k", "m", WithBaseURL(srv.URL))
	_, err := p.Complete(context.Background(), deskmirror.ChatRequest{Messages: []deskmirror.ChatMessage{deskmirror.UserMessage("hi")}})
	if err == nil {
		t.Fatal("expected throttled error")
	}
	throttled, ok := err.(*ErrThrottled)
	if !ok {
		t.Fatalf("expected *ErrThrottled, got %T: %v", err, err)
	}
	if throttled.RetryAfterHint().Seconds() != 2 {
		t.Errorf("expected 2s retry-after, got %v", throttled.RetryAfterHint())
	}
}

func TestAnthropicProviderAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"error": map[string]string{"message": "bad request"}})
	}))
	defer srv.Close()

	p := NewAnthropicProvider("k", "m", WithBaseURL(srv.URL))
	_, err := p.Complete(context.Background(), deskmirror.ChatRequest{Messages: []deskmirror.ChatMessage{deskmirror.UserMessage("hi")}})
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestToWireMessageToolResult(t *testing.T) {
	msg := deskmirror.ToolResultMessage("tu1", "result text", true)
	wm := toWireMessage(msg)
	if len(wm.Content) != 1 || wm.Content[0].Type != "tool_result" || !wm.Content[0].IsError {
		t.Fatalf("unexpected wire message: %+v", wm)
	}
}
