// Package llmhttp provides thin net/http bindings of deskmirror.Provider and
// deskmirror.EmbeddingProvider against real wire APIs, in the same spirit as
// internal/workspace's HTTPClient: the language-model and embedding hosts
// are out-of-scope external collaborators per spec.md §1 (treated as pure
// functions), so these adapters are minimal — just enough wire translation
// for cmd/assistant to have something concrete to construct.
package llmhttp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	deskmirror "github.com/mjhale/deskmirror"
)

// AnthropicProvider adapts deskmirror.Provider to the Anthropic Messages API
// wire format, grounded on the teacher's provider/openaicompat package's
// BuildBody/parse split (build request from ChatMessage, parse response back
// into ChatResponse) but targeting Anthropic's content-block shape, which
// matches deskmirror's own ContentBlock tagged union (spec.md §9) more
// directly than the OpenAI-compat shape would.
type AnthropicProvider struct {
	apiKey  string
	model   string
	baseURL string
	hc      *http.Client
}

// AnthropicOption configures an AnthropicProvider at construction.
type AnthropicOption func(*AnthropicProvider)

// WithBaseURL overrides the default Anthropic API host, used by tests to
// point at an httptest server.
func WithBaseURL(url string) AnthropicOption {
	return func(p *AnthropicProvider) { p.baseURL = url }
}

// NewAnthropicProvider builds a provider bound to model, authenticated with
// apiKey against the public Anthropic Messages API endpoint.
func NewAnthropicProvider(apiKey, model string, opts ...AnthropicOption) *AnthropicProvider {
	p := &AnthropicProvider{
		apiKey:  apiKey,
		model:   model,
		baseURL: "https://api.anthropic.com",
		hc:      &http.Client{Timeout: 120 * time.Second},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *AnthropicProvider) Name() string { return "anthropic" }

type wireMessage struct {
	Role    string        `json:"role"`
	Content []wireContent `json:"content"`
}

type wireContent struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   string          `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
}

type wireTool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema"`
}

type wireRequest struct {
	Model     string        `json:"model"`
	System    string        `json:"system,omitempty"`
	Messages  []wireMessage `json:"messages"`
	Tools     []wireTool    `json:"tools,omitempty"`
	MaxTokens int           `json:"max_tokens"`
}

type wireResponse struct {
	Content    []wireContent `json:"content"`
	StopReason string        `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Complete implements deskmirror.Provider.
func (p *AnthropicProvider) Complete(ctx context.Context, req deskmirror.ChatRequest) (deskmirror.ChatResponse, error) {
	wireReq := wireRequest{
		Model:     p.model,
		System:    req.System,
		MaxTokens: req.MaxTokens,
	}
	if wireReq.MaxTokens == 0 {
		wireReq.MaxTokens = 4096
	}
	for _, m := range req.Messages {
		wireReq.Messages = append(wireReq.Messages, toWireMessage(m))
	}
	for _, t := range req.Tools {
		wireReq.Tools = append(wireReq.Tools, wireTool{Name: t.Name, Description: t.Description, InputSchema: t.InputSchema})
	}

	body, err := json.Marshal(wireReq)
	if err != nil {
		return deskmirror.ChatResponse{}, fmt.Errorf("llmhttp: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return deskmirror.ChatResponse{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	resp, err := p.hc.Do(httpReq)
	if err != nil {
		return deskmirror.ChatResponse{}, fmt.Errorf("llmhttp: request: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return deskmirror.ChatResponse{}, fmt.Errorf("llmhttp: read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return deskmirror.ChatResponse{}, &ErrThrottled{RetryAfter: retryAfterHeader(resp.Header.Get("Retry-After"))}
	}

	var out wireResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return deskmirror.ChatResponse{}, fmt.Errorf("llmhttp: unmarshal response: %w", err)
	}
	if out.Error != nil {
		return deskmirror.ChatResponse{}, fmt.Errorf("llmhttp: anthropic error: %s", out.Error.Message)
	}

	return fromWireResponse(out), nil
}

func toWireMessage(m deskmirror.ChatMessage) wireMessage {
	wm := wireMessage{Role: string(m.Role)}
	for _, b := range m.Content {
		switch b.Kind {
		case deskmirror.BlockText:
			wm.Content = append(wm.Content, wireContent{Type: "text", Text: b.Text})
		case deskmirror.BlockToolUse:
			wm.Content = append(wm.Content, wireContent{Type: "tool_use", ID: b.ToolUseID, Name: b.ToolName, Input: b.ToolInput})
		case deskmirror.BlockToolResult:
			wm.Content = append(wm.Content, wireContent{Type: "tool_result", ToolUseID: b.ToolUseID, Content: b.Text, IsError: b.IsError})
		}
	}
	return wm
}

func fromWireResponse(out wireResponse) deskmirror.ChatResponse {
	var text string
	var calls []deskmirror.ToolCall
	for _, c := range out.Content {
		switch c.Type {
		case "text":
			text += c.Text
		case "tool_use":
			calls = append(calls, deskmirror.ToolCall{ID: c.ID, Name: c.Name, Args: c.Input})
		}
	}
	stop := deskmirror.StopEndTurn
	switch out.StopReason {
	case "tool_use":
		stop = deskmirror.StopToolUse
	case "max_tokens":
		stop = deskmirror.StopMaxTokens
	}
	return deskmirror.ChatResponse{
		Text:       text,
		ToolCalls:  calls,
		StopReason: stop,
		Usage:      deskmirror.Usage{InputTokens: out.Usage.InputTokens, OutputTokens: out.Usage.OutputTokens},
	}
}

// ErrThrottled mirrors workspace.ErrThrottled's structural contract
// (RetryAfterHint() time.Duration) so a RateGate decorator wrapping a
// Provider recognizes it the same way it recognizes a throttled workspace
// call.
type ErrThrottled struct {
	RetryAfter time.Duration
}

func (e *ErrThrottled) Error() string                 { return "llmhttp: http 429" }
func (e *ErrThrottled) RetryAfterHint() time.Duration { return e.RetryAfter }

func retryAfterHeader(v string) time.Duration {
	if v == "" {
		return 0
	}
	var secs int
	if _, err := fmt.Sscanf(v, "%d", &secs); err != nil {
		return 0
	}
	return time.Duration(secs) * time.Second
}

var _ deskmirror.Provider = (*AnthropicProvider)(nil)
