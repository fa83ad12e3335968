package deskmirror

import (
	"context"
	"strings"
	"testing"
)

// scenario 5 from spec.md §8: summarization triggers once the turn count
// exceeds summarize_threshold, extracting everything outside the trailing
// max_recent_turns window.
func TestMaybeSummarizeTriggersPastThreshold(t *testing.T) {
	provider := &fakeProvider{responses: []ChatResponse{{Text: "summary of early turns"}}}
	s := NewSummarizer(provider, 2, 3, nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		s.AddUserMessage("turn")
		s.AddAssistantMessage("reply", nil)
	}
	if got := s.countTurns(); got != 5 {
		t.Fatalf("countTurns = %d, want 5", got)
	}

	s.MaybeSummarize(ctx)

	if s.Summary() != "summary of early turns" {
		t.Fatalf("Summary() = %q", s.Summary())
	}
	if got := s.countTurns(); got != 2 {
		t.Fatalf("countTurns after summarize = %d, want 2 (the trailing window)", got)
	}
}

func TestMaybeSummarizeNoopBelowThreshold(t *testing.T) {
	provider := &fakeProvider{responses: []ChatResponse{{Text: "should not be called"}}}
	s := NewSummarizer(provider, 4, 6, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		s.AddUserMessage("turn")
	}
	s.MaybeSummarize(ctx)
	if s.Summary() != "" {
		t.Fatalf("expected no summary below threshold, got %q", s.Summary())
	}
	if provider.calls != 0 {
		t.Fatalf("provider should not have been called")
	}
}

func TestMaybeSummarizeMergesWithPriorSummary(t *testing.T) {
	var prompts []string
	provider := &fakeProvider{
		responses: []ChatResponse{{Text: "round one summary"}, {Text: "merged summary"}},
		onComplete: func(req ChatRequest) {
			prompts = append(prompts, req.Messages[0].Content[0].Text)
		},
	}
	s := NewSummarizer(provider, 1, 2, nil)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		s.AddUserMessage("turn")
	}
	s.MaybeSummarize(ctx)
	if s.Summary() != "round one summary" {
		t.Fatalf("Summary() = %q", s.Summary())
	}

	for i := 0; i < 4; i++ {
		s.AddUserMessage("turn")
	}
	s.MaybeSummarize(ctx)
	if s.Summary() != "merged summary" {
		t.Fatalf("Summary() = %q, want merged summary", s.Summary())
	}
	if len(prompts) != 3 {
		t.Fatalf("expected 3 provider calls, got %d", len(prompts))
	}
	if !strings.Contains(prompts[2], "round one summary") || !strings.Contains(prompts[2], "Merge these two summaries") {
		t.Fatalf("merge prompt missing expected content: %q", prompts[2])
	}
}

func TestMaybeSummarizeFallsBackToTruncationOnFailure(t *testing.T) {
	provider := &erroringProvider{}
	s := NewSummarizer(provider, 2, 3, nil)
	ctx := context.Background()

	for i := 0; i < 30; i++ {
		s.AddUserMessage("turn")
	}
	s.MaybeSummarize(ctx)

	if s.Summary() != "" {
		t.Fatalf("expected summary untouched on failure, got %q", s.Summary())
	}
	if got := len(s.Messages()); got != truncationFallbackMessages {
		t.Fatalf("len(Messages()) = %d, want %d", got, truncationFallbackMessages)
	}
}

func TestBuildMessagesPrependsSummaryWhenPresent(t *testing.T) {
	provider := &fakeProvider{responses: []ChatResponse{{Text: "s"}}}
	s := NewSummarizer(provider, 4, 6, nil)
	s.AddUserMessage("hello")
	if msgs := s.BuildMessages(); len(msgs) != 1 {
		t.Fatalf("expected no prefix without a summary, got %d messages", len(msgs))
	}

	s.summary = "earlier context"
	msgs := s.BuildMessages()
	if len(msgs) != 2 {
		t.Fatalf("len(msgs) = %d, want 2", len(msgs))
	}
	if !strings.Contains(msgs[0].Content[0].Text, summaryPrefix) || !strings.Contains(msgs[0].Content[0].Text, summarySuffix) {
		t.Fatalf("summary message missing delimiters: %q", msgs[0].Content[0].Text)
	}
}

type erroringProvider struct{}

func (p *erroringProvider) Name() string { return "erroring" }
func (p *erroringProvider) Complete(_ context.Context, _ ChatRequest) (ChatResponse, error) {
	return ChatResponse{}, errTestProvider
}

var errTestProvider = &ErrTransport{Method: "complete"}
