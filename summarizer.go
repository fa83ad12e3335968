package deskmirror

import (
	"context"
	"fmt"
	"log/slog"
)

const (
	defaultMaxRecentTurns      = 4
	defaultSummarizeThreshold  = 6
	defaultMaxSummaryTokens    = 1000
	generateSummaryMaxTokens   = 500
	mergeSummaryMaxTokens      = 600
	truncationFallbackMessages = 20

	summaryPrefix = "[Context Summary from earlier in conversation]"
	summarySuffix = "[End of summary]"
)

// Summarizer implements spec.md §4.5's progressive, bounded-context
// summarization, grounded exactly in
// original_source/slack_assistant/agent/conversation_summarizing.py's
// SummarizingConversationManager: turn counting distinguishes pure-string
// user messages (new turns) from tool_result-carrying ones, and
// maybe-summarize extracts everything outside the trailing recent window,
// generates a ≤200-word factual summary, merges it with any prior summary
// into a ≤250-word summary weighted toward recency, and falls back to hard
// truncation on failure.
type Summarizer struct {
	provider           Provider
	logger             *slog.Logger
	maxRecentTurns     int
	summarizeThreshold int

	messages []ChatMessage
	summary  string
}

// NewSummarizer builds a Summarizer with spec.md defaults
// (max_recent_turns=4, summarize_threshold=6). Pass 0 for either to use
// the default.
func NewSummarizer(provider Provider, maxRecentTurns, summarizeThreshold int, logger *slog.Logger) *Summarizer {
	if maxRecentTurns <= 0 {
		maxRecentTurns = defaultMaxRecentTurns
	}
	if summarizeThreshold <= 0 {
		summarizeThreshold = defaultSummarizeThreshold
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Summarizer{provider: provider, logger: logger, maxRecentTurns: maxRecentTurns, summarizeThreshold: summarizeThreshold}
}

// AddUserMessage appends a new user-initiated turn.
func (s *Summarizer) AddUserMessage(text string) { s.messages = append(s.messages, UserMessage(text)) }

// AddAssistantMessage appends an assistant turn. A turn with zero content
// blocks (no text, no tool calls) is discarded — providers reject empty
// assistant messages.
func (s *Summarizer) AddAssistantMessage(text string, calls []ToolCall) {
	m := AssistantMessage(text, calls)
	if len(m.Content) == 0 {
		return
	}
	s.messages = append(s.messages, m)
}

// AddToolResult appends a tool-result turn. This does not open a new turn.
func (s *Summarizer) AddToolResult(toolUseID, content string, isError bool) {
	s.messages = append(s.messages, ToolResultMessage(toolUseID, content, isError))
}

// Summary returns the current rolling summary, or "" if none exists yet.
func (s *Summarizer) Summary() string { return s.summary }

// Messages returns the raw (un-prefixed) message buffer.
func (s *Summarizer) Messages() []ChatMessage { return s.messages }

// Clear resets the buffer and summary.
func (s *Summarizer) Clear() {
	s.messages = nil
	s.summary = ""
}

// countTurns counts user-initiated turns per the GLOSSARY's "Turn" entry.
func (s *Summarizer) countTurns() int {
	n := 0
	for _, m := range s.messages {
		if m.IsNewTurn() {
			n++
		}
	}
	return n
}

// turnStartIndices returns the message index of each turn's opening message.
func (s *Summarizer) turnStartIndices() []int {
	var starts []int
	for i, m := range s.messages {
		if m.IsNewTurn() {
			starts = append(starts, i)
		}
	}
	return starts
}

// MaybeSummarize checks the turn count against summarizeThreshold and, if
// exceeded, extracts the messages outside the trailing maxRecentTurns
// window, summarizes them, and merges with any prior summary. On any LM
// failure it logs and falls back to hard truncation of the trailing 20
// messages, per spec.md §7's SummarizationFailure policy — it never
// returns an error to the caller, since the conversation must continue.
func (s *Summarizer) MaybeSummarize(ctx context.Context) {
	starts := s.turnStartIndices()
	if len(starts) <= s.summarizeThreshold {
		return
	}
	if len(starts) < s.maxRecentTurns {
		return
	}

	cutIndex := starts[len(starts)-s.maxRecentTurns]
	oldMessages := s.messages[:cutIndex]
	recent := s.messages[cutIndex:]

	newSummary, err := s.generateSummary(ctx, oldMessages)
	if err != nil {
		s.logger.WarnContext(ctx, "summarization failed, falling back to truncation", "error", err)
		s.truncate()
		return
	}

	if s.summary != "" {
		merged, err := s.mergeSummaries(ctx, s.summary, newSummary)
		if err != nil {
			s.logger.WarnContext(ctx, "summary merge failed, falling back to truncation", "error", err)
			s.truncate()
			return
		}
		s.summary = merged
	} else {
		s.summary = newSummary
	}
	s.messages = recent
}

// truncate is the SummarizationFailure fallback: hard-truncate to the
// trailing 20 messages, leaving any existing summary untouched.
func (s *Summarizer) truncate() {
	if len(s.messages) > truncationFallbackMessages {
		s.messages = s.messages[len(s.messages)-truncationFallbackMessages:]
	}
}

func (s *Summarizer) generateSummary(ctx context.Context, msgs []ChatMessage) (string, error) {
	prompt := "Summarize the following conversation excerpt in 200 words or fewer. " +
		"Focus on discovered facts, decisions made, items reviewed or deferred, and any identifiers " +
		"(channel names, message links, usernames) mentioned.\n\n" + formatMessagesForSummary(msgs)
	resp, err := s.provider.Complete(ctx, ChatRequest{
		Messages:  []ChatMessage{UserMessage(prompt)},
		MaxTokens: generateSummaryMaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("generate summary: %w", err)
	}
	return resp.Text, nil
}

func (s *Summarizer) mergeSummaries(ctx context.Context, oldSummary, newSummary string) (string, error) {
	prompt := "Merge these two summaries of an ongoing conversation into a single summary of 250 words or " +
		"fewer. Weight the more recent summary more heavily when they overlap or conflict.\n\n" +
		"Earlier summary:\n" + oldSummary + "\n\nMore recent summary:\n" + newSummary
	resp, err := s.provider.Complete(ctx, ChatRequest{
		Messages:  []ChatMessage{UserMessage(prompt)},
		MaxTokens: mergeSummaryMaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("merge summaries: %w", err)
	}
	return resp.Text, nil
}

func formatMessagesForSummary(msgs []ChatMessage) string {
	out := ""
	for _, m := range msgs {
		for _, b := range m.Content {
			switch b.Kind {
			case BlockText:
				out += string(m.Role) + ": " + b.Text + "\n"
			case BlockToolUse:
				out += string(m.Role) + " called tool " + b.ToolName + "\n"
			case BlockToolResult:
				out += "tool result: " + b.Text + "\n"
			}
		}
	}
	return out
}

// BuildMessages returns the messages to send to the provider: if a summary
// exists, a single user-role message delimited by summaryPrefix/summarySuffix
// is prepended, followed by the raw buffer.
func (s *Summarizer) BuildMessages() []ChatMessage {
	if s.summary == "" {
		return s.messages
	}
	summaryMsg := UserMessage(summaryPrefix + "\n" + s.summary + "\n" + summarySuffix)
	out := make([]ChatMessage, 0, len(s.messages)+1)
	out = append(out, summaryMsg)
	out = append(out, s.messages...)
	return out
}
