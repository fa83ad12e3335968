package deskmirror

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"
)

// maxIterations bounds the inner tool-calling loop per spec.md §4.5, to
// prevent unbounded tool-recursion.
const maxIterations = 10

// maxParallelToolDispatch caps concurrent tool-call goroutines within a
// single iteration, mirroring the teacher's dispatchParallel pool cap but
// composed here with errgroup per SPEC_FULL.md's domain-stack decision.
const maxParallelToolDispatch = 10

// maxToolResultLen is the rune ceiling for a tool result folded into the
// conversation message history. Oversized results are truncated with a
// marker, matching the teacher's loop.go maxToolResultMessageLen policy.
const maxToolResultLen = 100_000

// AgentResult is the outcome of one call to Agent.Respond: the final reply
// text plus accumulated usage across every LM call in the turn.
type AgentResult struct {
	Reply string
	Usage Usage
}

// Agent conducts a bounded conversation with a language model, executing
// declared tools against the Store and Preferences, and emits a final
// reply — spec.md §4.5. It holds the single in-memory copy of Session and
// PreferenceSet for the lifetime of a conversation (spec.md §5's
// shared-resource policy).
type Agent struct {
	Provider   Provider
	Intent     Provider // optional; see classifyIntent
	Tools      *ToolRegistry
	Summarizer *Summarizer
	Session    *Session
	Prefs      *PreferenceSet
	UserID     string

	tracer Tracer
	logger *slog.Logger
}

// NewAgent wires a conversation turn. logger may be nil (falls back to a
// discard handler); tracer may be nil (span creation is skipped).
func NewAgent(provider Provider, tools *ToolRegistry, summarizer *Summarizer, session *Session, prefs *PreferenceSet, userID string, tracer Tracer, logger *slog.Logger) *Agent {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Agent{
		Provider: provider, Tools: tools, Summarizer: summarizer,
		Session: session, Prefs: prefs, UserID: userID,
		tracer: tracer, logger: logger,
	}
}

// intentChatLabel is the single word the optional classification call
// answers with for a casual-chat turn, so Agent.classifyIntent never has to
// parse free text.
const intentChatLabel = "chat"

// classifyIntent runs a cheap pre-loop classification pass distinguishing a
// casual-chat turn from one that needs tool access, per SPEC_FULL.md's
// intent-routing supplement (grounded in original_source's controller.py
// intent step and the teacher's Network router choosing between
// chatAgent/actionAgent). When a.Intent is nil, every turn is routed to the
// full tool-calling loop — intent routing is a pure optimization, never a
// correctness requirement.
func (a *Agent) classifyIntent(ctx context.Context, userMessage string) (needsTools bool, usage Usage, err error) {
	if a.Intent == nil {
		return true, Usage{}, nil
	}
	prompt := "Classify the user message below as either \"" + intentChatLabel + "\" (casual conversation, " +
		"no need to inspect the workspace, reminders, or preferences) or \"tools\" (anything requiring " +
		"looking something up or taking an action). Respond with exactly one word.\n\nMessage: " + userMessage
	resp, err := a.Intent.Complete(ctx, ChatRequest{Messages: []ChatMessage{UserMessage(prompt)}, MaxTokens: 10})
	if err != nil {
		// Degrade to the full loop rather than fail the turn on a
		// classification error.
		return true, Usage{}, nil
	}
	label := strings.ToLower(strings.TrimSpace(resp.Text))
	return label != intentChatLabel, resp.Usage, nil
}

// Respond runs spec.md §4.5's inner loop for one user message: append the
// turn, build the system prompt, call the LM, dispatch any tool calls in
// parallel, fold results back into the conversation, invoke the progressive
// summarizer, and repeat until the model stops requesting tools or
// maxIterations is reached (at which point a forced synthesis call
// produces the final reply).
func (a *Agent) Respond(ctx context.Context, userMessage string) (AgentResult, error) {
	var total Usage

	ctx, span := a.startSpan(ctx, "agent.respond")
	defer span.End()

	a.Summarizer.AddUserMessage(userMessage)

	needsTools, intentUsage, err := a.classifyIntent(ctx, userMessage)
	total.Add(intentUsage)
	if err != nil {
		return AgentResult{Usage: total}, err
	}

	tools := a.Tools.AllDefinitions()
	if !needsTools {
		tools = nil
	}

	for i := 0; i < maxIterations; i++ {
		iterCtx, iterSpan := a.startSpan(ctx, "agent.respond.iteration", IntAttr("iteration", i), BoolAttr("has_tools", len(tools) > 0))

		resp, err := a.Provider.Complete(iterCtx, ChatRequest{
			Messages: a.Summarizer.BuildMessages(),
			System:   a.systemPrompt(),
			Tools:    tools,
		})
		if err != nil {
			iterSpan.Error(err)
			iterSpan.End()
			return AgentResult{Usage: total}, fmt.Errorf("agent: llm call: %w", err)
		}
		total.Add(resp.Usage)

		a.Summarizer.AddAssistantMessage(resp.Text, resp.ToolCalls)

		if len(resp.ToolCalls) == 0 {
			iterSpan.End()
			return AgentResult{Reply: resp.Text, Usage: total}, nil
		}

		iterSpan.SetAttr(IntAttr("tool_count", len(resp.ToolCalls)))
		a.dispatchToolCalls(iterCtx, resp.ToolCalls)
		iterSpan.End()

		a.Summarizer.MaybeSummarize(ctx)
	}

	a.logger.WarnContext(ctx, "agent: max iterations reached, forcing synthesis", "max_iterations", maxIterations)
	a.Summarizer.AddUserMessage("You have used all available tool calls. Summarize what you found and respond to the user.")
	resp, err := a.Provider.Complete(ctx, ChatRequest{
		Messages: a.Summarizer.BuildMessages(),
		System:   a.systemPrompt(),
	})
	if err != nil {
		return AgentResult{Usage: total}, fmt.Errorf("agent: forced synthesis call: %w", err)
	}
	total.Add(resp.Usage)
	a.Summarizer.AddAssistantMessage(resp.Text, nil)
	return AgentResult{Reply: resp.Text, Usage: total}, nil
}

// toolDispatchOutcome holds one tool call's result and error flag.
// dispatchToolCalls stores it at the call's index in its outcomes slice, so
// results are folded into the summarizer in the model's original order
// even though dispatch runs concurrently.
type toolDispatchOutcome struct {
	result  ToolResult
	isError bool
}

// dispatchToolCalls executes every tool call from one LM turn concurrently,
// bounded by maxParallelToolDispatch, then appends each tool-result turn to
// the summarizer in the original call order — per SPEC_FULL.md's
// errgroup-based replacement for the teacher's hand-rolled worker pool.
func (a *Agent) dispatchToolCalls(ctx context.Context, calls []ToolCall) {
	outcomes := make([]toolDispatchOutcome, len(calls))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelToolDispatch)
	for i, tc := range calls {
		i, tc := i, tc
		g.Go(func() error {
			outcomes[i] = a.dispatchOne(gctx, tc)
			return nil
		})
	}
	_ = g.Wait() // dispatchOne never returns an error; failures are encoded in ToolResult

	for i, tc := range calls {
		o := outcomes[i]
		content := o.result.Content
		isError := o.isError
		if isError {
			content = o.result.Error
		}
		if n := len([]rune(content)); n > maxToolResultLen {
			content = string([]rune(content)[:maxToolResultLen]) + "\n\n[output truncated — original was longer]"
		}
		a.Summarizer.AddToolResult(tc.ID, content, isError)
	}
}

// dispatchOne executes a single tool call, recovering from panics so one
// misbehaving tool cannot bring down the whole turn.
func (a *Agent) dispatchOne(ctx context.Context, tc ToolCall) (outcome toolDispatchOutcome) {
	defer func() {
		if p := recover(); p != nil {
			outcome = toolDispatchOutcome{result: ToolResult{Error: fmt.Sprintf("tool %q panicked: %v", tc.Name, p)}, isError: true}
		}
	}()

	result, err := a.Tools.Execute(ctx, tc.Name, tc.Args)
	if err != nil {
		return toolDispatchOutcome{result: ToolResult{Error: err.Error()}, isError: true}
	}
	if result.Error != "" {
		return toolDispatchOutcome{result: result, isError: true}
	}
	return toolDispatchOutcome{result: result}
}

// systemPrompt composes the system message from role, tool catalog
// narrative, priority rubric, current session context, acknowledgment-
// emoji patterns, user-defined rules, and remembered facts, per spec.md
// §4.5 step 2.
func (a *Agent) systemPrompt() string {
	var b strings.Builder
	b.WriteString("You are a personal assistant mirroring the user's workspace into a local store. ")
	b.WriteString("You help the user triage mentions, DMs, and thread replies, search prior conversation, ")
	b.WriteString("and manage reminders and preferences on their behalf. Use the available tools to look ")
	b.WriteString("things up rather than guessing.\n\n")

	b.WriteString("## Tool catalog\n")
	for _, d := range a.Tools.AllDefinitions() {
		b.WriteString("- ")
		b.WriteString(d.Name)
		b.WriteString(": ")
		b.WriteString(d.Description)
		b.WriteString("\n")
	}

	b.WriteString("\n## Priority rubric\n")
	b.WriteString("Mentions you have not replied to are CRITICAL. DMs from others (and self-DMs) are HIGH. ")
	b.WriteString("New replies in threads you've participated in are MEDIUM. Reacting with an acknowledgment ")
	b.WriteString("emoji demotes an item to LOW. Items already processed this session are hidden unless asked.\n")

	if a.Session != nil {
		b.WriteString("\n## Session context\n")
		if a.Session.CurrentFocus != "" {
			b.WriteString("Current focus: ")
			b.WriteString(a.Session.CurrentFocus)
			b.WriteString("\n")
		}
		if a.Session.ConversationSummary.SummaryText != "" {
			b.WriteString("Prior summary: ")
			b.WriteString(a.Session.ConversationSummary.SummaryText)
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "Items processed so far this session: %d\n", len(a.Session.ProcessedItems))
	}

	if a.Prefs != nil {
		if patterns := a.Prefs.EmojiPatternsText(); patterns != "" {
			b.WriteString("\n## Acknowledgment-emoji patterns\n")
			b.WriteString(patterns)
		}
		if rules := a.Prefs.RulesText(); rules != "" {
			b.WriteString("\n## User-defined rules\n")
			b.WriteString(rules)
		}
		if facts := a.Prefs.FactsText(); facts != "" {
			b.WriteString("\n## Remembered facts\n")
			b.WriteString(facts)
		}
	}

	return b.String()
}

// startSpan starts a span if a.tracer is configured, otherwise returns a
// no-op span so callers never need a nil check.
func (a *Agent) startSpan(ctx context.Context, name string, attrs ...SpanAttr) (context.Context, Span) {
	if a.tracer == nil {
		return ctx, noopSpan{}
	}
	return a.tracer.Start(ctx, name, attrs...)
}
