package deskmirror

import "encoding/json"

// ChannelKind classifies a Channel. Immutable once observed.
type ChannelKind string

const (
	ChannelPublic  ChannelKind = "public"
	ChannelPrivate ChannelKind = "private"
	ChannelGroupDM ChannelKind = "group-dm"
	ChannelDM      ChannelKind = "dm"
)

// Channel is a conversation container in the mirrored workspace.
type Channel struct {
	ID          string
	Kind        ChannelKind
	Name        string
	Archived    bool
	IsSelfDM    bool
	UnreadCount int // latest hint from the upstream conversation listing; not persisted across ticks
	LatestHint  string
}

// User is a workspace member.
type User struct {
	ID          string
	Login       string
	RealName    string
	DisplayName string
	IsBot       bool
}

// ResolveName returns display name, falling back to real name, login, then ID.
func (u User) ResolveName() string {
	switch {
	case u.DisplayName != "":
		return u.DisplayName
	case u.RealName != "":
		return u.RealName
	case u.Login != "":
		return u.Login
	default:
		return u.ID
	}
}

// MessageKind distinguishes ordinary messages from system/join/leave events.
type MessageKind string

const (
	MessageNormal MessageKind = "message"
	MessageSystem MessageKind = "system"
)

// Message is one row per (ChannelID, TS).
type Message struct {
	Key         int64 // surrogate key, assigned by the store on upsert
	ChannelID   string
	TS          string // "seconds.microseconds", compared as a numeric tuple — see CompareTS
	AuthorID    string // empty if the author is unknown/deleted upstream
	Body        string
	ParentTS    string // empty if not a reply
	ReplyCount  int
	Edited      bool
	Kind        MessageKind
	WallClockAt int64 // unix seconds the message was ingested
}

// Reaction is an emoji reacted by a user on a message. Set-semantics per
// message: a refresh replaces the full set, it never merges.
type Reaction struct {
	MessageKey int64
	Emoji      string
	UserID     string
}

// SyncCursor is the per-channel watermark advanced by SyncWorker.
type SyncCursor struct {
	ChannelID  string
	LastTS     string // "0" sentinel before any successful sync
	LastSyncAt int64
}

// Embedding is a 1:1 vector attached to a message, replaced wholesale on
// model change.
type Embedding struct {
	MessageKey int64
	Vector     []float32
	Model      string
}

// Reminder is a user-owned scheduled note.
type Reminder struct {
	ID         string
	Owner      string
	Text       string
	Due        int64
	CompleteTS int64  // 0 means pending
	Recurring  string // schedule expression understood by internal/reminder.ComputeNextRun, or "" for one-shot
}

// Pending reports whether the reminder has not yet been completed.
func (r Reminder) Pending() bool { return r.CompleteTS == 0 }

// UserRule is a free-text instruction the agent should honor.
type UserRule struct {
	ID   string
	Text string
}

// UserFact is a remembered fact about the user or their workspace.
type UserFact struct {
	ID   string
	Text string
}

// EmojiPattern maps a normalized emoji name to a meaning and priority
// effect. Names are always stored normalized — see NormalizeEmojiName.
type EmojiPattern struct {
	Emoji          string
	Meaning        string
	MarksAsHandled bool
	PriorityAdjust int // clamped to [-2, +2]
}

// PreferenceSet is the process-wide, persisted set of user customizations.
type PreferenceSet struct {
	Rules         []UserRule
	Facts         []UserFact
	EmojiPatterns []EmojiPattern
}

// RulesText renders rules as a bullet list for the system prompt.
func (p PreferenceSet) RulesText() string { return bulletList(ruleTexts(p.Rules)) }

// FactsText renders facts as a bullet list for the system prompt.
func (p PreferenceSet) FactsText() string { return bulletList(factTexts(p.Facts)) }

// EmojiPatternsText renders acknowledgment-emoji patterns as a bullet list
// for the system prompt.
func (p PreferenceSet) EmojiPatternsText() string {
	texts := make([]string, len(p.EmojiPatterns))
	for i, e := range p.EmojiPatterns {
		texts[i] = ":" + e.Emoji + ": — " + e.Meaning
		if e.MarksAsHandled {
			texts[i] += " (marks as handled)"
		}
	}
	return bulletList(texts)
}

func ruleTexts(rules []UserRule) []string {
	out := make([]string, len(rules))
	for i, r := range rules {
		out[i] = r.Text
	}
	return out
}

func factTexts(facts []UserFact) []string {
	out := make([]string, len(facts))
	for i, f := range facts {
		out[i] = f.Text
	}
	return out
}

func bulletList(items []string) string {
	if len(items) == 0 {
		return ""
	}
	s := ""
	for _, it := range items {
		s += "- " + it + "\n"
	}
	return s
}

// Priority is the urgency bucket assigned to an item surfaced by get_status.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityMedium
	PriorityHigh
	PriorityCritical
)

func (p Priority) String() string {
	switch p {
	case PriorityCritical:
		return "CRITICAL"
	case PriorityHigh:
		return "HIGH"
	case PriorityMedium:
		return "MEDIUM"
	default:
		return "LOW"
	}
}

// ItemDisposition records what the user did about a ProcessedItem.
type ItemDisposition string

const (
	DispositionReviewed ItemDisposition = "reviewed"
	DispositionDeferred ItemDisposition = "deferred"
	DispositionActedOn  ItemDisposition = "acted-on"
)

// ProcessedItem marks a (channel, ts) pair as handled within a Session.
type ProcessedItem struct {
	ChannelID   string
	MessageTS   string
	ThreadTS    string
	Disposition ItemDisposition
	Notes       string
	ProcessedAt int64
}

// Key identifies the item for idempotent-add semantics.
func (p ProcessedItem) Key() string { return p.ChannelID + ":" + p.MessageTS }

// AnalyzedItem is the agent's recorded judgment about a message.
type AnalyzedItem struct {
	ChannelID    string
	MessageTS    string
	ThreadTS     string
	Priority     Priority
	Summary      string
	ActionNeeded string
	ContextNotes string
	AnalyzedAt   int64
}

// Key identifies the item for upsert-by-key semantics.
func (a AnalyzedItem) Key() string { return a.ChannelID + ":" + a.MessageTS }

// ConversationSummary is the agent's rolling session-level recollection.
type ConversationSummary struct {
	SummaryText     string
	KeyTopics       []string
	PendingFollowUp []string
}

// Session is the agent's single current working context, archived when stale.
type Session struct {
	ID                  string
	StartedAt           int64
	LastActivityAt      int64
	ProcessedItems      map[string]ProcessedItem
	AnalyzedItems       map[string]AnalyzedItem
	ConversationSummary ConversationSummary
	CurrentFocus        string
}

// staleSessionAge is the threshold past which a Session is archived on next start.
const staleSessionAge = 4 * 60 * 60 // 4h in seconds

// Stale reports whether the session has aged past staleSessionAge.
func (s Session) Stale(nowUnix int64) bool {
	return nowUnix-s.LastActivityAt > staleSessionAge
}

// Touch refreshes LastActivityAt.
func (s *Session) Touch(nowUnix int64) { s.LastActivityAt = nowUnix }

// AddProcessed idempotently records disposition of an item by key.
func (s *Session) AddProcessed(item ProcessedItem) {
	if s.ProcessedItems == nil {
		s.ProcessedItems = make(map[string]ProcessedItem)
	}
	s.ProcessedItems[item.Key()] = item
}

// AddAnalyzed upserts the analyzed judgment for an item by key.
func (s *Session) AddAnalyzed(item AnalyzedItem) {
	if s.AnalyzedItems == nil {
		s.AnalyzedItems = make(map[string]AnalyzedItem)
	}
	s.AnalyzedItems[item.Key()] = item
}

// --- LLM conversation protocol types ---

// Role identifies the speaker of a ChatMessage.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// BlockKind tags a ContentBlock's variant, matching spec.md §9's
// "runtime-typed conversation content" tagged union.
type BlockKind string

const (
	BlockText       BlockKind = "text"
	BlockToolUse    BlockKind = "tool_use"
	BlockToolResult BlockKind = "tool_result"
)

// ContentBlock is one element of a ChatMessage's content: Text(string) |
// ToolUse(id, name, input) | ToolResult(id, content, is_error).
type ContentBlock struct {
	Kind      BlockKind
	Text      string
	ToolUseID string
	ToolName  string
	ToolInput json.RawMessage
	IsError   bool
}

// ChatMessage is one turn in the conversation. An assistant turn owns an
// ordered sequence of blocks; a user turn is either a single text block or
// a single tool_result block — never both.
type ChatMessage struct {
	Role    Role
	Content []ContentBlock
}

// IsNewTurn reports whether this message opens a new user-initiated turn —
// true for a pure-text user message, false for a message carrying a
// tool_result block. See spec.md §4.5 and the GLOSSARY's "Turn" entry.
func (m ChatMessage) IsNewTurn() bool {
	if m.Role != RoleUser {
		return false
	}
	for _, b := range m.Content {
		if b.Kind == BlockToolResult {
			return false
		}
	}
	return true
}

// UserMessage builds a plain-text user turn.
func UserMessage(text string) ChatMessage {
	return ChatMessage{Role: RoleUser, Content: []ContentBlock{{Kind: BlockText, Text: text}}}
}

// ToolResultMessage builds a user-role turn carrying a single tool result.
func ToolResultMessage(toolUseID, content string, isError bool) ChatMessage {
	return ChatMessage{Role: RoleUser, Content: []ContentBlock{{
		Kind: BlockToolResult, ToolUseID: toolUseID, Text: content, IsError: isError,
	}}}
}

// AssistantMessage builds an assistant turn from text and tool calls.
// Blocks with empty text are dropped; an assistant turn with zero blocks
// must not be sent to the provider (providers reject empty assistant
// messages) — callers check len(Content) before appending.
func AssistantMessage(text string, calls []ToolCall) ChatMessage {
	var blocks []ContentBlock
	if text != "" {
		blocks = append(blocks, ContentBlock{Kind: BlockText, Text: text})
	}
	for _, c := range calls {
		blocks = append(blocks, ContentBlock{Kind: BlockToolUse, ToolUseID: c.ID, ToolName: c.Name, ToolInput: c.Args})
	}
	return ChatMessage{Role: RoleAssistant, Content: blocks}
}

// ToolCall is a single structured tool invocation requested by the model.
type ToolCall struct {
	ID   string
	Name string
	Args json.RawMessage
}

// ToolDefinition describes a tool to the language model.
type ToolDefinition struct {
	Name        string
	Description string
	InputSchema json.RawMessage
}

// Usage accumulates token counts across one or more LM calls.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Add accumulates u2 into u.
func (u *Usage) Add(u2 Usage) {
	u.InputTokens += u2.InputTokens
	u.OutputTokens += u2.OutputTokens
}

// StopReason is why the model stopped generating.
type StopReason string

const (
	StopEndTurn   StopReason = "end_turn"
	StopToolUse   StopReason = "tool_use"
	StopMaxTokens StopReason = "max_tokens"
)

// ChatRequest is one call to the language-model host:
// complete(messages, system, tools, max_tokens).
type ChatRequest struct {
	Messages  []ChatMessage
	System    string
	Tools     []ToolDefinition
	MaxTokens int
}

// ChatResponse is the language-model host's reply.
type ChatResponse struct {
	Text       string
	ToolCalls  []ToolCall
	StopReason StopReason
	Usage      Usage
}

// ScoredMessage pairs a Message with a similarity score from a vector search.
type ScoredMessage struct {
	Message Message
	Score   float64
}

// AnalyzedMessage is a Message annotated with the derived priority hints
// described in spec.md §4.2's getRecentMessagesForAnalysis.
type AnalyzedMessage struct {
	Message          Message
	IsMention        bool
	IsDM             bool
	IsSelfDM         bool
	MetadataPriority Priority
}

// ThreadReplyStatus answers getUserReplyStatusBatch: whether userID has
// posted in the given thread context after MentionTS.
type ThreadReplyStatus struct {
	ChannelID string
	ParentTS  string // empty means the mention itself has no parent (top-level)
	MentionTS string
	Replied   bool
}
