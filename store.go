package deskmirror

import "context"

// Store is the persistence façade shared by SyncWorker, Scheduler, and the
// agent tool catalog. Two backends implement it: store/sqlite (local/dev,
// pure Go) and store/postgres (pgvector, production). Upserts are
// idempotent by natural key; setCursor only ever advances, by the caller's
// contract (SyncWorker never calls it with a ts it hasn't strictly
// increased); replaceReactions replaces wholesale, it never merges.
type Store interface {
	// --- Channels ---
	UpsertChannel(ctx context.Context, ch Channel) error
	GetChannel(ctx context.Context, id string) (Channel, error)
	ListChannels(ctx context.Context) ([]Channel, error)
	GetChannelsBatch(ctx context.Context, ids []string) (map[string]Channel, error)

	// --- Users ---
	UpsertUser(ctx context.Context, u User) error
	// GetUser returns the zero User (ID == "") and a nil error when id is
	// unknown — callers use the zero ID, not the error, to detect a miss.
	GetUser(ctx context.Context, id string) (User, error)
	GetUsersBatch(ctx context.Context, ids []string) (map[string]User, error)

	// --- Messages ---
	// UpsertMessage returns the surrogate key for (ChannelID, TS), inserting
	// or last-write-lwin updating mutable fields (Body, Edited, ReplyCount).
	UpsertMessage(ctx context.Context, msg Message) (int64, error)
	GetMessage(ctx context.Context, channelID, ts string) (Message, error)
	GetThreadMessages(ctx context.Context, channelID, parentTS string) ([]Message, error)
	// ReplaceReactions atomically deletes then inserts the given set within
	// a single transaction — set semantics, keeping parity with upstream.
	ReplaceReactions(ctx context.Context, messageKey int64, reactions []Reaction) error
	GetReactions(ctx context.Context, messageKey int64) ([]Reaction, error)

	// --- Sync cursors ---
	GetCursor(ctx context.Context, channelID string) (SyncCursor, bool, error)
	GetCursorsBatch(ctx context.Context, channelIDs []string) (map[string]SyncCursor, error)
	SetCursor(ctx context.Context, channelID, lastTS string) error

	// --- Embeddings + vector search ---
	SetEmbedding(ctx context.Context, e Embedding) error
	// KNN returns the topK nearest messages to queryVec by cosine similarity,
	// sorted by Score descending.
	KNN(ctx context.Context, queryVec []float32, topK int) ([]ScoredMessage, error)

	// --- Agent access-pattern queries (spec.md §4.2) ---
	GetUnreadMentions(ctx context.Context, userID string, since int64) ([]Message, error)
	GetDMs(ctx context.Context, since int64) ([]Message, error)
	GetThreadsWithReplies(ctx context.Context, userID string, since int64) ([]Message, error)
	GetUserReplyStatusBatch(ctx context.Context, userID string, contexts []ThreadReplyStatus) ([]ThreadReplyStatus, error)
	// GetUserReactionsOnItems returns item-key ("channel:ts") → emoji names
	// the user reacted with, restricted to emojiAllowlist when non-empty.
	GetUserReactionsOnItems(ctx context.Context, userID string, itemKeys []string, emojiAllowlist []string) (map[string][]string, error)
	GetRecentMessagesForAnalysis(ctx context.Context, userID string, since int64, limit int, includeOwn bool) ([]AnalyzedMessage, error)
	SearchMessagesText(ctx context.Context, query string, limit int) ([]Message, error)

	// --- Reminders ---
	CreateReminder(ctx context.Context, r Reminder) error
	ListReminders(ctx context.Context, owner string, includeComplete bool) ([]Reminder, error)
	GetReminder(ctx context.Context, id string) (Reminder, error)
	UpdateReminder(ctx context.Context, r Reminder) error
	DeleteReminder(ctx context.Context, id string) error

	// --- Key-value config ---
	GetConfig(ctx context.Context, key string) (string, bool, error)
	SetConfig(ctx context.Context, key, value string) error

	// --- Lifecycle ---
	Init(ctx context.Context) error
	Close() error
}
