// Package workspace defines the upstream messaging-platform API contract
// SyncWorker and the Scheduler drive through deskmirror.RateGate. The
// concrete HTTP binding (httpclient.go) is a thin net/http adapter — the
// real wire surface is a fixed external contract per spec.md §1; what's in
// scope is everything wrapping it.
package workspace

import "context"

// Client is the upstream workspace API, grounded on
// original_source/slack_assistant/slack/poller.py's use of its Slack SDK
// client (conversations_list, conversations_history, conversations_replies,
// users_info, users_list, search_messages, reminders_list, auth_test).
type Client interface {
	AuthTest(ctx context.Context) (selfUserID string, err error)
	ListConversations(ctx context.Context, cursor string) (convs []Conversation, nextCursor string, err error)
	History(ctx context.Context, channelID, oldest, cursor string) (msgs []RawMessage, hasMore bool, nextCursor string, err error)
	Replies(ctx context.Context, channelID, threadTS string) ([]RawMessage, error)
	UserInfo(ctx context.Context, userID string) (RawUser, error)
	UserList(ctx context.Context, cursor string) (users []RawUser, nextCursor string, err error)
	Search(ctx context.Context, query string, limit int) ([]RawMessage, error)
	RemindersList(ctx context.Context) ([]RawReminder, error)
}

// Conversation is one entry from the conversation listing: cheap metadata
// plus the "latest hint" the Scheduler uses to short-circuit empty syncs.
type Conversation struct {
	ID          string
	Kind        string // "channel", "group", "mpim", "im"
	Name        string
	Archived    bool
	User        string // for kind=="im": the peer's user ID
	LatestTS    string
	UnreadCount int
}

// RawMessage is one message as returned by History/Replies/Search, before
// it is adapted into a deskmirror.Message by SyncWorker.
type RawMessage struct {
	TS         string
	User       string
	Text       string
	ThreadTS   string
	ReplyCount int
	Edited     bool
	Reactions  []RawReaction
}

// RawReaction is one emoji's reactor list on a RawMessage.
type RawReaction struct {
	Name  string
	Users []string
}

// RawUser is a workspace member as returned by UserInfo/UserList.
type RawUser struct {
	ID          string
	Name        string
	RealName    string
	DisplayName string
	IsBot       bool
}

// RawReminder is a reminder as returned by RemindersList.
type RawReminder struct {
	ID       string
	Text     string
	Time     int64
	Complete bool
}
