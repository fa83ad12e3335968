package deskmirror

import (
	"context"
	"log/slog"
	"sync"

	"github.com/mjhale/deskmirror/internal/workspace"
)

// SyncWorker fetches one channel's delta, upserts messages and reactions,
// drills into threads with new replies, and advances the channel's cursor
// atomically to the maximum ts observed. Grounded in
// original_source/slack_assistant/slack/poller.py's _sync_channel_messages
// and _sync_thread_replies.
type SyncWorker struct {
	client workspace.Client
	gate   *RateGate
	store  Store
	logger *slog.Logger
	tracer Tracer

	userCacheMu sync.Mutex
	userCache   map[string]bool
}

// NewSyncWorker constructs a SyncWorker.
func NewSyncWorker(client workspace.Client, gate *RateGate, store Store, logger *slog.Logger, tracer Tracer) *SyncWorker {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &SyncWorker{client: client, gate: gate, store: store, logger: logger, tracer: tracer, userCache: make(map[string]bool)}
}

// SyncChannel fetches every message newer than the channel's cursor, oldest
// first, upserting each with its reactions and drilling into threads with
// new replies. Per spec.md §4.4: on failure mid-sweep, the channel's cursor
// is not advanced — whatever was already upserted stays upserted (upsert is
// idempotent), but the next tick re-fetches from the old cursor.
func (w *SyncWorker) SyncChannel(ctx context.Context, ch Channel) error {
	ctx, span := w.startSpan(ctx, "syncworker.sync_channel", StringAttr("channel_id", ch.ID))
	defer span.End()

	cursor, ok, err := w.store.GetCursor(ctx, ch.ID)
	if err != nil {
		span.Error(err)
		return err
	}
	oldest := ""
	if ok {
		oldest = cursor.LastTS
	}

	var all []workspace.RawMessage
	pageCursor := ""
	for {
		page, hasMore, next, err := executeQuad(ctx, w.gate, "channel.history", func(ctx context.Context) ([]workspace.RawMessage, bool, string, error) {
			return w.client.History(ctx, ch.ID, oldest, pageCursor)
		})
		if err != nil {
			span.Error(err)
			return &ErrTransport{Method: "channel.history", Err: err}
		}
		all = append(all, page...)
		if !hasMore || next == "" {
			break
		}
		pageCursor = next
	}

	if len(all) == 0 {
		w.logger.DebugContext(ctx, "no new messages", "channel_id", ch.ID)
		return nil
	}

	// The workspace API returns newest-first; process oldest-first so
	// partial failure still leaves the cursor consistent with what was
	// actually persisted.
	reverseMessages(all)

	maxTS := oldest
	newCount := 0
	for _, raw := range all {
		if oldest != "" && !TSGreater(raw.TS, oldest) {
			continue
		}
		msg := rawToMessage(ch.ID, raw)
		key, err := w.store.UpsertMessage(ctx, msg)
		if err != nil {
			return err
		}
		if len(raw.Reactions) > 0 {
			if err := w.store.ReplaceReactions(ctx, key, reactionsFromRaw(key, raw.Reactions)); err != nil {
				return err
			}
		}
		if raw.ReplyCount > 0 {
			if err := w.syncThreadReplies(ctx, ch.ID, raw.TS); err != nil {
				w.logger.ErrorContext(ctx, "thread sync failed", "channel_id", ch.ID, "thread_ts", raw.TS, "error", err)
			}
		}
		if raw.User != "" {
			if err := w.ensureUserCached(ctx, raw.User); err != nil {
				w.logger.ErrorContext(ctx, "user cache failed", "user_id", raw.User, "error", err)
			}
		}
		newCount++
		if TSGreater(raw.TS, maxTS) {
			maxTS = raw.TS
		}
	}

	if newCount > 0 {
		w.logger.InfoContext(ctx, "synced messages", "channel_id", ch.ID, "count", newCount)
	}
	if maxTS != "" && maxTS != oldest {
		if err := w.store.SetCursor(ctx, ch.ID, maxTS); err != nil {
			return err
		}
	}
	span.SetAttr(IntAttr("new_messages", newCount))
	return nil
}

// syncThreadReplies fetches and upserts every reply in a thread, including
// the parent — conversations.replies returns the parent with its current
// reaction set, which is the only reliable way to pick up reactions added
// to a thread parent after its initial sync.
func (w *SyncWorker) syncThreadReplies(ctx context.Context, channelID, threadTS string) error {
	replies, err := Execute(ctx, w.gate, "thread.replies", func(ctx context.Context) ([]workspace.RawMessage, error) {
		return w.client.Replies(ctx, channelID, threadTS)
	})
	if err != nil {
		return &ErrTransport{Method: "thread.replies", Err: err}
	}
	for _, raw := range replies {
		msg := rawToMessage(channelID, raw)
		key, err := w.store.UpsertMessage(ctx, msg)
		if err != nil {
			return err
		}
		if len(raw.Reactions) > 0 {
			if err := w.store.ReplaceReactions(ctx, key, reactionsFromRaw(key, raw.Reactions)); err != nil {
				return err
			}
		}
		if raw.User != "" {
			if err := w.ensureUserCached(ctx, raw.User); err != nil {
				w.logger.ErrorContext(ctx, "user cache failed", "user_id", raw.User, "error", err)
			}
		}
	}
	return nil
}

// ensureUserCached fetches and upserts a user the first time it's seen;
// an in-memory set avoids a redundant Store.GetUser round trip on every hit.
func (w *SyncWorker) ensureUserCached(ctx context.Context, userID string) error {
	w.userCacheMu.Lock()
	cached := w.userCache[userID]
	w.userCacheMu.Unlock()
	if cached {
		return nil
	}

	if existing, err := w.store.GetUser(ctx, userID); err == nil && existing.ID != "" {
		w.userCacheMu.Lock()
		w.userCache[userID] = true
		w.userCacheMu.Unlock()
		return nil
	}

	raw, err := Execute(ctx, w.gate, "user.info", func(ctx context.Context) (workspace.RawUser, error) {
		return w.client.UserInfo(ctx, userID)
	})
	if err != nil {
		return &ErrTransport{Method: "user.info", Err: err}
	}
	if err := w.store.UpsertUser(ctx, User{
		ID: raw.ID, Login: raw.Name, RealName: raw.RealName, DisplayName: raw.DisplayName, IsBot: raw.IsBot,
	}); err != nil {
		return err
	}
	w.userCacheMu.Lock()
	w.userCache[userID] = true
	w.userCacheMu.Unlock()
	return nil
}

func rawToMessage(channelID string, raw workspace.RawMessage) Message {
	kind := MessageNormal
	if raw.User == "" {
		kind = MessageSystem
	}
	return Message{
		ChannelID:   channelID,
		TS:          raw.TS,
		AuthorID:    raw.User,
		Body:        raw.Text,
		ParentTS:    parentTSOf(raw),
		ReplyCount:  raw.ReplyCount,
		Edited:      raw.Edited,
		Kind:        kind,
		WallClockAt: NowUnix(),
	}
}

// parentTSOf treats a thread_ts equal to the message's own ts as "not a
// reply" — the workspace API sets thread_ts on the parent itself too.
func parentTSOf(raw workspace.RawMessage) string {
	if raw.ThreadTS == "" || raw.ThreadTS == raw.TS {
		return ""
	}
	return raw.ThreadTS
}

func reactionsFromRaw(key int64, raw []workspace.RawReaction) []Reaction {
	var out []Reaction
	for _, r := range raw {
		for _, u := range r.Users {
			out = append(out, Reaction{MessageKey: key, Emoji: r.Name, UserID: u})
		}
	}
	return out
}

func reverseMessages(msgs []workspace.RawMessage) {
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
}

func (w *SyncWorker) startSpan(ctx context.Context, name string, attrs ...SpanAttr) (context.Context, Span) {
	if w.tracer == nil {
		return ctx, noopSpan{}
	}
	return w.tracer.Start(ctx, name, attrs...)
}

// executeQuad adapts a 4-return-value upstream call onto RateGate.Execute's
// (T, error) contract, mirroring executePair in scheduler.go.
func executeQuad[T1, T2, T3 any](ctx context.Context, g *RateGate, method string, fn func(context.Context) (T1, T2, T3, error)) (T1, T2, T3, error) {
	type triple struct {
		a T1
		b T2
		c T3
	}
	t, err := Execute(ctx, g, method, func(ctx context.Context) (triple, error) {
		a, b, c, err := fn(ctx)
		return triple{a, b, c}, err
	})
	return t.a, t.b, t.c, err
}
