// Package sqlite implements deskmirror.Store backed by a local, pure-Go
// SQLite file (modernc.org/sqlite, zero CGO), with in-process brute-force
// cosine similarity over a JSON-encoded embedding column — for local/dev
// use and the CLI driver. Grounded on the teacher's store/sqlite package:
// the single shared connection (SetMaxOpenConns(1), avoiding SQLITE_BUSY
// from concurrent writers), the nopLogger fallback, and the
// serialize/deserialize-embedding-as-JSON-text + brute-force
// cosineSimilarity approach are carried over directly; the schema and
// every query are this repo's own, shaped to deskmirror.Store's contract
// instead of the teacher's document/chunk/thread RAG schema.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	deskmirror "github.com/mjhale/deskmirror"

	_ "modernc.org/sqlite"
)

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithLogger sets a structured logger for the store. When not set, no logs
// are emitted.
func WithLogger(l *slog.Logger) StoreOption {
	return func(s *Store) { s.logger = l }
}

// Store implements deskmirror.Store backed by a local SQLite file.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

var nopLogger = slog.New(slog.DiscardHandler)

// New creates a Store using a local SQLite file at dbPath. It opens a
// single shared connection (SetMaxOpenConns(1)) so all goroutines
// serialize through one connection, matching the teacher's store/sqlite
// rationale for avoiding SQLITE_BUSY under concurrent SyncWorker writers.
func New(dbPath string, opts ...StoreOption) *Store {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		panic(fmt.Sprintf("sqlite: open driver: %v", err))
	}
	db.SetMaxOpenConns(1)
	s := &Store{db: db, logger: nopLogger}
	for _, o := range opts {
		o(s)
	}
	s.logger.Debug("sqlite: store opened", "path", dbPath)
	return s
}

// Init creates all required tables, per spec.md §3's data model.
func (s *Store) Init(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS channels (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			name TEXT NOT NULL,
			archived INTEGER NOT NULL DEFAULT 0,
			is_self_dm INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			login TEXT NOT NULL DEFAULT '',
			real_name TEXT NOT NULL DEFAULT '',
			display_name TEXT NOT NULL DEFAULT '',
			is_bot INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			msg_key INTEGER PRIMARY KEY AUTOINCREMENT,
			channel_id TEXT NOT NULL,
			ts TEXT NOT NULL,
			ts_seconds INTEGER NOT NULL,
			ts_micros INTEGER NOT NULL,
			author_id TEXT NOT NULL DEFAULT '',
			body TEXT NOT NULL DEFAULT '',
			parent_ts TEXT NOT NULL DEFAULT '',
			reply_count INTEGER NOT NULL DEFAULT 0,
			edited INTEGER NOT NULL DEFAULT 0,
			kind TEXT NOT NULL DEFAULT 'message',
			wall_clock_at INTEGER NOT NULL DEFAULT 0,
			UNIQUE(channel_id, ts)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_channel_wallclock ON messages(channel_id, wall_clock_at)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_wallclock ON messages(wall_clock_at)`,
		`CREATE TABLE IF NOT EXISTS reactions (
			msg_key INTEGER NOT NULL,
			emoji TEXT NOT NULL,
			user_id TEXT NOT NULL,
			PRIMARY KEY (msg_key, emoji, user_id)
		)`,
		`CREATE TABLE IF NOT EXISTS cursors (
			channel_id TEXT PRIMARY KEY,
			last_ts TEXT NOT NULL,
			last_sync_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS embeddings (
			msg_key INTEGER PRIMARY KEY,
			vector TEXT NOT NULL,
			model TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS reminders (
			id TEXT PRIMARY KEY,
			owner TEXT NOT NULL,
			text TEXT NOT NULL,
			due INTEGER NOT NULL,
			complete_ts INTEGER NOT NULL DEFAULT 0,
			recurring TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS config (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
	}
	for _, ddl := range stmts {
		if _, err := s.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("sqlite: create table: %w", err)
		}
	}
	return nil
}

// Close releases the underlying connection.
func (s *Store) Close() error { return s.db.Close() }

// --- Channels ---

func (s *Store) UpsertChannel(ctx context.Context, ch deskmirror.Channel) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO channels (id, kind, name, archived, is_self_dm) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, archived = excluded.archived, is_self_dm = excluded.is_self_dm
	`, ch.ID, string(ch.Kind), ch.Name, boolToInt(ch.Archived), boolToInt(ch.IsSelfDM))
	return err
}

func (s *Store) GetChannel(ctx context.Context, id string) (deskmirror.Channel, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, kind, name, archived, is_self_dm FROM channels WHERE id = ?`, id)
	return scanChannel(row)
}

func (s *Store) ListChannels(ctx context.Context) ([]deskmirror.Channel, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, kind, name, archived, is_self_dm FROM channels`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []deskmirror.Channel
	for rows.Next() {
		ch, err := scanChannel(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ch)
	}
	return out, rows.Err()
}

func (s *Store) GetChannelsBatch(ctx context.Context, ids []string) (map[string]deskmirror.Channel, error) {
	out := make(map[string]deskmirror.Channel, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	query, args := inClause(`SELECT id, kind, name, archived, is_self_dm FROM channels WHERE id IN (%s)`, ids)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		ch, err := scanChannel(rows)
		if err != nil {
			return nil, err
		}
		out[ch.ID] = ch
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChannel(row rowScanner) (deskmirror.Channel, error) {
	var ch deskmirror.Channel
	var kind string
	var archived, isSelfDM int
	if err := row.Scan(&ch.ID, &kind, &ch.Name, &archived, &isSelfDM); err != nil {
		if err == sql.ErrNoRows {
			return deskmirror.Channel{}, nil
		}
		return deskmirror.Channel{}, err
	}
	ch.Kind = deskmirror.ChannelKind(kind)
	ch.Archived = archived != 0
	ch.IsSelfDM = isSelfDM != 0
	return ch, nil
}

// --- Users ---

func (s *Store) UpsertUser(ctx context.Context, u deskmirror.User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, login, real_name, display_name, is_bot) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET login = excluded.login, real_name = excluded.real_name,
			display_name = excluded.display_name, is_bot = excluded.is_bot
	`, u.ID, u.Login, u.RealName, u.DisplayName, boolToInt(u.IsBot))
	return err
}

func (s *Store) GetUser(ctx context.Context, id string) (deskmirror.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, login, real_name, display_name, is_bot FROM users WHERE id = ?`, id)
	return scanUser(row)
}

func (s *Store) GetUsersBatch(ctx context.Context, ids []string) (map[string]deskmirror.User, error) {
	out := make(map[string]deskmirror.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	query, args := inClause(`SELECT id, login, real_name, display_name, is_bot FROM users WHERE id IN (%s)`, ids)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out[u.ID] = u
	}
	return out, rows.Err()
}

func scanUser(row rowScanner) (deskmirror.User, error) {
	var u deskmirror.User
	var isBot int
	if err := row.Scan(&u.ID, &u.Login, &u.RealName, &u.DisplayName, &isBot); err != nil {
		if err == sql.ErrNoRows {
			return deskmirror.User{}, nil
		}
		return deskmirror.User{}, err
	}
	u.IsBot = isBot != 0
	return u, nil
}

// --- Messages ---

func (s *Store) UpsertMessage(ctx context.Context, msg deskmirror.Message) (int64, error) {
	seconds, micros := splitTS(msg.TS)
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (channel_id, ts, ts_seconds, ts_micros, author_id, body, parent_ts, reply_count, edited, kind, wall_clock_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(channel_id, ts) DO UPDATE SET
			author_id = excluded.author_id, body = excluded.body, reply_count = excluded.reply_count,
			edited = excluded.edited, kind = excluded.kind
	`, msg.ChannelID, msg.TS, seconds, micros, msg.AuthorID, msg.Body, msg.ParentTS, msg.ReplyCount,
		boolToInt(msg.Edited), string(msg.Kind), msg.WallClockAt)
	if err != nil {
		return 0, err
	}
	if id, err := res.LastInsertId(); err == nil && id != 0 {
		return id, nil
	}
	// Conflict path: LastInsertId is 0 on an UPDATE-only statement in some
	// SQLite driver versions; look the key up directly.
	var key int64
	err = s.db.QueryRowContext(ctx, `SELECT msg_key FROM messages WHERE channel_id = ? AND ts = ?`, msg.ChannelID, msg.TS).Scan(&key)
	return key, err
}

func (s *Store) GetMessage(ctx context.Context, channelID, ts string) (deskmirror.Message, error) {
	row := s.db.QueryRowContext(ctx, messageSelectSQL+` WHERE channel_id = ? AND ts = ?`, channelID, ts)
	msg, err := scanMessage(row)
	if err == sql.ErrNoRows {
		return deskmirror.Message{}, &deskmirror.ErrNotFound{Kind: "message", ID: channelID + ":" + ts}
	}
	return msg, err
}

func (s *Store) GetThreadMessages(ctx context.Context, channelID, parentTS string) ([]deskmirror.Message, error) {
	rows, err := s.db.QueryContext(ctx, messageSelectSQL+`
		WHERE channel_id = ? AND (ts = ? OR parent_ts = ?) ORDER BY ts_seconds, ts_micros
	`, channelID, parentTS, parentTS)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessages(rows)
}

const messageSelectSQL = `SELECT msg_key, channel_id, ts, author_id, body, parent_ts, reply_count, edited, kind, wall_clock_at FROM messages`

func scanMessage(row rowScanner) (deskmirror.Message, error) {
	var m deskmirror.Message
	var edited int
	var kind string
	if err := row.Scan(&m.Key, &m.ChannelID, &m.TS, &m.AuthorID, &m.Body, &m.ParentTS, &m.ReplyCount, &edited, &kind, &m.WallClockAt); err != nil {
		return deskmirror.Message{}, err
	}
	m.Edited = edited != 0
	m.Kind = deskmirror.MessageKind(kind)
	return m, nil
}

func scanMessages(rows *sql.Rows) ([]deskmirror.Message, error) {
	var out []deskmirror.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) ReplaceReactions(ctx context.Context, messageKey int64, reactions []deskmirror.Reaction) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM reactions WHERE msg_key = ?`, messageKey); err != nil {
		return err
	}
	for _, r := range reactions {
		if _, err := tx.ExecContext(ctx, `INSERT INTO reactions (msg_key, emoji, user_id) VALUES (?, ?, ?)`,
			messageKey, r.Emoji, r.UserID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) GetReactions(ctx context.Context, messageKey int64) ([]deskmirror.Reaction, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT msg_key, emoji, user_id FROM reactions WHERE msg_key = ?`, messageKey)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []deskmirror.Reaction
	for rows.Next() {
		var r deskmirror.Reaction
		if err := rows.Scan(&r.MessageKey, &r.Emoji, &r.UserID); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// --- Sync cursors ---

func (s *Store) GetCursor(ctx context.Context, channelID string) (deskmirror.SyncCursor, bool, error) {
	var c deskmirror.SyncCursor
	err := s.db.QueryRowContext(ctx, `SELECT channel_id, last_ts, last_sync_at FROM cursors WHERE channel_id = ?`, channelID).
		Scan(&c.ChannelID, &c.LastTS, &c.LastSyncAt)
	if err == sql.ErrNoRows {
		return deskmirror.SyncCursor{}, false, nil
	}
	return c, err == nil, err
}

func (s *Store) GetCursorsBatch(ctx context.Context, channelIDs []string) (map[string]deskmirror.SyncCursor, error) {
	out := make(map[string]deskmirror.SyncCursor, len(channelIDs))
	if len(channelIDs) == 0 {
		return out, nil
	}
	query, args := inClause(`SELECT channel_id, last_ts, last_sync_at FROM cursors WHERE channel_id IN (%s)`, channelIDs)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var c deskmirror.SyncCursor
		if err := rows.Scan(&c.ChannelID, &c.LastTS, &c.LastSyncAt); err != nil {
			return nil, err
		}
		out[c.ChannelID] = c
	}
	return out, rows.Err()
}

func (s *Store) SetCursor(ctx context.Context, channelID, lastTS string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cursors (channel_id, last_ts, last_sync_at) VALUES (?, ?, ?)
		ON CONFLICT(channel_id) DO UPDATE SET last_ts = excluded.last_ts, last_sync_at = excluded.last_sync_at
	`, channelID, lastTS, time.Now().Unix())
	return err
}

// --- Embeddings + vector search ---

func (s *Store) SetEmbedding(ctx context.Context, e deskmirror.Embedding) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO embeddings (msg_key, vector, model) VALUES (?, ?, ?)
		ON CONFLICT(msg_key) DO UPDATE SET vector = excluded.vector, model = excluded.model
	`, e.MessageKey, serializeEmbedding(e.Vector), e.Model)
	return err
}

// KNN loads every stored embedding and computes brute-force cosine
// similarity, matching the teacher's SearchMessages/SearchChunks approach —
// adequate at this repo's expected scale (a single user's workspace
// mirror), unlike store/postgres's pgvector HNSW index.
func (s *Store) KNN(ctx context.Context, queryVec []float32, topK int) ([]deskmirror.ScoredMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.msg_key, m.channel_id, m.ts, m.author_id, m.body, m.parent_ts, m.reply_count, m.edited, m.kind, m.wall_clock_at, e.vector
		FROM embeddings e JOIN messages m ON m.msg_key = e.msg_key
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var scored []deskmirror.ScoredMessage
	for rows.Next() {
		var m deskmirror.Message
		var edited int
		var kind, vecJSON string
		if err := rows.Scan(&m.Key, &m.ChannelID, &m.TS, &m.AuthorID, &m.Body, &m.ParentTS, &m.ReplyCount, &edited, &kind, &m.WallClockAt, &vecJSON); err != nil {
			return nil, err
		}
		m.Edited = edited != 0
		m.Kind = deskmirror.MessageKind(kind)
		vec, err := deserializeEmbedding(vecJSON)
		if err != nil {
			continue
		}
		scored = append(scored, deskmirror.ScoredMessage{Message: m, Score: float64(cosineSimilarity(queryVec, vec))})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if topK > 0 && len(scored) > topK {
		scored = scored[:topK]
	}
	return scored, nil
}

// --- Agent access-pattern queries ---

func (s *Store) GetUnreadMentions(ctx context.Context, userID string, since int64) ([]deskmirror.Message, error) {
	rows, err := s.db.QueryContext(ctx, messageSelectSQL+`
		WHERE wall_clock_at >= ? AND body LIKE ? ORDER BY ts_seconds DESC, ts_micros DESC
	`, since, "%<@"+userID+">%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessages(rows)
}

func (s *Store) GetDMs(ctx context.Context, since int64) ([]deskmirror.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.msg_key, m.channel_id, m.ts, m.author_id, m.body, m.parent_ts, m.reply_count, m.edited, m.kind, m.wall_clock_at
		FROM messages m JOIN channels c ON c.id = m.channel_id
		WHERE c.kind = ? AND m.wall_clock_at >= ? ORDER BY m.ts_seconds DESC, m.ts_micros DESC
	`, string(deskmirror.ChannelDM), since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessages(rows)
}

// GetThreadsWithReplies implements spec.md §4.6 step 3's two-step
// participation filter, matching original_source's get_threads_with_replies
// (repository.py): first the set of (channel_id, effective_thread_ts) the
// user has posted into, then other users' messages within those same
// threads. Without the first step this would return every reply from
// anyone in any thread, regardless of whether the user ever participated.
func (s *Store) GetThreadsWithReplies(ctx context.Context, userID string, since int64) ([]deskmirror.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		WITH user_threads AS (
			SELECT DISTINCT channel_id, CASE WHEN parent_ts != '' THEN parent_ts ELSE ts END AS thread_ts
			FROM messages WHERE author_id = ?
		)
		SELECT m.msg_key, m.channel_id, m.ts, m.author_id, m.body, m.parent_ts, m.reply_count, m.edited, m.kind, m.wall_clock_at
		FROM messages m
		JOIN user_threads ut ON ut.channel_id = m.channel_id AND (m.ts = ut.thread_ts OR m.parent_ts = ut.thread_ts)
		WHERE m.author_id != ? AND m.wall_clock_at >= ?
		ORDER BY m.ts_seconds DESC, m.ts_micros DESC
	`, userID, userID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessages(rows)
}

func (s *Store) GetUserReplyStatusBatch(ctx context.Context, userID string, contexts []deskmirror.ThreadReplyStatus) ([]deskmirror.ThreadReplyStatus, error) {
	out := make([]deskmirror.ThreadReplyStatus, len(contexts))
	for i, c := range contexts {
		threadKey := c.ParentTS
		if threadKey == "" {
			threadKey = c.MentionTS
		}
		var exists int
		err := s.db.QueryRowContext(ctx, `
			SELECT 1 FROM messages WHERE channel_id = ? AND author_id = ? AND parent_ts = ? AND (ts_seconds, ts_micros) > (
				SELECT ts_seconds, ts_micros FROM messages WHERE channel_id = ? AND ts = ?
			) LIMIT 1
		`, c.ChannelID, userID, threadKey, c.ChannelID, c.MentionTS).Scan(&exists)
		if err != nil && err != sql.ErrNoRows {
			return nil, err
		}
		c.Replied = exists == 1
		out[i] = c
	}
	return out, nil
}

func (s *Store) GetUserReactionsOnItems(ctx context.Context, userID string, itemKeys []string, emojiAllowlist []string) (map[string][]string, error) {
	out := make(map[string][]string)
	for _, key := range itemKeys {
		channelID, ts, ok := splitItemKey(key)
		if !ok {
			continue
		}
		query := `
			SELECT r.emoji FROM reactions r
			JOIN messages m ON m.msg_key = r.msg_key
			WHERE m.channel_id = ? AND m.ts = ? AND r.user_id = ?
		`
		args := []any{channelID, ts, userID}
		if len(emojiAllowlist) > 0 {
			placeholders := make([]string, len(emojiAllowlist))
			for i, e := range emojiAllowlist {
				placeholders[i] = "?"
				args = append(args, e)
			}
			query += ` AND r.emoji IN (` + strings.Join(placeholders, ",") + `)`
		}
		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, err
		}
		var emojis []string
		for rows.Next() {
			var e string
			if err := rows.Scan(&e); err != nil {
				rows.Close()
				return nil, err
			}
			emojis = append(emojis, e)
		}
		rows.Close()
		if len(emojis) > 0 {
			out[key] = emojis
		}
	}
	return out, nil
}

func splitItemKey(key string) (channelID, ts string, ok bool) {
	i := strings.LastIndex(key, ":")
	if i < 0 {
		return "", "", false
	}
	return key[:i], key[i+1:], true
}

func (s *Store) GetRecentMessagesForAnalysis(ctx context.Context, userID string, since int64, limit int, includeOwn bool) ([]deskmirror.AnalyzedMessage, error) {
	query := `
		SELECT m.msg_key, m.channel_id, m.ts, m.author_id, m.body, m.parent_ts, m.reply_count, m.edited, m.kind, m.wall_clock_at,
			c.kind, c.is_self_dm
		FROM messages m JOIN channels c ON c.id = m.channel_id
		WHERE m.wall_clock_at >= ?
	`
	args := []any{since}
	if !includeOwn {
		query += ` AND m.author_id != ?`
		args = append(args, userID)
	}
	query += ` ORDER BY m.ts_seconds DESC, m.ts_micros DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []deskmirror.AnalyzedMessage
	needle := "<@" + userID + ">"
	for rows.Next() {
		var m deskmirror.Message
		var edited int
		var kind, chanKind string
		var isSelfDM int
		if err := rows.Scan(&m.Key, &m.ChannelID, &m.TS, &m.AuthorID, &m.Body, &m.ParentTS, &m.ReplyCount, &edited, &kind, &m.WallClockAt, &chanKind, &isSelfDM); err != nil {
			return nil, err
		}
		m.Edited = edited != 0
		m.Kind = deskmirror.MessageKind(kind)

		am := deskmirror.AnalyzedMessage{
			Message:  m,
			IsMention: strings.Contains(m.Body, needle),
			IsDM:      deskmirror.ChannelKind(chanKind) == deskmirror.ChannelDM,
			IsSelfDM:  isSelfDM != 0,
		}
		switch {
		case am.IsMention:
			am.MetadataPriority = deskmirror.PriorityCritical
		case am.IsDM:
			am.MetadataPriority = deskmirror.PriorityHigh
		case m.ParentTS != "":
			am.MetadataPriority = deskmirror.PriorityMedium
		default:
			am.MetadataPriority = deskmirror.PriorityLow
		}
		out = append(out, am)
	}
	return out, rows.Err()
}

func (s *Store) SearchMessagesText(ctx context.Context, query string, limit int) ([]deskmirror.Message, error) {
	sqlQuery := messageSelectSQL + ` WHERE body LIKE ? ORDER BY ts_seconds DESC, ts_micros DESC`
	args := []any{"%" + query + "%"}
	if limit > 0 {
		sqlQuery += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessages(rows)
}

// --- Reminders ---

func (s *Store) CreateReminder(ctx context.Context, r deskmirror.Reminder) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reminders (id, owner, text, due, complete_ts, recurring) VALUES (?, ?, ?, ?, ?, ?)
	`, r.ID, r.Owner, r.Text, r.Due, r.CompleteTS, r.Recurring)
	return err
}

func (s *Store) ListReminders(ctx context.Context, owner string, includeComplete bool) ([]deskmirror.Reminder, error) {
	query := `SELECT id, owner, text, due, complete_ts, recurring FROM reminders WHERE owner = ?`
	args := []any{owner}
	if !includeComplete {
		query += ` AND complete_ts = 0`
	}
	query += ` ORDER BY due ASC`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []deskmirror.Reminder
	for rows.Next() {
		var r deskmirror.Reminder
		if err := rows.Scan(&r.ID, &r.Owner, &r.Text, &r.Due, &r.CompleteTS, &r.Recurring); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) GetReminder(ctx context.Context, id string) (deskmirror.Reminder, error) {
	var r deskmirror.Reminder
	err := s.db.QueryRowContext(ctx, `SELECT id, owner, text, due, complete_ts, recurring FROM reminders WHERE id = ?`, id).
		Scan(&r.ID, &r.Owner, &r.Text, &r.Due, &r.CompleteTS, &r.Recurring)
	if err == sql.ErrNoRows {
		return deskmirror.Reminder{}, &deskmirror.ErrNotFound{Kind: "reminder", ID: id}
	}
	return r, err
}

func (s *Store) UpdateReminder(ctx context.Context, r deskmirror.Reminder) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE reminders SET text = ?, due = ?, complete_ts = ?, recurring = ? WHERE id = ?
	`, r.Text, r.Due, r.CompleteTS, r.Recurring, r.ID)
	return err
}

func (s *Store) DeleteReminder(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM reminders WHERE id = ?`, id)
	return err
}

// --- Key-value config ---

func (s *Store) GetConfig(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM config WHERE key = ?`, key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	return v, err == nil, err
}

func (s *Store) SetConfig(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

// --- helpers ---

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func inClause(queryFmt string, ids []string) (string, []any) {
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	return fmt.Sprintf(queryFmt, strings.Join(placeholders, ",")), args
}

// splitTS parses a "seconds.microseconds" ts string into its two numeric
// halves, matching deskmirror.CompareTS's comparison rule (spec.md §3) so
// ORDER BY ts_seconds, ts_micros sorts identically to CompareTS.
func splitTS(ts string) (seconds, micros int64) {
	for i := 0; i < len(ts); i++ {
		if ts[i] == '.' {
			var s, u int64
			fmt.Sscanf(ts[:i], "%d", &s)
			fmt.Sscanf(ts[i+1:], "%d", &u)
			return s, u
		}
	}
	var s int64
	fmt.Sscanf(ts, "%d", &s)
	return s, 0
}

// serializeEmbedding converts []float32 to a JSON array string, matching
// the teacher's store/sqlite serialization choice for an untyped vector
// column.
func serializeEmbedding(v []float32) string {
	data, _ := json.Marshal(v)
	return string(data)
}

func deserializeEmbedding(s string) ([]float32, error) {
	var v []float32
	err := json.Unmarshal([]byte(s), &v)
	return v, err
}

// cosineSimilarity computes cosine similarity between two vectors, ported
// directly from the teacher's store/sqlite helper.
func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom == 0 {
		return 0
	}
	return float32(dot / denom)
}

var _ deskmirror.Store = (*Store)(nil)
