// Package postgres implements deskmirror.Store using PostgreSQL with
// pgvector for native HNSW vector similarity search — the production
// backend, a sibling of store/sqlite's local/dev implementation.
//
// The Store accepts an externally-owned *pgxpool.Pool via constructor
// injection; the caller creates and closes the pool. Grounded on the
// teacher's store/postgres package: the pgConfig/Option tuning surface,
// vectorType()/hnswWithClause() helpers, and the ON CONFLICT upsert idiom
// are carried over directly; the schema and queries are this repo's own,
// targeting channels/users/messages/reactions/cursors/reminders instead
// of the teacher's document/chunk/thread RAG schema.
package postgres

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	deskmirror "github.com/mjhale/deskmirror"
)

// Store implements deskmirror.Store backed by PostgreSQL with pgvector.
// Vector search uses an HNSW index with cosine distance.
type Store struct {
	pool *pgxpool.Pool
	cfg  pgConfig
}

// pgConfig holds store configuration set via Option functions.
type pgConfig struct {
	embeddingDimension int // 0 = untyped vector
	hnswM              int // 0 = pgvector default (16)
	hnswEFConstruction int // 0 = pgvector default (64)
	hnswEFSearch       int // 0 = pgvector default (40)
}

// Option configures a PostgreSQL Store.
type Option func(*pgConfig)

// WithEmbeddingDimension sets the vector column dimension (e.g. Voyage's
// 1024). When set, CREATE TABLE uses vector(N) instead of untyped vector.
// Only affects new table creation.
func WithEmbeddingDimension(dim int) Option {
	return func(c *pgConfig) { c.embeddingDimension = dim }
}

// WithHNSWM sets the HNSW m parameter (max connections per node). Only
// affects index creation.
func WithHNSWM(m int) Option {
	return func(c *pgConfig) { c.hnswM = m }
}

// WithEFConstruction sets the HNSW ef_construction parameter. Only affects
// index creation.
func WithEFConstruction(ef int) Option {
	return func(c *pgConfig) { c.hnswEFConstruction = ef }
}

// WithEFSearch sets the HNSW ef_search parameter, applied via SET during
// Init().
func WithEFSearch(ef int) Option {
	return func(c *pgConfig) { c.hnswEFSearch = ef }
}

// New creates a Store using an existing pgxpool.Pool. The caller owns the
// pool and is responsible for closing it.
func New(pool *pgxpool.Pool, opts ...Option) *Store {
	var cfg pgConfig
	for _, o := range opts {
		o(&cfg)
	}
	return &Store{pool: pool, cfg: cfg}
}

func (s *Store) vectorType() string {
	if s.cfg.embeddingDimension > 0 {
		return fmt.Sprintf("vector(%d)", s.cfg.embeddingDimension)
	}
	return "vector"
}

func (s *Store) hnswWithClause() string {
	var parts []string
	if s.cfg.hnswM > 0 {
		parts = append(parts, fmt.Sprintf("m = %d", s.cfg.hnswM))
	}
	if s.cfg.hnswEFConstruction > 0 {
		parts = append(parts, fmt.Sprintf("ef_construction = %d", s.cfg.hnswEFConstruction))
	}
	if len(parts) == 0 {
		return ""
	}
	return " WITH (" + strings.Join(parts, ", ") + ")"
}

// Init creates the pgvector extension, all tables, and indexes. Safe to
// call repeatedly.
func (s *Store) Init(ctx context.Context) error {
	vtype := s.vectorType()
	hnswWith := s.hnswWithClause()

	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,

		`CREATE TABLE IF NOT EXISTS channels (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			name TEXT NOT NULL,
			archived BOOLEAN NOT NULL DEFAULT FALSE,
			is_self_dm BOOLEAN NOT NULL DEFAULT FALSE
		)`,

		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			login TEXT NOT NULL DEFAULT '',
			real_name TEXT NOT NULL DEFAULT '',
			display_name TEXT NOT NULL DEFAULT '',
			is_bot BOOLEAN NOT NULL DEFAULT FALSE
		)`,

		`CREATE TABLE IF NOT EXISTS messages (
			msg_key BIGSERIAL PRIMARY KEY,
			channel_id TEXT NOT NULL,
			ts TEXT NOT NULL,
			author_id TEXT NOT NULL DEFAULT '',
			body TEXT NOT NULL DEFAULT '',
			parent_ts TEXT NOT NULL DEFAULT '',
			reply_count INTEGER NOT NULL DEFAULT 0,
			edited BOOLEAN NOT NULL DEFAULT FALSE,
			kind TEXT NOT NULL DEFAULT 'message',
			wall_clock_at BIGINT NOT NULL DEFAULT 0,
			UNIQUE(channel_id, ts)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_channel_wallclock ON messages(channel_id, wall_clock_at)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_wallclock ON messages(wall_clock_at)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_body_trgm ON messages USING gin(to_tsvector('english', body))`,

		`CREATE TABLE IF NOT EXISTS reactions (
			msg_key BIGINT NOT NULL,
			emoji TEXT NOT NULL,
			user_id TEXT NOT NULL,
			PRIMARY KEY (msg_key, emoji, user_id)
		)`,

		`CREATE TABLE IF NOT EXISTS cursors (
			channel_id TEXT PRIMARY KEY,
			last_ts TEXT NOT NULL,
			last_sync_at BIGINT NOT NULL
		)`,

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS embeddings (
			msg_key BIGINT PRIMARY KEY,
			vector %s NOT NULL,
			model TEXT NOT NULL
		)`, vtype),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS embeddings_vector_idx ON embeddings USING hnsw (vector vector_cosine_ops)%s`, hnswWith),

		`CREATE TABLE IF NOT EXISTS reminders (
			id TEXT PRIMARY KEY,
			owner TEXT NOT NULL,
			text TEXT NOT NULL,
			due BIGINT NOT NULL,
			complete_ts BIGINT NOT NULL DEFAULT 0,
			recurring TEXT NOT NULL DEFAULT ''
		)`,

		`CREATE TABLE IF NOT EXISTS config (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
	}

	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres: init: %w", err)
		}
	}

	if s.cfg.hnswEFSearch > 0 {
		if _, err := s.pool.Exec(ctx, fmt.Sprintf("SET hnsw.ef_search = %d", s.cfg.hnswEFSearch)); err != nil {
			return fmt.Errorf("postgres: set ef_search: %w", err)
		}
	}
	return nil
}

// Close is a no-op; the caller owns the pool.
func (s *Store) Close() error { return nil }

// --- Channels ---

func (s *Store) UpsertChannel(ctx context.Context, ch deskmirror.Channel) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO channels (id, kind, name, archived, is_self_dm) VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, archived = EXCLUDED.archived, is_self_dm = EXCLUDED.is_self_dm
	`, ch.ID, string(ch.Kind), ch.Name, ch.Archived, ch.IsSelfDM)
	if err != nil {
		return fmt.Errorf("postgres: upsert channel: %w", err)
	}
	return nil
}

func (s *Store) GetChannel(ctx context.Context, id string) (deskmirror.Channel, error) {
	row := s.pool.QueryRow(ctx, `SELECT id, kind, name, archived, is_self_dm FROM channels WHERE id = $1`, id)
	ch, err := scanChannel(row)
	if err == pgx.ErrNoRows {
		return deskmirror.Channel{}, nil
	}
	return ch, err
}

func (s *Store) ListChannels(ctx context.Context) ([]deskmirror.Channel, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, kind, name, archived, is_self_dm FROM channels`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list channels: %w", err)
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
	rows, err := s.pool.Query(ctx, `SELECT id, kind, name, archived, is_self_dm FROM channels WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("postgres: get channels batch: %w", err)
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

type pgRowScanner interface {
	Scan(dest ...any) error
}

func scanChannel(row pgRowScanner) (deskmirror.Channel, error) {
	var ch deskmirror.Channel
	var kind string
	if err := row.Scan(&ch.ID, &kind, &ch.Name, &ch.Archived, &ch.IsSelfDM); err != nil {
		return deskmirror.Channel{}, err
	}
	ch.Kind = deskmirror.ChannelKind(kind)
	return ch, nil
}

// --- Users ---

func (s *Store) UpsertUser(ctx context.Context, u deskmirror.User) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (id, login, real_name, display_name, is_bot) VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET login = EXCLUDED.login, real_name = EXCLUDED.real_name,
			display_name = EXCLUDED.display_name, is_bot = EXCLUDED.is_bot
	`, u.ID, u.Login, u.RealName, u.DisplayName, u.IsBot)
	if err != nil {
		return fmt.Errorf("postgres: upsert user: %w", err)
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, id string) (deskmirror.User, error) {
	row := s.pool.QueryRow(ctx, `SELECT id, login, real_name, display_name, is_bot FROM users WHERE id = $1`, id)
	u, err := scanUser(row)
	if err == pgx.ErrNoRows {
		return deskmirror.User{}, nil
	}
	return u, err
}

func (s *Store) GetUsersBatch(ctx context.Context, ids []string) (map[string]deskmirror.User, error) {
	out := make(map[string]deskmirror.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := s.pool.Query(ctx, `SELECT id, login, real_name, display_name, is_bot FROM users WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("postgres: get users batch: %w", err)
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

func scanUser(row pgRowScanner) (deskmirror.User, error) {
	var u deskmirror.User
	if err := row.Scan(&u.ID, &u.Login, &u.RealName, &u.DisplayName, &u.IsBot); err != nil {
		return deskmirror.User{}, err
	}
	return u, nil
}

// --- Messages ---

func (s *Store) UpsertMessage(ctx context.Context, msg deskmirror.Message) (int64, error) {
	var key int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO messages (channel_id, ts, author_id, body, parent_ts, reply_count, edited, kind, wall_clock_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (channel_id, ts) DO UPDATE SET
			author_id = EXCLUDED.author_id, body = EXCLUDED.body, reply_count = EXCLUDED.reply_count,
			edited = EXCLUDED.edited, kind = EXCLUDED.kind
		RETURNING msg_key
	`, msg.ChannelID, msg.TS, msg.AuthorID, msg.Body, msg.ParentTS, msg.ReplyCount, msg.Edited, string(msg.Kind), msg.WallClockAt).Scan(&key)
	if err != nil {
		return 0, fmt.Errorf("postgres: upsert message: %w", err)
	}
	return key, nil
}

const messageSelectSQL = `SELECT msg_key, channel_id, ts, author_id, body, parent_ts, reply_count, edited, kind, wall_clock_at FROM messages`

func (s *Store) GetMessage(ctx context.Context, channelID, ts string) (deskmirror.Message, error) {
	row := s.pool.QueryRow(ctx, messageSelectSQL+` WHERE channel_id = $1 AND ts = $2`, channelID, ts)
	msg, err := scanMessage(row)
	if err == pgx.ErrNoRows {
		return deskmirror.Message{}, &deskmirror.ErrNotFound{Kind: "message", ID: channelID + ":" + ts}
	}
	if err != nil {
		return deskmirror.Message{}, fmt.Errorf("postgres: get message: %w", err)
	}
	return msg, nil
}

func (s *Store) GetThreadMessages(ctx context.Context, channelID, parentTS string) ([]deskmirror.Message, error) {
	rows, err := s.pool.Query(ctx, messageSelectSQL+`
		WHERE channel_id = $1 AND (ts = $2 OR parent_ts = $2) ORDER BY ts
	`, channelID, parentTS)
	if err != nil {
		return nil, fmt.Errorf("postgres: get thread messages: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

func scanMessage(row pgRowScanner) (deskmirror.Message, error) {
	var m deskmirror.Message
	var kind string
	if err := row.Scan(&m.Key, &m.ChannelID, &m.TS, &m.AuthorID, &m.Body, &m.ParentTS, &m.ReplyCount, &m.Edited, &kind, &m.WallClockAt); err != nil {
		return deskmirror.Message{}, err
	}
	m.Kind = deskmirror.MessageKind(kind)
	return m, nil
}

func scanMessages(rows pgx.Rows) ([]deskmirror.Message, error) {
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
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `DELETE FROM reactions WHERE msg_key = $1`, messageKey); err != nil {
		return fmt.Errorf("postgres: clear reactions: %w", err)
	}
	for _, r := range reactions {
		if _, err := tx.Exec(ctx, `INSERT INTO reactions (msg_key, emoji, user_id) VALUES ($1, $2, $3)`,
			messageKey, r.Emoji, r.UserID); err != nil {
			return fmt.Errorf("postgres: insert reaction: %w", err)
		}
	}
	return tx.Commit(ctx)
}

func (s *Store) GetReactions(ctx context.Context, messageKey int64) ([]deskmirror.Reaction, error) {
	rows, err := s.pool.Query(ctx, `SELECT msg_key, emoji, user_id FROM reactions WHERE msg_key = $1`, messageKey)
	if err != nil {
		return nil, fmt.Errorf("postgres: get reactions: %w", err)
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
	err := s.pool.QueryRow(ctx, `SELECT channel_id, last_ts, last_sync_at FROM cursors WHERE channel_id = $1`, channelID).
		Scan(&c.ChannelID, &c.LastTS, &c.LastSyncAt)
	if err == pgx.ErrNoRows {
		return deskmirror.SyncCursor{}, false, nil
	}
	if err != nil {
		return deskmirror.SyncCursor{}, false, fmt.Errorf("postgres: get cursor: %w", err)
	}
	return c, true, nil
}

func (s *Store) GetCursorsBatch(ctx context.Context, channelIDs []string) (map[string]deskmirror.SyncCursor, error) {
	out := make(map[string]deskmirror.SyncCursor, len(channelIDs))
	if len(channelIDs) == 0 {
		return out, nil
	}
	rows, err := s.pool.Query(ctx, `SELECT channel_id, last_ts, last_sync_at FROM cursors WHERE channel_id = ANY($1)`, channelIDs)
	if err != nil {
		return nil, fmt.Errorf("postgres: get cursors batch: %w", err)
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
	_, err := s.pool.Exec(ctx, `
		INSERT INTO cursors (channel_id, last_ts, last_sync_at) VALUES ($1, $2, $3)
		ON CONFLICT (channel_id) DO UPDATE SET last_ts = EXCLUDED.last_ts, last_sync_at = EXCLUDED.last_sync_at
	`, channelID, lastTS, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("postgres: set cursor: %w", err)
	}
	return nil
}

// --- Embeddings + vector search ---

func (s *Store) SetEmbedding(ctx context.Context, e deskmirror.Embedding) error {
	vec := serializeEmbedding(e.Vector)
	_, err := s.pool.Exec(ctx, `
		INSERT INTO embeddings (msg_key, vector, model) VALUES ($1, $2::vector, $3)
		ON CONFLICT (msg_key) DO UPDATE SET vector = EXCLUDED.vector, model = EXCLUDED.model
	`, e.MessageKey, vec, e.Model)
	if err != nil {
		return fmt.Errorf("postgres: set embedding: %w", err)
	}
	return nil
}

// KNN performs approximate nearest-neighbor search via pgvector's HNSW
// index, ordering by cosine distance (<=>) and reporting score as
// 1 - distance, matching the teacher's SearchMessages/SearchChunks pattern.
func (s *Store) KNN(ctx context.Context, queryVec []float32, topK int) ([]deskmirror.ScoredMessage, error) {
	vec := serializeEmbedding(queryVec)
	rows, err := s.pool.Query(ctx, `
		SELECT m.msg_key, m.channel_id, m.ts, m.author_id, m.body, m.parent_ts, m.reply_count, m.edited, m.kind, m.wall_clock_at,
			1 - (e.vector <=> $1::vector) AS score
		FROM embeddings e JOIN messages m ON m.msg_key = e.msg_key
		ORDER BY e.vector <=> $1::vector
		LIMIT $2
	`, vec, topK)
	if err != nil {
		return nil, fmt.Errorf("postgres: knn: %w", err)
	}
	defer rows.Close()

	var out []deskmirror.ScoredMessage
	for rows.Next() {
		var m deskmirror.Message
		var kind string
		var score float64
		if err := rows.Scan(&m.Key, &m.ChannelID, &m.TS, &m.AuthorID, &m.Body, &m.ParentTS, &m.ReplyCount, &m.Edited, &kind, &m.WallClockAt, &score); err != nil {
			return nil, fmt.Errorf("postgres: scan knn result: %w", err)
		}
		m.Kind = deskmirror.MessageKind(kind)
		out = append(out, deskmirror.ScoredMessage{Message: m, Score: score})
	}
	return out, rows.Err()
}

// --- Agent access-pattern queries ---

func (s *Store) GetUnreadMentions(ctx context.Context, userID string, since int64) ([]deskmirror.Message, error) {
	rows, err := s.pool.Query(ctx, messageSelectSQL+`
		WHERE wall_clock_at >= $1 AND body LIKE $2 ORDER BY wall_clock_at DESC
	`, since, "%<@"+userID+">%")
	if err != nil {
		return nil, fmt.Errorf("postgres: get unread mentions: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

func (s *Store) GetDMs(ctx context.Context, since int64) ([]deskmirror.Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT m.msg_key, m.channel_id, m.ts, m.author_id, m.body, m.parent_ts, m.reply_count, m.edited, m.kind, m.wall_clock_at
		FROM messages m JOIN channels c ON c.id = m.channel_id
		WHERE c.kind = $1 AND m.wall_clock_at >= $2 ORDER BY m.wall_clock_at DESC
	`, string(deskmirror.ChannelDM), since)
	if err != nil {
		return nil, fmt.Errorf("postgres: get dms: %w", err)
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
	rows, err := s.pool.Query(ctx, `
		WITH user_threads AS (
			SELECT DISTINCT channel_id, CASE WHEN parent_ts != '' THEN parent_ts ELSE ts END AS thread_ts
			FROM messages WHERE author_id = $1
		)
		SELECT m.msg_key, m.channel_id, m.ts, m.author_id, m.body, m.parent_ts, m.reply_count, m.edited, m.kind, m.wall_clock_at
		FROM messages m
		JOIN user_threads ut ON ut.channel_id = m.channel_id AND (m.ts = ut.thread_ts OR m.parent_ts = ut.thread_ts)
		WHERE m.author_id != $1 AND m.wall_clock_at >= $2
		ORDER BY m.wall_clock_at DESC
	`, userID, since)
	if err != nil {
		return nil, fmt.Errorf("postgres: get threads with replies: %w", err)
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
		var exists bool
		err := s.pool.QueryRow(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM messages
				WHERE channel_id = $1 AND author_id = $2 AND parent_ts = $3 AND ts > $4
			)
		`, c.ChannelID, userID, threadKey, c.MentionTS).Scan(&exists)
		if err != nil {
			return nil, fmt.Errorf("postgres: get user reply status: %w", err)
		}
		c.Replied = exists
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
			WHERE m.channel_id = $1 AND m.ts = $2 AND r.user_id = $3
		`
		args := []any{channelID, ts, userID}
		if len(emojiAllowlist) > 0 {
			query += ` AND r.emoji = ANY($4)`
			args = append(args, emojiAllowlist)
		}
		rows, err := s.pool.Query(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("postgres: get user reactions: %w", err)
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
		WHERE m.wall_clock_at >= $1
	`
	args := []any{since}
	if !includeOwn {
		query += ` AND m.author_id != $2`
		args = append(args, userID)
	}
	query += ` ORDER BY m.wall_clock_at DESC`
	if limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d`, len(args)+1)
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: get recent messages for analysis: %w", err)
	}
	defer rows.Close()

	var out []deskmirror.AnalyzedMessage
	needle := "<@" + userID + ">"
	for rows.Next() {
		var m deskmirror.Message
		var kind, chanKind string
		var isSelfDM bool
		if err := rows.Scan(&m.Key, &m.ChannelID, &m.TS, &m.AuthorID, &m.Body, &m.ParentTS, &m.ReplyCount, &m.Edited, &kind, &m.WallClockAt, &chanKind, &isSelfDM); err != nil {
			return nil, err
		}
		m.Kind = deskmirror.MessageKind(kind)

		am := deskmirror.AnalyzedMessage{
			Message:   m,
			IsMention: strings.Contains(m.Body, needle),
			IsDM:      deskmirror.ChannelKind(chanKind) == deskmirror.ChannelDM,
			IsSelfDM:  isSelfDM,
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
	rows, err := s.pool.Query(ctx, messageSelectSQL+`
		WHERE to_tsvector('english', body) @@ plainto_tsquery('english', $1) ORDER BY wall_clock_at DESC LIMIT $2
	`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: search messages text: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

// --- Reminders ---

func (s *Store) CreateReminder(ctx context.Context, r deskmirror.Reminder) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO reminders (id, owner, text, due, complete_ts, recurring) VALUES ($1, $2, $3, $4, $5, $6)
	`, r.ID, r.Owner, r.Text, r.Due, r.CompleteTS, r.Recurring)
	if err != nil {
		return fmt.Errorf("postgres: create reminder: %w", err)
	}
	return nil
}

func (s *Store) ListReminders(ctx context.Context, owner string, includeComplete bool) ([]deskmirror.Reminder, error) {
	query := `SELECT id, owner, text, due, complete_ts, recurring FROM reminders WHERE owner = $1`
	if !includeComplete {
		query += ` AND complete_ts = 0`
	}
	query += ` ORDER BY due ASC`
	rows, err := s.pool.Query(ctx, query, owner)
	if err != nil {
		return nil, fmt.Errorf("postgres: list reminders: %w", err)
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
	err := s.pool.QueryRow(ctx, `SELECT id, owner, text, due, complete_ts, recurring FROM reminders WHERE id = $1`, id).
		Scan(&r.ID, &r.Owner, &r.Text, &r.Due, &r.CompleteTS, &r.Recurring)
	if err == pgx.ErrNoRows {
		return deskmirror.Reminder{}, &deskmirror.ErrNotFound{Kind: "reminder", ID: id}
	}
	if err != nil {
		return deskmirror.Reminder{}, fmt.Errorf("postgres: get reminder: %w", err)
	}
	return r, nil
}

func (s *Store) UpdateReminder(ctx context.Context, r deskmirror.Reminder) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE reminders SET text = $1, due = $2, complete_ts = $3, recurring = $4 WHERE id = $5
	`, r.Text, r.Due, r.CompleteTS, r.Recurring, r.ID)
	if err != nil {
		return fmt.Errorf("postgres: update reminder: %w", err)
	}
	return nil
}

func (s *Store) DeleteReminder(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM reminders WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: delete reminder: %w", err)
	}
	return nil
}

// --- Key-value config ---

func (s *Store) GetConfig(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := s.pool.QueryRow(ctx, `SELECT value FROM config WHERE key = $1`, key).Scan(&v)
	if err == pgx.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("postgres: get config: %w", err)
	}
	return v, true, nil
}

func (s *Store) SetConfig(ctx context.Context, key, value string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO config (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("postgres: set config: %w", err)
	}
	return nil
}

// serializeEmbedding converts []float32 to pgvector's text input format,
// "[0.1,0.2,0.3]" — ported directly from the teacher's store/postgres
// helper.
func serializeEmbedding(embedding []float32) string {
	parts := make([]string, len(embedding))
	for i, v := range embedding {
		parts[i] = strconv.FormatFloat(float64(v), 'f', -1, 32)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

var _ deskmirror.Store = (*Store)(nil)
