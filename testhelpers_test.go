package deskmirror

import (
	"context"
)

// fakeStore is an in-memory Store good enough to drive priority.go, the
// tool catalog, and the agent loop in tests without a real backend.
type fakeStore struct {
	channels  map[string]Channel
	users     map[string]User
	messages  []Message
	reactions map[int64][]Reaction
	cursors   map[string]SyncCursor
	reminders map[string]Reminder
	config    map[string]string
	nextKey   int64

	replyStatus map[string]bool   // "channel:parentTS:mentionTS" -> replied
	reactionsOn map[string][]string // "channel:ts" -> emoji names
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		channels:    make(map[string]Channel),
		users:       make(map[string]User),
		reactions:   make(map[int64][]Reaction),
		cursors:     make(map[string]SyncCursor),
		reminders:   make(map[string]Reminder),
		config:      make(map[string]string),
		replyStatus: make(map[string]bool),
		reactionsOn: make(map[string][]string),
	}
}

func (s *fakeStore) UpsertChannel(_ context.Context, ch Channel) error {
	s.channels[ch.ID] = ch
	return nil
}
func (s *fakeStore) GetChannel(_ context.Context, id string) (Channel, error) { return s.channels[id], nil }
func (s *fakeStore) ListChannels(_ context.Context) ([]Channel, error) {
	out := make([]Channel, 0, len(s.channels))
	for _, c := range s.channels {
		out = append(out, c)
	}
	return out, nil
}
func (s *fakeStore) GetChannelsBatch(_ context.Context, ids []string) (map[string]Channel, error) {
	out := make(map[string]Channel)
	for _, id := range ids {
		if c, ok := s.channels[id]; ok {
			out[id] = c
		}
	}
	return out, nil
}

func (s *fakeStore) UpsertUser(_ context.Context, u User) error { s.users[u.ID] = u; return nil }
func (s *fakeStore) GetUser(_ context.Context, id string) (User, error) { return s.users[id], nil }
func (s *fakeStore) GetUsersBatch(_ context.Context, ids []string) (map[string]User, error) {
	out := make(map[string]User)
	for _, id := range ids {
		if u, ok := s.users[id]; ok {
			out[id] = u
		}
	}
	return out, nil
}

func (s *fakeStore) UpsertMessage(_ context.Context, msg Message) (int64, error) {
	for i, m := range s.messages {
		if m.ChannelID == msg.ChannelID && m.TS == msg.TS {
			msg.Key = m.Key
			s.messages[i] = msg
			return msg.Key, nil
		}
	}
	s.nextKey++
	msg.Key = s.nextKey
	s.messages = append(s.messages, msg)
	return msg.Key, nil
}
func (s *fakeStore) GetMessage(_ context.Context, channelID, ts string) (Message, error) {
	for _, m := range s.messages {
		if m.ChannelID == channelID && m.TS == ts {
			return m, nil
		}
	}
	return Message{}, &ErrNotFound{Kind: "message", ID: channelID + ":" + ts}
}
func (s *fakeStore) GetThreadMessages(_ context.Context, channelID, parentTS string) ([]Message, error) {
	var out []Message
	for _, m := range s.messages {
		if m.ChannelID == channelID && (m.TS == parentTS || m.ParentTS == parentTS) {
			out = append(out, m)
		}
	}
	return out, nil
}
func (s *fakeStore) ReplaceReactions(_ context.Context, key int64, reactions []Reaction) error {
	s.reactions[key] = reactions
	return nil
}
func (s *fakeStore) GetReactions(_ context.Context, key int64) ([]Reaction, error) { return s.reactions[key], nil }

func (s *fakeStore) GetCursor(_ context.Context, channelID string) (SyncCursor, bool, error) {
	c, ok := s.cursors[channelID]
	return c, ok, nil
}
func (s *fakeStore) GetCursorsBatch(_ context.Context, ids []string) (map[string]SyncCursor, error) {
	out := make(map[string]SyncCursor)
	for _, id := range ids {
		if c, ok := s.cursors[id]; ok {
			out[id] = c
		}
	}
	return out, nil
}
func (s *fakeStore) SetCursor(_ context.Context, channelID, lastTS string) error {
	s.cursors[channelID] = SyncCursor{ChannelID: channelID, LastTS: lastTS, LastSyncAt: NowUnix()}
	return nil
}

func (s *fakeStore) SetEmbedding(_ context.Context, _ Embedding) error { return nil }
func (s *fakeStore) KNN(_ context.Context, _ []float32, _ int) ([]ScoredMessage, error) { return nil, nil }

func (s *fakeStore) GetUnreadMentions(_ context.Context, userID string, since int64) ([]Message, error) {
	var out []Message
	needle := "<@" + userID + ">"
	for _, m := range s.messages {
		if m.WallClockAt >= since && contains(m.Body, needle) {
			out = append(out, m)
		}
	}
	return out, nil
}
func (s *fakeStore) GetDMs(_ context.Context, since int64) ([]Message, error) {
	var out []Message
	for _, m := range s.messages {
		if ch, ok := s.channels[m.ChannelID]; ok && ch.Kind == ChannelDM && m.WallClockAt >= since {
			out = append(out, m)
		}
	}
	return out, nil
}
func (s *fakeStore) GetThreadsWithReplies(_ context.Context, userID string, since int64) ([]Message, error) {
	type threadKey struct {
		channelID, threadTS string
	}
	userThreads := make(map[threadKey]bool)
	for _, m := range s.messages {
		if m.AuthorID != userID {
			continue
		}
		userThreads[threadKey{m.ChannelID, effectiveParentTS(m)}] = true
	}
	var out []Message
	for _, m := range s.messages {
		if m.AuthorID == userID || m.WallClockAt < since {
			continue
		}
		if userThreads[threadKey{m.ChannelID, m.TS}] || userThreads[threadKey{m.ChannelID, m.ParentTS}] {
			out = append(out, m)
		}
	}
	return out, nil
}
func (s *fakeStore) GetUserReplyStatusBatch(_ context.Context, userID string, contexts []ThreadReplyStatus) ([]ThreadReplyStatus, error) {
	out := make([]ThreadReplyStatus, len(contexts))
	for i, c := range contexts {
		key := c.ChannelID + ":" + c.ParentTS + ":" + c.MentionTS
		c.Replied = s.replyStatus[key]
		out[i] = c
	}
	return out, nil
}
func (s *fakeStore) GetUserReactionsOnItems(_ context.Context, _ string, itemKeys []string, allowlist []string) (map[string][]string, error) {
	allowed := make(map[string]bool, len(allowlist))
	for _, e := range allowlist {
		allowed[e] = true
	}
	out := make(map[string][]string)
	for _, k := range itemKeys {
		for _, e := range s.reactionsOn[k] {
			if allowed[e] {
				out[k] = append(out[k], e)
			}
		}
	}
	return out, nil
}
func (s *fakeStore) GetRecentMessagesForAnalysis(_ context.Context, userID string, since int64, limit int, includeOwn bool) ([]AnalyzedMessage, error) {
	var out []AnalyzedMessage
	for _, m := range s.messages {
		if m.WallClockAt < since {
			continue
		}
		if m.AuthorID == userID && !includeOwn {
			continue
		}
		out = append(out, AnalyzedMessage{Message: m})
		if len(out) >= limit && limit > 0 {
			break
		}
	}
	return out, nil
}
func (s *fakeStore) SearchMessagesText(_ context.Context, query string, limit int) ([]Message, error) {
	var out []Message
	for _, m := range s.messages {
		if contains(m.Body, query) {
			out = append(out, m)
			if len(out) >= limit && limit > 0 {
				break
			}
		}
	}
	return out, nil
}

func (s *fakeStore) CreateReminder(_ context.Context, r Reminder) error { s.reminders[r.ID] = r; return nil }
func (s *fakeStore) ListReminders(_ context.Context, owner string, includeComplete bool) ([]Reminder, error) {
	var out []Reminder
	for _, r := range s.reminders {
		if r.Owner == owner && (includeComplete || r.Pending()) {
			out = append(out, r)
		}
	}
	return out, nil
}
func (s *fakeStore) GetReminder(_ context.Context, id string) (Reminder, error) { return s.reminders[id], nil }
func (s *fakeStore) UpdateReminder(_ context.Context, r Reminder) error        { s.reminders[r.ID] = r; return nil }
func (s *fakeStore) DeleteReminder(_ context.Context, id string) error         { delete(s.reminders, id); return nil }

func (s *fakeStore) GetConfig(_ context.Context, key string) (string, bool, error) {
	v, ok := s.config[key]
	return v, ok, nil
}
func (s *fakeStore) SetConfig(_ context.Context, key, value string) error { s.config[key] = value; return nil }

func (s *fakeStore) Init(_ context.Context) error { return nil }
func (s *fakeStore) Close() error                 { return nil }

func contains(haystack, needle string) bool {
	return len(needle) == 0 || (len(haystack) >= len(needle) && stringsIndex(haystack, needle) >= 0)
}

func stringsIndex(s, substr string) int {
	n, m := len(s), len(substr)
	if m == 0 {
		return 0
	}
	for i := 0; i+m <= n; i++ {
		if s[i:i+m] == substr {
			return i
		}
	}
	return -1
}

var _ Store = (*fakeStore)(nil)

// fakeEmbeddingProvider returns a fixed-dimension vector derived from input
// length, good enough to exercise the tool catalog's embedding call sites
// without a real model host.
type fakeEmbeddingProvider struct {
	dims int
}

func (p *fakeEmbeddingProvider) Name() string { return "fake-embeddings" }
func (p *fakeEmbeddingProvider) Dimensions() int {
	if p.dims <= 0 {
		return 8
	}
	return p.dims
}
func (p *fakeEmbeddingProvider) Embed(_ context.Context, texts []string) ([][]float32, error) {
	dims := p.Dimensions()
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec := make([]float32, dims)
		for j := range vec {
			vec[j] = float32(len(t)+j) / 100
		}
		out[i] = vec
	}
	return out, nil
}

var _ EmbeddingProvider = (*fakeEmbeddingProvider)(nil)

// fakeProvider is a scripted Provider for agent loop tests.
type fakeProvider struct {
	responses []ChatResponse
	calls     int
	onComplete func(ChatRequest)
}

func (p *fakeProvider) Name() string { return "fake" }
func (p *fakeProvider) Complete(_ context.Context, req ChatRequest) (ChatResponse, error) {
	if p.onComplete != nil {
		p.onComplete(req)
	}
	if p.calls >= len(p.responses) {
		return p.responses[len(p.responses)-1], nil
	}
	r := p.responses[p.calls]
	p.calls++
	return r, nil
}
