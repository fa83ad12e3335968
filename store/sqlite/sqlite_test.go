package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	deskmirror "github.com/mjhale/deskmirror"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "deskmirror.db")
	s := New(dbPath)
	if err := s.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestChannelUpsertAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ch := deskmirror.Channel{ID: "C1", Kind: deskmirror.ChannelPublic, Name: "general"}
	if err := s.UpsertChannel(ctx, ch); err != nil {
		t.Fatalf("UpsertChannel: %v", err)
	}
	got, err := s.GetChannel(ctx, "C1")
	if err != nil {
		t.Fatalf("GetChannel: %v", err)
	}
	if got.Name != "general" || got.Kind != deskmirror.ChannelPublic {
		t.Fatalf("unexpected channel: %+v", got)
	}

	ch.Name = "renamed"
	if err := s.UpsertChannel(ctx, ch); err != nil {
		t.Fatalf("re-upsert: %v", err)
	}
	got, _ = s.GetChannel(ctx, "C1")
	if got.Name != "renamed" {
		t.Fatalf("expected rename to take effect, got %+v", got)
	}
}

func TestGetChannelMissingReturnsZeroValue(t *testing.T) {
	s := newTestStore(t)
	got, err := s.GetChannel(context.Background(), "missing")
	if err != nil {
		t.Fatalf("expected nil error for unknown channel, got %v", err)
	}
	if got.ID != "" {
		t.Fatalf("expected zero-value channel, got %+v", got)
	}
}

func TestMessageUpsertIsIdempotentByNaturalKey(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	msg := deskmirror.Message{ChannelID: "C1", TS: "100.000001", AuthorID: "U1", Body: "hello"}
	key1, err := s.UpsertMessage(ctx, msg)
	if err != nil {
		t.Fatalf("UpsertMessage: %v", err)
	}

	msg.Body = "hello edited"
	msg.Edited = true
	key2, err := s.UpsertMessage(ctx, msg)
	if err != nil {
		t.Fatalf("re-UpsertMessage: %v", err)
	}
	if key1 != key2 {
		t.Fatalf("expected same surrogate key across upserts, got %d and %d", key1, key2)
	}

	got, err := s.GetMessage(ctx, "C1", "100.000001")
	if err != nil {
		t.Fatalf("GetMessage: %v", err)
	}
	if got.Body != "hello edited" || !got.Edited {
		t.Fatalf("expected mutated fields to win, got %+v", got)
	}
}

func TestGetMessageNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetMessage(context.Background(), "C1", "999.0")
	var nf *deskmirror.ErrNotFound
	if err == nil {
		t.Fatal("expected error")
	}
	if !isErrNotFound(err, &nf) {
		t.Fatalf("expected *deskmirror.ErrNotFound, got %T: %v", err, err)
	}
}

func isErrNotFound(err error, target **deskmirror.ErrNotFound) bool {
	nf, ok := err.(*deskmirror.ErrNotFound)
	if ok {
		*target = nf
	}
	return ok
}

func TestReplaceReactionsReplacesWholesale(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	key, _ := s.UpsertMessage(ctx, deskmirror.Message{ChannelID: "C1", TS: "1.0", Body: "hi"})
	if err := s.ReplaceReactions(ctx, key, []deskmirror.Reaction{
		{MessageKey: key, Emoji: "thumbsup", UserID: "U1"},
		{MessageKey: key, Emoji: "eyes", UserID: "U2"},
	}); err != nil {
		t.Fatalf("ReplaceReactions: %v", err)
	}
	if err := s.ReplaceReactions(ctx, key, []deskmirror.Reaction{
		{MessageKey: key, Emoji: "tada", UserID: "U1"},
	}); err != nil {
		t.Fatalf("second ReplaceReactions: %v", err)
	}

	got, err := s.GetReactions(ctx, key)
	if err != nil {
		t.Fatalf("GetReactions: %v", err)
	}
	if len(got) != 1 || got[0].Emoji != "tada" {
		t.Fatalf("expected reaction set replaced wholesale, got %+v", got)
	}
}

func TestCursorMonotonicUsage(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, ok, err := s.GetCursor(ctx, "C1"); err != nil || ok {
		t.Fatalf("expected no cursor yet, got ok=%v err=%v", ok, err)
	}
	if err := s.SetCursor(ctx, "C1", "100.0"); err != nil {
		t.Fatalf("SetCursor: %v", err)
	}
	if err := s.SetCursor(ctx, "C1", "200.0"); err != nil {
		t.Fatalf("SetCursor advance: %v", err)
	}
	c, ok, err := s.GetCursor(ctx, "C1")
	if err != nil || !ok {
		t.Fatalf("GetCursor: ok=%v err=%v", ok, err)
	}
	if c.LastTS != "200.0" {
		t.Fatalf("expected advanced cursor, got %+v", c)
	}
}

func TestKNNRanksByCosineSimilarity(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	k1, _ := s.UpsertMessage(ctx, deskmirror.Message{ChannelID: "C1", TS: "1.0", Body: "aligned"})
	k2, _ := s.UpsertMessage(ctx, deskmirror.Message{ChannelID: "C1", TS: "2.0", Body: "opposite"})

	if err := s.SetEmbedding(ctx, deskmirror.Embedding{MessageKey: k1, Vector: []float32{1, 0}, Model: "m"}); err != nil {
		t.Fatalf("SetEmbedding: %v", err)
	}
	if err := s.SetEmbedding(ctx, deskmirror.Embedding{MessageKey: k2, Vector: []float32{-1, 0}, Model: "m"}); err != nil {
		t.Fatalf("SetEmbedding: %v", err)
	}

	scored, err := s.KNN(ctx, []float32{1, 0}, 2)
	if err != nil {
		t.Fatalf("KNN: %v", err)
	}
	if len(scored) != 2 {
		t.Fatalf("expected 2 results, got %d", len(scored))
	}
	if scored[0].Message.Key != k1 {
		t.Fatalf("expected aligned vector to rank first, got %+v", scored)
	}
	if scored[0].Score <= scored[1].Score {
		t.Fatalf("expected descending scores, got %v then %v", scored[0].Score, scored[1].Score)
	}
}

func TestReminderLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	r := deskmirror.Reminder{ID: "r1", Owner: "U1", Text: "stand up", Due: 100}
	if err := s.CreateReminder(ctx, r); err != nil {
		t.Fatalf("CreateReminder: %v", err)
	}

	pending, err := s.ListReminders(ctx, "U1", false)
	if err != nil || len(pending) != 1 {
		t.Fatalf("ListReminders pending: %v, %+v", err, pending)
	}

	r.CompleteTS = 200
	if err := s.UpdateReminder(ctx, r); err != nil {
		t.Fatalf("UpdateReminder: %v", err)
	}
	pending, _ = s.ListReminders(ctx, "U1", false)
	if len(pending) != 0 {
		t.Fatalf("expected completed reminder excluded, got %+v", pending)
	}
	all, _ := s.ListReminders(ctx, "U1", true)
	if len(all) != 1 {
		t.Fatalf("expected completed reminder included with includeComplete, got %+v", all)
	}

	if err := s.DeleteReminder(ctx, "r1"); err != nil {
		t.Fatalf("DeleteReminder: %v", err)
	}
	if _, err := s.GetReminder(ctx, "r1"); err == nil {
		t.Fatal("expected not-found after delete")
	}
}

func TestConfigRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, ok, err := s.GetConfig(ctx, "missing"); err != nil || ok {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}
	if err := s.SetConfig(ctx, "k", "v1"); err != nil {
		t.Fatalf("SetConfig: %v", err)
	}
	if err := s.SetConfig(ctx, "k", "v2"); err != nil {
		t.Fatalf("SetConfig overwrite: %v", err)
	}
	v, ok, err := s.GetConfig(ctx, "k")
	if err != nil || !ok || v != "v2" {
		t.Fatalf("expected v2, got v=%q ok=%v err=%v", v, ok, err)
	}
}

func TestGetRecentMessagesForAnalysisDerivesPriority(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.UpsertChannel(ctx, deskmirror.Channel{ID: "D1", Kind: deskmirror.ChannelDM})
	s.UpsertMessage(ctx, deskmirror.Message{ChannelID: "D1", TS: "1.0", AuthorID: "U2", Body: "hi", WallClockAt: 10})
	s.UpsertChannel(ctx, deskmirror.Channel{ID: "C1", Kind: deskmirror.ChannelPublic})
	s.UpsertMessage(ctx, deskmirror.Message{ChannelID: "C1", TS: "2.0", AuthorID: "U2", Body: "hey <@U1>", WallClockAt: 10})

	out, err := s.GetRecentMessagesForAnalysis(ctx, "U1", 0, 0, false)
	if err != nil {
		t.Fatalf("GetRecentMessagesForAnalysis: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(out))
	}
	for _, am := range out {
		switch am.Message.ChannelID {
		case "D1":
			if !am.IsDM || am.MetadataPriority != deskmirror.PriorityHigh {
				t.Errorf("expected DM -> HIGH priority, got %+v", am)
			}
		case "C1":
			if !am.IsMention || am.MetadataPriority != deskmirror.PriorityCritical {
				t.Errorf("expected mention -> CRITICAL priority, got %+v", am)
			}
		}
	}
}

func TestSearchMessagesText(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	s.UpsertMessage(ctx, deskmirror.Message{ChannelID: "C1", TS: "1.0", Body: "the deploy failed"})
	s.UpsertMessage(ctx, deskmirror.Message{ChannelID: "C1", TS: "2.0", Body: "lunch plans"})

	got, err := s.SearchMessagesText(ctx, "deploy", 10)
	if err != nil {
		t.Fatalf("SearchMessagesText: %v", err)
	}
	if len(got) != 1 || got[0].Body != "the deploy failed" {
		t.Fatalf("unexpected search results: %+v", got)
	}
}
