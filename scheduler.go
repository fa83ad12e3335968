package deskmirror

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mjhale/deskmirror/internal/workspace"
)

// defaultTick is the Scheduler's poll interval, per spec.md §4.3.
const defaultTick = 60 * time.Second

// defaultMaxConcurrentSyncs bounds how many channels SyncWorker drains at
// once, grounded in poller.py's _sync_all_messages(max_concurrent=10).
const defaultMaxConcurrentSyncs = 10

// Scheduler is the top-level driver: it refreshes channel metadata every
// tick, persists channel changes every 10th tick, and fans SyncWorker out
// over channels whose latest-hint outruns their cursor. Grounded in
// original_source/slack_assistant/slack/poller.py's SlackPoller, restructured
// along spec.md §4.3's decision rule and priority table (the Go shape keeps
// the teacher's ticker-loop idiom from scheduler.go, generalized beyond
// reminder execution to channel sync).
type Scheduler struct {
	client     workspace.Client
	gate       *RateGate
	store      Store
	worker     *SyncWorker
	selfUserID string

	tick          time.Duration
	maxConcurrent int

	logger *slog.Logger
	tracer Tracer

	onTick         func()
	onSweepError   func()
	onSweepElapsed func(time.Duration)

	channels  map[string]workspace.Conversation
	pollCount int
}

// SchedulerOption configures optional Scheduler instrumentation.
type SchedulerOption func(*Scheduler)

// WithSchedulerMetrics wires tick/error/duration callbacks, invoked once per
// sweep. cmd/syncd uses this to feed Instruments.SyncTicks/SyncErrors/
// SyncDuration without Scheduler importing OTEL directly.
func WithSchedulerMetrics(onTick func(), onSweepError func(), onSweepElapsed func(time.Duration)) SchedulerOption {
	return func(s *Scheduler) {
		s.onTick = onTick
		s.onSweepError = onSweepError
		s.onSweepElapsed = onSweepElapsed
	}
}

// NewScheduler builds a Scheduler with spec.md defaults (tick=60s,
// max_concurrent=10). Pass 0 for tick or maxConcurrent to use the default.
func NewScheduler(client workspace.Client, gate *RateGate, store Store, worker *SyncWorker, tick time.Duration, maxConcurrent int, logger *slog.Logger, tracer Tracer, opts ...SchedulerOption) *Scheduler {
	if tick <= 0 {
		tick = defaultTick
	}
	if maxConcurrent <= 0 {
		maxConcurrent = defaultMaxConcurrentSyncs
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Scheduler{
		client: client, gate: gate, store: store, worker: worker,
		tick: tick, maxConcurrent: maxConcurrent,
		logger: logger, tracer: tracer,
		channels: make(map[string]workspace.Conversation),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run authenticates, performs an initial refresh+persist+sweep, then loops
// on the tick interval until ctx is cancelled. Blocks until ctx.Done().
func (s *Scheduler) Run(ctx context.Context) error {
	selfUserID, err := Execute(ctx, s.gate, "auth.test", s.client.AuthTest)
	if err != nil {
		return &ErrAuth{Detail: err.Error()}
	}
	s.selfUserID = selfUserID
	s.logger.InfoContext(ctx, "scheduler started", "tick", s.tick, "self_user_id", selfUserID)

	if err := s.refreshChannelMetadata(ctx); err != nil {
		return err
	}
	if err := s.persistChannels(ctx); err != nil {
		return err
	}
	if err := s.sweep(ctx); err != nil {
		s.logger.ErrorContext(ctx, "initial sweep failed", "error", err)
	}

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "scheduler stopped")
			return nil
		case <-ticker.C:
			s.pollCount++
			if s.onTick != nil {
				s.onTick()
			}
			start := time.Now()
			if err := s.refreshChannelMetadata(ctx); err != nil {
				s.logger.ErrorContext(ctx, "refresh channel metadata failed", "error", err)
				if s.onSweepError != nil {
					s.onSweepError()
				}
				continue
			}
			if s.pollCount%10 == 0 {
				if err := s.persistChannels(ctx); err != nil {
					s.logger.ErrorContext(ctx, "persist channels failed", "error", err)
				}
			}
			if err := s.sweep(ctx); err != nil {
				s.logger.ErrorContext(ctx, "sweep failed", "error", err)
				if s.onSweepError != nil {
					s.onSweepError()
				}
			}
			if s.onSweepElapsed != nil {
				s.onSweepElapsed(time.Since(start))
			}
		}
	}
}

// refreshChannelMetadata re-fetches the conversation listing — cheap, and
// the source of the "latest hint" the sweep decision rule depends on.
func (s *Scheduler) refreshChannelMetadata(ctx context.Context) error {
	ctx, span := s.startSpan(ctx, "scheduler.refresh_metadata")
	defer span.End()

	fresh := make(map[string]workspace.Conversation)
	cursor := ""
	for {
		convs, next, err := executePair(ctx, s.gate, "conversations.list", func(ctx context.Context) ([]workspace.Conversation, string, error) {
			return s.client.ListConversations(ctx, cursor)
		})
		if err != nil {
			span.Error(err)
			return &ErrTransport{Method: "conversations.list", Err: err}
		}
		for _, c := range convs {
			fresh[c.ID] = c
		}
		if next == "" {
			break
		}
		cursor = next
	}
	s.channels = fresh
	span.SetAttr(IntAttr("channel_count", len(fresh)))
	return nil
}

// Execute can't infer multi-return closures directly; this small wrapper
// adapts a (T1, T2, error) shaped call onto RateGate.Execute's single-value
// contract.
func executePair[T1, T2 any](ctx context.Context, g *RateGate, method string, fn func(context.Context) (T1, T2, error)) (T1, T2, error) {
	type pair struct {
		a T1
		b T2
	}
	p, err := Execute(ctx, g, method, func(ctx context.Context) (pair, error) {
		a, b, err := fn(ctx)
		return pair{a, b}, err
	})
	return p.a, p.b, err
}

// persistChannels upserts every cached conversation as a Channel row,
// detecting self-DMs per spec.md's "Self-DM" glossary entry: an im-kind
// conversation whose peer user equals the authenticated self user.
func (s *Scheduler) persistChannels(ctx context.Context) error {
	ctx, span := s.startSpan(ctx, "scheduler.persist_channels")
	defer span.End()

	for id, conv := range s.channels {
		ch := Channel{
			ID:          id,
			Kind:        channelKindOf(conv),
			Name:        conv.Name,
			Archived:    conv.Archived,
			IsSelfDM:    conv.Kind == "im" && conv.User == s.selfUserID,
			UnreadCount: conv.UnreadCount,
			LatestHint:  conv.LatestTS,
		}
		if err := s.store.UpsertChannel(ctx, ch); err != nil {
			span.Error(err)
			return err
		}
	}
	span.SetAttr(IntAttr("channel_count", len(s.channels)))
	return nil
}

func channelKindOf(conv workspace.Conversation) ChannelKind {
	switch conv.Kind {
	case "im":
		return ChannelDM
	case "mpim", "group":
		return ChannelGroupDM
	case "private":
		return ChannelPrivate
	default:
		return ChannelPublic
	}
}

// syncCandidate pairs a channel with its sync priority, per spec.md §4.3's
// priority table.
type syncCandidate struct {
	channel  Channel
	priority int
}

// sweep decides which channels need syncing and fans SyncWorker out over
// them, bounded by maxConcurrent. Grounded in poller.py's
// _get_channels_needing_sync + _sync_all_messages.
func (s *Scheduler) sweep(ctx context.Context) error {
	ctx, span := s.startSpan(ctx, "scheduler.sweep")
	defer span.End()

	channels, err := s.store.ListChannels(ctx)
	if err != nil {
		return err
	}
	if len(channels) == 0 {
		return nil
	}

	ids := make([]string, len(channels))
	for i, c := range channels {
		ids[i] = c.ID
	}
	cursors, err := s.store.GetCursorsBatch(ctx, ids)
	if err != nil {
		return err
	}

	var candidates []syncCandidate
	for _, ch := range channels {
		cursor, ok := cursors[ch.ID]
		conv := s.channels[ch.ID]
		if !needsSync(cursor, ok, conv.LatestTS) {
			continue
		}
		candidates = append(candidates, syncCandidate{channel: ch, priority: channelPriority(ch, conv)})
	}
	if len(candidates) == 0 {
		s.logger.DebugContext(ctx, "no channels need syncing")
		return nil
	}
	sortCandidates(candidates)
	span.SetAttr(IntAttr("candidate_count", len(candidates)))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.maxConcurrent)
	for _, cand := range candidates {
		cand := cand
		g.Go(func() error {
			if err := s.worker.SyncChannel(gctx, cand.channel); err != nil {
				s.logger.ErrorContext(gctx, "channel sync failed", "channel_id", cand.channel.ID, "error", err)
			}
			return nil
		})
	}
	return g.Wait()
}

// needsSync implements spec.md §4.3's decision rule exactly: absent cursor,
// null cursor.last_ts, an unknown latest hint with the "0" sentinel not yet
// set, or a latest hint strictly ahead of the cursor.
func needsSync(cursor SyncCursor, cursorOK bool, latestHint string) bool {
	if !cursorOK || cursor.LastTS == "" {
		return true
	}
	if latestHint == "" {
		return cursor.LastTS != "0"
	}
	return TSGreater(latestHint, cursor.LastTS)
}

// channelPriority implements spec.md §4.3's priority table: self-dm=0,
// dm=1, group-dm=2, unread>0=3, other=10.
func channelPriority(ch Channel, conv workspace.Conversation) int {
	switch {
	case ch.IsSelfDM:
		return 0
	case ch.Kind == ChannelDM:
		return 1
	case ch.Kind == ChannelGroupDM:
		return 2
	case conv.UnreadCount > 0:
		return 3
	default:
		return 10
	}
}

func sortCandidates(c []syncCandidate) {
	// insertion sort: candidate lists are small (one workspace's channel
	// count), and stability matters for channels tied on priority.
	for i := 1; i < len(c); i++ {
		for j := i; j > 0 && c[j].priority < c[j-1].priority; j-- {
			c[j], c[j-1] = c[j-1], c[j]
		}
	}
}

func (s *Scheduler) startSpan(ctx context.Context, name string) (context.Context, Span) {
	if s.tracer == nil {
		return ctx, noopSpan{}
	}
	return s.tracer.Start(ctx, name)
}

type noopSpan struct{}

func (noopSpan) SetAttr(...SpanAttr)     {}
func (noopSpan) Event(string, ...SpanAttr) {}
func (noopSpan) Error(error)             {}
func (noopSpan) End()                    {}
