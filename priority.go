package deskmirror

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// StatusItem is one prioritized item returned by GetStatus, grounded in
// original_source/slack_assistant/services/status.py's Status dataclass.
type StatusItem struct {
	ChannelID string
	MessageTS string
	ThreadTS  string // effective parent ts: the message's own ts for top-level items
	Priority  Priority
	Reason    string
	Message   Message
}

func (s StatusItem) key() string { return s.ChannelID + ":" + s.MessageTS }

// rank orders priorities for sorting: CRITICAL first, LOW last. Lower rank
// sorts first, matching spec.md §4.6's "(priority_numeric asc, ts desc)".
func rank(p Priority) int {
	switch p {
	case PriorityCritical:
		return 0
	case PriorityHigh:
		return 1
	case PriorityMedium:
		return 2
	default:
		return 3
	}
}

// GetStatus implements spec.md §4.6's priority composition for the
// get_status tool: mentions, DMs, thread replies, acknowledgment overlay,
// session overlay, sorted by (priority asc, ts desc).
func GetStatus(ctx context.Context, store Store, session *Session, prefs PreferenceSet, userID string, hoursBack int, includeProcessed bool) ([]StatusItem, error) {
	since := NowUnix() - int64(hoursBack)*3600

	var items []StatusItem

	mentionItems, err := mentionStatusItems(ctx, store, userID, since)
	if err != nil {
		return nil, fmt.Errorf("mentions: %w", err)
	}
	items = append(items, mentionItems...)

	dmItems, err := dmStatusItems(ctx, store, userID, since)
	if err != nil {
		return nil, fmt.Errorf("dms: %w", err)
	}
	items = append(items, dmItems...)

	replyItems, err := threadReplyStatusItems(ctx, store, userID, since)
	if err != nil {
		return nil, fmt.Errorf("thread replies: %w", err)
	}
	items = append(items, replyItems...)

	// A message already classified by an earlier step (mention, then DM)
	// can also surface as a thread reply — e.g. a mention that itself has
	// parent_ts set, in a thread the user later replied in. Keep the
	// earlier, more specific classification rather than double-reporting it.
	items = dedupeStatusItems(items)

	items, err = applyAcknowledgmentOverlay(ctx, store, prefs, userID, items)
	if err != nil {
		return nil, fmt.Errorf("acknowledgment overlay: %w", err)
	}

	items = applySessionOverlay(session, includeProcessed, items)

	sort.SliceStable(items, func(i, j int) bool {
		if rank(items[i].Priority) != rank(items[j].Priority) {
			return rank(items[i].Priority) < rank(items[j].Priority)
		}
		return TSGreater(items[i].MessageTS, items[j].MessageTS)
	})
	return items, nil
}

// mentionStatusItems implements step 1: CRITICAL unless the user already
// replied in the same thread after the mention, in which case LOW.
func mentionStatusItems(ctx context.Context, store Store, userID string, since int64) ([]StatusItem, error) {
	mentions, err := store.GetUnreadMentions(ctx, userID, since)
	if err != nil {
		return nil, err
	}
	if len(mentions) == 0 {
		return nil, nil
	}

	contexts := make([]ThreadReplyStatus, len(mentions))
	for i, m := range mentions {
		parent := m.ParentTS
		contexts[i] = ThreadReplyStatus{ChannelID: m.ChannelID, ParentTS: parent, MentionTS: m.TS}
	}
	statuses, err := store.GetUserReplyStatusBatch(ctx, userID, contexts)
	if err != nil {
		return nil, err
	}
	replied := make(map[string]bool, len(statuses))
	for _, s := range statuses {
		replied[s.ChannelID+":"+s.ParentTS+":"+s.MentionTS] = s.Replied
	}

	items := make([]StatusItem, 0, len(mentions))
	for _, m := range mentions {
		threadTS := effectiveParentTS(m)
		key := m.ChannelID + ":" + m.ParentTS + ":" + m.TS
		if replied[key] {
			items = append(items, StatusItem{
				ChannelID: m.ChannelID, MessageTS: m.TS, ThreadTS: threadTS,
				Priority: PriorityLow, Reason: "You were mentioned (already replied)", Message: m,
			})
			continue
		}
		items = append(items, StatusItem{
			ChannelID: m.ChannelID, MessageTS: m.TS, ThreadTS: threadTS,
			Priority: PriorityCritical, Reason: "You were mentioned", Message: m,
		})
	}
	return items, nil
}

// dmStatusItems implements step 2: HIGH for DMs from someone else;
// self-DMs are retained even when authored by the user.
func dmStatusItems(ctx context.Context, store Store, userID string, since int64) ([]StatusItem, error) {
	dms, err := store.GetDMs(ctx, since)
	if err != nil {
		return nil, err
	}
	if len(dms) == 0 {
		return nil, nil
	}
	channelIDs := make([]string, 0, len(dms))
	for _, m := range dms {
		channelIDs = append(channelIDs, m.ChannelID)
	}
	channels, err := store.GetChannelsBatch(ctx, channelIDs)
	if err != nil {
		return nil, err
	}

	items := make([]StatusItem, 0, len(dms))
	for _, m := range dms {
		isSelfDM := channels[m.ChannelID].IsSelfDM
		if m.AuthorID == userID && !isSelfDM {
			continue
		}
		items = append(items, StatusItem{
			ChannelID: m.ChannelID, MessageTS: m.TS, ThreadTS: effectiveParentTS(m),
			Priority: PriorityHigh, Reason: "Direct message", Message: m,
		})
	}
	return items, nil
}

// threadReplyStatusItems implements step 3: MEDIUM, deduplicated by
// (channel, effective_parent_ts).
func threadReplyStatusItems(ctx context.Context, store Store, userID string, since int64) ([]StatusItem, error) {
	msgs, err := store.GetThreadsWithReplies(ctx, userID, since)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	items := make([]StatusItem, 0, len(msgs))
	for _, m := range msgs {
		parent := effectiveParentTS(m)
		dedupKey := m.ChannelID + ":" + parent
		if seen[dedupKey] {
			continue
		}
		seen[dedupKey] = true
		items = append(items, StatusItem{
			ChannelID: m.ChannelID, MessageTS: m.TS, ThreadTS: parent,
			Priority: PriorityMedium, Reason: "Reply in thread you participated in", Message: m,
		})
	}
	return items, nil
}

// dedupeStatusItems keeps the first item seen for each (channel, ts) key,
// preserving the mentions-then-DMs-then-threads precedence order steps 1-3
// are collected in.
func dedupeStatusItems(items []StatusItem) []StatusItem {
	seen := make(map[string]bool, len(items))
	out := make([]StatusItem, 0, len(items))
	for _, it := range items {
		key := it.key()
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, it)
	}
	return out
}

func effectiveParentTS(m Message) string {
	if m.ParentTS != "" {
		return m.ParentTS
	}
	return m.TS
}

// applyAcknowledgmentOverlay implements step 4: demote to LOW any item the
// user reacted to with an emoji whose pattern marks_as_handled=true.
func applyAcknowledgmentOverlay(ctx context.Context, store Store, prefs PreferenceSet, userID string, items []StatusItem) ([]StatusItem, error) {
	var allowlist []string
	for _, p := range prefs.EmojiPatterns {
		if p.MarksAsHandled {
			allowlist = append(allowlist, p.Emoji)
		}
	}
	if len(allowlist) == 0 || len(items) == 0 {
		return items, nil
	}

	itemKeys := make([]string, len(items))
	for i, it := range items {
		itemKeys[i] = it.key()
	}
	reactionsByItem, err := store.GetUserReactionsOnItems(ctx, userID, itemKeys, allowlist)
	if err != nil {
		return nil, err
	}

	for i, it := range items {
		emojis := reactionsByItem[it.key()]
		if len(emojis) == 0 {
			continue
		}
		items[i].Priority = PriorityLow
		items[i].Reason = fmt.Sprintf("%s (acknowledged with %s)", it.Reason, joinEmojiTags(emojis))
	}
	return items, nil
}

func joinEmojiTags(emojis []string) string {
	tags := make([]string, len(emojis))
	for i, e := range emojis {
		tags[i] = ":" + e + ":"
	}
	return strings.Join(tags, ", ")
}

// applySessionOverlay implements step 5: drop items already processed in
// the current session, unless includeProcessed is requested.
func applySessionOverlay(session *Session, includeProcessed bool, items []StatusItem) []StatusItem {
	if includeProcessed || session == nil || len(session.ProcessedItems) == 0 {
		return items
	}
	out := items[:0]
	for _, it := range items {
		if _, processed := session.ProcessedItems[it.key()]; processed {
			continue
		}
		out = append(out, it)
	}
	return out
}
