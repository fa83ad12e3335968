package deskmirror

import (
	"context"
	"regexp"
	"strings"
	"sync"
	"time"
)

// Sigil patterns, grounded in
// original_source/slack_assistant/formatting/patterns.py.
var (
	userMentionPattern    = regexp.MustCompile(`<@([A-Z0-9]+)>`)
	channelLinkPattern    = regexp.MustCompile(`<#([A-Z0-9]+)(?:\|([^>]*))?>`)
	urlLinkPattern        = regexp.MustCompile(`<(https?://[^|>]+)(?:\|([^>]*))?>`)
	specialMentionPattern = regexp.MustCompile(`<!(here|channel|everyone)>`)
	teamMentionPattern    = regexp.MustCompile(`<!subteam\^([A-Z0-9]+)(?:\|([^>]*))?>`)
	htmlEntityPattern     = regexp.MustCompile(`&(amp|lt|gt|nbsp|quot);`)
)

var htmlEntities = map[string]string{
	"amp": "&", "lt": "<", "gt": ">", "nbsp": " ", "quot": "\"",
}

// CollectedEntities accumulates the IDs a message body references, so a
// caller can batch-resolve them in one round trip instead of N+1 lookups.
type CollectedEntities struct {
	UserIDs    map[string]bool
	ChannelIDs map[string]bool
}

// Empty reports whether nothing was collected.
func (c CollectedEntities) Empty() bool {
	return len(c.UserIDs) == 0 && len(c.ChannelIDs) == 0
}

// Merge folds other into c in place.
func (c *CollectedEntities) Merge(other CollectedEntities) {
	for id := range other.UserIDs {
		c.addUser(id)
	}
	for id := range other.ChannelIDs {
		c.addChannel(id)
	}
}

func (c *CollectedEntities) addUser(id string) {
	if c.UserIDs == nil {
		c.UserIDs = make(map[string]bool)
	}
	c.UserIDs[id] = true
}

func (c *CollectedEntities) addChannel(id string) {
	if c.ChannelIDs == nil {
		c.ChannelIDs = make(map[string]bool)
	}
	c.ChannelIDs[id] = true
}

// CollectEntities walks body once and accumulates every user/channel ID
// that format needs resolved.
func CollectEntities(body string) CollectedEntities {
	var out CollectedEntities
	for _, m := range userMentionPattern.FindAllStringSubmatch(body, -1) {
		out.addUser(m[1])
	}
	for _, m := range channelLinkPattern.FindAllStringSubmatch(body, -1) {
		out.addChannel(m[1])
	}
	return out
}

// FormatText substitutes resolved names for sigils in body and decodes
// HTML entities. Users/channels missing from the maps fall back to their
// raw ID.
func FormatText(body string, users map[string]User, channels map[string]Channel) string {
	out := userMentionPattern.ReplaceAllStringFunc(body, func(m string) string {
		id := userMentionPattern.FindStringSubmatch(m)[1]
		if u, ok := users[id]; ok {
			return "@" + u.ResolveName()
		}
		return "@" + id
	})
	out = channelLinkPattern.ReplaceAllStringFunc(out, func(m string) string {
		sub := channelLinkPattern.FindStringSubmatch(m)
		id, label := sub[1], sub[2]
		if label != "" {
			return "#" + label
		}
		if ch, ok := channels[id]; ok && ch.Name != "" {
			return "#" + ch.Name
		}
		return "#" + id
	})
	out = urlLinkPattern.ReplaceAllStringFunc(out, func(m string) string {
		sub := urlLinkPattern.FindStringSubmatch(m)
		rawURL, label := sub[1], sub[2]
		if label != "" {
			return label + " (" + rawURL + ")"
		}
		return rawURL
	})
	out = specialMentionPattern.ReplaceAllString(out, "@$1")
	out = teamMentionPattern.ReplaceAllStringFunc(out, func(m string) string {
		sub := teamMentionPattern.FindStringSubmatch(m)
		if sub[2] != "" {
			return "@" + sub[2]
		}
		return "@" + sub[1]
	})
	out = htmlEntityPattern.ReplaceAllStringFunc(out, func(m string) string {
		name := htmlEntityPattern.FindStringSubmatch(m)[1]
		return htmlEntities[name]
	})
	return out
}

// cacheEntry is one TTL-bounded entity-resolver cache slot.
type cacheEntry struct {
	user      User
	channel   Channel
	expiresAt time.Time
}

// EntityResolver batches user/channel ID lookups against the Store and
// caches results for a short TTL, per spec.md §4.5. One instance is held
// per Agent (the cache is per-session, not process-wide).
type EntityResolver struct {
	store Store
	ttl   time.Duration

	mu    sync.Mutex
	cache map[string]cacheEntry
}

// NewEntityResolver builds a resolver with the given cache TTL (default 5m
// when ttl <= 0, per spec.md §4.5).
func NewEntityResolver(store Store, ttl time.Duration) *EntityResolver {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &EntityResolver{store: store, ttl: ttl, cache: make(map[string]cacheEntry)}
}

// Resolve batch-fetches the given CollectedEntities, evicting expired
// cache entries on read, and returns lookup maps ready for FormatText.
func (r *EntityResolver) Resolve(ctx context.Context, ents CollectedEntities) (map[string]User, map[string]Channel, error) {
	users := make(map[string]User)
	channels := make(map[string]Channel)
	now := time.Now()

	var missingUsers, missingChannels []string

	r.mu.Lock()
	for id := range ents.UserIDs {
		if e, ok := r.cache["u:"+id]; ok && now.Before(e.expiresAt) {
			users[id] = e.user
		} else {
			delete(r.cache, "u:"+id)
			missingUsers = append(missingUsers, id)
		}
	}
	for id := range ents.ChannelIDs {
		if e, ok := r.cache["c:"+id]; ok && now.Before(e.expiresAt) {
			channels[id] = e.channel
		} else {
			delete(r.cache, "c:"+id)
			missingChannels = append(missingChannels, id)
		}
	}
	r.mu.Unlock()

	if len(missingUsers) > 0 {
		found, err := r.store.GetUsersBatch(ctx, missingUsers)
		if err != nil {
			return nil, nil, err
		}
		r.mu.Lock()
		for id, u := range found {
			users[id] = u
			r.cache["u:"+id] = cacheEntry{user: u, expiresAt: now.Add(r.ttl)}
		}
		r.mu.Unlock()
	}
	if len(missingChannels) > 0 {
		found, err := r.store.GetChannelsBatch(ctx, missingChannels)
		if err != nil {
			return nil, nil, err
		}
		r.mu.Lock()
		for id, c := range found {
			channels[id] = c
			r.cache["c:"+id] = cacheEntry{channel: c, expiresAt: now.Add(r.ttl)}
		}
		r.mu.Unlock()
	}

	return users, channels, nil
}

// RenderMessage collects, resolves, and substitutes entities in one call —
// the common path used by the tool catalog.
func (r *EntityResolver) RenderMessage(ctx context.Context, body string) (string, error) {
	ents := CollectEntities(body)
	if ents.Empty() {
		return FormatText(body, nil, nil), nil
	}
	users, channels, err := r.Resolve(ctx, ents)
	if err != nil {
		return "", err
	}
	return FormatText(body, users, channels), nil
}

// NormalizeEmojiName lowercases, converts hyphens to underscores, and
// strips surrounding colons and whitespace, per spec.md §3's PreferenceSet
// invariant and original_source's test_emoji_patterns.py /
// preferences/models.py.
func NormalizeEmojiName(name string) string {
	s := strings.TrimSpace(name)
	s = strings.Trim(s, ":")
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, "-", "_")
	return s
}
