package workspace

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// ErrThrottled is returned by HTTPClient methods when the upstream answers
// HTTP 429. It implements deskmirror.Throttled structurally (an
// error with RetryAfterHint() time.Duration) without importing deskmirror.
type ErrThrottled struct {
	Method     string
	RetryAfter time.Duration
}

func (e *ErrThrottled) Error() string                 { return e.Method + ": http 429" }
func (e *ErrThrottled) RetryAfterHint() time.Duration { return e.RetryAfter }

// HTTPClient is a minimal net/http binding of Client against a Slack-style
// REST API. Grounded on original_source/slack_assistant/slack/client.py's
// use of the Slack Web API (token-bearer auth, cursor pagination, JSON
// envelopes with ok/error fields).
type HTTPClient struct {
	baseURL string
	token   string
	hc      *http.Client
}

// NewHTTPClient builds an HTTPClient against baseURL (e.g.
// "https://slack.com/api") using a bearer token.
func NewHTTPClient(baseURL, token string) *HTTPClient {
	return &HTTPClient{baseURL: baseURL, token: token, hc: &http.Client{Timeout: 30 * time.Second}}
}

type apiEnvelope struct {
	OK               bool            `json:"ok"`
	Error            string          `json:"error"`
	ResponseMetadata struct {
		NextCursor string `json:"next_cursor"`
	} `json:"response_metadata"`
	HasMore bool `json:"has_more"`
}

func (c *HTTPClient) call(ctx context.Context, method string, params url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+method+"?"+params.Encode(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := time.Duration(0)
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if secs, err := strconv.Atoi(ra); err == nil {
				retryAfter = time.Duration(secs) * time.Second
			}
		}
		return &ErrThrottled{Method: method, RetryAfter: retryAfter}
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: http %d", method, resp.StatusCode)
	}
	return json.Unmarshal(body, out)
}

func (c *HTTPClient) AuthTest(ctx context.Context) (string, error) {
	var out struct {
		apiEnvelope
		UserID string `json:"user_id"`
	}
	if err := c.call(ctx, "auth.test", url.Values{}, &out); err != nil {
		return "", err
	}
	if !out.OK {
		return "", fmt.Errorf("auth.test: %s", out.Error)
	}
	return out.UserID, nil
}

func (c *HTTPClient) ListConversations(ctx context.Context, cursor string) ([]Conversation, string, error) {
	params := url.Values{"types": {"public_channel,private_channel,mpim,im"}, "limit": {"200"}}
	if cursor != "" {
		params.Set("cursor", cursor)
	}
	var out struct {
		apiEnvelope
		Channels []struct {
			ID       string `json:"id"`
			Name     string `json:"name"`
			IsIM     bool   `json:"is_im"`
			IsMPIM   bool   `json:"is_mpim"`
			IsGroup  bool   `json:"is_group"`
			IsArchived bool `json:"is_archived"`
			User     string `json:"user"`
			Latest   struct {
				TS string `json:"ts"`
			} `json:"latest"`
			UnreadCount int `json:"unread_count"`
		} `json:"channels"`
	}
	if err := c.call(ctx, "conversations.list", params, &out); err != nil {
		return nil, "", err
	}
	if !out.OK {
		return nil, "", fmt.Errorf("conversations.list: %s", out.Error)
	}
	convs := make([]Conversation, 0, len(out.Channels))
	for _, ch := range out.Channels {
		kind := "channel"
		switch {
		case ch.IsIM:
			kind = "im"
		case ch.IsMPIM:
			kind = "mpim"
		case ch.IsGroup:
			kind = "group"
		}
		convs = append(convs, Conversation{
			ID: ch.ID, Kind: kind, Name: ch.Name, Archived: ch.IsArchived,
			User: ch.User, LatestTS: ch.Latest.TS, UnreadCount: ch.UnreadCount,
		})
	}
	return convs, out.ResponseMetadata.NextCursor, nil
}

func (c *HTTPClient) History(ctx context.Context, channelID, oldest, cursor string) ([]RawMessage, bool, string, error) {
	params := url.Values{"channel": {channelID}, "limit": {"200"}}
	if oldest != "" {
		params.Set("oldest", oldest)
	}
	if cursor != "" {
		params.Set("cursor", cursor)
	}
	msgs, meta, err := c.fetchMessages(ctx, "conversations.history", params)
	if err != nil {
		return nil, false, "", err
	}
	return msgs, meta.HasMore, meta.ResponseMetadata.NextCursor, nil
}

func (c *HTTPClient) Replies(ctx context.Context, channelID, threadTS string) ([]RawMessage, error) {
	params := url.Values{"channel": {channelID}, "ts": {threadTS}, "limit": {"200"}}
	msgs, _, err := c.fetchMessages(ctx, "conversations.replies", params)
	return msgs, err
}

func (c *HTTPClient) Search(ctx context.Context, query string, limit int) ([]RawMessage, error) {
	params := url.Values{"query": {query}, "count": {strconv.Itoa(limit)}}
	msgs, _, err := c.fetchMessages(ctx, "search.messages", params)
	return msgs, err
}

func (c *HTTPClient) fetchMessages(ctx context.Context, method string, params url.Values) ([]RawMessage, apiEnvelope, error) {
	var out struct {
		apiEnvelope
		Messages []wireMessage `json:"messages"`
	}
	if err := c.call(ctx, method, params, &out); err != nil {
		return nil, apiEnvelope{}, err
	}
	if !out.OK {
		return nil, apiEnvelope{}, fmt.Errorf("%s: %s", method, out.Error)
	}
	msgs := make([]RawMessage, 0, len(out.Messages))
	for _, m := range out.Messages {
		msgs = append(msgs, m.toRaw())
	}
	return msgs, out.apiEnvelope, nil
}

type wireMessage struct {
	TS         string `json:"ts"`
	User       string `json:"user"`
	Text       string `json:"text"`
	ThreadTS   string `json:"thread_ts"`
	ReplyCount int    `json:"reply_count"`
	Edited     *struct {
		TS string `json:"ts"`
	} `json:"edited"`
	Reactions []struct {
		Name  string   `json:"name"`
		Users []string `json:"users"`
	} `json:"reactions"`
}

func (m wireMessage) toRaw() RawMessage {
	reactions := make([]RawReaction, 0, len(m.Reactions))
	for _, r := range m.Reactions {
		reactions = append(reactions, RawReaction{Name: r.Name, Users: r.Users})
	}
	return RawMessage{
		TS: m.TS, User: m.User, Text: m.Text, ThreadTS: m.ThreadTS,
		ReplyCount: m.ReplyCount, Edited: m.Edited != nil, Reactions: reactions,
	}
}

func (c *HTTPClient) UserInfo(ctx context.Context, userID string) (RawUser, error) {
	var out struct {
		apiEnvelope
		User struct {
			ID      string `json:"id"`
			Name    string `json:"name"`
			IsBot   bool   `json:"is_bot"`
			Profile struct {
				RealName    string `json:"real_name"`
				DisplayName string `json:"display_name"`
			} `json:"profile"`
		} `json:"user"`
	}
	if err := c.call(ctx, "users.info", url.Values{"user": {userID}}, &out); err != nil {
		return RawUser{}, err
	}
	if !out.OK {
		return RawUser{}, fmt.Errorf("users.info: %s", out.Error)
	}
	return RawUser{
		ID: out.User.ID, Name: out.User.Name, IsBot: out.User.IsBot,
		RealName: out.User.Profile.RealName, DisplayName: out.User.Profile.DisplayName,
	}, nil
}

func (c *HTTPClient) UserList(ctx context.Context, cursor string) ([]RawUser, string, error) {
	params := url.Values{"limit": {"200"}}
	if cursor != "" {
		params.Set("cursor", cursor)
	}
	var out struct {
		apiEnvelope
		Members []struct {
			ID      string `json:"id"`
			Name    string `json:"name"`
			IsBot   bool   `json:"is_bot"`
			Profile struct {
				RealName    string `json:"real_name"`
				DisplayName string `json:"display_name"`
			} `json:"profile"`
		} `json:"members"`
	}
	if err := c.call(ctx, "users.list", params, &out); err != nil {
		return nil, "", err
	}
	if !out.OK {
		return nil, "", fmt.Errorf("users.list: %s", out.Error)
	}
	users := make([]RawUser, 0, len(out.Members))
	for _, m := range out.Members {
		users = append(users, RawUser{
			ID: m.ID, Name: m.Name, IsBot: m.IsBot,
			RealName: m.Profile.RealName, DisplayName: m.Profile.DisplayName,
		})
	}
	return users, out.ResponseMetadata.NextCursor, nil
}

func (c *HTTPClient) RemindersList(ctx context.Context) ([]RawReminder, error) {
	var out struct {
		apiEnvelope
		Reminders []struct {
			ID       string `json:"id"`
			Text     string `json:"text"`
			Time     int64  `json:"time"`
			Complete bool   `json:"complete"`
		} `json:"reminders"`
	}
	if err := c.call(ctx, "reminders.list", url.Values{}, &out); err != nil {
		return nil, err
	}
	if !out.OK {
		return nil, fmt.Errorf("reminders.list: %s", out.Error)
	}
	reminders := make([]RawReminder, 0, len(out.Reminders))
	for _, r := range out.Reminders {
		reminders = append(reminders, RawReminder{ID: r.ID, Text: r.Text, Time: r.Time, Complete: r.Complete})
	}
	return reminders, nil
}

var _ Client = (*HTTPClient)(nil)
