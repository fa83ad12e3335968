// Package linkfmt parses and renders workspace message-permalinks per
// spec.md §6, grounded in
// original_source/slack_assistant/slack/client.py's get_message_link.
package linkfmt

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Link is a parsed message-permalink: a channel, a message ts, and an
// optional parent (thread) ts.
type Link struct {
	Host      string
	ChannelID string
	TS        string
	ThreadTS  string // empty if this isn't a reply-in-thread link
}

// tsMicroDigits is the fixed width of the microsecond fraction in a
// workspace ts ("seconds.microseconds") — Slack-style timestamps always
// carry exactly 6 fractional digits, which is what makes the dot-removed
// encoding in archive links reversible.
const tsMicroDigits = 6

var archivePattern = regexp.MustCompile(`^https?://([^/]+)/archives/([^/]+)/p(\d+)(?:\?(.*))?$`)

// Format renders the canonical archive-link form:
// https://<host>/archives/<channel_id>/p<ts-with-dot-removed>[?thread_ts=<parent-ts-with-dot-removed>].
// If threadTS is empty or equal to ts, no thread_ts query param is emitted.
func Format(host, channelID, ts, threadTS string) string {
	base := fmt.Sprintf("https://%s/archives/%s/p%s", host, channelID, stripDot(ts))
	if threadTS != "" && threadTS != ts {
		base += "?thread_ts=" + stripDot(threadTS)
	}
	return base
}

// Parse accepts either the canonical archive-link form or the deep-link
// variant "<scheme>:?id=<channel>&message=<ts>".
func Parse(link string) (Link, error) {
	if m := archivePattern.FindStringSubmatch(link); m != nil {
		host, channelID, rawTS, query := m[1], m[2], m[3], m[4]
		ts, err := restoreDot(rawTS)
		if err != nil {
			return Link{}, fmt.Errorf("linkfmt: %w", err)
		}
		out := Link{Host: host, ChannelID: channelID, TS: ts}
		if query != "" {
			values, err := url.ParseQuery(query)
			if err != nil {
				return Link{}, fmt.Errorf("linkfmt: bad query: %w", err)
			}
			if raw := values.Get("thread_ts"); raw != "" {
				threadTS, err := restoreDot(raw)
				if err != nil {
					return Link{}, fmt.Errorf("linkfmt: %w", err)
				}
				out.ThreadTS = threadTS
			}
		}
		return out, nil
	}

	if idx := strings.Index(link, ":?"); idx >= 0 {
		values, err := url.ParseQuery(link[idx+2:])
		if err != nil {
			return Link{}, fmt.Errorf("linkfmt: bad deep-link query: %w", err)
		}
		channelID := values.Get("id")
		ts := values.Get("message")
		if channelID == "" || ts == "" {
			return Link{}, fmt.Errorf("linkfmt: deep-link missing id or message")
		}
		return Link{ChannelID: channelID, TS: ts}, nil
	}

	return Link{}, fmt.Errorf("linkfmt: unrecognized message link %q", link)
}

func stripDot(ts string) string {
	return strings.Replace(ts, ".", "", 1)
}

// restoreDot reverses stripDot, assuming the standard 6-digit microsecond
// fraction. Returns an error if raw is not longer than that fraction width.
func restoreDot(raw string) (string, error) {
	if len(raw) <= tsMicroDigits {
		return "", fmt.Errorf("ts digits %q too short to restore a decimal point", raw)
	}
	split := len(raw) - tsMicroDigits
	return raw[:split] + "." + raw[split:], nil
}
