// Package deskmirror mirrors a Slack-style workspace into a local store and
// drives a tool-using conversational agent over that mirror.
//
// Five pieces compose the system, leaves first: [RateGate] throttles calls
// to the upstream workspace API, [Store] persists the mirror (channels,
// users, messages, reactions, cursors, embeddings, reminders), [Scheduler]
// decides which channels need a resync each tick, [SyncWorker] brings one
// channel up to date, and [Agent] runs the bounded tool-calling conversation
// loop on top of all of it.
//
// cmd/syncd drives Scheduler+SyncWorker as a background daemon; cmd/assistant
// drives Agent as an interactive terminal client. Two Store backends are
// provided: store/sqlite for local/dev use and store/postgres (pgvector)
// for production.
package deskmirror
