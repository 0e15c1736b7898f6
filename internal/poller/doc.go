// Package poller implements the history backfill poller.
//
// The realtime endpoint does not replay events a client missed while it
// was disconnected. The poller closes that gap:
//   - Polls the REST history of every joined conversation on an interval
//   - Polls again immediately when triggered, e.g. after a reconnect
//   - Uses concurrent requests with a bounded worker count
//   - Hands every fetched message to a handler, which must tolerate repeats
package poller
