// Package archive persists inbound chat messages to PostgreSQL.
//
// The Writer accepts messages from the realtime session without blocking,
// batches them and inserts with pgx.Batch. Inserts are append-only and
// idempotent on message_id, so replays after a reconnect are counted as
// conflicts rather than duplicated.
package archive
