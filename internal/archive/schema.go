package archive

import (
	"context"
	"fmt"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS chat_messages (
		message_id      TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL,
		sender_id       TEXT NOT NULL,
		body            TEXT NOT NULL,
		status          TEXT NOT NULL,
		sent_at         TIMESTAMPTZ NOT NULL,
		received_at     TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS chat_messages_conversation_sent_idx
		ON chat_messages (conversation_id, sent_at)`,
}

// EnsureSchema creates the archive table and its index if missing.
func EnsureSchema(ctx context.Context, db DB) error {
	for _, stmt := range schema {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
