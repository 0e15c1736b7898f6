package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rickgao/marketplace-realtime/internal/connection"
	"github.com/rickgao/marketplace-realtime/internal/model"
)

// Sender issues acknowledged sends. connection.Manager satisfies it.
type Sender interface {
	Send(ctx context.Context, conversationID, text string) (connection.Ack, error)
}

// SendMessage sends text to a conversation and returns the stored message.
// Fields the server leaves out of its acknowledgement are filled from the
// request, and the status defaults to sent.
func SendMessage(ctx context.Context, s Sender, senderID model.ID, conversationID, text string) (model.Message, error) {
	sentAt := time.Now().UTC()

	ack, err := s.Send(ctx, conversationID, text)
	if err != nil {
		return model.Message{}, err
	}

	var msg model.Message
	if data := bytes.TrimSpace(ack.Data); len(data) > 0 && !bytes.Equal(data, []byte("null")) {
		if err := json.Unmarshal(data, &msg); err != nil {
			return model.Message{}, fmt.Errorf("decode acknowledged message: %w", err)
		}
	}

	if msg.ConversationID == "" {
		msg.ConversationID = model.ID(conversationID)
	}
	if msg.SenderID == "" {
		msg.SenderID = senderID
	}
	if msg.Text == "" {
		msg.Text = text
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = sentAt
	}
	if msg.Status == "" {
		msg.Status = model.StatusSent
	}

	return msg, nil
}
