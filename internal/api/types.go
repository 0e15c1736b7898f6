package api

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/rickgao/marketplace-realtime/internal/model"
)

// ConversationsResponse from GET /conversations
type ConversationsResponse struct {
	Conversations []model.Conversation `json:"conversations"`
}

// UnmarshalJSON accepts either a bare array or {"conversations": [...]}.
func (r *ConversationsResponse) UnmarshalJSON(data []byte) error {
	return decodeList(data, "conversations", &r.Conversations)
}

// MessagesResponse from GET /conversations/{id}/messages
type MessagesResponse struct {
	Messages []model.Message `json:"messages"`
	Page     int             `json:"page"`
	HasMore  bool            `json:"hasMore"`

	bare bool // decoded from a bare array, no paging fields
}

// UnmarshalJSON accepts either a bare array or an object with a messages
// field and optional paging fields.
func (r *MessagesResponse) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		r.bare = true
		return json.Unmarshal(data, &r.Messages)
	}

	type plain MessagesResponse
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*r = MessagesResponse(p)
	return nil
}

// GetMessagesOptions pages through a conversation's history. Pages are
// 1-based.
type GetMessagesOptions struct {
	Page  int
	Limit int
}

// sendMessageRequest is the body of POST /conversations/{id}/messages
type sendMessageRequest struct {
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
}

func decodeList[T any](data []byte, field string, out *[]T) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		return json.Unmarshal(data, out)
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	raw, ok := obj[field]
	if !ok {
		return fmt.Errorf("response has no %q field", field)
	}
	return json.Unmarshal(raw, out)
}
