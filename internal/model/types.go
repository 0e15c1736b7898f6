package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// ID identifies a user, conversation or message. The backend emits both
// string and numeric ids; both decode to the same textual form.
type ID string

// UnmarshalJSON accepts a JSON string, number or null.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		*id = ""
		return nil
	case data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %s", data)
	}
	*id = ID(n.String())
	return nil
}

// Int64 returns the id as an integer when it is numeric.
func (id ID) Int64() (int64, bool) {
	n, err := strconv.ParseInt(string(id), 10, 64)
	return n, err == nil
}

func (id ID) String() string { return string(id) }

// -----------------------------------------------------------------------------
// Messages
// -----------------------------------------------------------------------------

// MessageStatus is the delivery state of a message.
type MessageStatus string

const (
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusRead      MessageStatus = "read"
)

// Message is one chat message.
type Message struct {
	ID             ID            `json:"id"`
	ConversationID ID            `json:"conversationId,omitempty"`
	SenderID       ID            `json:"senderId"`
	Text           string        `json:"text"`
	Timestamp      time.Time     `json:"timestamp"`
	Status         MessageStatus `json:"status,omitempty"`
}

// -----------------------------------------------------------------------------
// Conversations
// -----------------------------------------------------------------------------

// Participant is the other party of a conversation.
type Participant struct {
	ID       ID        `json:"id"`
	Name     string    `json:"name"`
	Role     string    `json:"role"` // "brand" or "influencer"
	Avatar   string    `json:"avatar,omitempty"`
	LastSeen time.Time `json:"lastSeen"`
	IsOnline bool      `json:"isOnline"`
}

// MessagePreview is the last message shown in a conversation list.
type MessagePreview struct {
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	SenderID  ID        `json:"senderId"`
}

// Conversation is a conversation summary.
type Conversation struct {
	ID          ID             `json:"id"`
	Participant Participant    `json:"participant"`
	LastMessage MessagePreview `json:"lastMessage"`
	UnreadCount int            `json:"unreadCount"`
	CampaignID  ID             `json:"campaignId,omitempty"`
}

// -----------------------------------------------------------------------------
// Realtime signals
// -----------------------------------------------------------------------------

// DeliveryReceipt is the payload of message_delivered.
type DeliveryReceipt struct {
	MessageID      ID        `json:"messageId"`
	ConversationID ID        `json:"conversationId,omitempty"`
	DeliveredAt    time.Time `json:"deliveredAt,omitzero"`
}

// ReadReceipt is the payload of message_read.
type ReadReceipt struct {
	MessageID      ID        `json:"messageId"`
	ConversationID ID        `json:"conversationId,omitempty"`
	ReaderID       ID        `json:"readerId,omitempty"`
	ReadAt         time.Time `json:"readAt,omitzero"`
}

// TypingIndicator is the payload of user_typing.
type TypingIndicator struct {
	ConversationID ID   `json:"conversationId"`
	UserID         ID   `json:"userId"`
	IsTyping       bool `json:"isTyping"`
}

// Presence is the payload of user_online and user_offline.
type Presence struct {
	UserID   ID        `json:"userId"`
	LastSeen time.Time `json:"lastSeen,omitzero"`
}
