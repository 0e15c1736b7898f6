package connection

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Errors
var (
	ErrInvalidArgument      = errors.New("invalid argument")
	ErrNotConnected         = errors.New("not connected")
	ErrDisconnected         = errors.New("session disconnected")
	ErrTimeout              = errors.New("operation timeout")
	ErrAckTimeout           = fmt.Errorf("acknowledgement: %w", ErrTimeout)
	ErrMaxReconnectAttempts = errors.New("max reconnect attempts exceeded")
	ErrStaleConnection      = errors.New("connection stale (no ping)")
	ErrAlreadyClosed        = errors.New("already closed")
)

// TransportError is a handshake or mid-session transport failure. It is
// delivered to connection observers, never returned from Connect.
type TransportError struct {
	Op  string // "connect", "read", "send"
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// HandshakeError is returned by Client.Connect when the endpoint rejects the
// session with a connect_error frame.
type HandshakeError struct {
	Message string
}

func (e *HandshakeError) Error() string {
	return "handshake rejected: " + e.Message
}

// AckError is the server's explicit rejection of an outbound request.
type AckError struct {
	Message string
}

func (e *AckError) Error() string {
	return "request rejected: " + e.Message
}

// State is the session manager's connection state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// ConnectionStatus is the status carried by a connection notification.
type ConnectionStatus string

const (
	StatusConnected            ConnectionStatus = "connected"
	StatusDisconnected         ConnectionStatus = "disconnected"
	StatusError                ConnectionStatus = "error"
	StatusMaxReconnectAttempts ConnectionStatus = "max_reconnect_attempts"
)

// Disconnect reasons. Only ReasonServerDisconnect suppresses reconnection.
const (
	ReasonServerDisconnect = "io server disconnect"
	ReasonClientDisconnect = "io client disconnect"
	ReasonTransportClose   = "transport close"
	ReasonPingTimeout      = "ping timeout"
)

// Inbound event names.
const (
	EventNewMessage       = "new_message"
	EventMessageDelivered = "message_delivered"
	EventMessageRead      = "message_read"
	EventUserTyping       = "user_typing"
	EventUserOnline       = "user_online"
	EventUserOffline      = "user_offline"
)

// Outbound event names.
const (
	EventSendMessage       = "send_message"
	EventJoinConversation  = "join_conversation"
	EventLeaveConversation = "leave_conversation"
	EventMarkRead          = "mark_read"
	EventTyping            = "typing"
)

// EventHandler receives the raw payload of an inbound event.
type EventHandler func(data json.RawMessage)

// ConnectionHandler receives connection notifications.
type ConnectionHandler func(ev ConnectionEvent)

// ConnectionEvent describes one connection-state notification.
type ConnectionEvent struct {
	Status  ConnectionStatus
	Reason  string // disconnect reason, empty otherwise
	Err     error  // *TransportError for StatusError, ErrMaxReconnectAttempts for the terminal status
	Attempt int    // reconnect attempts made so far
}

// Status is a snapshot of the manager.
type Status struct {
	State             State
	Connected         bool
	ReconnectAttempts int
	UserID            string
}

// Ack is the payload of a successful acknowledgement.
type Ack struct {
	Data json.RawMessage
}

// Credentials authenticate the handshake.
type Credentials struct {
	UserID string `json:"userId"`
	Token  string `json:"token"`
}

// LogValue keeps the token out of logs.
func (c Credentials) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("user_id", c.UserID),
		slog.Bool("token_set", c.Token != ""),
	)
}

// FrameType identifies a wire frame.
type FrameType string

const (
	FrameConnect      FrameType = "connect"
	FrameConnectError FrameType = "connect_error"
	FrameEvent        FrameType = "event"
	FrameAck          FrameType = "ack"
	FrameDisconnect   FrameType = "disconnect"
)

// Frame is the JSON envelope exchanged with the messaging endpoint.
type Frame struct {
	Type   FrameType       `json:"type"`
	Event  string          `json:"event,omitempty"`
	AckID  string          `json:"ackId,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
	Auth   *Credentials    `json:"auth,omitempty"`
	Reason string          `json:"reason,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// AckResponse is the data of an ack frame.
type AckResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// SendMessagePayload is the data of a send_message request.
type SendMessagePayload struct {
	ConversationID string    `json:"conversationId"`
	Text           string    `json:"text"`
	Timestamp      time.Time `json:"timestamp"`
}

// ConversationPayload is the data of join_conversation / leave_conversation.
type ConversationPayload struct {
	ConversationID string `json:"conversationId"`
}

// MarkReadPayload is the data of mark_read.
type MarkReadPayload struct {
	MessageID string `json:"messageId"`
}

// TypingPayload is the data of typing.
type TypingPayload struct {
	ConversationID string `json:"conversationId"`
	IsTyping       bool   `json:"isTyping"`
}

// ClientConfig configures a WebSocket client.
type ClientConfig struct {
	URL          string        // WebSocket URL (e.g., ws://localhost:3001)
	PingInterval time.Duration // How often we ping the server
	PingTimeout  time.Duration // Max time without ping/pong before the connection is stale
	WriteTimeout time.Duration // Write deadline for sends
	BufferSize   int           // Frame channel buffer size
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		URL:          "ws://localhost:3001",
		PingInterval: 25 * time.Second,
		PingTimeout:  60 * time.Second,
		WriteTimeout: 5 * time.Second,
		BufferSize:   256,
	}
}

// ManagerConfig configures the session manager.
type ManagerConfig struct {
	Client               ClientConfig
	HandshakeTimeout     time.Duration // Bound on dial + handshake
	AckTimeout           time.Duration // Bound on waiting for a send_message ack
	ReconnectBaseDelay   time.Duration // Delay before reconnect attempt 1
	ReconnectMaxDelay    time.Duration // Clamp for the backoff delay (0 = none)
	MaxReconnectAttempts int           // 0 = default (5), negative = never reconnect
}

// DefaultManagerConfig returns sensible defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		Client:               DefaultClientConfig(),
		HandshakeTimeout:     20 * time.Second,
		AckTimeout:           10 * time.Second,
		ReconnectBaseDelay:   1 * time.Second,
		MaxReconnectAttempts: 5,
	}
}
