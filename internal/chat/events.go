package chat

import (
	"encoding/json"
	"log/slog"

	"github.com/rickgao/marketplace-realtime/internal/connection"
	"github.com/rickgao/marketplace-realtime/internal/model"
)

// Subscriber registers raw event handlers. connection.Manager satisfies it.
type Subscriber interface {
	Subscribe(event string, h connection.EventHandler) (unsubscribe func())
}

// on subscribes h to event, decoding each payload into T. Payloads that do
// not decode are logged and dropped.
func on[T any](s Subscriber, logger *slog.Logger, event string, h func(T)) func() {
	if logger == nil {
		logger = slog.Default()
	}
	return s.Subscribe(event, func(data json.RawMessage) {
		var v T
		if err := json.Unmarshal(data, &v); err != nil {
			logger.Warn("dropping undecodable event",
				"event", event,
				"error", err,
				"size", len(data),
			)
			return
		}
		h(v)
	})
}

// OnNewMessage subscribes to incoming messages.
func OnNewMessage(s Subscriber, logger *slog.Logger, h func(model.Message)) func() {
	return on(s, logger, connection.EventNewMessage, h)
}

// OnMessageDelivered subscribes to delivery receipts.
func OnMessageDelivered(s Subscriber, logger *slog.Logger, h func(model.DeliveryReceipt)) func() {
	return on(s, logger, connection.EventMessageDelivered, h)
}

// OnMessageRead subscribes to read receipts.
func OnMessageRead(s Subscriber, logger *slog.Logger, h func(model.ReadReceipt)) func() {
	return on(s, logger, connection.EventMessageRead, h)
}

// OnUserTyping subscribes to typing indicators.
func OnUserTyping(s Subscriber, logger *slog.Logger, h func(model.TypingIndicator)) func() {
	return on(s, logger, connection.EventUserTyping, h)
}

// OnUserOnline subscribes to presence-online signals.
func OnUserOnline(s Subscriber, logger *slog.Logger, h func(model.Presence)) func() {
	return on(s, logger, connection.EventUserOnline, h)
}

// OnUserOffline subscribes to presence-offline signals.
func OnUserOffline(s Subscriber, logger *slog.Logger, h func(model.Presence)) func() {
	return on(s, logger, connection.EventUserOffline, h)
}
