package main

import (
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/rickgao/marketplace-realtime/internal/chat"
	"github.com/rickgao/marketplace-realtime/internal/connection"
	"github.com/rickgao/marketplace-realtime/internal/model"
)

// console serialises terminal output from the dispatcher and the shell.
type console struct {
	mu sync.Mutex
	w  io.Writer
}

func newConsole(w io.Writer) *console {
	return &console{w: w}
}

func (c *console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.w, format+"\n", args...)
}

// message prints one chat message; self marks the local user's own lines.
func (c *console) message(m model.Message, self model.ID) {
	sender := m.SenderID.String()
	if m.SenderID == self {
		sender = "you"
	}
	ts := "--:--"
	if !m.Timestamp.IsZero() {
		ts = m.Timestamp.Local().Format("15:04")
	}
	c.printf("[%s] %s <%s> %s (#%s)", ts, m.ConversationID, sender, m.Text, m.ID)
}

// eventSource is what the console listens to. connection.Manager satisfies it.
type eventSource interface {
	chat.Subscriber
	ObserveConnection(h connection.ConnectionHandler) (unsubscribe func())
}

// watch prints inbound events and connection changes until the returned
// function is called.
func (c *console) watch(src eventSource, self model.ID, logger *slog.Logger) func() {
	stops := []func(){
		chat.OnNewMessage(src, logger, func(m model.Message) {
			c.message(m, self)
		}),
		chat.OnMessageDelivered(src, logger, func(r model.DeliveryReceipt) {
			c.printf("* #%s delivered", r.MessageID)
		}),
		chat.OnMessageRead(src, logger, func(r model.ReadReceipt) {
			if r.ReaderID != "" {
				c.printf("* #%s read by %s", r.MessageID, r.ReaderID)
				return
			}
			c.printf("* #%s read", r.MessageID)
		}),
		chat.OnUserTyping(src, logger, func(t model.TypingIndicator) {
			if t.UserID == self {
				return
			}
			if t.IsTyping {
				c.printf("* %s is typing in %s", t.UserID, t.ConversationID)
				return
			}
			c.printf("* %s stopped typing in %s", t.UserID, t.ConversationID)
		}),
		chat.OnUserOnline(src, logger, func(p model.Presence) {
			c.printf("* %s is online", p.UserID)
		}),
		chat.OnUserOffline(src, logger, func(p model.Presence) {
			c.printf("* %s went offline", p.UserID)
		}),
		src.ObserveConnection(c.connection),
	}

	return func() {
		for _, stop := range stops {
			stop()
		}
	}
}

func (c *console) connection(ev connection.ConnectionEvent) {
	switch ev.Status {
	case connection.StatusConnected:
		c.printf("* connected")
	case connection.StatusDisconnected:
		c.printf("* disconnected: %s", ev.Reason)
	case connection.StatusError:
		c.printf("* connection error (attempt %d): %v", ev.Attempt, ev.Err)
	case connection.StatusMaxReconnectAttempts:
		c.printf("* gave up after %d reconnect attempts, use /reconnect", ev.Attempt)
	}
}
