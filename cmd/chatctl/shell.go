package main

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/rickgao/marketplace-realtime/internal/api"
	"github.com/rickgao/marketplace-realtime/internal/chat"
	"github.com/rickgao/marketplace-realtime/internal/connection"
	"github.com/rickgao/marketplace-realtime/internal/model"
)

var errQuit = errors.New("quit")

const helpText = `commands:
  /join <conversation>   join a conversation and make it current
  /leave [conversation]  leave a conversation (default: current)
  /rooms                 list joined conversations
  /inbox                 list conversations with unread counts
  /typing on|off         send a typing indicator to the current conversation
  /read <message>        mark a message as read
  /status                show the session state
  /reconnect             start a new session
  /disconnect            end the session
  /quit                  exit
anything else is sent to the current conversation`

// session is the part of connection.Manager the shell drives.
type session interface {
	chat.Sender
	MarkRead(messageID string)
	SendTyping(conversationID string, isTyping bool)
	Status() connection.Status
	Disconnect()
}

type roomSet interface {
	Join(conversationID string)
	Leave(conversationID string)
	Joined() []string
}

type historySource interface {
	GetConversations(ctx context.Context) ([]model.Conversation, error)
	GetMessages(ctx context.Context, conversationID string, opts api.GetMessagesOptions) (*api.MessagesResponse, error)
}

// shell interprets input lines.
type shell struct {
	session     session
	rooms       roomSet
	history     historySource
	userID      model.ID
	historySize int
	reconnect   func() error
	out         *console
	logger      *slog.Logger

	current string
}

// run handles lines until /quit, end of input or cancellation.
func (s *shell) run(ctx context.Context, lines <-chan string) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return errQuit
			}
			if err := s.handle(ctx, line); err != nil {
				return err
			}
		}
	}
}

func (s *shell) handle(ctx context.Context, line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	if !strings.HasPrefix(line, "/") {
		s.send(ctx, line)
		return nil
	}

	cmd, arg, _ := strings.Cut(line[1:], " ")
	arg = strings.TrimSpace(arg)

	switch cmd {
	case "quit", "exit":
		return errQuit
	case "help":
		s.out.printf("%s", helpText)
	case "join":
		if arg == "" {
			s.out.printf("usage: /join <conversation>")
			return nil
		}
		s.join(ctx, arg)
	case "leave":
		s.leave(arg)
	case "rooms":
		s.listRooms()
	case "inbox":
		s.inbox(ctx)
	case "typing":
		s.typing(arg)
	case "read":
		if arg == "" {
			s.out.printf("usage: /read <message>")
			return nil
		}
		s.session.MarkRead(arg)
	case "status":
		st := s.session.Status()
		s.out.printf("state=%s connected=%t attempts=%d user=%s current=%s",
			st.State, st.Connected, st.ReconnectAttempts, st.UserID, s.current)
	case "reconnect":
		if err := s.reconnect(); err != nil {
			s.out.printf("reconnect failed: %v", err)
		}
	case "disconnect":
		s.session.Disconnect()
	default:
		s.out.printf("unknown command /%s, try /help", cmd)
	}
	return nil
}

// send delivers text to the current conversation and echoes the stored
// message.
func (s *shell) send(ctx context.Context, text string) {
	if s.current == "" {
		s.out.printf("join a conversation first: /join <conversation>")
		return
	}

	msg, err := chat.SendMessage(ctx, s.session, s.userID, s.current, text)
	if err != nil {
		s.logger.Debug("send failed", "conversation_id", s.current, "error", err)
		s.out.printf("send failed: %v", err)
		return
	}
	s.out.message(msg, s.userID)
}

// join joins a conversation, makes it current and prints recent history.
func (s *shell) join(ctx context.Context, conversationID string) {
	s.rooms.Join(conversationID)
	s.current = conversationID
	s.out.printf("* joined %s", conversationID)

	if s.history == nil || s.historySize <= 0 {
		return
	}

	resp, err := s.history.GetMessages(ctx, conversationID, api.GetMessagesOptions{
		Page:  1,
		Limit: s.historySize,
	})
	if err != nil {
		s.logger.Warn("failed to load history", "conversation_id", conversationID, "error", err)
		s.out.printf("history unavailable: %v", err)
		return
	}
	for _, m := range resp.Messages {
		if m.ConversationID == "" {
			m.ConversationID = model.ID(conversationID)
		}
		s.out.message(m, s.userID)
	}
}

func (s *shell) leave(conversationID string) {
	if conversationID == "" {
		conversationID = s.current
	}
	if conversationID == "" {
		s.out.printf("not in a conversation")
		return
	}
	s.rooms.Leave(conversationID)
	if conversationID == s.current {
		s.current = ""
	}
	s.out.printf("* left %s", conversationID)
}

func (s *shell) listRooms() {
	joined := s.rooms.Joined()
	if len(joined) == 0 {
		s.out.printf("no conversations joined")
		return
	}
	for _, id := range joined {
		marker := " "
		if id == s.current {
			marker = "*"
		}
		s.out.printf("%s %s", marker, id)
	}
}

func (s *shell) inbox(ctx context.Context) {
	if s.history == nil {
		s.out.printf("conversation list unavailable")
		return
	}
	convs, err := s.history.GetConversations(ctx)
	if err != nil {
		s.out.printf("conversation list unavailable: %v", err)
		return
	}
	if len(convs) == 0 {
		s.out.printf("no conversations")
		return
	}
	for _, c := range convs {
		s.out.printf("%s  %-24s %3d unread  %s", c.ID, c.Participant.Name, c.UnreadCount, c.LastMessage.Text)
	}
}

func (s *shell) typing(arg string) {
	if s.current == "" {
		s.out.printf("join a conversation first: /join <conversation>")
		return
	}
	switch arg {
	case "on":
		s.session.SendTyping(s.current, true)
	case "off":
		s.session.SendTyping(s.current, false)
	default:
		s.out.printf("usage: /typing on|off")
	}
}
