package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/rickgao/marketplace-realtime/internal/api"
	"github.com/rickgao/marketplace-realtime/internal/config"
	"github.com/rickgao/marketplace-realtime/internal/connection"
	"github.com/rickgao/marketplace-realtime/internal/model"
)

type fakeSession struct {
	sends        []string
	sendErr      error
	ackData      string
	reads        []string
	typing       []bool
	disconnected bool
}

func (f *fakeSession) Send(ctx context.Context, conversationID, text string) (connection.Ack, error) {
	f.sends = append(f.sends, conversationID+":"+text)
	if f.sendErr != nil {
		return connection.Ack{}, f.sendErr
	}
	return connection.Ack{Data: json.RawMessage(f.ackData)}, nil
}

func (f *fakeSession) MarkRead(messageID string) { f.reads = append(f.reads, messageID) }

func (f *fakeSession) SendTyping(conversationID string, isTyping bool) {
	f.typing = append(f.typing, isTyping)
}

func (f *fakeSession) Status() connection.Status {
	return connection.Status{State: connection.StateConnected, Connected: true, UserID: "u1"}
}

func (f *fakeSession) Disconnect() { f.disconnected = true }

type fakeRooms struct {
	joined map[string]bool
}

func (r *fakeRooms) Join(id string)  { r.joined[id] = true }
func (r *fakeRooms) Leave(id string) { delete(r.joined, id) }

func (r *fakeRooms) Joined() []string {
	var out []string
	for id := range r.joined {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

type fakeHistory struct {
	convs []model.Conversation
	resp  *api.MessagesResponse
	err   error
	opts  api.GetMessagesOptions
}

func (h *fakeHistory) GetConversations(ctx context.Context) ([]model.Conversation, error) {
	return h.convs, h.err
}

func (h *fakeHistory) GetMessages(ctx context.Context, conversationID string, opts api.GetMessagesOptions) (*api.MessagesResponse, error) {
	h.opts = opts
	return h.resp, h.err
}

func newTestShell() (*shell, *fakeSession, *fakeRooms, *bytes.Buffer) {
	sess := &fakeSession{}
	rooms := &fakeRooms{joined: make(map[string]bool)}
	var buf bytes.Buffer
	sh := &shell{
		session:   sess,
		rooms:     rooms,
		userID:    "u1",
		reconnect: func() error { return nil },
		out:       newConsole(&buf),
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	return sh, sess, rooms, &buf
}

func TestShell_SendRequiresConversation(t *testing.T) {
	sh, sess, _, buf := newTestShell()

	if err := sh.handle(context.Background(), "hello"); err != nil {
		t.Fatalf("handle() error = %v", err)
	}
	if len(sess.sends) != 0 {
		t.Errorf("sends = %v, want none", sess.sends)
	}
	if !strings.Contains(buf.String(), "join a conversation first") {
		t.Errorf("output = %q, want join hint", buf.String())
	}
}

func TestShell_JoinThenSend(t *testing.T) {
	sh, sess, rooms, buf := newTestShell()
	sess.ackData = `{"id":"m9","senderId":"u1","text":"hello"}`

	sh.handle(context.Background(), "/join c1")
	sh.handle(context.Background(), "hello")

	if !rooms.joined["c1"] {
		t.Error("c1 not joined")
	}
	if len(sess.sends) != 1 || sess.sends[0] != "c1:hello" {
		t.Errorf("sends = %v, want [c1:hello]", sess.sends)
	}
	if !strings.Contains(buf.String(), "<you> hello (#m9)") {
		t.Errorf("output = %q, want echoed message", buf.String())
	}
}

func TestShell_SendError(t *testing.T) {
	sh, sess, _, buf := newTestShell()
	sess.sendErr = connection.ErrNotConnected
	sh.current = "c1"

	sh.handle(context.Background(), "hello")

	if !strings.Contains(buf.String(), "send failed: not connected") {
		t.Errorf("output = %q, want send failure", buf.String())
	}
}

func TestShell_JoinPrintsHistory(t *testing.T) {
	sh, _, _, buf := newTestShell()
	hist := &fakeHistory{resp: &api.MessagesResponse{Messages: []model.Message{
		{ID: "1", SenderID: "u2", Text: "hi there", Timestamp: time.Now()},
		{ID: "2", SenderID: "u1", Text: "hello back", Timestamp: time.Now()},
	}}}
	sh.history = hist
	sh.historySize = 20

	sh.handle(context.Background(), "/join c1")

	if hist.opts.Limit != 20 || hist.opts.Page != 1 {
		t.Errorf("opts = %+v, want page 1 limit 20", hist.opts)
	}
	out := buf.String()
	if !strings.Contains(out, "c1 <u2> hi there (#1)") {
		t.Errorf("output = %q, want first history line", out)
	}
	if !strings.Contains(out, "c1 <you> hello back (#2)") {
		t.Errorf("output = %q, want own history line", out)
	}
}

func TestShell_HistoryFailureIsReported(t *testing.T) {
	sh, _, rooms, buf := newTestShell()
	sh.history = &fakeHistory{err: errors.New("boom")}
	sh.historySize = 5

	sh.handle(context.Background(), "/join c1")

	if !rooms.joined["c1"] {
		t.Error("c1 not joined after history failure")
	}
	if !strings.Contains(buf.String(), "history unavailable: boom") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestShell_Inbox(t *testing.T) {
	sh, _, _, buf := newTestShell()
	sh.history = &fakeHistory{convs: []model.Conversation{
		{
			ID:          "c1",
			Participant: model.Participant{Name: "Acme Brand"},
			LastMessage: model.MessagePreview{Text: "see you soon"},
			UnreadCount: 2,
		},
	}}

	sh.handle(context.Background(), "/inbox")

	out := buf.String()
	if !strings.Contains(out, "Acme Brand") || !strings.Contains(out, "  2 unread  see you soon") {
		t.Errorf("output = %q", out)
	}
}

func TestShell_Leave(t *testing.T) {
	sh, _, rooms, _ := newTestShell()
	ctx := context.Background()

	sh.handle(ctx, "/join c1")
	sh.handle(ctx, "/join c2")
	sh.handle(ctx, "/leave c1")

	if rooms.joined["c1"] {
		t.Error("c1 still joined")
	}
	if sh.current != "c2" {
		t.Errorf("current = %q, want c2", sh.current)
	}

	sh.handle(ctx, "/leave")
	if rooms.joined["c2"] || sh.current != "" {
		t.Errorf("after /leave: joined=%v current=%q", rooms.joined, sh.current)
	}
}

func TestShell_Commands(t *testing.T) {
	tests := []struct {
		name  string
		lines []string
		check func(t *testing.T, sess *fakeSession, out string)
	}{
		{
			name:  "typing on and off",
			lines: []string{"/join c1", "/typing on", "/typing off"},
			check: func(t *testing.T, sess *fakeSession, out string) {
				if len(sess.typing) != 2 || !sess.typing[0] || sess.typing[1] {
					t.Errorf("typing = %v, want [true false]", sess.typing)
				}
			},
		},
		{
			name:  "typing bad argument",
			lines: []string{"/join c1", "/typing maybe"},
			check: func(t *testing.T, sess *fakeSession, out string) {
				if len(sess.typing) != 0 {
					t.Errorf("typing = %v, want none", sess.typing)
				}
				if !strings.Contains(out, "usage: /typing on|off") {
					t.Errorf("output = %q", out)
				}
			},
		},
		{
			name:  "read",
			lines: []string{"/read m7"},
			check: func(t *testing.T, sess *fakeSession, out string) {
				if len(sess.reads) != 1 || sess.reads[0] != "m7" {
					t.Errorf("reads = %v, want [m7]", sess.reads)
				}
			},
		},
		{
			name:  "status",
			lines: []string{"/status"},
			check: func(t *testing.T, sess *fakeSession, out string) {
				if !strings.Contains(out, "state=connected connected=true") {
					t.Errorf("output = %q", out)
				}
			},
		},
		{
			name:  "disconnect",
			lines: []string{"/disconnect"},
			check: func(t *testing.T, sess *fakeSession, out string) {
				if !sess.disconnected {
					t.Error("Disconnect not called")
				}
			},
		},
		{
			name:  "rooms",
			lines: []string{"/join a", "/join b", "/rooms"},
			check: func(t *testing.T, sess *fakeSession, out string) {
				if !strings.Contains(out, "  a\n* b\n") {
					t.Errorf("output = %q, want a then current b", out)
				}
			},
		},
		{
			name:  "unknown",
			lines: []string{"/dance"},
			check: func(t *testing.T, sess *fakeSession, out string) {
				if !strings.Contains(out, "unknown command /dance") {
					t.Errorf("output = %q", out)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sh, sess, _, buf := newTestShell()
			for _, line := range tt.lines {
				if err := sh.handle(context.Background(), line); err != nil {
					t.Fatalf("handle(%q) error = %v", line, err)
				}
			}
			tt.check(t, sess, buf.String())
		})
	}
}

func TestShell_Run(t *testing.T) {
	sh, _, _, _ := newTestShell()
	lines := make(chan string, 2)
	lines <- "/quit"

	if err := sh.run(context.Background(), lines); !errors.Is(err, errQuit) {
		t.Errorf("run() error = %v, want errQuit", err)
	}

	closed := make(chan string)
	close(closed)
	if err := sh.run(context.Background(), closed); !errors.Is(err, errQuit) {
		t.Errorf("run() at end of input error = %v, want errQuit", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sh.run(ctx, make(chan string)); !errors.Is(err, context.Canceled) {
		t.Errorf("run() after cancel error = %v, want context.Canceled", err)
	}
}

func TestManagerConfig(t *testing.T) {
	rc := config.RealtimeConfig{
		URL:                  "wss://chat.example.com",
		HandshakeTimeout:     5 * time.Second,
		AckTimeout:           3 * time.Second,
		ReconnectBaseDelay:   2 * time.Second,
		ReconnectMaxDelay:    30 * time.Second,
		MaxReconnectAttempts: 7,
		PingInterval:         time.Second,
		PingTimeout:          4 * time.Second,
		WriteTimeout:         time.Second,
		BufferSize:           64,
	}

	mc := managerConfig(rc)

	if mc.Client.URL != rc.URL || mc.Client.BufferSize != 64 {
		t.Errorf("Client = %+v", mc.Client)
	}
	if mc.HandshakeTimeout != 5*time.Second || mc.AckTimeout != 3*time.Second {
		t.Errorf("timeouts = %v/%v", mc.HandshakeTimeout, mc.AckTimeout)
	}
	if mc.ReconnectMaxDelay != 30*time.Second || mc.MaxReconnectAttempts != 7 {
		t.Errorf("reconnect = %v/%d", mc.ReconnectMaxDelay, mc.MaxReconnectAttempts)
	}
}
