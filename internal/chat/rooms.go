package chat

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/rickgao/marketplace-realtime/internal/connection"
)

// Session is the subset of connection.Manager that Rooms drives.
type Session interface {
	ObserveConnection(h connection.ConnectionHandler) (unsubscribe func())
	JoinConversation(conversationID string)
	LeaveConversation(conversationID string)
}

// Rooms tracks the conversations the user has joined and re-joins them each
// time the session (re)connects. Server-side room membership does not
// survive a new connection.
type Rooms struct {
	session Session
	logger  *slog.Logger

	mu     sync.Mutex
	joined map[string]struct{}
	stop   func()
}

// NewRooms creates a room tracker bound to session.
func NewRooms(session Session, logger *slog.Logger) *Rooms {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Rooms{
		session: session,
		logger:  logger,
		joined:  make(map[string]struct{}),
	}
	r.stop = session.ObserveConnection(r.onConnection)
	return r
}

// Join records the conversation and joins it now if connected.
func (r *Rooms) Join(conversationID string) {
	if conversationID == "" {
		return
	}
	r.mu.Lock()
	r.joined[conversationID] = struct{}{}
	r.mu.Unlock()

	r.session.JoinConversation(conversationID)
}

// Leave forgets the conversation and leaves it now if connected.
func (r *Rooms) Leave(conversationID string) {
	r.mu.Lock()
	_, ok := r.joined[conversationID]
	delete(r.joined, conversationID)
	r.mu.Unlock()

	if ok {
		r.session.LeaveConversation(conversationID)
	}
}

// Joined returns the tracked conversations, sorted.
func (r *Rooms) Joined() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.joined))
	for id := range r.joined {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Close stops observing the session.
func (r *Rooms) Close() {
	r.mu.Lock()
	stop := r.stop
	r.stop = nil
	r.mu.Unlock()

	if stop != nil {
		stop()
	}
}

func (r *Rooms) onConnection(ev connection.ConnectionEvent) {
	if ev.Status != connection.StatusConnected {
		return
	}
	ids := r.Joined()
	if len(ids) == 0 {
		return
	}
	r.logger.Info("rejoining conversations", "count", len(ids))
	for _, id := range ids {
		r.session.JoinConversation(id)
	}
}
