package connection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Manager owns one logical realtime session: connect/disconnect lifecycle,
// reconnection with exponential backoff, fan-out of inbound events and
// connection notifications, and acknowledged sends.
type Manager interface {
	// Connect starts a new session, tearing down any existing one. Only
	// missing credentials are reported synchronously; transport failures go
	// to connection observers.
	Connect(userID, token string) error

	// Disconnect tears down the session. Safe from any state.
	Disconnect()

	// Subscribe registers a handler for an inbound event. The returned func
	// removes exactly this registration.
	Subscribe(event string, h EventHandler) (unsubscribe func())

	// ObserveConnection registers a connection-state observer.
	ObserveConnection(h ConnectionHandler) (unsubscribe func())

	// Send issues send_message and waits for the server's acknowledgement.
	Send(ctx context.Context, conversationID, text string) (Ack, error)

	JoinConversation(conversationID string)
	LeaveConversation(conversationID string)
	MarkRead(messageID string)
	SendTyping(conversationID string, isTyping bool)

	State() State
	Status() Status

	// Close disconnects and stops handler dispatch. Must not be called from
	// a handler.
	Close() error
}

// Option configures a Manager.
type Option func(*manager)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithClientFactory replaces the WebSocket transport.
func WithClientFactory(f ClientFactory) Option {
	return func(m *manager) {
		if f != nil {
			m.newClient = f
		}
	}
}

type ackResult struct {
	ack Ack
	err error
}

// manager implements the Manager interface.
//
// All session state is guarded by mu. Each Connect starts a new generation;
// callbacks (handshake results, timers, frames) carrying an older generation
// or a replaced client are ignored.
type manager struct {
	cfg       ManagerConfig
	logger    *slog.Logger
	newClient ClientFactory
	afterFunc func(d time.Duration, f func()) (stop func() bool)
	now       func() time.Time

	events    *eventRegistry
	observers *handlerList[ConnectionHandler]
	dispatch  *dispatcher

	mu        sync.Mutex
	state     State
	creds     Credentials
	gen       uint64
	attempts  int
	client    Client
	sessCtx   context.Context
	cancel    context.CancelFunc
	stopTimer func() bool
	pending   map[string]chan ackResult
	closed    bool
}

// NewManager creates a session manager. It starts in StateDisconnected.
func NewManager(cfg ManagerConfig, opts ...Option) Manager {
	return newManager(cfg, opts...)
}

func newManager(cfg ManagerConfig, opts ...Option) *manager {
	def := DefaultManagerConfig()
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = def.HandshakeTimeout
	}
	if cfg.AckTimeout <= 0 {
		cfg.AckTimeout = def.AckTimeout
	}
	if cfg.ReconnectBaseDelay <= 0 {
		cfg.ReconnectBaseDelay = def.ReconnectBaseDelay
	}
	switch {
	case cfg.MaxReconnectAttempts == 0:
		cfg.MaxReconnectAttempts = def.MaxReconnectAttempts
	case cfg.MaxReconnectAttempts < 0:
		cfg.MaxReconnectAttempts = -1 // reconnection disabled
	}

	m := &manager{
		cfg:       cfg,
		logger:    slog.Default(),
		newClient: NewClient,
		afterFunc: func(d time.Duration, f func()) func() bool {
			return time.AfterFunc(d, f).Stop
		},
		now:       time.Now,
		events:    newEventRegistry(),
		observers: &handlerList[ConnectionHandler]{},
		pending:   make(map[string]chan ackResult),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.dispatch = newDispatcher(m.logger)

	return m
}

// Connect starts a new session.
func (m *manager) Connect(userID, token string) error {
	if strings.TrimSpace(token) == "" {
		return fmt.Errorf("%w: token is required", ErrInvalidArgument)
	}
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("%w: user id is required", ErrInvalidArgument)
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrAlreadyClosed
	}
	if m.state != StateDisconnected {
		m.logger.Info("superseding realtime session", "state", m.state)
	}
	stale := m.teardownLocked()

	m.gen++
	gen := m.gen
	creds := Credentials{UserID: userID, Token: token}
	m.creds = creds
	m.attempts = 0
	m.state = StateConnecting
	ctx, cancel := context.WithCancel(context.Background())
	m.sessCtx, m.cancel = ctx, cancel
	m.mu.Unlock()
	m.closeClient(stale)

	m.logger.Info("connecting realtime session", "creds", creds, "url", m.cfg.Client.URL)

	go m.dial(ctx, gen, creds)
	return nil
}

// Disconnect tears down the session.
func (m *manager) Disconnect() {
	m.mu.Lock()
	prev := m.state
	stale := m.teardownLocked()
	m.gen++
	m.state = StateDisconnected
	m.attempts = 0

	if prev != StateDisconnected {
		m.logger.Info("realtime session closed", "previous_state", prev)
		m.notifyLocked(ConnectionEvent{Status: StatusDisconnected, Reason: ReasonClientDisconnect})
	}
	m.mu.Unlock()

	m.closeClient(stale)
}

// Close disconnects and stops the dispatcher after it drains.
func (m *manager) Close() error {
	m.Disconnect()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	m.dispatch.close()
	return nil
}

// Subscribe registers an inbound event handler.
func (m *manager) Subscribe(event string, h EventHandler) func() {
	if h == nil {
		return func() {}
	}
	return m.events.add(event, h)
}

// ObserveConnection registers a connection observer.
func (m *manager) ObserveConnection(h ConnectionHandler) func() {
	if h == nil {
		return func() {}
	}
	return m.observers.add(h)
}

// State returns the current connection state.
func (m *manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Status returns a snapshot of the session.
func (m *manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Status{
		State:             m.state,
		Connected:         m.state == StateConnected,
		ReconnectAttempts: m.attempts,
		UserID:            m.creds.UserID,
	}
}

// Send issues send_message and waits for its acknowledgement, the ack
// timeout, ctx, or session teardown, whichever comes first.
func (m *manager) Send(ctx context.Context, conversationID, text string) (Ack, error) {
	m.mu.Lock()
	if m.state != StateConnected || m.client == nil {
		m.mu.Unlock()
		return Ack{}, ErrNotConnected
	}
	if conversationID == "" {
		m.mu.Unlock()
		return Ack{}, fmt.Errorf("%w: conversation id is required", ErrInvalidArgument)
	}

	ackID := uuid.NewString()
	ch := make(chan ackResult, 1)
	m.pending[ackID] = ch
	client := m.client
	m.mu.Unlock()

	payload := SendMessagePayload{
		ConversationID: conversationID,
		Text:           text,
		Timestamp:      m.now().UTC(),
	}
	if err := client.Emit(EventSendMessage, payload, ackID); err != nil {
		return m.settle(ackID, ch, &TransportError{Op: "send", Err: err})
	}

	timer := time.NewTimer(m.cfg.AckTimeout)
	defer timer.Stop()

	select {
	case res := <-ch:
		return res.ack, res.err
	case <-timer.C:
		m.logger.Warn("acknowledgement timed out",
			"conversation_id", conversationID,
			"ack_id", ackID,
			"timeout", m.cfg.AckTimeout,
		)
		return m.settle(ackID, ch, ErrAckTimeout)
	case <-ctx.Done():
		return m.settle(ackID, ch, ctx.Err())
	}
}

// settle fails a pending request with err unless another path already
// claimed it, in which case that result is returned.
func (m *manager) settle(ackID string, ch chan ackResult, err error) (Ack, error) {
	m.mu.Lock()
	_, ok := m.pending[ackID]
	delete(m.pending, ackID)
	m.mu.Unlock()

	if ok {
		return Ack{}, err
	}
	res := <-ch
	return res.ack, res.err
}

// JoinConversation asks the server to route a conversation's events here.
func (m *manager) JoinConversation(conversationID string) {
	m.emit(slog.LevelWarn, EventJoinConversation, ConversationPayload{ConversationID: conversationID})
}

// LeaveConversation stops routing a conversation's events here.
func (m *manager) LeaveConversation(conversationID string) {
	m.emit(slog.LevelDebug, EventLeaveConversation, ConversationPayload{ConversationID: conversationID})
}

// MarkRead reports a message as read.
func (m *manager) MarkRead(messageID string) {
	m.emit(slog.LevelDebug, EventMarkRead, MarkReadPayload{MessageID: messageID})
}

// SendTyping reports the local user's typing state.
func (m *manager) SendTyping(conversationID string, isTyping bool) {
	m.emit(slog.LevelDebug, EventTyping, TypingPayload{ConversationID: conversationID, IsTyping: isTyping})
}

// emit sends a fire-and-forget signal. When not connected it logs at
// notConnectedLevel and returns.
func (m *manager) emit(notConnectedLevel slog.Level, event string, payload any) {
	m.mu.Lock()
	client := m.client
	connected := m.state == StateConnected && client != nil
	m.mu.Unlock()

	if !connected {
		m.logger.Log(context.Background(), notConnectedLevel, "cannot emit: not connected", "event", event)
		return
	}
	if err := client.Emit(event, payload, ""); err != nil {
		m.logger.Warn("emit failed", "event", event, "error", err)
	}
}

// dial runs one connection attempt for generation gen.
func (m *manager) dial(ctx context.Context, gen uint64, creds Credentials) {
	client := m.newClient(m.cfg.Client, m.logger.With("gen", gen))

	hctx, cancel := context.WithTimeout(ctx, m.cfg.HandshakeTimeout)
	err := client.Connect(hctx, creds)
	cancel()

	m.mu.Lock()
	if gen != m.gen || m.state != StateConnecting {
		m.mu.Unlock()
		client.Close()
		m.logger.Debug("discarding superseded handshake", "gen", gen)
		return
	}

	if err != nil {
		m.logger.Warn("realtime connection error", "error", err, "attempt", m.attempts)
		m.notifyLocked(ConnectionEvent{
			Status:  StatusError,
			Err:     &TransportError{Op: "connect", Err: err},
			Attempt: m.attempts,
		})
		m.scheduleReconnectLocked(gen)
		m.mu.Unlock()
		client.Close()
		return
	}

	m.client = client
	m.state = StateConnected
	m.attempts = 0
	m.notifyLocked(ConnectionEvent{Status: StatusConnected})
	m.mu.Unlock()

	m.logger.Info("realtime session connected", "user_id", creds.UserID)

	m.readLoop(ctx, gen, client)
}

// readLoop consumes one client's frames until it fails or is replaced.
func (m *manager) readLoop(ctx context.Context, gen uint64, client Client) {
	for {
		select {
		case <-ctx.Done():
			return

		case err := <-client.Errors():
			reason := ReasonTransportClose
			if errors.Is(err, ErrStaleConnection) {
				reason = ReasonPingTimeout
			}
			// Frames read before the failure are still delivered.
			if !m.drainFrames(gen, client) {
				return
			}
			m.handleDisconnect(gen, client, reason, &TransportError{Op: "read", Err: err})
			return

		case frame, ok := <-client.Frames():
			if !ok {
				m.handleDisconnect(gen, client, ReasonTransportClose, nil)
				return
			}
			if !m.handleFrame(gen, client, frame) {
				return
			}
		}
	}
}

// drainFrames handles frames already buffered by the client. Returns false
// when one of them ended the session.
func (m *manager) drainFrames(gen uint64, client Client) bool {
	for {
		select {
		case frame, ok := <-client.Frames():
			if !ok {
				return true
			}
			if !m.handleFrame(gen, client, frame) {
				return false
			}
		default:
			return true
		}
	}
}

// handleFrame routes one inbound frame. Returns false when the session ended.
func (m *manager) handleFrame(gen uint64, client Client, f Frame) bool {
	switch f.Type {
	case FrameEvent:
		m.mu.Lock()
		if gen == m.gen && m.client == client {
			event, data := f.Event, f.Data
			m.dispatch.enqueue(func() { m.dispatchEvent(event, data) })
		}
		m.mu.Unlock()
		return true

	case FrameAck:
		m.resolveAck(gen, client, f)
		return true

	case FrameDisconnect:
		reason := f.Reason
		if reason == "" {
			reason = ReasonServerDisconnect
		}
		m.handleDisconnect(gen, client, reason, nil)
		return false

	default:
		m.logger.Debug("ignoring frame", "type", f.Type)
		return true
	}
}

// dispatchEvent runs on the dispatcher goroutine.
func (m *manager) dispatchEvent(event string, data json.RawMessage) {
	handlers := m.events.handlers(event)
	if len(handlers) == 0 {
		m.logger.Debug("no handlers for event", "event", event)
		return
	}
	for _, h := range handlers {
		if h.removed.Load() {
			continue
		}
		invokeIsolated(m.logger, "event", event, func() { h.fn(data) })
	}
}

// resolveAck settles the pending request an ack frame refers to.
func (m *manager) resolveAck(gen uint64, client Client, f Frame) {
	m.mu.Lock()
	if gen != m.gen || m.client != client {
		m.mu.Unlock()
		return
	}
	ch, ok := m.pending[f.AckID]
	delete(m.pending, f.AckID)
	m.mu.Unlock()

	if !ok {
		m.logger.Debug("ack for unknown request", "ack_id", f.AckID)
		return
	}

	var resp AckResponse
	if err := json.Unmarshal(f.Data, &resp); err != nil {
		ch <- ackResult{err: fmt.Errorf("decode ack: %w", err)}
		return
	}
	if !resp.Success {
		ch <- ackResult{err: &AckError{Message: resp.Error}}
		return
	}
	ch <- ackResult{ack: Ack{Data: resp.Data}}
}

// handleDisconnect reacts to the loss of an established connection.
func (m *manager) handleDisconnect(gen uint64, client Client, reason string, cause error) {
	m.mu.Lock()
	if gen != m.gen || m.client != client || m.state != StateConnected {
		m.mu.Unlock()
		return
	}
	stale := m.dropClientLocked()
	defer m.closeClient(stale)
	defer m.mu.Unlock()

	if reason == ReasonServerDisconnect {
		m.logger.Info("realtime session closed by server")
		if m.cancel != nil {
			m.cancel()
			m.cancel = nil
		}
		m.state = StateDisconnected
		m.attempts = 0
		m.notifyLocked(ConnectionEvent{Status: StatusDisconnected, Reason: reason, Err: cause})
		return
	}

	m.logger.Warn("realtime session disconnected", "reason", reason, "error", cause)
	m.notifyLocked(ConnectionEvent{Status: StatusDisconnected, Reason: reason, Err: cause})
	m.scheduleReconnectLocked(gen)
}

// scheduleReconnectLocked arms the backoff timer or gives up. Caller holds mu.
func (m *manager) scheduleReconnectLocked(gen uint64) {
	if m.attempts >= m.cfg.MaxReconnectAttempts {
		m.state = StateFailed
		m.logger.Error("max reconnection attempts reached", "attempts", m.attempts)
		m.notifyLocked(ConnectionEvent{
			Status:  StatusMaxReconnectAttempts,
			Err:     ErrMaxReconnectAttempts,
			Attempt: m.attempts,
		})
		return
	}

	m.attempts++
	delay := BackoffDelay(m.cfg.ReconnectBaseDelay, m.cfg.ReconnectMaxDelay, m.attempts)
	m.state = StateReconnecting

	m.logger.Info("scheduling reconnect", "attempt", m.attempts, "delay", delay)
	m.stopTimer = m.afterFunc(delay, func() { m.reconnect(gen) })
}

// reconnect fires when the backoff delay elapses.
func (m *manager) reconnect(gen uint64) {
	m.mu.Lock()
	if gen != m.gen || m.state != StateReconnecting {
		m.mu.Unlock()
		return
	}
	m.stopTimer = nil
	m.state = StateConnecting
	ctx, creds, attempt := m.sessCtx, m.creds, m.attempts
	m.mu.Unlock()

	m.logger.Info("attempting reconnection", "attempt", attempt)

	go m.dial(ctx, gen, creds)
}

// notifyLocked queues a connection notification. Queuing under mu keeps
// notifications in transition order.
func (m *manager) notifyLocked(ev ConnectionEvent) {
	m.dispatch.enqueue(func() {
		for _, h := range m.observers.snapshot() {
			if h.removed.Load() {
				continue
			}
			invokeIsolated(m.logger, "connection", string(ev.Status), func() { h.fn(ev) })
		}
	})
}

// teardownLocked cancels the timer and handshake and detaches the client,
// which the caller closes once mu is released.
func (m *manager) teardownLocked() Client {
	if m.stopTimer != nil {
		m.stopTimer()
		m.stopTimer = nil
	}
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	return m.dropClientLocked()
}

// dropClientLocked detaches the client and fails every pending request.
// Closing writes a close frame under the client's write lock, so it must
// happen outside mu; see closeClient.
func (m *manager) dropClientLocked() Client {
	client := m.client
	m.client = nil
	for id, ch := range m.pending {
		ch <- ackResult{err: ErrDisconnected}
		delete(m.pending, id)
	}
	return client
}

func (m *manager) closeClient(client Client) {
	if client == nil {
		return
	}
	if err := client.Close(); err != nil {
		m.logger.Debug("close client", "error", err)
	}
}
