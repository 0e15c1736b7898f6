package poller

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rickgao/marketplace-realtime/internal/api"
	"github.com/rickgao/marketplace-realtime/internal/model"
)

// HistorySource fetches a page of conversation history. *api.Client
// satisfies it.
type HistorySource interface {
	GetMessages(ctx context.Context, conversationID string, opts api.GetMessagesOptions) (*api.MessagesResponse, error)
}

// ConversationSource provides the conversations to poll.
type ConversationSource interface {
	Joined() []string
}

// MessageHandler receives fetched messages.
type MessageHandler interface {
	HandleMessage(msg model.Message)
}

// MessageHandlerFunc is a function adapter for MessageHandler.
type MessageHandlerFunc func(model.Message)

func (f MessageHandlerFunc) HandleMessage(m model.Message) {
	f(m)
}

// Config holds poller configuration.
type Config struct {
	Interval    time.Duration // Poll interval (default: 5m)
	Concurrency int           // Max concurrent requests (default: 4)
	Timeout     time.Duration // Per-request timeout (default: 10s)
	PageSize    int           // Most recent messages fetched per conversation (default: 50)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval:    5 * time.Minute,
		Concurrency: 4,
		Timeout:     10 * time.Second,
		PageSize:    50,
	}
}

// Stats counts poll activity.
type Stats struct {
	Polls    int64
	Fetched  int64
	Messages int64
	Errors   int64
}

// Poller periodically fetches recent history via the REST API.
type Poller struct {
	cfg           Config
	history       HistorySource
	conversations ConversationSource
	handler       MessageHandler
	logger        *slog.Logger

	trigger chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	polls, fetched, messages, errors atomic.Int64
}

// New creates a new Poller.
func New(cfg Config, history HistorySource, conversations ConversationSource, handler MessageHandler, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.PageSize < 1 {
		cfg.PageSize = def.PageSize
	}
	return &Poller{
		cfg:           cfg,
		history:       history,
		conversations: conversations,
		handler:       handler,
		logger:        logger.With("component", "backfill"),
		trigger:       make(chan struct{}, 1),
	}
}

// Start begins the polling loop.
func (p *Poller) Start(ctx context.Context) error {
	p.ctx, p.cancel = context.WithCancel(ctx)

	p.wg.Add(1)
	go p.run()

	p.logger.Info("backfill poller started",
		"interval", p.cfg.Interval,
		"concurrency", p.cfg.Concurrency,
		"page_size", p.cfg.PageSize,
	)

	return nil
}

// Stop gracefully shuts down the poller.
func (p *Poller) Stop(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("backfill poller stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Trigger requests a poll as soon as possible. Requests made while one is
// already pending are coalesced.
func (p *Poller) Trigger() {
	select {
	case p.trigger <- struct{}{}:
	default:
	}
}

// Stats returns current counters.
func (p *Poller) Stats() Stats {
	return Stats{
		Polls:    p.polls.Load(),
		Fetched:  p.fetched.Load(),
		Messages: p.messages.Load(),
		Errors:   p.errors.Load(),
	}
}

// run is the main polling loop.
func (p *Poller) run() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.pollAll()
		case <-p.trigger:
			p.pollAll()
		}
	}
}

// pollAll fetches history for all joined conversations concurrently.
func (p *Poller) pollAll() {
	start := time.Now()
	p.polls.Add(1)

	conversations := p.conversations.Joined()
	if len(conversations) == 0 {
		p.logger.Debug("no joined conversations to poll")
		return
	}

	// Semaphore for bounded concurrency.
	sem := make(chan struct{}, p.cfg.Concurrency)
	var wg sync.WaitGroup
	var fetched, failed atomic.Int64

	for _, id := range conversations {
		wg.Add(1)
		go func(conversationID string) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-p.ctx.Done():
				return
			}

			if err := p.pollConversation(conversationID); err != nil {
				p.logger.Warn("failed to poll conversation",
					"conversation_id", conversationID,
					"error", err,
				)
				failed.Add(1)
				return
			}

			fetched.Add(1)
		}(id)
	}

	wg.Wait()

	p.fetched.Add(fetched.Load())
	p.errors.Add(failed.Load())

	p.logger.Debug("poll cycle complete",
		"conversations", len(conversations),
		"fetched", fetched.Load(),
		"errors", failed.Load(),
		"duration", time.Since(start),
	)
}

// pollConversation fetches the latest page of one conversation.
func (p *Poller) pollConversation(conversationID string) error {
	ctx, cancel := context.WithTimeout(p.ctx, p.cfg.Timeout)
	defer cancel()

	resp, err := p.history.GetMessages(ctx, conversationID, api.GetMessagesOptions{
		Page:  1,
		Limit: p.cfg.PageSize,
	})
	if err != nil {
		return err
	}

	for _, m := range resp.Messages {
		if m.ConversationID == "" {
			m.ConversationID = model.ID(conversationID)
		}
		p.messages.Add(1)
		if p.handler != nil {
			p.handler.HandleMessage(m)
		}
	}

	return nil
}
