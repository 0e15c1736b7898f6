package archive

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/rickgao/marketplace-realtime/internal/model"
	"github.com/rickgao/marketplace-realtime/internal/queue"
)

const insertMessage = `
	INSERT INTO chat_messages (message_id, conversation_id, sender_id, body, status, sent_at, received_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (message_id) DO NOTHING
`

// DB is the subset of *pgxpool.Pool the archive needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Config holds writer batching settings.
type Config struct {
	BatchSize     int
	FlushInterval time.Duration
	BufferSize    int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:     500,
		FlushInterval: time.Second,
		BufferSize:    10000,
	}
}

// Metrics tracks writer activity.
type Metrics struct {
	Inserts   int64
	Conflicts int64
	Errors    int64
	Flushes   int64
	Dropped   int64 // messages without an id
}

// messageRow is one chat_messages row.
type messageRow struct {
	MessageID      string
	ConversationID string
	SenderID       string
	Body           string
	Status         string
	SentAt         time.Time
	ReceivedAt     time.Time
}

// Writer consumes messages from its input queue and writes them to chat_messages.
type Writer struct {
	cfg    Config
	logger *slog.Logger

	input *queue.Queue[messageRow]
	db    DB

	// Batching
	batch       []messageRow
	batchMu     sync.Mutex
	flushTicker *time.Ticker

	// Lifecycle
	ctx      context.Context
	cancel   context.CancelFunc
	consumer sync.WaitGroup
	flusher  sync.WaitGroup

	now func() time.Time

	metrics Metrics
}

// NewWriter creates a new Writer.
func NewWriter(cfg Config, db DB, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.BatchSize < 1 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = def.FlushInterval
	}
	if cfg.BufferSize < 1 {
		cfg.BufferSize = def.BufferSize
	}
	return &Writer{
		cfg:    cfg,
		logger: logger.With("component", "archive"),
		input:  queue.New[messageRow](cfg.BufferSize),
		db:     db,
		batch:  make([]messageRow, 0, cfg.BatchSize),
		now:    time.Now,
	}
}

// Enqueue hands a message to the writer without blocking. Messages without
// an id cannot be deduplicated and are dropped. Returns false once the
// writer is stopped or the message was dropped.
func (w *Writer) Enqueue(msg model.Message) bool {
	if msg.ID == "" {
		w.batchMu.Lock()
		w.metrics.Dropped++
		w.batchMu.Unlock()
		w.logger.Debug("dropping message without id", "conversation_id", msg.ConversationID)
		return false
	}
	return w.input.Push(w.transform(msg))
}

// Start begins consuming messages and writing to the database.
func (w *Writer) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.flushTicker = time.NewTicker(w.cfg.FlushInterval)

	w.consumer.Add(1)
	go w.consumeLoop()

	w.flusher.Add(1)
	go w.flushLoop()

	w.logger.Info("archive writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop closes the input, drains what was queued and flushes the final batch.
func (w *Writer) Stop(ctx context.Context) error {
	w.logger.Info("stopping archive writer")

	w.input.Close()

	done := make(chan struct{})
	go func() {
		w.consumer.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		w.logger.Warn("archive writer drain timed out", "pending", w.input.Len())
	}

	if w.cancel != nil {
		w.cancel()
	}
	if w.flushTicker != nil {
		w.flushTicker.Stop()
	}
	w.flusher.Wait()

	w.flush(ctx)

	w.logger.Info("archive writer stopped", "stats", w.Stats())
	return nil
}

// Stats returns current metrics.
func (w *Writer) Stats() Metrics {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	return w.metrics
}

// consumeLoop pops rows until the input is closed and empty.
func (w *Writer) consumeLoop() {
	defer w.consumer.Done()

	for {
		row, ok := w.input.Pop()
		if !ok {
			return
		}
		w.handleRow(row)
	}
}

// flushLoop periodically flushes the batch.
func (w *Writer) flushLoop() {
	defer w.flusher.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-w.flushTicker.C:
			w.flush(w.ctx)
		}
	}
}

// handleRow adds a row to the batch and flushes when it is full.
func (w *Writer) handleRow(row messageRow) {
	w.batchMu.Lock()
	w.batch = append(w.batch, row)
	shouldFlush := len(w.batch) >= w.cfg.BatchSize
	w.batchMu.Unlock()

	if shouldFlush {
		w.flush(w.ctx)
	}
}

// transform converts a message to a row. A missing timestamp falls back to
// the receive time.
func (w *Writer) transform(msg model.Message) messageRow {
	receivedAt := w.now().UTC()
	sentAt := msg.Timestamp.UTC()
	if msg.Timestamp.IsZero() {
		sentAt = receivedAt
	}
	status := msg.Status
	if status == "" {
		status = model.StatusSent
	}
	return messageRow{
		MessageID:      msg.ID.String(),
		ConversationID: msg.ConversationID.String(),
		SenderID:       msg.SenderID.String(),
		Body:           msg.Text,
		Status:         string(status),
		SentAt:         sentAt,
		ReceivedAt:     receivedAt,
	}
}

// flush writes the current batch to the database.
func (w *Writer) flush(ctx context.Context) {
	w.batchMu.Lock()
	if len(w.batch) == 0 {
		w.batchMu.Unlock()
		return
	}

	// Take ownership of current batch
	batch := w.batch
	w.batch = make([]messageRow, 0, w.cfg.BatchSize)
	w.batchMu.Unlock()

	start := time.Now()

	conflicts, err := w.batchInsert(ctx, batch)
	if err != nil {
		w.logger.Error("batch insert failed", "error", err, "count", len(batch))
		w.batchMu.Lock()
		w.metrics.Errors++
		w.batchMu.Unlock()
		return
	}

	w.batchMu.Lock()
	w.metrics.Inserts += int64(len(batch) - conflicts)
	w.metrics.Conflicts += int64(conflicts)
	w.metrics.Flushes++
	w.batchMu.Unlock()

	w.logger.Debug("flushed messages",
		"count", len(batch),
		"conflicts", conflicts,
		"duration", time.Since(start),
	)
}

// batchInsert inserts rows using pgx.Batch with ON CONFLICT DO NOTHING.
func (w *Writer) batchInsert(ctx context.Context, rows []messageRow) (conflicts int, err error) {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(insertMessage,
			r.MessageID, r.ConversationID, r.SenderID, r.Body, r.Status, r.SentAt, r.ReceivedAt)
	}

	results := w.db.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		ct, err := results.Exec()
		if err != nil {
			return 0, err
		}
		if ct.RowsAffected() == 0 {
			conflicts++
		}
	}

	return conflicts, nil
}
