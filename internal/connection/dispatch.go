package connection

import (
	"log/slog"

	"github.com/rickgao/marketplace-realtime/internal/queue"
)

// dispatcher runs handler invocations one at a time, in enqueue order, on a
// dedicated goroutine. Enqueue never blocks, so it is safe under the
// manager's lock.
type dispatcher struct {
	queue  *queue.Queue[func()]
	logger *slog.Logger
	done   chan struct{}
}

func newDispatcher(logger *slog.Logger) *dispatcher {
	d := &dispatcher{
		queue:  queue.New[func()](64),
		logger: logger,
		done:   make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *dispatcher) enqueue(fn func()) {
	if !d.queue.Push(fn) {
		d.logger.Debug("dispatcher closed, dropping notification")
	}
}

func (d *dispatcher) run() {
	defer close(d.done)
	for {
		fn, ok := d.queue.Pop()
		if !ok {
			return
		}
		fn()
	}
}

// close drains queued notifications and stops the goroutine. Must not be
// called from a handler.
func (d *dispatcher) close() {
	d.queue.Close()
	<-d.done
}
