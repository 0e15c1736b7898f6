package connection

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

// handlerEntry is one registration. Removal is by entry identity, so the
// same function registered twice yields two independent registrations.
type handlerEntry[H any] struct {
	fn      H
	removed atomic.Bool
}

// handlerList is an ordered list of registrations.
type handlerList[H any] struct {
	mu      sync.RWMutex
	entries []*handlerEntry[H]
}

// add appends fn and returns a func removing exactly this registration.
func (l *handlerList[H]) add(fn H) func() {
	e := &handlerEntry[H]{fn: fn}

	l.mu.Lock()
	l.entries = append(l.entries, e)
	l.mu.Unlock()

	return func() { l.remove(e) }
}

func (l *handlerList[H]) remove(e *handlerEntry[H]) {
	// Mark first: a dispatch already holding a snapshot must skip it.
	e.removed.Store(true)

	l.mu.Lock()
	defer l.mu.Unlock()
	for i, cur := range l.entries {
		if cur == e {
			l.entries = append(l.entries[:i:i], l.entries[i+1:]...)
			return
		}
	}
}

func (l *handlerList[H]) snapshot() []*handlerEntry[H] {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*handlerEntry[H], len(l.entries))
	copy(out, l.entries)
	return out
}

// eventRegistry maps event names to handler lists.
type eventRegistry struct {
	mu     sync.Mutex
	events map[string]*handlerList[EventHandler]
}

func newEventRegistry() *eventRegistry {
	return &eventRegistry{events: make(map[string]*handlerList[EventHandler])}
}

func (r *eventRegistry) add(event string, h EventHandler) func() {
	r.mu.Lock()
	l, ok := r.events[event]
	if !ok {
		l = &handlerList[EventHandler]{}
		r.events[event] = l
	}
	r.mu.Unlock()

	return l.add(h)
}

func (r *eventRegistry) handlers(event string) []*handlerEntry[EventHandler] {
	r.mu.Lock()
	l, ok := r.events[event]
	r.mu.Unlock()
	if !ok {
		return nil
	}
	return l.snapshot()
}

// invokeIsolated runs fn, recovering and logging a panic so the remaining
// handlers still run.
func invokeIsolated(logger *slog.Logger, kind, name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("handler panicked", "kind", kind, "event", name, "panic", r)
		}
	}()
	fn()
}
