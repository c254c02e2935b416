package waiter

import (
	"context"
	"sync"

	"github.com/CSCC69/userprog/log"
)

type EventType uint64

// Waiter delivers events to registered listeners. Events are latched: once
// a mask has been notified, listeners registered later observe it
// immediately, so a notify that races ahead of a wait is never lost.
type Waiter struct {
	mu sync.RWMutex

	fired   EventType
	waiters map[*Event]struct{}
}

type Event struct {
	Mask     EventType
	Context  interface{}
	Callback func(e *Event)
}

func (w *Waiter) Register(e *Event) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.waiters == nil {
		w.waiters = make(map[*Event]struct{})
	}

	w.waiters[e] = struct{}{}

	if e.Mask&w.fired != 0 {
		e.Callback(e)
	}
}

func triggerChan(e *Event) {
	c := e.Context.(chan struct{})

	select {
	case c <- struct{}{}:
	default:
	}
}

func (w *Waiter) RegisterChannel(mask EventType, c chan struct{}) *Event {
	e := &Event{
		Callback: triggerChan,
		Context:  c,
		Mask:     mask,
	}

	w.Register(e)

	return e
}

func (w *Waiter) Unregister(e *Event) {
	w.mu.Lock()
	defer w.mu.Unlock()

	delete(w.waiters, e)
}

func (w *Waiter) Notify(mask EventType) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.fired |= mask

	log.L.Trace("waiters-notify", "count", len(w.waiters), "mask", mask)

	for e := range w.waiters {
		if mask&e.Mask != 0 {
			e.Callback(e)
		}
	}
}

// Fired reports whether any event in mask has been notified.
func (w *Waiter) Fired(mask EventType) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()

	return w.fired&mask != 0
}

// Wait blocks until an event in mask has been notified or ctx is done.
func (w *Waiter) Wait(ctx context.Context, mask EventType) error {
	c := make(chan struct{}, 1)
	ev := w.RegisterChannel(mask, c)
	defer w.Unregister(ev)

	select {
	case <-c:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
