// Package dispatch fans a decoded message out to the generic listener, any
// typed listeners, and a bounded queue observed by the reply-wait
// primitive.
//
// Grounded on ZachMassia-GoGoGadget's callback-driven delivery, reworked
// around a mutex+condition-variable queue instead of a one-shot channel
// per outstanding query — a predicate has to scan and conditionally
// remove a queued message, which a channel can't express without an
// auxiliary structure anyway.
package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jeroenwalter/firmata/ferrors"
	"github.com/jeroenwalter/firmata/message"
)

// QueueCapacity bounds the undelivered-message queue.
const QueueCapacity = 100

// Predicate reports whether m is the message a waiter is looking for.
type Predicate func(message.Message) bool

// Listener receives every message of the variant it was registered for.
type Listener func(message.Message)

// Dispatcher fans out decoded messages and serves predicate-matched
// reply-waits. Safe for concurrent use.
type Dispatcher struct {
	mu   sync.Mutex
	cond *sync.Cond

	queue []queued

	generic []Listener
	typed   map[string][]Listener

	log        *logrus.Logger
	now        func() time.Time
	staleAfter time.Duration
}

type queued struct {
	msg message.Message
	at  time.Time
}

// New returns an empty Dispatcher. log defaults to logrus.StandardLogger()
// when nil.
func New(log *logrus.Logger) *Dispatcher {
	if log == nil {
		log = logrus.StandardLogger()
	}
	d := &Dispatcher{
		typed: make(map[string][]Listener),
		log:   log,
		now:   time.Now,
	}
	d.cond = sync.NewCond(&d.mu)
	return d
}

// typeKey names the dispatch group for a message variant, used to key the
// typed-listener registry (analog, digital-port, I2C reply).
func typeKey(m message.Message) string {
	switch m.(type) {
	case message.AnalogState:
		return "analog"
	case message.DigitalPortState:
		return "digital_port"
	case message.I2CReply:
		return "i2c_reply"
	default:
		return ""
	}
}

// OnMessage registers a generic listener invoked for every decoded message.
func (d *Dispatcher) OnMessage(l Listener) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.generic = append(d.generic, l)
}

// OnAnalog, OnDigitalPort and OnI2CReply register long-lived, typed
// listeners, observable-style. Each returns a cancel function that
// unregisters the listener.
func (d *Dispatcher) OnAnalog(l func(message.AnalogState)) (cancel func()) {
	return d.onTyped("analog", func(m message.Message) { l(m.(message.AnalogState)) })
}

func (d *Dispatcher) OnDigitalPort(l func(message.DigitalPortState)) (cancel func()) {
	return d.onTyped("digital_port", func(m message.Message) { l(m.(message.DigitalPortState)) })
}

func (d *Dispatcher) OnI2CReply(l func(message.I2CReply)) (cancel func()) {
	return d.onTyped("i2c_reply", func(m message.Message) { l(m.(message.I2CReply)) })
}

func (d *Dispatcher) onTyped(key string, l Listener) func() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.typed[key] = append(d.typed[key], l)
	idx := len(d.typed[key]) - 1
	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		if idx < len(d.typed[key]) {
			d.typed[key][idx] = nil
		}
	}
}

// Dispatch delivers m to the generic listener, any matching typed listeners,
// then appends it to the undelivered-message queue and wakes any waiters.
// Intended to be called synchronously from the framer's sink, on the
// receive goroutine.
func (d *Dispatcher) Dispatch(m message.Message) {
	d.mu.Lock()
	generic := append([]Listener(nil), d.generic...)
	key := typeKey(m)
	typed := append([]Listener(nil), d.typed[key]...)
	d.mu.Unlock()

	for _, l := range generic {
		if l != nil {
			l(m)
		}
	}
	for _, l := range typed {
		if l != nil {
			l(m)
		}
	}

	d.mu.Lock()
	d.enqueueLocked(m)
	d.cond.Broadcast()
	d.mu.Unlock()
}

// SetStaleWindow configures the age beyond which a queued message is
// considered stale for eviction purposes. Session sets this to its
// configured reply timeout.
func (d *Dispatcher) SetStaleWindow(age time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.staleAfter = age
}

// enqueueLocked must be called with d.mu held. When full, it evicts the
// oldest message whose timestamp is older than the stale window; if none
// are stale, it evicts the oldest unconditionally. The newest message is
// always preserved.
func (d *Dispatcher) enqueueLocked(m message.Message) {
	now := d.now()
	if len(d.queue) >= QueueCapacity {
		evicted := false
		if d.staleAfter > 0 {
			for i, q := range d.queue {
				if now.Sub(q.at) > d.staleAfter {
					d.queue = append(d.queue[:i], d.queue[i+1:]...)
					evicted = true
					break
				}
			}
		}
		if !evicted {
			d.log.WithField("component", "dispatch").Warn("undelivered-message queue full, dropping oldest message")
			d.queue = d.queue[1:]
		}
	}
	d.queue = append(d.queue, queued{msg: m, at: now})
}

// Wait blocks until a queued message matches pred, or until ctx is done. On
// match, the message is removed from the queue and returned. On context
// deadline/cancellation, returns a ferrors.Timeout-classed error.
func (d *Dispatcher) Wait(ctx context.Context, pred Predicate) (message.Message, error) {
	d.mu.Lock()

	if m, ok := d.takeMatchLocked(pred); ok {
		d.mu.Unlock()
		return m, nil
	}

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			d.mu.Lock()
			d.cond.Broadcast()
			d.mu.Unlock()
		case <-done:
		}
	}()
	defer close(done)

	for {
		select {
		case <-ctx.Done():
			d.mu.Unlock()
			return nil, ferrors.New(ferrors.Timeout, "dispatch.Wait", "deadline exceeded")
		default:
		}

		if m, ok := d.takeMatchLocked(pred); ok {
			d.mu.Unlock()
			return m, nil
		}

		d.cond.Wait()
	}
}

// takeMatchLocked scans the queue for the first predicate match, removes it
// and returns it. Must be called with d.mu held.
func (d *Dispatcher) takeMatchLocked(pred Predicate) (message.Message, bool) {
	for i, q := range d.queue {
		if pred(q.msg) {
			m := q.msg
			d.queue = append(d.queue[:i], d.queue[i+1:]...)
			return m, true
		}
	}
	return nil, false
}

// QueueLen reports the current queue depth, for tests and diagnostics.
func (d *Dispatcher) QueueLen() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}
