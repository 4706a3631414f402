// Package signal is a small synchronous publish/subscribe bus.
//
// It stands in for the host simulator's signal mechanism. Components
// subscribe a Listener to a Topic; Emit delivers the value to every listener
// registered at the time of the call, in subscription order, inside the
// caller's event handler. Listeners may subscribe or unsubscribe (themselves
// or others) while an emission is in progress; such changes take effect for
// the next Emit.
//
// Not goroutine-safe: the bus lives inside the single-threaded event loop.
package signal

import (
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/daviddao/driftsim/pkg/simtime"
)

// Topic names a signal.
type Topic string

// WindowUpdated is emitted by windowed clocks after their resolvable horizon
// moved forward. The value is the new horizon (a local timestamp).
const WindowUpdated Topic = "clock window updated"

// Listener receives emitted values. Listeners are identified by equality,
// so they should be pointers.
type Listener interface {
	ReceiveSignal(topic Topic, value simtime.Time) error
}

// ListenerFunc adapts a function to the Listener interface. Function values
// are not comparable, so a ListenerFunc must be wrapped in a pointer
// (&ListenerFunc{...}) to be unsubscribed again.
type ListenerFunc func(topic Topic, value simtime.Time) error

// ReceiveSignal calls f.
func (f *ListenerFunc) ReceiveSignal(topic Topic, value simtime.Time) error {
	return (*f)(topic, value)
}

// Notifier is the subscription half of a bus. Consumers that only need to
// (un)subscribe accept a Notifier so tests can count calls.
type Notifier interface {
	Subscribe(topic Topic, l Listener)
	Unsubscribe(topic Topic, l Listener)
}

// Emitter is the publishing half of a bus.
type Emitter interface {
	Emit(topic Topic, value simtime.Time) error
}

// Bus implements Notifier and Emitter.
type Bus struct {
	name      string
	listeners map[Topic][]Listener
	logger    *zap.Logger
}

// NewBus returns an empty bus. name identifies the owning component in logs.
func NewBus(name string, logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{
		name:      name,
		listeners: make(map[Topic][]Listener),
		logger:    logger.With(zap.String("bus", name)),
	}
}

// Subscribe registers l for topic. Subscribing an already registered
// listener is a no-op.
func (b *Bus) Subscribe(topic Topic, l Listener) {
	for _, cur := range b.listeners[topic] {
		if cur == l {
			return
		}
	}
	b.listeners[topic] = append(b.listeners[topic], l)
	b.logger.Debug("subscribe", zap.String("topic", string(topic)))
}

// Unsubscribe removes l from topic. Unknown listeners are ignored.
func (b *Bus) Unsubscribe(topic Topic, l Listener) {
	cur := b.listeners[topic]
	for i := range cur {
		if cur[i] == l {
			// Copy so that snapshots held by an in-flight Emit stay intact.
			next := make([]Listener, 0, len(cur)-1)
			next = append(next, cur[:i]...)
			next = append(next, cur[i+1:]...)
			if len(next) == 0 {
				delete(b.listeners, topic)
			} else {
				b.listeners[topic] = next
			}
			b.logger.Debug("unsubscribe", zap.String("topic", string(topic)))
			return
		}
	}
}

// Listeners returns the number of listeners registered for topic.
func (b *Bus) Listeners(topic Topic) int {
	return len(b.listeners[topic])
}

// Emit delivers value to the listeners of topic. The first listener error
// stops delivery and is returned.
func (b *Bus) Emit(topic Topic, value simtime.Time) error {
	snapshot := b.listeners[topic]
	for _, l := range snapshot {
		if err := l.ReceiveSignal(topic, value); err != nil {
			return errors.Wrapf(err, "signal %q on %s", topic, b.name)
		}
	}
	return nil
}
