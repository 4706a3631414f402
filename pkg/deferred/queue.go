// Package deferred holds scheduled operations whose local timestamp cannot
// be translated to global time yet.
//
// A Queue keeps its entries ordered by local timestamp, ties broken by
// insertion order. While it holds at least one entry it is subscribed to
// signal.WindowUpdated; on every notification it translates entries from the
// front and hands each resolved one to its delivery function, stopping at
// the first entry that is still beyond the clock's horizon.
//
// Invariant: Subscribed() == (Len() > 0) after every public call.
package deferred

import (
	"github.com/cockroachdb/errors"
	"github.com/google/btree"
	"go.uber.org/zap"

	"github.com/daviddao/driftsim/pkg/clock"
	"github.com/daviddao/driftsim/pkg/signal"
	"github.com/daviddao/driftsim/pkg/simtime"
)

const btreeDegree = 8

// Entry is a pending operation. Callers keep the pointer to cancel it.
type Entry[P any] struct {
	Payload P
	Local   simtime.Time
	seq     uint64
	queued  bool
}

// Less orders entries by (Local, insertion sequence).
func (e *Entry[P]) Less(than btree.Item) bool {
	o := than.(*Entry[P])
	if e.Local != o.Local {
		return e.Local < o.Local
	}
	return e.seq < o.seq
}

// Queued reports whether the entry is still waiting in its queue.
func (e *Entry[P]) Queued() bool { return e.queued }

// DeliverFunc completes a resolved operation at global time global.
type DeliverFunc[P any] func(payload P, global simtime.Time) error

// Queue is a deferred-operation queue bound to one clock.
type Queue[P any] struct {
	name       string
	clock      clock.Clock
	notifier   signal.Notifier
	deliver    DeliverFunc[P]
	tree       *btree.BTree
	seq        uint64
	subscribed bool
	delivered  uint64
	logger     *zap.Logger
}

var _ signal.Listener = (*Queue[int])(nil)

// New returns an empty, unsubscribed queue.
func New[P any](name string, c clock.Clock, n signal.Notifier, deliver DeliverFunc[P], logger *zap.Logger) *Queue[P] {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue[P]{
		name:     name,
		clock:    c,
		notifier: n,
		deliver:  deliver,
		tree:     btree.New(btreeDegree),
		logger:   logger.With(zap.String("queue", name)),
	}
}

// Add inserts payload at local timestamp local and returns its entry.
func (q *Queue[P]) Add(local simtime.Time, payload P) *Entry[P] {
	q.seq++
	e := &Entry[P]{Payload: payload, Local: local, seq: q.seq, queued: true}
	q.tree.ReplaceOrInsert(e)
	q.sync()
	return e
}

// Remove cancels e. It returns false if e is not waiting in this queue.
func (q *Queue[P]) Remove(e *Entry[P]) bool {
	if e == nil || !e.queued {
		return false
	}
	if it := q.tree.Get(e); it == nil || it.(*Entry[P]) != e {
		return false
	}
	q.tree.Delete(e)
	e.queued = false
	q.sync()
	return true
}

// Len returns the number of waiting entries.
func (q *Queue[P]) Len() int { return q.tree.Len() }

// Front returns the entry with the earliest local timestamp.
func (q *Queue[P]) Front() (*Entry[P], bool) {
	it := q.tree.Min()
	if it == nil {
		return nil, false
	}
	return it.(*Entry[P]), true
}

// Entries returns the waiting entries in delivery order.
func (q *Queue[P]) Entries() []*Entry[P] {
	out := make([]*Entry[P], 0, q.tree.Len())
	q.tree.Ascend(func(it btree.Item) bool {
		out = append(out, it.(*Entry[P]))
		return true
	})
	return out
}

// Subscribed reports whether the queue listens for window updates.
func (q *Queue[P]) Subscribed() bool { return q.subscribed }

// Delivered returns the number of entries flushed so far.
func (q *Queue[P]) Delivered() uint64 { return q.delivered }

// ReceiveSignal flushes resolvable entries after a window update.
func (q *Queue[P]) ReceiveSignal(topic signal.Topic, horizon simtime.Time) error {
	if topic != signal.WindowUpdated {
		return errors.AssertionFailedf("queue %s: unexpected signal %q", q.name, topic)
	}
	if q.tree.Len() == 0 {
		return errors.AssertionFailedf("queue %s: window update while empty", q.name)
	}
	defer q.sync()

	n := 0
	for q.tree.Len() > 0 {
		e := q.tree.Min().(*Entry[P])
		global, ok, err := q.clock.ToGlobal(e.Local)
		if err != nil {
			return errors.Wrapf(err, "queue %s: translate %s", q.name, e.Local)
		}
		if !ok {
			break
		}
		q.tree.DeleteMin()
		e.queued = false
		q.delivered++
		n++
		if err := q.deliver(e.Payload, global); err != nil {
			return errors.Wrapf(err, "queue %s: deliver %s", q.name, e.Local)
		}
	}
	q.logger.Debug("flushed",
		zap.Stringer("horizon", horizon),
		zap.Int("delivered", n),
		zap.Int("remaining", q.tree.Len()))
	return nil
}

func (q *Queue[P]) sync() {
	switch want := q.tree.Len() > 0; {
	case want && !q.subscribed:
		q.notifier.Subscribe(signal.WindowUpdated, q)
		q.subscribed = true
		q.logger.Debug("subscribed")
	case !want && q.subscribed:
		q.notifier.Unsubscribe(signal.WindowUpdated, q)
		q.subscribed = false
		q.logger.Debug("unsubscribed")
	}
}
