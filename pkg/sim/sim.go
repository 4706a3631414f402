// Package sim is a minimal discrete-event host for the clock layer.
//
// It owns the global simulation timeline and a priority queue of pending
// events. Events at the same global time run in the order they were
// scheduled. Every event handler runs to completion before the next one
// starts; a handler error aborts the run.
package sim

import (
	"container/heap"
	"context"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/daviddao/driftsim/pkg/simtime"
)

// ErrPastEvent is returned when an event is scheduled before the current
// global time.
var ErrPastEvent = errors.New("event scheduled in the past")

// Handle identifies a scheduled event for cancellation. The zero Handle is
// never issued.
type Handle uint64

// Scheduler is the host contract consumed by clocks and nodes.
type Scheduler interface {
	Now() simtime.Time
	ScheduleAt(at simtime.Time, name string, fn func() error) (Handle, error)
	Cancel(h Handle) bool
}

type event struct {
	at     simtime.Time
	seq    uint64
	name   string
	fn     func() error
	handle Handle
	index  int
}

type eventQueue []*event

func (q eventQueue) Len() int { return len(q) }

func (q eventQueue) Less(i, j int) bool {
	if q[i].at == q[j].at {
		return q[i].seq < q[j].seq
	}
	return q[i].at < q[j].at
}

func (q eventQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *eventQueue) Push(x any) {
	e := x.(*event)
	e.index = len(*q)
	*q = append(*q, e)
}

func (q *eventQueue) Pop() any {
	old := *q
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*q = old[:n-1]
	return e
}

// Sim is the default Scheduler implementation.
type Sim struct {
	now       simtime.Time
	seq       uint64
	q         eventQueue
	pending   map[Handle]*event
	processed uint64
	logger    *zap.Logger
}

var _ Scheduler = (*Sim)(nil)

// New creates a simulator positioned at global time zero.
func New(logger *zap.Logger) *Sim {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sim{
		pending: make(map[Handle]*event),
		logger:  logger,
	}
}

// Now returns the current global time.
func (s *Sim) Now() simtime.Time { return s.now }

// Processed returns the number of events executed so far.
func (s *Sim) Processed() uint64 { return s.processed }

// Pending returns the number of scheduled, not yet executed events.
func (s *Sim) Pending() int { return len(s.q) }

// ScheduleAt queues fn to run at global time at.
func (s *Sim) ScheduleAt(at simtime.Time, name string, fn func() error) (Handle, error) {
	if at < s.now {
		return 0, errors.Wrapf(ErrPastEvent, "%q at %s, now %s", name, at, s.now)
	}
	s.seq++
	e := &event{at: at, seq: s.seq, name: name, fn: fn, handle: Handle(s.seq)}
	heap.Push(&s.q, e)
	s.pending[e.handle] = e
	return e.handle, nil
}

// Cancel removes a pending event. It returns false if the event already ran
// or was cancelled before.
func (s *Sim) Cancel(h Handle) bool {
	e, ok := s.pending[h]
	if !ok {
		return false
	}
	heap.Remove(&s.q, e.index)
	delete(s.pending, h)
	return true
}

// IsScheduled reports whether h is still pending.
func (s *Sim) IsScheduled(h Handle) bool {
	_, ok := s.pending[h]
	return ok
}

// Step runs the earliest pending event. It returns false when the queue is
// empty.
func (s *Sim) Step() (bool, error) {
	if len(s.q) == 0 {
		return false, nil
	}
	e := heap.Pop(&s.q).(*event)
	delete(s.pending, e.handle)
	s.now = e.at
	s.processed++
	if err := e.fn(); err != nil {
		return true, errors.Wrapf(err, "event %q at %s", e.name, e.at)
	}
	return true, nil
}

// Run executes events until the queue is empty, ctx is cancelled, or a
// handler fails.
func (s *Sim) Run(ctx context.Context) error {
	return s.RunUntil(ctx, simtime.Max)
}

// RunUntil executes events scheduled at or before limit. When it returns
// without error the global time is advanced to limit (unless limit is
// simtime.Max), so later scheduling happens relative to the end of the run.
func (s *Sim) RunUntil(ctx context.Context, limit simtime.Time) error {
	for len(s.q) > 0 && s.q[0].at <= limit {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := s.Step(); err != nil {
			s.logger.Error("simulation aborted", zap.Error(err), zap.Stringer("now", s.now))
			return err
		}
	}
	if limit != simtime.Max && s.now < limit {
		s.now = limit
	}
	s.logger.Debug("run finished",
		zap.Stringer("now", s.now),
		zap.Uint64("processed", s.processed),
		zap.Int("pending", len(s.q)))
	return nil
}
