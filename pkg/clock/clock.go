// Package clock models node-local hardware clocks that drift away from the
// simulator's ideal global time.
//
// Every clock answers two questions:
//
//	Now:      what does the local clock read at the current global time?
//	ToGlobal: at which global time will the local clock read L?
//
// ToGlobal has three outcomes. A resolved translation returns (t, true,
// nil). A translation the clock cannot compute yet, because L lies beyond
// the part of the time function it has generated so far, returns (0, false,
// nil); the caller defers the request and retries after the clock announces
// a window update (see package deferred). A non-nil error is fatal.
//
// Local readings and global times share the simtime.Time type but belong to
// different frames. Only compare values taken from the same clock.
//
// Note: clocks are not goroutine-safe. They live inside the single-threaded
// event loop of package sim.
package clock

import "github.com/daviddao/driftsim/pkg/simtime"

// Clock is the contract every clock model implements.
type Clock interface {
	// Now returns the local reading at the current global time.
	Now() simtime.Time
	// ToGlobal translates a local timestamp to global time.
	ToGlobal(local simtime.Time) (global simtime.Time, ok bool, err error)
}

// WindowedClock is a clock that can only translate timestamps below a
// moving horizon. It announces horizon advances on signal.WindowUpdated.
type WindowedClock interface {
	Clock
	Horizon() simtime.Time
}

// Timeline reports the current global time. *sim.Sim implements it.
type Timeline interface {
	Now() simtime.Time
}

// Perfect is a clock without drift: local and global time coincide.
type Perfect struct {
	host Timeline
}

var _ Clock = (*Perfect)(nil)

// NewPerfect returns a perfect clock following host.
func NewPerfect(host Timeline) *Perfect {
	return &Perfect{host: host}
}

func (p *Perfect) Now() simtime.Time { return p.host.Now() }

func (p *Perfect) ToGlobal(local simtime.Time) (simtime.Time, bool, error) {
	return local, true, nil
}
