// Package node schedules a node's work in its own local time.
//
// A Decorator sits between an application and the host scheduler. The
// application asks for things to happen at local timestamps; the Decorator
// translates them through the node's clock and schedules them in global
// time. Requests the clock cannot translate yet wait in deferred queues and
// are released when the clock's window moves forward.
package node

import (
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/daviddao/driftsim/pkg/clock"
	"github.com/daviddao/driftsim/pkg/deferred"
	"github.com/daviddao/driftsim/pkg/signal"
	"github.com/daviddao/driftsim/pkg/sim"
	"github.com/daviddao/driftsim/pkg/simtime"
)

// Message is a self timer. A message is owned by at most one of two places
// at a time: a deferred queue entry while its local timestamp is beyond the
// clock's horizon, or a host scheduler event once translated.
type Message struct {
	Name string
	// Local is the local timestamp the message was last scheduled for.
	Local simtime.Time

	entry  *deferred.Entry[*Message]
	handle sim.Handle
}

// Scheduled reports whether the message is waiting for delivery.
func (m *Message) Scheduled() bool { return m.entry != nil || m.handle != 0 }

// Deferred reports whether the message waits for the clock's window.
func (m *Message) Deferred() bool { return m.entry != nil }

// Link transmits frames. delay is global time from now until transmission.
type Link interface {
	Send(frame Frame, delay simtime.Time) error
}

// TimerHandler receives self timers when they fire.
type TimerHandler interface {
	HandleTimer(msg *Message) error
}

// TimerFunc adapts a function to TimerHandler.
type TimerFunc func(msg *Message) error

func (f TimerFunc) HandleTimer(msg *Message) error { return f(msg) }

type outbound struct {
	frame Frame
	link  Link
}

// Decorator is the scheduling façade of a node.
type Decorator struct {
	name   string
	clock  clock.Clock
	host   sim.Scheduler
	timers TimerHandler
	self   *deferred.Queue[*Message]
	out    *deferred.Queue[outbound]
	logger *zap.Logger
}

// NewDecorator binds a node's clock to the host scheduler. n is the
// notifier on which the clock announces window updates.
func NewDecorator(name string, c clock.Clock, host sim.Scheduler, n signal.Notifier, timers TimerHandler, logger *zap.Logger) *Decorator {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Decorator{
		name:   name,
		clock:  c,
		host:   host,
		timers: timers,
		logger: logger.With(zap.String("node", name)),
	}
	d.self = deferred.New[*Message](name+"/self", c, n, d.deliverTimer, d.logger)
	d.out = deferred.New[outbound](name+"/out", c, n, d.deliverFrame, d.logger)
	return d
}

// Name returns the node name.
func (d *Decorator) Name() string { return d.name }

// Clock returns the node's clock.
func (d *Decorator) Clock() clock.Clock { return d.clock }

// ClockTime returns the node's current local reading.
func (d *Decorator) ClockTime() simtime.Time { return d.clock.Now() }

// Pending returns the number of deferred self timers and frames.
func (d *Decorator) Pending() (timers, frames int) {
	return d.self.Len(), d.out.Len()
}

// ScheduleAt arranges for msg to fire when the local clock reads local.
// Timestamps before the current reading are rejected, never deferred.
func (d *Decorator) ScheduleAt(local simtime.Time, msg *Message) error {
	if msg.Scheduled() {
		return errors.Newf("node %s: message %q already scheduled", d.name, msg.Name)
	}
	if err := d.checkLocal(local); err != nil {
		return errors.Wrapf(err, "schedule %q", msg.Name)
	}
	msg.Local = local
	global, ok, err := d.clock.ToGlobal(local)
	if err != nil {
		return errors.Wrapf(err, "node %s: schedule %q", d.name, msg.Name)
	}
	if !ok {
		msg.entry = d.self.Add(local, msg)
		d.logger.Debug("timer deferred", zap.String("msg", msg.Name), zap.Stringer("local", local))
		return nil
	}
	return d.scheduleTimer(msg, global)
}

// SendDelayed transmits frame over out when the local clock reads
// ClockTime()+delay.
func (d *Decorator) SendDelayed(frame Frame, delay simtime.Time, out Link) error {
	if delay < 0 {
		return clock.TemporalOrderf("node %s: negative send delay %s", d.name, delay)
	}
	local := d.ClockTime() + delay
	global, ok, err := d.clock.ToGlobal(local)
	if err != nil {
		return errors.Wrapf(err, "node %s: send %s", d.name, frame)
	}
	if !ok {
		d.out.Add(local, outbound{frame: frame, link: out})
		d.logger.Debug("frame deferred", zap.Stringer("frame", frame), zap.Stringer("local", local))
		return nil
	}
	return d.send(outbound{frame: frame, link: out}, global)
}

// Cancel withdraws msg from whichever place currently owns it. It returns
// false if msg was not scheduled.
func (d *Decorator) Cancel(msg *Message) bool {
	switch {
	case msg.entry != nil:
		ok := d.self.Remove(msg.entry)
		msg.entry = nil
		return ok
	case msg.handle != 0:
		ok := d.host.Cancel(msg.handle)
		msg.handle = 0
		return ok
	}
	return false
}

func (d *Decorator) checkLocal(local simtime.Time) error {
	if local < 0 {
		return clock.TemporalOrderf("node %s: negative local timestamp %s", d.name, local)
	}
	if now := d.ClockTime(); local < now {
		return clock.TemporalOrderf("node %s: local %s before clock time %s", d.name, local, now)
	}
	return nil
}

// notBefore keeps translated times from landing a picosecond in the past
// through rounding.
func (d *Decorator) notBefore(global simtime.Time) simtime.Time {
	if now := d.host.Now(); global < now {
		return now
	}
	return global
}

func (d *Decorator) scheduleTimer(msg *Message, global simtime.Time) error {
	h, err := d.host.ScheduleAt(d.notBefore(global), d.name+" timer "+msg.Name, func() error {
		msg.handle = 0
		return d.timers.HandleTimer(msg)
	})
	if err != nil {
		return err
	}
	msg.handle = h
	return nil
}

func (d *Decorator) deliverTimer(msg *Message, global simtime.Time) error {
	msg.entry = nil
	return d.scheduleTimer(msg, global)
}

func (d *Decorator) send(o outbound, global simtime.Time) error {
	return o.link.Send(o.frame, d.notBefore(global)-d.host.Now())
}

func (d *Decorator) deliverFrame(o outbound, global simtime.Time) error {
	return d.send(o, global)
}
