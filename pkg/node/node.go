package node

import (
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/daviddao/driftsim/pkg/clock"
	"github.com/daviddao/driftsim/pkg/model"
	"github.com/daviddao/driftsim/pkg/signal"
	"github.com/daviddao/driftsim/pkg/sim"
	"github.com/daviddao/driftsim/pkg/simtime"
)

// Journal records frame events.
type Journal interface {
	RecordDelivery(d model.Delivery) error
}

// MemoryJournal keeps deliveries in memory.
type MemoryJournal struct {
	Deliveries []model.Delivery
}

func (j *MemoryJournal) RecordDelivery(d model.Delivery) error {
	j.Deliveries = append(j.Deliveries, d)
	return nil
}

// App is the application logic running on a node.
type App interface {
	Start(n *Node) error
	HandleTimer(n *Node, msg *Message) error
	HandleFrame(n *Node, f Frame, local simtime.Time) error
}

// Node is a radio node: a clock, a Decorator scheduling in that clock's
// time, a medium link and an application.
type Node struct {
	*Decorator

	host    sim.Scheduler
	link    Link
	app     App
	journal Journal
	logger  *zap.Logger
}

var _ Station = (*Node)(nil)

// New creates a node. n is the notifier of c's window updates.
func New(name string, c clock.Clock, host sim.Scheduler, n signal.Notifier, logger *zap.Logger) *Node {
	if logger == nil {
		logger = zap.NewNop()
	}
	nd := &Node{host: host, logger: logger.With(zap.String("node", name))}
	nd.Decorator = NewDecorator(name, c, host, n, TimerFunc(nd.handleTimer), logger)
	return nd
}

// Join attaches the node to a medium.
func (n *Node) Join(m *Medium) error {
	link, err := m.Attach(n.Name(), n)
	if err != nil {
		return err
	}
	n.link = link
	return nil
}

// SetApp installs the application.
func (n *Node) SetApp(app App) { n.app = app }

// SetJournal installs the delivery journal.
func (n *Node) SetJournal(j Journal) { n.journal = j }

// Start starts the application, if any.
func (n *Node) Start() error {
	if n.app == nil {
		return nil
	}
	return n.app.Start(n)
}

// Send transmits f once the local clock has advanced by delay.
func (n *Node) Send(f Frame, delay simtime.Time) error {
	if n.link == nil {
		return errors.Newf("node %s: not attached to a medium", n.Name())
	}
	f.Src = n.Name()
	return n.SendDelayed(f, delay, n.link)
}

func (n *Node) handleTimer(msg *Message) error {
	if n.app == nil {
		return errors.AssertionFailedf("node %s: timer %q without application", n.Name(), msg.Name)
	}
	return n.app.HandleTimer(n, msg)
}

// Transmitted journals the local transmission timestamp.
func (n *Node) Transmitted(f Frame) error {
	return n.record(f, model.DirTX, f.Dst)
}

// Received journals the local reception timestamp and hands the frame to
// the application.
func (n *Node) Received(f Frame) error {
	local := n.ClockTime()
	if err := n.record(f, model.DirRX, f.Src); err != nil {
		return err
	}
	n.logger.Debug("frame", zap.Stringer("frame", f), zap.Stringer("local", local))
	if n.app == nil {
		return nil
	}
	return n.app.HandleFrame(n, f, local)
}

func (n *Node) record(f Frame, dir model.Direction, peer string) error {
	if n.journal == nil {
		return nil
	}
	return n.journal.RecordDelivery(model.Delivery{
		Node:   n.Name(),
		Peer:   peer,
		Dir:    dir,
		Kind:   f.Kind,
		Seq:    f.Seq,
		Local:  n.ClockTime(),
		Global: n.host.Now(),
	})
}
