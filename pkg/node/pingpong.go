package node

import (
	"github.com/cockroachdb/errors"

	"github.com/daviddao/driftsim/pkg/model"
	"github.com/daviddao/driftsim/pkg/simtime"
)

// PingPong is a single-sided two-way ranging exchange. The initiator sends
// a poll every Period of its local time; the responder answers ReplyDelay
// of its local time after receiving it. Both nodes journal local TX and RX
// timestamps, from which model.PairExchanges derives time-of-flight
// estimates.
type PingPong struct {
	Initiator  string
	Responder  string
	Period     simtime.Time
	ReplyDelay simtime.Time
	// Polls limits the number of polls; zero means no limit.
	Polls int

	timer *Message
	seq   uint64
}

var _ App = (*PingPong)(nil)

// Validate checks the exchange parameters.
func (p *PingPong) Validate() error {
	switch {
	case p.Initiator == "" || p.Responder == "":
		return errors.New("pingpong: initiator and responder are required")
	case p.Initiator == p.Responder:
		return errors.Newf("pingpong: %q cannot range with itself", p.Initiator)
	case p.Period <= 0:
		return errors.Newf("pingpong: period %s must be positive", p.Period)
	case p.ReplyDelay < 0:
		return errors.Newf("pingpong: negative reply delay %s", p.ReplyDelay)
	}
	return nil
}

// Sent returns the number of polls sent.
func (p *PingPong) Sent() uint64 { return p.seq }

// Start arms the initiator's poll timer.
func (p *PingPong) Start(n *Node) error {
	if n.Name() != p.Initiator {
		return nil
	}
	p.timer = &Message{Name: "poll"}
	return n.ScheduleAt(n.ClockTime()+p.Period, p.timer)
}

// Stop cancels the pending poll.
func (p *PingPong) Stop(n *Node) bool {
	if p.timer == nil {
		return false
	}
	return n.Cancel(p.timer)
}

func (p *PingPong) HandleTimer(n *Node, msg *Message) error {
	if msg != p.timer {
		return errors.AssertionFailedf("pingpong: unexpected timer %q", msg.Name)
	}
	p.seq++
	poll := Frame{Kind: model.FramePoll, Dst: p.Responder, Seq: p.seq}
	if err := n.Send(poll, 0); err != nil {
		return err
	}
	if p.Polls > 0 && p.seq >= uint64(p.Polls) {
		return nil
	}
	return n.ScheduleAt(msg.Local+p.Period, msg)
}

func (p *PingPong) HandleFrame(n *Node, f Frame, _ simtime.Time) error {
	if f.Kind != model.FramePoll || n.Name() != p.Responder {
		return nil
	}
	resp := Frame{Kind: model.FrameResponse, Dst: f.Src, Seq: f.Seq}
	return n.Send(resp, p.ReplyDelay)
}
