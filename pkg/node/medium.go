package node

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/daviddao/driftsim/pkg/model"
	"github.com/daviddao/driftsim/pkg/sim"
	"github.com/daviddao/driftsim/pkg/simtime"
)

// Frame is a radio frame of the ranging exchange.
type Frame struct {
	Kind model.FrameKind
	Src  string
	Dst  string
	Seq  uint64
}

func (f Frame) String() string {
	return fmt.Sprintf("%s#%d %s->%s", f.Kind, f.Seq, f.Src, f.Dst)
}

// Station is a medium endpoint.
type Station interface {
	// Transmitted is called when a frame sent by the station leaves the
	// antenna.
	Transmitted(f Frame) error
	// Received is called when a frame addressed to the station arrives.
	Received(f Frame) error
}

// Medium connects stations with a fixed global propagation delay. There is
// no propagation model, collision handling or loss.
type Medium struct {
	host     sim.Scheduler
	delay    simtime.Time
	stations map[string]Station
	sent     uint64
	received uint64
	logger   *zap.Logger
}

// NewMedium returns a medium delivering frames delay after transmission.
func NewMedium(host sim.Scheduler, delay simtime.Time, logger *zap.Logger) *Medium {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Medium{
		host:     host,
		delay:    delay,
		stations: make(map[string]Station),
		logger:   logger,
	}
}

// Attach registers a station under name and returns its link.
func (m *Medium) Attach(name string, s Station) (Link, error) {
	if _, dup := m.stations[name]; dup {
		return nil, errors.Newf("medium: station %q already attached", name)
	}
	m.stations[name] = s
	return &port{m: m, name: name}, nil
}

// Delay returns the propagation delay.
func (m *Medium) Delay() simtime.Time { return m.delay }

// Stats returns the number of transmitted and received frames.
func (m *Medium) Stats() (sent, received uint64) { return m.sent, m.received }

type port struct {
	m    *Medium
	name string
}

func (p *port) Send(f Frame, delay simtime.Time) error {
	m := p.m
	if delay < 0 {
		return errors.AssertionFailedf("medium: negative delay %s for %s", delay, f)
	}
	if f.Src != p.name {
		return errors.Newf("medium: %s sent by %q", f, p.name)
	}
	dst, ok := m.stations[f.Dst]
	if !ok {
		return errors.Newf("medium: unknown destination in %s", f)
	}
	src := m.stations[p.name]
	_, err := m.host.ScheduleAt(m.host.Now()+delay, "tx "+f.String(), func() error {
		m.sent++
		if err := src.Transmitted(f); err != nil {
			return err
		}
		_, err := m.host.ScheduleAt(m.host.Now()+m.delay, "rx "+f.String(), func() error {
			m.received++
			m.logger.Debug("frame received", zap.Stringer("frame", f), zap.Stringer("at", m.host.Now()))
			return dst.Received(f)
		})
		return err
	})
	return err
}
