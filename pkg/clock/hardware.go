package clock

import (
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/daviddao/driftsim/pkg/drift"
	"github.com/daviddao/driftsim/pkg/signal"
	"github.com/daviddao/driftsim/pkg/sim"
	"github.com/daviddao/driftsim/pkg/simtime"
)

// HoldPointRecorder receives every hold point a hardware clock generates.
type HoldPointRecorder interface {
	RecordHoldPoint(clock string, hp HoldPoint) error
}

// HardwareParams configures a Hardware clock.
type HardwareParams struct {
	Name       string
	Properties Properties
	Source     drift.Source
	Recorder   HoldPointRecorder // optional
	Logger     *zap.Logger       // optional
}

// Hardware is a piecewise-linear hardware clock after Ferrari, Meier and
// Thiele ("Accurate Clock Models for Simulating Wireless Sensor Networks").
//
// The time function is approximated by hold points spaced tint apart in
// global time, each carrying the drift up to the next point. Only the
// points inside the storage window are known, so local timestamps at or
// beyond the window end cannot be translated. Every tint*u the window
// slides forward by u points and the clock emits signal.WindowUpdated with
// the new horizon.
type Hardware struct {
	name     string
	props    Properties
	host     sim.Scheduler
	bus      signal.Emitter
	window   *Window
	recorder HoldPointRecorder
	drifts   drift.Collector
	logger   *zap.Logger

	handle  sim.Handle
	started bool
	stopped bool
	updates int
}

var _ WindowedClock = (*Hardware)(nil)

// NewHardware builds the storage window starting at the host's current
// time. Call Start to schedule window updates.
func NewHardware(p HardwareParams, host sim.Scheduler, bus signal.Emitter) (*Hardware, error) {
	if p.Source == nil {
		return nil, Configf("hardware clock %q: no drift source", p.Name)
	}
	if p.Properties.Interval < MinInterval || p.Properties.Update < MinUpdate {
		return nil, Configf("hardware clock %q: properties %+v below minimum", p.Name, p.Properties)
	}
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Hardware{
		name:     p.Name,
		props:    p.Properties,
		host:     host,
		bus:      bus,
		recorder: p.Recorder,
		logger:   logger.With(zap.String("clock", p.Name)),
	}
	h.window = NewWindow(p.Properties, p.Source, host.Now())
	if err := h.record(h.window.Points()); err != nil {
		return nil, err
	}
	return h, nil
}

// Name returns the clock name.
func (h *Hardware) Name() string { return h.name }

// Properties returns the clamped window properties.
func (h *Hardware) Properties() Properties { return h.props }

// Window exposes the storage window for inspection.
func (h *Hardware) Window() *Window { return h.window }

// Updates returns the number of window updates performed.
func (h *Hardware) Updates() int { return h.updates }

// Start schedules the first window update.
func (h *Hardware) Start() error {
	if h.started {
		return errors.AssertionFailedf("hardware clock %q started twice", h.name)
	}
	h.started = true
	return h.scheduleUpdate()
}

// Stop cancels the pending window update. Further translations are
// invariant violations.
func (h *Hardware) Stop() {
	if h.stopped {
		return
	}
	h.stopped = true
	if h.handle != 0 {
		h.host.Cancel(h.handle)
		h.handle = 0
	}
	h.logger.Debug("stopped", zap.Int("updates", h.updates))
}

func (h *Hardware) scheduleUpdate() error {
	at := h.host.Now() + h.props.UpdateInterval()
	handle, err := h.host.ScheduleAt(at, "storage window update "+h.name, h.update)
	if err != nil {
		return err
	}
	h.handle = handle
	return nil
}

func (h *Hardware) update() error {
	h.handle = 0
	fresh := h.window.Update()
	h.updates++
	if err := h.record(fresh); err != nil {
		return err
	}
	horizon := h.window.End()
	h.logger.Debug("window updated",
		zap.Stringer("begin", h.window.Begin()),
		zap.Stringer("horizon", horizon))
	if err := h.bus.Emit(signal.WindowUpdated, horizon); err != nil {
		return err
	}
	return h.scheduleUpdate()
}

func (h *Hardware) record(points []HoldPoint) error {
	for _, hp := range points {
		h.drifts.Add(hp.Drift)
		if h.recorder == nil {
			continue
		}
		if err := h.recorder.RecordHoldPoint(h.name, hp); err != nil {
			return errors.Wrapf(err, "record hold point of %q", h.name)
		}
	}
	return nil
}

// Summary describes every drift value this clock has generated.
func (h *Hardware) Summary() (drift.Summary, error) {
	return h.drifts.Summarize()
}

// Horizon returns the first local timestamp that cannot be translated yet.
func (h *Hardware) Horizon() simtime.Time { return h.window.End() }

// Now evaluates the segment containing the current global time.
func (h *Hardware) Now() simtime.Time {
	now := h.host.Now()
	hp := h.window.At(h.window.IndexOf(now))
	return hp.HardwareTime + (now - hp.RealTime).Mul(1+hp.Drift)
}

// ToGlobal resolves local timestamps in [Begin, Horizon).
func (h *Hardware) ToGlobal(local simtime.Time) (simtime.Time, bool, error) {
	if h.stopped {
		return 0, false, errors.AssertionFailedf("translation on stopped hardware clock %q", h.name)
	}
	w := h.window
	if local < w.Begin() || local >= w.End() {
		return 0, false, nil
	}
	// Start from the interval of the current global time and walk to the
	// interval containing local.
	k := w.IndexOf(h.host.Now())
	for k > 0 && w.At(k).HardwareTime > local {
		k--
	}
	for k < w.Len()-1 && w.At(k+1).HardwareTime <= local {
		k++
	}
	hp := w.At(k)
	return hp.RealTime + (local - hp.HardwareTime).Div(1+hp.Drift), true, nil
}
