package clock

import (
	"go.uber.org/zap"

	"github.com/daviddao/driftsim/pkg/drift"
	"github.com/daviddao/driftsim/pkg/simtime"
)

// Lower bounds for hardware clock properties.
const (
	MinInterval = simtime.Millisecond
	MinUpdate   = 10
)

// Properties shape a hardware clock's storage window.
//
//	Interval (tint): global time between two hold points
//	Update   (u):    hold points replaced per window update
//	Size     (s):    hold points kept, always 2u
type Properties struct {
	Interval simtime.Time
	Update   int
}

// NewProperties clamps interval and update to MinInterval and MinUpdate.
// Clamped values are logged at warn level.
func NewProperties(interval simtime.Time, update int, logger *zap.Logger) Properties {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := Properties{Interval: interval, Update: update}
	if p.Interval < MinInterval {
		logger.Warn("hardware clock interval too small, clamped",
			zap.Stringer("interval", interval), zap.Stringer("min", MinInterval))
		p.Interval = MinInterval
	}
	if p.Update < MinUpdate {
		logger.Warn("hardware clock update too small, clamped",
			zap.Int("update", update), zap.Int("min", MinUpdate))
		p.Update = MinUpdate
	}
	return p
}

// Size is the number of hold points in the window.
func (p Properties) Size() int { return 2 * p.Update }

// UpdateInterval is the global time between two window updates.
func (p Properties) UpdateInterval() simtime.Time {
	return p.Interval * simtime.Time(p.Update)
}

// HoldPoint is one vertex of the piecewise-linear time function.
type HoldPoint struct {
	RealTime     simtime.Time `json:"real_time"`
	HardwareTime simtime.Time `json:"hardware_time"`
	// Drift applies between this point and the next one.
	Drift float64 `json:"drift"`
}

// Window holds the hold points of a hardware clock. Consecutive points
// satisfy
//
//	next.RealTime     = pre.RealTime + tint
//	next.HardwareTime = pre.HardwareTime + tint*(1+pre.Drift)
type Window struct {
	props  Properties
	src    drift.Source
	points []HoldPoint
	end    simtime.Time
}

// NewWindow fills a window whose first point sits at start in both frames.
func NewWindow(props Properties, src drift.Source, start simtime.Time) *Window {
	w := &Window{
		props:  props,
		src:    src,
		points: make([]HoldPoint, props.Size()),
	}
	w.points[0] = HoldPoint{RealTime: start, HardwareTime: start, Drift: drift.NextValue(src)}
	w.fill(1)
	return w
}

// fill generates points[from:] from their predecessors.
func (w *Window) fill(from int) {
	tint := w.props.Interval
	for i := from; i < len(w.points); i++ {
		pre := w.points[i-1]
		w.points[i] = HoldPoint{
			RealTime:     pre.RealTime + tint,
			HardwareTime: pre.HardwareTime + tint.Mul(1+pre.Drift),
			Drift:        drift.NextValue(w.src),
		}
	}
	last := w.points[len(w.points)-1]
	w.end = last.HardwareTime + tint.Mul(1+last.Drift)
}

// Update drops the first u points and appends u new ones. It returns the
// new points.
func (w *Window) Update() []HoldPoint {
	u := w.props.Update
	keep := len(w.points) - u
	copy(w.points, w.points[u:])
	w.fill(keep)
	return w.Points()[keep:]
}

// Points returns a copy of the hold points.
func (w *Window) Points() []HoldPoint {
	out := make([]HoldPoint, len(w.points))
	copy(out, w.points)
	return out
}

// Len returns the number of hold points.
func (w *Window) Len() int { return len(w.points) }

// At returns the hold point at idx.
func (w *Window) At(idx int) HoldPoint { return w.points[idx] }

// Begin is the hardware time of the first hold point.
func (w *Window) Begin() simtime.Time { return w.points[0].HardwareTime }

// End is the hardware time one interval past the last hold point. Local
// timestamps at or beyond End cannot be translated yet.
func (w *Window) End() simtime.Time { return w.end }

// IndexOf returns the index of the interval containing global time t,
// clamped to the window.
func (w *Window) IndexOf(t simtime.Time) int {
	k := int((t - w.points[0].RealTime) / w.props.Interval)
	if k < 0 {
		return 0
	}
	if k >= len(w.points) {
		return len(w.points) - 1
	}
	return k
}
