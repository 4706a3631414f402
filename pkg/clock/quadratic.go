package clock

import (
	"math"

	"github.com/daviddao/driftsim/pkg/simtime"
)

// Quadratic is a clock whose error grows with the square of global time:
//
//	error(t) = 0.5 * d * t²     (t in seconds)
//	local(t) = t + error(t)
//
// The instantaneous rate is 1 + d*t. For d < 0 the rate reaches zero at
// t* = -1/d; from then on the clock stays at its frozen reading -0.5/d
// seconds instead of running backward.
//
// Translation uses the closed-form inverse
//
//	t = 2L / (1 + sqrt(1 + 2dL))
//
// so it always resolves.
type Quadratic struct {
	host Timeline
	d    float64
}

var _ Clock = (*Quadratic)(nil)

// NewQuadratic returns a quadratic clock with drift coefficient d (a
// dimensionless fraction per second, e.g. 1e-6).
func NewQuadratic(host Timeline, d float64) (*Quadratic, error) {
	if math.IsNaN(d) || math.IsInf(d, 0) {
		return nil, Configf("quadratic drift %v", d)
	}
	return &Quadratic{host: host, d: d}, nil
}

// Drift returns the drift coefficient.
func (q *Quadratic) Drift() float64 { return q.d }

// QuadraticError returns the error law of a quadratic clock with
// coefficient d, frozen past t* when d is negative.
func QuadraticError(d float64) ErrorFunc {
	return func(t simtime.Time) simtime.Time {
		if frozen(d, t) {
			return frozenLocal(d) - t
		}
		s := t.Seconds()
		return simtime.FromSeconds(0.5 * d * s * s)
	}
}

// frozen reports whether t lies at or past t* = -1/d. The comparison is in
// seconds: for small |d| the freeze lies beyond the range of simtime.Time.
func frozen(d float64, t simtime.Time) bool {
	return d < 0 && t.Seconds() >= -1/d
}

// frozenLocal is the reading a clock with negative d stops at, saturated
// at simtime.Max.
func frozenLocal(d float64) simtime.Time {
	return simtime.FromSeconds(-0.5 / d)
}

func (q *Quadratic) local(t simtime.Time) simtime.Time {
	if frozen(q.d, t) {
		return frozenLocal(q.d)
	}
	s := t.Seconds()
	return t + simtime.FromSeconds(0.5*q.d*s*s)
}

func (q *Quadratic) Now() simtime.Time {
	return q.local(q.host.Now())
}

func (q *Quadratic) ToGlobal(local simtime.Time) (simtime.Time, bool, error) {
	if q.d < 0 && local > frozenLocal(q.d) {
		return 0, false, TemporalOrderf("local %s beyond frozen reading %s", local, frozenLocal(q.d))
	}
	l := local.Seconds()
	root := math.Sqrt(1 + 2*q.d*l)
	// L - t = 2dL² / (1+root)², computed on the offset to keep
	// picosecond resolution on the integer part.
	offset := 2 * q.d * l * l / ((1 + root) * (1 + root))
	return local - simtime.FromSeconds(offset), true, nil
}
