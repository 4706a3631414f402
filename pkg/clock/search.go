package clock

import (
	"github.com/cockroachdb/errors"

	"github.com/daviddao/driftsim/pkg/simtime"
)

// ErrorFunc returns the deviation of the local clock from global time t.
// t + f(t) must be non-decreasing in t.
type ErrorFunc func(t simtime.Time) simtime.Time

// searchSteps are the multiples tried per unit scale, largest first.
var searchSteps = []simtime.Time{1000, 100, 10, 1}

// maxScan bounds the number of increments taken at a single step size.
const maxScan = 1 << 20

// Search is a clock defined by an arbitrary error law. ToGlobal inverts the
// law numerically: starting from the current global time it walks forward
// with shrinking increments (1000s, 100s, 10s, 1s, 1000ms, ... 1ps) and
// returns the greatest global time whose local reading does not exceed the
// target. Targets the law never reaches are temporal-order errors, like
// targets before the current reading.
type Search struct {
	host Timeline
	err  ErrorFunc
}

var _ Clock = (*Search)(nil)

// NewSearch returns a search clock following host.
func NewSearch(host Timeline, f ErrorFunc) (*Search, error) {
	if f == nil {
		return nil, Configf("search clock without error function")
	}
	return &Search{host: host, err: f}, nil
}

func (s *Search) local(t simtime.Time) simtime.Time { return t + s.err(t) }

func (s *Search) Now() simtime.Time { return s.local(s.host.Now()) }

func (s *Search) ToGlobal(local simtime.Time) (simtime.Time, bool, error) {
	g := s.host.Now()
	if cur := s.local(g); local < cur {
		return 0, false, TemporalOrderf("local %s before current reading %s", local, cur)
	}
	for _, unit := range simtime.Units {
		for _, step := range searchSteps {
			inc := unit * step
			for n := 0; ; n++ {
				if n == maxScan {
					return 0, false, errors.Newf("search for local %s did not converge at step %s", local, inc)
				}
				if g > simtime.Max-inc || s.local(g+inc) > local {
					break
				}
				g += inc
			}
		}
	}
	// A law that freezes below the target walks into the end of time.
	if g == simtime.Max {
		if last := s.local(g); last < local {
			return 0, false, TemporalOrderf("local %s beyond last reading %s", local, last)
		}
	}
	return g, true, nil
}
