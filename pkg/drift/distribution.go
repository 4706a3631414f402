package drift

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"golang.org/x/exp/rand"
)

// Distribution produces random drift values.
type Distribution interface {
	Draw() float64
	String() string
}

// Fixed always yields the same value. It is what a plain number parses to.
type Fixed float64

func (f Fixed) Draw() float64  { return float64(f) }
func (f Fixed) String() string { return strconv.FormatFloat(float64(f), 'g', -1, 64) }

// Uniform draws from [Min, Max).
type Uniform struct {
	Min, Max float64
	rng      *rand.Rand
}

func (u *Uniform) Draw() float64 {
	return u.Min + u.rng.Float64()*(u.Max-u.Min)
}

func (u *Uniform) String() string {
	return fmt.Sprintf("uniform(%g, %g)", u.Min, u.Max)
}

// Normal draws from N(Mean, StdDev²).
type Normal struct {
	Mean, StdDev float64
	rng          *rand.Rand
}

func (n *Normal) Draw() float64 {
	return n.Mean + n.rng.NormFloat64()*n.StdDev
}

func (n *Normal) String() string {
	return fmt.Sprintf("normal(%g, %g)", n.Mean, n.StdDev)
}

// truncSigmas is how far below zero, in standard deviations, the mean of a
// TruncNormal may sit before its redraw loop is considered unbounded.
const truncSigmas = 4

// TruncNormal is a normal distribution truncated to non-negative values, as
// OMNeT++'s truncnormal. Negative draws are discarded and redrawn.
type TruncNormal struct {
	Mean, StdDev float64
	rng          *rand.Rand
}

func (n *TruncNormal) Draw() float64 {
	for {
		v := n.Mean + n.rng.NormFloat64()*n.StdDev
		if v >= 0 {
			return v
		}
	}
}

func (n *TruncNormal) String() string {
	return fmt.Sprintf("truncnormal(%g, %g)", n.Mean, n.StdDev)
}

// NewRand returns a generator seeded for reproducible runs.
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewSource(seed))
}

// ParseDistribution reads a descriptor such as "uniform(-1e-5, 1e-5)",
// "normal(0, 1e-6)", "truncnormal(0, 1e-6)" or a plain number. Random
// distributions draw from rng.
func ParseDistribution(s string, rng *rand.Rand) (Distribution, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, errors.New("empty distribution")
	}
	open := strings.IndexByte(s, '(')
	if open < 0 {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "distribution %q", s)
		}
		return Fixed(v), nil
	}
	if !strings.HasSuffix(s, ")") {
		return nil, errors.Newf("distribution %q: missing closing parenthesis", s)
	}
	name := strings.ToLower(strings.TrimSpace(s[:open]))
	var args []float64
	for _, a := range strings.Split(s[open+1:len(s)-1], ",") {
		v, err := strconv.ParseFloat(strings.TrimSpace(a), 64)
		if err != nil {
			return nil, errors.Wrapf(err, "distribution %q", s)
		}
		args = append(args, v)
	}
	if len(args) != 2 {
		return nil, errors.Newf("distribution %q: want 2 arguments, got %d", s, len(args))
	}
	if rng == nil {
		rng = NewRand(1)
	}

	switch name {
	case "uniform":
		if args[1] < args[0] {
			return nil, errors.Newf("distribution %q: max below min", s)
		}
		return &Uniform{Min: args[0], Max: args[1], rng: rng}, nil
	case "normal":
		if args[1] < 0 {
			return nil, errors.Newf("distribution %q: negative stddev", s)
		}
		return &Normal{Mean: args[0], StdDev: args[1], rng: rng}, nil
	case "truncnormal":
		if args[1] < 0 {
			return nil, errors.Newf("distribution %q: negative stddev", s)
		}
		if args[0]+truncSigmas*args[1] < 0 {
			return nil, errors.Newf("distribution %q: no mass at or above zero", s)
		}
		return &TruncNormal{Mean: args[0], StdDev: args[1], rng: rng}, nil
	default:
		return nil, errors.Newf("distribution %q: unknown function %q", s, name)
	}
}
