// Package simtime defines the fixed-point time representation shared by the
// simulator's global timeline and every node-local clock.
//
// A Time is a signed count of picoseconds, the default resolution of the
// discrete-event kernels this library plugs into. The same type is used for
// global timestamps and for local (hardware clock) readings; values taken
// from different clocks belong to different frames and must not be compared
// with each other.
package simtime

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Time is a point (or span) on a simulation timeline, in picoseconds.
type Time int64

// Common durations.
const (
	Picosecond  Time = 1
	Nanosecond       = 1000 * Picosecond
	Microsecond      = 1000 * Nanosecond
	Millisecond      = 1000 * Microsecond
	Second           = 1000 * Millisecond
)

// Max is the largest representable time.
const Max Time = math.MaxInt64

// Units lists the unit scales from coarsest to finest.
var Units = []Time{Second, Millisecond, Microsecond, Nanosecond, Picosecond}

var unitNames = map[string]Time{
	"s":  Second,
	"ms": Millisecond,
	"us": Microsecond,
	"ns": Nanosecond,
	"ps": Picosecond,
}

// FromSeconds converts a floating point number of seconds, rounding to the
// nearest picosecond. Values outside the representable range saturate at
// Max and -Max.
func FromSeconds(s float64) Time {
	ps := math.Round(s * float64(Second))
	switch {
	case ps >= float64(Max):
		return Max
	case ps <= -float64(Max):
		return -Max
	}
	return Time(ps)
}

// Seconds returns t as a floating point number of seconds.
func (t Time) Seconds() float64 {
	return float64(t) / float64(Second)
}

// Add returns t + d.
func (t Time) Add(d Time) Time { return t + d }

// Sub returns t - u.
func (t Time) Sub(u Time) Time { return t - u }

// Mul scales t by f, rounding to the nearest picosecond.
func (t Time) Mul(f float64) Time {
	return Time(math.Round(float64(t) * f))
}

// Div divides t by f, rounding to the nearest picosecond.
func (t Time) Div(f float64) Time {
	return Time(math.Round(float64(t) / f))
}

// String formats t with the coarsest unit that represents it exactly,
// e.g. "1ms", "1500ns", "0s".
func (t Time) String() string {
	if t == 0 {
		return "0s"
	}
	for _, name := range []string{"s", "ms", "us", "ns"} {
		u := unitNames[name]
		if t%u == 0 {
			return strconv.FormatInt(int64(t/u), 10) + name
		}
	}
	return strconv.FormatInt(int64(t), 10) + "ps"
}

// Parse reads a time such as "1ms", "2.5us", "10s" or "0". A bare number
// is interpreted as seconds.
func Parse(s string) (Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("simtime: empty time")
	}
	unit := Second
	num := s
	for _, name := range []string{"ms", "us", "ns", "ps", "s"} {
		if strings.HasSuffix(s, name) {
			unit = unitNames[name]
			num = strings.TrimSpace(strings.TrimSuffix(s, name))
			break
		}
	}
	if n, err := strconv.ParseInt(num, 10, 64); err == nil {
		if n > int64(Max/unit) || n < -int64(Max/unit) {
			return 0, fmt.Errorf("simtime: %q out of range", s)
		}
		return Time(n) * unit, nil
	}
	f, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, fmt.Errorf("simtime: invalid time %q", s)
	}
	v := f * float64(unit)
	if math.IsNaN(v) || math.Abs(v) >= float64(Max) {
		return 0, fmt.Errorf("simtime: %q out of range", s)
	}
	return Time(math.Round(v)), nil
}

// MustParse is like Parse but panics on error. Intended for constants and
// tests.
func MustParse(s string) Time {
	t, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return t
}

// UnmarshalText implements encoding.TextUnmarshaler so times can be written
// as "1ms" in configuration files.
func (t *Time) UnmarshalText(b []byte) error {
	v, err := Parse(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (t Time) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}
