// Package drift supplies the drift values that shape a hardware clock's
// time function. A drift of 1e-5 makes the clock run 10ppm fast between two
// hold points.
package drift

import (
	"fmt"

	"github.com/daviddao/driftsim/pkg/simtime"
)

// Limit is the lowest drift NextValue returns. Below -1 the local clock
// would run backward.
const Limit = -0.999999

// Source yields successive drift values.
type Source interface {
	Next() float64
}

// NextValue draws from src and floors the result at Limit.
func NextValue(src Source) float64 {
	n := src.Next()
	if n < Limit {
		return Limit
	}
	return n
}

// Constant always returns Value.
type Constant struct {
	Value float64
}

func (c Constant) Next() float64 { return c.Value }

func (c Constant) String() string { return fmt.Sprintf("constant(%g)", c.Value) }

// Bounded draws every value from Dist.
type Bounded struct {
	Dist Distribution
}

func (b Bounded) Next() float64 { return b.Dist.Draw() }

func (b Bounded) String() string { return "bounded(" + b.Dist.String() + ")" }

// BoundedVariation draws from a distribution but limits how far a value may
// move away from the previous one: at most maxVariation per second, over one
// hold point interval.
type BoundedVariation struct {
	dist      Distribution
	maxChange float64
	last      float64
}

// NewBoundedVariation returns a source whose first value is limited relative
// to start. tint is the hold point interval.
func NewBoundedVariation(dist Distribution, maxVariation, start float64, tint simtime.Time) *BoundedVariation {
	return &BoundedVariation{
		dist:      dist,
		maxChange: tint.Seconds() * maxVariation,
		last:      start,
	}
}

// MaxChange is the largest difference allowed between successive values.
func (b *BoundedVariation) MaxChange() float64 { return b.maxChange }

func (b *BoundedVariation) Next() float64 {
	d := b.dist.Draw()
	switch diff := d - b.last; {
	case diff > b.maxChange:
		d = b.last + b.maxChange
	case diff < -b.maxChange:
		d = b.last - b.maxChange
	}
	b.last = d
	return d
}

func (b *BoundedVariation) String() string {
	return fmt.Sprintf("variation(%s, %g)", b.dist, b.maxChange)
}
