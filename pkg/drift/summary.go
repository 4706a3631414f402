package drift

import (
	"github.com/cockroachdb/errors"
	"github.com/montanaflynn/stats"
)

// Summary describes the drift values a clock produced over a run.
type Summary struct {
	Count  int     `json:"count"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stddev"`
	P50    float64 `json:"p50"`
	P95    float64 `json:"p95"`
}

// Collector accumulates drift values for a Summary.
type Collector struct {
	values stats.Float64Data
}

// Add records v.
func (c *Collector) Add(v float64) { c.values = append(c.values, v) }

// Len returns the number of recorded values.
func (c *Collector) Len() int { return len(c.values) }

// Summarize computes the summary of all recorded values. An empty collector
// yields the zero Summary.
func (c *Collector) Summarize() (Summary, error) {
	return Summarize(c.values)
}

// Summarize computes the summary of values.
func Summarize(values []float64) (Summary, error) {
	if len(values) == 0 {
		return Summary{}, nil
	}
	data := stats.Float64Data(values)
	var s Summary
	var err error
	s.Count = len(values)
	if s.Min, err = data.Min(); err != nil {
		return Summary{}, errors.Wrap(err, "min")
	}
	if s.Max, err = data.Max(); err != nil {
		return Summary{}, errors.Wrap(err, "max")
	}
	if s.Mean, err = data.Mean(); err != nil {
		return Summary{}, errors.Wrap(err, "mean")
	}
	if s.StdDev, err = data.StandardDeviation(); err != nil {
		return Summary{}, errors.Wrap(err, "stddev")
	}
	if s.P50, err = data.Median(); err != nil {
		return Summary{}, errors.Wrap(err, "median")
	}
	if s.P95, err = data.Percentile(95); err != nil {
		return Summary{}, errors.Wrap(err, "p95")
	}
	return s, nil
}
