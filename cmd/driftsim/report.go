package main

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/daviddao/driftsim/pkg/drift"
	"github.com/daviddao/driftsim/pkg/model"
	"github.com/daviddao/driftsim/pkg/simtime"
	"github.com/daviddao/driftsim/pkg/store"
)

// runReport summarizes a journaled run.
type runReport struct {
	Run        model.Run `json:"run"`
	Deliveries int64     `json:"deliveries"`
	Exchanges  int       `json:"exchanges"`
	Complete   int       `json:"complete"`
	// TimeOfFlight is in nanoseconds, over complete exchanges.
	TimeOfFlight *drift.Summary `json:"time_of_flight_ns,omitempty"`
	Clocks       []clockReport  `json:"clocks,omitempty"`
}

// clockReport summarizes the hold points of one hardware clock.
type clockReport struct {
	Node       string        `json:"node"`
	HoldPoints int64         `json:"hold_points"`
	Drift      drift.Summary `json:"drift"`
}

func buildReport(s store.StoreInterface, r *model.Run) (*runReport, error) {
	rep := &runReport{Run: *r, Deliveries: s.CountDeliveries(r.ID)}

	ds, err := s.ListDeliveries(r.ID, "", int(rep.Deliveries))
	if err != nil {
		return nil, fmt.Errorf("list deliveries: %w", err)
	}
	exchanges := model.PairExchanges(ds)
	rep.Exchanges = len(exchanges)
	var tof []float64
	for _, ex := range exchanges {
		if !ex.Complete() {
			continue
		}
		rep.Complete++
		tof = append(tof, float64(ex.TimeOfFlight())/float64(simtime.Nanosecond))
	}
	if len(tof) > 0 {
		sum, err := drift.Summarize(tof)
		if err != nil {
			return nil, err
		}
		rep.TimeOfFlight = &sum
	}

	counts, err := s.CountHoldPoints(r.ID)
	if err != nil {
		return nil, fmt.Errorf("count hold points: %w", err)
	}
	for _, node := range slices.Sorted(maps.Keys(counts)) {
		drifts, err := s.HoldPointDrifts(r.ID, node)
		if err != nil {
			return nil, err
		}
		sum, err := drift.Summarize(drifts)
		if err != nil {
			return nil, err
		}
		rep.Clocks = append(rep.Clocks, clockReport{Node: node, HoldPoints: counts[node], Drift: sum})
	}
	return rep, nil
}

func printReport(w io.Writer, rep *runReport) {
	r := rep.Run
	fmt.Fprintf(w, "run %s (%s) %s seed=%d duration=%s\n", r.ID, r.Status, r.Scenario, r.Seed, r.Duration)
	fmt.Fprintf(w, "  started     %s\n", humanize.Time(r.StartedAt))
	if r.FinishedAt != nil {
		fmt.Fprintf(w, "  took        %s\n", r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
	}
	fmt.Fprintf(w, "  events      %s\n", humanize.Comma(int64(r.Events)))
	if r.Error != "" {
		fmt.Fprintf(w, "  error       %s\n", r.Error)
	}
	fmt.Fprintf(w, "  deliveries  %s (%d exchanges, %d complete)\n",
		humanize.Comma(rep.Deliveries), rep.Exchanges, rep.Complete)
	if t := rep.TimeOfFlight; t != nil {
		fmt.Fprintf(w, "  tof [ns]    mean=%.3f sd=%.3f min=%.3f max=%.3f\n", t.Mean, t.StdDev, t.Min, t.Max)
	}
	for _, c := range rep.Clocks {
		fmt.Fprintf(w, "  clock %-12s %s hold points, drift mean=%.3e sd=%.3e [%.3e, %.3e]\n",
			c.Node, humanize.Comma(c.HoldPoints), c.Drift.Mean, c.Drift.StdDev, c.Drift.Min, c.Drift.Max)
	}
}
