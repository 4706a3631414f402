// Package model defines the records driftsim writes to its run journal.
//
// A journal captures what a simulation run did so it can be inspected after
// the fact:
//
//   - Run: one execution of a scenario file, identified by a UUID.
//   - HoldPoint: a vertex of a hardware clock's time function, i.e. the
//     local reading of a node at a global instant and the drift that
//     applies until the next vertex.
//   - Delivery: a frame transmission or reception, stamped with both the
//     node's local clock reading and the global time at which it happened.
//
// Times are stored as picosecond counts (simtime.Time).
package model

import (
	"slices"
	"time"

	"github.com/daviddao/driftsim/pkg/simtime"
)

// RunStatus enumerates the lifecycle states of a run.
type RunStatus string

const (
	RunRunning  RunStatus = "running"
	RunFinished RunStatus = "finished"
	RunFailed   RunStatus = "failed"
)

// Run is a single scenario execution.
type Run struct {
	ID         string       `json:"id"`
	Scenario   string       `json:"scenario"`
	Seed       uint64       `json:"seed"`
	Duration   simtime.Time `json:"duration"`
	Status     RunStatus    `json:"status"`
	Events     uint64       `json:"events"`
	Error      string       `json:"error,omitempty"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt *time.Time   `json:"finished_at,omitempty"`
}

// HoldPoint is a journaled hold point of a node's hardware clock.
type HoldPoint struct {
	RunID        string       `json:"run_id"`
	Node         string       `json:"node"`
	RealTime     simtime.Time `json:"real_time"`
	HardwareTime simtime.Time `json:"hardware_time"`
	Drift        float64      `json:"drift"`
}

// Deviation is how far the local clock is off at the hold point.
func (h HoldPoint) Deviation() simtime.Time {
	return h.HardwareTime - h.RealTime
}

// Direction tells transmissions and receptions apart.
type Direction string

const (
	DirTX Direction = "tx"
	DirRX Direction = "rx"
)

// FrameKind enumerates the frames of the ranging exchange.
type FrameKind string

const (
	FramePoll     FrameKind = "poll"
	FrameResponse FrameKind = "response"
)

// Delivery is a journaled frame event at one node.
type Delivery struct {
	ID     int64        `json:"id"`
	RunID  string       `json:"run_id"`
	Node   string       `json:"node"`
	Peer   string       `json:"peer"`
	Dir    Direction    `json:"dir"`
	Kind   FrameKind    `json:"kind"`
	Seq    uint64       `json:"seq"`
	Local  simtime.Time `json:"local"`
	Global simtime.Time `json:"global"`
}

// Offset is the local clock reading minus global time at the event.
func (d Delivery) Offset() simtime.Time {
	return d.Local - d.Global
}

// Stamp is a bit set naming the timestamps of an Exchange.
type Stamp uint8

const (
	StampPollTX Stamp = 1 << iota
	StampPollRX
	StampResponseTX
	StampResponseRX

	StampAll = StampPollTX | StampPollRX | StampResponseTX | StampResponseRX
)

// Exchange pairs the four timestamps of one poll/response round trip, all
// in local time of the respective node. Seen records which of them were
// observed; a zero timestamp is a valid local reading.
type Exchange struct {
	Seq        uint64       `json:"seq"`
	PollTX     simtime.Time `json:"poll_tx"`
	PollRX     simtime.Time `json:"poll_rx"`
	ResponseTX simtime.Time `json:"response_tx"`
	ResponseRX simtime.Time `json:"response_rx"`
	Seen       Stamp        `json:"seen"`
}

// Set stores the timestamp named by s and marks it seen.
func (e *Exchange) Set(s Stamp, t simtime.Time) {
	switch s {
	case StampPollTX:
		e.PollTX = t
	case StampPollRX:
		e.PollRX = t
	case StampResponseTX:
		e.ResponseTX = t
	case StampResponseRX:
		e.ResponseRX = t
	default:
		return
	}
	e.Seen |= s
}

// RoundTrip is the initiator's view of the exchange duration.
func (e Exchange) RoundTrip() simtime.Time { return e.ResponseRX - e.PollTX }

// Reply is the responder's view of its turnaround.
func (e Exchange) Reply() simtime.Time { return e.ResponseTX - e.PollRX }

// TimeOfFlight estimates the one-way propagation delay with single-sided
// two-way ranging: (round trip - reply) / 2. Clock drift between the two
// nodes shows up as an error in this estimate.
func (e Exchange) TimeOfFlight() simtime.Time {
	return (e.RoundTrip() - e.Reply()) / 2
}

// Complete reports whether all four timestamps were observed.
func (e Exchange) Complete() bool {
	return e.Seen == StampAll
}

// PairExchanges groups deliveries by sequence number into exchanges,
// ordered by sequence.
func PairExchanges(ds []Delivery) []Exchange {
	bySeq := make(map[uint64]*Exchange)
	var order []uint64
	for _, d := range ds {
		ex, ok := bySeq[d.Seq]
		if !ok {
			ex = &Exchange{Seq: d.Seq}
			bySeq[d.Seq] = ex
			order = append(order, d.Seq)
		}
		switch {
		case d.Kind == FramePoll && d.Dir == DirTX:
			ex.Set(StampPollTX, d.Local)
		case d.Kind == FramePoll && d.Dir == DirRX:
			ex.Set(StampPollRX, d.Local)
		case d.Kind == FrameResponse && d.Dir == DirTX:
			ex.Set(StampResponseTX, d.Local)
		case d.Kind == FrameResponse && d.Dir == DirRX:
			ex.Set(StampResponseRX, d.Local)
		}
	}
	slices.Sort(order)
	out := make([]Exchange, 0, len(order))
	for _, s := range order {
		out = append(out, *bySeq[s])
	}
	return out
}
