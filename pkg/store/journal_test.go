package store

import (
	"context"
	"errors"
	"testing"

	"github.com/daviddao/driftsim/pkg/clock"
	"github.com/daviddao/driftsim/pkg/model"
	"github.com/daviddao/driftsim/pkg/simtime"
)

func TestRunJournalBatches(t *testing.T) {
	s := newTestStore(t)
	r := newTestRun(t, s)
	j := NewRunJournal(context.Background(), s, r.ID, 4)

	for i := 0; i < 6; i++ {
		hp := clock.HoldPoint{RealTime: simtime.Time(i) * simtime.Millisecond, HardwareTime: simtime.Time(i) * simtime.Millisecond, Drift: 1e-6}
		if err := j.RecordHoldPoint("anchor", hp); err != nil {
			t.Fatalf("RecordHoldPoint: %v", err)
		}
	}
	// One batch of four is written, two points are still buffered.
	if j.Written() != 4 {
		t.Fatalf("Written = %d, want 4", j.Written())
	}
	if err := j.RecordDelivery(model.Delivery{Node: "anchor", Peer: "tag", Dir: model.DirTX, Kind: model.FramePoll, Seq: 1}); err != nil {
		t.Fatalf("RecordDelivery: %v", err)
	}
	if n := s.CountDeliveries(r.ID); n != 0 {
		t.Fatalf("delivery written before flush: %d", n)
	}

	if err := j.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if j.Written() != 7 {
		t.Fatalf("Written = %d, want 7", j.Written())
	}
	counts, _ := s.CountHoldPoints(r.ID)
	if counts["anchor"] != 6 {
		t.Fatalf("hold points = %v, want 6", counts)
	}
	ds, _ := s.ListDeliveries(r.ID, "", 0)
	if len(ds) != 1 || ds[0].RunID != r.ID {
		t.Fatalf("deliveries = %+v", ds)
	}

	// Flushing an empty journal is a no-op.
	if err := j.Flush(); err != nil {
		t.Fatalf("second Flush: %v", err)
	}
}

func TestRunJournalStopsOnCancel(t *testing.T) {
	s := newTestStore(t)
	r := newTestRun(t, s)
	ctx, cancel := context.WithCancel(context.Background())
	j := NewRunJournal(ctx, s, r.ID, 1)
	cancel()

	err := j.RecordHoldPoint("anchor", clock.HoldPoint{Drift: 1e-6})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("RecordHoldPoint after cancel: %v", err)
	}
	if j.Written() != 0 {
		t.Fatalf("Written = %d, want 0", j.Written())
	}
}

func TestRunJournalDefaultBatch(t *testing.T) {
	j := NewRunJournal(context.Background(), nil, "run", 0)
	if j.batch != DefaultBatch || j.RunID() != "run" {
		t.Fatalf("journal = %+v", j)
	}
}
