package store

import (
	"context"

	"github.com/daviddao/driftsim/pkg/clock"
	"github.com/daviddao/driftsim/pkg/model"
	"github.com/daviddao/driftsim/pkg/node"
)

// DefaultBatch is the number of buffered records that triggers a write.
const DefaultBatch = 512

// RunJournal streams the records of one run into the store. It buffers
// hold points and deliveries and writes them in batches; Flush must be
// called when the run ends.
type RunJournal struct {
	// ctx bounds the batch writes. node.Journal and clock.HoldPointRecorder
	// are called from event handlers that carry no context of their own.
	ctx   context.Context
	store StoreInterface
	runID string
	batch int

	holdPoints []model.HoldPoint
	deliveries []model.Delivery
	written    int64
}

var (
	_ node.Journal            = (*RunJournal)(nil)
	_ clock.HoldPointRecorder = (*RunJournal)(nil)
)

// NewRunJournal returns a journal writing to run runID under ctx. A batch
// below one uses DefaultBatch.
func NewRunJournal(ctx context.Context, s StoreInterface, runID string, batch int) *RunJournal {
	if batch < 1 {
		batch = DefaultBatch
	}
	return &RunJournal{ctx: ctx, store: s, runID: runID, batch: batch}
}

// RunID returns the run the journal writes to.
func (j *RunJournal) RunID() string { return j.runID }

// Written returns the number of records written so far.
func (j *RunJournal) Written() int64 { return j.written }

// RecordHoldPoint buffers a hold point of the named clock.
func (j *RunJournal) RecordHoldPoint(name string, hp clock.HoldPoint) error {
	j.holdPoints = append(j.holdPoints, model.HoldPoint{
		RunID:        j.runID,
		Node:         name,
		RealTime:     hp.RealTime,
		HardwareTime: hp.HardwareTime,
		Drift:        hp.Drift,
	})
	if len(j.holdPoints) >= j.batch {
		return j.flushHoldPoints()
	}
	return nil
}

// RecordDelivery buffers a frame event.
func (j *RunJournal) RecordDelivery(d model.Delivery) error {
	d.RunID = j.runID
	j.deliveries = append(j.deliveries, d)
	if len(j.deliveries) >= j.batch {
		return j.flushDeliveries()
	}
	return nil
}

// Flush writes everything buffered.
func (j *RunJournal) Flush() error {
	if err := j.flushHoldPoints(); err != nil {
		return err
	}
	return j.flushDeliveries()
}

func (j *RunJournal) flushHoldPoints() error {
	if err := j.store.InsertHoldPoints(j.ctx, j.holdPoints); err != nil {
		return err
	}
	j.written += int64(len(j.holdPoints))
	j.holdPoints = j.holdPoints[:0]
	return nil
}

func (j *RunJournal) flushDeliveries() error {
	if err := j.store.InsertDeliveries(j.ctx, j.deliveries); err != nil {
		return err
	}
	j.written += int64(len(j.deliveries))
	j.deliveries = j.deliveries[:0]
	return nil
}
