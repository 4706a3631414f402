package signal

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"

	"github.com/daviddao/driftsim/pkg/simtime"
)

type recorder struct {
	got []simtime.Time
	err error
}

func (r *recorder) ReceiveSignal(_ Topic, v simtime.Time) error {
	r.got = append(r.got, v)
	return r.err
}

func TestEmitDeliversInSubscriptionOrder(t *testing.T) {
	b := NewBus("test", nil)
	var order []string
	first := ListenerFunc(func(Topic, simtime.Time) error { order = append(order, "first"); return nil })
	second := ListenerFunc(func(Topic, simtime.Time) error { order = append(order, "second"); return nil })
	b.Subscribe(WindowUpdated, &first)
	b.Subscribe(WindowUpdated, &second)

	require.NoError(t, b.Emit(WindowUpdated, simtime.Second))
	require.Equal(t, []string{"first", "second"}, order)
}

func TestSubscribeIsIdempotent(t *testing.T) {
	b := NewBus("test", nil)
	r := &recorder{}
	b.Subscribe(WindowUpdated, r)
	b.Subscribe(WindowUpdated, r)
	require.Equal(t, 1, b.Listeners(WindowUpdated))

	require.NoError(t, b.Emit(WindowUpdated, 5))
	require.Equal(t, []simtime.Time{5}, r.got)
}

func TestUnsubscribe(t *testing.T) {
	b := NewBus("test", nil)
	r := &recorder{}
	b.Subscribe(WindowUpdated, r)
	b.Unsubscribe(WindowUpdated, r)
	require.Zero(t, b.Listeners(WindowUpdated))

	require.NoError(t, b.Emit(WindowUpdated, 5))
	require.Empty(t, r.got)

	// Unknown listener is ignored.
	b.Unsubscribe(WindowUpdated, &recorder{})
}

func TestUnsubscribeDuringEmit(t *testing.T) {
	b := NewBus("test", nil)
	later := &recorder{}
	var self ListenerFunc
	self = func(Topic, simtime.Time) error {
		b.Unsubscribe(WindowUpdated, &self)
		b.Unsubscribe(WindowUpdated, later)
		return nil
	}
	b.Subscribe(WindowUpdated, &self)
	b.Subscribe(WindowUpdated, later)

	require.NoError(t, b.Emit(WindowUpdated, 1))
	// The snapshot taken by Emit still reaches later.
	require.Equal(t, []simtime.Time{1}, later.got)
	require.Zero(t, b.Listeners(WindowUpdated))
}

func TestEmitStopsOnError(t *testing.T) {
	b := NewBus("test", nil)
	boom := errors.New("boom")
	failing := &recorder{err: boom}
	after := &recorder{}
	b.Subscribe(WindowUpdated, failing)
	b.Subscribe(WindowUpdated, after)

	err := b.Emit(WindowUpdated, 1)
	require.ErrorIs(t, err, boom)
	require.Empty(t, after.got)
}

func TestTopicsAreIndependent(t *testing.T) {
	b := NewBus("test", nil)
	r := &recorder{}
	b.Subscribe("other", r)
	require.NoError(t, b.Emit(WindowUpdated, 1))
	require.Empty(t, r.got)
}
