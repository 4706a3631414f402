package sim

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"

	"github.com/daviddao/driftsim/pkg/simtime"
)

func TestRunOrdersByTimeThenFIFO(t *testing.T) {
	s := New(nil)
	var got []string
	add := func(at simtime.Time, name string) {
		_, err := s.ScheduleAt(at, name, func() error {
			got = append(got, name)
			return nil
		})
		require.NoError(t, err)
	}
	add(30, "c")
	add(10, "a1")
	add(20, "b")
	add(10, "a2")

	require.NoError(t, s.Run(context.Background()))
	require.Equal(t, []string{"a1", "a2", "b", "c"}, got)
	require.Equal(t, simtime.Time(30), s.Now())
	require.Equal(t, uint64(4), s.Processed())
}

func TestScheduleInPast(t *testing.T) {
	s := New(nil)
	_, err := s.ScheduleAt(100, "advance", func() error { return nil })
	require.NoError(t, err)
	require.NoError(t, s.Run(context.Background()))

	_, err = s.ScheduleAt(99, "late", func() error { return nil })
	require.True(t, errors.Is(err, ErrPastEvent))

	// Now is fine.
	_, err = s.ScheduleAt(100, "now", func() error { return nil })
	require.NoError(t, err)
}

func TestCancel(t *testing.T) {
	s := New(nil)
	ran := false
	h, err := s.ScheduleAt(10, "x", func() error { ran = true; return nil })
	require.NoError(t, err)
	require.True(t, s.IsScheduled(h))
	require.True(t, s.Cancel(h))
	require.False(t, s.Cancel(h))
	require.False(t, s.IsScheduled(h))

	require.NoError(t, s.Run(context.Background()))
	require.False(t, ran)
	require.Zero(t, s.Pending())
}

func TestEventsScheduledFromHandlers(t *testing.T) {
	s := New(nil)
	var times []simtime.Time
	var tick func() error
	tick = func() error {
		times = append(times, s.Now())
		if len(times) < 3 {
			_, err := s.ScheduleAt(s.Now()+5, "tick", tick)
			return err
		}
		return nil
	}
	_, err := s.ScheduleAt(0, "tick", tick)
	require.NoError(t, err)
	require.NoError(t, s.Run(context.Background()))
	require.Equal(t, []simtime.Time{0, 5, 10}, times)
}

func TestHandlerErrorAbortsRun(t *testing.T) {
	s := New(nil)
	boom := errors.New("boom")
	after := false
	_, _ = s.ScheduleAt(1, "fail", func() error { return boom })
	_, _ = s.ScheduleAt(2, "after", func() error { after = true; return nil })

	err := s.Run(context.Background())
	require.ErrorIs(t, err, boom)
	require.False(t, after)
	require.Equal(t, 1, s.Pending())
}

func TestRunUntil(t *testing.T) {
	s := New(nil)
	var got []simtime.Time
	for _, at := range []simtime.Time{5, 10, 15} {
		at := at
		_, err := s.ScheduleAt(at, "e", func() error { got = append(got, at); return nil })
		require.NoError(t, err)
	}
	require.NoError(t, s.RunUntil(context.Background(), 10))
	require.Equal(t, []simtime.Time{5, 10}, got)
	require.Equal(t, 1, s.Pending())

	require.NoError(t, s.RunUntil(context.Background(), 12))
	require.Equal(t, simtime.Time(12), s.Now())
}

func TestRunHonoursContext(t *testing.T) {
	s := New(nil)
	_, _ = s.ScheduleAt(1, "e", func() error { return nil })
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, s.Run(ctx), context.Canceled)
	require.Equal(t, 1, s.Pending())
}
