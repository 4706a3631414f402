package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"

	"github.com/daviddao/driftsim/pkg/clock"
	"github.com/daviddao/driftsim/pkg/drift"
	"github.com/daviddao/driftsim/pkg/model"
	"github.com/daviddao/driftsim/pkg/node"
	"github.com/daviddao/driftsim/pkg/sim"
	"github.com/daviddao/driftsim/pkg/simtime"
)

const sample = `
duration: 450ms
seed: 7
medium: {delay: 100ns}
nodes:
  - name: anchor
    clock: {type: hardware, interval: 1ms, update: 10,
            drift_distribution: "uniform(-1e-5, 1e-5)",
            max_drift_variation: 1e-4, start_value: 0}
  - name: tag
    clock: {type: quadratic, drift: 1e-6}
  - name: relay
    clock: {type: search, drift: -1e-6}
  - name: ref
pingpong: {initiator: anchor, responder: tag, period: 100ms, reply_delay: 1ms}
`

func TestParseSample(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)
	require.Equal(t, 450*simtime.Millisecond, cfg.Duration)
	require.Equal(t, uint64(7), cfg.Seed)
	require.Equal(t, 100*simtime.Nanosecond, cfg.Medium.Delay)
	require.Len(t, cfg.Nodes, 4)

	hw := cfg.Nodes[0].Clock
	require.Equal(t, ClockHardware, hw.Type)
	require.Equal(t, simtime.Millisecond, hw.Interval)
	require.Equal(t, 10, hw.Update)
	require.Equal(t, "uniform(-1e-5, 1e-5)", hw.DriftDistribution)
	require.NotNil(t, hw.MaxDriftVariation)
	require.Equal(t, 1e-4, *hw.MaxDriftVariation)

	require.Equal(t, ClockPerfect, cfg.Nodes[3].Clock.Type)
	require.Equal(t, 100*simtime.Millisecond, cfg.PingPong.Period)
	require.Equal(t, simtime.Millisecond, cfg.PingPong.ReplyDelay)
}

func TestDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
nodes:
  - name: a
    clock: {type: hardware, constant_drift: 1e-6}
`))
	require.NoError(t, err)
	require.Equal(t, DefaultDuration, cfg.Duration)
	require.Equal(t, uint64(DefaultSeed), cfg.Seed)
	require.Equal(t, DefaultInterval, cfg.Nodes[0].Clock.Interval)
	require.Equal(t, DefaultUpdate, cfg.Nodes[0].Clock.Update)
}

func TestParseErrors(t *testing.T) {
	cases := map[string]string{
		"no nodes":        `duration: 1s`,
		"unknown field":   "nodes: [{name: a}]\nbogus: 1",
		"bad time":        "duration: soon\nnodes: [{name: a}]",
		"negative delay":  "medium: {delay: -1ms}\nnodes: [{name: a}]",
		"duplicate node":  "nodes: [{name: a}, {name: a}]",
		"unnamed node":    "nodes: [{clock: {type: perfect}}]",
		"unknown type":    "nodes: [{name: a, clock: {type: atomic}}]",
		"quadratic drift": "nodes: [{name: a, clock: {type: quadratic}}]",
		"search drift":    "nodes: [{name: a, clock: {type: search}}]",
		"hardware drift":  "nodes: [{name: a, clock: {type: hardware}}]",
		"bad dist":        `nodes: [{name: a, clock: {type: hardware, drift_distribution: "gamma(1, 2)"}}]`,
		"neg variation":   `nodes: [{name: a, clock: {type: hardware, drift_distribution: "uniform(0, 1)", max_drift_variation: -1}}]`,
		"pingpong node":   "nodes: [{name: a}]\npingpong: {initiator: a, responder: b, period: 1ms}",
		"pingpong period": "nodes: [{name: a}, {name: b}]\npingpong: {initiator: a, responder: b}",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			require.Error(t, err)
			require.True(t, errors.Is(err, clock.ErrConfig), "%v", err)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.Nodes, 4)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func f(v float64) *float64 { return &v }

func TestDriftSourceSelection(t *testing.T) {
	props := clock.NewProperties(simtime.Millisecond, 10, nil)
	rng := drift.NewRand(1)

	src, err := ClockConfig{DriftDistribution: "uniform(0, 1)", MaxDriftVariation: f(1e-3)}.driftSource(props, rng)
	require.NoError(t, err)
	require.IsType(t, &drift.BoundedVariation{}, src)

	src, err = ClockConfig{DriftDistribution: "uniform(0, 1)", ConstantDrift: f(5)}.driftSource(props, rng)
	require.NoError(t, err)
	require.IsType(t, drift.Bounded{}, src)

	src, err = ClockConfig{ConstantDrift: f(2e-6)}.driftSource(props, rng)
	require.NoError(t, err)
	require.Equal(t, drift.Constant{Value: 2e-6}, src)
}

func TestBuildClocks(t *testing.T) {
	s := sim.New(nil)
	env := ClockEnv{Host: s, Bus: nil, Rand: drift.NewRand(1)}

	c, err := ClockConfig{Type: ClockQuadratic, Drift: f(1e-6)}.Build("q", env)
	require.NoError(t, err)
	require.IsType(t, &clock.Quadratic{}, c)

	c, err = ClockConfig{Type: ClockSearch, Drift: f(1e-6)}.Build("s", env)
	require.NoError(t, err)
	require.IsType(t, &clock.Search{}, c)

	c, err = ClockConfig{Type: ClockPerfect}.Build("p", env)
	require.NoError(t, err)
	require.IsType(t, &clock.Perfect{}, c)

	// Too small window parameters are clamped, not rejected.
	c, err = ClockConfig{Type: ClockHardware, Interval: simtime.Microsecond, Update: 1, ConstantDrift: f(0)}.Build("h", env)
	require.NoError(t, err)
	hw := c.(*clock.Hardware)
	require.Equal(t, clock.MinInterval, hw.Properties().Interval)
	require.Equal(t, clock.MinUpdate, hw.Properties().Update)
}

type holdPoints struct{ n int }

func (h *holdPoints) RecordHoldPoint(string, clock.HoldPoint) error { h.n++; return nil }

func TestScenarioRun(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)

	journal := &node.MemoryJournal{}
	points := &holdPoints{}
	sc, err := cfg.Build(Sinks{Journal: journal, Recorder: points}, nil)
	require.NoError(t, err)
	require.Len(t, sc.Hardware, 1)
	_, ok := sc.Node("tag")
	require.True(t, ok)

	require.NoError(t, sc.Run(context.Background()))
	require.Equal(t, cfg.Duration, sc.Sim.Now())

	// Polls at roughly 100, 200, 300, 400ms of the anchor's clock.
	exchanges := model.PairExchanges(journal.Deliveries)
	require.Len(t, exchanges, 4)
	for _, ex := range exchanges {
		require.True(t, ex.Complete())
	}
	// 20 initial points plus 10 per update every 10ms.
	require.Equal(t, 20+10*45, points.n)

	// Stopped clocks refuse further translation.
	_, _, err = sc.Hardware[0].ToGlobal(sc.Hardware[0].Now())
	require.True(t, errors.IsAssertionFailure(err))
}

func TestScenarioIsReproducible(t *testing.T) {
	run := func() []model.Delivery {
		cfg, err := Parse([]byte(sample))
		require.NoError(t, err)
		journal := &node.MemoryJournal{}
		sc, err := cfg.Build(Sinks{Journal: journal}, nil)
		require.NoError(t, err)
		require.NoError(t, sc.Run(context.Background()))
		return journal.Deliveries
	}
	require.Equal(t, run(), run())
}
