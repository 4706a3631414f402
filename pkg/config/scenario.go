package config

import (
	"context"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"golang.org/x/exp/rand"

	"github.com/daviddao/driftsim/pkg/clock"
	"github.com/daviddao/driftsim/pkg/drift"
	"github.com/daviddao/driftsim/pkg/node"
	"github.com/daviddao/driftsim/pkg/signal"
	"github.com/daviddao/driftsim/pkg/sim"
)

// ClockEnv is what a clock needs from the running simulation.
type ClockEnv struct {
	Host     sim.Scheduler
	Bus      signal.Emitter
	Rand     *rand.Rand
	Recorder clock.HoldPointRecorder // optional
	Logger   *zap.Logger             // optional
}

// Build constructs the clock of node name.
func (cc ClockConfig) Build(name string, env ClockEnv) (clock.Clock, error) {
	if err := cc.Validate(); err != nil {
		return nil, err
	}
	switch cc.Type {
	case ClockPerfect:
		return clock.NewPerfect(env.Host), nil
	case ClockQuadratic:
		return clock.NewQuadratic(env.Host, *cc.Drift)
	case ClockSearch:
		return clock.NewSearch(env.Host, clock.QuadraticError(*cc.Drift))
	case ClockHardware:
		props := clock.NewProperties(cc.Interval, cc.Update, env.Logger)
		src, err := cc.driftSource(props, env.Rand)
		if err != nil {
			return nil, err
		}
		return clock.NewHardware(clock.HardwareParams{
			Name:       name,
			Properties: props,
			Source:     src,
			Recorder:   env.Recorder,
			Logger:     env.Logger,
		}, env.Host, env.Bus)
	}
	return nil, clock.Configf("unknown clock type %q", cc.Type)
}

func (cc ClockConfig) driftSource(props clock.Properties, rng *rand.Rand) (drift.Source, error) {
	if cc.DriftDistribution == "" {
		return drift.Constant{Value: *cc.ConstantDrift}, nil
	}
	dist, err := drift.ParseDistribution(cc.DriftDistribution, rng)
	if err != nil {
		return nil, errors.Mark(err, clock.ErrConfig)
	}
	if cc.MaxDriftVariation != nil {
		return drift.NewBoundedVariation(dist, *cc.MaxDriftVariation, cc.StartValue, props.Interval), nil
	}
	return drift.Bounded{Dist: dist}, nil
}

func (pp *PingPongConfig) exchange() *node.PingPong {
	return &node.PingPong{
		Initiator:  pp.Initiator,
		Responder:  pp.Responder,
		Period:     pp.Period,
		ReplyDelay: pp.ReplyDelay,
		Polls:      pp.Polls,
	}
}

// Sinks receive what a scenario produces. Both are optional.
type Sinks struct {
	Journal  node.Journal
	Recorder clock.HoldPointRecorder
}

// Scenario is a scenario wired onto a simulator.
type Scenario struct {
	Config   *Config
	Sim      *sim.Sim
	Medium   *node.Medium
	Nodes    []*node.Node
	Hardware []*clock.Hardware
	PingPong *node.PingPong

	logger *zap.Logger
}

// Build wires the scenario onto a fresh simulator. Each node gets its own
// bus on which its clock announces window updates.
func (c *Config) Build(sinks Sinks, logger *zap.Logger) (*Scenario, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := sim.New(logger.Named("sim"))
	sc := &Scenario{
		Config: c,
		Sim:    s,
		Medium: node.NewMedium(s, c.Medium.Delay, logger.Named("medium")),
		logger: logger,
	}
	if c.PingPong != nil {
		sc.PingPong = c.PingPong.exchange()
	}
	for i, nc := range c.Nodes {
		bus := signal.NewBus(nc.Name, logger)
		clk, err := nc.Clock.Build(nc.Name, ClockEnv{
			Host:     s,
			Bus:      bus,
			Rand:     drift.NewRand(c.Seed + uint64(i)),
			Recorder: sinks.Recorder,
			Logger:   logger.Named("clock"),
		})
		if err != nil {
			return nil, errors.Wrapf(err, "node %q", nc.Name)
		}
		if hw, ok := clk.(*clock.Hardware); ok {
			sc.Hardware = append(sc.Hardware, hw)
		}
		n := node.New(nc.Name, clk, s, bus, logger.Named("node"))
		if err := n.Join(sc.Medium); err != nil {
			return nil, err
		}
		if sinks.Journal != nil {
			n.SetJournal(sinks.Journal)
		}
		if sc.PingPong != nil {
			n.SetApp(sc.PingPong)
		}
		sc.Nodes = append(sc.Nodes, n)
	}
	return sc, nil
}

// Run starts clocks and applications, runs the simulator for the scenario
// duration and stops the clocks.
func (sc *Scenario) Run(ctx context.Context) error {
	for _, hw := range sc.Hardware {
		if err := hw.Start(); err != nil {
			return err
		}
	}
	defer sc.stop()
	for _, n := range sc.Nodes {
		if err := n.Start(); err != nil {
			return errors.Wrapf(err, "start node %q", n.Name())
		}
	}
	sc.logger.Info("scenario started",
		zap.Int("nodes", len(sc.Nodes)),
		zap.Stringer("duration", sc.Config.Duration))
	return sc.Sim.RunUntil(ctx, sc.Config.Duration)
}

func (sc *Scenario) stop() {
	for _, hw := range sc.Hardware {
		hw.Stop()
	}
}

// Node returns the node called name.
func (sc *Scenario) Node(name string) (*node.Node, bool) {
	for _, n := range sc.Nodes {
		if n.Name() == name {
			return n, true
		}
	}
	return nil, false
}
