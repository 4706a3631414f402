// Package config loads driftsim scenario files.
//
// A scenario is a YAML document naming the nodes, their clock models, the
// medium connecting them and the ranging exchange to run:
//
//	duration: 10s
//	seed: 1
//	medium: {delay: 100ns}
//	nodes:
//	  - name: anchor
//	    clock: {type: hardware, interval: 1ms, update: 10,
//	            drift_distribution: "uniform(-1e-5, 1e-5)",
//	            max_drift_variation: 1e-4, start_value: 0}
//	  - name: tag
//	    clock: {type: quadratic, drift: 1e-6}
//	pingpong: {initiator: anchor, responder: tag, period: 100ms, reply_delay: 1ms}
//
// Times accept the suffixes s, ms, us, ns and ps; a bare number is seconds.
package config

import (
	"bytes"
	"os"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"

	"github.com/daviddao/driftsim/pkg/clock"
	"github.com/daviddao/driftsim/pkg/drift"
	"github.com/daviddao/driftsim/pkg/simtime"
)

// Clock types.
const (
	ClockPerfect   = "perfect"
	ClockQuadratic = "quadratic"
	ClockSearch    = "search"
	ClockHardware  = "hardware"
)

// Defaults applied to omitted fields.
const (
	DefaultDuration = simtime.Second
	DefaultSeed     = 1
	DefaultInterval = simtime.Millisecond
	DefaultUpdate   = 10
)

// Config is a scenario.
type Config struct {
	Duration simtime.Time    `yaml:"duration"`
	Seed     uint64          `yaml:"seed"`
	Medium   MediumConfig    `yaml:"medium"`
	Nodes    []NodeConfig    `yaml:"nodes"`
	PingPong *PingPongConfig `yaml:"pingpong"`
}

// MediumConfig configures the frame medium.
type MediumConfig struct {
	Delay simtime.Time `yaml:"delay"`
}

// NodeConfig configures one node.
type NodeConfig struct {
	Name  string      `yaml:"name"`
	Clock ClockConfig `yaml:"clock"`
}

// ClockConfig selects and parameterizes a clock model. Which fields apply
// depends on Type.
//
// For hardware clocks the drift source is chosen as follows:
// drift_distribution with max_drift_variation gives a bounded-variation
// source, drift_distribution alone a bounded source, and otherwise
// constant_drift a constant source.
type ClockConfig struct {
	Type string `yaml:"type"`

	// quadratic, search
	Drift *float64 `yaml:"drift"`

	// hardware
	Interval          simtime.Time `yaml:"interval"`
	Update            int          `yaml:"update"`
	DriftDistribution string       `yaml:"drift_distribution"`
	MaxDriftVariation *float64     `yaml:"max_drift_variation"`
	StartValue        float64      `yaml:"start_value"`
	ConstantDrift     *float64     `yaml:"constant_drift"`
}

// PingPongConfig configures the ranging exchange.
type PingPongConfig struct {
	Initiator  string       `yaml:"initiator"`
	Responder  string       `yaml:"responder"`
	Period     simtime.Time `yaml:"period"`
	ReplyDelay simtime.Time `yaml:"reply_delay"`
	Polls      int          `yaml:"polls"`
}

// Load reads and validates the scenario at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read scenario")
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "scenario %s", path)
	}
	return cfg, nil
}

// Parse decodes and validates a scenario. Unknown fields are rejected.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "decode"), clock.ErrConfig)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Duration == 0 {
		c.Duration = DefaultDuration
	}
	if c.Seed == 0 {
		c.Seed = DefaultSeed
	}
	for i := range c.Nodes {
		cc := &c.Nodes[i].Clock
		if cc.Type == "" {
			cc.Type = ClockPerfect
		}
		if cc.Type == ClockHardware {
			if cc.Interval == 0 {
				cc.Interval = DefaultInterval
			}
			if cc.Update == 0 {
				cc.Update = DefaultUpdate
			}
		}
	}
}

// Validate checks the scenario for configuration errors.
func (c *Config) Validate() error {
	if c.Duration <= 0 {
		return clock.Configf("duration %s must be positive", c.Duration)
	}
	if c.Medium.Delay < 0 {
		return clock.Configf("negative medium delay %s", c.Medium.Delay)
	}
	if len(c.Nodes) == 0 {
		return clock.Configf("no nodes")
	}
	seen := make(map[string]bool, len(c.Nodes))
	for _, n := range c.Nodes {
		if n.Name == "" {
			return clock.Configf("node without name")
		}
		if seen[n.Name] {
			return clock.Configf("duplicate node %q", n.Name)
		}
		seen[n.Name] = true
		if err := n.Clock.Validate(); err != nil {
			return errors.Wrapf(err, "node %q", n.Name)
		}
	}
	if pp := c.PingPong; pp != nil {
		for _, name := range []string{pp.Initiator, pp.Responder} {
			if !seen[name] {
				return clock.Configf("pingpong: unknown node %q", name)
			}
		}
		if err := pp.exchange().Validate(); err != nil {
			return errors.Mark(err, clock.ErrConfig)
		}
	}
	return nil
}

// Validate checks the clock parameters.
func (cc ClockConfig) Validate() error {
	switch cc.Type {
	case ClockPerfect:
		return nil
	case ClockQuadratic, ClockSearch:
		if cc.Drift == nil {
			return clock.Configf("%s clock requires drift", cc.Type)
		}
		return nil
	case ClockHardware:
		if cc.Interval <= 0 {
			return clock.Configf("hardware clock interval %s must be positive", cc.Interval)
		}
		if cc.Update <= 0 {
			return clock.Configf("hardware clock update %d must be positive", cc.Update)
		}
		if cc.DriftDistribution == "" && cc.ConstantDrift == nil {
			return clock.Configf("hardware clock requires drift_distribution or constant_drift")
		}
		if cc.DriftDistribution != "" {
			if _, err := drift.ParseDistribution(cc.DriftDistribution, nil); err != nil {
				return errors.Mark(err, clock.ErrConfig)
			}
		}
		if cc.MaxDriftVariation != nil && *cc.MaxDriftVariation < 0 {
			return clock.Configf("negative max_drift_variation %g", *cc.MaxDriftVariation)
		}
		return nil
	default:
		return clock.Configf("unknown clock type %q", cc.Type)
	}
}
