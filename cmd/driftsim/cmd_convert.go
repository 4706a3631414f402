package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/daviddao/driftsim/pkg/clock"
	"github.com/daviddao/driftsim/pkg/config"
	"github.com/daviddao/driftsim/pkg/sim"
	"github.com/daviddao/driftsim/pkg/signal"
	"github.com/daviddao/driftsim/pkg/simtime"
)

// maxWindows bounds how far convert advances a hardware clock while
// waiting for a timestamp to become resolvable.
const maxWindows = 1 << 16

// conversion is the result of the convert command.
type conversion struct {
	Model  string       `json:"model"`
	Drift  float64      `json:"drift"`
	Local  simtime.Time `json:"local"`
	Global simtime.Time `json:"global"`
	Offset simtime.Time `json:"offset"`
}

func newConvertCmd(opts *rootOptions) *cobra.Command {
	var (
		model   string
		d       float64
		reverse bool
	)
	cmd := &cobra.Command{
		Use:   "convert <time>",
		Short: "Translate a timestamp between a drifting clock and global time",
		Long: `Translate a local timestamp of a clock started at global time zero to the
global time at which the clock shows it. With --reverse the argument is a
global time and the clock's reading at that instant is printed.

Hardware clocks use a constant drift and the default window parameters.`,
		Example: `  driftsim convert 1s --model quadratic --drift 1e-6
  driftsim convert 250ms --model hardware --drift -2e-5 --reverse`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := simtime.Parse(args[0])
			if err != nil {
				return err
			}
			a := &app{json: opts.json}
			logger, err := newLogger(opts.verbose)
			if err != nil {
				return err
			}
			a.logger = logger
			defer logger.Sync() //nolint:errcheck

			conv, err := a.convert(cmd.Context(), model, d, t, reverse)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if a.json {
				printJSON(out, conv)
				return nil
			}
			fmt.Fprintf(out, "clock   %s(%g)\n", conv.Model, conv.Drift)
			fmt.Fprintf(out, "local   %s (%d ps)\n", conv.Local, int64(conv.Local))
			fmt.Fprintf(out, "global  %s (%d ps)\n", conv.Global, int64(conv.Global))
			fmt.Fprintf(out, "offset  %s\n", conv.Offset)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&model, "model", config.ClockQuadratic, "clock model: perfect, quadratic, search or hardware")
	f.Float64Var(&d, "drift", 0, "drift of the clock")
	f.BoolVar(&reverse, "reverse", false, "treat the argument as global time")
	return cmd
}

func (a *app) convert(ctx context.Context, model string, d float64, t simtime.Time, reverse bool) (*conversion, error) {
	if t < 0 {
		return nil, clock.TemporalOrderf("negative timestamp %s", t)
	}
	cc := config.ClockConfig{Type: model}
	switch model {
	case config.ClockQuadratic, config.ClockSearch:
		cc.Drift = &d
	case config.ClockHardware:
		cc.ConstantDrift = &d
		cc.Interval = config.DefaultInterval
		cc.Update = config.DefaultUpdate
	}

	s := sim.New(a.logger.Named("sim"))
	clk, err := cc.Build("convert", config.ClockEnv{
		Host:   s,
		Bus:    signal.NewBus("convert", a.logger),
		Logger: a.logger.Named("clock"),
	})
	if err != nil {
		return nil, err
	}
	hw, _ := clk.(*clock.Hardware)
	if hw != nil {
		if err := hw.Start(); err != nil {
			return nil, err
		}
		defer hw.Stop()
	}

	conv := &conversion{Model: model, Drift: d}
	if model == config.ClockPerfect {
		conv.Drift = 0
	}
	if reverse {
		if err := s.RunUntil(ctx, t); err != nil {
			return nil, err
		}
		conv.Global, conv.Local = t, clk.Now()
	} else {
		conv.Local = t
		global, ok, err := clk.ToGlobal(t)
		// A hardware clock only resolves timestamps inside its window;
		// let it advance until the window covers t.
		for i := 0; err == nil && !ok && hw != nil && i < maxWindows; i++ {
			if err = s.RunUntil(ctx, s.Now()+hw.Properties().UpdateInterval()); err == nil {
				global, ok, err = clk.ToGlobal(t)
			}
		}
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%s is not reached by the clock", t)
		}
		conv.Global = global
	}
	conv.Offset = conv.Local - conv.Global
	return conv, nil
}
