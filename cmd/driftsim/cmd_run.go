package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/daviddao/driftsim/pkg/config"
	"github.com/daviddao/driftsim/pkg/model"
	"github.com/daviddao/driftsim/pkg/simtime"
	"github.com/daviddao/driftsim/pkg/store"
)

func newRunCmd(opts *rootOptions) *cobra.Command {
	var (
		seed     uint64
		duration simtime.Time
		batch    int
	)
	cmd := &cobra.Command{
		Use:   "run <scenario.yaml>",
		Short: "Run a scenario and journal its hold points and deliveries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(args[0])
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("seed") {
				cfg.Seed = seed
			}
			if cmd.Flags().Changed("duration") {
				cfg.Duration = duration
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			a, err := newApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			run, runErr := a.runScenario(cmd.Context(), filepath.Base(args[0]), cfg, batch)
			if run == nil {
				return runErr
			}
			rep, err := buildReport(a.store, run)
			if err != nil {
				return err
			}
			if a.json {
				printJSON(cmd.OutOrStdout(), rep)
			} else {
				printReport(cmd.OutOrStdout(), rep)
			}
			return runErr
		},
	}
	f := cmd.Flags()
	f.Uint64Var(&seed, "seed", 0, "override the scenario seed")
	f.Var((*timeFlag)(&duration), "duration", "override the scenario duration (e.g. 10s, 250ms)")
	f.IntVar(&batch, "batch", store.DefaultBatch, "journal records written per transaction")
	return cmd
}

// runScenario executes cfg and journals it. The returned run is nil only
// when the journal could not be opened; otherwise it reflects the final
// status, and the error is the run's own failure.
func (a *app) runScenario(ctx context.Context, name string, cfg *config.Config, batch int) (*model.Run, error) {
	run, err := a.store.CreateRun(ctx, name, cfg.Seed, cfg.Duration)
	if err != nil {
		return nil, err
	}
	logger := a.logger.With(zap.String("run", shortID(run.ID)))
	journal := store.NewRunJournal(ctx, a.store, run.ID, batch)

	var events uint64
	runErr := func() error {
		sc, err := cfg.Build(config.Sinks{Journal: journal, Recorder: journal}, logger)
		if err != nil {
			return err
		}
		err = sc.Run(ctx)
		events = sc.Sim.Processed()
		return err
	}()
	if err := journal.Flush(); err != nil {
		runErr = errors.CombineErrors(runErr, errors.Wrap(err, "flush journal"))
	}
	// An interrupted run is still marked failed.
	if err := a.store.FinishRun(context.WithoutCancel(ctx), run.ID, events, runErr); err != nil {
		return nil, errors.CombineErrors(runErr, err)
	}
	if runErr != nil {
		logger.Warn("run failed", zap.Error(runErr))
		runErr = fmt.Errorf("run %s: %w", shortID(run.ID), runErr)
	}
	done, err := a.store.GetRun(run.ID)
	if err != nil {
		return nil, errors.CombineErrors(runErr, err)
	}
	return done, runErr
}

// timeFlag adapts simtime.Time to pflag.Value.
type timeFlag simtime.Time

var _ pflag.Value = (*timeFlag)(nil)

func (t *timeFlag) String() string { return simtime.Time(*t).String() }
func (t *timeFlag) Type() string   { return "time" }
func (t *timeFlag) Set(s string) error {
	v, err := simtime.Parse(s)
	if err != nil {
		return err
	}
	*t = timeFlag(v)
	return nil
}
