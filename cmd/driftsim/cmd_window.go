package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/daviddao/driftsim/pkg/simtime"
)

func newWindowCmd(opts *rootOptions) *cobra.Command {
	var (
		node     string
		from, to simtime.Time
		limit    int
	)
	cmd := &cobra.Command{
		Use:   "window [run]",
		Short: "Show the hold points of a node's hardware clock",
		Long: `Show the hold points journaled for a node's hardware clock with
from <= real time < to. Each hold point pairs a global instant with the
clock's reading and the drift that applies until the next hold point.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()

			run, err := a.resolveRun(optionalArg(args))
			if err != nil {
				return err
			}
			hps, err := a.store.ListHoldPoints(run.ID, node, from, to, limit)
			if err != nil {
				return fmt.Errorf("window: %w", err)
			}

			out := cmd.OutOrStdout()
			if a.json {
				printJSON(out, map[string]interface{}{"run": run.ID, "node": node, "hold_points": hps})
				return nil
			}
			if len(hps) == 0 {
				fmt.Fprintf(out, "no hold points for %q\n", node)
				return nil
			}
			fmt.Fprintf(out, "%-16s %-16s %-12s %s\n", "real", "hardware", "deviation", "drift")
			for _, hp := range hps {
				fmt.Fprintf(out, "%-16s %-16s %-12s %+.6e\n", hp.RealTime, hp.HardwareTime, hp.Deviation(), hp.Drift)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&node, "node", "", "node whose clock to show (required)")
	f.Var((*timeFlag)(&from), "from", "first real time to show")
	f.Var((*timeFlag)(&to), "to", "show real times before this (default: no bound)")
	f.IntVar(&limit, "limit", 20, "max hold points to return")
	_ = cmd.MarkFlagRequired("node")
	return cmd
}
