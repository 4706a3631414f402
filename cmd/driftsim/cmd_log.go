package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/daviddao/driftsim/pkg/model"
)

func newLogCmd(opts *rootOptions) *cobra.Command {
	var (
		node  string
		limit int
	)
	cmd := &cobra.Command{
		Use:   "log [run]",
		Short: "Show the frame deliveries of a run in global time order",
		Long: `Show the frame deliveries of a run (default: the latest) in global time
order. Each line carries the node's local reading and its offset from
global time when the frame was sent or received.`,
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
			ds, err := a.store.ListDeliveries(run.ID, node, limit)
			if err != nil {
				return fmt.Errorf("log: %w", err)
			}

			out := cmd.OutOrStdout()
			if a.json {
				printJSON(out, map[string]interface{}{"run": run.ID, "deliveries": ds, "count": len(ds)})
				return nil
			}
			if len(ds) == 0 {
				fmt.Fprintln(out, "no deliveries")
				return nil
			}
			for _, d := range ds {
				fmt.Fprintln(out, formatDelivery(d))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&node, "node", "", "only show deliveries at this node")
	cmd.Flags().IntVar(&limit, "limit", 50, "max deliveries to return")
	return cmd
}

func formatDelivery(d model.Delivery) string {
	arrow := "->"
	if d.Dir == model.DirRX {
		arrow = "<-"
	}
	return fmt.Sprintf("[%14s] %-10s %s %-10s %-8s #%-4d local=%-14s offset=%s",
		d.Global, d.Node, arrow, d.Peer, d.Kind, d.Seq, d.Local, d.Offset())
}
