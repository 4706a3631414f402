package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newStatusCmd(opts *rootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "status [run]",
		Short: "List journaled runs, or summarize one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts)
			if err != nil {
				return err
			}
			defer a.Close()
			out := cmd.OutOrStdout()

			if len(args) == 1 {
				run, err := a.resolveRun(args[0])
				if err != nil {
					return err
				}
				rep, err := buildReport(a.store, run)
				if err != nil {
					return fmt.Errorf("status: %w", err)
				}
				if a.json {
					printJSON(out, rep)
				} else {
					printReport(out, rep)
				}
				return nil
			}

			runs, err := a.store.ListRuns(limit)
			if err != nil {
				return fmt.Errorf("status: %w", err)
			}
			if a.json {
				printJSON(out, map[string]interface{}{"runs": runs, "count": len(runs)})
				return nil
			}
			if len(runs) == 0 {
				fmt.Fprintln(out, "no runs")
				return nil
			}
			for _, r := range runs {
				fmt.Fprintf(out, "%s  %-8s %-24s seed=%-4d duration=%-10s events=%-10s %s\n",
					shortID(r.ID), r.Status, r.Scenario, r.Seed, r.Duration,
					humanize.Comma(int64(r.Events)), humanize.Time(r.StartedAt))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "max runs to list")
	return cmd
}
