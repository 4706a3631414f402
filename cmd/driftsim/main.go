// Command driftsim runs clock drift scenarios and inspects their journals.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
)

const version = "0.3.0"

const (
	defaultDir = ".driftsim"
	defaultDB  = defaultDir + "/driftsim.db"
)

// rootOptions are the persistent flags shared by all subcommands.
type rootOptions struct {
	dbPath  string
	verbose bool
	json    bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fatal("%v", err)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "driftsim",
		Short: "Simulate drifting node clocks and journal what they did",
		Long: `driftsim runs discrete-event scenarios in which every node keeps its own
drifting clock. Timers and frames are scheduled in local time; requests
beyond a hardware clock's horizon wait until the clock's window advances.

Runs are journaled to SQLite so hold points and frame deliveries can be
inspected after the fact.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&opts.dbPath, "db", envOr("DRIFTSIM_DB", defaultDB), "journal database path (env DRIFTSIM_DB)")
	pf.BoolVarP(&opts.verbose, "verbose", "v", false, "log simulation internals to stderr")
	pf.BoolVar(&opts.json, "json", false, "JSON output")

	root.AddCommand(
		newRunCmd(opts),
		newLogCmd(opts),
		newWindowCmd(opts),
		newConvertCmd(opts),
		newStatusCmd(opts),
	)
	return root
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "driftsim: "+format+"\n", args...)
	os.Exit(1)
}
