package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/daviddao/driftsim/pkg/model"
	"github.com/daviddao/driftsim/pkg/store"
)

// app holds shared state for all CLI subcommands.
type app struct {
	store  store.StoreInterface
	logger *zap.Logger
	json   bool
}

// newApp opens the journal and builds the logger.
// Creates the .driftsim/ directory if using the default DB path.
func newApp(opts *rootOptions) (*app, error) {
	if opts.dbPath == defaultDB {
		if err := os.MkdirAll(defaultDir, 0755); err != nil {
			return nil, fmt.Errorf("cannot create %s: %w", defaultDir, err)
		}
	}
	logger, err := newLogger(opts.verbose)
	if err != nil {
		return nil, err
	}
	s, err := store.New(opts.dbPath, logger.Named("store"))
	if err != nil {
		_ = logger.Sync()
		return nil, fmt.Errorf("cannot open database %q: %w", opts.dbPath, err)
	}
	return &app{store: s, logger: logger, json: opts.json}, nil
}

// newLogger returns a development logger when verbose and otherwise one
// that only reports warnings, such as clamped clock parameters.
func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}

// Close releases the database connection.
func (a *app) Close() {
	_ = a.logger.Sync()
	a.store.Close()
}

// resolveRun returns the run named by a full ID or prefix, or the latest
// run when arg is empty.
func (a *app) resolveRun(arg string) (*model.Run, error) {
	if arg == "" {
		r, err := a.store.LatestRun()
		if err != nil {
			return nil, fmt.Errorf("no runs yet: %w", err)
		}
		return r, nil
	}
	return a.store.GetRun(arg)
}

// optionalArg returns args[0] or "".
func optionalArg(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return ""
}

// printJSON writes v to w as indented JSON.
func printJSON(w io.Writer, v interface{}) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
