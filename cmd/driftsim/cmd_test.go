package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/daviddao/driftsim/pkg/config"
	"github.com/daviddao/driftsim/pkg/model"
	"github.com/daviddao/driftsim/pkg/simtime"
	"github.com/daviddao/driftsim/pkg/store"
)

const scenario = `
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
pingpong: {initiator: anchor, responder: tag, period: 100ms, reply_delay: 1ms}
`

// execute runs the CLI with args and returns what it wrote.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetErr(&buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

// setup writes the scenario and returns the scenario and database paths.
func setup(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "ranging.yaml")
	if err := os.WriteFile(path, []byte(scenario), 0o644); err != nil {
		t.Fatal(err)
	}
	return path, filepath.Join(dir, "journal.db")
}

func runScenario(t *testing.T, path, db string) *runReport {
	t.Helper()
	out, err := execute(t, "--db", db, "--json", "run", path)
	if err != nil {
		t.Fatalf("run: %v\n%s", err, out)
	}
	var rep runReport
	if err := json.Unmarshal([]byte(out), &rep); err != nil {
		t.Fatalf("decode report: %v\n%s", err, out)
	}
	return &rep
}

// --- envOr tests ---

func TestEnvOr_EnvSet(t *testing.T) {
	t.Setenv("TEST_DRIFTSIM_ENV", "hello")
	if got := envOr("TEST_DRIFTSIM_ENV", "default"); got != "hello" {
		t.Fatalf("envOr with set env: got %q, want %q", got, "hello")
	}
}

func TestEnvOr_EmptyEnv(t *testing.T) {
	t.Setenv("TEST_DRIFTSIM_EMPTY", "")
	if got := envOr("TEST_DRIFTSIM_EMPTY", "default"); got != "default" {
		t.Fatalf("envOr with empty env: got %q, want %q", got, "default")
	}
}

// --- helpers ---

func TestTimeFlag(t *testing.T) {
	var v simtime.Time
	f := (*timeFlag)(&v)
	if err := f.Set("250ms"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if v != 250*simtime.Millisecond {
		t.Fatalf("got %s, want 250ms", v)
	}
	if err := f.Set("soon"); err == nil {
		t.Fatal("expected error for bad time")
	}
	if f.Type() != "time" {
		t.Fatalf("Type = %q", f.Type())
	}
}

func TestFormatDelivery(t *testing.T) {
	tx := formatDelivery(model.Delivery{Node: "anchor", Peer: "tag", Dir: model.DirTX, Kind: model.FramePoll, Seq: 3})
	if !strings.Contains(tx, "anchor -> tag") || !strings.Contains(tx, "#3") {
		t.Fatalf("tx line = %q", tx)
	}
	rx := formatDelivery(model.Delivery{Node: "tag", Peer: "anchor", Dir: model.DirRX, Kind: model.FramePoll})
	if !strings.Contains(rx, "tag <- anchor") {
		t.Fatalf("rx line = %q", rx)
	}
}

func TestShortID(t *testing.T) {
	if got := shortID("0123456789abcdef"); got != "01234567" {
		t.Fatalf("shortID = %q", got)
	}
	if got := shortID("abc"); got != "abc" {
		t.Fatalf("shortID = %q", got)
	}
}

// --- run ---

// cancelOnCreate cancels the run's context as soon as the run row exists,
// like a Ctrl-C right after start.
type cancelOnCreate struct {
	*store.Store
	cancel context.CancelFunc
}

func (c *cancelOnCreate) CreateRun(ctx context.Context, scenario string, seed uint64, d simtime.Time) (*model.Run, error) {
	r, err := c.Store.CreateRun(ctx, scenario, seed, d)
	c.cancel()
	return r, err
}

func TestRunInterruptedIsMarkedFailed(t *testing.T) {
	path, db := setup(t)
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	s, err := store.New(db, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a := &app{store: &cancelOnCreate{Store: s, cancel: cancel}, logger: zap.NewNop()}
	run, err := a.runScenario(ctx, "ranging.yaml", cfg, 0)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if run == nil {
		t.Fatal("interrupted run was not recorded")
	}
	if run.Status != model.RunFailed || run.FinishedAt == nil {
		t.Fatalf("run = %+v, want failed with a finish time", run)
	}
}

func TestRunJournalsScenario(t *testing.T) {
	path, db := setup(t)
	rep := runScenario(t, path, db)

	if rep.Run.Status != model.RunFinished {
		t.Fatalf("status = %s, error %q", rep.Run.Status, rep.Run.Error)
	}
	if rep.Run.Scenario != "ranging.yaml" || rep.Run.Seed != 7 {
		t.Fatalf("run = %+v", rep.Run)
	}
	if rep.Run.Events == 0 {
		t.Fatal("no events processed")
	}
	if rep.Deliveries != 16 || rep.Exchanges != 4 || rep.Complete != 4 {
		t.Fatalf("deliveries=%d exchanges=%d complete=%d, want 16/4/4",
			rep.Deliveries, rep.Exchanges, rep.Complete)
	}
	if rep.TimeOfFlight == nil || rep.TimeOfFlight.Count != 4 {
		t.Fatalf("time of flight = %+v", rep.TimeOfFlight)
	}
	if len(rep.Clocks) != 1 || rep.Clocks[0].Node != "anchor" || rep.Clocks[0].HoldPoints != 20+10*45 {
		t.Fatalf("clocks = %+v", rep.Clocks)
	}
	d := rep.Clocks[0].Drift
	if d.Min < -1e-5 || d.Max > 1e-5 {
		t.Fatalf("drift outside its distribution: %+v", d)
	}
}

func TestRunOverrides(t *testing.T) {
	path, db := setup(t)
	out, err := execute(t, "--db", db, "--json", "run", path, "--seed", "11", "--duration", "150ms")
	if err != nil {
		t.Fatalf("run: %v\n%s", err, out)
	}
	var rep runReport
	if err := json.Unmarshal([]byte(out), &rep); err != nil {
		t.Fatal(err)
	}
	if rep.Run.Seed != 11 || rep.Run.Duration != 150*simtime.Millisecond {
		t.Fatalf("overrides not applied: %+v", rep.Run)
	}
	if rep.Complete != 1 {
		t.Fatalf("complete = %d, want 1", rep.Complete)
	}

	if _, err := execute(t, "--db", db, "run", path, "--duration", "-1s"); err == nil {
		t.Fatal("expected error for negative duration")
	}
}

func TestRunRejectsBadScenario(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	os.WriteFile(path, []byte("nodes: []\n"), 0o644)
	if _, err := execute(t, "--db", filepath.Join(dir, "j.db"), "run", path); err == nil {
		t.Fatal("expected error for scenario without nodes")
	}
	if _, err := execute(t, "--db", filepath.Join(dir, "j.db"), "run"); err == nil {
		t.Fatal("expected error without scenario argument")
	}
}

func TestRunTextOutput(t *testing.T) {
	path, db := setup(t)
	out, err := execute(t, "--db", db, "run", path)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	for _, want := range []string{"(finished) ranging.yaml", "16 (4 exchanges, 4 complete)", "clock anchor", "470 hold points"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

// --- log ---

func TestLog(t *testing.T) {
	path, db := setup(t)
	runScenario(t, path, db)

	out, err := execute(t, "--db", db, "log", "--limit", "5")
	if err != nil {
		t.Fatalf("log: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 5 {
		t.Fatalf("got %d lines, want 5:\n%s", len(lines), out)
	}
	if !strings.Contains(lines[0], "anchor -> tag") || !strings.Contains(lines[0], "poll") {
		t.Fatalf("first delivery should be the anchor's poll: %q", lines[0])
	}

	out, err = execute(t, "--db", db, "--json", "log", "--node", "tag")
	if err != nil {
		t.Fatalf("log --json: %v", err)
	}
	var res struct {
		Deliveries []model.Delivery `json:"deliveries"`
		Count      int              `json:"count"`
	}
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatal(err)
	}
	if res.Count != 8 {
		t.Fatalf("tag deliveries = %d, want 8", res.Count)
	}
	for _, d := range res.Deliveries {
		if d.Node != "tag" {
			t.Fatalf("unexpected node %q", d.Node)
		}
	}
}

func TestLogWithoutRuns(t *testing.T) {
	_, db := setup(t)
	if _, err := execute(t, "--db", db, "log"); err == nil {
		t.Fatal("expected error for empty journal")
	}
}

// --- window ---

func TestWindow(t *testing.T) {
	path, db := setup(t)
	runScenario(t, path, db)

	out, err := execute(t, "--db", db, "window", "--node", "anchor", "--from", "5ms", "--to", "8ms")
	if err != nil {
		t.Fatalf("window: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 4 {
		t.Fatalf("got %d lines, want header + 3:\n%s", len(lines), out)
	}

	out, _ = execute(t, "--db", db, "window", "--node", "tag")
	if !strings.Contains(out, "no hold points") {
		t.Fatalf("quadratic clock has no hold points, got:\n%s", out)
	}

	if _, err := execute(t, "--db", db, "window"); err == nil {
		t.Fatal("expected error without --node")
	}
}

// --- status ---

func TestStatus(t *testing.T) {
	path, db := setup(t)
	first := runScenario(t, path, db)
	runScenario(t, path, db)

	out, err := execute(t, "--db", db, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d runs, want 2:\n%s", len(lines), out)
	}
	if !strings.HasPrefix(lines[1], shortID(first.Run.ID)) {
		t.Fatalf("oldest run should be listed last:\n%s", out)
	}

	out, err = execute(t, "--db", db, "--json", "status", shortID(first.Run.ID))
	if err != nil {
		t.Fatalf("status <run>: %v", err)
	}
	var rep runReport
	if err := json.Unmarshal([]byte(out), &rep); err != nil {
		t.Fatal(err)
	}
	if rep.Run.ID != first.Run.ID || rep.Complete != 4 {
		t.Fatalf("report = %+v", rep)
	}

	if _, err := execute(t, "--db", db, "status", "nonexistent"); err == nil {
		t.Fatal("expected error for unknown run")
	}
}

// --- convert ---

func convert(t *testing.T, args ...string) conversion {
	t.Helper()
	out, err := execute(t, append([]string{"--json", "convert"}, args...)...)
	if err != nil {
		t.Fatalf("convert %v: %v\n%s", args, err, out)
	}
	var c conversion
	if err := json.Unmarshal([]byte(out), &c); err != nil {
		t.Fatal(err)
	}
	return c
}

func within(got, want, delta simtime.Time) bool {
	d := got - want
	return d >= -delta && d <= delta
}

func TestConvertQuadratic(t *testing.T) {
	c := convert(t, "1s", "--model", "quadratic", "--drift", "1e-6")
	// g + 0.5e-6 g^2 = 1s
	if !within(c.Global, 999_999_500_000, 2) {
		t.Fatalf("global = %d ps", int64(c.Global))
	}

	back := convert(t, c.Global.String(), "--model", "quadratic", "--drift", "1e-6", "--reverse")
	if !within(back.Local, simtime.Second, 2) {
		t.Fatalf("round trip local = %d ps", int64(back.Local))
	}

	s := convert(t, "1s", "--model", "search", "--drift", "1e-6")
	if !within(s.Global, c.Global, 2) {
		t.Fatalf("search %d ps, quadratic %d ps", int64(s.Global), int64(c.Global))
	}
}

func TestConvertHardware(t *testing.T) {
	// 50ms lies beyond the initial 20ms window.
	c := convert(t, "50ms", "--model", "hardware", "--drift", "1e-5")
	if !within(c.Global, 49_999_500_005, 1) {
		t.Fatalf("global = %d ps", int64(c.Global))
	}

	r := convert(t, "50ms", "--model", "hardware", "--drift", "1e-5", "--reverse")
	if r.Local != 50_000_500_000 {
		t.Fatalf("local = %d ps", int64(r.Local))
	}
	if r.Offset != 500*simtime.Nanosecond {
		t.Fatalf("offset = %s", r.Offset)
	}
}

func TestConvertPerfect(t *testing.T) {
	c := convert(t, "3ms", "--model", "perfect", "--drift", "1")
	if c.Global != 3*simtime.Millisecond || c.Offset != 0 || c.Drift != 0 {
		t.Fatalf("perfect = %+v", c)
	}
}

func TestConvertErrors(t *testing.T) {
	for _, args := range [][]string{
		{"convert", "--", "-1ms"},
		{"convert", "1s", "--model", "atomic"},
		{"convert", "soon"},
		{"convert", "2s", "--model", "quadratic", "--drift", "-0.5"},
	} {
		if _, err := execute(t, args...); err == nil {
			t.Errorf("expected error for %v", args)
		}
	}
}
