// Package store manages the SQLite run journal for driftsim.
//
// Every `driftsim run` opens a run row, streams the hold points of its
// hardware clocks and the frame deliveries of its nodes into the journal,
// and closes the run with its final status. The read side (`log`, `window`,
// `status`) works from the same database, so results can be inspected
// after the process exits.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/daviddao/driftsim/pkg/model"
	"github.com/daviddao/driftsim/pkg/simtime"

	_ "modernc.org/sqlite"
)

// ErrRunNotFound is returned when no run matches an ID or prefix.
var ErrRunNotFound = fmt.Errorf("run not found")

// timeLayout is fixed width so stored timestamps sort as strings.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store manages all SQLite operations with WAL mode for concurrent access.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// New opens (or creates) the SQLite database and initializes the schema.
// A nil logger discards contention logs.
func New(path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(60000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &Store{db: db, logger: logger}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error { return s.db.Close() }

// retryOnContention runs a write under the default retry config. Every
// write goes through it so a reader next to a simulation cannot fail the run.
func (s *Store) retryOnContention(ctx context.Context, op string, fn func(context.Context) error) error {
	return retryOp(ctx, defaultRetryConfig, s.logger, op, fn)
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id          TEXT PRIMARY KEY,
		scenario    TEXT NOT NULL,
		seed        INTEGER NOT NULL,
		duration_ps INTEGER NOT NULL,
		status      TEXT NOT NULL,
		events      INTEGER NOT NULL DEFAULT 0,
		error       TEXT,
		started_at  TEXT NOT NULL,
		finished_at TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);

	CREATE TABLE IF NOT EXISTS hold_points (
		run_id      TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		node        TEXT NOT NULL,
		real_ps     INTEGER NOT NULL,
		hardware_ps INTEGER NOT NULL,
		drift       REAL NOT NULL,
		PRIMARY KEY (run_id, node, real_ps)
	);

	CREATE TABLE IF NOT EXISTS deliveries (
		id        INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id    TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		node      TEXT NOT NULL,
		peer      TEXT NOT NULL,
		dir       TEXT NOT NULL,
		kind      TEXT NOT NULL,
		seq       INTEGER NOT NULL,
		local_ps  INTEGER NOT NULL,
		global_ps INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_deliveries_run ON deliveries(run_id, global_ps);
	CREATE INDEX IF NOT EXISTS idx_deliveries_node ON deliveries(run_id, node, global_ps);
	`
	_, err := s.db.Exec(schema)
	return err
}

// ---------------------------------------------------------------------------
// Runs
// ---------------------------------------------------------------------------

// CreateRun opens a new run in the running state.
func (s *Store) CreateRun(ctx context.Context, scenario string, seed uint64, duration simtime.Time) (*model.Run, error) {
	r := &model.Run{
		ID:        uuid.NewString(),
		Scenario:  scenario,
		Seed:      seed,
		Duration:  duration,
		Status:    model.RunRunning,
		StartedAt: time.Now().UTC(),
	}
	err := s.retryOnContention(ctx, "create run", func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO runs (id, scenario, seed, duration_ps, status, started_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			r.ID, r.Scenario, int64(r.Seed), int64(r.Duration), string(r.Status),
			r.StartedAt.Format(timeLayout),
		)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}
	return r, nil
}

// FinishRun records the outcome of a run. A non-nil runErr marks it failed.
func (s *Store) FinishRun(ctx context.Context, id string, events uint64, runErr error) error {
	status := model.RunFinished
	var msg sql.NullString
	if runErr != nil {
		status = model.RunFailed
		msg = sql.NullString{String: runErr.Error(), Valid: true}
	}
	now := time.Now().UTC().Format(timeLayout)
	return s.retryOnContention(ctx, "finish run", func(ctx context.Context) error {
		res, err := s.db.ExecContext(ctx,
			`UPDATE runs SET status = ?, events = ?, error = ?, finished_at = ? WHERE id = ?`,
			string(status), int64(events), msg, now, id,
		)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("finish run %s: %w", id, ErrRunNotFound)
		}
		return nil
	})
}

const runColumns = `id, scenario, seed, duration_ps, status, events, COALESCE(error,''), started_at, finished_at`

// GetRun retrieves a run by full ID or unique ID prefix.
func (s *Store) GetRun(idOrPrefix string) (*model.Run, error) {
	rows, err := s.db.Query(
		`SELECT `+runColumns+` FROM runs WHERE id LIKE ? || '%' ORDER BY started_at DESC, rowid DESC LIMIT 2`,
		idOrPrefix,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	runs, err := scanRuns(rows)
	if err != nil {
		return nil, err
	}
	switch {
	case len(runs) == 0:
		return nil, fmt.Errorf("%q: %w", idOrPrefix, ErrRunNotFound)
	case len(runs) > 1 && runs[0].ID != idOrPrefix:
		return nil, fmt.Errorf("run prefix %q is ambiguous", idOrPrefix)
	}
	return &runs[0], nil
}

// LatestRun returns the most recently started run.
func (s *Store) LatestRun() (*model.Run, error) {
	runs, err := s.ListRuns(1)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, ErrRunNotFound
	}
	return &runs[0], nil
}

// ListRuns returns runs, newest first.
func (s *Store) ListRuns(limit int) ([]model.Run, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(
		`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRuns(rows)
}

// DeleteRun removes a run and everything journaled for it.
func (s *Store) DeleteRun(ctx context.Context, id string) error {
	return s.retryOnContention(ctx, "delete run", func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
		return err
	})
}

func scanRuns(rows *sql.Rows) ([]model.Run, error) {
	var runs []model.Run
	for rows.Next() {
		var r model.Run
		var seed, dur, events int64
		var status, startedStr string
		var finished sql.NullString
		if err := rows.Scan(&r.ID, &r.Scenario, &seed, &dur, &status, &events,
			&r.Error, &startedStr, &finished); err != nil {
			return nil, err
		}
		r.Seed = uint64(seed)
		r.Duration = simtime.Time(dur)
		r.Status = model.RunStatus(status)
		r.Events = uint64(events)
		var parseErr error
		r.StartedAt, parseErr = time.Parse(timeLayout, startedStr)
		if parseErr != nil {
			return nil, fmt.Errorf("parse started_at for run %s: %w", r.ID, parseErr)
		}
		if finished.Valid {
			t, err := time.Parse(timeLayout, finished.String)
			if err != nil {
				return nil, fmt.Errorf("parse finished_at for run %s: %w", r.ID, err)
			}
			r.FinishedAt = &t
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// ---------------------------------------------------------------------------
// Hold points
// ---------------------------------------------------------------------------

// InsertHoldPoints appends hold points in a single transaction.
func (s *Store) InsertHoldPoints(ctx context.Context, hps []model.HoldPoint) error {
	if len(hps) == 0 {
		return nil
	}
	return s.retryOnContention(ctx, "insert hold points", func(ctx context.Context) error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO hold_points (run_id, node, real_ps, hardware_ps, drift) VALUES (?, ?, ?, ?, ?)`,
		)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, hp := range hps {
			if _, err := stmt.ExecContext(ctx, hp.RunID, hp.Node, int64(hp.RealTime), int64(hp.HardwareTime), hp.Drift); err != nil {
				return err
			}
		}
		return tx.Commit()
	})
}

// ListHoldPoints returns a node's hold points with from <= real time < to,
// ordered by real time. A zero to means no upper bound.
func (s *Store) ListHoldPoints(runID, node string, from, to simtime.Time, limit int) ([]model.HoldPoint, error) {
	if limit <= 0 {
		limit = 100
	}
	if to == 0 {
		to = simtime.Max
	}
	rows, err := s.db.Query(
		`SELECT run_id, node, real_ps, hardware_ps, drift FROM hold_points
		 WHERE run_id = ? AND node = ? AND real_ps >= ? AND real_ps < ?
		 ORDER BY real_ps ASC LIMIT ?`,
		runID, node, int64(from), int64(to), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hps []model.HoldPoint
	for rows.Next() {
		var hp model.HoldPoint
		var real, hw int64
		if err := rows.Scan(&hp.RunID, &hp.Node, &real, &hw, &hp.Drift); err != nil {
			return nil, err
		}
		hp.RealTime = simtime.Time(real)
		hp.HardwareTime = simtime.Time(hw)
		hps = append(hps, hp)
	}
	return hps, rows.Err()
}

// HoldPointDrifts returns every drift value journaled for a node.
func (s *Store) HoldPointDrifts(runID, node string) ([]float64, error) {
	rows, err := s.db.Query(
		`SELECT drift FROM hold_points WHERE run_id = ? AND node = ? ORDER BY real_ps`, runID, node,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []float64
	for rows.Next() {
		var d float64
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// CountHoldPoints returns the number of hold points journaled per node.
func (s *Store) CountHoldPoints(runID string) (map[string]int64, error) {
	rows, err := s.db.Query(
		`SELECT node, COUNT(*) FROM hold_points WHERE run_id = ? GROUP BY node ORDER BY node`, runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := make(map[string]int64)
	for rows.Next() {
		var node string
		var n int64
		if err := rows.Scan(&node, &n); err != nil {
			return nil, err
		}
		counts[node] = n
	}
	return counts, rows.Err()
}

// ---------------------------------------------------------------------------
// Deliveries
// ---------------------------------------------------------------------------

// InsertDeliveries appends deliveries in a single transaction and fills in
// their row IDs.
func (s *Store) InsertDeliveries(ctx context.Context, ds []model.Delivery) error {
	if len(ds) == 0 {
		return nil
	}
	return s.retryOnContention(ctx, "insert deliveries", func(ctx context.Context) error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO deliveries (run_id, node, peer, dir, kind, seq, local_ps, global_ps)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		)
		if err != nil {
			return err
		}
		defer stmt.Close()
		ids := make([]int64, len(ds))
		for i, d := range ds {
			res, err := stmt.ExecContext(ctx, d.RunID, d.Node, d.Peer, string(d.Dir), string(d.Kind),
				int64(d.Seq), int64(d.Local), int64(d.Global))
			if err != nil {
				return err
			}
			if ids[i], err = res.LastInsertId(); err != nil {
				return err
			}
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit deliveries: %w", err)
		}
		for i := range ds {
			ds[i].ID = ids[i]
		}
		return nil
	})
}

// ListDeliveries returns a run's deliveries in global time order. An empty
// node selects all nodes.
func (s *Store) ListDeliveries(runID, node string, limit int) ([]model.Delivery, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(
		`SELECT id, run_id, node, peer, dir, kind, seq, local_ps, global_ps FROM deliveries
		 WHERE run_id = ? AND (? = '' OR node = ?)
		 ORDER BY global_ps ASC, id ASC LIMIT ?`,
		runID, node, node, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ds []model.Delivery
	for rows.Next() {
		var d model.Delivery
		var dir, kind string
		var seq, local, global int64
		if err := rows.Scan(&d.ID, &d.RunID, &d.Node, &d.Peer, &dir, &kind, &seq, &local, &global); err != nil {
			return nil, err
		}
		d.Dir = model.Direction(dir)
		d.Kind = model.FrameKind(kind)
		d.Seq = uint64(seq)
		d.Local = simtime.Time(local)
		d.Global = simtime.Time(global)
		ds = append(ds, d)
	}
	return ds, rows.Err()
}

// CountDeliveries returns the number of deliveries journaled for a run.
func (s *Store) CountDeliveries(runID string) int64 {
	var count int64
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM deliveries WHERE run_id = ?`, runID).Scan(&count); err != nil {
		return 0
	}
	return count
}
