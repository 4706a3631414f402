// iface.go defines the StoreInterface for dependency injection and testing.
//
// The concrete *Store type satisfies this interface. The cmd layer accepts
// StoreInterface so read-side commands can be exercised against fakes.
package store

import (
	"context"

	"github.com/daviddao/driftsim/pkg/model"
	"github.com/daviddao/driftsim/pkg/simtime"
)

// StoreInterface defines the full set of store operations.
// The concrete *Store type implements this interface.
type StoreInterface interface {
	// Close closes the database connection.
	Close() error

	// --- Runs ---
	//
	// Writes take a context: a cancelled run stops waiting out contention
	// backoff.

	// CreateRun opens a new run in the running state.
	CreateRun(ctx context.Context, scenario string, seed uint64, duration simtime.Time) (*model.Run, error)

	// FinishRun records the outcome of a run.
	FinishRun(ctx context.Context, id string, events uint64, runErr error) error

	// GetRun retrieves a run by full ID or unique ID prefix.
	GetRun(idOrPrefix string) (*model.Run, error)

	// LatestRun returns the most recently started run.
	LatestRun() (*model.Run, error)

	// ListRuns returns runs, newest first.
	ListRuns(limit int) ([]model.Run, error)

	// DeleteRun removes a run and its journal.
	DeleteRun(ctx context.Context, id string) error

	// --- Hold points ---

	InsertHoldPoints(ctx context.Context, hps []model.HoldPoint) error
	ListHoldPoints(runID, node string, from, to simtime.Time, limit int) ([]model.HoldPoint, error)
	HoldPointDrifts(runID, node string) ([]float64, error)
	CountHoldPoints(runID string) (map[string]int64, error)

	// --- Deliveries ---

	InsertDeliveries(ctx context.Context, ds []model.Delivery) error
	ListDeliveries(runID, node string, limit int) ([]model.Delivery, error)
	CountDeliveries(runID string) int64
}

// Compile-time check that *Store implements StoreInterface.
var _ StoreInterface = (*Store)(nil)
