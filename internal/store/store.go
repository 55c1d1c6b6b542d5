// Package store persists the results engine's four logical relations: table
// metadata, immutable result cells, the best-value ledger and saved graph
// views, plus the run registry that resolves submissions to subjects.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/scylladb/argus-sub001/internal/model"
)

// ErrNotFound is returned when a run, table or view does not exist.
var ErrNotFound = eris.New("store: not found")

// ErrConflict is returned by AppendBestResult when the ledger advanced past
// the expected latest record between read and write. Callers re-read and
// retry instead of losing the update.
var ErrConflict = eris.New("store: conflict")

// DataFilter narrows a result-cell scan to a sut_timestamp window.
type DataFilter struct {
	StartDate *time.Time
	EndDate   *time.Time
}

// Store is the persistence interface for the results engine.
type Store interface {
	// Table metadata
	GetTableMetadata(ctx context.Context, subjectID uuid.UUID, name string) (*model.TableMetadata, error)
	PutTableMetadata(ctx context.Context, meta *model.TableMetadata) error
	ListTableMetadata(ctx context.Context, subjectID uuid.UUID) ([]model.TableMetadata, error)

	// Result cells (append-only)
	InsertDataPoints(ctx context.Context, points []model.DataPoint) error
	ListDataPoints(ctx context.Context, subjectID uuid.UUID, tableName string, filter DataFilter) ([]model.DataPoint, error)
	ListRunDataPoints(ctx context.Context, subjectID, runID uuid.UUID) ([]model.DataPoint, error)

	// Best-value ledger (append-only, per column:row key, history ascending)
	ListBestResults(ctx context.Context, subjectID uuid.UUID, tableName string) (map[string][]model.BestResult, error)
	AppendBestResult(ctx context.Context, subjectID uuid.UUID, tableName string, rec model.BestResult, expectedLatestID string) error

	// Run registry
	CreateRun(ctx context.Context, run *model.Run) error
	GetRun(ctx context.Context, runID uuid.UUID) (*model.Run, error)
	ListRuns(ctx context.Context, subjectID uuid.UUID) ([]model.Run, error)
	SetRunIgnored(ctx context.Context, runID uuid.UUID, ignored bool) error

	// Graph views
	PutGraphView(ctx context.Context, view *model.GraphView) error
	GetGraphView(ctx context.Context, subjectID, viewID uuid.UUID) (*model.GraphView, error)
	ListGraphViews(ctx context.Context, subjectID uuid.UUID) ([]model.GraphView, error)
	DeleteGraphView(ctx context.Context, subjectID, viewID uuid.UUID) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
