package results

import (
	"github.com/rotisserie/eris"

	"github.com/scylladb/argus-sub001/internal/store"
)

// ErrValidation reports that at least one cell of a submission ended up
// ERROR. All writes have already happened when it is returned.
var ErrValidation = eris.New("results: validation failure")

// ErrBadDefinition reports an inconsistent table definition, e.g. a
// validation rule naming a column the schema does not define or a TEXT
// column. Nothing is persisted.
var ErrBadDefinition = eris.New("results: bad table definition")

// Service is the results engine facade: ingestion, read models, charts and
// graph views over a single store.
type Service struct {
	store   store.Store
	tracker *Tracker

	// chartWorkers bounds the per-table fan-out of chart assembly.
	chartWorkers int
}

// NewService builds a Service over the given store.
func NewService(st store.Store) *Service {
	return &Service{
		store:        st,
		tracker:      NewTracker(st),
		chartWorkers: 4,
	}
}

// SetChartWorkers overrides the chart assembly concurrency limit.
func (s *Service) SetChartWorkers(n int) {
	if n > 0 {
		s.chartWorkers = n
	}
}

// Store exposes the underlying store for read-only callers (CLI, HTTP).
func (s *Service) Store() store.Store {
	return s.store
}
