package results

import (
	"context"

	"github.com/google/uuid"

	"github.com/scylladb/argus-sub001/internal/model"
)

// TableRunResults is the display form of one table's cells for a single
// run: the table schema plus a row → column → cell mapping.
type TableRunResults struct {
	Meta  model.TableMetadata                   `json:"meta"`
	Cells map[string]map[string]model.DataPoint `json:"cells"`
}

// RunResults builds the per-table result view of one run. Tables without
// any cells for the run are omitted.
func (s *Service) RunResults(ctx context.Context, subjectID, runID uuid.UUID) ([]TableRunResults, error) {
	points, err := s.store.ListRunDataPoints(ctx, subjectID, runID)
	if err != nil {
		return nil, err
	}
	if len(points) == 0 {
		return nil, nil
	}

	byTable := map[string][]model.DataPoint{}
	for _, p := range points {
		byTable[p.TableName] = append(byTable[p.TableName], p)
	}

	tables, err := s.store.ListTableMetadata(ctx, subjectID)
	if err != nil {
		return nil, err
	}

	var out []TableRunResults
	for _, meta := range tables {
		tablePoints := byTable[meta.Name]
		if len(tablePoints) == 0 {
			continue
		}
		cells := map[string]map[string]model.DataPoint{}
		for _, p := range tablePoints {
			if cells[p.Row] == nil {
				cells[p.Row] = map[string]model.DataPoint{}
			}
			cells[p.Row][p.Column] = p
		}
		out = append(out, TableRunResults{Meta: meta, Cells: cells})
	}
	return out, nil
}
