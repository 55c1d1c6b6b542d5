package results

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/scylladb/argus-sub001/internal/model"
	"github.com/scylladb/argus-sub001/internal/resilience"
	"github.com/scylladb/argus-sub001/internal/store"
)

// Submit ingests one results payload for a run.
//
// The pipeline: resolve the run to its subject, merge the submitted schema
// into the stored table metadata (writing only when something changed),
// evaluate every cell against the rules and the pre-batch best snapshot,
// persist the whole cell batch, then feed accepted values to the best
// tracker. Cells are immutable once written; a failing submission still
// persists everything and only then reports ErrValidation.
func (s *Service) Submit(ctx context.Context, runID uuid.UUID, payload model.ResultsPayload) error {
	run, err := s.store.GetRun(ctx, runID)
	if err != nil {
		return err
	}

	if err := validateDefinition(payload); err != nil {
		return err
	}

	meta, err := s.mergeMetadata(ctx, run.SubjectID, payload)
	if err != nil {
		return err
	}

	sutTS := time.Unix(payload.SUTTimestamp, 0).UTC()
	if payload.SUTTimestamp == 0 {
		sutTS = run.StartedAt.UTC()
	}

	snap, err := s.tracker.Snapshot(ctx, run.SubjectID, meta.Name)
	if err != nil {
		return err
	}

	points := make([]model.DataPoint, 0, len(payload.Results))
	evaluated := make([]bool, len(payload.Results))
	failed := false

	for i, cell := range payload.Results {
		column := meta.Column(cell.Column)
		evaluated[i] = cell.Status == model.StatusUnset || cell.Status == ""

		var best *model.BestResult
		if column.Tracked() {
			best = snap.Latest(model.BestKey(cell.Column, cell.Row))
		}
		status := EvaluateCell(cell, *column, meta.ValidationRules[cell.Column], best)
		if status == model.StatusError {
			failed = true
		}

		points = append(points, dataPoint(run.SubjectID, meta.Name, runID, cell, *column, sutTS, status))
	}

	err = resilience.Do(ctx, resilience.DefaultRetryConfig(), func(ctx context.Context) error {
		return s.store.InsertDataPoints(ctx, points)
	})
	if err != nil {
		return err
	}

	// Best tracking runs after the whole batch is evaluated and persisted.
	// Only cells this engine judged (not caller-asserted statuses) feed it.
	for i, cell := range payload.Results {
		column := meta.Column(cell.Column)
		if !evaluated[i] || !column.Tracked() {
			continue
		}
		value, ok := cell.Value.Float()
		if !ok {
			continue
		}
		key := model.BestKey(cell.Column, cell.Row)
		updated, err := s.tracker.ConsiderUpdate(ctx, run.SubjectID, meta.Name, snap, key, value, sutTS, runID, *column.HigherIsBetter)
		if err != nil {
			return err
		}
		if updated {
			zap.L().Info("new best result",
				zap.String("table", meta.Name),
				zap.String("key", key),
				zap.Float64("value", value))
		}
	}

	if failed {
		return eris.Wrapf(ErrValidation, "table %s", meta.Name)
	}
	return nil
}

// validateDefinition rejects inconsistent submissions before any evaluation
// or write: rules must target known non-TEXT columns, cells must reference
// defined columns, and asserted statuses must be known.
func validateDefinition(payload model.ResultsPayload) error {
	if payload.Meta.Name == "" {
		return eris.Wrap(ErrBadDefinition, "table name is empty")
	}
	for column := range payload.Meta.ValidationRules {
		meta := payload.Meta.Column(column)
		if meta == nil {
			return eris.Wrapf(ErrBadDefinition, "rule targets unknown column %q", column)
		}
		if meta.Type == model.TypeText {
			return eris.Wrapf(ErrBadDefinition, "rule targets TEXT column %q", column)
		}
	}
	for _, cell := range payload.Results {
		if payload.Meta.Column(cell.Column) == nil {
			return eris.Wrapf(ErrBadDefinition, "cell references unknown column %q", cell.Column)
		}
		if cell.Status != "" && !cell.Status.Valid() {
			return eris.Wrapf(ErrBadDefinition, "unknown status %q", cell.Status)
		}
	}
	return nil
}

// mergeMetadata loads or creates the table metadata record, folds the
// submitted schema and any novel cell rows into it, and persists only when
// something actually changed.
func (s *Service) mergeMetadata(ctx context.Context, subjectID uuid.UUID, payload model.ResultsPayload) (*model.TableMetadata, error) {
	now := time.Now().UTC()

	meta, err := s.store.GetTableMetadata(ctx, subjectID, payload.Meta.Name)
	switch {
	case eris.Is(err, store.ErrNotFound):
		meta = model.NewTableMetadata(subjectID, payload.Meta, now)
		meta.AppendRows(cellRows(payload.Results))
		if err := s.store.PutTableMetadata(ctx, meta); err != nil {
			return nil, err
		}
		return meta, nil
	case err != nil:
		return nil, err
	}

	changed := meta.ApplyUpdate(payload.Meta, now)
	if meta.AppendRows(cellRows(payload.Results)) {
		changed = true
	}
	if changed {
		if err := s.store.PutTableMetadata(ctx, meta); err != nil {
			return nil, err
		}
	}
	return meta, nil
}

func cellRows(cells []model.Cell) []string {
	rows := make([]string, 0, len(cells))
	for _, c := range cells {
		rows = append(rows, c.Row)
	}
	return rows
}

func dataPoint(subjectID uuid.UUID, tableName string, runID uuid.UUID, cell model.Cell, column model.ColumnMeta, sutTS time.Time, status model.Status) model.DataPoint {
	p := model.DataPoint{
		SubjectID:    subjectID,
		TableName:    tableName,
		RunID:        runID,
		Column:       cell.Column,
		Row:          cell.Row,
		SUTTimestamp: sutTS,
		Status:       status,
	}
	if column.Type == model.TypeText {
		text := cell.ValueText
		if text == "" {
			if t, ok := cell.Value.Text(); ok {
				text = t
			}
		}
		p.ValueText = &text
	} else if v, ok := cell.Value.Float(); ok {
		p.Value = &v
	}
	return p
}
