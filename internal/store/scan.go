package store

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/scylladb/argus-sub001/internal/model"
)

// rowScanner covers *sql.Row, *sql.Rows and pgx.Row/pgx.Rows, so both
// backends share the decode helpers below.
type rowScanner interface {
	Scan(dest ...any) error
}

// rowIterator covers *sql.Rows and pgx.Rows.
type rowIterator interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func marshalTableMetadata(meta *model.TableMetadata) (columns, rows, rules []byte, err error) {
	if columns, err = json.Marshal(meta.ColumnsMeta); err != nil {
		return nil, nil, nil, eris.Wrap(err, "store: marshal columns meta")
	}
	if rows, err = json.Marshal(meta.RowsMeta); err != nil {
		return nil, nil, nil, eris.Wrap(err, "store: marshal rows meta")
	}
	if rules, err = json.Marshal(meta.ValidationRules); err != nil {
		return nil, nil, nil, eris.Wrap(err, "store: marshal validation rules")
	}
	return columns, rows, rules, nil
}

func scanTableMetadata(row rowScanner) (*model.TableMetadata, error) {
	var (
		meta                 model.TableMetadata
		subjectID            string
		columns, rows, rules []byte
	)
	err := row.Scan(&subjectID, &meta.Name, &meta.Description, &meta.SUTPackageName, &columns, &rows, &rules)
	if err != nil {
		return nil, err
	}
	if meta.SubjectID, err = uuid.Parse(subjectID); err != nil {
		return nil, eris.Wrapf(err, "store: table subject id %q", subjectID)
	}
	if err := json.Unmarshal(columns, &meta.ColumnsMeta); err != nil {
		return nil, eris.Wrap(err, "store: decode columns meta")
	}
	if err := json.Unmarshal(rows, &meta.RowsMeta); err != nil {
		return nil, eris.Wrap(err, "store: decode rows meta")
	}
	if err := json.Unmarshal(rules, &meta.ValidationRules); err != nil {
		return nil, eris.Wrap(err, "store: decode validation rules")
	}
	return &meta, nil
}

func collectDataPoints(rows rowIterator) ([]model.DataPoint, error) {
	var result []model.DataPoint
	for rows.Next() {
		var (
			p                model.DataPoint
			subjectID, runID string
			status           string
		)
		err := rows.Scan(&subjectID, &p.TableName, &runID, &p.Column, &p.Row, &p.SUTTimestamp, &p.Value, &p.ValueText, &status)
		if err != nil {
			return nil, eris.Wrap(err, "store: scan result cell")
		}
		if p.SubjectID, err = uuid.Parse(subjectID); err != nil {
			return nil, eris.Wrapf(err, "store: cell subject id %q", subjectID)
		}
		if p.RunID, err = uuid.Parse(runID); err != nil {
			return nil, eris.Wrapf(err, "store: cell run id %q", runID)
		}
		p.Status = model.Status(status)
		result = append(result, p)
	}
	return result, eris.Wrap(rows.Err(), "store: iterate result cells")
}

func scanRun(row rowScanner) (*model.Run, error) {
	var (
		run           model.Run
		id, subjectID string
		packages      []byte
	)
	err := row.Scan(&id, &subjectID, &run.BuildID, &run.StartedAt, &packages, &run.Ignored)
	if err != nil {
		return nil, err
	}
	if run.ID, err = uuid.Parse(id); err != nil {
		return nil, eris.Wrapf(err, "store: run id %q", id)
	}
	if run.SubjectID, err = uuid.Parse(subjectID); err != nil {
		return nil, eris.Wrapf(err, "store: run subject id %q", subjectID)
	}
	if len(packages) > 0 {
		if err := json.Unmarshal(packages, &run.Packages); err != nil {
			return nil, eris.Wrap(err, "store: decode run packages")
		}
	}
	return &run, nil
}

func scanGraphView(row rowScanner) (*model.GraphView, error) {
	var (
		view              model.GraphView
		subjectID, viewID string
	)
	err := row.Scan(&subjectID, &viewID, &view.Name, &view.Description, &view.Graphs, &view.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if view.SubjectID, err = uuid.Parse(subjectID); err != nil {
		return nil, eris.Wrapf(err, "store: view subject id %q", subjectID)
	}
	if view.ViewID, err = uuid.Parse(viewID); err != nil {
		return nil, eris.Wrapf(err, "store: view id %q", viewID)
	}
	return &view, nil
}
