package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/scylladb/argus-sub001/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS result_tables (
	subject_id       TEXT NOT NULL,
	name             TEXT NOT NULL,
	description      TEXT NOT NULL DEFAULT '',
	sut_package_name TEXT NOT NULL DEFAULT '',
	columns_meta     TEXT NOT NULL,
	rows_meta        TEXT NOT NULL,
	validation_rules TEXT NOT NULL,
	updated_at       DATETIME NOT NULL,
	PRIMARY KEY (subject_id, name)
);

CREATE TABLE IF NOT EXISTS result_cells (
	subject_id    TEXT NOT NULL,
	table_name    TEXT NOT NULL,
	run_id        TEXT NOT NULL,
	column_name   TEXT NOT NULL,
	row_name      TEXT NOT NULL,
	sut_timestamp DATETIME NOT NULL,
	value         REAL,
	value_text    TEXT,
	status        TEXT NOT NULL,
	PRIMARY KEY (subject_id, table_name, run_id, column_name, row_name)
);

CREATE TABLE IF NOT EXISTS best_results (
	seq           INTEGER PRIMARY KEY AUTOINCREMENT,
	id            TEXT NOT NULL UNIQUE,
	subject_id    TEXT NOT NULL,
	table_name    TEXT NOT NULL,
	key           TEXT NOT NULL,
	value         REAL NOT NULL,
	result_date   DATETIME NOT NULL,
	sut_timestamp DATETIME NOT NULL,
	run_id        TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	subject_id TEXT NOT NULL,
	build_id   TEXT NOT NULL DEFAULT '',
	started_at DATETIME NOT NULL,
	packages   TEXT NOT NULL DEFAULT '[]',
	ignored    INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS graph_views (
	subject_id  TEXT NOT NULL,
	view_id     TEXT NOT NULL,
	name        TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	graphs      BLOB,
	updated_at  DATETIME NOT NULL,
	PRIMARY KEY (subject_id, view_id)
);

CREATE INDEX IF NOT EXISTS idx_result_cells_table ON result_cells(subject_id, table_name, sut_timestamp);
CREATE INDEX IF NOT EXISTS idx_result_cells_column ON result_cells(column_name);
CREATE INDEX IF NOT EXISTS idx_result_cells_row ON result_cells(row_name);
CREATE INDEX IF NOT EXISTS idx_best_results_key ON best_results(subject_id, table_name, key);
CREATE INDEX IF NOT EXISTS idx_runs_subject ON runs(subject_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) GetTableMetadata(ctx context.Context, subjectID uuid.UUID, name string) (*model.TableMetadata, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT subject_id, name, description, sut_package_name, columns_meta, rows_meta, validation_rules
		 FROM result_tables WHERE subject_id = ? AND name = ?`,
		subjectID.String(), name,
	)
	meta, err := scanTableMetadata(row)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: table %s", name)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get table %s", name)
	}
	return meta, nil
}

func (s *SQLiteStore) PutTableMetadata(ctx context.Context, meta *model.TableMetadata) error {
	columns, rows, rules, err := marshalTableMetadata(meta)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO result_tables (subject_id, name, description, sut_package_name, columns_meta, rows_meta, validation_rules, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (subject_id, name) DO UPDATE SET
		   description = excluded.description,
		   sut_package_name = excluded.sut_package_name,
		   columns_meta = excluded.columns_meta,
		   rows_meta = excluded.rows_meta,
		   validation_rules = excluded.validation_rules,
		   updated_at = excluded.updated_at`,
		meta.SubjectID.String(), meta.Name, meta.Description, meta.SUTPackageName,
		columns, rows, rules, time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: put table %s", meta.Name)
}

func (s *SQLiteStore) ListTableMetadata(ctx context.Context, subjectID uuid.UUID) ([]model.TableMetadata, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT subject_id, name, description, sut_package_name, columns_meta, rows_meta, validation_rules
		 FROM result_tables WHERE subject_id = ? ORDER BY name`,
		subjectID.String(),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list tables")
	}
	defer rows.Close()

	var result []model.TableMetadata
	for rows.Next() {
		meta, err := scanTableMetadata(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan table")
		}
		result = append(result, *meta)
	}
	return result, eris.Wrap(rows.Err(), "sqlite: list tables")
}

func (s *SQLiteStore) InsertDataPoints(ctx context.Context, points []model.DataPoint) error {
	if len(points) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin insert cells")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO result_cells (subject_id, table_name, run_id, column_name, row_name, sut_timestamp, value, value_text, status)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare insert cell")
	}
	defer stmt.Close()

	for _, p := range points {
		_, err := stmt.ExecContext(ctx,
			p.SubjectID.String(), p.TableName, p.RunID.String(), p.Column, p.Row,
			p.SUTTimestamp.UTC(), p.Value, p.ValueText, string(p.Status),
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert cell %s:%s", p.Column, p.Row)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit insert cells")
}

func (s *SQLiteStore) ListDataPoints(ctx context.Context, subjectID uuid.UUID, tableName string, filter DataFilter) ([]model.DataPoint, error) {
	query := `SELECT subject_id, table_name, run_id, column_name, row_name, sut_timestamp, value, value_text, status
	          FROM result_cells WHERE subject_id = ? AND table_name = ?`
	args := []any{subjectID.String(), tableName}

	if filter.StartDate != nil {
		query += ` AND sut_timestamp >= ?`
		args = append(args, filter.StartDate.UTC())
	}
	if filter.EndDate != nil {
		query += ` AND sut_timestamp <= ?`
		args = append(args, filter.EndDate.UTC())
	}
	query += ` ORDER BY sut_timestamp ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list cells %s", tableName)
	}
	defer rows.Close()
	return collectDataPoints(rows)
}

func (s *SQLiteStore) ListRunDataPoints(ctx context.Context, subjectID, runID uuid.UUID) ([]model.DataPoint, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT subject_id, table_name, run_id, column_name, row_name, sut_timestamp, value, value_text, status
		 FROM result_cells WHERE subject_id = ? AND run_id = ? ORDER BY table_name, row_name, column_name`,
		subjectID.String(), runID.String(),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list run cells %s", runID)
	}
	defer rows.Close()
	return collectDataPoints(rows)
}

func (s *SQLiteStore) ListBestResults(ctx context.Context, subjectID uuid.UUID, tableName string) (map[string][]model.BestResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, key, value, result_date, sut_timestamp, run_id
		 FROM best_results WHERE subject_id = ? AND table_name = ? ORDER BY seq ASC`,
		subjectID.String(), tableName,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list best results %s", tableName)
	}
	defer rows.Close()

	result := make(map[string][]model.BestResult)
	for rows.Next() {
		var rec model.BestResult
		var runID string
		if err := rows.Scan(&rec.ID, &rec.Key, &rec.Value, &rec.ResultDate, &rec.SUTTimestamp, &runID); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan best result")
		}
		rec.RunID, err = uuid.Parse(runID)
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: best result run id %q", runID)
		}
		result[rec.Key] = append(result[rec.Key], rec)
	}
	return result, eris.Wrap(rows.Err(), "sqlite: list best results")
}

// AppendBestResult appends a ledger record only if the latest record for the
// key still matches expectedLatestID (empty = key has no records yet). The
// guard runs inside a single INSERT..SELECT so concurrent writers cannot both
// succeed; the loser gets ErrConflict and must re-read.
func (s *SQLiteStore) AppendBestResult(ctx context.Context, subjectID uuid.UUID, tableName string, rec model.BestResult, expectedLatestID string) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO best_results (id, subject_id, table_name, key, value, result_date, sut_timestamp, run_id)
		 SELECT ?, ?, ?, ?, ?, ?, ?, ?
		 WHERE COALESCE((
		   SELECT id FROM best_results
		   WHERE subject_id = ? AND table_name = ? AND key = ?
		   ORDER BY seq DESC LIMIT 1
		 ), '') = ?`,
		rec.ID, subjectID.String(), tableName, rec.Key, rec.Value,
		rec.ResultDate.UTC(), rec.SUTTimestamp.UTC(), rec.RunID.String(),
		subjectID.String(), tableName, rec.Key, expectedLatestID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: append best result %s", rec.Key)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: append best result rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrConflict, "sqlite: best result %s advanced", rec.Key)
	}
	return nil
}

func (s *SQLiteStore) CreateRun(ctx context.Context, run *model.Run) error {
	packages, err := json.Marshal(run.Packages)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal packages")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, subject_id, build_id, started_at, packages, ignored) VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID.String(), run.SubjectID.String(), run.BuildID, run.StartedAt.UTC(), string(packages), run.Ignored,
	)
	return eris.Wrapf(err, "sqlite: insert run %s", run.ID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID uuid.UUID) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, subject_id, build_id, started_at, packages, ignored FROM runs WHERE id = ?`,
		runID.String(),
	)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: run %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get run %s", runID)
	}
	return run, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, subjectID uuid.UUID) ([]model.Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, subject_id, build_id, started_at, packages, ignored FROM runs WHERE subject_id = ? ORDER BY started_at ASC`,
		subjectID.String(),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var result []model.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		result = append(result, *run)
	}
	return result, eris.Wrap(rows.Err(), "sqlite: list runs")
}

func (s *SQLiteStore) SetRunIgnored(ctx context.Context, runID uuid.UUID, ignored bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET ignored = ? WHERE id = ?`,
		ignored, runID.String(),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set run ignored %s", runID)
	}
	return checkRowsAffected(res, "run", runID.String())
}

func (s *SQLiteStore) PutGraphView(ctx context.Context, view *model.GraphView) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO graph_views (subject_id, view_id, name, description, graphs, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (subject_id, view_id) DO UPDATE SET
		   name = excluded.name,
		   description = excluded.description,
		   graphs = excluded.graphs,
		   updated_at = excluded.updated_at`,
		view.SubjectID.String(), view.ViewID.String(), view.Name, view.Description, view.Graphs, time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: put graph view %s", view.ViewID)
}

func (s *SQLiteStore) GetGraphView(ctx context.Context, subjectID, viewID uuid.UUID) (*model.GraphView, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT subject_id, view_id, name, description, graphs, updated_at FROM graph_views WHERE subject_id = ? AND view_id = ?`,
		subjectID.String(), viewID.String(),
	)
	view, err := scanGraphView(row)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: graph view %s", viewID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get graph view %s", viewID)
	}
	return view, nil
}

func (s *SQLiteStore) ListGraphViews(ctx context.Context, subjectID uuid.UUID) ([]model.GraphView, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT subject_id, view_id, name, description, graphs, updated_at FROM graph_views WHERE subject_id = ? ORDER BY name`,
		subjectID.String(),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list graph views")
	}
	defer rows.Close()

	var result []model.GraphView
	for rows.Next() {
		view, err := scanGraphView(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan graph view")
		}
		result = append(result, *view)
	}
	return result, eris.Wrap(rows.Err(), "sqlite: list graph views")
}

func (s *SQLiteStore) DeleteGraphView(ctx context.Context, subjectID, viewID uuid.UUID) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM graph_views WHERE subject_id = ? AND view_id = ?`,
		subjectID.String(), viewID.String(),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete graph view %s", viewID)
	}
	return checkRowsAffected(res, "graph view", viewID.String())
}

func checkRowsAffected(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "sqlite: %s %s", kind, id)
	}
	return nil
}
