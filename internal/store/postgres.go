package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/scylladb/argus-sub001/internal/db"
	"github.com/scylladb/argus-sub001/internal/model"
)

// PostgresStore implements Store on top of a pgx connection pool. Result
// cells are batch-inserted with the COPY protocol.
type PostgresStore struct {
	pool db.Pool
}

// NewPostgres connects a pool to the given database URL and pings it.
func NewPostgres(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresWithPool wraps an existing pool; tests pass a pgxmock pool here.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS result_tables (
	subject_id       UUID NOT NULL,
	name             TEXT NOT NULL,
	description      TEXT NOT NULL DEFAULT '',
	sut_package_name TEXT NOT NULL DEFAULT '',
	columns_meta     JSONB NOT NULL,
	rows_meta        JSONB NOT NULL,
	validation_rules JSONB NOT NULL,
	updated_at       TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (subject_id, name)
);

CREATE TABLE IF NOT EXISTS result_cells (
	subject_id    UUID NOT NULL,
	table_name    TEXT NOT NULL,
	run_id        UUID NOT NULL,
	column_name   TEXT NOT NULL,
	row_name      TEXT NOT NULL,
	sut_timestamp TIMESTAMPTZ NOT NULL,
	value         DOUBLE PRECISION,
	value_text    TEXT,
	status        TEXT NOT NULL,
	PRIMARY KEY (subject_id, table_name, run_id, column_name, row_name)
);

CREATE TABLE IF NOT EXISTS best_results (
	seq           BIGSERIAL PRIMARY KEY,
	id            TEXT NOT NULL UNIQUE,
	subject_id    UUID NOT NULL,
	table_name    TEXT NOT NULL,
	key           TEXT NOT NULL,
	value         DOUBLE PRECISION NOT NULL,
	result_date   TIMESTAMPTZ NOT NULL,
	sut_timestamp TIMESTAMPTZ NOT NULL,
	run_id        UUID NOT NULL
);

CREATE TABLE IF NOT EXISTS runs (
	id         UUID PRIMARY KEY,
	subject_id UUID NOT NULL,
	build_id   TEXT NOT NULL DEFAULT '',
	started_at TIMESTAMPTZ NOT NULL,
	packages   JSONB NOT NULL DEFAULT '[]',
	ignored    BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS graph_views (
	subject_id  UUID NOT NULL,
	view_id     UUID NOT NULL,
	name        TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	graphs      BYTEA,
	updated_at  TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (subject_id, view_id)
);

CREATE INDEX IF NOT EXISTS idx_result_cells_table ON result_cells(subject_id, table_name, sut_timestamp);
CREATE INDEX IF NOT EXISTS idx_best_results_key ON best_results(subject_id, table_name, key);
CREATE INDEX IF NOT EXISTS idx_runs_subject ON runs(subject_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) GetTableMetadata(ctx context.Context, subjectID uuid.UUID, name string) (*model.TableMetadata, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT subject_id, name, description, sut_package_name, columns_meta, rows_meta, validation_rules
		 FROM result_tables WHERE subject_id = $1 AND name = $2`,
		subjectID, name,
	)
	meta, err := scanTableMetadata(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: table %s", name)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get table %s", name)
	}
	return meta, nil
}

func (s *PostgresStore) PutTableMetadata(ctx context.Context, meta *model.TableMetadata) error {
	columns, rows, rules, err := marshalTableMetadata(meta)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO result_tables (subject_id, name, description, sut_package_name, columns_meta, rows_meta, validation_rules, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (subject_id, name) DO UPDATE SET
		   description = EXCLUDED.description,
		   sut_package_name = EXCLUDED.sut_package_name,
		   columns_meta = EXCLUDED.columns_meta,
		   rows_meta = EXCLUDED.rows_meta,
		   validation_rules = EXCLUDED.validation_rules,
		   updated_at = EXCLUDED.updated_at`,
		meta.SubjectID, meta.Name, meta.Description, meta.SUTPackageName,
		columns, rows, rules, time.Now().UTC(),
	)
	return eris.Wrapf(err, "postgres: put table %s", meta.Name)
}

func (s *PostgresStore) ListTableMetadata(ctx context.Context, subjectID uuid.UUID) ([]model.TableMetadata, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT subject_id, name, description, sut_package_name, columns_meta, rows_meta, validation_rules
		 FROM result_tables WHERE subject_id = $1 ORDER BY name`,
		subjectID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list tables")
	}
	defer rows.Close()

	var result []model.TableMetadata
	for rows.Next() {
		meta, err := scanTableMetadata(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan table")
		}
		result = append(result, *meta)
	}
	return result, eris.Wrap(rows.Err(), "postgres: list tables")
}

var resultCellColumns = []string{
	"subject_id", "table_name", "run_id", "column_name", "row_name",
	"sut_timestamp", "value", "value_text", "status",
}

func (s *PostgresStore) InsertDataPoints(ctx context.Context, points []model.DataPoint) error {
	rows := make([][]any, 0, len(points))
	for _, p := range points {
		rows = append(rows, []any{
			p.SubjectID, p.TableName, p.RunID, p.Column, p.Row,
			p.SUTTimestamp.UTC(), p.Value, p.ValueText, string(p.Status),
		})
	}
	_, err := db.CopyFrom(ctx, s.pool, "result_cells", resultCellColumns, rows)
	return eris.Wrap(err, "postgres: insert cells")
}

func (s *PostgresStore) ListDataPoints(ctx context.Context, subjectID uuid.UUID, tableName string, filter DataFilter) ([]model.DataPoint, error) {
	query := `SELECT subject_id, table_name, run_id, column_name, row_name, sut_timestamp, value, value_text, status
	          FROM result_cells WHERE subject_id = $1 AND table_name = $2`
	args := []any{subjectID, tableName}

	if filter.StartDate != nil {
		args = append(args, filter.StartDate.UTC())
		query += ` AND sut_timestamp >= $3`
	}
	if filter.EndDate != nil {
		args = append(args, filter.EndDate.UTC())
		if filter.StartDate != nil {
			query += ` AND sut_timestamp <= $4`
		} else {
			query += ` AND sut_timestamp <= $3`
		}
	}
	query += ` ORDER BY sut_timestamp ASC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list cells %s", tableName)
	}
	defer rows.Close()
	return collectDataPoints(rows)
}

func (s *PostgresStore) ListRunDataPoints(ctx context.Context, subjectID, runID uuid.UUID) ([]model.DataPoint, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT subject_id, table_name, run_id, column_name, row_name, sut_timestamp, value, value_text, status
		 FROM result_cells WHERE subject_id = $1 AND run_id = $2 ORDER BY table_name, row_name, column_name`,
		subjectID, runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list run cells %s", runID)
	}
	defer rows.Close()
	return collectDataPoints(rows)
}

func (s *PostgresStore) ListBestResults(ctx context.Context, subjectID uuid.UUID, tableName string) (map[string][]model.BestResult, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, key, value, result_date, sut_timestamp, run_id
		 FROM best_results WHERE subject_id = $1 AND table_name = $2 ORDER BY seq ASC`,
		subjectID, tableName,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list best results %s", tableName)
	}
	defer rows.Close()

	result := make(map[string][]model.BestResult)
	for rows.Next() {
		var rec model.BestResult
		var runID string
		if err := rows.Scan(&rec.ID, &rec.Key, &rec.Value, &rec.ResultDate, &rec.SUTTimestamp, &runID); err != nil {
			return nil, eris.Wrap(err, "postgres: scan best result")
		}
		if rec.RunID, err = uuid.Parse(runID); err != nil {
			return nil, eris.Wrapf(err, "postgres: best result run id %q", runID)
		}
		result[rec.Key] = append(result[rec.Key], rec)
	}
	return result, eris.Wrap(rows.Err(), "postgres: list best results")
}

func (s *PostgresStore) AppendBestResult(ctx context.Context, subjectID uuid.UUID, tableName string, rec model.BestResult, expectedLatestID string) error {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO best_results (id, subject_id, table_name, key, value, result_date, sut_timestamp, run_id)
		 SELECT $1, $2, $3, $4, $5, $6, $7, $8
		 WHERE COALESCE((
		   SELECT id FROM best_results
		   WHERE subject_id = $2 AND table_name = $3 AND key = $4
		   ORDER BY seq DESC LIMIT 1
		 ), '') = $9`,
		rec.ID, subjectID, tableName, rec.Key, rec.Value,
		rec.ResultDate.UTC(), rec.SUTTimestamp.UTC(), rec.RunID, expectedLatestID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: append best result %s", rec.Key)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrConflict, "postgres: best result %s advanced", rec.Key)
	}
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, run *model.Run) error {
	packages, err := json.Marshal(run.Packages)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal packages")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO runs (id, subject_id, build_id, started_at, packages, ignored) VALUES ($1, $2, $3, $4, $5, $6)`,
		run.ID, run.SubjectID, run.BuildID, run.StartedAt.UTC(), packages, run.Ignored,
	)
	return eris.Wrapf(err, "postgres: insert run %s", run.ID)
}

func (s *PostgresStore) GetRun(ctx context.Context, runID uuid.UUID) (*model.Run, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, subject_id, build_id, started_at, packages, ignored FROM runs WHERE id = $1`,
		runID,
	)
	run, err := scanRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: run %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	return run, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, subjectID uuid.UUID) ([]model.Run, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, subject_id, build_id, started_at, packages, ignored FROM runs WHERE subject_id = $1 ORDER BY started_at ASC`,
		subjectID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var result []model.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		result = append(result, *run)
	}
	return result, eris.Wrap(rows.Err(), "postgres: list runs")
}

func (s *PostgresStore) SetRunIgnored(ctx context.Context, runID uuid.UUID, ignored bool) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET ignored = $1 WHERE id = $2`,
		ignored, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: set run ignored %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: run %s", runID)
	}
	return nil
}

func (s *PostgresStore) PutGraphView(ctx context.Context, view *model.GraphView) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO graph_views (subject_id, view_id, name, description, graphs, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (subject_id, view_id) DO UPDATE SET
		   name = EXCLUDED.name,
		   description = EXCLUDED.description,
		   graphs = EXCLUDED.graphs,
		   updated_at = EXCLUDED.updated_at`,
		view.SubjectID, view.ViewID, view.Name, view.Description, view.Graphs, time.Now().UTC(),
	)
	return eris.Wrapf(err, "postgres: put graph view %s", view.ViewID)
}

func (s *PostgresStore) GetGraphView(ctx context.Context, subjectID, viewID uuid.UUID) (*model.GraphView, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT subject_id, view_id, name, description, graphs, updated_at FROM graph_views WHERE subject_id = $1 AND view_id = $2`,
		subjectID, viewID,
	)
	view, err := scanGraphView(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: graph view %s", viewID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get graph view %s", viewID)
	}
	return view, nil
}

func (s *PostgresStore) ListGraphViews(ctx context.Context, subjectID uuid.UUID) ([]model.GraphView, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT subject_id, view_id, name, description, graphs, updated_at FROM graph_views WHERE subject_id = $1 ORDER BY name`,
		subjectID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list graph views")
	}
	defer rows.Close()

	var result []model.GraphView
	for rows.Next() {
		view, err := scanGraphView(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan graph view")
		}
		result = append(result, *view)
	}
	return result, eris.Wrap(rows.Err(), "postgres: list graph views")
}

func (s *PostgresStore) DeleteGraphView(ctx context.Context, subjectID, viewID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM graph_views WHERE subject_id = $1 AND view_id = $2`,
		subjectID, viewID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete graph view %s", viewID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: graph view %s", viewID)
	}
	return nil
}
