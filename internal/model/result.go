package model

import (
	"time"

	"github.com/google/uuid"
)

// Status is the validation outcome of a single result cell.
type Status string

const (
	StatusUnset   Status = "UNSET"
	StatusPass    Status = "PASS"
	StatusWarning Status = "WARNING"
	StatusError   Status = "ERROR"
)

// Valid reports whether s is one of the known statuses. The empty string is
// treated as UNSET by ingestion, not as a valid status.
func (s Status) Valid() bool {
	switch s {
	case StatusUnset, StatusPass, StatusWarning, StatusError:
		return true
	}
	return false
}

// ResultType describes how a column's values are interpreted.
type ResultType string

const (
	TypeInteger  ResultType = "INTEGER"
	TypeFloat    ResultType = "FLOAT"
	TypeDuration ResultType = "DURATION"
	TypeText     ResultType = "TEXT"
)

// Numeric reports whether values of this type live on the chartable axis.
func (t ResultType) Numeric() bool {
	switch t {
	case TypeInteger, TypeFloat, TypeDuration:
		return true
	}
	return false
}

// ColumnMeta describes one column of a result table. HigherIsBetter is nil
// when best-value tracking is disabled for the column.
type ColumnMeta struct {
	Name           string     `json:"name"`
	Unit           string     `json:"unit"`
	Type           ResultType `json:"type"`
	HigherIsBetter *bool      `json:"higher_is_better,omitempty"`
}

// Tracked reports whether the column participates in best-value tracking.
func (c ColumnMeta) Tracked() bool {
	return c.HigherIsBetter != nil && c.Type.Numeric()
}

// Cell is one (column, row) observation inside a table submission.
// Status may be pre-set by the caller (e.g. an upstream hard failure);
// rule evaluation only touches cells arriving as UNSET.
type Cell struct {
	Column    string `json:"column"`
	Row       string `json:"row"`
	Value     Value  `json:"value,omitempty"`
	ValueText string `json:"value_text,omitempty"`
	Status    Status `json:"status"`
}

// DataPoint is the persisted, immutable form of a submitted cell.
// Exactly one of Value / ValueText is set, depending on the column type.
type DataPoint struct {
	SubjectID    uuid.UUID `json:"test_id"`
	TableName    string    `json:"table_name"`
	RunID        uuid.UUID `json:"run_id"`
	Column       string    `json:"column"`
	Row          string    `json:"row"`
	SUTTimestamp time.Time `json:"sut_timestamp"`
	Value        *float64  `json:"value,omitempty"`
	ValueText    *string   `json:"value_text,omitempty"`
	Status       Status    `json:"status"`
}

// BestResult is one entry in the append-only best-value ledger for a
// column:row key. ResultDate is the wall-clock time the record was written;
// SUTTimestamp is the logical time of the value that set the record and is
// the basis used for staleness ordering.
type BestResult struct {
	ID           string    `json:"id"`
	Key          string    `json:"key"`
	Value        float64   `json:"value"`
	ResultDate   time.Time `json:"result_date"`
	SUTTimestamp time.Time `json:"sut_timestamp"`
	RunID        uuid.UUID `json:"run_id"`
}

// BestKey builds the ledger key for a column:row pair.
func BestKey(column, row string) string {
	return column + ":" + row
}

// ResultsPayload is the inbound submission for one run: table schema plus a
// batch of cells. SUTTimestamp is epoch seconds; zero means "use the run's
// own start time".
type ResultsPayload struct {
	Meta         TableSpec `json:"meta"`
	SUTTimestamp int64     `json:"sut_timestamp"`
	Results      []Cell    `json:"results"`
}

// TableSpec is the submitted table schema. RowsMeta may be omitted; rows are
// also accumulated from the cells themselves.
type TableSpec struct {
	Name            string                    `json:"name"`
	Description     string                    `json:"description"`
	SUTPackageName  string                    `json:"sut_package_name,omitempty"`
	ColumnsMeta     []ColumnMeta              `json:"columns_meta"`
	RowsMeta        []string                  `json:"rows_meta,omitempty"`
	ValidationRules map[string]ValidationRule `json:"validation_rules,omitempty"`
}

// Column returns the descriptor for the named column, or nil.
func (s TableSpec) Column(name string) *ColumnMeta {
	for i := range s.ColumnsMeta {
		if s.ColumnsMeta[i].Name == name {
			return &s.ColumnsMeta[i]
		}
	}
	return nil
}
