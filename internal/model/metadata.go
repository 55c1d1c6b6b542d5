package model

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// ruleEpsilon is the tolerance used when comparing rule thresholds; rule
// versions differing by less than this are considered identical.
const ruleEpsilon = 1e-9

// ValidationRule is the submitted form of a column's pass/fail policy.
// Any combination of the three thresholds may be set.
type ValidationRule struct {
	BestPct    *float64 `json:"best_pct,omitempty"`
	BestAbs    *float64 `json:"best_abs,omitempty"`
	FixedLimit *float64 `json:"fixed_limit,omitempty"`
}

// Empty reports whether the rule carries no thresholds at all.
func (r ValidationRule) Empty() bool {
	return r.BestPct == nil && r.BestAbs == nil && r.FixedLimit == nil
}

// RuleVersion is one entry in a column's append-only rule history.
type RuleVersion struct {
	ValidFrom  time.Time `json:"valid_from"`
	BestPct    *float64  `json:"best_pct"`
	BestAbs    *float64  `json:"best_abs"`
	FixedLimit *float64  `json:"fixed_limit"`
}

// Rule returns the version's thresholds without the timestamp.
func (v RuleVersion) Rule() ValidationRule {
	return ValidationRule{BestPct: v.BestPct, BestAbs: v.BestAbs, FixedLimit: v.FixedLimit}
}

// Matches compares every field except the timestamp. Nil-vs-nil counts as
// equal, nil-vs-value as different, and floats compare with tolerance.
func (v RuleVersion) Matches(r ValidationRule) bool {
	return floatPtrEq(v.BestPct, r.BestPct) &&
		floatPtrEq(v.BestAbs, r.BestAbs) &&
		floatPtrEq(v.FixedLimit, r.FixedLimit)
}

func floatPtrEq(a, b *float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return math.Abs(*a-*b) < ruleEpsilon
}

// TableMetadata is the stored schema record for one result table of a
// subject. RowsMeta accumulates every row label ever submitted and never
// shrinks; ValidationRules holds the per-column rule history ordered by
// ValidFrom ascending.
type TableMetadata struct {
	SubjectID       uuid.UUID                `json:"test_id"`
	Name            string                   `json:"name"`
	Description     string                   `json:"description"`
	SUTPackageName  string                   `json:"sut_package_name,omitempty"`
	ColumnsMeta     []ColumnMeta             `json:"columns_meta"`
	RowsMeta        []string                 `json:"rows_meta"`
	ValidationRules map[string][]RuleVersion `json:"validation_rules"`
}

// NewTableMetadata builds the initial metadata record from a first
// submission. Rule histories start with a single version stamped now.
func NewTableMetadata(subjectID uuid.UUID, spec TableSpec, now time.Time) *TableMetadata {
	m := &TableMetadata{
		SubjectID:       subjectID,
		Name:            spec.Name,
		Description:     spec.Description,
		SUTPackageName:  spec.SUTPackageName,
		ColumnsMeta:     append([]ColumnMeta(nil), spec.ColumnsMeta...),
		RowsMeta:        append([]string(nil), spec.RowsMeta...),
		ValidationRules: map[string][]RuleVersion{},
	}
	for column, rule := range spec.ValidationRules {
		m.ValidationRules[column] = []RuleVersion{{
			ValidFrom:  now,
			BestPct:    rule.BestPct,
			BestAbs:    rule.BestAbs,
			FixedLimit: rule.FixedLimit,
		}}
	}
	return m
}

// Column returns the stored descriptor for the named column, or nil.
func (m *TableMetadata) Column(name string) *ColumnMeta {
	for i := range m.ColumnsMeta {
		if m.ColumnsMeta[i].Name == name {
			return &m.ColumnsMeta[i]
		}
	}
	return nil
}

// LatestRule returns the most recent rule version for a column, or nil when
// the column has no history.
func (m *TableMetadata) LatestRule(column string) *RuleVersion {
	history := m.ValidationRules[column]
	if len(history) == 0 {
		return nil
	}
	return &history[len(history)-1]
}

// ApplyUpdate merges a later submission's schema into the stored record and
// reports whether anything changed (changed=false means the caller can skip
// the store write). Columns are replaced wholesale on value inequality, rows
// are appended and never removed, scalar fields are replaced when different,
// and rule histories grow via AppendRules.
func (m *TableMetadata) ApplyUpdate(spec TableSpec, now time.Time) bool {
	changed := false

	if spec.Description != m.Description {
		m.Description = spec.Description
		changed = true
	}
	if spec.SUTPackageName != "" && spec.SUTPackageName != m.SUTPackageName {
		m.SUTPackageName = spec.SUTPackageName
		changed = true
	}
	if !columnsEqual(m.ColumnsMeta, spec.ColumnsMeta) {
		m.ColumnsMeta = append([]ColumnMeta(nil), spec.ColumnsMeta...)
		changed = true
	}
	if m.appendRows(spec.RowsMeta) {
		changed = true
	}
	if spec.ValidationRules != nil && m.AppendRules(spec.ValidationRules, now) {
		changed = true
	}

	return changed
}

// AppendRows adds row labels that have not been seen before, preserving the
// existing order. Used both by ApplyUpdate and by ingestion when cells carry
// rows the metadata block omitted.
func (m *TableMetadata) AppendRows(rows []string) bool {
	return m.appendRows(rows)
}

func (m *TableMetadata) appendRows(rows []string) bool {
	seen := make(map[string]bool, len(m.RowsMeta))
	for _, r := range m.RowsMeta {
		seen[r] = true
	}
	appended := false
	for _, r := range rows {
		if !seen[r] {
			m.RowsMeta = append(m.RowsMeta, r)
			seen[r] = true
			appended = true
		}
	}
	return appended
}

// AppendRules merges incoming rule parameters into the per-column histories.
// A new version stamped now is appended only when it differs from the most
// recent one. Columns with existing history that the incoming map no longer
// names get an all-nil version appended, recording the removal without
// erasing history.
func (m *TableMetadata) AppendRules(rules map[string]ValidationRule, now time.Time) bool {
	if m.ValidationRules == nil {
		m.ValidationRules = map[string][]RuleVersion{}
	}
	changed := false

	for column, rule := range rules {
		history := m.ValidationRules[column]
		if len(history) > 0 && history[len(history)-1].Matches(rule) {
			continue
		}
		m.ValidationRules[column] = append(history, RuleVersion{
			ValidFrom:  now,
			BestPct:    rule.BestPct,
			BestAbs:    rule.BestAbs,
			FixedLimit: rule.FixedLimit,
		})
		changed = true
	}

	// Record rule removals for columns dropped from the submission.
	for column, history := range m.ValidationRules {
		if _, ok := rules[column]; ok || len(history) == 0 {
			continue
		}
		if history[len(history)-1].Matches(ValidationRule{}) {
			continue
		}
		m.ValidationRules[column] = append(history, RuleVersion{ValidFrom: now})
		changed = true
	}

	return changed
}

func columnsEqual(a, b []ColumnMeta) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Name != b[i].Name || a[i].Unit != b[i].Unit || a[i].Type != b[i].Type {
			return false
		}
		if !boolPtrEq(a[i].HigherIsBetter, b[i].HigherIsBetter) {
			return false
		}
	}
	return true
}

func boolPtrEq(a, b *bool) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
