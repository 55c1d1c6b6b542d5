package model

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func floatPtr(v float64) *float64 { return &v }
func boolPtr(v bool) *bool        { return &v }

func latencySpec() TableSpec {
	return TableSpec{
		Name: "Latency Results",
		ColumnsMeta: []ColumnMeta{
			{Name: "p99", Unit: "ms", Type: TypeFloat, HigherIsBetter: boolPtr(false)},
		},
		RowsMeta: []string{"mixed"},
		ValidationRules: map[string]ValidationRule{
			"p99": {FixedLimit: floatPtr(100)},
		},
	}
}

func TestApplyUpdateIdenticalSpecIsNoOp(t *testing.T) {
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	meta := NewTableMetadata(uuid.New(), latencySpec(), now)

	// Resubmitting the exact same definition must report no change; callers
	// rely on changed=false to skip the store write entirely.
	changed := meta.ApplyUpdate(latencySpec(), now.Add(24*time.Hour))
	assert.False(t, changed)
	require.Len(t, meta.ValidationRules["p99"], 1)
	assert.True(t, meta.ValidationRules["p99"][0].ValidFrom.Equal(now))
	assert.Equal(t, []string{"mixed"}, meta.RowsMeta)
}

func TestApplyUpdateRuleTolerance(t *testing.T) {
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	meta := NewTableMetadata(uuid.New(), latencySpec(), now)

	// A threshold differing by less than the comparison tolerance is the
	// same rule: no new version, no change.
	jittered := latencySpec()
	jittered.ValidationRules["p99"] = ValidationRule{FixedLimit: floatPtr(100 + 1e-12)}
	assert.False(t, meta.ApplyUpdate(jittered, now.Add(24*time.Hour)))
	require.Len(t, meta.ValidationRules["p99"], 1)

	// Beyond the tolerance a single new version is appended.
	tightened := latencySpec()
	tightened.ValidationRules["p99"] = ValidationRule{FixedLimit: floatPtr(100.5)}
	assert.True(t, meta.ApplyUpdate(tightened, now.Add(48*time.Hour)))
	history := meta.ValidationRules["p99"]
	require.Len(t, history, 2)
	assert.Equal(t, 100.0, *history[0].FixedLimit)
	assert.Equal(t, 100.5, *history[1].FixedLimit)
}

func TestApplyUpdateRowsNeverShrink(t *testing.T) {
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	meta := NewTableMetadata(uuid.New(), latencySpec(), now)

	grown := latencySpec()
	grown.RowsMeta = []string{"write"}
	assert.True(t, meta.ApplyUpdate(grown, now.Add(24*time.Hour)))
	assert.Equal(t, []string{"mixed", "write"}, meta.RowsMeta)

	// Dropping a row from a later submission leaves the stored set intact.
	assert.False(t, meta.ApplyUpdate(latencySpec(), now.Add(48*time.Hour)))
	assert.Equal(t, []string{"mixed", "write"}, meta.RowsMeta)
}

func TestRuleVersionMatches(t *testing.T) {
	v := RuleVersion{BestPct: floatPtr(5), FixedLimit: floatPtr(100)}

	assert.True(t, v.Matches(ValidationRule{BestPct: floatPtr(5), FixedLimit: floatPtr(100)}))
	assert.True(t, v.Matches(ValidationRule{BestPct: floatPtr(5), FixedLimit: floatPtr(100 + 1e-10)}))
	assert.False(t, v.Matches(ValidationRule{BestPct: floatPtr(5), FixedLimit: floatPtr(100.001)}))

	// Nil-vs-value is a difference, nil-vs-nil is not.
	assert.False(t, v.Matches(ValidationRule{BestPct: floatPtr(5)}))
	assert.True(t, RuleVersion{}.Matches(ValidationRule{}))
}
