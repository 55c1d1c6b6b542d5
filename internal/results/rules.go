// Package results implements the aggregation engine: validation rule
// evaluation, best-value tracking, submission ingestion, the run-results
// read model, chart assembly and graph-view management.
package results

import (
	"time"

	"github.com/scylladb/argus-sub001/internal/model"
)

// EvaluateCell assigns a validation status to one submitted cell.
//
// Statuses asserted by the caller pass through untouched; evaluation only
// decides for cells arriving UNSET. A column without a tracking direction,
// without an applicable rule version, or whose rule yields no concrete
// limits stays UNSET. Otherwise the cell is PASS only when its value
// satisfies every limit candidate, ERROR when any is violated.
func EvaluateCell(cell model.Cell, column model.ColumnMeta, history []model.RuleVersion, best *model.BestResult) model.Status {
	if cell.Status != model.StatusUnset && cell.Status != "" {
		return cell.Status
	}
	if column.HigherIsBetter == nil || !column.Type.Numeric() {
		return model.StatusUnset
	}
	value, ok := cell.Value.Float()
	if !ok {
		return model.StatusUnset
	}
	rule := latestRule(history)
	if rule == nil {
		return model.StatusUnset
	}

	var bestValue *float64
	if best != nil {
		bestValue = &best.Value
	}
	candidates := candidateLimits(*rule, bestValue, *column.HigherIsBetter)
	if len(candidates) == 0 {
		return model.StatusUnset
	}

	for _, limit := range candidates {
		if !satisfies(value, limit, *column.HigherIsBetter) {
			return model.StatusError
		}
	}
	return model.StatusPass
}

// candidateLimits derives the concrete limit values a cell must satisfy.
// Best-relative limits leave headroom in the failing direction: for
// higher-is-better columns the limit sits below the best value, for
// lower-is-better columns above it.
func candidateLimits(rule model.ValidationRule, best *float64, higherIsBetter bool) []float64 {
	var candidates []float64

	if rule.FixedLimit != nil {
		candidates = append(candidates, *rule.FixedLimit)
	}
	if best != nil {
		if rule.BestPct != nil {
			pct := *rule.BestPct / 100
			if higherIsBetter {
				candidates = append(candidates, *best*(1-pct))
			} else {
				candidates = append(candidates, *best*(1+pct))
			}
		}
		if rule.BestAbs != nil {
			if higherIsBetter {
				candidates = append(candidates, *best-*rule.BestAbs)
			} else {
				candidates = append(candidates, *best+*rule.BestAbs)
			}
		}
	}

	return candidates
}

// satisfies is the pass comparator: the value must be strictly on the good
// side of the limit; hitting the limit exactly fails.
func satisfies(value, limit float64, higherIsBetter bool) bool {
	if higherIsBetter {
		return value > limit
	}
	return value < limit
}

// bindingLimit is the single threshold a chart overlay draws for a point:
// the strictest of the candidates, which is the highest limit for
// higher-is-better columns and the lowest for lower-is-better ones.
func bindingLimit(rule model.ValidationRule, best *float64, higherIsBetter bool) *float64 {
	candidates := candidateLimits(rule, best, higherIsBetter)
	if len(candidates) == 0 {
		return nil
	}
	binding := candidates[0]
	for _, c := range candidates[1:] {
		if higherIsBetter && c > binding {
			binding = c
		}
		if !higherIsBetter && c < binding {
			binding = c
		}
	}
	return &binding
}

// latestRule returns the newest rule version, or nil when the history is
// empty or the newest version carries no thresholds (rule removal marker).
func latestRule(history []model.RuleVersion) *model.ValidationRule {
	if len(history) == 0 {
		return nil
	}
	rule := history[len(history)-1].Rule()
	if rule.Empty() {
		return nil
	}
	return &rule
}

// ruleActiveAt returns the rule version in force at time t: the latest
// version with ValidFrom <= t. Used by chart overlays to show historical
// thresholds rather than today's.
func ruleActiveAt(history []model.RuleVersion, t time.Time) *model.ValidationRule {
	var active *model.ValidationRule
	for i := range history {
		if history[i].ValidFrom.After(t) {
			break
		}
		rule := history[i].Rule()
		active = &rule
	}
	if active != nil && active.Empty() {
		return nil
	}
	return active
}
