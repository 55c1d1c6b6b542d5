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

// Snapshot is the best-value ledger of one table keyed by "column:row",
// histories ascending. A submission takes one snapshot up front and
// compares every cell of the batch against it; accepted updates extend the
// snapshot in place so later cells of the same batch see them.
type Snapshot map[string][]model.BestResult

// Latest returns the current record for a key, or nil.
func (s Snapshot) Latest(key string) *model.BestResult {
	history := s[key]
	if len(history) == 0 {
		return nil
	}
	return &history[len(history)-1]
}

// Tracker maintains the append-only best-value ledger.
type Tracker struct {
	store store.Store
	retry resilience.RetryConfig
}

// NewTracker builds a tracker over the given store with default retry.
func NewTracker(st store.Store) *Tracker {
	return &Tracker{store: st, retry: resilience.DefaultRetryConfig()}
}

// Snapshot loads the full ledger for one table.
func (t *Tracker) Snapshot(ctx context.Context, subjectID uuid.UUID, tableName string) (Snapshot, error) {
	history, err := t.store.ListBestResults(ctx, subjectID, tableName)
	if err != nil {
		return nil, err
	}
	return Snapshot(history), nil
}

// ConsiderUpdate offers a candidate value for a key and reports whether it
// became the new best. A first observation is always accepted. A candidate
// whose logical timestamp predates the current record's basis is a late
// arrival and is rejected regardless of value; otherwise the candidate must
// be strictly better in the column's direction.
//
// The append is a compare-and-append against the last known record. When a
// concurrent writer advanced the ledger first, the conflict is resolved by
// re-reading and re-checking, a bounded number of times.
func (t *Tracker) ConsiderUpdate(ctx context.Context, subjectID uuid.UUID, tableName string, snap Snapshot, key string, candidate float64, sutTS time.Time, runID uuid.UUID, higherIsBetter bool) (bool, error) {
	for attempt := 0; attempt < t.retry.MaxAttempts; attempt++ {
		current := snap.Latest(key)

		if current != nil {
			if sutTS.Before(current.SUTTimestamp) {
				// Late arrival: a newer run already set the basis.
				return false, nil
			}
			if !strictlyBetter(candidate, current.Value, higherIsBetter) {
				return false, nil
			}
		}

		rec := model.BestResult{
			ID:           uuid.NewString(),
			Key:          key,
			Value:        candidate,
			ResultDate:   time.Now().UTC(),
			SUTTimestamp: sutTS,
			RunID:        runID,
		}
		expected := ""
		if current != nil {
			expected = current.ID
		}

		err := resilience.Do(ctx, t.retry, func(ctx context.Context) error {
			return t.store.AppendBestResult(ctx, subjectID, tableName, rec, expected)
		})
		if err == nil {
			snap[key] = append(snap[key], rec)
			return true, nil
		}
		if !eris.Is(err, store.ErrConflict) {
			return false, err
		}

		// Lost the race: refresh this key's history and re-check.
		zap.L().Debug("best ledger advanced, re-reading",
			zap.String("table", tableName), zap.String("key", key))
		fresh, err := t.store.ListBestResults(ctx, subjectID, tableName)
		if err != nil {
			return false, err
		}
		snap[key] = fresh[key]
	}
	return false, eris.Errorf("results: best update for %s kept conflicting", key)
}

func strictlyBetter(candidate, current float64, higherIsBetter bool) bool {
	if higherIsBetter {
		return candidate > current
	}
	return candidate < current
}
