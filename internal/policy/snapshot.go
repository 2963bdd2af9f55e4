package policy

import (
	"sort"
	"time"

	"cynic/internal/phi"
)

// Snapshot returns every entry in a stable order. This is the shape the
// storage layer persists; the table itself owns no durability.
func (q *QTable) Snapshot() []Entry {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]Entry, 0, 64)
	for _, actions := range q.table {
		for _, e := range actions {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StateKey != out[j].StateKey {
			return out[i].StateKey < out[j].StateKey
		}
		return out[i].Action < out[j].Action
	})
	return out
}

// Restore warm-starts the table from persisted entries. Entries with
// unusable keys are skipped; entries persisted without Thompson arms
// get them reconstructed from the visit count.
func (q *QTable) Restore(entries []Entry) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	loaded := 0
	for _, in := range entries {
		if validateKey(in.StateKey, in.Action) != nil {
			continue
		}
		entry := q.getOrCreateLocked(in.StateKey, in.Action)
		entry.Value = phi.Bound(in.Value, 0, 1)
		entry.Visits = in.Visits
		if in.Wins > 0 || in.Losses > 0 {
			entry.Wins = in.Wins
			entry.Losses = in.Losses
		} else {
			// Approximate: assume visits split evenly over the prior.
			half := in.Visits / 2
			entry.Wins = phi.ThompsonPrior + half
			entry.Losses = phi.ThompsonPrior + (in.Visits - half)
		}
		if !in.LastUpdated.IsZero() {
			entry.LastUpdated = in.LastUpdated
		} else {
			entry.LastUpdated = time.Now()
		}
		loaded++
	}
	q.logger.Info("warm-started q-table with %d entries", loaded)
	return loaded
}
