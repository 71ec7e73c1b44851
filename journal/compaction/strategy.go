// Package compaction implements the journal's retention strategies: pure
// functions from an entry sequence to the retained subset, per spec.md 4.3.
package compaction

import (
	"sort"

	"github.com/pithecene-io/agentcore/core"
)

// Strategy filters entries down to the subset that should be retained. The
// input is assumed sorted oldest-first by id; the returned subset preserves
// that order.
type Strategy interface {
	Retain(entries []core.Entry, nowMs int64) []core.Entry
}

// StrategyFunc adapts a plain function to Strategy.
type StrategyFunc func(entries []core.Entry, nowMs int64) []core.Entry

// Retain implements Strategy.
func (f StrategyFunc) Retain(entries []core.Entry, nowMs int64) []core.Entry {
	return f(entries, nowMs)
}

// ByAge drops entries older than now-maxAgeMs. Age is derived from each
// entry's id (its allocation millisecond), not from an external timestamp,
// since the journal's only intrinsic notion of time is the id.
func ByAge(maxAgeMs int64) Strategy {
	return StrategyFunc(func(entries []core.Entry, nowMs int64) []core.Entry {
		cutoff := nowMs - maxAgeMs
		out := make([]core.Entry, 0, len(entries))
		for _, e := range entries {
			if e.ID.Millis() >= cutoff {
				out = append(out, e)
			}
		}
		return out
	})
}

// ByCount retains the newest maxEntries; maxEntries <= 0 retains none.
func ByCount(maxEntries int) Strategy {
	return StrategyFunc(func(entries []core.Entry, _ int64) []core.Entry {
		if maxEntries <= 0 || len(entries) == 0 {
			return nil
		}
		if len(entries) <= maxEntries {
			return entries
		}
		return entries[len(entries)-maxEntries:]
	})
}

// BySize scans newest-first, keeping entries whose cumulative payload size
// does not exceed maxBytes; maxBytes <= 0 retains none.
func BySize(maxBytes int64) Strategy {
	return StrategyFunc(func(entries []core.Entry, _ int64) []core.Entry {
		if maxBytes <= 0 || len(entries) == 0 {
			return nil
		}

		kept := make([]core.Entry, 0, len(entries))
		var total int64
		for i := len(entries) - 1; i >= 0; i-- {
			total += int64(len(entries[i].Payload))
			if total > maxBytes {
				break
			}
			kept = append(kept, entries[i])
		}

		// kept was built newest-first; restore oldest-first order.
		sort.Slice(kept, func(i, j int) bool { return kept[i].ID < kept[j].ID })
		return kept
	})
}

// Composite applies strategies in order, intersecting their retention: each
// strategy narrows the set the next one sees.
func Composite(strategies ...Strategy) Strategy {
	return StrategyFunc(func(entries []core.Entry, nowMs int64) []core.Entry {
		for _, s := range strategies {
			entries = s.Retain(entries, nowMs)
		}
		return entries
	})
}
