// Package correlate classifies every expected update against the host's
// installed set and assembles the final correlation result.
package correlate

import (
	"sort"
	"time"

	"github.com/erwinmagielda/winshield-windows-patcher/pkg/set"
	"github.com/erwinmagielda/winshield-windows-patcher/pkg/supersede"
	"github.com/erwinmagielda/winshield-windows-patcher/pkg/types"
)

// Resolve classifies each expected update as Installed, Superseded or
// Missing. Entries come back in canonical id order and depend only on
// the three inputs, so identical inputs always produce identical output.
func Resolve(expected map[types.KBID]types.UpdateRecord, inventory types.InventorySnapshot, graph *supersede.Graph) []types.CorrelationEntry {
	ids := make([]types.KBID, 0, len(expected))
	for id := range expected {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return ids[i] < ids[j]
	})

	installed := set.New(inventory.KBs...)
	coverage := graph.Coverage(inventory.KBs)

	entries := make([]types.CorrelationEntry, 0, len(ids))
	for _, id := range ids {
		rec := expected[id]
		entry := types.CorrelationEntry{
			ID:         id,
			UpdateType: rec.UpdateType(),
			Months:     rec.Months,
			CVEs:       rec.CVEs,
		}

		switch {
		case installed.Contains(id):
			entry.Status = types.StatusInstalled
		case len(coverage[id]) > 0:
			entry.Status = types.StatusSuperseded
			entry.SupersededBy = coverage[id]
		default:
			entry.Status = types.StatusMissing
		}

		entries = append(entries, entry)
	}
	return entries
}

// Builder assembles correlation results. The clock is injectable so
// result content stays reproducible under test.
type Builder struct {
	now func() time.Time
}

type Option func(*Builder)

func WithNow(now func() time.Time) Option {
	return func(b *Builder) {
		b.now = now
	}
}

func NewBuilder(opts ...Option) *Builder {
	b := &Builder{
		now: func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build assembles the persisted result from the collected inputs and the
// resolved entries. It derives summary counts and the union of CVEs on
// missing entries; it never re-derives classification.
func (b *Builder) Build(baseline types.Baseline, inventory types.InventorySnapshot, monthsRequested, monthsWithData []types.MonthID, entries []types.CorrelationEntry) types.CorrelationResult {
	result := types.CorrelationResult{
		Baseline:        baseline,
		Inventory:       inventory,
		MonthsRequested: monthsRequested,
		MonthsWithData:  monthsWithData,
		Entries:         entries,
		GeneratedAt:     b.now().Truncate(time.Second),
	}

	missingCVEs := set.NewOrdered[string]()
	for _, e := range entries {
		switch e.Status {
		case types.StatusInstalled:
			result.Summary.Installed++
		case types.StatusSuperseded:
			result.Summary.Superseded++
		case types.StatusMissing:
			result.Summary.Missing++
			missingCVEs.Append(e.CVEs...)
		}
	}
	result.Summary.Expected = len(entries)
	result.MissingCVEs = missingCVEs.Values()

	switch {
	case len(monthsRequested) == 0:
		result.Degraded = true
		result.DegradedReason = "no correlation basis: no anchor or latest advisory month resolved"
	case baseline.ProductName == "":
		result.Degraded = true
		result.DegradedReason = "no advisory product name resolved; expected-update set is empty"
	case !inventory.Elevated:
		result.Degraded = true
		result.DegradedReason = "inventory enumerated without elevation; installed set may be incomplete"
	}

	return result
}
