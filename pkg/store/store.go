// Package store aggregates raw per-month advisory fragments into one
// deduplicated record per update.
package store

import (
	"sort"

	"github.com/erwinmagielda/winshield-windows-patcher/pkg/log"
	"github.com/erwinmagielda/winshield-windows-patcher/pkg/set"
	"github.com/erwinmagielda/winshield-windows-patcher/pkg/types"
)

// record accumulates one update's fields across months before the final
// sorted snapshot is taken.
type record struct {
	months     set.Ordered[types.MonthID]
	cves       set.Ordered[string]
	supersedes set.Ordered[types.KBID]
}

// Store merges raw advisory records into aggregated update records.
type Store struct {
	records map[types.KBID]*record
	dropped int
	logger  *log.Logger
}

func New() *Store {
	return &Store{
		records: map[types.KBID]*record{},
		logger:  log.WithPrefix("store"),
	}
}

// Add merges raw records into the store. Merging is a field-wise union,
// so adding the same record twice, or records in any order, yields the
// same final state. Records without a parseable update identifier are
// dropped.
func (s *Store) Add(raws ...types.RawRecord) {
	for _, raw := range raws {
		id, err := types.ParseKBID(raw.KB)
		if err != nil {
			s.dropped++
			s.logger.Debug("Dropping unidentifiable advisory record", log.Err(err))
			continue
		}

		rec, ok := s.records[id]
		if !ok {
			rec = &record{
				months:     set.NewOrdered[types.MonthID](),
				cves:       set.NewOrdered[string](),
				supersedes: set.NewOrdered[types.KBID](),
			}
			s.records[id] = rec
		}

		if month, err := types.ParseMonthID(raw.Month); err == nil {
			rec.months.Append(month)
		} else {
			s.logger.Debug("Dropping malformed month", log.KB(string(id)), log.Err(err))
		}

		for _, cve := range raw.CVEs {
			if cve != "" {
				rec.cves.Append(cve)
			}
		}

		for _, target := range raw.Supersedes {
			old, err := types.ParseKBID(target)
			if err != nil {
				s.logger.Debug("Dropping malformed supersedes target", log.KB(string(id)), log.Err(err))
				continue
			}
			// A malformed feed can claim an update supersedes itself.
			if old == id {
				continue
			}
			rec.supersedes.Append(old)
		}
	}
}

// Dropped returns how many raw records lacked a parseable identifier.
func (s *Store) Dropped() int {
	return s.dropped
}

// Records returns the aggregated mapping, each record with sorted,
// deduplicated fields. The result does not alias store state.
func (s *Store) Records() map[types.KBID]types.UpdateRecord {
	out := make(map[types.KBID]types.UpdateRecord, len(s.records))
	for id, rec := range s.records {
		out[id] = types.UpdateRecord{
			ID:         id,
			Months:     sortedMonths(rec.months),
			CVEs:       rec.cves.Values(),
			Supersedes: rec.supersedes.Values(),
		}
	}
	return out
}

// Merge is the one-shot form: it aggregates raws into a fresh mapping
// without retaining any state.
func Merge(raws []types.RawRecord) map[types.KBID]types.UpdateRecord {
	s := New()
	s.Add(raws...)
	return s.Records()
}

// Months sort chronologically, not lexically, so the ordered set's
// string ordering cannot be used as-is.
func sortedMonths(months set.Ordered[types.MonthID]) []types.MonthID {
	v := months.Values()
	sort.Slice(v, func(i, j int) bool {
		return v[i].Before(v[j])
	})
	return v
}
