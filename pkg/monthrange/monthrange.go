// Package monthrange decides which advisory months are relevant for a
// host, bounded by its cumulative-update anchor and the latest published
// advisory month.
package monthrange

import (
	"github.com/erwinmagielda/winshield-windows-patcher/pkg/types"
)

// MaxSpan caps the resolved range so a stale anchor cannot trigger an
// unbounded advisory backfill.
const MaxSpan = 48

// Resolve returns the ordered advisory months to query, from anchor
// through latest inclusive. An absent or stale anchor collapses the
// range to the latest month alone; an absent latest month yields an
// empty range, meaning there is no correlation basis at all.
func Resolve(anchor, latest types.MonthID) []types.MonthID {
	if latest == "" {
		return nil
	}
	if anchor == "" || latest.Before(anchor) {
		return []types.MonthID{latest}
	}

	var months []types.MonthID
	for m := anchor; !latest.Before(m) && len(months) < MaxSpan; m = m.Next() {
		months = append(months, m)
	}
	return months
}
