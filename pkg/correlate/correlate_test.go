package correlate_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erwinmagielda/winshield-windows-patcher/pkg/correlate"
	"github.com/erwinmagielda/winshield-windows-patcher/pkg/supersede"
	"github.com/erwinmagielda/winshield-windows-patcher/pkg/types"
)

func expectedSet(records ...types.UpdateRecord) map[types.KBID]types.UpdateRecord {
	out := map[types.KBID]types.UpdateRecord{}
	for _, r := range records {
		out[r.ID] = r
	}
	return out
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name      string
		expected  map[types.KBID]types.UpdateRecord
		inventory types.InventorySnapshot
		want      []types.CorrelationEntry
	}{
		{
			name: "installed and superseded",
			expected: expectedSet(
				types.UpdateRecord{ID: "KB1", Months: []types.MonthID{"2024-May"}},
				types.UpdateRecord{ID: "KB2", Months: []types.MonthID{"2024-Jun"}, Supersedes: []types.KBID{"KB1"}},
			),
			inventory: types.InventorySnapshot{KBs: []types.KBID{"KB2"}, Elevated: true},
			want: []types.CorrelationEntry{
				{
					ID:           "KB1",
					Status:       types.StatusSuperseded,
					UpdateType:   "Standalone",
					Months:       []types.MonthID{"2024-May"},
					SupersededBy: []types.KBID{"KB2"},
				},
				{
					ID:         "KB2",
					Status:     types.StatusInstalled,
					UpdateType: "Superseding",
					Months:     []types.MonthID{"2024-Jun"},
				},
			},
		},
		{
			name: "missing detection with empty inventory",
			expected: expectedSet(
				types.UpdateRecord{ID: "KB3", Months: []types.MonthID{"2024-Jun"}, CVEs: []string{"CVE-2024-30080"}},
			),
			inventory: types.InventorySnapshot{Elevated: true},
			want: []types.CorrelationEntry{
				{
					ID:         "KB3",
					Status:     types.StatusMissing,
					UpdateType: "Standalone",
					Months:     []types.MonthID{"2024-Jun"},
					CVEs:       []string{"CVE-2024-30080"},
				},
			},
		},
		{
			name: "chain coverage reports the installed root",
			expected: expectedSet(
				types.UpdateRecord{ID: "KB1"},
				types.UpdateRecord{ID: "KB2", Supersedes: []types.KBID{"KB1"}},
				types.UpdateRecord{ID: "KB3", Supersedes: []types.KBID{"KB2"}},
			),
			inventory: types.InventorySnapshot{KBs: []types.KBID{"KB3"}, Elevated: true},
			want: []types.CorrelationEntry{
				{ID: "KB1", Status: types.StatusSuperseded, UpdateType: "Standalone", SupersededBy: []types.KBID{"KB3"}},
				{ID: "KB2", Status: types.StatusSuperseded, UpdateType: "Superseding", SupersededBy: []types.KBID{"KB3"}},
				{ID: "KB3", Status: types.StatusInstalled, UpdateType: "Superseding"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			graph := supersede.New(tt.expected)
			got := correlate.Resolve(tt.expected, tt.inventory, graph)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveExhaustive(t *testing.T) {
	expected := expectedSet(
		types.UpdateRecord{ID: "KB1"},
		types.UpdateRecord{ID: "KB2", Supersedes: []types.KBID{"KB1"}},
		types.UpdateRecord{ID: "KB3"},
		types.UpdateRecord{ID: "KB4"},
	)
	inventory := types.InventorySnapshot{KBs: []types.KBID{"KB2", "KB4"}, Elevated: true}

	entries := correlate.Resolve(expected, inventory, supersede.New(expected))

	require.Len(t, entries, len(expected))
	for _, e := range entries {
		assert.Contains(t, []types.Status{
			types.StatusInstalled,
			types.StatusSuperseded,
			types.StatusMissing,
		}, e.Status, "every expected update gets exactly one classification")
	}
}

func TestResolveDeterminism(t *testing.T) {
	expected := expectedSet(
		types.UpdateRecord{ID: "KB5037771", Months: []types.MonthID{"2024-May"}, CVEs: []string{"CVE-2024-30040"}},
		types.UpdateRecord{ID: "KB5039212", Months: []types.MonthID{"2024-Jun"}, Supersedes: []types.KBID{"KB5037771"}},
		types.UpdateRecord{ID: "KB5034123", Months: []types.MonthID{"2024-Jan"}},
	)
	inventory := types.InventorySnapshot{KBs: []types.KBID{"KB5039212"}, Elevated: true}

	builder := correlate.NewBuilder(correlate.WithNow(func() time.Time {
		return time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	}))
	baseline := types.Baseline{OSName: "Windows 11 Pro", ProductName: "Windows 11 Version 23H2 for x64-based Systems"}
	months := []types.MonthID{"2024-May", "2024-Jun"}

	build := func() []byte {
		entries := correlate.Resolve(expected, inventory, supersede.New(expected))
		result := builder.Build(baseline, inventory, months, months, entries)
		b, err := json.Marshal(result)
		require.NoError(t, err)
		return b
	}

	assert.Equal(t, build(), build(), "identical inputs must produce byte-identical results")
}

func TestBuild(t *testing.T) {
	builder := correlate.NewBuilder(correlate.WithNow(func() time.Time {
		return time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	}))

	entries := []types.CorrelationEntry{
		{ID: "KB1", Status: types.StatusSuperseded},
		{ID: "KB2", Status: types.StatusInstalled},
		{ID: "KB3", Status: types.StatusMissing, CVEs: []string{"CVE-2024-2", "CVE-2024-1"}},
		{ID: "KB4", Status: types.StatusMissing, CVEs: []string{"CVE-2024-1"}},
	}
	inventory := types.InventorySnapshot{KBs: []types.KBID{"KB2"}, Elevated: true}
	baseline := types.Baseline{ProductName: "Windows 11 Version 23H2 for x64-based Systems"}
	months := []types.MonthID{"2024-Jun"}

	result := builder.Build(baseline, inventory, months, months, entries)

	assert.Equal(t, types.Summary{Expected: 4, Installed: 1, Superseded: 1, Missing: 2}, result.Summary)
	assert.Equal(t, []string{"CVE-2024-1", "CVE-2024-2"}, result.MissingCVEs,
		"risk set is the sorted union of CVEs on missing entries")
	assert.False(t, result.Degraded)
	assert.Equal(t, time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC), result.GeneratedAt)
}

func TestBuildDegraded(t *testing.T) {
	tests := []struct {
		name       string
		baseline   types.Baseline
		inventory  types.InventorySnapshot
		months     []types.MonthID
		wantReason string
	}{
		{
			name:       "no months resolved",
			baseline:   types.Baseline{ProductName: "some product"},
			inventory:  types.InventorySnapshot{Elevated: true},
			months:     nil,
			wantReason: "no correlation basis",
		},
		{
			name:       "no product name",
			baseline:   types.Baseline{},
			inventory:  types.InventorySnapshot{Elevated: true},
			months:     []types.MonthID{"2024-Jun"},
			wantReason: "no advisory product name",
		},
		{
			name:       "inventory not elevated",
			baseline:   types.Baseline{ProductName: "some product"},
			inventory:  types.InventorySnapshot{},
			months:     []types.MonthID{"2024-Jun"},
			wantReason: "without elevation",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := correlate.NewBuilder().Build(tt.baseline, tt.inventory, tt.months, nil, nil)
			assert.True(t, result.Degraded)
			assert.Contains(t, result.DegradedReason, tt.wantReason)
		})
	}
}
