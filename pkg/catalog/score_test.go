package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var x64Constraints = Constraints{
	Generation:     "Windows 11",
	DisplayVersion: "23H2",
	Build:          "22631.3737",
	Arch:           "x64",
}

func TestScore(t *testing.T) {
	tests := []struct {
		name     string
		title    string
		cons     Constraints
		wantMin  int
		wantDisq bool
	}{
		{
			name:    "full match",
			title:   "2024-06 Cumulative Update for Windows 11 Version 23H2 for x64-based Systems (KB5039212)",
			cons:    x64Constraints,
			wantMin: acceptThreshold,
		},
		{
			name:     "kb not in title",
			title:    "2024-06 Cumulative Update for Windows 11 Version 23H2 for x64-based Systems (KB5037771)",
			cons:     x64Constraints,
			wantDisq: true,
		},
		{
			name:     "wrong generation",
			title:    "2024-06 Cumulative Update for Windows 10 Version 22H2 for x64-based Systems (KB5039212)",
			cons:     x64Constraints,
			wantDisq: true,
		},
		{
			name:     "server variant excluded",
			title:    "2024-06 Cumulative Update for Microsoft server operating system version 23H2 for x64-based Systems (KB5039212)",
			cons:     x64Constraints,
			wantDisq: true,
		},
		{
			name:     "wrong architecture",
			title:    "2024-06 Cumulative Update for Windows 11 Version 23H2 for ARM64-based Systems (KB5039212)",
			cons:     x64Constraints,
			wantDisq: true,
		},
		{
			name: "arm64 host rejects x64 package",
			title: "2024-06 Cumulative Update for Windows 11 Version 23H2 for x64-based Systems (KB5039212)",
			cons: Constraints{
				Generation:     "Windows 11",
				DisplayVersion: "23H2",
				Arch:           "arm64",
			},
			wantDisq: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Score(Candidate{Title: tt.title}, "KB5039212", tt.cons)
			if tt.wantDisq {
				assert.Negative(t, got)
				return
			}
			assert.GreaterOrEqual(t, got, tt.wantMin)
		})
	}
}

func TestScorePenalizesOtherFeatureRelease(t *testing.T) {
	// Title names a display version, just not ours.
	title := "2024-06 Cumulative Update for Windows 11 Version 22H2 for x64-based Systems (KB5039212)"
	mismatch := Score(Candidate{Title: title}, "KB5039212", x64Constraints)

	matching := Score(Candidate{
		Title: "2024-06 Cumulative Update for Windows 11 Version 23H2 for x64-based Systems (KB5039212)",
	}, "KB5039212", x64Constraints)

	assert.Less(t, mismatch, matching)
}

func TestScoreBuildLine(t *testing.T) {
	same := Score(Candidate{
		Title: "2024-06 Cumulative Update for Windows 11 Version 23H2 for x64-based Systems (22631.3737) (KB5039212)",
	}, "KB5039212", x64Constraints)

	other := Score(Candidate{
		Title: "2024-06 Cumulative Update for Windows 11 Version 23H2 for x64-based Systems (22621.3737) (KB5039212)",
	}, "KB5039212", x64Constraints)

	assert.Greater(t, same, other)
}

func TestBest(t *testing.T) {
	candidates := []Candidate{
		{
			UpdateID: "arm",
			Title:    "2024-06 Cumulative Update for Windows 11 Version 23H2 for ARM64-based Systems (KB5039212)",
		},
		{
			UpdateID: "x64",
			Title:    "2024-06 Cumulative Update for Windows 11 Version 23H2 for x64-based Systems (KB5039212)",
		},
	}

	best, err := Best(candidates, "KB5039212", x64Constraints)
	require.NoError(t, err)
	assert.Equal(t, "x64", best.UpdateID)
}

func TestBestNoQualifiedCandidate(t *testing.T) {
	candidates := []Candidate{
		{Title: "2024-06 Cumulative Update for Windows 10 Version 22H2 (KB5039211)"},
	}

	_, err := Best(candidates, "KB5039212", x64Constraints)
	assert.ErrorContains(t, err, "no candidate matched")
}

func TestBestBelowThreshold(t *testing.T) {
	// KB matches but nothing else does: 50 points is not confident enough.
	candidates := []Candidate{
		{Title: "Some update (KB5039212)"},
	}

	_, err := Best(candidates, "KB5039212", Constraints{Arch: "x64"})
	assert.ErrorContains(t, err, "below confidence threshold")
}
