package catalog

import (
	"sort"
	"strings"

	version "github.com/hashicorp/go-version"
	"golang.org/x/xerrors"
)

const (
	disqualified    = -10_000
	acceptThreshold = 90
)

// Score rates a candidate against the baseline constraints. A negative
// score disqualifies the candidate outright.
func Score(c Candidate, kb string, cons Constraints) int {
	title := strings.ToLower(c.Title)
	score := 0

	if !strings.Contains(title, strings.ToLower(kb)) {
		return disqualified
	}
	score += 50

	if cons.Generation != "" {
		gen := strings.ToLower(cons.Generation)
		if strings.Contains(title, gen) {
			score += 40
		}
		if gen == "windows 10" && strings.Contains(title, "windows 11") {
			return disqualified
		}
		if gen == "windows 11" && strings.Contains(title, "windows 10") {
			return disqualified
		}
		if strings.Contains(title, "server") {
			return disqualified
		}
	}

	if s, ok := scoreArch(title, cons.Arch); !ok {
		return disqualified
	} else {
		score += s
	}

	dv := strings.ToLower(cons.DisplayVersion)
	if dv != "" {
		if strings.Contains(title, dv) {
			score += 25
		} else if displayVerPattern.MatchString(title) {
			// Titled for a different feature release.
			score -= 15
		}
	}

	score += scoreBuild(c.Title, cons.Build)

	return score
}

func scoreArch(title, arch string) (int, bool) {
	exclusions := map[string][]string{
		"x64":   {"arm64-based", "x86-based", "32-bit"},
		"arm64": {"x64-based", "x86-based", "32-bit"},
		"x86":   {"x64-based", "arm64-based"},
	}
	markers := map[string][]string{
		"x64":   {"x64-based"},
		"arm64": {"arm64-based"},
		"x86":   {"x86-based", "32-bit"},
	}

	for _, token := range exclusions[arch] {
		if strings.Contains(title, token) {
			return 0, false
		}
	}
	for _, token := range markers[arch] {
		if strings.Contains(title, token) {
			return 25, true
		}
	}
	return 0, true
}

// scoreBuild compares the build number embedded in the candidate title
// against the host build. A matching build line is a strong signal, a
// different one a mild penalty.
func scoreBuild(title, build string) int {
	if build == "" {
		return 0
	}
	m := titleBuildPattern.FindStringSubmatch(title)
	if m == nil {
		return 0
	}

	host, err := version.NewVersion(build)
	if err != nil {
		return 0
	}
	candidate, err := version.NewVersion(m[1])
	if err != nil {
		return 0
	}

	if candidate.Segments()[0] == host.Segments()[0] {
		return 10
	}
	return -5
}

// Best returns the highest scoring candidate above the confidence
// threshold, or an error describing why no candidate qualified.
func Best(candidates []Candidate, kb string, cons Constraints) (Candidate, error) {
	type scored struct {
		score     int
		candidate Candidate
	}

	var qualified []scored
	for _, c := range candidates {
		if s := Score(c, kb, cons); s >= 0 {
			qualified = append(qualified, scored{score: s, candidate: c})
		}
	}
	if len(qualified) == 0 {
		return Candidate{}, xerrors.New("no candidate matched baseline constraints")
	}

	sort.SliceStable(qualified, func(i, j int) bool {
		return qualified[i].score > qualified[j].score
	})

	best := qualified[0]
	if best.score < acceptThreshold {
		return Candidate{}, xerrors.Errorf("ambiguous match below confidence threshold (%d)", best.score)
	}
	return best.candidate, nil
}
