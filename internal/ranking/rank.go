package ranking

import (
	"fmt"
	"sort"
	"strconv"

	"campaign-planner/backend/internal/campaign"
)

// FallbackLabel is shown whenever a usable match score is missing.
const FallbackLabel = "Match score unavailable"

// Ranked pairs a platform candidate with its user-facing match label.
type Ranked struct {
	Candidate campaign.PlatformCandidate `json:"candidate"`
	Label     string                     `json:"label"`
}

// Rank orders and labels platform candidates for display. The recommended
// bucket is sorted descending by match score and labeled relative to the
// best score; the not-recommended bucket keeps the server-supplied order
// and renders scores verbatim. The input slice is never mutated.
func Rank(candidates []campaign.PlatformCandidate, recommended bool) []Ranked {
	ordered := make([]campaign.PlatformCandidate, len(candidates))
	copy(ordered, candidates)

	if recommended {
		sort.SliceStable(ordered, func(i, j int) bool {
			return scoreOrZero(ordered[i]) > scoreOrZero(ordered[j])
		})
	}

	out := make([]Ranked, 0, len(ordered))
	if !recommended {
		for _, c := range ordered {
			out = append(out, Ranked{Candidate: c, Label: verbatimLabel(c)})
		}
		return out
	}

	highest := 1.0
	if len(ordered) > 0 {
		if top := ordered[0].MatchScore; top != nil && *top != 0 {
			highest = *top
		}
	}
	for i, c := range ordered {
		out = append(out, Ranked{Candidate: c, Label: relativeLabel(c, i, highest)})
	}
	return out
}

func scoreOrZero(c campaign.PlatformCandidate) float64 {
	if c.MatchScore == nil {
		return 0
	}
	return *c.MatchScore
}

// relativeLabel grades a recommended candidate against the best score.
// The top entry is always "Highly Recommended"; a missing or zero score
// below it cannot be graded and falls back.
func relativeLabel(c campaign.PlatformCandidate, index int, highest float64) string {
	if index == 0 {
		return "Highly Recommended"
	}
	if c.MatchScore == nil || *c.MatchScore == 0 {
		return FallbackLabel
	}
	percent := int(*c.MatchScore/highest*100 + 0.5)
	return fmt.Sprintf("%d%% Match", percent)
}

// verbatimLabel renders a not-recommended candidate's own score. A present
// zero is a real (terrible) score and still renders; only absence falls back.
func verbatimLabel(c campaign.PlatformCandidate) string {
	if c.MatchScore == nil {
		return FallbackLabel
	}
	return strconv.FormatFloat(*c.MatchScore, 'f', -1, 64) + "% Match"
}
