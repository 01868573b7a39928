package favicon

import (
	"sort"
	"strings"
)

// Scoring constants. Markup links start at the formula base; manifest
// entries inherit a higher base reflecting curation; well-known paths and
// the remote fallback sit on fixed constants below the formula's floor so
// declared candidates are always tried first.
const (
	scoreBaseMarkup   = 50
	scoreBaseManifest = 75
	scoreWellKnownICO = 30
	scoreWellKnownPNG = 25
	scoreRemote       = 10

	bonusVector = 100
	bonusApple  = 10
	malusMask   = 10
)

// Score is a pure function of a candidate's declared metadata, never of
// live network behavior. Identical inputs always produce identical scores.
func Score(c Candidate) int {
	switch c.Origin {
	case OriginWellKnown:
		if strings.HasSuffix(stripQuery(c.URL), ".ico") {
			return scoreWellKnownICO
		}
		return scoreWellKnownPNG
	case OriginRemote:
		return scoreRemote
	}

	score := scoreBaseMarkup
	if c.Origin == OriginManifest {
		score = scoreBaseManifest
	}
	if c.Format == "svg" {
		score += bonusVector
	}
	score += sizeBonus(c.Size)
	score += formatBonus(c.Format)

	rel := strings.ToLower(c.Rel)
	if strings.Contains(rel, "apple") || strings.Contains(rel, "touch") {
		score += bonusApple
	}
	if strings.Contains(rel, "mask") || strings.Contains(rel, "monochrome") {
		score -= malusMask
	}
	return score
}

// sizeBonus applies the largest applicable tier only.
func sizeBonus(size int) int {
	switch {
	case size >= 512:
		return 90
	case size >= 256:
		return 80
	case size >= 192:
		return 70
	case size >= 128:
		return 60
	case size >= 64:
		return 50
	case size >= 32:
		return 40
	}
	return 0
}

func formatBonus(format string) int {
	switch format {
	case "png":
		return 20
	case "webp":
		return 15
	case "gif":
		return 10
	case "ico":
		return 5
	}
	return 0
}

// Rank assigns scores and sorts descending. The sort is stable: equal scores
// preserve discovery order. Ranking never discards candidates; exhaustion
// handling belongs to the fetch stage.
func Rank(cands []Candidate) []Candidate {
	ranked := make([]Candidate, len(cands))
	copy(ranked, cands)
	for i := range ranked {
		ranked[i].Score = Score(ranked[i])
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	return ranked
}
