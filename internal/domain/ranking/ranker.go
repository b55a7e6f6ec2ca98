// Package ranking orders scored candidates deterministically.
package ranking

import (
	"sort"

	"github.com/feed-hub/feed-recommender/internal/domain/feature"
	"github.com/feed-hub/feed-recommender/internal/domain/shared"
)

// Ranked pairs a candidate with its engagement score.
type Ranked struct {
	Candidate feature.Candidate
	Score     shared.Score
}

// Rank performs a stable descending sort by score and truncates to limit.
// Ties preserve presentation order: the candidate presented earlier ranks
// first. A limit of 0 means the default limit; fewer candidates than the
// limit returns all of them. Inputs are not mutated.
func Rank(candidates []feature.Candidate, scores []shared.Score, limit int) ([]Ranked, error) {
	if len(candidates) != len(scores) {
		return nil, shared.ErrScoreAlignment
	}
	if limit < 0 {
		return nil, shared.ErrInvalidLimit
	}
	if limit == 0 {
		limit = shared.DefaultLimit
	}

	ranked := make([]Ranked, len(candidates))
	for i, c := range candidates {
		ranked[i] = Ranked{Candidate: c, Score: scores[i]}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})

	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked, nil
}
