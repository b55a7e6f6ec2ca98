package scoring

import (
	"context"
	"math"

	"github.com/feed-hub/feed-recommender/internal/domain/feature"
	"github.com/feed-hub/feed-recommender/internal/domain/shared"
)

// ═══════════════════════════════════════════════════════════════════════════
// GRADIENT BOOSTED OBLIVIOUS TREES
// ═══════════════════════════════════════════════════════════════════════════

// Split is one level of an oblivious tree: the same feature/threshold
// comparison applies to every node of that level.
type Split struct {
	Feature   string  `json:"feature"`
	Threshold float64 `json:"threshold"`
}

// Tree is a single oblivious tree. With d splits it has exactly 2^d
// leaves; the leaf index is formed from the split outcomes, one bit per
// level.
type Tree struct {
	Splits     []Split   `json:"splits"`
	LeafValues []float64 `json:"leaf_values"`
}

// leaf returns the leaf value for the encoded feature vector.
func (t Tree) leaf(vec map[string]float64) float64 {
	idx := 0
	for i, s := range t.Splits {
		if vec[s.Feature] > s.Threshold {
			idx |= 1 << i
		}
	}
	return t.LeafValues[idx]
}

// Ensemble is the serialized form of the trained scorer: a bias plus
// learning-rate-scaled leaf values summed over all trees, squashed through
// a sigmoid into a probability.
type Ensemble struct {
	Bias  float64 `json:"bias"`
	Trees []Tree  `json:"trees"`
}

// Validate rejects structurally corrupt ensembles at load time.
func (e Ensemble) Validate() error {
	for _, t := range e.Trees {
		if len(t.Splits) == 0 || len(t.Splits) > 16 {
			return shared.ErrArtifactCorrupt
		}
		if len(t.LeafValues) != 1<<len(t.Splits) {
			return shared.ErrArtifactCorrupt
		}
	}
	return nil
}

// TreeScorer is a Scorer over a loaded ensemble. It is immutable and safe
// for concurrent use.
type TreeScorer struct {
	ensemble Ensemble
	variant  Variant
}

// NewTreeScorer wraps a validated ensemble as the given variant.
func NewTreeScorer(ensemble Ensemble, variant Variant) (*TreeScorer, error) {
	if err := ensemble.Validate(); err != nil {
		return nil, err
	}
	if _, err := ParseVariant(string(variant)); err != nil {
		return nil, err
	}
	return &TreeScorer{ensemble: ensemble, variant: variant}, nil
}

// Variant names the model generation this scorer was loaded as.
func (s *TreeScorer) Variant() Variant {
	return s.variant
}

// Score returns one probability per record, same order. The sigmoid output
// is a probability by construction, so the [0,1] contract holds for any
// finite ensemble.
func (s *TreeScorer) Score(_ context.Context, records []feature.Record) ([]shared.Score, error) {
	scores := make([]shared.Score, len(records))
	for i, r := range records {
		vec := encode(s.variant, r)
		raw := s.ensemble.Bias
		for _, t := range s.ensemble.Trees {
			raw += t.leaf(vec)
		}
		p := sigmoid(raw)
		if math.IsNaN(p) || p < 0 || p > 1 {
			return nil, shared.WrapError("scoring", "Score", shared.ErrValueOutOfRange,
				"ensemble produced a non-probability", shared.ErrScorerFailure)
		}
		scores[i] = shared.Score(p)
	}
	return scores, nil
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}
