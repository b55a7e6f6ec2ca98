package scoring

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feed-hub/feed-recommender/internal/domain/feature"
	"github.com/feed-hub/feed-recommender/internal/domain/shared"
)

// twoLeafEnsemble splits once on age at 18: leaf 0 for age <= 18,
// leaf 1 for age > 18.
func twoLeafEnsemble(low, high float64) Ensemble {
	return Ensemble{
		Trees: []Tree{{
			Splits:     []Split{{Feature: "age", Threshold: 18}},
			LeafValues: []float64{low, high},
		}},
	}
}

func TestParseVariant(t *testing.T) {
	v, err := ParseVariant("v1")
	require.NoError(t, err)
	assert.Equal(t, VariantV1, v)

	v, err = ParseVariant("v2")
	require.NoError(t, err)
	assert.Equal(t, VariantV2, v)

	_, err = ParseVariant("v3")
	assert.ErrorIs(t, err, shared.ErrUnknownVariant)
	_, err = ParseVariant("")
	assert.Error(t, err)
}

func TestEnsembleValidate(t *testing.T) {
	assert.NoError(t, twoLeafEnsemble(0, 1).Validate())

	// Leaf count must be 2^splits.
	bad := Ensemble{Trees: []Tree{{
		Splits:     []Split{{Feature: "age", Threshold: 18}},
		LeafValues: []float64{1, 2, 3},
	}}}
	assert.ErrorIs(t, bad.Validate(), shared.ErrArtifactCorrupt)

	noSplits := Ensemble{Trees: []Tree{{LeafValues: []float64{1}}}}
	assert.ErrorIs(t, noSplits.Validate(), shared.ErrArtifactCorrupt)
}

func TestTreeScorer_SplitsOnFeature(t *testing.T) {
	scorer, err := NewTreeScorer(twoLeafEnsemble(-2, 2), VariantV1)
	require.NoError(t, err)

	scores, err := scorer.Score(context.Background(), []feature.Record{
		{Age: 16},
		{Age: 30},
	})
	require.NoError(t, err)
	require.Len(t, scores, 2)

	// sigmoid(-2) < 0.5 < sigmoid(2)
	assert.Less(t, scores[0].Float64(), 0.5)
	assert.Greater(t, scores[1].Float64(), 0.5)
}

func TestTreeScorer_ScoresAreProbabilities(t *testing.T) {
	scorer, err := NewTreeScorer(Ensemble{
		Bias: 100,
		Trees: []Tree{{
			Splits:     []Split{{Feature: "age", Threshold: 18}},
			LeafValues: []float64{500, -500},
		}},
	}, VariantV2)
	require.NoError(t, err)

	scores, err := scorer.Score(context.Background(), []feature.Record{{Age: 10}, {Age: 90}})
	require.NoError(t, err)
	for _, s := range scores {
		assert.True(t, s.IsValid(), "score %v out of range", s)
	}
}

func TestTreeScorer_Deterministic(t *testing.T) {
	scorer, err := NewTreeScorer(Ensemble{
		Bias: 0.1,
		Trees: []Tree{
			{
				Splits:     []Split{{Feature: "topic=sport", Threshold: 0.5}, {Feature: "age", Threshold: 20}},
				LeafValues: []float64{-1, 0.5, 0.2, 1.5},
			},
		},
	}, VariantV2)
	require.NoError(t, err)

	records := []feature.Record{
		{Age: 25, Topic: "sport", TFIDFMean: 0.2},
		{Age: 15, Topic: "tech"},
	}

	first, err := scorer.Score(context.Background(), records)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := scorer.Score(context.Background(), records)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestTreeScorer_VariantSelectsFeatureSet(t *testing.T) {
	// Splits on a v2-only feature: under v1 the feature always reads 0.
	ensemble := Ensemble{Trees: []Tree{{
		Splits:     []Split{{Feature: "user_likes_to_views_ratio", Threshold: 0.5}},
		LeafValues: []float64{-3, 3},
	}}}
	record := feature.Record{UserLikesToViewsRatio: 0.9}

	v2, err := NewTreeScorer(ensemble, VariantV2)
	require.NoError(t, err)
	v1, err := NewTreeScorer(ensemble, VariantV1)
	require.NoError(t, err)

	s2, err := v2.Score(context.Background(), []feature.Record{record})
	require.NoError(t, err)
	s1, err := v1.Score(context.Background(), []feature.Record{record})
	require.NoError(t, err)

	assert.Greater(t, s2[0].Float64(), 0.5)
	assert.Less(t, s1[0].Float64(), 0.5)
}

func TestEncode_Indicators(t *testing.T) {
	vec := encode(VariantV2, feature.Record{
		Gender: "M",
		Age:    25,
		OS:     "iOS",
		Topic:  "sport",
	})

	assert.Equal(t, 1.0, vec["gender=M"])
	assert.Equal(t, 1.0, vec["os=iOS"])
	assert.Equal(t, 1.0, vec["topic=sport"])
	assert.Equal(t, 25.0, vec["age"])
	// Empty categoricals set no indicator at all.
	_, ok := vec["country="]
	assert.False(t, ok)
}

func TestNewTreeScorer_RejectsBadInput(t *testing.T) {
	_, err := NewTreeScorer(Ensemble{Trees: []Tree{{LeafValues: []float64{1}}}}, VariantV1)
	assert.ErrorIs(t, err, shared.ErrArtifactCorrupt)

	_, err = NewTreeScorer(twoLeafEnsemble(0, 1), "v9")
	assert.ErrorIs(t, err, shared.ErrUnknownVariant)
}
