package query

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feed-hub/feed-recommender/internal/domain/catalog"
	"github.com/feed-hub/feed-recommender/internal/domain/feature"
	"github.com/feed-hub/feed-recommender/internal/domain/shared"
	"github.com/feed-hub/feed-recommender/internal/domain/stats"
	"github.com/feed-hub/feed-recommender/internal/scoring"
)

// fixedScorer returns canned scores by candidate position.
type fixedScorer struct {
	scores []shared.Score
	err    error
}

func (s *fixedScorer) Score(_ context.Context, records []feature.Record) ([]shared.Score, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.scores[:len(records)], nil
}

func (s *fixedScorer) Variant() scoring.Variant { return scoring.VariantV2 }

// fixedModel is a ModelView over fixture stores and a fixed scorer.
type fixedModel struct {
	assembler *feature.Assembler
	scorer    scoring.Scorer
}

func (m *fixedModel) Assembler() *feature.Assembler { return m.assembler }
func (m *fixedModel) Scorer() scoring.Scorer        { return m.scorer }

// fakeCache records Set calls and serves a canned Get.
type fakeCache struct {
	recs   []RecommendedPostDTO
	hit    bool
	getErr error
	setErr error
	sets   int
}

func (c *fakeCache) Get(context.Context, GetRecommendationsQuery) ([]RecommendedPostDTO, bool, error) {
	return c.recs, c.hit, c.getErr
}

func (c *fakeCache) Set(context.Context, GetRecommendationsQuery, []RecommendedPostDTO) error {
	c.sets++
	return c.setErr
}

// fixtureModel builds a model over two users and three posts, with the
// user statistics from the interaction history fixture: user 1 liked 40%
// of viewed posts, 60% of those likes in sport.
func fixtureModel(t *testing.T, scorer scoring.Scorer) *fixedModel {
	t.Helper()
	users, err := catalog.NewUserStore([]catalog.UserAttributes{
		{UserID: 1, Gender: "M", Age: 25},
		{UserID: 2, Age: 10},
	})
	require.NoError(t, err)
	posts, err := catalog.NewPostStore([]catalog.PostAttributes{
		{PostID: 101, Text: "match report", Topic: "sport"},
		{PostID: 102, Text: "gadget news", Topic: "tech"},
		{PostID: 103, Text: "derby preview", Topic: "sport"},
	})
	require.NoError(t, err)

	store, err := stats.FromSnapshot(stats.Snapshot{
		UserStats: []stats.UserStat{
			{UserID: 1, LikesToViewsRatio: 0.4, ProportionByTopic: map[shared.Topic]float64{"sport": 0.6}},
		},
		AgeStats: []stats.AgeBucketStat{
			{Age: 14, MeanLikesToViewsRatio: 0.2},
			{Age: 25, MeanLikesToViewsRatio: 0.3},
		},
	})
	require.NoError(t, err)

	return &fixedModel{
		assembler: feature.NewAssembler(users, posts, store, nil),
		scorer:    scorer,
	}
}

func TestHandle_RanksAndTruncates(t *testing.T) {
	model := fixtureModel(t, &fixedScorer{scores: []shared.Score{0.9, 0.1, 0.5}})
	h := NewGetRecommendationsHandler(model, nil, nil)

	result, err := h.Handle(context.Background(), GetRecommendationsQuery{
		UserID:           1,
		CandidatePostIDs: []int64{101, 102, 103},
		Limit:            2,
	})
	require.NoError(t, err)

	require.Len(t, result.Recommendations, 2)
	assert.Equal(t, int64(101), result.Recommendations[0].ID)
	assert.Equal(t, int64(103), result.Recommendations[1].ID)
	assert.Equal(t, "match report", result.Recommendations[0].Text)
	assert.Equal(t, "sport", result.Recommendations[0].Topic)
	assert.Equal(t, "v2", result.ModelVariant)
	assert.False(t, result.FromCache)
}

func TestHandle_EmptyCandidatesIsEmptyResult(t *testing.T) {
	model := fixtureModel(t, &fixedScorer{})
	h := NewGetRecommendationsHandler(model, nil, nil)

	result, err := h.Handle(context.Background(), GetRecommendationsQuery{UserID: 1})
	require.NoError(t, err)
	assert.NotNil(t, result.Recommendations)
	assert.Empty(t, result.Recommendations)
}

func TestHandle_ColdStartBelowClampFloor(t *testing.T) {
	// User 2 is 10 with no history: the fallback clamps to the 14 bucket.
	model := fixtureModel(t, &fixedScorer{scores: []shared.Score{0.5, 0.5, 0.5}})
	h := NewGetRecommendationsHandler(model, nil, nil)

	result, err := h.Handle(context.Background(), GetRecommendationsQuery{
		UserID:           2,
		CandidatePostIDs: []int64{101, 102, 103},
	})
	require.NoError(t, err)
	// All tied: presentation order survives.
	require.Len(t, result.Recommendations, 3)
	assert.Equal(t, int64(101), result.Recommendations[0].ID)
	assert.Equal(t, int64(102), result.Recommendations[1].ID)
	assert.Equal(t, int64(103), result.Recommendations[2].ID)
}

func TestHandle_UnknownUserWithoutAgeFailsPrecondition(t *testing.T) {
	model := fixtureModel(t, &fixedScorer{scores: []shared.Score{0.5}})
	h := NewGetRecommendationsHandler(model, nil, nil)

	_, err := h.Handle(context.Background(), GetRecommendationsQuery{
		UserID:           999,
		CandidatePostIDs: []int64{101},
	})
	require.Error(t, err)
	assert.True(t, shared.IsPrecondition(err))
}

func TestHandle_ScorerFailurePropagatesUnchanged(t *testing.T) {
	boom := errors.New("model backend down")
	model := fixtureModel(t, &fixedScorer{err: boom})
	cache := &fakeCache{}
	h := NewGetRecommendationsHandler(model, cache, nil)

	_, err := h.Handle(context.Background(), GetRecommendationsQuery{
		UserID:           1,
		CandidatePostIDs: []int64{101, 102},
	})
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, cache.sets)
}

func TestHandle_AllCandidatesMissing(t *testing.T) {
	model := fixtureModel(t, &fixedScorer{scores: []shared.Score{0.5}})
	h := NewGetRecommendationsHandler(model, nil, nil)

	result, err := h.Handle(context.Background(), GetRecommendationsQuery{
		UserID:           1,
		CandidatePostIDs: []int64{888, 999},
	})
	require.NoError(t, err)
	assert.Empty(t, result.Recommendations)
}

func TestHandle_CacheHitSkipsScoring(t *testing.T) {
	model := fixtureModel(t, &fixedScorer{err: errors.New("must not be called")})
	cache := &fakeCache{
		hit:  true,
		recs: []RecommendedPostDTO{{ID: 101, Text: "match report", Topic: "sport"}},
	}
	h := NewGetRecommendationsHandler(model, cache, nil)

	result, err := h.Handle(context.Background(), GetRecommendationsQuery{
		UserID:           1,
		CandidatePostIDs: []int64{101},
	})
	require.NoError(t, err)
	assert.True(t, result.FromCache)
	require.Len(t, result.Recommendations, 1)
	assert.Equal(t, int64(101), result.Recommendations[0].ID)
}

func TestHandle_CacheErrorsAreMisses(t *testing.T) {
	model := fixtureModel(t, &fixedScorer{scores: []shared.Score{0.5}})
	cache := &fakeCache{getErr: errors.New("redis down"), setErr: errors.New("redis down")}
	h := NewGetRecommendationsHandler(model, cache, nil)

	result, err := h.Handle(context.Background(), GetRecommendationsQuery{
		UserID:           1,
		CandidatePostIDs: []int64{101},
	})
	require.NoError(t, err)
	assert.False(t, result.FromCache)
	require.Len(t, result.Recommendations, 1)
}

func TestQueryValidate(t *testing.T) {
	q := GetRecommendationsQuery{UserID: 1}
	require.NoError(t, q.Validate())
	assert.Equal(t, shared.DefaultLimit, q.Limit)

	bad := GetRecommendationsQuery{UserID: 0}
	assert.Error(t, bad.Validate())

	neg := GetRecommendationsQuery{UserID: 1, Limit: -1}
	assert.ErrorIs(t, neg.Validate(), shared.ErrInvalidLimit)
}
