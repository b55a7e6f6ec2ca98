package evaluation

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feed-hub/feed-recommender/internal/application/query"
	"github.com/feed-hub/feed-recommender/internal/domain/catalog"
	"github.com/feed-hub/feed-recommender/internal/domain/shared"
	"github.com/feed-hub/feed-recommender/internal/infrastructure/persistence/tabular"
	"github.com/feed-hub/feed-recommender/pkg/workerpool"
)

// scriptedRecommender serves canned top lists per user.
type scriptedRecommender struct {
	top  map[int64][]int64
	errs map[int64]error
}

func (r *scriptedRecommender) Handle(_ context.Context, q query.GetRecommendationsQuery) (*query.GetRecommendationsResult, error) {
	if err := r.errs[q.UserID]; err != nil {
		return nil, err
	}
	recs := make([]query.RecommendedPostDTO, 0, q.Limit)
	for _, id := range r.top[q.UserID] {
		if len(recs) == q.Limit {
			break
		}
		recs = append(recs, query.RecommendedPostDTO{ID: id})
	}
	return &query.GetRecommendationsResult{Recommendations: recs}, nil
}

func testCatalog(t *testing.T) *catalog.PostStore {
	t.Helper()
	posts, err := catalog.NewPostStore([]catalog.PostAttributes{
		{PostID: 101}, {PostID: 102}, {PostID: 103}, {PostID: 104},
	})
	require.NoError(t, err)
	return posts
}

func TestRun_HitrateCounting(t *testing.T) {
	rec := &scriptedRecommender{
		top: map[int64][]int64{
			1: {101, 102}, // liked 102: hit
			2: {103, 104}, // liked 101: miss
			3: {104, 101}, // liked 101: hit within top-2
		},
	}
	ev := NewEvaluator(rec, testCatalog(t), nil, nil)

	report, err := ev.Run(context.Background(), []tabular.ValidationRow{
		{UserID: 1, LikedPosts: []shared.PostID{102}},
		{UserID: 2, LikedPosts: []shared.PostID{101}},
		{UserID: 3, LikedPosts: []shared.PostID{101}},
	}, 2)
	require.NoError(t, err)

	assert.Equal(t, 2, report.K)
	assert.Equal(t, 3, report.Users)
	assert.Equal(t, 2, report.Hits)
	assert.Zero(t, report.Skipped)
	assert.InDelta(t, 2.0/3.0, report.HitRate, 1e-12)
}

func TestRun_FailedUsersAreSkipped(t *testing.T) {
	rec := &scriptedRecommender{
		top:  map[int64][]int64{1: {101}},
		errs: map[int64]error{2: errors.New("age unknown")},
	}
	ev := NewEvaluator(rec, testCatalog(t), nil, nil)

	report, err := ev.Run(context.Background(), []tabular.ValidationRow{
		{UserID: 1, LikedPosts: []shared.PostID{101}},
		{UserID: 2, LikedPosts: []shared.PostID{101}},
	}, 5)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Users)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 1.0, report.HitRate)
}

func TestRun_DefaultsKToDefaultLimit(t *testing.T) {
	rec := &scriptedRecommender{top: map[int64][]int64{}}
	ev := NewEvaluator(rec, testCatalog(t), nil, nil)

	report, err := ev.Run(context.Background(), nil, 0)
	require.NoError(t, err)
	assert.Equal(t, shared.DefaultLimit, report.K)
	assert.Zero(t, report.Users)
	assert.Zero(t, report.HitRate)
}

func TestRun_PooledMatchesSequential(t *testing.T) {
	rec := &scriptedRecommender{
		top: map[int64][]int64{
			1: {101}, 2: {102}, 3: {103}, 4: {104},
		},
	}
	rows := []tabular.ValidationRow{
		{UserID: 1, LikedPosts: []shared.PostID{101}},
		{UserID: 2, LikedPosts: []shared.PostID{103}},
		{UserID: 3, LikedPosts: []shared.PostID{103}},
		{UserID: 4, LikedPosts: []shared.PostID{101}},
	}

	seq, err := NewEvaluator(rec, testCatalog(t), nil, nil).Run(context.Background(), rows, 1)
	require.NoError(t, err)

	pool := workerpool.New(2)
	defer pool.Close()
	par, err := NewEvaluator(rec, testCatalog(t), pool, nil).Run(context.Background(), rows, 1)
	require.NoError(t, err)

	assert.Equal(t, seq.Hits, par.Hits)
	assert.Equal(t, seq.Users, par.Users)
	assert.Equal(t, seq.HitRate, par.HitRate)
}
