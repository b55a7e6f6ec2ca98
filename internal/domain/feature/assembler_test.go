package feature

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feed-hub/feed-recommender/internal/domain/catalog"
	"github.com/feed-hub/feed-recommender/internal/domain/shared"
	"github.com/feed-hub/feed-recommender/internal/domain/stats"
)

// fixedStats is a stats.Reader with canned answers.
type fixedStats struct {
	userStats map[shared.UserID]stats.UserStat
	bucket    stats.AgeBucketStat
	bucketErr error
}

func (f *fixedStats) UserStat(id shared.UserID) (stats.UserStat, bool) {
	s, ok := f.userStats[id]
	return s, ok
}

func (f *fixedStats) AgeStat(shared.Age) (stats.AgeBucketStat, error) {
	if f.bucketErr != nil {
		return stats.AgeBucketStat{}, f.bucketErr
	}
	return f.bucket, nil
}

func testAssembler(t *testing.T, statsReader stats.Reader) *Assembler {
	t.Helper()
	users, err := catalog.NewUserStore([]catalog.UserAttributes{
		{UserID: 1, Gender: "M", Age: 25, Country: "KZ", City: "Almaty", OS: "iOS", Source: "organic"},
	})
	require.NoError(t, err)
	posts, err := catalog.NewPostStore([]catalog.PostAttributes{
		{PostID: 101, Text: "match report", Topic: "sport", TFIDFMean: 0.1, TFIDFMax: 0.8, TextLength: 12, LikesToViewsRatio: 0.3},
		{PostID: 102, Text: "gadget news", Topic: "tech", TFIDFMean: 0.2, TFIDFMax: 0.9, TextLength: 11, LikesToViewsRatio: 0.2},
	})
	require.NoError(t, err)
	return NewAssembler(users, posts, statsReader, nil)
}

func TestAssemble_PersonalStatistics(t *testing.T) {
	a := testAssembler(t, &fixedStats{
		userStats: map[shared.UserID]stats.UserStat{
			1: {UserID: 1, LikesToViewsRatio: 0.4, ProportionByTopic: map[shared.Topic]float64{"sport": 0.6}},
		},
	})

	candidates, records, err := a.Assemble(1, []shared.PostID{101, 102})
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	require.Len(t, records, 2)

	// Records align 1:1 with candidates in input order.
	assert.Equal(t, shared.PostID(101), candidates[0].PostID)
	assert.Equal(t, shared.PostID(102), candidates[1].PostID)

	assert.Equal(t, 0.4, records[0].UserLikesToViewsRatio)
	assert.Equal(t, 0.6, records[0].UserProportionOfLikesByTopic)
	// Topic unseen for the user resolves to 0.
	assert.Equal(t, 0.0, records[1].UserProportionOfLikesByTopic)

	assert.Equal(t, "M", records[0].Gender)
	assert.Equal(t, shared.Age(25), records[0].Age)
	assert.Equal(t, shared.Topic("sport"), records[0].Topic)
	assert.Equal(t, 0.3, records[0].PostLikesToViewsRatio)
}

func TestAssemble_ColdStartUsesAgeBucket(t *testing.T) {
	a := testAssembler(t, &fixedStats{
		bucket: stats.AgeBucketStat{
			Age:                     25,
			MeanLikesToViewsRatio:   0.15,
			MedianProportionByTopic: map[shared.Topic]float64{"tech": 0.7},
		},
	})

	_, records, err := a.Assemble(1, []shared.PostID{101, 102})
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, 0.15, records[0].UserLikesToViewsRatio)
	assert.Equal(t, 0.0, records[0].UserProportionOfLikesByTopic)
	assert.Equal(t, 0.7, records[1].UserProportionOfLikesByTopic)
}

func TestAssemble_UnknownUserIsColdStart(t *testing.T) {
	a := testAssembler(t, &fixedStats{
		bucket: stats.AgeBucketStat{Age: 14, MeanLikesToViewsRatio: 0.1},
	})

	// User 7 is not in the attribute store and has no history or age:
	// the fallback has nothing to key on.
	_, _, err := a.Assemble(7, []shared.PostID{101})
	require.Error(t, err)
	assert.True(t, shared.IsPrecondition(err))
}

func TestAssemble_HistoryBeatsUnknownAge(t *testing.T) {
	// User 7 is absent from the attribute store but has personal
	// statistics, so no age is needed.
	a := testAssembler(t, &fixedStats{
		userStats: map[shared.UserID]stats.UserStat{
			7: {UserID: 7, LikesToViewsRatio: 0.9},
		},
	})

	_, records, err := a.Assemble(7, []shared.PostID{101})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 0.9, records[0].UserLikesToViewsRatio)
	assert.Equal(t, shared.Age(shared.AgeUnknown), records[0].Age)
}

func TestAssemble_DropsMissingPosts(t *testing.T) {
	a := testAssembler(t, &fixedStats{
		userStats: map[shared.UserID]stats.UserStat{1: {UserID: 1}},
	})

	candidates, records, err := a.Assemble(1, []shared.PostID{999, 101, 998})
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	require.Len(t, records, 1)
	assert.Equal(t, shared.PostID(101), candidates[0].PostID)
}

func TestAssemble_BucketErrorPropagates(t *testing.T) {
	a := testAssembler(t, &fixedStats{bucketErr: shared.ErrStatisticsUnavailable})

	_, _, err := a.Assemble(1, []shared.PostID{101})
	assert.ErrorIs(t, err, shared.ErrStatisticsUnavailable)
}
