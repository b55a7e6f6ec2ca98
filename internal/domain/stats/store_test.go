package stats

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feed-hub/feed-recommender/internal/domain/shared"
)

func storeWithBuckets(t *testing.T, ages ...shared.Age) *Store {
	t.Helper()
	ageStats := make(map[shared.Age]AgeBucketStat, len(ages))
	for _, age := range ages {
		ageStats[age] = AgeBucketStat{
			Age:                   age,
			MeanLikesToViewsRatio: float64(age) / 100,
		}
	}
	store, err := newStore(map[shared.UserID]UserStat{}, ageStats)
	require.NoError(t, err)
	return store
}

func TestAgeStat_ClampsToFloor(t *testing.T) {
	store := storeWithBuckets(t, 14, 20)

	// Ages below the floor share the youngest populated bucket.
	for _, age := range []shared.Age{0, 10, 13, 14} {
		bucket, err := store.AgeStat(age)
		require.NoError(t, err)
		assert.Equal(t, shared.Age(14), bucket.Age, "age %d", age)
	}
}

func TestAgeStat_DecrementsUntilPopulated(t *testing.T) {
	store := storeWithBuckets(t, 14, 20)

	// 17 has no bucket: 17 -> 16 -> 15 -> 14.
	bucket, err := store.AgeStat(17)
	require.NoError(t, err)
	assert.Equal(t, shared.Age(14), bucket.Age)

	bucket, err = store.AgeStat(25)
	require.NoError(t, err)
	assert.Equal(t, shared.Age(20), bucket.Age)
}

func TestAgeStat_ExactBucketWins(t *testing.T) {
	store := storeWithBuckets(t, 12, 14, 20)

	bucket, err := store.AgeStat(20)
	require.NoError(t, err)
	assert.Equal(t, shared.Age(20), bucket.Age)

	// Clamped to 14, which is populated; 12 is never reached.
	bucket, err = store.AgeStat(5)
	require.NoError(t, err)
	assert.Equal(t, shared.Age(14), bucket.Age)
}

func TestNewStore_RejectsBucketsAboveFloor(t *testing.T) {
	_, err := newStore(map[shared.UserID]UserStat{}, map[shared.Age]AgeBucketStat{
		15: {Age: 15},
	})
	assert.ErrorIs(t, err, shared.ErrStatisticsUnavailable)

	_, err = newStore(map[shared.UserID]UserStat{}, map[shared.Age]AgeBucketStat{})
	assert.ErrorIs(t, err, shared.ErrStatisticsUnavailable)
}

func TestSnapshot_RoundTrip(t *testing.T) {
	original, err := newStore(
		map[shared.UserID]UserStat{
			1: {UserID: 1, LikesToViewsRatio: 0.4, ProportionByTopic: map[shared.Topic]float64{"sport": 0.6}},
		},
		map[shared.Age]AgeBucketStat{
			14: {Age: 14, MeanLikesToViewsRatio: 0.2, MedianProportionByTopic: map[shared.Topic]float64{"tech": 0.5}},
		},
	)
	require.NoError(t, err)

	restored, err := FromSnapshot(original.Snapshot())
	require.NoError(t, err)

	stat, ok := restored.UserStat(1)
	require.True(t, ok)
	assert.Equal(t, 0.4, stat.LikesToViewsRatio)
	assert.Equal(t, 0.6, stat.Proportion("sport"))

	bucket, err := restored.AgeStat(40)
	require.NoError(t, err)
	assert.Equal(t, 0.2, bucket.MeanLikesToViewsRatio)
	assert.Equal(t, 0.5, bucket.Proportion("tech"))
}

func TestFromSnapshot_RejectsCorruptArtifact(t *testing.T) {
	_, err := FromSnapshot(Snapshot{
		AgeStats: []AgeBucketStat{{Age: 50}},
	})
	assert.ErrorIs(t, err, shared.ErrStatisticsUnavailable)
}
