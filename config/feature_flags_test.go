package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFeatureFlags_Defaults(t *testing.T) {
	ff := LoadFeatureFlags()

	assert.True(t, ff.IsEnabled(FeatureResultCache))
	assert.True(t, ff.IsEnabled(FeatureModelAutoReload))
	assert.True(t, ff.IsEnabled(FeatureParallelScoring))
	assert.False(t, ff.IsEnabled("nonexistent.flag"))
}

func TestLoadFeatureFlags_EnvOverride(t *testing.T) {
	t.Setenv("FEATURE_SERVING_RESULT_CACHE", "false")
	ff := LoadFeatureFlags()

	assert.False(t, ff.IsEnabled(FeatureResultCache))
	assert.True(t, ff.IsEnabled(FeatureModelAutoReload))
}

func TestLoadFeatureFlags_RolloutOverride(t *testing.T) {
	t.Setenv("FEATURE_SCORING_WORKER_POOL_ROLLOUT", "0")
	ff := LoadFeatureFlags()

	// Zero rollout disables the feature service-wide.
	assert.False(t, ff.IsEnabled(FeatureParallelScoring))
}

func TestIsEnabledFor_FullRollout(t *testing.T) {
	ff := LoadFeatureFlags()
	for _, id := range []int64{1, 200, 31337} {
		assert.True(t, ff.IsEnabledFor(FeatureResultCache, id))
	}
}

func TestIsEnabledFor_BucketsAreStable(t *testing.T) {
	t.Setenv("FEATURE_SERVING_RESULT_CACHE_ROLLOUT", "50")
	ff := LoadFeatureFlags()

	inRollout := 0
	for id := int64(1); id <= 200; id++ {
		first := ff.IsEnabledFor(FeatureResultCache, id)
		// Same user, same answer, every time.
		for i := 0; i < 5; i++ {
			require.Equal(t, first, ff.IsEnabledFor(FeatureResultCache, id))
		}
		if first {
			inRollout++
		}
	}
	// Roughly half the users at 50%.
	assert.Greater(t, inRollout, 50)
	assert.Less(t, inRollout, 150)
}

func TestSetEnabled(t *testing.T) {
	ff := LoadFeatureFlags()

	ff.SetEnabled(FeatureModelAutoReload, false)
	assert.False(t, ff.IsEnabled(FeatureModelAutoReload))
	ff.SetEnabled(FeatureModelAutoReload, true)
	assert.True(t, ff.IsEnabled(FeatureModelAutoReload))
}
