// Package stats contains the historical engagement statistics of the
// recommender: per-user like behavior and the per-age-bucket aggregates
// that serve as the cold-start fallback. The store is built once from an
// interaction log snapshot (offline) and is read-only at serving time.
package stats

import (
	"math"
	"time"

	"github.com/feed-hub/feed-recommender/internal/domain/shared"
)

// ═══════════════════════════════════════════════════════════════════════════
// INTERACTION LOG
// ═══════════════════════════════════════════════════════════════════════════

// Interaction actions recorded by the feed product.
const (
	// ActionView is a post impression. Views form the ratio denominator.
	ActionView = "view"

	// ActionLike is an explicit like row. It duplicates the signal already
	// folded into Target of the corresponding view and is excluded from
	// every aggregate.
	ActionLike = "like"
)

// InteractionRecord is a single row of the interaction log snapshot.
// Consumed only to build the statistics store, never read at serving time.
type InteractionRecord struct {
	UserID    shared.UserID
	PostID    shared.PostID
	Timestamp time.Time
	Action    string
	// Target is 1 when the view led to a like, 0 otherwise.
	Target int
}

// ═══════════════════════════════════════════════════════════════════════════
// STATISTICS
// ═══════════════════════════════════════════════════════════════════════════

// UserStat holds a user's personal engagement statistics. Present only for
// users with at least one historical interaction.
type UserStat struct {
	UserID shared.UserID `json:"user_id"`

	// LikesToViewsRatio is the fraction of the user's viewed posts that
	// were liked, rounded to 3 decimals.
	LikesToViewsRatio float64 `json:"likes_to_views_ratio"`

	// ProportionByTopic is the share of the user's total likes attributable
	// to each topic, rounded to 3 decimals. Topics the user never liked are
	// absent; lookups default to 0.
	ProportionByTopic map[shared.Topic]float64 `json:"proportion_by_topic"`
}

// Proportion returns the user's like proportion for the topic, 0 when the
// topic is unseen for this user.
func (s UserStat) Proportion(topic shared.Topic) float64 {
	return s.ProportionByTopic[topic]
}

// AgeBucketStat holds the fallback aggregates for one age bucket, derived
// from the UserStat values of all users sharing that age.
type AgeBucketStat struct {
	Age shared.Age `json:"age"`

	// MeanLikesToViewsRatio is the mean of the bucket's user ratios,
	// rounded to 3 decimals.
	MeanLikesToViewsRatio float64 `json:"mean_likes_to_views_ratio"`

	// MedianProportionByTopic is the per-topic median of the bucket's user
	// proportions, rounded to 3 decimals. Unseen topics default to 0.
	MedianProportionByTopic map[shared.Topic]float64 `json:"median_proportion_by_topic"`
}

// Proportion returns the bucket's median like proportion for the topic,
// 0 when the topic is unseen in the bucket.
func (s AgeBucketStat) Proportion(topic shared.Topic) float64 {
	return s.MedianProportionByTopic[topic]
}

// round3 matches the offline pipeline, which rounds every aggregate to
// 3 decimals before it is persisted.
func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
