package stats

import (
	"sort"

	"github.com/feed-hub/feed-recommender/internal/domain/catalog"
	"github.com/feed-hub/feed-recommender/internal/domain/shared"
)

// ═══════════════════════════════════════════════════════════════════════════
// STORE BUILD
// ═══════════════════════════════════════════════════════════════════════════

// Build computes the statistics store from an interaction log snapshot.
// Run once, offline. The resulting store is immutable.
//
// Aggregation policies (explicit, replacing the offline pipeline's implicit
// join/fill semantics):
//   - Rows with action "like" are excluded up front: the like signal is
//     already folded into Target of the corresponding view row.
//   - likes_to_views_ratio = sum(Target)/count(Target) over the user's
//     remaining rows.
//   - proportion_by_topic[t] = sum(Target | topic=t)/sum(Target); rows whose
//     post is absent from the catalog have no topic and are skipped for
//     proportions (they still count toward the ratio denominator). A user
//     with zero likes gets an empty proportion map (every topic resolves 0).
//   - Age buckets join UserStat through the user attribute table; users
//     absent from it, or with unknown age, contribute to no bucket.
//   - Bucket ratio is the mean of its users' ratios; bucket proportions are
//     the per-topic median over users that have the topic in their map.
//   - Every aggregate is rounded to 3 decimals.
//
// The build fails with ErrStatisticsUnavailable when no bucket exists at or
// below the clamp floor: the decrement fallback could then fail at request
// time, and that is a data-integrity violation to surface now, not later.
func Build(log []InteractionRecord, users catalog.UserReader, posts catalog.PostReader) (*Store, error) {
	if len(log) == 0 {
		return nil, shared.ErrEmptyInteractionLog
	}

	type userAccum struct {
		views        int
		likes        int
		likesByTopic map[shared.Topic]int
	}

	accum := make(map[shared.UserID]*userAccum)
	for _, row := range log {
		if row.Action == ActionLike {
			continue
		}
		a := accum[row.UserID]
		if a == nil {
			a = &userAccum{likesByTopic: make(map[shared.Topic]int)}
			accum[row.UserID] = a
		}
		a.views++
		if row.Target == 1 {
			a.likes++
			if post, ok := posts.Post(row.PostID); ok {
				a.likesByTopic[post.Topic]++
			}
		}
	}

	if len(accum) == 0 {
		// Every row was a like-action duplicate.
		return nil, shared.ErrEmptyInteractionLog
	}

	userStats := make(map[shared.UserID]UserStat, len(accum))
	for id, a := range accum {
		stat := UserStat{
			UserID:            id,
			LikesToViewsRatio: round3(float64(a.likes) / float64(a.views)),
			ProportionByTopic: make(map[shared.Topic]float64, len(a.likesByTopic)),
		}
		if a.likes > 0 {
			for topic, n := range a.likesByTopic {
				stat.ProportionByTopic[topic] = round3(float64(n) / float64(a.likes))
			}
		}
		userStats[id] = stat
	}

	ageStats, err := buildAgeBuckets(userStats, users)
	if err != nil {
		return nil, err
	}

	return newStore(userStats, ageStats)
}

// buildAgeBuckets aggregates UserStat values across all users sharing an age.
func buildAgeBuckets(userStats map[shared.UserID]UserStat, users catalog.UserReader) (map[shared.Age]AgeBucketStat, error) {
	type bucketAccum struct {
		ratios       []float64
		proportions  map[shared.Topic][]float64
	}

	buckets := make(map[shared.Age]*bucketAccum)
	for id, stat := range userStats {
		attrs, ok := users.User(id)
		if !ok || !attrs.Age.IsKnown() {
			continue
		}
		b := buckets[attrs.Age]
		if b == nil {
			b = &bucketAccum{proportions: make(map[shared.Topic][]float64)}
			buckets[attrs.Age] = b
		}
		b.ratios = append(b.ratios, stat.LikesToViewsRatio)
		for topic, p := range stat.ProportionByTopic {
			b.proportions[topic] = append(b.proportions[topic], p)
		}
	}

	ageStats := make(map[shared.Age]AgeBucketStat, len(buckets))
	for age, b := range buckets {
		stat := AgeBucketStat{
			Age:                     age,
			MeanLikesToViewsRatio:   round3(mean(b.ratios)),
			MedianProportionByTopic: make(map[shared.Topic]float64, len(b.proportions)),
		}
		for topic, values := range b.proportions {
			stat.MedianProportionByTopic[topic] = round3(median(values))
		}
		ageStats[age] = stat
	}

	return ageStats, nil
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// median averages the two middle values for even-length input.
func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}
