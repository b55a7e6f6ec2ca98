package scoring

import (
	"github.com/feed-hub/feed-recommender/internal/domain/feature"
)

// ═══════════════════════════════════════════════════════════════════════════
// FEATURE ENCODING
// ═══════════════════════════════════════════════════════════════════════════

// Numeric feature names used by tree splits.
const (
	featAge           = "age"
	featTFIDFMean     = "tfidf_mean"
	featTFIDFMax      = "tfidf_max"
	featTextLength    = "text_length"
	featPostRatio     = "post_likes_to_views_ratio"
	featUserRatio     = "user_likes_to_views_ratio"
	featTopicProp     = "user_proportion_of_likes_by_topic"
)

// encode flattens a record into the named feature vector for the given
// variant. Categorical attributes become one-hot indicators ("gender=M",
// "topic=sport") so a tree split on them is a 0.5-threshold split on the
// indicator. Absent keys read as 0, which makes the unknown-sentinel
// categorical value (empty string) a plain "no indicator set" case.
func encode(v Variant, r feature.Record) map[string]float64 {
	vec := make(map[string]float64, 16)

	setIndicator(vec, "gender", r.Gender)
	setIndicator(vec, "country", r.Country)
	setIndicator(vec, "city", r.City)
	setIndicator(vec, "os", r.OS)
	setIndicator(vec, "source", r.Source)
	setIndicator(vec, "topic", r.Topic.String())
	vec[featAge] = float64(r.Age.Int())

	if v == VariantV2 {
		vec[featTFIDFMean] = r.TFIDFMean
		vec[featTFIDFMax] = r.TFIDFMax
		vec[featTextLength] = float64(r.TextLength)
		vec[featPostRatio] = r.PostLikesToViewsRatio
		vec[featUserRatio] = r.UserLikesToViewsRatio
		vec[featTopicProp] = r.UserProportionOfLikesByTopic
	}

	return vec
}

func setIndicator(vec map[string]float64, name, value string) {
	if value == "" {
		return
	}
	vec[name+"="+value] = 1
}
