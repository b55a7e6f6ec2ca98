package pipeline

import (
	"context"
	"math"

	"github.com/feed-hub/feed-recommender/internal/domain/catalog"
	"github.com/feed-hub/feed-recommender/internal/domain/shared"
	"github.com/feed-hub/feed-recommender/internal/domain/stats"
	"github.com/feed-hub/feed-recommender/pkg/logger"
	"github.com/feed-hub/feed-recommender/pkg/workerpool"
)

// ══════════════════════════════════════════════════════════════════════════════
// POST FEATURE CONSTRUCTION
// ══════════════════════════════════════════════════════════════════════════════

// FeatureBuilder turns the raw post extract into the processed post table:
// text statistics from the corpus plus each post's like ratio from the
// interaction log.
type FeatureBuilder struct {
	vectorizer *Vectorizer
	log        *logger.Logger
}

// NewFeatureBuilder creates a FeatureBuilder. pool may be nil.
func NewFeatureBuilder(pool *workerpool.Pool, log *logger.Logger) *FeatureBuilder {
	if log == nil {
		log = logger.Default()
	}
	return &FeatureBuilder{
		vectorizer: NewVectorizer(pool),
		log:        log.With(logger.Component("feature-pipeline")),
	}
}

// BuildPostFeatures returns a copy of posts with TFIDFMean, TFIDFMax,
// TextLength and LikesToViewsRatio populated. Posts that were never shown
// get the mean ratio of their topic, so an unseen post starts from its
// topic's baseline rather than zero.
func (b *FeatureBuilder) BuildPostFeatures(
	ctx context.Context,
	posts []catalog.PostAttributes,
	interactions []stats.InteractionRecord,
) ([]catalog.PostAttributes, error) {
	out := make([]catalog.PostAttributes, len(posts))
	copy(out, posts)

	docs := make([]string, len(out))
	for i, p := range out {
		docs[i] = p.Text
	}
	textStats, err := b.vectorizer.Fit(ctx, docs)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].TFIDFMean = textStats[i].TFIDFMean
		out[i].TFIDFMax = textStats[i].TFIDFMax
		out[i].TextLength = textStats[i].Length
	}

	b.fillLikeRatios(out, interactions)

	b.log.Info("post features built", logger.RowCount(len(out)))
	return out, nil
}

// fillLikeRatios computes likes/views per post over the view rows of the
// interaction log and fills never-shown posts with their topic mean.
func (b *FeatureBuilder) fillLikeRatios(posts []catalog.PostAttributes, interactions []stats.InteractionRecord) {
	type accum struct {
		views int
		likes int
	}
	byPost := make(map[shared.PostID]*accum)
	for _, rec := range interactions {
		if rec.Action == stats.ActionLike {
			continue
		}
		a := byPost[rec.PostID]
		if a == nil {
			a = &accum{}
			byPost[rec.PostID] = a
		}
		a.views++
		a.likes += rec.Target
	}

	type topicAccum struct {
		sum float64
		n   int
	}
	byTopic := make(map[shared.Topic]*topicAccum)
	for i := range posts {
		a, ok := byPost[posts[i].PostID]
		if !ok || a.views == 0 {
			continue
		}
		ratio := round3(float64(a.likes) / float64(a.views))
		posts[i].LikesToViewsRatio = ratio

		t := byTopic[posts[i].Topic]
		if t == nil {
			t = &topicAccum{}
			byTopic[posts[i].Topic] = t
		}
		t.sum += ratio
		t.n++
	}

	filled := 0
	for i := range posts {
		if a, ok := byPost[posts[i].PostID]; ok && a.views > 0 {
			continue
		}
		if t := byTopic[posts[i].Topic]; t != nil && t.n > 0 {
			posts[i].LikesToViewsRatio = round3(t.sum / float64(t.n))
		}
		filled++
	}
	if filled > 0 {
		b.log.Debug("unseen posts filled with topic mean ratio", logger.RowCount(filled))
	}
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
