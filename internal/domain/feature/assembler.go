package feature

import (
	"github.com/feed-hub/feed-recommender/internal/domain/catalog"
	"github.com/feed-hub/feed-recommender/internal/domain/shared"
	"github.com/feed-hub/feed-recommender/internal/domain/stats"
	"github.com/feed-hub/feed-recommender/pkg/logger"
)

// ═══════════════════════════════════════════════════════════════════════════
// FEATURE ASSEMBLER
// ═══════════════════════════════════════════════════════════════════════════

// Assembler joins the attribute stores and the statistics store into
// feature records. Constructed once; safe for concurrent use because all
// three stores are immutable.
type Assembler struct {
	users catalog.UserReader
	posts catalog.PostReader
	stats stats.Reader
	log   *logger.Logger
}

// NewAssembler creates an Assembler over the given stores.
func NewAssembler(users catalog.UserReader, posts catalog.PostReader, statsReader stats.Reader, log *logger.Logger) *Assembler {
	if log == nil {
		log = logger.Default()
	}
	return &Assembler{
		users: users,
		posts: posts,
		stats: statsReader,
		log:   log.With(logger.Component("feature-assembler")),
	}
}

// Assemble produces one feature record per scoreable candidate, aligned
// 1:1 with the surviving candidates in input order.
//
// Resolution policies:
//   - A user absent from the attribute store gets unknown-sentinel
//     attributes; cold start is a supported path, not an error.
//   - A candidate absent from the post store is dropped with a warning;
//     it cannot be scored or recommended.
//   - With personal statistics present, the user's own ratio and per-topic
//     proportion are used (topic unseen for the user resolves to 0).
//   - Without personal statistics, the age-bucket fallback supplies the
//     bucket mean ratio and per-topic median proportion. That requires a
//     known age: no history and no age is a hard precondition failure.
func (a *Assembler) Assemble(userID shared.UserID, candidateIDs []shared.PostID) ([]Candidate, []Record, error) {
	user, known := a.users.User(userID)
	if !known {
		user = catalog.UnknownUserAttributes(userID)
	}

	resolved, err := a.resolveStatistics(userID, user.Age)
	if err != nil {
		return nil, nil, err
	}

	candidates := make([]Candidate, 0, len(candidateIDs))
	records := make([]Record, 0, len(candidateIDs))
	for _, postID := range candidateIDs {
		post, ok := a.posts.Post(postID)
		if !ok {
			a.log.Warn("candidate post missing from attribute store, dropped",
				logger.UserID(userID.Int64()), logger.PostID(postID.Int64()))
			continue
		}

		candidates = append(candidates, Candidate{
			PostID: post.PostID,
			Text:   post.Text,
			Topic:  post.Topic,
		})
		records = append(records, Record{
			Gender:                       user.Gender,
			Age:                          user.Age,
			Country:                      user.Country,
			City:                         user.City,
			OS:                           user.OS,
			Source:                       user.Source,
			Topic:                        post.Topic,
			TFIDFMean:                    post.TFIDFMean,
			TFIDFMax:                     post.TFIDFMax,
			TextLength:                   post.TextLength,
			PostLikesToViewsRatio:        post.LikesToViewsRatio,
			UserLikesToViewsRatio:        resolved.ratio,
			UserProportionOfLikesByTopic: resolved.proportion(post.Topic),
		})
	}

	return candidates, records, nil
}

// resolvedStats is the ratio and proportion source chosen for a request:
// either the user's own statistics or the age-bucket fallback.
type resolvedStats struct {
	ratio      float64
	proportion func(shared.Topic) float64
}

func (a *Assembler) resolveStatistics(userID shared.UserID, age shared.Age) (resolvedStats, error) {
	if stat, ok := a.stats.UserStat(userID); ok {
		return resolvedStats{
			ratio:      stat.LikesToViewsRatio,
			proportion: stat.Proportion,
		}, nil
	}

	// Cold start: no interaction history. The age-bucket fallback is
	// undefined without an age.
	if !age.IsKnown() {
		return resolvedStats{}, shared.ErrAgeUnknown
	}

	bucket, err := a.stats.AgeStat(age)
	if err != nil {
		return resolvedStats{}, err
	}
	return resolvedStats{
		ratio:      bucket.MeanLikesToViewsRatio,
		proportion: bucket.Proportion,
	}, nil
}
