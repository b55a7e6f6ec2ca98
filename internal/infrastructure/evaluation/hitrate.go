// Package evaluation measures recommendation quality offline. The only
// metric is hitrate@K: the share of validation users for whom at least one
// of the top-K recommendations was actually liked.
package evaluation

import (
	"context"
	"sync"
	"time"

	"github.com/feed-hub/feed-recommender/internal/application/query"
	"github.com/feed-hub/feed-recommender/internal/domain/catalog"
	"github.com/feed-hub/feed-recommender/internal/domain/shared"
	"github.com/feed-hub/feed-recommender/internal/infrastructure/persistence/tabular"
	"github.com/feed-hub/feed-recommender/pkg/logger"
	"github.com/feed-hub/feed-recommender/pkg/workerpool"
)

// Recommender produces ranked recommendations for one user. Satisfied by
// query.GetRecommendationsHandler.
type Recommender interface {
	Handle(ctx context.Context, q query.GetRecommendationsQuery) (*query.GetRecommendationsResult, error)
}

// Report is the outcome of one evaluation run.
type Report struct {
	// K is the recommendation list depth.
	K int

	// Users is the number of validation users evaluated.
	Users int

	// Skipped is the number of users that failed hard (e.g. unknown user
	// with unknown age) and were excluded from the metric.
	Skipped int

	// Hits is the number of users with at least one liked post in their
	// top-K.
	Hits int

	// HitRate is Hits / Users.
	HitRate float64

	// Elapsed is the wall time of the run.
	Elapsed time.Duration
}

// Evaluator runs hitrate@K over a validation set.
type Evaluator struct {
	recommender Recommender
	posts       catalog.PostReader
	pool        *workerpool.Pool
	log         *logger.Logger
}

// NewEvaluator creates an Evaluator. pool may be nil to evaluate users
// sequentially.
func NewEvaluator(recommender Recommender, posts catalog.PostReader, pool *workerpool.Pool, log *logger.Logger) *Evaluator {
	if log == nil {
		log = logger.Default()
	}
	return &Evaluator{
		recommender: recommender,
		posts:       posts,
		pool:        pool,
		log:         log.With(logger.Component("evaluation")),
	}
}

// Run evaluates hitrate@k over the validation rows. Every user is offered
// the full post catalog as candidates, mirroring what the serving path
// sees from the feed.
func (e *Evaluator) Run(ctx context.Context, rows []tabular.ValidationRow, k int) (*Report, error) {
	if k <= 0 {
		k = shared.DefaultLimit
	}
	start := time.Now()

	candidates := e.candidateIDs()
	report := &Report{K: k}

	var mu sync.Mutex
	evalOne := func(ctx context.Context, row tabular.ValidationRow) error {
		hit, skipped := e.evaluateUser(ctx, row, candidates, k)

		mu.Lock()
		defer mu.Unlock()
		if skipped {
			report.Skipped++
			return nil
		}
		report.Users++
		if hit {
			report.Hits++
		}
		return nil
	}

	if e.pool == nil {
		for _, row := range rows {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if err := evalOne(ctx, row); err != nil {
				return nil, err
			}
		}
	} else {
		tasks := make([]workerpool.Task, len(rows))
		for i, row := range rows {
			row := row
			tasks[i] = func(ctx context.Context) error {
				return evalOne(ctx, row)
			}
		}
		if err := e.pool.RunAll(ctx, tasks); err != nil {
			return nil, err
		}
	}

	if report.Users > 0 {
		report.HitRate = float64(report.Hits) / float64(report.Users)
	}
	report.Elapsed = time.Since(start)

	e.log.Info("evaluation finished",
		logger.Int("k", report.K),
		logger.Int("users", report.Users),
		logger.Int("skipped", report.Skipped),
		logger.Int("hits", report.Hits),
		logger.Float64("hitrate", report.HitRate),
		logger.Latency(report.Elapsed),
	)
	return report, nil
}

// evaluateUser returns (hit, skipped) for one validation user.
func (e *Evaluator) evaluateUser(ctx context.Context, row tabular.ValidationRow, candidates []int64, k int) (bool, bool) {
	result, err := e.recommender.Handle(ctx, query.GetRecommendationsQuery{
		UserID:           row.UserID.Int64(),
		CandidatePostIDs: candidates,
		Limit:            k,
	})
	if err != nil {
		e.log.Warn("validation user skipped",
			logger.UserID(row.UserID.Int64()), logger.Err(err))
		return false, true
	}

	liked := make(map[int64]struct{}, len(row.LikedPosts))
	for _, id := range row.LikedPosts {
		liked[id.Int64()] = struct{}{}
	}
	for _, rec := range result.Recommendations {
		if _, ok := liked[rec.ID]; ok {
			return true, false
		}
	}
	return false, false
}

func (e *Evaluator) candidateIDs() []int64 {
	ids := e.posts.PostIDs()
	out := make([]int64, len(ids))
	for i, id := range ids {
		out[i] = id.Int64()
	}
	return out
}
