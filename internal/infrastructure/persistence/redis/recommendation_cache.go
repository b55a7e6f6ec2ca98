package redis

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strconv"
	"time"

	"github.com/feed-hub/feed-recommender/internal/application/query"
	"github.com/feed-hub/feed-recommender/pkg/circuitbreaker"
	"github.com/feed-hub/feed-recommender/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECOMMENDATION CACHE
// ══════════════════════════════════════════════════════════════════════════════

// RecommendationCache implements query.ResultCache on Redis. Lookups go
// through a circuit breaker so a struggling Redis degrades the service to
// cache-miss latency instead of adding a timeout to every request.
type RecommendationCache struct {
	cache   *Cache
	breaker *circuitbreaker.CircuitBreaker
	log     *logger.Logger
}

// NewRecommendationCache creates a new RecommendationCache.
func NewRecommendationCache(cache *Cache, log *logger.Logger) *RecommendationCache {
	log = log.With(logger.Component("recommendation-cache"))
	breaker := circuitbreaker.CacheBreaker(func(name string, from, to circuitbreaker.State) {
		log.Warn("cache breaker state changed",
			logger.String("breaker", name),
			logger.String("from", from.String()),
			logger.String("to", to.String()),
		)
	})
	return &RecommendationCache{
		cache:   cache,
		breaker: breaker,
		log:     log,
	}
}

// Get retrieves a cached recommendation list for the query shape. A miss
// is a normal outcome and must not count against the breaker.
func (c *RecommendationCache) Get(ctx context.Context, q query.GetRecommendationsQuery) ([]query.RecommendedPostDTO, bool, error) {
	key := recommendationKey(q)

	var (
		recs  []query.RecommendedPostDTO
		found bool
	)
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		if err := c.cache.Get(ctx, key, &recs); err != nil {
			if errors.Is(err, ErrCacheMiss) {
				return nil
			}
			return err
		}
		found = true
		return nil
	})
	if err != nil || !found {
		return nil, false, err
	}
	return recs, true, nil
}

// Set stores a recommendation list for the query shape.
func (c *RecommendationCache) Set(ctx context.Context, q query.GetRecommendationsQuery, recs []query.RecommendedPostDTO) error {
	key := recommendationKey(q)
	return c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.cache.Set(ctx, key, recs, TTLRecommendations)
	})
}

// InvalidateAll drops every cached recommendation list. Called after a
// model reload so stale rankings never outlive the artifact that produced
// them.
func (c *RecommendationCache) InvalidateAll(ctx context.Context) error {
	err := c.cache.DeleteByPattern(ctx, PrefixRecommendations+"*")
	if err != nil {
		c.log.Warn("failed to invalidate recommendation cache", logger.Err(err))
		return err
	}
	c.log.Info("recommendation cache invalidated")
	return nil
}

// PublishModelMeta records which model generation this instance serves,
// keyed by variant, so operators can inspect the fleet from Redis.
func (c *RecommendationCache) PublishModelMeta(ctx context.Context, variant string, loadedAt time.Time) error {
	meta := map[string]interface{}{
		"variant":   variant,
		"loaded_at": loadedAt.UTC(),
	}
	return c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.cache.Set(ctx, ModelMetaKey(variant), meta, TTLModelMeta)
	})
}

// recommendationKey builds the cache key for one query shape. The
// candidate set participates via a hash: same user, same candidates, same
// limit means the same ranking.
func recommendationKey(q query.GetRecommendationsQuery) string {
	h := fnv.New64a()
	for _, id := range q.CandidatePostIDs {
		fmt.Fprintf(h, "%d,", id)
	}
	return PrefixRecommendations +
		strconv.FormatInt(q.UserID, 10) + ":" +
		strconv.Itoa(q.Limit) + ":" +
		strconv.FormatUint(h.Sum64(), 16)
}
