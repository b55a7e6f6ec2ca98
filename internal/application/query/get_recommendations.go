// Package query contains read operations following CQRS pattern.
// Queries never modify state - they only read and return data.
// Each query is a self-contained use case with its own request/response types.
package query

import (
	"context"
	"time"

	"github.com/feed-hub/feed-recommender/internal/domain/feature"
	"github.com/feed-hub/feed-recommender/internal/domain/ranking"
	"github.com/feed-hub/feed-recommender/internal/domain/shared"
	"github.com/feed-hub/feed-recommender/internal/scoring"
	"github.com/feed-hub/feed-recommender/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET RECOMMENDATIONS QUERY
// The predict operation: assemble features for the candidate set, score,
// rank, and return the top posts for the user.
// ══════════════════════════════════════════════════════════════════════════════

// GetRecommendationsQuery contains the predict parameters.
type GetRecommendationsQuery struct {
	// UserID identifies the user to recommend for.
	UserID int64

	// CandidatePostIDs is the ordered candidate pool surfaced by the
	// upstream process. Order matters: score ties rank by it.
	CandidatePostIDs []int64

	// Limit is the number of recommendations to return (default 5).
	Limit int
}

// Validate checks the query parameters.
func (q *GetRecommendationsQuery) Validate() error {
	if q.UserID <= 0 {
		return shared.ErrInvalidUserID
	}
	if q.Limit < 0 {
		return shared.ErrInvalidLimit
	}
	if q.Limit == 0 {
		q.Limit = shared.DefaultLimit
	}
	return nil
}

// RecommendedPostDTO is one recommended post in the response payload.
type RecommendedPostDTO struct {
	// ID is the post identifier.
	ID int64 `json:"id"`

	// Text is the raw post text.
	Text string `json:"text"`

	// Topic is the post topic label.
	Topic string `json:"topic"`
}

// GetRecommendationsResult is the predict response.
type GetRecommendationsResult struct {
	// Recommendations, best first.
	Recommendations []RecommendedPostDTO `json:"recommendations"`

	// ModelVariant that produced the ranking.
	ModelVariant string `json:"model_variant"`

	// FromCache is true when the result was served from the cache.
	FromCache bool `json:"from_cache"`
}

// ModelView is the serving-side view of the loaded model: the assembler
// over the current stores and the scorer from the current artifact. The
// reload command swaps the underlying state atomically; a request sees one
// consistent pair for its whole lifetime.
type ModelView interface {
	Assembler() *feature.Assembler
	Scorer() scoring.Scorer
}

// ResultCache caches complete predict results. Implementations must treat
// all errors as misses at the call site: the cache is an optimization and
// never the reason a request fails.
type ResultCache interface {
	Get(ctx context.Context, q GetRecommendationsQuery) ([]RecommendedPostDTO, bool, error)
	Set(ctx context.Context, q GetRecommendationsQuery, recs []RecommendedPostDTO) error
}

// GetRecommendationsHandler handles recommendation queries.
type GetRecommendationsHandler struct {
	model ModelView
	cache ResultCache // nil when caching is disabled
	log   *logger.Logger
}

// NewGetRecommendationsHandler creates the handler. cache may be nil.
func NewGetRecommendationsHandler(model ModelView, cache ResultCache, log *logger.Logger) *GetRecommendationsHandler {
	if log == nil {
		log = logger.Default()
	}
	return &GetRecommendationsHandler{
		model: model,
		cache: cache,
		log:   log.With(logger.Component("recommendations")),
	}
}

// Handle executes the predict pipeline:
// assemble -> score -> rank -> map back to post identity.
//
// An empty candidate set returns an empty result immediately. An unknown
// user is served through the cold-start path. A scorer failure is fatal
// and propagates unchanged; no partial ranking is ever returned.
func (h *GetRecommendationsHandler) Handle(ctx context.Context, q GetRecommendationsQuery) (*GetRecommendationsResult, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	variant := string(h.model.Scorer().Variant())
	result := &GetRecommendationsResult{
		Recommendations: []RecommendedPostDTO{},
		ModelVariant:    variant,
	}
	if len(q.CandidatePostIDs) == 0 {
		return result, nil
	}

	if recs, ok := h.cacheGet(ctx, q); ok {
		result.Recommendations = recs
		result.FromCache = true
		return result, nil
	}

	start := time.Now()

	candidateIDs := make([]shared.PostID, len(q.CandidatePostIDs))
	for i, id := range q.CandidatePostIDs {
		candidateIDs[i] = shared.PostID(id)
	}

	candidates, records, err := h.model.Assembler().Assemble(shared.UserID(q.UserID), candidateIDs)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		// Every candidate was missing from the post store.
		return result, nil
	}

	// A scorer failure propagates unchanged; the whole request fails.
	scores, err := h.model.Scorer().Score(ctx, records)
	if err != nil {
		return nil, err
	}

	ranked, err := ranking.Rank(candidates, scores, q.Limit)
	if err != nil {
		return nil, err
	}

	recs := make([]RecommendedPostDTO, len(ranked))
	for i, r := range ranked {
		recs[i] = RecommendedPostDTO{
			ID:    r.Candidate.PostID.Int64(),
			Text:  r.Candidate.Text,
			Topic: r.Candidate.Topic.String(),
		}
	}
	result.Recommendations = recs

	h.cacheSet(ctx, q, recs)

	h.log.Debug("served recommendations",
		logger.UserID(q.UserID),
		logger.Candidates(len(q.CandidatePostIDs)),
		logger.Scored(len(candidates)),
		logger.ModelVariant(variant),
		logger.Latency(time.Since(start)))

	return result, nil
}

// cacheGet treats every cache error as a miss.
func (h *GetRecommendationsHandler) cacheGet(ctx context.Context, q GetRecommendationsQuery) ([]RecommendedPostDTO, bool) {
	if h.cache == nil {
		return nil, false
	}
	recs, ok, err := h.cache.Get(ctx, q)
	if err != nil {
		h.log.Warn("recommendation cache read failed", logger.Err(err))
		return nil, false
	}
	return recs, ok
}

// cacheSet failures are logged and ignored; the response is already built.
func (h *GetRecommendationsHandler) cacheSet(ctx context.Context, q GetRecommendationsQuery, recs []RecommendedPostDTO) {
	if h.cache == nil {
		return
	}
	if err := h.cache.Set(ctx, q, recs); err != nil {
		h.log.Warn("recommendation cache write failed", logger.Err(err))
	}
}
