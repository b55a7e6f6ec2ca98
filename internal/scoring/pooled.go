package scoring

import (
	"context"

	"github.com/feed-hub/feed-recommender/internal/domain/feature"
	"github.com/feed-hub/feed-recommender/internal/domain/shared"
	"github.com/feed-hub/feed-recommender/pkg/workerpool"
)

// ═══════════════════════════════════════════════════════════════════════════
// POOLED SCORER
// ═══════════════════════════════════════════════════════════════════════════

// minChunk keeps tiny requests on a single worker; splitting a handful of
// records across goroutines costs more than it saves.
const minChunk = 64

// PooledScorer decorates a Scorer so that one request's CPU-bound scoring
// runs on a bounded worker pool instead of hogging the request goroutine.
// Chunks write to disjoint slices of the output, so no locking is needed.
type PooledScorer struct {
	inner Scorer
	pool  *workerpool.Pool
}

// NewPooledScorer wraps the scorer with the given pool.
func NewPooledScorer(inner Scorer, pool *workerpool.Pool) *PooledScorer {
	return &PooledScorer{inner: inner, pool: pool}
}

// Variant names the model generation of the wrapped scorer.
func (s *PooledScorer) Variant() Variant {
	return s.inner.Variant()
}

// Score splits the records into per-worker chunks and scores them in
// parallel. Output order matches input order; a failure in any chunk fails
// the whole request.
func (s *PooledScorer) Score(ctx context.Context, records []feature.Record) ([]shared.Score, error) {
	if len(records) <= minChunk || s.pool.Size() <= 1 {
		return s.inner.Score(ctx, records)
	}

	chunkSize := (len(records) + s.pool.Size() - 1) / s.pool.Size()
	if chunkSize < minChunk {
		chunkSize = minChunk
	}

	out := make([]shared.Score, len(records))
	var tasks []workerpool.Task
	for start := 0; start < len(records); start += chunkSize {
		start := start
		end := start + chunkSize
		if end > len(records) {
			end = len(records)
		}
		tasks = append(tasks, func(ctx context.Context) error {
			scores, err := s.inner.Score(ctx, records[start:end])
			if err != nil {
				return err
			}
			copy(out[start:end], scores)
			return nil
		})
	}

	if err := s.pool.RunAll(ctx, tasks); err != nil {
		return nil, err
	}
	return out, nil
}
