// Package command contains write operations (CQRS - Commands).
// Commands change the state of the system: loading or swapping the model
// bundle, and rebuilding the fitted statistics offline.
package command

import (
	"context"
	"sync"
	"time"

	"github.com/feed-hub/feed-recommender/internal/domain/catalog"
	"github.com/feed-hub/feed-recommender/internal/domain/feature"
	"github.com/feed-hub/feed-recommender/internal/scoring"
	"github.com/feed-hub/feed-recommender/pkg/logger"
	"github.com/feed-hub/feed-recommender/pkg/workerpool"
)

// ══════════════════════════════════════════════════════════════════════════════
// MODEL HANDLE
// The model is constructed explicitly at startup and swapped explicitly on
// reload - never loaded as a module-level side effect. A request reads one
// consistent (assembler, scorer) pair for its whole lifetime.
// ══════════════════════════════════════════════════════════════════════════════

// modelState is one loaded generation of the model.
type modelState struct {
	assembler *feature.Assembler
	scorer    scoring.Scorer
	loadedAt  time.Time
}

// ModelHandle holds the currently loaded model. Reads are lock-cheap;
// the only writer is the reload command.
type ModelHandle struct {
	mu    sync.RWMutex
	state *modelState
}

// NewModelHandle creates an empty handle. It must be loaded through
// ReloadModelHandler before serving.
func NewModelHandle() *ModelHandle {
	return &ModelHandle{}
}

// Assembler returns the current feature assembler.
func (h *ModelHandle) Assembler() *feature.Assembler {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state.assembler
}

// Scorer returns the current scorer.
func (h *ModelHandle) Scorer() scoring.Scorer {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state.scorer
}

// LoadedAt returns when the current model was loaded (zero before the
// first load).
func (h *ModelHandle) LoadedAt() time.Time {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.state == nil {
		return time.Time{}
	}
	return h.state.loadedAt
}

// IsLoaded reports whether a model has been loaded.
func (h *ModelHandle) IsLoaded() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state != nil
}

// swap atomically replaces the model state.
func (h *ModelHandle) swap(state *modelState) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.state = state
}

// ══════════════════════════════════════════════════════════════════════════════
// RELOAD MODEL COMMAND
// Loads the configured artifact and swaps it into the handle. Used for the
// initial load at startup and for periodic/required refreshes afterwards.
// ══════════════════════════════════════════════════════════════════════════════

// ReloadModelCommand contains the data needed to (re)load the model.
type ReloadModelCommand struct {
	// ArtifactPath is the bundle to load.
	ArtifactPath string

	// Variant is the configured model generation. Loading fails when the
	// artifact was built for a different variant.
	Variant scoring.Variant
}

// Validate validates the command.
func (c ReloadModelCommand) Validate() error {
	if c.ArtifactPath == "" {
		return scoring.ErrEmptyArtifactPath
	}
	_, err := scoring.ParseVariant(string(c.Variant))
	return err
}

// ReloadModelResult contains the result of a reload.
type ReloadModelResult struct {
	// Variant that was loaded.
	Variant scoring.Variant

	// UserStats is the number of users with personal statistics.
	UserStats int

	// AgeBuckets is the number of populated age buckets.
	AgeBuckets int

	// LoadedAt is when the swap happened.
	LoadedAt time.Time
}

// CacheInvalidator drops cached predict results after a model swap so
// stale rankings never outlive the artifact that produced them.
type CacheInvalidator interface {
	InvalidateAll(ctx context.Context) error
}

// MetaPublisher is implemented by invalidators that can additionally
// record which model generation this instance serves. Publishing is best
// effort; a failure never blocks the swap.
type MetaPublisher interface {
	PublishModelMeta(ctx context.Context, variant string, loadedAt time.Time) error
}

// ReloadModelHandler handles model reloads.
type ReloadModelHandler struct {
	handle      *ModelHandle
	users       catalog.UserReader
	posts       catalog.PostReader
	pool        *workerpool.Pool
	invalidator CacheInvalidator // nil when caching is disabled
	log         *logger.Logger
}

// NewReloadModelHandler creates the handler. pool may be nil to score
// without the worker-pool decorator (tests, offline evaluation);
// invalidator may be nil when no result cache is configured.
func NewReloadModelHandler(handle *ModelHandle, users catalog.UserReader, posts catalog.PostReader, pool *workerpool.Pool, invalidator CacheInvalidator, log *logger.Logger) *ReloadModelHandler {
	if log == nil {
		log = logger.Default()
	}
	return &ReloadModelHandler{
		handle:      handle,
		users:       users,
		posts:       posts,
		pool:        pool,
		invalidator: invalidator,
		log:         log.With(logger.Component("model-reload")),
	}
}

// Handle loads the artifact, rebuilds the assembler over its statistics,
// and swaps both into the handle. A failed load leaves the previous model
// serving untouched.
func (h *ReloadModelHandler) Handle(ctx context.Context, cmd ReloadModelCommand) (*ReloadModelResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	scorer, statsStore, err := scoring.LoadBundle(cmd.ArtifactPath, cmd.Variant)
	if err != nil {
		h.log.Error("model reload failed, previous model kept",
			logger.ModelVariant(string(cmd.Variant)), logger.Err(err))
		return nil, err
	}

	var s scoring.Scorer = scorer
	if h.pool != nil {
		s = scoring.NewPooledScorer(scorer, h.pool)
	}

	state := &modelState{
		assembler: feature.NewAssembler(h.users, h.posts, statsStore, h.log),
		scorer:    s,
		loadedAt:  time.Now().UTC(),
	}
	h.handle.swap(state)

	if h.invalidator != nil {
		if err := h.invalidator.InvalidateAll(ctx); err != nil {
			h.log.Warn("cached results not invalidated after reload", logger.Err(err))
		}
		if p, ok := h.invalidator.(MetaPublisher); ok {
			if err := p.PublishModelMeta(ctx, string(cmd.Variant), state.loadedAt); err != nil {
				h.log.Warn("model metadata not published", logger.Err(err))
			}
		}
	}

	result := &ReloadModelResult{
		Variant:    cmd.Variant,
		UserStats:  statsStore.UserCount(),
		AgeBuckets: statsStore.BucketCount(),
		LoadedAt:   state.loadedAt,
	}

	h.log.Info("model loaded",
		logger.ModelVariant(string(cmd.Variant)),
		logger.Int("user_stats", result.UserStats),
		logger.Int("age_buckets", result.AgeBuckets))

	return result, nil
}
