package command

import (
	"context"
	"time"

	"github.com/feed-hub/feed-recommender/internal/domain/catalog"
	"github.com/feed-hub/feed-recommender/internal/domain/stats"
	"github.com/feed-hub/feed-recommender/internal/scoring"
	"github.com/feed-hub/feed-recommender/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// REBUILD STATISTICS COMMAND
// Offline: recomputes the fitted statistics from an interaction log
// snapshot and writes a fresh artifact bundle with the existing trained
// scorer parameters. Training itself happens outside this repository; the
// command only re-bundles.
// ══════════════════════════════════════════════════════════════════════════════

// RebuildStatisticsCommand contains the data needed to rebuild.
type RebuildStatisticsCommand struct {
	// Interactions is the interaction log snapshot.
	Interactions []stats.InteractionRecord

	// Scorer holds the trained ensemble to bundle alongside the rebuilt
	// statistics.
	Scorer scoring.Ensemble

	// Variant the bundle is built for.
	Variant scoring.Variant

	// OutputPath is where the bundle is written (atomic replace).
	OutputPath string
}

// Validate validates the command.
func (c RebuildStatisticsCommand) Validate() error {
	if c.OutputPath == "" {
		return scoring.ErrEmptyArtifactPath
	}
	if _, err := scoring.ParseVariant(string(c.Variant)); err != nil {
		return err
	}
	return c.Scorer.Validate()
}

// RebuildStatisticsResult contains the result of a rebuild.
type RebuildStatisticsResult struct {
	// UserStats is the number of users with personal statistics.
	UserStats int

	// AgeBuckets is the number of populated age buckets.
	AgeBuckets int

	// BuiltAt is the bundle timestamp.
	BuiltAt time.Time
}

// RebuildStatisticsHandler handles statistics rebuilds.
type RebuildStatisticsHandler struct {
	users catalog.UserReader
	posts catalog.PostReader
	log   *logger.Logger
}

// NewRebuildStatisticsHandler creates the handler.
func NewRebuildStatisticsHandler(users catalog.UserReader, posts catalog.PostReader, log *logger.Logger) *RebuildStatisticsHandler {
	if log == nil {
		log = logger.Default()
	}
	return &RebuildStatisticsHandler{
		users: users,
		posts: posts,
		log:   log.With(logger.Component("statistics-rebuild")),
	}
}

// Handle builds the statistics store and writes the bundle. An integrity
// violation (no age bucket at or below the clamp floor) fails the build
// here, at build time - never at request time.
func (h *RebuildStatisticsHandler) Handle(_ context.Context, cmd RebuildStatisticsCommand) (*RebuildStatisticsResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	store, err := stats.Build(cmd.Interactions, h.users, h.posts)
	if err != nil {
		return nil, err
	}

	bundle := scoring.Bundle{
		Variant: cmd.Variant,
		BuiltAt: time.Now().UTC(),
		Scorer:  cmd.Scorer,
		Stats:   store.Snapshot(),
	}
	if err := scoring.SaveBundle(cmd.OutputPath, bundle); err != nil {
		return nil, err
	}

	h.log.Info("statistics rebuilt",
		logger.Int("interactions", len(cmd.Interactions)),
		logger.Int("user_stats", store.UserCount()),
		logger.Int("age_buckets", store.BucketCount()),
		logger.ModelVariant(string(cmd.Variant)),
		logger.Latency(time.Since(start)))

	return &RebuildStatisticsResult{
		UserStats:  store.UserCount(),
		AgeBuckets: store.BucketCount(),
		BuiltAt:    bundle.BuiltAt,
	}, nil
}
