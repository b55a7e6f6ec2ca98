// Package jobs contains the recommender's scheduled job implementations.
package jobs

import (
	"context"
	"os"
	"time"

	"github.com/feed-hub/feed-recommender/internal/application/command"
	"github.com/feed-hub/feed-recommender/internal/scoring"
	"github.com/feed-hub/feed-recommender/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// RELOAD MODEL JOB
// ══════════════════════════════════════════════════════════════════════════════

// ReloadModelJob watches the artifact file and reloads it when the
// pipeline has written a newer one. A reload failure keeps the previous
// model serving and retries on the next tick.
type ReloadModelJob struct {
	handler      *command.ReloadModelHandler
	artifactPath string
	variant      scoring.Variant
	log          *logger.Logger

	loadedModTime time.Time
}

// NewReloadModelJob creates the job.
func NewReloadModelJob(handler *command.ReloadModelHandler, artifactPath string, variant scoring.Variant, log *logger.Logger) *ReloadModelJob {
	if log == nil {
		log = logger.Default()
	}
	return &ReloadModelJob{
		handler:      handler,
		artifactPath: artifactPath,
		variant:      variant,
		log:          log.With(logger.Component("reload-job")),
	}
}

// Name implements scheduler.Job.
func (j *ReloadModelJob) Name() string {
	return "reload-model"
}

// Run implements scheduler.Job.
func (j *ReloadModelJob) Run(ctx context.Context) error {
	info, err := os.Stat(j.artifactPath)
	if err != nil {
		return err
	}
	if !info.ModTime().After(j.loadedModTime) {
		j.log.Debug("artifact unchanged, reload skipped")
		return nil
	}

	result, err := j.handler.Handle(ctx, command.ReloadModelCommand{
		ArtifactPath: j.artifactPath,
		Variant:      j.variant,
	})
	if err != nil {
		return err
	}

	j.loadedModTime = info.ModTime()
	j.log.Info("model artifact reloaded",
		logger.ModelVariant(string(result.Variant)),
		logger.Int("user_stats", result.UserStats),
		logger.Int("age_buckets", result.AgeBuckets),
	)
	return nil
}
