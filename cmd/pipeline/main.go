// Command pipeline runs the offline stage: it extracts the raw tables
// from PostgreSQL, engineers the post features, rebuilds the statistics
// store, writes the model bundle, and reports hitrate@K on the held-out
// validation users.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/feed-hub/feed-recommender/config"
	"github.com/feed-hub/feed-recommender/internal/application/command"
	"github.com/feed-hub/feed-recommender/internal/application/query"
	"github.com/feed-hub/feed-recommender/internal/domain/catalog"
	"github.com/feed-hub/feed-recommender/internal/domain/stats"
	"github.com/feed-hub/feed-recommender/internal/infrastructure/evaluation"
	"github.com/feed-hub/feed-recommender/internal/infrastructure/persistence/postgres"
	"github.com/feed-hub/feed-recommender/internal/infrastructure/persistence/redis"
	"github.com/feed-hub/feed-recommender/internal/infrastructure/persistence/tabular"
	"github.com/feed-hub/feed-recommender/internal/infrastructure/pipeline"
	"github.com/feed-hub/feed-recommender/internal/scoring"
	"github.com/feed-hub/feed-recommender/pkg/logger"
	"github.com/feed-hub/feed-recommender/pkg/workerpool"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ══════════════════════════════════════════════════════════════════
	// 1. Configuration and logging
	// ══════════════════════════════════════════════════════════════════
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required for the pipeline")
	}

	log := logger.New(logger.Options{
		Output:    os.Stdout,
		Level:     logger.ParseLevel(cfg.Observability.LogLevel),
		AddCaller: cfg.App.Debug,
	})
	log.Info("pipeline starting",
		logger.String("output_dir", cfg.Pipeline.OutputDir),
		logger.ModelVariant(cfg.Model.Variant))

	variant, err := scoring.ParseVariant(cfg.Model.Variant)
	if err != nil {
		return err
	}

	pool := workerpool.New(cfg.Model.ScoringWorkers)
	defer pool.Close()

	// ══════════════════════════════════════════════════════════════════
	// 2. Run lock
	// ══════════════════════════════════════════════════════════════════
	// Two pipeline runs racing on the same artifact path would interleave
	// their table writes, so a Redis lock serializes them. Without Redis
	// the operator is on their own.
	if !cfg.Redis.Disabled {
		cache, err := redis.NewCache(redis.Config{
			Host:         cfg.Redis.Host,
			Port:         cfg.Redis.Port,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})
		if err != nil {
			log.Warn("redis unavailable, running without the pipeline lock", logger.Err(err))
		} else {
			defer cache.Close()
			acquired, err := cache.AcquireLock(ctx, "pipeline", redis.TTLPipelineLock)
			if err != nil {
				return fmt.Errorf("acquire pipeline lock: %w", err)
			}
			if !acquired {
				remaining, terr := cache.TTL(ctx, redis.LockKey("pipeline"))
				if terr == nil && remaining > 0 {
					return fmt.Errorf("another pipeline run holds the lock (expires in %s)", remaining.Round(time.Second))
				}
				return fmt.Errorf("another pipeline run holds the lock")
			}
			defer func() {
				if err := cache.ReleaseLock(context.Background(), "pipeline"); err != nil {
					log.Warn("pipeline lock not released", logger.Err(err))
				}
			}()
		}
	}

	// ══════════════════════════════════════════════════════════════════
	// 3. Extraction
	// ══════════════════════════════════════════════════════════════════
	conn, err := postgres.NewConnectionFromURL(ctx, cfg.Database.URL, postgres.PoolLimits{
		MaxConns:    int32(cfg.Database.MaxOpenConns),
		MinConns:    int32(cfg.Database.MaxIdleConns),
		MaxLifetime: cfg.Database.ConnMaxLifetime,
		MaxIdleTime: cfg.Database.ConnMaxIdleTime,
	})
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer conn.Close()

	if health, err := conn.Health(ctx); err == nil && health.Healthy {
		log.Info("database connected",
			logger.Duration("ping", health.PingLatency),
			logger.Int("max_conns", int(health.MaxConns)))
	}

	repo := postgres.NewExtractionRepository(conn, log).
		WithChunkSize(cfg.Pipeline.ExtractionChunkSize).
		WithQueryTimeout(cfg.Database.QueryTimeout)

	// All four tables are read inside one repeatable-read transaction so
	// the statistics and the validation set describe the same moment.
	var (
		userRows     []catalog.UserAttributes
		postRows     []catalog.PostAttributes
		interactions []stats.InteractionRecord
		validation   []tabular.ValidationRow
	)
	err = repo.Snapshot(ctx, func(r *postgres.ExtractionRepository) error {
		latest, err := r.LatestInteractionAt(ctx)
		if err != nil {
			return err
		}
		log.Info("snapshot taken", logger.Time("latest_interaction", latest))

		if userRows, err = r.Users(ctx); err != nil {
			return fmt.Errorf("extract users: %w", err)
		}
		if postRows, err = r.Posts(ctx); err != nil {
			return fmt.Errorf("extract posts: %w", err)
		}
		if interactions, err = r.Interactions(ctx, cfg.Pipeline.MaxInteractionRows); err != nil {
			return fmt.Errorf("extract interactions: %w", err)
		}
		if validation, err = r.Validation(ctx, cfg.Pipeline.ValidationUsers); err != nil {
			return fmt.Errorf("extract validation set: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	log.Info("extraction finished",
		logger.Int("users", len(userRows)),
		logger.Int("posts", len(postRows)),
		logger.Int("interactions", len(interactions)),
		logger.Int("validation_users", len(validation)))

	// ══════════════════════════════════════════════════════════════════
	// 4. Feature engineering
	// ══════════════════════════════════════════════════════════════════
	builder := pipeline.NewFeatureBuilder(pool, log)
	postRows, err = builder.BuildPostFeatures(ctx, postRows, interactions)
	if err != nil {
		return fmt.Errorf("build post features: %w", err)
	}

	// ══════════════════════════════════════════════════════════════════
	// 5. Table snapshots
	// ══════════════════════════════════════════════════════════════════
	if err := os.MkdirAll(cfg.Pipeline.OutputDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	outputs := []struct {
		name  string
		write func(string) error
	}{
		{"user_data.csv", func(p string) error { return tabular.WriteUsers(p, userRows) }},
		{"post_data.csv", func(p string) error { return tabular.WritePosts(p, postRows) }},
		{"interactions.csv", func(p string) error { return tabular.WriteInteractions(p, interactions) }},
		{"validation.csv", func(p string) error { return tabular.WriteValidation(p, validation) }},
	}
	for _, o := range outputs {
		path := filepath.Join(cfg.Pipeline.OutputDir, o.name)
		if err := o.write(path); err != nil {
			return fmt.Errorf("write %s: %w", o.name, err)
		}
	}
	log.Info("table snapshots written", logger.String("dir", cfg.Pipeline.OutputDir))

	// ══════════════════════════════════════════════════════════════════
	// 6. Statistics rebuild and bundle
	// ══════════════════════════════════════════════════════════════════
	ensemble, err := scoring.LoadEnsemble(cfg.Pipeline.ScorerParamsPath)
	if err != nil {
		return fmt.Errorf("load scorer parameters: %w", err)
	}

	users, err := catalog.NewUserStore(userRows)
	if err != nil {
		return fmt.Errorf("build user store: %w", err)
	}
	posts, err := catalog.NewPostStore(postRows)
	if err != nil {
		return fmt.Errorf("build post store: %w", err)
	}

	rebuild := command.NewRebuildStatisticsHandler(users, posts, log)
	result, err := rebuild.Handle(ctx, command.RebuildStatisticsCommand{
		Interactions: interactions,
		Scorer:       ensemble,
		Variant:      variant,
		OutputPath:   cfg.Model.ArtifactPath,
	})
	if err != nil {
		return fmt.Errorf("rebuild statistics: %w", err)
	}
	log.Info("bundle written",
		logger.String("path", cfg.Model.ArtifactPath),
		logger.Int("user_stats", result.UserStats),
		logger.Int("age_buckets", result.AgeBuckets))

	// ══════════════════════════════════════════════════════════════════
	// 7. Offline evaluation
	// ══════════════════════════════════════════════════════════════════
	if len(validation) == 0 {
		log.Warn("validation set is empty, skipping evaluation")
		return nil
	}

	handle := command.NewModelHandle()
	reload := command.NewReloadModelHandler(handle, users, posts, pool, nil, log)
	if _, err := reload.Handle(ctx, command.ReloadModelCommand{
		ArtifactPath: cfg.Model.ArtifactPath,
		Variant:      variant,
	}); err != nil {
		return fmt.Errorf("load bundle for evaluation: %w", err)
	}

	recommender := query.NewGetRecommendationsHandler(handle, nil, log)
	evaluator := evaluation.NewEvaluator(recommender, posts, pool, log)
	report, err := evaluator.Run(ctx, validation, cfg.Pipeline.HitrateK)
	if err != nil {
		return fmt.Errorf("evaluate: %w", err)
	}

	log.Info("evaluation finished",
		logger.Int("k", report.K),
		logger.Int("users", report.Users),
		logger.Int("skipped", report.Skipped),
		logger.Int("hits", report.Hits),
		logger.Float64("hitrate", report.HitRate),
		logger.Duration("elapsed", report.Elapsed))
	return nil
}
