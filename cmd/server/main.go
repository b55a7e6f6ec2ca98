// Command server runs the recommendation service: it loads the user and
// post tables, loads the model bundle, and serves ranked posts over HTTP
// until it receives SIGINT or SIGTERM.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/feed-hub/feed-recommender/config"
	"github.com/feed-hub/feed-recommender/internal/application/command"
	"github.com/feed-hub/feed-recommender/internal/application/query"
	"github.com/feed-hub/feed-recommender/internal/domain/catalog"
	"github.com/feed-hub/feed-recommender/internal/infrastructure/persistence/redis"
	"github.com/feed-hub/feed-recommender/internal/infrastructure/persistence/tabular"
	"github.com/feed-hub/feed-recommender/internal/infrastructure/scheduler"
	"github.com/feed-hub/feed-recommender/internal/infrastructure/scheduler/jobs"
	httpiface "github.com/feed-hub/feed-recommender/internal/interface/http"
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
	// 1. Configuration
	// ══════════════════════════════════════════════════════════════════
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// ══════════════════════════════════════════════════════════════════
	// 2. Logging
	// ══════════════════════════════════════════════════════════════════
	log := logger.New(logger.Options{
		Output:    os.Stdout,
		Level:     logger.ParseLevel(cfg.Observability.LogLevel),
		AddCaller: cfg.App.Debug,
	})
	log.Info("starting",
		logger.String("app", cfg.App.Name),
		logger.String("version", cfg.App.Version),
		logger.String("environment", string(cfg.App.Environment)),
		logger.Bool("debug", cfg.App.Debug),
		logger.ModelVariant(cfg.Model.Variant))

	// ══════════════════════════════════════════════════════════════════
	// 3. Attribute tables
	// ══════════════════════════════════════════════════════════════════
	userRows, err := tabular.ReadUsers(cfg.Data.UserTablePath)
	if err != nil {
		return fmt.Errorf("read user table: %w", err)
	}
	postRows, err := tabular.ReadPosts(cfg.Data.PostTablePath)
	if err != nil {
		return fmt.Errorf("read post table: %w", err)
	}
	users, err := catalog.NewUserStore(userRows)
	if err != nil {
		return fmt.Errorf("build user store: %w", err)
	}
	posts, err := catalog.NewPostStore(postRows)
	if err != nil {
		return fmt.Errorf("build post store: %w", err)
	}
	log.Info("attribute tables loaded",
		logger.Int("users", users.Len()),
		logger.Int("posts", posts.Len()))

	// ══════════════════════════════════════════════════════════════════
	// 4. Scoring worker pool
	// ══════════════════════════════════════════════════════════════════
	var pool *workerpool.Pool
	if cfg.Features.IsEnabled(config.FeatureParallelScoring) {
		pool = workerpool.New(cfg.Model.ScoringWorkers)
		defer pool.Close()
		log.Info("scoring worker pool started", logger.Int("workers", pool.Size()))
	} else {
		log.Info("parallel scoring disabled, scoring sequentially")
	}

	// ══════════════════════════════════════════════════════════════════
	// 5. Result cache (optional)
	// ══════════════════════════════════════════════════════════════════
	var (
		resultCache *redis.RecommendationCache
		invalidator command.CacheInvalidator
	)
	if !cfg.Redis.Disabled && cfg.Features.IsEnabled(config.FeatureResultCache) {
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
			// The cache is an optimization; serve without it.
			log.Warn("redis unavailable, serving without result cache", logger.Err(err))
		} else {
			defer cache.Close()
			resultCache = redis.NewRecommendationCache(cache, log)
			invalidator = resultCache
			log.Info("result cache connected", logger.String("addr", cfg.Redis.Addr()))
		}
	} else {
		log.Info("result cache disabled")
	}

	// ══════════════════════════════════════════════════════════════════
	// 6. Model
	// ══════════════════════════════════════════════════════════════════
	variant, err := scoring.ParseVariant(cfg.Model.Variant)
	if err != nil {
		return err
	}

	handle := command.NewModelHandle()
	reloadHandler := command.NewReloadModelHandler(handle, users, posts, pool, invalidator, log)
	if _, err := reloadHandler.Handle(ctx, command.ReloadModelCommand{
		ArtifactPath: cfg.Model.ArtifactPath,
		Variant:      variant,
	}); err != nil {
		return fmt.Errorf("initial model load: %w", err)
	}

	// ══════════════════════════════════════════════════════════════════
	// 7. Query layer
	// ══════════════════════════════════════════════════════════════════
	var cacheView query.ResultCache
	if resultCache != nil {
		// FEATURE_SERVING_RESULT_CACHE_ROLLOUT ramps the cache per user;
		// users outside the rollout bucket always score fresh.
		cacheView = rolloutGatedCache{cache: resultCache, flags: cfg.Features}
	}
	getRecommendations := query.NewGetRecommendationsHandler(handle, cacheView, log)

	// ══════════════════════════════════════════════════════════════════
	// 8. Background jobs
	// ══════════════════════════════════════════════════════════════════
	if cfg.Model.ReloadInterval > 0 && cfg.Features.IsEnabled(config.FeatureModelAutoReload) {
		sched := scheduler.New(log)
		job := jobs.NewReloadModelJob(reloadHandler, cfg.Model.ArtifactPath, variant, log)
		if err := sched.Register(job, scheduler.Every(cfg.Model.ReloadInterval)); err != nil {
			return fmt.Errorf("register reload job: %w", err)
		}
		if err := sched.Start(ctx); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
		defer sched.Stop()
		for _, info := range sched.ListJobs() {
			log.Info("job scheduled",
				logger.String("job", info.Name),
				logger.String("schedule", info.Schedule),
				logger.Time("next_run", info.NextRun))
		}
	}

	// ══════════════════════════════════════════════════════════════════
	// 9. HTTP server
	// ══════════════════════════════════════════════════════════════════
	serverCfg := httpiface.DefaultConfig()
	serverCfg.Host = cfg.HTTP.Host
	serverCfg.Port = cfg.HTTP.Port
	serverCfg.ReadTimeout = cfg.HTTP.ReadTimeout
	serverCfg.WriteTimeout = cfg.HTTP.WriteTimeout
	serverCfg.IdleTimeout = cfg.HTTP.IdleTimeout
	serverCfg.RateLimitPerMinute = cfg.HTTP.RateLimitPerMinute
	serverCfg.MaxCandidates = cfg.HTTP.MaxCandidates

	server := httpiface.NewServer(serverCfg, httpiface.Dependencies{
		GetRecommendations: getRecommendations,
		Model:              handle,
		ReloadModel:        reloadHandler,
		Posts:              posts,
		Logger:             log,
	})

	errCh := server.StartAsync()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
		log.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	log.Info("stopped")
	return nil
}

// rolloutGatedCache serves cached results only for users inside the
// result-cache rollout bucket. Everyone else scores fresh on every
// request, which is how a cache ramp is validated against live traffic.
type rolloutGatedCache struct {
	cache *redis.RecommendationCache
	flags *config.FeatureFlags
}

func (g rolloutGatedCache) Get(ctx context.Context, q query.GetRecommendationsQuery) ([]query.RecommendedPostDTO, bool, error) {
	if !g.flags.IsEnabledFor(config.FeatureResultCache, q.UserID) {
		return nil, false, nil
	}
	return g.cache.Get(ctx, q)
}

func (g rolloutGatedCache) Set(ctx context.Context, q query.GetRecommendationsQuery, recs []query.RecommendedPostDTO) error {
	if !g.flags.IsEnabledFor(config.FeatureResultCache, q.UserID) {
		return nil
	}
	return g.cache.Set(ctx, q, recs)
}
