// Package main wires together the serialhub catalog daemon.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/calyptra/serialhub/internal/activity"
	"github.com/calyptra/serialhub/internal/api"
	"github.com/calyptra/serialhub/internal/chaptersync"
	"github.com/calyptra/serialhub/internal/clock/system"
	"github.com/calyptra/serialhub/internal/config"
	"github.com/calyptra/serialhub/internal/dispatcher"
	"github.com/calyptra/serialhub/internal/id/uuid"
	"github.com/calyptra/serialhub/internal/logging"
	"github.com/calyptra/serialhub/internal/metrics"
	"github.com/calyptra/serialhub/internal/provider/anilist"
	providercache "github.com/calyptra/serialhub/internal/provider/cache"
	"github.com/calyptra/serialhub/internal/queue"
	queuePostgres "github.com/calyptra/serialhub/internal/queue/postgres"
	"github.com/calyptra/serialhub/internal/resolver"
	"github.com/calyptra/serialhub/internal/scheduler"
	collyscraper "github.com/calyptra/serialhub/internal/scraper/colly"
	"github.com/calyptra/serialhub/internal/scraper/ratelimit"
	"github.com/calyptra/serialhub/internal/storage/postgres"
	"github.com/calyptra/serialhub/internal/worker"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()
	zap.ReplaceGlobals(logger)

	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := postgres.NewPool(ctx, postgres.PoolConfig{
		DSN:             cfg.DB.DSN,
		MaxConns:        cfg.DB.MaxConns,
		MinConns:        cfg.DB.MinConns,
		MaxConnLifetime: cfg.DB.ConnLifetime(),
	})
	if err != nil {
		logger.Fatal("database pool init failed", zap.Error(err))
	}
	defer pool.Close()

	clock := system.New()
	idGen := uuid.New()

	seriesStore := postgres.NewSeriesStore(pool)
	chapterStore := postgres.NewChapterStore(pool, idGen, clock)
	activityStore := postgres.NewActivityStore(pool, idGen)
	libraryStore := postgres.NewLibraryStore(pool, idGen, clock)

	provider := providercache.New(
		anilist.NewClient(anilist.Config{
			BaseURL: cfg.Provider.BaseURL,
			Timeout: time.Duration(cfg.Provider.TimeoutSeconds) * time.Second,
		}, logger.Named("provider")),
		clock,
		time.Duration(cfg.Provider.CacheTTLMinutes)*time.Minute,
		cfg.Provider.CacheMaxEntries,
	)

	entryResolver := resolver.New(libraryStore, provider, clock, resolver.Config{
		SchemaVersion: cfg.Resolver.SchemaVersion,
	}, logger.Named("resolver"))

	jobQueue := queuePostgres.NewQueue(pool, clock, queue.RetryPolicy{
		MaxAttempts: cfg.Queue.MaxAttempts,
		BaseDelay:   time.Duration(cfg.Queue.BackoffBaseSec) * time.Second,
		MaxDelay:    time.Duration(cfg.Queue.BackoffMaxSec) * time.Second,
	})

	var workers []*worker.Worker
	for i := 0; i < cfg.Queue.Workers; i++ {
		workers = append(workers, worker.New(
			jobQueue,
			entryResolver,
			worker.Config{PollInterval: cfg.Queue.PollInterval()},
			logger.Named("worker").With(zap.Int("index", i)),
		))
	}
	dispatch := dispatcher.New(jobQueue, workers, logger.Named("dispatcher"))

	engine := activity.NewEngine(seriesStore, activityStore, clock, logger.Named("activity"))
	impressions := activity.NewImpressionBuffer(
		engine,
		clock,
		time.Duration(cfg.Activity.ImpressionFlushSec)*time.Second,
		logger.Named("impressions"),
	)

	sched := scheduler.New(libraryStore, jobQueue, engine, clock, scheduler.Config{
		RecoveryInterval: time.Duration(cfg.Scheduler.RecoveryIntervalMin) * time.Minute,
		DemotionInterval: time.Duration(cfg.Scheduler.DemotionIntervalMin) * time.Minute,
		BatchSize:        cfg.Scheduler.BatchSize,
	}, logger.Named("scheduler"))

	apiServer := api.NewServer(seriesStore, jobQueue, logger.Named("api"))
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Info("dispatcher started", zap.Int("workers", len(workers)))
		dispatch.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		impressions.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		sched.Run(ctx)
	}()

	if len(cfg.Scraper.Targets) > 0 {
		scraper := collyscraper.New(scraperConfig(cfg.Scraper))
		limiter := ratelimit.New(ratelimit.Config{
			DefaultRPS:   cfg.Scraper.RPS,
			DefaultBurst: cfg.Scraper.Burst,
		})
		synchronizer := chaptersync.NewSynchronizer(
			chapterStore, seriesStore, engine, clock, logger.Named("chaptersync"),
		)
		wg.Add(1)
		go func() {
			defer wg.Done()
			runChapterSync(ctx, scraper, limiter, synchronizer, cfg.Scraper, logger.Named("chaptersync"))
		}()
	}

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	wg.Wait()
	jobQueue.Close()
	logger.Info("shutdown complete")
}

func scraperConfig(cfg config.ScraperConfig) collyscraper.Config {
	sources := make(map[string]collyscraper.SourceConfig, len(cfg.Sources))
	for name, src := range cfg.Sources {
		sources[name] = collyscraper.SourceConfig{
			SeriesURL:       src.SeriesURL,
			TitleSelector:   src.TitleSelector,
			CoverSelector:   src.CoverSelector,
			ChapterSelector: src.ChapterSelector,
			LabelSelector:   src.LabelSelector,
			ChapterTitleSel: src.ChapterTitleSel,
			DateSelector:    src.DateSelector,
			DateLayout:      src.DateLayout,
		}
	}
	return collyscraper.Config{
		UserAgent: cfg.UserAgent,
		Timeout:   time.Duration(cfg.TimeoutSeconds) * time.Second,
		Sources:   sources,
	}
}

// runChapterSync keeps the configured series/source pairs current, scraping
// each target on a fixed interval and feeding the results through the
// synchronizer.
func runChapterSync(
	ctx context.Context,
	scraper *collyscraper.Scraper,
	limiter *ratelimit.Limiter,
	synchronizer *chaptersync.Synchronizer,
	cfg config.ScraperConfig,
	logger *zap.Logger,
) {
	interval := time.Duration(cfg.SyncIntervalMin) * time.Minute
	if interval <= 0 {
		interval = time.Hour
	}

	syncAll := func() {
		for _, target := range cfg.Targets {
			source, _, _ := strings.Cut(target.ScrapeKey, "/")
			if err := limiter.Wait(ctx, source); err != nil {
				return
			}
			result, err := scraper.ScrapeSeries(ctx, target.ScrapeKey)
			if err != nil {
				logger.Warn("scrape failed",
					zap.String("scrape_key", target.ScrapeKey),
					zap.Error(err),
				)
				continue
			}
			summary, err := synchronizer.SyncChapters(ctx, target.SeriesID, target.SourceID, target.SourceName, result)
			if err != nil {
				logger.Warn("chapter sync failed",
					zap.String("series_id", target.SeriesID),
					zap.Error(err),
				)
				continue
			}
			if summary.ChaptersCreated > 0 || summary.LinksCreated > 0 {
				logger.Info("chapters synced",
					zap.String("series_id", target.SeriesID),
					zap.Int("chapters_created", summary.ChaptersCreated),
					zap.Int("links_created", summary.LinksCreated),
					zap.Int("failed", summary.Failed),
				)
			}
		}
	}

	syncAll()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			syncAll()
		}
	}
}
