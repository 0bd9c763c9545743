package main

import (
	"context"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/jobintel/pipeline/internal/analyzer"
	"github.com/jobintel/pipeline/internal/cache"
	"github.com/jobintel/pipeline/internal/connector"
	"github.com/jobintel/pipeline/internal/fetcher"
	"github.com/jobintel/pipeline/internal/notifier"
	"github.com/jobintel/pipeline/internal/pipeline"
	"github.com/jobintel/pipeline/internal/scheduler"
	"github.com/jobintel/pipeline/internal/searchapi"
	"github.com/jobintel/pipeline/internal/store"
	"github.com/jobintel/pipeline/pkg/anthropic"
)

// pipelineEnv holds every initialized client and the wired Orchestrator
// needed by the ingest/backfill/replay/serve/scheduler commands.
type pipelineEnv struct {
	Store        store.Store
	Search       searchapi.Client
	Orchestrator *pipeline.Orchestrator
	Scheduler    *scheduler.Scheduler
	Notifier     notifier.Notifier
	Cache        cache.Cache
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// initStore opens the configured store backend and runs migrations.
func initStore(ctx context.Context) (store.Store, error) {
	var st store.Store
	var err error

	switch cfg.Store.Driver {
	case "", "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "./jobpipe.db"
		}
		st, err = store.NewSQLite(dsn)
	case "postgres":
		st, err = store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
	if err != nil {
		return nil, eris.Wrap(err, "init store")
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	return st, nil
}

// initNotifier builds the jobs-alert notifier: a TelegramNotifier backed by
// the shared HTTP fetcher, or a NullNotifier when dry-run is configured or
// no bot token is set.
func initNotifier(logger *zap.Logger) notifier.Notifier {
	if cfg.Notifier.DryRun || cfg.Notifier.JobsBotToken == "" {
		return notifier.NewNullNotifier()
	}
	f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent:  "jobpipe/1.0",
		Timeout:    15 * time.Second,
		MaxRetries: 2,
	})
	return notifier.NewTelegramNotifier(f, cfg.Notifier.JobsBotToken, cfg.Notifier.JobsChatID, logger)
}

// initCache builds the Redis cache when configured, falling back to the
// in-process MemoryCache otherwise.
func initCache(ctx context.Context) cache.Cache {
	if url := os.Getenv("JOBPIPE_REDIS_URL"); url != "" {
		rc, err := cache.NewRedisCache(ctx, url)
		if err == nil {
			return rc
		}
		zap.L().Warn("redis cache init failed, falling back to in-memory cache", zap.Error(err))
	}
	return cache.NewMemoryCache()
}

// buildConnectors instantiates every platform connector this binary knows
// about, keyed by SourceConfig.Type so the orchestrator can look them up.
func buildConnectors(search searchapi.Client) map[string]connector.Connector {
	httpFetcher := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent:     "jobpipe/1.0 (+https://github.com/jobintel/pipeline)",
		Timeout:       20 * time.Second,
		MaxRetries:    3,
		AdaptiveHosts: map[string]bool{},
	})

	conns := map[string]connector.Connector{
		"ashby":           connector.NewAshbyConnector(httpFetcher),
		"bamboohr":        connector.NewBambooHRConnector(httpFetcher),
		"greenhouse":      connector.NewGreenhouseConnector(httpFetcher),
		"icims":           connector.NewICIMSConnector(httpFetcher),
		"lever":           connector.NewLeverConnector(httpFetcher),
		"smartrecruiters": connector.NewSmartRecruitersConnector(httpFetcher),
		"workday":         connector.NewWorkdayConnector(httpFetcher),
	}
	if search != nil {
		conns["indeed_search"] = connector.NewIndeedSearchConnector(search)
	}
	return conns
}

// buildAnalyzer wires the fit analyzer per cfg.LLM.Provider: the default
// pooled OpenAI-compatible streaming path, or a single Anthropic client
// when provider is "anthropic". analyzerConcurrency is the pool size the
// orchestrator should use for its LLM fan-out.
func buildAnalyzer() (analyzer.Analyzer, int) {
	if len(cfg.LLM.PrimaryKeys) == 0 {
		zap.L().Warn("no LLM primary keys configured, fit analysis disabled")
		return nil, 1
	}

	pool := analyzer.NewKeyPool(cfg.LLM.PrimaryKeys)

	streamTimeout := time.Duration(cfg.LLM.StreamTimeoutSecs) * time.Second
	hardCap := time.Duration(cfg.LLM.HardCapTimeoutSecs) * time.Second

	var primary analyzer.StreamProvider
	if cfg.LLM.Provider == "anthropic" {
		primary = analyzer.NewAnthropicProvider(anthropic.NewClient(cfg.LLM.PrimaryKeys[0]), cfg.LLM.PrimaryModel)
	} else {
		primary = analyzer.NewHTTPStreamProvider(cfg.LLM.PrimaryBaseURL, cfg.LLM.PrimaryModel, streamTimeout, hardCap)
	}

	var fallback *analyzer.Fallback
	if cfg.LLM.FallbackKey != "" {
		fallbackProvider := analyzer.NewHTTPStreamProvider(cfg.LLM.FallbackBaseURL, cfg.LLM.FallbackModel, streamTimeout, hardCap)
		fallback = analyzer.NewFallback(fallbackProvider, cfg.LLM.FallbackKey)
	}

	return analyzer.NewDefaultAnalyzer(pool, primary, cfg.LLM.PrimaryModel, fallback, cfg.LLM.FallbackModel), pool.Len()
}

// loadResume reads the resume text the fit analyzer prompts against. A
// missing or unconfigured resume is not fatal: analysis just runs with an
// empty resume string, which the analyzer treats as "no tailoring context".
func loadResume() string {
	if cfg.Resume.Path == "" {
		return ""
	}
	data, err := os.ReadFile(cfg.Resume.Path)
	if err != nil {
		zap.L().Warn("resume file not readable, analysis will run without resume context",
			zap.String("path", cfg.Resume.Path), zap.Error(err))
		return ""
	}
	return string(data)
}

// initEnv wires the store, connectors, analyzer, notifier, orchestrator,
// and scheduler into a single pipelineEnv. Callers should defer env.Close().
func initEnv(ctx context.Context) (*pipelineEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	var search searchapi.Client
	if len(cfg.SearchAPI.Keys) > 0 {
		search = searchapi.NewClient(cfg.SearchAPI.Keys, searchapi.WithBaseURL(cfg.SearchAPI.BaseURL))
	}

	conns := buildConnectors(search)
	az, analyzerConcurrency := buildAnalyzer()
	nt := initNotifier(zap.L())
	resume := loadResume()

	orch, err := pipeline.New(cfg, st, conns, az, nt, resume, analyzerConcurrency, zap.L())
	if err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "build orchestrator")
	}

	sched, err := scheduler.New(orch, st, nt, cfg.Timezone, zap.L())
	if err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "build scheduler")
	}

	return &pipelineEnv{
		Store:        st,
		Search:       search,
		Orchestrator: orch,
		Scheduler:    sched,
		Notifier:     nt,
		Cache:        initCache(ctx),
	}, nil
}
