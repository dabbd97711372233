// Package app assembles the advisor from configuration. The server and the
// CLI share it.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/BerylCAtieno/hdb-resale-agent/internal/advisor"
	"github.com/BerylCAtieno/hdb-resale-agent/internal/cache"
	"github.com/BerylCAtieno/hdb-resale-agent/internal/config"
	"github.com/BerylCAtieno/hdb-resale-agent/internal/dataset"
	"github.com/BerylCAtieno/hdb-resale-agent/internal/llm"
	"github.com/BerylCAtieno/hdb-resale-agent/internal/pipeline"
	"github.com/BerylCAtieno/hdb-resale-agent/internal/prompts"
	"github.com/BerylCAtieno/hdb-resale-agent/internal/retrieval"
	"github.com/BerylCAtieno/hdb-resale-agent/internal/scope"
	"github.com/BerylCAtieno/hdb-resale-agent/internal/session"
)

type App struct {
	Advisor  *advisor.Advisor
	Sessions *session.Store
	Dataset  *dataset.Store
	Searcher *retrieval.SiteSearcher

	closers []func() error
}

// New builds every collaborator named by cfg. The dataset is imported from
// the CSV export when its store is empty.
func New(ctx context.Context, cfg *config.Config) (a *App, err error) {
	if err := cfg.RequireAPIKey(); err != nil {
		return nil, err
	}

	built := &App{Sessions: session.NewStore()}
	defer func() {
		if err != nil {
			built.Close()
		}
	}()
	a = built

	completer, err := newCompleter(cfg.LLM)
	if err != nil {
		return nil, err
	}
	if c, ok := completer.(*llm.GeminiClient); ok {
		a.closers = append(a.closers, func() error { c.Close(); return nil })
	}

	a.Dataset, err = OpenDataset(ctx, cfg.Dataset)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.Dataset.Close)

	a.Searcher, err = retrieval.NewSiteSearcher(retrieval.Config{
		Site:         cfg.Retrieval.Site,
		Seeds:        cfg.Retrieval.Seeds,
		MaxPages:     cfg.Retrieval.MaxPages,
		Results:      cfg.Retrieval.Results,
		CrawlTimeout: cfg.Retrieval.CrawlTimeout,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create site searcher: %w", err)
	}

	lib, err := prompts.Load()
	if err != nil {
		return nil, err
	}
	guide, err := pipeline.GuideGraph(lib)
	if err != nil {
		return nil, err
	}
	insights, err := pipeline.InsightsGraph(lib)
	if err != nil {
		return nil, err
	}

	exec := pipeline.NewExecutor(completer, scope.NewGate(scope.Mode(cfg.Scope.Mode)),
		pipeline.WithSearcher(a.Searcher),
		pipeline.WithDataset(a.Dataset),
		pipeline.WithStageTimeout(cfg.Pipeline.StageTimeout),
	)

	memo, err := a.newMemo(cfg.Cache)
	if err != nil {
		return nil, err
	}

	a.Advisor = advisor.New(pipeline.NewRunner(exec), guide, insights, memo)
	log.Info().
		Str("provider", cfg.LLM.Provider).
		Str("scope", cfg.Scope.Mode).
		Str("cache", cfg.Cache.Backend).
		Str("dataset", a.Dataset.Range()).
		Msg("advisor ready")
	return a, nil
}

// OpenDataset opens the transaction store and loads the CSV export into it
// when empty.
func OpenDataset(ctx context.Context, cfg config.DatasetConfig) (*dataset.Store, error) {
	store, err := dataset.Open(cfg.DB)
	if err != nil {
		return nil, err
	}
	if cfg.CSV == "" {
		return store, nil
	}
	err = store.ImportCSV(ctx, cfg.CSV)
	switch {
	case errors.Is(err, os.ErrNotExist):
		// insights answers fall back to insufficient data
		log.Warn().Str("csv", cfg.CSV).Msg("dataset export not found, starting with an empty dataset")
	case err != nil:
		store.Close()
		return nil, fmt.Errorf("failed to load dataset: %w", err)
	}
	return store, nil
}

func newCompleter(cfg config.LLMConfig) (llm.Completer, error) {
	switch cfg.Provider {
	case "openai":
		return llm.NewOpenAIClient(cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.Temperature), nil
	default:
		return llm.NewGeminiClient(cfg.APIKey, cfg.Model, float32(cfg.Temperature))
	}
}

func (a *App) newMemo(cfg config.CacheConfig) (cache.Store, error) {
	if cfg.Backend != "redis" {
		return cache.NewMemoryStore(), nil
	}
	rs, err := cache.NewRedisStore(cache.RedisConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, rs.Close)
	return rs, nil
}

// Close releases collaborators in reverse order of creation.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}
