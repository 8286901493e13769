package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/atlas-specialty/underwrite-cli/internal/docs"
	"github.com/atlas-specialty/underwrite-cli/internal/llm"
	"github.com/atlas-specialty/underwrite-cli/internal/pipeline"
	"github.com/atlas-specialty/underwrite-cli/internal/risk"
	"github.com/atlas-specialty/underwrite-cli/internal/store"
	anthropicpkg "github.com/atlas-specialty/underwrite-cli/pkg/anthropic"
	"github.com/atlas-specialty/underwrite-cli/pkg/serp"
)

// pipelineEnv holds the initialized store, clients, and pipeline needed by
// the ingest/process/resume commands.
type pipelineEnv struct {
	Store    store.Store
	Pipeline *pipeline.Pipeline
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	case "sqlite", "":
		return store.NewSQLite(cfg.Store.DatabaseURL)
	}
	return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
}

// initPipeline sets up the store, reference documents, API clients, and the
// pipeline. Callers should defer env.Close().
func initPipeline(ctx context.Context) (*pipelineEnv, error) {
	if cfg.Anthropic.Key == "" {
		return nil, eris.New("UNDERWRITE_ANTHROPIC_KEY is required")
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	var docStore docs.Store
	fsStore, err := docs.Load(cfg.Documents.Dir, cfg.Documents.Manifest)
	if err != nil {
		zap.L().Warn("reference documents unavailable, generating without them",
			zap.String("dir", cfg.Documents.Dir),
			zap.Error(err))
		docStore = docs.NewStatic(nil)
	} else {
		docStore = fsStore
	}

	gen := llm.NewClaude(anthropicpkg.NewClient(cfg.Anthropic.Key), docStore, llm.ClaudeConfig{
		Model:       cfg.Anthropic.Model,
		MaxTokens:   cfg.Anthropic.MaxTokens,
		Temperature: cfg.Anthropic.Temperature,
	})

	var assessor pipeline.Assessor
	if cfg.Pipeline.RiskAssessmentEnabled && cfg.Serp.Key != "" {
		search := serp.NewClient(cfg.Serp.Key,
			serp.WithBaseURL(cfg.Serp.BaseURL),
			serp.WithRateLimit(cfg.Serp.RatePerSecond),
			serp.WithDefaultNum(cfg.Serp.ResultsPerPage))
		assessor = risk.NewAssessor(search, gen, st, time.Duration(cfg.Serp.CacheTTLHours)*time.Hour)
	} else {
		zap.L().Warn("risk assessment disabled, cases will carry an unknown risk level")
	}

	return &pipelineEnv{
		Store:    st,
		Pipeline: pipeline.New(st, gen, assessor),
	}, nil
}
