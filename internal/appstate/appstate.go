// Package appstate wires the process-wide AppState the server, the stdio
// adapter, and the CLI all share: the KV handle and every core collaborator
// built on top of it, plus the ingest semaphore and the two asynchronous
// locks spec.md §5/§9 call out (the fusion query cache and the metrics
// struct) — grounded on the teacher's internal/mcp.Server field layout
// (engine/metadata/embedder/config/logger bundled on one struct) and on
// original_source's AppState in server/src/main.rs.
package appstate

import (
	"context"
	"log/slog"

	"golang.org/x/sync/semaphore"

	"memorized/internal/analytics"
	"memorized/internal/config"
	"memorized/internal/docpipeline"
	"memorized/internal/embed"
	"memorized/internal/extract"
	"memorized/internal/fusion"
	"memorized/internal/kg"
	"memorized/internal/kv"
	"memorized/internal/lifecycle"
	"memorized/internal/logging"
	"memorized/internal/maintenance"
	"memorized/internal/memory"
	"memorized/internal/textindex"
)

// AppState is the single value the process constructs at startup and tears
// down at shutdown. No collaborator here reaches for an ambient global;
// every entry point (HTTP handler, stdio adapter, CLI command) receives it
// explicitly.
type AppState struct {
	Config *config.Config
	Logger *slog.Logger

	Store *kv.Store

	Graph       *kg.Graph
	TextIndex   *textindex.Index
	Embedder    embed.Provider
	Memory      *memory.Store
	Docs        *docpipeline.Pipeline
	Fusion      *fusion.Engine
	Lifecycle   *lifecycle.Scheduler
	Maintenance *maintenance.Service
	Analytics   *analytics.Service

	// IngestSema additionally bounds callers that fan out across multiple
	// docpipeline.Pipeline.Store calls (docpipeline bounds its own calls
	// internally; this is for batch callers like /data/import).
	IngestSema *semaphore.Weighted

	closeLogFile func()
}

// Open constructs every collaborator from cfg, in dependency order: KV
// store, then text index and knowledge graph (leaves), then memory store
// and document pipeline (which compose them), then fusion search and the
// lifecycle scheduler (which compose those).
func Open(cfg *config.Config) (*AppState, error) {
	logger, closeLogFile, err := logging.Setup(logging.DefaultOptions(cfg.DataDir))
	if err != nil {
		return nil, err
	}

	store, err := kv.Open(kv.Options{Path: cfg.DataDir + "/warm/kv"})
	if err != nil {
		closeLogFile()
		return nil, err
	}

	graph := kg.New(store)
	textIndex, err := textindex.Open(store, cfg.DataDir+"/index/bleve")
	if err != nil {
		_ = store.Close()
		closeLogFile()
		return nil, err
	}
	var embedder embed.Provider
	if cfg.OllamaHost != "" {
		embedder = embed.NewOllama(cfg.OllamaHost, cfg.OllamaModel, cfg.EmbedDim)
	} else {
		embedder = embed.NewPlaceholder(cfg.EmbedDim)
	}

	memStore := memory.New(store, graph, textIndex, embedder, memory.Options{
		StrengthenLTMMul: cfg.LTMStrengthenOnAccess,
		StrengthenSTMAdd: cfg.STMStrengthenDelta,
	})
	docs := docpipeline.New(store, graph, textIndex, embedder, docpipeline.Options{
		MaxConcurrentIngest: int(cfg.MaxConcurrentIngest),
		PDFLimits: extract.Limits{
			MaxPages:  cfg.PDFMaxPages,
			MaxBytes:  int(cfg.PDFMaxBytes),
			MaxTimeMs: int(cfg.PDFMaxTimeMs),
		},
	})

	fusionEngine := fusion.New(memStore, textIndex, graph, embedder, fusion.Options{
		CacheTTL: cfg.FusionCacheTTL,
		CacheMax: cfg.FusionCacheMax,
	})

	sched := lifecycle.New(store, lifecycle.Options{
		Interval:             cfg.STMCleanInterval,
		LTMDecayPerClean:     cfg.LTMDecayPerClean,
		PromoteImportanceMin: cfg.ConsolidateImportanceMin,
		PromoteAccessMin:     int64(cfg.ConsolidateAccessMin),
		STMMaxItems:          cfg.STMMaxItems,
		CachePruner:          fusionEngine,
	})

	maint := maintenance.New(textIndex, graph, memStore, docs, cfg.DataDir, nil)
	stats := analytics.New(memStore, graph, nil)

	return &AppState{
		Config:       cfg,
		Logger:       logger,
		Store:        store,
		Graph:        graph,
		TextIndex:    textIndex,
		Embedder:     embedder,
		Memory:       memStore,
		Docs:         docs,
		Fusion:       fusionEngine,
		Lifecycle:    sched,
		Maintenance:  maint,
		Analytics:    stats,
		IngestSema:   semaphore.NewWeighted(cfg.MaxConcurrentIngest),
		closeLogFile: closeLogFile,
	}, nil
}

// Run starts the lifecycle scheduler and blocks until ctx is cancelled
// (graceful shutdown, per spec.md §5).
func (a *AppState) Run(ctx context.Context) error {
	return a.Lifecycle.Run(ctx)
}

// Close releases the KV handle and the log file, in that order. Safe to
// call once, at process shutdown.
func (a *AppState) Close() error {
	if err := a.TextIndex.Close(); err != nil {
		return err
	}
	if err := a.Store.Close(); err != nil {
		return err
	}
	if a.closeLogFile != nil {
		a.closeLogFile()
	}
	return nil
}
