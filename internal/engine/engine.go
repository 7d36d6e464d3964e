// Package engine wires the core's components into one runnable instance:
// cache backends, the embedding service and its providers, the vector
// store, the language extractor, the search engine, and the indexing
// scheduler, all constructed from a single config.Config. It is the Go
// equivalent of the teacher's internal/mcp.NewServer construction
// sequence, generalized from "embeddings client + vector DB client +
// indexer + searcher" to the full component set §4 describes.
package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/codeintel-dev/codeintel-engine/internal/apperrors"
	"github.com/codeintel-dev/codeintel-engine/internal/cache"
	"github.com/codeintel-dev/codeintel-engine/internal/config"
	"github.com/codeintel-dev/codeintel-engine/internal/embedding"
	"github.com/codeintel-dev/codeintel-engine/internal/extractor"
	"github.com/codeintel-dev/codeintel-engine/internal/models"
	"github.com/codeintel-dev/codeintel-engine/internal/scheduler"
	"github.com/codeintel-dev/codeintel-engine/internal/search"
	"github.com/codeintel-dev/codeintel-engine/internal/vectorstore"
)

// Engine bundles every constructed component plus a job tracker so
// callers (the MCP server, the CLI commands) can submit index jobs and
// poll their progress without reaching into the scheduler's internals.
type Engine struct {
	Config     *config.Config
	Cache      *cache.Service
	Embeddings *embedding.Service
	Vectors    vectorstore.Store
	Extractors *extractor.Engine
	Search     *search.Engine
	Scheduler  *scheduler.Scheduler

	jobsMu sync.Mutex
	jobs   map[string]*models.IndexJob
}

// New constructs every component from cfg and wires them together. The
// returned Engine's Scheduler is not yet running; call Run to start its
// reactor loop.
func New(ctx context.Context, cfg *config.Config) (*Engine, error) {
	cacheSvc, err := buildCache(cfg)
	if err != nil {
		return nil, fmt.Errorf("build cache: %w", err)
	}

	embeddingSvc := buildEmbeddingService(cfg, cacheSvc)

	vectors, err := vectorstore.New(ctx, vectorstoreConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("build vector store: %w", err)
	}

	extractors, err := extractor.NewEngine()
	if err != nil {
		return nil, fmt.Errorf("build extractor engine: %w", err)
	}

	searchEngine := search.NewEngine(embeddingSvc, vectors, cacheSvc, search.EngineConfig{
		DefaultLimit: cfg.Search.DefaultLimit,
		MaxLimit:     cfg.Search.MaxLimit,
		FuzzyThresh:  cfg.Search.FuzzyThreshold,
		ResultTTL:    time.Duration(cfg.Search.ResultCacheTTLSeconds) * time.Second,
	})

	workers := cfg.WorkerPool.WorkerCount
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	sched, err := scheduler.New(extractors, embeddingSvc, vectors, searchEngine, scheduler.Config{
		Workers:           workers,
		PerWorkerCap:      cfg.WorkerPool.PerWorkerCap,
		QueueCapacity:     cfg.JobQueue.Capacity,
		EmbeddingProvider: cfg.Embedding.DefaultProvider,
		EmbeddingModel:    cfg.Embedding.Providers[cfg.Embedding.DefaultProvider].Model,
		FileHashDir:       filepath.Join(cfg.Cache.Directory, "filehash"),
		SweepInterval:     time.Duration(cfg.JobQueue.SweepIntervalMS) * time.Millisecond,
	})
	if err != nil {
		return nil, fmt.Errorf("build scheduler: %w", err)
	}

	return &Engine{
		Config:     cfg,
		Cache:      cacheSvc,
		Embeddings: embeddingSvc,
		Vectors:    vectors,
		Extractors: extractors,
		Search:     searchEngine,
		Scheduler:  sched,
		jobs:       make(map[string]*models.IndexJob),
	}, nil
}

// buildCache constructs the configured backend(s) and registers them with
// a cache.Service; Hybrid wires Memory in front of File per DESIGN.md's
// resolution of §9's open question.
func buildCache(cfg *config.Config) (*cache.Service, error) {
	memory := cache.NewMemoryBackend(cfg.Cache.MaxEntries, cfg.Cache.MaxSizeBytes, evictionPolicy(cfg.Cache.EvictionPolicy))

	backends := map[string]cache.Backend{"memory": memory}
	primary := "memory"

	switch cfg.Cache.Backend {
	case "file":
		file, err := cache.NewFileBackend(cfg.Cache.Directory)
		if err != nil {
			return nil, err
		}
		backends["file"] = file
		primary = "file"
	case "hybrid":
		file, err := cache.NewFileBackend(cfg.Cache.Directory)
		if err != nil {
			return nil, err
		}
		backends["file"] = file
		backends["hybrid"] = cache.NewHybridBackend(memory, file)
		primary = "hybrid"
	}

	return cache.NewService(backends, primary)
}

func evictionPolicy(name string) models.EvictionPolicy {
	switch name {
	case "LFU":
		return models.EvictionLFU
	case "TTL":
		return models.EvictionTTL
	case "Random":
		return models.EvictionRandom
	default:
		return models.EvictionLRU
	}
}

// buildEmbeddingService registers one HTTPProvider per configured
// provider entry and wires them into an embedding.Service bound to the
// shared cache.
func buildEmbeddingService(cfg *config.Config, cacheSvc *cache.Service) *embedding.Service {
	providers := make(map[string]embedding.Provider, len(cfg.Embedding.Providers))
	for name, pc := range cfg.Embedding.Providers {
		providers[name] = embedding.NewHTTPProvider(embedding.HTTPProviderConfig{
			Name:       name,
			Endpoint:   pc.Endpoint,
			APIKey:     pc.APIKey,
			Models:     map[string]int{pc.Model: pc.Dimension},
			Timeout:    time.Duration(pc.TimeoutSeconds) * time.Second,
			MaxRetries: pc.MaxRetries,
			RetryDelay: time.Duration(pc.RetryDelayMS) * time.Millisecond,
		})
	}

	return embedding.NewService(providers, cacheSvc, embedding.Config{
		BatchSize:      cfg.Embedding.BatchSize,
		MaxInputTokens: cfg.Embedding.MaxTextLength,
		CacheTTL:       time.Duration(cfg.Embedding.CacheTTLSeconds) * time.Second,
	})
}

func vectorstoreConfig(cfg *config.Config) vectorstore.Config {
	return vectorstore.Config{
		Backend:        cfg.VectorDB.Backend,
		Dimension:      cfg.VectorDB.VectorSize,
		Metric:         vectorstore.Metric(cfg.VectorDB.DistanceMetric),
		CollectionName: cfg.VectorDB.CollectionName,
		M:              cfg.VectorDB.HNSWM,
		EfSearch:       cfg.VectorDB.HNSWEfSearch,
		PersistDir:     cfg.VectorDB.PersistPath,
		QdrantHost:     cfg.VectorDB.QdrantHost,
		QdrantPort:     cfg.VectorDB.QdrantPort,
		ConnectTimeout: 10 * time.Second,
	}
}

// Run starts the scheduler's reactor loop; it blocks until ctx is done.
func (e *Engine) Run(ctx context.Context) error {
	return e.Scheduler.Run(ctx)
}

// RegisterCodebase registers or refreshes the codebase rooted at
// rootPath under id/name, ready for indexing.
func (e *Engine) RegisterCodebase(id, name, rootPath string) *models.Codebase {
	cb := &models.Codebase{
		ID:        id,
		Name:      name,
		RootPath:  rootPath,
		Status:    models.CodebaseUnindexed,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	e.Scheduler.RegisterCodebase(cb)
	return cb
}

// SubmitIndex builds and submits an IndexJob of kind against codebaseID,
// tracking it so later Job lookups by id succeed. The returned *IndexJob
// is the same pointer the scheduler mutates as the job runs; callers
// read its state via Snapshot()/StatusSnapshot() rather than its fields.
func (e *Engine) SubmitIndex(codebaseID string, kind models.JobKind, priority models.Priority, filePaths []string, forceReindex, generateEmbeddings bool) (*models.IndexJob, error) {
	job := &models.IndexJob{
		ID:         uuid.New().String(),
		CodebaseID: codebaseID,
		Kind:       kind,
		Priority:   priority,
		Status:     models.JobQueued,
		CreatedAt:  time.Now(),
		Config: models.JobConfig{
			BatchSize:          e.Config.Embedding.BatchSize,
			WorkerCount:        e.Config.WorkerPool.WorkerCount,
			MaxFileSizeBytes:   e.Config.Indexing.MaxFileSizeBytes,
			IncludePatterns:    e.Config.Indexing.IncludePatterns,
			ExcludePatterns:    e.Config.Indexing.ExcludePatterns,
			FollowSymlinks:     e.Config.Indexing.FollowSymlinks,
			GenerateEmbeddings: generateEmbeddings,
			MaxRetries:         e.Config.Indexing.MaxRetries,
			Timeout:            e.Config.IndexingTimeout(),
		},
		Metadata: models.JobMetadata{
			ForceReindex:   forceReindex,
			UpdateExisting: true,
			FilePaths:      filePaths,
		},
	}
	if err := e.Scheduler.Submit(job); err != nil {
		return nil, err
	}

	e.jobsMu.Lock()
	e.jobs[job.ID] = job
	e.jobsMu.Unlock()
	return job, nil
}

// Job returns the tracked job for id, if any. The scheduler mutates the
// same pointer's fields concurrently as the job runs; callers read its
// state via Snapshot()/StatusSnapshot() rather than its fields directly.
func (e *Engine) Job(id string) (*models.IndexJob, bool) {
	e.jobsMu.Lock()
	defer e.jobsMu.Unlock()
	job, ok := e.jobs[id]
	return job, ok
}

// WaitForJob blocks until job reaches a terminal status or ctx is done.
func (e *Engine) WaitForJob(ctx context.Context, job *models.IndexJob, poll time.Duration) error {
	if poll <= 0 {
		poll = 100 * time.Millisecond
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	for {
		switch job.StatusSnapshot() {
		case models.JobCompleted, models.JobFailed, models.JobCancelled:
			return nil
		}
		select {
		case <-ctx.Done():
			return apperrors.New(apperrors.Cancelled, "ERR_WAIT_CANCELLED", "wait for job cancelled", ctx.Err())
		case <-ticker.C:
		}
	}
}

// Close releases resources held by the vector store. The cache backends
// are left as they are.
func (e *Engine) Close() error {
	return e.Vectors.Close()
}
