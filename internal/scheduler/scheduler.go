package scheduler

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/codeintel-dev/codeintel-engine/internal/apperrors"
	"github.com/codeintel-dev/codeintel-engine/internal/embedding"
	"github.com/codeintel-dev/codeintel-engine/internal/extractor"
	"github.com/codeintel-dev/codeintel-engine/internal/jobqueue"
	"github.com/codeintel-dev/codeintel-engine/internal/models"
	"github.com/codeintel-dev/codeintel-engine/internal/search"
	"github.com/codeintel-dev/codeintel-engine/internal/vectorstore"
	"github.com/codeintel-dev/codeintel-engine/internal/workerpool"
)

// persister is implemented by vector store backends that need an explicit
// flush to durable storage (HNSW); Qdrant is already durable server-side
// and simply doesn't satisfy this interface.
type persister interface {
	Save() error
}

// Config configures the Scheduler's reactor loop and index jobs.
type Config struct {
	Workers           int
	PerWorkerCap      int
	QueueCapacity     int
	EmbeddingProvider string
	EmbeddingModel    string
	CancelCheckEvery  int // phase-internal cancellation check cadence, default 16
	FileHashDir       string
	SweepInterval     time.Duration
	PollInterval      time.Duration
	RetryDelay        time.Duration
	Logger            *slog.Logger
}

// Scheduler is the control plane of §4.3: it owns the job queue and
// worker pool and drives each popped IndexJob through its phase sequence,
// wiring the extractor, embedding service, vector store, and search
// engine together. Grounded on the teacher's internal/indexer/indexer.go
// pipeline shape, generalized from a single synchronous run to a queued,
// resumable, cancellable, multi-codebase job runner per
// original_source/rust-core/crates/core/src/services/job_service.rs.
type Scheduler struct {
	queue *jobqueue.Queue
	pool  *workerpool.Pool

	extractors   *extractor.Engine
	embeddings   *embedding.Service
	vectors      vectorstore.Store
	searchEngine *search.Engine
	fileHashes   *fileHashStore
	entities     EntityStore

	mu        sync.RWMutex
	codebases map[string]*models.Codebase

	cfg Config
}

// New wires a Scheduler from its dependencies. embeddings/vectors may be
// nil if the deployment disables embedding generation (§6's
// generate_embeddings flag).
func New(extractors *extractor.Engine, embeddings *embedding.Service, vectors vectorstore.Store, searchEngine *search.Engine, cfg Config) (*Scheduler, error) {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.PerWorkerCap <= 0 {
		cfg.PerWorkerCap = 1
	}
	if cfg.CancelCheckEvery <= 0 {
		cfg.CancelCheckEvery = 16
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 5 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 200 * time.Millisecond
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 2 * time.Second
	}
	if cfg.FileHashDir == "" {
		cfg.FileHashDir = filepath.Join(os.TempDir(), "codeintel-filehash")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	fh, err := newFileHashStore(cfg.FileHashDir)
	if err != nil {
		return nil, err
	}

	return &Scheduler{
		queue:        jobqueue.New(cfg.QueueCapacity),
		pool:         workerpool.New(cfg.Workers, cfg.PerWorkerCap),
		extractors:   extractors,
		embeddings:   embeddings,
		vectors:      vectors,
		searchEngine: searchEngine,
		fileHashes:   fh,
		entities:     newMemoryEntityStore(),
		codebases:    make(map[string]*models.Codebase),
		cfg:          cfg,
	}, nil
}

// RegisterCodebase registers or updates cb so the scheduler can resolve
// index jobs submitted against its ID.
func (s *Scheduler) RegisterCodebase(cb *models.Codebase) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codebases[cb.ID] = cb
}

// Codebase returns the registered codebase for id, if any.
func (s *Scheduler) Codebase(id string) (*models.Codebase, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cb, ok := s.codebases[id]
	return cb, ok
}

// Submit enqueues job, defaulting ID/Status/CreatedAt when unset.
func (s *Scheduler) Submit(job *models.IndexJob) error {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	if job.Status == "" {
		job.Status = models.JobQueued
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}
	if job.Config.MaxRetries <= 0 {
		job.Config.MaxRetries = apperrors.DefaultRetryPolicy().MaxRetries
	}
	return s.queue.Enqueue(job)
}

// QueueSize reports the number of jobs currently queued.
func (s *Scheduler) QueueSize() int { return s.queue.Size() }

// WorkerStats reports a snapshot of every worker slot.
func (s *Scheduler) WorkerStats() []workerpool.Snapshot { return s.pool.Stats() }

// Run drives the reactor loop until ctx is cancelled: pop a job, claim a
// worker, and dispatch it to a goroutine that runs its phases to
// completion. A job popped when no worker is free is re-enqueued rather
// than dropped.
func (s *Scheduler) Run(ctx context.Context) error {
	sweepTicker := time.NewTicker(s.cfg.SweepInterval)
	defer sweepTicker.Stop()

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-sweepTicker.C:
			s.queue.Sweep(time.Now())
		default:
		}

		job := s.queue.Pop()
		if job == nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.cfg.PollInterval):
			}
			continue
		}

		worker, err := s.pool.Claim(job.ID)
		if err != nil {
			_ = s.queue.Enqueue(job)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.cfg.PollInterval):
			}
			continue
		}

		wg.Add(1)
		go func(job *models.IndexJob, w *workerpool.Worker) {
			defer wg.Done()
			start := time.Now()
			err := s.runJobGuarded(ctx, job)
			elapsed := time.Since(start)

			cancelled := apperrors.KindOf(err) == apperrors.Cancelled
			s.pool.Release(w, err == nil, elapsed)

			if err != nil && !cancelled {
				s.pool.Fail(w)
				s.retryOrFinalize(ctx, job, err)
				s.pool.Recover(w)
			}

			s.queue.MarkCompleted(job.ID)
		}(job, worker)
	}
}

// runJobGuarded wraps runJob with panic recovery: a worker goroutine that
// panics must not take down the reactor loop or leave the job stuck
// Running forever. The job is marked Failed with a non-recoverable error
// and the panic is logged, per §4.9.
func (s *Scheduler) runJobGuarded(ctx context.Context, job *models.IndexJob) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.cfg.Logger.Error("job panicked", "job_id", job.ID, "codebase_id", job.CodebaseID, "panic", r)
			jobErr := apperrors.Newf(apperrors.IoError, "ERR_JOB_PANIC", "job panicked: %v", r).WithRecoverable(false)
			completed := time.Now()
			job.Finish(models.JobFailed, &models.JobError{
				Kind:        string(jobErr.Kind),
				Message:     jobErr.Message,
				Recoverable: false,
				OccurredAt:  completed,
			}, completed)
			err = jobErr
		}
	}()
	return s.runJob(ctx, job)
}

// retryOrFinalize requeues job with an incremented retry count when its
// terminal error is recoverable and it has retries left (§4.2's
// worker-error retry path, §3's Failed -> Retrying transition);
// otherwise the job stays Failed.
func (s *Scheduler) retryOrFinalize(ctx context.Context, job *models.IndexJob, jobErr error) {
	if ctx.Err() != nil || !apperrors.IsRecoverable(jobErr) {
		return
	}
	snap := job.Snapshot()
	if snap.Stats.RetryCount >= job.Config.MaxRetries {
		return
	}

	job.IncrRetries()
	job.SetStatus(models.JobRetrying)
	retryCount := snap.Stats.RetryCount + 1
	delay := s.cfg.RetryDelay
	s.cfg.Logger.Warn("requeueing job after worker error", "job_id", job.ID, "retry_count", retryCount, "max_retries", job.Config.MaxRetries, "delay", delay)

	go func() {
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		job.SetStatus(models.JobQueued)
		_ = s.queue.Enqueue(job)
	}()
}

// runJob dispatches job per its Kind and records its terminal status.
func (s *Scheduler) runJob(ctx context.Context, job *models.IndexJob) error {
	job.Begin(time.Now())

	var err error
	switch job.Kind {
	case models.JobFullIndex:
		err = s.runIndex(ctx, job, false)
	case models.JobIncrementalIndex:
		err = s.runIndex(ctx, job, true)
	case models.JobFileReindex:
		err = s.runFileReindex(ctx, job)
	case models.JobCleanup:
		err = s.runCleanup(ctx, job)
	default:
		err = apperrors.Newf(apperrors.Validation, "ERR_JOB_KIND", "unsupported job kind %q", job.Kind)
	}

	completed := time.Now()
	if err != nil {
		if apperrors.KindOf(err) == apperrors.Cancelled {
			job.Finish(models.JobCancelled, nil, completed)
		} else {
			job.Finish(models.JobFailed, &models.JobError{
				Kind:        string(apperrors.KindOf(err)),
				Message:     err.Error(),
				Recoverable: apperrors.IsRecoverable(err),
				OccurredAt:  completed,
			}, completed)
		}
		return err
	}
	job.Finish(models.JobCompleted, nil, completed)
	return nil
}

// checkCancel returns a Cancelled error once cooperative cancellation has
// been requested, the checkpoint run at every phase boundary and every
// cfg.CancelCheckEvery files.
func (s *Scheduler) checkCancel(job *models.IndexJob) error {
	if job.IsCancelled() {
		return apperrors.New(apperrors.Cancelled, "ERR_JOB_CANCELLED", "job was cancelled", nil)
	}
	return nil
}

func (s *Scheduler) setPhase(job *models.IndexJob, phase models.Phase) {
	job.SetPhase(phase)
}

// runIndex drives a codebase through the full phase sequence of §4.3.1:
// Initializing -> Scanning -> Parsing -> Analyzing -> GeneratingEmbedding
// -> BuildingIndexes -> Optimizing -> Finalizing -> Cleanup. incremental
// skips files whose content hash is unchanged since the last run, unless
// job.Metadata.ForceReindex is set.
func (s *Scheduler) runIndex(ctx context.Context, job *models.IndexJob, incremental bool) error {
	s.setPhase(job, models.PhaseInitializing)
	if err := s.checkCancel(job); err != nil {
		return err
	}
	cb, ok := s.Codebase(job.CodebaseID)
	if !ok {
		return apperrors.Newf(apperrors.NotFound, "ERR_CODEBASE_NOT_FOUND", "codebase %q is not registered", job.CodebaseID)
	}

	s.setPhase(job, models.PhaseScanning)
	scanner := NewScanner(job.Config.IncludePatterns, job.Config.ExcludePatterns, job.Config.MaxFileSizeBytes, job.Config.FollowSymlinks, extractor.DetectLanguage)
	scanResult, err := scanner.Scan(cb.RootPath)
	if err != nil {
		return apperrors.Wrap(apperrors.IoError, "ERR_SCAN", err)
	}
	if err := s.checkCancel(job); err != nil {
		return err
	}

	job.SetTotalItems(len(scanResult.Files))

	s.setPhase(job, models.PhaseParsing)
	embeddable, err := s.processFiles(ctx, job, cb, scanResult.Files, incremental)
	if err != nil {
		return err
	}

	s.setPhase(job, models.PhaseAnalyzing)
	if err := s.checkCancel(job); err != nil {
		return err
	}

	s.setPhase(job, models.PhaseGeneratingEmbedding)
	if job.Config.GenerateEmbeddings && s.embeddings != nil && s.vectors != nil {
		if err := s.embedEntities(ctx, cb.ID, embeddable); err != nil {
			return err
		}
	}
	if err := s.checkCancel(job); err != nil {
		return err
	}

	s.setPhase(job, models.PhaseBuildingIndexes)
	if p, ok := s.vectors.(persister); ok {
		if err := p.Save(); err != nil {
			return apperrors.Wrap(apperrors.IoError, "ERR_VECTOR_SAVE", err)
		}
	}

	s.setPhase(job, models.PhaseOptimizing)
	if err := s.fileHashes.Save(cb.ID); err != nil {
		return apperrors.Wrap(apperrors.IoError, "ERR_FILEHASH_SAVE", err)
	}

	s.setPhase(job, models.PhaseFinalizing)
	s.mu.Lock()
	cb.FileCount = scanResult.TotalFiles
	cb.LanguageCounts = scanResult.Languages
	cb.Status = models.CodebaseReady
	cb.UpdatedAt = time.Now()
	s.mu.Unlock()

	s.setPhase(job, models.PhaseCleanup)
	return nil
}

// processFiles extracts every file in files into s.entities and the
// search index, skipping unchanged files on an incremental run. It
// returns the entities freshly (re)indexed this run, the candidate set
// for embedding generation.
func (s *Scheduler) processFiles(ctx context.Context, job *models.IndexJob, cb *models.Codebase, files []string, incremental bool) ([]*models.CodeEntity, error) {
	var embeddable []*models.CodeEntity
	retryPolicy := apperrors.DefaultRetryPolicy()

	for i, path := range files {
		if i > 0 && i%s.cfg.CancelCheckEvery == 0 {
			if err := s.checkCancel(job); err != nil {
				return nil, err
			}
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		relPath, relErr := filepath.Rel(cb.RootPath, path)
		if relErr != nil {
			relPath = path
		}

		if incremental && !job.Metadata.ForceReindex {
			needs, err := s.fileHashes.NeedsReindex(cb.ID, path)
			if err == nil && !needs {
				job.IncrSkipped()
				continue
			}
		}

		var content []byte
		readErr := apperrors.Retry(ctx, retryPolicy, func() error {
			data, err := os.ReadFile(path)
			if err != nil {
				content = nil
				return apperrors.Wrap(apperrors.IoError, "ERR_READ_FILE", err)
			}
			content = data
			return nil
		})
		if readErr != nil {
			job.IncrFailed()
			job.AddFileError(models.FileError{FilePath: relPath, Message: readErr.Error()})
			job.IncrRetries()
			continue
		}

		result, extractErr := s.extractGuarded(cb.ID, relPath, content)
		if extractErr != nil {
			if apperrors.KindOf(extractErr) == extractor.LanguageUnsupported {
				job.IncrSkipped()
				continue
			}
			job.IncrFailed()
			job.AddFileError(models.FileError{FilePath: relPath, Message: extractErr.Error()})
			continue
		}

		// Preserve entity identity across reindex (§8 scenario 4): an
		// entity whose qualified name survives in the fresh extraction
		// keeps its previous id instead of being deleted and recreated
		// under a new one. idRemap carries the extractor's freshly
		// minted ids (used internally to link Contains/Calls edges to
		// ParentID/ChildIDs) to their final id.
		old, _ := s.entities.GetEntitiesByFile(cb.ID, relPath)
		oldIDByQualified := make(map[string]string, len(old))
		for _, e := range old {
			oldIDByQualified[e.QualifiedName] = e.ID
			s.searchEngine.Remove(cb.ID, e.ID)
		}
		removedIDs, _ := s.entities.DeleteEntitiesByFile(cb.ID, relPath)

		idRemap := make(map[string]string, len(result.Entities))
		reusedOldIDs := make(map[string]bool, len(result.Entities))
		for _, entity := range result.Entities {
			finalID := entity.ID
			if prevID, ok := oldIDByQualified[entity.QualifiedName]; ok {
				finalID = prevID
				reusedOldIDs[prevID] = true
			}
			idRemap[entity.ID] = finalID
		}

		// Entities genuinely gone from this file (not matched by
		// qualified name above) must have their embeddings dropped too,
		// or they leak as orphaned vectors (§3: deleting the entity
		// deletes the embedding).
		if s.vectors != nil {
			var trulyRemoved []string
			for _, id := range removedIDs {
				if !reusedOldIDs[id] {
					trulyRemoved = append(trulyRemoved, id)
				}
			}
			if len(trulyRemoved) > 0 {
				if err := s.vectors.DeleteByEntity(ctx, trulyRemoved); err != nil {
					job.AddFileError(models.FileError{FilePath: relPath, Message: err.Error()})
				}
			}
		}

		for _, entity := range result.Entities {
			entity.ID = idRemap[entity.ID]
			if entity.ParentID != "" {
				if mapped, ok := idRemap[entity.ParentID]; ok {
					entity.ParentID = mapped
				}
			}
			for i, cid := range entity.ChildIDs {
				if mapped, ok := idRemap[cid]; ok {
					entity.ChildIDs[i] = mapped
				}
			}
			entity.CodebaseID = cb.ID
			entity.FilePath = relPath
			if err := s.entities.SaveEntity(entity); err != nil {
				continue
			}
			s.searchEngine.Upsert(cb.ID, entity)
			embeddable = append(embeddable, entity)
		}
		for _, rel := range result.Relationships {
			rel.CodebaseID = cb.ID
			if mapped, ok := idRemap[rel.FromEntityID]; ok {
				rel.FromEntityID = mapped
			}
			if mapped, ok := idRemap[rel.ToEntityID]; ok {
				rel.ToEntityID = mapped
			}
			_ = s.entities.SaveRelationship(rel)
		}

		if err := s.fileHashes.Update(cb.ID, path, len(result.Entities)); err != nil {
			job.AddFileError(models.FileError{FilePath: relPath, Message: err.Error()})
		}

		if n := job.IncrProcessed(); n%s.cfg.CancelCheckEvery == 0 {
			job.TouchProgress()
		}
	}
	return embeddable, nil
}

// extractGuarded calls the extractor with panic recovery: a malformed
// file that crashes a tree-sitter parse must produce a Failed result for
// that one file, not abort the whole job (§4.9).
func (s *Scheduler) extractGuarded(codebaseID, relPath string, content []byte) (res *extractor.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.cfg.Logger.Error("panic extracting file", "file", relPath, "codebase_id", codebaseID, "panic", r)
			res = nil
			err = apperrors.Newf(apperrors.ParseError, "ERR_EXTRACT_PANIC", "panic extracting %s: %v", relPath, r)
		}
	}()
	return s.extractors.Extract(codebaseID, relPath, content)
}

// embeddingText is the text embedded for one entity: its qualified name,
// signature, and doc comment, the same fields the teacher's batcher fed
// to the embedding provider per chunk.
func embeddingText(e *models.CodeEntity) string {
	text := e.QualifiedName
	if e.Signature != "" {
		text += "\n" + e.Signature
	}
	if e.Documentation != "" {
		text += "\n" + e.Documentation
	}
	return text
}

// embedEntities generates and upserts embeddings for each entity's
// embeddingText using the scheduler's configured EmbeddingProvider and
// EmbeddingModel.
func (s *Scheduler) embedEntities(ctx context.Context, codebaseID string, entities []*models.CodeEntity) error {
	if len(entities) == 0 {
		return nil
	}
	texts := make([]string, len(entities))
	for i, e := range entities {
		texts[i] = embeddingText(e)
	}

	vecs, err := s.embeddings.Generate(ctx, s.cfg.EmbeddingProvider, s.cfg.EmbeddingModel, texts)
	if err != nil {
		return err
	}

	batch := make([]*models.Embedding, 0, len(entities))
	for i, e := range entities {
		if vecs[i] == nil {
			continue
		}
		batch = append(batch, &models.Embedding{
			ID:          uuid.New().String(),
			EntityID:    e.ID,
			ContentHash: embedding.ContentHash(s.cfg.EmbeddingModel, texts[i]),
			Model:       s.cfg.EmbeddingModel,
			Vector:      vecs[i],
			Dimension:   len(vecs[i]),
			CreatedAt:   time.Now(),
			Metadata:    map[string]any{"codebase_id": codebaseID},
		})
	}
	if len(batch) == 0 {
		return nil
	}
	return s.vectors.Upsert(ctx, batch)
}

// runFileReindex reindexes the specific files named in job.Metadata.FilePaths,
// skipping the hash-comparison fast path (a file reindex is always forced).
func (s *Scheduler) runFileReindex(ctx context.Context, job *models.IndexJob) error {
	s.setPhase(job, models.PhaseInitializing)
	cb, ok := s.Codebase(job.CodebaseID)
	if !ok {
		return apperrors.Newf(apperrors.NotFound, "ERR_CODEBASE_NOT_FOUND", "codebase %q is not registered", job.CodebaseID)
	}

	paths := make([]string, 0, len(job.Metadata.FilePaths))
	for _, rel := range job.Metadata.FilePaths {
		paths = append(paths, filepath.Join(cb.RootPath, rel))
	}
	job.SetTotalItems(len(paths))

	s.setPhase(job, models.PhaseParsing)
	embeddable, err := s.processFiles(ctx, job, cb, paths, false)
	if err != nil {
		return err
	}

	s.setPhase(job, models.PhaseGeneratingEmbedding)
	if job.Config.GenerateEmbeddings && s.embeddings != nil && s.vectors != nil {
		if err := s.embedEntities(ctx, cb.ID, embeddable); err != nil {
			return err
		}
	}

	s.setPhase(job, models.PhaseFinalizing)
	return s.fileHashes.Save(cb.ID)
}

// runCleanup removes a codebase's entities, embeddings, search index, and
// recorded file hashes entirely (models.JobCleanup).
func (s *Scheduler) runCleanup(ctx context.Context, job *models.IndexJob) error {
	s.setPhase(job, models.PhaseCleanup)

	entities, err := s.entities.GetEntitiesByCodebase(job.CodebaseID)
	if err != nil {
		return err
	}
	entityIDs := make([]string, len(entities))
	for i, e := range entities {
		entityIDs[i] = e.ID
		s.searchEngine.Remove(job.CodebaseID, e.ID)
	}
	if s.vectors != nil && len(entityIDs) > 0 {
		if err := s.vectors.DeleteByEntity(ctx, entityIDs); err != nil {
			return apperrors.Wrap(apperrors.IoError, "ERR_VECTOR_DELETE", err)
		}
	}

	if err := s.entities.DeleteByCodebase(job.CodebaseID); err != nil {
		return err
	}
	s.fileHashes.Clear(job.CodebaseID)
	s.mu.Lock()
	delete(s.codebases, job.CodebaseID)
	s.mu.Unlock()
	return nil
}
