package scheduler

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/codeintel-dev/codeintel-engine/internal/apperrors"
	"github.com/codeintel-dev/codeintel-engine/internal/cache"
	"github.com/codeintel-dev/codeintel-engine/internal/extractor"
	"github.com/codeintel-dev/codeintel-engine/internal/models"
	"github.com/codeintel-dev/codeintel-engine/internal/search"
	"github.com/codeintel-dev/codeintel-engine/internal/vectorstore"
)

// fakeVectorStore is a minimal vectorstore.Store (+ persister) stand-in
// that records which entity ids were deleted and can optionally panic on
// Save, so tests can exercise the orphan-vector cleanup and job-level
// panic-recovery paths without a real HNSW/Qdrant backend.
type fakeVectorStore struct {
	mu          sync.Mutex
	deleted     map[string]bool
	saveCount   int
	panicOnSave bool
}

func newFakeVectorStore() *fakeVectorStore {
	return &fakeVectorStore{deleted: make(map[string]bool)}
}

func (f *fakeVectorStore) Upsert(ctx context.Context, embeddings []*models.Embedding) error {
	return nil
}
func (f *fakeVectorStore) Get(ctx context.Context, id string) (*models.Embedding, bool, error) {
	return nil, false, nil
}
func (f *fakeVectorStore) Delete(ctx context.Context, ids []string) error { return nil }
func (f *fakeVectorStore) DeleteByEntity(ctx context.Context, entityIDs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range entityIDs {
		f.deleted[id] = true
	}
	return nil
}
func (f *fakeVectorStore) SearchSimilar(ctx context.Context, vector []float32, k int, codebaseID string) ([]vectorstore.Match, error) {
	return nil, nil
}
func (f *fakeVectorStore) Count(ctx context.Context) (int, error) { return 0, nil }
func (f *fakeVectorStore) Close() error                           { return nil }

// Save satisfies the scheduler's persister interface.
func (f *fakeVectorStore) Save() error {
	if f.panicOnSave {
		panic("simulated vector store failure")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saveCount++
	return nil
}

func (f *fakeVectorStore) wasDeleted(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.deleted[id]
}

func newTestScheduler(t *testing.T, vectors vectorstore.Store) *Scheduler {
	t.Helper()
	extractors, err := extractor.NewEngine()
	if err != nil {
		t.Fatalf("extractor.NewEngine: %v", err)
	}
	mem := cache.NewMemoryBackend(100, 0, models.EvictionLRU)
	cacheSvc, err := cache.NewService(map[string]cache.Backend{"memory": mem}, "memory")
	if err != nil {
		t.Fatalf("cache.NewService: %v", err)
	}
	searchEngine := search.NewEngine(nil, nil, cacheSvc, search.EngineConfig{})

	sched, err := New(extractors, nil, vectors, searchEngine, Config{
		Workers:       1,
		QueueCapacity: 10,
		FileHashDir:   t.TempDir(),
		RetryDelay:    10 * time.Millisecond,
		PollInterval:  5 * time.Millisecond,
		SweepInterval: time.Hour,
	})
	if err != nil {
		t.Fatalf("scheduler.New: %v", err)
	}
	return sched
}

// TestProcessFilesPreservesEntityIDAcrossReindex covers §8 scenario 4: a
// function that survives a content edit keeps its entity id, while a
// function removed from the file is both deregistered and has its
// embedding purged from the vector store (review comments #1 and #2).
func TestProcessFilesPreservesEntityIDAcrossReindex(t *testing.T) {
	store := newFakeVectorStore()
	sched := newTestScheduler(t, store)

	dir := t.TempDir()
	file := filepath.Join(dir, "sample.go")
	mustWrite(t, file, "package sample\n\nfunc Keep() int { return 1 }\n\nfunc Remove() int { return 2 }\n")

	cb := &models.Codebase{ID: "cb1", RootPath: dir}
	job := &models.IndexJob{ID: "j1", CodebaseID: "cb1"}

	first, err := sched.processFiles(context.Background(), job, cb, []string{file}, false)
	if err != nil {
		t.Fatalf("processFiles (first pass): %v", err)
	}

	var keepID, removeID string
	for _, e := range first {
		switch e.Name {
		case "Keep":
			keepID = e.ID
		case "Remove":
			removeID = e.ID
		}
	}
	if keepID == "" || removeID == "" {
		t.Fatalf("expected both Keep and Remove entities in the first pass, got %+v", first)
	}

	mustWrite(t, file, "package sample\n\nfunc Keep() int { return 1 }\n")

	second, err := sched.processFiles(context.Background(), job, cb, []string{file}, false)
	if err != nil {
		t.Fatalf("processFiles (second pass): %v", err)
	}
	if len(second) != 1 || second[0].Name != "Keep" {
		t.Fatalf("expected only Keep to survive the second pass, got %+v", second)
	}
	if second[0].ID != keepID {
		t.Fatalf("expected Keep's entity id to be preserved across reindex, got %q want %q", second[0].ID, keepID)
	}

	if !store.wasDeleted(removeID) {
		t.Fatalf("expected Remove's embedding to be purged from the vector store once it disappeared from the file")
	}
	if store.wasDeleted(keepID) {
		t.Fatalf("Keep's embedding should not be deleted, its id was reused across reindex")
	}

	remaining, err := sched.entities.GetEntitiesByFile(cb.ID, "sample.go")
	if err != nil {
		t.Fatalf("GetEntitiesByFile: %v", err)
	}
	if len(remaining) != 1 || remaining[0].ID != keepID {
		t.Fatalf("expected only Keep to remain in the entity store, got %+v", remaining)
	}
}

// TestExtractGuardedRecoversExtractorPanic covers review comment #3: a
// panic inside extraction must surface as a per-file error rather than
// crashing the worker goroutine.
func TestExtractGuardedRecoversExtractorPanic(t *testing.T) {
	sched := newTestScheduler(t, newFakeVectorStore())
	sched.extractors = nil // guaranteed to panic: Extract dereferences its receiver

	res, err := sched.extractGuarded("cb1", "sample.go", []byte("package sample\n"))
	if err == nil {
		t.Fatalf("expected the recovered panic to surface as an error")
	}
	if res != nil {
		t.Fatalf("expected a nil result alongside the recovered error, got %+v", res)
	}
	if apperrors.KindOf(err) != apperrors.ParseError {
		t.Fatalf("expected ParseError kind for a recovered extraction panic, got %v", apperrors.KindOf(err))
	}
}

// TestRunJobGuardedRecoversJobLevelPanic covers the job-level half of
// comment #3: a panic anywhere else in a job's phase sequence (here, the
// vector store's Save during BuildingIndexes) must fail the job instead
// of taking down the reactor loop.
func TestRunJobGuardedRecoversJobLevelPanic(t *testing.T) {
	store := newFakeVectorStore()
	store.panicOnSave = true
	sched := newTestScheduler(t, store)

	dir := t.TempDir()
	mustWrite(t, filepath.Join(dir, "sample.go"), "package sample\n\nfunc F() int { return 1 }\n")
	cb := &models.Codebase{ID: "cb1", RootPath: dir}
	sched.RegisterCodebase(cb)

	job := &models.IndexJob{ID: "j1", CodebaseID: "cb1", Config: models.JobConfig{MaxRetries: 1}}
	err := sched.runJobGuarded(context.Background(), job)
	if err == nil {
		t.Fatalf("expected the panicking Save call to surface as an error")
	}

	snap := job.Snapshot()
	if snap.Status != models.JobFailed {
		t.Fatalf("expected the job to be marked Failed after a panic, got %s", snap.Status)
	}
	if snap.Error == nil || snap.Error.Recoverable {
		t.Fatalf("expected a non-recoverable job error recorded, got %+v", snap.Error)
	}
}

// TestRetryOrFinalizeRequeuesRecoverableFailure covers review comment #4:
// a recoverable worker error requeues the job with an incremented retry
// count, wiring workerpool.Pool's Fail/Recover into real use.
func TestRetryOrFinalizeRequeuesRecoverableFailure(t *testing.T) {
	sched := newTestScheduler(t, newFakeVectorStore())
	job := &models.IndexJob{ID: "j1", CodebaseID: "cb1", Config: models.JobConfig{MaxRetries: 2}}
	recoverableErr := apperrors.New(apperrors.IoError, "ERR_IO", "transient read failure", nil)

	sched.retryOrFinalize(context.Background(), job, recoverableErr)

	if got := job.StatusSnapshot(); got != models.JobRetrying {
		t.Fatalf("expected job status Retrying immediately after a recoverable failure, got %s", got)
	}

	deadline := time.After(500 * time.Millisecond)
	for sched.QueueSize() == 0 {
		select {
		case <-deadline:
			t.Fatalf("job was never requeued after RetryDelay elapsed")
		case <-time.After(5 * time.Millisecond):
		}
	}

	if got := job.StatusSnapshot(); got != models.JobQueued {
		t.Fatalf("expected job status Queued once requeued, got %s", got)
	}
	if got := job.Snapshot().Stats.RetryCount; got != 1 {
		t.Fatalf("expected retry count 1, got %d", got)
	}
}

// TestRetryOrFinalizeStopsAtMaxRetries covers the other half of comment
// #4: once retry_count reaches max_retries the job is left Failed and is
// not requeued.
func TestRetryOrFinalizeStopsAtMaxRetries(t *testing.T) {
	sched := newTestScheduler(t, newFakeVectorStore())
	job := &models.IndexJob{ID: "j1", CodebaseID: "cb1", Config: models.JobConfig{MaxRetries: 1}}
	job.IncrRetries() // already exhausted its one retry
	job.SetStatus(models.JobFailed)

	recoverableErr := apperrors.New(apperrors.IoError, "ERR_IO", "transient read failure", nil)
	sched.retryOrFinalize(context.Background(), job, recoverableErr)

	time.Sleep(30 * time.Millisecond)
	if sched.QueueSize() != 0 {
		t.Fatalf("expected the job not to be requeued once retries are exhausted")
	}
	if got := job.StatusSnapshot(); got != models.JobFailed {
		t.Fatalf("expected job to remain Failed, got %s", got)
	}
}

// TestRunCleanupRemovesEntitiesAndEmbeddings exercises runCleanup end to
// end: entities, their embeddings, and the registered codebase are all
// gone afterward.
func TestRunCleanupRemovesEntitiesAndEmbeddings(t *testing.T) {
	store := newFakeVectorStore()
	sched := newTestScheduler(t, store)

	dir := t.TempDir()
	mustWrite(t, filepath.Join(dir, "sample.go"), "package sample\n\nfunc F() int { return 1 }\n")
	cb := &models.Codebase{ID: "cb1", RootPath: dir}
	sched.RegisterCodebase(cb)

	job := &models.IndexJob{ID: "j1", CodebaseID: "cb1"}
	if _, err := sched.processFiles(context.Background(), job, cb, []string{filepath.Join(dir, "sample.go")}, false); err != nil {
		t.Fatalf("processFiles: %v", err)
	}

	entities, err := sched.entities.GetEntitiesByCodebase("cb1")
	if err != nil || len(entities) == 0 {
		t.Fatalf("expected at least one entity before cleanup, got %+v (err=%v)", entities, err)
	}
	entityID := entities[0].ID

	cleanupJob := &models.IndexJob{ID: "j2", CodebaseID: "cb1"}
	if err := sched.runCleanup(context.Background(), cleanupJob); err != nil {
		t.Fatalf("runCleanup: %v", err)
	}

	remaining, err := sched.entities.GetEntitiesByCodebase("cb1")
	if err != nil {
		t.Fatalf("GetEntitiesByCodebase after cleanup: %v", err)
	}
	if len(remaining) != 0 {
		t.Fatalf("expected no entities left after cleanup, got %+v", remaining)
	}
	if !store.wasDeleted(entityID) {
		t.Fatalf("expected the entity's embedding to be deleted by cleanup")
	}
	if _, ok := sched.Codebase("cb1"); ok {
		t.Fatalf("expected the codebase to be deregistered after cleanup")
	}
}

// TestSchedulerRunIndexesSubmittedJob is the end-to-end orchestration
// test: Submit a full-index job, drive it through Run's reactor loop, and
// confirm the file's entities land in the search index.
func TestSchedulerRunIndexesSubmittedJob(t *testing.T) {
	sched := newTestScheduler(t, newFakeVectorStore())

	dir := t.TempDir()
	mustWrite(t, filepath.Join(dir, "sample.go"), "package sample\n\nfunc Handler() int { return 1 }\n")
	cb := &models.Codebase{ID: "cb1", RootPath: dir}
	sched.RegisterCodebase(cb)

	job := &models.IndexJob{CodebaseID: "cb1", Kind: models.JobFullIndex}
	if err := sched.Submit(job); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan error, 1)
	runCtx, runCancel := context.WithCancel(ctx)
	defer runCancel()
	go func() { done <- sched.Run(runCtx) }()

	deadline := time.After(1500 * time.Millisecond)
	for {
		if job.StatusSnapshot() == models.JobCompleted {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("job never completed, status=%s", job.StatusSnapshot())
		case <-time.After(10 * time.Millisecond):
		}
	}
	runCancel()
	<-done

	resp, err := sched.searchEngine.Search(context.Background(), search.Query{
		Text: "Handler", Type: search.QueryExact, CodebaseID: "cb1",
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(resp.Results) != 1 {
		t.Fatalf("expected the indexed Handler function to be searchable, got %+v", resp.Results)
	}
}
