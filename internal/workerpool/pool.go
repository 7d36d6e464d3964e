// Package workerpool implements the fixed-size worker pool of §4.2: worker
// slots assigned round-robin over Idle workers, a per-worker concurrency
// cap, running-mean processing time, and the Idle/Busy/Paused/Offline/
// Error/Maintenance status taxonomy.
//
// Grounded on the teacher's processFilesInParallel channel/WaitGroup shape
// (internal/indexer/indexer.go) for the concurrency pattern, generalized
// from an anonymous goroutine pool to addressable, inspectable worker
// slots as original_source/rust-core/crates/core/src/services/job_service.rs's
// WorkerInfo models them. Library: golang.org/x/sync/errgroup for the
// bounded-concurrency task runner.
package workerpool

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Status is the lifecycle state of one worker slot.
type Status string

const (
	Idle        Status = "idle"
	Busy        Status = "busy"
	Paused      Status = "paused"
	Offline     Status = "offline"
	Error       Status = "error"
	Maintenance Status = "maintenance"
)

// Worker is one addressable slot in the pool.
type Worker struct {
	mu sync.Mutex

	ID         int
	Status     Status
	CurrentJob string

	Total      int64
	Successful int64
	Failed     int64

	meanNanos float64
	cap       int
	inFlight  int
}

func newWorker(id, perWorkerCap int) *Worker {
	if perWorkerCap <= 0 {
		perWorkerCap = 1
	}
	return &Worker{ID: id, Status: Idle, cap: perWorkerCap}
}

// Snapshot is an immutable copy of a worker's observable state.
type Snapshot struct {
	ID             int
	Status         Status
	CurrentJob     string
	Total          int64
	Successful     int64
	Failed         int64
	MeanProcessing time.Duration
}

func (w *Worker) snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	return Snapshot{
		ID:             w.ID,
		Status:         w.Status,
		CurrentJob:     w.CurrentJob,
		Total:          w.Total,
		Successful:     w.Successful,
		Failed:         w.Failed,
		MeanProcessing: time.Duration(w.meanNanos),
	}
}

// recordResult folds one task's outcome into the running mean.
func (w *Worker) recordResult(ok bool, elapsed time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.Total++
	if ok {
		w.Successful++
	} else {
		w.Failed++
	}
	n := float64(w.Total)
	w.meanNanos += (float64(elapsed) - w.meanNanos) / n
}

// Pool is a fixed-size set of worker slots, assigned round-robin.
type Pool struct {
	mu      sync.Mutex
	workers []*Worker
	next    int
}

// New creates a pool of size workers, each capped at perWorkerCap
// concurrent jobs (default from config is 1, per §4.2).
func New(size, perWorkerCap int) *Pool {
	if size <= 0 {
		size = 1
	}
	p := &Pool{workers: make([]*Worker, size)}
	for i := range p.workers {
		p.workers[i] = newWorker(i, perWorkerCap)
	}
	return p
}

// ErrNoIdleWorker is returned by Claim when every worker is at capacity.
type ErrNoIdleWorker struct{}

func (ErrNoIdleWorker) Error() string { return "no idle worker available" }

// Claim assigns the next idle worker (strict round-robin starting from the
// slot after the last claim) to jobID and returns it. A worker remains
// eligible for further claims up to its per-worker cap.
func (p *Pool) Claim(jobID string) (*Worker, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(p.workers)
	for i := 0; i < n; i++ {
		idx := (p.next + i) % n
		w := p.workers[idx]

		w.mu.Lock()
		eligible := (w.Status == Idle || w.Status == Busy) && w.inFlight < w.cap
		if eligible {
			w.inFlight++
			w.CurrentJob = jobID
			w.Status = Busy
			w.mu.Unlock()
			p.next = (idx + 1) % n
			return w, nil
		}
		w.mu.Unlock()
	}
	return nil, ErrNoIdleWorker{}
}

// Release frees one in-flight slot on w, recording the outcome. Once
// in-flight drops to zero the worker returns to Idle.
func (p *Pool) Release(w *Worker, ok bool, elapsed time.Duration) {
	w.recordResult(ok, elapsed)

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.inFlight > 0 {
		w.inFlight--
	}
	if w.inFlight == 0 {
		w.Status = Idle
		w.CurrentJob = ""
	}
}

// Fail transitions w to Error status; the scheduler is responsible for
// requeuing w.CurrentJob with an incremented retry count.
func (p *Pool) Fail(w *Worker) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.Status = Error
	w.inFlight = 0
}

// Recover transitions a worker out of Error back to Idle, e.g. after the
// scheduler has requeued its job.
func (p *Pool) Recover(w *Worker) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.Status = Idle
	w.CurrentJob = ""
}

// SetPaused toggles a worker between Paused and Idle for maintenance windows.
func (p *Pool) SetPaused(w *Worker, paused bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if paused {
		w.Status = Paused
	} else if w.inFlight == 0 {
		w.Status = Idle
	}
}

// Size returns the number of worker slots.
func (p *Pool) Size() int { return len(p.workers) }

// ActiveWorkers counts workers with at least one in-flight job.
func (p *Pool) ActiveWorkers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	active := 0
	for _, w := range p.workers {
		w.mu.Lock()
		if w.inFlight > 0 {
			active++
		}
		w.mu.Unlock()
	}
	return active
}

// Utilization returns active/max, always in [0,1].
func (p *Pool) Utilization() float64 {
	max := p.Size()
	if max == 0 {
		return 0
	}
	return float64(p.ActiveWorkers()) / float64(max)
}

// Stats returns a snapshot of every worker slot.
func (p *Pool) Stats() []Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Snapshot, len(p.workers))
	for i, w := range p.workers {
		out[i] = w.snapshot()
	}
	return out
}

// Run drives fn for each item in items using an errgroup bounded to the
// pool's size, honouring ctx cancellation. It does not touch worker slot
// bookkeeping directly — callers that want per-slot accounting should
// Claim/Release around fn themselves; Run is the lighter-weight path used
// for phases (scanning, embedding batches) that don't need per-file retry
// semantics.
func Run[T any](ctx context.Context, concurrency int, items []T, fn func(context.Context, T) error) error {
	if concurrency <= 0 {
		concurrency = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, item := range items {
		item := item
		g.Go(func() error {
			return fn(gctx, item)
		})
	}
	return g.Wait()
}
