package models

import (
	"sync"
	"time"
)

// JobKind is the kind of work an IndexJob performs.
type JobKind string

const (
	JobFullIndex           JobKind = "full_index"
	JobIncrementalIndex    JobKind = "incremental_index"
	JobFileReindex         JobKind = "file_reindex"
	JobEmbeddingGeneration JobKind = "embedding_generation"
	JobOptimization        JobKind = "optimization"
	JobCleanup             JobKind = "cleanup"
	JobValidation          JobKind = "validation"
)

// JobStatus is the lifecycle state of an IndexJob.
// Queued -> Running -> {Completed|Failed|Cancelled}; Failed -> Retrying when
// retry_count < max_retries and the error is recoverable.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
	JobPaused    JobStatus = "paused"
	JobRetrying  JobStatus = "retrying"
)

// Priority is the enum form of job priority (the spec's resolution of its
// "u8 vs enum" open question). Ordered Low < Normal < High < Critical <
// Emergency; Critical and Emergency share the job queue's High bucket but
// compare ahead of plain High jobs within it.
type Priority int

const (
	PriorityLow Priority = iota + 1
	PriorityNormal
	PriorityHigh
	PriorityCritical
	PriorityEmergency
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	case PriorityEmergency:
		return "emergency"
	default:
		return "unknown"
	}
}

// Phase is a step of a job's lifecycle. Phases are monotonic within one run,
// though entering Retrying resets the sequence.
type Phase string

const (
	PhaseInitializing        Phase = "initializing"
	PhaseScanning            Phase = "scanning"
	PhaseParsing             Phase = "parsing"
	PhaseAnalyzing           Phase = "analyzing"
	PhaseGeneratingEmbedding Phase = "generating_embeddings"
	PhaseBuildingIndexes     Phase = "building_indexes"
	PhaseOptimizing          Phase = "optimizing"
	PhaseFinalizing          Phase = "finalizing"
	PhaseCleanup             Phase = "cleanup"
)

// phaseOrder gives each phase its position for monotonicity checks.
var phaseOrder = map[Phase]int{
	PhaseInitializing:        0,
	PhaseScanning:            1,
	PhaseParsing:             2,
	PhaseAnalyzing:           3,
	PhaseGeneratingEmbedding: 4,
	PhaseBuildingIndexes:     5,
	PhaseOptimizing:          6,
	PhaseFinalizing:          7,
	PhaseCleanup:             8,
}

// Before reports whether p comes strictly before other in phase order.
func (p Phase) Before(other Phase) bool {
	return phaseOrder[p] < phaseOrder[other]
}

// JobConfig configures how a single job runs.
type JobConfig struct {
	BatchSize          int           `json:"batch_size"`
	WorkerCount        int           `json:"worker_count"`
	MaxFileSizeBytes   int64         `json:"max_file_size_bytes"`
	IncludePatterns    []string      `json:"include_patterns"`
	ExcludePatterns    []string      `json:"exclude_patterns"`
	FollowSymlinks     bool          `json:"follow_symlinks"`
	GenerateEmbeddings bool          `json:"generate_embeddings"`
	MaxRetries         int           `json:"max_retries"`
	Timeout            time.Duration `json:"timeout"`
}

// JobProgress tracks a running job's advancement.
type JobProgress struct {
	TotalItems      int       `json:"total_items"`
	ProcessedItems  int       `json:"processed_items"`
	FailedItems     int       `json:"failed_items"`
	SkippedItems    int       `json:"skipped_items"`
	Percentage      float64   `json:"percentage"`
	CurrentPhase    Phase     `json:"current_phase"`
	ProcessingRate  float64   `json:"processing_rate"` // items/sec
	ETA             time.Duration `json:"eta"`
}

// Recompute derives Percentage, ProcessingRate, and ETA from the item
// counters and elapsed wall time.
func (p *JobProgress) Recompute(elapsed time.Duration) {
	if p.TotalItems > 0 {
		done := p.ProcessedItems + p.FailedItems + p.SkippedItems
		p.Percentage = 100 * float64(done) / float64(p.TotalItems)
	}
	secs := elapsed.Seconds()
	if secs > 0 {
		p.ProcessingRate = float64(p.ProcessedItems) / secs
	}
	if p.ProcessingRate > 0 {
		remaining := p.TotalItems - (p.ProcessedItems + p.FailedItems + p.SkippedItems)
		if remaining < 0 {
			remaining = 0
		}
		p.ETA = time.Duration(float64(remaining)/p.ProcessingRate) * time.Second
	}
}

// PhaseTiming records the wall time spent in one phase.
type PhaseTiming struct {
	Phase    Phase         `json:"phase"`
	Duration time.Duration `json:"duration"`
}

// JobStats accumulates completed-or-failed job statistics.
type JobStats struct {
	WallTime      time.Duration `json:"wall_time"`
	PhaseTimes    []PhaseTiming `json:"phase_times"`
	BytesProcessed int64        `json:"bytes_processed"`
	PeakMemoryBytes int64       `json:"peak_memory_bytes"`
	RetryCount    int           `json:"retry_count"`
	CacheHitRatio float64       `json:"cache_hit_ratio"`
}

// JobError is the terminal error descriptor attached to a Failed job.
type JobError struct {
	Kind        string    `json:"kind"`
	Message     string    `json:"message"`
	FilePath    string    `json:"file_path,omitempty"`
	Recoverable bool      `json:"recoverable"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// FileError is a per-file error recorded without aborting the job.
type FileError struct {
	FilePath string `json:"file_path"`
	Message  string `json:"message"`
}

// JobMetadata carries free-form request context threaded through a job run.
type JobMetadata struct {
	RequestedBy      string            `json:"requested_by,omitempty"`
	ForceReindex     bool              `json:"force_reindex"`
	UpdateExisting   bool              `json:"update_existing"`
	FilePaths        []string          `json:"file_paths,omitempty"`
	Extra            map[string]string `json:"extra,omitempty"`
}

// IndexJob is a unit of work submitted to the scheduler, bound to one
// codebase. The scheduler's reactor goroutine mutates Status, Progress,
// Stats, Error, FileErrors, StartedAt, and CompletedAt while the job runs;
// callers elsewhere (the MCP server, CLI commands) poll the same pointer
// concurrently, so every read or write of those fields after Submit goes
// through mu via the methods below rather than touching the fields
// directly. ID/CodebaseID/Kind/Priority/Config/Metadata/Dependencies/
// CreatedAt are fixed at submission time and never mutated afterward, so
// they remain plain fields.
type IndexJob struct {
	mu sync.RWMutex

	ID           string      `json:"id"`
	CodebaseID   string      `json:"codebase_id"`
	Kind         JobKind     `json:"kind"`
	Priority     Priority    `json:"priority"`
	Status       JobStatus   `json:"status"`
	Config       JobConfig   `json:"config"`
	Progress     JobProgress `json:"progress"`
	Stats        JobStats    `json:"stats"`
	Metadata     JobMetadata `json:"metadata"`
	Error        *JobError   `json:"error,omitempty"`
	FileErrors   []FileError `json:"file_errors,omitempty"`
	Dependencies []string    `json:"dependencies,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
	StartedAt    *time.Time  `json:"started_at,omitempty"`
	CompletedAt  *time.Time  `json:"completed_at,omitempty"`
	Cancelled    bool        `json:"-"`
}

// JobSnapshot is a value-copy of an IndexJob's live state, safe to read
// after the lock guarding the original has been released.
type JobSnapshot struct {
	ID          string
	Status      JobStatus
	Progress    JobProgress
	Stats       JobStats
	Error       *JobError
	FileErrors  []FileError
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// Snapshot copies j's mutable fields under a read lock. Use this (rather
// than reading j's fields directly) from any goroutine other than the one
// driving the job, e.g. status-reporting callers.
func (j *IndexJob) Snapshot() JobSnapshot {
	j.mu.RLock()
	defer j.mu.RUnlock()
	fileErrors := make([]FileError, len(j.FileErrors))
	copy(fileErrors, j.FileErrors)
	return JobSnapshot{
		ID:          j.ID,
		Status:      j.Status,
		Progress:    j.Progress,
		Stats:       j.Stats,
		Error:       j.Error,
		FileErrors:  fileErrors,
		StartedAt:   j.StartedAt,
		CompletedAt: j.CompletedAt,
	}
}

// StatusSnapshot returns just the current status under a read lock, the
// cheap poll WaitForJob needs.
func (j *IndexJob) StatusSnapshot() JobStatus {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status
}

// Begin marks the job Running and records its start time.
func (j *IndexJob) Begin(start time.Time) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Status = JobRunning
	j.StartedAt = &start
}

// Finish marks the job's terminal status, recording wall time (derived
// from StartedAt) and an optional terminal error.
func (j *IndexJob) Finish(status JobStatus, jobErr *JobError, completed time.Time) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Status = status
	j.CompletedAt = &completed
	if j.StartedAt != nil {
		j.Stats.WallTime = completed.Sub(*j.StartedAt)
	}
	j.Error = jobErr
}

// SetPhase advances the job's current phase and recomputes progress
// percentage/rate/ETA from elapsed wall time.
func (j *IndexJob) SetPhase(phase Phase) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress.CurrentPhase = phase
	if j.StartedAt != nil {
		j.Progress.Recompute(time.Since(*j.StartedAt))
	}
}

// SetStatus sets the job's status directly, used by the scheduler's
// retry path to move a job through Failed -> Retrying -> Queued without
// going through Begin/Finish.
func (j *IndexJob) SetStatus(status JobStatus) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Status = status
}

// TouchProgress recomputes percentage/rate/ETA from the current item
// counters and elapsed wall time without changing CurrentPhase, the
// periodic refresh processFiles drives between phase boundaries.
func (j *IndexJob) TouchProgress() {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.StartedAt != nil {
		j.Progress.Recompute(time.Since(*j.StartedAt))
	}
}

// SetTotalItems records the total item count a phase will process.
func (j *IndexJob) SetTotalItems(n int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress.TotalItems = n
}

// IncrProcessed increments the processed-item counter and returns its new
// value, so callers can gate periodic work (progress recompute,
// cancellation checks) on it without taking a second lock.
func (j *IndexJob) IncrProcessed() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress.ProcessedItems++
	return j.Progress.ProcessedItems
}

// IncrSkipped increments the skipped-item counter.
func (j *IndexJob) IncrSkipped() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress.SkippedItems++
}

// IncrFailed increments the failed-item counter.
func (j *IndexJob) IncrFailed() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress.FailedItems++
}

// IncrRetries increments the job's retry counter.
func (j *IndexJob) IncrRetries() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Stats.RetryCount++
}

// AddFileError appends a per-file error without aborting the job.
func (j *IndexJob) AddFileError(fe FileError) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.FileErrors = append(j.FileErrors, fe)
}

// IsCancelled reports whether cooperative cancellation has been
// requested.
func (j *IndexJob) IsCancelled() bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Cancelled
}

// Cancel requests cooperative cancellation; the scheduler observes it at
// the next phase boundary or per-file checkpoint.
func (j *IndexJob) Cancel() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Cancelled = true
}

// ScheduleType is how a recurring job's next run is computed.
type ScheduleType string

const (
	ScheduleOnce     ScheduleType = "once"
	ScheduleInterval ScheduleType = "interval"
	ScheduleCron     ScheduleType = "cron"
	ScheduleDaily    ScheduleType = "daily"
	ScheduleWeekly   ScheduleType = "weekly"
	ScheduleMonthly  ScheduleType = "monthly"
)

// Schedule describes how often a recurring job template re-fires.
type Schedule struct {
	Type     ScheduleType  `json:"type"`
	Interval time.Duration `json:"interval,omitempty"` // used when Type == ScheduleInterval
	Cron     string        `json:"cron,omitempty"`     // used when Type == ScheduleCron
	At       time.Time     `json:"at,omitempty"`        // time-of-day anchor for Daily/Weekly/Monthly
}
