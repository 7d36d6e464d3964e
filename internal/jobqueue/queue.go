// Package jobqueue implements the priority job queue described in §4.1:
// three FIFO buckets keyed by priority, dependency gating at pop time,
// a delayed-job sweeper, and recurring jobs that Sweep re-enqueues once
// their NextRun arrives. NextRun advances when a template fires; the
// completion of the previous run plays no part in it.
//
// Grounded on original_source/rust-core/crates/core/src/services/job_service.rs,
// whose JobQueue/DelayedJob/RecurringJob/Schedule shapes the teacher's own
// synchronous indexer has no equivalent of.
package jobqueue

import (
	"container/list"
	"sync"
	"time"

	"github.com/codeintel-dev/codeintel-engine/internal/apperrors"
	"github.com/codeintel-dev/codeintel-engine/internal/models"
	"github.com/google/uuid"
)

func newJobID() string { return uuid.New().String() }

// bucket is a FIFO of jobs; Critical/Emergency jobs are inserted ahead of
// plain entries already in the bucket (stable insertion-order within equal
// priority), per DESIGN.md's Open Question resolution.
type bucket struct {
	list *list.List // of *models.IndexJob
}

func newBucket() *bucket { return &bucket{list: list.New()} }

func (b *bucket) pushBack(job *models.IndexJob) {
	b.list.PushBack(job)
}

// pushOrdered inserts high-priority jobs (Critical/Emergency) ahead of
// lower-priority ones already queued in the same High bucket.
func (b *bucket) pushOrdered(job *models.IndexJob) {
	for e := b.list.Front(); e != nil; e = e.Next() {
		existing := e.Value.(*models.IndexJob)
		if job.Priority > existing.Priority {
			b.list.InsertBefore(job, e)
			return
		}
	}
	b.list.PushBack(job)
}

// DelayedJob is a job scheduled to become eligible at ExecuteAt.
type DelayedJob struct {
	Job       *models.IndexJob
	ExecuteAt time.Time
}

// RecurringJob re-enqueues a fresh copy of Template on its own schedule.
type RecurringJob struct {
	Template *models.IndexJob
	Schedule models.Schedule
	NextRun  time.Time
}

// Queue is the engine's priority job queue. Safe for concurrent use.
type Queue struct {
	mu sync.Mutex

	high   *bucket
	normal *bucket
	low    *bucket

	jobsByID map[string]*models.IndexJob

	delayed   []DelayedJob
	recurring map[string]*RecurringJob

	capacity int
	size     int
}

// New creates an empty queue bounded at capacity (§5 backpressure: enqueue
// beyond capacity fails with QueueFull).
func New(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 10000
	}
	return &Queue{
		high:      newBucket(),
		normal:    newBucket(),
		low:       newBucket(),
		jobsByID:  make(map[string]*models.IndexJob),
		recurring: make(map[string]*RecurringJob),
		capacity:  capacity,
	}
}

func (q *Queue) bucketFor(p models.Priority) *bucket {
	switch {
	case p >= models.PriorityHigh:
		return q.high
	case p == models.PriorityNormal:
		return q.normal
	default:
		return q.low
	}
}

// Enqueue adds job to the bucket matching its priority: an O(1) append for
// Normal and Low, an ordered insert that scans the High bucket for High and
// above.
func (q *Queue) Enqueue(job *models.IndexJob) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.size >= q.capacity {
		return apperrors.New(apperrors.QueueFull, "ERR_QUEUE_FULL", "job queue at capacity", nil).
			WithDetail("capacity", itoa(q.capacity))
	}

	b := q.bucketFor(job.Priority)
	if job.Priority >= models.PriorityHigh {
		b.pushOrdered(job)
	} else {
		b.pushBack(job)
	}
	q.jobsByID[job.ID] = job
	q.size++
	return nil
}

// Pop scans High, then Normal, then Low and returns the first job whose
// Dependencies list is empty. Jobs with unmet dependencies stay queued.
func (q *Queue) Pop() *models.IndexJob {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, b := range []*bucket{q.high, q.normal, q.low} {
		for e := b.list.Front(); e != nil; e = e.Next() {
			job := e.Value.(*models.IndexJob)
			if len(job.Dependencies) == 0 {
				b.list.Remove(e)
				delete(q.jobsByID, job.ID)
				q.size--
				return job
			}
		}
	}
	return nil
}

// MarkCompleted removes jobID from every other queued job's dependency
// list. Jobs whose dependency list becomes empty are eligible on the next
// Pop.
func (q *Queue) MarkCompleted(jobID string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, b := range []*bucket{q.high, q.normal, q.low} {
		for e := b.list.Front(); e != nil; e = e.Next() {
			job := e.Value.(*models.IndexJob)
			job.Dependencies = removeString(job.Dependencies, jobID)
		}
	}
}

// ScheduleDelayed records (job, executeAt) for later promotion by Sweep.
func (q *Queue) ScheduleDelayed(job *models.IndexJob, executeAt time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.delayed = append(q.delayed, DelayedJob{Job: job, ExecuteAt: executeAt})
}

// ScheduleRecurring registers a recurring job template.
func (q *Queue) ScheduleRecurring(id string, template *models.IndexJob, schedule models.Schedule, firstRun time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.recurring[id] = &RecurringJob{Template: template, Schedule: schedule, NextRun: firstRun}
}

// Sweep promotes expired delayed jobs into the main buckets and fires any
// recurring job templates whose NextRun has arrived. Intended to be called
// periodically by the scheduler's reactor loop.
func (q *Queue) Sweep(now time.Time) {
	q.mu.Lock()
	remaining := q.delayed[:0]
	toEnqueue := make([]*models.IndexJob, 0)
	for _, d := range q.delayed {
		if now.Before(d.ExecuteAt) {
			remaining = append(remaining, d)
			continue
		}
		toEnqueue = append(toEnqueue, d.Job)
	}
	q.delayed = remaining

	for id, r := range q.recurring {
		if now.Before(r.NextRun) {
			continue
		}
		// A fresh IndexJob, not a shallow copy of the template: the
		// template's own Progress/Stats/FileErrors belong to whichever
		// run produced them and must not carry forward, and IndexJob
		// embeds a mutex that must never be copied.
		next := &models.IndexJob{
			ID:         newJobID(),
			CodebaseID: r.Template.CodebaseID,
			Kind:       r.Template.Kind,
			Priority:   r.Template.Priority,
			Status:     models.JobQueued,
			Config:     r.Template.Config,
			Metadata:   r.Template.Metadata,
			CreatedAt:  now,
		}
		toEnqueue = append(toEnqueue, next)
		if r.Schedule.Type == models.ScheduleOnce {
			delete(q.recurring, id)
			continue
		}
		r.NextRun = nextRun(r.Schedule, now)
	}
	q.mu.Unlock()

	for _, job := range toEnqueue {
		_ = q.Enqueue(job)
	}
}

// Size returns the number of jobs currently queued across all buckets
// (never negative, per §8's invariant on queue state).
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

func removeString(items []string, target string) []string {
	out := items[:0]
	for _, it := range items {
		if it != target {
			out = append(out, it)
		}
	}
	return out
}

func nextRun(s models.Schedule, from time.Time) time.Time {
	switch s.Type {
	case models.ScheduleInterval:
		return from.Add(s.Interval)
	case models.ScheduleDaily:
		return from.Add(24 * time.Hour)
	case models.ScheduleWeekly:
		return from.Add(7 * 24 * time.Hour)
	case models.ScheduleMonthly:
		return from.AddDate(0, 1, 0)
	default: // Cron: the expression in s.Cron is not parsed; the job fires every 24 hours
		return from.Add(24 * time.Hour)
	}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
