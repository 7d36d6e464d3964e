package jobqueue

import (
	"testing"
	"time"

	"github.com/codeintel-dev/codeintel-engine/internal/models"
)

func newTestJob(id string, priority models.Priority) *models.IndexJob {
	return &models.IndexJob{
		ID:        id,
		Priority:  priority,
		Status:    models.JobQueued,
		CreatedAt: time.Now(),
	}
}

func TestPopRespectsBucketOrder(t *testing.T) {
	q := New(10)
	_ = q.Enqueue(newTestJob("low-1", models.PriorityLow))
	_ = q.Enqueue(newTestJob("normal-1", models.PriorityNormal))
	_ = q.Enqueue(newTestJob("high-1", models.PriorityHigh))

	got := q.Pop()
	if got == nil || got.ID != "high-1" {
		t.Fatalf("expected high-1 first, got %+v", got)
	}
	got = q.Pop()
	if got == nil || got.ID != "normal-1" {
		t.Fatalf("expected normal-1 second, got %+v", got)
	}
	got = q.Pop()
	if got == nil || got.ID != "low-1" {
		t.Fatalf("expected low-1 third, got %+v", got)
	}
}

func TestPopNeverReturnsJobWithDependencies(t *testing.T) {
	q := New(10)
	blocked := newTestJob("blocked", models.PriorityHigh)
	blocked.Dependencies = []string{"missing"}
	_ = q.Enqueue(blocked)
	_ = q.Enqueue(newTestJob("free", models.PriorityNormal))

	got := q.Pop()
	if got == nil || got.ID != "free" {
		t.Fatalf("expected free job to be returned ahead of blocked, got %+v", got)
	}
	if q.Pop() != nil {
		t.Fatalf("expected no further eligible job while blocked remains unmet")
	}
}

func TestMarkCompletedUnblocksDependents(t *testing.T) {
	q := New(10)
	dependent := newTestJob("dependent", models.PriorityHigh)
	dependent.Dependencies = []string{"prereq"}
	_ = q.Enqueue(dependent)

	if q.Pop() != nil {
		t.Fatalf("dependent should not be eligible before MarkCompleted")
	}

	q.MarkCompleted("prereq")

	got := q.Pop()
	if got == nil || got.ID != "dependent" {
		t.Fatalf("expected dependent job to become eligible, got %+v", got)
	}
}

func TestEnqueueRejectsOverCapacity(t *testing.T) {
	q := New(1)
	if err := q.Enqueue(newTestJob("a", models.PriorityNormal)); err != nil {
		t.Fatalf("unexpected error enqueuing first job: %v", err)
	}
	if err := q.Enqueue(newTestJob("b", models.PriorityNormal)); err == nil {
		t.Fatalf("expected QueueFull error at capacity")
	}
}

func TestSizeNeverNegative(t *testing.T) {
	q := New(10)
	_ = q.Enqueue(newTestJob("a", models.PriorityNormal))
	q.Pop()
	q.Pop() // pop past empty
	if q.Size() < 0 {
		t.Fatalf("queue size must never be negative, got %d", q.Size())
	}
}
