package workerpool

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestClaimRoundRobinsAcrossWorkers(t *testing.T) {
	p := New(2, 1)
	w1, err := p.Claim("job-1")
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	w2, err := p.Claim("job-2")
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if w1.ID == w2.ID {
		t.Fatalf("expected distinct workers, got both %d", w1.ID)
	}
}

func TestClaimFailsWhenAllWorkersAtCapacity(t *testing.T) {
	p := New(1, 1)
	if _, err := p.Claim("job-1"); err != nil {
		t.Fatalf("Claim: %v", err)
	}
	_, err := p.Claim("job-2")
	var target ErrNoIdleWorker
	if !errors.As(err, &target) {
		t.Fatalf("expected ErrNoIdleWorker, got %v", err)
	}
}

func TestReleaseReturnsWorkerToIdle(t *testing.T) {
	p := New(1, 1)
	w, _ := p.Claim("job-1")
	if w.Status != Busy {
		t.Fatalf("expected Busy after Claim, got %s", w.Status)
	}
	p.Release(w, true, time.Millisecond)
	if w.Status != Idle {
		t.Fatalf("expected Idle after Release with no in-flight work left, got %s", w.Status)
	}
	if w.Successful != 1 {
		t.Fatalf("expected one successful result recorded, got %d", w.Successful)
	}
}

func TestFailThenRecoverCycle(t *testing.T) {
	p := New(1, 1)
	w, _ := p.Claim("job-1")
	p.Fail(w)
	if w.Status != Error {
		t.Fatalf("expected Error status, got %s", w.Status)
	}
	p.Recover(w)
	if w.Status != Idle {
		t.Fatalf("expected Idle after Recover, got %s", w.Status)
	}
}

func TestRunRespectsConcurrencyLimitAndPropagatesErrors(t *testing.T) {
	items := []int{1, 2, 3}
	sentinel := errors.New("boom")
	var inFlight, peak int32
	err := Run(context.Background(), 2, items, func(ctx context.Context, n int) error {
		cur := atomic.AddInt32(&inFlight, 1)
		defer atomic.AddInt32(&inFlight, -1)
		for p := atomic.LoadInt32(&peak); cur > p && !atomic.CompareAndSwapInt32(&peak, p, cur); p = atomic.LoadInt32(&peak) {
		}
		time.Sleep(5 * time.Millisecond)
		if n == 2 {
			return sentinel
		}
		return nil
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel error to propagate, got %v", err)
	}
	if p := atomic.LoadInt32(&peak); p > 2 {
		t.Fatalf("expected at most 2 concurrent tasks, observed %d", p)
	}
}

func TestUtilizationReflectsActiveWorkers(t *testing.T) {
	p := New(2, 1)
	if p.Utilization() != 0 {
		t.Fatalf("expected 0 utilization with no claims, got %f", p.Utilization())
	}
	_, _ = p.Claim("job-1")
	if u := p.Utilization(); u != 0.5 {
		t.Fatalf("expected 0.5 utilization with one of two workers claimed, got %f", u)
	}
}
