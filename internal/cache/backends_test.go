package cache

import (
	"testing"
	"time"

	"github.com/codeintel-dev/codeintel-engine/internal/models"
)

func TestMemoryBackendGetSetRoundTrip(t *testing.T) {
	m := NewMemoryBackend(10, 0, models.EvictionLRU)
	if err := m.Set("a", []byte("1"), 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, ok, err := m.Get("a")
	if err != nil || !ok || string(v) != "1" {
		t.Fatalf("expected hit with value 1, got %q ok=%v err=%v", v, ok, err)
	}
}

func TestMemoryBackendExpiresByTTL(t *testing.T) {
	m := NewMemoryBackend(10, 0, models.EvictionLRU)
	_ = m.Set("a", []byte("1"), time.Millisecond)
	time.Sleep(5 * time.Millisecond)
	_, ok, _ := m.Get("a")
	if ok {
		t.Fatalf("expected expired entry to miss")
	}
}

func TestMemoryBackendEvictsOverCapacity(t *testing.T) {
	m := NewMemoryBackend(2, 0, models.EvictionLRU)
	_ = m.Set("a", []byte("1"), 0)
	_ = m.Set("b", []byte("2"), 0)
	_ = m.Set("c", []byte("3"), 0)
	stats := m.GetStats()
	if stats.Entries > 2 {
		t.Fatalf("expected at most 2 entries after eviction, got %d", stats.Entries)
	}
	if stats.Evictions == 0 {
		t.Fatalf("expected at least one eviction to be recorded")
	}
}

func TestFileBackendPersistsAcrossInstances(t *testing.T) {
	dir := t.TempDir()
	f1, err := NewFileBackend(dir)
	if err != nil {
		t.Fatalf("NewFileBackend: %v", err)
	}
	if err := f1.Set("key", []byte("value"), 0); err != nil {
		t.Fatalf("Set: %v", err)
	}

	f2, err := NewFileBackend(dir)
	if err != nil {
		t.Fatalf("NewFileBackend (reopen): %v", err)
	}
	v, ok, err := f2.Get("key")
	if err != nil || !ok || string(v) != "value" {
		t.Fatalf("expected value to survive across instances, got %q ok=%v err=%v", v, ok, err)
	}
}

func TestFileBackendClearRemovesEntries(t *testing.T) {
	dir := t.TempDir()
	f, _ := NewFileBackend(dir)
	_ = f.Set("key", []byte("value"), 0)
	if err := f.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, ok, _ := f.Get("key"); ok {
		t.Fatalf("expected key to be gone after Clear")
	}
}

func TestHybridBackendPrefersFileOnConflict(t *testing.T) {
	mem := NewMemoryBackend(10, 0, models.EvictionLRU)
	file, _ := NewFileBackend(t.TempDir())
	h := NewHybridBackend(mem, file)

	_ = mem.Set("key", []byte("stale"), 0)
	_ = file.Set("key", []byte("authoritative"), 0)

	v, ok, err := h.Get("key")
	if err != nil || !ok || string(v) != "authoritative" {
		t.Fatalf("expected file tier to win on conflict, got %q ok=%v err=%v", v, ok, err)
	}
}

func TestHybridBackendFallsBackToMemoryWhenFileMisses(t *testing.T) {
	mem := NewMemoryBackend(10, 0, models.EvictionLRU)
	file, _ := NewFileBackend(t.TempDir())
	h := NewHybridBackend(mem, file)

	_ = mem.Set("only-in-memory", []byte("v"), 0)
	v, ok, err := h.Get("only-in-memory")
	if err != nil || !ok || string(v) != "v" {
		t.Fatalf("expected memory-only entry to be served, got %q ok=%v err=%v", v, ok, err)
	}
}

func TestServiceRoundTripsThroughPrimary(t *testing.T) {
	svc, err := NewService(map[string]Backend{
		"memory": NewMemoryBackend(10, 0, models.EvictionLRU),
	}, "memory")
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	if err := svc.Set("k", []byte("v"), 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, ok := svc.Get("k")
	if !ok || string(v) != "v" {
		t.Fatalf("expected round trip through service, got %q ok=%v", v, ok)
	}
}

func TestServiceRejectsUnknownPrimary(t *testing.T) {
	_, err := NewService(map[string]Backend{
		"memory": NewMemoryBackend(10, 0, models.EvictionLRU),
	}, "nonexistent")
	if err == nil {
		t.Fatalf("expected error for unregistered primary backend")
	}
}
