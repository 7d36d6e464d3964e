package embedding

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/codeintel-dev/codeintel-engine/internal/cache"
	"github.com/codeintel-dev/codeintel-engine/internal/models"
)

// fakeProvider is an in-memory Provider stand-in: one call per batch,
// deterministic embeddings derived from text length, and a call counter so
// tests can assert dedup/caching actually avoided a round trip.
type fakeProvider struct {
	calls int64
}

func (f *fakeProvider) Name() string              { return "fake" }
func (f *fakeProvider) SupportedModels() []string  { return []string{"fake-model"} }
func (f *fakeProvider) HealthCheck(context.Context) error { return nil }

func (f *fakeProvider) GenerateEmbeddings(ctx context.Context, texts []string, model string) ([][]float32, error) {
	atomic.AddInt64(&f.calls, 1)
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1, 0}
	}
	return out, nil
}

func newTestService(t *testing.T, provider Provider) (*Service, *cache.Service) {
	t.Helper()
	mem := cache.NewMemoryBackend(100, 0, models.EvictionLRU)
	cacheSvc, err := cache.NewService(map[string]cache.Backend{"memory": mem}, "memory")
	if err != nil {
		t.Fatalf("cache.NewService: %v", err)
	}
	svc := NewService(map[string]Provider{"fake": provider}, cacheSvc, Config{})
	return svc, cacheSvc
}

func TestGenerateReturnsNormalizedVectorsInInputOrder(t *testing.T) {
	provider := &fakeProvider{}
	svc, _ := newTestService(t, provider)

	vecs, err := svc.Generate(context.Background(), "fake", "fake-model", []string{"ab", "abcd"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(vecs) != 2 {
		t.Fatalf("expected 2 vectors, got %d", len(vecs))
	}
	for _, v := range vecs {
		var sumSq float32
		for _, c := range v {
			sumSq += c * c
		}
		if diff := sumSq - 1; diff > 1e-4 || diff < -1e-4 {
			t.Fatalf("expected unit-normalized vector, got magnitude^2=%f", sumSq)
		}
	}
	// The fake provider returns [len(text), 1, 0]; normalization keeps the
	// ratio of the first two components, which recovers each input's length.
	for i, wantLen := range []float32{2, 4} {
		if ratio := vecs[i][0] / vecs[i][1]; ratio-wantLen > 1e-3 || wantLen-ratio > 1e-3 {
			t.Fatalf("expected vector %d to come from the %v-char input, got length ratio %f", i, wantLen, ratio)
		}
	}
}

func TestGenerateServesRepeatCallsFromCacheWithoutHittingProvider(t *testing.T) {
	provider := &fakeProvider{}
	svc, _ := newTestService(t, provider)

	if _, err := svc.Generate(context.Background(), "fake", "fake-model", []string{"hello"}); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	firstCalls := atomic.LoadInt64(&provider.calls)

	if _, err := svc.Generate(context.Background(), "fake", "fake-model", []string{"hello"}); err != nil {
		t.Fatalf("Generate (repeat): %v", err)
	}
	if atomic.LoadInt64(&provider.calls) != firstCalls {
		t.Fatalf("expected cached text not to trigger another provider call, calls went from %d to %d", firstCalls, provider.calls)
	}

	stats := svc.Stats()
	if stats.CacheHits == 0 {
		t.Fatalf("expected at least one cache hit to be recorded")
	}
}

func TestGenerateUnknownProviderReturnsNotFound(t *testing.T) {
	svc, _ := newTestService(t, &fakeProvider{})
	_, err := svc.Generate(context.Background(), "missing", "fake-model", []string{"x"})
	if err == nil {
		t.Fatalf("expected error for unregistered provider")
	}
}

func TestHealthCheckReportsFailingProviders(t *testing.T) {
	mem := cache.NewMemoryBackend(100, 0, models.EvictionLRU)
	cacheSvc, _ := cache.NewService(map[string]cache.Backend{"memory": mem}, "memory")
	svc := NewService(map[string]Provider{
		"ok":   &fakeProvider{},
		"fail": &failingProvider{},
	}, cacheSvc, Config{})

	failed := svc.HealthCheck(context.Background())
	if len(failed) != 1 || failed[0] != "fail" {
		t.Fatalf("expected only the failing provider reported, got %v", failed)
	}
}

type failingProvider struct{ fakeProvider }

func (f *failingProvider) HealthCheck(context.Context) error { return context.DeadlineExceeded }
