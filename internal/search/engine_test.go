package search

import (
	"context"
	"testing"

	"github.com/codeintel-dev/codeintel-engine/internal/cache"
	"github.com/codeintel-dev/codeintel-engine/internal/embedding"
	"github.com/codeintel-dev/codeintel-engine/internal/models"
	"github.com/codeintel-dev/codeintel-engine/internal/vectorstore"
)

// fakeEmbeddingProvider is a minimal embedding.Provider stand-in so
// QuerySemantic/QueryHybrid searches can run without a real backend.
type fakeEmbeddingProvider struct{}

func (fakeEmbeddingProvider) Name() string             { return "fake" }
func (fakeEmbeddingProvider) SupportedModels() []string { return []string{"fake-model"} }
func (fakeEmbeddingProvider) HealthCheck(context.Context) error { return nil }
func (fakeEmbeddingProvider) GenerateEmbeddings(ctx context.Context, texts []string, model string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

// fakeVectorStore is a minimal vectorstore.Store stand-in that always
// returns the same single match, enough to exercise searchSemantic.
type fakeVectorStore struct{}

func (fakeVectorStore) Upsert(ctx context.Context, embeddings []*models.Embedding) error { return nil }
func (fakeVectorStore) Get(ctx context.Context, id string) (*models.Embedding, bool, error) {
	return nil, false, nil
}
func (fakeVectorStore) Delete(ctx context.Context, ids []string) error           { return nil }
func (fakeVectorStore) DeleteByEntity(ctx context.Context, entityIDs []string) error { return nil }
func (fakeVectorStore) SearchSimilar(ctx context.Context, vector []float32, k int, codebaseID string) ([]vectorstore.Match, error) {
	return []vectorstore.Match{{EntityID: "e1", Score: 0.9}}, nil
}
func (fakeVectorStore) Count(ctx context.Context) (int, error) { return 1, nil }
func (fakeVectorStore) Close() error                            { return nil }

func newTestSemanticEngine(t *testing.T) (*Engine, *embedding.Service) {
	t.Helper()
	mem := cache.NewMemoryBackend(100, 0, models.EvictionLRU)
	cacheSvc, err := cache.NewService(map[string]cache.Backend{"memory": mem}, "memory")
	if err != nil {
		t.Fatalf("cache.NewService: %v", err)
	}
	embSvc := embedding.NewService(map[string]embedding.Provider{"fake": fakeEmbeddingProvider{}}, cacheSvc, embedding.Config{})
	e := NewEngine(embSvc, fakeVectorStore{}, cacheSvc, EngineConfig{})
	return e, embSvc
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	mem := cache.NewMemoryBackend(100, 0, models.EvictionLRU)
	svc, err := cache.NewService(map[string]cache.Backend{"memory": mem}, "memory")
	if err != nil {
		t.Fatalf("cache.NewService: %v", err)
	}
	return NewEngine(nil, nil, svc, EngineConfig{})
}

func seedEntity(e *Engine, codebaseID, id, name, qualified, signature string) {
	e.Upsert(codebaseID, &models.CodeEntity{
		ID:            id,
		CodebaseID:    codebaseID,
		Kind:          models.EntityFunction,
		Name:          name,
		QualifiedName: qualified,
		Signature:     signature,
		Language:      "go",
	})
}

func TestSearchKeywordScoresByMatchedTokenRatio(t *testing.T) {
	e := newTestEngine(t)
	seedEntity(e, "cb1", "e1", "parseJSON", "pkg.parseJSON", "func parseJSON(data []byte) error")
	seedEntity(e, "cb1", "e2", "writeFile", "pkg.writeFile", "func writeFile(path string) error")

	resp, err := e.Search(context.Background(), Query{Text: "parse json", Type: QueryKeyword, CodebaseID: "cb1"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(resp.Results) != 1 || resp.Results[0].Entity.ID != "e1" {
		t.Fatalf("expected only e1 to match, got %+v", resp.Results)
	}
}

func TestSearchExactTieredScoring(t *testing.T) {
	e := newTestEngine(t)
	seedEntity(e, "cb1", "e1", "Validate", "pkg.Validate", "func Validate() error")

	resp, err := e.Search(context.Background(), Query{Text: "Validate", Type: QueryExact, CodebaseID: "cb1"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(resp.Results) != 1 || resp.Results[0].Score != 1.0 {
		t.Fatalf("expected exact name match scored 1.0, got %+v", resp.Results)
	}
}

func TestSearchRegexRejectsInvalidPattern(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Search(context.Background(), Query{Text: "(unterminated", Type: QueryRegex, CodebaseID: "cb1"})
	if err == nil {
		t.Fatalf("expected invalid regex to error")
	}
}

func TestSearchAppliesLanguageFilter(t *testing.T) {
	e := newTestEngine(t)
	seedEntity(e, "cb1", "e1", "Handler", "pkg.Handler", "func Handler()")

	resp, err := e.Search(context.Background(), Query{
		Text:       "Handler",
		Type:       QueryExact,
		CodebaseID: "cb1",
		Filters:    Filters{Languages: []string{"python"}},
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(resp.Results) != 0 {
		t.Fatalf("expected language filter to exclude the go entity, got %+v", resp.Results)
	}
}

func TestSearchResultsAreCachedOnRepeat(t *testing.T) {
	e := newTestEngine(t)
	seedEntity(e, "cb1", "e1", "Handler", "pkg.Handler", "func Handler()")

	q := Query{Text: "Handler", Type: QueryExact, CodebaseID: "cb1"}
	first, err := e.Search(context.Background(), q)
	if err != nil || first.FromCache {
		t.Fatalf("expected first call to miss cache, got FromCache=%v err=%v", first.FromCache, err)
	}
	second, err := e.Search(context.Background(), q)
	if err != nil || !second.FromCache {
		t.Fatalf("expected second identical call to hit cache, got FromCache=%v err=%v", second.FromCache, err)
	}
}

func TestSemanticSearchCacheHitStillIncrementsEmbeddingCacheStats(t *testing.T) {
	e, embSvc := newTestSemanticEngine(t)
	seedEntity(e, "cb1", "e1", "Handler", "pkg.Handler", "func Handler()")

	q := Query{Text: "how is a request handled", Type: QuerySemantic, CodebaseID: "cb1", Provider: "fake", EmbeddingModel: "fake-model"}

	first, err := e.Search(context.Background(), q)
	if err != nil || first.FromCache {
		t.Fatalf("expected first call to miss cache, got FromCache=%v err=%v", first.FromCache, err)
	}
	hitsAfterFirst := embSvc.Stats().CacheHits

	second, err := e.Search(context.Background(), q)
	if err != nil || !second.FromCache {
		t.Fatalf("expected second identical call to hit the response cache, got FromCache=%v err=%v", second.FromCache, err)
	}
	hitsAfterSecond := embSvc.Stats().CacheHits
	if hitsAfterSecond != hitsAfterFirst+1 {
		t.Fatalf("expected embedding cache hits to increment by exactly 1 on a repeated semantic query, went from %d to %d", hitsAfterFirst, hitsAfterSecond)
	}
}

func TestRemoveEntityDropsFromKeywordSearch(t *testing.T) {
	e := newTestEngine(t)
	seedEntity(e, "cb1", "e1", "Handler", "pkg.Handler", "func Handler()")
	e.Remove("cb1", "e1")

	resp, err := e.Search(context.Background(), Query{Text: "Handler", Type: QueryKeyword, CodebaseID: "cb1"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(resp.Results) != 0 {
		t.Fatalf("expected removed entity to no longer match, got %+v", resp.Results)
	}
}
