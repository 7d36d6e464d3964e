package vectorstore

import (
	"context"
	"testing"

	"github.com/codeintel-dev/codeintel-engine/internal/models"
)

func TestHNSWUpsertAndSearchSimilarReturnsNearestFirst(t *testing.T) {
	s := NewHNSWStore(Config{Dimension: 2, Metric: MetricEuclidean})
	ctx := context.Background()

	err := s.Upsert(ctx, []*models.Embedding{
		{ID: "near", EntityID: "e-near", Vector: []float32{1, 1}},
		{ID: "far", EntityID: "e-far", Vector: []float32{10, 10}},
	})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	matches, err := s.SearchSimilar(ctx, []float32{1, 1}, 1, "")
	if err != nil {
		t.Fatalf("SearchSimilar: %v", err)
	}
	if len(matches) != 1 || matches[0].EntityID != "e-near" {
		t.Fatalf("expected nearest match e-near, got %+v", matches)
	}
}

func TestHNSWUpsertRejectsWrongDimension(t *testing.T) {
	s := NewHNSWStore(Config{Dimension: 3})
	err := s.Upsert(context.Background(), []*models.Embedding{
		{ID: "bad", Vector: []float32{1, 2}},
	})
	if err == nil {
		t.Fatalf("expected dimension mismatch to error")
	}
}

func TestHNSWSearchSimilarFiltersByCodebase(t *testing.T) {
	s := NewHNSWStore(Config{Dimension: 2})
	ctx := context.Background()
	_ = s.Upsert(ctx, []*models.Embedding{
		{ID: "a", EntityID: "e-a", Vector: []float32{1, 0}, Metadata: map[string]any{"codebase_id": "cb1"}},
		{ID: "b", EntityID: "e-b", Vector: []float32{1, 0}, Metadata: map[string]any{"codebase_id": "cb2"}},
	})

	matches, err := s.SearchSimilar(ctx, []float32{1, 0}, 10, "cb1")
	if err != nil {
		t.Fatalf("SearchSimilar: %v", err)
	}
	for _, m := range matches {
		if m.EntityID == "e-b" {
			t.Fatalf("expected cb2's entity to be filtered out, got %+v", matches)
		}
	}
}

func TestHNSWSaveLoadRoundTripsEmbeddings(t *testing.T) {
	dir := t.TempDir()
	s1 := NewHNSWStore(Config{Dimension: 2, CollectionName: "test", PersistDir: dir})
	ctx := context.Background()
	_ = s1.Upsert(ctx, []*models.Embedding{
		{ID: "a", EntityID: "e-a", Vector: []float32{1, 2}, Metadata: map[string]any{"codebase_id": "cb1"}},
	})
	if err := s1.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	s2 := NewHNSWStore(Config{Dimension: 2, CollectionName: "test", PersistDir: dir})
	if err := s2.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}

	emb, ok, err := s2.Get(ctx, "a")
	if err != nil || !ok {
		t.Fatalf("expected embedding 'a' to survive Save/Load, ok=%v err=%v", ok, err)
	}
	if emb.EntityID != "e-a" {
		t.Fatalf("expected EntityID to round-trip, got %q", emb.EntityID)
	}
	if emb.Metadata["codebase_id"] != "cb1" {
		t.Fatalf("expected codebase_id metadata to round-trip, got %+v", emb.Metadata)
	}

	matches, err := s2.SearchSimilar(ctx, []float32{1, 2}, 10, "cb1")
	if err != nil {
		t.Fatalf("SearchSimilar after reload: %v", err)
	}
	if len(matches) != 1 || matches[0].EntityID != "e-a" {
		t.Fatalf("expected codebase filter to still work after reload, got %+v", matches)
	}
}
