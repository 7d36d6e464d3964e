package search

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/codeintel-dev/codeintel-engine/internal/apperrors"
	"github.com/codeintel-dev/codeintel-engine/internal/cache"
	"github.com/codeintel-dev/codeintel-engine/internal/embedding"
	"github.com/codeintel-dev/codeintel-engine/internal/models"
	"github.com/codeintel-dev/codeintel-engine/internal/vectorstore"
)

// Engine is the hybrid search dispatcher. One Engine serves every codebase;
// each codebase's SearchIndex is kept in indexes, guarded by mu per §5's
// "long reads may proceed concurrently, writes hold exclusive access
// briefly" discipline — RWMutex rather than the teacher's unguarded map.
type Engine struct {
	mu      sync.RWMutex
	indexes map[string]*models.SearchIndex

	embeddings *embedding.Service
	vectors    vectorstore.Store
	cacheSvc   *cache.Service

	defaultLimit  int
	maxLimit      int
	fuzzyThresh   float64
	resultTTL     time.Duration

	history   []string // recent query texts, most recent first, for "related" suggestions
	historyMu sync.Mutex
}

// EngineConfig configures default limits and cache TTL.
type EngineConfig struct {
	DefaultLimit  int
	MaxLimit      int
	FuzzyThresh   float64
	ResultTTL     time.Duration
}

// NewEngine wires an embedding service, vector store, and cache service
// into a fresh, empty Engine.
func NewEngine(embeddings *embedding.Service, vectors vectorstore.Store, cacheSvc *cache.Service, cfg EngineConfig) *Engine {
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = 20
	}
	if cfg.MaxLimit <= 0 {
		cfg.MaxLimit = 200
	}
	if cfg.FuzzyThresh <= 0 {
		cfg.FuzzyThresh = 0.3
	}
	return &Engine{
		indexes:      make(map[string]*models.SearchIndex),
		embeddings:   embeddings,
		vectors:      vectors,
		cacheSvc:     cacheSvc,
		defaultLimit: cfg.DefaultLimit,
		maxLimit:     cfg.MaxLimit,
		fuzzyThresh:  cfg.FuzzyThresh,
		resultTTL:    cfg.ResultTTL,
	}
}

// IndexFor returns (creating if absent) the SearchIndex for codebaseID.
func (e *Engine) IndexFor(codebaseID string) *models.SearchIndex {
	e.mu.Lock()
	defer e.mu.Unlock()
	idx, ok := e.indexes[codebaseID]
	if !ok {
		idx = models.NewSearchIndex(codebaseID)
		e.indexes[codebaseID] = idx
	}
	return idx
}

// Upsert indexes or reindexes one entity, replacing any prior postings.
func (e *Engine) Upsert(codebaseID string, entity *models.CodeEntity) {
	idx := e.IndexFor(codebaseID)
	e.mu.Lock()
	defer e.mu.Unlock()
	RemoveEntity(idx, entity.ID)
	IndexEntity(idx, entity)
}

// Remove drops one entity from its codebase's index.
func (e *Engine) Remove(codebaseID, entityID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if idx, ok := e.indexes[codebaseID]; ok {
		RemoveEntity(idx, entityID)
	}
}

// Search dispatches q per its Type (§4.8) and applies filters/sort/
// pagination to the retrieved candidate set. Results are served from
// cache when a prior identical, non-personalized query was cached.
func (e *Engine) Search(ctx context.Context, q Query) (*Response, error) {
	start := time.Now()
	if q.Limit <= 0 {
		q.Limit = e.defaultLimit
	}
	if q.Limit > e.maxLimit {
		q.Limit = e.maxLimit
	}

	cacheKey := e.cacheKeyFor(q)
	if raw, ok := e.cacheSvc.Get(cacheKey); ok {
		var cached []Result
		if err := json.Unmarshal(raw, &cached); err == nil {
			// The response itself is served from cache, but a repeated
			// semantic/hybrid query must still touch the embedding
			// service for q.Text: its own cache records the hit
			// (Stats().CacheHits), which a short-circuit here would
			// otherwise hide from callers observing that counter.
			if requiresEmbedding(q.Type) && e.embeddings != nil {
				_, _ = e.embeddings.Generate(ctx, q.Provider, q.EmbeddingModel, []string{q.Text})
			}
			e.recordHistory(q.Text)
			return &Response{Results: cached, Total: len(cached), FromCache: true, Took: time.Since(start)}, nil
		}
	}

	var results []Result
	var err error
	switch q.Type {
	case QueryKeyword:
		results = e.searchKeyword(q)
	case QueryFuzzy:
		results = e.searchFuzzy(q)
	case QueryRegex:
		results, err = e.searchRegex(q)
	case QueryExact:
		results = e.searchExact(q)
	case QuerySemantic:
		results, err = e.searchSemantic(ctx, q)
	case QueryStructural:
		results = nil // placeholder per §4.8: AST-pattern search may return ∅
	case QueryHybrid:
		results, err = e.searchHybrid(ctx, q)
	default:
		err = apperrors.New(apperrors.Validation, "ERR_SEARCH_QUERY_TYPE", "unknown query_type", nil)
	}
	if err != nil {
		return nil, err
	}

	results = applyFilters(results, q.Filters)
	applySort(results, q.SortBy)
	total := len(results)
	page := paginate(results, q.Offset, q.Limit)

	if raw, err := json.Marshal(page); err == nil {
		_ = e.cacheSvc.Set(cacheKey, raw, int(e.resultTTL.Seconds()))
	}
	e.recordHistory(q.Text)

	return &Response{Results: page, Total: total, FromCache: false, Took: time.Since(start)}, nil
}

// requiresEmbedding reports whether q.Type calls the embedding service on
// a cache miss, and therefore must still do so on a cache hit to keep the
// embedding service's own cache stats accurate.
func requiresEmbedding(t QueryType) bool {
	return t == QuerySemantic || t == QueryHybrid
}

func (e *Engine) cacheKeyFor(q Query) string {
	h := sha256.New()
	h.Write([]byte(q.Text))
	h.Write([]byte(q.Type))
	h.Write([]byte(q.CodebaseID))
	enc, _ := json.Marshal(q.Filters)
	h.Write(enc)
	fmt.Fprintf(h, "|%s|%d|%d|%s|%s", q.SortBy, q.Limit, q.Offset, q.Provider, q.EmbeddingModel)
	return "search:" + hex.EncodeToString(h.Sum(nil))
}

func (e *Engine) entitiesFor(codebaseID string) *models.SearchIndex {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.indexes[codebaseID]
}

// searchKeyword tokenises q.Text and scores each candidate entity by
// matched_tokens / total_tokens (§4.8).
func (e *Engine) searchKeyword(q Query) []Result {
	idx := e.entitiesFor(q.CodebaseID)
	if idx == nil {
		return nil
	}
	tokens := Tokenize(q.Text)
	if len(tokens) == 0 {
		return nil
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	matchCount := make(map[string]int)
	for _, tok := range tokens {
		for id := range idx.Keyword[tok] {
			matchCount[id]++
		}
	}

	results := make([]Result, 0, len(matchCount))
	for id, count := range matchCount {
		entity, ok := idx.Entities[id]
		if !ok {
			continue
		}
		score := float64(count) / float64(len(tokens))
		results = append(results, Result{Entity: entity, Score: score, Source: QueryKeyword})
	}
	return results
}

// searchFuzzy generates 3-grams per query token and scores by
// matched_ngrams / token_length (§4.8).
func (e *Engine) searchFuzzy(q Query) []Result {
	idx := e.entitiesFor(q.CodebaseID)
	if idx == nil {
		return nil
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	matchCount := make(map[string]int)
	totalGrams := 0
	tokenLen := 0
	for _, tok := range Tokenize(q.Text) {
		grams := Trigrams(tok)
		totalGrams += len(grams)
		tokenLen += len(tok)
		for _, gram := range grams {
			for id := range idx.Trigram[gram] {
				matchCount[id]++
			}
		}
	}
	if totalGrams == 0 {
		return nil
	}

	results := make([]Result, 0, len(matchCount))
	for id, count := range matchCount {
		entity, ok := idx.Entities[id]
		if !ok {
			continue
		}
		score := float64(count) / float64(tokenLen)
		if score < e.fuzzyThresh {
			continue
		}
		results = append(results, Result{Entity: entity, Score: score, Source: QueryFuzzy})
	}
	return results
}

// searchRegex compiles q.Text as a regex (hard-failing per §4.8) and
// scans name/qualified_name/signature.
func (e *Engine) searchRegex(q Query) ([]Result, error) {
	re, err := regexp.Compile(q.Text)
	if err != nil {
		return nil, apperrors.Newf(apperrors.Validation, "ERR_SEARCH_REGEX", "Invalid regex pattern: %v", err)
	}

	idx := e.entitiesFor(q.CodebaseID)
	if idx == nil {
		return nil, nil
	}
	e.mu.RLock()
	defer e.mu.RUnlock()

	var results []Result
	for _, entity := range idx.Entities {
		if re.MatchString(entity.Name) || re.MatchString(entity.QualifiedName) || re.MatchString(entity.Signature) {
			results = append(results, Result{Entity: entity, Score: 1.0, Source: QueryRegex})
		}
	}
	return results, nil
}

// searchExact matches case-insensitively with tiered scoring (§4.8):
// name=1.0, qualified_name=0.9, signature substring=0.8.
func (e *Engine) searchExact(q Query) []Result {
	idx := e.entitiesFor(q.CodebaseID)
	if idx == nil {
		return nil
	}
	needle := strings.ToLower(q.Text)

	e.mu.RLock()
	defer e.mu.RUnlock()

	var results []Result
	for _, entity := range idx.Entities {
		switch {
		case strings.EqualFold(entity.Name, q.Text):
			results = append(results, Result{Entity: entity, Score: 1.0, Source: QueryExact})
		case strings.EqualFold(entity.QualifiedName, q.Text):
			results = append(results, Result{Entity: entity, Score: 0.9, Source: QueryExact})
		case strings.Contains(strings.ToLower(entity.Signature), needle):
			results = append(results, Result{Entity: entity, Score: 0.8, Source: QueryExact})
		}
	}
	return results
}

// searchSemantic embeds q.Text and calls the vector store's
// search_similar (§4.8).
func (e *Engine) searchSemantic(ctx context.Context, q Query) ([]Result, error) {
	if e.embeddings == nil || e.vectors == nil {
		return nil, nil
	}
	vecs, err := e.embeddings.Generate(ctx, q.Provider, q.EmbeddingModel, []string{q.Text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 || vecs[0] == nil {
		return nil, nil
	}

	matches, err := e.vectors.SearchSimilar(ctx, vecs[0], q.Limit*3, q.CodebaseID)
	if err != nil {
		return nil, err
	}

	idx := e.entitiesFor(q.CodebaseID)
	e.mu.RLock()
	defer e.mu.RUnlock()

	results := make([]Result, 0, len(matches))
	for _, m := range matches {
		var entity *models.CodeEntity
		if idx != nil {
			entity = idx.Entities[m.EntityID]
		}
		if entity == nil {
			continue
		}
		results = append(results, Result{Entity: entity, Score: m.Score, Source: QuerySemantic})
	}
	return results, nil
}

// searchHybrid runs Semantic and Keyword concurrently, unions by entity
// id, and boosts semantic scores by 1.2 before the caller sorts (§4.8).
func (e *Engine) searchHybrid(ctx context.Context, q Query) ([]Result, error) {
	var semantic, keyword []Result

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		semantic, err = e.searchSemantic(gctx, q)
		return err
	})
	g.Go(func() error {
		keyword = e.searchKeyword(q)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	byID := make(map[string]Result, len(semantic)+len(keyword))
	for _, r := range semantic {
		r.Score *= 1.2
		byID[r.Entity.ID] = r
	}
	for _, r := range keyword {
		if existing, ok := byID[r.Entity.ID]; ok {
			if r.Score > existing.Score {
				byID[r.Entity.ID] = r
			}
			continue
		}
		byID[r.Entity.ID] = r
	}

	out := make([]Result, 0, len(byID))
	for _, r := range byID {
		out = append(out, r)
	}
	return out, nil
}

func (e *Engine) recordHistory(text string) {
	if text == "" {
		return
	}
	e.historyMu.Lock()
	defer e.historyMu.Unlock()
	e.history = append([]string{text}, e.history...)
	if len(e.history) > 100 {
		e.history = e.history[:100]
	}
}
