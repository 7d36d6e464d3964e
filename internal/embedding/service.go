package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	tiktoken "github.com/pkoukk/tiktoken-go"
	"golang.org/x/sync/singleflight"

	"github.com/codeintel-dev/codeintel-engine/internal/apperrors"
	"github.com/codeintel-dev/codeintel-engine/internal/cache"
)

// ProviderStats tracks per-provider usage for §9's status reporting.
type ProviderStats struct {
	Requests     int64
	Embeddings   int64
	Errors       int64
	TotalLatency time.Duration
}

// ServiceStats aggregates the embedding Service's own counters, separate
// from the cache's own hit/miss bookkeeping.
type ServiceStats struct {
	CacheHits   int64
	CacheMisses int64
	Generated   int64
	Providers   map[string]ProviderStats
}

// Service generates, dedups, and caches embeddings on top of a named
// provider registry. Grounded on the teacher's internal/embeddings/batcher.go
// (batch splitting + bounded-concurrency worker pool), generalized with
// content-hash dedup backed by internal/cache, golang.org/x/sync/singleflight
// for in-flight collapsing of identical concurrent requests, and
// pkoukk/tiktoken-go for input-token budgeting ahead of provider dispatch.
type Service struct {
	mu        sync.Mutex
	providers map[string]Provider
	cacheSvc  *cache.Service
	group     singleflight.Group
	enc       *tiktoken.Tiktoken

	batchSize      int
	concurrency    int
	maxInputTokens int
	cacheTTL       time.Duration

	stats ServiceStats
}

// Config configures the embedding Service.
type Config struct {
	BatchSize      int
	Concurrency    int
	MaxInputTokens int
	CacheTTL       time.Duration
}

// NewService wires a provider registry onto a cache.Service for dedup
// storage. The encoder falls back to a nil tokenizer (length checks skip)
// if the cl100k_base BPE data cannot be loaded, so the service degrades
// gracefully rather than failing to start.
func NewService(providers map[string]Provider, cacheSvc *cache.Service, cfg Config) *Service {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 32
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.MaxInputTokens <= 0 {
		cfg.MaxInputTokens = 8191
	}
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		log.Printf("embedding: tokenizer unavailable, skipping input-length budgeting: %v", err)
	}
	return &Service{
		providers:      providers,
		cacheSvc:       cacheSvc,
		enc:            enc,
		batchSize:      cfg.BatchSize,
		concurrency:    cfg.Concurrency,
		maxInputTokens: cfg.MaxInputTokens,
		cacheTTL:       cfg.CacheTTL,
		stats:          ServiceStats{Providers: make(map[string]ProviderStats)},
	}
}

// ContentHash is the dedup/cache key derivation: sha256 of "model\x00text".
func ContentHash(model, text string) string {
	h := sha256.Sum256([]byte(model + "\x00" + text))
	return hex.EncodeToString(h[:])
}

func (s *Service) cacheKey(model, text string) string {
	return "embed:" + ContentHash(model, text)
}

// truncate clips text to maxInputTokens using the BPE encoder, matching
// the teacher's MRL-style truncation but at token rather than dimension
// granularity. A nil encoder is a no-op.
func (s *Service) truncate(text string) string {
	if s.enc == nil {
		return text
	}
	ids := s.enc.Encode(text, nil, nil)
	if len(ids) <= s.maxInputTokens {
		return text
	}
	return s.enc.Decode(ids[:s.maxInputTokens])
}

// Generate resolves embeddings for inputs against model, preserving input
// order in the result. Cached entries are served without touching the
// provider; an in-flight singleflight.Group entry collapses concurrent
// provider calls for an identical batch (same provider, model, batch
// position and texts); remaining
// cache/in-flight misses are dispatched to the named provider in batches
// of s.batchSize, with up to s.concurrency batches in flight at once.
func (s *Service) Generate(ctx context.Context, providerName, model string, inputs []string) ([][]float32, error) {
	s.mu.Lock()
	provider, ok := s.providers[providerName]
	s.mu.Unlock()
	if !ok {
		return nil, apperrors.New(apperrors.NotFound, "ERR_EMBED_PROVIDER", fmt.Sprintf("unknown embedding provider %q", providerName), nil)
	}

	out := make([][]float32, len(inputs))
	var missIdx []int
	var missTexts []string

	for i, text := range inputs {
		text = s.truncate(text)
		key := s.cacheKey(model, text)
		if raw, ok := s.cacheSvc.Get(key); ok {
			vec, err := decodeVector(raw)
			if err == nil {
				out[i] = vec
				s.mu.Lock()
				s.stats.CacheHits++
				s.mu.Unlock()
				continue
			}
		}
		s.mu.Lock()
		s.stats.CacheMisses++
		s.mu.Unlock()
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}

	if len(missTexts) == 0 {
		return out, nil
	}

	generated, err := s.generateMissing(ctx, provider, providerName, model, missTexts)
	if err != nil {
		return nil, err
	}

	for j, idx := range missIdx {
		vec := Normalize(generated[j])
		out[idx] = vec
		if raw, err := encodeVector(vec); err == nil {
			_ = s.cacheSvc.Set(s.cacheKey(model, missTexts[j]), raw, int(s.cacheTTL.Seconds()))
		}
	}
	return out, nil
}

// generateMissing batches missTexts and dispatches up to s.concurrency
// batches concurrently, collapsing identical batches via singleflight
// so two concurrent Generate calls for the same uncached
// string trigger one provider round trip.
func (s *Service) generateMissing(ctx context.Context, provider Provider, providerName, model string, texts []string) ([][]float32, error) {
	batches := chunkStrings(texts, s.batchSize)
	results := make([][][]float32, len(batches))

	var wg sync.WaitGroup
	sem := make(chan struct{}, s.concurrency)
	errs := make([]error, len(batches))

	for i, batch := range batches {
		wg.Add(1)
		go func(idx int, batch []string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			sfKey := providerName + "|" + model + "|" + fmt.Sprint(idx) + "|" + ContentHash(model, joinForKey(batch))
			v, err, _ := s.group.Do(sfKey, func() (interface{}, error) {
				start := time.Now()
				vecs, err := provider.GenerateEmbeddings(ctx, batch, model)
				elapsed := time.Since(start)

				s.mu.Lock()
				ps := s.stats.Providers[providerName]
				ps.Requests++
				ps.TotalLatency += elapsed
				if err != nil {
					ps.Errors++
				} else {
					ps.Embeddings += int64(len(vecs))
				}
				s.stats.Providers[providerName] = ps
				s.mu.Unlock()

				return vecs, err
			})
			if err != nil {
				errs[idx] = err
				return
			}
			results[idx] = v.([][]float32)
		}(i, batch)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	s.stats.Generated += int64(len(texts))
	s.mu.Unlock()

	var flat [][]float32
	for _, b := range results {
		flat = append(flat, b...)
	}
	return flat, nil
}

// Stats returns a snapshot of the service's usage counters.
func (s *Service) Stats() ServiceStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	providers := make(map[string]ProviderStats, len(s.stats.Providers))
	for k, v := range s.stats.Providers {
		providers[k] = v
	}
	return ServiceStats{
		CacheHits:   s.stats.CacheHits,
		CacheMisses: s.stats.CacheMisses,
		Generated:   s.stats.Generated,
		Providers:   providers,
	}
}

// HealthCheck checks every registered provider and returns the names of
// any that failed, sorted for deterministic output.
func (s *Service) HealthCheck(ctx context.Context) []string {
	s.mu.Lock()
	names := make([]string, 0, len(s.providers))
	for n := range s.providers {
		names = append(names, n)
	}
	providers := s.providers
	s.mu.Unlock()

	var failed []string
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, n := range names {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			if err := providers[name].HealthCheck(ctx); err != nil {
				mu.Lock()
				failed = append(failed, name)
				mu.Unlock()
			}
		}(n)
	}
	wg.Wait()
	sort.Strings(failed)
	return failed
}

func chunkStrings(items []string, size int) [][]string {
	var out [][]string
	for i := 0; i < len(items); i += size {
		end := i + size
		if end > len(items) {
			end = len(items)
		}
		out = append(out, items[i:end])
	}
	return out
}

func joinForKey(items []string) string {
	return strings.Join(items, "\x00")
}

func encodeVector(v []float32) ([]byte, error) {
	return json.Marshal(v)
}

func decodeVector(raw []byte) ([]float32, error) {
	var v []float32
	err := json.Unmarshal(raw, &v)
	return v, err
}
