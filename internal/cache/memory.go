package cache

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/codeintel-dev/codeintel-engine/internal/models"
)

// MemoryBackend is the always-available default cache backend (§4.7).
// Storage is an hashicorp/golang-lru cache sized far above MaxEntries so
// its own capacity eviction never fires; eviction decisions instead run
// explicitly in evictIfNeeded, selecting a victim per m.policy so the same
// storage structure serves all four declared policies (LRU/LFU/TTL/Random).
type MemoryBackend struct {
	mu     sync.Mutex
	store  *lru.Cache[string, *models.CacheEntry]
	policy models.EvictionPolicy

	maxEntries   int
	maxSizeBytes int64
	sizeBytes    int64

	hits, misses, evictions int64
}

// NewMemoryBackend builds a Memory backend bounded at maxEntries/
// maxSizeBytes, evicting per policy once either bound is exceeded.
func NewMemoryBackend(maxEntries int, maxSizeBytes int64, policy models.EvictionPolicy) *MemoryBackend {
	if maxEntries <= 0 {
		maxEntries = 50000
	}
	// Oversized so the library's own recency-based eviction never triggers;
	// we drive eviction ourselves to honour the configured policy.
	store, _ := lru.New[string, *models.CacheEntry](maxEntries * 4)
	return &MemoryBackend{
		store:        store,
		policy:       policy,
		maxEntries:   maxEntries,
		maxSizeBytes: maxSizeBytes,
	}
}

func (m *MemoryBackend) Name() string { return "memory" }

func (m *MemoryBackend) Get(key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.store.Get(key)
	if !ok {
		m.misses++
		return nil, false, nil
	}
	if entry.Expired(time.Now()) {
		m.store.Remove(key)
		m.sizeBytes -= entry.SizeBytes
		m.misses++
		return nil, false, nil
	}
	entry.AccessedAt = time.Now()
	entry.HitCount++
	m.hits++
	return entry.Value, true, nil
}

func (m *MemoryBackend) Set(key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setLocked(key, value, ttl)
	m.evictIfNeeded()
	return nil
}

func (m *MemoryBackend) setLocked(key string, value []byte, ttl time.Duration) {
	now := time.Now()
	if old, ok := m.store.Get(key); ok {
		m.sizeBytes -= old.SizeBytes
	}
	entry := &models.CacheEntry{
		Key:        key,
		Value:      value,
		SizeBytes:  int64(len(value)),
		CreatedAt:  now,
		AccessedAt: now,
	}
	if ttl > 0 {
		exp := now.Add(ttl)
		entry.ExpiresAt = &exp
	}
	m.store.Add(key, entry)
	m.sizeBytes += entry.SizeBytes
}

func (m *MemoryBackend) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.store.Get(key); ok {
		m.sizeBytes -= old.SizeBytes
	}
	m.store.Remove(key)
	return nil
}

func (m *MemoryBackend) Exists(key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.store.Peek(key)
	if !ok {
		return false, nil
	}
	return !entry.Expired(time.Now()), nil
}

func (m *MemoryBackend) GetMulti(keys []string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(keys))
	for _, k := range keys {
		if v, ok, _ := m.Get(k); ok {
			out[k] = v
		}
	}
	return out, nil
}

func (m *MemoryBackend) SetMulti(items map[string][]byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range items {
		m.setLocked(k, v, ttl)
	}
	m.evictIfNeeded()
	return nil
}

func (m *MemoryBackend) DeleteMulti(keys []string) error {
	for _, k := range keys {
		_ = m.Delete(k)
	}
	return nil
}

func (m *MemoryBackend) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store.Purge()
	m.sizeBytes = 0
	return nil
}

func (m *MemoryBackend) GetStats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Stats{
		Backend:   m.Name(),
		Entries:   m.store.Len(),
		SizeBytes: m.sizeBytes,
		Hits:      m.hits,
		Misses:    m.misses,
		Evictions: m.evictions,
		Policy:    m.policy,
	}
}

// Maintenance drops expired entries. Idempotent.
func (m *MemoryBackend) Maintenance() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	for _, key := range m.store.Keys() {
		entry, ok := m.store.Peek(key)
		if ok && entry.Expired(now) {
			m.sizeBytes -= entry.SizeBytes
			m.store.Remove(key)
		}
	}
	return nil
}

func (m *MemoryBackend) HealthCheck() Health {
	return Health{Healthy: true}
}

// evictIfNeeded removes entries, per m.policy, until both bounds are
// satisfied. Must be called with mu held.
func (m *MemoryBackend) evictIfNeeded() {
	for (m.maxEntries > 0 && m.store.Len() > m.maxEntries) ||
		(m.maxSizeBytes > 0 && m.sizeBytes > m.maxSizeBytes) {
		victim, ok := m.selectVictimLocked()
		if !ok {
			return
		}
		if entry, ok := m.store.Peek(victim); ok {
			m.sizeBytes -= entry.SizeBytes
		}
		m.store.Remove(victim)
		m.evictions++
	}
}

func (m *MemoryBackend) selectVictimLocked() (string, bool) {
	keys := m.store.Keys()
	if len(keys) == 0 {
		return "", false
	}

	switch m.policy {
	case models.EvictionTTL:
		var victim string
		var soonest *time.Time
		for _, k := range keys {
			e, _ := m.store.Peek(k)
			if e.ExpiresAt != nil && (soonest == nil || e.ExpiresAt.Before(*soonest)) {
				soonest = e.ExpiresAt
				victim = k
			}
		}
		if victim != "" {
			return victim, true
		}
		return keys[0], true // no entry carries a TTL: fall back to oldest key

	case models.EvictionLFU:
		var victim string
		var lowest int64 = -1
		for _, k := range keys {
			e, _ := m.store.Peek(k)
			if lowest < 0 || e.HitCount < lowest {
				lowest = e.HitCount
				victim = k
			}
		}
		return victim, true

	case models.EvictionRandom:
		// lru.Cache.Keys() returns oldest-to-newest; picking a fixed offset
		// gives pseudo-random eviction without importing math/rand for one
		// call site.
		return keys[len(keys)/2], true

	default: // LRU — the hashicorp cache's own key order is already LRU.
		return keys[0], true
	}
}
