package models

import "time"

// EvictionPolicy is the eviction discipline a cache backend declares.
type EvictionPolicy string

const (
	EvictionLRU    EvictionPolicy = "lru"
	EvictionLFU    EvictionPolicy = "lfu"
	EvictionTTL    EvictionPolicy = "ttl"
	EvictionRandom EvictionPolicy = "random"
)

// CacheEntry is the generic key-value unit stored by a cache backend.
// If ExpiresAt is set and in the past, reads must observe "absent".
type CacheEntry struct {
	Key        string            `json:"key"`
	Value      []byte            `json:"value"`
	SizeBytes  int64             `json:"size_bytes"`
	ExpiresAt  *time.Time        `json:"expires_at,omitempty"`
	Tags       []string          `json:"tags,omitempty"`
	Compressed bool              `json:"compressed,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	AccessedAt time.Time         `json:"accessed_at"`
	HitCount   int64             `json:"hit_count"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Expired reports whether the entry's expiry, if set, is in the past.
func (e *CacheEntry) Expired(now time.Time) bool {
	return e.ExpiresAt != nil && e.ExpiresAt.Before(now)
}
