// Package cache implements the pluggable-backend cache layer of §4.7: a
// uniform Backend contract (get/set/delete/exists/multi-ops/clear/stats/
// maintenance/health) behind which Memory, File, and Hybrid
// implementations each declare their own eviction policy.
//
// The Memory backend's LRU eviction is grounded on
// github.com/hashicorp/golang-lru/v2 (carried into go.mod from the
// Aman-CERP-amanmcp example). The File backend's on-disk layout is
// grounded on the teacher's internal/cache/file_hashes.go (one JSON blob
// per key, content-addressed by a hash of the key), generalized from a
// single-purpose file-hash cache into a general byte-value KV store.
package cache

import (
	"time"

	"github.com/codeintel-dev/codeintel-engine/internal/models"
)

// Stats is what GetStats reports for one backend.
type Stats struct {
	Backend    string         `json:"backend"`
	Entries    int            `json:"entries"`
	SizeBytes  int64          `json:"size_bytes"`
	Hits       int64          `json:"hits"`
	Misses     int64          `json:"misses"`
	Evictions  int64          `json:"evictions"`
	Policy     models.EvictionPolicy `json:"policy"`
	Degraded   bool           `json:"degraded"`
}

// Health is the result of a backend health_check.
type Health struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
}

// Backend is the uniform contract every cache implementation satisfies
// (§4.7). All operations are safe for concurrent use.
type Backend interface {
	Name() string
	Get(key string) ([]byte, bool, error)
	Set(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
	Exists(key string) (bool, error)
	GetMulti(keys []string) (map[string][]byte, error)
	SetMulti(items map[string][]byte, ttl time.Duration) error
	DeleteMulti(keys []string) error
	Clear() error
	GetStats() Stats
	// Maintenance removes expired entries and compacts internal structures.
	// Idempotent.
	Maintenance() error
	HealthCheck() Health
}
