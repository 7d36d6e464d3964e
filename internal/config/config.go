// Package config loads the engine's configuration surface: server, indexing,
// search, embedding, cache, job queue, and worker pool settings (§6),
// following the teacher's defaults-then-file-then-env pattern.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config aggregates every section of the engine's configuration surface.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Indexing   IndexingConfig   `yaml:"indexing"`
	Search     SearchConfig     `yaml:"search"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	VectorDB   VectorDBConfig   `yaml:"vectordb"`
	Cache      CacheConfig      `yaml:"cache"`
	JobQueue   JobQueueConfig   `yaml:"job_queue"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool"`
	Logging    LoggingConfig    `yaml:"logging"`
	Ignore     IgnoreConfig     `yaml:"ignore_patterns"`
}

type RateLimiting struct {
	RequestsPerMinute int `yaml:"requests_per_minute"`
	BurstSize         int `yaml:"burst_size"`
}

type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

type ServerConfig struct {
	Name                  string       `yaml:"name"`
	Version               string       `yaml:"version"`
	Host                  string       `yaml:"host"`
	Port                  int          `yaml:"port"`
	MaxConnections        int          `yaml:"max_connections"`
	RequestTimeoutSeconds int          `yaml:"request_timeout_seconds"`
	CORSOrigins           []string     `yaml:"cors_origins"`
	RateLimiting          RateLimiting `yaml:"rate_limiting"`
	TLS                   *TLSConfig   `yaml:"tls,omitempty"`
}

type IndexingConfig struct {
	BatchSize        int      `yaml:"batch_size"`
	ParallelWorkers  int      `yaml:"parallel_workers"`
	MaxFileSizeBytes int64    `yaml:"max_file_size_bytes"`
	IncludePatterns  []string `yaml:"include_patterns"`
	ExcludePatterns  []string `yaml:"exclude_patterns"`
	FollowSymlinks   bool     `yaml:"follow_symlinks"`
	DebounceMS       int      `yaml:"debounce_ms"`
	Incremental      bool     `yaml:"incremental"`
	Background       bool     `yaml:"background"`
	MaxRetries       int      `yaml:"max_retries"`
	TimeoutSeconds   int      `yaml:"timeout_seconds"`
}

type SearchConfig struct {
	DefaultLimit              int     `yaml:"default_limit"`
	MaxLimit                  int     `yaml:"max_limit"`
	DefaultSimilarityThreshold float64 `yaml:"default_similarity_threshold"`
	EnableFuzzySearch         bool    `yaml:"enable_fuzzy_search"`
	FuzzyThreshold            float64 `yaml:"fuzzy_threshold"`
	ResultCacheTTLSeconds     int     `yaml:"result_cache_ttl_seconds"`
	SemanticWeight            float64 `yaml:"semantic_weight"`
	HybridSemanticBoost       float64 `yaml:"hybrid_semantic_boost"`
}

type ProviderConfig struct {
	Endpoint       string `yaml:"endpoint"`
	Model          string `yaml:"model"`
	APIKey         string `yaml:"api_key"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	MaxRetries     int    `yaml:"max_retries"`
	RetryDelayMS   int    `yaml:"retry_delay_ms"`
	Dimension      int    `yaml:"dimension"`
}

type EmbeddingConfig struct {
	DefaultProvider    string                    `yaml:"default_provider"`
	Providers          map[string]ProviderConfig `yaml:"providers"`
	BatchSize          int                       `yaml:"batch_size"`
	MaxTextLength      int                       `yaml:"max_text_length"`
	NormalizeEmbeddings bool                     `yaml:"normalize_embeddings"`
	CacheTTLSeconds    int                       `yaml:"cache_ttl_seconds"`
	CacheCapacity      int                       `yaml:"cache_capacity"`
}

type VectorDBConfig struct {
	Backend        string  `yaml:"backend"` // "hnsw" | "qdrant"
	CollectionName string  `yaml:"collection_name"`
	DistanceMetric string  `yaml:"distance_metric"`
	VectorSize     int     `yaml:"vector_size"`
	QdrantHost     string  `yaml:"qdrant_host"`
	QdrantPort     int     `yaml:"qdrant_port"`
	HNSWM          int     `yaml:"hnsw_m"`
	HNSWEfSearch   int     `yaml:"hnsw_ef_search"`
	PersistPath    string  `yaml:"persist_path"`
}

type CacheConfig struct {
	Backend           string `yaml:"backend"` // "file" | "hybrid"; any other value selects memory
	MaxSizeBytes      int64  `yaml:"max_size_bytes"`
	MaxEntries        int    `yaml:"max_entries"`
	DefaultTTLSeconds int    `yaml:"default_ttl_seconds"`
	EvictionPolicy    string `yaml:"eviction_policy"` // LRU | LFU | FIFO | TTL
	Directory         string `yaml:"directory"`
}

type JobQueueConfig struct {
	Capacity        int `yaml:"capacity"`
	SweepIntervalMS int `yaml:"sweep_interval_ms"`
}

type WorkerPoolConfig struct {
	WorkerCount  int `yaml:"worker_count"`
	PerWorkerCap int `yaml:"per_worker_cap"`
}

type LoggingConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Directory  string `yaml:"directory"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
	Level      string `yaml:"level"`
}

type IgnoreConfig struct {
	Patterns []string `yaml:"patterns"`
}

// Load builds the default configuration, overlays an optional config file,
// then environment overrides, then expands `~` paths.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	if path := configPath(); path != "" {
		if err := loadFromFile(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	cfg.Cache.Directory = expandPath(cfg.Cache.Directory)
	cfg.Logging.Directory = expandPath(cfg.Logging.Directory)
	cfg.VectorDB.PersistPath = expandPath(cfg.VectorDB.PersistPath)

	return cfg, nil
}

// DefaultConfig returns the engine's built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Name:                  "codeintel-engine",
			Version:               "0.1.0",
			Host:                  "127.0.0.1",
			Port:                  8089,
			MaxConnections:        256,
			RequestTimeoutSeconds: 30,
			RateLimiting:          RateLimiting{RequestsPerMinute: 600, BurstSize: 60},
		},
		Indexing: IndexingConfig{
			BatchSize:        100,
			ParallelWorkers:  0, // not read; the worker count comes from WorkerPool.WorkerCount
			MaxFileSizeBytes: 1 << 20,
			FollowSymlinks:   false,
			DebounceMS:       300,
			Incremental:      true,
			Background:       true,
			MaxRetries:       3,
			TimeoutSeconds:   120,
		},
		Search: SearchConfig{
			DefaultLimit:               10,
			MaxLimit:                   100,
			DefaultSimilarityThreshold: 0.5,
			EnableFuzzySearch:          true,
			FuzzyThreshold:             0.3,
			ResultCacheTTLSeconds:      60,
			SemanticWeight:             0.7,
			HybridSemanticBoost:        1.2,
		},
		Embedding: EmbeddingConfig{
			DefaultProvider: "ollama",
			Providers: map[string]ProviderConfig{
				"ollama": {
					Endpoint:       "http://localhost:11434/api/embeddings",
					Model:          "nomic-embed-text",
					TimeoutSeconds: 60,
					MaxRetries:     3,
					RetryDelayMS:   500,
					Dimension:      768,
				},
			},
			BatchSize:           16,
			MaxTextLength:       4000,
			NormalizeEmbeddings: true,
			CacheTTLSeconds:     0, // 0 => no expiry
			CacheCapacity:       10000,
		},
		VectorDB: VectorDBConfig{
			Backend:        "hnsw",
			CollectionName: "entities",
			DistanceMetric: "cosine",
			VectorSize:     768,
			QdrantHost:     "localhost",
			QdrantPort:     6334,
			HNSWM:          16,
			HNSWEfSearch:   64,
			PersistPath:    "~/.codeintel/vectors",
		},
		Cache: CacheConfig{
			Backend:           "memory",
			MaxSizeBytes:      64 << 20,
			MaxEntries:        50000,
			DefaultTTLSeconds: 3600,
			EvictionPolicy:    "LRU",
			Directory:         "~/.codeintel/cache",
		},
		JobQueue: JobQueueConfig{
			Capacity:        10000,
			SweepIntervalMS: 250,
		},
		WorkerPool: WorkerPoolConfig{
			WorkerCount:  0, // 0 => runtime.NumCPU()
			PerWorkerCap: 1,
		},
		Logging: LoggingConfig{
			Enabled:    true,
			Directory:  "~/.codeintel/logs",
			MaxSizeMB:  10,
			MaxBackups: 5,
			MaxAgeDays: 30,
			Compress:   true,
			Level:      "info",
		},
		Ignore: IgnoreConfig{
			Patterns: []string{
				"target/**", "build/**", "dist/**", "out/**",
				"node_modules/**", ".pnp/**",
				"**/*.min.js", "**/*.bundle.js",
				".git/**", ".idea/**", ".vscode/**", "*.iml",
			},
		},
	}
}

func configPath() string {
	if path := os.Getenv("CODEINTEL_CONFIG"); path != "" {
		return path
	}
	if _, err := os.Stat("config.yaml"); err == nil {
		return "config.yaml"
	}
	if home, err := os.UserHomeDir(); err == nil {
		path := filepath.Join(home, ".codeintel", "config.yaml")
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

func applyEnvOverrides(cfg *Config) {
	if url := os.Getenv("CODEINTEL_EMBEDDING_ENDPOINT"); url != "" {
		p := cfg.Embedding.Providers[cfg.Embedding.DefaultProvider]
		p.Endpoint = url
		cfg.Embedding.Providers[cfg.Embedding.DefaultProvider] = p
	}
	if model := os.Getenv("CODEINTEL_EMBEDDING_MODEL"); model != "" {
		p := cfg.Embedding.Providers[cfg.Embedding.DefaultProvider]
		p.Model = model
		cfg.Embedding.Providers[cfg.Embedding.DefaultProvider] = p
	}
	if backend := os.Getenv("CODEINTEL_VECTORDB_BACKEND"); backend != "" {
		cfg.VectorDB.Backend = backend
	}
}

func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}

// IndexingTimeout returns the configured per-file timeout as a duration.
func (c *Config) IndexingTimeout() time.Duration {
	return time.Duration(c.Indexing.TimeoutSeconds) * time.Second
}
