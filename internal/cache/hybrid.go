package cache

import "time"

// HybridBackend combines a fast Memory tier with a File tier that is
// authoritative on read conflicts, per DESIGN.md's resolution of §9's open
// question about the source's unrealised "hybrid" backend.
type HybridBackend struct {
	memory *MemoryBackend
	file   *FileBackend
}

// NewHybridBackend builds a Memory-fronted, File-backed combination.
func NewHybridBackend(memory *MemoryBackend, file *FileBackend) *HybridBackend {
	return &HybridBackend{memory: memory, file: file}
}

func (h *HybridBackend) Name() string { return "hybrid" }

// Get prefers the file tier's value when present (authoritative), and
// populates the memory tier with it for fast subsequent reads; otherwise
// falls back to memory.
func (h *HybridBackend) Get(key string) ([]byte, bool, error) {
	if v, ok, _ := h.file.Get(key); ok {
		_ = h.memory.Set(key, v, 0)
		return v, true, nil
	}
	return h.memory.Get(key)
}

func (h *HybridBackend) Set(key string, value []byte, ttl time.Duration) error {
	if err := h.file.Set(key, value, ttl); err != nil {
		return err
	}
	return h.memory.Set(key, value, ttl)
}

func (h *HybridBackend) Delete(key string) error {
	_ = h.memory.Delete(key)
	return h.file.Delete(key)
}

func (h *HybridBackend) Exists(key string) (bool, error) {
	if ok, _ := h.file.Exists(key); ok {
		return true, nil
	}
	return h.memory.Exists(key)
}

func (h *HybridBackend) GetMulti(keys []string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(keys))
	for _, k := range keys {
		if v, ok, _ := h.Get(k); ok {
			out[k] = v
		}
	}
	return out, nil
}

func (h *HybridBackend) SetMulti(items map[string][]byte, ttl time.Duration) error {
	for k, v := range items {
		if err := h.Set(k, v, ttl); err != nil {
			return err
		}
	}
	return nil
}

func (h *HybridBackend) DeleteMulti(keys []string) error {
	for _, k := range keys {
		if err := h.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

func (h *HybridBackend) Clear() error {
	_ = h.memory.Clear()
	return h.file.Clear()
}

func (h *HybridBackend) GetStats() Stats {
	fs := h.file.GetStats()
	ms := h.memory.GetStats()
	return Stats{
		Backend:   h.Name(),
		Entries:   fs.Entries,
		SizeBytes: fs.SizeBytes + ms.SizeBytes,
		Hits:      fs.Hits + ms.Hits,
		Misses:    fs.Misses + ms.Misses,
		Evictions: fs.Evictions + ms.Evictions,
		Policy:    ms.Policy,
	}
}

func (h *HybridBackend) Maintenance() error {
	_ = h.memory.Maintenance()
	return h.file.Maintenance()
}

func (h *HybridBackend) HealthCheck() Health {
	fh := h.file.HealthCheck()
	if !fh.Healthy {
		return Health{Healthy: true, Message: "degraded: persistent tier unavailable, serving from memory only"}
	}
	return Health{Healthy: true}
}
