package vectorstore

import (
	"bufio"
	"context"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/coder/hnsw"

	"github.com/codeintel-dev/codeintel-engine/internal/apperrors"
	"github.com/codeintel-dev/codeintel-engine/internal/models"
)

// HNSWStore is the in-process ANN backend, grounded on
// Aman-CERP-amanmcp's internal/store/hnsw.go: a coder/hnsw graph keyed by
// a synthetic uint64, with a string-id <-> key mapping layered on top and
// lazy deletion (orphaning mappings rather than mutating the graph, since
// coder/hnsw's own Delete can corrupt the graph when removing its last
// node).
type HNSWStore struct {
	mu    sync.RWMutex
	graph *hnsw.Graph[uint64]
	cfg   Config

	idToKey map[string]uint64
	keyToID map[uint64]string
	nextKey uint64

	embeddings map[string]*models.Embedding // full record, keyed by string id
	closed     bool
}

type hnswMeta struct {
	IDToKey    map[string]uint64
	NextKey    uint64
	Embeddings map[string]*models.Embedding
}

func init() {
	// Metadata values are plain strings in practice (codebase_id tagging);
	// gob requires concrete types stored behind an interface to be registered.
	gob.Register("")
}

// NewHNSWStore builds an empty graph per cfg.Metric/M/EfSearch.
func NewHNSWStore(cfg Config) *HNSWStore {
	if cfg.M == 0 {
		cfg.M = 16
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 20
	}
	graph := hnsw.NewGraph[uint64]()
	switch cfg.Metric {
	case MetricEuclidean:
		graph.Distance = hnsw.EuclideanDistance
	default:
		graph.Distance = hnsw.CosineDistance
	}
	graph.M = cfg.M
	graph.EfSearch = cfg.EfSearch
	graph.Ml = 0.25

	return &HNSWStore{
		graph:      graph,
		cfg:        cfg,
		idToKey:    make(map[string]uint64),
		keyToID:    make(map[uint64]string),
		embeddings: make(map[string]*models.Embedding),
	}
}

func (s *HNSWStore) Upsert(ctx context.Context, embeddings []*models.Embedding) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return apperrors.New(apperrors.IoError, "ERR_VSTORE_CLOSED", "hnsw store is closed", nil)
	}

	for _, emb := range embeddings {
		if s.cfg.Dimension > 0 && len(emb.Vector) != s.cfg.Dimension {
			return apperrors.Newf(apperrors.Validation, "ERR_VSTORE_DIM", "embedding %s has dimension %d, expected %d", emb.ID, len(emb.Vector), s.cfg.Dimension)
		}
		if oldKey, exists := s.idToKey[emb.ID]; exists {
			delete(s.keyToID, oldKey)
			delete(s.idToKey, emb.ID)
		}
		key := s.nextKey
		s.nextKey++

		vec := make([]float32, len(emb.Vector))
		copy(vec, emb.Vector)

		s.graph.Add(hnsw.MakeNode(key, vec))
		s.idToKey[emb.ID] = key
		s.keyToID[key] = emb.ID
		s.embeddings[emb.ID] = emb
	}
	return nil
}

func (s *HNSWStore) Get(ctx context.Context, id string) (*models.Embedding, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	emb, ok := s.embeddings[id]
	return emb, ok, nil
}

func (s *HNSWStore) Delete(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		if key, ok := s.idToKey[id]; ok {
			delete(s.keyToID, key)
			delete(s.idToKey, id)
			delete(s.embeddings, id)
		}
	}
	return nil
}

func (s *HNSWStore) DeleteByEntity(ctx context.Context, entityIDs []string) error {
	entitySet := make(map[string]struct{}, len(entityIDs))
	for _, id := range entityIDs {
		entitySet[id] = struct{}{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var drop []string
	for id, emb := range s.embeddings {
		if _, ok := entitySet[emb.EntityID]; ok {
			drop = append(drop, id)
		}
	}
	for _, id := range drop {
		if key, ok := s.idToKey[id]; ok {
			delete(s.keyToID, key)
			delete(s.idToKey, id)
			delete(s.embeddings, id)
		}
	}
	return nil
}

func (s *HNSWStore) SearchSimilar(ctx context.Context, vector []float32, k int, codebaseID string) ([]Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, apperrors.New(apperrors.IoError, "ERR_VSTORE_CLOSED", "hnsw store is closed", nil)
	}
	if s.graph.Len() == 0 {
		return nil, nil
	}

	// Over-fetch since lazily-deleted or cross-codebase entries must be
	// filtered out after the ANN search returns its raw neighbor set.
	fetch := k * 4
	if fetch < k+16 {
		fetch = k + 16
	}
	nodes := s.graph.Search(vector, fetch)

	out := make([]Match, 0, k)
	for _, node := range nodes {
		id, ok := s.keyToID[node.Key]
		if !ok {
			continue
		}
		emb, ok := s.embeddings[id]
		if !ok {
			continue
		}
		if codebaseID != "" && emb.Metadata != nil {
			if cb, ok := emb.Metadata["codebase_id"]; ok && cb != codebaseID {
				continue
			}
		}
		dist := Distance(s.cfg.Metric, vector, emb.Vector)
		out = append(out, Match{EntityID: emb.EntityID, Score: ScoreFromDistance(s.cfg.Metric, dist), Distance: dist})
		if len(out) >= k {
			break
		}
	}
	return out, nil
}

func (s *HNSWStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.idToKey), nil
}

// Save persists the graph and id mappings to cfg.PersistDir, atomically
// (temp file + rename), matching the teacher pack's hnsw.go save pattern.
func (s *HNSWStore) Save() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saveLocked()
}

func (s *HNSWStore) saveLocked() error {
	if s.cfg.PersistDir == "" {
		return nil
	}
	if err := os.MkdirAll(s.cfg.PersistDir, 0o755); err != nil {
		return fmt.Errorf("create persist dir: %w", err)
	}

	indexPath := filepath.Join(s.cfg.PersistDir, s.cfg.CollectionName+".hnsw")
	tmpPath := indexPath + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}
	if err := s.graph.Export(f); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("export graph: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, indexPath); err != nil {
		return fmt.Errorf("rename index file: %w", err)
	}

	metaPath := indexPath + ".meta"
	mf, err := os.Create(metaPath + ".tmp")
	if err != nil {
		return fmt.Errorf("create meta file: %w", err)
	}
	if err := gob.NewEncoder(mf).Encode(hnswMeta{IDToKey: s.idToKey, NextKey: s.nextKey, Embeddings: s.embeddings}); err != nil {
		mf.Close()
		os.Remove(metaPath + ".tmp")
		return fmt.Errorf("encode meta: %w", err)
	}
	mf.Close()
	return os.Rename(metaPath+".tmp", metaPath)
}

// Load restores a graph previously written by Save.
func (s *HNSWStore) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cfg.PersistDir == "" {
		return nil
	}
	indexPath := filepath.Join(s.cfg.PersistDir, s.cfg.CollectionName+".hnsw")

	metaPath := indexPath + ".meta"
	mf, err := os.Open(metaPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open meta file: %w", err)
	}
	defer mf.Close()
	var meta hnswMeta
	if err := gob.NewDecoder(mf).Decode(&meta); err != nil {
		return fmt.Errorf("decode meta: %w", err)
	}

	f, err := os.Open(indexPath)
	if err != nil {
		return fmt.Errorf("open index file: %w", err)
	}
	defer f.Close()
	if err := s.graph.Import(bufio.NewReader(f)); err != nil {
		return fmt.Errorf("import graph: %w", err)
	}

	s.idToKey = meta.IDToKey
	s.nextKey = meta.NextKey
	s.embeddings = meta.Embeddings
	if s.embeddings == nil {
		s.embeddings = make(map[string]*models.Embedding)
	}
	s.keyToID = make(map[uint64]string, len(meta.IDToKey))
	for id, key := range meta.IDToKey {
		s.keyToID[key] = id
	}
	return nil
}

func (s *HNSWStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	err := s.saveLocked()
	s.closed = true
	return err
}
