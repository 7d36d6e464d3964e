package scheduler

import (
	"sync"

	"github.com/codeintel-dev/codeintel-engine/internal/models"
)

// EntityStore is the minimal persistence contract §6 requires of the
// core: save_entity, get_entities_by_codebase, plus the file-scoped
// lookup the scheduler needs to compute an incremental reindex's delete
// set. Concrete storage (SQL, embedded KV) is an adapter concern; this
// in-memory implementation is what that adapter would sit behind.
type EntityStore interface {
	SaveEntity(entity *models.CodeEntity) error
	SaveRelationship(rel *models.CodeRelationship) error
	GetEntitiesByCodebase(codebaseID string) ([]*models.CodeEntity, error)
	GetEntitiesByFile(codebaseID, filePath string) ([]*models.CodeEntity, error)
	DeleteEntitiesByFile(codebaseID, filePath string) ([]string, error)
	DeleteByCodebase(codebaseID string) error
}

// memoryEntityStore is the in-process EntityStore backing a single
// engine instance.
type memoryEntityStore struct {
	mu            sync.RWMutex
	entities      map[string]*models.CodeEntity              // entity id -> entity
	byCodebase    map[string]map[string]struct{}              // codebase id -> entity ids
	byFile        map[string]map[string]map[string]struct{}   // codebase id -> file path -> entity ids
	relationships map[string][]*models.CodeRelationship        // codebase id -> relationships
}

func newMemoryEntityStore() *memoryEntityStore {
	return &memoryEntityStore{
		entities:      make(map[string]*models.CodeEntity),
		byCodebase:    make(map[string]map[string]struct{}),
		byFile:        make(map[string]map[string]map[string]struct{}),
		relationships: make(map[string][]*models.CodeRelationship),
	}
}

func (s *memoryEntityStore) SaveEntity(entity *models.CodeEntity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entities[entity.ID] = entity

	cb := s.byCodebase[entity.CodebaseID]
	if cb == nil {
		cb = make(map[string]struct{})
		s.byCodebase[entity.CodebaseID] = cb
	}
	cb[entity.ID] = struct{}{}

	files := s.byFile[entity.CodebaseID]
	if files == nil {
		files = make(map[string]map[string]struct{})
		s.byFile[entity.CodebaseID] = files
	}
	ids := files[entity.FilePath]
	if ids == nil {
		ids = make(map[string]struct{})
		files[entity.FilePath] = ids
	}
	ids[entity.ID] = struct{}{}
	return nil
}

func (s *memoryEntityStore) SaveRelationship(rel *models.CodeRelationship) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.relationships[rel.CodebaseID] = append(s.relationships[rel.CodebaseID], rel)
	return nil
}

func (s *memoryEntityStore) GetEntitiesByCodebase(codebaseID string) ([]*models.CodeEntity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byCodebase[codebaseID]
	out := make([]*models.CodeEntity, 0, len(ids))
	for id := range ids {
		out = append(out, s.entities[id])
	}
	return out, nil
}

func (s *memoryEntityStore) GetEntitiesByFile(codebaseID, filePath string) ([]*models.CodeEntity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byFile[codebaseID][filePath]
	out := make([]*models.CodeEntity, 0, len(ids))
	for id := range ids {
		out = append(out, s.entities[id])
	}
	return out, nil
}

// DeleteEntitiesByFile removes every entity rooted at filePath and
// returns their ids, so the caller can also purge embeddings and search
// postings keyed by the same ids.
func (s *memoryEntityStore) DeleteEntitiesByFile(codebaseID, filePath string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	files := s.byFile[codebaseID]
	if files == nil {
		return nil, nil
	}
	ids := files[filePath]
	removed := make([]string, 0, len(ids))
	for id := range ids {
		removed = append(removed, id)
		delete(s.entities, id)
		delete(s.byCodebase[codebaseID], id)
	}
	delete(files, filePath)
	return removed, nil
}

func (s *memoryEntityStore) DeleteByCodebase(codebaseID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id := range s.byCodebase[codebaseID] {
		delete(s.entities, id)
	}
	delete(s.byCodebase, codebaseID)
	delete(s.byFile, codebaseID)
	delete(s.relationships, codebaseID)
	return nil
}
