package cache

import (
	"fmt"
	"sync"
	"time"

	"github.com/codeintel-dev/codeintel-engine/internal/apperrors"
)

// Service fronts one or more named Backends and dispatches user-facing
// operations to whichever is currently primary (§4.7). Callers needing a
// specific backend use Backend(name) directly.
type Service struct {
	mu         sync.RWMutex
	backends   map[string]Backend
	primary    string
	lastHealth Health
}

// NewService registers backends by name and designates primary as the
// default target. primary must be one of the registered names.
func NewService(backends map[string]Backend, primary string) (*Service, error) {
	if _, ok := backends[primary]; !ok {
		return nil, apperrors.New(apperrors.Validation, "ERR_CACHE_PRIMARY",
			fmt.Sprintf("primary backend %q is not registered", primary), nil)
	}
	return &Service{backends: backends, primary: primary}, nil
}

// SetPrimary switches the default target. Returns a Validation error if
// name is not a registered backend.
func (s *Service) SetPrimary(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.backends[name]; !ok {
		return apperrors.New(apperrors.Validation, "ERR_CACHE_PRIMARY",
			fmt.Sprintf("backend %q is not registered", name), nil)
	}
	s.primary = name
	return nil
}

// Backend returns a registered backend by name, or ok=false.
func (s *Service) Backend(name string) (Backend, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.backends[name]
	return b, ok
}

func (s *Service) primaryBackend() Backend {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.backends[s.primary]
}

// Get, Exists and GetMulti degrade gracefully: a primary-backend error is
// swallowed into an "absent" result. Set, Delete, SetMulti and DeleteMulti
// return the backend's error to the caller. All of these record the
// outcome, so a failed operation turns the service's health degraded
// (§4.9) until the next successful one; Clear does not record it.
func (s *Service) Get(key string) ([]byte, bool) {
	v, ok, err := s.primaryBackend().Get(key)
	s.recordHealth(err)
	if err != nil {
		return nil, false
	}
	return v, ok
}

func (s *Service) Set(key string, value []byte, ttlSeconds int) error {
	err := s.primaryBackend().Set(key, value, secondsToDuration(ttlSeconds))
	s.recordHealth(err)
	return err
}

func (s *Service) Delete(key string) error {
	err := s.primaryBackend().Delete(key)
	s.recordHealth(err)
	return err
}

func (s *Service) Exists(key string) bool {
	ok, err := s.primaryBackend().Exists(key)
	s.recordHealth(err)
	return ok
}

func (s *Service) GetMulti(keys []string) map[string][]byte {
	out, err := s.primaryBackend().GetMulti(keys)
	s.recordHealth(err)
	return out
}

func (s *Service) SetMulti(items map[string][]byte, ttlSeconds int) error {
	err := s.primaryBackend().SetMulti(items, secondsToDuration(ttlSeconds))
	s.recordHealth(err)
	return err
}

func (s *Service) DeleteMulti(keys []string) error {
	err := s.primaryBackend().DeleteMulti(keys)
	s.recordHealth(err)
	return err
}

func (s *Service) Clear() error {
	return s.primaryBackend().Clear()
}

// GetStats reports every registered backend's stats, keyed by name.
func (s *Service) GetStats() map[string]Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]Stats, len(s.backends))
	for name, b := range s.backends {
		out[name] = b.GetStats()
	}
	return out
}

// Maintenance runs idempotent cleanup on every registered backend.
func (s *Service) Maintenance() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, b := range s.backends {
		if err := b.Maintenance(); err != nil {
			return err
		}
	}
	return nil
}

// HealthCheck reports the primary backend's health, annotated "degraded"
// when the last operation against it failed.
func (s *Service) HealthCheck() Health {
	h := s.primaryBackend().HealthCheck()
	s.mu.RLock()
	degraded := s.lastHealth.Message != "" && !s.lastHealth.Healthy
	s.mu.RUnlock()
	if degraded {
		h.Healthy = true
		h.Message = "degraded: " + s.lastHealth.Message
	}
	return h
}

func (s *Service) recordHealth(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.lastHealth = Health{Healthy: false, Message: err.Error()}
	} else {
		s.lastHealth = Health{Healthy: true}
	}
}

func secondsToDuration(sec int) time.Duration {
	return time.Duration(sec) * time.Second
}
