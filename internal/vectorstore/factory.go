package vectorstore

import (
	"context"

	"github.com/codeintel-dev/codeintel-engine/internal/apperrors"
)

// New builds the backend named by cfg.Backend ("hnsw" or "qdrant"). HNSW
// is loaded from cfg.PersistDir if present.
func New(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Backend {
	case "qdrant":
		return NewQdrantStore(ctx, cfg)
	case "hnsw", "":
		s := NewHNSWStore(cfg)
		if err := s.Load(); err != nil {
			return nil, apperrors.Wrap(apperrors.IoError, "ERR_VSTORE_LOAD", err)
		}
		return s, nil
	default:
		return nil, apperrors.Newf(apperrors.ConfigError, "ERR_VSTORE_BACKEND", "unknown vector store backend %q", cfg.Backend)
	}
}
