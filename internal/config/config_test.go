package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfigHasSaneDefaults(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.VectorDB.Backend != "hnsw" {
		t.Fatalf("expected hnsw default backend, got %q", cfg.VectorDB.Backend)
	}
	if cfg.Embedding.DefaultProvider != "ollama" {
		t.Fatalf("expected ollama default provider, got %q", cfg.Embedding.DefaultProvider)
	}
	if len(cfg.Ignore.Patterns) == 0 {
		t.Fatalf("expected default ignore patterns to be non-empty")
	}
}

func TestLoadOverlaysFileOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := "vectordb:\n  backend: qdrant\n  collection_name: custom\n"
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	t.Setenv("CODEINTEL_CONFIG", path)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.VectorDB.Backend != "qdrant" {
		t.Fatalf("expected file to override backend to qdrant, got %q", cfg.VectorDB.Backend)
	}
	if cfg.VectorDB.CollectionName != "custom" {
		t.Fatalf("expected file to override collection name, got %q", cfg.VectorDB.CollectionName)
	}
	// Fields the file didn't touch should retain their defaults.
	if cfg.Embedding.DefaultProvider != "ollama" {
		t.Fatalf("expected untouched section to keep its default, got %q", cfg.Embedding.DefaultProvider)
	}
}

func TestEnvOverridesWinOverFileAndDefaults(t *testing.T) {
	t.Setenv("CODEINTEL_CONFIG", "")
	t.Setenv("CODEINTEL_VECTORDB_BACKEND", "qdrant")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.VectorDB.Backend != "qdrant" {
		t.Fatalf("expected env override to win, got %q", cfg.VectorDB.Backend)
	}
}

func TestExpandPathExpandsHomeDir(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("no home dir available: %v", err)
	}
	got := expandPath("~/.codeintel/cache")
	want := filepath.Join(home, ".codeintel/cache")
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}
