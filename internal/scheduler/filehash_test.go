package scheduler

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFileHashStoreDetectsChanges(t *testing.T) {
	dir := t.TempDir()
	store, err := newFileHashStore(dir)
	if err != nil {
		t.Fatalf("new file hash store: %v", err)
	}

	file := filepath.Join(t.TempDir(), "a.go")
	if err := os.WriteFile(file, []byte("package a\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	needs, err := store.NeedsReindex("cb1", file)
	if err != nil {
		t.Fatalf("needs reindex: %v", err)
	}
	if !needs {
		t.Fatalf("expected an unseen file to need reindex")
	}

	if err := store.Update("cb1", file, 2); err != nil {
		t.Fatalf("update: %v", err)
	}
	needs, err = store.NeedsReindex("cb1", file)
	if err != nil {
		t.Fatalf("needs reindex: %v", err)
	}
	if needs {
		t.Fatalf("expected unchanged file to not need reindex")
	}

	if err := os.WriteFile(file, []byte("package a\n\nfunc F() {}\n"), 0o644); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	needs, err = store.NeedsReindex("cb1", file)
	if err != nil {
		t.Fatalf("needs reindex: %v", err)
	}
	if !needs {
		t.Fatalf("expected a changed file to need reindex")
	}
}

func TestFileHashStorePersistsAcrossInstances(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(t.TempDir(), "a.go")
	if err := os.WriteFile(file, []byte("package a\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	store1, err := newFileHashStore(dir)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := store1.Update("cb1", file, 1); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := store1.Save("cb1"); err != nil {
		t.Fatalf("save: %v", err)
	}

	store2, err := newFileHashStore(dir)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	needs, err := store2.NeedsReindex("cb1", file)
	if err != nil {
		t.Fatalf("needs reindex: %v", err)
	}
	if needs {
		t.Fatalf("expected saved hash table to be reloaded, file should not need reindex")
	}
}

func TestFileHashStoreClearForcesFullReindex(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(t.TempDir(), "a.go")
	if err := os.WriteFile(file, []byte("package a\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	store, err := newFileHashStore(dir)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := store.Update("cb1", file, 1); err != nil {
		t.Fatalf("update: %v", err)
	}
	store.Clear("cb1")

	needs, err := store.NeedsReindex("cb1", file)
	if err != nil {
		t.Fatalf("needs reindex: %v", err)
	}
	if !needs {
		t.Fatalf("expected cleared codebase to need full reindex")
	}
}
