package scheduler

import (
	"os"
	"path/filepath"
	"testing"
)

func TestScanSkipsIgnoredAndOversizeFiles(t *testing.T) {
	root := t.TempDir()
	mustWrite(t, filepath.Join(root, "main.go"), "package main\n")
	mustWrite(t, filepath.Join(root, "big.go"), string(make([]byte, 1024)))
	if err := os.MkdirAll(filepath.Join(root, "node_modules", "pkg"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	mustWrite(t, filepath.Join(root, "node_modules", "pkg", "index.js"), "module.exports = {}\n")

	var seenLangs []string
	scanner := NewScanner(nil, nil, 100, false, func(path string, content []byte) string {
		seenLangs = append(seenLangs, path)
		return "go"
	})

	result, err := scanner.Scan(root)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(result.Files) != 1 || filepath.Base(result.Files[0]) != "main.go" {
		t.Fatalf("expected only main.go to survive scanning, got %+v", result.Files)
	}
	if result.SkippedFiles == 0 {
		t.Fatalf("expected big.go and node_modules/pkg/index.js to be skipped")
	}
}

func TestScanIncludePatternsFilter(t *testing.T) {
	root := t.TempDir()
	mustWrite(t, filepath.Join(root, "a.go"), "package a\n")
	mustWrite(t, filepath.Join(root, "a.py"), "x = 1\n")

	scanner := NewScanner([]string{"*.go"}, nil, 0, false, nil)
	result, err := scanner.Scan(root)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(result.Files) != 1 || filepath.Base(result.Files[0]) != "a.go" {
		t.Fatalf("expected only a.go to match include pattern, got %+v", result.Files)
	}
}

func mustWrite(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
