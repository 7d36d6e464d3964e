// Package scheduler is the control plane tying the job queue, worker
// pool, extractor, embedding service, vector store, and search index
// together behind the reactor loop of §4.3: pop a job, claim a worker,
// drive its phases, track progress/ETA, and complete/retry/fail it.
//
// Grounded on the teacher's internal/indexer/indexer.go (the Scan ->
// process-files -> embed -> store pipeline shape) and
// original_source/rust-core/crates/core/src/services/job_service.rs for
// the phase/priority/retry model the teacher's single-shot indexer has no
// equivalent of.
package scheduler

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/codeintel-dev/codeintel-engine/internal/ignore"
)

// ScanResult is the output of walking one codebase root.
type ScanResult struct {
	Files        []string
	TotalFiles   int
	SkippedFiles int
	Languages    map[string]int
	Errors       []error
}

// Scanner walks a codebase root collecting indexable files, grounded on
// the teacher's internal/indexer/scanner.go WalkDir shape, generalized to
// accept both include and exclude glob sets (§6's Indexing config) rather
// than exclude-only.
type Scanner struct {
	includePatterns  []string
	ignoreMatcher    *ignore.Matcher
	maxFileSizeBytes int64
	followSymlinks   bool
	detect           func(path string, content []byte) string
}

// NewScanner builds a Scanner. detect classifies a file's language (and
// is nil-safe: callers that don't need per-file language stats may pass
// nil, and Scan skips population of Languages).
func NewScanner(includePatterns, excludePatterns []string, maxFileSizeBytes int64, followSymlinks bool, detect func(string, []byte) string) *Scanner {
	all := append(append([]string{}, excludePatterns...), ignore.DefaultExcludePatterns()...)
	return &Scanner{
		includePatterns:  includePatterns,
		ignoreMatcher:    ignore.NewMatcher(all),
		maxFileSizeBytes: maxFileSizeBytes,
		followSymlinks:   followSymlinks,
		detect:           detect,
	}
}

// Scan walks root, skipping ignored directories/files, oversize files,
// and files failing the include-pattern filter.
func (s *Scanner) Scan(root string) (*ScanResult, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat codebase root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("codebase root is not a directory: %s", root)
	}

	result := &ScanResult{Languages: make(map[string]int)}

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("access %s: %w", path, err))
			return nil
		}

		relPath, relErr := filepath.Rel(root, path)
		if relErr != nil {
			relPath = path
		}

		if d.IsDir() {
			if path != root && (strings.HasPrefix(d.Name(), ".") || s.ignoreMatcher.ShouldIgnore(relPath)) {
				return fs.SkipDir
			}
			return nil
		}

		if !d.Type().IsRegular() && !s.followSymlinks {
			result.SkippedFiles++
			return nil
		}

		if s.ignoreMatcher.ShouldIgnore(relPath) {
			result.SkippedFiles++
			return nil
		}
		if !ignore.Matches(relPath, s.includePatterns) {
			result.SkippedFiles++
			return nil
		}

		result.TotalFiles++

		fi, err := d.Info()
		if err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("stat %s: %w", path, err))
			result.SkippedFiles++
			return nil
		}
		if s.maxFileSizeBytes > 0 && fi.Size() > s.maxFileSizeBytes {
			result.SkippedFiles++
			return nil
		}

		result.Files = append(result.Files, path)
		if s.detect != nil {
			if content, err := os.ReadFile(path); err == nil {
				if lang := s.detect(path, content); lang != "" {
					result.Languages[lang]++
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk codebase root: %w", err)
	}
	return result, nil
}
