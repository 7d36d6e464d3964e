// Package ignore implements glob-style include/exclude matching for the
// scanning phase of a FullIndex (§4.3.1).
package ignore

import (
	"path/filepath"
	"strings"
)

// Matcher matches file paths against a set of glob ignore patterns.
type Matcher struct {
	patterns []string
}

// NewMatcher creates a pattern matcher over the given exclude globs.
func NewMatcher(patterns []string) *Matcher {
	return &Matcher{patterns: patterns}
}

// ShouldIgnore reports whether path matches any exclude pattern.
func (m *Matcher) ShouldIgnore(path string) bool {
	path = filepath.ToSlash(path)
	for _, pattern := range m.patterns {
		if m.matchPattern(path, pattern) {
			return true
		}
	}
	return false
}

func (m *Matcher) matchPattern(path, pattern string) bool {
	pattern = filepath.ToSlash(pattern)

	if strings.Contains(pattern, "**") {
		parts := strings.Split(pattern, "**")

		if len(parts) > 0 && parts[0] != "" {
			prefix := strings.TrimSuffix(parts[0], "/")
			if strings.HasPrefix(path, prefix+"/") || path == prefix {
				return true
			}
		}

		for _, part := range parts {
			if part != "" && part != "/" {
				part = strings.Trim(part, "/")
				if strings.Contains(path, "/"+part+"/") || strings.HasPrefix(path, part+"/") || strings.HasSuffix(path, "/"+part) {
					return true
				}
			}
		}
	}

	if matched, err := filepath.Match(pattern, path); err == nil && matched {
		return true
	}

	filename := filepath.Base(path)
	if matched, err := filepath.Match(pattern, filename); err == nil && matched {
		return true
	}

	dir := filepath.Dir(path)
	trimmed := strings.TrimSuffix(pattern, "/**")
	for dir != "." && dir != "/" {
		if filepath.Base(dir) == trimmed {
			return true
		}
		dir = filepath.Dir(dir)
	}

	return false
}

// Matches reports whether path matches at least one of the given include
// globs; an empty include list matches everything.
func Matches(path string, includes []string) bool {
	if len(includes) == 0 {
		return true
	}
	path = filepath.ToSlash(path)
	for _, pattern := range includes {
		pattern = filepath.ToSlash(pattern)
		if matched, err := filepath.Match(pattern, path); err == nil && matched {
			return true
		}
		if matched, err := filepath.Match(pattern, filepath.Base(path)); err == nil && matched {
			return true
		}
	}
	return false
}

// DefaultExcludePatterns are applied in addition to user-configured excludes
// during scanning, per §4.3.1 ("node_modules, target, build, dist, plus user
// globs").
func DefaultExcludePatterns() []string {
	return []string{
		"target/**",
		"build/**",
		"dist/**",
		"out/**",
		"node_modules/**",
		".pnp/**",
		"**/*.min.js",
		"**/*.bundle.js",
		".git/**",
		".idea/**",
		".vscode/**",
		"*.iml",
	}
}
