package search

import (
	"path/filepath"
	"sort"
	"strings"

	"github.com/codeintel-dev/codeintel-engine/internal/models"
)

// applyFilters keeps only results whose entity satisfies every configured
// filter dimension (§4.8: languages, entity types, path patterns, date
// ranges, codebase ids).
func applyFilters(results []Result, f Filters) []Result {
	if isEmptyFilters(f) {
		return results
	}
	out := results[:0]
	for _, r := range results {
		if matchesFilters(r.Entity, f) {
			out = append(out, r)
		}
	}
	return out
}

func isEmptyFilters(f Filters) bool {
	return len(f.Languages) == 0 && len(f.EntityKinds) == 0 && len(f.PathPatterns) == 0 &&
		len(f.CodebaseIDs) == 0 && f.CreatedAfter == nil && f.CreatedBefore == nil
}

func matchesFilters(e *models.CodeEntity, f Filters) bool {
	if len(f.Languages) > 0 && !containsFold(f.Languages, e.Language) {
		return false
	}
	if len(f.EntityKinds) > 0 {
		found := false
		for _, k := range f.EntityKinds {
			if k == e.Kind {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if len(f.CodebaseIDs) > 0 && !containsFold(f.CodebaseIDs, e.CodebaseID) {
		return false
	}
	if len(f.PathPatterns) > 0 {
		matched := false
		for _, pattern := range f.PathPatterns {
			if ok, _ := filepath.Match(pattern, e.FilePath); ok {
				matched = true
				break
			}
			if strings.Contains(e.FilePath, pattern) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	if f.CreatedAfter != nil && e.IndexedAt.Before(*f.CreatedAfter) {
		return false
	}
	if f.CreatedBefore != nil && e.IndexedAt.After(*f.CreatedBefore) {
		return false
	}
	return true
}

func containsFold(haystack []string, needle string) bool {
	for _, h := range haystack {
		if strings.EqualFold(h, needle) {
			return true
		}
	}
	return false
}

// applySort orders results per by, defaulting to a stable descending-score
// sort for Relevance (and as the tiebreaker for every other key).
func applySort(results []Result, by SortBy) {
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	switch by {
	case SortName:
		sort.SliceStable(results, func(i, j int) bool { return results[i].Entity.Name < results[j].Entity.Name })
	case SortFilePath:
		sort.SliceStable(results, func(i, j int) bool { return results[i].Entity.FilePath < results[j].Entity.FilePath })
	case SortCreatedAt, SortUpdatedAt:
		sort.SliceStable(results, func(i, j int) bool {
			return results[i].Entity.IndexedAt.After(results[j].Entity.IndexedAt)
		})
	}
}

// paginate slices results to [offset, offset+limit), clamping both bounds.
func paginate(results []Result, offset, limit int) []Result {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(results) {
		return nil
	}
	end := len(results)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return results[offset:end]
}
