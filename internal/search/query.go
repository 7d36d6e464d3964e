// Package search implements §4.8's hybrid search engine: query-type
// dispatch (Keyword/Fuzzy/Regex/Exact/Semantic/Structural/Hybrid), result
// filters/sort/pagination, suggestions, and result caching. Grounded on
// the teacher's internal/search/searcher.go (inverted-index keyword
// lookup, score-then-sort shape), generalized to the multi-query-type
// dispatch and entity-centric result model the expanded spec requires.
package search

import (
	"time"

	"github.com/codeintel-dev/codeintel-engine/internal/models"
)

// QueryType selects the retrieval strategy (§4.8).
type QueryType string

const (
	QueryKeyword    QueryType = "keyword"
	QueryFuzzy      QueryType = "fuzzy"
	QueryRegex      QueryType = "regex"
	QueryExact      QueryType = "exact"
	QuerySemantic   QueryType = "semantic"
	QueryStructural QueryType = "structural"
	QueryHybrid     QueryType = "hybrid"
)

// SortBy is the result ordering key.
type SortBy string

const (
	SortRelevance SortBy = "relevance"
	SortName      SortBy = "name"
	SortFilePath  SortBy = "file_path"
	SortCreatedAt SortBy = "created_at"
	SortUpdatedAt SortBy = "updated_at"
	SortSize      SortBy = "size"
	SortFileCount SortBy = "file_count"
)

// Filters narrows a query's candidate set before sort/pagination.
type Filters struct {
	Languages    []string
	EntityKinds  []models.EntityKind
	PathPatterns []string
	CodebaseIDs  []string
	CreatedAfter *time.Time
	CreatedBefore *time.Time
}

// Query is one search request.
type Query struct {
	Text       string
	Type       QueryType
	CodebaseID string
	Filters    Filters
	SortBy     SortBy
	Limit      int
	Offset     int

	// EmbeddingModel and Provider select which embedding to compute for
	// Semantic/Hybrid queries; both fall back to the service's defaults
	// when empty.
	EmbeddingModel string
	Provider       string
}

// Result is one scored hit.
type Result struct {
	Entity *models.CodeEntity
	Score  float64
	Source QueryType // which leg of a Hybrid dispatch produced this hit
}

// Response is the full answer to a Query.
type Response struct {
	Results   []Result
	Total     int
	FromCache bool
	Took      time.Duration
}

// SuggestionKind discriminates Suggestion.Kind, per search_service's
// SuggestionType (autocomplete / did-you-mean / related).
type SuggestionKind string

const (
	SuggestionAutocomplete SuggestionKind = "autocomplete"
	SuggestionDidYouMean   SuggestionKind = "did_you_mean"
	SuggestionRelated      SuggestionKind = "related"
)

// Suggestion is one ranked query suggestion.
type Suggestion struct {
	Kind       SuggestionKind
	Text       string
	Confidence float64
}
