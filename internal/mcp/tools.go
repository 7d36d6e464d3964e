package mcp

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/codeintel-dev/codeintel-engine/internal/models"
	"github.com/codeintel-dev/codeintel-engine/internal/search"
)

// codebaseIDFor derives a stable codebase id from its absolute root path,
// so repeated tool calls against the same repository resolve to the same
// registered codebase without requiring the caller to track an id.
func codebaseIDFor(repoPath string) string {
	abs, err := filepath.Abs(repoPath)
	if err != nil {
		abs = repoPath
	}
	sum := sha256.Sum256([]byte(abs))
	return hex.EncodeToString(sum[:])[:16]
}

// Tool definitions for the MCP server
func (s *Server) getTools() []mcp.Tool {
	return []mcp.Tool{
		{
			Name:        "search_code",
			Description: "Search for code in an indexed repository. Use this tool when the user asks questions like 'where is...', 'find...', 'show me...', 'how do we...', or any question about locating specific code, functions, classes, or logic. Supports keyword, fuzzy, regex, exact, semantic, and hybrid query types; hybrid (the default) blends semantic understanding with lexical matching.",
			InputSchema: mcp.ToolInputSchema{
				Type: "object",
				Properties: map[string]interface{}{
					"query": map[string]interface{}{
						"type":        "string",
						"description": "Search text. For semantic/hybrid queries this can be a natural-language phrase; for keyword/fuzzy/exact/regex it is matched against entity names and signatures.",
					},
					"repo_path": map[string]interface{}{
						"type":        "string",
						"description": "Absolute path to the indexed repository to search",
					},
					"query_type": map[string]interface{}{
						"type":        "string",
						"description": "Retrieval strategy (default: hybrid)",
						"enum":        []string{"keyword", "fuzzy", "regex", "exact", "semantic", "hybrid"},
						"default":     "hybrid",
					},
					"limit": map[string]interface{}{
						"type":        "number",
						"description": "Maximum number of results to return (default: 10)",
						"default":     10,
					},
				},
				Required: []string{"query", "repo_path"},
			},
		},
		{
			Name:        "index_codebase",
			Description: "Index a code repository to enable search. Use this tool when: (1) first time working with a new repository, (2) the user explicitly asks to index/scan/prepare a codebase, (3) before the first search query on a repository. Scans all source files, extracts entities and relationships, generates embeddings, and builds the search index. Supports incremental indexing (only reprocesses changed files) unless force_reindex is set.",
			InputSchema: mcp.ToolInputSchema{
				Type: "object",
				Properties: map[string]interface{}{
					"repo_path": map[string]interface{}{
						"type":        "string",
						"description": "Absolute path to the repository to index",
					},
					"force_reindex": map[string]interface{}{
						"type":        "boolean",
						"description": "Force a full reindex even if the repository was already indexed (default: false)",
						"default":     false,
					},
					"generate_embeddings": map[string]interface{}{
						"type":        "boolean",
						"description": "Generate embeddings for semantic search during this index run (default: true)",
						"default":     true,
					},
					"wait": map[string]interface{}{
						"type":        "boolean",
						"description": "Block until indexing completes instead of returning the job id immediately (default: true)",
						"default":     true,
					},
				},
				Required: []string{"repo_path"},
			},
		},
		{
			Name:        "get_index_status",
			Description: "Get indexing status for a repository: whether it's indexed, file and per-language counts, and the most recent job's progress. Use before searching to check readiness, or to watch a background index job.",
			InputSchema: mcp.ToolInputSchema{
				Type: "object",
				Properties: map[string]interface{}{
					"repo_path": map[string]interface{}{
						"type":        "string",
						"description": "Absolute path to the repository",
					},
				},
				Required: []string{"repo_path"},
			},
		},
		{
			Name:        "clear_cache",
			Description: "Clear the engine's result/embedding cache. Use when search results seem stale or the user explicitly asks to reset the cache.",
			InputSchema: mcp.ToolInputSchema{
				Type:       "object",
				Properties: map[string]interface{}{},
			},
		},
		{
			Name:        "get_suggestions",
			Description: "Get autocomplete and did-you-mean suggestions for a partial query against an indexed repository.",
			InputSchema: mcp.ToolInputSchema{
				Type: "object",
				Properties: map[string]interface{}{
					"repo_path": map[string]interface{}{
						"type":        "string",
						"description": "Absolute path to the indexed repository",
					},
					"partial": map[string]interface{}{
						"type":        "string",
						"description": "Partial query text to complete",
					},
				},
				Required: []string{"repo_path", "partial"},
			},
		},
	}
}

func (s *Server) handleSearchCode(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error) {
	query, ok := args["query"].(string)
	if !ok || query == "" {
		return errorResult("query is required and must be a string"), nil
	}
	repoPath, ok := args["repo_path"].(string)
	if !ok || repoPath == "" {
		return errorResult("repo_path is required and must be a string"), nil
	}

	queryType := search.QueryHybrid
	if qt, ok := args["query_type"].(string); ok && qt != "" {
		queryType = search.QueryType(qt)
	}
	limit := s.config.Search.DefaultLimit
	if l, ok := args["limit"].(float64); ok && l > 0 {
		limit = int(l)
	}

	resp, err := s.engine.Search.Search(ctx, search.Query{
		Text:       query,
		Type:       queryType,
		CodebaseID: codebaseIDFor(repoPath),
		Limit:      limit,
	})
	if err != nil {
		return errorResult(fmt.Sprintf("search failed: %v", err)), nil
	}

	return successResult(formatSearchResults(resp)), nil
}

func (s *Server) handleIndexCodebase(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error) {
	repoPath, ok := args["repo_path"].(string)
	if !ok || repoPath == "" {
		return errorResult("repo_path is required and must be a string"), nil
	}

	forceReindex, _ := args["force_reindex"].(bool)
	generateEmbeddings := true
	if ge, ok := args["generate_embeddings"].(bool); ok {
		generateEmbeddings = ge
	}
	wait := true
	if w, ok := args["wait"].(bool); ok {
		wait = w
	}

	codebaseID := codebaseIDFor(repoPath)
	s.engine.RegisterCodebase(codebaseID, filepath.Base(repoPath), repoPath)

	kind := models.JobFullIndex
	if !forceReindex {
		kind = models.JobIncrementalIndex
	}

	job, err := s.engine.SubmitIndex(codebaseID, kind, models.PriorityNormal, nil, forceReindex, generateEmbeddings)
	if err != nil {
		return errorResult(fmt.Sprintf("failed to start indexing: %v", err)), nil
	}

	s.mu.Lock()
	s.lastJob[codebaseID] = job.ID
	s.mu.Unlock()

	if !wait {
		return successResult(map[string]interface{}{
			"message": "indexing started",
			"job_id":  job.ID,
			"repo":    repoPath,
			"status":  job.StatusSnapshot(),
		}), nil
	}

	if err := s.engine.WaitForJob(ctx, job, 200*time.Millisecond); err != nil {
		return errorResult(fmt.Sprintf("indexing did not complete: %v", err)), nil
	}

	snap := job.Snapshot()
	if snap.Status == models.JobFailed {
		return errorResult(fmt.Sprintf("indexing failed: %s", describeJobError(snap))), nil
	}

	return successResult(map[string]interface{}{
		"message":           "indexing completed",
		"job_id":            job.ID,
		"status":            snap.Status,
		"files_processed":   snap.Progress.ProcessedItems,
		"files_failed":      snap.Progress.FailedItems,
		"files_skipped":     snap.Progress.SkippedItems,
		"wall_time_seconds": snap.Stats.WallTime.Seconds(),
	}), nil
}

func (s *Server) handleGetIndexStatus(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error) {
	repoPath, ok := args["repo_path"].(string)
	if !ok || repoPath == "" {
		return errorResult("repo_path is required and must be a string"), nil
	}

	codebaseID := codebaseIDFor(repoPath)
	cb, found := s.engine.Scheduler.Codebase(codebaseID)
	if !found {
		return successResult(map[string]interface{}{
			"indexed": false,
			"repo":    repoPath,
		}), nil
	}

	response := map[string]interface{}{
		"indexed":         true,
		"repo":            repoPath,
		"status":          cb.Status,
		"file_count":      cb.FileCount,
		"language_counts": cb.LanguageCounts,
		"updated_at":      cb.UpdatedAt,
	}

	s.mu.Lock()
	jobID := s.lastJob[codebaseID]
	s.mu.Unlock()
	if jobID != "" {
		if job, ok := s.engine.Job(jobID); ok {
			snap := job.Snapshot()
			response["last_job"] = map[string]interface{}{
				"id":         job.ID,
				"status":     snap.Status,
				"phase":      snap.Progress.CurrentPhase,
				"percentage": snap.Progress.Percentage,
				"processed":  snap.Progress.ProcessedItems,
				"failed":     snap.Progress.FailedItems,
				"skipped":    snap.Progress.SkippedItems,
			}
		}
	}

	return successResult(response), nil
}

func (s *Server) handleClearCache(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error) {
	if err := s.engine.Cache.Clear(); err != nil {
		return errorResult(fmt.Sprintf("failed to clear cache: %v", err)), nil
	}
	return successResult(map[string]interface{}{"message": "cache cleared"}), nil
}

func (s *Server) handleGetSuggestions(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error) {
	repoPath, ok := args["repo_path"].(string)
	if !ok || repoPath == "" {
		return errorResult("repo_path is required and must be a string"), nil
	}
	partial, ok := args["partial"].(string)
	if !ok || partial == "" {
		return errorResult("partial is required and must be a string"), nil
	}

	suggestions := s.engine.Search.Suggest(codebaseIDFor(repoPath), partial)
	return successResult(suggestions), nil
}

func describeJobError(snap models.JobSnapshot) string {
	if snap.Error == nil {
		return "unknown error"
	}
	return fmt.Sprintf("%s: %s", snap.Error.Kind, snap.Error.Message)
}

func successResult(data interface{}) *mcp.CallToolResult {
	jsonData, _ := json.MarshalIndent(data, "", "  ")
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{
				Type: "text",
				Text: string(jsonData),
			},
		},
	}
}

func errorResult(message string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{
				Type: "text",
				Text: fmt.Sprintf("Error: %s", message),
			},
		},
		IsError: true,
	}
}

func formatSearchResults(resp *search.Response) string {
	if resp == nil || len(resp.Results) == 0 {
		return "No results found."
	}

	var out strings.Builder
	fmt.Fprintf(&out, "Found %d results (took %s):\n\n", resp.Total, resp.Took)

	for i, r := range resp.Results {
		e := r.Entity
		location := fmt.Sprintf("%s:%d-%d", e.FilePath, e.StartLine, e.EndLine)
		fmt.Fprintf(&out, "%d. %s (%s)\n", i+1, e.QualifiedName, location)
		fmt.Fprintf(&out, "   score: %.3f, kind: %s, language: %s\n", r.Score, e.Kind, e.Language)
		if e.Signature != "" {
			fmt.Fprintf(&out, "   %s\n", e.Signature)
		}
		out.WriteString("\n")
	}

	return out.String()
}
