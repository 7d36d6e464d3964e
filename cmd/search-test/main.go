package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"flag"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/codeintel-dev/codeintel-engine/internal/config"
	"github.com/codeintel-dev/codeintel-engine/internal/engine"
	"github.com/codeintel-dev/codeintel-engine/internal/search"
)

func main() {
	query := flag.String("query", "", "Search query")
	repoPath := flag.String("repo", "", "Repository path")
	queryType := flag.String("type", "hybrid", "Query type: keyword|fuzzy|regex|exact|semantic|hybrid")
	flag.Parse()

	if *repoPath == "" {
		var err error
		*repoPath, err = os.Getwd()
		if err != nil {
			log.Fatalf("Failed to get current directory: %v", err)
		}
	}
	if *query == "" {
		*query = "JWT token validation"
	}

	slog.Info("Starting search test", "repository", *repoPath, "query", *query, "type", *queryType)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx := context.Background()
	eng, err := engine.New(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to create engine: %v", err)
	}
	defer eng.Close()

	abs, err := filepath.Abs(*repoPath)
	if err != nil {
		abs = *repoPath
	}
	sum := sha256.Sum256([]byte(abs))
	codebaseID := hex.EncodeToString(sum[:])[:16]

	start := time.Now()
	resp, err := eng.Search.Search(ctx, search.Query{
		Text:       *query,
		Type:       search.QueryType(*queryType),
		CodebaseID: codebaseID,
	})
	if err != nil {
		log.Fatalf("Search failed: %v", err)
	}
	duration := time.Since(start)

	slog.Info("Search completed", "duration", duration, "results_found", len(resp.Results), "from_cache", resp.FromCache)

	if len(resp.Results) == 0 {
		slog.Warn("No results found")
		return
	}

	for i, r := range resp.Results {
		e := r.Entity
		slog.Info("Search result",
			"rank", i+1,
			"qualified_name", e.QualifiedName,
			"location", e.FilePath,
			"start_line", e.StartLine,
			"end_line", e.EndLine,
			"score", r.Score,
			"source", r.Source,
			"language", e.Language,
			"kind", e.Kind)
	}

	resultsPerSec := 0.0
	if duration.Milliseconds() > 0 {
		resultsPerSec = float64(len(resp.Results)) / duration.Seconds()
	}

	slog.Info("Search performance",
		"search_time", duration,
		"results_count", len(resp.Results),
		"results_per_sec", resultsPerSec)
}
