// Package models holds the engine's core data model: the types every other
// package (jobqueue, extractor, embedding, vectorstore, cache, search) reads
// and writes.
package models

import "time"

// CodebaseStatus is the lifecycle state of a Codebase.
type CodebaseStatus string

const (
	CodebaseUnindexed CodebaseStatus = "unindexed"
	CodebaseIndexing  CodebaseStatus = "indexing"
	CodebaseReady     CodebaseStatus = "ready"
	CodebaseFailed    CodebaseStatus = "failed"
)

// Codebase is a logical repository. It owns its entities: deleting a
// Codebase cascades to every CodeEntity, CodeRelationship, and Embedding
// rooted at it.
type Codebase struct {
	ID              string         `json:"id"`
	Name            string         `json:"name"`
	RootPath        string         `json:"root_path"`
	TotalSizeBytes  int64          `json:"total_size_bytes"`
	FileCount       int            `json:"file_count"`
	LanguageCounts  map[string]int `json:"language_counts"`
	Status          CodebaseStatus `json:"status"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}
