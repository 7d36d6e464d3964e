package models

import "time"

// Embedding is a dense vector representation of one entity's embedded text.
// (ContentHash, Model) is the dedup key and must be unique; len(Vector) must
// equal the owning model's declared dimension.
type Embedding struct {
	ID          string         `json:"id"`
	EntityID    string         `json:"entity_id,omitempty"`
	ContentHash string         `json:"content_hash"`
	Model       string         `json:"model"`
	Vector      []float32      `json:"vector"`
	Dimension   int            `json:"dimension"`
	CreatedAt   time.Time      `json:"created_at"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}
