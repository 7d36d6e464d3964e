// Package vectorstore implements §4.6's vector similarity layer: a
// backend-agnostic Store interface over embeddings, with HNSW
// (github.com/coder/hnsw, in-process ANN) and Qdrant
// (github.com/qdrant/go-client, remote) implementations selectable by
// config. Grounded on Aman-CERP-amanmcp's internal/store/hnsw.go (ID
// remapping, lazy delete, gob persistence) and the teacher's
// internal/vectordb/qdrant.go (collection lifecycle, payload filters),
// generalized from the teacher's single CodeChunk payload to the
// Embedding/CodeEntity model this engine uses.
package vectorstore

import (
	"context"
	"math"
	"time"

	"github.com/codeintel-dev/codeintel-engine/internal/models"
)

// Metric is one of §4.6's declared similarity metrics.
type Metric string

const (
	MetricCosine    Metric = "cosine"
	MetricDot       Metric = "dot"
	MetricEuclidean Metric = "euclidean"
	MetricManhattan Metric = "manhattan"
)

// Match is one scored hit from SearchSimilar.
type Match struct {
	EntityID string
	Score    float64
	Distance float64
}

// Store is the backend-agnostic vector index contract: upsert, fetch,
// delete by id or by owning entity, and similarity search.
type Store interface {
	Upsert(ctx context.Context, embeddings []*models.Embedding) error
	Get(ctx context.Context, id string) (*models.Embedding, bool, error)
	Delete(ctx context.Context, ids []string) error
	DeleteByEntity(ctx context.Context, entityIDs []string) error
	SearchSimilar(ctx context.Context, vector []float32, k int, codebaseID string) ([]Match, error)
	Count(ctx context.Context) (int, error)
	Close() error
}

// Config parameterizes either backend; which fields apply depends on
// Backend.
type Config struct {
	Backend        string // "hnsw" | "qdrant"
	Dimension      int
	Metric         Metric
	CollectionName string

	// HNSW
	M          int
	EfSearch   int
	PersistDir string

	// Qdrant
	QdrantHost string
	QdrantPort int
	QdrantTLS  bool

	ConnectTimeout time.Duration
}

// Distance computes the configured metric between a and b. Cosine is
// expressed as 1 - cosine similarity, Euclidean and Manhattan are the raw
// L2 and L1 distances (0 = identical for all three); Dot is negated so
// that, consistently with the others, smaller is closer.
func Distance(metric Metric, a, b []float32) float64 {
	switch metric {
	case MetricDot:
		return -dot(a, b)
	case MetricEuclidean:
		return euclidean(a, b)
	case MetricManhattan:
		return manhattan(a, b)
	default:
		return cosineDistance(a, b)
	}
}

// ScoreFromDistance maps a raw distance back onto §4.6's score domain:
// 1.0 is a perfect match, decreasing toward (but not always reaching) 0.
func ScoreFromDistance(metric Metric, dist float64) float64 {
	switch metric {
	case MetricCosine:
		return 1 - dist/2
	case MetricDot:
		return 1 / (1 + math.Exp(dist))
	case MetricEuclidean, MetricManhattan:
		return 1 / (1 + dist)
	default:
		return 1 - dist/2
	}
}

func dot(a, b []float32) float64 {
	var sum float64
	n := minLen(a, b)
	for i := 0; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func cosineDistance(a, b []float32) float64 {
	var dotv, na, nb float64
	n := minLen(a, b)
	for i := 0; i < n; i++ {
		dotv += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 1
	}
	cos := dotv / (math.Sqrt(na) * math.Sqrt(nb))
	return 1 - cos
}

func euclidean(a, b []float32) float64 {
	var sum float64
	n := minLen(a, b)
	for i := 0; i < n; i++ {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

func manhattan(a, b []float32) float64 {
	var sum float64
	n := minLen(a, b)
	for i := 0; i < n; i++ {
		d := float64(a[i]) - float64(b[i])
		if d < 0 {
			d = -d
		}
		sum += d
	}
	return sum
}

func minLen(a, b []float32) int {
	if len(a) < len(b) {
		return len(a)
	}
	return len(b)
}

