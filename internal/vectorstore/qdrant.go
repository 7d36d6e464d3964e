package vectorstore

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"

	"github.com/codeintel-dev/codeintel-engine/internal/apperrors"
	"github.com/codeintel-dev/codeintel-engine/internal/models"
)

// QdrantStore is the remote ANN backend, adapted from the teacher's
// internal/vectordb/qdrant.go: same collection-lifecycle and payload-filter
// style, generalized from the teacher's single CodeChunk payload to the
// engine's Embedding record (entity id, content hash, model, metadata).
type QdrantStore struct {
	client     *qdrant.Client
	collection string
	cfg        Config
}

// NewQdrantStore connects to a Qdrant instance over gRPC and ensures its
// collection exists with the configured dimension/metric.
func NewQdrantStore(ctx context.Context, cfg Config) (*QdrantStore, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.QdrantHost,
		Port:   cfg.QdrantPort,
		UseTLS: cfg.QdrantTLS,
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.NetworkError, "ERR_VSTORE_CONNECT", err)
	}

	s := &QdrantStore{client: client, collection: cfg.CollectionName, cfg: cfg}
	if err := s.ensureCollection(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *QdrantStore) ensureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return apperrors.Wrap(apperrors.NetworkError, "ERR_VSTORE_COLLECTION_CHECK", err)
	}
	if exists {
		return nil
	}
	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: &qdrant.VectorsConfig{
			Config: &qdrant.VectorsConfig_Params{
				Params: &qdrant.VectorParams{
					Size:     uint64(s.cfg.Dimension),
					Distance: qdrantDistance(s.cfg.Metric),
				},
			},
		},
	})
	if err != nil {
		return apperrors.Wrap(apperrors.NetworkError, "ERR_VSTORE_CREATE_COLLECTION", err)
	}
	return nil
}

func qdrantDistance(m Metric) qdrant.Distance {
	switch m {
	case MetricDot:
		return qdrant.Distance_Dot
	case MetricEuclidean:
		return qdrant.Distance_Euclid
	default:
		return qdrant.Distance_Cosine
	}
}

func (s *QdrantStore) Upsert(ctx context.Context, embeddings []*models.Embedding) error {
	if len(embeddings) == 0 {
		return nil
	}
	points := make([]*qdrant.PointStruct, len(embeddings))
	for i, emb := range embeddings {
		payload := map[string]*qdrant.Value{
			"entity_id":    qdrant.NewValueString(emb.EntityID),
			"content_hash": qdrant.NewValueString(emb.ContentHash),
			"model":        qdrant.NewValueString(emb.Model),
		}
		if cb, ok := emb.Metadata["codebase_id"]; ok {
			payload["codebase_id"] = qdrant.NewValueString(fmt.Sprint(cb))
		}

		vector := make([]float32, len(emb.Vector))
		copy(vector, emb.Vector)

		points[i] = &qdrant.PointStruct{
			Id: &qdrant.PointId{PointIdOptions: &qdrant.PointId_Uuid{Uuid: emb.ID}},
			Vectors: &qdrant.Vectors{
				VectorsOptions: &qdrant.Vectors_Vector{Vector: &qdrant.Vector{Data: vector}},
			},
			Payload: payload,
		}
	}
	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{CollectionName: s.collection, Points: points})
	if err != nil {
		return apperrors.Wrap(apperrors.NetworkError, "ERR_VSTORE_UPSERT", err)
	}
	return nil
}

func (s *QdrantStore) Get(ctx context.Context, id string) (*models.Embedding, bool, error) {
	points, err := s.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: s.collection,
		Ids:            []*qdrant.PointId{{PointIdOptions: &qdrant.PointId_Uuid{Uuid: id}}},
		WithVectors:    &qdrant.WithVectorsSelector{SelectorOptions: &qdrant.WithVectorsSelector_Enable{Enable: true}},
		WithPayload:    &qdrant.WithPayloadSelector{SelectorOptions: &qdrant.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, false, apperrors.Wrap(apperrors.NetworkError, "ERR_VSTORE_GET", err)
	}
	if len(points) == 0 {
		return nil, false, nil
	}
	return retrievedToEmbedding(id, points[0]), true, nil
}

func retrievedToEmbedding(id string, p *qdrant.RetrievedPoint) *models.Embedding {
	emb := &models.Embedding{ID: id, Metadata: map[string]any{}}
	if p.Payload != nil {
		if v, ok := p.Payload["entity_id"]; ok {
			emb.EntityID = v.GetStringValue()
		}
		if v, ok := p.Payload["content_hash"]; ok {
			emb.ContentHash = v.GetStringValue()
		}
		if v, ok := p.Payload["model"]; ok {
			emb.Model = v.GetStringValue()
		}
		if v, ok := p.Payload["codebase_id"]; ok {
			emb.Metadata["codebase_id"] = v.GetStringValue()
		}
	}
	if p.Vectors != nil {
		if vec := p.Vectors.GetVector(); vec != nil {
			emb.Vector = vec.Data
			emb.Dimension = len(vec.Data)
		}
	}
	return emb
}

func (s *QdrantStore) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	pointIDs := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = &qdrant.PointId{PointIdOptions: &qdrant.PointId_Uuid{Uuid: id}}
	}
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Points{Points: &qdrant.PointsIdsList{Ids: pointIDs}},
		},
	})
	if err != nil {
		return apperrors.Wrap(apperrors.NetworkError, "ERR_VSTORE_DELETE", err)
	}
	return nil
}

func (s *QdrantStore) DeleteByEntity(ctx context.Context, entityIDs []string) error {
	if len(entityIDs) == 0 {
		return nil
	}
	conditions := make([]*qdrant.Condition, len(entityIDs))
	for i, id := range entityIDs {
		conditions[i] = &qdrant.Condition{
			ConditionOneOf: &qdrant.Condition_Field{
				Field: &qdrant.FieldCondition{
					Key:   "entity_id",
					Match: &qdrant.Match{MatchValue: &qdrant.Match_Keyword{Keyword: id}},
				},
			},
		}
	}
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Filter{
				Filter: &qdrant.Filter{Should: conditions},
			},
		},
	})
	if err != nil {
		return apperrors.Wrap(apperrors.NetworkError, "ERR_VSTORE_DELETE_ENTITY", err)
	}
	return nil
}

func (s *QdrantStore) SearchSimilar(ctx context.Context, vector []float32, k int, codebaseID string) ([]Match, error) {
	limit := uint64(k)
	query := &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          &limit,
		WithPayload:    &qdrant.WithPayloadSelector{SelectorOptions: &qdrant.WithPayloadSelector_Enable{Enable: true}},
	}
	if codebaseID != "" {
		query.Filter = &qdrant.Filter{
			Must: []*qdrant.Condition{{
				ConditionOneOf: &qdrant.Condition_Field{
					Field: &qdrant.FieldCondition{
						Key:   "codebase_id",
						Match: &qdrant.Match{MatchValue: &qdrant.Match_Keyword{Keyword: codebaseID}},
					},
				},
			}},
		}
	}

	results, err := s.client.Query(ctx, query)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.NetworkError, "ERR_VSTORE_SEARCH", err)
	}

	out := make([]Match, 0, len(results))
	for _, r := range results {
		entityID := ""
		if r.Payload != nil {
			if v, ok := r.Payload["entity_id"]; ok {
				entityID = v.GetStringValue()
			}
		}
		out = append(out, Match{EntityID: entityID, Score: float64(r.Score)})
	}
	return out, nil
}

func (s *QdrantStore) Count(ctx context.Context) (int, error) {
	count, err := s.client.Count(ctx, &qdrant.CountPoints{CollectionName: s.collection})
	if err != nil {
		return 0, apperrors.Wrap(apperrors.NetworkError, "ERR_VSTORE_COUNT", err)
	}
	return int(count), nil
}

func (s *QdrantStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}
