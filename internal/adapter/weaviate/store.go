package weaviate

import (
	"context"
	"fmt"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"

	"github.com/Divyansh-Kumawat/ocean-ai/internal/retrieval"
	"github.com/Divyansh-Kumawat/ocean-ai/internal/vector"
	"github.com/Divyansh-Kumawat/ocean-ai/internal/worker"
)

const className = "CorpusChunk"

type Store struct {
	client *weaviate.Client
}

func NewStore(client *weaviate.Client) *Store {
	return &Store{client: client}
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	return vector.EnsureSchema(ctx, vector.NewWeaviateClientAdapter(s.client))
}

// StoreChunk writes one embedded chunk to the index. Any previous object
// carrying the same chunkId is removed first, so redelivered embedding
// tasks cannot produce duplicates.
func (s *Store) StoreChunk(ctx context.Context, chunk worker.Chunk) error {
	_, err := s.client.Batch().ObjectsBatchDeleter().
		WithClassName(className).
		WithOutput("minimal").
		WithWhere(filters.Where().
			WithPath([]string{"chunkId"}).
			WithOperator(filters.Equal).
			WithValueString(chunk.ChunkID)).
		Do(ctx)
	if err != nil {
		return err
	}

	_, err = s.client.Data().Creator().
		WithClassName(className).
		WithProperties(map[string]interface{}{
			"chunkId":    chunk.ChunkID,
			"sourceId":   chunk.SourceID,
			"seq":        chunk.Seq,
			"chunkIndex": chunk.ChunkIndex,
		}).
		WithVector(chunk.Vector).
		Do(ctx)
	return err
}

func (s *Store) DeleteBySource(ctx context.Context, sourceID string) error {
	_, err := s.client.Batch().ObjectsBatchDeleter().
		WithClassName(className).
		WithOutput("minimal").
		WithWhere(filters.Where().
			WithPath([]string{"sourceId"}).
			WithOperator(filters.Equal).
			WithValueString(sourceID)).
		Do(ctx)
	return err
}

// CountChunks returns the number of objects currently in the index.
func (s *Store) CountChunks(ctx context.Context) (int, error) {
	fields := []graphql.Field{
		{Name: "meta", Fields: []graphql.Field{{Name: "count"}}},
	}

	res, err := s.client.GraphQL().Aggregate().
		WithClassName(className).
		WithFields(fields...).
		Do(ctx)
	if err != nil {
		return 0, err
	}
	if len(res.Errors) > 0 {
		return 0, fmt.Errorf("graphql error: %v", res.Errors)
	}

	if data, ok := res.Data["Aggregate"].(map[string]interface{}); ok {
		if objects, ok := data[className].([]interface{}); ok && len(objects) > 0 {
			if props, ok := objects[0].(map[string]interface{}); ok {
				if meta, ok := props["meta"].(map[string]interface{}); ok {
					if count, ok := meta["count"].(float64); ok {
						return int(count), nil
					}
				}
			}
		}
	}
	return 0, nil
}

// Search runs a nearVector query and returns raw hits scored by certainty
// (normalized cosine similarity, 0..1).
func (s *Store) Search(ctx context.Context, vec []float32, limit int) ([]retrieval.Hit, error) {
	nearVector := s.client.GraphQL().NearVectorArgBuilder().WithVector(vec)

	fields := []graphql.Field{
		{Name: "chunkId"},
		{Name: "sourceId"},
		{Name: "seq"},
		{Name: "_additional", Fields: []graphql.Field{{Name: "certainty"}}},
	}

	res, err := s.client.GraphQL().Get().
		WithClassName(className).
		WithNearVector(nearVector).
		WithLimit(limit).
		WithFields(fields...).
		Do(ctx)
	if err != nil {
		return nil, err
	}

	if len(res.Errors) > 0 {
		return nil, fmt.Errorf("graphql error: %v", res.Errors)
	}

	var hits []retrieval.Hit
	if data, ok := res.Data["Get"].(map[string]interface{}); ok {
		if objects, ok := data[className].([]interface{}); ok {
			for _, o := range objects {
				props, ok := o.(map[string]interface{})
				if !ok {
					continue
				}

				hit := retrieval.Hit{}
				if id, ok := props["chunkId"].(string); ok {
					hit.ChunkID = id
				}
				if sid, ok := props["sourceId"].(string); ok {
					hit.SourceID = sid
				}
				if seq, ok := props["seq"].(float64); ok {
					hit.Seq = int64(seq)
				}
				if additional, ok := props["_additional"].(map[string]interface{}); ok {
					if c, ok := additional["certainty"].(float64); ok {
						hit.Score = c
					} else if c, ok := additional["certainty"].(string); ok {
						// Some server versions return additional fields as strings
						var f float64
						fmt.Sscanf(c, "%f", &f)
						hit.Score = f
					}
				}

				hits = append(hits, hit)
			}
		}
	}

	return hits, nil
}
