package app

import (
	"context"

	"github.com/Divyansh-Kumawat/ocean-ai/internal/retrieval"
	"github.com/Divyansh-Kumawat/ocean-ai/internal/worker"
)

// MockVectorStore is a configurable in-memory VectorStore for app tests.
type MockVectorStore struct {
	EnsureSchemaErr error
	StoreChunkErr   error

	Stored  []worker.Chunk
	Deleted []string
	Hits    []retrieval.Hit
	Count   int
}

func (m *MockVectorStore) EnsureSchema(ctx context.Context) error {
	return m.EnsureSchemaErr
}

func (m *MockVectorStore) StoreChunk(ctx context.Context, chunk worker.Chunk) error {
	if m.StoreChunkErr != nil {
		return m.StoreChunkErr
	}
	m.Stored = append(m.Stored, chunk)
	return nil
}

func (m *MockVectorStore) DeleteBySource(ctx context.Context, sourceID string) error {
	m.Deleted = append(m.Deleted, sourceID)
	return nil
}

func (m *MockVectorStore) CountChunks(ctx context.Context) (int, error) {
	return m.Count, nil
}

func (m *MockVectorStore) Search(ctx context.Context, vector []float32, limit int) ([]retrieval.Hit, error) {
	return m.Hits, nil
}
