package worker

import (
	"context"
)

type Chunk struct {
	ChunkID     string
	SourceID    string
	Seq         int64
	ChunkIndex  int
	Content     string
	StartOffset int
	EndOffset   int
	Vector      []float32
}

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type VectorStore interface {
	StoreChunk(ctx context.Context, chunk Chunk) error
}

type SourceStatusUpdater interface {
	UpdateStatus(ctx context.Context, id, status string) error
	MarkChunkEmbedded(ctx context.Context, chunkID string) error
}

type TaskPublisher interface {
	Publish(topic string, body []byte) error
}
