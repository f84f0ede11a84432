package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nsqio/go-nsq"

	"github.com/Divyansh-Kumawat/ocean-ai/internal/config"
	"github.com/Divyansh-Kumawat/ocean-ai/internal/middleware"
)

type EmbedderConsumer struct {
	embedder  Embedder
	store     VectorStore
	publisher TaskPublisher
	timeout   time.Duration
}

func NewEmbedderConsumer(e Embedder, s VectorStore, p TaskPublisher) *EmbedderConsumer {
	return &EmbedderConsumer{
		embedder:  e,
		store:     s,
		publisher: p,
		timeout:   60 * time.Second,
	}
}

// WithTimeout overrides the per-chunk embedding deadline.
func (h *EmbedderConsumer) WithTimeout(d time.Duration) *EmbedderConsumer {
	if d > 0 {
		h.timeout = d
	}
	return h
}

func (h *EmbedderConsumer) HandleMessage(m *nsq.Message) error {
	if len(m.Body) == 0 {
		return nil
	}

	var payload IngestEmbedPayload
	if err := json.Unmarshal(m.Body, &payload); err != nil {
		// Poison Pill: Invalid JSON, don't retry
		slog.Error("poison pill: invalid json", "error", err)
		return nil
	}

	ctx := context.Background()
	if payload.CorrelationID != "" {
		ctx = middleware.WithCorrelationID(ctx, payload.CorrelationID)
	}

	input := fmt.Sprintf("Source: %s\n---\n%s", payload.SourceName, payload.Content)

	embedCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	vector, err := h.embedder.Embed(embedCtx, input)
	if err != nil {
		slog.ErrorContext(ctx, "embedding failed", "error", err, "source_id", payload.SourceID, "chunk_id", payload.ChunkID)
		return err // Retry
	}

	chunk := Chunk{
		ChunkID:     payload.ChunkID,
		SourceID:    payload.SourceID,
		Seq:         payload.Seq,
		ChunkIndex:  payload.ChunkIndex,
		Content:     payload.Content,
		StartOffset: payload.StartOffset,
		EndOffset:   payload.EndOffset,
		Vector:      vector,
	}

	if err := h.store.StoreChunk(embedCtx, chunk); err != nil {
		slog.ErrorContext(ctx, "store chunk failed", "error", err, "source_id", payload.SourceID, "chunk_id", payload.ChunkID)
		return err // Retry
	}

	h.publishResult(ctx, EmbedResultPayload{
		SourceID:      payload.SourceID,
		ChunkID:       payload.ChunkID,
		Status:        "success",
		CorrelationID: payload.CorrelationID,
	})

	slog.InfoContext(ctx, "chunk embedded", "source_id", payload.SourceID, "chunk_id", payload.ChunkID, "seq", payload.Seq)
	return nil
}

// LogFailedMessage runs when NSQ gives up on a message after max attempts.
// The task is handed to the result consumer as a dead letter.
func (h *EmbedderConsumer) LogFailedMessage(m *nsq.Message) {
	var payload IngestEmbedPayload
	if err := json.Unmarshal(m.Body, &payload); err != nil {
		slog.Error("dropping unparseable dead letter", "error", err)
		return
	}

	ctx := context.Background()
	if payload.CorrelationID != "" {
		ctx = middleware.WithCorrelationID(ctx, payload.CorrelationID)
	}

	h.publishResult(ctx, EmbedResultPayload{
		SourceID:        payload.SourceID,
		ChunkID:         payload.ChunkID,
		Status:          "failed",
		Error:           fmt.Sprintf("gave up after %d attempts", m.Attempts),
		OriginalPayload: json.RawMessage(m.Body),
		CorrelationID:   payload.CorrelationID,
	})
}

func (h *EmbedderConsumer) publishResult(ctx context.Context, result EmbedResultPayload) {
	body, err := json.Marshal(result)
	if err != nil {
		slog.ErrorContext(ctx, "failed to marshal embed result", "error", err)
		return
	}
	if err := h.publisher.Publish(config.TopicIngestResult, body); err != nil {
		slog.ErrorContext(ctx, "failed to publish embed result", "error", err, "chunk_id", result.ChunkID)
	}
}
