package worker

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
	"github.com/nsqio/go-nsq"

	"github.com/Divyansh-Kumawat/ocean-ai/features/job"
	"github.com/Divyansh-Kumawat/ocean-ai/internal/middleware"
)

type ResultConsumer struct {
	updater SourceStatusUpdater
	jobRepo job.Repository
}

func NewResultConsumer(u SourceStatusUpdater, j job.Repository) *ResultConsumer {
	return &ResultConsumer{
		updater: u,
		jobRepo: j,
	}
}

func (h *ResultConsumer) HandleMessage(m *nsq.Message) error {
	if len(m.Body) == 0 {
		return nil
	}

	var payload EmbedResultPayload
	err := json.Unmarshal(m.Body, &payload)

	correlationID := payload.CorrelationID
	if correlationID == "" {
		correlationID = uuid.New().String()
	}

	ctx := context.Background()
	ctx = middleware.WithCorrelationID(ctx, correlationID)

	if err != nil {
		slog.ErrorContext(ctx, "invalid message format", "error", err)
		return nil // Don't retry invalid messages
	}

	if payload.SourceID == "" {
		slog.ErrorContext(ctx, "missing source_id, dropping", "chunk_id", payload.ChunkID)
		return nil
	}

	if payload.Status == "failed" {
		slog.ErrorContext(ctx, "embedding task failed", "source_id", payload.SourceID, "chunk_id", payload.ChunkID, "error", payload.Error)

		if err := h.updater.UpdateStatus(ctx, payload.SourceID, "failed"); err != nil {
			slog.WarnContext(ctx, "failed to update source status", "error", err)
		}

		if payload.OriginalPayload != nil {
			failedJob := &job.Job{
				SourceID: payload.SourceID,
				Handler:  "embedder-worker",
				Payload:  payload.OriginalPayload,
				Error:    payload.Error,
			}
			if err := h.jobRepo.Save(ctx, failedJob); err != nil {
				slog.ErrorContext(ctx, "failed to save failed job", "error", err)
				// Don't return error here, we don't want to retry the result processing loop
			} else {
				slog.InfoContext(ctx, "saved failed job for retry", "job_id", failedJob.ID)
			}
		}

		return nil
	}

	if payload.ChunkID == "" {
		slog.ErrorContext(ctx, "missing chunk_id, dropping", "source_id", payload.SourceID)
		return nil
	}

	if err := h.updater.MarkChunkEmbedded(ctx, payload.ChunkID); err != nil {
		slog.ErrorContext(ctx, "failed to record embedded chunk", "error", err, "chunk_id", payload.ChunkID)
		return err // Retry, completion tracking must not drift
	}

	return nil
}
