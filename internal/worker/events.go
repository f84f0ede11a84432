package worker

import "encoding/json"

type IngestEmbedPayload struct {
	SourceID   string `json:"source_id"`
	SourceName string `json:"source_name"`

	// Chunk Data
	ChunkID     string `json:"chunk_id"`
	Seq         int64  `json:"seq"`
	ChunkIndex  int    `json:"chunk_index"`
	Content     string `json:"content"`
	StartOffset int    `json:"start_offset"`
	EndOffset   int    `json:"end_offset"`

	CorrelationID string `json:"correlation_id"`
}

type EmbedResultPayload struct {
	SourceID        string          `json:"source_id"`
	ChunkID         string          `json:"chunk_id"`
	Status          string          `json:"status"` // "success" or "failed"
	Error           string          `json:"error,omitempty"`
	OriginalPayload json.RawMessage `json:"original_payload,omitempty"`
	CorrelationID   string          `json:"correlation_id,omitempty"`
}
