package source

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/Divyansh-Kumawat/ocean-ai/internal/config"
	"github.com/Divyansh-Kumawat/ocean-ai/internal/markup"
	"github.com/Divyansh-Kumawat/ocean-ai/internal/middleware"
	"github.com/Divyansh-Kumawat/ocean-ai/internal/text"
	"github.com/Divyansh-Kumawat/ocean-ai/internal/worker"
)

var (
	ErrDuplicate     = errors.New("duplicate source")
	ErrEmptyDocument = errors.New("document is empty")
	ErrTooLarge      = errors.New("document exceeds size limit")
)

const (
	FormatText   = "text"
	FormatMarkup = "markup"
)

type Source struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Format        string `json:"format"`
	Content       string `json:"-"`
	ContentHash   string `json:"-"`
	Status        string `json:"status"` // in_progress, completed, failed
	ChunkCount    int    `json:"chunk_count"`
	EmbeddedCount int    `json:"embedded_count"`
	CreatedAt     string `json:"created_at,omitempty"`
	UpdatedAt     string `json:"updated_at,omitempty"`
}

// Chunk is one stored tile of a source document. Offsets are byte positions
// into the original content, so a citation can always be mapped back.
type Chunk struct {
	ChunkID     string              `json:"chunk_id"`
	SourceID    string              `json:"source_id"`
	Seq         int64               `json:"-"`
	ChunkIndex  int                 `json:"chunk_index"`
	Content     string              `json:"content"`
	StartOffset int                 `json:"start_offset"`
	EndOffset   int                 `json:"end_offset"`
	Descriptors []markup.Descriptor `json:"descriptors,omitempty"`
	Identifiers []string            `json:"identifiers,omitempty"`
}

type Repository interface {
	Save(ctx context.Context, src *Source) error
	ExistsByHash(ctx context.Context, hash string) (bool, error)
	Get(ctx context.Context, id string) (*Source, error)
	GetWithContent(ctx context.Context, id string) (*Source, error)
	List(ctx context.Context) ([]Source, error)
	UpdateStatus(ctx context.Context, id, status string) error
	SoftDelete(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)

	ReplaceChunks(ctx context.Context, sourceID string, chunks []Chunk) error
	DeleteChunks(ctx context.Context, sourceID string) error
	GetChunks(ctx context.Context, sourceID string, limit, offset int) ([]Chunk, error)
	CountChunks(ctx context.Context, sourceID string) (int, error)
}

// VectorIndex purges index entries for a source. Implemented by the
// weaviate adapter.
type VectorIndex interface {
	DeleteBySource(ctx context.Context, sourceID string) error
}

type EventPublisher interface {
	Publish(topic string, body []byte) error
}

type Service struct {
	repo  Repository
	pub   EventPublisher
	index VectorIndex

	maxChunkBytes int
	chunkOverlap  int
	maxDocBytes   int

	// One lock per source so concurrent ingestions of the same document
	// cannot interleave purge and insert.
	locks sync.Map
}

func NewService(repo Repository, pub EventPublisher, index VectorIndex, maxChunkBytes, chunkOverlap, maxDocBytes int) *Service {
	return &Service{
		repo:          repo,
		pub:           pub,
		index:         index,
		maxChunkBytes: maxChunkBytes,
		chunkOverlap:  chunkOverlap,
		maxDocBytes:   maxDocBytes,
	}
}

func (s *Service) lockFor(id string) *sync.Mutex {
	mu, _ := s.locks.LoadOrStore(id, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// Create registers a document and runs the ingestion pipeline: chunk, store,
// and queue one embedding task per chunk. Embedding itself is asynchronous;
// the source stays in_progress until every chunk reports back.
func (s *Service) Create(ctx context.Context, src *Source) error {
	if strings.TrimSpace(src.Content) == "" {
		return ErrEmptyDocument
	}
	if s.maxDocBytes > 0 && len(src.Content) > s.maxDocBytes {
		return fmt.Errorf("%w: %d bytes", ErrTooLarge, len(src.Content))
	}

	if src.Format == "" {
		src.Format = FormatText
	}
	if src.Format != FormatText && src.Format != FormatMarkup {
		return fmt.Errorf("unsupported format %q", src.Format)
	}

	hash := sha256.Sum256([]byte(src.Content))
	src.ContentHash = fmt.Sprintf("%x", hash)

	exists, err := s.repo.ExistsByHash(ctx, src.ContentHash)
	if err != nil {
		return err
	}
	if exists {
		return ErrDuplicate
	}

	src.Status = "in_progress"
	if err := s.repo.Save(ctx, src); err != nil {
		return err
	}

	if err := s.ingest(ctx, src); err != nil {
		if updErr := s.repo.UpdateStatus(ctx, src.ID, "failed"); updErr != nil {
			slog.Error("failed to mark source failed", "error", updErr, "source_id", src.ID)
		}
		return err
	}
	return nil
}

// ingest purges any previous chunks for the source, tiles the content and
// publishes one embed task per chunk. Serialized per source.
func (s *Service) ingest(ctx context.Context, src *Source) error {
	mu := s.lockFor(src.ID)
	mu.Lock()
	defer mu.Unlock()

	if err := s.index.DeleteBySource(ctx, src.ID); err != nil {
		return fmt.Errorf("failed to purge vector index: %w", err)
	}
	if err := s.repo.DeleteChunks(ctx, src.ID); err != nil {
		return fmt.Errorf("failed to purge chunks: %w", err)
	}

	spans := text.Split(src.Content, s.maxChunkBytes, s.chunkOverlap)

	var descs []markup.Descriptor
	if src.Format == FormatMarkup {
		descs = markup.Extract(src.Content)
	}

	chunks := make([]Chunk, 0, len(spans))
	for _, sp := range spans {
		c := Chunk{
			ChunkID:     text.ChunkID(src.ID, sp.StartOffset),
			SourceID:    src.ID,
			ChunkIndex:  sp.Index,
			Content:     sp.Text,
			StartOffset: sp.StartOffset,
			EndOffset:   sp.EndOffset,
		}
		// A descriptor belongs to every chunk whose span covers the
		// element's opening tag.
		for _, d := range descs {
			if d.Start >= sp.StartOffset && d.Start < sp.EndOffset {
				c.Descriptors = append(c.Descriptors, d)
			}
		}
		c.Identifiers = markup.Identifiers(c.Descriptors)
		chunks = append(chunks, c)
	}

	if err := s.repo.ReplaceChunks(ctx, src.ID, chunks); err != nil {
		return fmt.Errorf("failed to store chunks: %w", err)
	}
	src.ChunkCount = len(chunks)
	src.EmbeddedCount = 0

	corrID := middleware.GetCorrelationID(ctx)
	for _, c := range chunks {
		payload, _ := json.Marshal(worker.IngestEmbedPayload{
			SourceID:      src.ID,
			SourceName:    src.Name,
			ChunkID:       c.ChunkID,
			Seq:           c.Seq,
			ChunkIndex:    c.ChunkIndex,
			Content:       c.Content,
			StartOffset:   c.StartOffset,
			EndOffset:     c.EndOffset,
			CorrelationID: corrID,
		})
		if err := s.pub.Publish(config.TopicIngestEmbed, payload); err != nil {
			return fmt.Errorf("failed to publish embed task: %w", err)
		}
	}

	slog.Info("queued source for embedding", "source_id", src.ID, "chunks", len(chunks))
	return nil
}

type SourceDetail struct {
	Source
	Chunks      []Chunk `json:"chunks"`
	TotalChunks int     `json:"total_chunks"`
}

func (s *Service) Get(ctx context.Context, id string, limit, offset int, includeChunks bool) (*SourceDetail, error) {
	src, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	detail := &SourceDetail{Source: *src, Chunks: []Chunk{}}

	total, err := s.repo.CountChunks(ctx, id)
	if err != nil {
		slog.Warn("failed to count chunks", "error", err, "source_id", id)
	} else {
		detail.TotalChunks = total
	}

	if includeChunks {
		chunks, err := s.repo.GetChunks(ctx, id, limit, offset)
		if err != nil {
			slog.Warn("failed to fetch chunks", "error", err, "source_id", id)
		} else if chunks != nil {
			detail.Chunks = chunks
		}
	}
	return detail, nil
}

func (s *Service) List(ctx context.Context) ([]Source, error) {
	return s.repo.List(ctx)
}

// Delete purges the vector index and chunk rows before soft-deleting the
// source, so a deleted document can never surface in retrieval again.
func (s *Service) Delete(ctx context.Context, id string) error {
	mu := s.lockFor(id)
	mu.Lock()
	defer mu.Unlock()

	if err := s.index.DeleteBySource(ctx, id); err != nil {
		return err
	}
	if err := s.repo.DeleteChunks(ctx, id); err != nil {
		return err
	}
	return s.repo.SoftDelete(ctx, id)
}

// ReSync re-runs ingestion from the stored content. Chunk IDs are derived
// from source and offset, so an unchanged document reproduces the same IDs.
func (s *Service) ReSync(ctx context.Context, id string) error {
	src, err := s.repo.GetWithContent(ctx, id)
	if err != nil {
		return err
	}

	if err := s.repo.UpdateStatus(ctx, id, "in_progress"); err != nil {
		return err
	}

	if err := s.ingest(ctx, src); err != nil {
		if updErr := s.repo.UpdateStatus(ctx, id, "failed"); updErr != nil {
			slog.Error("failed to mark source failed", "error", updErr, "source_id", id)
		}
		return err
	}
	return nil
}
