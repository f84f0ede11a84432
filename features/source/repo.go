package source

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"

	"github.com/Divyansh-Kumawat/ocean-ai/internal/markup"
	"github.com/Divyansh-Kumawat/ocean-ai/internal/retrieval"
)

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) ExistsByHash(ctx context.Context, hash string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM sources WHERE content_hash = $1 AND deleted_at IS NULL)`
	err := r.db.QueryRowContext(ctx, query, hash).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

func (r *PostgresRepo) Save(ctx context.Context, src *Source) error {
	query := `INSERT INTO sources (name, format, content, content_hash, status) VALUES ($1, $2, $3, $4, $5) RETURNING id`
	return r.db.QueryRowContext(ctx, query, src.Name, src.Format, src.Content, src.ContentHash, src.Status).Scan(&src.ID)
}

func (r *PostgresRepo) UpdateStatus(ctx context.Context, id, status string) error {
	query := `UPDATE sources SET status = $1, updated_at = NOW() WHERE id = $2`
	_, err := r.db.ExecContext(ctx, query, status, id)
	return err
}

// MarkChunkEmbedded bumps the embedded counter for a chunk's source and
// flips the source to completed once every chunk has reported back. The
// whole transition happens in one statement, so concurrent result handlers
// cannot lose an increment.
func (r *PostgresRepo) MarkChunkEmbedded(ctx context.Context, chunkID string) error {
	query := `
		UPDATE sources SET
			embedded_count = embedded_count + 1,
			status = CASE WHEN embedded_count + 1 >= chunk_count THEN 'completed' ELSE status END,
			updated_at = NOW()
		WHERE id = (SELECT source_id FROM chunks WHERE chunk_id = $1)
		  AND deleted_at IS NULL`
	_, err := r.db.ExecContext(ctx, query, chunkID)
	return err
}

func (r *PostgresRepo) List(ctx context.Context) ([]Source, error) {
	query := `SELECT id, name, format, status, chunk_count, embedded_count, created_at, updated_at
		FROM sources WHERE deleted_at IS NULL ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sources []Source
	for rows.Next() {
		var s Source
		if err := rows.Scan(&s.ID, &s.Name, &s.Format, &s.Status, &s.ChunkCount, &s.EmbeddedCount, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		sources = append(sources, s)
	}
	return sources, rows.Err()
}

func (r *PostgresRepo) Get(ctx context.Context, id string) (*Source, error) {
	s := &Source{}
	query := `SELECT id, name, format, status, chunk_count, embedded_count, created_at, updated_at
		FROM sources WHERE id = $1 AND deleted_at IS NULL`
	err := r.db.QueryRowContext(ctx, query, id).Scan(&s.ID, &s.Name, &s.Format, &s.Status, &s.ChunkCount, &s.EmbeddedCount, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (r *PostgresRepo) GetWithContent(ctx context.Context, id string) (*Source, error) {
	s := &Source{}
	query := `SELECT id, name, format, content, status, chunk_count, embedded_count
		FROM sources WHERE id = $1 AND deleted_at IS NULL`
	err := r.db.QueryRowContext(ctx, query, id).Scan(&s.ID, &s.Name, &s.Format, &s.Content, &s.Status, &s.ChunkCount, &s.EmbeddedCount)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (r *PostgresRepo) SoftDelete(ctx context.Context, id string) error {
	query := `UPDATE sources SET deleted_at = NOW() WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id)
	return err
}

func (r *PostgresRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sources WHERE deleted_at IS NULL`).Scan(&count)
	return count, err
}

// ReplaceChunks swaps a source's chunk rows for a fresh tiling in one
// transaction and resets the embedding counters on the parent row. Seq is
// assigned by the database and written back into the slice, so callers can
// carry it into the embed task payloads.
func (r *PostgresRepo) ReplaceChunks(ctx context.Context, sourceID string, chunks []Chunk) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE source_id = $1`, sourceID); err != nil {
		return err
	}

	insert := `INSERT INTO chunks (chunk_id, source_id, chunk_index, content, start_offset, end_offset, descriptors, identifiers)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING seq`
	for i := range chunks {
		descriptors, err := json.Marshal(chunks[i].Descriptors)
		if err != nil {
			return fmt.Errorf("failed to encode descriptors: %w", err)
		}
		err = tx.QueryRowContext(ctx, insert,
			chunks[i].ChunkID, sourceID, chunks[i].ChunkIndex, chunks[i].Content,
			chunks[i].StartOffset, chunks[i].EndOffset, descriptors, pq.Array(chunks[i].Identifiers),
		).Scan(&chunks[i].Seq)
		if err != nil {
			return err
		}
	}

	update := `UPDATE sources SET chunk_count = $1, embedded_count = 0, updated_at = NOW() WHERE id = $2`
	if _, err := tx.ExecContext(ctx, update, len(chunks), sourceID); err != nil {
		return err
	}

	return tx.Commit()
}

func (r *PostgresRepo) DeleteChunks(ctx context.Context, sourceID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM chunks WHERE source_id = $1`, sourceID)
	return err
}

func (r *PostgresRepo) GetChunks(ctx context.Context, sourceID string, limit, offset int) ([]Chunk, error) {
	query := `SELECT chunk_id, source_id, seq, chunk_index, content, start_offset, end_offset, descriptors, identifiers
		FROM chunks WHERE source_id = $1 ORDER BY chunk_index ASC LIMIT $2 OFFSET $3`
	rows, err := r.db.QueryContext(ctx, query, sourceID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []Chunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

func (r *PostgresRepo) CountChunks(ctx context.Context, sourceID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks WHERE source_id = $1`, sourceID).Scan(&count)
	return count, err
}

// GetByIDs hydrates retrieval chunks. Rows whose source was soft-deleted are
// excluded by the join, so purged documents never reach a caller even if the
// vector index still holds stale entries.
func (r *PostgresRepo) GetByIDs(ctx context.Context, ids []string) ([]retrieval.Chunk, error) {
	query := `SELECT c.chunk_id, c.source_id, s.name, c.seq, c.chunk_index, c.content, c.start_offset, c.end_offset, c.identifiers
		FROM chunks c
		JOIN sources s ON s.id = c.source_id AND s.deleted_at IS NULL
		WHERE c.chunk_id = ANY($1)`
	rows, err := r.db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []retrieval.Chunk
	for rows.Next() {
		var c retrieval.Chunk
		var identifiers []string
		if err := rows.Scan(&c.ChunkID, &c.SourceID, &c.SourceName, &c.Seq, &c.ChunkIndex, &c.Text, &c.StartOffset, &c.EndOffset, pq.Array(&identifiers)); err != nil {
			return nil, err
		}
		if len(identifiers) > 0 {
			vals := make([]interface{}, len(identifiers))
			for i, id := range identifiers {
				vals[i] = id
			}
			c.Metadata = map[string]interface{}{"identifiers": vals}
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

func scanChunk(rows *sql.Rows) (Chunk, error) {
	var c Chunk
	var descriptors []byte
	if err := rows.Scan(&c.ChunkID, &c.SourceID, &c.Seq, &c.ChunkIndex, &c.Content, &c.StartOffset, &c.EndOffset, &descriptors, pq.Array(&c.Identifiers)); err != nil {
		return c, err
	}
	if len(descriptors) > 0 {
		var ds []markup.Descriptor
		if err := json.Unmarshal(descriptors, &ds); err == nil {
			c.Descriptors = ds
		}
	}
	return c, nil
}
