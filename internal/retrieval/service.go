package retrieval

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/Divyansh-Kumawat/ocean-ai/internal/settings"
)

// ErrInsufficientGrounding means no chunk cleared the relevance floor for a
// query. Callers must surface this instead of generating from thin air.
var ErrInsufficientGrounding = errors.New("insufficient grounding for query")

// Hit is a raw index match before hydration from the chunk store.
type Hit struct {
	ChunkID  string
	SourceID string
	Seq      int64
	Score    float64
}

// Chunk is the store-backed form of a hit, addressable by byte offsets
// into its source document.
type Chunk struct {
	ChunkID     string                 `json:"chunk_id"`
	SourceID    string                 `json:"source_id"`
	SourceName  string                 `json:"source_name,omitempty"`
	Seq         int64                  `json:"-"`
	ChunkIndex  int                    `json:"chunk_index"`
	Text        string                 `json:"text"`
	StartOffset int                    `json:"start_offset"`
	EndOffset   int                    `json:"end_offset"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

type Result struct {
	Chunk
	Score float64 `json:"score"`
}

type Options struct {
	TopK         *int
	MinRelevance *float64
	Feature      string
}

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type Index interface {
	Search(ctx context.Context, vector []float32, limit int) ([]Hit, error)
}

type ChunkStore interface {
	GetByIDs(ctx context.Context, ids []string) ([]Chunk, error)
}

type Service struct {
	embedder Embedder
	index    Index
	chunks   ChunkStore
	settings *settings.Service
	logger   *QueryLogger
}

func NewService(e Embedder, idx Index, cs ChunkStore, set *settings.Service, l *QueryLogger) *Service {
	return &Service{embedder: e, index: idx, chunks: cs, settings: set, logger: l}
}

// Retrieve embeds the query, searches the index and hydrates the surviving
// hits from the chunk store. Equal scores are broken by insertion order, so
// the same corpus and query always produce the same context.
func (s *Service) Retrieve(ctx context.Context, query string, opts *Options) ([]Result, error) {
	start := time.Now()
	var finalDocs []Result
	var err error

	defer func() {
		if s.logger != nil && err == nil {
			s.logger.Log(QueryLogEntry{
				Query:      query,
				NumResults: len(finalDocs),
				Duration:   time.Since(start),
			})
		}
	}()

	// Get settings for defaults
	cfg, err := s.settings.Get(ctx)
	if err != nil {
		// Fallback defaults if settings fail (shouldn't happen)
		cfg = &settings.Settings{SearchTopK: 5, MinRelevance: 0.55}
	}

	topK := cfg.SearchTopK
	minRelevance := cfg.MinRelevance
	feature := ""

	if opts != nil {
		if opts.TopK != nil && *opts.TopK > 0 {
			topK = *opts.TopK
		}
		if opts.MinRelevance != nil {
			minRelevance = *opts.MinRelevance
		}
		feature = opts.Feature
	}

	// 1. Embed Query
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	// 2. Index Search
	hits, err := s.index.Search(ctx, vec, topK)
	if err != nil {
		return nil, err
	}

	// 3. Deterministic order: score desc, then insertion order
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Seq < hits[j].Seq
	})

	// 4. Relevance floor
	kept := hits[:0]
	for _, h := range hits {
		if h.Score >= minRelevance {
			kept = append(kept, h)
		}
	}

	if len(kept) == 0 {
		err = ErrInsufficientGrounding
		return nil, err
	}

	// 5. Hydrate from the chunk store. Hits whose chunks were purged since
	// indexing are dropped here, so deleted sources never reach a caller.
	ids := make([]string, len(kept))
	for i, h := range kept {
		ids[i] = h.ChunkID
	}
	rows, err := s.chunks.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]Chunk, len(rows))
	for _, c := range rows {
		byID[c.ChunkID] = c
	}

	for _, h := range kept {
		c, ok := byID[h.ChunkID]
		if !ok {
			continue
		}
		if feature != "" && !matchesFeature(c, feature) {
			continue
		}
		finalDocs = append(finalDocs, Result{Chunk: c, Score: h.Score})
	}

	if len(finalDocs) == 0 {
		err = ErrInsufficientGrounding
		return nil, err
	}

	return finalDocs, nil
}

// matchesFeature checks a chunk against a caller-supplied feature label,
// matching element identifiers from markup metadata, the source name, or
// the chunk text itself.
func matchesFeature(c Chunk, feature string) bool {
	needle := strings.ToLower(feature)

	if ids, ok := c.Metadata["identifiers"].([]interface{}); ok {
		for _, v := range ids {
			if s, ok := v.(string); ok && strings.Contains(strings.ToLower(s), needle) {
				return true
			}
		}
	}
	if strings.Contains(strings.ToLower(c.SourceName), needle) {
		return true
	}
	return strings.Contains(strings.ToLower(c.Text), needle)
}
