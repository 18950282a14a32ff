// Package retrieve answers queries against the vector index, optionally
// blending in keyword relevance from the bleve index.
package retrieve

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/kiokusearch/kioku/internal/config"
	"github.com/kiokusearch/kioku/internal/embedding"
	"github.com/kiokusearch/kioku/internal/index"
	"github.com/kiokusearch/kioku/internal/keyword"
	"github.com/kiokusearch/kioku/internal/models"
)

// ErrEmptyQuery is returned for queries that are empty or whitespace.
var ErrEmptyQuery = errors.New("query cannot be empty")

// Engine embeds queries and ranks records. No results is an empty slice,
// never an error.
type Engine struct {
	index    *index.Index
	embedder embedding.Embedder
	keyword  keyword.Index // nil disables hybrid retrieval
	cfg      config.RetrievalConfig
	logger   *zap.Logger
}

// New creates a retrieval engine. kw may be nil, in which case keyword
// weights are ignored and retrieval is purely vector-based.
func New(idx *index.Index, embedder embedding.Embedder, kw keyword.Index, cfg config.RetrievalConfig, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		index:    idx,
		embedder: embedder,
		keyword:  kw,
		cfg:      cfg,
		logger:   logger,
	}
}

// Retrieve runs one query: embed, rank, threshold, snippet. Results are
// ordered by score descending with deterministic tie-breaking (most recent
// UpdatedAt first, then id).
func (e *Engine) Retrieve(ctx context.Context, q *models.RetrieveQuery) ([]models.ScoredRecord, error) {
	if q == nil || strings.TrimSpace(q.Query) == "" {
		return nil, ErrEmptyQuery
	}
	e.applyDefaults(q)
	if err := q.Validate(); err != nil {
		return nil, err
	}

	filter := buildFilter(q)
	weight := q.KeywordWeight
	if e.keyword == nil {
		weight = 0
	}

	// Hybrid mode pulls a wider candidate set from both channels so fusion
	// has overlap to work with; pure vector needs exactly the top k.
	k := q.Limit
	if weight > 0 {
		k = candidateLimit(q.Limit)
	}

	var (
		queryVec  []float32
		hits      []index.Hit
		kwResults []*keyword.Result
		errChan   = make(chan error, 2)
		wg        sync.WaitGroup
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		vec, err := e.embedder.Embed(ctx, q.Query)
		if err != nil {
			errChan <- fmt.Errorf("failed to embed query: %w", err)
			return
		}
		queryVec = vec
		res, err := e.index.Search(vec, k, filter)
		if err != nil {
			errChan <- fmt.Errorf("vector search failed: %w", err)
			return
		}
		hits = res
	}()

	if weight > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := e.keyword.Search(ctx, q.Query, k)
			if err != nil {
				errChan <- fmt.Errorf("keyword search failed: %w", err)
				return
			}
			kwResults = res
		}()
	}

	wg.Wait()
	close(errChan)
	for err := range errChan {
		if err != nil {
			return nil, err
		}
	}

	fused := e.fuse(queryVec, hits, kwResults, filter, weight)

	if q.MinScore > 0 {
		kept := fused[:0]
		for _, f := range fused {
			if f.score >= q.MinScore {
				kept = append(kept, f)
			}
		}
		fused = kept
	}
	if len(fused) > q.Limit {
		fused = fused[:q.Limit]
	}

	results := make([]models.ScoredRecord, 0, len(fused))
	for _, f := range fused {
		results = append(results, models.ScoredRecord{
			ID:           f.rec.ID,
			Source:       f.rec.Source,
			Score:        f.score,
			VectorScore:  f.vectorScore,
			KeywordScore: f.keywordScore,
			Snippet:      Snippet(f.rec.Content, q.Query, e.cfg.SnippetLength),
			Meta:         f.rec.Meta.Clone(),
		})
	}

	e.logger.Debug("retrieval complete",
		zap.Int("results", len(results)),
		zap.Float64("keyword_weight", weight))
	return results, nil
}

// applyDefaults fills unset query knobs from the configured retrieval
// defaults. The hard cap from models still applies afterwards.
func (e *Engine) applyDefaults(q *models.RetrieveQuery) {
	if q.Limit <= 0 {
		q.Limit = e.cfg.DefaultLimit
	}
	if e.cfg.MaxLimit > 0 && q.Limit > e.cfg.MaxLimit {
		q.Limit = e.cfg.MaxLimit
	}
	if q.MinScore == 0 {
		q.MinScore = e.cfg.MinScore
	}
	if q.KeywordWeight == 0 {
		q.KeywordWeight = e.cfg.KeywordWeight
	}
}

func buildFilter(q *models.RetrieveQuery) *index.Filter {
	if len(q.SourceTypes) == 0 && len(q.Tags) == 0 {
		return nil
	}
	return &index.Filter{SourceTypes: q.SourceTypes, Tags: q.Tags}
}

// candidateLimit is how many hits each channel contributes to fusion. Wide
// enough that a record strong in one channel still surfaces when the other
// channel ranks it just outside the requested limit.
func candidateLimit(limit int) int {
	c := limit * 4
	if c < 50 {
		c = 50
	}
	return c
}
