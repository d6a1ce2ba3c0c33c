// Package retrieval turns a free-text query plus an authorization scope into
// a ranked, thresholded list of relevant nodes.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/syntellix/syntellix-go/internal/llm"
	"github.com/syntellix/syntellix-go/internal/vector"
)

// ErrEmptyQuery indicates a retrieval request with a blank query string.
var ErrEmptyQuery = errors.New("retrieval query is empty")

// Result is one retrieved node with both scoring passes attached.
type Result struct {
	Node vector.Node

	// VectorScore is the normalized fused score from hybrid search.
	VectorScore float64

	// RerankScore is the cross-encoder score in [0,1]; results are ordered
	// by it and filtered against the similarity threshold.
	RerankScore float32
}

// Request describes one retrieval.
type Request struct {
	TenantID         int64
	KnowledgeBaseIDs []int64
	Query            string

	// TopN bounds the result count. Must be positive.
	TopN int

	// SimilarityThreshold drops candidates whose rerank score falls below
	// it. Zero keeps everything.
	SimilarityThreshold float32
}

// Engine runs the embed, hybrid search, rerank, filter sequence.
type Engine struct {
	indexes  vector.Provider
	embedder llm.Embedder
	reranker llm.Reranker
	logger   *slog.Logger
}

// NewEngine creates a retrieval engine. logger may be nil.
func NewEngine(indexes vector.Provider, embedder llm.Embedder, reranker llm.Reranker, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		indexes:  indexes,
		embedder: embedder,
		reranker: reranker,
		logger:   logger,
	}
}

// Retrieve returns at most req.TopN nodes relevant to req.Query within the
// request's scope, ordered by rerank score descending.
//
// An empty knowledge base list returns an empty result without touching the
// index. Zero fused candidates skip the reranker entirely.
func (e *Engine) Retrieve(ctx context.Context, req Request) ([]Result, error) {
	if req.Query == "" {
		return nil, ErrEmptyQuery
	}
	if len(req.KnowledgeBaseIDs) == 0 {
		return nil, nil
	}

	start := time.Now()

	vectors, err := e.embedder.Encode(ctx, []string{req.Query})
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("embedder returned %d vectors for one query", len(vectors))
	}

	candidates, err := e.indexes.ForTenant(req.TenantID).Search(ctx, vector.Query{
		Vector:           vectors[0],
		Text:             req.Query,
		TopN:             req.TopN,
		KnowledgeBaseIDs: req.KnowledgeBaseIDs,
	})
	if err != nil {
		return nil, fmt.Errorf("hybrid search: %w", err)
	}
	if len(candidates) == 0 {
		e.logger.Debug("no candidates after fusion", "tenant_id", req.TenantID)
		return nil, nil
	}

	contents := make([]string, len(candidates))
	for i, c := range candidates {
		contents[i] = c.Content
	}
	rerankScores, err := e.reranker.Score(ctx, req.Query, contents)
	if err != nil {
		return nil, fmt.Errorf("reranking %d candidates: %w", len(candidates), err)
	}
	if len(rerankScores) != len(candidates) {
		return nil, fmt.Errorf("reranker returned %d scores for %d candidates", len(rerankScores), len(candidates))
	}

	results := make([]Result, 0, len(candidates))
	for i, c := range candidates {
		if rerankScores[i] < req.SimilarityThreshold {
			continue
		}
		results = append(results, Result{
			Node:        c.Node,
			VectorScore: c.Score,
			RerankScore: rerankScores[i],
		})
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].RerankScore > results[j].RerankScore
	})

	e.logger.Debug("retrieval done",
		"tenant_id", req.TenantID,
		"candidates", len(candidates),
		"returned", len(results),
		"elapsed", time.Since(start))
	return results, nil
}
