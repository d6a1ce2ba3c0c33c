// Package indexing transforms raw parsed chunks into durable, searchable
// nodes: each chunk gains a model-generated situating context and an
// embedding before batch submission to the vector index.
package indexing

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/syntellix/syntellix-go/internal/llm"
	"github.com/syntellix/syntellix-go/internal/vector"
)

// Status of a document in the pipeline.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

// RawChunk is one parsed chunk as delivered by the upstream parser.
type RawChunk struct {
	Content string

	// Image is an optional payload extracted alongside the chunk.
	Image []byte
}

// ProgressFunc receives progress milestones. fraction is in [0,1].
type ProgressFunc func(fraction float64, message string)

// ImageStore persists chunk image payloads.
type ImageStore interface {
	// Save stores data under key and returns the image ID to record in
	// node metadata.
	Save(ctx context.Context, key string, data []byte) (string, error)
}

// Request describes one document to index.
type Request struct {
	TenantID        int64
	KnowledgeBaseID int64
	DocumentID      int64
	FileName        string

	// DocumentText is the full source text used to situate each chunk.
	DocumentText string

	Chunks []RawChunk

	// Progress is optional.
	Progress ProgressFunc
}

// Result summarizes one indexing run.
type Result struct {
	Status    Status
	NodeCount int

	// ChunkErrors holds one message per failed chunk, in chunk order.
	ChunkErrors []string
}

// Pipeline runs the contextualize, embed, tag, store sequence.
//
// A single chunk's failure never aborts the batch: the chunk is skipped and
// recorded. The document fails only if the index write fails or no chunk
// survives.
type Pipeline struct {
	indexes        vector.Provider
	embedder       llm.Embedder
	contextualizer *Contextualizer
	images         ImageStore
	limiter        *rate.Limiter
	concurrency    int
	retry          llm.RetryConfig
	logger         *slog.Logger
}

// Options tune pipeline throughput.
type Options struct {
	// Concurrency bounds parallel chunk processing. Default 4.
	Concurrency int

	// ModelCallsPerSecond rate-limits outbound model calls across chunks.
	// Zero means unlimited.
	ModelCallsPerSecond float64
}

// NewPipeline creates a pipeline. images and logger may be nil; a nil
// images store skips image persistence.
func NewPipeline(indexes vector.Provider, embedder llm.Embedder, contextualizer *Contextualizer, images ImageStore, opts Options, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	limit := rate.Inf
	if opts.ModelCallsPerSecond > 0 {
		limit = rate.Limit(opts.ModelCallsPerSecond)
	}
	return &Pipeline{
		indexes:        indexes,
		embedder:       embedder,
		contextualizer: contextualizer,
		images:         images,
		limiter:        rate.NewLimiter(limit, 1),
		concurrency:    concurrency,
		retry:          llm.DefaultRetryConfig(),
		logger:         logger,
	}
}

// IndexDocument processes req and writes the surviving nodes to the
// tenant's index. Progress is reported at parse completion (0.5), after
// each chunk (0.5 to 0.9), before the index write (0.9), and on
// completion (1.0).
func (p *Pipeline) IndexDocument(ctx context.Context, req Request) (Result, error) {
	if req.TenantID == 0 || req.KnowledgeBaseID == 0 || req.DocumentID == 0 {
		return Result{Status: StatusFailed}, ErrInvalidScope
	}
	if len(req.Chunks) == 0 {
		return Result{Status: StatusFailed}, ErrNoChunks
	}

	progress := req.Progress
	if progress == nil {
		progress = func(float64, string) {}
	}

	logger := p.logger.With(
		"tenant_id", req.TenantID,
		"knowledge_base_id", req.KnowledgeBaseID,
		"document_id", req.DocumentID)
	start := time.Now()

	progress(0.5, fmt.Sprintf("parsed %d chunks", len(req.Chunks)))

	type chunkOutcome struct {
		node vector.Node
		err  error
	}
	outcomes := make([]chunkOutcome, len(req.Chunks))

	var (
		mu   sync.Mutex
		done int
	)
	total := len(req.Chunks)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for i, chunk := range req.Chunks {
		g.Go(func() error {
			node, err := p.processChunk(gctx, req, i, chunk)
			outcomes[i] = chunkOutcome{node: node, err: err}

			mu.Lock()
			done++
			// Clamped so float rounding on the last chunk cannot
			// overshoot the 0.9 saving milestone.
			fraction := math.Min(0.9, 0.5+0.4*float64(done)/float64(total))
			mu.Unlock()

			if err != nil {
				logger.Warn("chunk failed", "chunk", i, "error", err)
				progress(fraction, fmt.Sprintf("chunk %d failed: %v", i, err))
			} else {
				progress(fraction, fmt.Sprintf("embedded chunk %d of %d", done, total))
			}
			// Per-chunk errors never cancel the group; only ctx does.
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return Result{Status: StatusFailed}, fmt.Errorf("indexing interrupted: %w", err)
	}

	result := Result{}
	nodes := make([]vector.Node, 0, total)
	for i, outcome := range outcomes {
		if outcome.err != nil {
			result.ChunkErrors = append(result.ChunkErrors, fmt.Sprintf("chunk %d: %v", i, outcome.err))
			continue
		}
		nodes = append(nodes, outcome.node)
	}

	if len(nodes) == 0 {
		result.Status = StatusFailed
		return result, fmt.Errorf("%w: %d chunks", ErrAllChunksFailed, total)
	}

	progress(0.9, fmt.Sprintf("saving %d nodes", len(nodes)))
	if err := p.indexes.ForTenant(req.TenantID).Add(ctx, nodes); err != nil {
		result.Status = StatusFailed
		return result, fmt.Errorf("writing nodes to index: %w", err)
	}

	result.Status = StatusCompleted
	result.NodeCount = len(nodes)
	progress(1.0, "done")

	logger.Info("document indexed",
		"nodes", result.NodeCount,
		"failed_chunks", len(result.ChunkErrors),
		"elapsed", time.Since(start))
	return result, nil
}

// deriveNodeID produces a stable identifier from the chunk's scope. A retried
// work item regenerates the same IDs, so the index upsert overwrites the
// earlier attempt's nodes instead of duplicating them.
func deriveNodeID(req Request, idx int) string {
	name := fmt.Sprintf("%d/%d/%d/%d", req.TenantID, req.KnowledgeBaseID, req.DocumentID, idx)
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(name)).String()
}

func (p *Pipeline) processChunk(ctx context.Context, req Request, idx int, chunk RawChunk) (vector.Node, error) {
	if chunk.Content == "" {
		return vector.Node{}, fmt.Errorf("chunk %d has empty content", idx)
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return vector.Node{}, err
	}
	situated, err := p.contextualizer.Situate(ctx, req.DocumentText, chunk.Content)
	if err != nil {
		return vector.Node{}, err
	}

	embedInput := chunk.Content
	if situated != "" {
		embedInput = chunk.Content + "\n\n" + situated
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return vector.Node{}, err
	}
	var vectors [][]float32
	err = llm.WithRetry(ctx, p.retry, func() error {
		var callErr error
		vectors, callErr = p.embedder.Encode(ctx, []string{embedInput})
		return callErr
	})
	if err != nil {
		return vector.Node{}, fmt.Errorf("embedding: %w", err)
	}
	if len(vectors) != 1 || len(vectors[0]) == 0 {
		return vector.Node{}, fmt.Errorf("embedder returned no vector")
	}

	nodeID := deriveNodeID(req, idx)

	imageID := ""
	if p.images != nil && len(chunk.Image) > 0 {
		key := fmt.Sprintf("%d/%d/%s", req.KnowledgeBaseID, req.DocumentID, nodeID)
		imageID, err = p.images.Save(ctx, key, chunk.Image)
		if err != nil {
			// Image loss is tolerable; the text node still indexes.
			p.logger.Warn("image save failed", "chunk", idx, "error", err)
			imageID = ""
		}
	}

	return vector.Node{
		ID:                    nodeID,
		Content:               chunk.Content,
		ContextualizedContent: situated,
		Embedding:             vectors[0],
		Metadata: vector.NodeMetadata{
			TenantID:        req.TenantID,
			KnowledgeBaseID: req.KnowledgeBaseID,
			DocumentID:      req.DocumentID,
			FileName:        req.FileName,
			ImageID:         imageID,
			CreatedAt:       time.Now().UTC(),
		},
	}, nil
}

// RunWithRetry executes one indexing work item under the background-worker
// retry contract: transient failures retry with backoff up to the bound,
// permanent failures fail the document immediately.
func (p *Pipeline) RunWithRetry(ctx context.Context, req Request) (Result, error) {
	var (
		result Result
		err    error
	)
	delay := p.retry.InitialInterval

	for attempt := 0; attempt <= p.retry.MaxRetries; attempt++ {
		result, err = p.IndexDocument(ctx, req)
		if err == nil || Permanent(err) {
			return result, err
		}
		if attempt == p.retry.MaxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return result, fmt.Errorf("context canceled during retry: %w", ctx.Err())
		case <-time.After(delay):
			delay = min(delay*2, p.retry.MaxInterval)
		}
	}
	return result, fmt.Errorf("after %d retries: %w", p.retry.MaxRetries, err)
}
