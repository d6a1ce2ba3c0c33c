package indexing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syntellix/syntellix-go/internal/testutil"
	"github.com/syntellix/syntellix-go/internal/vector"
)

type progressRecorder struct {
	mu        sync.Mutex
	fractions []float64
	messages  []string
}

func (r *progressRecorder) record(fraction float64, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fractions = append(r.fractions, fraction)
	r.messages = append(r.messages, message)
}

type fakeImages struct {
	mu    sync.Mutex
	saved map[string][]byte
	err   error
}

func (f *fakeImages) Save(_ context.Context, key string, data []byte) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saved == nil {
		f.saved = make(map[string][]byte)
	}
	f.saved[key] = data
	return key, nil
}

func newTestPipeline(embedder *testutil.FakeEmbedder, images ImageStore) (*Pipeline, *testutil.MemoryIndexProvider) {
	provider := testutil.NewMemoryIndexProvider()
	contextualizer := NewContextualizer(&testutil.ScriptedChat{Tokens: []string{"situating ", "context"}})
	pipeline := NewPipeline(provider, embedder, contextualizer, images, Options{Concurrency: 2}, nil)
	return pipeline, provider
}

func baseRequest(progress ProgressFunc) Request {
	return Request{
		TenantID:        7,
		KnowledgeBaseID: 3,
		DocumentID:      42,
		FileName:        "handbook.pdf",
		DocumentText:    "full document text about policies and procedures",
		Chunks: []RawChunk{
			{Content: "chapter one on refunds"},
			{Content: "chapter two on shipping"},
			{Content: "chapter three on returns"},
		},
		Progress: progress,
	}
}

func TestIndexDocument(t *testing.T) {
	ctx := context.Background()

	t.Run("all chunks succeed", func(t *testing.T) {
		rec := &progressRecorder{}
		pipeline, provider := newTestPipeline(&testutil.FakeEmbedder{}, nil)

		result, err := pipeline.IndexDocument(ctx, baseRequest(rec.record))
		require.NoError(t, err)

		assert.Equal(t, StatusCompleted, result.Status)
		assert.Equal(t, 3, result.NodeCount)
		assert.Empty(t, result.ChunkErrors)

		ix := provider.ForTenant(7).(*testutil.MemoryIndex)
		assert.Equal(t, 3, ix.Len())

		require.NotEmpty(t, rec.fractions)
		assert.Equal(t, 0.5, rec.fractions[0])
		assert.Equal(t, 1.0, rec.fractions[len(rec.fractions)-1])
		for i := 1; i < len(rec.fractions); i++ {
			assert.GreaterOrEqual(t, rec.fractions[i], rec.fractions[i-1])
		}
		// Per-chunk updates never pass the 0.9 saving milestone, even when
		// 0.4/total does not divide evenly.
		for _, f := range rec.fractions[:len(rec.fractions)-1] {
			assert.LessOrEqual(t, f, 0.9)
		}
	})

	t.Run("nodes carry scope metadata and situating context", func(t *testing.T) {
		pipeline, provider := newTestPipeline(&testutil.FakeEmbedder{}, nil)
		_, err := pipeline.IndexDocument(ctx, baseRequest(nil))
		require.NoError(t, err)

		ix := provider.ForTenant(7).(*testutil.MemoryIndex)
		hits, err := ix.Search(ctx, vector.Query{Text: "refunds", TopN: 10, KnowledgeBaseIDs: []int64{3}})
		require.NoError(t, err)
		require.NotEmpty(t, hits)

		n := hits[0].Node
		assert.EqualValues(t, 7, n.Metadata.TenantID)
		assert.EqualValues(t, 3, n.Metadata.KnowledgeBaseID)
		assert.EqualValues(t, 42, n.Metadata.DocumentID)
		assert.Equal(t, "handbook.pdf", n.Metadata.FileName)
		assert.Equal(t, "situating context", n.ContextualizedContent)
		assert.False(t, n.Metadata.CreatedAt.IsZero())
		assert.NotEmpty(t, n.ID)
	})

	t.Run("single chunk failure does not abort batch", func(t *testing.T) {
		rec := &progressRecorder{}
		embedder := &testutil.FakeEmbedder{FailOn: "shipping"}
		pipeline, provider := newTestPipeline(embedder, nil)

		result, err := pipeline.IndexDocument(ctx, baseRequest(rec.record))
		require.NoError(t, err)

		assert.Equal(t, StatusCompleted, result.Status)
		assert.Equal(t, 2, result.NodeCount)
		require.Len(t, result.ChunkErrors, 1)
		assert.Contains(t, result.ChunkErrors[0], "chunk 1")

		ix := provider.ForTenant(7).(*testutil.MemoryIndex)
		assert.Equal(t, 2, ix.Len())

		assert.True(t, func() bool {
			for _, m := range rec.messages {
				if strings.Contains(m, "failed") {
					return true
				}
			}
			return false
		}(), "progress should mention the failed chunk")
	})

	t.Run("re-delivered work item overwrites instead of duplicating", func(t *testing.T) {
		pipeline, provider := newTestPipeline(&testutil.FakeEmbedder{}, nil)

		first, err := pipeline.IndexDocument(ctx, baseRequest(nil))
		require.NoError(t, err)
		second, err := pipeline.IndexDocument(ctx, baseRequest(nil))
		require.NoError(t, err)

		assert.Equal(t, first.NodeCount, second.NodeCount)
		ix := provider.ForTenant(7).(*testutil.MemoryIndex)
		assert.Equal(t, 3, ix.Len(), "retried document must not duplicate nodes")

		hits, err := ix.Search(ctx, vector.Query{Text: "refunds", TopN: 10, KnowledgeBaseIDs: []int64{3}})
		require.NoError(t, err)
		require.NotEmpty(t, hits)
		assert.Equal(t, deriveNodeID(baseRequest(nil), 0), hits[0].Node.ID)
	})

	t.Run("all chunks failing marks document failed", func(t *testing.T) {
		embedder := &testutil.FakeEmbedder{Err: errors.New("quota exceeded")}
		provider := testutil.NewMemoryIndexProvider()
		contextualizer := NewContextualizer(&testutil.ScriptedChat{Tokens: []string{"ctx"}})
		pipeline := NewPipeline(provider, embedder, contextualizer, nil, Options{Concurrency: 2}, nil)
		// Speed up the embed retries inside chunk processing.
		pipeline.retry.InitialInterval = 0
		pipeline.retry.MaxInterval = 0

		result, err := pipeline.IndexDocument(ctx, baseRequest(nil))
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrAllChunksFailed)
		assert.Equal(t, StatusFailed, result.Status)
		assert.Zero(t, result.NodeCount)
		assert.Len(t, result.ChunkErrors, 3)
	})

	t.Run("missing scope rejected", func(t *testing.T) {
		pipeline, _ := newTestPipeline(&testutil.FakeEmbedder{}, nil)
		req := baseRequest(nil)
		req.TenantID = 0

		result, err := pipeline.IndexDocument(ctx, req)
		assert.ErrorIs(t, err, ErrInvalidScope)
		assert.Equal(t, StatusFailed, result.Status)
	})

	t.Run("no chunks rejected", func(t *testing.T) {
		pipeline, _ := newTestPipeline(&testutil.FakeEmbedder{}, nil)
		req := baseRequest(nil)
		req.Chunks = nil

		_, err := pipeline.IndexDocument(ctx, req)
		assert.ErrorIs(t, err, ErrNoChunks)
	})

	t.Run("image payload persisted under deterministic key", func(t *testing.T) {
		images := &fakeImages{}
		pipeline, provider := newTestPipeline(&testutil.FakeEmbedder{}, images)

		req := baseRequest(nil)
		req.Chunks = []RawChunk{{Content: "diagram chunk", Image: []byte{0x89, 0x50}}}

		result, err := pipeline.IndexDocument(ctx, req)
		require.NoError(t, err)
		require.Equal(t, 1, result.NodeCount)

		ix := provider.ForTenant(7).(*testutil.MemoryIndex)
		hits, err := ix.Search(ctx, vector.Query{Text: "diagram", TopN: 1, KnowledgeBaseIDs: []int64{3}})
		require.NoError(t, err)
		require.Len(t, hits, 1)

		imageID := hits[0].Node.Metadata.ImageID
		require.NotEmpty(t, imageID)
		assert.Equal(t, fmt.Sprintf("3/42/%s", hits[0].Node.ID), imageID)
		images.mu.Lock()
		assert.Contains(t, images.saved, imageID)
		images.mu.Unlock()
	})

	t.Run("image save failure is non-fatal", func(t *testing.T) {
		images := &fakeImages{err: errors.New("disk full")}
		pipeline, provider := newTestPipeline(&testutil.FakeEmbedder{}, images)

		req := baseRequest(nil)
		req.Chunks = []RawChunk{{Content: "diagram chunk", Image: []byte{0x01}}}

		result, err := pipeline.IndexDocument(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, 1, result.NodeCount)

		ix := provider.ForTenant(7).(*testutil.MemoryIndex)
		hits, err := ix.Search(ctx, vector.Query{Text: "diagram", TopN: 1, KnowledgeBaseIDs: []int64{3}})
		require.NoError(t, err)
		require.Len(t, hits, 1)
		assert.Empty(t, hits[0].Node.Metadata.ImageID)
	})
}

func TestRunWithRetry(t *testing.T) {
	t.Run("permanent failure is not retried", func(t *testing.T) {
		pipeline, _ := newTestPipeline(&testutil.FakeEmbedder{}, nil)
		req := baseRequest(nil)
		req.Chunks = nil

		attempts := 0
		req.Progress = func(float64, string) { attempts++ }

		_, err := pipeline.RunWithRetry(context.Background(), req)
		assert.ErrorIs(t, err, ErrNoChunks)
		assert.Zero(t, attempts, "no progress should be reported before validation")
	})
}

func TestPermanent(t *testing.T) {
	assert.True(t, Permanent(ErrUnsupportedParser))
	assert.True(t, Permanent(ErrSourceMissing))
	assert.True(t, Permanent(fmt.Errorf("wrapped: %w", ErrInvalidScope)))
	assert.False(t, Permanent(errors.New("connection reset")))
	assert.False(t, Permanent(nil))
}
