package retrieval

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syntellix/syntellix-go/internal/testutil"
	"github.com/syntellix/syntellix-go/internal/vector"
)

const testTenant = int64(7)

func seedNodes(t *testing.T, provider *testutil.MemoryIndexProvider, embedder *testutil.FakeEmbedder, nodes []vector.Node) {
	t.Helper()
	for i := range nodes {
		if nodes[i].Embedding == nil {
			vecs, err := embedder.Encode(context.Background(), []string{nodes[i].Content})
			require.NoError(t, err)
			nodes[i].Embedding = vecs[0]
		}
		if nodes[i].Metadata.TenantID == 0 {
			nodes[i].Metadata.TenantID = testTenant
		}
	}
	require.NoError(t, provider.ForTenant(testTenant).Add(context.Background(), nodes))
}

func TestEngineRetrieve(t *testing.T) {
	baseNodes := []vector.Node{
		{ID: "n1", Content: "refund policy for enterprise customers", Metadata: vector.NodeMetadata{KnowledgeBaseID: 1, DocumentID: 10, FileName: "policy.pdf", CreatedAt: time.Now()}},
		{ID: "n2", Content: "shipping times and carriers", Metadata: vector.NodeMetadata{KnowledgeBaseID: 1, DocumentID: 11, FileName: "shipping.pdf", CreatedAt: time.Now()}},
		{ID: "n3", Content: "refund policy mentioned in the other tenant knowledge base", Metadata: vector.NodeMetadata{KnowledgeBaseID: 2, DocumentID: 12, FileName: "other.pdf", CreatedAt: time.Now()}},
	}

	newEngine := func(t *testing.T, reranker *testutil.FakeReranker) (*Engine, *testutil.FakeReranker) {
		t.Helper()
		embedder := &testutil.FakeEmbedder{}
		provider := testutil.NewMemoryIndexProvider()
		seedNodes(t, provider, embedder, append([]vector.Node(nil), baseNodes...))
		if reranker == nil {
			reranker = &testutil.FakeReranker{Default: 0.8}
		}
		return NewEngine(provider, embedder, reranker, nil), reranker
	}

	t.Run("scope isolation", func(t *testing.T) {
		engine, _ := newEngine(t, nil)
		results, err := engine.Retrieve(context.Background(), Request{
			TenantID:         testTenant,
			KnowledgeBaseIDs: []int64{1},
			Query:            "refund policy",
			TopN:             5,
		})
		require.NoError(t, err)
		require.NotEmpty(t, results)
		for _, r := range results {
			assert.EqualValues(t, 1, r.Node.Metadata.KnowledgeBaseID)
		}
	})

	t.Run("empty knowledge base list short circuits", func(t *testing.T) {
		engine, reranker := newEngine(t, nil)
		results, err := engine.Retrieve(context.Background(), Request{
			TenantID: testTenant,
			Query:    "refund policy",
			TopN:     5,
		})
		require.NoError(t, err)
		assert.Empty(t, results)
		assert.Zero(t, reranker.CallCount())
	})

	t.Run("zero candidates skip rerank", func(t *testing.T) {
		engine, reranker := newEngine(t, nil)
		results, err := engine.Retrieve(context.Background(), Request{
			TenantID:         testTenant,
			KnowledgeBaseIDs: []int64{99},
			Query:            "refund policy",
			TopN:             5,
		})
		require.NoError(t, err)
		assert.Empty(t, results)
		assert.Zero(t, reranker.CallCount())
	})

	t.Run("threshold filters by rerank score", func(t *testing.T) {
		engine, _ := newEngine(t, &testutil.FakeReranker{
			Scores:  map[string]float32{"refund": 0.42},
			Default: 0.9,
		})
		results, err := engine.Retrieve(context.Background(), Request{
			TenantID:            testTenant,
			KnowledgeBaseIDs:    []int64{1},
			Query:               "refund policy",
			TopN:                5,
			SimilarityThreshold: 0.5,
		})
		require.NoError(t, err)
		for _, r := range results {
			assert.NotContains(t, r.Node.Content, "refund")
			assert.GreaterOrEqual(t, r.RerankScore, float32(0.5))
		}
	})

	t.Run("threshold monotonicity", func(t *testing.T) {
		engine, _ := newEngine(t, &testutil.FakeReranker{
			Scores:  map[string]float32{"refund": 0.7, "shipping": 0.4},
			Default: 0.2,
		})
		count := func(threshold float32) int {
			results, err := engine.Retrieve(context.Background(), Request{
				TenantID:            testTenant,
				KnowledgeBaseIDs:    []int64{1, 2},
				Query:               "refund policy",
				TopN:                5,
				SimilarityThreshold: threshold,
			})
			require.NoError(t, err)
			return len(results)
		}

		assert.GreaterOrEqual(t, count(0.1), count(0.5))
		assert.GreaterOrEqual(t, count(0.5), count(0.9))
	})

	t.Run("ordered by rerank score descending", func(t *testing.T) {
		engine, _ := newEngine(t, &testutil.FakeReranker{
			Scores:  map[string]float32{"refund": 0.6, "shipping": 0.95},
			Default: 0.5,
		})
		results, err := engine.Retrieve(context.Background(), Request{
			TenantID:         testTenant,
			KnowledgeBaseIDs: []int64{1},
			Query:            "refund shipping",
			TopN:             5,
		})
		require.NoError(t, err)
		require.GreaterOrEqual(t, len(results), 2)
		for i := 1; i < len(results); i++ {
			assert.GreaterOrEqual(t, results[i-1].RerankScore, results[i].RerankScore)
		}
		assert.Contains(t, results[0].Node.Content, "shipping")
	})

	t.Run("re-adding a node id overwrites instead of duplicating", func(t *testing.T) {
		engine, _ := newEngine(t, nil)
		updated := baseNodes[0]
		updated.Content = "refund policy, revised for enterprise customers"
		seedNodes(t, engine.indexes.(*testutil.MemoryIndexProvider), &testutil.FakeEmbedder{}, []vector.Node{updated})

		results, err := engine.Retrieve(context.Background(), Request{
			TenantID:         testTenant,
			KnowledgeBaseIDs: []int64{1},
			Query:            "refund policy",
			TopN:             5,
		})
		require.NoError(t, err)

		seen := 0
		for _, r := range results {
			if r.Node.ID == "n1" {
				seen++
				assert.Equal(t, updated.Content, r.Node.Content)
			}
		}
		assert.Equal(t, 1, seen)
	})

	t.Run("empty query rejected", func(t *testing.T) {
		engine, _ := newEngine(t, nil)
		_, err := engine.Retrieve(context.Background(), Request{
			TenantID:         testTenant,
			KnowledgeBaseIDs: []int64{1},
			TopN:             5,
		})
		assert.ErrorIs(t, err, ErrEmptyQuery)
	})

	t.Run("embedder failure surfaces", func(t *testing.T) {
		embErr := errors.New("quota exceeded")
		engine := NewEngine(testutil.NewMemoryIndexProvider(), &testutil.FakeEmbedder{Err: embErr}, &testutil.FakeReranker{}, nil)
		_, err := engine.Retrieve(context.Background(), Request{
			TenantID:         testTenant,
			KnowledgeBaseIDs: []int64{1},
			Query:            "anything",
			TopN:             5,
		})
		assert.ErrorIs(t, err, embErr)
	})
}

func TestFormatContext(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		assert.Empty(t, FormatContext(nil))
	})

	t.Run("renders source before text", func(t *testing.T) {
		got := FormatContext([]Result{
			{Node: vector.Node{Content: "first chunk", Metadata: vector.NodeMetadata{FileName: "a.pdf", DocumentID: 10}}},
			{Node: vector.Node{Content: "second chunk", Metadata: vector.NodeMetadata{FileName: "b.pdf", DocumentID: 11}}},
		})

		assert.Contains(t, got, "### File Name: a.pdf")
		assert.Contains(t, got, "### Document ID: 10")
		assert.Contains(t, got, "### File Name: b.pdf")
		assert.Less(t,
			strings.Index(got, "### File Name: a.pdf"),
			strings.Index(got, "first chunk"))
		assert.Less(t,
			strings.Index(got, "first chunk"),
			strings.Index(got, "### File Name: b.pdf"))
	})
}
