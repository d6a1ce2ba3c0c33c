package vector

import (
	"context"
	"errors"
)

// CandidateMultiplier scales TopN into the per-ranking candidate pool size
// fetched before fusion.
const CandidateMultiplier = 10

// Sentinel errors for index operations.
var (
	// ErrEmptyQuery indicates a search with neither vector nor text.
	ErrEmptyQuery = errors.New("search query has no vector and no text")

	// ErrDimensionMismatch indicates an embedding whose length does not
	// match the index dimension.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// Query describes one hybrid search.
type Query struct {
	// Vector is the query embedding for the dense ranking.
	Vector []float32

	// Text is the raw query for the lexical ranking.
	Text string

	// TopN bounds the fused result count.
	TopN int

	// KnowledgeBaseIDs scopes the search. Empty means no knowledge bases
	// are selected and the search returns nothing.
	KnowledgeBaseIDs []int64
}

// Index is a tenant-scoped node store with hybrid search.
type Index interface {
	// Add upserts nodes. Re-adding an existing node ID replaces it.
	Add(ctx context.Context, nodes []Node) error

	// Search runs the dense and lexical rankings, fuses them, and returns
	// at most q.TopN nodes ordered by fused score descending.
	Search(ctx context.Context, q Query) ([]ScoredNode, error)

	// DeleteByDocument removes every node of one document.
	DeleteByDocument(ctx context.Context, knowledgeBaseID, documentID int64) error

	// DeleteByKnowledgeBase removes every node of one knowledge base.
	DeleteByKnowledgeBase(ctx context.Context, knowledgeBaseID int64) error
}

// Provider hands out tenant-scoped indexes. All operations through an Index
// obtained from ForTenant see only that tenant's nodes.
type Provider interface {
	ForTenant(tenantID int64) Index
}
