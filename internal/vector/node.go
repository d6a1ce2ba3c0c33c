// Package vector stores contextualized document chunks and serves hybrid
// search over them: dense similarity and lexical relevance ranked
// independently and fused with reciprocal rank fusion.
package vector

import "time"

// NodeMetadata locates a node within the tenant's corpus.
type NodeMetadata struct {
	TenantID        int64
	KnowledgeBaseID int64
	DocumentID      int64
	FileName        string
	ImageID         string
	CreatedAt       time.Time
}

// Node is one indexed chunk. Content is the verbatim chunk text;
// ContextualizedContent prepends the generated situating context and is what
// the embedding was computed from.
type Node struct {
	ID                    string
	Content               string
	ContextualizedContent string
	Embedding             []float32
	Metadata              NodeMetadata
}

// ScoredNode is a search hit with its fused relevance score in (0, 1].
type ScoredNode struct {
	Node
	Score float64
}
