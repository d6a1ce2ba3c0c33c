// Package testutil provides in-memory fakes for the model ports and the
// vector index, used across package tests.
package testutil

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/syntellix/syntellix-go/internal/llm"
	"github.com/syntellix/syntellix-go/internal/vector"
)

// FakeEmbedder returns deterministic unit vectors derived from the input
// text, so equal texts embed equally and nearby calls are reproducible.
type FakeEmbedder struct {
	Dimension int

	// Err, when set, is returned by every Encode call.
	Err error

	// FailOn makes Encode fail only for inputs containing the substring.
	FailOn string

	mu    sync.Mutex
	calls [][]string
}

// Encode implements llm.Embedder.
func (f *FakeEmbedder) Encode(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	f.calls = append(f.calls, append([]string(nil), texts...))
	f.mu.Unlock()

	if f.Err != nil {
		return nil, f.Err
	}
	dim := f.Dimension
	if dim == 0 {
		dim = 8
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if f.FailOn != "" && strings.Contains(text, f.FailOn) {
			return nil, fmt.Errorf("embedding rejected for %q", f.FailOn)
		}
		out[i] = deterministicVector(text, dim)
	}
	return out, nil
}

// Calls returns every batch Encode received.
func (f *FakeEmbedder) Calls() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func deterministicVector(text string, dim int) []float32 {
	h := fnv.New64a()
	h.Write([]byte(text))
	seed := h.Sum64()

	v := make([]float32, dim)
	var norm float64
	for i := range v {
		seed = seed*6364136223846793005 + 1442695040888963407
		v[i] = float32(int64(seed>>32)) / float32(math.MaxInt32)
		norm += float64(v[i]) * float64(v[i])
	}
	norm = math.Sqrt(norm)
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
	return v
}

// FakeReranker scores candidates by substring lookup.
type FakeReranker struct {
	// Scores maps a candidate substring to its score. Unmatched
	// candidates get Default.
	Scores  map[string]float32
	Default float32

	// Err, when set, is returned by every Score call.
	Err error

	mu    sync.Mutex
	calls int
}

// Score implements llm.Reranker.
func (f *FakeReranker) Score(_ context.Context, _ string, candidates []string) ([]float32, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.Err != nil {
		return nil, f.Err
	}
	out := make([]float32, len(candidates))
	for i, c := range candidates {
		out[i] = f.Default
		for sub, score := range f.Scores {
			if strings.Contains(c, sub) {
				out[i] = score
				break
			}
		}
	}
	return out, nil
}

// CallCount returns how many times Score ran.
func (f *FakeReranker) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// ScriptedChat streams a fixed token sequence.
type ScriptedChat struct {
	Tokens []string

	// Err, when set, is returned after streaming FailAfter tokens.
	Err       error
	FailAfter int

	mu          sync.Mutex
	calls       int
	lastSystem  string
	lastHistory []llm.Turn
}

// StreamChat implements llm.ChatModel.
func (s *ScriptedChat) StreamChat(ctx context.Context, systemPrompt string, history []llm.Turn, onToken func(string) error) error {
	s.mu.Lock()
	s.calls++
	s.lastSystem = systemPrompt
	s.lastHistory = append([]llm.Turn(nil), history...)
	s.mu.Unlock()

	for i, token := range s.Tokens {
		if s.Err != nil && i == s.FailAfter {
			return s.Err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := onToken(token); err != nil {
			return err
		}
	}
	if s.Err != nil && s.FailAfter >= len(s.Tokens) {
		return s.Err
	}
	return nil
}

// CallCount returns how many times StreamChat ran.
func (s *ScriptedChat) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// LastSystemPrompt returns the system prompt of the most recent call.
func (s *ScriptedChat) LastSystemPrompt() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSystem
}

// LastHistory returns the history of the most recent call.
func (s *ScriptedChat) LastHistory() []llm.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastHistory
}

// MemoryIndexProvider is an in-memory vector.Provider for tests.
type MemoryIndexProvider struct {
	mu      sync.Mutex
	tenants map[int64]*MemoryIndex
}

// NewMemoryIndexProvider creates an empty provider.
func NewMemoryIndexProvider() *MemoryIndexProvider {
	return &MemoryIndexProvider{tenants: make(map[int64]*MemoryIndex)}
}

// ForTenant implements vector.Provider.
func (p *MemoryIndexProvider) ForTenant(tenantID int64) vector.Index {
	p.mu.Lock()
	defer p.mu.Unlock()
	ix, ok := p.tenants[tenantID]
	if !ok {
		ix = &MemoryIndex{nodes: make(map[string]vector.Node)}
		p.tenants[tenantID] = ix
	}
	return ix
}

// MemoryIndex implements vector.Index over a map. Dense ranking is cosine
// similarity; lexical ranking is case-insensitive term overlap.
type MemoryIndex struct {
	mu    sync.Mutex
	nodes map[string]vector.Node

	// SearchErr, when set, is returned by Search.
	SearchErr error
}

// Add implements vector.Index with upsert semantics.
func (ix *MemoryIndex) Add(_ context.Context, nodes []vector.Node) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	for _, n := range nodes {
		ix.nodes[n.ID] = n
	}
	return nil
}

// Search implements vector.Index.
func (ix *MemoryIndex) Search(_ context.Context, q vector.Query) ([]vector.ScoredNode, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if ix.SearchErr != nil {
		return nil, ix.SearchErr
	}
	if len(q.KnowledgeBaseIDs) == 0 {
		return nil, nil
	}
	allowed := make(map[int64]bool, len(q.KnowledgeBaseIDs))
	for _, id := range q.KnowledgeBaseIDs {
		allowed[id] = true
	}

	var dense, lexical []string
	byID := make(map[string]vector.Node)
	for id, n := range ix.nodes {
		if !allowed[n.Metadata.KnowledgeBaseID] {
			continue
		}
		byID[id] = n
		if len(q.Vector) > 0 {
			dense = append(dense, id)
		}
		if q.Text != "" && termOverlap(n.Content, q.Text) > 0 {
			lexical = append(lexical, id)
		}
	}

	sort.Slice(dense, func(i, j int) bool {
		ci := cosine(byID[dense[i]].Embedding, q.Vector)
		cj := cosine(byID[dense[j]].Embedding, q.Vector)
		if ci != cj {
			return ci > cj
		}
		return dense[i] < dense[j]
	})
	sort.Slice(lexical, func(i, j int) bool {
		oi := termOverlap(byID[lexical[i]].Content, q.Text)
		oj := termOverlap(byID[lexical[j]].Content, q.Text)
		if oi != oj {
			return oi > oj
		}
		return lexical[i] < lexical[j]
	})

	scores := vector.NormalizeScores(vector.FuseRRF(vector.RRFConstant, dense, lexical))
	out := make([]vector.ScoredNode, 0, q.TopN)
	for _, id := range vector.TopIDs(scores, q.TopN) {
		out = append(out, vector.ScoredNode{Node: byID[id], Score: scores[id]})
	}
	return out, nil
}

// DeleteByDocument implements vector.Index.
func (ix *MemoryIndex) DeleteByDocument(_ context.Context, knowledgeBaseID, documentID int64) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	for id, n := range ix.nodes {
		if n.Metadata.KnowledgeBaseID == knowledgeBaseID && n.Metadata.DocumentID == documentID {
			delete(ix.nodes, id)
		}
	}
	return nil
}

// DeleteByKnowledgeBase implements vector.Index.
func (ix *MemoryIndex) DeleteByKnowledgeBase(_ context.Context, knowledgeBaseID int64) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	for id, n := range ix.nodes {
		if n.Metadata.KnowledgeBaseID == knowledgeBaseID {
			delete(ix.nodes, id)
		}
	}
	return nil
}

// Len reports the stored node count.
func (ix *MemoryIndex) Len() int {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return len(ix.nodes)
}

// Get returns a stored node by ID.
func (ix *MemoryIndex) Get(id string) (vector.Node, bool) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	n, ok := ix.nodes[id]
	return n, ok
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return -1
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return -1
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func termOverlap(content, query string) int {
	contentLower := strings.ToLower(content)
	overlap := 0
	for _, term := range strings.Fields(strings.ToLower(query)) {
		if strings.Contains(contentLower, term) {
			overlap++
		}
	}
	return overlap
}
