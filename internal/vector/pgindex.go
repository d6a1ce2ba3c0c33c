package vector

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"
)

// DB is the subset of pgxpool.Pool the index needs.
// Defined here so tests can substitute a fake.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// PGProvider hands out tenant-scoped indexes over a shared Postgres pool.
type PGProvider struct {
	db        DB
	dimension int
	logger    *slog.Logger
}

// NewPGProvider creates a Provider backed by Postgres with pgvector.
// dimension must match the vector column width of the node table.
func NewPGProvider(db DB, dimension int, logger *slog.Logger) *PGProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &PGProvider{db: db, dimension: dimension, logger: logger}
}

// ForTenant returns an Index that sees only tenantID's nodes.
func (p *PGProvider) ForTenant(tenantID int64) Index {
	return &pgIndex{
		db:        p.db,
		tenantID:  tenantID,
		dimension: p.dimension,
		logger:    p.logger.With("tenant_id", tenantID),
	}
}

type pgIndex struct {
	db        DB
	tenantID  int64
	dimension int
	logger    *slog.Logger
}

const upsertNodeSQL = `
	INSERT INTO t_rag_node
		(id, tenant_id, knowledge_base_id, document_id, file_name, image_id,
		 content, contextualized_content, embedding)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	ON CONFLICT (id) DO UPDATE SET
		knowledge_base_id      = EXCLUDED.knowledge_base_id,
		document_id            = EXCLUDED.document_id,
		file_name              = EXCLUDED.file_name,
		image_id               = EXCLUDED.image_id,
		content                = EXCLUDED.content,
		contextualized_content = EXCLUDED.contextualized_content,
		embedding              = EXCLUDED.embedding`

// Add upserts nodes in a single batch round trip.
func (ix *pgIndex) Add(ctx context.Context, nodes []Node) error {
	if len(nodes) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, n := range nodes {
		if len(n.Embedding) != ix.dimension {
			return fmt.Errorf("node %q: %w: got %d, want %d",
				n.ID, ErrDimensionMismatch, len(n.Embedding), ix.dimension)
		}
		batch.Queue(upsertNodeSQL,
			n.ID, ix.tenantID, n.Metadata.KnowledgeBaseID, n.Metadata.DocumentID,
			n.Metadata.FileName, n.Metadata.ImageID,
			n.Content, n.ContextualizedContent, pgvector.NewVector(n.Embedding))
	}

	results := ix.db.SendBatch(ctx, batch)
	defer results.Close()

	for i := range nodes {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("upserting node %q: %w", nodes[i].ID, err)
		}
	}

	ix.logger.Debug("nodes upserted", "count", len(nodes))
	return nil
}

const denseSearchSQL = `
	SELECT id, content, contextualized_content, knowledge_base_id, document_id,
	       file_name, image_id, created_at
	FROM t_rag_node
	WHERE tenant_id = $1 AND knowledge_base_id = ANY($2)
	ORDER BY embedding <=> $3
	LIMIT $4`

const lexicalSearchSQL = `
	SELECT id, content, contextualized_content, knowledge_base_id, document_id,
	       file_name, image_id, created_at
	FROM t_rag_node
	WHERE tenant_id = $1 AND knowledge_base_id = ANY($2)
	  AND content_tsv @@ websearch_to_tsquery('simple', $3)
	ORDER BY ts_rank_cd(content_tsv, websearch_to_tsquery('simple', $3)) DESC
	LIMIT $4`

// Search runs the dense and lexical rankings over the scoped knowledge
// bases, fuses them with reciprocal rank fusion, and returns the TopN nodes
// with normalized scores.
func (ix *pgIndex) Search(ctx context.Context, q Query) ([]ScoredNode, error) {
	if len(q.Vector) == 0 && q.Text == "" {
		return nil, ErrEmptyQuery
	}
	if len(q.KnowledgeBaseIDs) == 0 {
		return nil, nil
	}
	if len(q.Vector) > 0 && len(q.Vector) != ix.dimension {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(q.Vector), ix.dimension)
	}

	topN := q.TopN
	if topN <= 0 {
		topN = 1
	}
	candidates := topN * CandidateMultiplier

	byID := make(map[string]Node)
	var rankings [][]string

	if len(q.Vector) > 0 {
		ranking, err := ix.searchOne(ctx, byID, denseSearchSQL,
			ix.tenantID, q.KnowledgeBaseIDs, pgvector.NewVector(q.Vector), candidates)
		if err != nil {
			return nil, fmt.Errorf("dense search: %w", err)
		}
		rankings = append(rankings, ranking)
	}
	if q.Text != "" {
		ranking, err := ix.searchOne(ctx, byID, lexicalSearchSQL,
			ix.tenantID, q.KnowledgeBaseIDs, q.Text, candidates)
		if err != nil {
			return nil, fmt.Errorf("lexical search: %w", err)
		}
		rankings = append(rankings, ranking)
	}

	scores := NormalizeScores(FuseRRF(RRFConstant, rankings...))

	fused := make([]ScoredNode, 0, topN)
	for _, id := range TopIDs(scores, topN) {
		fused = append(fused, ScoredNode{Node: byID[id], Score: scores[id]})
	}

	ix.logger.Debug("hybrid search done",
		"rankings", len(rankings), "candidates", len(byID), "returned", len(fused))
	return fused, nil
}

// searchOne runs one ranking query, records the rows in byID, and returns
// the IDs in rank order.
func (ix *pgIndex) searchOne(ctx context.Context, byID map[string]Node, sql string, args ...any) ([]string, error) {
	rows, err := ix.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ranking []string
	for rows.Next() {
		var n Node
		n.Metadata.TenantID = ix.tenantID
		if err := rows.Scan(&n.ID, &n.Content, &n.ContextualizedContent,
			&n.Metadata.KnowledgeBaseID, &n.Metadata.DocumentID,
			&n.Metadata.FileName, &n.Metadata.ImageID, &n.Metadata.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning node: %w", err)
		}
		ranking = append(ranking, n.ID)
		byID[n.ID] = n
	}
	return ranking, rows.Err()
}

// DeleteByDocument removes every node of one document.
func (ix *pgIndex) DeleteByDocument(ctx context.Context, knowledgeBaseID, documentID int64) error {
	tag, err := ix.db.Exec(ctx,
		`DELETE FROM t_rag_node WHERE tenant_id = $1 AND knowledge_base_id = $2 AND document_id = $3`,
		ix.tenantID, knowledgeBaseID, documentID)
	if err != nil {
		return fmt.Errorf("deleting document %d nodes: %w", documentID, err)
	}
	ix.logger.Debug("document nodes deleted", "document_id", documentID, "count", tag.RowsAffected())
	return nil
}

// DeleteByKnowledgeBase removes every node of one knowledge base.
func (ix *pgIndex) DeleteByKnowledgeBase(ctx context.Context, knowledgeBaseID int64) error {
	tag, err := ix.db.Exec(ctx,
		`DELETE FROM t_rag_node WHERE tenant_id = $1 AND knowledge_base_id = $2`,
		ix.tenantID, knowledgeBaseID)
	if err != nil {
		return fmt.Errorf("deleting knowledge base %d nodes: %w", knowledgeBaseID, err)
	}
	ix.logger.Debug("knowledge base nodes deleted", "knowledge_base_id", knowledgeBaseID, "count", tag.RowsAffected())
	return nil
}
