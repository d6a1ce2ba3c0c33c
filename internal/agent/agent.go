// Package agent resolves the configuration a conversation is bound to: its
// knowledge base scope, retrieval thresholds, and response texts.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"github.com/syntellix/syntellix-go/internal/config"
)

// DefaultEmptyResponse is sent when an agent has no configured fallback for
// the no-evidence case.
const DefaultEmptyResponse = "Sorry, I could not find relevant information to answer that."

// ErrAgentNotFound indicates the agent does not exist.
var ErrAgentNotFound = errors.New("agent not found")

// Agent is a resolved agent configuration.
type Agent struct {
	ID              int64
	TenantID        int64
	Name            string
	Description     string
	GreetingMessage string

	// EmptyResponse is streamed verbatim when retrieval finds no evidence.
	EmptyResponse string

	ShowCitation bool

	// TopN and SimilarityThreshold come from advanced_config, falling back
	// to the documented defaults when absent.
	TopN                int
	SimilarityThreshold float32

	// KnowledgeBaseIDs is the agent's retrieval scope.
	KnowledgeBaseIDs []int64
}

// advancedConfig is the persisted JSON shape of tunable agent settings.
type advancedConfig struct {
	TopN                *int     `json:"top_n"`
	SimilarityThreshold *float32 `json:"similarity_threshold"`
}

// DB is the subset of pgxpool.Pool the store needs.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store resolves agents from PostgreSQL.
type Store struct {
	db     DB
	logger *slog.Logger
}

// NewStore creates a Store. logger may be nil.
func NewStore(db DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger}
}

// Resolve loads an agent with its knowledge base scope and effective
// retrieval settings.
func (s *Store) Resolve(ctx context.Context, agentID int64) (*Agent, error) {
	var (
		a              Agent
		description    *string
		greeting       *string
		emptyResponse  *string
		advancedConfig []byte
	)
	err := s.db.QueryRow(ctx,
		`SELECT id, tenant_id, name, description, greeting_message, empty_response,
		        show_citation, advanced_config
		 FROM t_agent WHERE id = $1`, agentID).
		Scan(&a.ID, &a.TenantID, &a.Name, &description, &greeting, &emptyResponse,
			&a.ShowCitation, &advancedConfig)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrAgentNotFound, agentID)
	}
	if err != nil {
		return nil, fmt.Errorf("resolving agent %d: %w", agentID, err)
	}

	if description != nil {
		a.Description = *description
	}
	if greeting != nil {
		a.GreetingMessage = *greeting
	}
	a.EmptyResponse = DefaultEmptyResponse
	if emptyResponse != nil && *emptyResponse != "" {
		a.EmptyResponse = *emptyResponse
	}

	a.TopN, a.SimilarityThreshold = effectiveSettings(advancedConfig, s.logger, agentID)

	a.KnowledgeBaseIDs, err = s.knowledgeBases(ctx, agentID)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *Store) knowledgeBases(ctx context.Context, agentID int64) ([]int64, error) {
	rows, err := s.db.Query(ctx,
		`SELECT knowledge_base_id FROM t_agent_knowledge_base WHERE agent_id = $1 ORDER BY knowledge_base_id`,
		agentID)
	if err != nil {
		return nil, fmt.Errorf("loading knowledge bases for agent %d: %w", agentID, err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning knowledge base id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// effectiveSettings applies the documented defaults for anything
// advanced_config leaves unset or malformed.
func effectiveSettings(raw []byte, logger *slog.Logger, agentID int64) (topN int, threshold float32) {
	if logger == nil {
		logger = slog.Default()
	}
	topN = config.DefaultTopN
	threshold = config.DefaultSimilarityThreshold

	if len(raw) == 0 {
		return topN, threshold
	}
	var cfg advancedConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		logger.Warn("malformed advanced_config, using defaults", "agent_id", agentID, "error", err)
		return topN, threshold
	}
	if cfg.TopN != nil && *cfg.TopN > 0 {
		topN = *cfg.TopN
	}
	if cfg.SimilarityThreshold != nil && *cfg.SimilarityThreshold >= 0 && *cfg.SimilarityThreshold <= 1 {
		threshold = *cfg.SimilarityThreshold
	}
	return topN, threshold
}
