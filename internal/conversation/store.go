package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// defaultHistoryLimit caps GetHistory when the caller passes no bound.
const defaultHistoryLimit = 20

// DB is the subset of pgxpool.Pool the store needs.
// Defined here so tests can substitute a fake.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store manages conversations and their message chains in PostgreSQL, with
// the recency cache updated after every durable write.
//
// Store is safe for concurrent use by multiple goroutines. Appends to the
// same conversation serialize on a row lock; different conversations
// proceed in parallel.
type Store struct {
	db     DB
	cache  *Cache
	logger *slog.Logger
}

// NewStore creates a Store. cache may be nil, which disables caching and
// serves every read from the database. logger may be nil.
func NewStore(db DB, cache *Cache, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, cache: cache, logger: logger}
}

// Create starts a new conversation.
func (s *Store) Create(ctx context.Context, userID, agentID int64, name string) (*Conversation, error) {
	var conv Conversation
	err := s.db.QueryRow(ctx,
		`INSERT INTO t_conversation (user_id, agent_id, name)
		 VALUES ($1, $2, $3)
		 RETURNING id, user_id, agent_id, name, is_pinned, created_at, updated_at`,
		userID, agentID, name).
		Scan(&conv.ID, &conv.UserID, &conv.AgentID, &conv.Name, &conv.IsPinned, &conv.CreatedAt, &conv.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("creating conversation: %w", err)
	}
	s.logger.Debug("conversation created", "id", conv.ID, "user_id", userID, "agent_id", agentID)
	return &conv, nil
}

// Get retrieves a conversation by ID.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*Conversation, error) {
	var conv Conversation
	err := s.db.QueryRow(ctx,
		`SELECT id, user_id, agent_id, name, is_pinned, created_at, updated_at
		 FROM t_conversation WHERE id = $1`, id).
		Scan(&conv.ID, &conv.UserID, &conv.AgentID, &conv.Name, &conv.IsPinned, &conv.CreatedAt, &conv.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrConversationNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("getting conversation %s: %w", id, err)
	}
	return &conv, nil
}

// Rename changes a conversation's display name.
func (s *Store) Rename(ctx context.Context, id uuid.UUID, name string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE t_conversation SET name = $2, updated_at = now() WHERE id = $1`, id, name)
	if err != nil {
		return fmt.Errorf("renaming conversation %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrConversationNotFound, id)
	}
	return nil
}

// SetPinned pins or unpins a conversation.
func (s *Store) SetPinned(ctx context.Context, id uuid.UUID, pinned bool) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE t_conversation SET is_pinned = $2, updated_at = now() WHERE id = $1`, id, pinned)
	if err != nil {
		return fmt.Errorf("pinning conversation %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrConversationNotFound, id)
	}
	return nil
}

// Delete removes a conversation and, via cascade, its messages. The cached
// list is invalidated best effort.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM t_conversation WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting conversation %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrConversationNotFound, id)
	}
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, id); err != nil {
			s.logger.Warn("cache invalidation failed", "conversation_id", id, "error", err)
		}
	}
	return nil
}

// List returns a user's conversations with an agent, pinned first, most
// recently active first.
func (s *Store) List(ctx context.Context, userID, agentID int64, limit, offset int) ([]*Conversation, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, user_id, agent_id, name, is_pinned, created_at, updated_at
		 FROM t_conversation
		 WHERE user_id = $1 AND agent_id = $2
		 ORDER BY is_pinned DESC, updated_at DESC
		 LIMIT $3 OFFSET $4`,
		userID, agentID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}
	defer rows.Close()

	var conversations []*Conversation
	for rows.Next() {
		var conv Conversation
		if err := rows.Scan(&conv.ID, &conv.UserID, &conv.AgentID, &conv.Name, &conv.IsPinned, &conv.CreatedAt, &conv.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning conversation: %w", err)
		}
		conversations = append(conversations, &conv)
	}
	return conversations, rows.Err()
}

// Latest returns the most recently active conversation of a user with an
// agent, or ErrConversationNotFound if there is none.
func (s *Store) Latest(ctx context.Context, userID, agentID int64) (*Conversation, error) {
	var conv Conversation
	err := s.db.QueryRow(ctx,
		`SELECT id, user_id, agent_id, name, is_pinned, created_at, updated_at
		 FROM t_conversation
		 WHERE user_id = $1 AND agent_id = $2
		 ORDER BY updated_at DESC
		 LIMIT 1`, userID, agentID).
		Scan(&conv.ID, &conv.UserID, &conv.AgentID, &conv.Name, &conv.IsPinned, &conv.CreatedAt, &conv.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting latest conversation: %w", err)
	}
	return &conv, nil
}

// AppendParams describes one message to append.
type AppendParams struct {
	ConversationID uuid.UUID
	UserID         int64
	AgentID        int64
	Role           Role
	Body           string
	Citations      []Citation
}

// AppendMessage writes the message durably, bumps the conversation's
// updated_at, then pushes a copy onto the cache.
//
// The conversation row is locked for the duration of the transaction, so
// concurrent appends to one conversation serialize while other
// conversations proceed in parallel. The new message's pre_message_id is
// resolved to the chain tail under that lock, never from a caller-supplied
// value, so interleaved appends cannot fork the chain or create a second
// root. A cache push failure is logged, not returned: the durable write
// already succeeded.
func (s *Store) AppendMessage(ctx context.Context, params AppendParams) (*Message, error) {
	if params.Role != RoleUser && params.Role != RoleAgent {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRole, params.Role)
	}
	if params.Body == "" {
		return nil, ErrEmptyBody
	}

	var citationJSON []byte
	if len(params.Citations) > 0 {
		var err error
		citationJSON, err = json.Marshal(params.Citations)
		if err != nil {
			return nil, fmt.Errorf("encoding citations: %w", err)
		}
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning append transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var lockedID uuid.UUID
	err = tx.QueryRow(ctx,
		`SELECT id FROM t_conversation WHERE id = $1 FOR UPDATE`,
		params.ConversationID).Scan(&lockedID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrConversationNotFound, params.ConversationID)
	}
	if err != nil {
		return nil, fmt.Errorf("locking conversation %s: %w", params.ConversationID, err)
	}

	// The chain tail is the one message no other message links back to.
	// Resolved inside the lock so two interleaved appends see each other.
	var preMessageID *uuid.UUID
	var tail uuid.UUID
	err = tx.QueryRow(ctx,
		`SELECT m.id FROM t_conversation_message m
		 WHERE m.conversation_id = $1
		   AND NOT EXISTS (
			SELECT 1 FROM t_conversation_message c
			WHERE c.pre_message_id = m.id)`,
		params.ConversationID).Scan(&tail)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		// First message of the conversation; it becomes the root.
	case err != nil:
		return nil, fmt.Errorf("finding chain tail for %s: %w", params.ConversationID, err)
	default:
		preMessageID = &tail
	}

	msg := Message{
		ConversationID: params.ConversationID,
		UserID:         params.UserID,
		AgentID:        params.AgentID,
		Body:           params.Body,
		Role:           params.Role,
		Citations:      params.Citations,
		PreMessageID:   preMessageID,
	}
	err = tx.QueryRow(ctx,
		`INSERT INTO t_conversation_message
			(conversation_id, user_id, agent_id, body, role, citation, pre_message_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id, created_at`,
		params.ConversationID, params.UserID, params.AgentID,
		params.Body, string(params.Role), citationJSON, preMessageID).
		Scan(&msg.ID, &msg.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("inserting message: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE t_conversation SET updated_at = now() WHERE id = $1`,
		params.ConversationID); err != nil {
		return nil, fmt.Errorf("bumping conversation %s: %w", params.ConversationID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing append: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.Push(ctx, msg); err != nil {
			s.logger.Warn("cache push failed", "conversation_id", params.ConversationID, "error", err)
		}
	}

	s.logger.Debug("message appended",
		"conversation_id", params.ConversationID, "message_id", msg.ID, "role", msg.Role)
	return &msg, nil
}

// GetHistory returns up to maxMessages of the conversation's most recent
// messages in creation order, oldest first.
//
// The cache serves the read when it holds enough entries; otherwise the
// history is reconstructed from the durable chain and the cache is
// repopulated. Chain reconstruction walks forward from the unique root and
// backward from the newest message; any disagreement surfaces as
// ErrDataIntegrity.
func (s *Store) GetHistory(ctx context.Context, conversationID uuid.UUID, maxMessages int) ([]Message, error) {
	if maxMessages <= 0 {
		maxMessages = defaultHistoryLimit
	}

	if s.cache != nil {
		cached, err := s.cache.Recent(ctx, conversationID, maxMessages)
		if err != nil {
			s.logger.Warn("cache read failed", "conversation_id", conversationID, "error", err)
		} else if len(cached) >= maxMessages {
			return cached, nil
		}
	}

	chain, err := s.loadChain(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	if s.cache != nil && len(chain) > 0 {
		if err := s.cache.Replace(ctx, conversationID, chain); err != nil {
			s.logger.Warn("cache repopulation failed", "conversation_id", conversationID, "error", err)
		}
	}

	if len(chain) > maxMessages {
		chain = chain[len(chain)-maxMessages:]
	}
	return chain, nil
}

// loadChain reads every message of the conversation and orders them by
// walking the pre_message_id links.
func (s *Store) loadChain(ctx context.Context, conversationID uuid.UUID) ([]Message, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, conversation_id, user_id, agent_id, body, role, citation, pre_message_id, created_at
		 FROM t_conversation_message
		 WHERE conversation_id = $1
		 ORDER BY created_at`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("loading messages for %s: %w", conversationID, err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var (
			msg          Message
			role         string
			citationJSON []byte
		)
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.UserID, &msg.AgentID,
			&msg.Body, &role, &citationJSON, &msg.PreMessageID, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		msg.Role = Role(role)
		if len(citationJSON) > 0 {
			if err := json.Unmarshal(citationJSON, &msg.Citations); err != nil {
				return nil, fmt.Errorf("decoding citations for message %s: %w", msg.ID, err)
			}
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("loading messages for %s: %w", conversationID, err)
	}

	return orderChain(conversationID, messages)
}

// orderChain arranges messages into creation order by their links and
// verifies the chain's integrity from both ends.
func orderChain(conversationID uuid.UUID, messages []Message) ([]Message, error) {
	if len(messages) == 0 {
		return nil, nil
	}

	byID := make(map[uuid.UUID]*Message, len(messages))
	successor := make(map[uuid.UUID]uuid.UUID, len(messages))
	referenced := make(map[uuid.UUID]bool, len(messages))

	var root *Message
	for i := range messages {
		msg := &messages[i]
		byID[msg.ID] = msg
		if msg.PreMessageID == nil {
			if root != nil {
				return nil, fmt.Errorf("%w: conversation %s has multiple roots", ErrDataIntegrity, conversationID)
			}
			root = msg
			continue
		}
		if _, dup := successor[*msg.PreMessageID]; dup {
			return nil, fmt.Errorf("%w: conversation %s branches at message %s", ErrDataIntegrity, conversationID, *msg.PreMessageID)
		}
		successor[*msg.PreMessageID] = msg.ID
		referenced[*msg.PreMessageID] = true
	}
	if root == nil {
		return nil, fmt.Errorf("%w: conversation %s has no root", ErrDataIntegrity, conversationID)
	}

	// Forward walk from the root.
	forward := make([]Message, 0, len(messages))
	for id := root.ID; ; {
		msg, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("%w: conversation %s links to missing message %s", ErrDataIntegrity, conversationID, id)
		}
		forward = append(forward, *msg)
		next, ok := successor[id]
		if !ok {
			break
		}
		id = next
	}
	if len(forward) != len(messages) {
		return nil, fmt.Errorf("%w: conversation %s chain covers %d of %d messages", ErrDataIntegrity, conversationID, len(forward), len(messages))
	}

	// Backward walk from the newest message must agree.
	newest := forward[len(forward)-1]
	for i := len(forward) - 1; i >= 0; i-- {
		if newest.ID != forward[i].ID {
			return nil, fmt.Errorf("%w: conversation %s forward and backward walks disagree at %s", ErrDataIntegrity, conversationID, newest.ID)
		}
		if newest.PreMessageID == nil {
			if i != 0 {
				return nil, fmt.Errorf("%w: conversation %s backward walk ended early", ErrDataIntegrity, conversationID)
			}
			break
		}
		prev, ok := byID[*newest.PreMessageID]
		if !ok {
			return nil, fmt.Errorf("%w: conversation %s links to missing message %s", ErrDataIntegrity, conversationID, *newest.PreMessageID)
		}
		newest = *prev
	}

	return forward, nil
}
