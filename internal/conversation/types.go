// Package conversation provides durable conversation history with a bounded
// Redis recency cache in front of PostgreSQL.
//
// The durable store is authoritative; the cache is a performance hint that
// may expire at any time without data loss.
package conversation

import (
	"time"

	"github.com/google/uuid"
)

// Role of a message author.
type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
)

// Conversation groups the messages of one user with one agent.
type Conversation struct {
	ID        uuid.UUID `json:"id"`
	UserID    int64     `json:"user_id"`
	AgentID   int64     `json:"agent_id"`
	Name      string    `json:"name"`
	IsPinned  bool      `json:"is_pinned"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Citation records one retrieved source an answer was grounded on.
type Citation struct {
	DocumentID int64   `json:"document_id"`
	FileName   string  `json:"file_name"`
	Snippet    string  `json:"snippet"`
	Score      float32 `json:"score"`
}

// Message is one turn in a conversation. Messages form a singly linked
// chain through PreMessageID; the root has a nil PreMessageID and every
// conversation must have exactly one root.
type Message struct {
	ID             uuid.UUID  `json:"id"`
	ConversationID uuid.UUID  `json:"conversation_id"`
	UserID         int64      `json:"user_id"`
	AgentID        int64      `json:"agent_id"`
	Body           string     `json:"body"`
	Role           Role       `json:"role"`
	Citations      []Citation `json:"citations,omitempty"`
	PreMessageID   *uuid.UUID `json:"pre_message_id,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}
