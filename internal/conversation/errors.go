package conversation

import "errors"

// Sentinel errors for store operations. Check with errors.Is.
var (
	// ErrConversationNotFound indicates the conversation does not exist.
	ErrConversationNotFound = errors.New("conversation not found")

	// ErrInvalidRole indicates a message role outside {user, agent}.
	ErrInvalidRole = errors.New("invalid message role")

	// ErrEmptyBody indicates an attempt to append a message with no text.
	ErrEmptyBody = errors.New("message body is empty")

	// ErrDataIntegrity indicates the message chain is corrupt: no unique
	// root, a broken link, or forward and backward walks that disagree.
	// Never patched silently.
	ErrDataIntegrity = errors.New("conversation message chain integrity violation")
)
