package core

import "errors"

// Validation failures. These are detected before any backend call.
var (
	ErrUnauthenticated    = errors.New("no authenticated user")
	ErrEmptyRecipient     = errors.New("recipient email is required")
	ErrInvalidEmail       = errors.New("recipient email is not a valid address")
	ErrSelfConversation   = errors.New("cannot start a conversation with yourself")
	ErrConversationExists = errors.New("conversation already exists")
	ErrEmptyMessage       = errors.New("message text is empty")
)

// Access failures.
var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrNotParticipant       = errors.New("user is not a participant of the conversation")
)

// IsValidation reports whether err is a caller mistake rather than a backend
// failure.
func IsValidation(err error) bool {
	for _, target := range []error{
		ErrUnauthenticated, ErrEmptyRecipient, ErrInvalidEmail,
		ErrSelfConversation, ErrConversationExists, ErrEmptyMessage,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
