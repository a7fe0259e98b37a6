package store

import (
	"context"
	"errors"

	"gwi.com/firechat/internal/live"
)

var ErrUnsupportedQuery = errors.New("unsupported query")

// Store is the document backend. Reads come in two flavours: a point-in-time
// Query* call and a Watch* call whose stream re-delivers the full result set
// on every change until it is closed.
type Store interface {
	// GetConversation returns nil, nil when the conversation does not exist.
	GetConversation(ctx context.Context, id string) (*Conversation, error)
	AddConversation(ctx context.Context, users []string) (string, error)
	QueryConversations(ctx context.Context, q Query) ([]Conversation, error)
	WatchConversations(ctx context.Context, q Query) *live.Stream[[]Conversation]

	// AddMessage appends a message stamped with the backend's clock.
	AddMessage(ctx context.Context, conversationID, sender, text string) (string, error)
	QueryMessages(ctx context.Context, q Query) ([]MessageRecord, error)
	WatchMessages(ctx context.Context, q Query) *live.Stream[[]MessageRecord]

	QueryUsers(ctx context.Context, q Query) ([]AppUser, error)
	WatchUsers(ctx context.Context, q Query) *live.Stream[[]AppUser]
	// TouchLastSeen sets lastSeen to the backend's clock, merging into any
	// existing profile.
	TouchLastSeen(ctx context.Context, email string) error
	UpsertUser(ctx context.Context, email, photoURL string) error

	Close() error
}
