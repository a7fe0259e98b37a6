package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"gwi.com/firechat/internal/live"
	"gwi.com/firechat/internal/store"
)

var errBackend = errors.New("backend unavailable")

var utcFormatter = TimestampFormatter{Location: time.UTC, Layout: DefaultTimestampLayout}

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLiteStore(":memory:", 20*time.Millisecond)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestService(t *testing.T) (*ChatService, *store.SQLiteStore) {
	t.Helper()
	db := newTestStore(t)
	return NewChatService(db, nil, utcFormatter), db
}

// failingStore fails every conversation and message call.
type failingStore struct {
	store.Store
}

func (failingStore) QueryConversations(context.Context, store.Query) ([]store.Conversation, error) {
	return nil, errBackend
}

func (failingStore) GetConversation(context.Context, string) (*store.Conversation, error) {
	return nil, errBackend
}

func (failingStore) QueryUsers(context.Context, store.Query) ([]store.AppUser, error) {
	return nil, errBackend
}

// denyThrottle refuses every touch.
type denyThrottle struct{}

func (denyThrottle) Allow(context.Context, string) (bool, error) { return false, nil }
func (denyThrottle) Close() error                                { return nil }

func nextUpdate[T any](t *testing.T, s *live.Stream[T]) T {
	t.Helper()
	select {
	case v, ok := <-s.Updates():
		require.True(t, ok, "stream ended: %v", s.Err())
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for update")
	}
	var zero T
	return zero
}
