package store

import (
	"context"
	"database/sql"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"github.com/rs/zerolog/log"

	"gwi.com/firechat/internal/live"
)

// SQLiteStore is a single-node stand-in for Firestore, used for local
// development and tests. Live queries are served by polling, and every write
// wakes the pollers immediately.
type SQLiteStore struct {
	db           *sql.DB
	pollInterval time.Duration
	now          func() time.Time

	mu      sync.Mutex
	changed chan struct{}
}

func NewSQLiteStore(dataSourceName string, pollInterval time.Duration) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection keeps :memory: databases shared and serialises writers.
	db.SetMaxOpenConns(1)
	if err = db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}

	store := &SQLiteStore{
		db:           db,
		pollInterval: pollInterval,
		now:          time.Now,
		changed:      make(chan struct{}),
	}
	if err = store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	log.Info().Str("dsn", dataSourceName).Dur("poll_interval", pollInterval).Msg("SQLite store ready")
	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS conversations (
        seq INTEGER PRIMARY KEY AUTOINCREMENT,
        id TEXT UNIQUE NOT NULL, -- UUID
        user_a TEXT NOT NULL,
        user_b TEXT NOT NULL
    );

    CREATE TABLE IF NOT EXISTS messages (
        seq INTEGER PRIMARY KEY AUTOINCREMENT,
        id TEXT UNIQUE NOT NULL, -- UUID
        conversation_id TEXT NOT NULL,
        sent_user TEXT NOT NULL,
        text TEXT NOT NULL,
        sent_at INTEGER -- unix nanos, NULL until stamped
    );

    CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages (conversation_id, sent_at);

    CREATE TABLE IF NOT EXISTS users (
        seq INTEGER PRIMARY KEY AUTOINCREMENT,
        email TEXT UNIQUE NOT NULL,
        last_seen INTEGER,
        photo_url TEXT NOT NULL DEFAULT ''
    );
    `
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) changes() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.changed
}

func (s *SQLiteStore) notify() {
	s.mu.Lock()
	close(s.changed)
	s.changed = make(chan struct{})
	s.mu.Unlock()
}

// columns maps document fields onto table columns, per collection.
var columns = map[string]map[string]string{
	CollectionConversations: {},
	CollectionMessages: {
		FieldConversationID: "conversation_id",
		FieldSentUser:       "sent_user",
		FieldText:           "text",
		FieldSentAt:         "sent_at",
	},
	CollectionUsers: {
		FieldEmail:    "email",
		FieldLastSeen: "last_seen",
		FieldPhotoURL: "photo_url",
	},
}

// translate renders the WHERE/ORDER BY/LIMIT tail of a select. Rows that tie
// on every requested order key fall back to insertion order.
func translate(q Query) (string, []any, error) {
	cols, ok := columns[q.Collection]
	if !ok {
		return "", nil, fmt.Errorf("%w: unknown collection %q", ErrUnsupportedQuery, q.Collection)
	}

	var where []string
	var args []any
	for _, f := range q.Filters {
		switch {
		case q.Collection == CollectionConversations && f.Field == FieldUsers && f.Op == OpArrayContains:
			where = append(where, "(user_a = ? OR user_b = ?)")
			args = append(args, f.Value, f.Value)
		case f.Op == OpEqual && cols[f.Field] != "":
			where = append(where, cols[f.Field]+" = ?")
			args = append(args, f.Value)
		default:
			return "", nil, fmt.Errorf("%w: %s %s on %s", ErrUnsupportedQuery, f.Field, f.Op, q.Collection)
		}
	}

	var order []string
	for _, o := range q.OrderBy {
		col := cols[o.Field]
		if col == "" {
			return "", nil, fmt.Errorf("%w: order by %s on %s", ErrUnsupportedQuery, o.Field, q.Collection)
		}
		order = append(order, col+" "+strings.ToUpper(o.Direction.String()))
	}
	order = append(order, "seq ASC")

	var b strings.Builder
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	b.WriteString(" ORDER BY ")
	b.WriteString(strings.Join(order, ", "))
	if q.Limit > 0 {
		b.WriteString(" LIMIT ?")
		args = append(args, q.Limit)
	}
	return b.String(), args, nil
}

// Conversation methods
func (s *SQLiteStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	var c Conversation
	var a, b string
	err := s.db.QueryRowContext(ctx, "SELECT id, user_a, user_b FROM conversations WHERE id = ?", id).Scan(&c.ID, &a, &b)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	c.Users = []string{a, b}
	return &c, nil
}

func (s *SQLiteStore) AddConversation(ctx context.Context, users []string) (string, error) {
	if len(users) != 2 {
		return "", fmt.Errorf("conversation needs exactly two users, got %d", len(users))
	}
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx, "INSERT INTO conversations (id, user_a, user_b) VALUES (?, ?, ?)", id, users[0], users[1])
	if err != nil {
		return "", fmt.Errorf("failed to insert conversation: %w", err)
	}
	s.notify()
	return id, nil
}

func (s *SQLiteStore) QueryConversations(ctx context.Context, q Query) ([]Conversation, error) {
	if err := q.expect(CollectionConversations); err != nil {
		return nil, err
	}
	tail, args, err := translate(q)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, "SELECT id, user_a, user_b FROM conversations"+tail, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversations: %w", err)
	}
	defer rows.Close()

	conversations := []Conversation{}
	for rows.Next() {
		var c Conversation
		var a, b string
		if err := rows.Scan(&c.ID, &a, &b); err != nil {
			return nil, fmt.Errorf("failed to scan conversation row: %w", err)
		}
		c.Users = []string{a, b}
		conversations = append(conversations, c)
	}
	return conversations, rows.Err()
}

func (s *SQLiteStore) WatchConversations(ctx context.Context, q Query) *live.Stream[[]Conversation] {
	return poll(ctx, s, func(ctx context.Context) ([]Conversation, error) {
		return s.QueryConversations(ctx, q)
	})
}

// Message methods
func (s *SQLiteStore) AddMessage(ctx context.Context, conversationID, sender, text string) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx, "INSERT INTO messages (id, conversation_id, sent_user, text, sent_at) VALUES (?, ?, ?, ?, ?)",
		id, conversationID, sender, text, s.now().UnixNano())
	if err != nil {
		return "", fmt.Errorf("failed to insert message: %w", err)
	}
	s.notify()
	return id, nil
}

func (s *SQLiteStore) QueryMessages(ctx context.Context, q Query) ([]MessageRecord, error) {
	if err := q.expect(CollectionMessages); err != nil {
		return nil, err
	}
	tail, args, err := translate(q)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, "SELECT id, conversation_id, sent_user, text, sent_at FROM messages"+tail, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	messages := []MessageRecord{}
	for rows.Next() {
		var msg MessageRecord
		var sentAt sql.NullInt64
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.SentUser, &msg.Text, &sentAt); err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		if sentAt.Valid {
			t := time.Unix(0, sentAt.Int64).UTC()
			msg.SentAt = &t
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

func (s *SQLiteStore) WatchMessages(ctx context.Context, q Query) *live.Stream[[]MessageRecord] {
	return poll(ctx, s, func(ctx context.Context) ([]MessageRecord, error) {
		return s.QueryMessages(ctx, q)
	})
}

// User methods
func (s *SQLiteStore) QueryUsers(ctx context.Context, q Query) ([]AppUser, error) {
	if err := q.expect(CollectionUsers); err != nil {
		return nil, err
	}
	tail, args, err := translate(q)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, "SELECT email, last_seen, photo_url FROM users"+tail, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	users := []AppUser{}
	for rows.Next() {
		var u AppUser
		var lastSeen sql.NullInt64
		if err := rows.Scan(&u.Email, &lastSeen, &u.PhotoURL); err != nil {
			return nil, fmt.Errorf("failed to scan user row: %w", err)
		}
		if lastSeen.Valid {
			u.LastSeen = time.Unix(0, lastSeen.Int64).UTC()
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *SQLiteStore) WatchUsers(ctx context.Context, q Query) *live.Stream[[]AppUser] {
	return poll(ctx, s, func(ctx context.Context) ([]AppUser, error) {
		return s.QueryUsers(ctx, q)
	})
}

func (s *SQLiteStore) TouchLastSeen(ctx context.Context, email string) error {
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO users (email, last_seen) VALUES (?, ?)
        ON CONFLICT(email) DO UPDATE SET last_seen = excluded.last_seen`,
		email, s.now().UnixNano())
	if err != nil {
		return fmt.Errorf("failed to touch last seen for %s: %w", email, err)
	}
	s.notify()
	return nil
}

func (s *SQLiteStore) UpsertUser(ctx context.Context, email, photoURL string) error {
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO users (email, last_seen, photo_url) VALUES (?, ?, ?)
        ON CONFLICT(email) DO UPDATE SET last_seen = excluded.last_seen, photo_url = excluded.photo_url`,
		email, s.now().UnixNano(), photoURL)
	if err != nil {
		return fmt.Errorf("failed to upsert user %s: %w", email, err)
	}
	s.notify()
	return nil
}

// poll re-runs fetch after every write and on each tick, emitting only when
// the result differs from the last one delivered.
func poll[T any](parent context.Context, s *SQLiteStore, fetch func(context.Context) ([]T, error)) *live.Stream[[]T] {
	return live.Start(parent, func(ctx context.Context, emit func([]T) bool) error {
		ticker := time.NewTicker(s.pollInterval)
		defer ticker.Stop()

		var last []T
		first := true
		for {
			wake := s.changes()
			items, err := fetch(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
			if first || !reflect.DeepEqual(items, last) {
				if !emit(items) {
					return nil
				}
				last, first = items, false
			}

			select {
			case <-ctx.Done():
				return nil
			case <-wake:
			case <-ticker.C:
			}
		}
	})
}
