package store

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/firestore"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"gwi.com/firechat/internal/live"
)

type FirestoreStore struct {
	client *firestore.Client
}

// NewFirestoreStore connects to projectID. When FIRESTORE_EMULATOR_HOST is set
// the SDK talks to the emulator instead.
func NewFirestoreStore(ctx context.Context, projectID string, opts ...option.ClientOption) (*FirestoreStore, error) {
	client, err := firestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}
	log.Info().Str("project", projectID).Msg("Firestore client ready")
	return &FirestoreStore{client: client}, nil
}

func (s *FirestoreStore) Close() error {
	return s.client.Close()
}

func (s *FirestoreStore) build(q Query) firestore.Query {
	fq := s.client.Collection(q.Collection).Query
	for _, f := range q.Filters {
		fq = fq.Where(f.Field, string(f.Op), f.Value)
	}
	for _, o := range q.OrderBy {
		dir := firestore.Asc
		if o.Direction == Desc {
			dir = firestore.Desc
		}
		fq = fq.OrderBy(o.Field, dir)
	}
	if q.Limit > 0 {
		fq = fq.Limit(q.Limit)
	}
	return fq
}

// docRef guards against ids Firestore cannot address; Doc returns nil for
// those instead of an error.
func (s *FirestoreStore) docRef(collection, id string) (*firestore.DocumentRef, error) {
	if id == "" || strings.Contains(id, "/") {
		return nil, fmt.Errorf("invalid %s document id %q", collection, id)
	}
	return s.client.Collection(collection).Doc(id), nil
}

// Conversation methods
func (s *FirestoreStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	ref, err := s.docRef(CollectionConversations, id)
	if err != nil {
		return nil, nil // An unaddressable id cannot exist
	}
	doc, err := ref.Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	conv, err := decodeConversation(doc)
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

func (s *FirestoreStore) AddConversation(ctx context.Context, users []string) (string, error) {
	ref, _, err := s.client.Collection(CollectionConversations).Add(ctx, map[string]interface{}{
		FieldUsers: users,
	})
	if err != nil {
		return "", fmt.Errorf("failed to add conversation: %w", err)
	}
	return ref.ID, nil
}

func (s *FirestoreStore) QueryConversations(ctx context.Context, q Query) ([]Conversation, error) {
	if err := q.expect(CollectionConversations); err != nil {
		return nil, err
	}
	return getAll(ctx, s.build(q), decodeConversation)
}

func (s *FirestoreStore) WatchConversations(ctx context.Context, q Query) *live.Stream[[]Conversation] {
	if err := q.expect(CollectionConversations); err != nil {
		return live.Failed[[]Conversation](err)
	}
	return watchQuery(ctx, s.build(q), decodeConversation)
}

// Message methods
func (s *FirestoreStore) AddMessage(ctx context.Context, conversationID, sender, text string) (string, error) {
	ref, _, err := s.client.Collection(CollectionMessages).Add(ctx, map[string]interface{}{
		FieldConversationID: conversationID,
		FieldSentAt:         firestore.ServerTimestamp,
		FieldText:           text,
		FieldSentUser:       sender,
	})
	if err != nil {
		return "", fmt.Errorf("failed to add message: %w", err)
	}
	return ref.ID, nil
}

func (s *FirestoreStore) QueryMessages(ctx context.Context, q Query) ([]MessageRecord, error) {
	if err := q.expect(CollectionMessages); err != nil {
		return nil, err
	}
	return getAll(ctx, s.build(q), decodeMessage)
}

func (s *FirestoreStore) WatchMessages(ctx context.Context, q Query) *live.Stream[[]MessageRecord] {
	if err := q.expect(CollectionMessages); err != nil {
		return live.Failed[[]MessageRecord](err)
	}
	return watchQuery(ctx, s.build(q), decodeMessage)
}

// User methods
func (s *FirestoreStore) QueryUsers(ctx context.Context, q Query) ([]AppUser, error) {
	if err := q.expect(CollectionUsers); err != nil {
		return nil, err
	}
	return getAll(ctx, s.build(q), decodeUser)
}

func (s *FirestoreStore) WatchUsers(ctx context.Context, q Query) *live.Stream[[]AppUser] {
	if err := q.expect(CollectionUsers); err != nil {
		return live.Failed[[]AppUser](err)
	}
	return watchQuery(ctx, s.build(q), decodeUser)
}

func (s *FirestoreStore) TouchLastSeen(ctx context.Context, email string) error {
	ref, err := s.docRef(CollectionUsers, email)
	if err != nil {
		return err
	}
	// email is written too so a profile first created here matches the
	// recipient query.
	_, err = ref.Set(ctx, map[string]interface{}{
		FieldEmail:    email,
		FieldLastSeen: firestore.ServerTimestamp,
	}, firestore.MergeAll)
	if err != nil {
		return fmt.Errorf("failed to touch last seen for %s: %w", email, err)
	}
	return nil
}

func (s *FirestoreStore) UpsertUser(ctx context.Context, email, photoURL string) error {
	ref, err := s.docRef(CollectionUsers, email)
	if err != nil {
		return err
	}
	_, err = ref.Set(ctx, map[string]interface{}{
		FieldEmail:    email,
		FieldLastSeen: firestore.ServerTimestamp,
		FieldPhotoURL: photoURL,
	}, firestore.MergeAll)
	if err != nil {
		return fmt.Errorf("failed to upsert user %s: %w", email, err)
	}
	return nil
}

func decodeConversation(doc *firestore.DocumentSnapshot) (Conversation, error) {
	var c Conversation
	if err := doc.DataTo(&c); err != nil {
		return c, fmt.Errorf("failed to decode conversation %s: %w", doc.Ref.ID, err)
	}
	c.ID = doc.Ref.ID
	return c, nil
}

func decodeMessage(doc *firestore.DocumentSnapshot) (MessageRecord, error) {
	var m MessageRecord
	if err := doc.DataTo(&m); err != nil {
		return m, fmt.Errorf("failed to decode message %s: %w", doc.Ref.ID, err)
	}
	m.ID = doc.Ref.ID
	return m, nil
}

func decodeUser(doc *firestore.DocumentSnapshot) (AppUser, error) {
	var u AppUser
	if err := doc.DataTo(&u); err != nil {
		return u, fmt.Errorf("failed to decode user %s: %w", doc.Ref.ID, err)
	}
	return u, nil
}

func decodeAll[T any](docs []*firestore.DocumentSnapshot, decode func(*firestore.DocumentSnapshot) (T, error)) ([]T, error) {
	items := make([]T, 0, len(docs))
	for _, doc := range docs {
		item, err := decode(doc)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

func getAll[T any](ctx context.Context, fq firestore.Query, decode func(*firestore.DocumentSnapshot) (T, error)) ([]T, error) {
	docs, err := fq.Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to run query: %w", err)
	}
	return decodeAll(docs, decode)
}

func watchQuery[T any](parent context.Context, fq firestore.Query, decode func(*firestore.DocumentSnapshot) (T, error)) *live.Stream[[]T] {
	return live.Start(parent, func(ctx context.Context, emit func([]T) bool) error {
		it := fq.Snapshots(ctx)
		defer it.Stop()

		for {
			snap, err := it.Next()
			if err != nil {
				if ctx.Err() != nil || status.Code(err) == codes.Canceled {
					return nil
				}
				return fmt.Errorf("snapshot listener failed: %w", err)
			}
			docs, err := snap.Documents.GetAll()
			if err != nil {
				return fmt.Errorf("failed to read snapshot: %w", err)
			}
			items, err := decodeAll(docs, decode)
			if err != nil {
				return err
			}
			if !emit(items) {
				return nil
			}
		}
	})
}
