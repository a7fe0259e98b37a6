package core

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/rs/zerolog/log"

	"gwi.com/firechat/internal/live"
	"gwi.com/firechat/internal/presence"
	"gwi.com/firechat/internal/store"
	"gwi.com/firechat/internal/utils"
)

// ChatService holds the conversation and message operations. Every call
// takes the acting user explicitly; the service keeps no session state.
type ChatService struct {
	dbStore    store.Store
	throttle   presence.Throttle
	formatter  TimestampFormatter
	recipients *RecipientResolver
}

func NewChatService(db store.Store, throttle presence.Throttle, formatter TimestampFormatter) *ChatService {
	if throttle == nil {
		throttle = presence.Always{}
	}
	return &ChatService{
		dbStore:    db,
		throttle:   throttle,
		formatter:  formatter,
		recipients: NewRecipientResolver(db, formatter),
	}
}

type ConversationSummary struct {
	ID        string    `json:"id"`
	Users     []string  `json:"users"`
	Recipient Recipient `json:"recipient"`
}

// ConversationDetails is everything the chat screen needs for its first
// render.
type ConversationDetails struct {
	Conversation store.Conversation `json:"conversation"`
	Recipient    Recipient          `json:"recipient"`
	Messages     []DisplayMessage   `json:"messages"`
}

func conversationsOf(email string) store.Query {
	return store.From(store.CollectionConversations).Where(store.FieldUsers, store.OpArrayContains, email)
}

// SignIn records the profile other participants will see.
func (s *ChatService) SignIn(ctx context.Context, email, photoURL string) error {
	email = utils.NormalizeEmail(email)
	if !utils.ValidEmail(email) {
		return ErrInvalidEmail
	}
	if err := s.dbStore.UpsertUser(ctx, email, strings.TrimSpace(photoURL)); err != nil {
		return fmt.Errorf("failed to record profile: %w", err)
	}
	return nil
}

// TouchLastSeen moves the user's lastSeen marker to now, unless the throttle
// says it was moved recently. A throttle failure lets the write through.
func (s *ChatService) TouchLastSeen(ctx context.Context, email string) error {
	if email == "" {
		return ErrUnauthenticated
	}
	allowed, err := s.throttle.Allow(ctx, email)
	if err != nil {
		log.Warn().Err(err).Str("user", email).Msg("Last-seen throttle unavailable, writing anyway")
		allowed = true
	}
	if !allowed {
		return nil
	}
	if err := s.dbStore.TouchLastSeen(ctx, email); err != nil {
		return fmt.Errorf("failed to touch last seen: %w", err)
	}
	return nil
}

// CreateConversation starts a conversation between current and recipient and
// returns its id. Nothing is written unless recipient is a valid address
// other than current with no existing conversation between the two.
func (s *ChatService) CreateConversation(ctx context.Context, current, recipient string) (string, error) {
	if current == "" {
		return "", ErrUnauthenticated
	}
	recipient = utils.NormalizeEmail(recipient)
	if recipient == "" {
		return "", ErrEmptyRecipient
	}
	if recipient == current {
		return "", ErrSelfConversation
	}
	if !utils.ValidEmail(recipient) {
		return "", ErrInvalidEmail
	}

	existing, err := s.dbStore.QueryConversations(ctx, conversationsOf(current))
	if err != nil {
		return "", fmt.Errorf("failed to check existing conversations: %w", err)
	}
	for _, c := range existing {
		if slices.Contains(c.Users, recipient) {
			return "", ErrConversationExists
		}
	}

	id, err := s.dbStore.AddConversation(ctx, []string{current, recipient})
	if err != nil {
		return "", fmt.Errorf("failed to create conversation: %w", err)
	}
	log.Info().Str("conversation", id).Str("user", current).Str("recipient", recipient).Msg("Conversation created")
	return id, nil
}

// GetConversation returns the conversation if current takes part in it.
func (s *ChatService) GetConversation(ctx context.Context, conversationID, current string) (*store.Conversation, error) {
	if current == "" {
		return nil, ErrUnauthenticated
	}
	conv, err := s.dbStore.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	if conv == nil {
		return nil, ErrConversationNotFound
	}
	if !slices.Contains(conv.Users, current) {
		return nil, ErrNotParticipant
	}
	return conv, nil
}

// SendMessage appends text to the conversation on behalf of sender and
// returns the new message id. Text is trimmed; whitespace-only text is
// rejected before anything is written.
func (s *ChatService) SendMessage(ctx context.Context, conversationID, sender, text string) (string, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "", ErrEmptyMessage
	}
	if _, err := s.GetConversation(ctx, conversationID, sender); err != nil {
		return "", err
	}

	if err := s.TouchLastSeen(ctx, sender); err != nil {
		log.Warn().Err(err).Str("user", sender).Msg("Failed to update last seen before send")
	}

	id, err := s.dbStore.AddMessage(ctx, conversationID, sender, trimmed)
	if err != nil {
		return "", fmt.Errorf("failed to store message: %w", err)
	}
	log.Debug().Str("conversation", conversationID).Str("message", id).Msg("Message stored")
	return id, nil
}

// OpenConversation loads the conversation, its recipient and a snapshot of
// its messages. A recipient lookup failure degrades to the bare email.
func (s *ChatService) OpenConversation(ctx context.Context, conversationID, current string) (*ConversationDetails, error) {
	conv, err := s.GetConversation(ctx, conversationID, current)
	if err != nil {
		return nil, err
	}

	rcpt, err := s.recipients.Lookup(ctx, conv.Users, current)
	if err != nil {
		log.Error().Err(err).Str("conversation", conversationID).Msg("Recipient lookup failed")
	}

	messages, err := s.PrefetchMessages(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	return &ConversationDetails{
		Conversation: *conv,
		Recipient:    rcpt,
		Messages:     messages,
	}, nil
}

// PrefetchMessages reads the feed once.
func (s *ChatService) PrefetchMessages(ctx context.Context, conversationID string) ([]DisplayMessage, error) {
	raws, err := s.dbStore.QueryMessages(ctx, BuildMessageFeedQuery(conversationID))
	if err != nil {
		return nil, fmt.Errorf("failed to get messages for conversation: %w", err)
	}
	return ToDisplayMessages(raws, s.formatter), nil
}

// WatchMessages follows the feed. Each value is the whole conversation in
// send order.
func (s *ChatService) WatchMessages(ctx context.Context, conversationID string) *live.Stream[[]DisplayMessage] {
	raws := s.dbStore.WatchMessages(ctx, BuildMessageFeedQuery(conversationID))
	return live.Map(ctx, raws, func(_ context.Context, records []store.MessageRecord) []DisplayMessage {
		return ToDisplayMessages(records, s.formatter)
	})
}

func (s *ChatService) WatchRecipient(ctx context.Context, users []string, current string) *live.Stream[Recipient] {
	return s.recipients.Watch(ctx, users, current)
}

// ListConversations returns current's conversations with their recipients
// resolved.
func (s *ChatService) ListConversations(ctx context.Context, current string) ([]ConversationSummary, error) {
	if current == "" {
		return nil, ErrUnauthenticated
	}
	convs, err := s.dbStore.QueryConversations(ctx, conversationsOf(current))
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	return s.summarize(ctx, convs, current), nil
}

// WatchConversations follows current's conversation list. A new value is
// delivered when the list changes or when a recipient's profile does.
func (s *ChatService) WatchConversations(parent context.Context, current string) *live.Stream[[]ConversationSummary] {
	if current == "" {
		return live.Failed[[]ConversationSummary](ErrUnauthenticated)
	}
	return live.Start(parent, func(ctx context.Context, emit func([]ConversationSummary) bool) error {
		convs := s.dbStore.WatchConversations(ctx, conversationsOf(current))
		defer convs.Close()

		sb := newSidebar(s.recipients, current)
		defer sb.close()

		for {
			select {
			case <-ctx.Done():
				return nil
			case list, ok := <-convs.Updates():
				if !ok {
					return convs.Err()
				}
				sb.setConversations(ctx, list)
			case u := <-sb.updates:
				if !sb.apply(u) {
					continue
				}
			}
			if !emit(sb.summaries()) {
				return nil
			}
		}
	})
}

func (s *ChatService) summarize(ctx context.Context, convs []store.Conversation, current string) []ConversationSummary {
	out := make([]ConversationSummary, 0, len(convs))
	for _, c := range convs {
		rcpt, err := s.recipients.Lookup(ctx, c.Users, current)
		if err != nil {
			log.Error().Err(err).Str("conversation", c.ID).Msg("Recipient lookup failed")
		}
		out = append(out, ConversationSummary{ID: c.ID, Users: c.Users, Recipient: rcpt})
	}
	return out
}
