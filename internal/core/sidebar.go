package core

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"gwi.com/firechat/internal/live"
	"gwi.com/firechat/internal/store"
)

type recipientUpdate struct {
	email     string
	recipient Recipient
}

// sidebar is one user's conversation list with a profile watch held open for
// every recipient on it. It is owned by a single goroutine; only the follow
// goroutines touch updates.
type sidebar struct {
	resolver *RecipientResolver
	current  string

	convs      []store.Conversation
	recipients map[string]Recipient
	watches    map[string]context.CancelFunc

	updates chan recipientUpdate
	wg      sync.WaitGroup
}

func newSidebar(resolver *RecipientResolver, current string) *sidebar {
	return &sidebar{
		resolver:   resolver,
		current:    current,
		recipients: make(map[string]Recipient),
		watches:    make(map[string]context.CancelFunc),
		updates:    make(chan recipientUpdate),
	}
}

// setConversations replaces the list. New recipients are looked up once so
// the next frame is complete, then watched; recipients no longer on the list
// have their watch released.
func (sb *sidebar) setConversations(ctx context.Context, convs []store.Conversation) {
	wanted := make(map[string]bool, len(convs))
	for _, c := range convs {
		email := ResolveRecipientEmail(c.Users, sb.current)
		wanted[email] = true
		if _, ok := sb.watches[email]; ok {
			continue
		}

		rcpt, err := sb.resolver.Lookup(ctx, c.Users, sb.current)
		if err != nil {
			log.Error().Err(err).Str("conversation", c.ID).Msg("Recipient lookup failed")
		}
		sb.recipients[email] = rcpt

		watchCtx, cancel := context.WithCancel(ctx)
		sb.watches[email] = cancel
		sb.wg.Add(1)
		go sb.follow(watchCtx, email, sb.resolver.Watch(watchCtx, c.Users, sb.current))
	}

	for email, cancel := range sb.watches {
		if !wanted[email] {
			cancel()
			delete(sb.watches, email)
			delete(sb.recipients, email)
		}
	}
	sb.convs = convs
}

func (sb *sidebar) follow(ctx context.Context, email string, stream *live.Stream[Recipient]) {
	defer sb.wg.Done()
	defer stream.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case rcpt, ok := <-stream.Updates():
			if !ok {
				if err := stream.Err(); err != nil {
					log.Error().Err(err).Str("recipient", email).Msg("Recipient watch failed")
				}
				return
			}
			if rcpt.Loading {
				continue
			}
			select {
			case sb.updates <- recipientUpdate{email: email, recipient: rcpt}:
			case <-ctx.Done():
				return
			}
		}
	}
}

// apply records a recipient update and reports whether the list changed.
// Updates from a watch that has since been released are dropped.
func (sb *sidebar) apply(u recipientUpdate) bool {
	if _, ok := sb.watches[u.email]; !ok {
		return false
	}
	if sameRecipient(sb.recipients[u.email], u.recipient) {
		return false
	}
	sb.recipients[u.email] = u.recipient
	return true
}

func (sb *sidebar) summaries() []ConversationSummary {
	out := make([]ConversationSummary, 0, len(sb.convs))
	for _, c := range sb.convs {
		email := ResolveRecipientEmail(c.Users, sb.current)
		out = append(out, ConversationSummary{ID: c.ID, Users: c.Users, Recipient: sb.recipients[email]})
	}
	return out
}

func (sb *sidebar) close() {
	for _, cancel := range sb.watches {
		cancel()
	}
	sb.wg.Wait()
}

func sameRecipient(a, b Recipient) bool {
	if a.Email != b.Email || (a.Profile == nil) != (b.Profile == nil) {
		return false
	}
	if a.Profile == nil {
		return true
	}
	return a.Profile.Email == b.Profile.Email &&
		a.Profile.PhotoURL == b.Profile.PhotoURL &&
		a.Profile.LastSeen.Equal(b.Profile.LastSeen)
}
