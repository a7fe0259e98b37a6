package core

import (
	"context"
	"fmt"
	"unicode"
	"unicode/utf8"

	"gwi.com/firechat/internal/live"
	"gwi.com/firechat/internal/store"
)

// ResolveRecipientEmail returns the participant that is not current. When
// current is empty the first participant is returned, and a conversation
// whose participants are both current resolves to current itself.
func ResolveRecipientEmail(users []string, current string) string {
	for _, u := range users {
		if u != current {
			return u
		}
	}
	if len(users) > 0 {
		return users[0]
	}
	return ""
}

// Recipient is the other party of a conversation as a client renders it.
// Profile is nil when the user has never signed in.
type Recipient struct {
	Email      string         `json:"email"`
	Initial    string         `json:"initial"`
	Profile    *store.AppUser `json:"profile"`
	LastActive *string        `json:"last_active"`
	Loading    bool           `json:"loading"`
}

func recipientProfileQuery(email string) store.Query {
	return store.From(store.CollectionUsers).Where(store.FieldEmail, store.OpEqual, email)
}

// avatarInitial is the upper-cased first letter shown when there is no photo.
func avatarInitial(email string) string {
	r, _ := utf8.DecodeRuneInString(email)
	if r == utf8.RuneError {
		return ""
	}
	return string(unicode.ToUpper(r))
}

func newRecipient(email string, matches []store.AppUser, f TimestampFormatter) Recipient {
	rcpt := Recipient{Email: email, Initial: avatarInitial(email)}
	if len(matches) == 0 {
		return rcpt
	}
	// Duplicates are a data problem upstream; the first match wins.
	profile := matches[0]
	rcpt.Profile = &profile
	if !profile.LastSeen.IsZero() {
		rcpt.LastActive = f.FormatPtr(&profile.LastSeen)
	}
	return rcpt
}

type RecipientResolver struct {
	store     store.Store
	formatter TimestampFormatter
}

func NewRecipientResolver(db store.Store, f TimestampFormatter) *RecipientResolver {
	return &RecipientResolver{store: db, formatter: f}
}

// Lookup resolves the recipient and reads its profile once.
func (r *RecipientResolver) Lookup(ctx context.Context, users []string, current string) (Recipient, error) {
	email := ResolveRecipientEmail(users, current)
	matches, err := r.store.QueryUsers(ctx, recipientProfileQuery(email))
	if err != nil {
		return Recipient{Email: email, Initial: avatarInitial(email)}, fmt.Errorf("failed to look up recipient %s: %w", email, err)
	}
	return newRecipient(email, matches, r.formatter), nil
}

// Watch resolves the recipient and follows its profile. The first value is
// always a loading placeholder; later values track the profile as it is
// created or its lastSeen moves.
func (r *RecipientResolver) Watch(parent context.Context, users []string, current string) *live.Stream[Recipient] {
	email := ResolveRecipientEmail(users, current)
	return live.Start(parent, func(ctx context.Context, emit func(Recipient) bool) error {
		profiles := r.store.WatchUsers(ctx, recipientProfileQuery(email))
		defer profiles.Close()

		pending := Recipient{Email: email, Initial: avatarInitial(email), Loading: true}
		if !emit(pending) {
			return nil
		}
		for {
			select {
			case <-ctx.Done():
				return nil
			case matches, ok := <-profiles.Updates():
				if !ok {
					return profiles.Err()
				}
				if !emit(newRecipient(email, matches, r.formatter)) {
					return nil
				}
			}
		}
	})
}
