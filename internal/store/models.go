package store

import "time"

const (
	CollectionConversations = "conversations"
	CollectionMessages      = "messages"
	CollectionUsers         = "users"
)

// Document field names, shared by every backend.
const (
	FieldUsers = "users"

	FieldConversationID = "conversation_id"
	FieldSentUser       = "sent_user"
	FieldText           = "text"
	FieldSentAt         = "sent_at"

	FieldEmail    = "email"
	FieldLastSeen = "lastSeen"
	FieldPhotoURL = "photoURL"
)

type Conversation struct {
	ID    string   `firestore:"-" json:"id"`
	Users []string `firestore:"users" json:"users"`
}

// AppUser is the profile projection other participants see.
type AppUser struct {
	Email    string    `firestore:"email" json:"email"`
	LastSeen time.Time `firestore:"lastSeen" json:"last_seen"`
	PhotoURL string    `firestore:"photoURL" json:"photo_url"`
}

// MessageRecord is a message as stored. SentAt is nil until the backend has
// assigned the server timestamp.
type MessageRecord struct {
	ID             string     `firestore:"-" json:"id"`
	ConversationID string     `firestore:"conversation_id" json:"conversation_id"`
	SentUser       string     `firestore:"sent_user" json:"sent_user"`
	Text           string     `firestore:"text" json:"text"`
	SentAt         *time.Time `firestore:"sent_at" json:"sent_at"`
}
