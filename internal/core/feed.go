package core

import (
	"gwi.com/firechat/internal/store"
)

// DisplayMessage is a message ready for rendering. SentAt is nil while the
// backend has not stamped the message yet; clients show it as pending.
type DisplayMessage struct {
	ID             string  `json:"id"`
	ConversationID string  `json:"conversation_id"`
	SentUser       string  `json:"sent_user"`
	Text           string  `json:"text"`
	SentAt         *string `json:"sent_at"`
}

// BuildMessageFeedQuery selects every message of a conversation, oldest
// first. Messages sharing a sent_at come back in the backend's default
// order.
func BuildMessageFeedQuery(conversationID string) store.Query {
	return store.From(store.CollectionMessages).
		Where(store.FieldConversationID, store.OpEqual, conversationID).
		Order(store.FieldSentAt, store.Asc)
}

// ToDisplayMessage copies raw, rendering its timestamp with f. raw is not
// modified.
func ToDisplayMessage(raw store.MessageRecord, f TimestampFormatter) DisplayMessage {
	return DisplayMessage{
		ID:             raw.ID,
		ConversationID: raw.ConversationID,
		SentUser:       raw.SentUser,
		Text:           raw.Text,
		SentAt:         f.FormatPtr(raw.SentAt),
	}
}

func ToDisplayMessages(raws []store.MessageRecord, f TimestampFormatter) []DisplayMessage {
	out := make([]DisplayMessage, 0, len(raws))
	for _, raw := range raws {
		out = append(out, ToDisplayMessage(raw, f))
	}
	return out
}
