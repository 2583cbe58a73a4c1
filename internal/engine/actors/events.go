package actors

import (
	"encoding/json"
	"time"

	"ripple-chat/internal/models"

	"github.com/google/uuid"
)

// Event type names pushed over active connections.
const (
	EventMessage        = "message"
	EventTyping         = "typing"
	EventStatusUpdate   = "status_update"
	EventUserStatus     = "user_status"
	EventMessageEdited  = "message_edited"
	EventMessageDeleted = "message_deleted"
)

// MessageEvent carries a new or edited message to conversation members.
type MessageEvent struct {
	Type           string          `json:"type"`
	ConversationID uuid.UUID       `json:"conversationId"`
	Message        *models.Message `json:"message"`
}

// TypingEvent is a transient indicator. It is never persisted.
type TypingEvent struct {
	Type           string    `json:"type"`
	ConversationID uuid.UUID `json:"conversationId"`
	UserID         uuid.UUID `json:"userId"`
	Username       string    `json:"username"`
	IsTyping       bool      `json:"isTyping"`
}

// StatusEvent announces a delivery status change for one message and recipient.
type StatusEvent struct {
	Type           string               `json:"type"`
	ConversationID uuid.UUID            `json:"conversationId"`
	MessageID      int64                `json:"messageId"`
	RecipientID    uuid.UUID            `json:"recipientId"`
	Status         models.MessageStatus `json:"status"`
}

// PresenceEvent announces a user coming online or going offline.
type PresenceEvent struct {
	Type     string     `json:"type"`
	UserID   uuid.UUID  `json:"userId"`
	Online   bool       `json:"online"`
	LastSeen *time.Time `json:"lastSeen,omitempty"`
}

// DeletionEvent announces a message tombstone.
type DeletionEvent struct {
	Type           string    `json:"type"`
	ConversationID uuid.UUID `json:"conversationId"`
	MessageID      int64     `json:"messageId"`
}

func marshalEvent(event interface{}) []byte {
	payload, _ := json.Marshal(event)
	return payload
}

// NewPresencePayload builds the wire payload for a presence transition.
func NewPresencePayload(userID uuid.UUID, online bool, lastSeen *time.Time) []byte {
	return marshalEvent(&PresenceEvent{
		Type:     EventUserStatus,
		UserID:   userID,
		Online:   online,
		LastSeen: lastSeen,
	})
}
