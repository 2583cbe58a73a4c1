package models

import (
	"time"

	"github.com/google/uuid"
)

// MessageStatus is the per-recipient delivery state of a message.
type MessageStatus string

const (
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusRead      MessageStatus = "read"
)

// Rank orders statuses for the non-regression check: sent < delivered < read.
func (s MessageStatus) Rank() int {
	switch s {
	case StatusSent:
		return 0
	case StatusDelivered:
		return 1
	case StatusRead:
		return 2
	default:
		return -1
	}
}

func (s MessageStatus) Valid() bool {
	return s.Rank() >= 0
}

// MessageType tags the content of a message.
type MessageType string

const (
	TypeText  MessageType = "text"
	TypeFile  MessageType = "file"
	TypeImage MessageType = "image"
)

func (t MessageType) Valid() bool {
	switch t {
	case TypeText, TypeFile, TypeImage:
		return true
	default:
		return false
	}
}

// ConversationKind distinguishes 1:1 conversations from group rooms.
type ConversationKind string

const (
	KindDirect ConversationKind = "direct"
	KindRoom   ConversationKind = "room"
)

// TombstoneContent replaces the content of a soft-deleted message.
const TombstoneContent = "This message was deleted"

type User struct {
	ID             uuid.UUID `json:"id" db:"id"`
	Username       string    `json:"username" db:"username"`
	Email          string    `json:"email" db:"email"`
	HashedPassword string    `json:"-" db:"password_hash"`
	IsActive       bool      `json:"isActive" db:"is_active"`
	CreatedAt      time.Time `json:"createdAt" db:"created_at"`
}

// Conversation is a 1:1 or group message thread. Membership lives in the
// conversation store, not on the struct; the delivery core only reads it.
type Conversation struct {
	ID            uuid.UUID        `json:"id" db:"id"`
	Kind          ConversationKind `json:"kind" db:"kind"`
	Name          string           `json:"name,omitempty" db:"name"`
	Description   string           `json:"description,omitempty" db:"description"`
	CreatorID     uuid.UUID        `json:"creatorId" db:"creator_id"`
	CreatedAt     time.Time        `json:"createdAt" db:"created_at"`
	LastMessageAt time.Time        `json:"lastMessageAt" db:"last_message_at"`
}

// Message is one entry in a conversation's ordered log. IDs are assigned by
// the store and are strictly increasing within a conversation.
//
// Status is not ground truth: it is filled per querying user when messages
// are read back (a recipient sees their own receipt, the sender sees the
// lowest receipt across recipients).
type Message struct {
	ID             int64         `json:"id" db:"seq"`
	ConversationID uuid.UUID     `json:"conversationId" db:"conversation_id"`
	SenderID       uuid.UUID     `json:"senderId" db:"sender_id"`
	Content        string        `json:"content" db:"content"`
	ContentType    MessageType   `json:"contentType" db:"content_type"`
	ReplyToID      *int64        `json:"replyToId,omitempty" db:"reply_to_id"`
	Status         MessageStatus `json:"status" db:"status"`
	FileName       string        `json:"fileName,omitempty" db:"file_name"`
	FileSize       int64         `json:"fileSize,omitempty" db:"file_size"`
	FileRef        string        `json:"fileRef,omitempty" db:"file_ref"`
	IsEncrypted    bool          `json:"isEncrypted" db:"is_encrypted"`
	IsEdited       bool          `json:"isEdited" db:"is_edited"`
	IsDeleted      bool          `json:"isDeleted" db:"is_deleted"`
	CreatedAt      time.Time     `json:"createdAt" db:"created_at"`
	UpdatedAt      *time.Time    `json:"updatedAt,omitempty" db:"updated_at"`
}

// Receipt tracks delivery state for one (message, recipient) pair. A missing
// receipt reads as StatusSent.
type Receipt struct {
	ConversationID uuid.UUID     `json:"conversationId" db:"conversation_id"`
	MessageID      int64         `json:"messageId" db:"message_seq"`
	RecipientID    uuid.UUID     `json:"recipientId" db:"recipient_id"`
	Status         MessageStatus `json:"status" db:"status"`
	UpdatedAt      time.Time     `json:"updatedAt" db:"updated_at"`
}
