package database

import (
	"context"
	"time"

	"ripple-chat/internal/models"

	"github.com/google/uuid"
)

// Store defines the common interface for the system of record. It is
// implemented by the in-memory store and by PostgreSQL.
//
// Message appends are serialized per conversation: ids are strictly
// increasing with no gaps in insertion order, and pagination with a beforeID
// boundary is stable under concurrent appends.
type Store interface {
	// Connection
	Close(ctx context.Context) error

	// User methods
	SaveUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	ListUsers(ctx context.Context) ([]*models.User, error)
	SearchUsers(ctx context.Context, query string, exclude uuid.UUID, limit int) ([]*models.User, error)

	// Conversation and membership methods. The delivery core only reads
	// membership; mutation happens through the room endpoints.
	CreateConversation(ctx context.Context, conv *models.Conversation, memberIDs []uuid.UUID) error
	GetConversation(ctx context.Context, id uuid.UUID) (*models.Conversation, error)
	GetOrCreateDirect(ctx context.Context, a, b uuid.UUID) (*models.Conversation, bool, error)
	ListConversationsFor(ctx context.Context, userID uuid.UUID) ([]*models.Conversation, error)
	AddMember(ctx context.Context, convID, userID uuid.UUID) error
	RemoveMember(ctx context.Context, convID, userID uuid.UUID) error
	IsMember(ctx context.Context, convID, userID uuid.UUID) (bool, error)
	MembersOf(ctx context.Context, convID uuid.UUID) ([]uuid.UUID, error)
	TouchLastMessage(ctx context.Context, convID uuid.UUID, t time.Time) error

	// Message methods
	AppendMessage(ctx context.Context, msg *models.Message) (int64, error)
	GetMessage(ctx context.Context, convID uuid.UUID, messageID int64) (*models.Message, error)
	ListMessages(ctx context.Context, convID uuid.UUID, beforeID int64, limit int) ([]*models.Message, error)
	CountMessages(ctx context.Context, convID uuid.UUID) (int, error)
	EditMessage(ctx context.Context, convID uuid.UUID, messageID int64, content string) (*models.Message, error)
	SoftDeleteMessage(ctx context.Context, convID uuid.UUID, messageID int64) (*models.Message, error)

	// Delivery status records, per (message, recipient). A missing receipt
	// reads as "sent"; updates never regress.
	UpdateReceipt(ctx context.Context, convID uuid.UUID, messageID int64, recipientID uuid.UUID, status models.MessageStatus) error
	ReceiptFor(ctx context.Context, convID uuid.UUID, messageID int64, recipientID uuid.UUID) (models.MessageStatus, error)
	ListReceipts(ctx context.Context, convID uuid.UUID, messageIDs []int64) (map[int64]map[uuid.UUID]models.MessageStatus, error)
	MarkDelivered(ctx context.Context, convID, recipientID uuid.UUID) ([]int64, error)
	UnreadCount(ctx context.Context, convID, userID uuid.UUID) (int, error)
}
