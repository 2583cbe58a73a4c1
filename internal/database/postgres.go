// internal/database/postgres.go
package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"ripple-chat/internal/models"
	"ripple-chat/internal/utils"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// PostgresStore represents a PostgreSQL-backed Store
type PostgresStore struct {
	DB *sqlx.DB
}

// NewPostgresStore creates a new PostgreSQL database connection
func NewPostgresStore(connectionString string) (*PostgresStore, error) {
	db, err := sqlx.Connect("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %v", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping PostgreSQL: %v", err)
	}

	log.Println("Successfully connected to PostgreSQL!")

	return &PostgresStore{DB: db}, nil
}

// Close closes the database connection
func (p *PostgresStore) Close(ctx context.Context) error {
	log.Println("Closing PostgreSQL connection...")
	return p.DB.Close()
}

// InitializeTables creates all necessary tables if they don't exist
func (p *PostgresStore) InitializeTables(ctx context.Context) error {
	_, err := p.DB.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS users (
			id UUID PRIMARY KEY,
			username VARCHAR(50) UNIQUE NOT NULL,
			email VARCHAR(100) UNIQUE NOT NULL,
			password_hash VARCHAR(100) NOT NULL,
			is_active BOOLEAN DEFAULT TRUE NOT NULL,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create users table: %v", err)
	}

	_, err = p.DB.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS conversations (
			id UUID PRIMARY KEY,
			kind VARCHAR(10) NOT NULL,
			name VARCHAR(100) DEFAULT '' NOT NULL,
			description TEXT DEFAULT '' NOT NULL,
			creator_id UUID NOT NULL REFERENCES users(id),
			pair_key VARCHAR(80) UNIQUE,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			last_message_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create conversations table: %v", err)
	}

	_, err = p.DB.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS conversation_members (
			conversation_id UUID NOT NULL REFERENCES conversations(id),
			user_id UUID NOT NULL REFERENCES users(id),
			joined_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			PRIMARY KEY (conversation_id, user_id)
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create conversation_members table: %v", err)
	}

	_, err = p.DB.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS messages (
			conversation_id UUID NOT NULL REFERENCES conversations(id),
			seq BIGINT NOT NULL,
			sender_id UUID NOT NULL REFERENCES users(id),
			content TEXT NOT NULL,
			content_type VARCHAR(10) DEFAULT 'text' NOT NULL,
			reply_to_id BIGINT,
			status VARCHAR(10) DEFAULT 'sent' NOT NULL,
			file_name VARCHAR(255) DEFAULT '' NOT NULL,
			file_size BIGINT DEFAULT 0 NOT NULL,
			file_ref VARCHAR(255) DEFAULT '' NOT NULL,
			is_encrypted BOOLEAN DEFAULT FALSE NOT NULL,
			is_edited BOOLEAN DEFAULT FALSE NOT NULL,
			is_deleted BOOLEAN DEFAULT FALSE NOT NULL,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			updated_at TIMESTAMP WITH TIME ZONE,
			PRIMARY KEY (conversation_id, seq)
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create messages table: %v", err)
	}

	_, err = p.DB.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS receipts (
			conversation_id UUID NOT NULL,
			message_seq BIGINT NOT NULL,
			recipient_id UUID NOT NULL REFERENCES users(id),
			status VARCHAR(10) NOT NULL,
			updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			PRIMARY KEY (conversation_id, message_seq, recipient_id),
			FOREIGN KEY (conversation_id, message_seq) REFERENCES messages(conversation_id, seq)
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create receipts table: %v", err)
	}

	return nil
}

// --- Users ---

func (p *PostgresStore) SaveUser(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (id, username, email, password_hash, is_active, created_at)
		VALUES (:id, :username, :email, :password_hash, :is_active, :created_at)
	`
	_, err := p.DB.NamedExecContext(ctx, query, user)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return utils.NewAppError(utils.ErrDuplicate, "username or email already registered", err)
		}
		return utils.NewAppError(utils.ErrDatabase, "failed to save user", err)
	}
	return nil
}

func (p *PostgresStore) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	err := p.DB.GetContext(ctx, &user, `SELECT * FROM users WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, utils.NewNotFoundError("user")
	}
	if err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to query user", err)
	}
	return &user, nil
}

func (p *PostgresStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := p.DB.GetContext(ctx, &user, `SELECT * FROM users WHERE email = $1`, email)
	if err == sql.ErrNoRows {
		return nil, utils.NewNotFoundError("user")
	}
	if err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to query user by email", err)
	}
	return &user, nil
}

func (p *PostgresStore) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	err := p.DB.GetContext(ctx, &user, `SELECT * FROM users WHERE username = $1`, username)
	if err == sql.ErrNoRows {
		return nil, utils.NewNotFoundError("user")
	}
	if err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to query user by username", err)
	}
	return &user, nil
}

func (p *PostgresStore) ListUsers(ctx context.Context) ([]*models.User, error) {
	var users []*models.User
	err := p.DB.SelectContext(ctx, &users, `SELECT * FROM users ORDER BY username ASC`)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to list users", err)
	}
	if users == nil {
		users = make([]*models.User, 0)
	}
	return users, nil
}

func (p *PostgresStore) SearchUsers(ctx context.Context, query string, exclude uuid.UUID, limit int) ([]*models.User, error) {
	if limit <= 0 {
		limit = 20
	}
	var users []*models.User
	err := p.DB.SelectContext(ctx, &users, `
		SELECT * FROM users
		WHERE username ILIKE '%' || $1 || '%' AND id <> $2
		ORDER BY username ASC
		LIMIT $3
	`, query, exclude, limit)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to search users", err)
	}
	if users == nil {
		users = make([]*models.User, 0)
	}
	return users, nil
}

// --- Conversations ---

func (p *PostgresStore) CreateConversation(ctx context.Context, conv *models.Conversation, memberIDs []uuid.UUID) error {
	tx, err := p.DB.BeginTxx(ctx, nil)
	if err != nil {
		return utils.NewAppError(utils.ErrDatabase, "failed to begin transaction", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO conversations (id, kind, name, description, creator_id, created_at, last_message_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, conv.ID, conv.Kind, conv.Name, conv.Description, conv.CreatorID, conv.CreatedAt, conv.LastMessageAt)
	if err != nil {
		return utils.NewAppError(utils.ErrDatabase, "failed to create conversation", err)
	}

	for _, memberID := range memberIDs {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO conversation_members (conversation_id, user_id) VALUES ($1, $2)
			ON CONFLICT DO NOTHING
		`, conv.ID, memberID)
		if err != nil {
			return utils.NewAppError(utils.ErrDatabase, "failed to add conversation member", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return utils.NewAppError(utils.ErrDatabase, "failed to commit conversation", err)
	}
	return nil
}

func (p *PostgresStore) GetConversation(ctx context.Context, id uuid.UUID) (*models.Conversation, error) {
	var conv models.Conversation
	err := p.DB.GetContext(ctx, &conv, `
		SELECT id, kind, name, description, creator_id, created_at, last_message_at
		FROM conversations WHERE id = $1
	`, id)
	if err == sql.ErrNoRows {
		return nil, utils.NewNotFoundError("conversation")
	}
	if err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to query conversation", err)
	}
	return &conv, nil
}

// GetOrCreateDirect returns the single direct conversation for the unordered
// user pair, creating it on first contact. The pair_key unique index keeps
// one conversation per pair under concurrent creates.
func (p *PostgresStore) GetOrCreateDirect(ctx context.Context, a, b uuid.UUID) (*models.Conversation, bool, error) {
	lo, hi := a, b
	if hi.String() < lo.String() {
		lo, hi = hi, lo
	}
	pairKey := lo.String() + ":" + hi.String()

	selectQuery := `
		SELECT id, kind, name, description, creator_id, created_at, last_message_at
		FROM conversations WHERE pair_key = $1
	`

	var conv models.Conversation
	err := p.DB.GetContext(ctx, &conv, selectQuery, pairKey)
	if err == nil {
		return &conv, false, nil
	}
	if err != sql.ErrNoRows {
		return nil, false, utils.NewAppError(utils.ErrDatabase, "failed to query direct conversation", err)
	}

	tx, err := p.DB.BeginTxx(ctx, nil)
	if err != nil {
		return nil, false, utils.NewAppError(utils.ErrDatabase, "failed to begin transaction", err)
	}
	defer tx.Rollback()

	id := uuid.New()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO conversations (id, kind, creator_id, pair_key)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (pair_key) DO NOTHING
	`, id, models.KindDirect, a, pairKey)
	if err != nil {
		return nil, false, utils.NewAppError(utils.ErrDatabase, "failed to create direct conversation", err)
	}

	created := true
	if err := tx.GetContext(ctx, &conv, selectQuery, pairKey); err != nil {
		return nil, false, utils.NewAppError(utils.ErrDatabase, "failed to re-query direct conversation", err)
	}
	if conv.ID != id {
		// Lost the race; another connection created it first.
		created = false
	}

	if created {
		for _, memberID := range []uuid.UUID{a, b} {
			_, err = tx.ExecContext(ctx, `
				INSERT INTO conversation_members (conversation_id, user_id) VALUES ($1, $2)
				ON CONFLICT DO NOTHING
			`, conv.ID, memberID)
			if err != nil {
				return nil, false, utils.NewAppError(utils.ErrDatabase, "failed to add direct member", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, false, utils.NewAppError(utils.ErrDatabase, "failed to commit direct conversation", err)
	}
	return &conv, created, nil
}

func (p *PostgresStore) ListConversationsFor(ctx context.Context, userID uuid.UUID) ([]*models.Conversation, error) {
	var convs []*models.Conversation
	err := p.DB.SelectContext(ctx, &convs, `
		SELECT c.id, c.kind, c.name, c.description, c.creator_id, c.created_at, c.last_message_at
		FROM conversations c
		JOIN conversation_members cm ON cm.conversation_id = c.id
		WHERE cm.user_id = $1
		ORDER BY c.last_message_at DESC
	`, userID)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to list conversations", err)
	}
	if convs == nil {
		convs = make([]*models.Conversation, 0)
	}
	return convs, nil
}

func (p *PostgresStore) AddMember(ctx context.Context, convID, userID uuid.UUID) error {
	conv, err := p.GetConversation(ctx, convID)
	if err != nil {
		return err
	}
	if conv.Kind == models.KindDirect {
		return utils.NewInvalidStateError("cannot add members to a direct conversation")
	}

	result, err := p.DB.ExecContext(ctx, `
		INSERT INTO conversation_members (conversation_id, user_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, convID, userID)
	if err != nil {
		return utils.NewAppError(utils.ErrDatabase, "failed to add member", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return utils.NewAppError(utils.ErrDuplicate, "user is already a member", nil)
	}
	return nil
}

func (p *PostgresStore) RemoveMember(ctx context.Context, convID, userID uuid.UUID) error {
	result, err := p.DB.ExecContext(ctx, `
		DELETE FROM conversation_members WHERE conversation_id = $1 AND user_id = $2
	`, convID, userID)
	if err != nil {
		return utils.NewAppError(utils.ErrDatabase, "failed to remove member", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return utils.NewNotFoundError("member")
	}
	return nil
}

func (p *PostgresStore) IsMember(ctx context.Context, convID, userID uuid.UUID) (bool, error) {
	var exists bool
	err := p.DB.GetContext(ctx, &exists, `
		SELECT EXISTS (
			SELECT 1 FROM conversation_members WHERE conversation_id = $1 AND user_id = $2
		)
	`, convID, userID)
	if err != nil {
		return false, utils.NewAppError(utils.ErrDatabase, "failed to check membership", err)
	}
	return exists, nil
}

func (p *PostgresStore) MembersOf(ctx context.Context, convID uuid.UUID) ([]uuid.UUID, error) {
	var members []uuid.UUID
	err := p.DB.SelectContext(ctx, &members, `
		SELECT user_id FROM conversation_members WHERE conversation_id = $1
	`, convID)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to query members", err)
	}
	return members, nil
}

func (p *PostgresStore) TouchLastMessage(ctx context.Context, convID uuid.UUID, t time.Time) error {
	_, err := p.DB.ExecContext(ctx, `
		UPDATE conversations SET last_message_at = $2 WHERE id = $1
	`, convID, t)
	if err != nil {
		return utils.NewAppError(utils.ErrDatabase, "failed to touch conversation", err)
	}
	return nil
}

// --- Messages ---

const messageColumns = `
	seq, conversation_id, sender_id, content, content_type, reply_to_id, status,
	file_name, file_size, file_ref, is_encrypted, is_edited, is_deleted, created_at, updated_at
`

// AppendMessage assigns the next id for the conversation and inserts the
// message. The advisory lock serializes id assignment per conversation, so
// unrelated conversations make progress independently.
func (p *PostgresStore) AppendMessage(ctx context.Context, msg *models.Message) (int64, error) {
	tx, err := p.DB.BeginTxx(ctx, nil)
	if err != nil {
		return 0, utils.NewAppError(utils.ErrDatabase, "failed to begin transaction", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1::text, 0))`, msg.ConversationID); err != nil {
		return 0, utils.NewAppError(utils.ErrDatabase, "failed to acquire conversation lock", err)
	}

	var next int64
	if err := tx.GetContext(ctx, &next, `
		SELECT COALESCE(MAX(seq), 0) + 1 FROM messages WHERE conversation_id = $1
	`, msg.ConversationID); err != nil {
		return 0, utils.NewAppError(utils.ErrDatabase, "failed to compute next message id", err)
	}

	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	msg.ID = next
	msg.Status = models.StatusSent

	_, err = tx.ExecContext(ctx, `
		INSERT INTO messages (conversation_id, seq, sender_id, content, content_type, reply_to_id,
			status, file_name, file_size, file_ref, is_encrypted, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, msg.ConversationID, msg.ID, msg.SenderID, msg.Content, msg.ContentType, msg.ReplyToID,
		msg.Status, msg.FileName, msg.FileSize, msg.FileRef, msg.IsEncrypted, msg.CreatedAt)
	if err != nil {
		return 0, utils.NewAppError(utils.ErrDatabase, "failed to save message", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, utils.NewAppError(utils.ErrDatabase, "failed to commit message", err)
	}
	return msg.ID, nil
}

func (p *PostgresStore) GetMessage(ctx context.Context, convID uuid.UUID, messageID int64) (*models.Message, error) {
	var msg models.Message
	err := p.DB.GetContext(ctx, &msg, `
		SELECT `+messageColumns+` FROM messages WHERE conversation_id = $1 AND seq = $2
	`, convID, messageID)
	if err == sql.ErrNoRows {
		return nil, utils.NewNotFoundError("message")
	}
	if err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to query message", err)
	}
	return &msg, nil
}

func (p *PostgresStore) ListMessages(ctx context.Context, convID uuid.UUID, beforeID int64, limit int) ([]*models.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	boundary := beforeID
	if boundary <= 0 {
		// No boundary: page from the newest message down.
		boundary = int64(^uint64(0) >> 1)
	}

	var messages []*models.Message
	err := p.DB.SelectContext(ctx, &messages, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE conversation_id = $1 AND seq < $2
		ORDER BY seq DESC
		LIMIT $3
	`, convID, boundary, limit)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to query messages", err)
	}
	if messages == nil {
		messages = make([]*models.Message, 0)
	}
	return messages, nil
}

func (p *PostgresStore) CountMessages(ctx context.Context, convID uuid.UUID) (int, error) {
	var count int
	err := p.DB.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM messages WHERE conversation_id = $1
	`, convID)
	if err != nil {
		return 0, utils.NewAppError(utils.ErrDatabase, "failed to count messages", err)
	}
	return count, nil
}

func (p *PostgresStore) EditMessage(ctx context.Context, convID uuid.UUID, messageID int64, content string) (*models.Message, error) {
	return p.mutateMessage(ctx, convID, messageID, func(tx *sqlx.Tx, msg *models.Message) error {
		_, err := tx.ExecContext(ctx, `
			UPDATE messages SET content = $3, is_edited = TRUE, updated_at = NOW()
			WHERE conversation_id = $1 AND seq = $2
		`, convID, messageID, content)
		if err != nil {
			return utils.NewAppError(utils.ErrDatabase, "failed to edit message", err)
		}
		return nil
	})
}

func (p *PostgresStore) SoftDeleteMessage(ctx context.Context, convID uuid.UUID, messageID int64) (*models.Message, error) {
	return p.mutateMessage(ctx, convID, messageID, func(tx *sqlx.Tx, msg *models.Message) error {
		_, err := tx.ExecContext(ctx, `
			UPDATE messages
			SET is_deleted = TRUE, content = $3, file_name = '', file_size = 0, file_ref = '', updated_at = NOW()
			WHERE conversation_id = $1 AND seq = $2
		`, convID, messageID, models.TombstoneContent)
		if err != nil {
			return utils.NewAppError(utils.ErrDatabase, "failed to delete message", err)
		}
		return nil
	})
}

// mutateMessage runs an edit-style update after checking the tombstone rule
// under a row lock, then returns the updated message.
func (p *PostgresStore) mutateMessage(ctx context.Context, convID uuid.UUID, messageID int64, update func(tx *sqlx.Tx, msg *models.Message) error) (*models.Message, error) {
	tx, err := p.DB.BeginTxx(ctx, nil)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to begin transaction", err)
	}
	defer tx.Rollback()

	var msg models.Message
	err = tx.GetContext(ctx, &msg, `
		SELECT `+messageColumns+` FROM messages WHERE conversation_id = $1 AND seq = $2 FOR UPDATE
	`, convID, messageID)
	if err == sql.ErrNoRows {
		return nil, utils.NewNotFoundError("message")
	}
	if err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to query message", err)
	}

	if msg.IsDeleted {
		return nil, utils.NewInvalidStateError("message is already deleted")
	}

	if err := update(tx, &msg); err != nil {
		return nil, err
	}

	err = tx.GetContext(ctx, &msg, `
		SELECT `+messageColumns+` FROM messages WHERE conversation_id = $1 AND seq = $2
	`, convID, messageID)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to re-query message", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to commit message update", err)
	}
	return &msg, nil
}

// --- Delivery status records ---

func (p *PostgresStore) UpdateReceipt(ctx context.Context, convID uuid.UUID, messageID int64, recipientID uuid.UUID, status models.MessageStatus) error {
	if !status.Valid() {
		return utils.NewAppError(utils.ErrInvalidInput, "unknown message status", nil)
	}

	tx, err := p.DB.BeginTxx(ctx, nil)
	if err != nil {
		return utils.NewAppError(utils.ErrDatabase, "failed to begin transaction", err)
	}
	defer tx.Rollback()

	var exists bool
	err = tx.GetContext(ctx, &exists, `
		SELECT EXISTS (SELECT 1 FROM messages WHERE conversation_id = $1 AND seq = $2)
	`, convID, messageID)
	if err != nil {
		return utils.NewAppError(utils.ErrDatabase, "failed to check message", err)
	}
	if !exists {
		return utils.NewNotFoundError("message")
	}

	current := models.StatusSent
	var existing string
	err = tx.GetContext(ctx, &existing, `
		SELECT status FROM receipts
		WHERE conversation_id = $1 AND message_seq = $2 AND recipient_id = $3
		FOR UPDATE
	`, convID, messageID, recipientID)
	if err != nil && err != sql.ErrNoRows {
		return utils.NewAppError(utils.ErrDatabase, "failed to query receipt", err)
	}
	if err == nil {
		current = models.MessageStatus(existing)
	}

	if status.Rank() < current.Rank() {
		return utils.NewInvalidStateError("status cannot regress from " + string(current) + " to " + string(status))
	}
	if status.Rank() == current.Rank() {
		return tx.Commit()
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO receipts (conversation_id, message_seq, recipient_id, status, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (conversation_id, message_seq, recipient_id)
		DO UPDATE SET status = EXCLUDED.status, updated_at = NOW()
	`, convID, messageID, recipientID, status)
	if err != nil {
		return utils.NewAppError(utils.ErrDatabase, "failed to update receipt", err)
	}

	if err := tx.Commit(); err != nil {
		return utils.NewAppError(utils.ErrDatabase, "failed to commit receipt", err)
	}
	return nil
}

func (p *PostgresStore) ReceiptFor(ctx context.Context, convID uuid.UUID, messageID int64, recipientID uuid.UUID) (models.MessageStatus, error) {
	if _, err := p.GetMessage(ctx, convID, messageID); err != nil {
		return "", err
	}

	var status string
	err := p.DB.GetContext(ctx, &status, `
		SELECT status FROM receipts
		WHERE conversation_id = $1 AND message_seq = $2 AND recipient_id = $3
	`, convID, messageID, recipientID)
	if err == sql.ErrNoRows {
		return models.StatusSent, nil
	}
	if err != nil {
		return "", utils.NewAppError(utils.ErrDatabase, "failed to query receipt", err)
	}
	return models.MessageStatus(status), nil
}

func (p *PostgresStore) ListReceipts(ctx context.Context, convID uuid.UUID, messageIDs []int64) (map[int64]map[uuid.UUID]models.MessageStatus, error) {
	out := make(map[int64]map[uuid.UUID]models.MessageStatus)
	if len(messageIDs) == 0 {
		return out, nil
	}

	rows, err := p.DB.QueryxContext(ctx, `
		SELECT message_seq, recipient_id, status FROM receipts
		WHERE conversation_id = $1 AND message_seq = ANY($2)
	`, convID, pq.Array(messageIDs))
	if err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to query receipts", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			seq         int64
			recipientID uuid.UUID
			status      string
		)
		if err := rows.Scan(&seq, &recipientID, &status); err != nil {
			return nil, utils.NewAppError(utils.ErrDatabase, "failed to scan receipt", err)
		}
		if _, ok := out[seq]; !ok {
			out[seq] = make(map[uuid.UUID]models.MessageStatus)
		}
		out[seq][recipientID] = models.MessageStatus(status)
	}
	return out, rows.Err()
}

// MarkDelivered promotes every still-"sent" message addressed to the
// recipient in this conversation to "delivered" and returns the affected ids.
func (p *PostgresStore) MarkDelivered(ctx context.Context, convID, recipientID uuid.UUID) ([]int64, error) {
	var affected []int64
	err := p.DB.SelectContext(ctx, &affected, `
		INSERT INTO receipts (conversation_id, message_seq, recipient_id, status, updated_at)
		SELECT m.conversation_id, m.seq, $2, 'delivered', NOW()
		FROM messages m
		WHERE m.conversation_id = $1 AND m.sender_id <> $2
		ON CONFLICT (conversation_id, message_seq, recipient_id)
		DO UPDATE SET status = 'delivered', updated_at = NOW()
		WHERE receipts.status = 'sent'
		RETURNING message_seq
	`, convID, recipientID)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to mark messages delivered", err)
	}
	return affected, nil
}

func (p *PostgresStore) UnreadCount(ctx context.Context, convID, userID uuid.UUID) (int, error) {
	var count int
	err := p.DB.GetContext(ctx, &count, `
		SELECT COUNT(*)
		FROM messages m
		LEFT JOIN receipts r
			ON r.conversation_id = m.conversation_id AND r.message_seq = m.seq AND r.recipient_id = $2
		WHERE m.conversation_id = $1 AND m.sender_id <> $2 AND NOT m.is_deleted
			AND COALESCE(r.status, 'sent') <> 'read'
	`, convID, userID)
	if err != nil {
		return 0, utils.NewAppError(utils.ErrDatabase, "failed to count unread messages", err)
	}
	return count, nil
}
