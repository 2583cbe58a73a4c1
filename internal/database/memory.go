package database

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"ripple-chat/internal/models"
	"ripple-chat/internal/utils"

	"github.com/google/uuid"
)

// pairKey identifies the unordered member pair of a direct conversation.
type pairKey struct {
	lo, hi uuid.UUID
}

func makePairKey(a, b uuid.UUID) pairKey {
	if a.String() < b.String() {
		return pairKey{lo: a, hi: b}
	}
	return pairKey{lo: b, hi: a}
}

// conversationState serializes appends and status updates for one
// conversation. Unrelated conversations never share this lock.
type conversationState struct {
	mu       sync.Mutex
	conv     *models.Conversation
	members  map[uuid.UUID]bool
	messages []*models.Message // messages[i] has seq i+1; gapless by construction
	receipts map[int64]map[uuid.UUID]*models.Receipt
}

// MemoryStore is the in-process system of record, used in tests and when no
// DATABASE_URL is configured.
type MemoryStore struct {
	usersMu      sync.RWMutex
	users        map[uuid.UUID]*models.User
	usersByEmail map[string]uuid.UUID
	usersByName  map[string]uuid.UUID

	convMu      sync.RWMutex
	convs       map[uuid.UUID]*conversationState
	directIndex map[pairKey]uuid.UUID
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:        make(map[uuid.UUID]*models.User),
		usersByEmail: make(map[string]uuid.UUID),
		usersByName:  make(map[string]uuid.UUID),
		convs:        make(map[uuid.UUID]*conversationState),
		directIndex:  make(map[pairKey]uuid.UUID),
	}
}

func (m *MemoryStore) Close(ctx context.Context) error {
	return nil
}

// --- Users ---

func (m *MemoryStore) SaveUser(_ context.Context, user *models.User) error {
	m.usersMu.Lock()
	defer m.usersMu.Unlock()

	if _, exists := m.usersByEmail[user.Email]; exists {
		return utils.NewAppError(utils.ErrDuplicate, "email already registered", nil)
	}
	if _, exists := m.usersByName[user.Username]; exists {
		return utils.NewAppError(utils.ErrDuplicate, "username already taken", nil)
	}

	clone := *user
	m.users[user.ID] = &clone
	m.usersByEmail[user.Email] = user.ID
	m.usersByName[user.Username] = user.ID
	return nil
}

func (m *MemoryStore) GetUser(_ context.Context, id uuid.UUID) (*models.User, error) {
	m.usersMu.RLock()
	defer m.usersMu.RUnlock()
	user, ok := m.users[id]
	if !ok {
		return nil, utils.NewNotFoundError("user")
	}
	clone := *user
	return &clone, nil
}

func (m *MemoryStore) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	m.usersMu.RLock()
	defer m.usersMu.RUnlock()
	id, ok := m.usersByEmail[email]
	if !ok {
		return nil, utils.NewNotFoundError("user")
	}
	clone := *m.users[id]
	return &clone, nil
}

func (m *MemoryStore) GetUserByUsername(_ context.Context, username string) (*models.User, error) {
	m.usersMu.RLock()
	defer m.usersMu.RUnlock()
	id, ok := m.usersByName[username]
	if !ok {
		return nil, utils.NewNotFoundError("user")
	}
	clone := *m.users[id]
	return &clone, nil
}

func (m *MemoryStore) ListUsers(_ context.Context) ([]*models.User, error) {
	m.usersMu.RLock()
	defer m.usersMu.RUnlock()
	users := make([]*models.User, 0, len(m.users))
	for _, u := range m.users {
		clone := *u
		users = append(users, &clone)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	return users, nil
}

func (m *MemoryStore) SearchUsers(_ context.Context, query string, exclude uuid.UUID, limit int) ([]*models.User, error) {
	if limit <= 0 {
		limit = 20
	}
	needle := strings.ToLower(query)

	m.usersMu.RLock()
	defer m.usersMu.RUnlock()
	matches := make([]*models.User, 0)
	for _, u := range m.users {
		if u.ID == exclude {
			continue
		}
		if !strings.Contains(strings.ToLower(u.Username), needle) {
			continue
		}
		clone := *u
		matches = append(matches, &clone)
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Username < matches[j].Username })
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// --- Conversations ---

func (m *MemoryStore) CreateConversation(_ context.Context, conv *models.Conversation, memberIDs []uuid.UUID) error {
	m.convMu.Lock()
	defer m.convMu.Unlock()

	if _, exists := m.convs[conv.ID]; exists {
		return utils.NewAppError(utils.ErrDuplicate, "conversation already exists", nil)
	}

	clone := *conv
	state := &conversationState{
		conv:     &clone,
		members:  make(map[uuid.UUID]bool, len(memberIDs)),
		receipts: make(map[int64]map[uuid.UUID]*models.Receipt),
	}
	for _, id := range memberIDs {
		state.members[id] = true
	}
	m.convs[conv.ID] = state

	if conv.Kind == models.KindDirect {
		if len(memberIDs) == 2 {
			m.directIndex[makePairKey(memberIDs[0], memberIDs[1])] = conv.ID
		}
	}
	return nil
}

func (m *MemoryStore) GetConversation(_ context.Context, id uuid.UUID) (*models.Conversation, error) {
	state, err := m.state(id)
	if err != nil {
		return nil, err
	}
	state.mu.Lock()
	defer state.mu.Unlock()
	clone := *state.conv
	return &clone, nil
}

func (m *MemoryStore) GetOrCreateDirect(_ context.Context, a, b uuid.UUID) (*models.Conversation, bool, error) {
	key := makePairKey(a, b)

	m.convMu.Lock()
	defer m.convMu.Unlock()

	if id, ok := m.directIndex[key]; ok {
		clone := *m.convs[id].conv
		return &clone, false, nil
	}

	now := time.Now()
	conv := &models.Conversation{
		ID:            uuid.New(),
		Kind:          models.KindDirect,
		CreatorID:     a,
		CreatedAt:     now,
		LastMessageAt: now,
	}
	state := &conversationState{
		conv:     conv,
		members:  map[uuid.UUID]bool{a: true, b: true},
		receipts: make(map[int64]map[uuid.UUID]*models.Receipt),
	}
	m.convs[conv.ID] = state
	m.directIndex[key] = conv.ID

	clone := *conv
	return &clone, true, nil
}

func (m *MemoryStore) ListConversationsFor(_ context.Context, userID uuid.UUID) ([]*models.Conversation, error) {
	m.convMu.RLock()
	defer m.convMu.RUnlock()

	var convs []*models.Conversation
	for _, state := range m.convs {
		state.mu.Lock()
		if state.members[userID] {
			clone := *state.conv
			convs = append(convs, &clone)
		}
		state.mu.Unlock()
	}
	sort.Slice(convs, func(i, j int) bool {
		return convs[i].LastMessageAt.After(convs[j].LastMessageAt)
	})
	return convs, nil
}

func (m *MemoryStore) AddMember(_ context.Context, convID, userID uuid.UUID) error {
	state, err := m.state(convID)
	if err != nil {
		return err
	}
	state.mu.Lock()
	defer state.mu.Unlock()
	if state.conv.Kind == models.KindDirect {
		return utils.NewInvalidStateError("cannot add members to a direct conversation")
	}
	if state.members[userID] {
		return utils.NewAppError(utils.ErrDuplicate, "user is already a member", nil)
	}
	state.members[userID] = true
	return nil
}

func (m *MemoryStore) RemoveMember(_ context.Context, convID, userID uuid.UUID) error {
	state, err := m.state(convID)
	if err != nil {
		return err
	}
	state.mu.Lock()
	defer state.mu.Unlock()
	if !state.members[userID] {
		return utils.NewNotFoundError("member")
	}
	delete(state.members, userID)
	return nil
}

func (m *MemoryStore) IsMember(_ context.Context, convID, userID uuid.UUID) (bool, error) {
	state, err := m.state(convID)
	if err != nil {
		return false, err
	}
	state.mu.Lock()
	defer state.mu.Unlock()
	return state.members[userID], nil
}

func (m *MemoryStore) MembersOf(_ context.Context, convID uuid.UUID) ([]uuid.UUID, error) {
	state, err := m.state(convID)
	if err != nil {
		return nil, err
	}
	state.mu.Lock()
	defer state.mu.Unlock()
	members := make([]uuid.UUID, 0, len(state.members))
	for id := range state.members {
		members = append(members, id)
	}
	return members, nil
}

func (m *MemoryStore) TouchLastMessage(_ context.Context, convID uuid.UUID, t time.Time) error {
	state, err := m.state(convID)
	if err != nil {
		return err
	}
	state.mu.Lock()
	defer state.mu.Unlock()
	state.conv.LastMessageAt = t
	return nil
}

// --- Messages ---

func (m *MemoryStore) AppendMessage(_ context.Context, msg *models.Message) (int64, error) {
	state, err := m.state(msg.ConversationID)
	if err != nil {
		return 0, err
	}

	state.mu.Lock()
	defer state.mu.Unlock()

	clone := *msg
	clone.ID = int64(len(state.messages)) + 1
	if clone.CreatedAt.IsZero() {
		clone.CreatedAt = time.Now()
	}
	clone.Status = models.StatusSent
	state.messages = append(state.messages, &clone)

	msg.ID = clone.ID
	msg.CreatedAt = clone.CreatedAt
	msg.Status = clone.Status
	return clone.ID, nil
}

func (m *MemoryStore) GetMessage(_ context.Context, convID uuid.UUID, messageID int64) (*models.Message, error) {
	state, err := m.state(convID)
	if err != nil {
		return nil, err
	}
	state.mu.Lock()
	defer state.mu.Unlock()
	msg, err := state.lookup(messageID)
	if err != nil {
		return nil, err
	}
	clone := *msg
	return &clone, nil
}

func (m *MemoryStore) ListMessages(_ context.Context, convID uuid.UUID, beforeID int64, limit int) ([]*models.Message, error) {
	state, err := m.state(convID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}

	state.mu.Lock()
	defer state.mu.Unlock()

	// The page boundary is exclusive: ids >= beforeID are never returned,
	// and concurrent appends (which only grow the tail) cannot disturb a
	// page below the boundary.
	end := int64(len(state.messages))
	if beforeID > 0 && beforeID-1 < end {
		end = beforeID - 1
	}

	page := make([]*models.Message, 0, limit)
	for i := end - 1; i >= 0 && len(page) < limit; i-- {
		clone := *state.messages[i]
		page = append(page, &clone)
	}
	return page, nil
}

func (m *MemoryStore) CountMessages(_ context.Context, convID uuid.UUID) (int, error) {
	state, err := m.state(convID)
	if err != nil {
		return 0, err
	}
	state.mu.Lock()
	defer state.mu.Unlock()
	return len(state.messages), nil
}

func (m *MemoryStore) EditMessage(_ context.Context, convID uuid.UUID, messageID int64, content string) (*models.Message, error) {
	state, err := m.state(convID)
	if err != nil {
		return nil, err
	}
	state.mu.Lock()
	defer state.mu.Unlock()

	msg, err := state.lookup(messageID)
	if err != nil {
		return nil, err
	}
	if msg.IsDeleted {
		return nil, utils.NewInvalidStateError("cannot edit a deleted message")
	}

	now := time.Now()
	msg.Content = content
	msg.IsEdited = true
	msg.UpdatedAt = &now

	clone := *msg
	return &clone, nil
}

func (m *MemoryStore) SoftDeleteMessage(_ context.Context, convID uuid.UUID, messageID int64) (*models.Message, error) {
	state, err := m.state(convID)
	if err != nil {
		return nil, err
	}
	state.mu.Lock()
	defer state.mu.Unlock()

	msg, err := state.lookup(messageID)
	if err != nil {
		return nil, err
	}
	if msg.IsDeleted {
		return nil, utils.NewInvalidStateError("message is already deleted")
	}

	now := time.Now()
	msg.IsDeleted = true
	msg.Content = models.TombstoneContent
	msg.FileRef = ""
	msg.FileName = ""
	msg.FileSize = 0
	msg.UpdatedAt = &now

	clone := *msg
	return &clone, nil
}

// --- Delivery status records ---

func (m *MemoryStore) UpdateReceipt(_ context.Context, convID uuid.UUID, messageID int64, recipientID uuid.UUID, status models.MessageStatus) error {
	if !status.Valid() {
		return utils.NewAppError(utils.ErrInvalidInput, "unknown message status", nil)
	}

	state, err := m.state(convID)
	if err != nil {
		return err
	}
	state.mu.Lock()
	defer state.mu.Unlock()

	if _, err := state.lookup(messageID); err != nil {
		return err
	}

	current := models.StatusSent
	if recs, ok := state.receipts[messageID]; ok {
		if rec, held := recs[recipientID]; held {
			current = rec.Status
		}
	}

	if status.Rank() < current.Rank() {
		return utils.NewInvalidStateError("status cannot regress from " + string(current) + " to " + string(status))
	}
	if status.Rank() == current.Rank() {
		return nil
	}

	if _, ok := state.receipts[messageID]; !ok {
		state.receipts[messageID] = make(map[uuid.UUID]*models.Receipt)
	}
	state.receipts[messageID][recipientID] = &models.Receipt{
		ConversationID: convID,
		MessageID:      messageID,
		RecipientID:    recipientID,
		Status:         status,
		UpdatedAt:      time.Now(),
	}
	return nil
}

func (m *MemoryStore) ReceiptFor(_ context.Context, convID uuid.UUID, messageID int64, recipientID uuid.UUID) (models.MessageStatus, error) {
	state, err := m.state(convID)
	if err != nil {
		return "", err
	}
	state.mu.Lock()
	defer state.mu.Unlock()

	if _, err := state.lookup(messageID); err != nil {
		return "", err
	}
	if recs, ok := state.receipts[messageID]; ok {
		if rec, held := recs[recipientID]; held {
			return rec.Status, nil
		}
	}
	return models.StatusSent, nil
}

func (m *MemoryStore) ListReceipts(_ context.Context, convID uuid.UUID, messageIDs []int64) (map[int64]map[uuid.UUID]models.MessageStatus, error) {
	state, err := m.state(convID)
	if err != nil {
		return nil, err
	}
	state.mu.Lock()
	defer state.mu.Unlock()

	out := make(map[int64]map[uuid.UUID]models.MessageStatus, len(messageIDs))
	for _, id := range messageIDs {
		recs, ok := state.receipts[id]
		if !ok {
			continue
		}
		byUser := make(map[uuid.UUID]models.MessageStatus, len(recs))
		for userID, rec := range recs {
			byUser[userID] = rec.Status
		}
		out[id] = byUser
	}
	return out, nil
}

func (m *MemoryStore) MarkDelivered(_ context.Context, convID, recipientID uuid.UUID) ([]int64, error) {
	state, err := m.state(convID)
	if err != nil {
		return nil, err
	}
	state.mu.Lock()
	defer state.mu.Unlock()

	var affected []int64
	now := time.Now()
	for _, msg := range state.messages {
		if msg.SenderID == recipientID {
			continue
		}
		current := models.StatusSent
		if recs, ok := state.receipts[msg.ID]; ok {
			if rec, held := recs[recipientID]; held {
				current = rec.Status
			}
		}
		if current.Rank() >= models.StatusDelivered.Rank() {
			continue
		}
		if _, ok := state.receipts[msg.ID]; !ok {
			state.receipts[msg.ID] = make(map[uuid.UUID]*models.Receipt)
		}
		state.receipts[msg.ID][recipientID] = &models.Receipt{
			ConversationID: convID,
			MessageID:      msg.ID,
			RecipientID:    recipientID,
			Status:         models.StatusDelivered,
			UpdatedAt:      now,
		}
		affected = append(affected, msg.ID)
	}
	return affected, nil
}

func (m *MemoryStore) UnreadCount(_ context.Context, convID, userID uuid.UUID) (int, error) {
	state, err := m.state(convID)
	if err != nil {
		return 0, err
	}
	state.mu.Lock()
	defer state.mu.Unlock()

	count := 0
	for _, msg := range state.messages {
		if msg.SenderID == userID || msg.IsDeleted {
			continue
		}
		current := models.StatusSent
		if recs, ok := state.receipts[msg.ID]; ok {
			if rec, held := recs[userID]; held {
				current = rec.Status
			}
		}
		if current.Rank() < models.StatusRead.Rank() {
			count++
		}
	}
	return count, nil
}

// --- helpers ---

func (m *MemoryStore) state(convID uuid.UUID) (*conversationState, error) {
	m.convMu.RLock()
	defer m.convMu.RUnlock()
	state, ok := m.convs[convID]
	if !ok {
		return nil, utils.NewNotFoundError("conversation")
	}
	return state, nil
}

// lookup resolves a message by id; caller holds state.mu.
func (s *conversationState) lookup(messageID int64) (*models.Message, error) {
	if messageID < 1 || messageID > int64(len(s.messages)) {
		return nil, utils.NewNotFoundError("message")
	}
	return s.messages[messageID-1], nil
}
