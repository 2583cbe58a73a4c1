package database

import (
	"context"
	"sync"
	"testing"
	"time"

	"ripple-chat/internal/models"
	"ripple-chat/internal/utils"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func newTestConversation(t *testing.T, store *MemoryStore, members ...uuid.UUID) uuid.UUID {
	t.Helper()
	conv := &models.Conversation{
		ID:            uuid.New(),
		Kind:          models.KindRoom,
		Name:          "test room",
		CreatorID:     members[0],
		CreatedAt:     time.Now(),
		LastMessageAt: time.Now(),
	}
	if err := store.CreateConversation(context.Background(), conv, members); err != nil {
		t.Fatalf("Failed to create conversation: %v", err)
	}
	return conv.ID
}

func appendText(t *testing.T, store *MemoryStore, convID, senderID uuid.UUID, content string) int64 {
	t.Helper()
	id, err := store.AppendMessage(context.Background(), &models.Message{
		ConversationID: convID,
		SenderID:       senderID,
		Content:        content,
		ContentType:    models.TypeText,
	})
	if err != nil {
		t.Fatalf("Failed to append message: %v", err)
	}
	return id
}

func TestAppendAssignsGaplessIDs(t *testing.T) {
	store := NewMemoryStore()
	alice, bob := uuid.New(), uuid.New()
	convID := newTestConversation(t, store, alice, bob)

	for i := int64(1); i <= 5; i++ {
		id := appendText(t, store, convID, alice, "hello")
		assert.Equal(t, i, id)
	}

	count, err := store.CountMessages(context.Background(), convID)
	assert.NoError(t, err)
	assert.Equal(t, 5, count)
}

func TestConcurrentAppendsStayGapless(t *testing.T) {
	store := NewMemoryStore()
	alice, bob := uuid.New(), uuid.New()
	convID := newTestConversation(t, store, alice, bob)

	const total = 50
	var wg sync.WaitGroup
	ids := make(chan int64, total)
	for i := 0; i < total; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := store.AppendMessage(context.Background(), &models.Message{
				ConversationID: convID,
				SenderID:       alice,
				Content:        "hello",
				ContentType:    models.TypeText,
			})
			assert.NoError(t, err)
			ids <- id
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[int64]bool)
	for id := range ids {
		assert.False(t, seen[id], "duplicate message id %d", id)
		seen[id] = true
	}
	for i := int64(1); i <= total; i++ {
		assert.True(t, seen[i], "missing message id %d", i)
	}
}

func TestListMessagesNewestFirstWithPaging(t *testing.T) {
	store := NewMemoryStore()
	alice, bob := uuid.New(), uuid.New()
	convID := newTestConversation(t, store, alice, bob)

	for i := 0; i < 10; i++ {
		appendText(t, store, convID, alice, "msg")
	}

	page, err := store.ListMessages(context.Background(), convID, 0, 4)
	assert.NoError(t, err)
	assert.Len(t, page, 4)
	assert.Equal(t, int64(10), page[0].ID)
	assert.Equal(t, int64(7), page[3].ID)

	// The boundary is exclusive.
	page, err = store.ListMessages(context.Background(), convID, 7, 4)
	assert.NoError(t, err)
	assert.Len(t, page, 4)
	assert.Equal(t, int64(6), page[0].ID)
	assert.Equal(t, int64(3), page[3].ID)

	page, err = store.ListMessages(context.Background(), convID, 3, 4)
	assert.NoError(t, err)
	assert.Len(t, page, 2)
	assert.Equal(t, int64(2), page[0].ID)
	assert.Equal(t, int64(1), page[1].ID)

	// Empty pages are empty slices, never nil, so both backends serialize
	// them as [].
	page, err = store.ListMessages(context.Background(), convID, 1, 4)
	assert.NoError(t, err)
	assert.NotNil(t, page)
	assert.Empty(t, page)
}

func TestReceiptsAreMonotonic(t *testing.T) {
	store := NewMemoryStore()
	alice, bob := uuid.New(), uuid.New()
	convID := newTestConversation(t, store, alice, bob)
	msgID := appendText(t, store, convID, alice, "hello")

	// A message with no receipt reads as sent.
	status, err := store.ReceiptFor(context.Background(), convID, msgID, bob)
	assert.NoError(t, err)
	assert.Equal(t, models.StatusSent, status)

	assert.NoError(t, store.UpdateReceipt(context.Background(), convID, msgID, bob, models.StatusDelivered))
	assert.NoError(t, store.UpdateReceipt(context.Background(), convID, msgID, bob, models.StatusRead))

	// Regression is rejected.
	err = store.UpdateReceipt(context.Background(), convID, msgID, bob, models.StatusDelivered)
	assert.True(t, utils.IsErrorCode(err, utils.ErrInvalidState))

	// Same-status update is a silent no-op.
	assert.NoError(t, store.UpdateReceipt(context.Background(), convID, msgID, bob, models.StatusRead))

	status, err = store.ReceiptFor(context.Background(), convID, msgID, bob)
	assert.NoError(t, err)
	assert.Equal(t, models.StatusRead, status)
}

func TestUpdateReceiptUnknownMessage(t *testing.T) {
	store := NewMemoryStore()
	alice, bob := uuid.New(), uuid.New()
	convID := newTestConversation(t, store, alice, bob)

	err := store.UpdateReceipt(context.Background(), convID, 42, bob, models.StatusDelivered)
	assert.True(t, utils.IsErrorCode(err, utils.ErrNotFound))
}

func TestMarkDeliveredSkipsOwnAndPromoted(t *testing.T) {
	store := NewMemoryStore()
	alice, bob := uuid.New(), uuid.New()
	convID := newTestConversation(t, store, alice, bob)

	first := appendText(t, store, convID, alice, "one")
	second := appendText(t, store, convID, alice, "two")
	appendText(t, store, convID, bob, "three")

	assert.NoError(t, store.UpdateReceipt(context.Background(), convID, first, bob, models.StatusRead))

	affected, err := store.MarkDelivered(context.Background(), convID, bob)
	assert.NoError(t, err)
	assert.Equal(t, []int64{second}, affected)

	// Second call has nothing left to promote.
	affected, err = store.MarkDelivered(context.Background(), convID, bob)
	assert.NoError(t, err)
	assert.Empty(t, affected)
}

func TestUnreadCount(t *testing.T) {
	store := NewMemoryStore()
	alice, bob := uuid.New(), uuid.New()
	convID := newTestConversation(t, store, alice, bob)

	first := appendText(t, store, convID, alice, "one")
	appendText(t, store, convID, alice, "two")
	appendText(t, store, convID, bob, "mine")

	count, err := store.UnreadCount(context.Background(), convID, bob)
	assert.NoError(t, err)
	assert.Equal(t, 2, count)

	assert.NoError(t, store.UpdateReceipt(context.Background(), convID, first, bob, models.StatusRead))
	count, err = store.UnreadCount(context.Background(), convID, bob)
	assert.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestEditAndSoftDelete(t *testing.T) {
	store := NewMemoryStore()
	alice, bob := uuid.New(), uuid.New()
	convID := newTestConversation(t, store, alice, bob)
	msgID := appendText(t, store, convID, alice, "original")

	edited, err := store.EditMessage(context.Background(), convID, msgID, "revised")
	assert.NoError(t, err)
	assert.Equal(t, "revised", edited.Content)
	assert.True(t, edited.IsEdited)
	assert.NotNil(t, edited.UpdatedAt)

	deleted, err := store.SoftDeleteMessage(context.Background(), convID, msgID)
	assert.NoError(t, err)
	assert.True(t, deleted.IsDeleted)
	assert.Equal(t, models.TombstoneContent, deleted.Content)
	assert.Empty(t, deleted.FileRef)

	// A tombstone can be neither edited nor deleted again.
	_, err = store.EditMessage(context.Background(), convID, msgID, "again")
	assert.True(t, utils.IsErrorCode(err, utils.ErrInvalidState))
	_, err = store.SoftDeleteMessage(context.Background(), convID, msgID)
	assert.True(t, utils.IsErrorCode(err, utils.ErrInvalidState))

	// The tombstone still occupies its id; the sequence has no gap.
	count, err := store.CountMessages(context.Background(), convID)
	assert.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestGetOrCreateDirectIsStable(t *testing.T) {
	store := NewMemoryStore()
	alice, bob := uuid.New(), uuid.New()

	conv1, created, err := store.GetOrCreateDirect(context.Background(), alice, bob)
	assert.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, models.KindDirect, conv1.Kind)

	// Same pair in either order resolves to the same conversation.
	conv2, created, err := store.GetOrCreateDirect(context.Background(), bob, alice)
	assert.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, conv1.ID, conv2.ID)

	// Direct conversations refuse extra members.
	err = store.AddMember(context.Background(), conv1.ID, uuid.New())
	assert.True(t, utils.IsErrorCode(err, utils.ErrInvalidState))
}

func TestSaveUserRejectsDuplicates(t *testing.T) {
	store := NewMemoryStore()
	user := &models.User{
		ID:       uuid.New(),
		Username: "alice",
		Email:    "alice@example.com",
	}
	assert.NoError(t, store.SaveUser(context.Background(), user))

	dup := &models.User{ID: uuid.New(), Username: "alice2", Email: "alice@example.com"}
	assert.True(t, utils.IsErrorCode(store.SaveUser(context.Background(), dup), utils.ErrDuplicate))

	dup = &models.User{ID: uuid.New(), Username: "alice", Email: "other@example.com"}
	assert.True(t, utils.IsErrorCode(store.SaveUser(context.Background(), dup), utils.ErrDuplicate))
}

func TestSearchUsers(t *testing.T) {
	store := NewMemoryStore()
	alice := &models.User{ID: uuid.New(), Username: "Alice", Email: "alice@example.com"}
	alison := &models.User{ID: uuid.New(), Username: "alison", Email: "alison@example.com"}
	bob := &models.User{ID: uuid.New(), Username: "bob", Email: "bob@example.com"}
	for _, u := range []*models.User{alice, alison, bob} {
		assert.NoError(t, store.SaveUser(context.Background(), u))
	}

	// Case-insensitive substring match, excluding the caller.
	matches, err := store.SearchUsers(context.Background(), "ali", alice.ID, 20)
	assert.NoError(t, err)
	if assert.Len(t, matches, 1) {
		assert.Equal(t, "alison", matches[0].Username)
	}

	matches, err = store.SearchUsers(context.Background(), "ALI", bob.ID, 20)
	assert.NoError(t, err)
	assert.Len(t, matches, 2)

	matches, err = store.SearchUsers(context.Background(), "ali", bob.ID, 1)
	assert.NoError(t, err)
	assert.Len(t, matches, 1)

	matches, err = store.SearchUsers(context.Background(), "nobody", bob.ID, 20)
	assert.NoError(t, err)
	assert.NotNil(t, matches)
	assert.Empty(t, matches)
}

func TestMembership(t *testing.T) {
	store := NewMemoryStore()
	alice, bob, carol := uuid.New(), uuid.New(), uuid.New()
	convID := newTestConversation(t, store, alice, bob)

	isMember, err := store.IsMember(context.Background(), convID, carol)
	assert.NoError(t, err)
	assert.False(t, isMember)

	assert.NoError(t, store.AddMember(context.Background(), convID, carol))
	isMember, _ = store.IsMember(context.Background(), convID, carol)
	assert.True(t, isMember)

	assert.NoError(t, store.RemoveMember(context.Background(), convID, carol))
	assert.True(t, utils.IsErrorCode(store.RemoveMember(context.Background(), convID, carol), utils.ErrNotFound))
}
