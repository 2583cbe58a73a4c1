package session

import (
	"context"
	"testing"
	"time"

	"ripple-chat/internal/database"
	"ripple-chat/internal/middleware"
	"ripple-chat/internal/models"
	"ripple-chat/internal/registry"
	"ripple-chat/internal/utils"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

type nopConn struct{}

func (nopConn) Push([]byte) error { return nil }
func (nopConn) Close()            {}

func newGateFixture(t *testing.T) (*Gate, *registry.Registry, uuid.UUID, uuid.UUID) {
	t.Helper()
	store := database.NewMemoryStore()
	reg := registry.NewRegistry()
	gate := NewGate(JWTVerifier{}, store, reg, utils.NewMetricsCollector())

	userID := uuid.New()
	conv := &models.Conversation{
		ID:            uuid.New(),
		Kind:          models.KindRoom,
		Name:          "gate test",
		CreatorID:     userID,
		CreatedAt:     time.Now(),
		LastMessageAt: time.Now(),
	}
	if err := store.CreateConversation(context.Background(), conv, []uuid.UUID{userID}); err != nil {
		t.Fatalf("Failed to create conversation: %v", err)
	}
	return gate, reg, userID, conv.ID
}

func TestAdmitRegistersConnection(t *testing.T) {
	gate, reg, userID, convID := newGateFixture(t)

	token, err := middleware.GenerateToken(userID)
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}

	admission, err := gate.Admit(context.Background(), token, convID, nopConn{})
	assert.NoError(t, err)
	assert.Equal(t, userID, admission.UserID)
	assert.Equal(t, convID, admission.Scope)
	assert.Equal(t, 1, reg.Occupancy(userID))

	gate.Release(admission)
	assert.Equal(t, 0, reg.Occupancy(userID))

	// Releasing twice is harmless.
	gate.Release(admission)
	gate.Release(nil)
}

func TestAdmitRejectsBadCredential(t *testing.T) {
	gate, reg, userID, convID := newGateFixture(t)

	_, err := gate.Admit(context.Background(), "", convID, nopConn{})
	assert.True(t, utils.IsErrorCode(err, utils.ErrInvalidCredential))

	_, err = gate.Admit(context.Background(), "not-a-jwt", convID, nopConn{})
	assert.True(t, utils.IsErrorCode(err, utils.ErrInvalidCredential))

	assert.Equal(t, 0, reg.Occupancy(userID))
}

func TestAdmitRejectsNonMember(t *testing.T) {
	gate, reg, _, convID := newGateFixture(t)

	stranger := uuid.New()
	token, err := middleware.GenerateToken(stranger)
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}

	_, err = gate.Admit(context.Background(), token, convID, nopConn{})
	assert.True(t, utils.IsErrorCode(err, utils.ErrNotAuthorized))
	assert.Equal(t, 0, reg.Occupancy(stranger))
}

func TestAuthorizeUnknownConversation(t *testing.T) {
	gate, _, userID, _ := newGateFixture(t)

	token, err := middleware.GenerateToken(userID)
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}

	_, err = gate.Authorize(context.Background(), token, uuid.New())
	assert.True(t, utils.IsErrorCode(err, utils.ErrNotFound))
}
