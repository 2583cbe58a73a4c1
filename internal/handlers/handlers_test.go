package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"ripple-chat/internal/blob"
	"ripple-chat/internal/database"
	"ripple-chat/internal/engine"
	"ripple-chat/internal/middleware"
	"ripple-chat/internal/presence"
	"ripple-chat/internal/registry"
	"ripple-chat/internal/session"
	"ripple-chat/internal/utils"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	store := database.NewMemoryStore()
	reg := registry.NewRegistry()
	metrics := utils.NewMetricsCollector()
	tracker := presence.NewTracker(reg, presence.NewMemoryLastSeen())
	system := actor.NewActorSystem()
	eng := engine.NewEngine(system, store, reg, nil, metrics)
	gate := session.NewGate(session.JWTVerifier{}, store, reg, metrics)

	blobStore, err := blob.NewDiskStore(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create blob store: %v", err)
	}
	return NewServer(system, eng, store, reg, tracker, gate, blobStore, metrics)
}

func postJSON(t *testing.T, handler http.HandlerFunc, path string, body interface{}, userID *uuid.UUID) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("Failed to marshal request: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	if userID != nil {
		req = req.WithContext(middleware.SetUserIDInContext(req.Context(), *userID))
	}
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func registerUser(t *testing.T, server *Server, username, email string) uuid.UUID {
	t.Helper()
	rec := postJSON(t, server.HandleUserRegistration(), "/user/register", &RegisterUserRequest{
		Username: username,
		Email:    email,
		Password: "password123",
	}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("Registration failed with status %d: %s", rec.Code, rec.Body.String())
	}
	var view UserView
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("Failed to decode registration response: %v", err)
	}
	return view.ID
}

func TestRegistrationAndLogin(t *testing.T) {
	server := newTestServer(t)
	registerUser(t, server, "alice", "alice@example.com")

	// Duplicate email is a conflict.
	rec := postJSON(t, server.HandleUserRegistration(), "/user/register", &RegisterUserRequest{
		Username: "alice2",
		Email:    "alice@example.com",
		Password: "password123",
	}, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Correct password logs in and yields a token.
	rec = postJSON(t, server.HandleUserLogin(), "/user/login", &LoginRequest{
		Email:    "alice@example.com",
		Password: "password123",
	}, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	var login LoginResponse
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &login))
	assert.True(t, login.Success)
	assert.NotEmpty(t, login.Token)

	claims, err := middleware.ValidateToken(login.Token)
	assert.NoError(t, err)
	assert.Equal(t, login.UserID, claims.UserID.String())

	// Wrong password is rejected without leaking which part was wrong.
	rec = postJSON(t, server.HandleUserLogin(), "/user/login", &LoginRequest{
		Email:    "alice@example.com",
		Password: "wrongpassword",
	}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestDirectConversationFlow(t *testing.T) {
	server := newTestServer(t)
	alice := registerUser(t, server, "alice", "alice@example.com")
	bob := registerUser(t, server, "bob", "bob@example.com")

	rec := postJSON(t, server.HandleDirectConversation(), "/conversations/direct", &DirectConversationRequest{UserID: bob}, &alice)
	assert.Equal(t, http.StatusCreated, rec.Code)
	var created ConversationView
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	// Opening it again from the other side returns the same conversation.
	rec = postJSON(t, server.HandleDirectConversation(), "/conversations/direct", &DirectConversationRequest{UserID: alice}, &bob)
	assert.Equal(t, http.StatusOK, rec.Code)
	var reopened ConversationView
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reopened))
	assert.Equal(t, created.ID, reopened.ID)

	// Self-conversations are rejected.
	rec = postJSON(t, server.HandleDirectConversation(), "/conversations/direct", &DirectConversationRequest{UserID: alice}, &alice)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSendAndFetchMessagesOverREST(t *testing.T) {
	server := newTestServer(t)
	alice := registerUser(t, server, "alice", "alice@example.com")
	bob := registerUser(t, server, "bob", "bob@example.com")

	rec := postJSON(t, server.HandleDirectConversation(), "/conversations/direct", &DirectConversationRequest{UserID: bob}, &alice)
	var conv ConversationView
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &conv))

	rec = postJSON(t, server.HandleMessages(), "/messages", &SendMessageRequest{
		ConversationID: conv.ID,
		Content:        "hi bob",
	}, &alice)
	assert.Equal(t, http.StatusCreated, rec.Code)

	// Bob pages history, which also marks the message delivered.
	req := httptest.NewRequest(http.MethodGet, "/messages?conversationId="+conv.ID.String(), nil)
	req = req.WithContext(middleware.SetUserIDInContext(req.Context(), bob))
	getRec := httptest.NewRecorder()
	server.HandleMessages()(getRec, req)
	assert.Equal(t, http.StatusOK, getRec.Code)

	var messages []map[string]interface{}
	assert.NoError(t, json.Unmarshal(getRec.Body.Bytes(), &messages))
	assert.Len(t, messages, 1)
	assert.Equal(t, "hi bob", messages[0]["content"])
	assert.Equal(t, "delivered", messages[0]["status"])

	// Bob's unread count reflects the read state, not delivery.
	req = httptest.NewRequest(http.MethodGet, "/messages/unread?conversationId="+conv.ID.String(), nil)
	req = req.WithContext(middleware.SetUserIDInContext(req.Context(), bob))
	unreadRec := httptest.NewRecorder()
	server.HandleUnreadCount()(unreadRec, req)
	assert.Equal(t, http.StatusOK, unreadRec.Code)
	var unread map[string]int
	assert.NoError(t, json.Unmarshal(unreadRec.Body.Bytes(), &unread))
	assert.Equal(t, 1, unread["unreadCount"])
}

func TestRoomMembershipAdministration(t *testing.T) {
	server := newTestServer(t)
	alice := registerUser(t, server, "alice", "alice@example.com")
	bob := registerUser(t, server, "bob", "bob@example.com")
	carol := registerUser(t, server, "carol", "carol@example.com")

	rec := postJSON(t, server.HandleConversations(), "/conversations", &CreateRoomRequest{
		Name:      "general",
		MemberIDs: []uuid.UUID{bob},
	}, &alice)
	assert.Equal(t, http.StatusCreated, rec.Code)
	var room ConversationView
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &room))

	// Only the creator can add members.
	rec = postJSON(t, server.HandleConversationMembers(), "/conversations/members?conversationId="+room.ID.String(), &MemberRequest{UserID: carol}, &bob)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = postJSON(t, server.HandleConversationMembers(), "/conversations/members?conversationId="+room.ID.String(), &MemberRequest{UserID: carol}, &alice)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Anyone may leave on their own.
	req := httptest.NewRequest(http.MethodDelete, "/conversations/members?conversationId="+room.ID.String(), bytes.NewReader(mustJSON(t, &MemberRequest{UserID: carol})))
	req = req.WithContext(middleware.SetUserIDInContext(req.Context(), carol))
	leaveRec := httptest.NewRecorder()
	server.HandleConversationMembers()(leaveRec, req)
	assert.Equal(t, http.StatusOK, leaveRec.Code)
}

func TestUserSearch(t *testing.T) {
	server := newTestServer(t)
	alice := registerUser(t, server, "alice", "alice@example.com")
	registerUser(t, server, "alison", "alison@example.com")
	registerUser(t, server, "bob", "bob@example.com")

	searchAs := func(query string, caller uuid.UUID) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/users/search?q="+query, nil)
		req = req.WithContext(middleware.SetUserIDInContext(req.Context(), caller))
		rec := httptest.NewRecorder()
		server.HandleSearchUsers()(rec, req)
		return rec
	}

	// The caller never appears in their own results.
	rec := searchAs("ali", alice)
	assert.Equal(t, http.StatusOK, rec.Code)
	var results []UserView
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &results))
	if assert.Len(t, results, 1) {
		assert.Equal(t, "alison", results[0].Username)
	}

	rec = searchAs("zzz", alice)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())

	// Single-character queries are too broad.
	rec = searchAs("a", alice)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func mustJSON(t *testing.T, v interface{}) []byte {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("Failed to marshal: %v", err)
	}
	return raw
}
