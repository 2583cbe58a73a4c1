package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"ripple-chat/internal/middleware"
	"ripple-chat/internal/models"
	"ripple-chat/internal/utils"

	"github.com/google/uuid"
)

// CreateRoomRequest represents a request to create a named room
type CreateRoomRequest struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	MemberIDs   []uuid.UUID `json:"memberIds"`
}

// DirectConversationRequest opens (or returns) the direct conversation with
// another user.
type DirectConversationRequest struct {
	UserID uuid.UUID `json:"userId"`
}

// MemberRequest adds or removes one member.
type MemberRequest struct {
	UserID uuid.UUID `json:"userId"`
}

// ConversationView is a conversation plus the caller's unread count.
type ConversationView struct {
	*models.Conversation
	UnreadCount int  `json:"unreadCount"`
	Created     bool `json:"created,omitempty"`
}

// HandleConversations lists the caller's conversations or creates a room.
func (s *Server) HandleConversations() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			s.handleListConversations(w, r)
		case http.MethodPost:
			s.handleCreateRoom(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	}
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conversations, err := s.Store.ListConversationsFor(r.Context(), userID)
	if err != nil {
		respondError(w, err)
		return
	}

	views := make([]*ConversationView, 0, len(conversations))
	for _, conv := range conversations {
		unread, err := s.Store.UnreadCount(r.Context(), conv.ID, userID)
		if err != nil {
			respondError(w, err)
			return
		}
		views = append(views, &ConversationView{Conversation: conv, UnreadCount: unread})
	}
	respondJSON(w, http.StatusOK, views)
}

func (s *Server) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req CreateRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		respondError(w, utils.NewAppError(utils.ErrInvalidInput, "room name is required", nil))
		return
	}

	now := time.Now()
	conv := &models.Conversation{
		ID:            uuid.New(),
		Kind:          models.KindRoom,
		Name:          req.Name,
		Description:   req.Description,
		CreatorID:     userID,
		CreatedAt:     now,
		LastMessageAt: now,
	}

	members := append([]uuid.UUID{userID}, req.MemberIDs...)
	if err := s.Store.CreateConversation(r.Context(), conv, members); err != nil {
		respondError(w, err)
		return
	}

	log.Printf("HTTP Handler: Room %q created by %s with %d members", conv.Name, userID, len(members))
	respondJSON(w, http.StatusCreated, &ConversationView{Conversation: conv, Created: true})
}

// HandleDirectConversation opens the direct conversation with another user,
// creating it on first contact.
func (s *Server) HandleDirectConversation() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		userID, ok := middleware.GetUserIDFromContext(r.Context())
		if !ok {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		var req DirectConversationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request", http.StatusBadRequest)
			return
		}
		if req.UserID == uuid.Nil || req.UserID == userID {
			respondError(w, utils.NewAppError(utils.ErrInvalidInput, "a direct conversation needs one other user", nil))
			return
		}
		if _, err := s.Store.GetUser(r.Context(), req.UserID); err != nil {
			respondError(w, err)
			return
		}

		conv, created, err := s.Store.GetOrCreateDirect(r.Context(), userID, req.UserID)
		if err != nil {
			respondError(w, err)
			return
		}

		status := http.StatusOK
		if created {
			status = http.StatusCreated
		}
		respondJSON(w, status, &ConversationView{Conversation: conv, Created: created})
	}
}

// HandleConversationMembers adds or removes room members. Only the creator
// manages membership, except that anyone may leave.
func (s *Server) HandleConversationMembers() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := middleware.GetUserIDFromContext(r.Context())
		if !ok {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		convID, err := uuid.Parse(r.URL.Query().Get("conversationId"))
		if err != nil {
			http.Error(w, "Invalid conversation ID", http.StatusBadRequest)
			return
		}

		conv, err := s.Store.GetConversation(r.Context(), convID)
		if err != nil {
			respondError(w, err)
			return
		}

		switch r.Method {
		case http.MethodGet:
			isMember, err := s.Store.IsMember(r.Context(), convID, userID)
			if err != nil {
				respondError(w, err)
				return
			}
			if !isMember {
				respondError(w, utils.NewNotAuthorizedError("user is not a member of this conversation"))
				return
			}
			members, err := s.Store.MembersOf(r.Context(), convID)
			if err != nil {
				respondError(w, err)
				return
			}
			respondJSON(w, http.StatusOK, members)

		case http.MethodPost:
			if conv.CreatorID != userID {
				respondError(w, utils.NewNotAuthorizedError("only the creator can add members"))
				return
			}
			var req MemberRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, "Invalid request", http.StatusBadRequest)
				return
			}
			if _, err := s.Store.GetUser(r.Context(), req.UserID); err != nil {
				respondError(w, err)
				return
			}
			if err := s.Store.AddMember(r.Context(), convID, req.UserID); err != nil {
				respondError(w, err)
				return
			}
			respondJSON(w, http.StatusOK, map[string]bool{"added": true})

		case http.MethodDelete:
			var req MemberRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, "Invalid request", http.StatusBadRequest)
				return
			}
			if req.UserID != userID && conv.CreatorID != userID {
				respondError(w, utils.NewNotAuthorizedError("only the creator can remove other members"))
				return
			}
			if err := s.Store.RemoveMember(r.Context(), convID, req.UserID); err != nil {
				respondError(w, err)
				return
			}
			respondJSON(w, http.StatusOK, map[string]bool{"removed": true})

		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	}
}
