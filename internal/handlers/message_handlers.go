package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"ripple-chat/internal/engine/actors"
	"ripple-chat/internal/middleware"
	"ripple-chat/internal/models"
	"ripple-chat/internal/utils"

	"github.com/google/uuid"
)

// SendMessageRequest represents a request to send a message over REST.
type SendMessageRequest struct {
	ConversationID uuid.UUID          `json:"conversationId"`
	Content        string             `json:"content"`
	ContentType    models.MessageType `json:"contentType,omitempty"`
	ReplyToID      *int64             `json:"replyToId,omitempty"`
}

// EditMessageRequest replaces the content of a sent message.
type EditMessageRequest struct {
	ConversationID uuid.UUID `json:"conversationId"`
	MessageID      int64     `json:"messageId"`
	Content        string    `json:"content"`
}

// StatusUpdateRequest records a delivered or read receipt.
type StatusUpdateRequest struct {
	ConversationID uuid.UUID            `json:"conversationId"`
	MessageID      int64                `json:"messageId"`
	Status         models.MessageStatus `json:"status"`
}

// HandleMessages routes message operations by HTTP method: send, page
// history, edit, delete.
func (s *Server) HandleMessages() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := middleware.GetUserIDFromContext(r.Context())
		if !ok {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		switch r.Method {
		case http.MethodPost:
			s.handleSendMessage(w, r, userID)
		case http.MethodGet:
			s.handleMessageHistory(w, r, userID)
		case http.MethodPut:
			s.handleEditMessage(w, r, userID)
		case http.MethodDelete:
			s.handleDeleteMessage(w, r, userID)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	}
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request, userID uuid.UUID) {
	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}

	message, err := s.Engine.SubmitMessage(&actors.SubmitMessageMsg{
		ConversationID: req.ConversationID,
		SenderID:       userID,
		Content:        req.Content,
		ContentType:    req.ContentType,
		ReplyToID:      req.ReplyToID,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, message)
}

func (s *Server) handleMessageHistory(w http.ResponseWriter, r *http.Request, userID uuid.UUID) {
	convID, err := uuid.Parse(r.URL.Query().Get("conversationId"))
	if err != nil {
		http.Error(w, "Invalid conversation ID", http.StatusBadRequest)
		return
	}
	beforeID, _ := strconv.ParseInt(r.URL.Query().Get("before"), 10, 64)
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	messages, err := s.Engine.FetchHistory(&actors.FetchHistoryMsg{
		ConversationID: convID,
		RequesterID:    userID,
		BeforeID:       beforeID,
		Limit:          limit,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, messages)
}

func (s *Server) handleEditMessage(w http.ResponseWriter, r *http.Request, userID uuid.UUID) {
	var req EditMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}

	message, err := s.Engine.EditMessage(&actors.EditMessageMsg{
		ConversationID: req.ConversationID,
		MessageID:      req.MessageID,
		EditorID:       userID,
		Content:        req.Content,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, message)
}

func (s *Server) handleDeleteMessage(w http.ResponseWriter, r *http.Request, userID uuid.UUID) {
	convID, err := uuid.Parse(r.URL.Query().Get("conversationId"))
	if err != nil {
		http.Error(w, "Invalid conversation ID", http.StatusBadRequest)
		return
	}
	messageID, err := strconv.ParseInt(r.URL.Query().Get("messageId"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid message ID", http.StatusBadRequest)
		return
	}

	// Capture the attachment ref before the tombstone clears it.
	original, err := s.Store.GetMessage(r.Context(), convID, messageID)
	if err != nil {
		respondError(w, err)
		return
	}

	message, err := s.Engine.DeleteMessage(&actors.DeleteMessageMsg{
		ConversationID: convID,
		MessageID:      messageID,
		RequesterID:    userID,
	})
	if err != nil {
		respondError(w, err)
		return
	}

	if original.FileRef != "" {
		s.Blob.Delete(original.FileRef)
	}
	respondJSON(w, http.StatusOK, message)
}

// HandleMessageStatus records a delivered or read receipt for the caller.
func (s *Server) HandleMessageStatus() http.HandlerFunc {
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

		var req StatusUpdateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request", http.StatusBadRequest)
			return
		}

		err := s.Engine.UpdateStatus(&actors.UpdateStatusMsg{
			ConversationID: req.ConversationID,
			MessageID:      req.MessageID,
			RecipientID:    userID,
			Status:         req.Status,
		})
		if err != nil {
			respondError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]bool{"updated": true})
	}
}

// HandleUnreadCount reports how many messages the caller has not read yet.
func (s *Server) HandleUnreadCount() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

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

		isMember, err := s.Store.IsMember(r.Context(), convID, userID)
		if err != nil {
			respondError(w, err)
			return
		}
		if !isMember {
			respondError(w, utils.NewNotAuthorizedError("user is not a member of this conversation"))
			return
		}

		count, err := s.Store.UnreadCount(r.Context(), convID, userID)
		if err != nil {
			respondError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]int{"unreadCount": count})
	}
}
