package handlers

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"

	"ripple-chat/internal/engine/actors"
	"ripple-chat/internal/middleware"
	"ripple-chat/internal/models"
	"ripple-chat/internal/utils"

	"github.com/google/uuid"
)

// HandleFileUpload accepts a multipart upload and sends it as a file or
// image message in the conversation.
func (s *Server) HandleFileUpload() http.HandlerFunc {
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

		if err := r.ParseMultipartForm(s.UploadMaxBytes); err != nil {
			http.Error(w, "Invalid multipart form", http.StatusBadRequest)
			return
		}
		convID, err := uuid.Parse(r.FormValue("conversationId"))
		if err != nil {
			http.Error(w, "Invalid conversation ID", http.StatusBadRequest)
			return
		}

		file, header, err := r.FormFile("file")
		if err != nil {
			http.Error(w, "Missing file", http.StatusBadRequest)
			return
		}
		defer file.Close()

		ref, size, err := s.Blob.Save(file, s.UploadMaxBytes)
		if err != nil {
			respondError(w, utils.NewAppError(utils.ErrInvalidInput, err.Error(), err))
			return
		}

		contentType := models.TypeFile
		if strings.HasPrefix(header.Header.Get("Content-Type"), "image/") {
			contentType = models.TypeImage
		}
		caption := r.FormValue("caption")
		if caption == "" {
			caption = header.Filename
		}

		message, err := s.Engine.SubmitMessage(&actors.SubmitMessageMsg{
			ConversationID: convID,
			SenderID:       userID,
			Content:        caption,
			ContentType:    contentType,
			FileName:       header.Filename,
			FileSize:       size,
			FileRef:        ref,
		})
		if err != nil {
			// The message never landed, so the stored bytes are orphaned.
			s.Blob.Delete(ref)
			respondError(w, err)
			return
		}

		log.Printf("HTTP Handler: User %s uploaded %q (%d bytes) to conversation %s", userID, header.Filename, size, convID)
		respondJSON(w, http.StatusCreated, message)
	}
}

// HandleFileDownload streams a message attachment back to a member.
func (s *Server) HandleFileDownload() http.HandlerFunc {
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
		messageID, err := strconv.ParseInt(r.URL.Query().Get("messageId"), 10, 64)
		if err != nil {
			http.Error(w, "Invalid message ID", http.StatusBadRequest)
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

		message, err := s.Store.GetMessage(r.Context(), convID, messageID)
		if err != nil {
			respondError(w, err)
			return
		}
		if message.FileRef == "" {
			respondError(w, utils.NewNotFoundError("attachment"))
			return
		}

		reader, err := s.Blob.Open(message.FileRef)
		if err != nil {
			respondError(w, utils.NewNotFoundError("attachment"))
			return
		}
		defer reader.Close()

		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", message.FileName))
		w.Header().Set("Content-Type", "application/octet-stream")
		if _, err := io.Copy(w, reader); err != nil {
			log.Printf("HTTP Handler: attachment stream failed for message %d: %v", messageID, err)
		}
	}
}
