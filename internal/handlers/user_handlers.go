package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"ripple-chat/internal/middleware"
	"ripple-chat/internal/models"
	"ripple-chat/internal/utils"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// RegisterUserRequest represents a request to register a new user
type RegisterUserRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest represents a request to log in a user
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse represents a response to a login request
type LoginResponse struct {
	Success bool   `json:"success"`
	Token   string `json:"token,omitempty"`
	Error   string `json:"error,omitempty"`
	UserID  string `json:"userId"`
}

// UserView is the public shape of a user, including live presence.
type UserView struct {
	ID       uuid.UUID  `json:"id"`
	Username string     `json:"username"`
	Email    string     `json:"email,omitempty"`
	Online   bool       `json:"online"`
	LastSeen *time.Time `json:"lastSeen,omitempty"`
}

// HandleUserRegistration handles requests to register a new user
func (s *Server) HandleUserRegistration() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var req RegisterUserRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request", http.StatusBadRequest)
			return
		}
		if req.Username == "" || req.Email == "" || req.Password == "" {
			respondError(w, utils.NewAppError(utils.ErrInvalidInput, "username, email and password are required", nil))
			return
		}

		hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			http.Error(w, "Failed to process password", http.StatusInternalServerError)
			return
		}

		user := &models.User{
			ID:             uuid.New(),
			Username:       req.Username,
			Email:          req.Email,
			HashedPassword: string(hashed),
			IsActive:       true,
			CreatedAt:      time.Now(),
		}
		if err := s.Store.SaveUser(r.Context(), user); err != nil {
			respondError(w, err)
			return
		}

		log.Printf("HTTP Handler: Registered user %s (%s)", user.Username, user.ID)
		respondJSON(w, http.StatusCreated, &UserView{
			ID:       user.ID,
			Username: user.Username,
			Email:    user.Email,
		})
	}
}

// HandleUserLogin handles requests to log in a user
func (s *Server) HandleUserLogin() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var req LoginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request", http.StatusBadRequest)
			return
		}

		log.Printf("HTTP Handler: Received login request for email: %s", req.Email)

		user, err := s.Store.GetUserByEmail(r.Context(), req.Email)
		if err != nil {
			respondJSON(w, http.StatusUnauthorized, &LoginResponse{Success: false, Error: "Invalid credentials"})
			return
		}
		if err := bcrypt.CompareHashAndPassword([]byte(user.HashedPassword), []byte(req.Password)); err != nil {
			respondJSON(w, http.StatusUnauthorized, &LoginResponse{Success: false, Error: "Invalid credentials"})
			return
		}

		token, err := middleware.GenerateToken(user.ID)
		if err != nil {
			log.Printf("HTTP Handler: Failed to generate token: %v", err)
			http.Error(w, "Failed to generate token", http.StatusInternalServerError)
			return
		}

		respondJSON(w, http.StatusOK, &LoginResponse{
			Success: true,
			Token:   token,
			UserID:  user.ID.String(),
		})
	}
}

// HandleListUsers returns every registered user with live presence attached.
func (s *Server) HandleListUsers() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		users, err := s.Store.ListUsers(r.Context())
		if err != nil {
			respondError(w, err)
			return
		}

		views := make([]*UserView, 0, len(users))
		for _, user := range users {
			views = append(views, s.userView(user))
		}
		respondJSON(w, http.StatusOK, views)
	}
}

// HandleSearchUsers finds users by username fragment, excluding the caller.
func (s *Server) HandleSearchUsers() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		callerID, ok := middleware.GetUserIDFromContext(r.Context())
		if !ok {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		query := strings.TrimSpace(r.URL.Query().Get("q"))
		if len(query) < 2 {
			respondError(w, utils.NewAppError(utils.ErrInvalidInput, "search query must be at least 2 characters", nil))
			return
		}

		users, err := s.Store.SearchUsers(r.Context(), query, callerID, 20)
		if err != nil {
			respondError(w, err)
			return
		}

		views := make([]*UserView, 0, len(users))
		for _, user := range users {
			views = append(views, s.userView(user))
		}
		respondJSON(w, http.StatusOK, views)
	}
}

// HandleUserProfile returns one user by id.
func (s *Server) HandleUserProfile() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		userID, err := uuid.Parse(r.URL.Query().Get("userId"))
		if err != nil {
			http.Error(w, "Invalid user ID", http.StatusBadRequest)
			return
		}

		user, err := s.Store.GetUser(r.Context(), userID)
		if err != nil {
			respondError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, s.userView(user))
	}
}

func (s *Server) userView(user *models.User) *UserView {
	view := &UserView{
		ID:       user.ID,
		Username: user.Username,
		Online:   s.Presence.IsOnline(user.ID),
	}
	if !view.Online {
		if lastSeen, ok := s.Presence.LastSeen(user.ID); ok {
			view.LastSeen = &lastSeen
		}
	}
	return view
}
