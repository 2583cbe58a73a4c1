package handlers

import (
	"log"
	"net/http"

	"ripple-chat/internal/websocket"

	"github.com/google/uuid"
	ws "github.com/gorilla/websocket"
)

// HandleWebSocket authenticates and admits a live connection for one
// conversation. Credential and membership are checked before the upgrade so
// a rejected client gets a plain HTTP status instead of a dropped socket.
func (s *Server) HandleWebSocket() http.HandlerFunc {
	upgrader := ws.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(s.AllowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range s.AllowedOrigins {
				if allowed == "*" || allowed == origin {
					return true
				}
			}
			return false
		},
	}

	return func(w http.ResponseWriter, r *http.Request) {
		credential := r.URL.Query().Get("token")
		convID, err := uuid.Parse(r.URL.Query().Get("conversationId"))
		if err != nil {
			http.Error(w, "Invalid conversation ID", http.StatusBadRequest)
			return
		}

		userID, err := s.Gate.Authorize(r.Context(), credential, convID)
		if err != nil {
			log.Printf("WebSocket connection rejected: %v", err)
			respondError(w, err)
			return
		}

		user, err := s.Store.GetUser(r.Context(), userID)
		if err != nil {
			respondError(w, err)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("WebSocket upgrade failed for User %s: %v", userID, err)
			return
		}
		log.Printf("WebSocket connection upgraded for User %s", userID)

		client := websocket.NewClient(conn, s.Engine, s.Gate, userID, user.Username)
		admission, err := s.Gate.Admit(r.Context(), credential, convID, client)
		if err != nil {
			// The token was valid moments ago; losing membership in between
			// is the only way to land here.
			log.Printf("WebSocket admission failed for User %s: %v", userID, err)
			conn.Close()
			return
		}
		client.Bind(admission)

		go client.WritePump()
		go client.ReadPump()
	}
}
