package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"ripple-chat/internal/blob"
	"ripple-chat/internal/database"
	"ripple-chat/internal/engine"
	"ripple-chat/internal/presence"
	"ripple-chat/internal/registry"
	"ripple-chat/internal/session"
	"ripple-chat/internal/utils"

	"github.com/asynkron/protoactor-go/actor"
)

// Server holds all server dependencies, including the actor system and engine
type Server struct {
	System         *actor.ActorSystem
	Context        *actor.RootContext
	Engine         *engine.Engine
	Store          database.Store
	Registry       *registry.Registry
	Presence       *presence.Tracker
	Gate           *session.Gate
	Blob           blob.Store
	Metrics        *utils.MetricsCollector
	RequestTimeout time.Duration
	AllowedOrigins []string
	UploadMaxBytes int64
}

// NewServer creates a new Server instance with the given components
func NewServer(
	system *actor.ActorSystem,
	eng *engine.Engine,
	store database.Store,
	reg *registry.Registry,
	tracker *presence.Tracker,
	gate *session.Gate,
	blobStore blob.Store,
	metrics *utils.MetricsCollector,
) *Server {
	return &Server{
		System:         system,
		Context:        system.Root,
		Engine:         eng,
		Store:          store,
		Registry:       reg,
		Presence:       tracker,
		Gate:           gate,
		Blob:           blobStore,
		Metrics:        metrics,
		RequestTimeout: 5 * time.Second, // Default timeout for actor requests
		UploadMaxBytes: 10 << 20,
	}
}

func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// respondError maps AppErrors onto HTTP statuses; anything else is a 500.
func respondError(w http.ResponseWriter, err error) {
	var appErr *utils.AppError
	if errors.As(err, &appErr) {
		respondJSON(w, utils.AppErrorToHTTPStatus(appErr.Code), map[string]string{
			"code":  appErr.Code,
			"error": appErr.Message,
		})
		return
	}
	respondJSON(w, http.StatusInternalServerError, map[string]string{
		"code":  utils.ErrDatabase,
		"error": "internal server error",
	})
}

// HandleHealth reports basic liveness plus a few counters.
func (s *Server) HandleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"status":        "healthy",
			"uptimeSeconds": int(s.Metrics.Uptime().Seconds()),
		})
	}
}
