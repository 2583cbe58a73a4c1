package main

import (
	stdctx "context"
	"fmt"
	"log"
	"net/http"
	"time"

	"ripple-chat/internal/blob"
	"ripple-chat/internal/config"
	"ripple-chat/internal/crypt"
	"ripple-chat/internal/database"
	"ripple-chat/internal/engine"
	"ripple-chat/internal/engine/actors"
	"ripple-chat/internal/handlers"
	"ripple-chat/internal/middleware"
	"ripple-chat/internal/presence"
	"ripple-chat/internal/registry"
	"ripple-chat/internal/session"
	"ripple-chat/internal/utils"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	middleware.Configure(cfg.Auth.JWTSecret, time.Duration(cfg.Auth.TokenTTLHrs)*time.Hour)
	metrics := utils.NewMetricsCollector()

	// Storage: PostgreSQL when configured, in-memory otherwise.
	var store database.Store
	if cfg.Database.URI != "" {
		pg, err := database.NewPostgresStore(cfg.Database.URI)
		if err != nil {
			log.Fatalf("Failed to connect to PostgreSQL: %v", err)
		}
		if err := pg.InitializeTables(stdctx.Background()); err != nil {
			log.Fatalf("Failed to initialize tables: %v", err)
		}
		store = pg
	} else {
		log.Println("DATABASE_URL not set, using in-memory store")
		store = database.NewMemoryStore()
	}
	defer store.Close(stdctx.Background())

	// Last-seen timestamps survive restarts when Redis is configured.
	var lastSeen presence.LastSeenStore
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(stdctx.Background()).Err(); err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		log.Println("Successfully connected to Redis!")
		lastSeen = presence.NewRedisLastSeen(client)
	} else {
		lastSeen = presence.NewMemoryLastSeen()
	}

	cipher, err := crypt.NewCipher(cfg.MessageKey)
	if err != nil {
		log.Fatalf("Failed to initialize message cipher: %v", err)
	}
	if cipher.Enabled() {
		log.Println("Message content encryption enabled")
	}

	blobStore, err := blob.NewDiskStore(cfg.Upload.Dir)
	if err != nil {
		log.Fatalf("Failed to initialize upload store: %v", err)
	}

	reg := registry.NewRegistry()
	tracker := presence.NewTracker(reg, lastSeen)

	system := actor.NewActorSystem()
	deliveryEngine := engine.NewEngine(system, store, reg, cipher, metrics)
	gate := session.NewGate(session.JWTVerifier{}, store, reg, metrics)

	server := handlers.NewServer(system, deliveryEngine, store, reg, tracker, gate, blobStore, metrics)
	server.AllowedOrigins = cfg.AllowedOrigins
	server.UploadMaxBytes = cfg.Upload.MaxBytes

	// Presence edges fan out to every conversation the user belongs to.
	tracker.OnTransition(func(userID uuid.UUID, online bool) {
		var lastSeenAt *time.Time
		if !online {
			if t, ok := tracker.LastSeen(userID); ok {
				lastSeenAt = &t
			}
		}
		payload := actors.NewPresencePayload(userID, online, lastSeenAt)

		conversations, err := store.ListConversationsFor(stdctx.Background(), userID)
		if err != nil {
			log.Printf("Presence broadcast skipped for user %s: %v", userID, err)
			return
		}
		for _, conv := range conversations {
			for _, entry := range reg.ConnectionsInScope(conv.ID) {
				if entry.UserID == userID {
					continue
				}
				if err := entry.Conn.Push(payload); err != nil {
					log.Printf("Presence push failed for user %s: %v", entry.UserID, err)
				}
			}
		}
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/health", server.HandleHealth())
	mux.HandleFunc("/user/register", server.HandleUserRegistration())
	mux.HandleFunc("/user/login", server.HandleUserLogin())
	mux.HandleFunc("/user/profile", server.HandleUserProfile())
	mux.HandleFunc("/users", server.HandleListUsers())
	mux.HandleFunc("/users/search", server.HandleSearchUsers())
	mux.HandleFunc("/conversations", server.HandleConversations())
	mux.HandleFunc("/conversations/direct", server.HandleDirectConversation())
	mux.HandleFunc("/conversations/members", server.HandleConversationMembers())
	mux.HandleFunc("/messages", server.HandleMessages())
	mux.HandleFunc("/messages/status", server.HandleMessageStatus())
	mux.HandleFunc("/messages/unread", server.HandleUnreadCount())
	mux.HandleFunc("/files/upload", server.HandleFileUpload())
	mux.HandleFunc("/files/download", server.HandleFileDownload())
	mux.HandleFunc("/ws", server.HandleWebSocket())
	if cfg.Server.MetricsEnabled {
		mux.Handle("/metrics", metrics.Handler())
	}

	corsConfig := middleware.DefaultCORSConfig(cfg.AllowedOrigins)
	handler := middleware.CORSMiddleware(corsConfig)(middleware.AuthMiddleware(mux))

	serverAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	log.Printf("Starting server on %s", serverAddr)
	if err := http.ListenAndServe(serverAddr, handler); err != nil {
		log.Fatalf("Server failed to start: %v", err)
	}
}
