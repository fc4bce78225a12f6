package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"murmur/chat-server/config"
	"murmur/chat-server/db"
	"murmur/chat-server/handlers"
	"murmur/chat-server/middleware"
	"murmur/chat-server/models"
	"murmur/chat-server/services"
	"murmur/chat-server/utils"
)

func main() {
	// Load configuration
	cfg := config.LoadConfig()

	// Initialize logger
	logger := utils.NewLogger()

	// Connect to database
	database, err := db.Connect(cfg)
	if err != nil {
		logger.Fatal("Failed to connect to database", "error", err)
	}

	// Initialize the three Redis connections (general, pub, sub)
	conns, err := services.NewRedisConns(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", "error", err)
	}
	defer conns.Close()

	// Initialize services
	broadcaster := services.NewPresenceBroadcaster(conns.Pub, conns.Sub, logger)
	registry := services.NewSessionRegistry(conns.Client, cfg.SessionTTL, logger)
	presence := services.NewPresenceStateStore(conns.Client, registry, broadcaster, logger)
	reaper := services.NewStaleSessionReaper(conns.Client, presence, cfg.SweepInterval, logger)
	hub := services.NewHub(cfg.WriteWait, logger)
	messages := services.NewMessageService(database, logger)

	// Every process forwards received presence transitions to its own
	// locally-connected clients.
	subCtx, subCancel := context.WithCancel(context.Background())
	defer subCancel()
	err = broadcaster.Subscribe(subCtx, func(transition models.PresenceTransition) {
		hub.BroadcastLocal(handlers.EventPresenceUpdate, transition)
	})
	if err != nil {
		logger.Fatal("Failed to subscribe to presence channel", "error", err)
	}

	// Start the periodic stale session reaper
	reaper.Start()

	// Initialize handlers
	presenceHandler := handlers.NewPresenceHandler(presence, reaper, logger)
	messageHandler := handlers.NewMessageHandler(messages, logger)
	wsHandler := handlers.NewWSHandler(hub, presence, registry, messages, cfg.PongWait, logger)

	// Setup Gin router
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(logger))
	router.Use(middleware.CORS())

	// Health check endpoint
	router.GET("/health", handlers.HealthCheck)

	// WebSocket endpoint; JWT auth only when a secret is configured
	if cfg.JWTSecret != "" {
		router.GET("/ws", middleware.JWTAuth(cfg.JWTSecret), wsHandler.Serve)
	} else {
		router.GET("/ws", wsHandler.Serve)
	}

	// Presence query routes
	api := router.Group("/api")
	{
		api.GET("/users/online", presenceHandler.GetOnlineUsers)
		api.GET("/users/:username/online", presenceHandler.GetStatus)
	}

	// Message history
	router.GET("/msgs", messageHandler.History)

	// Maintenance routes
	admin := router.Group("/admin")
	{
		admin.POST("/presence/sweep", presenceHandler.SweepAll)
	}

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("Starting chat server", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", "error", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Stop background work before closing the store connections
	reaper.Stop()
	subCancel()

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", "error", err)
	}

	logger.Info("Server exited")
}
