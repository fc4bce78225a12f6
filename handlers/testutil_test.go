package handlers

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"murmur/chat-server/db"
	"murmur/chat-server/models"
	"murmur/chat-server/services"
	"murmur/chat-server/utils"
)

// testServer assembles the full service graph over an in-process redis and
// sqlite, with the same routes main wires up.
type testServer struct {
	mr       *miniredis.Miniredis
	router   *gin.Engine
	presence *services.PresenceStateStore
	registry *services.SessionRegistry
	reaper   *services.StaleSessionReaper
	messages *services.MessageService
	hub      *services.Hub
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mr := miniredis.RunT(t)
	logger := utils.NewLogger()

	newClient := func() *redis.Client {
		c := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { c.Close() })
		return c
	}

	database, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	// One in-memory sqlite DB per connection; keep the pool at one.
	sqlDB, err := database.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(database))

	broadcaster := services.NewPresenceBroadcaster(newClient(), newClient(), logger)
	registry := services.NewSessionRegistry(newClient(), 60*time.Second, logger)
	presence := services.NewPresenceStateStore(newClient(), registry, broadcaster, logger)
	reaper := services.NewStaleSessionReaper(newClient(), presence, 0, logger)
	hub := services.NewHub(10*time.Second, logger)
	messages := services.NewMessageService(database, logger)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, broadcaster.Subscribe(ctx, func(tr models.PresenceTransition) {
		hub.BroadcastLocal(EventPresenceUpdate, tr)
	}))

	presenceHandler := NewPresenceHandler(presence, reaper, logger)
	messageHandler := NewMessageHandler(messages, logger)
	wsHandler := NewWSHandler(hub, presence, registry, messages, 50*time.Second, logger)

	router := gin.New()
	router.GET("/health", HealthCheck)
	router.GET("/ws", wsHandler.Serve)
	router.GET("/api/users/online", presenceHandler.GetOnlineUsers)
	router.GET("/api/users/:username/online", presenceHandler.GetStatus)
	router.GET("/msgs", messageHandler.History)
	router.POST("/admin/presence/sweep", presenceHandler.SweepAll)

	return &testServer{
		mr:       mr,
		router:   router,
		presence: presence,
		registry: registry,
		reaper:   reaper,
		messages: messages,
		hub:      hub,
	}
}
