package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"murmur/chat-server/db"
	"murmur/chat-server/models"
	"murmur/chat-server/utils"
)

func newMessageService(t *testing.T) *MessageService {
	t.Helper()

	database, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	// One in-memory sqlite DB per connection; keep the pool at one.
	sqlDB, err := database.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(database))

	return NewMessageService(database, utils.NewLogger())
}

func TestRecordSharesConversationAcrossDirections(t *testing.T) {
	ms := newMessageService(t)
	ctx := context.Background()

	first, err := ms.Record(ctx, models.ChatMessage{Sender: "alice", Receiver: "bob", Text: "hi"})
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)

	second, err := ms.Record(ctx, models.ChatMessage{Sender: "bob", Receiver: "alice", Text: "hello"})
	require.NoError(t, err)

	assert.Equal(t, first.ConversationID, second.ConversationID)
}

func TestHistoryReturnsChronologicalOrder(t *testing.T) {
	ms := newMessageService(t)
	ctx := context.Background()

	_, err := ms.Record(ctx, models.ChatMessage{Sender: "alice", Receiver: "bob", Text: "first"})
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	_, err = ms.Record(ctx, models.ChatMessage{Sender: "bob", Receiver: "alice", Text: "second"})
	require.NoError(t, err)

	// Either participant order resolves to the same conversation.
	messages, err := ms.History(ctx, "bob", "alice", 50)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "first", messages[0].Text)
	assert.Equal(t, "second", messages[1].Text)
}

func TestHistoryRespectsLimit(t *testing.T) {
	ms := newMessageService(t)
	ctx := context.Background()

	for _, text := range []string{"one", "two", "three"} {
		_, err := ms.Record(ctx, models.ChatMessage{Sender: "alice", Receiver: "bob", Text: text})
		require.NoError(t, err)
		time.Sleep(5 * time.Millisecond)
	}

	messages, err := ms.History(ctx, "alice", "bob", 2)
	require.NoError(t, err)
	assert.Len(t, messages, 2)
}

func TestHistoryForUnknownPairIsEmpty(t *testing.T) {
	ms := newMessageService(t)

	messages, err := ms.History(context.Background(), "alice", "nobody", 50)
	require.NoError(t, err)
	assert.Empty(t, messages)
}
