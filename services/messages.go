package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"murmur/chat-server/models"
	"murmur/chat-server/utils"
)

// MessageService records relayed chat messages per conversation. Presence
// correctness never depends on it: a persistence failure is reported to the
// caller, which logs and keeps relaying.
type MessageService struct {
	db     *gorm.DB
	logger *utils.Logger
}

func NewMessageService(db *gorm.DB, logger *utils.Logger) *MessageService {
	return &MessageService{
		db:     db,
		logger: logger,
	}
}

// conversationKey builds the canonical key for a participant pair, so either
// order of (sender, receiver) resolves to the same conversation.
func conversationKey(a, b string) string {
	participants := []string{a, b}
	sort.Strings(participants)
	return strings.Join(participants, ":")
}

// Record appends a message to the conversation between sender and receiver,
// creating the conversation on first contact.
func (ms *MessageService) Record(ctx context.Context, msg models.ChatMessage) (*models.Message, error) {
	key := conversationKey(msg.Sender, msg.Receiver)

	var conversation models.Conversation
	err := ms.db.WithContext(ctx).
		Where(models.Conversation{ParticipantKey: key}).
		Attrs(models.Conversation{ID: uuid.New()}).
		FirstOrCreate(&conversation).Error
	if err != nil {
		return nil, fmt.Errorf("failed to resolve conversation: %w", err)
	}

	record := models.Message{
		ID:             uuid.New(),
		ConversationID: conversation.ID,
		Sender:         msg.Sender,
		Receiver:       msg.Receiver,
		Text:           msg.Text,
	}
	if err := ms.db.WithContext(ctx).Create(&record).Error; err != nil {
		return nil, fmt.Errorf("failed to record message: %w", err)
	}

	ms.logger.Debug("Recorded message", "sender", msg.Sender, "receiver", msg.Receiver)
	return &record, nil
}

// History returns the conversation between two users in chronological order,
// capped at limit. An unknown pair yields an empty history, not an error.
func (ms *MessageService) History(ctx context.Context, userA, userB string, limit int) ([]models.Message, error) {
	key := conversationKey(userA, userB)

	var conversation models.Conversation
	err := ms.db.WithContext(ctx).
		Where(models.Conversation{ParticipantKey: key}).
		First(&conversation).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return []models.Message{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up conversation: %w", err)
	}

	var messages []models.Message
	err = ms.db.WithContext(ctx).
		Where("conversation_id = ?", conversation.ID).
		Order("created_at ASC").
		Limit(limit).
		Find(&messages).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch messages: %w", err)
	}
	return messages, nil
}
