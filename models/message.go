package models

import (
	"time"

	"github.com/google/uuid"
)

// Conversation groups the messages exchanged between two users. The
// participant key is the sorted pair of usernames, so either order of
// (sender, receiver) resolves to the same conversation.
type Conversation struct {
	ID             uuid.UUID `json:"id" gorm:"type:uuid;primary_key"`
	ParticipantKey string    `json:"participant_key" gorm:"uniqueIndex;not null"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`

	// Relations
	Messages []Message `json:"messages,omitempty" gorm:"foreignKey:ConversationID"`
}

// Message is one chat message within a conversation.
type Message struct {
	ID             uuid.UUID `json:"id" gorm:"type:uuid;primary_key"`
	ConversationID uuid.UUID `json:"conversation_id" gorm:"type:uuid;not null;index"`
	Sender         string    `json:"sender" gorm:"not null"`
	Receiver       string    `json:"receiver" gorm:"not null"`
	Text           string    `json:"text" gorm:"not null"`
	CreatedAt      time.Time `json:"created_at"`
}

// ChatMessage is the wire form of a relayed chat message.
type ChatMessage struct {
	Sender   string `json:"sender"`
	Receiver string `json:"receiver"`
	Text     string `json:"text"`
}

type HistoryResponse struct {
	Count    int       `json:"count"`
	Messages []Message `json:"messages"`
}
