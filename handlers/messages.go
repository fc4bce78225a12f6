package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"murmur/chat-server/models"
	"murmur/chat-server/services"
	"murmur/chat-server/utils"
)

type MessageHandler struct {
	messages *services.MessageService
	logger   *utils.Logger
}

func NewMessageHandler(messages *services.MessageService, logger *utils.Logger) *MessageHandler {
	return &MessageHandler{
		messages: messages,
		logger:   logger,
	}
}

// History handles GET /msgs?user1=&user2=&limit=
func (mh *MessageHandler) History(c *gin.Context) {
	user1 := c.Query("user1")
	user2 := c.Query("user2")
	if user1 == "" || user2 == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "user1 and user2 parameters are required",
		})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if limit < 1 || limit > 500 {
		limit = 50
	}

	messages, err := mh.messages.History(c.Request.Context(), user1, user2, limit)
	if err != nil {
		mh.logger.Error("Failed to fetch history", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to fetch messages",
		})
		return
	}

	c.JSON(http.StatusOK, models.HistoryResponse{
		Count:    len(messages),
		Messages: messages,
	})
}
