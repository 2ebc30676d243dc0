package handlers

import (
	"errors"
	"log"
	"net/http"

	"vitachat-backend/middleware"
	"vitachat-backend/models"
	"vitachat-backend/service"

	"github.com/gin-gonic/gin"
)

// ChatHandler handles HTTP requests for chat turns and conversation history
type ChatHandler struct {
	chatService *service.ChatService
}

// NewChatHandler creates a new chat handler
func NewChatHandler(chatService *service.ChatService) *ChatHandler {
	return &ChatHandler{chatService: chatService}
}

// ChatRequest represents the request body for a chat turn
type ChatRequest struct {
	Message string `json:"message"`
	Age     int    `json:"age"`
	Gender  string `json:"gender"`
}

const invalidChatRequestMessage = "Please enter your symptom, age, and gender."

// Chat handles POST /api/chat. On success the response is a plain-text
// stream: reply fragments in generation order, then the __CONV_ID__ marker.
func (h *ChatHandler) Chat(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.String(http.StatusBadRequest, invalidChatRequestMessage)
		return
	}

	result, err := h.chatService.StartChatTurn(c.Request.Context(), service.StartChatTurnRequest{
		UserID:  userID,
		Message: req.Message,
		Age:     req.Age,
		Gender:  req.Gender,
	})
	if err != nil {
		if errors.Is(err, service.ErrInvalidRequest) {
			c.String(http.StatusBadRequest, invalidChatRequestMessage)
			return
		}
		log.Printf("Failed to start chat turn: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "CHAT_START_FAILED",
				"message": "Failed to start chat",
			},
		})
		return
	}

	// Headers are committed here; everything after this point is in-band.
	c.Header("Content-Type", "text/plain; charset=utf-8")
	c.Status(http.StatusOK)

	emit := func(fragment string) error {
		if _, err := c.Writer.WriteString(fragment); err != nil {
			return err
		}
		c.Writer.Flush()
		return nil
	}

	// Relay handles and logs its own failures; the stream cannot carry a
	// transport-level error anymore.
	_ = result.Turn.Relay(c.Request.Context(), emit)
}

// ChatPage handles GET /api/chat: the user's history plus cached profile.
func (h *ChatHandler) ChatPage(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	result, err := h.chatService.ChatPage(c.Request.Context(), service.ChatPageRequest{UserID: userID})
	if err != nil {
		log.Printf("Failed to load chat page: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "CHAT_PAGE_FAILED",
				"message": "Failed to load conversation history",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"logs":        emptyIfNil(result.Conversations),
		"user_age":    result.Age,
		"user_gender": result.Gender,
	})
}

// ConversationActionRequest references a persisted conversation by the ID the
// client read from the completion marker.
type ConversationActionRequest struct {
	ConvID int64 `json:"conv_id"`
}

// SendEmail handles POST /api/send_email
func (h *ChatHandler) SendEmail(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var req ConversationActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid request"})
		return
	}

	result, err := h.chatService.EmailConversation(c.Request.Context(), service.EmailConversationRequest{
		UserID:         userID,
		ConversationID: req.ConvID,
	})
	if err != nil {
		if errors.Is(err, service.ErrConversationNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "Conversation not found"})
			return
		}
		log.Printf("Failed to email conversation %d: %v", req.ConvID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Failed to send email"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": result.Sent})
}

// SaveNote handles POST /api/save_note
func (h *ChatHandler) SaveNote(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var req ConversationActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid request"})
		return
	}

	_, err := h.chatService.SaveNote(c.Request.Context(), service.SaveNoteRequest{
		UserID:         userID,
		ConversationID: req.ConvID,
	})
	if err != nil {
		if errors.Is(err, service.ErrConversationNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "Conversation not found"})
			return
		}
		log.Printf("Failed to save conversation %d: %v", req.ConvID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Failed to save conversation"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// History handles GET /api/history?q=<term>
func (h *ChatHandler) History(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	result, err := h.chatService.History(c.Request.Context(), service.HistoryRequest{
		UserID:     userID,
		SearchTerm: c.Query("q"),
	})
	if err != nil {
		log.Printf("Failed to list history: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "HISTORY_FAILED",
				"message": "Failed to fetch history",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"history": emptyIfNil(result.Conversations)})
}

func emptyIfNil(conversations []*models.Conversation) []*models.Conversation {
	if conversations == nil {
		return []*models.Conversation{}
	}
	return conversations
}
