package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"wellness-chat/internal/models"
	"wellness-chat/internal/observability"
	"wellness-chat/internal/repositories"
	"wellness-chat/internal/telemetry"
)

// MessageHandler serves a group's message log.
type MessageHandler struct {
	groupRepo   repositories.GroupRepository
	messageRepo repositories.GroupMessageRepository
	userRepo    repositories.UserRepository
	notifier    ChangeNotifier
	audit       *telemetry.AuditEmitter
	log         *zap.Logger
}

func NewMessageHandler(groupRepo repositories.GroupRepository, messageRepo repositories.GroupMessageRepository, userRepo repositories.UserRepository, notifier ChangeNotifier, audit *telemetry.AuditEmitter, logger *zap.Logger) *MessageHandler {
	return &MessageHandler{
		groupRepo:   groupRepo,
		messageRepo: messageRepo,
		userRepo:    userRepo,
		notifier:    notifier,
		audit:       audit,
		log:         logger,
	}
}

// ListMessages handles GET /groups/:group_id/messages. Reading does not
// require membership.
func (h *MessageHandler) ListMessages(c *gin.Context) {
	groupID := c.Param("group_id")
	if _, err := h.groupRepo.GetGroup(c.Request.Context(), groupID); err != nil {
		if errors.Is(err, repositories.ErrGroupNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "group not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load group"})
		return
	}

	msgs, err := h.messageRepo.ListGroupMessages(c.Request.Context(), groupID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// PostMessage handles POST /groups/:group_id/messages.
func (h *MessageHandler) PostMessage(c *gin.Context) {
	groupID := c.Param("group_id")

	var req struct {
		Text          string `json:"text"`
		AttachmentURL string `json:"attachment_url"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.emitAudit(c, telemetry.LevelError, "invalid request payload")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	text, attachmentURL, err := models.ValidateMessage(req.Text, req.AttachmentURL)
	if err != nil {
		h.emitAudit(c, telemetry.LevelError, "empty message")
		respondValidation(c, err)
		return
	}

	if !requireMember(c, h.groupRepo, groupID, h.emitAudit) {
		return
	}

	userID, _ := currentUser(c)
	sender, err := h.userRepo.GetUser(c.Request.Context(), userID)
	if err != nil {
		h.log.Error("load sender", zap.String("user_id", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load sender"})
		return
	}

	msg, err := h.messageRepo.CreateGroupMessage(c.Request.Context(), models.Message{
		GroupID:           groupID,
		Text:              text,
		SenderID:          sender.ID,
		SenderEmail:       sender.Email,
		SenderDisplayName: sender.DisplayName,
		SenderAvatarURL:   sender.AvatarURL,
		AttachmentURL:     attachmentURL,
	})
	if err != nil {
		h.log.Error("store message", zap.String("group_id", groupID), zap.Error(err))
		h.emitAudit(c, telemetry.LevelError, "internal error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store message"})
		return
	}

	observability.IncMessageSent(msg.Text, msg.AttachmentURL)
	h.notifier.MessageAdded(c.Request.Context(), msg)
	h.emitAudit(c, telemetry.LevelInfo, "Group message sent")
	c.JSON(http.StatusCreated, msg)
}

// MarkRead handles POST /groups/:group_id/messages/:message_id/read.
func (h *MessageHandler) MarkRead(c *gin.Context) {
	groupID := c.Param("group_id")
	messageID := c.Param("message_id")
	userID, _ := currentUser(c)

	msg, err := h.messageRepo.GetGroupMessage(c.Request.Context(), messageID)
	if errors.Is(err, repositories.ErrMessageNotFound) || (err == nil && msg.GroupID != groupID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load message"})
		return
	}

	added, err := h.messageRepo.MarkRead(c.Request.Context(), messageID, userID)
	if err != nil {
		h.log.Warn("mark read", zap.String("message_id", messageID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to mark read"})
		return
	}
	if added {
		observability.IncReadReceipt()
		h.notifier.MessageRead(c.Request.Context(), groupID, messageID, userID)
	}
	c.Status(http.StatusNoContent)
}

func (h *MessageHandler) emitAudit(c *gin.Context, level, text string) {
	if h.audit == nil {
		return
	}
	h.audit.Emit(c.Request.Context(), level, text, requestIDFromContext(c), userIDFromContext(c))
}
