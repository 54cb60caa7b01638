package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"wellness-chat/internal/observability"
	"wellness-chat/internal/repositories"
	"wellness-chat/internal/storage"
	"wellness-chat/internal/telemetry"
)

// AttachmentHandler streams raw request bodies into object storage.
type AttachmentHandler struct {
	groupRepo repositories.GroupRepository
	store     storage.ObjectStore
	maxBytes  int64
	now       func() time.Time
	audit     *telemetry.AuditEmitter
	log       *zap.Logger
}

func NewAttachmentHandler(groupRepo repositories.GroupRepository, store storage.ObjectStore, maxBytes int64, audit *telemetry.AuditEmitter, logger *zap.Logger) *AttachmentHandler {
	return &AttachmentHandler{
		groupRepo: groupRepo,
		store:     store,
		maxBytes:  maxBytes,
		now:       time.Now,
		audit:     audit,
		log:       logger,
	}
}

// Upload handles POST /groups/:group_id/attachments. The file name travels in
// X-Filename and the body is the raw file.
func (h *AttachmentHandler) Upload(c *gin.Context) {
	groupID := c.Param("group_id")
	name := c.GetHeader("X-Filename")
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing X-Filename header"})
		return
	}
	size := c.Request.ContentLength
	if h.maxBytes > 0 && size > h.maxBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "attachment too large"})
		return
	}
	if !requireMember(c, h.groupRepo, groupID, h.emitAudit) {
		return
	}

	contentType := c.ContentType()
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	body := c.Request.Body
	if h.maxBytes > 0 {
		body = http.MaxBytesReader(c.Writer, body, h.maxBytes)
	}

	key := storage.ObjectKey(groupID, name, h.now())
	url, err := h.store.Put(c.Request.Context(), key, body, size, contentType)
	if err != nil {
		status := http.StatusBadGateway
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			status = http.StatusRequestEntityTooLarge
		case errors.Is(err, storage.ErrStorageUnavailable):
			status = http.StatusServiceUnavailable
		}
		h.log.Warn("attachment upload failed", zap.String("group_id", groupID), zap.String("key", key), zap.Error(err))
		h.emitAudit(c, telemetry.LevelError, "attachment upload failed")
		c.JSON(status, gin.H{"error": "upload failed"})
		return
	}

	if size > 0 {
		observability.AddUploadBytes(size)
	}
	h.emitAudit(c, telemetry.LevelInfo, "Attachment uploaded")
	c.JSON(http.StatusCreated, gin.H{"url": url, "key": key})
}

func (h *AttachmentHandler) emitAudit(c *gin.Context, level, text string) {
	if h.audit == nil {
		return
	}
	h.audit.Emit(c.Request.Context(), level, text, requestIDFromContext(c), userIDFromContext(c))
}
