package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"wellness-chat/internal/middleware"
	"wellness-chat/internal/models"
	"wellness-chat/internal/observability"
)

const requestIDContextKey = observability.RequestIDKey

// ChangeNotifier pushes committed changes to live subscribers.
type ChangeNotifier interface {
	GroupsChanged(ctx context.Context)
	GroupChanged(ctx context.Context, groupID string)
	MembershipChanged(ctx context.Context, groupID, userID string, joined bool)
	MessageAdded(ctx context.Context, msg models.Message)
	MessageRead(ctx context.Context, groupID, messageID, userID string)
	UsersChanged(ctx context.Context)
}

func requestIDFromContext(c *gin.Context) string {
	if val, ok := c.Get(requestIDContextKey); ok {
		if id, ok := val.(string); ok && id != "" {
			return id
		}
	}

	requestID := c.GetHeader(observability.RequestIDHeader)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Set(requestIDContextKey, requestID)
	return requestID
}

func userIDFromContext(c *gin.Context) *string {
	if userID := c.GetString(middleware.UserIDKey); userID != "" {
		return &userID
	}
	if header := c.GetHeader("X-User-ID"); header != "" {
		return &header
	}
	return nil
}

func currentUser(c *gin.Context) (string, string) {
	return c.GetString(middleware.UserIDKey), c.GetString(middleware.UserEmailKey)
}

func respondValidation(c *gin.Context, err error) bool {
	var ve *models.ValidationError
	if !errors.As(err, &ve) {
		return false
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": ve.Error(), "field": ve.Field})
	return true
}
