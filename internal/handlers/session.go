package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"wellness-chat/internal/auth"
	"wellness-chat/internal/models"
	"wellness-chat/internal/repositories"
	"wellness-chat/internal/telemetry"
)

type IdentityVerifier interface {
	Verify(token string) (auth.Identity, error)
}

type SessionIssuer interface {
	Issue(userID, email string) (string, time.Time, error)
}

// SessionHandler exchanges identity provider tokens for service sessions.
type SessionHandler struct {
	verifier IdentityVerifier
	issuer   SessionIssuer
	users    repositories.UserRepository
	notifier ChangeNotifier
	audit    *telemetry.AuditEmitter
	log      *zap.Logger
}

func NewSessionHandler(verifier IdentityVerifier, issuer SessionIssuer, users repositories.UserRepository, notifier ChangeNotifier, audit *telemetry.AuditEmitter, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{
		verifier: verifier,
		issuer:   issuer,
		users:    users,
		notifier: notifier,
		audit:    audit,
		log:      logger,
	}
}

type signInResponse struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expires_at"`
	User      models.User `json:"user"`
}

// SignIn handles POST /auth/signin.
func (h *SessionHandler) SignIn(c *gin.Context) {
	var req struct {
		IDToken string `json:"id_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.emitAudit(c, telemetry.LevelError, "invalid request payload")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	identity, err := h.verifier.Verify(req.IDToken)
	if err != nil {
		h.emitAudit(c, telemetry.LevelError, "identity rejected")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "identity rejected"})
		return
	}

	user, err := h.users.UpsertOnline(c.Request.Context(), models.User{
		ID:          identity.Subject,
		Email:       identity.Email,
		DisplayName: identity.DisplayName(),
		AvatarURL:   identity.Picture,
		Online:      true,
	})
	if err != nil {
		h.log.Error("upsert user", zap.String("user_id", identity.Subject), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store user"})
		return
	}

	token, expiresAt, err := h.issuer.Issue(user.ID, user.Email)
	if err != nil {
		h.log.Error("issue session", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue session"})
		return
	}

	h.notifier.UsersChanged(c.Request.Context())
	h.emitAuditFor(c, telemetry.LevelInfo, "User signed in", user.ID)
	c.JSON(http.StatusOK, signInResponse{Token: token, ExpiresAt: expiresAt, User: user})
}

// SignOut handles POST /auth/signout.
func (h *SessionHandler) SignOut(c *gin.Context) {
	userID, _ := currentUser(c)
	err := h.users.SetOnline(c.Request.Context(), userID, false)
	if err != nil && !errors.Is(err, repositories.ErrUserNotFound) {
		h.log.Error("mark offline", zap.String("user_id", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to sign out"})
		return
	}

	h.notifier.UsersChanged(c.Request.Context())
	h.emitAudit(c, telemetry.LevelInfo, "User signed out")
	c.Status(http.StatusNoContent)
}

// Me handles GET /auth/me.
func (h *SessionHandler) Me(c *gin.Context) {
	userID, _ := currentUser(c)
	user, err := h.users.GetUser(c.Request.Context(), userID)
	if errors.Is(err, repositories.ErrUserNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load user"})
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *SessionHandler) emitAudit(c *gin.Context, level, text string) {
	if h.audit == nil {
		return
	}
	h.audit.Emit(c.Request.Context(), level, text, requestIDFromContext(c), userIDFromContext(c))
}

func (h *SessionHandler) emitAuditFor(c *gin.Context, level, text, userID string) {
	if h.audit == nil {
		return
	}
	h.audit.Emit(c.Request.Context(), level, text, requestIDFromContext(c), &userID)
}
