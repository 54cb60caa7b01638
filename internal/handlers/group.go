package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"wellness-chat/internal/models"
	"wellness-chat/internal/repositories"
	"wellness-chat/internal/telemetry"
)

// GroupHandler manages the group directory, membership and typing endpoints.
type GroupHandler struct {
	groupRepo repositories.GroupRepository
	notifier  ChangeNotifier
	audit     *telemetry.AuditEmitter
	log       *zap.Logger
}

// NewGroupHandler constructs a GroupHandler.
func NewGroupHandler(groupRepo repositories.GroupRepository, notifier ChangeNotifier, audit *telemetry.AuditEmitter, logger *zap.Logger) *GroupHandler {
	return &GroupHandler{
		groupRepo: groupRepo,
		notifier:  notifier,
		audit:     audit,
		log:       logger,
	}
}

// CreateGroup handles POST /groups.
func (h *GroupHandler) CreateGroup(c *gin.Context) {
	userID, _ := currentUser(c)

	var req struct {
		Name string `json:"name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.emitAudit(c, telemetry.LevelError, "invalid request payload")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	name, err := models.ValidateGroupName(req.Name)
	if err != nil {
		h.emitAudit(c, telemetry.LevelError, "invalid group name")
		respondValidation(c, err)
		return
	}

	group, err := h.groupRepo.CreateGroup(c.Request.Context(), userID, name)
	if err != nil {
		h.log.Error("create group", zap.String("user_id", userID), zap.Error(err))
		h.emitAudit(c, telemetry.LevelError, "internal error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create group"})
		return
	}

	h.notifier.GroupsChanged(c.Request.Context())
	h.emitAudit(c, telemetry.LevelInfo, "Group created")
	c.JSON(http.StatusCreated, group)
}

// ListGroups handles GET /groups, optionally filtered by ?q=.
func (h *GroupHandler) ListGroups(c *gin.Context) {
	groups, err := h.groupRepo.ListGroups(c.Request.Context(), c.Query("q"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load groups"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"groups": groups})
}

// GetGroup handles GET /groups/:group_id.
func (h *GroupHandler) GetGroup(c *gin.Context) {
	group, err := h.groupRepo.GetGroup(c.Request.Context(), c.Param("group_id"))
	if errors.Is(err, repositories.ErrGroupNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "group not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load group"})
		return
	}
	c.JSON(http.StatusOK, group)
}

// JoinGroup handles POST /groups/:group_id/join. Joining twice is a no-op.
func (h *GroupHandler) JoinGroup(c *gin.Context) {
	h.changeMembership(c, true)
}

// LeaveGroup handles POST /groups/:group_id/leave. Leaving a group the caller
// is not in is a no-op.
func (h *GroupHandler) LeaveGroup(c *gin.Context) {
	h.changeMembership(c, false)
}

func (h *GroupHandler) changeMembership(c *gin.Context, join bool) {
	groupID := c.Param("group_id")
	userID, _ := currentUser(c)

	var changed bool
	var err error
	if join {
		changed, err = h.groupRepo.AddMember(c.Request.Context(), groupID, userID)
	} else {
		changed, err = h.groupRepo.RemoveMember(c.Request.Context(), groupID, userID)
	}
	if errors.Is(err, repositories.ErrGroupNotFound) {
		h.emitAudit(c, telemetry.LevelError, "group not found")
		c.JSON(http.StatusNotFound, gin.H{"error": "group not found"})
		return
	}
	if err != nil {
		h.log.Error("change membership", zap.String("group_id", groupID), zap.Bool("join", join), zap.Error(err))
		h.emitAudit(c, telemetry.LevelError, "internal error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "membership update failed"})
		return
	}

	if changed {
		h.notifier.MembershipChanged(c.Request.Context(), groupID, userID, join)
		if join {
			h.emitAudit(c, telemetry.LevelInfo, "Group joined")
		} else {
			h.emitAudit(c, telemetry.LevelInfo, "Group left")
		}
	}
	c.Status(http.StatusNoContent)
}

// StartTyping handles POST /groups/:group_id/typing.
func (h *GroupHandler) StartTyping(c *gin.Context) {
	groupID := c.Param("group_id")
	if !h.requireMember(c, groupID) {
		return
	}
	_, email := currentUser(c)

	if err := h.groupRepo.AddTyping(c.Request.Context(), groupID, email); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrGroupNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "typing update failed"})
		return
	}
	h.notifier.GroupChanged(c.Request.Context(), groupID)
	c.Status(http.StatusNoContent)
}

// StopTyping handles DELETE /groups/:group_id/typing.
func (h *GroupHandler) StopTyping(c *gin.Context) {
	groupID := c.Param("group_id")
	_, email := currentUser(c)

	removed, err := h.groupRepo.RemoveTyping(c.Request.Context(), groupID, email)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "typing update failed"})
		return
	}
	if removed {
		h.notifier.GroupChanged(c.Request.Context(), groupID)
	}
	c.Status(http.StatusNoContent)
}

func (h *GroupHandler) requireMember(c *gin.Context, groupID string) bool {
	return requireMember(c, h.groupRepo, groupID, h.emitAudit)
}

func (h *GroupHandler) emitAudit(c *gin.Context, level, text string) {
	if h.audit == nil {
		return
	}
	h.audit.Emit(c.Request.Context(), level, text, requestIDFromContext(c), userIDFromContext(c))
}

func requireMember(c *gin.Context, groupRepo repositories.GroupRepository, groupID string, audit func(*gin.Context, string, string)) bool {
	userID, _ := currentUser(c)
	member, err := groupRepo.IsMember(c.Request.Context(), groupID, userID)
	if err != nil {
		audit(c, telemetry.LevelError, "internal error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "membership check failed"})
		return false
	}
	if !member {
		audit(c, telemetry.LevelError, "not allowed")
		c.JSON(http.StatusForbidden, gin.H{"error": "not a member"})
		return false
	}
	return true
}
