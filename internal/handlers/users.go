package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"wellness-chat/internal/repositories"
)

type UserHandler struct {
	users repositories.UserRepository
}

func NewUserHandler(users repositories.UserRepository) *UserHandler {
	return &UserHandler{users: users}
}

// ListUsers handles GET /users.
func (h *UserHandler) ListUsers(c *gin.Context) {
	users, err := h.users.ListUsers(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load users"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}
