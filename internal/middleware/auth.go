package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"wellness-chat/internal/auth"
)

const (
	UserIDKey    = "userID"
	UserEmailKey = "userEmail"
)

// TokenValidator validates session tokens.
type TokenValidator interface {
	ValidateToken(token string) (auth.Principal, error)
}

// AuthMiddleware validates the bearer session token. Websocket upgrades may pass
// the token in the "token" query parameter instead of the header.
func AuthMiddleware(validator TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := ""
		if header := c.GetHeader("Authorization"); header != "" {
			parts := strings.SplitN(header, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header"})
				return
			}
			token = parts[1]
		} else {
			token = c.Query("token")
		}
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
			return
		}

		principal, err := validator.ValidateToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set(UserIDKey, principal.UserID)
		c.Set(UserEmailKey, principal.Email)
		c.Next()
	}
}
