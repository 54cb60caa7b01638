package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"wellness-chat/internal/auth"
)

type staticValidator map[string]auth.Principal

func (s staticValidator) ValidateToken(token string) (auth.Principal, error) {
	if p, ok := s[token]; ok {
		return p, nil
	}
	return auth.Principal{}, errors.New("invalid")
}

func setupRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handlers = append(handlers, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user": c.GetString(UserIDKey), "email": c.GetString(UserEmailKey)})
	})
	r.GET("/me", handlers...)
	return r
}

func TestAuthMiddleware(t *testing.T) {
	router := setupRouter(AuthMiddleware(staticValidator{"good": {UserID: "u1", Email: "a@x.com"}}))

	cases := []struct {
		name   string
		target string
		header string
		status int
	}{
		{"bearer header", "/me", "Bearer good", http.StatusOK},
		{"query token", "/me?token=good", "", http.StatusOK},
		{"missing", "/me", "", http.StatusUnauthorized},
		{"bad scheme", "/me", "Basic good", http.StatusUnauthorized},
		{"bad token", "/me", "Bearer bad", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.target, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			require.Equal(t, tc.status, rec.Code)
		})
	}
}

func TestUserRateLimiter(t *testing.T) {
	limiter := NewUserRateLimiter(1, 2, zap.NewNop())
	setUser := func(c *gin.Context) {
		c.Set(UserIDKey, c.Query("u"))
		c.Next()
	}
	router := setupRouter(setUser, limiter.Handler())

	codes := []int{}
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/me?u=alice", nil))
		codes = append(codes, rec.Code)
	}
	require.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/me?u=bob", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	limiter.Cleanup(0)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/me?u=alice", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}
