package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	userIDContextKey    = "recscribe_user_id"
	authTokenContextKey = "recscribe_auth_token"
)

// Middleware accepts a bearer token or the auth cookie and stores the
// authenticated user id on the context.
func (s *Service) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authToken := s.extractToken(c)
		if authToken == "" {
			c.Header("WWW-Authenticate", `Bearer realm="recscribe"`)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization required"})
			return
		}
		userID, err := s.ValidateToken(c.Request.Context(), authToken)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.Set(userIDContextKey, userID)
		c.Set(authTokenContextKey, authToken)
		c.Next()
	}
}

// UserIDFromContext retrieves the authenticated user id.
func UserIDFromContext(c *gin.Context) (int64, bool) {
	userID, ok := c.Get(userIDContextKey)
	if !ok {
		return 0, false
	}
	id, ok := userID.(int64)
	return id, ok
}

// AuthTokenFromContext retrieves the token the request authenticated with.
func AuthTokenFromContext(c *gin.Context) (string, bool) {
	token := c.GetString(authTokenContextKey)
	return token, token != ""
}

func (s *Service) extractToken(c *gin.Context) string {
	if scheme, token, ok := strings.Cut(c.GetHeader(s.headerName), " "); ok && strings.EqualFold(scheme, "bearer") {
		return strings.TrimSpace(token)
	}
	if token, err := c.Cookie(s.cookieName); err == nil {
		return token
	}
	return ""
}
