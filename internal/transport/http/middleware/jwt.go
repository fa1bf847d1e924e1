package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"chai-assistant/internal/pkg/jwtutil"
	"chai-assistant/internal/transport/http/response"
)

const (
	ContextThreadIDKey = "thread_id"
	ContextSubjectKey  = "subject"
)

// AuthJWT requires a bearer token and pins the request to the token's thread.
func AuthJWT(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := strings.TrimSpace(c.GetHeader("Authorization"))
		if authHeader == "" {
			response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "missing authorization header")
			c.Abort()
			return
		}

		const prefix = "Bearer "
		if !strings.HasPrefix(authHeader, prefix) {
			response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid authorization scheme")
			c.Abort()
			return
		}

		token := strings.TrimSpace(strings.TrimPrefix(authHeader, prefix))
		claims, err := jwtutil.ParseToken(secret, token)
		if err != nil {
			response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid or expired token")
			c.Abort()
			return
		}

		c.Set(ContextThreadIDKey, claims.Thread())
		c.Set(ContextSubjectKey, claims.Subject)
		c.Next()
	}
}

// ThreadFromContext returns the thread pinned by AuthJWT, if any.
func ThreadFromContext(c *gin.Context) (string, bool) {
	v, ok := c.Get(ContextThreadIDKey)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok && s != ""
}
