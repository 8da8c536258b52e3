package middleware

import (
	"crypto/subtle"
	"strings"

	"museum-discovery/utils"

	"github.com/gin-gonic/gin"
)

// RequireImportSecret guards ingestion triggers with a shared bearer secret.
// An empty secret rejects every request.
func RequireImportSecret(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := ExtractTokenFromHeader(c.GetHeader("Authorization"))
		if secret == "" || token == "" ||
			subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
			utils.RespondWithUnauthorized(c, "A valid bearer token is required")
			c.Abort()
			return
		}
		c.Next()
	}
}

// ExtractTokenFromHeader returns the token of a "Bearer <token>" header.
func ExtractTokenFromHeader(authHeader string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(authHeader), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
