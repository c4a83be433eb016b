package middleware

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"pebble-sync/internal/services"
)

const keyIDKey = "keyID"

// Verifier resolves a bearer token to the key id it was issued for.
type Verifier interface {
	Verify(ctx context.Context, token string) (string, error)
}

func KeyIDFromContext(c *gin.Context) string {
	if v, ok := c.Get(keyIDKey); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// Auth verifies a bearer token when one is sent. With required set, a
// request without a token is rejected as well.
func Auth(v Verifier, required bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			if required {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "missing bearer token"})
				return
			}
			c.Next()
			return
		}
		keyID, err := v.Verify(c.Request.Context(), token)
		if err != nil {
			msg := "unauthorized"
			switch {
			case errors.Is(err, services.ErrInvalidFormat):
				msg = "invalid token format"
			case errors.Is(err, services.ErrRevoked):
				msg = "api key revoked"
			case errors.Is(err, services.ErrInvalidKey):
				msg = "invalid api key"
			default:
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "key verification failed"})
				return
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": msg})
			return
		}
		c.Set(keyIDKey, keyID)
		c.Next()
	}
}

// AdminToken guards key management. An empty token disables the check.
func AdminToken(token string) gin.HandlerFunc {
	token = strings.TrimSpace(token)
	return func(c *gin.Context) {
		if token == "" {
			c.Next()
			return
		}
		got, ok := bearerToken(c)
		if !ok {
			got = strings.TrimSpace(c.GetHeader("X-Admin-Token"))
		}
		if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "unauthorized"})
			return
		}
		c.Next()
	}
}

func bearerToken(c *gin.Context) (string, bool) {
	h := strings.TrimSpace(c.GetHeader("Authorization"))
	if len(h) < 7 || !strings.EqualFold(h[:7], "bearer ") {
		return "", false
	}
	token := strings.TrimSpace(h[7:])
	return token, token != ""
}
