package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/fghsg9075-lab/aios/pkg/api"
	"github.com/gin-gonic/gin"
)

// Auth requires a bearer token matching one of the admin keys. With no keys
// configured every request passes; the server warns about that on startup.
func Auth(adminKeys []string) gin.HandlerFunc {
	hashes := make([][32]byte, 0, len(adminKeys))
	for _, k := range adminKeys {
		if k != "" {
			hashes = append(hashes, sha256.Sum256([]byte(k)))
		}
	}

	return func(c *gin.Context) {
		if len(hashes) == 0 {
			c.Next()
			return
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, api.UnauthorizedError("Missing Authorization header"))
			return
		}

		scheme, token, ok := strings.Cut(authHeader, " ")
		if !ok || scheme != "Bearer" || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, api.UnauthorizedError("Invalid Authorization header format"))
			return
		}

		sum := sha256.Sum256([]byte(token))
		for _, h := range hashes {
			if subtle.ConstantTimeCompare(sum[:], h[:]) == 1 {
				c.Next()
				return
			}
		}

		c.AbortWithStatusJSON(http.StatusUnauthorized, api.UnauthorizedError("Invalid API key"))
	}
}
