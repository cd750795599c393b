package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"talkflow-service/internal/auth"
	"talkflow-service/internal/repositories"
)

// AuthMiddleware validates the Authorization header and resolves the caller's
// identity. Requests without a resolvable, active identity are rejected.
func AuthMiddleware(validator auth.TokenValidator, users repositories.UserRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header"})
			return
		}

		email, err := validator.Validate(parts[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		user, err := users.GetByEmail(c.Request.Context(), email)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unknown user"})
			return
		}
		if !user.IsActive {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "account deactivated"})
			return
		}

		c.Set("userID", user.ID)
		c.Set("userEmail", user.Email)
		c.Next()
	}
}
