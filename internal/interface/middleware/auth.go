package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/banku/user-service/pkg/helpers"
	"github.com/banku/user-service/pkg/response"
)

// Auth validates the bearer access token and sets userID in the Gin context.
// Tokens are stateless; there is no server-side session to consult.
func Auth(jwt *helpers.JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			response.Error(c, http.StatusUnauthorized, "missing access token", nil)
			c.Abort()
			return
		}
		claims, err := jwt.ParseAccessToken(token)
		if err != nil {
			response.Error(c, http.StatusUnauthorized, "invalid access token", nil)
			c.Abort()
			return
		}
		c.Set("userID", claims.UserID)
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	h := c.GetHeader("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}
