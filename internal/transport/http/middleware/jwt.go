package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"gochat-backend/internal/app"
	"gochat-backend/internal/pkg/jwtutil"
	"gochat-backend/internal/transport/http/response"
)

const ContextUserKey = "current_user"

// AuthJWT validates the bearer token, loads the account, and stores it in the
// request context. Inactive accounts are rejected with 403 even when the
// token itself still verifies.
func AuthJWT(secret string, authService *app.AuthService) gin.HandlerFunc {
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
			response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "could not validate credentials")
			c.Abort()
			return
		}

		user, err := authService.GetUserByID(claims.UserID)
		if err != nil || user == nil {
			response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "user not found")
			c.Abort()
			return
		}
		if !user.IsActive {
			response.Error(c, http.StatusForbidden, response.CodeUserInactive, "user account is inactive")
			c.Abort()
			return
		}

		c.Set(ContextUserKey, user)
		c.Next()
	}
}
