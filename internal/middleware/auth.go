package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	iauth "github.com/edba-platform/edba/internal/auth"
	"github.com/edba-platform/edba/internal/models"
	"github.com/edba-platform/edba/internal/services"
	"github.com/edba-platform/edba/pkg/errors"
	"github.com/edba-platform/edba/pkg/response"
)

const (
	CtxClaimsKey = "authClaims"
	CtxUserIDKey = "userID"
	CtxUserKey   = "currentUser"
)

// Auth enforces JWT authentication and loads the acting user so that
// handlers can pass an explicit actor into the services.
func Auth(jwt *iauth.JWTService, users *services.UserService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authz := c.GetHeader("Authorization")
		if len(authz) < 8 || !strings.EqualFold(authz[:7], "Bearer ") {
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		token := strings.TrimSpace(authz[7:])
		claims, err := jwt.ValidateAccessToken(token)
		if err != nil {
			// Normalise all validation failures to 401
			c.Header("WWW-Authenticate", "Bearer")
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		user, err := users.Get(c.Request.Context(), claims.UserID)
		if err != nil || !user.IsActive {
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		c.Set(CtxClaimsKey, claims)
		c.Set(CtxUserIDKey, claims.UserID)
		c.Set(CtxUserKey, user)

		c.Next()
	}
}

// RequireRoles rejects requests whose authenticated user holds none of
// the listed roles. It must run after Auth.
func RequireRoles(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := CurrentUser(c)
		if user == nil {
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}
		for _, role := range roles {
			if user.Role == role {
				c.Next()
				return
			}
		}
		response.Error(c, errors.ErrForbidden)
		c.Abort()
	}
}

// CurrentUser returns the authenticated user attached by Auth, or nil.
func CurrentUser(c *gin.Context) *models.User {
	value, ok := c.Get(CtxUserKey)
	if !ok {
		return nil
	}
	user, ok := value.(*models.User)
	if !ok {
		return nil
	}
	return user
}
