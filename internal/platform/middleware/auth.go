package middleware

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/cragline/service-booking/internal/platform/auth"
	"github.com/cragline/service-booking/internal/platform/response"
)

const (
	ctxUserID = "user_id"
	ctxRoles  = "user_roles"
)

// AuthMiddleware validates the bearer token and stores the caller's identity
// in the gin context.
func AuthMiddleware(jwtManager *auth.JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Unauthorized(c, "authorization header required")
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(strings.TrimSpace(parts[0]), "Bearer") {
			response.Unauthorized(c, "invalid authorization header format")
			return
		}

		claims, err := jwtManager.ValidateAccessToken(strings.TrimSpace(parts[1]))
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrTokenExpired):
				response.Unauthorized(c, "token expired")
			case errors.Is(err, auth.ErrInvalidTokenType):
				response.Unauthorized(c, "access token required")
			default:
				response.Unauthorized(c, "invalid or malformed token")
			}
			return
		}

		c.Set(ctxUserID, claims.UserID)
		c.Set(ctxRoles, claims.Roles)
		c.Next()
	}
}

// GetUserID returns the authenticated caller's ID.
func GetUserID(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(ctxUserID)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok && id != uuid.Nil
}

// GetRoles returns the authenticated caller's raw role names.
func GetRoles(c *gin.Context) ([]string, bool) {
	v, ok := c.Get(ctxRoles)
	if !ok {
		return nil, false
	}
	roles, ok := v.([]string)
	return roles, ok
}

// RequireRole aborts with 403 unless the caller holds at least one of roles.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		held, ok := GetRoles(c)
		if !ok {
			response.Unauthorized(c, "user roles not found")
			return
		}
		for _, h := range held {
			for _, r := range roles {
				if strings.EqualFold(h, r) {
					c.Next()
					return
				}
			}
		}
		response.Forbidden(c, "insufficient permissions")
	}
}
