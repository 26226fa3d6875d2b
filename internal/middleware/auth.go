package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/medvault-api/internal/handler"
	"github.com/jwalitptl/medvault-api/internal/model"
	"github.com/jwalitptl/medvault-api/pkg/auth"
	apperrors "github.com/jwalitptl/medvault-api/pkg/errors"
)

// Context keys set by Authenticate.
const (
	ContextUserEmail = "userEmail"
	ContextUserRole  = "userRole"
)

type AuthMiddleware struct {
	jwtService auth.JWTService
}

func NewAuthMiddleware(jwtService auth.JWTService) *AuthMiddleware {
	return &AuthMiddleware{jwtService: jwtService}
}

// Authenticate verifies the bearer token and stores the caller's email and role
// in the context.
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, handler.NewErrorResponse("missing authorization header"))
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, handler.NewErrorResponse("invalid authorization format"))
			return
		}

		claims, err := m.jwtService.ValidateToken(strings.TrimSpace(parts[1]))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, handler.NewErrorResponse("invalid token"))
			return
		}

		c.Set(ContextUserEmail, claims.Email())
		c.Set(ContextUserRole, claims.Role)
		c.Next()
	}
}

// RequireRole rejects callers whose token role is not one of roles.
func (m *AuthMiddleware) RequireRole(roles ...model.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := CurrentRole(c)
		for _, allowed := range roles {
			if role == allowed {
				c.Next()
				return
			}
		}
		err := apperrors.Forbidden("insufficient role")
		c.AbortWithStatusJSON(err.StatusCode(), handler.NewAppErrorResponse(err))
	}
}

// CurrentEmail returns the authenticated caller's email, or "" outside Authenticate.
func CurrentEmail(c *gin.Context) string {
	return c.GetString(ContextUserEmail)
}

func CurrentRole(c *gin.Context) model.Role {
	if v, ok := c.Get(ContextUserRole); ok {
		if role, ok := v.(model.Role); ok {
			return role
		}
	}
	return ""
}
