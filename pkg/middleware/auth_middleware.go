package middleware

import (
	"errors"
	"strings"

	"inventory-service/internal/auth"
	"inventory-service/internal/domain"
	apperrors "inventory-service/pkg/errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const PrincipalContextKey = "principal"

// AuthMiddleware validates the bearer token and stores the caller's
// domain.Principal in the context.
func AuthMiddleware(jwtManager *auth.JWTManager, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			logger.Warn("Missing authorization header",
				zap.String("path", c.Request.URL.Path),
				zap.String("method", c.Request.Method),
			)
			abortUnauthorized(c, "missing authorization header", "Header: Authorization")
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			abortUnauthorized(c, "invalid authorization header format", "Expected: Bearer <token>")
			return
		}

		claims, err := jwtManager.ValidateToken(parts[1])
		if err != nil {
			if errors.Is(err, auth.ErrExpiredToken) {
				abortUnauthorized(c, "token expired", "Token has expired, please login again")
				return
			}
			logger.Warn("Invalid token",
				zap.String("path", c.Request.URL.Path),
				zap.String("method", c.Request.Method),
				zap.Error(err),
			)
			abortUnauthorized(c, "invalid token", err.Error())
			return
		}

		principal, err := claims.Principal()
		if err != nil {
			abortUnauthorized(c, "invalid token", err.Error())
			return
		}

		c.Set(PrincipalContextKey, principal)
		c.Set("username", claims.Username)
		c.Set("user_id", principal.UserID.String())
		c.Next()
	}
}

// GetPrincipal returns the authenticated caller. The zero Principal, which
// may act for nobody, is returned on unauthenticated routes.
func GetPrincipal(c *gin.Context) domain.Principal {
	if v, ok := c.Get(PrincipalContextKey); ok {
		if p, ok := v.(domain.Principal); ok {
			return p
		}
	}
	return domain.Principal{}
}

// RequireRole rejects callers whose role is not one of roles.
func RequireRole(roles ...domain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal := GetPrincipal(c)
		for _, role := range roles {
			if principal.Role == role {
				c.Next()
				return
			}
		}
		stdErr := apperrors.NewStandardError(string(domain.KindForbidden), "insufficient role", "Required: "+joinRoles(roles))
		c.AbortWithStatusJSON(stdErr.HTTPStatus(), stdErr)
	}
}

func RequireAdmin() gin.HandlerFunc {
	return RequireRole(domain.RoleAdmin)
}

func joinRoles(roles []domain.Role) string {
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = string(r)
	}
	return strings.Join(names, ", ")
}

func abortUnauthorized(c *gin.Context, message, details string) {
	stdErr := apperrors.NewUnauthorized(message, details)
	c.AbortWithStatusJSON(stdErr.HTTPStatus(), stdErr)
}
