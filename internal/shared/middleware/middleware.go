package middleware

import (
	"net/http"
	"strings"

	"kitchenhub/internal/shared/config"
	"kitchenhub/internal/shared/utils/response"
	"kitchenhub/internal/users"
	"kitchenhub/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
)

const identityKey = "identity"

// JWTAuth creates a JWT authentication middleware from environment config
func JWTAuth() gin.HandlerFunc {
	return JWTAuthWithConfig(config.Load())
}

// JWTAuthWithConfig verifies the upstream-issued bearer token and stores the
// resolved identity on the request context.
func JWTAuthWithConfig(cfg *config.Config) gin.HandlerFunc {
	secret := []byte(cfg.JWT.Secret)

	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			response.RespondJSON(c, "error", http.StatusUnauthorized, "Authorization header is required", nil, nil)
			c.Abort()
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			response.RespondJSON(c, "error", http.StatusUnauthorized, "authorization header format must be Bearer {token}", nil, nil)
			c.Abort()
			return
		}

		token, err := jwt.Parse(parts[1], func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return secret, nil
		})
		if err != nil || !token.Valid {
			logger.GetDefault().LogAuthFailure(c.Request.Context(), "invalid token", c.ClientIP())
			response.RespondJSON(c, "error", http.StatusUnauthorized, "invalid or expired token", nil, nil)
			c.Abort()
			return
		}

		identity, ok := identityFromClaims(token.Claims)
		if !ok {
			logger.GetDefault().LogAuthFailure(c.Request.Context(), "malformed claims", c.ClientIP())
			response.RespondJSON(c, "error", http.StatusUnauthorized, "invalid token claims", nil, nil)
			c.Abort()
			return
		}

		SetIdentity(c, identity)
		c.Next()
	}
}

func identityFromClaims(claims jwt.Claims) (users.Identity, bool) {
	mc, ok := claims.(jwt.MapClaims)
	if !ok {
		return users.Identity{}, false
	}
	if tokenType, ok := mc["type"]; !ok || tokenType != "access" {
		return users.Identity{}, false
	}
	rawID, _ := mc["user_id"].(string)
	userID, err := uuid.Parse(rawID)
	if err != nil {
		return users.Identity{}, false
	}
	role, _ := mc["role"].(string)
	if !users.IsValidRole(role) {
		return users.Identity{}, false
	}
	return users.Identity{UserID: userID, Role: users.Role(role)}, true
}

// SetIdentity stores the caller on the gin context
func SetIdentity(c *gin.Context, identity users.Identity) {
	c.Set(identityKey, identity)
	c.Set("user_id", identity.UserID.String())
	c.Set("user_role", string(identity.Role))
}

// CurrentIdentity returns the caller resolved by JWTAuth
func CurrentIdentity(c *gin.Context) (users.Identity, bool) {
	v, exists := c.Get(identityKey)
	if !exists {
		return users.Identity{}, false
	}
	identity, ok := v.(users.Identity)
	return identity, ok
}

// RequireRoles middleware checks if user has any of the required roles
func RequireRoles(requiredRoles ...users.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, exists := CurrentIdentity(c)
		if !exists {
			response.RespondJSON(c, "error", http.StatusUnauthorized, "user role not found in context", nil, nil)
			c.Abort()
			return
		}

		for _, role := range requiredRoles {
			if identity.Role == role {
				c.Next()
				return
			}
		}

		response.RespondJSON(c, "error", http.StatusForbidden, "Insufficient permissions", nil, nil)
		c.Abort()
	}
}

// RequireAdmin middleware that requires admin role
func RequireAdmin() gin.HandlerFunc {
	return RequireRoles(users.RoleAdmin)
}

// RequireIdentity returns the caller, writing a 401 when JWTAuth did not run
func RequireIdentity(c *gin.Context) (users.Identity, bool) {
	identity, ok := CurrentIdentity(c)
	if !ok {
		response.RespondJSON(c, "error", http.StatusUnauthorized, "User not authenticated", nil, nil)
		return users.Identity{}, false
	}
	return identity, true
}
