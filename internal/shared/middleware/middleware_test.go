package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"kitchenhub/internal/shared/config"
	"kitchenhub/internal/users"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func newTestEngine(cfg *config.Config, roles ...users.Role) *gin.Engine {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.GET("/me", JWTAuthWithConfig(cfg), RequireRoles(roles...), func(c *gin.Context) {
		identity, _ := CurrentIdentity(c)
		c.JSON(http.StatusOK, gin.H{"user_id": identity.UserID.String(), "role": identity.Role})
	})
	return engine
}

func TestJWTAuthResolvesIdentity(t *testing.T) {
	cfg := &config.Config{JWT: config.JWTConfig{Secret: "s3cret"}}
	engine := newTestEngine(cfg, users.RoleManager)
	userID := uuid.New()

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "s3cret", jwt.MapClaims{
		"type":    "access",
		"user_id": userID.String(),
		"role":    "manager",
		"exp":     time.Now().Add(time.Hour).Unix(),
	}))
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), userID.String())
}

func TestJWTAuthRejects(t *testing.T) {
	cfg := &config.Config{JWT: config.JWTConfig{Secret: "s3cret"}}
	userID := uuid.New().String()

	tests := []struct {
		name   string
		header string
		roles  []users.Role
		want   int
	}{
		{name: "missing header", header: "", roles: []users.Role{users.RoleChef}, want: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Token abc", roles: []users.Role{users.RoleChef}, want: http.StatusUnauthorized},
		{
			name:   "wrong secret",
			header: "Bearer " + signToken(t, "other", jwt.MapClaims{"type": "access", "user_id": userID, "role": "chef"}),
			roles:  []users.Role{users.RoleChef},
			want:   http.StatusUnauthorized,
		},
		{
			name:   "refresh token",
			header: "Bearer " + signToken(t, "s3cret", jwt.MapClaims{"type": "refresh", "user_id": userID, "role": "chef"}),
			roles:  []users.Role{users.RoleChef},
			want:   http.StatusUnauthorized,
		},
		{
			name:   "unknown role",
			header: "Bearer " + signToken(t, "s3cret", jwt.MapClaims{"type": "access", "user_id": userID, "role": "USER"}),
			roles:  []users.Role{users.RoleChef},
			want:   http.StatusUnauthorized,
		},
		{
			name:   "role not allowed",
			header: "Bearer " + signToken(t, "s3cret", jwt.MapClaims{"type": "access", "user_id": userID, "role": "chef"}),
			roles:  []users.Role{users.RoleManager, users.RoleAdmin},
			want:   http.StatusForbidden,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := newTestEngine(cfg, tt.roles...)
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			engine.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}
