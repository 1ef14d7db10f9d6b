package ratelimit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetRateLimitType(t *testing.T) {
	tests := []struct {
		method string
		path   string
		want   RateLimitType
	}{
		{http.MethodGet, "/health", RateLimitTypeHealth},
		{http.MethodPost, "/api/v1/webhooks/payments", RateLimitTypeWebhook},
		{http.MethodPost, "/api/v1/admin/sweeps/:name", RateLimitTypeAdmin},
		{http.MethodPost, "/api/v1/booking-groups/:id/approve", RateLimitTypeManager},
		{http.MethodPost, "/api/v1/penalties/:id/waive", RateLimitTypeManager},
		{http.MethodPost, "/api/v1/storage-bookings/:id/checkout/claim", RateLimitTypeManager},
		{http.MethodPost, "/api/v1/booking-groups", RateLimitTypeCommand},
		{http.MethodPost, "/api/v1/extensions/:id/pay", RateLimitTypeCommand},
		{http.MethodGet, "/api/v1/booking-groups/:id", RateLimitTypeDefault},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, getRateLimitType(tt.method, tt.path))
		})
	}
}

func TestLimiterWithoutRedisAllows(t *testing.T) {
	rl := NewRateLimiter(nil, &Config{Enabled: true, WindowDuration: time.Minute, CommandRequests: 5})

	res, err := rl.IsAllowed(context.Background(), "10.0.0.1", RateLimitTypeCommand)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 5, res.Limit)
}

func TestWhitelist(t *testing.T) {
	rl := NewRateLimiter(nil, &Config{WhitelistedIPs: []string{"10.0.0.9"}})
	assert.True(t, rl.isWhitelisted("10.0.0.9"))
	assert.False(t, rl.isWhitelisted("10.0.0.1"))
}

func TestMiddlewareSetsHeaders(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rl := NewRateLimiter(nil, &Config{Enabled: true, WindowDuration: time.Minute, DefaultRequests: 60})

	r := gin.New()
	r.Use(Middleware(rl))
	r.GET("/api/v1/policies/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/policies/abc", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "60", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "60", w.Header().Get("X-RateLimit-Remaining"))
}
