package pkg

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"gotest.tools/v3/assert"
)

func TestRateLimiterAllowsBurstPerClient(t *testing.T) {
	rl := NewRateLimiter(0.001, 2)

	assert.Check(t, rl.Allow("a"))
	assert.Check(t, rl.Allow("a"))
	assert.Check(t, !rl.Allow("a"))
	assert.Check(t, rl.Allow("b"))
}

func TestRateLimiterCleanup(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	now := time.Now()
	rl.now = func() time.Time { return now }

	rl.Allow("old")
	now = now.Add(10 * time.Minute)
	rl.Allow("new")

	assert.Equal(t, rl.Cleanup(5*time.Minute), 1)
	assert.Equal(t, len(rl.clients), 1)
}

func TestRateLimiterMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(NewRateLimiter(0.001, 1).Limit())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	first := httptest.NewRecorder()
	r.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, first.Code, http.StatusOK)

	second := httptest.NewRecorder()
	r.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, second.Code, http.StatusTooManyRequests)
	assert.Assert(t, len(second.Body.String()) > 0)
}
