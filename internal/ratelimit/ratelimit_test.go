package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestAllowBurstThenDeny(t *testing.T) {
	l := New(Config{RequestsPerSecond: 1, Burst: 3, CleanupInterval: time.Minute})
	defer l.Stop()

	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow("party:cus_alice"), "request %d should pass", i)
	}
	assert.False(t, l.Allow("party:cus_alice"))

	// an unrelated key has its own bucket
	assert.True(t, l.Allow("party:acct_bob"))
}

func TestTokensRefill(t *testing.T) {
	l := New(Config{RequestsPerSecond: 100, Burst: 1, CleanupInterval: time.Minute})
	defer l.Stop()

	assert.True(t, l.Allow("k"))
	assert.False(t, l.Allow("k"))
	time.Sleep(20 * time.Millisecond)
	assert.True(t, l.Allow("k"))
}

func TestMiddlewareKeysByParty(t *testing.T) {
	gin.SetMode(gin.TestMode)
	l := New(Config{RequestsPerSecond: 1, Burst: 1, CleanupInterval: time.Minute})
	defer l.Stop()

	r := gin.New()
	r.Use(l.Middleware())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	do := func(party string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if party != "" {
			req.Header.Set("X-Party-ID", party)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, do("cus_alice"))
	assert.Equal(t, http.StatusTooManyRequests, do("cus_alice"))
	assert.Equal(t, http.StatusOK, do("acct_bob"))
}
