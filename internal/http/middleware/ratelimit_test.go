package middleware

import (
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"golang.org/x/time/rate"
)

func TestKeyByUserOrIP(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = net.JoinHostPort("203.0.113.9", "12345")
	c.Request = req

	if key := KeyByUserOrIP()(c); key != "ip:203.0.113.9" {
		t.Fatalf("ip key = %q", key)
	}
	c.Set(UserIDKey, "u123")
	if key := KeyByUserOrIP()(c); key != "user:u123" {
		t.Fatalf("user key = %q", key)
	}
}

func TestRateLimiter_BucketReuseAndEviction(t *testing.T) {
	rl := NewRateLimiter(2, 0, KeyByUserOrIP())
	if rl.burst != 1 {
		t.Fatalf("burst = %d", rl.burst)
	}
	lim := rl.getVisitor("k1")
	if rl.getVisitor("k1") != lim {
		t.Fatal("bucket not reused")
	}

	rl.ttl = time.Nanosecond
	rl.mu.Lock()
	rl.visitors["old"] = &visitor{limiter: rate.NewLimiter(1, 1), lastSeen: time.Now().Add(-time.Hour)}
	rl.lookups = sweepEvery - 1
	rl.mu.Unlock()

	_ = rl.getVisitor("new")
	rl.mu.Lock()
	_, old := rl.visitors["old"]
	_, fresh := rl.visitors["new"]
	rl.mu.Unlock()
	if old || !fresh {
		t.Fatalf("after sweep: old=%v new=%v", old, fresh)
	}
}

func TestRateLimiter_Handler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rl := NewRateLimiter(0.001, 1, KeyByUserOrIP(), "/ws")
	r := gin.New()
	r.Use(RequestID(), Identity(), rl.Handler())
	r.GET("/api", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/ws", func(c *gin.Context) { c.Status(http.StatusOK) })

	do := func(path, user string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set(UserIDHeader, user)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	base := testutil.ToFloat64(rateLimited)
	if w := do("/api", "alice"); w.Code != http.StatusOK {
		t.Fatalf("first = %d", w.Code)
	}
	w := do("/api", "alice")
	if w.Code != http.StatusTooManyRequests || w.Header().Get("Retry-After") != "1" {
		t.Fatalf("second = %d (%v)", w.Code, w.Header())
	}
	if do("/api", "bob").Code != http.StatusOK {
		t.Fatal("buckets are not per user")
	}
	for i := 0; i < 3; i++ {
		if do("/ws", "alice").Code != http.StatusOK {
			t.Fatal("skipped route was limited")
		}
	}
	if got := testutil.ToFloat64(rateLimited) - base; got != 1 {
		t.Fatalf("rate limited delta = %v", got)
	}
}
