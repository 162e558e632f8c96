package middleware

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func captureLogger(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := log.Logger
	t.Cleanup(func() { log.Logger = prev })
	log.Logger = zerolog.New(&buf).Level(zerolog.DebugLevel)
	return &buf
}

func TestRequestID_GenerateAndPropagate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID())
	r.GET("/rid", func(c *gin.Context) {
		if ctxString(c, requestIDKey) == "" {
			t.Error("request id missing from context")
		}
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/rid", nil))
	if w.Header().Get(requestIDHeader) == "" {
		t.Fatal("expected a generated request id")
	}

	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/rid", nil)
	req.Header.Set(strings.ToLower(requestIDHeader), " abc-123 ")
	r.ServeHTTP(w, req)
	if got := w.Header().Get(requestIDHeader); got != "abc-123" {
		t.Fatalf("propagated id = %q", got)
	}
}

func TestIdentity(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Identity())
	var seen string
	r.GET("/who", func(c *gin.Context) {
		seen = UserID(c)
		c.Status(http.StatusOK)
	})

	cases := []struct {
		name    string
		header  string
		query   string
		upgrade bool
		want    string
	}{
		{"header", "alice", "", false, "alice"},
		{"none", "", "", false, ""},
		{"query ignored on plain requests", "", "bob", false, ""},
		{"query on upgrade", "", "bob", true, "bob"},
		{"header wins", "alice", "bob", true, "alice"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			url := "/who"
			if tc.query != "" {
				url += "?user_id=" + tc.query
			}
			req := httptest.NewRequest(http.MethodGet, url, nil)
			if tc.header != "" {
				req.Header.Set(UserIDHeader, tc.header)
			}
			if tc.upgrade {
				req.Header.Set("Upgrade", "websocket")
			}
			r.ServeHTTP(httptest.NewRecorder(), req)
			if seen != tc.want {
				t.Fatalf("UserID = %q; want %q", seen, tc.want)
			}
		})
	}
}

func TestLogger_LevelsQuietPathsAndUser(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := captureLogger(t)

	r := gin.New()
	r.Use(RequestID(), Identity(), Logger("/health"))
	r.GET("/ok", func(c *gin.Context) { c.String(http.StatusOK, "hello") })
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/err", func(c *gin.Context) {
		_ = c.Error(errors.New("boom"))
		c.Status(http.StatusBadRequest)
	})

	for _, p := range []string{"/ok", "/health", "/missing", "/err"} {
		req := httptest.NewRequest(http.MethodGet, p, nil)
		req.Header.Set(UserIDHeader, "alice")
		r.ServeHTTP(httptest.NewRecorder(), req)
	}

	levels := map[string]string{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("bad log line %q: %v", line, err)
		}
		if entry["user_id"] != "alice" {
			t.Fatalf("user_id missing: %v", entry)
		}
		levels[entry["path"].(string)] = entry["level"].(string)
	}
	want := map[string]string{"/ok": "info", "/health": "debug", "/missing": "warn", "/err": "error"}
	for p, lvl := range want {
		if levels[p] != lvl {
			t.Fatalf("%s logged at %q; want %q (all: %v)", p, levels[p], lvl, levels)
		}
	}
}

func TestRecovery_PanicsToJSON500(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := captureLogger(t)

	r := gin.New()
	r.Use(RequestID(), Logger(), Recovery())
	r.GET("/panic", func(c *gin.Context) { panic("kaboom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", w.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("body: %v", err)
	}
	if body["code"] != "internal_error" || body["request_id"] != w.Header().Get(requestIDHeader) {
		t.Fatalf("body = %v", body)
	}
	if !strings.Contains(buf.String(), "panic recovered") {
		t.Fatalf("panic not logged:\n%s", buf.String())
	}
}

func TestLoggerFrom(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := captureLogger(t)

	r := gin.New()
	r.Use(RequestID())
	r.GET("/bare", func(c *gin.Context) {
		LoggerFrom(c).Info().Msg("bare")
		c.Status(http.StatusOK)
	})
	r.GET("/scoped", Logger(), func(c *gin.Context) {
		LoggerFrom(c).Info().Msg("scoped")
		c.Status(http.StatusOK)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/bare", nil))
	if out := buf.String(); !strings.Contains(out, `"bare"`) || strings.Contains(out, "request_id") {
		t.Fatalf("fallback logger output:\n%s", out)
	}
	buf.Reset()
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/scoped", nil))
	if out := buf.String(); !strings.Contains(out, `"scoped"`) || !strings.Contains(out, "request_id") {
		t.Fatalf("scoped logger output:\n%s", out)
	}
}

func TestTruncate(t *testing.T) {
	if truncate("hello", 10) != "hello" || truncate("hello", 0) != "hello" {
		t.Fatal("truncate changed a short string")
	}
	if got := truncate("abcdef", 3); got != "abc..." {
		t.Fatalf("truncate = %q", got)
	}
}
