// Package middleware contains the Gin middleware shared by the REST surface
// and the WebSocket upgrade endpoint.
//
// This file covers request correlation, caller identity, access logging and
// panic recovery. Recommended order:
//
//  1. RequestID()
//  2. Identity()
//  3. Logger()
//  4. Recovery()
//
// so that access logs and panic reports carry both the request id and the
// calling user.
package middleware

import (
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	requestIDKey    = "requestID"
	requestIDHeader = "X-Request-ID"

	// UserIDKey is the Gin context key holding the caller's user id.
	UserIDKey = "userID"
	// UserIDHeader carries the caller's user id. Authentication is done by
	// the fronting gateway; the value is trusted as-is.
	UserIDHeader = "X-User-ID"

	loggerKey         = "logger"
	maxQueryLogLength = 2048
)

// RequestID reuses the inbound X-Request-ID or mints a UUID, stores it in
// the context and echoes it on the response.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := strings.TrimSpace(c.GetHeader(requestIDHeader))
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Set(requestIDKey, rid)
		c.Writer.Header().Set(requestIDHeader, rid)
		c.Next()
	}
}

// Identity copies the caller's user id from X-User-ID (or, for WebSocket
// upgrades, the user_id query parameter) into the context.
func Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		uid := strings.TrimSpace(c.GetHeader(UserIDHeader))
		if uid == "" && strings.EqualFold(c.GetHeader("Upgrade"), "websocket") {
			uid = strings.TrimSpace(c.Query("user_id"))
		}
		if uid != "" {
			c.Set(UserIDKey, uid)
		}
		c.Next()
	}
}

// UserID returns the caller identity set by Identity, or "".
func UserID(c *gin.Context) string {
	return ctxString(c, UserIDKey)
}

// Logger writes one structured access log per request and stores a
// request-scoped logger in the context (see LoggerFrom).
//
// Level follows the outcome: error for 5xx or recorded gin errors, warn for
// 4xx, info otherwise. Requests for the quiet paths (health checks, metric
// scrapes) log at debug.
func Logger(quiet ...string) gin.HandlerFunc {
	q := make(map[string]struct{}, len(quiet))
	for _, p := range quiet {
		q[p] = struct{}{}
	}
	return func(c *gin.Context) {
		start := time.Now()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		l := log.With().
			Str("request_id", ctxString(c, requestIDKey)).
			Str("user_id", UserID(c)).
			Str("method", c.Request.Method).
			Str("path", path).
			Str("remote_ip", c.ClientIP()).
			Str("user_agent", c.Request.UserAgent()).
			Str("query", truncate(c.Request.URL.RawQuery, maxQueryLogLength)).
			Int64("bytes_in", c.Request.ContentLength).
			Logger()
		c.Set(loggerKey, &l)

		c.Next()

		status := c.Writer.Status()
		out := l.With().
			Int("status", status).
			Dur("latency", time.Since(start)).
			Int("bytes_out", c.Writer.Size()).
			Logger()

		_, isQuiet := q[path]
		switch {
		case len(c.Errors) > 0:
			out.Error().Str("errors", c.Errors.String()).Msg("request")
		case status >= http.StatusInternalServerError:
			out.Error().Msg("request")
		case status >= http.StatusBadRequest:
			out.Warn().Msg("request")
		case isQuiet:
			out.Debug().Msg("request")
		default:
			out.Info().Msg("request")
		}
	}
}

// Recovery turns a panic into a JSON 500 in the standard error envelope,
// logging the stack with the request id.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			rid := ctxString(c, requestIDKey)
			log.Error().
				Interface("panic", rec).
				Bytes("stack", debug.Stack()).
				Str("request_id", rid).
				Msg("panic recovered")

			if c.Writer.Written() {
				c.AbortWithStatus(http.StatusInternalServerError)
				return
			}
			c.Header(requestIDHeader, rid)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"request_id": rid,
				"code":       "internal_error",
				"message":    "internal server error",
			})
		}()
		c.Next()
	}
}

// LoggerFrom returns the request-scoped logger, or the global logger when
// Logger is not installed.
func LoggerFrom(c *gin.Context) *zerolog.Logger {
	if v, ok := c.Get(loggerKey); ok {
		if lg, ok := v.(*zerolog.Logger); ok {
			return lg
		}
	}
	l := log.With().Logger()
	return &l
}

func ctxString(c *gin.Context, key string) string {
	v, _ := c.Get(key)
	s, _ := v.(string)
	return s
}

// truncate caps s at max bytes; max <= 0 disables the cap.
func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
