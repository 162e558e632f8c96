// Package config loads the hub's settings from environment variables,
// applying defaults and validating the result. Server timeouts, storage,
// realtime session limits, call ringing and observability live here.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/tbourn/go-tawk-backend/internal/sysutil"
)

// CORSConfig defines Cross-Origin Resource Sharing settings. The same allow
// list gates WebSocket upgrade origins.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines response hardening.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
	NoStore    bool
}

// OTELConfig defines OpenTelemetry tracing settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE
	ServiceName string  // OTEL_SERVICE_NAME, falling back to SERVICE_NAME
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// WSConfig bounds each WebSocket session.
type WSConfig struct {
	ReadLimit    int64         // WS_READ_LIMIT, max inbound frame bytes
	SendBuffer   int           // WS_SEND_BUFFER, queued outbound frames before drops
	PongWait     time.Duration // WS_PONG_WAIT, ping every 9/10 of this
	WriteWait    time.Duration // WS_WRITE_WAIT
	EventRPS     float64       // WS_EVENT_RPS, inbound events per second
	EventBurst   int           // WS_EVENT_BURST
	EventTimeout time.Duration // WS_EVENT_TIMEOUT, per-event handling budget
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string
	ReadTimeout       time.Duration
	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
	GinMode           string        // debug|release|test
	ShutdownTimeout   time.Duration // grace period for in-flight requests

	// Logging / routing
	LogLevel    string // debug|info|warn|error|fatal|panic
	LogPretty   bool
	APIBasePath string

	// Storage
	DBPath string

	// REST rate limiting
	RateRPS   float64
	RateBurst int

	// Realtime
	WS              WSConfig
	PresenceQueue   int           // pending presence status writes
	RingTimeout     time.Duration // 0 disables server-side missed-call expiry
	RingSweep       time.Duration // RING_SWEEP_INTERVAL
	MaxMessageRunes int

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables, applies defaults,
// normalizes values and validates the result.
func Load() (Config, error) {
	cfg := Config{
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),
		ShutdownTimeout:   getdur("SHUTDOWN_TIMEOUT", 15*time.Second),

		LogLevel:    strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:   getbool("LOG_PRETTY", false),
		APIBasePath: normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		DBPath: getenv("DB_PATH", "tawk.db"),

		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		WS: WSConfig{
			ReadLimit:    int64(getint("WS_READ_LIMIT", 64<<10)),
			SendBuffer:   getint("WS_SEND_BUFFER", 256),
			PongWait:     getdur("WS_PONG_WAIT", 60*time.Second),
			WriteWait:    getdur("WS_WRITE_WAIT", 10*time.Second),
			EventRPS:     getfloat("WS_EVENT_RPS", 20),
			EventBurst:   getint("WS_EVENT_BURST", 40),
			EventTimeout: getdur("WS_EVENT_TIMEOUT", 10*time.Second),
		},
		PresenceQueue:   getint("PRESENCE_QUEUE", 1024),
		RingTimeout:     getdur("RING_TIMEOUT", 60*time.Second),
		RingSweep:       getdur("RING_SWEEP_INTERVAL", 0),
		MaxMessageRunes: getint("MAX_MESSAGE_RUNES", 4000),

		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
			NoStore:    getbool("NO_STORE", true),
		},

		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: sysutil.FirstNonEmpty(os.Getenv("OTEL_SERVICE_NAME"), os.Getenv("SERVICE_NAME"), "go-tawk-backend"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// normalization
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}
	if cfg.RingSweep <= 0 && cfg.RingTimeout > 0 {
		cfg.RingSweep = cfg.RingTimeout / 4
	}

	// validation
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.ShutdownTimeout <= 0 {
		return cfg, errors.New("SHUTDOWN_TIMEOUT must be > 0")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return cfg, errors.New("DB_PATH must not be empty")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.WS.ReadLimit <= 0 || cfg.WS.SendBuffer <= 0 {
		return cfg, errors.New("WS_READ_LIMIT and WS_SEND_BUFFER must be > 0")
	}
	if cfg.WS.PongWait < time.Second || cfg.WS.WriteWait <= 0 || cfg.WS.EventTimeout <= 0 {
		return cfg, errors.New("WS_PONG_WAIT must be >= 1s; WS_WRITE_WAIT and WS_EVENT_TIMEOUT must be > 0")
	}
	if cfg.WS.EventRPS <= 0 || cfg.WS.EventBurst < 1 {
		return cfg, errors.New("WS_EVENT_RPS must be > 0 and WS_EVENT_BURST >= 1")
	}
	if cfg.PresenceQueue < 1 {
		return cfg, errors.New("PRESENCE_QUEUE must be >= 1")
	}
	if cfg.RingTimeout < 0 {
		return cfg, errors.New("RING_TIMEOUT must be >= 0")
	}
	if cfg.MaxMessageRunes < 0 {
		return cfg, errors.New("MAX_MESSAGE_RUNES must be >= 0")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}
	return cfg, nil
}

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	v, ok := os.LookupEnv(k)
	if !ok || strings.TrimSpace(v) == "" {
		return def
	}
	if sysutil.IsTruthy(v) {
		return true
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "0", "false", "no", "n", "off":
		return false
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures a leading '/' and strips trailing ones (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 {
		p = strings.TrimRight(p, "/")
		if p == "" {
			p = "/"
		}
	}
	return p
}
