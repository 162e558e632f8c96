package config

import (
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestMustLoad_PanicsOnInvalidConfig(t *testing.T) {
	t.Setenv("LOG_LEVEL", "verbose")
	defer func() {
		if recover() == nil {
			t.Fatal("MustLoad should panic on invalid config")
		}
	}()
	_ = MustLoad()
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "8080" || cfg.APIBasePath != "/api/v1" || cfg.DBPath != "tawk.db" || cfg.GinMode != "release" {
		t.Fatalf("server defaults: %+v", cfg)
	}
	if cfg.RingTimeout != 60*time.Second || cfg.RingSweep != 15*time.Second {
		t.Fatalf("ring defaults: timeout=%v sweep=%v", cfg.RingTimeout, cfg.RingSweep)
	}
	want := WSConfig{
		ReadLimit:    64 << 10,
		SendBuffer:   256,
		PongWait:     60 * time.Second,
		WriteWait:    10 * time.Second,
		EventRPS:     20,
		EventBurst:   40,
		EventTimeout: 10 * time.Second,
	}
	if cfg.WS != want {
		t.Fatalf("ws defaults = %+v", cfg.WS)
	}
	if cfg.PresenceQueue != 1024 || cfg.MaxMessageRunes != 4000 || cfg.ShutdownTimeout != 15*time.Second {
		t.Fatalf("realtime defaults: %+v", cfg)
	}
	if !cfg.Security.NoStore || cfg.OTEL.ServiceName != "go-tawk-backend" {
		t.Fatalf("security/otel defaults: %+v %+v", cfg.Security, cfg.OTEL)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "8088")
	t.Setenv("READ_TIMEOUT", "2s")
	t.Setenv("GIN_MODE", "weird")
	t.Setenv("LOG_LEVEL", "warning")
	t.Setenv("LOG_PRETTY", "yes")
	t.Setenv("API_BASE_PATH", "api/v2/")
	t.Setenv("RATE_RPS", "x")
	t.Setenv("WS_SEND_BUFFER", "8")
	t.Setenv("WS_PONG_WAIT", "5s")
	t.Setenv("WS_EVENT_RPS", "2.5")
	t.Setenv("PRESENCE_QUEUE", "16")
	t.Setenv("RING_TIMEOUT", "30s")
	t.Setenv("RING_SWEEP_INTERVAL", "2s")
	t.Setenv("CORS_ALLOWED_ORIGINS", " https://a.com , , http://b ")
	t.Setenv("ENABLE_HSTS", "TRUE")
	t.Setenv("NO_STORE", "off")
	t.Setenv("OTEL_ENABLED", "1")
	t.Setenv("OTEL_EXPORTER_OTLP_INSECURE", "0")
	t.Setenv("SERVICE_NAME", "hub")
	t.Setenv("OTEL_TRACES_SAMPLER_ARG", "0.75")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "8088" || cfg.ReadTimeout != 2*time.Second || cfg.GinMode != "release" {
		t.Fatalf("server fields: %+v", cfg)
	}
	if cfg.LogLevel != "warn" || !cfg.LogPretty || cfg.APIBasePath != "/api/v2" {
		t.Fatalf("logging fields: %+v", cfg)
	}
	if cfg.RateRPS != 5.0 {
		t.Fatalf("unparsable RATE_RPS should fall back, got %v", cfg.RateRPS)
	}
	if cfg.WS.SendBuffer != 8 || cfg.WS.PongWait != 5*time.Second || cfg.WS.EventRPS != 2.5 {
		t.Fatalf("ws fields: %+v", cfg.WS)
	}
	if cfg.PresenceQueue != 16 || cfg.RingTimeout != 30*time.Second || cfg.RingSweep != 2*time.Second {
		t.Fatalf("realtime fields: %+v", cfg)
	}
	if !reflect.DeepEqual(cfg.CORS.AllowedOrigins, []string{"https://a.com", "http://b"}) {
		t.Fatalf("origins = %#v", cfg.CORS.AllowedOrigins)
	}
	if !cfg.Security.EnableHSTS || cfg.Security.NoStore {
		t.Fatalf("security = %+v", cfg.Security)
	}
	if !cfg.OTEL.Enabled || cfg.OTEL.Insecure || cfg.OTEL.ServiceName != "hub" || cfg.OTEL.SampleRatio != 0.75 {
		t.Fatalf("otel = %+v", cfg.OTEL)
	}
}

func TestLoad_RingTimeoutZeroDisablesSweep(t *testing.T) {
	t.Setenv("RING_TIMEOUT", "0s")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.RingTimeout != 0 || cfg.RingSweep != 0 {
		t.Fatalf("ring = %v / %v", cfg.RingTimeout, cfg.RingSweep)
	}
}

func TestLoad_ValidationErrors(t *testing.T) {
	cases := []struct {
		key, val, want string
	}{
		{"LOG_LEVEL", "verbose", "LOG_LEVEL"},
		{"PORT", "   ", "PORT must not be empty"},
		{"READ_TIMEOUT", "0s", "timeouts must be positive"},
		{"SHUTDOWN_TIMEOUT", "0s", "SHUTDOWN_TIMEOUT"},
		{"MAX_HEADER_BYTES", "0", "MAX_HEADER_BYTES"},
		{"DB_PATH", "   ", "DB_PATH must not be empty"},
		{"RATE_RPS", "-1", "RATE_RPS"},
		{"RATE_BURST", "0", "RATE_BURST"},
		{"WS_SEND_BUFFER", "0", "WS_SEND_BUFFER"},
		{"WS_PONG_WAIT", "100ms", "WS_PONG_WAIT"},
		{"WS_EVENT_RPS", "0", "WS_EVENT_RPS"},
		{"PRESENCE_QUEUE", "0", "PRESENCE_QUEUE"},
		{"RING_TIMEOUT", "-1s", "RING_TIMEOUT"},
		{"MAX_MESSAGE_RUNES", "-5", "MAX_MESSAGE_RUNES"},
		{"HSTS_MAX_AGE", "-1s", "HSTS_MAX_AGE"},
		{"OTEL_TRACES_SAMPLER_ARG", "1.5", "OTEL_TRACES_SAMPLER_ARG"},
	}
	for _, tc := range cases {
		t.Run(tc.key, func(t *testing.T) {
			t.Setenv(tc.key, tc.val)
			_, err := Load()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("%s=%q: got %v; want error mentioning %q", tc.key, tc.val, err, tc.want)
			}
		})
	}
}

func TestHelpers(t *testing.T) {
	t.Setenv("X_EMPTY", "")
	t.Setenv("X_SET", "val")
	if getenv("X_EMPTY", "d") != "d" || getenv("X_SET", "d") != "val" {
		t.Fatal("getenv")
	}

	t.Setenv("N_BAD", "nope")
	t.Setenv("N_INT", "42")
	t.Setenv("N_DUR", "150ms")
	if getfloat("N_BAD", 1.5) != 1.5 || getint("N_INT", 0) != 42 || getint("N_BAD", 7) != 7 {
		t.Fatal("numeric parsing")
	}
	if getdur("N_DUR", time.Second) != 150*time.Millisecond || getdur("N_BAD", time.Second) != time.Second {
		t.Fatal("duration parsing")
	}

	for _, v := range []string{"1", "TRUE", " yes ", "on"} {
		t.Setenv("B", v)
		if !getbool("B", false) {
			t.Fatalf("getbool(%q) = false", v)
		}
	}
	for _, v := range []string{"0", "false", " no ", "Off"} {
		t.Setenv("B", v)
		if getbool("B", true) {
			t.Fatalf("getbool(%q) = true", v)
		}
	}
	t.Setenv("B", "maybe")
	if !getbool("B", true) || getbool("B", false) {
		t.Fatal("unrecognized bool should keep the default")
	}

	if splitCSV("") != nil {
		t.Fatal("splitCSV empty")
	}
	if got := splitCSV(" a, ,b ,  c  ,"); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Fatalf("splitCSV = %#v", got)
	}

	for in, want := range map[string]string{"": "/", "v1": "/v1", "/v1/": "/v1", " / ": "/", "//": "/"} {
		if got := normalizeBasePath(in); got != want {
			t.Fatalf("normalizeBasePath(%q) = %q; want %q", in, got, want)
		}
	}
}
