package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Port != "8080" || cfg.GinMode != "release" || cfg.LogLevel != "info" {
		t.Fatalf("server defaults: %+v", cfg)
	}
	if cfg.DBPath != "commissions.db" {
		t.Fatalf("DBPath = %q", cfg.DBPath)
	}
	if cfg.ImageMaxBytes != 10<<20 || cfg.MaxBodyBytes != 16<<20 {
		t.Fatalf("size caps: image=%d body=%d", cfg.ImageMaxBytes, cfg.MaxBodyBytes)
	}
	if cfg.WebhookSecret != "" {
		t.Fatalf("WebhookSecret default = %q", cfg.WebhookSecret)
	}
	if cfg.APIBasePath != "/api/v1" {
		t.Fatalf("APIBasePath = %q", cfg.APIBasePath)
	}
	if cfg.IdempotencyTTL != 24*time.Hour {
		t.Fatalf("IdempotencyTTL = %s", cfg.IdempotencyTTL)
	}
	if cfg.OTEL.ServiceName != "commission-backend" || cfg.OTEL.SampleRatio != 1.0 {
		t.Fatalf("OTEL defaults: %+v", cfg.OTEL)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9999")
	t.Setenv("LOG_LEVEL", "WARNING") // normalized to warn
	t.Setenv("GIN_MODE", "bogus")    // unknown mode falls back to release
	t.Setenv("DB_PATH", "/data/app.db")
	t.Setenv("WEBHOOK_SECRET", "hush")
	t.Setenv("IMAGE_MAX_BYTES", "1048576")
	t.Setenv("MAX_BODY_BYTES", "2097152")
	t.Setenv("IMAGE_ROOTS", " /srv/a , /srv/b ,")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://app.example.com")
	t.Setenv("API_BASE_PATH", "api/v2/")
	t.Setenv("RATE_RPS", "2.5")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Port != "9999" || cfg.LogLevel != "warn" || cfg.GinMode != "release" {
		t.Fatalf("overrides: %+v", cfg)
	}
	if cfg.DBPath != "/data/app.db" || cfg.WebhookSecret != "hush" {
		t.Fatalf("app overrides: %+v", cfg)
	}
	if cfg.ImageMaxBytes != 1<<20 || cfg.MaxBodyBytes != 2<<20 {
		t.Fatalf("size overrides: image=%d body=%d", cfg.ImageMaxBytes, cfg.MaxBodyBytes)
	}
	if len(cfg.ImageRoots) != 2 || cfg.ImageRoots[0] != "/srv/a" || cfg.ImageRoots[1] != "/srv/b" {
		t.Fatalf("ImageRoots = %v", cfg.ImageRoots)
	}
	if len(cfg.CORS.AllowedOrigins) != 1 || cfg.CORS.AllowedOrigins[0] != "https://app.example.com" {
		t.Fatalf("CORS = %v", cfg.CORS.AllowedOrigins)
	}
	if cfg.APIBasePath != "/api/v2" {
		t.Fatalf("APIBasePath = %q", cfg.APIBasePath)
	}
	if cfg.RateRPS != 2.5 {
		t.Fatalf("RateRPS = %v", cfg.RateRPS)
	}
}

func TestLoad_ValidationFailures(t *testing.T) {
	cases := []struct {
		key, val string
		wantSub  string
	}{
		{"LOG_LEVEL", "verbose", "LOG_LEVEL"},
		{"IMAGE_MAX_BYTES", "-1", "IMAGE_MAX_BYTES"},
		{"MAX_BODY_BYTES", "1024", "MAX_BODY_BYTES"}, // below the image cap
		{"RATE_RPS", "-3", "RATE_RPS"},
		{"RATE_BURST", "0", "RATE_BURST"},
		{"IDEMPOTENCY_TTL", "-1s", "IDEMPOTENCY_TTL"},
		{"OTEL_TRACES_SAMPLER_ARG", "1.5", "OTEL_TRACES_SAMPLER_ARG"},
		{"READ_TIMEOUT", "-5s", "timeouts"},
	}
	for _, tc := range cases {
		t.Run(tc.key, func(t *testing.T) {
			t.Setenv(tc.key, tc.val)
			_, err := Load()
			if err == nil || !strings.Contains(err.Error(), tc.wantSub) {
				t.Fatalf("%s=%s -> err %v, want mention of %s", tc.key, tc.val, err, tc.wantSub)
			}
		})
	}
}

func TestMustLoad_PanicsOnInvalid(t *testing.T) {
	t.Setenv("LOG_LEVEL", "verbose")
	defer func() {
		if recover() == nil {
			t.Fatal("MustLoad did not panic")
		}
	}()
	MustLoad()
}

func Test_normalizeBasePath(t *testing.T) {
	cases := map[string]string{
		"":        "/",
		"/":       "/",
		"api":     "/api",
		"/api/":   "/api",
		"/api/v1": "/api/v1",
	}
	for in, want := range cases {
		if got := normalizeBasePath(in); got != want {
			t.Fatalf("normalizeBasePath(%q) = %q, want %q", in, got, want)
		}
	}
}
