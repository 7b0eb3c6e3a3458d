package api

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"PORT", "LISTEN_ADDR", "LOG_LEVEL", "TEXTRACT_OBS_DB",
		"TEXTRACT_API_KEY_HASH", "TEXTRACT_MAX_UPLOAD_BYTES", "TEXTRACT_CORS_ORIGINS"} {
		t.Setenv(k, "")
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearEnv(t)
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Listen != ":8000" || cfg.MaxUploadBytes != 50<<20 || cfg.RequestTimeout != 60*time.Second {
		t.Errorf("defaults = %+v", cfg)
	}
	if cfg.RateLimit.RequestsPerSecond != 20 || cfg.RateLimit.Burst != 40 {
		t.Errorf("rate limit = %+v", cfg.RateLimit)
	}
	if cfg.Retention.AuditDays != 90 {
		t.Errorf("retention = %+v", cfg.Retention)
	}
	if cfg.ObsDB != "" {
		t.Errorf("observability enabled by default: %q", cfg.ObsDB)
	}
}

func TestLoadConfig_File(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "textract.yaml")
	yaml := `
listen: "127.0.0.1:9000"
max_upload_bytes: 1048576
request_timeout: 5s
obs_db: /tmp/obs.db
rate_limit:
  requests_per_second: -1
cors:
  allowed_origins: ["https://app.example.com"]
layout:
  line_margin: 0.6
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Listen != "127.0.0.1:9000" || cfg.MaxUploadBytes != 1<<20 || cfg.RequestTimeout != 5*time.Second {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.RateLimit.RequestsPerSecond != -1 {
		t.Errorf("rate limit = %+v", cfg.RateLimit)
	}
	if len(cfg.CORS.AllowedOrigins) != 1 || cfg.CORS.AllowedOrigins[0] != "https://app.example.com" {
		t.Errorf("origins = %v", cfg.CORS.AllowedOrigins)
	}
	if cfg.Layout.LineMargin != 0.6 {
		t.Errorf("layout = %+v", cfg.Layout)
	}
}

func TestLoadConfig_Env(t *testing.T) {
	// WHAT: Environment variables override file values.
	// WHY: Container deployments configure through the environment only.
	clearEnv(t)
	t.Setenv("PORT", "7000")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("TEXTRACT_OBS_DB", "obs.db")
	t.Setenv("TEXTRACT_MAX_UPLOAD_BYTES", "2048")
	t.Setenv("TEXTRACT_CORS_ORIGINS", "https://a.example, ,https://b.example")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Listen != ":7000" || cfg.ObsDB != "obs.db" || cfg.MaxUploadBytes != 2048 {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.SlogLevel() != slog.LevelDebug {
		t.Errorf("level = %v", cfg.SlogLevel())
	}
	if len(cfg.CORS.AllowedOrigins) != 2 {
		t.Errorf("origins = %v", cfg.CORS.AllowedOrigins)
	}

	t.Setenv("LISTEN_ADDR", "0.0.0.0:7001")
	cfg, _ = LoadConfig("")
	if cfg.Listen != "0.0.0.0:7001" {
		t.Errorf("LISTEN_ADDR: listen = %q", cfg.Listen)
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("missing file: expected error")
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	os.WriteFile(path, []byte("listen: [unclosed"), 0o644)
	if _, err := LoadConfig(path); err == nil {
		t.Error("bad yaml: expected error")
	}

	t.Setenv("TEXTRACT_MAX_UPLOAD_BYTES", "lots")
	if _, err := LoadConfig(""); err == nil {
		t.Error("bad TEXTRACT_MAX_UPLOAD_BYTES: expected error")
	}
}

func TestSlogLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"":        slog.LevelInfo,
		"DEBUG":   slog.LevelDebug,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := (&Config{LogLevel: in}).SlogLevel(); got != want {
			t.Errorf("SlogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
