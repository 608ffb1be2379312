package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("AUTOFUND_ENV", "")
	t.Setenv("AUTOFUND_BASE_URL", "")
	t.Setenv("AUTOFUND_CONFIG_FILE", "")
	t.Setenv("AUTOFUND_RETRY_MAX", "")
	t.Setenv("AUTOFUND_POLL_INTERVAL", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BaseURL != "http://localhost:8000" {
		t.Fatalf("expected development base url, got %q", cfg.BaseURL)
	}
	if cfg.RetryMax != 3 || cfg.RetryBaseDelay != time.Second || cfg.RetryMaxDelay != 30*time.Second {
		t.Fatalf("unexpected retry defaults: %d %v %v", cfg.RetryMax, cfg.RetryBaseDelay, cfg.RetryMaxDelay)
	}
	if cfg.PollInterval != 2*time.Second || cfg.PollMaxFailures != 5 {
		t.Fatalf("unexpected poll defaults: %v %d", cfg.PollInterval, cfg.PollMaxFailures)
	}
	if cfg.UploadTimeout != 60*time.Second || cfg.RequestTimeout != 30*time.Second {
		t.Fatalf("unexpected timeouts: %v %v", cfg.RequestTimeout, cfg.UploadTimeout)
	}
}

func TestLoadProductionBaseURL(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("AUTOFUND_ENV", "PRODUCTION")
	t.Setenv("AUTOFUND_BASE_URL", "")
	t.Setenv("AUTOFUND_CONFIG_FILE", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BaseURL != "https://api.aiparati.pt" {
		t.Fatalf("expected production base url, got %q", cfg.BaseURL)
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("AUTOFUND_CONFIG_FILE", "")
	t.Setenv("AUTOFUND_BASE_URL", "http://backend:9000/")
	t.Setenv("AUTOFUND_RETRY_MAX", "5")
	t.Setenv("AUTOFUND_POLL_INTERVAL", "1500ms")
	t.Setenv("AUTOFUND_REQUEST_TIMEOUT", "10")
	t.Setenv("AUTOFUND_RATE_LIMIT_RPS", "2.5")
	t.Setenv("AUTOFUND_BREAKER_ENABLED", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BaseURL != "http://backend:9000" {
		t.Fatalf("expected trimmed base url, got %q", cfg.BaseURL)
	}
	if cfg.RetryMax != 5 || cfg.PollInterval != 1500*time.Millisecond || cfg.RequestTimeout != 10*time.Second {
		t.Fatalf("unexpected overrides: %+v", cfg)
	}
	if cfg.RateLimitRPS != 2.5 || !cfg.BreakerEnabled {
		t.Fatalf("unexpected limiter/breaker overrides: %v %v", cfg.RateLimitRPS, cfg.BreakerEnabled)
	}
}

func TestLoadYAMLOverlayBelowEnvironment(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := filepath.Join(dir, "autofund.yaml")
	content := "retry_max: 7\npoll_interval: 4s\nredis_addr: localhost:6379\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write yaml: %v", err)
	}
	t.Setenv("AUTOFUND_CONFIG_FILE", path)
	t.Setenv("AUTOFUND_RETRY_MAX", "")
	t.Setenv("AUTOFUND_POLL_INTERVAL", "")
	t.Setenv("REDIS_ADDR", "redis:6379")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.RetryMax != 7 || cfg.PollInterval != 4*time.Second {
		t.Fatalf("expected yaml values, got retry=%d poll=%v", cfg.RetryMax, cfg.PollInterval)
	}
	if cfg.RedisAddr != "redis:6379" {
		t.Fatalf("expected env to win over yaml, got %q", cfg.RedisAddr)
	}
}

func TestLoadDotEnvFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("AUTOFUND_MAX_UPLOAD_MB=25\n"), 0o600); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	t.Setenv("AUTOFUND_CONFIG_FILE", "")
	// Registers cleanup so the value godotenv sets does not leak.
	t.Setenv("AUTOFUND_MAX_UPLOAD_MB", "")
	os.Unsetenv("AUTOFUND_MAX_UPLOAD_MB")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.MaxUploadMB != 25 {
		t.Fatalf("expected .env value 25, got %d", cfg.MaxUploadMB)
	}
}

func TestLoadRejectsMissingConfigFile(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("AUTOFUND_CONFIG_FILE", "/nonexistent/autofund.yaml")

	if _, err := Load(); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}
