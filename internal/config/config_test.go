package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("API_TIMEOUT_SECONDS", "")
	t.Setenv("PAGE_SIZE", "")
	t.Setenv("CACHE_BACKEND", "")

	cfg, _ := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port 8080, got %q", cfg.Port)
	}
	if cfg.APITimeout != 15*time.Second {
		t.Fatalf("expected 15s api timeout, got %s", cfg.APITimeout)
	}
	if cfg.PageSize != 6 {
		t.Fatalf("expected page size 6, got %d", cfg.PageSize)
	}
	if cfg.CacheBackend != "memory" {
		t.Fatalf("expected memory cache backend, got %q", cfg.CacheBackend)
	}
}

func TestLoadOverridesAndBadValues(t *testing.T) {
	t.Setenv("API_BASE_URL", "http://api.local/api/")
	t.Setenv("API_TIMEOUT_SECONDS", "3")
	t.Setenv("PAGE_SIZE", "-2")
	t.Setenv("COOKIE_SECURE", "yes-please")
	t.Setenv("CACHE_BACKEND", "Redis")

	cfg, _ := Load()
	if cfg.APIBaseURL != "http://api.local/api" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.APIBaseURL)
	}
	if cfg.APITimeout != 3*time.Second {
		t.Fatalf("expected 3s timeout, got %s", cfg.APITimeout)
	}
	if cfg.PageSize != 6 {
		t.Fatalf("expected non-positive page size to fall back to 6, got %d", cfg.PageSize)
	}
	if cfg.CookieSecure {
		t.Fatalf("expected unparsable bool to fall back to false")
	}
	if cfg.CacheBackend != "redis" {
		t.Fatalf("expected lower-cased backend, got %q", cfg.CacheBackend)
	}
}

func TestOAuthConfigured(t *testing.T) {
	cfg := Config{GoogleClientID: "id", GoogleClientSecret: "secret"}
	if cfg.OAuthConfigured() {
		t.Fatalf("expected missing redirect url to disable oauth")
	}
	cfg.GoogleRedirectURL = "http://localhost:8080/auth/google/callback"
	if !cfg.OAuthConfigured() {
		t.Fatalf("expected oauth configured")
	}
	if cfg.PasswordLoginConfigured() {
		t.Fatalf("password accounts need an identity api key")
	}
}

func TestPaymentWaitFitsWriteTimeout(t *testing.T) {
	cfg := Config{APITimeout: 15 * time.Second, PaymentPollAttempts: 10, PaymentPollInterval: 2 * time.Second}
	if got := cfg.PaymentWait(); got != 35*time.Second {
		t.Fatalf("PaymentWait() = %s, want 35s", got)
	}
	if cfg.WriteTimeout() <= cfg.PaymentWait()+cfg.APITimeout {
		t.Fatalf("WriteTimeout() = %s leaves no room around the payment wait", cfg.WriteTimeout())
	}

	cfg.PaymentPollAttempts = 0
	if got := cfg.PaymentWait(); got != 17*time.Second {
		t.Fatalf("PaymentWait() with no attempts = %s, want one interval plus the api timeout", got)
	}
}
