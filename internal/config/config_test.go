package config

import (
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"
)

var envMu sync.Mutex

func TestLoadAll_HappyPath_NoRedis(t *testing.T) {
	envMu.Lock()
	defer envMu.Unlock()

	clearTestEnv(t)

	t.Setenv("WEBHOOK_URL", "https://example.com/webhook")

	cfg, err := LoadAll()
	if err != nil {
		t.Fatalf("LoadAll() error: %v", err)
	}

	if cfg.Webhook.URL != "https://example.com/webhook" {
		t.Fatalf("unexpected Webhook.URL: %q", cfg.Webhook.URL)
	}
	if cfg.Server.Address != ":8080" {
		t.Fatalf("unexpected Server.Address default: %q", cfg.Server.Address)
	}
	if cfg.Database.PostgresURL != "" {
		t.Fatalf("expected empty PostgresURL, got %q", cfg.Database.PostgresURL)
	}
	if cfg.Queue.PollInterval != 5*time.Second {
		t.Fatalf("unexpected PollInterval default: %v", cfg.Queue.PollInterval)
	}
	if cfg.Queue.Workers != 2 {
		t.Fatalf("unexpected Workers default: %d", cfg.Queue.Workers)
	}
	if cfg.Queue.SendTimeout != 10*time.Second {
		t.Fatalf("unexpected SendTimeout default: %v", cfg.Queue.SendTimeout)
	}
	if cfg.Queue.StaleAfter != 5*time.Minute {
		t.Fatalf("unexpected StaleAfter default: %v", cfg.Queue.StaleAfter)
	}
	if cfg.Queue.RateLimitSeconds != 60 {
		t.Fatalf("unexpected RateLimitSeconds default: %d", cfg.Queue.RateLimitSeconds)
	}

	if cfg.Redis.Enabled {
		t.Fatalf("expected Redis disabled when REDIS_ADDR not set")
	}
}

func TestLoadAll_HappyPath_WithRedis(t *testing.T) {
	envMu.Lock()
	defer envMu.Unlock()

	clearTestEnv(t)

	t.Setenv("WEBHOOK_URL", "https://example.com/webhook")
	t.Setenv("POSTGRES_URL", "postgres://u:p@localhost:5432/db?sslmode=disable")

	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("REDIS_PASSWORD", "secret")
	t.Setenv("REDIS_DB", "3")

	cfg, err := LoadAll()
	if err != nil {
		t.Fatalf("LoadAll() error: %v", err)
	}

	if cfg.Database.PostgresURL != "postgres://u:p@localhost:5432/db?sslmode=disable" {
		t.Fatalf("unexpected PostgresURL: %q", cfg.Database.PostgresURL)
	}
	if !cfg.Redis.Enabled {
		t.Fatalf("expected Redis enabled")
	}
	if cfg.Redis.Address != "localhost:6379" {
		t.Fatalf("unexpected Redis.Address: %q", cfg.Redis.Address)
	}
	if cfg.Redis.Password != "secret" {
		t.Fatalf("unexpected Redis.Password: %q", cfg.Redis.Password)
	}
	if cfg.Redis.DB != 3 {
		t.Fatalf("unexpected Redis.DB: %d", cfg.Redis.DB)
	}
}

func TestLoadAll_RequiredEnvMissing(t *testing.T) {
	envMu.Lock()
	defer envMu.Unlock()

	clearTestEnv(t)

	_, err := LoadAll()
	if err == nil {
		t.Fatalf("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "WEBHOOK_URL") {
		t.Fatalf("expected error mentioning WEBHOOK_URL, got: %v", err)
	}
}

func TestLoadAll_InvalidInts(t *testing.T) {
	envMu.Lock()
	defer envMu.Unlock()

	cases := []struct {
		name string
		key  string
		val  string
	}{
		{"invalid QUEUE_POLL_SECONDS", "QUEUE_POLL_SECONDS", "abc"},
		{"invalid QUEUE_WORKERS", "QUEUE_WORKERS", "nope"},
		{"invalid SEND_TIMEOUT_SECONDS", "SEND_TIMEOUT_SECONDS", "x"},
		{"invalid STALE_CLAIM_MINUTES", "STALE_CLAIM_MINUTES", "x"},
		{"invalid RATE_LIMIT_SECONDS", "RATE_LIMIT_SECONDS", "sixty"},
		{"invalid REMINDER_PRIORITY", "REMINDER_PRIORITY", "high"},
		{"invalid REDIS_DB", "REDIS_DB", "bad"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			clearTestEnv(t)

			t.Setenv("WEBHOOK_URL", "https://example.com/webhook")
			if strings.HasPrefix(tc.key, "REDIS_") {
				t.Setenv("REDIS_ADDR", "localhost:6379")
			}
			t.Setenv(tc.key, tc.val)

			_, err := LoadAll()
			if err == nil {
				t.Fatalf("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tc.key) {
				t.Fatalf("expected error mentioning %s, got: %v", tc.key, err)
			}
		})
	}
}

func TestLoadAll_ValidationFailures(t *testing.T) {
	envMu.Lock()
	defer envMu.Unlock()

	cases := []struct {
		name string
		key  string
		val  string
		want string
	}{
		{"poll interval <= 0", "QUEUE_POLL_SECONDS", "0", "QUEUE_POLL_SECONDS"},
		{"workers <= 0", "QUEUE_WORKERS", "0", "QUEUE_WORKERS"},
		{"send timeout <= 0", "SEND_TIMEOUT_SECONDS", "-1", "SEND_TIMEOUT_SECONDS"},
		{"stale claim <= 0", "STALE_CLAIM_MINUTES", "0", "STALE_CLAIM_MINUTES"},
		{"rate limit below floor", "RATE_LIMIT_SECONDS", "5", "RATE_LIMIT_SECONDS"},
		{"rate limit above ceiling", "RATE_LIMIT_SECONDS", "500", "RATE_LIMIT_SECONDS"},
		{"priority out of range", "REMINDER_PRIORITY", "9", "REMINDER_PRIORITY"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			clearTestEnv(t)

			t.Setenv("WEBHOOK_URL", "https://example.com/webhook")
			t.Setenv(tc.key, tc.val)

			_, err := LoadAll()
			if err == nil {
				t.Fatalf("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error mentioning %s, got: %v", tc.want, err)
			}
		})
	}
}

func TestRequireEnv(t *testing.T) {
	envMu.Lock()
	defer envMu.Unlock()

	clearTestEnv(t)

	_, err := requireEnv("MISSING_KEY")
	if err == nil {
		t.Fatalf("expected error, got nil")
	}

	t.Setenv("FOO", "bar")
	v, err := requireEnv("FOO")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != "bar" {
		t.Fatalf("expected %q, got %q", "bar", v)
	}
}

func TestGetEnv(t *testing.T) {
	envMu.Lock()
	defer envMu.Unlock()

	clearTestEnv(t)

	if got := getEnv("NOPE", "default"); got != "default" {
		t.Fatalf("expected default, got %q", got)
	}

	t.Setenv("A", "x")
	if got := getEnv("A", "default"); got != "x" {
		t.Fatalf("expected x, got %q", got)
	}
}

func TestGetEnvInt(t *testing.T) {
	envMu.Lock()
	defer envMu.Unlock()

	clearTestEnv(t)

	got, err := getEnvInt("MISSING", 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 7 {
		t.Fatalf("expected default 7, got %d", got)
	}

	t.Setenv("N", "123")
	got, err = getEnvInt("N", 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 123 {
		t.Fatalf("expected 123, got %d", got)
	}

	t.Setenv("BAD", "abc")
	_, err = getEnvInt("BAD", 7)
	if err == nil {
		t.Fatalf("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "BAD") {
		t.Fatalf("expected error mentioning BAD, got: %v", err)
	}
}

func TestJoinErrors(t *testing.T) {
	if err := joinErrors(nil); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}

	e1 := errors.New("one")
	e2 := errors.New("two")
	err := joinErrors([]error{e1, e2})
	if err == nil {
		t.Fatalf("expected error, got nil")
	}

	if !errors.Is(err, e1) {
		t.Fatalf("expected errors.Is(err, e1) to be true")
	}
	if !errors.Is(err, e2) {
		t.Fatalf("expected errors.Is(err, e2) to be true")
	}
}

func clearTestEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"POSTGRES_URL",
		"WEBHOOK_URL",
		"SERVER_ADDRESS",
		"QUEUE_POLL_SECONDS",
		"QUEUE_WORKERS",
		"SEND_TIMEOUT_SECONDS",
		"STALE_CLAIM_MINUTES",
		"RATE_LIMIT_SECONDS",
		"REMINDER_TEMPLATE",
		"REMINDER_PRIORITY",
		"REDIS_ADDR",
		"REDIS_PASSWORD",
		"REDIS_DB",
		"FOO",
		"A",
		"N",
		"BAD",
	}
	for _, k := range keys {
		_ = os.Unsetenv(k)
	}
}
