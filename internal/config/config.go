package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/studiobell/dispatch/internal/model"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Queue     QueueConfig
	Reminders RemindersConfig
	Webhook   WebhookConfig
}

type ServerConfig struct {
	Address string
}

type DatabaseConfig struct {
	// PostgresURL empty means run on the in-memory store (dev/test only).
	PostgresURL string
}

type RedisConfig struct {
	Enabled  bool
	Address  string
	Password string
	DB       int
}

type QueueConfig struct {
	PollInterval     time.Duration
	Workers          int
	SendTimeout      time.Duration
	StaleAfter       time.Duration
	RateLimitSeconds int
}

type RemindersConfig struct {
	Template string
	Priority int
}

type WebhookConfig struct {
	URL string
}

func LoadAll() (*Config, error) {
	var errs []error

	webhookURL, err := requireEnv("WEBHOOK_URL")
	if err != nil {
		errs = append(errs, err)
	}

	pollSeconds, err := getEnvInt("QUEUE_POLL_SECONDS", 5)
	if err != nil {
		errs = append(errs, err)
	}
	workers, err := getEnvInt("QUEUE_WORKERS", 2)
	if err != nil {
		errs = append(errs, err)
	}
	sendTimeout, err := getEnvInt("SEND_TIMEOUT_SECONDS", 10)
	if err != nil {
		errs = append(errs, err)
	}
	staleMinutes, err := getEnvInt("STALE_CLAIM_MINUTES", 5)
	if err != nil {
		errs = append(errs, err)
	}
	rateLimit, err := getEnvInt("RATE_LIMIT_SECONDS", model.DefaultRateLimitSeconds)
	if err != nil {
		errs = append(errs, err)
	}
	reminderPriority, err := getEnvInt("REMINDER_PRIORITY", model.DefaultPriority)
	if err != nil {
		errs = append(errs, err)
	}

	redisCfg, err := loadRedisConfig()
	if err != nil {
		errs = append(errs, err)
	}

	if err := joinErrors(errs); err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Address: getEnv("SERVER_ADDRESS", ":8080"),
		},
		Database: DatabaseConfig{
			PostgresURL: os.Getenv("POSTGRES_URL"),
		},
		Webhook: WebhookConfig{
			URL: webhookURL,
		},
		Queue: QueueConfig{
			PollInterval:     time.Duration(pollSeconds) * time.Second,
			Workers:          workers,
			SendTimeout:      time.Duration(sendTimeout) * time.Second,
			StaleAfter:       time.Duration(staleMinutes) * time.Minute,
			RateLimitSeconds: rateLimit,
		},
		Reminders: RemindersConfig{
			Template: getEnv("REMINDER_TEMPLATE", ""),
			Priority: reminderPriority,
		},
		Redis: redisCfg,
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadRedisConfig() (RedisConfig, error) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		return RedisConfig{Enabled: false}, nil
	}

	db, err := getEnvInt("REDIS_DB", 0)
	if err != nil {
		return RedisConfig{}, err
	}

	return RedisConfig{
		Enabled:  true,
		Address:  addr,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       db,
	}, nil
}

func validate(cfg *Config) error {
	var errs []error

	if cfg.Queue.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("QUEUE_POLL_SECONDS must be > 0"))
	}
	if cfg.Queue.Workers <= 0 {
		errs = append(errs, fmt.Errorf("QUEUE_WORKERS must be > 0"))
	}
	if cfg.Queue.SendTimeout <= 0 {
		errs = append(errs, fmt.Errorf("SEND_TIMEOUT_SECONDS must be > 0"))
	}
	if cfg.Queue.StaleAfter <= 0 {
		errs = append(errs, fmt.Errorf("STALE_CLAIM_MINUTES must be > 0"))
	}
	if cfg.Queue.RateLimitSeconds < model.MinRateLimitSeconds ||
		cfg.Queue.RateLimitSeconds > model.MaxRateLimitSeconds {
		errs = append(errs, fmt.Errorf("RATE_LIMIT_SECONDS must be between %d and %d",
			model.MinRateLimitSeconds, model.MaxRateLimitSeconds))
	}
	if cfg.Reminders.Priority < model.MinPriority || cfg.Reminders.Priority > model.MaxPriority {
		errs = append(errs, fmt.Errorf("REMINDER_PRIORITY must be between %d and %d",
			model.MinPriority, model.MaxPriority))
	}

	return joinErrors(errs)
}

func requireEnv(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("missing required env var: %s", key)
	}
	return val, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid int for env %s: %q", key, v)
	}
	return i, nil
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	return errors.Join(errs...)
}
