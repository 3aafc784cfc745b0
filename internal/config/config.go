package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the application.
type Config struct {
	Port        string
	DatabaseURL string
	RedisURL    string

	// Job processing
	DurableQueue bool
	JobQueueName string
	NumWorkers   int
	MaxAttempts  int
	JobTimeout   time.Duration

	// Subscription lifecycle
	RenewalThreshold time.Duration
	SubscriptionTTL  time.Duration
	SubscriptionTick time.Duration

	// Polling reconciler
	PollInterval time.Duration

	// Webhook + platform
	ClientState      string
	NotificationURL  string
	PlatformBaseURL  string
	PlatformToken    string
	PlatformRateCap  int
	MonitoredSources []string
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: getEnv("DATABASE_URL", ""),
		RedisURL:    getEnv("REDIS_URL", ""),

		DurableQueue: getEnvBool("DURABLE_QUEUE", false),
		JobQueueName: getEnv("JOB_QUEUE_NAME", "ingest_jobs"),
		NumWorkers:   getEnvInt("NUM_WORKERS", 10),
		MaxAttempts:  getEnvInt("MAX_ATTEMPTS", 5),
		JobTimeout:   getEnvDuration("JOB_TIMEOUT", 60*time.Second),

		RenewalThreshold: getEnvDuration("RENEWAL_THRESHOLD", 24*time.Hour),
		SubscriptionTTL:  getEnvDuration("SUBSCRIPTION_TTL", 71*time.Hour),
		SubscriptionTick: getEnvDuration("SUBSCRIPTION_TICK", 5*time.Minute),

		PollInterval: getEnvDuration("POLL_INTERVAL", 5*time.Minute),

		ClientState:      getEnv("WEBHOOK_CLIENT_STATE", ""),
		NotificationURL:  getEnv("NOTIFICATION_URL", ""),
		PlatformBaseURL:  getEnv("PLATFORM_BASE_URL", ""),
		PlatformToken:    getEnv("PLATFORM_TOKEN", ""),
		PlatformRateCap:  getEnvInt("PLATFORM_RATE_LIMIT", 10),
		MonitoredSources: getEnvList("MONITORED_SOURCES"),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.ClientState == "" {
		return nil, fmt.Errorf("WEBHOOK_CLIENT_STATE is required")
	}
	if cfg.NotificationURL == "" {
		return nil, fmt.Errorf("NOTIFICATION_URL is required")
	}
	if cfg.PlatformBaseURL == "" {
		return nil, fmt.Errorf("PLATFORM_BASE_URL is required")
	}
	if len(cfg.MonitoredSources) == 0 {
		return nil, fmt.Errorf("MONITORED_SOURCES is required")
	}
	// A durable queue without a broker connection must never silently fall
	// back to memory; reject it here instead of at the first enqueue.
	if cfg.DurableQueue && cfg.RedisURL == "" {
		return nil, fmt.Errorf("DURABLE_QUEUE requires REDIS_URL")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		b, err := strconv.ParseBool(val)
		if err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		d, err := time.ParseDuration(val)
		if err == nil {
			return d
		}
	}
	return fallback
}

func getEnvList(key string) []string {
	val := os.Getenv(key)
	if val == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
