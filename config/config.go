// Package config loads process configuration from environment variables
// using spf13/viper, with the defaults the rest of the module assumes
// when a variable is unset.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds every environment-driven setting a scheduler, job-worker,
// or web process needs at startup.
type Config struct {
	PollInterval              time.Duration
	BatchLimit                int
	LeaseSeconds              time.Duration
	MaxAttempts               int
	BaseDelaySeconds          time.Duration
	Concurrency               int
	SingletonTTLSeconds       time.Duration
	SingletonRefreshSeconds   time.Duration
	EnableHeartbeat           bool
	DailySummaryUsers         []string
	WorkSamplingPromptsPerDay int

	AWSRegion   string
	DynamoTable string
	SentryDSN   string
}

// Load reads configuration from environment variables, applying the
// defaults documented for each setting.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("poll_interval_seconds", 30)
	v.SetDefault("batch_limit", 25)
	v.SetDefault("lease_seconds", 60)
	v.SetDefault("max_attempts", 5)
	v.SetDefault("base_delay_seconds", 60)
	v.SetDefault("concurrency", 8)
	v.SetDefault("singleton_ttl_seconds", 90)
	v.SetDefault("singleton_refresh_seconds", 30)
	v.SetDefault("enable_heartbeat", false)
	v.SetDefault("daily_summary_users", "")
	v.SetDefault("work_sampling_prompts_per_day", 5)
	v.SetDefault("aws_region", "us-east-1")
	v.SetDefault("dynamo_table", "CompanionMemory")
	v.SetDefault("sentry_dsn", "")

	cfg := &Config{
		PollInterval:              time.Duration(v.GetInt("poll_interval_seconds")) * time.Second,
		BatchLimit:                v.GetInt("batch_limit"),
		LeaseSeconds:              time.Duration(v.GetInt("lease_seconds")) * time.Second,
		MaxAttempts:               v.GetInt("max_attempts"),
		BaseDelaySeconds:          time.Duration(v.GetInt("base_delay_seconds")) * time.Second,
		Concurrency:               v.GetInt("concurrency"),
		SingletonTTLSeconds:       time.Duration(v.GetInt("singleton_ttl_seconds")) * time.Second,
		SingletonRefreshSeconds:   time.Duration(v.GetInt("singleton_refresh_seconds")) * time.Second,
		EnableHeartbeat:           v.GetBool("enable_heartbeat"),
		DailySummaryUsers:         splitNonEmpty(v.GetString("daily_summary_users")),
		WorkSamplingPromptsPerDay: v.GetInt("work_sampling_prompts_per_day"),
		AWSRegion:                 v.GetString("aws_region"),
		DynamoTable:               v.GetString("dynamo_table"),
		SentryDSN:                 v.GetString("sentry_dsn"),
	}

	return cfg, nil
}

func splitNonEmpty(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
