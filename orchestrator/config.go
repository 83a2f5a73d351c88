// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package orchestrator

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"complianceflow/platform/orchestrator/circuitbreaker"
	"complianceflow/platform/orchestrator/submission"
)

// Config holds the service settings. Every field can be set from the
// environment; CONFIG_FILE optionally names a YAML file with the same keys.
type Config struct {
	Port          string
	DatabaseURL   string
	RedisURL      string
	EventPrefix   string
	JWTSecret     string
	InventoryFile string
	AgentsFile    string
	LogLevel      string

	RetentionInterval time.Duration
	RetentionPeriod   time.Duration

	BreakerErrorThreshold int
	BreakerWindow         time.Duration
	BreakerTimeout        time.Duration
	BreakerMaxTimeout     time.Duration

	CoordinatorTimeout time.Duration

	// PremiumOrgs get premium SLAs when the token carries no org_tier.
	PremiumOrgs []string

	AllowedOrigins []string
}

// envKeys maps config keys onto the environment variables that set them.
var envKeys = map[string]string{
	"port":                    "PORT",
	"database_url":            "DATABASE_URL",
	"redis_url":               "REDIS_URL",
	"event_prefix":            "EVENT_PREFIX",
	"jwt_secret":              "JWT_SECRET",
	"inventory_file":          "INVENTORY_FILE",
	"agents_file":             "AGENTS_FILE",
	"log_level":               "LOG_LEVEL",
	"retention_interval":      "RETENTION_INTERVAL",
	"retention_period":        "RETENTION_PERIOD",
	"breaker_error_threshold": "BREAKER_ERROR_THRESHOLD",
	"breaker_window":          "BREAKER_WINDOW",
	"breaker_timeout":         "BREAKER_TIMEOUT",
	"breaker_max_timeout":     "BREAKER_MAX_TIMEOUT",
	"coordinator_timeout":     "COORDINATOR_TIMEOUT",
	"premium_orgs":            "PREMIUM_ORGS",
	"allowed_origins":         "ALLOWED_ORIGINS",
}

func setDefaults(v *viper.Viper) {
	cb := circuitbreaker.DefaultConfig()

	v.SetDefault("port", "8081")
	v.SetDefault("event_prefix", "events:")
	v.SetDefault("log_level", "INFO")
	v.SetDefault("retention_interval", time.Hour)
	v.SetDefault("retention_period", submission.DefaultRetention)
	v.SetDefault("breaker_error_threshold", cb.ErrorThreshold)
	v.SetDefault("breaker_window", cb.Window)
	v.SetDefault("breaker_timeout", cb.DefaultTimeout)
	v.SetDefault("breaker_max_timeout", cb.MaxTimeout)
	v.SetDefault("coordinator_timeout", 30*time.Second)
	v.SetDefault("allowed_origins", "*")
}

// LoadConfig reads the configuration from the environment and, when
// CONFIG_FILE is set, from that YAML file. Environment values win.
func LoadConfig() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	for key, env := range envKeys {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("binding %s: %w", env, err)
		}
	}
	if err := v.BindEnv("config_file", "CONFIG_FILE"); err != nil {
		return nil, fmt.Errorf("binding CONFIG_FILE: %w", err)
	}

	if path := v.GetString("config_file"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config from %s: %w", path, err)
		}
	}

	cfg := &Config{
		Port:                  v.GetString("port"),
		DatabaseURL:           v.GetString("database_url"),
		RedisURL:              v.GetString("redis_url"),
		EventPrefix:           v.GetString("event_prefix"),
		JWTSecret:             v.GetString("jwt_secret"),
		InventoryFile:         v.GetString("inventory_file"),
		AgentsFile:            v.GetString("agents_file"),
		LogLevel:              v.GetString("log_level"),
		RetentionInterval:     v.GetDuration("retention_interval"),
		RetentionPeriod:       v.GetDuration("retention_period"),
		BreakerErrorThreshold: v.GetInt("breaker_error_threshold"),
		BreakerWindow:         v.GetDuration("breaker_window"),
		BreakerTimeout:        v.GetDuration("breaker_timeout"),
		BreakerMaxTimeout:     v.GetDuration("breaker_max_timeout"),
		CoordinatorTimeout:    v.GetDuration("coordinator_timeout"),
		PremiumOrgs:           splitList(v.Get("premium_orgs")),
		AllowedOrigins:        splitList(v.Get("allowed_origins")),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings that have no safe fallback.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Port) == "" {
		errs = append(errs, errors.New("PORT must not be empty"))
	}
	if c.BreakerErrorThreshold <= 0 {
		errs = append(errs, fmt.Errorf("BREAKER_ERROR_THRESHOLD must be positive, got %d", c.BreakerErrorThreshold))
	}
	for name, d := range map[string]time.Duration{
		"RETENTION_INTERVAL":  c.RetentionInterval,
		"RETENTION_PERIOD":    c.RetentionPeriod,
		"BREAKER_WINDOW":      c.BreakerWindow,
		"BREAKER_TIMEOUT":     c.BreakerTimeout,
		"BREAKER_MAX_TIMEOUT": c.BreakerMaxTimeout,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", name, d))
		}
	}
	if c.BreakerTimeout > c.BreakerMaxTimeout {
		errs = append(errs, fmt.Errorf("BREAKER_TIMEOUT %s exceeds BREAKER_MAX_TIMEOUT %s", c.BreakerTimeout, c.BreakerMaxTimeout))
	}
	if c.CoordinatorTimeout < 0 {
		errs = append(errs, fmt.Errorf("COORDINATOR_TIMEOUT must not be negative, got %s", c.CoordinatorTimeout))
	}
	return errors.Join(errs...)
}

// BreakerConfig returns the circuit breaker settings.
func (c *Config) BreakerConfig() circuitbreaker.Config {
	return circuitbreaker.Config{
		DefaultTimeout:     c.BreakerTimeout,
		MaxTimeout:         c.BreakerMaxTimeout,
		ErrorThreshold:     c.BreakerErrorThreshold,
		Window:             c.BreakerWindow,
		EnableAutoRecovery: true,
	}
}

// splitList accepts a comma separated string (environment) or a YAML list.
func splitList(raw interface{}) []string {
	var items []string
	switch val := raw.(type) {
	case nil:
		return nil
	case string:
		items = strings.Split(val, ",")
	case []interface{}:
		for _, item := range val {
			items = append(items, fmt.Sprint(item))
		}
	case []string:
		items = val
	default:
		items = []string{fmt.Sprint(val)}
	}

	out := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
