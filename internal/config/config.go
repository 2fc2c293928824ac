// Package config loads runtime settings from the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/neexbeast/museum-checkin/internal/geo"
)

// Config holds every setting of the check-in client.
type Config struct {
	APIBaseURL          string        `mapstructure:"API_BASE_URL"`
	RedisURL            string        `mapstructure:"REDIS_URL"`
	DeviceID            string        `mapstructure:"DEVICE_ID"`
	HTTPTimeout         time.Duration `mapstructure:"HTTP_TIMEOUT"`
	CheckinRadiusMeters float64       `mapstructure:"CHECKIN_RADIUS_METERS"`
	LogLevel            string        `mapstructure:"LOG_LEVEL"`

	// MetricsTextfile, when set, receives the run's metrics on exit.
	MetricsTextfile string `mapstructure:"METRICS_TEXTFILE"`
}

var defaults = map[string]any{
	"API_BASE_URL":          "http://localhost:8080",
	"REDIS_URL":             "redis://localhost:6379/0",
	"DEVICE_ID":             "default",
	"HTTP_TIMEOUT":          "10s",
	"CHECKIN_RADIUS_METERS": geo.DefaultCheckinRadiusMeters,
	"LOG_LEVEL":             "info",
	"METRICS_TEXTFILE":      "",
}

// Load reads the configuration from the environment, falling back to defaults.
func Load() (Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	for key, def := range defaults {
		v.SetDefault(key, def)
		if err := v.BindEnv(key); err != nil {
			return Config{}, fmt.Errorf("binding %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}
	cfg.APIBaseURL = strings.TrimRight(cfg.APIBaseURL, "/")

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	var errs []error
	if u, err := url.Parse(c.APIBaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("API_BASE_URL %q is not an absolute URL", c.APIBaseURL))
	}
	if c.DeviceID == "" {
		errs = append(errs, errors.New("DEVICE_ID is empty"))
	}
	if c.HTTPTimeout <= 0 {
		errs = append(errs, fmt.Errorf("HTTP_TIMEOUT %s must be positive", c.HTTPTimeout))
	}
	if c.CheckinRadiusMeters <= 0 {
		errs = append(errs, fmt.Errorf("CHECKIN_RADIUS_METERS %v must be positive", c.CheckinRadiusMeters))
	}
	if _, err := c.Level(); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Level parses LogLevel.
func (c Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("LOG_LEVEL %q: %w", c.LogLevel, err)
	}
	return l, nil
}
