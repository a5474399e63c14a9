package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. CUPID_AUTH_APP_TOKEN
const EnvPrefix = "CUPID"

// Output formats
const (
	OutputTable = "table"
	OutputJSON  = "json"
	OutputYAML  = "yaml"
)

// Load loads the configuration from file and environment. A missing config
// file is not an error unless configPath names it explicitly.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// AutomaticEnv only applies to keys viper already knows about
	for _, key := range []string{"auth.app_token", "auth.session_token", "api.rate_limit", "api.rate_burst"} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("error binding %s: %w", key, err)
		}
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")

		v.AddConfigPath(".")

		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".cupid"))
		}

		v.AddConfigPath("/etc/cupid/")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("api.url", "http://localhost:8000")
	v.SetDefault("api.timeout", "30s")
	v.SetDefault("api.per_page", 20)

	v.SetDefault("evaluation.workers", 0)
	v.SetDefault("evaluation.batch_size", 100)
	v.SetDefault("evaluation.cache_size", 100)

	v.SetDefault("output.format", OutputTable)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.color", true)
}

// validate checks if the configuration is valid
func validate(cfg *Config) error {
	if cfg.API.URL == "" {
		return fmt.Errorf("api.url is required")
	}
	if u, err := url.Parse(cfg.API.URL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("api.url must be an absolute URL: %q", cfg.API.URL)
	}

	if cfg.API.Timeout < 0 {
		return fmt.Errorf("api.timeout must not be negative")
	}
	if cfg.API.PerPage <= 0 {
		return fmt.Errorf("api.per_page must be positive, got %d", cfg.API.PerPage)
	}
	if cfg.API.RateLimit < 0 {
		return fmt.Errorf("api.rate_limit must not be negative")
	}

	if cfg.Auth.AppToken != "" && cfg.Auth.SessionToken != "" {
		return fmt.Errorf("only one of auth.app_token and auth.session_token may be set")
	}

	for name, expression := range cfg.Filters {
		if strings.TrimSpace(expression) == "" {
			return fmt.Errorf("filter %q has an empty expression", name)
		}
	}

	if cfg.Evaluation.Workers < 0 {
		return fmt.Errorf("evaluation.workers must not be negative")
	}
	if cfg.Evaluation.BatchSize <= 0 {
		return fmt.Errorf("evaluation.batch_size must be positive, got %d", cfg.Evaluation.BatchSize)
	}
	if cfg.Evaluation.CacheSize < 0 {
		return fmt.Errorf("evaluation.cache_size must not be negative")
	}

	validLevels := map[string]bool{
		"trace": true,
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[cfg.Logging.Level] {
		return fmt.Errorf("invalid logging level: %s", cfg.Logging.Level)
	}

	validFormats := map[string]bool{
		"console": true,
		"json":    true,
	}
	if !validFormats[cfg.Logging.Format] {
		return fmt.Errorf("invalid logging format: %s", cfg.Logging.Format)
	}

	switch cfg.Output.Format {
	case OutputTable, OutputJSON, OutputYAML:
	default:
		return fmt.Errorf("invalid output format: %s (must be table, json or yaml)", cfg.Output.Format)
	}

	return nil
}
