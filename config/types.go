package config

import "time"

// Config represents the complete configuration structure
type Config struct {
	API        APIConfig        `mapstructure:"api"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Filters    FilterConfig     `mapstructure:"filters"`
	Evaluation EvaluationConfig `mapstructure:"evaluation"`
	Output     OutputConfig     `mapstructure:"output"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// APIConfig holds Cupid API connection details
type APIConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
	PerPage int           `mapstructure:"per_page"`
	// RateLimit is the maximum number of requests per second, 0 for none
	RateLimit float64 `mapstructure:"rate_limit"`
	RateBurst int     `mapstructure:"rate_burst"`
}

// AuthConfig holds the token used to authenticate. At most one may be set.
type AuthConfig struct {
	AppToken     string `mapstructure:"app_token"`
	SessionToken string `mapstructure:"session_token"`
}

// Token returns whichever token is configured
func (a AuthConfig) Token() string {
	if a.AppToken != "" {
		return a.AppToken
	}
	return a.SessionToken
}

// FilterConfig contains named user filter expressions
type FilterConfig map[string]string

// EvaluationConfig tunes how filters are compiled and evaluated
type EvaluationConfig struct {
	// Workers is the number of evaluation goroutines, 0 for one per CPU
	Workers   int `mapstructure:"workers"`
	BatchSize int `mapstructure:"batch_size"`
	CacheSize int `mapstructure:"cache_size"`
}

// OutputConfig controls how results are printed
type OutputConfig struct {
	Format string `mapstructure:"format"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Color  bool   `mapstructure:"color"`
}
