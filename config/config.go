// Package config loads and validates the proxy's configuration: a YAML file
// overlaid with SCIM_PROXY_* environment variables, following the same
// two-layer precedence the teacher's gateway applied to its own config.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation error [%s]: %s", e.Field, e.Message)
}

// ValidationErrors represents multiple validation errors
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("config validation failed with %d errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// Config is the proxy's full configuration.
type Config struct {
	UpstreamBaseURL        string `yaml:"upstream_base_url"`
	UpstreamTimeout        int    `yaml:"upstream_timeout"`
	UpstreamMaxConnections int    `yaml:"upstream_max_connections"`
	MaxKeepAliveConns      int    `yaml:"max_keepalive_connections"`

	ProxyHost string `yaml:"proxy_host"`
	ProxyPort int    `yaml:"proxy_port"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	CORSOrigins string `yaml:"cors_origins"`

	MaxFilterComplexity   int `yaml:"max_filter_complexity"`
	MaxFilterFetchSize    int `yaml:"max_filter_fetch_size"`
	FilterFetchMultiplier int `yaml:"filter_fetch_multiplier"`
}

// DefaultConfig returns a configuration matching the upstream proxy's own
// defaults.
func DefaultConfig() *Config {
	return &Config{
		UpstreamBaseURL:        "http://localhost:8080/scim/v2",
		UpstreamTimeout:        30,
		UpstreamMaxConnections: 100,
		MaxKeepAliveConns:      20,
		ProxyHost:              "0.0.0.0",
		ProxyPort:              8000,
		LogLevel:               "info",
		LogFormat:              "json",
		CORSOrigins:            "*",
		MaxFilterComplexity:    50,
		MaxFilterFetchSize:     2000,
		FilterFetchMultiplier:  20,
	}
}

// Load reads path as YAML into a Config seeded with DefaultConfig, then
// overlays any recognized SCIM_PROXY_<FIELD> environment variables.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v, ok := os.LookupEnv("SCIM_PROXY_UPSTREAM_BASE_URL"); ok {
		cfg.UpstreamBaseURL = v
	}
	if v, ok := envInt("SCIM_PROXY_UPSTREAM_TIMEOUT"); ok {
		cfg.UpstreamTimeout = v
	}
	if v, ok := envInt("SCIM_PROXY_UPSTREAM_MAX_CONNECTIONS"); ok {
		cfg.UpstreamMaxConnections = v
	}
	if v, ok := envInt("SCIM_PROXY_MAX_KEEPALIVE_CONNECTIONS"); ok {
		cfg.MaxKeepAliveConns = v
	}
	if v, ok := os.LookupEnv("SCIM_PROXY_PROXY_HOST"); ok {
		cfg.ProxyHost = v
	}
	if v, ok := envInt("SCIM_PROXY_PROXY_PORT"); ok {
		cfg.ProxyPort = v
	}
	if v, ok := os.LookupEnv("SCIM_PROXY_LOG_LEVEL"); ok {
		cfg.LogLevel = v
	}
	if v, ok := os.LookupEnv("SCIM_PROXY_LOG_FORMAT"); ok {
		cfg.LogFormat = v
	}
	if v, ok := os.LookupEnv("SCIM_PROXY_CORS_ORIGINS"); ok {
		cfg.CORSOrigins = v
	}
	if v, ok := envInt("SCIM_PROXY_MAX_FILTER_COMPLEXITY"); ok {
		cfg.MaxFilterComplexity = v
	}
	if v, ok := envInt("SCIM_PROXY_MAX_FILTER_FETCH_SIZE"); ok {
		cfg.MaxFilterFetchSize = v
	}
	if v, ok := envInt("SCIM_PROXY_FILTER_FETCH_MULTIPLIER"); ok {
		cfg.FilterFetchMultiplier = v
	}
}

func envInt(name string) (int, bool) {
	raw, ok := os.LookupEnv(name)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Validate validates the configuration, accumulating every problem found
// rather than stopping at the first.
func (c *Config) Validate() error {
	var errors ValidationErrors

	if c.UpstreamBaseURL == "" {
		errors = append(errors, ValidationError{
			Field:   "upstream_base_url",
			Message: "cannot be empty",
		})
	} else if parsed, err := url.Parse(c.UpstreamBaseURL); err != nil {
		errors = append(errors, ValidationError{
			Field:   "upstream_base_url",
			Message: fmt.Sprintf("invalid URL: %v", err),
		})
	} else if parsed.Scheme != "http" && parsed.Scheme != "https" {
		errors = append(errors, ValidationError{
			Field:   "upstream_base_url",
			Message: fmt.Sprintf("invalid scheme '%s': must be http or https", parsed.Scheme),
		})
	}

	if c.ProxyPort < 1 || c.ProxyPort > 65535 {
		errors = append(errors, ValidationError{
			Field:   "proxy_port",
			Message: fmt.Sprintf("port %d is out of range: must be between 1 and 65535", c.ProxyPort),
		})
	}

	if c.UpstreamTimeout < 1 {
		errors = append(errors, ValidationError{
			Field:   "upstream_timeout",
			Message: "must be at least 1 second",
		})
	}

	if c.MaxFilterFetchSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "max_filter_fetch_size",
			Message: "must be at least 1",
		})
	}

	if c.FilterFetchMultiplier < 1 {
		errors = append(errors, ValidationError{
			Field:   "filter_fetch_multiplier",
			Message: "must be at least 1",
		})
	}

	logFormat := strings.ToLower(c.LogFormat)
	if logFormat != "json" && logFormat != "text" {
		errors = append(errors, ValidationError{
			Field:   "log_format",
			Message: fmt.Sprintf("invalid log_format '%s': must be 'json' or 'text'", c.LogFormat),
		})
	}

	if len(errors) > 0 {
		return errors
	}
	return nil
}
