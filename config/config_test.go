package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate cleanly: %v", err)
	}
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ProxyPort != 8000 || cfg.UpstreamBaseURL != "http://localhost:8080/scim/v2" {
		t.Errorf("expected defaults, got %+v", cfg)
	}
}

func TestLoadYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "upstream_base_url: https://upstream.example.com/scim/v2\nproxy_port: 9000\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing test config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.UpstreamBaseURL != "https://upstream.example.com/scim/v2" {
		t.Errorf("upstream_base_url = %q", cfg.UpstreamBaseURL)
	}
	if cfg.ProxyPort != 9000 {
		t.Errorf("proxy_port = %d, want 9000", cfg.ProxyPort)
	}
	// Fields not present in the file retain their defaults.
	if cfg.MaxFilterComplexity != 50 {
		t.Errorf("max_filter_complexity = %d, want default 50", cfg.MaxFilterComplexity)
	}
}

func TestLoadMissingFileErrors(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("expected an error for a missing config file")
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("SCIM_PROXY_PROXY_PORT", "9999")
	t.Setenv("SCIM_PROXY_LOG_LEVEL", "debug")
	t.Setenv("SCIM_PROXY_UPSTREAM_BASE_URL", "https://env.example.com")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ProxyPort != 9999 {
		t.Errorf("proxy_port = %d, want 9999 from env", cfg.ProxyPort)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("log_level = %q, want debug from env", cfg.LogLevel)
	}
	if cfg.UpstreamBaseURL != "https://env.example.com" {
		t.Errorf("upstream_base_url = %q, want overridden by env", cfg.UpstreamBaseURL)
	}
}

func TestEnvOverridesWinOverFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	os.WriteFile(path, []byte("proxy_port: 7000\n"), 0o644)

	t.Setenv("SCIM_PROXY_PROXY_PORT", "7777")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ProxyPort != 7777 {
		t.Errorf("proxy_port = %d, want env override 7777 to win over file value 7000", cfg.ProxyPort)
	}
}

func TestValidateAccumulatesErrors(t *testing.T) {
	cfg := &Config{
		UpstreamBaseURL:       "",
		ProxyPort:             0,
		UpstreamTimeout:       0,
		MaxFilterFetchSize:    0,
		FilterFetchMultiplier: 0,
		LogFormat:             "xml",
	}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation errors")
	}
	verrs, ok := err.(ValidationErrors)
	if !ok {
		t.Fatalf("expected ValidationErrors, got %T", err)
	}
	if len(verrs) < 5 {
		t.Errorf("expected multiple accumulated errors, got %d: %v", len(verrs), verrs)
	}
}

func TestValidateRejectsBadScheme(t *testing.T) {
	cfg := DefaultConfig()
	cfg.UpstreamBaseURL = "ftp://example.com"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for a non-http(s) scheme")
	}
}

func TestValidateRejectsOutOfRangePort(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ProxyPort = 70000
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for an out-of-range port")
	}
}
