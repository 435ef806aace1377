package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.API.BaseURL != "http://127.0.0.1:9090" {
		t.Errorf("BaseURL = %q", cfg.API.BaseURL)
	}
	if cfg.API.RequestTimeout != DefaultRequestTimeout {
		t.Errorf("RequestTimeout = %v", cfg.API.RequestTimeout)
	}
	if cfg.Refresh.CheckInterval != DefaultRefreshInterval {
		t.Errorf("CheckInterval = %v", cfg.Refresh.CheckInterval)
	}
	if cfg.Refresh.ExpiryBuffer != DefaultExpiryBuffer {
		t.Errorf("ExpiryBuffer = %v", cfg.Refresh.ExpiryBuffer)
	}
	if cfg.Storage.CredentialsPath == "" {
		t.Errorf("CredentialsPath is empty")
	}
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfigFile(t, `
api:
  base_url: https://api.medbuddy.example
  request_timeout: 30s
refresh:
  expiry_buffer: 90s
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.API.BaseURL != "https://api.medbuddy.example" {
		t.Errorf("BaseURL = %q", cfg.API.BaseURL)
	}
	if cfg.API.RequestTimeout != 30*time.Second {
		t.Errorf("RequestTimeout = %v", cfg.API.RequestTimeout)
	}
	if cfg.Refresh.ExpiryBuffer != 90*time.Second {
		t.Errorf("ExpiryBuffer = %v", cfg.Refresh.ExpiryBuffer)
	}
	// Fields the file omits keep their defaults.
	if cfg.API.RefreshTimeout != DefaultRefreshTimeout {
		t.Errorf("RefreshTimeout = %v", cfg.API.RefreshTimeout)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	path := writeConfigFile(t, `
api:
  base_url: http://localhost:9090
  reqest_timeout: 30s
`)
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for misspelled field")
	}
	if !strings.Contains(err.Error(), "typos") {
		t.Errorf("error does not hint at typos: %v", err)
	}
}

func TestEnvOverridesWinOverFile(t *testing.T) {
	path := writeConfigFile(t, `
api:
  base_url: http://from-file:9090
`)
	t.Setenv("MEDBUDDY_API_URL", "http://from-env:9090")
	t.Setenv("MEDADMIN_EXPIRY_BUFFER", "45s")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.API.BaseURL != "http://from-env:9090" {
		t.Errorf("BaseURL = %q, env override lost", cfg.API.BaseURL)
	}
	if cfg.Refresh.ExpiryBuffer != 45*time.Second {
		t.Errorf("ExpiryBuffer = %v", cfg.Refresh.ExpiryBuffer)
	}
}

func TestEnvOverrideWithBadDurationKeepsPrevious(t *testing.T) {
	t.Setenv("MEDADMIN_REQUEST_TIMEOUT", "not-a-duration")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.API.RequestTimeout != DefaultRequestTimeout {
		t.Errorf("RequestTimeout = %v, want default", cfg.API.RequestTimeout)
	}
}

func TestValidateFailures(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing base url", func(c *Config) { c.API.BaseURL = "" }, "base_url"},
		{"schemeless base url", func(c *Config) { c.API.BaseURL = "localhost:9090" }, "scheme"},
		{"zero request timeout", func(c *Config) { c.API.RequestTimeout = 0 }, "request_timeout"},
		{"negative check interval", func(c *Config) { c.Refresh.CheckInterval = -time.Second }, "check_interval"},
		{"missing credentials path", func(c *Config) { c.Storage.CredentialsPath = "" }, "credentials_path"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}
