package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Hardcoded client defaults
const (
	DefaultRequestTimeout  = 15 * time.Second
	DefaultRefreshTimeout  = 10 * time.Second
	DefaultRefreshInterval = 5 * time.Minute
	DefaultExpiryBuffer    = 2 * time.Minute
)

// Config captures the full client configuration loaded from YAML and
// environment variables.
type Config struct {
	API     APIConfig     `yaml:"api"`
	Refresh RefreshConfig `yaml:"refresh"`
	Storage StorageConfig `yaml:"storage"`
	Stub    StubConfig    `yaml:"stub"`
}

// APIConfig controls how the client reaches the MedBuddy backend.
type APIConfig struct {
	BaseURL        string        `yaml:"base_url"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	RefreshTimeout time.Duration `yaml:"refresh_timeout"`
}

// RefreshConfig tunes the proactive background refresh policy.
type RefreshConfig struct {
	// CheckInterval is how often the background task inspects the stored
	// access token. Zero disables the background task entirely.
	CheckInterval time.Duration `yaml:"check_interval"`
	// ExpiryBuffer triggers a refresh when the token expires within this
	// window, so callers never race a just-expired token.
	ExpiryBuffer time.Duration `yaml:"expiry_buffer"`
}

// StorageConfig locates the on-disk credential store.
type StorageConfig struct {
	CredentialsPath string `yaml:"credentials_path"`
}

// StubConfig configures the local development backend.
type StubConfig struct {
	ListenAddr    string `yaml:"listen_addr"`
	AdminEmail    string `yaml:"admin_email"`
	AdminPassword string `yaml:"admin_password"`
	Issuer        string `yaml:"issuer"`
}

// Load reads configuration from path (optional), applies environment
// overrides, and validates the result. An empty path yields defaults
// plus environment.
func Load(path string) (Config, error) {
	cfg := defaultConfig()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}

		decoder := yaml.NewDecoder(bytes.NewReader(raw))
		decoder.KnownFields(true)
		if err := decoder.Decode(&cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w (check for typos or deprecated fields)", path, err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func defaultConfig() Config {
	return Config{
		API: APIConfig{
			BaseURL:        "http://127.0.0.1:9090",
			RequestTimeout: DefaultRequestTimeout,
			RefreshTimeout: DefaultRefreshTimeout,
		},
		Refresh: RefreshConfig{
			CheckInterval: DefaultRefreshInterval,
			ExpiryBuffer:  DefaultExpiryBuffer,
		},
		Storage: StorageConfig{
			CredentialsPath: defaultCredentialsPath(),
		},
		Stub: StubConfig{
			ListenAddr:    "127.0.0.1:9090",
			AdminEmail:    "admin@medbuddy.local",
			AdminPassword: "admin",
			Issuer:        "medbuddy-stub",
		},
	}
}

// DefaultConfig returns the default configuration template.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultCredentialsPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".medadmin/credentials.json"
	}
	return filepath.Join(dir, "medadmin", "credentials.json")
}

func applyEnvOverrides(cfg *Config) {
	overrides := map[string]func(string){
		"MEDBUDDY_API_URL":           func(v string) { cfg.API.BaseURL = v },
		"MEDADMIN_REQUEST_TIMEOUT":   func(v string) { cfg.API.RequestTimeout = parseDuration(v, cfg.API.RequestTimeout) },
		"MEDADMIN_REFRESH_TIMEOUT":   func(v string) { cfg.API.RefreshTimeout = parseDuration(v, cfg.API.RefreshTimeout) },
		"MEDADMIN_REFRESH_INTERVAL":  func(v string) { cfg.Refresh.CheckInterval = parseDuration(v, cfg.Refresh.CheckInterval) },
		"MEDADMIN_EXPIRY_BUFFER":     func(v string) { cfg.Refresh.ExpiryBuffer = parseDuration(v, cfg.Refresh.ExpiryBuffer) },
		"MEDADMIN_CREDENTIALS_PATH":  func(v string) { cfg.Storage.CredentialsPath = v },
		"MEDADMIN_STUB_LISTEN_ADDR":  func(v string) { cfg.Stub.ListenAddr = v },
		"MEDADMIN_STUB_ADMIN_EMAIL":  func(v string) { cfg.Stub.AdminEmail = v },
		"MEDADMIN_STUB_ADMIN_PASSWD": func(v string) { cfg.Stub.AdminPassword = v },
	}

	for key, fn := range overrides {
		if val, ok := os.LookupEnv(key); ok {
			fn(val)
		}
	}
}

func parseDuration(val string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(val)
	if err != nil {
		return fallback
	}
	return d
}

// Validate performs minimal sanity checks on the config.
func (c Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url is required")
	}
	if !strings.HasPrefix(c.API.BaseURL, "http://") && !strings.HasPrefix(c.API.BaseURL, "https://") {
		return fmt.Errorf("api.base_url must include an http or https scheme, got %q", c.API.BaseURL)
	}
	if c.API.RequestTimeout <= 0 {
		return fmt.Errorf("api.request_timeout must be positive")
	}
	if c.API.RefreshTimeout <= 0 {
		return fmt.Errorf("api.refresh_timeout must be positive")
	}
	if c.Refresh.CheckInterval < 0 {
		return fmt.Errorf("refresh.check_interval must not be negative")
	}
	if c.Refresh.ExpiryBuffer < 0 {
		return fmt.Errorf("refresh.expiry_buffer must not be negative")
	}
	if c.Storage.CredentialsPath == "" {
		return fmt.Errorf("storage.credentials_path is required")
	}
	return nil
}
