// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/jeranaias/fimum/internal/model"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete fimum configuration.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Upstream UpstreamConfig `toml:"upstream"`
	Client   ClientConfig   `toml:"client"`

	// APIKey is the OpenRouter credential. Environment only.
	APIKey string `toml:"-"`
}

// ServerConfig configures the gateway.
type ServerConfig struct {
	Addr         string `toml:"addr"`
	MaxBodyBytes int64  `toml:"max_body_bytes"`

	// RateLimit is requests per minute per client IP. 0 disables limiting.
	RateLimit int `toml:"rate_limit"`
	RateBurst int `toml:"rate_burst"`

	// CORSOrigins enables CORS for the listed origins when non-empty.
	CORSOrigins []string `toml:"cors_origins"`
}

// UpstreamConfig configures the OpenRouter client.
type UpstreamConfig struct {
	BaseURL  string   `toml:"base_url"`
	SiteURL  string   `toml:"site_url"`
	SiteName string   `toml:"site_name"`
	Timeout  Duration `toml:"timeout"`
}

// ClientConfig configures the chat and tui commands.
type ClientConfig struct {
	GatewayURL   string `toml:"gateway_url"`
	DefaultMode  string `toml:"default_mode"`
	StoreBackend string `toml:"store_backend"`

	// StorePath is a directory for the file backend or a database file for
	// sqlite. Empty means <config dir>/data.
	StorePath string `toml:"store_path"`
}

// Duration is a time.Duration written as a string ("60s") in TOML.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Store backends.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:         "127.0.0.1:8787",
			MaxBodyBytes: 10 << 20,
			RateLimit:    60,
			RateBurst:    10,
		},
		Upstream: UpstreamConfig{
			BaseURL:  "https://openrouter.ai/api/v1",
			SiteURL:  "https://fimum.ai",
			SiteName: "Fimum AI Assistant",
			Timeout:  Duration{60 * time.Second},
		},
		Client: ClientConfig{
			GatewayURL:   "http://127.0.0.1:8787/api/chat",
			DefaultMode:  string(model.DefaultMode),
			StoreBackend: BackendFile,
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns $FIMUM_HOME, or ~/.fimum.
func ConfigDir() (string, error) {
	if dir := os.Getenv("FIMUM_HOME"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".fimum"), nil
}

// ConfigPath returns the path to the TOML config file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ResolvedStorePath returns Client.StorePath, defaulting to <config dir>/data.
func (c *Config) ResolvedStorePath() (string, error) {
	if c.Client.StorePath != "" {
		return c.Client.StorePath, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "data"), nil
}

// ensureSecurePermissions tightens a config file to 0600.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if mode := info.Mode().Perm(); mode != 0600 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// LoadDotEnv loads KEY=VALUE pairs from the given files (default ".env")
// into the process environment. Variables already set are not overridden
// and missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// Load reads the default config file if it exists, then applies
// environment overrides, defaults and validation.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	if _, statErr := os.Stat(path); statErr != nil {
		cfg := Default()
		return finish(cfg)
	}
	return LoadFromPath(path)
}

// LoadFromPath loads configuration from a specific TOML file.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()
	if err := LoadTOML(cfg, path); err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
	}
	return finish(cfg)
}

func finish(cfg *Config) (*Config, error) {
	if err := cfg.ApplyEnvOverrides(); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadTOML decodes path over cfg. Unknown keys are an error so typos
// don't pass silently.
func LoadTOML(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return fmt.Errorf("unknown config keys: %s", strings.Join(keys, ", "))
	}
	return nil
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save writes cfg to the default config path.
func Save(cfg *Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML writes cfg to path with 0600 permissions. APIKey is never written.
func SaveTOML(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	if err := os.Chmod(path, 0600); err != nil {
		return fmt.Errorf("failed to set config file permissions: %w", err)
	}

	fmt.Fprintln(file, "# fimum configuration file")
	fmt.Fprintln(file, "# The OpenRouter key belongs in FIMUM_OPENROUTER_KEY or OPENROUTER_API_KEY, not here.")
	fmt.Fprintln(file, "")

	if err := toml.NewEncoder(file).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// Validate checks every field and reports all problems at once.
func (c *Config) Validate() error {
	var errs ValidateErrors
	add := func(field, format string, args ...interface{}) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if strings.TrimSpace(c.Server.Addr) == "" {
		add("server.addr", "must not be empty")
	}
	if c.Server.MaxBodyBytes <= 0 {
		add("server.max_body_bytes", "must be positive, got %d", c.Server.MaxBodyBytes)
	}
	if c.Server.RateLimit < 0 {
		add("server.rate_limit", "must not be negative, got %d", c.Server.RateLimit)
	}
	if c.Server.RateBurst < 0 {
		add("server.rate_burst", "must not be negative, got %d", c.Server.RateBurst)
	}

	if err := validateHTTPURL(c.Upstream.BaseURL); err != nil {
		add("upstream.base_url", "%v", err)
	}
	if c.Upstream.Timeout.Duration <= 0 {
		add("upstream.timeout", "must be positive, got %s", c.Upstream.Timeout.Duration)
	}

	if err := validateHTTPURL(c.Client.GatewayURL); err != nil {
		add("client.gateway_url", "%v", err)
	}
	if _, err := model.ParseMode(c.Client.DefaultMode); err != nil {
		add("client.default_mode", "%v", err)
	}
	switch c.Client.StoreBackend {
	case BackendFile, BackendSQLite:
	default:
		add("client.store_backend", "invalid backend '%s', must be one of: file, sqlite", c.Client.StoreBackend)
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateHTTPURL(raw string) error {
	if raw == "" {
		return errors.New("must not be empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("missing host")
	}
	return nil
}

// SetDefaults fills zero values from Default and normalizes case.
func (c *Config) SetDefaults() {
	d := Default()

	if c.Server.Addr == "" {
		c.Server.Addr = d.Server.Addr
	}
	if c.Server.MaxBodyBytes == 0 {
		c.Server.MaxBodyBytes = d.Server.MaxBodyBytes
	}
	if c.Upstream.BaseURL == "" {
		c.Upstream.BaseURL = d.Upstream.BaseURL
	}
	if c.Upstream.SiteURL == "" {
		c.Upstream.SiteURL = d.Upstream.SiteURL
	}
	if c.Upstream.SiteName == "" {
		c.Upstream.SiteName = d.Upstream.SiteName
	}
	if c.Upstream.Timeout.Duration == 0 {
		c.Upstream.Timeout = d.Upstream.Timeout
	}
	if c.Client.GatewayURL == "" {
		c.Client.GatewayURL = d.Client.GatewayURL
	}
	if c.Client.DefaultMode == "" {
		c.Client.DefaultMode = d.Client.DefaultMode
	}
	c.Client.DefaultMode = strings.ToLower(strings.TrimSpace(c.Client.DefaultMode))
	if c.Client.StoreBackend == "" {
		c.Client.StoreBackend = d.Client.StoreBackend
	}
	c.Client.StoreBackend = strings.ToLower(strings.TrimSpace(c.Client.StoreBackend))
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides:
//   - FIMUM_OPENROUTER_KEY, then OPENROUTER_API_KEY: the API key
//   - FIMUM_ADDR: server.addr
//   - FIMUM_RATE_LIMIT: server.rate_limit
//   - FIMUM_CORS_ORIGINS: server.cors_origins (comma separated)
//   - FIMUM_UPSTREAM_URL: upstream.base_url
//   - FIMUM_UPSTREAM_TIMEOUT: upstream.timeout
//   - FIMUM_GATEWAY_URL: client.gateway_url
//   - FIMUM_MODE: client.default_mode
//   - FIMUM_STORE_BACKEND: client.store_backend
//   - FIMUM_STORE_PATH: client.store_path
func (c *Config) ApplyEnvOverrides() error {
	if key := os.Getenv("FIMUM_OPENROUTER_KEY"); key != "" {
		c.APIKey = key
	} else if key := os.Getenv("OPENROUTER_API_KEY"); key != "" {
		c.APIKey = key
	}

	if v := os.Getenv("FIMUM_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("FIMUM_RATE_LIMIT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("FIMUM_RATE_LIMIT: %w", err)
		}
		c.Server.RateLimit = n
	}
	if v := os.Getenv("FIMUM_CORS_ORIGINS"); v != "" {
		var origins []string
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		c.Server.CORSOrigins = origins
	}
	if v := os.Getenv("FIMUM_UPSTREAM_URL"); v != "" {
		c.Upstream.BaseURL = v
	}
	if v := os.Getenv("FIMUM_UPSTREAM_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("FIMUM_UPSTREAM_TIMEOUT: %w", err)
		}
		c.Upstream.Timeout = Duration{d}
	}
	if v := os.Getenv("FIMUM_GATEWAY_URL"); v != "" {
		c.Client.GatewayURL = v
	}
	if v := os.Getenv("FIMUM_MODE"); v != "" {
		c.Client.DefaultMode = v
	}
	if v := os.Getenv("FIMUM_STORE_BACKEND"); v != "" {
		c.Client.StoreBackend = v
	}
	if v := os.Getenv("FIMUM_STORE_PATH"); v != "" {
		c.Client.StorePath = v
	}
	return nil
}

// Mode returns Client.DefaultMode as a model.Mode.
func (c *Config) Mode() model.Mode {
	return model.Mode(c.Client.DefaultMode)
}

// String renders the config as TOML for display. The API key is shown only
// as set or unset.
func (c *Config) String() string {
	var sb strings.Builder
	_ = toml.NewEncoder(&sb).Encode(c)
	if c.APIKey != "" {
		sb.WriteString("\n# api key: set\n")
	} else {
		sb.WriteString("\n# api key: not set\n")
	}
	return sb.String()
}
