// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// isolate points FIMUM_HOME at a temp dir and clears env overrides.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("FIMUM_HOME", dir)
	for _, k := range []string{
		"FIMUM_OPENROUTER_KEY", "OPENROUTER_API_KEY", "FIMUM_ADDR", "FIMUM_RATE_LIMIT",
		"FIMUM_CORS_ORIGINS", "FIMUM_UPSTREAM_URL", "FIMUM_UPSTREAM_TIMEOUT",
		"FIMUM_GATEWAY_URL", "FIMUM_MODE", "FIMUM_STORE_BACKEND", "FIMUM_STORE_PATH",
	} {
		t.Setenv(k, "")
	}
	return dir
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	dir := isolate(t)

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, Default().Server, cfg.Server)
	require.Equal(t, 60*time.Second, cfg.Upstream.Timeout.Duration)
	require.Equal(t, "normal", cfg.Client.DefaultMode)
	require.Empty(t, cfg.APIKey)

	store, err := cfg.ResolvedStorePath()
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "data"), store)
}

func TestLoadFromPath(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[server]
addr = "0.0.0.0:9000"
rate_limit = 0
cors_origins = ["https://fimum.ai"]

[upstream]
timeout = "90s"

[client]
default_mode = "Coding"
store_backend = "sqlite"
store_path = "/tmp/fimum.db"
`), 0644))

	cfg, err := LoadFromPath(path)
	require.NoError(t, err)
	require.Equal(t, "0.0.0.0:9000", cfg.Server.Addr)
	require.Zero(t, cfg.Server.RateLimit)
	require.Equal(t, []string{"https://fimum.ai"}, cfg.Server.CORSOrigins)
	require.Equal(t, 90*time.Second, cfg.Upstream.Timeout.Duration)
	require.Equal(t, "https://openrouter.ai/api/v1", cfg.Upstream.BaseURL)
	require.Equal(t, "coding", cfg.Client.DefaultMode)
	require.Equal(t, BackendSQLite, cfg.Client.StoreBackend)

	// Loading tightens permissions.
	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestLoadFromPath_UnknownKeyRejected(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[upstream]\napi_key = \"sk-nope\"\n"), 0600))

	_, err := LoadFromPath(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "upstream.api_key")
}

func TestEnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("OPENROUTER_API_KEY", "sk-fallback")
	t.Setenv("FIMUM_ADDR", ":7000")
	t.Setenv("FIMUM_RATE_LIMIT", "5")
	t.Setenv("FIMUM_CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("FIMUM_UPSTREAM_TIMEOUT", "2m")
	t.Setenv("FIMUM_MODE", "study")
	t.Setenv("FIMUM_STORE_PATH", "/var/lib/fimum")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "sk-fallback", cfg.APIKey)
	require.Equal(t, ":7000", cfg.Server.Addr)
	require.Equal(t, 5, cfg.Server.RateLimit)
	require.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
	require.Equal(t, 2*time.Minute, cfg.Upstream.Timeout.Duration)
	require.Equal(t, "study", string(cfg.Mode()))
	require.Equal(t, "/var/lib/fimum", cfg.Client.StorePath)

	t.Setenv("FIMUM_OPENROUTER_KEY", "sk-preferred")
	cfg, err = Load()
	require.NoError(t, err)
	require.Equal(t, "sk-preferred", cfg.APIKey)
}

func TestEnvOverrides_BadNumber(t *testing.T) {
	isolate(t)
	t.Setenv("FIMUM_RATE_LIMIT", "lots")
	_, err := Load()
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	cfg.Server.Addr = ""
	cfg.Upstream.BaseURL = "ftp://example.com"
	cfg.Client.DefaultMode = "poetry"
	cfg.Client.StoreBackend = "redis"
	cfg.Server.RateBurst = -1

	err := cfg.Validate()
	var verrs ValidateErrors
	require.True(t, errors.As(err, &verrs))

	fields := make([]string, len(verrs))
	for i, e := range verrs {
		fields[i] = e.Field
	}
	require.ElementsMatch(t, []string{
		"server.addr", "server.rate_burst", "upstream.base_url",
		"client.default_mode", "client.store_backend",
	}, fields)
}

func TestSaveTOML_NeverWritesKey(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "nested", "config.toml")

	cfg := Default()
	cfg.APIKey = "sk-secret"
	cfg.Client.DefaultMode = "research"
	require.NoError(t, SaveTOML(cfg, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NotContains(t, string(data), "sk-secret")
	require.Contains(t, string(data), `timeout = "1m0s"`)

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0600), info.Mode().Perm())

	back, err := LoadFromPath(path)
	require.NoError(t, err)
	require.Equal(t, "research", back.Client.DefaultMode)
	require.Equal(t, cfg.Upstream, back.Upstream)
}

func TestLoadDotEnv(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("FIMUM_OPENROUTER_KEY=sk-from-dotenv\nFIMUM_ADDR=:1234\n"), 0600))

	// Already-set variables win over the file.
	t.Setenv("FIMUM_ADDR", ":5555")
	os.Unsetenv("FIMUM_OPENROUTER_KEY")

	require.NoError(t, LoadDotEnv(path, filepath.Join(t.TempDir(), "missing.env")))
	t.Cleanup(func() { os.Unsetenv("FIMUM_OPENROUTER_KEY") })

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "sk-from-dotenv", cfg.APIKey)
	require.Equal(t, ":5555", cfg.Server.Addr)
}

func TestString_HidesKey(t *testing.T) {
	cfg := Default()
	cfg.APIKey = "sk-secret"
	s := cfg.String()
	require.NotContains(t, s, "sk-secret")
	require.True(t, strings.Contains(s, "api key: set"))
}
