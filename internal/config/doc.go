// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config loads fimum settings.
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (FIMUM_*), optionally seeded from a .env file
//   - ~/.fimum/config.toml (or $FIMUM_HOME/config.toml)
//   - Built-in defaults
//
// The OpenRouter API key is never read from or written to the config file.
// It comes from FIMUM_OPENROUTER_KEY or OPENROUTER_API_KEY only.
//
// # Usage
//
//	_ = config.LoadDotEnv()
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	addr := cfg.Server.Addr
package config
