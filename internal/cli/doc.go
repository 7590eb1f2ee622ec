// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the fimum command line.
//
// # Commands Overview
//
//   - serve: run the chat gateway
//   - chat: interactive REPL against a gateway
//   - tui: full-screen terminal client
//   - conversations: list, show, delete or clear stored conversations
//   - export: write a conversation as Markdown, JSON or YAML
//   - modes: list the available modes
//   - version: print build information
//
// Every command accepts --config to point at a TOML file and --verbose to
// log to stderr.
package cli
