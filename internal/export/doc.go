// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export writes conversations out as Markdown, JSON or YAML.
//
// # Usage
//
//	exp, err := export.ForFormat("markdown", nil)
//	path, err := export.ExportToFile(conv, exp, &export.Options{OutputDir: "."})
//
// JSON output uses the same layout as the local store, so an exported file
// can be inspected with the same tooling.
package export
