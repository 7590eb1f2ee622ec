// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package server provides the completion gateway HTTP server.
//
// The gateway accepts a message list and a mode, resolves the mode to one or
// more upstream models, and always answers with a chat-completion event
// stream (or a JSON error object).
//
// # Endpoints
//
//   - POST /api/chat   - message list + mode -> text/event-stream
//   - GET  /api/modes  - the mode registry
//   - GET  /health     - health check
//
// # Execution paths
//
// A mode backed by one model is proxied: the upstream event stream is copied
// to the caller byte for byte. A mode backed by several models is fanned out
// sequentially with non-streaming calls, and every non-empty answer is
// re-wrapped as one synthetic chunk before the terminal [DONE] frame. A model
// that fails is logged and skipped.
//
// # Middleware
//
//   - Panic recovery
//   - Security headers (X-Content-Type-Options, X-Frame-Options, etc.)
//   - CORS for browser clients
//   - Request logging with a flush-capable writer
//   - Optional per-IP request rate limiting
//
// # Usage
//
//	srv := server.NewServer("127.0.0.1:8787", cloud.NewOpenRouterClient(key))
//	if err := srv.Start(); err != nil && err != http.ErrServerClosed {
//		log.Fatal(err)
//	}
package server
