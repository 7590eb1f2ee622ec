// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cloud provides the OpenRouter client used by the completion gateway.
//
// Two request shapes are supported against the same chat-completions
// endpoint:
//
//   - OpenStream issues a streaming request and hands back the raw
//     event-stream body so it can be forwarded byte for byte.
//   - Complete issues a non-streaming request (through go-openai) and returns
//     the first choice's text.
//
// # Key Types
//
//   - OpenRouterClient: configured client with site attribution headers
//   - ChatMessage: role+content message in the OpenAI wire shape
//   - Completion: the parts of a non-streaming response the gateway needs
//   - UpstreamError: non-success HTTP status from the provider
//   - TransportError: network-level failure reaching the provider
//
// # Usage
//
//	client := cloud.NewOpenRouterClient(os.Getenv("OPENROUTER_API_KEY")).
//	    WithSiteName("Fimum AI Assistant")
//	body, err := client.OpenStream(ctx, "mistralai/devstral-2512:free", msgs)
//
// # Security
//
// API keys are never logged. There is no built-in key: an unconfigured client
// refuses every request with ErrNotConfigured.
package cloud
