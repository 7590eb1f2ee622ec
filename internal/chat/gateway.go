// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/jeranaias/fimum/internal/model"
)

// DefaultGatewayURL is where a locally started gateway listens.
const DefaultGatewayURL = "http://127.0.0.1:8787/api/chat"

// Request is the body posted to the gateway.
type Request struct {
	Messages []model.Wire `json:"messages"`
	Mode     model.Mode   `json:"mode"`
}

// Gateway sends a chat request. On success the response body is an event
// stream; the caller closes it.
type Gateway interface {
	Post(ctx context.Context, req Request) (*http.Response, error)
}

// HTTPGateway posts to a fimum gateway over HTTP.
type HTTPGateway struct {
	URL    string
	Client *http.Client
}

// NewHTTPGateway returns a gateway client for url. No client timeout is set:
// responses stream for as long as the model writes, and ctx bounds the call.
func NewHTTPGateway(url string) *HTTPGateway {
	if url == "" {
		url = DefaultGatewayURL
	}
	return &HTTPGateway{URL: url, Client: &http.Client{}}
}

// Post implements Gateway.
func (g *HTTPGateway) Post(ctx context.Context, req Request) (*http.Response, error) {
	if req.Messages == nil {
		req.Messages = []model.Wire{}
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	client := g.Client
	if client == nil {
		client = http.DefaultClient
	}
	return client.Do(httpReq)
}

// StatusError is returned when the gateway answers with a non-2xx status.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("gateway returned status %d", e.Status)
	}
	return fmt.Sprintf("gateway returned status %d: %s", e.Status, strings.TrimSpace(e.Body))
}
