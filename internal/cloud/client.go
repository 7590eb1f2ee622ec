// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"bytes"
	"context"
	"crypto/sha256"
	"crypto/tls"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// Configuration constants for the OpenRouter API.
const (
	// DefaultOpenRouterURL is the base URL for the OpenRouter API.
	DefaultOpenRouterURL = "https://openrouter.ai/api/v1"

	// DefaultTimeout bounds non-streaming requests.
	DefaultTimeout = 60 * time.Second

	// DefaultSiteURL is sent as HTTP-Referer for OpenRouter attribution.
	DefaultSiteURL = "https://fimum.ai"

	// DefaultSiteName is sent as X-Title for OpenRouter attribution.
	DefaultSiteName = "Fimum AI Assistant"

	// MaxErrorBodySize bounds how much of an error response is read.
	MaxErrorBodySize = 1 << 20

	userAgent = "fimum/1.0"
)

// PERFORMANCE: one pooled transport shared by every client.
// SECURITY: TLS 1.2 minimum, verification always on.
var sharedTransport = &http.Transport{
	Proxy:               http.ProxyFromEnvironment,
	MaxIdleConns:        100,
	MaxIdleConnsPerHost: 10,
	IdleConnTimeout:     90 * time.Second,
	TLSHandshakeTimeout: 10 * time.Second,
	TLSClientConfig: &tls.Config{
		MinVersion: tls.VersionTLS12,
	},
}

// =============================================================================
// TYPES
// =============================================================================

// ChatMessage is a role+content message in the OpenAI wire shape.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatRequest is the raw request body used for streaming calls.
type chatRequest struct {
	Model    string        `json:"model"`
	Messages []ChatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

// Completion is the subset of a non-streaming response the gateway uses.
type Completion struct {
	ID      string
	Created int64
	Model   string
	Content string
}

// =============================================================================
// CLIENT
// =============================================================================

// OpenRouterClient talks to an OpenAI-compatible chat-completions endpoint.
type OpenRouterClient struct {
	apiKey   string
	baseURL  string
	siteURL  string
	siteName string
	timeout  time.Duration

	transport http.RoundTripper
}

// NewOpenRouterClient creates a client for apiKey. The key is required;
// there is no fallback credential.
func NewOpenRouterClient(apiKey string) *OpenRouterClient {
	return &OpenRouterClient{
		apiKey:    strings.TrimSpace(apiKey),
		baseURL:   DefaultOpenRouterURL,
		siteURL:   DefaultSiteURL,
		siteName:  DefaultSiteName,
		timeout:   DefaultTimeout,
		transport: sharedTransport,
	}
}

// WithBaseURL sets a custom base URL.
func (c *OpenRouterClient) WithBaseURL(url string) *OpenRouterClient {
	if url != "" {
		c.baseURL = strings.TrimSuffix(url, "/")
	}
	return c
}

// WithTimeout sets the timeout for non-streaming requests.
// Streaming requests are bounded only by their context.
func (c *OpenRouterClient) WithTimeout(timeout time.Duration) *OpenRouterClient {
	if timeout > 0 {
		c.timeout = timeout
	}
	return c
}

// WithSiteURL sets the HTTP-Referer attribution header.
func (c *OpenRouterClient) WithSiteURL(url string) *OpenRouterClient {
	c.siteURL = url
	return c
}

// WithSiteName sets the X-Title attribution header.
func (c *OpenRouterClient) WithSiteName(name string) *OpenRouterClient {
	c.siteName = name
	return c
}

// WithTransport replaces the HTTP transport.
func (c *OpenRouterClient) WithTransport(rt http.RoundTripper) *OpenRouterClient {
	if rt != nil {
		c.transport = rt
	}
	return c
}

// IsConfigured returns true if the client has an API key configured.
func (c *OpenRouterClient) IsConfigured() bool {
	return c.apiKey != ""
}

// BaseURL returns the configured base URL.
func (c *OpenRouterClient) BaseURL() string {
	return c.baseURL
}

// KeyFingerprint returns a short SHA-256 fingerprint of the API key for logs.
// SECURITY: never log key material.
func (c *OpenRouterClient) KeyFingerprint() string {
	if c.apiKey == "" {
		return "none"
	}
	h := sha256.Sum256([]byte(c.apiKey))
	return hex.EncodeToString(h[:4])
}

// setHeaders sets the attribution headers shared by both request shapes.
func (c *OpenRouterClient) setHeaders(h http.Header) {
	h.Set("User-Agent", userAgent)
	if c.siteURL != "" {
		h.Set("HTTP-Referer", c.siteURL)
	}
	if c.siteName != "" {
		h.Set("X-Title", c.siteName)
	}
}

// =============================================================================
// STREAMING
// =============================================================================

// OpenStream issues a streaming completion request for model and returns the
// raw event-stream body. The caller must close it.
//
// A non-success status yields *UpstreamError with the provider's message;
// a network failure yields *TransportError.
func (c *OpenRouterClient) OpenStream(ctx context.Context, model string, messages []ChatMessage) (io.ReadCloser, error) {
	if !c.IsConfigured() {
		return nil, ErrNotConfigured
	}

	body, err := json.Marshal(chatRequest{Model: model, Messages: messages, Stream: true})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	c.setHeaders(req.Header)

	// No client timeout: the stream lives as long as ctx
	resp, err := (&http.Client{Transport: c.transport}).Do(req)
	if err != nil {
		return nil, &TransportError{Op: "stream request", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, MaxErrorBodySize))
		return nil, newUpstreamError(resp.StatusCode, errBody)
	}

	return resp.Body, nil
}

// =============================================================================
// NON-STREAMING
// =============================================================================

// headerTransport adds attribution headers to requests made by go-openai.
// Completion bodies also get an explicit "stream": false, which go-openai
// omits because the field is tagged omitempty.
type headerTransport struct {
	client *OpenRouterClient
	base   http.RoundTripper
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	t.client.setHeaders(req.Header)
	if req.Method == http.MethodPost && req.Body != nil && strings.HasSuffix(req.URL.Path, "/chat/completions") {
		if err := setStreamFalse(req); err != nil {
			return nil, err
		}
	}
	return t.base.RoundTrip(req)
}

// setStreamFalse rewrites a JSON body without a stream field to carry
// "stream": false. Bodies that are not JSON objects pass through unchanged.
func setStreamFalse(req *http.Request) error {
	data, err := io.ReadAll(req.Body)
	req.Body.Close()
	if err != nil {
		return err
	}

	var fields map[string]json.RawMessage
	if json.Unmarshal(data, &fields) == nil && fields != nil {
		if _, ok := fields["stream"]; !ok {
			fields["stream"] = json.RawMessage("false")
			if out, err := json.Marshal(fields); err == nil {
				data = out
			}
		}
	}

	req.Body = io.NopCloser(bytes.NewReader(data))
	req.ContentLength = int64(len(data))
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}
	return nil
}

// openAI builds a go-openai client bound to this client's settings.
func (c *OpenRouterClient) openAI() *openai.Client {
	cfg := openai.DefaultConfig(c.apiKey)
	cfg.BaseURL = c.baseURL
	cfg.HTTPClient = &http.Client{
		Timeout:   c.timeout,
		Transport: &headerTransport{client: c, base: c.transport},
	}
	return openai.NewClientWithConfig(cfg)
}

// Complete issues a single non-streaming completion request for model.
func (c *OpenRouterClient) Complete(ctx context.Context, model string, messages []ChatMessage) (*Completion, error) {
	if !c.IsConfigured() {
		return nil, ErrNotConfigured
	}

	req := openai.ChatCompletionRequest{
		Model:    model,
		Messages: make([]openai.ChatCompletionMessage, 0, len(messages)),
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	resp, err := c.openAI().CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, classifyError(err)
	}

	out := &Completion{ID: resp.ID, Created: resp.Created, Model: resp.Model}
	if len(resp.Choices) > 0 {
		out.Content = resp.Choices[0].Message.Content
	}
	return out, nil
}

// classifyError maps go-openai errors onto UpstreamError and TransportError.
func classifyError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		msg := apiErr.Message
		if msg == "" {
			msg = DefaultErrorMessage
		}
		var code string
		if apiErr.Code != nil {
			code = fmt.Sprint(apiErr.Code)
		}
		return &UpstreamError{Status: apiErr.HTTPStatusCode, Code: code, Message: msg}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &UpstreamError{Status: reqErr.HTTPStatusCode, Message: DefaultErrorMessage}
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &TransportError{Op: "completion request", Err: err}
}
