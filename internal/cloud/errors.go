// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"encoding/json"
	"errors"
	"fmt"
)

// DefaultErrorMessage is reported when an upstream error body carries no usable message.
const DefaultErrorMessage = "Failed to get response from AI model"

// ErrNotConfigured indicates the API key is not set.
var ErrNotConfigured = errors.New("OpenRouter API key not configured")

// UpstreamError is a non-success HTTP response from the provider.
type UpstreamError struct {
	Status  int
	Code    string
	Message string
}

func (e *UpstreamError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("OpenRouter error [%s] (HTTP %d): %s", e.Code, e.Status, e.Message)
	}
	return fmt.Sprintf("OpenRouter error (HTTP %d): %s", e.Status, e.Message)
}

// TransportError is a network-level failure: the request never produced an
// HTTP response.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// apiErrorResponse is the error envelope returned by OpenAI-compatible APIs.
// The error field is either an object with a message or a bare string.
type apiErrorResponse struct {
	Error json.RawMessage `json:"error"`
}

type apiErrorDetail struct {
	Code    json.RawMessage `json:"code"`
	Message string          `json:"message"`
}

// newUpstreamError builds an UpstreamError from a status and raw error body.
func newUpstreamError(status int, body []byte) *UpstreamError {
	code, msg := parseErrorBody(body)
	if msg == "" {
		msg = DefaultErrorMessage
	}
	return &UpstreamError{Status: status, Code: code, Message: msg}
}

// ErrorMessage extracts the human-readable message from an error body:
// error.message when error is an object, error itself when it is a string,
// and DefaultErrorMessage otherwise.
func ErrorMessage(body []byte) string {
	if _, msg := parseErrorBody(body); msg != "" {
		return msg
	}
	return DefaultErrorMessage
}

func parseErrorBody(body []byte) (code, msg string) {
	var env apiErrorResponse
	if err := json.Unmarshal(body, &env); err != nil || len(env.Error) == 0 {
		return "", ""
	}

	var s string
	if err := json.Unmarshal(env.Error, &s); err == nil {
		return "", s
	}

	var detail apiErrorDetail
	if err := json.Unmarshal(env.Error, &detail); err != nil {
		return "", ""
	}
	// code is a number on OpenRouter and a string on some providers
	return trimQuotes(string(detail.Code)), detail.Message
}

func trimQuotes(s string) string {
	if s == "null" {
		return ""
	}
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}
