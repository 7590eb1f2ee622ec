// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/jeranaias/fimum/internal/cloud"
	"github.com/jeranaias/fimum/internal/model"
	"github.com/jeranaias/fimum/internal/stream"
)

// Client-facing error messages.
const (
	msgMessagesRequired = "Messages array is required"
	msgInvalidJSON      = "Invalid JSON body"
	msgInvalidMessages  = "Invalid message format. Each message needs a string role and content"
	msgNotConfigured    = "AI service is not configured. Set an OpenRouter API key and restart the server."
	msgNetworkError     = "Network error. Please check your connection and try again."
	msgInternalError    = "Internal server error"
)

// ChatRequest is the body of POST /api/chat.
// Messages stays raw so a missing or non-array value can be told apart from
// an empty list. Mode stays raw so a non-string mode falls back instead of
// failing the request.
type ChatRequest struct {
	Messages json.RawMessage `json:"messages"`
	Mode     json.RawMessage `json:"mode"`
}

// ModeName returns the requested mode. ok is false when mode is present but
// not a JSON string; name is then "".
func (r *ChatRequest) ModeName() (name string, ok bool) {
	raw := bytes.TrimSpace(r.Mode)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", true
	}
	if err := json.Unmarshal(raw, &name); err != nil {
		return "", false
	}
	return name, true
}

// configurable is implemented by upstreams that can report a missing key.
type configurable interface {
	IsConfigured() bool
}

// ============================================================================
// CHAT HANDLER
// ============================================================================

// handleChat handles POST /api/chat.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	limit := s.maxBodyBytes
	registry := s.registry
	s.mu.RUnlock()

	r.Body = http.MaxBytesReader(w, r.Body, limit)

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("Request body exceeds maximum size of %d bytes", limit))
			return
		}
		log.Printf("INVALID_REQUEST | error=%v", err)
		writeError(w, http.StatusBadRequest, msgInvalidJSON)
		return
	}

	messages, err := parseMessages(req.Messages)
	if err != nil {
		if errors.Is(err, errMessagesRequired) {
			writeError(w, http.StatusBadRequest, msgMessagesRequired)
			return
		}
		log.Printf("INVALID_MESSAGES | error=%v", err)
		writeError(w, http.StatusBadRequest, msgInvalidMessages)
		return
	}

	if c, ok := s.upstream.(configurable); ok && !c.IsConfigured() {
		log.Printf("UPSTREAM_UNCONFIGURED | path=%s", r.URL.Path)
		writeError(w, http.StatusServiceUnavailable, msgNotConfigured)
		return
	}

	name, ok := req.ModeName()
	res := registry.Resolve(model.Mode(name))
	if res.FellBack && (name != "" || !ok) {
		log.Printf("MODE_FALLBACK | requested=%s resolved=%s", req.Mode, res.Mode)
	}
	log.Printf("GATEWAY_REQUEST | mode=%s models=%d messages=%d", res.Mode, len(res.Models), len(messages))

	if res.MultiModel() {
		s.handleMultiModel(w, r, messages, res.Models)
		return
	}
	s.handleSingleModel(w, r, messages, res.Models[0])
}

var errMessagesRequired = errors.New("messages array is required")

// parseMessages validates the raw messages field. Absent, null, and non-array
// values are errMessagesRequired; an empty array is accepted. Roles are
// forwarded as given and left for the upstream to judge.
func parseMessages(raw json.RawMessage) ([]cloud.ChatMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, errMessagesRequired
	}

	var messages []cloud.ChatMessage
	if err := json.Unmarshal(trimmed, &messages); err != nil {
		return nil, fmt.Errorf("decode messages: %w", err)
	}
	return messages, nil
}

// setStreamHeaders sets the event-stream response headers.
func setStreamHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

// ============================================================================
// SINGLE-MODEL PATH
// ============================================================================

// handleSingleModel proxies one streaming upstream call. The upstream body is
// forwarded unmodified.
func (s *Server) handleSingleModel(w http.ResponseWriter, r *http.Request, messages []cloud.ChatMessage, modelID string) {
	ctx := r.Context()

	body, err := s.upstream.OpenStream(ctx, modelID, messages)
	if err != nil {
		s.writeUpstreamError(w, modelID, err)
		return
	}
	defer body.Close()

	setStreamHeaders(w)
	w.WriteHeader(http.StatusOK)

	n, err := copyFlush(ctx, w, body)
	if err != nil && ctx.Err() == nil {
		log.Printf("STREAM_COPY_ERROR | model=%s bytes=%d error=%v", modelID, n, err)
	}
}

// writeUpstreamError maps an upstream failure to a JSON error response.
func (s *Server) writeUpstreamError(w http.ResponseWriter, modelID string, err error) {
	var upErr *cloud.UpstreamError
	var tErr *cloud.TransportError

	switch {
	case errors.As(err, &upErr):
		log.Printf("UPSTREAM_ERROR | model=%s status=%d error=%s", modelID, upErr.Status, upErr.Message)
		status := upErr.Status
		if status < 400 || status > 599 {
			status = http.StatusBadGateway
		}
		writeError(w, status, upErr.Message)
	case errors.Is(err, cloud.ErrNotConfigured):
		log.Printf("UPSTREAM_UNCONFIGURED | model=%s", modelID)
		writeError(w, http.StatusServiceUnavailable, msgNotConfigured)
	case errors.Is(err, context.Canceled):
		log.Printf("CLIENT_GONE | model=%s", modelID)
	case errors.As(err, &tErr):
		log.Printf("UPSTREAM_UNREACHABLE | model=%s error=%v", modelID, tErr.Err)
		writeError(w, http.StatusInternalServerError, msgNetworkError)
	default:
		log.Printf("UPSTREAM_FAILURE | model=%s error=%v", modelID, err)
		writeError(w, http.StatusInternalServerError, msgInternalError)
	}
}

// copyFlush copies src to w, flushing after every read so tokens reach the
// client as soon as they arrive. It stops when ctx is cancelled.
func copyFlush(ctx context.Context, w http.ResponseWriter, src io.Reader) (int64, error) {
	flusher, _ := w.(http.Flusher)
	buf := make([]byte, 32*1024)
	var written int64

	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}

		n, readErr := src.Read(buf)
		if n > 0 {
			m, err := w.Write(buf[:n])
			written += int64(m)
			if err != nil {
				return written, err
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if readErr == io.EOF {
			return written, nil
		}
		if readErr != nil {
			return written, readErr
		}
	}
}

// ============================================================================
// MULTI-MODEL PATH
// ============================================================================

// handleMultiModel calls each model in order without streaming and emits one
// synthetic chunk per non-empty answer, then the [DONE] frame. A failing
// model is skipped. The fan-out is sequential so blocks appear in model order.
func (s *Server) handleMultiModel(w http.ResponseWriter, r *http.Request, messages []cloud.ChatMessage, models []string) {
	ctx := r.Context()

	setStreamHeaders(w)
	w.WriteHeader(http.StatusOK)
	sw := stream.NewWriter(w)
	sw.Flush()

	emitted := 0
	for i, modelID := range models {
		if ctx.Err() != nil {
			log.Printf("FANOUT_CANCELLED | completed=%d total=%d", i, len(models))
			return
		}

		comp, err := s.upstream.Complete(ctx, modelID, messages)
		if err != nil {
			log.Printf("MODEL_SKIPPED | model=%s index=%d error=%v", modelID, i, err)
			continue
		}
		if comp.Content == "" {
			log.Printf("MODEL_SKIPPED | model=%s index=%d error=empty response", modelID, i)
			continue
		}

		if err := sw.WriteChunk(synthesizeChunk(comp, modelID)); err != nil {
			log.Printf("STREAM_WRITE_ERROR | model=%s error=%v", modelID, err)
			return
		}
		emitted++
	}

	if emitted == 0 {
		log.Printf("FANOUT_EMPTY | models=%d", len(models))
	}
	if err := sw.WriteDone(); err != nil {
		log.Printf("STREAM_WRITE_ERROR | frame=done error=%v", err)
	}
}

// synthesizeChunk re-wraps a complete answer as a streaming chunk, keeping the
// upstream id, creation time, and model when present.
func synthesizeChunk(comp *cloud.Completion, requested string) stream.Chunk {
	id := comp.ID
	if id == "" {
		id = generateResponseID()
	}
	created := comp.Created
	if created == 0 {
		created = time.Now().Unix()
	}
	modelID := comp.Model
	if modelID == "" {
		modelID = requested
	}
	return stream.NewContentChunk(id, created, modelID, comp.Content)
}
