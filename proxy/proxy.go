// Package proxy exposes the Flux job client behind a small HTTP boundary so
// browser clients never see the provider key. It mirrors a serverless
// function surface: permissive CORS, POST-only, JSON errors as {message}.
package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/avieira/designgen"
	"github.com/avieira/designgen/provider/flux"
)

// DefaultKeyEnvVar is the environment variable holding the provider key.
const DefaultKeyEnvVar = "FLUX_API_KEY"

// maxPayloadBytes bounds the request body; edit payloads carry inline
// base64 images.
const maxPayloadBytes = 32 << 20

// Submitter runs one generation job end to end. *flux.Client implements it.
type Submitter interface {
	Submit(ctx context.Context, payload json.RawMessage, formatHint designgen.OutputFormat) (*designgen.JobResult, error)
}

// Handler proxies generation requests to the Flux API. The provider key is
// read from the environment on every request, never cached, so rotation
// takes effect immediately.
type Handler struct {
	keyEnvVar string
	logger    *slog.Logger

	// newSubmitter builds the per-request client once the key is known.
	newSubmitter func(apiKey string) Submitter
}

var _ http.Handler = (*Handler)(nil)

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithLogger sets a structured logger.
func WithLogger(logger *slog.Logger) HandlerOption {
	return func(h *Handler) { h.logger = logger }
}

// WithKeyEnvVar overrides the environment variable read for the provider key.
func WithKeyEnvVar(name string) HandlerOption {
	return func(h *Handler) { h.keyEnvVar = name }
}

// WithSubmitterFactory overrides how the per-request client is built.
func WithSubmitterFactory(factory func(apiKey string) Submitter) HandlerOption {
	return func(h *Handler) { h.newSubmitter = factory }
}

// NewHandler creates the proxy handler. By default it submits jobs through
// a flux.Client with the standard poll policy.
func NewHandler(opts ...HandlerOption) *Handler {
	h := &Handler{
		keyEnvVar: DefaultKeyEnvVar,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.newSubmitter == nil {
		h.newSubmitter = func(apiKey string) Submitter {
			return flux.NewWithAPIKey(apiKey)
		}
	}
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	requestID := uuid.NewString()
	logger := h.logger.With("request_id", requestID)

	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
	w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")

	// Preflight answers immediately, before any validation.
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		observeRequest(r.Method, "preflight", time.Since(start))
		return
	}

	if r.Method != http.MethodPost {
		logger.Warn("method not allowed", "method", r.Method)
		writeMessage(w, http.StatusMethodNotAllowed, "Method Not Allowed. Only POST requests are accepted.")
		observeRequest(r.Method, "method_not_allowed", time.Since(start))
		return
	}

	// The key check runs before any body read or provider call.
	apiKey := os.Getenv(h.keyEnvVar)
	if apiKey == "" {
		logger.Error("provider key not configured", "env_var", h.keyEnvVar)
		writeMessage(w, http.StatusInternalServerError, "Flux API key is not configured on the server.")
		observeRequest(r.Method, "missing_key", time.Since(start))
		return
	}

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxPayloadBytes))
	if err != nil {
		logger.Error("reading request body failed", "error", err)
		writeMessage(w, http.StatusBadRequest, "Failed to read request body.")
		observeRequest(r.Method, "bad_request", time.Since(start))
		return
	}

	result, err := h.newSubmitter(apiKey).Submit(r.Context(), payload, formatHint(payload))
	if err != nil {
		status, outcome := mapError(err)
		logger.Error("generation failed",
			"status", status,
			"outcome", outcome,
			"error", err,
			"duration", time.Since(start),
		)
		writeMessage(w, status, fmt.Sprintf("Error proxying to Flux API: %v", err))
		incJobOutcome(outcome)
		observeRequest(r.Method, outcome, time.Since(start))
		return
	}

	logger.Info("generation complete",
		"mime_type", result.MIMEType,
		"duration", time.Since(start),
	)
	writeJSON(w, http.StatusOK, result)
	incJobOutcome("success")
	observeRequest(r.Method, "success", time.Since(start))
}

// mapError converts job-client errors to an HTTP status and a metric label.
func mapError(err error) (int, string) {
	var pErr *designgen.ProviderError
	if errors.As(err, &pErr) && pErr.StatusCode != 0 {
		return pErr.StatusCode, "provider_error"
	}
	if errors.Is(err, designgen.ErrPollTimeout) {
		return http.StatusGatewayTimeout, "timeout"
	}
	var jfErr *designgen.JobFailedError
	if errors.As(err, &jfErr) {
		return http.StatusBadGateway, "failed"
	}
	var mErr *designgen.MalformedResponseError
	if errors.As(err, &mErr) {
		return http.StatusBadGateway, "malformed"
	}
	if errors.Is(err, designgen.ErrUnusableResponse) {
		return http.StatusBadGateway, "unusable"
	}
	return http.StatusInternalServerError, "error"
}

// formatHint peeks at the payload for the requested output format so the
// response MIME type can be resolved when the provider omits it.
func formatHint(payload []byte) designgen.OutputFormat {
	var peek struct {
		OutputFormat string `json:"output_format"`
	}
	if err := json.Unmarshal(payload, &peek); err == nil && peek.OutputFormat != "" {
		return designgen.OutputFormat(peek.OutputFormat)
	}
	return designgen.OutputFormatPNG
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
