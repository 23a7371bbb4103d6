// Package flux provides an ImageGenerator implementation for the Black Forest
// Labs Flux API.
//
// Flux is an asynchronous job API: a submission either returns the image
// inline or defers with a polling URL that must be checked until the job
// completes, fails, or the attempt budget runs out. Client.Submit implements
// that protocol and normalizes every outcome to a JobResult or a typed error.
//
// API docs: https://docs.bfl.ai/quick_start/generating_images
package flux

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/avieira/designgen"
)

const (
	// DefaultBaseURL is the primary global endpoint.
	// Regional: api.eu.bfl.ai (EU), api.us.bfl.ai (US).
	DefaultBaseURL = "https://api.bfl.ai"

	// APIModelKontextPro is the default model name on the wire.
	APIModelKontextPro = "flux-kontext-pro"

	// DefaultPollInterval is the fixed delay between poll attempts.
	DefaultPollInterval = 3 * time.Second

	// DefaultMaxPollAttempts caps the number of polls per job. The policy is
	// static: no Retry-After handling, no adaptive backoff.
	DefaultMaxPollAttempts = 10
)

const providerName = "flux"

// Client submits generation jobs to the Flux API and resolves deferred
// responses by polling. A Client holds no per-job state; concurrent Submit
// calls are independent.
type Client struct {
	apiKey          string
	baseURL         string
	model           string
	pollInterval    time.Duration
	maxPollAttempts int
	httpClient      *http.Client
	logger          *slog.Logger
}

// Ensure Client implements the generator interface.
var _ designgen.ImageGenerator = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets a structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithPollPolicy overrides the fixed poll interval and attempt cap.
func WithPollPolicy(interval time.Duration, maxAttempts int) Option {
	return func(c *Client) {
		if interval > 0 {
			c.pollInterval = interval
		}
		if maxAttempts > 0 {
			c.maxPollAttempts = maxAttempts
		}
	}
}

// New creates a Client from a ProviderConfig.
func New(config *designgen.ProviderConfig, opts ...Option) *Client {
	if config == nil {
		config = &designgen.ProviderConfig{}
	}

	c := &Client{
		apiKey:          config.APIKey,
		baseURL:         strings.TrimRight(config.BaseURL, "/"),
		model:           APIModelKontextPro,
		pollInterval:    DefaultPollInterval,
		maxPollAttempts: DefaultMaxPollAttempts,
		httpClient:      &http.Client{Timeout: 120 * time.Second},
		logger:          slog.Default(),
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}

	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewWithAPIKey creates a Client authenticating with the given key.
func NewWithAPIKey(apiKey string) *Client {
	return New(&designgen.ProviderConfig{
		Provider: designgen.ProviderFlux,
		APIKey:   apiKey,
	})
}

// submitResponse is the provider's immediate answer to a submission. It
// either carries the image inline, defers via polling_url, or is unusable.
type submitResponse struct {
	ID         string `json:"id"`
	Status     string `json:"status"`
	PollingURL string `json:"polling_url"`
	ImageB64   string `json:"image_b64"`
	MIMEType   string `json:"mime_type"`
}

// Submit sends an opaque payload to the model's submission endpoint and runs
// the job to completion. The payload is forwarded verbatim; formatHint
// resolves the MIME type when the provider does not report one.
//
// Exactly one submission request is issued, followed by zero or more polls,
// strictly sequential. Every suspension point honors ctx.
func (c *Client) Submit(ctx context.Context, payload json.RawMessage, formatHint designgen.OutputFormat) (*designgen.JobResult, error) {
	endpoint := fmt.Sprintf("%s/v1/%s", c.baseURL, c.model)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("building submission request: %w", err)
	}
	httpReq.Header.Set("x-key", c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("submission request failed: %w", err)
	}
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("reading submission response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, normalizeError(resp.StatusCode, body)
	}

	var sub submitResponse
	if err := json.Unmarshal(body, &sub); err != nil {
		return nil, &designgen.MalformedResponseError{
			Provider: providerName,
			Excerpt:  excerpt(body),
			Err:      err,
		}
	}

	switch {
	case sub.ImageB64 != "":
		// Direct result, no polling required.
		return &designgen.JobResult{
			ImageBytes: sub.ImageB64,
			MIMEType:   designgen.ResolveMIMEType(sub.MIMEType, formatHint),
		}, nil
	case sub.PollingURL != "":
		c.logger.Debug("job deferred, polling",
			"job_id", sub.ID,
			"polling_url", sub.PollingURL,
		)
		return c.poll(ctx, sub.PollingURL, formatHint)
	default:
		return nil, designgen.ErrUnusableResponse
	}
}

// poll checks the job status on a fixed interval until it is ready, fails,
// or the attempt budget is exhausted. The attempt counter never resets, and
// at most one poll request is in flight at a time.
func (c *Client) poll(ctx context.Context, pollingURL string, formatHint designgen.OutputFormat) (*designgen.JobResult, error) {
	for attempt := 1; ; attempt++ {
		if attempt > c.maxPollAttempts {
			return nil, designgen.ErrPollTimeout
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, pollingURL, nil)
		if err != nil {
			return nil, fmt.Errorf("building poll request: %w", err)
		}
		httpReq.Header.Set("x-key", c.apiKey)
		httpReq.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			return nil, fmt.Errorf("poll request failed: %w", err)
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("reading poll response: %w", err)
		}

		// Transport-level poll errors are fatal, never retried.
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, normalizeError(resp.StatusCode, body)
		}

		outcome := classifyPoll(body)
		switch outcome.kind {
		case pollInlineReady:
			return &designgen.JobResult{
				ImageBytes: outcome.imageB64,
				MIMEType:   designgen.ResolveMIMEType(outcome.mimeType, formatHint),
			}, nil

		case pollReadyURL, pollBareURL:
			return c.fetchImage(ctx, outcome.url, formatHint)

		case pollFailed:
			return nil, &designgen.JobFailedError{
				Provider: providerName,
				Reason:   outcome.reason,
			}

		case pollUnknown:
			// The provider's status vocabulary is not fully enumerable;
			// unrecognized shapes are treated as still pending rather than
			// fatal, bounded by the attempt cap.
			c.logger.Warn("unrecognized poll response shape, treating as pending",
				"attempt", attempt,
				"body", excerpt(body),
			)
			fallthrough

		case pollPending:
			if err := sleepCtx(ctx, c.pollInterval); err != nil {
				return nil, err
			}
		}
	}
}

// fetchImage downloads the final image from a result URL and encodes it.
func (c *Client) fetchImage(ctx context.Context, url string, formatHint designgen.OutputFormat) (*designgen.JobResult, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building image fetch request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("image fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &designgen.ProviderError{
			Provider:   providerName,
			StatusCode: resp.StatusCode,
			Message:    "fetching result image failed",
		}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading result image: %w", err)
	}

	return &designgen.JobResult{
		ImageBytes: base64.StdEncoding.EncodeToString(data),
		MIMEType:   designgen.ResolveMIMEType("", formatHint),
	}, nil
}

// sleepCtx waits for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
