package flux

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avieira/designgen"
)

// fakeProvider scripts the submission endpoint, the polling URL, and the
// result-image URL for one test.
type fakeProvider struct {
	t *testing.T

	submitStatus int
	submitBody   string // raw JSON; {{poll}} and {{img}} are expanded

	pollStatus    int
	pollResponses []string // one per attempt; last repeats
	pollCount     atomic.Int64

	imageStatus int
	imageBytes  []byte
	imageCount  atomic.Int64

	srv *httptest.Server
}

func newFakeProvider(t *testing.T) *fakeProvider {
	f := &fakeProvider{
		t:            t,
		submitStatus: http.StatusOK,
		pollStatus:   http.StatusOK,
		imageStatus:  http.StatusOK,
		imageBytes:   []byte("raw-image-bytes"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/"+APIModelKontextPro, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("x-key"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.WriteHeader(f.submitStatus)
		fmt.Fprint(w, f.expand(f.submitBody))
	})
	mux.HandleFunc("GET /poll", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("x-key"))
		n := f.pollCount.Add(1)
		idx := int(n) - 1
		if idx >= len(f.pollResponses) {
			idx = len(f.pollResponses) - 1
		}
		w.WriteHeader(f.pollStatus)
		fmt.Fprint(w, f.expand(f.pollResponses[idx]))
	})
	mux.HandleFunc("GET /img", func(w http.ResponseWriter, r *http.Request) {
		f.imageCount.Add(1)
		w.WriteHeader(f.imageStatus)
		_, _ = w.Write(f.imageBytes)
	})

	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeProvider) expand(body string) string {
	body = strings.ReplaceAll(body, "{{poll}}", f.srv.URL+"/poll")
	return strings.ReplaceAll(body, "{{img}}", f.srv.URL+"/img")
}

func (f *fakeProvider) client() *Client {
	return New(
		&designgen.ProviderConfig{APIKey: "test-key", BaseURL: f.srv.URL},
		WithPollPolicy(time.Millisecond, DefaultMaxPollAttempts),
	)
}

func submitPayload(t *testing.T) json.RawMessage {
	t.Helper()
	payload, err := json.Marshal(map[string]any{"prompt": "a calm reading nook"})
	require.NoError(t, err)
	return payload
}

func TestSubmit_DirectResult(t *testing.T) {
	f := newFakeProvider(t)
	f.submitBody = `{"image_b64":"aGVsbG8=","mime_type":"image/webp"}`

	result, err := f.client().Submit(context.Background(), submitPayload(t), designgen.OutputFormatPNG)
	require.NoError(t, err)

	assert.Equal(t, "aGVsbG8=", result.ImageBytes)
	assert.Equal(t, "image/webp", result.MIMEType)
	assert.EqualValues(t, 0, f.pollCount.Load(), "direct results must not trigger polling")
}

func TestSubmit_DirectResult_MIMEFallback(t *testing.T) {
	tests := []struct {
		hint designgen.OutputFormat
		want string
	}{
		{designgen.OutputFormatJPEG, "image/jpeg"},
		{designgen.OutputFormatPNG, "image/png"},
		{designgen.OutputFormat("unknown"), "image/png"},
	}

	for _, tt := range tests {
		t.Run(string(tt.hint), func(t *testing.T) {
			f := newFakeProvider(t)
			f.submitBody = `{"image_b64":"aGVsbG8="}`

			result, err := f.client().Submit(context.Background(), submitPayload(t), tt.hint)
			require.NoError(t, err)
			assert.Equal(t, tt.want, result.MIMEType)
		})
	}
}

func TestSubmit_DeferredReadyOnLastAttempt(t *testing.T) {
	f := newFakeProvider(t)
	f.submitBody = `{"id":"job-1","polling_url":"{{poll}}"}`
	for i := 0; i < 9; i++ {
		f.pollResponses = append(f.pollResponses, `{"status":"processing"}`)
	}
	f.pollResponses = append(f.pollResponses, `{"status":"ready","result":{"sample":"{{img}}"}}`)

	result, err := f.client().Submit(context.Background(), submitPayload(t), designgen.OutputFormatJPEG)
	require.NoError(t, err)

	assert.EqualValues(t, 10, f.pollCount.Load(), "should succeed exactly on the last allowed attempt")
	assert.Equal(t, base64.StdEncoding.EncodeToString(f.imageBytes), result.ImageBytes)
	assert.Equal(t, "image/jpeg", result.MIMEType)
}

func TestSubmit_DeferredIssuesAtLeastOnePoll(t *testing.T) {
	f := newFakeProvider(t)
	f.submitBody = `{"id":"job-2","polling_url":"{{poll}}"}`
	f.pollResponses = []string{`{"status":"ready","result":{"sample":"{{img}}"}}`}

	_, err := f.client().Submit(context.Background(), submitPayload(t), designgen.OutputFormatPNG)
	require.NoError(t, err)
	assert.EqualValues(t, 1, f.pollCount.Load())
}

func TestSubmit_PollTimeout(t *testing.T) {
	f := newFakeProvider(t)
	f.submitBody = `{"id":"job-3","polling_url":"{{poll}}"}`
	f.pollResponses = []string{`{"status":"pending"}`}

	_, err := f.client().Submit(context.Background(), submitPayload(t), designgen.OutputFormatPNG)
	require.ErrorIs(t, err, designgen.ErrPollTimeout)
	assert.EqualValues(t, DefaultMaxPollAttempts, f.pollCount.Load(), "never issues an attempt past the cap")
}

func TestSubmit_PollFailedStopsImmediately(t *testing.T) {
	f := newFakeProvider(t)
	f.submitBody = `{"id":"job-4","polling_url":"{{poll}}"}`
	f.pollResponses = []string{`{"status":"failed","error_message":"content rejected"}`}

	_, err := f.client().Submit(context.Background(), submitPayload(t), designgen.OutputFormatPNG)

	var jfErr *designgen.JobFailedError
	require.ErrorAs(t, err, &jfErr)
	assert.Equal(t, "content rejected", jfErr.Reason)
	assert.EqualValues(t, 1, f.pollCount.Load(), "failed status is never retried")
}

func TestSubmit_SubmissionHTTPError(t *testing.T) {
	f := newFakeProvider(t)
	f.submitStatus = http.StatusForbidden
	f.submitBody = `{"detail":"invalid key"}`

	_, err := f.client().Submit(context.Background(), submitPayload(t), designgen.OutputFormatPNG)

	var pErr *designgen.ProviderError
	require.ErrorAs(t, err, &pErr)
	assert.Equal(t, http.StatusForbidden, pErr.StatusCode)
	assert.Contains(t, pErr.Message, "invalid key")
}

func TestSubmit_MalformedSubmissionBody(t *testing.T) {
	f := newFakeProvider(t)
	f.submitBody = `<html>definitely not json</html>`

	_, err := f.client().Submit(context.Background(), submitPayload(t), designgen.OutputFormatPNG)

	var mErr *designgen.MalformedResponseError
	require.ErrorAs(t, err, &mErr)
	assert.Contains(t, mErr.Excerpt, "definitely not json")
}

func TestSubmit_UnusableResponseShape(t *testing.T) {
	f := newFakeProvider(t)
	f.submitBody = `{"id":"job-5","status":"accepted"}`

	_, err := f.client().Submit(context.Background(), submitPayload(t), designgen.OutputFormatPNG)
	require.ErrorIs(t, err, designgen.ErrUnusableResponse)
	assert.EqualValues(t, 0, f.pollCount.Load())
}

func TestSubmit_BareURLStringPollResponse(t *testing.T) {
	f := newFakeProvider(t)
	f.submitBody = `{"id":"job-6","polling_url":"{{poll}}"}`
	f.pollResponses = []string{`"{{img}}"`}

	result, err := f.client().Submit(context.Background(), submitPayload(t), designgen.OutputFormatPNG)
	require.NoError(t, err)

	assert.Equal(t, base64.StdEncoding.EncodeToString(f.imageBytes), result.ImageBytes)
	assert.EqualValues(t, 1, f.imageCount.Load())
}

func TestSubmit_PollHTTPErrorIsFatal(t *testing.T) {
	f := newFakeProvider(t)
	f.submitBody = `{"id":"job-7","polling_url":"{{poll}}"}`
	f.pollStatus = http.StatusBadGateway
	f.pollResponses = []string{`{"message":"upstream unavailable"}`}

	_, err := f.client().Submit(context.Background(), submitPayload(t), designgen.OutputFormatPNG)

	var pErr *designgen.ProviderError
	require.ErrorAs(t, err, &pErr)
	assert.Equal(t, http.StatusBadGateway, pErr.StatusCode)
	assert.EqualValues(t, 1, f.pollCount.Load(), "transport errors during polling are not retried")
}

func TestSubmit_ImageFetchError(t *testing.T) {
	f := newFakeProvider(t)
	f.submitBody = `{"id":"job-8","polling_url":"{{poll}}"}`
	f.pollResponses = []string{`{"status":"ready","result":{"sample":"{{img}}"}}`}
	f.imageStatus = http.StatusNotFound

	_, err := f.client().Submit(context.Background(), submitPayload(t), designgen.OutputFormatPNG)

	var pErr *designgen.ProviderError
	require.ErrorAs(t, err, &pErr)
	assert.Equal(t, http.StatusNotFound, pErr.StatusCode)
}

func TestSubmit_UnknownShapeTreatedAsPending(t *testing.T) {
	f := newFakeProvider(t)
	f.submitBody = `{"id":"job-9","polling_url":"{{poll}}"}`
	f.pollResponses = []string{
		`{"progress":0.5}`,
		`{"status":"ready","result":{"sample":"{{img}}"}}`,
	}

	_, err := f.client().Submit(context.Background(), submitPayload(t), designgen.OutputFormatPNG)
	require.NoError(t, err)
	assert.EqualValues(t, 2, f.pollCount.Load())
}

func TestSubmit_Idempotent(t *testing.T) {
	f := newFakeProvider(t)
	f.submitBody = `{"image_b64":"aGVsbG8=","mime_type":"image/png"}`

	c := f.client()
	first, err := c.Submit(context.Background(), submitPayload(t), designgen.OutputFormatPNG)
	require.NoError(t, err)
	second, err := c.Submit(context.Background(), submitPayload(t), designgen.OutputFormatPNG)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.NotSame(t, first, second)
}

func TestSubmit_ContextCancelledDuringDelay(t *testing.T) {
	f := newFakeProvider(t)
	f.submitBody = `{"id":"job-10","polling_url":"{{poll}}"}`
	f.pollResponses = []string{`{"status":"queued"}`}

	c := New(
		&designgen.ProviderConfig{APIKey: "test-key", BaseURL: f.srv.URL},
		WithPollPolicy(time.Minute, DefaultMaxPollAttempts),
	)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := c.Submit(ctx, submitPayload(t), designgen.OutputFormatPNG)
	require.ErrorIs(t, err, context.Canceled)
	assert.EqualValues(t, 1, f.pollCount.Load())
}

func TestGenerate_BuildsPayloadAndDecodes(t *testing.T) {
	var captured map[string]any

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/"+APIModelKontextPro, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		fmt.Fprintf(w, `{"image_b64":%q,"mime_type":"image/jpeg"}`,
			base64.StdEncoding.EncodeToString([]byte("jpeg-bytes")))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := New(&designgen.ProviderConfig{APIKey: "test-key", BaseURL: srv.URL})

	result, err := c.Generate(context.Background(), "soft morning light", &designgen.GenerateConfig{
		OutputFormat:     designgen.OutputFormatJPEG,
		AspectRatio:      designgen.AspectRatio16x9,
		PromptUpsampling: true,
		SafetyTolerance:  2,
	})
	require.NoError(t, err)

	assert.Equal(t, "soft morning light", captured["prompt"])
	assert.Equal(t, "jpeg", captured["output_format"])
	assert.Equal(t, "16:9", captured["aspect_ratio"])
	assert.Equal(t, true, captured["prompt_upsampling"])
	assert.EqualValues(t, 2, captured["safety_tolerance"])

	require.Len(t, result.Images, 1)
	assert.Equal(t, []byte("jpeg-bytes"), result.Images[0].Data)
	assert.Equal(t, "image/jpeg", result.Images[0].MIMEType)
}

func TestGenerate_EmptyPrompt(t *testing.T) {
	c := NewWithAPIKey("test-key")
	_, err := c.Generate(context.Background(), "", nil)
	require.ErrorIs(t, err, designgen.ErrEmptyPrompt)
}

func TestEditMultiple_RejectsMultipleImages(t *testing.T) {
	c := NewWithAPIKey("test-key")
	images := []designgen.InputImage{
		{Data: []byte("a"), MIMEType: "image/png"},
		{Data: []byte("b"), MIMEType: "image/png"},
	}
	_, err := c.EditMultiple(context.Background(), images, "merge these", nil)
	require.Error(t, err)
}

func TestClassifyPoll(t *testing.T) {
	tests := []struct {
		name string
		body string
		want pollOutcomeKind
	}{
		{"inline ready", `{"image_b64":"abc","mime_type":"image/png"}`, pollInlineReady},
		{"inline wins over status", `{"status":"ready","image_b64":"abc","result":{"sample":"https://x/img"}}`, pollInlineReady},
		{"ready with sample", `{"status":"ready","result":{"sample":"https://x/img"}}`, pollReadyURL},
		{"ready capitalized", `{"status":"Ready","result":{"sample":"https://x/img"}}`, pollReadyURL},
		{"processing", `{"status":"processing"}`, pollPending},
		{"pending capitalized", `{"status":"Pending"}`, pollPending},
		{"queued", `{"status":"queued"}`, pollPending},
		{"failed", `{"status":"failed","detail":"boom"}`, pollFailed},
		{"bare url", `"https://example.com/img.png"`, pollBareURL},
		{"bare non-url string", `"still working"`, pollUnknown},
		{"unknown object", `{"progress":0.4}`, pollUnknown},
		{"not json", `<html></html>`, pollUnknown},
		{"ready without sample", `{"status":"ready"}`, pollUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classifyPoll([]byte(tt.body)).kind)
		})
	}
}

func TestClassifyPoll_FailureReasonPrecedence(t *testing.T) {
	outcome := classifyPoll([]byte(`{"status":"failed","error":"last","detail":"middle","error_message":"first"}`))
	require.Equal(t, pollFailed, outcome.kind)
	assert.Equal(t, "first", outcome.reason)
}

func TestNormalizeError_FallsBackToStatusText(t *testing.T) {
	err := normalizeError(http.StatusServiceUnavailable, []byte(`{}`))

	var pErr *designgen.ProviderError
	require.True(t, errors.As(err, &pErr))
	assert.Equal(t, http.StatusText(http.StatusServiceUnavailable), pErr.Message)
}
