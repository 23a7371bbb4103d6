package flux

import (
	"encoding/json"
	"strings"
)

// pollOutcomeKind enumerates the recognized poll-response shapes, in the
// order they are checked: inline image data, a ready result URL, an explicit
// pending label, an explicit failed label, a bare URL string, and everything
// else.
type pollOutcomeKind int

const (
	pollInlineReady pollOutcomeKind = iota
	pollReadyURL
	pollPending
	pollFailed
	pollBareURL
	pollUnknown
)

// pollOutcome is the classified form of one poll response.
type pollOutcome struct {
	kind     pollOutcomeKind
	imageB64 string
	mimeType string
	url      string
	reason   string
}

// pollResponse covers every JSON object shape the provider is known to send
// on the polling URL.
type pollResponse struct {
	Status   string `json:"status"`
	ImageB64 string `json:"image_b64"`
	MIMEType string `json:"mime_type"`
	Result   struct {
		Sample string `json:"sample"`
	} `json:"result"`
	ErrorMessage string `json:"error_message"`
	Detail       string `json:"detail"`
	Error        string `json:"error"`
}

// classifyPoll maps a poll response body to a pollOutcome. Unrecognized
// shapes, including bodies that do not parse as JSON, classify as
// pollUnknown; the caller decides how lenient to be with those.
func classifyPoll(body []byte) pollOutcome {
	var pr pollResponse
	if err := json.Unmarshal(body, &pr); err == nil {
		switch {
		case pr.ImageB64 != "":
			return pollOutcome{kind: pollInlineReady, imageB64: pr.ImageB64, mimeType: pr.MIMEType}
		case isReadyStatus(pr.Status) && pr.Result.Sample != "":
			return pollOutcome{kind: pollReadyURL, url: pr.Result.Sample}
		case isPendingStatus(pr.Status):
			return pollOutcome{kind: pollPending}
		case isFailedStatus(pr.Status):
			return pollOutcome{kind: pollFailed, reason: failureReason(&pr)}
		}
		return pollOutcome{kind: pollUnknown}
	}

	// Legacy shape: a bare JSON string that is itself an image URL.
	var s string
	if err := json.Unmarshal(body, &s); err == nil && isHTTPURL(s) {
		return pollOutcome{kind: pollBareURL, url: s}
	}

	return pollOutcome{kind: pollUnknown}
}

func isReadyStatus(status string) bool {
	return strings.EqualFold(status, "ready")
}

// isPendingStatus recognizes the provider's in-progress labels, all treated
// identically.
func isPendingStatus(status string) bool {
	switch strings.ToLower(status) {
	case "processing", "pending", "queued":
		return true
	}
	return false
}

func isFailedStatus(status string) bool {
	return strings.EqualFold(status, "failed") || strings.EqualFold(status, "error")
}

// failureReason extracts the provider-supplied failure message, if any.
func failureReason(pr *pollResponse) string {
	for _, candidate := range []string{pr.ErrorMessage, pr.Detail, pr.Error} {
		if candidate != "" {
			return candidate
		}
	}
	return ""
}

func isHTTPURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
