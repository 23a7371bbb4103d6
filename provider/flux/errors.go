package flux

import (
	"encoding/json"
	"net/http"

	"github.com/avieira/designgen"
)

// maxExcerptLen bounds the raw-body excerpt carried in diagnostics.
const maxExcerptLen = 200

// errorBody covers the message fields the provider is known to use in error
// responses.
type errorBody struct {
	Message string `json:"message"`
	Detail  string `json:"detail"`
	Error   string `json:"error"`
}

// normalizeError converts a non-success HTTP response into a ProviderError,
// extracting a best-effort message from the JSON body and falling back to
// the HTTP status text.
func normalizeError(status int, body []byte) error {
	var eb errorBody
	_ = json.Unmarshal(body, &eb)

	message := eb.Message
	if message == "" {
		message = eb.Detail
	}
	if message == "" {
		message = eb.Error
	}
	if message == "" {
		message = http.StatusText(status)
	}

	return &designgen.ProviderError{
		Provider:   providerName,
		StatusCode: status,
		Message:    message,
	}
}

// excerpt returns a truncated copy of a response body for diagnostics.
func excerpt(body []byte) string {
	if len(body) > maxExcerptLen {
		return string(body[:maxExcerptLen]) + "..."
	}
	return string(body)
}
