package designgen

// JobResult is the normalized outcome of one image generation job: encoded
// image bytes plus a resolved MIME type. All intermediate provider shapes
// (deferred acceptances, poll statuses, result URLs) are discarded before
// this value is returned to the caller.
type JobResult struct {
	// ImageBytes is the base64-encoded image payload.
	ImageBytes string `json:"image_bytes"`

	// MIMEType of the encoded image.
	MIMEType string `json:"mime_type"`
}

// ResolveMIMEType resolves the MIME type for image bytes. An explicit
// provider-supplied type always wins; otherwise the advisory output format
// hint decides, defaulting to image/png for anything unrecognized.
func ResolveMIMEType(explicit string, hint OutputFormat) string {
	if explicit != "" {
		return explicit
	}
	switch hint {
	case OutputFormatJPEG:
		return "image/jpeg"
	case OutputFormatPNG:
		return "image/png"
	default:
		return "image/png"
	}
}
