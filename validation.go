package designgen

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// Validation errors
var (
	ErrEmptyPrompt     = errors.New("prompt cannot be empty")
	ErrEmptyImageData  = errors.New("image data cannot be empty")
	ErrInvalidMIMEType = errors.New("invalid or unsupported MIME type")
	ErrImageTooLarge   = errors.New("image data exceeds maximum size")
	ErrTooManyImages   = errors.New("too many input images")
)

// Image size limits
const (
	// MaxImageSize is the maximum allowed image size in bytes (20MB)
	MaxImageSize = 20 * 1024 * 1024

	// MaxInputImages is the maximum number of input images for multi-image editing
	MaxInputImages = 14
)

// ValidMIMETypes contains the supported image MIME types
var ValidMIMETypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
	"image/gif":  true,
}

// ValidatePrompt validates a text prompt.
func ValidatePrompt(prompt string) error {
	if prompt == "" {
		return ErrEmptyPrompt
	}
	return nil
}

// DetectMIMEType sniffs the MIME type of image bytes. Returns an empty
// string when the content is not a recognized image format.
func DetectMIMEType(data []byte) string {
	mt := mimetype.Detect(data)
	if mt == nil || !strings.HasPrefix(mt.String(), "image/") {
		return ""
	}
	return mt.String()
}

// ValidateInputImage validates an input image. When the MIME type is not set,
// it is sniffed from the image bytes.
func ValidateInputImage(img InputImage) error {
	if len(img.Data) == 0 && img.URI == "" {
		return ErrEmptyImageData
	}

	if len(img.Data) > 0 {
		if len(img.Data) > MaxImageSize {
			return fmt.Errorf("%w: %d bytes (max %d)", ErrImageTooLarge, len(img.Data), MaxImageSize)
		}

		mime := img.MIMEType
		if mime == "" {
			mime = DetectMIMEType(img.Data)
			if mime == "" {
				return fmt.Errorf("%w: MIME type missing and not detectable", ErrInvalidMIMEType)
			}
		}

		if !ValidMIMETypes[mime] {
			return fmt.Errorf("%w: %s", ErrInvalidMIMEType, mime)
		}
	}

	return nil
}

// ValidateInputImages validates a slice of input images.
func ValidateInputImages(images []InputImage) error {
	if len(images) == 0 {
		return ErrEmptyImageData
	}

	if len(images) > MaxInputImages {
		return fmt.Errorf("%w: %d (max %d)", ErrTooManyImages, len(images), MaxInputImages)
	}

	for i, img := range images {
		if err := ValidateInputImage(img); err != nil {
			return fmt.Errorf("image %d: %w", i, err)
		}
	}

	return nil
}
