package s3

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestObjectKey(t *testing.T) {
	s := NewFromClient(nil, "designs", "us-east-1")
	assert.Equal(t, "images/out.png", s.objectKey("/images/out.png"))

	prefixed := NewFromClient(nil, "designs", "us-east-1", WithKeyPrefix("/renders/"))
	assert.Equal(t, "renders/images/out.png", prefixed.objectKey("images/out.png"))
}

func TestPublicURL(t *testing.T) {
	s := NewFromClient(nil, "designs", "us-east-1")
	assert.Equal(t,
		"https://designs.s3.us-east-1.amazonaws.com/renders/out.png",
		s.publicURL("renders/out.png"))

	noRegion := NewFromClient(nil, "designs", "")
	assert.Equal(t,
		"https://designs.s3.amazonaws.com/out.png",
		noRegion.publicURL("out.png"))

	cdn := NewFromClient(nil, "designs", "us-east-1", WithPublicBaseURL("https://cdn.example.com/"))
	assert.Equal(t,
		"https://cdn.example.com/renders/out.png",
		cdn.publicURL("renders/out.png"))
}
