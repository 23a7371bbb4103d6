package flux

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/avieira/designgen"
)

// generationRequest is the submission payload for text-to-image and editing
// jobs. Field names are the provider's contract.
type generationRequest struct {
	Prompt           string `json:"prompt"`
	OutputFormat     string `json:"output_format,omitempty"`
	PromptUpsampling bool   `json:"prompt_upsampling,omitempty"`
	SafetyTolerance  int    `json:"safety_tolerance,omitempty"`
	AspectRatio      string `json:"aspect_ratio,omitempty"`
	InputImage       string `json:"input_image,omitempty"` // base64, editing only
}

// Generate creates an image from a text prompt.
func (c *Client) Generate(ctx context.Context, prompt string, config *designgen.GenerateConfig) (*designgen.GenerateResult, error) {
	if err := designgen.ValidatePrompt(prompt); err != nil {
		return nil, err
	}
	if config == nil {
		config = designgen.DefaultConfig()
	}

	req := c.buildRequest(prompt, config)
	return c.run(ctx, req, config.OutputFormat)
}

// Edit modifies an existing image based on a text instruction. The source
// image ships inline with the submission.
func (c *Client) Edit(ctx context.Context, image designgen.InputImage, instruction string, config *designgen.GenerateConfig) (*designgen.GenerateResult, error) {
	if err := designgen.ValidatePrompt(instruction); err != nil {
		return nil, err
	}
	if err := designgen.ValidateInputImage(image); err != nil {
		return nil, err
	}
	if config == nil {
		config = designgen.DefaultConfig()
	}

	req := c.buildRequest(instruction, config)
	req.InputImage = base64.StdEncoding.EncodeToString(image.Data)
	return c.run(ctx, req, config.OutputFormat)
}

// EditMultiple accepts exactly one reference image; the Flux job API takes a
// single input image per submission.
func (c *Client) EditMultiple(ctx context.Context, images []designgen.InputImage, instruction string, config *designgen.GenerateConfig) (*designgen.GenerateResult, error) {
	if len(images) == 1 {
		return c.Edit(ctx, images[0], instruction, config)
	}
	return nil, errors.New("flux supports a single input image per edit")
}

// Models returns the model definitions supported by this provider.
func (c *Client) Models() []designgen.ModelInfo {
	return []designgen.ModelInfo{KontextProInfo}
}

// Close releases any resources held by the client.
func (c *Client) Close() error {
	return nil
}

func (c *Client) buildRequest(prompt string, config *designgen.GenerateConfig) *generationRequest {
	req := &generationRequest{
		Prompt:           prompt,
		PromptUpsampling: config.PromptUpsampling,
		SafetyTolerance:  config.SafetyTolerance,
	}
	if config.OutputFormat != "" {
		req.OutputFormat = config.OutputFormat.String()
	}
	if config.AspectRatio != designgen.AspectRatioAuto {
		req.AspectRatio = config.AspectRatio.String()
	}
	return req
}

// run submits a typed request and converts the normalized JobResult into the
// generator result shape.
func (c *Client) run(ctx context.Context, req *generationRequest, formatHint designgen.OutputFormat) (*designgen.GenerateResult, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	job, err := c.Submit(ctx, payload, formatHint)
	if err != nil {
		return nil, err
	}

	data, err := base64.StdEncoding.DecodeString(job.ImageBytes)
	if err != nil {
		return nil, fmt.Errorf("decoding image payload: %w", err)
	}

	return &designgen.GenerateResult{
		Images: []designgen.GeneratedImage{
			{
				Data:     data,
				MIMEType: job.MIMEType,
				Index:    0,
			},
		},
	}, nil
}
