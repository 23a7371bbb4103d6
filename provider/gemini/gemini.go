// Package gemini provides an ImageGenerator implementation using Google's
// Gemini API via the official Go SDK:
// https://github.com/googleapis/go-genai
//
// Beyond generation and editing, this provider carries the prompt-assist
// operations (structural prompt engineering, tag suggestion); see assist.go.
package gemini

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/avieira/designgen"
	"google.golang.org/genai"
)

// APIModelNanoBanana is the actual API name for Gemini 2.5 Flash Image,
// better known by its nickname "nano banana".
const APIModelNanoBanana = "gemini-2.5-flash-image"

// GeminiGenerator implements ImageGenerator using Google's Gemini API.
type GeminiGenerator struct {
	client         *genai.Client
	safetySettings []*genai.SafetySetting
	mu             sync.RWMutex
}

// Ensure GeminiGenerator implements the interfaces.
var (
	_ designgen.ImageGenerator               = (*GeminiGenerator)(nil)
	_ designgen.ConversationalImageGenerator = (*GeminiGenerator)(nil)
)

// New creates a new GeminiGenerator from a ProviderConfig.
func New(ctx context.Context, config *designgen.ProviderConfig) (*GeminiGenerator, error) {
	if config == nil {
		config = &designgen.ProviderConfig{}
	}

	clientCfg := &genai.ClientConfig{
		Backend: genai.BackendGeminiAPI,
	}

	if config.APIKey != "" {
		clientCfg.APIKey = config.APIKey
	}
	// If APIKey is empty, the SDK will try GOOGLE_API_KEY or GEMINI_API_KEY env vars

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiGenerator{
		client: client,
	}, nil
}

// NewWithAPIKey creates a generator with an API key for Gemini API.
func NewWithAPIKey(ctx context.Context, apiKey string) (*GeminiGenerator, error) {
	return New(ctx, &designgen.ProviderConfig{
		Provider: designgen.ProviderGeminiAPI,
		APIKey:   apiKey,
	})
}

// SetSafetySettings configures default safety settings for all requests.
// These can be overridden per-request via GenerateConfig.SafetySettings.
func (g *GeminiGenerator) SetSafetySettings(settings []designgen.SafetySetting) *GeminiGenerator {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.safetySettings = convertSafetySettings(settings)
	return g
}

// Generate creates images from a text prompt.
func (g *GeminiGenerator) Generate(ctx context.Context, prompt string, config *designgen.GenerateConfig) (*designgen.GenerateResult, error) {
	if err := designgen.ValidatePrompt(prompt); err != nil {
		return nil, err
	}

	if config == nil {
		config = designgen.DefaultConfig()
	}

	modelName := g.resolveModel(config)

	contents := []*genai.Content{
		{
			Parts: []*genai.Part{
				{Text: prompt},
			},
		},
	}

	// Add tools if grounding is enabled
	var tools []*genai.Tool
	if config.EnableGrounding {
		tools = []*genai.Tool{
			{GoogleSearch: &genai.GoogleSearch{}},
		}
	}

	genConfig := g.buildGenerateContentConfig(config, tools)

	result, err := g.client.Models.GenerateContent(ctx, modelName, contents, genConfig)
	if err != nil {
		if rlErr := checkRateLimitError(err, modelName); rlErr != nil {
			return nil, rlErr
		}
		return nil, fmt.Errorf("generation failed: %w", err)
	}

	return g.parseResult(result)
}

// Edit modifies an existing image based on a text instruction.
func (g *GeminiGenerator) Edit(ctx context.Context, image designgen.InputImage, instruction string, config *designgen.GenerateConfig) (*designgen.GenerateResult, error) {
	if err := designgen.ValidatePrompt(instruction); err != nil {
		return nil, err
	}
	if err := designgen.ValidateInputImage(image); err != nil {
		return nil, err
	}

	if config == nil {
		config = designgen.DefaultConfig()
	}

	modelName := g.resolveModel(config)

	// Build parts with image and text
	parts := []*genai.Part{
		{
			InlineData: &genai.Blob{
				Data:     image.Data,
				MIMEType: image.MIMEType,
			},
		},
		{Text: instruction},
	}

	contents := []*genai.Content{
		{Parts: parts},
	}

	genConfig := g.buildGenerateContentConfig(config, nil)

	result, err := g.client.Models.GenerateContent(ctx, modelName, contents, genConfig)
	if err != nil {
		if rlErr := checkRateLimitError(err, modelName); rlErr != nil {
			return nil, rlErr
		}
		return nil, fmt.Errorf("edit failed: %w", err)
	}

	return g.parseResult(result)
}

// EditMultiple performs editing with multiple reference images.
func (g *GeminiGenerator) EditMultiple(ctx context.Context, images []designgen.InputImage, instruction string, config *designgen.GenerateConfig) (*designgen.GenerateResult, error) {
	if err := designgen.ValidatePrompt(instruction); err != nil {
		return nil, err
	}
	if err := designgen.ValidateInputImages(images); err != nil {
		return nil, err
	}

	if config == nil {
		config = designgen.DefaultConfig()
	}

	modelName := g.resolveModel(config)

	// Build parts with all images followed by the instruction
	parts := make([]*genai.Part, 0, len(images)+1)
	for _, img := range images {
		parts = append(parts, &genai.Part{
			InlineData: &genai.Blob{
				Data:     img.Data,
				MIMEType: img.MIMEType,
			},
		})
	}
	parts = append(parts, &genai.Part{Text: instruction})

	contents := []*genai.Content{
		{Parts: parts},
	}

	genConfig := g.buildGenerateContentConfig(config, nil)

	result, err := g.client.Models.GenerateContent(ctx, modelName, contents, genConfig)
	if err != nil {
		if rlErr := checkRateLimitError(err, modelName); rlErr != nil {
			return nil, rlErr
		}
		return nil, fmt.Errorf("multi-image edit failed: %w", err)
	}

	return g.parseResult(result)
}

// Models returns the model definitions supported by this provider.
func (g *GeminiGenerator) Models() []designgen.ModelInfo {
	return []designgen.ModelInfo{
		NanoBananaInfo,
	}
}

// Close releases any resources held by the generator.
func (g *GeminiGenerator) Close() error {
	// The genai.Client doesn't require explicit closing in the current SDK
	return nil
}

// StartConversation begins a new image generation conversation.
func (g *GeminiGenerator) StartConversation() designgen.Conversation {
	return &GeminiConversation{
		generator: g,
		history:   make([]designgen.ConversationTurn, 0),
	}
}

// resolveModel determines which API model name to use.
// Falls back to the first model (default) if none specified.
func (g *GeminiGenerator) resolveModel(config *designgen.GenerateConfig) string {
	if config != nil && config.Model != "" {
		if config.Model == designgen.ModelNanoBanana {
			return APIModelNanoBanana
		}
		return string(config.Model)
	}
	models := g.Models()
	if len(models) == 0 {
		return APIModelNanoBanana
	}
	return models[0].APIModelName
}

// buildGenerateContentConfig converts our config to Gemini's GenerateContentConfig format.
func (g *GeminiGenerator) buildGenerateContentConfig(config *designgen.GenerateConfig, tools []*genai.Tool) *genai.GenerateContentConfig {
	genConfig := &genai.GenerateContentConfig{
		// Enable image output
		ResponseModalities: []string{"TEXT", "IMAGE"},
		Tools:              tools,
	}

	// Image configuration
	imageConfig := &genai.ImageConfig{}

	if config.Size != "" {
		imageConfig.ImageSize = config.Size.String()
	}

	if config.AspectRatio != "" {
		imageConfig.AspectRatio = config.AspectRatio.String()
	}

	genConfig.ImageConfig = imageConfig

	// Temperature
	if config.Temperature != nil {
		genConfig.Temperature = genai.Ptr(*config.Temperature)
	}

	// Thinking mode configuration
	if config.EnableThinking {
		genConfig.ThinkingConfig = &genai.ThinkingConfig{
			IncludeThoughts: true,
		}
	}

	// Safety settings: per-request overrides provider defaults
	if len(config.SafetySettings) > 0 {
		genConfig.SafetySettings = convertSafetySettings(config.SafetySettings)
	} else if len(g.safetySettings) > 0 {
		genConfig.SafetySettings = g.safetySettings
	}

	return genConfig
}

// convertSafetySettings converts our SafetySettings to Gemini's format.
func convertSafetySettings(settings []designgen.SafetySetting) []*genai.SafetySetting {
	result := make([]*genai.SafetySetting, 0, len(settings))
	for _, s := range settings {
		result = append(result, &genai.SafetySetting{
			Category:  genai.HarmCategory(s.Category),
			Threshold: genai.HarmBlockThreshold(s.Threshold),
		})
	}
	return result
}

// parseResult converts Gemini response to our result type.
func (g *GeminiGenerator) parseResult(result *genai.GenerateContentResponse) (*designgen.GenerateResult, error) {
	if result == nil || len(result.Candidates) == 0 {
		return nil, errors.New("empty response from model")
	}

	genResult := &designgen.GenerateResult{
		Images: make([]designgen.GeneratedImage, 0),
	}

	var thinkingParts []string

	imageIndex := 0
	for _, candidate := range result.Candidates {
		if candidate.Content == nil {
			continue
		}

		for _, part := range candidate.Content.Parts {
			// Handle thinking/thought parts
			if part.Thought && part.Text != "" {
				thinkingParts = append(thinkingParts, part.Text)
				continue
			}

			// Handle regular text parts
			if part.Text != "" {
				genResult.Text += part.Text
			}

			// Handle image parts
			if part.InlineData != nil && part.InlineData.Data != nil {
				genResult.Images = append(genResult.Images, designgen.GeneratedImage{
					Data:     part.InlineData.Data,
					MIMEType: part.InlineData.MIMEType,
					Index:    imageIndex,
				})
				imageIndex++
			}
		}
	}

	// Combine thinking parts
	if len(thinkingParts) > 0 {
		genResult.ThinkingContent = strings.Join(thinkingParts, "\n")
	}

	// Parse usage metadata if available
	if result.UsageMetadata != nil {
		genResult.UsageMetadata = &designgen.UsageMetadata{
			PromptTokens:     int(result.UsageMetadata.PromptTokenCount),
			CandidatesTokens: int(result.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(result.UsageMetadata.TotalTokenCount),
			ImageCount:       len(genResult.Images),
		}
	}

	return genResult, nil
}

// GeminiConversation implements multi-turn image generation.
type GeminiConversation struct {
	generator *GeminiGenerator
	history   []designgen.ConversationTurn
	contents  []*genai.Content

	mu sync.Mutex
}

// Send sends a message and receives a response.
func (c *GeminiConversation) Send(ctx context.Context, prompt string, images []designgen.InputImage, config *designgen.GenerateConfig) (*designgen.GenerateResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if config == nil {
		config = designgen.DefaultConfig()
	}

	modelName := c.generator.resolveModel(config)

	// Build the user's message parts
	parts := make([]*genai.Part, 0, len(images)+1)
	for _, img := range images {
		parts = append(parts, &genai.Part{
			InlineData: &genai.Blob{
				Data:     img.Data,
				MIMEType: img.MIMEType,
			},
		})
	}
	if prompt != "" {
		parts = append(parts, &genai.Part{Text: prompt})
	}

	// Add user message to history
	userContent := &genai.Content{
		Role:  "user",
		Parts: parts,
	}
	c.contents = append(c.contents, userContent)

	// Record in our history format
	userTurn := designgen.ConversationTurn{
		Role: "user",
		Text: prompt,
	}
	for _, img := range images {
		userTurn.Images = append(userTurn.Images, designgen.GeneratedImage{
			Data:     img.Data,
			MIMEType: img.MIMEType,
		})
	}
	c.history = append(c.history, userTurn)

	// Generate response
	genConfig := c.generator.buildGenerateContentConfig(config, nil)
	result, err := c.generator.client.Models.GenerateContent(
		ctx,
		modelName,
		c.contents,
		genConfig,
	)
	if err != nil {
		if rlErr := checkRateLimitError(err, modelName); rlErr != nil {
			return nil, rlErr
		}
		return nil, fmt.Errorf("conversation send failed: %w", err)
	}

	genResult, err := c.generator.parseResult(result)
	if err != nil {
		return nil, err
	}

	// Add model response to history
	if len(result.Candidates) > 0 && result.Candidates[0].Content != nil {
		c.contents = append(c.contents, result.Candidates[0].Content)
	}

	modelTurn := designgen.ConversationTurn{
		Role:   "model",
		Text:   genResult.Text,
		Images: genResult.Images,
	}
	c.history = append(c.history, modelTurn)

	return genResult, nil
}

// History returns the conversation history.
func (c *GeminiConversation) History() []designgen.ConversationTurn {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Return a copy to prevent external modification
	historyCopy := make([]designgen.ConversationTurn, len(c.history))
	copy(historyCopy, c.history)
	return historyCopy
}

// Clear resets the conversation history.
func (c *GeminiConversation) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.history = make([]designgen.ConversationTurn, 0)
	c.contents = make([]*genai.Content, 0)
}

// Helper function to load an image from bytes.
func ImageFromBytes(data []byte, mimeType string) designgen.InputImage {
	return designgen.InputImage{
		Data:     data,
		MIMEType: mimeType,
	}
}

// Helper function to create an image from base64.
func ImageFromBase64(b64 string, mimeType string) (designgen.InputImage, error) {
	data, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return designgen.InputImage{}, fmt.Errorf("invalid base64: %w", err)
	}
	return designgen.InputImage{
		Data:     data,
		MIMEType: mimeType,
	}, nil
}

// checkRateLimitError checks if an error from the Gemini API is a rate limit error.
// If so, it wraps it in a RateLimitError for standardized handling; otherwise returns the original error.
func checkRateLimitError(err error, model string) error {
	if err == nil {
		return nil
	}

	var apiErr genai.APIError
	if !errors.As(err, &apiErr) {
		return err
	}

	if apiErr.Code != 429 && apiErr.Status != "RESOURCE_EXHAUSTED" {
		return err
	}

	return &designgen.RateLimitError{
		RetryAfter: 60 * time.Second, // Default; API doesn't reliably provide Retry-After
		LimitType:  "requests",
		Model:      model,
		Err:        err,
	}
}
