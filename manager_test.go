package designgen

import (
	"context"
	"testing"

	"github.com/avieira/designgen/ratelimiter"
)

func TestManager_Generate_RateLimit(t *testing.T) {
	mockGen := &MockImageGenerator{
		ModelsFunc: func() []ModelInfo {
			return []ModelInfo{
				{
					Name:         "test-model",
					Provider:     "test-provider",
					APIModelName: "test-model-api",
					RateLimits: RateLimits{
						TokensPerMinute:   100, // Small limit for testing
						RequestsPerMinute: 10,
					},
				},
			}
		},
		GenerateFunc: func(ctx context.Context, prompt string, config *GenerateConfig) (*GenerateResult, error) {
			return &GenerateResult{
				Images: []GeneratedImage{{Data: []byte("fake-image")}},
			}, nil
		},
	}

	manager := NewManager(mockGen)
	defer manager.Close()

	ctx := context.Background()
	prompt := "test prompt" // ~3 tokens + 100 overhead = 103 tokens, over the 100 limit

	_, err := manager.Generate(ctx, prompt, &GenerateConfig{
		Model: "test-model",
	})

	if err == nil {
		t.Error("expected rate limit error, got nil")
	} else if !IsRateLimitError(err) {
		t.Errorf("expected RateLimitError, got %T: %v", err, err)
	}

	// Now increase limit to allow it
	manager.SetRateLimiter("test-model", ratelimiter.New(200, 10))

	result, err := manager.Generate(ctx, prompt, &GenerateConfig{
		Model: "test-model",
	})
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if len(result.Images) == 0 {
		t.Error("expected images, got none")
	}
}

func TestManager_Generate_TokenEstimation(t *testing.T) {
	// Verifies the token estimator is actually consulted: a limit that passes
	// with a small prompt must fail with a large one.

	mockGen := &MockImageGenerator{
		ModelsFunc: func() []ModelInfo {
			return []ModelInfo{
				{
					Name:     "test-model",
					Provider: "test-provider",
				},
			}
		},
		GenerateFunc: func(ctx context.Context, prompt string, config *GenerateConfig) (*GenerateResult, error) {
			return &GenerateResult{}, nil
		},
	}

	manager := NewManager(mockGen)

	// Capacity 200, overhead 100: roughly 100 tokens (~400 chars) left for text.
	limiter := ratelimiter.New(200, 100)
	manager.SetRateLimiter("test-model", limiter)

	ctx := context.Background()

	// Small prompt: "hello" -> ~2 tokens + 100 = 102. Should pass (102 <= 200).
	_, err := manager.Generate(ctx, "hello", &GenerateConfig{Model: "test-model"})
	if err != nil {
		t.Errorf("small prompt failed: %v", err)
	}

	// Fresh limiter so the previous consumption doesn't skew the check.
	limiter = ratelimiter.New(200, 100)
	manager.SetRateLimiter("test-model", limiter)

	// Large prompt: 500 chars -> ~125 tokens + 100 = 225. Should fail (225 > 200).
	largePrompt := makeString(500)
	_, err = manager.Generate(ctx, largePrompt, &GenerateConfig{Model: "test-model"})
	if err == nil {
		t.Error("large prompt should have failed rate limit")
	} else if !IsRateLimitError(err) {
		t.Errorf("expected RateLimitError, got %v", err)
	}
}

func TestManager_ModelRouting(t *testing.T) {
	var generatedBy string

	fluxLike := &MockImageGenerator{
		ModelsFunc: func() []ModelInfo {
			return []ModelInfo{{Name: string(ModelFluxKontextPro), Provider: ProviderFlux, APIModelName: "flux-kontext-pro"}}
		},
		GenerateFunc: func(ctx context.Context, prompt string, config *GenerateConfig) (*GenerateResult, error) {
			generatedBy = "flux"
			return &GenerateResult{}, nil
		},
	}
	geminiLike := &MockImageGenerator{
		ModelsFunc: func() []ModelInfo {
			return []ModelInfo{{Name: string(ModelNanoBanana), Provider: ProviderGeminiAPI, APIModelName: "gemini-2.5-flash-image"}}
		},
		GenerateFunc: func(ctx context.Context, prompt string, config *GenerateConfig) (*GenerateResult, error) {
			generatedBy = "gemini"
			if config.Model != "gemini-2.5-flash-image" {
				t.Errorf("expected API model name in provider config, got %q", config.Model)
			}
			return &GenerateResult{}, nil
		},
	}

	manager := NewManager(fluxLike)
	manager.RegisterProvider(geminiLike)
	defer manager.Close()

	ctx := context.Background()

	if _, err := manager.Generate(ctx, "prompt", &GenerateConfig{Model: ModelNanoBanana}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if generatedBy != "gemini" {
		t.Errorf("nano-banana routed to %q, want gemini", generatedBy)
	}

	// Empty model falls back to the default (flux).
	if _, err := manager.Generate(ctx, "prompt", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if generatedBy != "flux" {
		t.Errorf("default model routed to %q, want flux", generatedBy)
	}
}

func TestManager_UnknownModel(t *testing.T) {
	manager := NewManager(&MockImageGenerator{
		ModelsFunc: func() []ModelInfo {
			return []ModelInfo{{Name: "test-model", Provider: "test-provider"}}
		},
	})
	defer manager.Close()

	_, err := manager.Generate(context.Background(), "prompt", &GenerateConfig{Model: "no-such-model"})
	if err == nil {
		t.Fatal("expected error for unregistered model")
	}
}

func makeString(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = 'a'
	}
	return string(b)
}
