package gemini

import "github.com/avieira/designgen"

// NanoBananaInfo is the model info for Gemini 2.5 Flash Image (nano-banana).
//
// Nano Banana is Google DeepMind's conversational image generation and
// editing model. Responses are synchronous; there is no deferred job flow.
var NanoBananaInfo = designgen.ModelInfo{
	Name:         "nano-banana",
	Provider:     designgen.ProviderGeminiAPI,
	APIModelName: APIModelNanoBanana,

	Capabilities: designgen.ModelCapabilities{
		SupportsTextToImage:  true,
		SupportsImageEditing: true,
		SupportsMultiImage:   true,
		SupportsConversation: true,
		SupportsGrounding:    true,
		SupportsThinking:     true,
		SupportsDeferred:     false,
		MaxInputImages:       14, // Practical limit
		MaxOutputImages:      4,
	},

	ContextLength: 1048576, // 1M tokens

	ImageConstraints: designgen.ImageConstraints{
		SupportedAspectRatios: []designgen.AspectRatio{
			designgen.AspectRatio1x1,
			designgen.AspectRatio16x9,
			designgen.AspectRatio9x16,
			designgen.AspectRatio4x3,
			designgen.AspectRatio3x4,
			designgen.AspectRatio2x3,
			designgen.AspectRatio3x2,
		},

		// Flash Image only supports ~1024px output (1K)
		SupportedSizes: []designgen.ImageSize{
			designgen.ImageSize1K,
		},
	},

	RateLimits: designgen.RateLimits{
		TokensPerMinute:   4000000,
		RequestsPerMinute: 500, // ~500 RPM for Tier 1
		TokensPerDay:      1000000000,
	},

	Pricing: designgen.Pricing{
		InputTokensPerMillion:  0.15,
		OutputTokensPerMillion: 0.60,
	},
}
