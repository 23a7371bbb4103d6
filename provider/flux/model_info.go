package flux

import "github.com/avieira/designgen"

// KontextProInfo is the model info for FLUX.1 Kontext [pro].
//
// Kontext is Black Forest Labs' in-context generation and editing model;
// jobs answer either inline or deferred behind a polling URL.
var KontextProInfo = designgen.ModelInfo{
	Name:         "flux-kontext-pro",
	Provider:     designgen.ProviderFlux,
	APIModelName: APIModelKontextPro,

	Capabilities: designgen.ModelCapabilities{
		SupportsTextToImage:  true,
		SupportsImageEditing: true,
		SupportsMultiImage:   false,
		SupportsConversation: false,
		SupportsGrounding:    false,
		SupportsThinking:     false,
		SupportsDeferred:     true,
		MaxInputImages:       1,
		MaxOutputImages:      1,
	},

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
		SupportedSizes: []designgen.ImageSize{
			designgen.ImageSize1K,
		},
	},

	RateLimits: designgen.RateLimits{
		RequestsPerMinute: 24, // 24 active tasks on the standard tier
	},

	Pricing: designgen.Pricing{
		ImageGenerationCost: 0.04,
	},
}
