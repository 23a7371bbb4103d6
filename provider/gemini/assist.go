package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/avieira/designgen"
	"google.golang.org/genai"
)

// assistModel is the text model used for prompt engineering and tagging.
// These calls never produce images, so the cheaper text-only model is enough.
const assistModel = "gemini-2.5-flash"

// maxSuggestedTags caps the tag list returned by SuggestTags.
const maxSuggestedTags = 15

const structuralPromptInstruction = `You are a world-class AI visual prompt engineer, specializing in crafting high-fidelity architectural and interior design prompts for advanced text-to-image platforms. Your communication style is professional, precise, and confident. You deeply understand designer intent and translate it into perfect visual language.

The Prime Directive: Principle of Structural Fidelity.
Any prompt you produce MUST instruct the image generation model to preserve the exact wall placements, window and door openings, ceiling design, structural columns, and fixed furnishings as depicted in the provided source image. Style changes only overlay new materials, lighting, and atmosphere onto the existing structure. No distortion, addition, deletion, replacement, or movement of the original physical structure or core objects is allowed.

Given the source image and the user's style description, respond with a single ENGLISH text-to-image prompt and nothing else. Do not include commentary, markdown, or explanations.`

const modificationPromptInstruction = `You are a world-class AI visual prompt engineer, specializing in crafting high-fidelity architectural and interior design prompts for advanced text-to-image platforms. Your communication style is professional, precise, and confident.

Your goal is to generate an ENGLISH text prompt that instructs an image generation model to seamlessly integrate or replace objects within a 'Source Image' based on 'Reference Image(s)' and a 'User Objective'. The prompt must ensure the structural integrity, perspective, scale, and lighting of the Source Image are meticulously maintained for all unchanged elements.

When reference images carry tags, those tags are CRITICAL: the description of the object to be added or replaced MUST strongly align with them, refined by the User Objective.

Respond with the engineered prompt only. Do not include commentary, markdown, or explanations.`

const tagSuggestionInstruction = `You are a professional interior design assistant. Analyze the provided image and list the detailed visual elements as tags, grouped into categories such as room type, style, primary objects, secondary objects, mood, color palette, materials, lighting, furniture types, decor, plants, views, and layout techniques. If the image is unrelated to interior design, provide generic descriptive tags. Output a JSON object where keys are category names and values are arrays of string tags. If a category has no relevant tags, omit it. Focus on the most prominent features.`

// EngineerStructuralPrompt produces an English generation prompt that
// restyles the source scene per styleDescription while preserving its
// structure, layout, and perspective.
func (g *GeminiGenerator) EngineerStructuralPrompt(ctx context.Context, source designgen.InputImage, styleDescription string) (string, error) {
	if err := designgen.ValidatePrompt(styleDescription); err != nil {
		return "", err
	}
	if err := designgen.ValidateInputImage(source); err != nil {
		return "", err
	}

	parts := []*genai.Part{
		{Text: "Source Image:"},
		{
			InlineData: &genai.Blob{
				Data:     source.Data,
				MIMEType: source.MIMEType,
			},
		},
		{Text: "User Style Description: " + styleDescription},
	}

	return g.assistText(ctx, structuralPromptInstruction, parts)
}

// EngineerModificationPrompt produces an English prompt that integrates or
// replaces objects in the source image, guided by the objective and any
// tagged reference images.
func (g *GeminiGenerator) EngineerModificationPrompt(ctx context.Context, source designgen.InputImage, objective string, refs []designgen.TaggedImage) (string, error) {
	if err := designgen.ValidatePrompt(objective); err != nil {
		return "", err
	}
	if err := designgen.ValidateInputImage(source); err != nil {
		return "", err
	}

	parts := []*genai.Part{
		{Text: "Image for Modification (Source Image):"},
		{
			InlineData: &genai.Blob{
				Data:     source.Data,
				MIMEType: source.MIMEType,
			},
		},
	}

	for i, ref := range refs {
		if err := designgen.ValidateInputImage(ref.Image); err != nil {
			return "", fmt.Errorf("reference image %d: %w", i+1, err)
		}
		parts = append(parts, &genai.Part{
			Text: referenceLabel(i+1, ref),
		})
		parts = append(parts, &genai.Part{
			InlineData: &genai.Blob{
				Data:     ref.Image.Data,
				MIMEType: ref.Image.MIMEType,
			},
		})
	}

	parts = append(parts, &genai.Part{Text: "User Objective: " + objective})

	return g.assistText(ctx, modificationPromptInstruction, parts)
}

// SuggestTags extracts descriptive tags for an uploaded image. The model
// returns semi-structured JSON, either a category map or a flat array; both
// shapes are accepted, optionally wrapped in a markdown code fence.
func (g *GeminiGenerator) SuggestTags(ctx context.Context, image designgen.InputImage) ([]string, error) {
	if err := designgen.ValidateInputImage(image); err != nil {
		return nil, err
	}

	parts := []*genai.Part{
		{
			InlineData: &genai.Blob{
				Data:     image.Data,
				MIMEType: image.MIMEType,
			},
		},
	}

	contents := []*genai.Content{{Parts: parts}}
	genConfig := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: tagSuggestionInstruction}},
		},
		ResponseMIMEType: "application/json",
	}

	result, err := g.client.Models.GenerateContent(ctx, assistModel, contents, genConfig)
	if err != nil {
		if rlErr := checkRateLimitError(err, assistModel); rlErr != nil {
			return nil, rlErr
		}
		return nil, fmt.Errorf("tag suggestion failed: %w", err)
	}

	text, err := responseText(result)
	if err != nil {
		return nil, err
	}

	tags, err := parseTagPayload(text)
	if err != nil {
		return nil, err
	}
	return tags, nil
}

// assistText runs a text-producing request and returns the concatenated
// response text, trimmed.
func (g *GeminiGenerator) assistText(ctx context.Context, instruction string, parts []*genai.Part) (string, error) {
	contents := []*genai.Content{{Parts: parts}}
	genConfig := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: instruction}},
		},
	}

	result, err := g.client.Models.GenerateContent(ctx, assistModel, contents, genConfig)
	if err != nil {
		if rlErr := checkRateLimitError(err, assistModel); rlErr != nil {
			return "", rlErr
		}
		return "", fmt.Errorf("prompt engineering failed: %w", err)
	}

	return responseText(result)
}

// referenceLabel formats the text label that precedes a reference image,
// carrying its display name and combined tag list.
func referenceLabel(n int, ref designgen.TaggedImage) string {
	name := ref.DisplayName
	if name == "" {
		name = fmt.Sprintf("Image %d", n)
	}
	return fmt.Sprintf("Reference Image %d (Display Name: %s): Tags: [%s]",
		n, name, strings.Join(dedupe(ref.Tags), ", "))
}

func responseText(result *genai.GenerateContentResponse) (string, error) {
	if result == nil || len(result.Candidates) == 0 {
		return "", errors.New("empty response from model")
	}

	var sb strings.Builder
	for _, candidate := range result.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part.Thought {
				continue
			}
			sb.WriteString(part.Text)
		}
	}

	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", errors.New("model returned no text")
	}
	return text, nil
}

// fenceRE matches a full-body markdown code fence with an optional language
// label.
var fenceRE = regexp.MustCompile("(?s)^```(?:\\w+)?\\s*\\n?(.*?)\\n?\\s*```$")

// stripCodeFence removes a wrapping markdown code fence, if present.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if m := fenceRE.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	return s
}

// parseTagPayload accepts either a category map ({"style": ["modern"]}) or a
// flat array (["modern"]) and flattens it to a deduplicated tag list.
func parseTagPayload(text string) ([]string, error) {
	payload := stripCodeFence(text)

	var categories map[string][]string
	if err := json.Unmarshal([]byte(payload), &categories); err == nil {
		var all []string
		for _, tags := range categories {
			all = append(all, tags...)
		}
		return capTags(dedupe(all)), nil
	}

	var flat []string
	if err := json.Unmarshal([]byte(payload), &flat); err == nil {
		return capTags(dedupe(flat)), nil
	}

	return nil, fmt.Errorf("unparseable tag payload: %q", payload)
}

func dedupe(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}

func capTags(tags []string) []string {
	if len(tags) > maxSuggestedTags {
		return tags[:maxSuggestedTags]
	}
	return tags
}
