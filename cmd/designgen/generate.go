package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/avieira/designgen"
	"github.com/avieira/designgen/provider/flux"
	"github.com/avieira/designgen/provider/gemini"
	s3storage "github.com/avieira/designgen/storage/s3"
)

var (
	genModel       string
	genOutput      string
	genAspectRatio string
	genFormat      string
	genUpsample    bool
	genBucket      string
	genTimeout     time.Duration
)

var generateCmd = &cobra.Command{
	Use:   "generate <prompt>",
	Short: "Generate an image from a text prompt",
	Long: `Generate an image from a text prompt and write it to disk, optionally
uploading it to S3.

Examples:
  designgen generate "a calm reading nook with rattan furniture"
  designgen generate "scandinavian living room" --model nano-banana
  designgen generate "loft kitchen" --aspect-ratio 16:9 --format jpeg -o kitchen.jpeg
  designgen generate "studio apartment" --s3-bucket my-designs`,
	Args: cobra.ExactArgs(1),
	RunE: runGenerate,
}

func init() {
	rootCmd.AddCommand(generateCmd)
	generateCmd.Flags().StringVar(&genModel, "model", string(designgen.ModelDefault), "Model to use (flux-kontext-pro, nano-banana)")
	generateCmd.Flags().StringVarP(&genOutput, "output", "o", "", "Output file (default: generated.<format>)")
	generateCmd.Flags().StringVar(&genAspectRatio, "aspect-ratio", "", "Aspect ratio, e.g. 16:9")
	generateCmd.Flags().StringVar(&genFormat, "format", "png", "Output format: png, jpeg")
	generateCmd.Flags().BoolVar(&genUpsample, "upsample-prompt", false, "Let the provider rewrite the prompt (Flux only)")
	generateCmd.Flags().StringVar(&genBucket, "s3-bucket", "", "Upload the result to this S3 bucket")
	generateCmd.Flags().DurationVar(&genTimeout, "timeout", 2*time.Minute, "Overall generation timeout")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), genTimeout)
	defer cancel()

	manager, err := buildManager(ctx)
	if err != nil {
		return err
	}
	defer manager.Close()

	if genBucket != "" {
		storage, err := s3storage.New(ctx, genBucket)
		if err != nil {
			return fmt.Errorf("configuring S3 storage: %w", err)
		}
		manager.SetStorage(storage)
	}

	config := &designgen.GenerateConfig{
		Model:            designgen.Model(genModel),
		AspectRatio:      designgen.AspectRatio(genAspectRatio),
		OutputFormat:     designgen.OutputFormat(genFormat),
		PromptUpsampling: genUpsample,
	}

	result, err := manager.Generate(ctx, args[0], config)
	if err != nil {
		return err
	}
	if len(result.Images) == 0 {
		return fmt.Errorf("model returned no images")
	}

	output := genOutput
	if output == "" {
		output = "generated." + genFormat
	}

	for i, img := range result.Images {
		path := output
		if len(result.Images) > 1 {
			ext := filepath.Ext(output)
			path = fmt.Sprintf("%s_%d%s", strings.TrimSuffix(output, ext), i, ext)
		}
		if err := os.WriteFile(path, img.Data, 0644); err != nil {
			return fmt.Errorf("writing %s: %w", path, err)
		}
		fmt.Printf("Wrote %s (%d bytes, %s)\n", path, len(img.Data), img.MIMEType)
	}

	if genBucket != "" {
		basePath := strings.TrimSuffix(filepath.Base(output), filepath.Ext(output))
		saved, err := manager.SaveResult(ctx, result, "renders/"+basePath)
		if err != nil {
			return fmt.Errorf("uploading to S3: %w", err)
		}
		for _, sr := range saved {
			fmt.Printf("Uploaded %s\n", sr.URL)
		}
	}

	return nil
}

// buildManager wires every provider that has a key available. Flux is the
// default; Gemini joins when its key is present.
func buildManager(ctx context.Context) (*designgen.Manager, error) {
	fluxKey := os.Getenv("FLUX_API_KEY")
	if fluxKey == "" {
		return nil, fmt.Errorf("%w: FLUX_API_KEY is not set", designgen.ErrMissingAPIKey)
	}

	manager := designgen.NewManager(flux.NewWithAPIKey(fluxKey))

	if geminiKey := os.Getenv("GEMINI_API_KEY"); geminiKey != "" {
		gg, err := gemini.NewWithAPIKey(ctx, geminiKey)
		if err != nil {
			return nil, fmt.Errorf("configuring gemini provider: %w", err)
		}
		manager.RegisterProvider(gg)
	}

	return manager, nil
}
