package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/avieira/designgen"
	"github.com/avieira/designgen/provider/flux"
	"github.com/avieira/designgen/proxy"
)

var serveConfigPath string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the generation proxy server",
	Long: `Run the HTTP proxy that forwards generation requests to the Flux API.
The provider key stays server-side; browser clients POST to /api/flux-proxy
and receive the finished image as base64 JSON.

Examples:
  designgen serve
  designgen serve --config server.yaml`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveConfigPath, "config", "", "Path to yaml config file")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadServerConfig(serveConfigPath)
	if err != nil {
		return err
	}

	logger := slog.Default()

	proxy.InitMetrics()
	handler := proxy.NewHandler(
		proxy.WithLogger(logger),
		proxy.WithKeyEnvVar(cfg.Flux.KeyEnvVar),
		proxy.WithSubmitterFactory(func(apiKey string) proxy.Submitter {
			return flux.New(
				&designgen.ProviderConfig{APIKey: apiKey, BaseURL: cfg.Flux.BaseURL},
				flux.WithLogger(logger),
				flux.WithPollPolicy(cfg.Flux.PollInterval, cfg.Flux.MaxPollAttempts),
			)
		}),
	)

	mux := http.NewServeMux()
	mux.Handle("/api/flux-proxy", handler)
	mux.Handle("/metrics", proxy.MetricsHandler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening",
			"addr", cfg.Listen,
			"poll_interval", cfg.Flux.PollInterval,
			"max_poll_attempts", cfg.Flux.MaxPollAttempts,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		logger.Info("shutting down", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
