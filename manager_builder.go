package designgen

import (
	"log/slog"
)

// ManagerOption configures the Manager.
type ManagerOption func(*Manager)

// WithLogger sets a structured logger for the manager.
func WithLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithStorage sets a storage backend for persisting generated images.
func WithStorage(storage Storage) ManagerOption {
	return func(m *Manager) {
		m.storage = storage
	}
}

// WithDefaultModel sets the default model used when config.Model is empty.
func WithDefaultModel(model Model) ManagerOption {
	return func(m *Manager) {
		m.defaultModel = model
	}
}

// NewManager creates a Manager with the given provider and options. Use
// RegisterProvider to add further backends.
//
// Example:
//
//	fluxGen := flux.New(&designgen.ProviderConfig{APIKey: fluxKey})
//	geminiGen, err := gemini.NewWithAPIKey(ctx, geminiKey)
//	if err != nil {
//	    return err
//	}
//	manager := designgen.NewManager(fluxGen).RegisterProvider(geminiGen)
//
// With options:
//
//	manager := designgen.NewManager(fluxGen,
//	    designgen.WithLogger(slog.Default()),
//	    designgen.WithDefaultModel(designgen.ModelNanoBanana),
//	)
func NewManager(defaultProvider ImageGenerator, opts ...ManagerOption) *Manager {
	m := New()

	m.RegisterProvider(defaultProvider)

	for _, opt := range opts {
		opt(m)
	}

	return m
}
