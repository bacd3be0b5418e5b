// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// app.go - Wiring shared by the commands that talk to the backend.

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/jeranaias/focusai/internal/chat"
	"github.com/jeranaias/focusai/internal/config"
	"github.com/jeranaias/focusai/internal/detect"
	"github.com/jeranaias/focusai/internal/engine"
	"github.com/jeranaias/focusai/internal/logging"
	"github.com/jeranaias/focusai/internal/model"
	"github.com/jeranaias/focusai/internal/ollama"
	"github.com/jeranaias/focusai/internal/openaicompat"
	"github.com/jeranaias/focusai/internal/storage"
)

// app holds the collaborators built from configuration.
type app struct {
	cfg      *config.Config
	cfgPath  string
	logger   *slog.Logger
	closeLog func() error

	// client is nil for the OpenAI-compatible backend.
	client  *ollama.Client
	probe   *detect.SystemProbe
	catalog *model.Catalog

	// engine and memory back new sessions. They are the client and the
	// probe except in tests.
	engine engine.Engine
	memory detect.MemoryProbe

	// store is nil when storage is disabled or failed to open.
	store *storage.Store
}

func newApp(ctx context.Context, args Args, stderr io.Writer) (*app, error) {
	cfgPath := args.ConfigPath
	if cfgPath == "" {
		p, err := config.Path()
		if err != nil {
			return nil, err
		}
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}

	logCfg := cfg.Logging
	switch {
	case args.Verbose:
		logCfg.Level = "debug"
	case args.Quiet:
		logCfg.Level = "error"
	case logCfg.File == "" && (logCfg.Level == "" || strings.EqualFold(logCfg.Level, "info")):
		// Info records would interleave with the chat on the console.
		logCfg.Level = "warn"
	}
	logger, closeLog, err := logging.New(logCfg, stderr)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:      cfg,
		cfgPath:  cfgPath,
		logger:   logger,
		closeLog: closeLog,
		probe:    detect.NewSystemProbe(),
		catalog:  cfg.Catalog(),
	}
	a.probe.UseGPU = cfg.Engine.GPUProbe
	a.memory = a.probe

	switch cfg.Engine.Backend {
	case config.BackendOpenAI:
		a.engine = openaicompat.New(openaicompat.Config{
			BaseURL:    cfg.Engine.URL,
			APIKey:     cfg.Engine.APIKey,
			MaxRetries: cfg.Engine.MaxRetries,
			Logger:     logger,
		})
	default:
		a.client = ollama.NewClientWithConfig(&ollama.ClientConfig{
			BaseURL:     cfg.Engine.URL,
			Timeout:     cfg.Engine.Timeout(),
			LoadTimeout: cfg.Engine.LoadTimeout(),
			KeepAlive:   cfg.Engine.KeepAlive,
			MaxRetries:  cfg.Engine.MaxRetries,
			Logger:      logger,
		})
		a.engine = a.client
	}

	if cfg.Storage.Enabled && cfg.Storage.Path != "" {
		store, err := storage.Open(ctx, cfg.Storage.Path)
		if err != nil {
			// Chat still works without transcripts.
			logger.Warn("transcript store unavailable", "path", cfg.Storage.Path, "error", err)
		} else {
			a.store = store
		}
	}
	return a, nil
}

// Close releases the store and the log file.
func (a *app) Close() error {
	var errs []error
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if a.closeLog != nil {
		errs = append(errs, a.closeLog())
	}
	return errors.Join(errs...)
}

// ensureBackend checks the server is up, starting it when configured to.
func (a *app) ensureBackend(ctx context.Context) error {
	if a.client == nil {
		return nil
	}
	if a.cfg.Engine.AutoStart {
		return a.client.EnsureRunning(ctx)
	}
	if err := a.client.CheckRunning(ctx); err != nil {
		return fmt.Errorf("ollama is not running at %s (start it with: ollama serve): %w", a.cfg.Engine.URL, err)
	}
	return nil
}

// resolveModel maps a catalog ID or a raw Ollama tag to an identity.
// Unknown names are treated as tags. A missing estimate is derived from
// the parameter count in the name.
func (a *app) resolveModel(name string) (model.Identity, error) {
	if name == "" {
		name = a.cfg.Session.DefaultModel
	}
	if name == "" {
		return model.Identity{}, fmt.Errorf("%w: no model given and session.default_model is empty", ErrUsage)
	}

	id, ok := a.catalog.Lookup(name)
	if !ok {
		id = model.Identity{ID: name, Lib: name}
	}
	if id.EstimatedVRAM == 0 {
		id.EstimatedVRAM = detect.EstimateVRAM(id.BackendRef())
	}
	return id, id.Validate()
}

// newSession builds a session with logging and transcript observers.
func (a *app) newSession(extra ...chat.Observer) *chat.Session {
	observers := logging.NewMultiObserver(logging.NewSessionObserver(a.logger))
	if a.store != nil {
		observers = append(observers, storage.NewRecorder(a.store, a.logger))
	}
	observers = append(observers, extra...)

	return chat.New(a.engine,
		chat.WithLogger(a.logger),
		chat.WithObserver(observers),
		chat.WithMemoryProbe(a.memory),
		chat.WithGeneration(generationFrom(a.cfg.Generation)),
		chat.WithTruncationNotice(a.cfg.Session.TruncationNotice),
		chat.WithWarmupTokens(a.cfg.Session.WarmupTokens),
		chat.WithStrictPreconditions(a.cfg.Session.StrictPreconditions),
	)
}

func generationFrom(g config.GenerationConfig) chat.Generation {
	return chat.Generation{
		MaxTokens:   g.MaxTokens,
		Temperature: g.Temperature,
		TopP:        g.TopP,
		ContextSize: g.ContextSize,
	}
}
