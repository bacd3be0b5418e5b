// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
)

// ErrUnknownModel is returned when a model ID is not in the catalog.
var ErrUnknownModel = errors.New("unknown model")

// =============================================================================
// IDENTITY TYPE
// =============================================================================

// Identity describes the model a session is bound to. It is set once per
// reload and stays fixed until the next reload or terminate.
type Identity struct {
	// ID is the catalog key ("llama3.2-3b").
	ID string `json:"id" toml:"id"`

	// Lib is the backend's reference for the model (an Ollama tag such as
	// "llama3.2:3b"). When empty the base name of Path is used.
	Lib string `json:"lib" toml:"lib"`

	// Path is the on-disk location of the weights, if the backend needs it.
	Path string `json:"path,omitempty" toml:"path"`

	// EstimatedVRAM is the memory the model needs, in bytes. Zero skips
	// the headroom check.
	EstimatedVRAM uint64 `json:"estimated_vram_bytes,omitempty" toml:"estimated_vram_bytes"`

	// DisplayName is shown in the UI.
	DisplayName string `json:"display_name,omitempty" toml:"display_name"`

	// Vision marks models that accept image input.
	Vision bool `json:"vision,omitempty" toml:"vision"`
}

// IsZero reports whether no model is set.
func (id Identity) IsZero() bool {
	return id.ID == "" && id.Lib == "" && id.Path == ""
}

// Name returns the display name, falling back to the ID.
func (id Identity) Name() string {
	if id.DisplayName != "" {
		return id.DisplayName
	}
	return id.ID
}

// BackendRef returns the reference the backend loads the model by.
func (id Identity) BackendRef() string {
	if id.Lib != "" {
		return id.Lib
	}
	if id.Path != "" {
		return path.Base(strings.TrimRight(id.Path, "/"))
	}
	return id.ID
}

// EstimatedVRAMMB returns the resource estimate in megabytes.
func (id Identity) EstimatedVRAMMB() float64 {
	return float64(id.EstimatedVRAM) / (1 << 20)
}

// Validate checks that the identity can be loaded.
func (id Identity) Validate() error {
	if id.ID == "" {
		return errors.New("model id is required")
	}
	if id.BackendRef() == "" {
		return fmt.Errorf("model %q: lib or path is required", id.ID)
	}
	return nil
}

// =============================================================================
// CATALOG
// =============================================================================

// Catalog is the set of models the user has configured, keyed by ID.
type Catalog struct {
	models map[string]Identity
}

// NewCatalog builds a catalog. Later entries with a duplicate ID replace
// earlier ones.
func NewCatalog(models ...Identity) *Catalog {
	c := &Catalog{models: make(map[string]Identity, len(models))}
	for _, m := range models {
		c.models[m.ID] = m
	}
	return c
}

// Lookup returns the identity registered under id.
func (c *Catalog) Lookup(id string) (Identity, bool) {
	if c == nil {
		return Identity{}, false
	}
	m, ok := c.models[id]
	return m, ok
}

// Get is Lookup with an error for unknown IDs.
func (c *Catalog) Get(id string) (Identity, error) {
	m, ok := c.Lookup(id)
	if !ok {
		return Identity{}, fmt.Errorf("%w: %q", ErrUnknownModel, id)
	}
	return m, nil
}

// List returns all models sorted by ID.
func (c *Catalog) List() []Identity {
	if c == nil {
		return nil
	}
	out := make([]Identity, 0, len(c.models))
	for _, m := range c.models {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of configured models.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.models)
}
