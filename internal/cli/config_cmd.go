// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// config_cmd.go - Configuration file commands.
//
// Command: config [subcommand]
//
// Subcommands:
//   show (default)    Print the effective configuration
//   path              Print the config file path
//   init [--force]    Write a default config file
//   validate          Load and validate the config file

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jeranaias/focusai/internal/config"
)

func runConfig(_ context.Context, args Args, out io.Writer) error {
	path := args.ConfigPath
	if path == "" {
		p, err := config.Path()
		if err != nil {
			return err
		}
		path = p
	}

	switch sub := strings.ToLower(args.Subcommand); sub {
	case "", "show":
		cfg, err := config.Load(path)
		if err != nil {
			return err
		}
		if args.JSON {
			return writeJSON(out, cfg)
		}
		fmt.Fprint(out, cfg.String())
		return nil

	case "path":
		fmt.Fprintln(out, path)
		return nil

	case "init":
		if _, err := os.Stat(path); err == nil && !args.Flags.BoolFlag("force") {
			return fmt.Errorf("%w: %s already exists; add --force to overwrite", ErrUsage, path)
		} else if err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		if err := config.Default().Save(path); err != nil {
			return err
		}
		fmt.Fprintf(out, "%s Wrote %s\n", RenderStatus("ok"), path)
		return nil

	case "validate", "check":
		if _, err := config.Load(path); err != nil {
			fmt.Fprintf(out, "%s %v\n", RenderStatus("fail"), err)
			return err
		}
		fmt.Fprintf(out, "%s %s is valid\n", RenderStatus("ok"), path)
		return nil

	default:
		return fmt.Errorf("%w: unknown config subcommand %q", ErrUsage, sub)
	}
}
