// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var validate = validator.New()

// ErrConfigExists is returned by WriteDefault when the file is present.
var ErrConfigExists = errors.New("config file already exists")

// Load reads the lab config at path.
//
// # Description
//
// A missing file yields DefaultConfig. Keys present in the file override
// the defaults; absent keys keep them. Relative paths (matrix, paths.*,
// logging.dir) are resolved against the directory holding the config file,
// so commands behave the same from any working directory. The result is
// validated before it is returned.
//
// # Outputs
//
//   - LabConfig: The resolved config.
//   - error: Read, parse or validation failure.
func Load(path string) (LabConfig, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return LabConfig{}, fmt.Errorf("failed to read the config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return LabConfig{}, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	}

	base, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return LabConfig{}, fmt.Errorf("resolve config directory: %w", err)
	}
	cfg.resolve(base)

	if err := validate.Struct(cfg); err != nil {
		return LabConfig{}, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *LabConfig) resolve(base string) {
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(base, p)
	}
	c.Matrix = abs(c.Matrix)
	c.Paths.Sources = abs(c.Paths.Sources)
	c.Paths.Out = abs(c.Paths.Out)
	c.Paths.Logs = abs(c.Paths.Logs)
	c.Paths.ShellPage = abs(c.Paths.ShellPage)
	c.Logging.Dir = abs(c.Logging.Dir)
}

// WriteDefault writes DefaultConfig to path, refusing to overwrite.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%w: %s", ErrConfigExists, path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create the config directory: %w", err)
	}
	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
