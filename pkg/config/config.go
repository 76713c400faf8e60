// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads and watches the server's YAML configuration.
//
// Editor clients push most settings over the protocol
// (workspace/didChangeConfiguration), so the file here covers what
// the protocol cannot: where the tool installs, how long invocations
// may run, and how the process logs. A missing file is not an error;
// defaults apply.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/masmgr/tsqllint-vscode-extension/pkg/telemetry"
)

var validate = validator.New()

// Config is the full server configuration.
type Config struct {
	// Log configures process logging.
	Log LogConfig `yaml:"log"`

	// Lint configures the validation pipeline.
	Lint LintConfig `yaml:"lint"`

	// Telemetry configures tracing and metrics.
	Telemetry telemetry.Config `yaml:"telemetry"`
}

// LogConfig configures process logging.
type LogConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`

	// Dir enables file logging to this directory when set.
	Dir string `yaml:"dir"`

	// JSON switches stderr output to JSON format.
	JSON bool `yaml:"json"`
}

// LintConfig configures the validation pipeline.
type LintConfig struct {
	// ToolVersion is the tsqllint release to install.
	ToolVersion string `yaml:"tool_version" validate:"required"`

	// InstallDir holds downloaded tool installations. Supports ~
	// expansion.
	InstallDir string `yaml:"install_dir" validate:"required"`

	// TimeoutSeconds bounds one tool invocation.
	TimeoutSeconds int `yaml:"timeout_seconds" validate:"gt=0,lte=600"`

	// AutoFixOnSave applies the tool's fixes before every save. The
	// client's didChangeConfiguration overrides this at runtime.
	AutoFixOnSave bool `yaml:"auto_fix_on_save"`
}

// Default returns the configuration used when no file exists.
func Default() Config {
	return Config{
		Log: LogConfig{
			Level: "info",
		},
		Lint: LintConfig{
			ToolVersion:    "1.15.0",
			InstallDir:     "~/.tsqllint/runtime",
			TimeoutSeconds: 30,
		},
		Telemetry: telemetry.DefaultConfig(),
	}
}

// DefaultPath returns the conventional config file location,
// ~/.tsqllint/server.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".tsqllint", "server.yaml"), nil
}

// Load reads, merges, and validates the configuration at path.
//
// Description:
//
//	Starts from Default() and overlays the file's values, so a
//	partial file only overrides what it names. A missing file yields
//	the defaults without error; a malformed or invalid file is an
//	error, never a silent fallback.
//
// Inputs:
//
//	path - Config file location; empty means DefaultPath()
//
// Outputs:
//
//	Config - The effective configuration
//	error - Non-nil on read, parse, or validation failure
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		var err error
		path, err = DefaultPath()
		if err != nil {
			return cfg, err
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config file %s: %w", path, err)
	}

	if err := validate.Struct(cfg); err != nil {
		return cfg, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// ExpandInstallDir resolves the configured install directory,
// expanding a leading ~.
func (c Config) ExpandInstallDir() string {
	dir := c.Lint.InstallDir
	if len(dir) > 0 && dir[0] == '~' {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, dir[1:])
		}
	}
	return dir
}
