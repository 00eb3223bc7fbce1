// Copyright (C) 2026 ArkForge AI (dev@arkforge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

var (
	// Global is a singleton instance
	Global ArkForgeConfig
	once   sync.Once
)

// Load reads the config into Global exactly once. A missing file is
// created with defaults on first run.
func Load() error {
	var err error
	once.Do(func() {
		err = loadInternal()
	})
	return err
}

// Path resolves the config file location. The ARKFORGE_CONFIG env var
// wins, for containers and tests where $HOME is not meaningful.
func Path() (string, error) {
	if override := os.Getenv("ARKFORGE_CONFIG"); override != "" {
		return override, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not find the user's home directory: %w", err)
	}
	return filepath.Join(home, ".arkforge", "arkforge.yaml"), nil
}

func loadInternal() error {
	configPath, err := Path()
	if err != nil {
		return err
	}
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		fmt.Printf("First run detected, creating the config at %s\n", configPath)
		if err := createDefault(configPath); err != nil {
			return err
		}
	}
	data, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read the config file: %w", err)
	}
	if err = yaml.Unmarshal(data, &Global); err != nil {
		return fmt.Errorf("failed to parse the config into the Global singleton: %w", err)
	}
	if Global.Meta.Version != CurrentConfigVersion {
		slog.Warn("Config file version differs from the current schema; defaults apply to any missing keys",
			"file_version", Global.Meta.Version,
			"current_version", CurrentConfigVersion,
			"path", configPath)
	}
	return nil
}

func createDefault(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create the config directory: %w", err)
	}
	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
