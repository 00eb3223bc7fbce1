// Copyright (C) 2026 ArkForge AI (dev@arkforge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import (
	"os"
	"path/filepath"
	"testing"

	"gopkg.in/yaml.v3"
)

// TestCreateDefault verifies default config creation.
func TestCreateDefault(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, ".arkforge", "arkforge.yaml")

	if err := createDefault(configPath); err != nil {
		t.Fatalf("createDefault() failed: %v", err)
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		t.Fatal("config file was not created")
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("failed to read config file: %v", err)
	}

	var cfg ArkForgeConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		t.Fatalf("failed to parse config: %v", err)
	}

	if cfg.Meta.Version != CurrentConfigVersion {
		t.Errorf("Meta.Version = %q, want %q", cfg.Meta.Version, CurrentConfigVersion)
	}
	if cfg.Search.DefaultMode != "adaptive" {
		t.Errorf("Search.DefaultMode = %q, want %q", cfg.Search.DefaultMode, "adaptive")
	}
	if cfg.Retrieval.MaxIter != 4 {
		t.Errorf("Retrieval.MaxIter = %d, want 4", cfg.Retrieval.MaxIter)
	}
	if cfg.Generation.MaxAttempts != 4 {
		t.Errorf("Generation.MaxAttempts = %d, want 4", cfg.Generation.MaxAttempts)
	}
}

// TestPathEnvOverride verifies ARKFORGE_CONFIG wins over the home dir.
func TestPathEnvOverride(t *testing.T) {
	override := filepath.Join(t.TempDir(), "custom.yaml")
	t.Setenv("ARKFORGE_CONFIG", override)

	got, err := Path()
	if err != nil {
		t.Fatalf("Path() failed: %v", err)
	}
	if got != override {
		t.Errorf("Path() = %q, want %q", got, override)
	}
}

// TestDefaultConfigRoundTrip verifies the defaults survive YAML.
func TestDefaultConfigRoundTrip(t *testing.T) {
	original := DefaultConfig()

	data, err := yaml.Marshal(original)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded ArkForgeConfig
	if err := yaml.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	if decoded.Search.CollectionName != original.Search.CollectionName {
		t.Errorf("CollectionName = %q, want %q",
			decoded.Search.CollectionName, original.Search.CollectionName)
	}
	if decoded.Analyzers.ESLint.TimeoutSeconds != 30 {
		t.Errorf("ESLint.TimeoutSeconds = %d, want 30", decoded.Analyzers.ESLint.TimeoutSeconds)
	}
	if decoded.Analyzers.Sonar.Enabled {
		t.Error("Sonar.Enabled should default to false")
	}
}
