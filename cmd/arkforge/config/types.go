// Copyright (C) 2026 ArkForge AI (dev@arkforge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package config holds the user-level ArkForge configuration, loaded
// once from ~/.arkforge/arkforge.yaml.
package config

// CurrentConfigVersion tags freshly written config files.
const CurrentConfigVersion = "1"

type ArkForgeConfig struct {
	// Meta tracks the config file format.
	Meta MetaConfig `yaml:"meta"`

	// Server configures the HTTP gateway.
	Server ServerConfig `yaml:"server"`

	// LLM selects the chat and embedding backend.
	LLM LLMConfig `yaml:"llm"`

	// Weaviate points at the vector index.
	Weaviate WeaviateConfig `yaml:"weaviate"`

	// Search tunes the orchestrator.
	Search SearchConfig `yaml:"search"`

	// Retrieval tunes the chain-of-retrieval engine.
	Retrieval RetrievalConfig `yaml:"retrieval"`

	// Generation tunes the control loop.
	Generation GenerationConfig `yaml:"generation"`

	// Analyzers configures the review back-ends.
	Analyzers AnalyzersConfig `yaml:"analyzers"`
}

type MetaConfig struct {
	Version string `yaml:"version"`
}

type ServerConfig struct {
	Port int `yaml:"port"` // e.g. 12310
}

type LLMConfig struct {
	// BaseURL of an OpenAI-compatible endpoint.
	BaseURL string `yaml:"base_url"`

	// APIKeyEnv names the environment variable holding the key.
	APIKeyEnv string `yaml:"api_key_env"`

	ChatModel  string `yaml:"chat_model"`
	EmbedModel string `yaml:"embed_model"`
}

type WeaviateConfig struct {
	URL string `yaml:"url"` // e.g. http://localhost:8080
}

type SearchConfig struct {
	// CollectionName is the default evidence collection.
	CollectionName string `yaml:"collection_name"`

	// DefaultMode is used when a query carries none.
	DefaultMode string `yaml:"default_search_mode"`

	// MaxContextLength bounds per-session history.
	MaxContextLength int `yaml:"max_context_length"`

	// RouteCollection enables LLM collection routing.
	RouteCollection bool `yaml:"route_collection"`

	// OnlineLimit caps web results per search.
	OnlineLimit int `yaml:"online_limit"`
}

type RetrievalConfig struct {
	// MaxIter bounds chain-of-retrieval steps.
	MaxIter int `yaml:"max_iter"`

	// EarlyStopping lets the chain stop when it judges the context
	// sufficient.
	EarlyStopping bool `yaml:"early_stopping"`

	// TextWindowSplitter renders wider snippet windows into prompts.
	TextWindowSplitter bool `yaml:"text_window_splitter"`
}

type GenerationConfig struct {
	// MaxAttempts bounds the fix cycle.
	MaxAttempts int `yaml:"max_attempts"`

	// OutputDir is where generated projects are written.
	OutputDir string `yaml:"output_dir"`
}

type AnalyzersConfig struct {
	ESLint   ToolConfig  `yaml:"eslint"`
	Cppcheck ToolConfig  `yaml:"cppcheck"`
	Sonar    SonarConfig `yaml:"sonarqube"`
}

type ToolConfig struct {
	Enabled        bool `yaml:"enabled"`
	TimeoutSeconds int  `yaml:"timeout_seconds"`
}

type SonarConfig struct {
	Enabled bool `yaml:"enabled"`

	// HostURL and TokenEnv override SONAR_HOST_URL / SONAR_TOKEN.
	HostURL  string `yaml:"host_url"`
	TokenEnv string `yaml:"token_env"`
}

// DefaultConfig returns the configuration written on first run.
func DefaultConfig() ArkForgeConfig {
	return ArkForgeConfig{
		Meta:   MetaConfig{Version: CurrentConfigVersion},
		Server: ServerConfig{Port: 12310},
		LLM: LLMConfig{
			BaseURL:    "http://localhost:11434/v1",
			APIKeyEnv:  "ARKFORGE_LLM_API_KEY",
			ChatModel:  "qwen2.5-coder:14b",
			EmbedModel: "nomic-embed-text",
		},
		Weaviate: WeaviateConfig{URL: "http://localhost:8080"},
		Search: SearchConfig{
			CollectionName:   "HarmonyDocs",
			DefaultMode:      "adaptive",
			MaxContextLength: 10,
			RouteCollection:  false,
			OnlineLimit:      5,
		},
		Retrieval: RetrievalConfig{
			MaxIter:            4,
			EarlyStopping:      true,
			TextWindowSplitter: false,
		},
		Generation: GenerationConfig{
			MaxAttempts: 4,
			OutputDir:   "arkforge-out",
		},
		Analyzers: AnalyzersConfig{
			ESLint:   ToolConfig{Enabled: true, TimeoutSeconds: 30},
			Cppcheck: ToolConfig{Enabled: true, TimeoutSeconds: 60},
			Sonar: SonarConfig{
				Enabled:  false,
				TokenEnv: "SONAR_TOKEN",
			},
		},
	}
}
