// Copyright (C) 2026 ArkForge AI (dev@arkforge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/ArkForgeAI/ArkForge/cmd/arkforge/config"
)

var rootCmd = &cobra.Command{
	Use:   "arkforge",
	Short: "ArkForge: retrieval-augmented ArkTS code generation",
	Long: `ArkForge searches HarmonyOS reference material, generates ArkTS
projects, and iterates on analyzer findings until the code is clean.`,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error executing command: %v", err)
	}
}

func init() {
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if err := config.Load(); err != nil {
			log.Fatalf("Error loading configuration: %v", err)
		}
	}
}

// getGatewayBaseURL resolves the arkforged endpoint: env override
// first, then the configured port on localhost.
func getGatewayBaseURL() string {
	if url := os.Getenv("ARKFORGE_GATEWAY_URL"); url != "" {
		return url
	}
	port := config.Global.Server.Port
	if port == 0 {
		port = 12310
	}
	return fmt.Sprintf("http://localhost:%d", port)
}
