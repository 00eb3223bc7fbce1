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
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ArkForgeAI/ArkForge/services/review"
)

var generateSession string

var generateCmd = &cobra.Command{
	Use:   "generate [requirement]",
	Short: "Generate an ArkTS project from a requirement",
	Long: `Generate plans a HarmonyOS project for the requirement, writes its
files, analyzes them, and iterates on the errors until the project is
clean or the attempt budget runs out.`,
	Args: cobra.MinimumNArgs(1),
	Run:  runGenerateCommand,
}

func init() {
	generateCmd.Flags().StringVarP(&generateSession, "session", "s", "",
		"session key for follow-up context")
	rootCmd.AddCommand(generateCmd)
}

// generateResponse mirrors the gateway's run result body.
type generateResponse struct {
	Success     bool              `json:"success"`
	FinalPhase  string            `json:"final_phase"`
	Attempts    int               `json:"attempts"`
	Files       map[string]string `json:"files"`
	Issues      []review.Issue    `json:"issues,omitempty"`
	Diagnostics []string          `json:"diagnostics,omitempty"`
	TokenUsage  int               `json:"token_usage"`
}

func runGenerateCommand(cmd *cobra.Command, args []string) {
	requirement := strings.Join(args, " ")
	fmt.Printf("Generating project for: %s\n---\n", requirement)

	payload := map[string]string{
		"requirement": requirement,
		"session_id":  generateSession,
	}
	var response generateResponse
	if err := postGateway("/api/v1/generate", payload, &response); err != nil {
		log.Fatalf("Error: %v", err)
	}

	if response.Success {
		fmt.Printf("\nDone in %d fix attempt(s).\n", response.Attempts)
	} else {
		fmt.Printf("\nUnresolved after %d attempt(s) (%s).\n",
			response.Attempts, response.FinalPhase)
	}

	paths := make([]string, 0, len(response.Files))
	for path := range response.Files {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	fmt.Println("\nFiles:")
	for _, path := range paths {
		fmt.Printf("  %s (%d bytes)\n", path, len(response.Files[path]))
	}

	if len(response.Issues) > 0 {
		fmt.Println("\nRemaining issues:")
		for i, iss := range response.Issues {
			fmt.Printf("%d. [%s] %s\n", i+1, iss.Severity, iss.Message)
		}
	}
	for _, diag := range response.Diagnostics {
		fmt.Printf("note: %s\n", diag)
	}
}
