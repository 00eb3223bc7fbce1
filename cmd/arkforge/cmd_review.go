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

	"github.com/ArkForgeAI/ArkForge/services/review"
)

var reviewLanguage string

var reviewCmd = &cobra.Command{
	Use:   "review [file]",
	Short: "Analyze a source file with the unified checker",
	Args:  cobra.ExactArgs(1),
	Run:   runReviewCommand,
}

func init() {
	reviewCmd.Flags().StringVarP(&reviewLanguage, "language", "l", "",
		"language override (detected from the code when omitted)")
	rootCmd.AddCommand(reviewCmd)
}

// reviewResponse mirrors the gateway's review result body.
type reviewResponse struct {
	ReportText  string         `json:"report_text"`
	Issues      []review.Issue `json:"issues"`
	Suggestions []string       `json:"suggestions,omitempty"`
	Score       int            `json:"score"`
}

func runReviewCommand(cmd *cobra.Command, args []string) {
	code, err := os.ReadFile(args[0])
	if err != nil {
		log.Fatalf("Error reading %s: %v", args[0], err)
	}

	payload := map[string]string{
		"code":     string(code),
		"language": reviewLanguage,
	}
	var response reviewResponse
	if err := postGateway("/api/v1/review", payload, &response); err != nil {
		log.Fatalf("Error: %v", err)
	}

	fmt.Printf("Score: %d/100\n", response.Score)
	if response.ReportText != "" {
		fmt.Println(response.ReportText)
	}
	for i, iss := range response.Issues {
		location := ""
		if iss.Line > 0 {
			location = fmt.Sprintf(" (line %d)", iss.Line)
		}
		fmt.Printf("%d. [%s] %s%s\n", i+1, iss.Severity, iss.Message, location)
	}
	for _, s := range response.Suggestions {
		fmt.Printf("suggestion: %s\n", s)
	}
}
