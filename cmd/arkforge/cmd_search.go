// Copyright (C) 2026 ArkForge AI (dev@arkforge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ArkForgeAI/ArkForge/services/evidence"
)

var searchMode string
var searchSession string

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search the knowledge base and the web",
	Args:  cobra.MinimumNArgs(1),
	Run:   runSearchCommand,
}

func init() {
	searchCmd.Flags().StringVarP(&searchMode, "mode", "m", "",
		"search mode: local_only, online_only, hybrid, chain_of_search, adaptive")
	searchCmd.Flags().StringVarP(&searchSession, "session", "s", "",
		"session key for follow-up context")
	rootCmd.AddCommand(searchCmd)
}

// searchResponse mirrors the gateway's search result body.
type searchResponse struct {
	FinalAnswer string                   `json:"final_answer"`
	Items       []evidence.RetrievedItem `json:"items"`
	ModeUsed    string                   `json:"mode_used"`
	Confidence  float64                  `json:"confidence"`
	TokenUsage  int                      `json:"token_usage"`
}

var cliHTTPClient = &http.Client{Timeout: 4 * time.Minute}

func runSearchCommand(cmd *cobra.Command, args []string) {
	query := strings.Join(args, " ")
	fmt.Printf("Searching: %s\n---\n", query)

	payload := map[string]string{
		"query":      query,
		"mode":       searchMode,
		"session_id": searchSession,
	}
	var response searchResponse
	if err := postGateway("/api/v1/search", payload, &response); err != nil {
		log.Fatalf("Error: %v", err)
	}

	fmt.Printf("\nAnswer (%s, confidence %.2f):\n%s\n",
		response.ModeUsed, response.Confidence, response.FinalAnswer)
	if len(response.Items) > 0 {
		fmt.Println("\nSources:")
		for i, item := range response.Items {
			label := item.Title
			if label == "" {
				label = item.URL
			}
			fmt.Printf("%d. %s (score %.4f)\n", i+1, label, item.Score)
		}
	} else {
		fmt.Println("\n(no sources identified)")
	}
}

// postGateway sends one JSON request to arkforged and decodes the
// reply into out.
func postGateway(path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	url := getGatewayBaseURL() + path
	resp, err := cliHTTPClient.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("calling %s (is arkforged running?): %w", url, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("gateway returned %s: %s", resp.Status, strings.TrimSpace(string(data)))
	}
	return json.Unmarshal(data, out)
}
