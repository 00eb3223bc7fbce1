// Copyright (C) 2026 ArkForge AI (dev@arkforge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package datatypes defines the gateway's request and response bodies.
package datatypes

import (
	"github.com/go-playground/validator/v10"

	"github.com/ArkForgeAI/ArkForge/services/search"
)

// MaxQueryBytes bounds inbound query text.
const MaxQueryBytes = 8 * 1024

// MaxCodeBytes bounds inbound code for review.
const MaxCodeBytes = 256 * 1024

// =============================================================================
// Shared Validator Instance
// =============================================================================

// gatewayValidate is the validator instance for gateway datatypes.
var gatewayValidate *validator.Validate

func init() {
	gatewayValidate = validator.New()

	_ = gatewayValidate.RegisterValidation("searchmode", validateSearchMode)
	_ = gatewayValidate.RegisterValidation("querybytes", validateQueryBytes)
	_ = gatewayValidate.RegisterValidation("codebytes", validateCodeBytes)
}

// validateQueryBytes enforces MaxQueryBytes on free-text fields.
// Checks byte length, not rune count, so oversized multi-byte
// payloads are rejected too.
func validateQueryBytes(fl validator.FieldLevel) bool {
	return len(fl.Field().String()) <= MaxQueryBytes
}

// validateCodeBytes enforces MaxCodeBytes on code payloads.
func validateCodeBytes(fl validator.FieldLevel) bool {
	return len(fl.Field().String()) <= MaxCodeBytes
}

// validateSearchMode accepts an empty mode (server default applies) or
// any mode the orchestrator understands. ParseMode folds unknown input
// into adaptive, so membership is checked explicitly here.
func validateSearchMode(fl validator.FieldLevel) bool {
	switch search.Mode(fl.Field().String()) {
	case "", search.ModeLocal, search.ModeOnline, search.ModeHybrid, search.ModeChain, search.ModeAdaptive:
		return true
	default:
		return false
	}
}

// =============================================================================
// Search
// =============================================================================

// SearchRequest is the body of POST /api/v1/search.
//
// # Validation
//
//   - Query: required, at most MaxQueryBytes
//   - Mode: empty or a known search mode
type SearchRequest struct {
	Query     string `json:"query" validate:"required,querybytes"`
	Mode      string `json:"mode" validate:"searchmode"`
	SessionID string `json:"session_id,omitempty" validate:"omitempty,max=128"`
}

// Validate checks the request after JSON binding.
func (r *SearchRequest) Validate() error {
	return gatewayValidate.Struct(r)
}

// =============================================================================
// Review
// =============================================================================

// ReviewRequest is the body of POST /api/v1/review.
//
// Language is optional; the checker detects it from the code when
// omitted.
type ReviewRequest struct {
	Code     string `json:"code" validate:"required,codebytes"`
	Language string `json:"language,omitempty" validate:"omitempty,max=32"`
	Query    string `json:"query,omitempty" validate:"omitempty,querybytes"`
}

// Validate checks the request after JSON binding.
func (r *ReviewRequest) Validate() error {
	return gatewayValidate.Struct(r)
}

// =============================================================================
// Generate
// =============================================================================

// GenerateRequest is the body of POST /api/v1/generate. The attempt
// budget is server configuration, not a client knob.
type GenerateRequest struct {
	Requirement string `json:"requirement" validate:"required,querybytes"`
	SessionID   string `json:"session_id,omitempty" validate:"omitempty,max=128"`
}

// Validate checks the request after JSON binding.
func (r *GenerateRequest) Validate() error {
	return gatewayValidate.Struct(r)
}
