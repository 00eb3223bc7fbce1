// Copyright (C) 2026 ArkForge AI (dev@arkforge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package review

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectLanguage(t *testing.T) {
	tests := []struct {
		name string
		code string
		want Language
	}{
		{
			"arkts decorators",
			"@Entry @Component struct Hello { build() { Text('hi') } }",
			LangArkTS,
		},
		{
			"arkts state decorator only",
			"@State message: string = 'Hello'",
			LangArkTS,
		},
		{
			"arkts ui components with build",
			"struct Page { build() { Column() { Row() {} } } }",
			LangArkTS,
		},
		{
			"typescript interface",
			"interface User { name: string; age: number }",
			LangTypeScript,
		},
		{
			"typescript enum",
			"enum Color { Red, Green }\nconst c = Color.Red",
			LangTypeScript,
		},
		{
			"javascript",
			"function greet(name) { console.log('hi ' + name) }",
			LangJavaScript,
		},
		{
			"java",
			"public class Main { public static void main(String[] args) { System.out.println(\"hi\"); } }",
			LangJava,
		},
		{
			"python",
			"def greet(name):\n    print(name)",
			LangPython,
		},
		{
			"cpp",
			"#include <iostream>\nint main() { std::cout << \"hi\"; }",
			LangCPP,
		},
		{
			"c",
			"#include <stdio.h>\nint main() { printf(\"hi\"); return 0; }",
			LangC,
		},
		{
			"vue",
			"<template><p>{{ msg }}</p></template>",
			LangVue,
		},
		{
			"html",
			"<!DOCTYPE html><html><body></body></html>",
			LangHTML,
		},
		{
			"css",
			".title { color: red; font-size: 14px; }",
			LangCSS,
		},
		{
			"json object",
			`{"module": {"name": "entry"}}`,
			LangJSON,
		},
		{
			"invalid json stays unknown",
			`{"module": }`,
			LangUnknown,
		},
		{
			"empty",
			"   ",
			LangUnknown,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectLanguage(tt.code))
		})
	}
}

// Detection must not change when only whitespace changes.
func TestDetectLanguage_WhitespaceStable(t *testing.T) {
	fixtures := []string{
		"@Entry @Component struct Hello { build() { Text('hi') } }",
		"interface User { name: string }",
		"function f() { console.log(1) }",
		`{"a": 1}`,
	}
	for _, code := range fixtures {
		base := DetectLanguage(code)
		padded := "\n\t  " + code + "  \n\n"
		assert.Equal(t, base, DetectLanguage(padded), "fixture: %s", code)

		spaced := strings.ReplaceAll(code, " ", "  ")
		assert.Equal(t, base, DetectLanguage(spaced), "fixture: %s", code)
	}
}

func TestExtensionForLanguage(t *testing.T) {
	assert.Equal(t, ".ets", ExtensionForLanguage(LangArkTS))
	assert.Equal(t, ".py", ExtensionForLanguage(LangPython))
	assert.Equal(t, "", ExtensionForLanguage(LangUnknown))
}
