// Copyright (C) 2026 ArkForge AI (dev@arkforge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package review

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Language identifies a detected source language.
type Language string

const (
	LangArkTS      Language = "arkts"
	LangTypeScript Language = "typescript"
	LangJavaScript Language = "javascript"
	LangJava       Language = "java"
	LangPython     Language = "python"
	LangC          Language = "c"
	LangCPP        Language = "cpp"
	LangVue        Language = "vue"
	LangHTML       Language = "html"
	LangCSS        Language = "css"
	LangJSON       Language = "json"
	LangUnknown    Language = "unknown"
)

// Detection patterns, ordered by cascade priority. Matching is on
// code text only, never on file names, so generated snippets without
// a path still dispatch correctly.
var (
	arktsDecoratorRe = regexp.MustCompile(`@(Entry|Component|State|Prop|Link|Provide|Consume|Watch|Builder|BuilderParam|Styles|Extend|Observed|ObjectLink|Preview)\b`)
	arktsStructRe    = regexp.MustCompile(`\bstruct\s+\w+\s*\{`)
	arktsBuildRe     = regexp.MustCompile(`\bbuild\s*\(\s*\)\s*\{`)
	arktsComponentRe = regexp.MustCompile(`\b(Column|Row|Stack|Flex|List|ListItem|Grid|GridItem|Scroll|Swiper|Tabs|TabContent|Navigator)\s*\(`)

	tsRe = regexp.MustCompile(`\binterface\s+\w+\s*\{|\btype\s+\w+\s*=|\benum\s+\w+\s*\{|:\s*(string|number|boolean|void|any|unknown|never)\b|\bimplements\s+\w+|<\w+(,\s*\w+)*>\s*\(`)

	jsRe = regexp.MustCompile(`\bfunction\s*\w*\s*\(|\b(const|let|var)\s+\w+\s*=|=>\s*[{(]|\bconsole\.(log|error|warn)\b|\brequire\s*\(|\bexport\s+(default|const|function)\b|\bimport\s+.+\s+from\s+['"]`)

	javaRe = regexp.MustCompile(`\bpublic\s+(class|interface|static|final)\b|\bSystem\.out\.print|\bpackage\s+[\w.]+\s*;|\bprivate\s+\w+\s+\w+\s*;|@Override\b`)

	pythonRe = regexp.MustCompile(`\bdef\s+\w+\s*\(.*\)\s*:|\belif\b|\bfrom\s+[\w.]+\s+import\b|\bself\.\w+|"""|\bprint\s*\(`)

	cppRe = regexp.MustCompile(`#include\s*<(iostream|vector|string|map|memory)>|\bstd::|\bcout\b|\bnamespace\s+\w+|\btemplate\s*<|\bclass\s+\w+\s*[:{]`)
	cRe   = regexp.MustCompile(`#include\s*[<"][\w./]+\.h[>"]|#include\s*<(stdio|stdlib|string|math)\.h>|\bprintf\s*\(|\bmalloc\s*\(|\bint\s+main\s*\(`)

	vueRe  = regexp.MustCompile(`<template>|<script(\s+setup)?>|\bv-(if|for|model|bind|on)\b`)
	htmlRe = regexp.MustCompile(`(?i)<!DOCTYPE\s+html>|<html[\s>]|<head[\s>]|<body[\s>]|<div[\s>]`)
	cssRe  = regexp.MustCompile(`[.#]?[\w-]+\s*\{[^{}]*[\w-]+\s*:\s*[^{}]+;[^{}]*\}`)
)

// DetectLanguage classifies a code blob by a prioritized pattern
// cascade. ArkTS wins over TypeScript, TypeScript over JavaScript, and
// so on down to a JSON parse attempt; anything left is unknown.
//
// Detection is stable under whitespace-only perturbation: every
// pattern matches token shapes, not indentation.
func DetectLanguage(code string) Language {
	text := strings.TrimSpace(code)
	if text == "" {
		return LangUnknown
	}

	switch {
	case arktsDecoratorRe.MatchString(text),
		arktsStructRe.MatchString(text) && arktsBuildRe.MatchString(text),
		arktsComponentRe.MatchString(text) && arktsBuildRe.MatchString(text):
		return LangArkTS
	case tsRe.MatchString(text):
		return LangTypeScript
	case jsRe.MatchString(text):
		return LangJavaScript
	case javaRe.MatchString(text):
		return LangJava
	case pythonRe.MatchString(text):
		return LangPython
	case cppRe.MatchString(text):
		return LangCPP
	case cRe.MatchString(text):
		return LangC
	case vueRe.MatchString(text):
		return LangVue
	case htmlRe.MatchString(text):
		return LangHTML
	case cssRe.MatchString(text):
		return LangCSS
	}

	// JSON last: a full parse attempt, restricted to object/array roots
	// so bare scalars stay unknown.
	if strings.HasPrefix(text, "{") || strings.HasPrefix(text, "[") {
		if json.Valid([]byte(text)) {
			return LangJSON
		}
	}

	return LangUnknown
}

// extensionTable maps languages onto file extensions for analyzers
// that require an on-disk file.
var extensionTable = map[Language]string{
	LangArkTS:      ".ets",
	LangTypeScript: ".ts",
	LangJavaScript: ".js",
	LangJava:       ".java",
	LangPython:     ".py",
	LangC:          ".c",
	LangCPP:        ".cpp",
	LangVue:        ".vue",
	LangHTML:       ".html",
	LangCSS:        ".css",
	LangJSON:       ".json",
}

// ExtensionForLanguage returns the file extension for a language, or
// empty when none is known.
func ExtensionForLanguage(lang Language) string {
	return extensionTable[lang]
}
