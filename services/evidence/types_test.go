// Copyright (C) 2026 ArkForge AI (dev@arkforge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package evidence

import (
	"reflect"
	"strings"
	"testing"
)

func item(text string) RetrievedItem {
	return RetrievedItem{SourceID: text, Text: text, Provenance: ProvenanceLocal}
}

func TestDedup_PreservesFirstSeenOrder(t *testing.T) {
	items := []RetrievedItem{item("a"), item("b"), item("a"), item("c"), item("b")}

	got := Dedup(items)

	var texts []string
	for _, it := range got {
		texts = append(texts, it.Text)
	}
	want := []string{"a", "b", "c"}
	if !reflect.DeepEqual(texts, want) {
		t.Errorf("Dedup order = %v, want %v", texts, want)
	}
}

func TestDedup_Idempotent(t *testing.T) {
	items := []RetrievedItem{item("x"), item("y"), item("x")}

	once := Dedup(items)
	twice := Dedup(once)

	if !reflect.DeepEqual(once, twice) {
		t.Errorf("Dedup not idempotent: %v vs %v", once, twice)
	}
}

func TestDeduper_AddAcrossBatches(t *testing.T) {
	d := NewDeduper()

	first := d.Add([]RetrievedItem{item("d1"), item("d2")})
	if len(first) != 2 {
		t.Fatalf("first batch = %d items, want 2", len(first))
	}

	second := d.Add([]RetrievedItem{item("d2"), item("d3")})
	if len(second) != 1 || second[0].Text != "d3" {
		t.Errorf("second batch = %v, want only d3", second)
	}
}

func TestDeduper_SameTextDifferentSource(t *testing.T) {
	a := RetrievedItem{SourceID: "local-1", Text: "shared", Provenance: ProvenanceLocal}
	b := RetrievedItem{SourceID: "web-1", Text: "shared", Provenance: ProvenanceOnline}

	got := Dedup([]RetrievedItem{a, b})
	if len(got) != 1 {
		t.Fatalf("Dedup kept %d items, want 1", len(got))
	}
	if got[0].SourceID != "local-1" {
		t.Errorf("Dedup kept %q, want first-seen local-1", got[0].SourceID)
	}
}

func TestContentHash_Stable(t *testing.T) {
	a := item("same text")
	b := item("same text")
	if a.ContentHash() != b.ContentHash() {
		t.Error("identical text produced different hashes")
	}
	other := item("other")
	if a.ContentHash() == other.ContentHash() {
		t.Error("different text produced identical hashes")
	}
}

func TestPlaceholderItem(t *testing.T) {
	it := PlaceholderItem(ProvenanceLocal, ErrRetriever)
	if it.Score != 0 {
		t.Errorf("placeholder score = %f, want 0", it.Score)
	}
	if it.Provenance != ProvenanceLocal {
		t.Errorf("placeholder provenance = %s", it.Provenance)
	}
	if !strings.Contains(it.Text, "vector index unavailable") {
		t.Errorf("placeholder text missing cause: %q", it.Text)
	}
}

func TestFormatDocuments(t *testing.T) {
	items := []RetrievedItem{
		{Title: "Window events", URL: "docs/window.md", Text: "Use onAreaChange."},
		{Text: "Second snippet", WiderText: "Second snippet with window context"},
	}

	t.Run("plain", func(t *testing.T) {
		out := FormatDocuments(items, FormatOptions{})
		if !strings.Contains(out, "[Document 0: Window events (docs/window.md)]") {
			t.Errorf("missing first header:\n%s", out)
		}
		if !strings.Contains(out, "Use onAreaChange.") {
			t.Errorf("missing first body:\n%s", out)
		}
		if !strings.Contains(out, "Second snippet") {
			t.Errorf("missing second body:\n%s", out)
		}
	})

	t.Run("wider text", func(t *testing.T) {
		out := FormatDocuments(items, FormatOptions{UseWiderText: true})
		if !strings.Contains(out, "Second snippet with window context") {
			t.Errorf("wider text not used:\n%s", out)
		}
	})

	t.Run("max items", func(t *testing.T) {
		out := FormatDocuments(items, FormatOptions{MaxItems: 1})
		if strings.Contains(out, "Second snippet") {
			t.Errorf("MaxItems not applied:\n%s", out)
		}
	})

	t.Run("truncation", func(t *testing.T) {
		out := FormatDocuments(items, FormatOptions{MaxItemChars: 5})
		if !strings.Contains(out, "Use o...") {
			t.Errorf("truncation not applied:\n%s", out)
		}
	})
}
