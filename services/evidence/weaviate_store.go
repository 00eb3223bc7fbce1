// Copyright (C) 2026 ArkForge AI (dev@arkforge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package evidence

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// weaviateTracer is the OpenTelemetry tracer for vector store operations.
var weaviateTracer = otel.Tracer("arkforge.evidence.weaviate")

// Compile-time interface implementation check.
var _ Store = (*WeaviateStore)(nil)

// WeaviateStore implements Store against a Weaviate instance.
//
// Each configured collection maps to a Weaviate class holding document
// chunks with `text`, `title`, `url`, `filePath`, and optional
// `widerText` properties.
//
// # Thread Safety
//
// Safe for concurrent use; the underlying client is stateless per call.
type WeaviateStore struct {
	client      *weaviate.Client
	collections []string
	topK        int
}

// WeaviateOption configures the WeaviateStore.
type WeaviateOption func(*WeaviateStore)

// WithTopK sets how many results each Search returns (default 5).
func WithTopK(k int) WeaviateOption {
	return func(s *WeaviateStore) {
		if k > 0 {
			s.topK = k
		}
	}
}

// NewWeaviateStore creates a store over the given client and collections.
//
// Inputs:
//
//	client - Connected Weaviate client. Must not be nil.
//	collections - Class names available for routing. Must be non-empty.
//
// Outputs:
//
//	*WeaviateStore - The configured store
func NewWeaviateStore(client *weaviate.Client, collections []string, opts ...WeaviateOption) *WeaviateStore {
	s := &WeaviateStore{
		client:      client,
		collections: collections,
		topK:        5,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Collections lists the configured class names.
func (s *WeaviateStore) Collections() []string {
	out := make([]string, len(s.collections))
	copy(out, s.collections)
	return out
}

// Search implements the Store interface with a nearVector query.
//
// Failures are wrapped with ErrRetriever so callers can degrade to a
// placeholder source instead of aborting the run.
func (s *WeaviateStore) Search(ctx context.Context, collection string, vector []float32, query string) ([]RetrievedItem, error) {
	ctx, span := weaviateTracer.Start(ctx, "WeaviateStore.Search")
	defer span.End()
	span.SetAttributes(
		attribute.String("collection", collection),
		attribute.Int("vector_dim", len(vector)),
	)

	nearVector := s.client.GraphQL().NearVectorArgBuilder().
		WithVector(vector)

	fields := []graphql.Field{
		{Name: "text"},
		{Name: "title"},
		{Name: "url"},
		{Name: "filePath"},
		{Name: "widerText"},
		{Name: "_additional { id certainty distance }"},
	}

	result, err := s.client.GraphQL().Get().
		WithClassName(collection).
		WithFields(fields...).
		WithNearVector(nearVector).
		WithLimit(s.topK).
		Do(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "weaviate query failed")
		return nil, fmt.Errorf("%w: %v", ErrRetriever, err)
	}
	if len(result.Errors) > 0 {
		err := fmt.Errorf("%w: %s", ErrRetriever, result.Errors[0].Message)
		span.RecordError(err)
		span.SetStatus(codes.Error, "weaviate query returned errors")
		return nil, err
	}

	items := s.parseResults(result, collection)
	span.SetAttributes(attribute.Int("items", len(items)))

	slog.Debug("Vector search completed",
		"collection", collection,
		"query", query,
		"items", len(items),
	)
	return items, nil
}

// parseResults converts a GraphQL response into RetrievedItems.
func (s *WeaviateStore) parseResults(result *models.GraphQLResponse, collection string) []RetrievedItem {
	data, ok := result.Data["Get"].(map[string]interface{})
	if !ok {
		return []RetrievedItem{}
	}
	objects, ok := data[collection].([]interface{})
	if !ok {
		return []RetrievedItem{}
	}

	items := make([]RetrievedItem, 0, len(objects))
	for _, obj := range objects {
		m, ok := obj.(map[string]interface{})
		if !ok {
			continue // skip malformed objects
		}

		item := RetrievedItem{
			Title:      getString(m, "title"),
			URL:        getString(m, "url"),
			Text:       getString(m, "text"),
			WiderText:  getString(m, "widerText"),
			Provenance: ProvenanceLocal,
			Extra:      map[string]string{"collection": collection},
		}
		if fp := getString(m, "filePath"); fp != "" {
			item.Extra["file_path"] = fp
			if item.URL == "" {
				item.URL = fp
			}
		}

		if add, ok := m["_additional"].(map[string]interface{}); ok {
			item.SourceID = getString(add, "id")
			if c := getFloat64(add, "certainty"); c > 0 {
				item.Score = c
			} else if d, ok := add["distance"].(float64); ok {
				item.Score = 1 - d
			}
		}
		if item.SourceID == "" {
			item.SourceID = item.ContentHash()[:16]
		}

		if item.Text != "" {
			items = append(items, item)
		}
	}
	return items
}

// getString extracts a string field from a decoded GraphQL object.
func getString(m map[string]interface{}, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

// getFloat64 extracts a numeric field from a decoded GraphQL object.
func getFloat64(m map[string]interface{}, key string) float64 {
	if v, ok := m[key].(float64); ok {
		return v
	}
	return 0
}
