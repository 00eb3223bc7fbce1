// Copyright (C) 2026 ArkForge AI (dev@arkforge.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// arkforged is the ArkForge HTTP gateway: it wires the search
// orchestrator, the unified checker, and the generation control loop
// behind a gin API.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"

	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/ArkForgeAI/ArkForge/cmd/arkforge/config"
	"github.com/ArkForgeAI/ArkForge/pkg/logging"
	"github.com/ArkForgeAI/ArkForge/services/codegen"
	"github.com/ArkForgeAI/ArkForge/services/evidence"
	"github.com/ArkForgeAI/ArkForge/services/gateway/routes"
	"github.com/ArkForgeAI/ArkForge/services/llm"
	"github.com/ArkForgeAI/ArkForge/services/pipeline"
	"github.com/ArkForgeAI/ArkForge/services/retrieval"
	"github.com/ArkForgeAI/ArkForge/services/review"
	"github.com/ArkForgeAI/ArkForge/services/search"
)

// initTelemetry configures OTLP trace and metric export when a
// collector endpoint is set; without one, both stay on the no-op
// providers.
func initTelemetry() (func(context.Context), error) {
	ctx := context.Background()

	otelEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if otelEndpoint == "" {
		return func(context.Context) {}, nil
	}
	conn, err := grpc.NewClient(otelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("arkforged")))
	if err != nil {
		return nil, err
	}

	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, err
	}
	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))
	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	metricExporter, err := otlpmetricgrpc.New(ctx, otlpmetricgrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, err
	}
	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter)))
	otel.SetMeterProvider(meterProvider)

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown the OTLP trace exporter", "error", err)
		}
		if err := meterProvider.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown the OTLP meter provider", "error", err)
		}
	}, nil
}

// exportLLMEnv maps config onto the env vars the LLM packages read,
// without clobbering explicit overrides.
func exportLLMEnv(cfg config.LLMConfig) {
	setIfEmpty := func(key, value string) {
		if value != "" && os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
	setIfEmpty("OPENAI_BASE_URL", cfg.BaseURL)
	setIfEmpty("OPENAI_MODEL", cfg.ChatModel)
	setIfEmpty("EMBEDDING_MODEL", cfg.EmbedModel)
	if cfg.APIKeyEnv != "" && os.Getenv("OPENAI_API_KEY") == "" {
		if key := os.Getenv(cfg.APIKeyEnv); key != "" {
			os.Setenv("OPENAI_API_KEY", key)
		}
	}
}

// newWeaviateClient connects to the configured index, or returns nil
// so the server runs with local retrieval disabled.
func newWeaviateClient(rawURL string) *weaviate.Client {
	rawURL = strings.Trim(rawURL, "\"' ")
	if rawURL == "" || !strings.Contains(rawURL, "http") {
		slog.Info("Weaviate URL not set. Running without a local index.")
		return nil
	}

	parsedURL, err := url.Parse(rawURL)
	if err != nil || parsedURL.Scheme == "" || parsedURL.Host == "" {
		slog.Warn("Weaviate URL is invalid. Running without a local index.",
			"url", rawURL, "error", err)
		return nil
	}

	client, err := weaviate.NewClient(weaviate.Config{
		Host:   parsedURL.Host,
		Scheme: parsedURL.Scheme,
	})
	if err != nil {
		slog.Error("Failed to create Weaviate client", "error", err)
		return nil
	}
	return client
}

// newChecker assembles the unified checker from the configured
// analyzer back-ends.
func newChecker(cfg config.AnalyzersConfig) *review.UnifiedChecker {
	var analyzers []review.Analyzer

	if cfg.ESLint.Enabled {
		var opts []review.ESLintOption
		if cfg.ESLint.TimeoutSeconds > 0 {
			opts = append(opts, review.WithESLintTimeout(time.Duration(cfg.ESLint.TimeoutSeconds)*time.Second))
		}
		analyzers = append(analyzers, review.NewESLintAnalyzer(opts...))
	}
	if cfg.Cppcheck.Enabled {
		var opts []review.CppcheckOption
		if cfg.Cppcheck.TimeoutSeconds > 0 {
			opts = append(opts, review.WithCppcheckTimeout(time.Duration(cfg.Cppcheck.TimeoutSeconds)*time.Second))
		}
		analyzers = append(analyzers, review.NewCppcheckAnalyzer(opts...))
	}
	if cfg.Sonar.Enabled {
		var opts []review.SonarOption
		if cfg.Sonar.HostURL != "" {
			opts = append(opts, review.WithSonarHost(cfg.Sonar.HostURL))
		}
		if cfg.Sonar.TokenEnv != "" {
			if token := os.Getenv(cfg.Sonar.TokenEnv); token != "" {
				opts = append(opts, review.WithSonarToken(token))
			}
		}
		analyzers = append(analyzers, review.NewSonarAnalyzer(opts...))
	}

	return review.NewUnifiedChecker(review.CheckerConfig{}, analyzers...)
}

func main() {
	if err := config.Load(); err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	cfg := config.Global

	logger := logging.New(logging.Config{Service: "gateway", JSON: true})
	logger.SetAsDefault()
	defer logger.Close()

	cleanup, err := initTelemetry()
	if err != nil {
		log.Fatalf("failed to setup OTLP telemetry: %v", err)
	}
	defer cleanup(context.Background())

	exportLLMEnv(cfg.LLM)

	chatClient, err := llm.NewOpenAIClient()
	if err != nil {
		log.Fatalf("failed to create the LLM client: %v", err)
	}

	collections := []string{cfg.Search.CollectionName}

	// Local retrieval stack. A missing index degrades hybrid and chain
	// modes instead of failing startup.
	var store evidence.Store
	var embedder evidence.Embedder
	var chain search.ChainRunner
	if weaviateClient := newWeaviateClient(cfg.Weaviate.URL); weaviateClient != nil {
		store = evidence.NewWeaviateStore(weaviateClient, collections)
		embedder, err = evidence.NewOpenAIEmbedder()
		if err != nil {
			log.Fatalf("failed to create the embedder: %v", err)
		}
	}
	router := evidence.NewRouter(chatClient, collections, cfg.Search.RouteCollection)
	var fixChain search.ChainRunner
	if store != nil {
		chain = retrieval.NewEngine(chatClient, store, embedder, router, retrieval.Config{
			MaxIter:       cfg.Retrieval.MaxIter,
			EarlyStopping: cfg.Retrieval.EarlyStopping,
			UseWiderText:  cfg.Retrieval.TextWindowSplitter,
		})
		// Research during fix cycles runs a shallower chain; two
		// iterations are enough to ground an error group.
		fixChain = retrieval.NewEngine(chatClient, store, embedder, router, retrieval.Config{
			MaxIter:       2,
			EarlyStopping: true,
			UseWiderText:  cfg.Retrieval.TextWindowSplitter,
		})
	}

	// Online retrieval, with an on-disk cache so fix loops do not
	// re-fetch identical pages.
	var scraperOpts []evidence.FirecrawlOption
	cacheDir := filepath.Join(os.TempDir(), "arkforge-scrape-cache")
	if cache, err := evidence.OpenScrapeCache(cacheDir, 0); err != nil {
		slog.Warn("Scrape cache unavailable, fetching uncached", "error", err)
	} else {
		defer cache.Close()
		scraperOpts = append(scraperOpts, evidence.WithScrapeCache(cache))
	}
	scraper := evidence.NewFirecrawlScraper(scraperOpts...)

	orchestrator := search.NewOrchestrator(chatClient, store, embedder, router, scraper, chain, search.Config{
		DefaultMode:      search.ParseMode(cfg.Search.DefaultMode),
		OnlineLimit:      cfg.Search.OnlineLimit,
		MaxContextLength: cfg.Search.MaxContextLength,
	})

	// The control loop gets its own searcher so research-phase chain
	// runs stay shallow and generation session history stays separate
	// from interactive search sessions.
	researchSearcher := search.NewOrchestrator(chatClient, store, embedder, router, scraper, fixChain, search.Config{
		DefaultMode:      search.ModeHybrid,
		OnlineLimit:      cfg.Search.OnlineLimit,
		MaxContextLength: cfg.Search.MaxContextLength,
	})

	checker := newChecker(cfg.Analyzers)
	agent := codegen.NewAgent(chatClient)
	writer := codegen.NewFileWriter(cfg.Generation.OutputDir)
	loop := pipeline.NewPipeline(researchSearcher, agent, checker, writer, pipeline.Config{
		MaxAttempts: cfg.Generation.MaxAttempts,
	})

	engine := gin.New()
	engine.Use(otelgin.Middleware("arkforged"), gin.Recovery())
	routes.SetupRoutes(engine, orchestrator, checker, loop)

	port := cfg.Server.Port
	if port == 0 {
		port = 12310
	}
	slog.Info("arkforged listening", "port", port)
	if err := engine.Run(fmt.Sprintf(":%d", port)); err != nil {
		log.Fatalf("server exited: %v", err)
	}
}
