// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command moduliftd starts the pipeline API server.
//
// Usage:
//
//	go run ./cmd/moduliftd
//	go run ./cmd/moduliftd -port 9090
//
// Example requests:
//
//	# Health check
//	curl http://localhost:8080/v1/pipeline/health
//
//	# Assemble a build plan
//	curl -X POST http://localhost:8080/v1/pipeline/plan \
//	  -H "Content-Type: application/json" \
//	  -d '{"services": [{"id": "web_app", "depends_on": ["sql_db"]}, {"id": "sql_db"}]}'
//
//	# Start a run
//	curl -X POST http://localhost:8080/v1/pipeline/runs \
//	  -H "Content-Type: application/json" \
//	  -d '{"services": [{"id": "web_app"}]}'
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/modulift/modulift/pkg/logging"
	"github.com/modulift/modulift/services/pipeline"
	"github.com/modulift/modulift/services/pipeline/collab"
	"github.com/modulift/modulift/services/pipeline/config"
	"github.com/modulift/modulift/services/pipeline/fix"
	"github.com/modulift/modulift/services/pipeline/report"
	"github.com/modulift/modulift/services/pipeline/run"
	"github.com/modulift/modulift/services/pipeline/telemetry"
	"github.com/modulift/modulift/services/pipeline/validate"
)

func main() {
	port := flag.Int("port", 0, "Port to listen on (0 uses the configured value)")
	debug := flag.Bool("debug", false, "Enable debug mode")
	flag.Parse()

	if err := serve(*port, *debug); err != nil {
		slog.Error("Server exited with error", "error", err)
		os.Exit(1)
	}
}

func serve(port int, debug bool) error {
	level := logging.LevelInfo
	if debug {
		level = logging.LevelDebug
	}
	logger := logging.New(logging.Config{Level: level, Service: "moduliftd"})
	defer logger.Close()
	slog.SetDefault(logger.Slog())

	ctx := context.Background()
	cfg, err := config.Get(ctx)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	if port == 0 {
		port = cfg.Server.Port
	}

	// Telemetry first so package tracers and meters bind to real providers.
	telCfg := telemetry.DefaultConfig()
	telCfg.Environment = cfg.Service.Environment
	if cfg.Telemetry.TraceExporter != "" {
		telCfg.TraceExporter = cfg.Telemetry.TraceExporter
	}
	if cfg.Telemetry.MetricExporter != "" {
		telCfg.MetricExporter = cfg.Telemetry.MetricExporter
	}
	if cfg.Telemetry.OTLPEndpoint != "" {
		telCfg.OTLPEndpoint = cfg.Telemetry.OTLPEndpoint
	}
	shutdownTelemetry, err := telemetry.Init(ctx, telCfg)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer shutdownTelemetry(context.Background())

	// Set Gin mode
	if debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	client, err := collab.NewClient(cfg.Collab)
	if err != nil {
		return fmt.Errorf("create collaborator client: %w", err)
	}

	runner := validate.NewRunner()
	runner.DetectTools(ctx)

	var fixer run.FixRunner
	if !cfg.Validate.Skip {
		validator, err := validate.ForDialect(cfg.Validate.Dialect, runner)
		if err != nil {
			return fmt.Errorf("create validator: %w", err)
		}
		var fixOpts []fix.Option
		if cfg.Fix.MaxIterations > 0 {
			fixOpts = append(fixOpts, fix.WithMaxIterations(cfg.Fix.MaxIterations))
		}
		if cfg.Fix.ValidateTimeoutSeconds > 0 {
			fixOpts = append(fixOpts, fix.WithValidateTimeout(time.Duration(cfg.Fix.ValidateTimeoutSeconds)*time.Second))
		}
		if cfg.Fix.SuggestTimeoutSeconds > 0 {
			fixOpts = append(fixOpts, fix.WithSuggestTimeout(time.Duration(cfg.Fix.SuggestTimeoutSeconds)*time.Second))
		}
		if cfg.Fix.MaxPatchLines > 0 {
			fixOpts = append(fixOpts, fix.WithMaxPatchLines(cfg.Fix.MaxPatchLines))
		}
		fixer, err = fix.NewController(validator, client, fixOpts...)
		if err != nil {
			return fmt.Errorf("create fix controller: %w", err)
		}
	}

	storeCfg := report.InMemoryStoreConfig()
	if cfg.Run.StorePath != "" {
		storeCfg = report.DefaultStoreConfig(cfg.Run.StorePath)
	}
	store, err := report.OpenStore(storeCfg)
	if err != nil {
		return fmt.Errorf("open report store: %w", err)
	}
	defer store.Close()

	svcCfg := pipeline.DefaultServiceConfig()
	svcCfg.Dialect = cfg.Validate.Dialect
	svcCfg.Threshold = cfg.Patterns.Threshold
	svcCfg.Workers = cfg.Run.Workers
	svcCfg.WorkDir = cfg.Run.WorkDir
	svcCfg.OutputDir = cfg.Run.OutputDir
	svcCfg.SkipValidation = cfg.Validate.Skip
	if cfg.Run.GenerateTimeoutSeconds > 0 {
		svcCfg.GenerateTimeout = time.Duration(cfg.Run.GenerateTimeoutSeconds) * time.Second
	}

	svc, err := pipeline.NewService(svcCfg, client, fixer, store)
	if err != nil {
		return fmt.Errorf("create pipeline service: %w", err)
	}
	defer svc.Close()

	handlers := pipeline.NewHandlers(svc)
	if !cfg.Validate.Skip {
		dialect := cfg.Validate.Dialect
		handlers = handlers.WithReadyCheck(func() error {
			if !runner.IsAvailable(dialect) {
				return fmt.Errorf("%s validator tooling not usable", dialect)
			}
			return nil
		})
	}

	// Setup router
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(telCfg.ServiceName))
	if debug {
		router.Use(gin.Logger())
	}

	v1 := router.Group("/v1")
	pipeline.RegisterRoutes(v1, handlers)

	if metricsHandler := telemetry.MetricsHandler(); metricsHandler != nil {
		router.GET("/metrics", gin.WrapH(metricsHandler))
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: router,
	}

	// Handle graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Starting modulift pipeline server",
			"addr", srv.Addr, "dialect", cfg.Validate.Dialect, "backend", cfg.Collab.Backend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		slog.Info("Shutting down", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return nil
}
