// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ManuGH/xg2g/internal/api"
	"github.com/ManuGH/xg2g/internal/config"
	"github.com/ManuGH/xg2g/internal/export"
	"github.com/ManuGH/xg2g/internal/health"
	xglog "github.com/ManuGH/xg2g/internal/log"
	"github.com/ManuGH/xg2g/internal/milestone/auth"
	"github.com/ManuGH/xg2g/internal/milestone/configclient"
	"github.com/ManuGH/xg2g/internal/telemetry"
	"github.com/ManuGH/xg2g/internal/version"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gopkg.in/yaml.v3"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	dumpConfig := flag.Bool("dump-config", false, "print the active configuration as YAML and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s (commit: %s, built: %s)\n", version.Version, version.Commit, version.Date)
		os.Exit(0)
	}

	xglog.Configure(xglog.Config{Level: "info", Service: "xg2g"})
	logger := xglog.WithComponent("daemon")

	cfg, err := config.ReadOSRuntimeEnv()
	if err != nil {
		logger.Fatal().Err(err).Str("event", "config.load_failed").Msg("failed to load configuration")
	}

	if *dumpConfig {
		out, err := yaml.Marshal(cfg.Redacted())
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to render configuration snapshot")
		}
		fmt.Print(string(out))
		os.Exit(0)
	}

	xglog.Configure(xglog.Config{Level: cfg.LogLevel, Service: cfg.LogService})

	if err := health.PerformStartupChecks(cfg); err != nil {
		logger.Fatal().Err(err).Msg("startup checks failed")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.OTLPEndpoint != "",
		ServiceName:    cfg.LogService,
		ServiceVersion: version.Version,
		ExporterType:   "grpc",
		Endpoint:       cfg.OTLPEndpoint,
		SamplingRate:   1.0,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize telemetry provider")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tp.Shutdown(shutdownCtx)
	}()

	authBroker := auth.New(auth.Config{
		BaseURL:   cfg.MilestoneServerURL,
		Username:  cfg.MilestoneUsername,
		Password:  cfg.MilestonePassword,
		TLSVerify: cfg.TLSVerify,
		Timeout:   cfg.ConnectTimeout,
	})

	configClient := configclient.New(configclient.Config{
		BaseURL:   cfg.MilestoneServerURL,
		TLSVerify: cfg.TLSVerify,
		Timeout:   cfg.ConnectTimeout,
	}, authBroker)

	registry := export.NewRegistry()
	exporter := export.New(export.Config{
		ExportDir:      cfg.ExportDir,
		PipelineDepth:  cfg.PipelineDepth,
		EncoderPath:    cfg.EncoderPath,
		JPEGFPS:        cfg.FrameRateFPS,
		ConnectTimeout: cfg.ConnectTimeout,
		ReadTimeout:    cfg.ReadTimeout,
	}, authBroker, configClient, registry)

	healthMgr := health.NewManager(version.Version)
	healthMgr.RegisterChecker(health.NewDirChecker("export_dir", cfg.ExportDir))
	healthMgr.RegisterChecker(health.NewLastRunChecker(registry.LastRun))

	server := api.NewServer(api.Config{
		APIToken:           cfg.APIToken,
		EnableCORS:         cfg.EnableCORS,
		AllowedOrigins:     cfg.AllowedOrigins,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		TracingService:     cfg.LogService,
		DebugConfig:        cfg.Redacted(),
	}, exporter, configClient, healthMgr)

	router := server.Routes()
	router.Handle("/metrics", promhttp.Handler())

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info().
		Str("event", "startup").
		Str("version", version.Version).
		Str("addr", cfg.HTTPAddr).
		Str("milestone_server", cfg.MilestoneServerURL).
		Int("pipeline_depth", cfg.PipelineDepth).
		Msg("starting xg2g export service")

	serveErr := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-serveErr:
		if err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	logger.Info().Msg("cancelling in-flight exports")
	exporter.CancelAll()
	exporter.Wait()

	logger.Info().Msg("server exiting")
}
