package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	configloader "github.com/iconichq/automod/external/config"
	gatewayimpl "github.com/iconichq/automod/external/gateway"
	journalimpl "github.com/iconichq/automod/external/journal"
	reportimpl "github.com/iconichq/automod/external/report"
	"github.com/iconichq/automod/internal/config"
	"github.com/iconichq/automod/internal/session"
	"github.com/iconichq/automod/internal/telemetry"
	"github.com/samber/do/v2"
)

func mustLoadConfig() *config.Config {
	cfg, err := configloader.Load()
	if err != nil {
		slog.Error("config validation failed", "error", err)
		os.Exit(1)
	}
	return cfg
}

func initLogger(cfg *config.Config) {
	logLevel := slog.LevelInfo
	if cfg.IsDevelopment() {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))
}

func setupDI(cfg *config.Config) do.Injector {
	injector := do.New()

	do.ProvideValue(injector, cfg)
	gatewayimpl.RegisterDI(injector)
	journalimpl.RegisterDI(injector)
	reportimpl.RegisterDI(injector)
	session.RegisterDI(injector)

	return injector
}

// bootstrap runs the startup sequence every long-running command shares:
// config, logging, dependency graph, metrics endpoint.
func bootstrap() (*config.Config, do.Injector, *session.Manager) {
	slog.Info("startup: loading configuration")
	cfg := mustLoadConfig()
	initLogger(cfg)
	slog.Info("startup: configuration loaded", "env", cfg.Env)

	slog.Info("startup: building dependency graph")
	injector := setupDI(cfg)

	telemetry.Init()
	go telemetry.Serve(cfg.MetricsAddr)

	manager, err := do.Invoke[*session.Manager](injector)
	if err != nil {
		slog.Error("failed to resolve session manager", "error", err)
		os.Exit(1)
	}
	return cfg, injector, manager
}

func waitForShutdown() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	slog.Info("shutting down")
}
