package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/orata/spatial-gateway/internal/app/server"
	"github.com/orata/spatial-gateway/internal/config"
	"github.com/orata/spatial-gateway/internal/logger"
	"github.com/orata/spatial-gateway/internal/metrics"
	"github.com/orata/spatial-gateway/internal/store"
)

var Version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	addrFlag := flag.String("addr", "", "listen address, overrides ADDR")
	flag.Parse()

	cfg := config.FromEnv()
	if *addrFlag != "" {
		cfg.Addr = *addrFlag
	}

	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   cfg.LogConsole,
		Component: "spatial-gateway",
	}, os.Stdout)
	appLog := logger.NewSlog(&zl)

	appLog.Info("starting gateway", "addr", cfg.Addr, "version", Version)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := store.Connect(ctx, store.Config{
		URL:          cfg.DatabaseURL,
		MinConns:     int32(cfg.DBMinConns),
		MaxConns:     int32(cfg.DBMaxConns),
		QueryTimeout: cfg.QueryTimeout,
	})
	if err != nil {
		appLog.Error("store connect failed", "err", err)
		return 1
	}
	defer pool.Close()

	var prov *metrics.Provider
	if cfg.MetricsEnabled {
		prov = metrics.Init(metrics.Config{
			Enabled: true,
			Build: metrics.BuildInfo{
				Version:   Version,
				Revision:  os.Getenv("BUILD_REVISION"),
				BuildDate: os.Getenv("BUILD_DATE"),
			},
		})
	}

	if err := server.Run(ctx, cfg, appLog, pool, prov); err != nil {
		appLog.Error("server exited with error", "err", err)
		return 1
	}
	appLog.Info("server stopped")
	return 0
}
