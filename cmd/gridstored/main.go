package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gridstore/core/internal/config"
	"github.com/gridstore/core/internal/runtime"
	"github.com/gridstore/core/internal/topology"
)

var version = "dev"

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "configs/gridstored.yaml", "path to config file")
	flag.Parse()

	if *showVersion {
		fmt.Printf("gridstored %s\n", version)
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	var level slog.Level
	switch strings.ToLower(cfg.Logging.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))

	topo, err := topology.Load(cfg.Topology.FilePath)
	if err != nil {
		slog.Error("failed to load topology", "error", err)
		os.Exit(1)
	}

	rt, err := runtime.New(cfg, topo)
	if err != nil {
		slog.Error("failed to start runtime", "error", err)
		os.Exit(1)
	}
	defer rt.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go rt.HealthMonitor().Run(ctx)

	slog.Info("gridstored started", "disk_roots", len(cfg.Storage.DiskRoots), "deployment_id", topo.DeploymentID, "generation", topo.Generation)

	<-ctx.Done()
	slog.Info("gridstored shutting down")
}
