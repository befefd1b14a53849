package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ngoclaw/ngoclaw/bridge/internal/application"
	"github.com/ngoclaw/ngoclaw/bridge/internal/infrastructure/config"
	"github.com/ngoclaw/ngoclaw/bridge/internal/infrastructure/logger"
	"go.uber.org/zap"
)

const (
	appName    = "ngobridge"
	appVersion = "0.1.0"
)

func main() {
	// Check for subcommand
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "version":
			fmt.Printf("%s v%s\n", appName, appVersion)
			return
		case "help", "--help", "-h":
			printUsage()
			return
		}
	}

	// Load config
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.NewLogger(logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		OutputPath: cfg.Log.Output,
		MaxAge:     cfg.Log.MaxAge,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting NGOBridge",
		zap.String("name", appName),
		zap.String("version", appVersion),
		zap.String("config", cfg.File),
	)

	// Create application context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize application
	app, err := application.NewApp(cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize application", zap.Error(err))
	}

	if err := app.Start(ctx); err != nil {
		log.Fatal("Failed to start application", zap.Error(err))
	}

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sig := <-quit
	log.Info("Received shutdown signal", zap.String("signal", sig.String()))
	cancel()

	shutdownCtx, stop := context.WithTimeout(context.Background(), 30*time.Second)
	defer stop()

	if err := app.Stop(shutdownCtx); err != nil {
		log.Error("Error during shutdown", zap.Error(err))
		os.Exit(1)
	}
}

// printUsage displays usage information
func printUsage() {
	fmt.Printf(`%s v%s

Usage:
  bridge            Start the bridge (default)
  bridge version    Show version
  bridge help       Show this help

Environment:
  NGOBRIDGE_*       Configuration overrides (see config.yaml)
`, appName, appVersion)
}
