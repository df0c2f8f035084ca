package main

import (
	"fmt"
	"log"
	"net/http"
	"os"

	"scribe/internal/app"
	"scribe/internal/config"
	"scribe/internal/logging"
	"scribe/internal/workspace"

	"go.uber.org/zap"
)

func main() {
	dir, err := os.Getwd()
	if err != nil {
		log.Fatal("failed to get working directory:", err)
	}

	root, err := workspace.FindRoot(dir)
	if err != nil {
		log.Fatal("not inside a scribe workspace (run 'scribe init'):", err)
	}

	// Load configuration
	cfg, err := config.LoadWorkspace(root)
	if err != nil {
		log.Fatal("failed to load config:", err)
	}

	// Initialize logger
	logger, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatal("failed to initialize logger:", err)
	}
	defer logger.Sync()

	a, err := app.Open(cfg, logger.Logger)
	if err != nil {
		logger.Fatal("failed to open workspace", zap.Error(err))
	}
	defer a.Close()

	if err := a.Workspace.Scan(); err != nil {
		logger.Fatal("failed to scan workspace", zap.Error(err))
	}

	// Start server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	logger.Info("starting server", zap.String("address", addr), zap.String("root", a.Root))

	if err := http.ListenAndServe(addr, a.Handler(logger)); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}
