package main

import (
	"context"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/vigil-labs/vigil/backend/internal/config"
	"github.com/vigil-labs/vigil/backend/internal/database"
	"github.com/vigil-labs/vigil/backend/internal/logger"
	"github.com/vigil-labs/vigil/backend/internal/server"
	"github.com/vigil-labs/vigil/backend/internal/services"
	"github.com/vigil-labs/vigil/backend/internal/version"
)

func main() {
	// Setup logging with rotation
	logDir := "/app/data/logs"
	if err := os.MkdirAll(logDir, 0755); err != nil {
		// Fallback to local directory if /app/data fails (e.g. local dev)
		logDir = "data/logs"
		_ = os.MkdirAll(logDir, 0755)
	}

	rotator := &lumberjack.Logger{
		Filename:   filepath.Join(logDir, "vigil.log"),
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
		Compress:   true,
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger.Init(cfg.Environment == "development", io.MultiWriter(os.Stdout, rotator))

	// Handle CLI commands
	if len(os.Args) > 1 && os.Args[1] == "recalculate-trust" {
		if len(os.Args) != 3 {
			log.Fatalf("Usage: %s recalculate-trust <fingerprint>", os.Args[0])
		}
		recalculateTrust(cfg, os.Args[2])
		return
	}

	logger.Log().Infof("starting %s on version %s", version.Name, version.Full())

	db, err := database.Open(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}

	srv, err := server.New(db, cfg)
	if err != nil {
		log.Fatalf("build server: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Log().Infof("listening on :%s", cfg.HTTPPort)
	if err := srv.Run(ctx); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

// recalculateTrust rescores a single visitor from the command line, useful
// after tuning the scoring weights.
func recalculateTrust(cfg config.Config, fingerprint string) {
	db, err := database.Open(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}

	visitors := services.NewVisitorService(db, services.NewTrustScorer(cfg.Trust))
	visitor, result, err := visitors.Recalculate(fingerprint)
	if err != nil {
		log.Fatalf("recalculate trust for %s: %v", fingerprint, err)
	}

	log.Printf("visitor %s rescored: trust_score=%d trust_level=%s factors=%v",
		fingerprint, visitor.TrustScore, visitor.TrustLevel, result.Factors)
}
