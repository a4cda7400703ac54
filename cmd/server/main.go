package main

import (
	"context"
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/cheersanimesh/research-knowledge-graph/internal/config"
	"github.com/cheersanimesh/research-knowledge-graph/internal/logging"
	"github.com/cheersanimesh/research-knowledge-graph/internal/server"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment as-is")
	}

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config/config.toml"
	}
	cfg := config.LoadOrDefault(cfgPath)

	logger, err := logging.New(cfg.Server.LogMode)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	ctx := context.Background()
	srv, err := server.NewServer(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to start server", "error", err)
	}
	defer srv.Close(ctx)

	r := srv.SetupRouter()
	logger.Info("listening", "port", cfg.Server.Port)
	if err := r.Run(":" + cfg.Server.Port); err != nil {
		logger.Fatal("server exited", "error", err)
	}
}
