package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/wfunc/partyserver/config"
	"github.com/wfunc/partyserver/logger"
	"github.com/wfunc/partyserver/persistence"
	"github.com/wfunc/partyserver/server"
)

func main() {
	// Initialize logger
	logger.Init()
	defer logger.Sync()

	// Local development overrides; absence is fine in production
	if err := godotenv.Load(); err != nil {
		logger.Log.Debugf("no .env file loaded: %v", err)
	}

	// Load configuration
	cfg, err := config.LoadConfig(".")
	if err != nil {
		logger.Log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize Database
	db, err := persistence.NewGormPostgreSQL(
		cfg.Database.Postgres.Host,
		cfg.Database.Postgres.Port,
		cfg.Database.Postgres.User,
		cfg.Database.Postgres.Password,
		cfg.Database.Postgres.DBName,
	)
	if err != nil {
		logger.Log.Fatalf("Failed to connect to database: %v", err)
	}
	logger.Log.Info("Database connection successful.")

	srv, err := server.New(cfg, db)
	if err != nil {
		logger.Log.Fatalf("Failed to build server: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Log.Infof("Starting party server on %s", cfg.Server.HTTPAddress)
	if err := srv.Run(ctx); err != nil {
		logger.Log.Fatalf("Server exited with error: %v", err)
	}
}
