package main

import (
	"context"
	"log/slog"

	"github.com/eventhorizon/horizon/internal/config"
	"github.com/eventhorizon/horizon/internal/store/postgres"
)

func runMigrate(ctx context.Context, cfg *config.Config) error {
	db, err := postgres.New(ctx, databaseConfig(cfg))
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("applying initial schema")
	if err := db.Migrate(ctx, postgres.InitialSchema); err != nil {
		return err
	}
	slog.Info("migration successful")
	return nil
}
