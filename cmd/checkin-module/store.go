package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bigkaa/feirinha/checkin-module/internal/config"
	"github.com/bigkaa/feirinha/checkin-module/internal/rowstore/postgres"
	"github.com/bigkaa/feirinha/checkin-module/internal/rowstore/sheets"
	"github.com/bigkaa/feirinha/checkin-module/internal/rowstore/xlsx"
)

// newSheetsStore connects to the spreadsheet and checks it is reachable,
// so a wrong ID or missing share fails the startup.
func newSheetsStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*sheets.Store, error) {
	s, err := sheets.New(ctx, sheets.Options{
		SpreadsheetID:   cfg.SpreadsheetID,
		CredentialsFile: cfg.SheetsCredentialsFile,
		CredentialsJSON: cfg.SheetsCredentialsJSON,
		Endpoint:        cfg.SheetsEndpoint,
	}, logger)
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.StoreTimeout)
	defer cancel()
	if err := s.Ping(pingCtx); err != nil {
		return nil, fmt.Errorf("spreadsheet %s: %w", cfg.SpreadsheetID, err)
	}
	logger.Info("Google Sheets store ready", slog.String("spreadsheet_id", cfg.SpreadsheetID))
	return s, nil
}

func newXLSXStore(cfg *config.Config, logger *slog.Logger) (*xlsx.Store, error) {
	s, err := xlsx.Open(cfg.XLSXPath, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("Workbook store ready", slog.String("path", cfg.XLSXPath))
	return s, nil
}

// newPostgresStore applies migrations, then opens the pool.
func newPostgresStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*postgres.Store, *pgxpool.Pool, error) {
	logger.Info("Applying database migrations...")
	if err := postgres.Migrate(cfg.DatabaseURL, logger); err != nil {
		return nil, nil, err
	}

	pool, err := postgres.Connect(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return nil, nil, err
	}
	return postgres.New(pool), pool, nil
}
