package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/prohmpiriya/venue-approval/internal/domain"
	"github.com/prohmpiriya/venue-approval/internal/repository"
	"github.com/prohmpiriya/venue-approval/internal/service"
	"github.com/prohmpiriya/venue-approval/pkg/config"
	"github.com/prohmpiriya/venue-approval/pkg/database"
	"github.com/prohmpiriya/venue-approval/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	logCfg := &logger.Config{
		Level:       cfg.App.LogLevel,
		ServiceName: "venue-seed",
		Development: cfg.IsDevelopment(),
	}
	if err := logger.Init(logCfg); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	appLog := logger.Get()

	if cfg.Ledger.Backend != config.LedgerBackendPostgres {
		appLog.Fatal(fmt.Sprintf("Seeding needs LEDGER_BACKEND=postgres, got %q", cfg.Ledger.Backend))
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	// Initialize database connection
	db, err := database.NewPostgres(ctx, &database.PostgresConfig{
		Host:          cfg.Database.Host,
		Port:          cfg.Database.Port,
		User:          cfg.Database.User,
		Password:      cfg.Database.Password,
		Database:      cfg.Database.DBName,
		SSLMode:       cfg.Database.SSLMode,
		MaxConns:      4,
		MinConns:      1,
		MaxRetries:    3,
		RetryInterval: 2 * time.Second,
	})
	if err != nil {
		appLog.Fatal(fmt.Sprintf("Failed to connect to database: %v", err))
	}
	defer db.Close()

	ledger := repository.NewPostgresLedgerRepository(db.Pool())
	if err := ledger.Migrate(ctx); err != nil {
		appLog.Fatal(fmt.Sprintf("Ledger migration failed: %v", err))
	}

	adminSvc := service.NewAdminService(ledger, service.NewNoOpEventPublisher(), nil)
	actor := domain.Actor{ID: "seed", Role: domain.RoleAdmin}

	result, err := service.SeedCatalog(ctx, ledger, adminSvc, actor, service.DemoCatalog())
	if err != nil {
		appLog.Fatal(fmt.Sprintf("Seeding failed: %v", err))
	}
	appLog.Info(fmt.Sprintf("Catalog seeded: %d venues, %d resources created, %d already present",
		result.VenuesCreated, result.ResourcesCreated, result.Skipped))
}
