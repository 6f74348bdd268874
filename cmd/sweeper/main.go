// Command sweeper runs the Expiry Sweeper (C13) as a standalone process:
// it shares the same config/database/cache bootstrap as cmd/api but only
// constructs what the sweep loop needs, matching the teacher's split
// between cmd/api and cmd/worker/fund_card as separate deployable
// binaries against one shared database.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/jinzhu/copier"

	"github.com/firefly-oss/core-banking-card-transaction-authorization-center/config"
	"github.com/firefly-oss/core-banking-card-transaction-authorization-center/internal/database"
	"github.com/firefly-oss/core-banking-card-transaction-authorization-center/internal/externals"
	"github.com/firefly-oss/core-banking-card-transaction-authorization-center/internal/hold"
	"github.com/firefly-oss/core-banking-card-transaction-authorization-center/internal/sweeper"
	"github.com/firefly-oss/core-banking-card-transaction-authorization-center/pkg/cache"
	"github.com/firefly-oss/core-banking-card-transaction-authorization-center/pkg/clock"
	"github.com/firefly-oss/core-banking-card-transaction-authorization-center/pkg/logger"
)

var Cfg config.AppConfig

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if err := logger.Init(logger.GetEnv()); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Sync()

	_, filename, _, _ := runtime.Caller(0)
	root := filepath.Dir(filename)
	configPath := config.Path(root).Join("config.toml", "..", "..")

	if err := config.Load(configPath, &Cfg); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	var redisCfg cache.Config
	if err := copier.Copy(&redisCfg, &Cfg.Redis); err != nil {
		return fmt.Errorf("failed to copy cache config: %w", err)
	}
	if err := cache.Init(redisCfg); err != nil {
		return fmt.Errorf("failed to initialize cache: %w", err)
	}
	defer cache.Close()

	var dbCfg database.Config
	if err := copier.Copy(&dbCfg, &Cfg.Database); err != nil {
		return fmt.Errorf("failed to copy database config: %w", err)
	}
	db, err := database.NewDB(dbCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize database connection: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := db.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	holdRepo := database.NewHoldRepository(db)
	httpClient := &http.Client{Timeout: time.Duration(Cfg.Externals.TimeoutSeconds) * time.Second}
	ledger := externals.NewHTTPLedger(Cfg.Externals.LedgerURL, httpClient)
	holdManager := hold.New(holdRepo, ledger, clock.RealClock{})

	sw := sweeper.New(holdRepo, holdManager, clock.RealClock{}, Cfg.Sweep.BatchSize)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-stop
		logger.Info("shutdown signal received")
		cancel()
	}()

	sw.Run(ctx, time.Duration(Cfg.Sweep.IntervalSeconds)*time.Second)
	return nil
}
