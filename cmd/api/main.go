// Command api wires and starts the card transaction authorization center:
// config/logger/database/cache bootstrap, repository and external-client
// construction, and the orchestrator that drives the authorize/reverse/
// challenge-complete pipeline. No HTTP transport is mounted here; the
// orchestrator is the public surface and is expected to be called from a
// transport adapter (gRPC, message consumer) that is out of scope for this
// module, matching the teacher's separation between cmd/api bootstrap and
// its pkg/cache smoke-test block.
package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/jinzhu/copier"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/firefly-oss/core-banking-card-transaction-authorization-center/config"
	"github.com/firefly-oss/core-banking-card-transaction-authorization-center/internal/balance"
	"github.com/firefly-oss/core-banking-card-transaction-authorization-center/internal/database"
	"github.com/firefly-oss/core-banking-card-transaction-authorization-center/internal/domain"
	"github.com/firefly-oss/core-banking-card-transaction-authorization-center/internal/events"
	"github.com/firefly-oss/core-banking-card-transaction-authorization-center/internal/externals"
	"github.com/firefly-oss/core-banking-card-transaction-authorization-center/internal/hold"
	"github.com/firefly-oss/core-banking-card-transaction-authorization-center/internal/limit"
	"github.com/firefly-oss/core-banking-card-transaction-authorization-center/internal/orchestrator"
	"github.com/firefly-oss/core-banking-card-transaction-authorization-center/internal/risk"
	"github.com/firefly-oss/core-banking-card-transaction-authorization-center/internal/sweeper"
	"github.com/firefly-oss/core-banking-card-transaction-authorization-center/internal/validator"
	"github.com/firefly-oss/core-banking-card-transaction-authorization-center/pkg/cache"
	"github.com/firefly-oss/core-banking-card-transaction-authorization-center/pkg/clock"
	"github.com/firefly-oss/core-banking-card-transaction-authorization-center/pkg/logger"
	"github.com/firefly-oss/core-banking-card-transaction-authorization-center/pkg/queue"
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
	logger.Info("card transaction authorization center starting")

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
	if err := db.RunMigrations(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	logger.Info("database connected and migrated")

	requests := database.NewRequestRepository(db)
	if key, err := decodeFieldEncryptionKey(Cfg.Crypto.FieldEncryptionKeyBase64); err != nil {
		return fmt.Errorf("failed to load field encryption key: %w", err)
	} else if key != nil {
		requests = requests.WithFieldEncryption(key)
	}
	decisions := database.NewDecisionRepository(db)
	holdRepo := database.NewHoldRepository(db)
	windowRepo := database.NewSpendingWindowRepository(db)

	httpClient := &http.Client{Timeout: time.Duration(Cfg.Externals.TimeoutSeconds) * time.Second}
	cardDirectory := externals.NewHTTPCardDirectory(Cfg.Externals.CardDirectoryURL, httpClient)
	ledger := externals.NewHTTPLedger(Cfg.Externals.LedgerURL, httpClient)
	fxProvider := externals.NewHTTPFXProvider(Cfg.Externals.FXProviderURL, httpClient)

	limitCfg, err := buildLimitConfig(Cfg)
	if err != nil {
		return fmt.Errorf("failed to build limit config: %w", err)
	}
	riskCfg, err := buildRiskConfig(Cfg)
	if err != nil {
		return fmt.Errorf("failed to build risk config: %w", err)
	}

	v := validator.New(cardDirectory, clock.RealClock{})
	limitEvaluator := limit.New(limitCfg, windowRepo)
	balanceChecker := balance.New(ledger, fxProvider)
	holdManager := hold.New(holdRepo, ledger, clock.RealClock{})

	streamQueue := queue.NewStreamQueue(cache.Client)
	if err := streamQueue.DeclareStream(ctx, events.StreamDecisions, "authorization-center"); err != nil {
		logger.Warn("failed to declare decisions stream, continuing without it", zap.Error(err))
	}
	if err := streamQueue.DeclareStream(ctx, events.StreamHolds, "authorization-center"); err != nil {
		logger.Warn("failed to declare holds stream, continuing without it", zap.Error(err))
	}

	orch := orchestrator.New(orchestrator.Deps{
		DB:         db,
		Requests:   requests,
		Decisions:  decisions,
		HoldRepo:   holdRepo,
		Validator:  v,
		Limits:     limitEvaluator,
		RiskConfig: riskCfg,
		Balances:   balanceChecker,
		Holds:      holdManager,
		ResolveAccountCurrency: func(card *domain.CardDetails) string {
			return card.AccountCurrency
		},
		HoldTTL: time.Duration(Cfg.Limits.HoldTTLHours) * time.Hour,
		Clock:   clock.RealClock{},
		Queue:   streamQueue,
	})
	_ = orch // the orchestrator is the public surface; transport adapters call it directly.

	sw := sweeper.New(holdRepo, holdManager, clock.RealClock{}, Cfg.Sweep.BatchSize)
	go sw.Run(ctx, time.Duration(Cfg.Sweep.IntervalSeconds)*time.Second)

	logger.Info("card transaction authorization center ready")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutdown signal received, draining")
	cancel()
	time.Sleep(500 * time.Millisecond)
	return nil
}

func decodeFieldEncryptionKey(b64 string) ([]byte, error) {
	if b64 == "" {
		return nil, nil
	}
	key, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, fmt.Errorf("field encryption key is not valid base64: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("field encryption key must decode to 32 bytes, got %d", len(key))
	}
	return key, nil
}

func buildLimitConfig(cfg config.AppConfig) (limit.Config, error) {
	defaultTxn, err := decimal.NewFromString(cfg.Limits.DefaultTransactionLimit)
	if err != nil {
		return limit.Config{}, fmt.Errorf("invalid default_transaction_limit: %w", err)
	}
	defaultDaily, err := decimal.NewFromString(cfg.Limits.DefaultDailyLimit)
	if err != nil {
		return limit.Config{}, fmt.Errorf("invalid default_daily_limit: %w", err)
	}
	defaultMonthly, err := decimal.NewFromString(cfg.Limits.DefaultMonthlyLimit)
	if err != nil {
		return limit.Config{}, fmt.Errorf("invalid default_monthly_limit: %w", err)
	}

	multipliers := make(map[domain.Channel]decimal.Decimal, len(cfg.Limits.ChannelMultipliers))
	for ch, raw := range cfg.Limits.ChannelMultipliers {
		v, err := decimal.NewFromString(raw)
		if err != nil {
			return limit.Config{}, fmt.Errorf("invalid channel_multipliers[%s]: %w", ch, err)
		}
		multipliers[domain.Channel(ch)] = v
	}

	caps := make(map[domain.Channel]decimal.Decimal, len(cfg.Limits.ChannelCaps))
	for ch, raw := range cfg.Limits.ChannelCaps {
		v, err := decimal.NewFromString(raw)
		if err != nil {
			return limit.Config{}, fmt.Errorf("invalid channel_caps[%s]: %w", ch, err)
		}
		caps[domain.Channel(ch)] = v
	}

	return limit.Config{
		DefaultTransactionLimit: defaultTxn,
		DefaultDailyLimit:       defaultDaily,
		DefaultMonthlyLimit:     defaultMonthly,
		ChannelMultipliers:      multipliers,
		ChannelCaps:             caps,
		ProductLimits:           map[string]limit.ProductLimitSet{},
	}, nil
}

func buildRiskConfig(cfg config.AppConfig) (risk.Config, error) {
	usd, err := decimal.NewFromString(cfg.Risk.HighValueThresholdUSD)
	if err != nil {
		return risk.Config{}, fmt.Errorf("invalid high_value_threshold_usd: %w", err)
	}
	eur, err := decimal.NewFromString(cfg.Risk.HighValueThresholdEUR)
	if err != nil {
		return risk.Config{}, fmt.Errorf("invalid high_value_threshold_eur: %w", err)
	}
	gbp, err := decimal.NewFromString(cfg.Risk.HighValueThresholdGBP)
	if err != nil {
		return risk.Config{}, fmt.Errorf("invalid high_value_threshold_gbp: %w", err)
	}
	other, err := decimal.NewFromString(cfg.Risk.HighValueThresholdOther)
	if err != nil {
		return risk.Config{}, fmt.Errorf("invalid high_value_threshold_other: %w", err)
	}

	countries := make(map[string]bool, len(cfg.Risk.HighRiskCountries))
	for _, c := range cfg.Risk.HighRiskCountries {
		countries[c] = true
	}
	mccs := make(map[string]bool, len(cfg.Risk.HighRiskMCCs))
	for _, m := range cfg.Risk.HighRiskMCCs {
		mccs[m] = true
	}

	return risk.Config{
		ChallengeThreshold:      cfg.Risk.ChallengeThreshold,
		DeclineThreshold:        cfg.Risk.DeclineThreshold,
		HighValueThresholdUSD:   usd,
		HighValueThresholdEUR:   eur,
		HighValueThresholdGBP:   gbp,
		HighValueThresholdOther: other,
		HighRiskCountries:       countries,
		HighRiskMCCs:            mccs,
	}, nil
}
