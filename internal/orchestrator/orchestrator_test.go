//go:build integration

package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/firefly-oss/core-banking-card-transaction-authorization-center/internal/balance"
	"github.com/firefly-oss/core-banking-card-transaction-authorization-center/internal/database"
	"github.com/firefly-oss/core-banking-card-transaction-authorization-center/internal/domain"
	"github.com/firefly-oss/core-banking-card-transaction-authorization-center/internal/externals"
	"github.com/firefly-oss/core-banking-card-transaction-authorization-center/internal/hold"
	"github.com/firefly-oss/core-banking-card-transaction-authorization-center/internal/idgen"
	"github.com/firefly-oss/core-banking-card-transaction-authorization-center/internal/limit"
	"github.com/firefly-oss/core-banking-card-transaction-authorization-center/internal/risk"
	"github.com/firefly-oss/core-banking-card-transaction-authorization-center/internal/validator"
	"github.com/firefly-oss/core-banking-card-transaction-authorization-center/pkg/cache"
	"github.com/firefly-oss/core-banking-card-transaction-authorization-center/pkg/clock"
	"github.com/firefly-oss/core-banking-card-transaction-authorization-center/pkg/logger"
)

func init() {
	_ = logger.Init("development")
}

func setupTestCache(t *testing.T) {
	t.Helper()
	err := cache.Init(cache.Config{Host: "localhost", Port: "6379", Password: "", DB: 5})
	require.NoError(t, err, "failed to connect to test redis")
	t.Cleanup(func() {
		_ = cache.Client.FlushDB(context.Background()).Err()
	})
}

type fakeCardDirectory struct {
	byPANHash map[string]*domain.CardDetails
}

func (f *fakeCardDirectory) ResolveByPANHash(ctx context.Context, panHash string) (*domain.CardDetails, error) {
	if c, ok := f.byPANHash[panHash]; ok {
		return c, nil
	}
	return nil, externals.ErrNotFound
}

func (f *fakeCardDirectory) ResolveByToken(ctx context.Context, token string) (*domain.CardDetails, error) {
	return nil, externals.ErrNotFound
}

type fakeLedger struct {
	available decimal.Decimal
}

func (f *fakeLedger) GetBalance(ctx context.Context, accountID int64, accountSpaceID *int64, currency string) (*domain.BalanceSnapshot, error) {
	return &domain.BalanceSnapshot{AvailableBefore: f.available, AvailableAfter: f.available, LedgerBalance: f.available}, nil
}
func (f *fakeLedger) Reserve(ctx context.Context, accountID int64, accountSpaceID *int64, amount decimal.Decimal, currency, reference string) error {
	return nil
}
func (f *fakeLedger) ReleaseReserve(ctx context.Context, accountID int64, accountSpaceID *int64, amount decimal.Decimal, currency, reference string) error {
	return nil
}
func (f *fakeLedger) Post(ctx context.Context, accountID int64, accountSpaceID *int64, amount decimal.Decimal, currency, reference string) error {
	return nil
}

type fakeFX struct{}

func (fakeFX) GetRate(ctx context.Context, from, to string) (decimal.Decimal, error) {
	return decimal.NewFromInt(1), nil
}

func cleanCard(cardID int64) *domain.CardDetails {
	return &domain.CardDetails{
		CardID:                  cardID,
		AccountID:               cardID + 100,
		AccountCurrency:         "USD",
		Status:                  "ACTIVE",
		ProductCode:             "STANDARD",
		ExpiryDate:              "12/30",
		ThreeDSEnrollmentStatus: "Y",
	}
}

func cleanRequest(panHash string, amount decimal.Decimal) *domain.AuthorizationRequest {
	return &domain.AuthorizationRequest{
		RequestID:       idgen.NewID(),
		MaskedPAN:       "411111******1234",
		PANHash:         panHash,
		ExpiryDate:      "12/30",
		MerchantID:      "merchant-1",
		MerchantName:    "Coffee Shop",
		Channel:         domain.ChannelPOS,
		TransactionType: domain.TxnPurchase,
		Amount:          amount,
		Currency:        "USD",
		Timestamp:       time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC),
	}
}

func quietRiskConfig() risk.Config {
	return risk.Config{
		ChallengeThreshold:      70,
		DeclineThreshold:        90,
		HighValueThresholdUSD:   decimal.NewFromInt(1000000),
		HighValueThresholdEUR:   decimal.NewFromInt(1000000),
		HighValueThresholdGBP:   decimal.NewFromInt(1000000),
		HighValueThresholdOther: decimal.NewFromInt(1000000),
		HighRiskCountries:       map[string]bool{},
		HighRiskMCCs:            map[string]bool{},
	}
}

func newTestOrchestrator(t *testing.T, db *database.DB, cards map[string]*domain.CardDetails, ledgerBalance decimal.Decimal, riskCfg risk.Config) *Orchestrator {
	t.Helper()

	requests := database.NewRequestRepository(db)
	decisions := database.NewDecisionRepository(db)
	windowRepo := database.NewSpendingWindowRepository(db)
	holdRepo := database.NewHoldRepository(db)

	v := validator.New(&fakeCardDirectory{byPANHash: cards}, clock.RealClock{})
	limits := limit.New(limit.Config{
		DefaultTransactionLimit: decimal.NewFromInt(5000),
		DefaultDailyLimit:       decimal.NewFromInt(20000),
		DefaultMonthlyLimit:     decimal.NewFromInt(100000),
		ChannelMultipliers:      map[domain.Channel]decimal.Decimal{},
		ChannelCaps:             map[domain.Channel]decimal.Decimal{},
		ProductLimits:           map[string]limit.ProductLimitSet{},
	}, windowRepo)
	balances := balance.New(&fakeLedger{available: ledgerBalance}, fakeFX{})
	holds := hold.New(holdRepo, &fakeLedger{available: ledgerBalance}, clock.RealClock{})

	return New(Deps{
		DB:         db,
		Requests:   requests,
		Decisions:  decisions,
		HoldRepo:   holdRepo,
		Validator:  v,
		Limits:     limits,
		RiskConfig: riskCfg,
		Balances:   balances,
		Holds:      holds,
		ResolveAccountCurrency: func(card *domain.CardDetails) string {
			return card.AccountCurrency
		},
		HoldTTL: 7 * 24 * time.Hour,
		Clock:   clock.RealClock{},
		Queue:   nil,
	})
}

func TestOrchestrator_Authorize_CleanTransaction_Approves(t *testing.T) {
	db := database.SetupTestDB(t)
	defer db.Close()
	defer database.CleanupTestDB(t, db)
	setupTestCache(t)

	card := cleanCard(7001)
	req := cleanRequest("pan-hash-7001", decimal.NewFromInt(50))
	orch := newTestOrchestrator(t, db, map[string]*domain.CardDetails{"pan-hash-7001": card}, decimal.NewFromInt(10000), quietRiskConfig())

	decision, err := orch.Authorize(context.Background(), req, "idem-7001")
	require.NoError(t, err)
	assert.Equal(t, domain.DecisionApproved, decision.Decision)
	require.NotNil(t, decision.HoldID)
	assert.True(t, decision.ApprovedAmount.Equal(req.Amount))
}

func TestOrchestrator_Authorize_IdempotentReplay_ReturnsSameDecision(t *testing.T) {
	db := database.SetupTestDB(t)
	defer db.Close()
	defer database.CleanupTestDB(t, db)
	setupTestCache(t)

	card := cleanCard(7002)
	req := cleanRequest("pan-hash-7002", decimal.NewFromInt(50))
	orch := newTestOrchestrator(t, db, map[string]*domain.CardDetails{"pan-hash-7002": card}, decimal.NewFromInt(10000), quietRiskConfig())

	first, err := orch.Authorize(context.Background(), req, "idem-7002")
	require.NoError(t, err)

	second, err := orch.Authorize(context.Background(), req, "idem-7002")
	require.NoError(t, err)
	assert.Equal(t, first.DecisionID, second.DecisionID)
	assert.Equal(t, first.Decision, second.Decision)
}

func TestOrchestrator_Authorize_CardNotFound_Declines(t *testing.T) {
	db := database.SetupTestDB(t)
	defer db.Close()
	defer database.CleanupTestDB(t, db)
	setupTestCache(t)

	req := cleanRequest("unknown-pan-hash", decimal.NewFromInt(50))
	orch := newTestOrchestrator(t, db, map[string]*domain.CardDetails{}, decimal.NewFromInt(10000), quietRiskConfig())

	decision, err := orch.Authorize(context.Background(), req, "idem-7003")
	require.NoError(t, err)
	assert.Equal(t, domain.DecisionDeclined, decision.Decision)
	assert.Equal(t, domain.ReasonInvalidCard, decision.ReasonCode)
}

func TestOrchestrator_Authorize_ExceedsTransactionLimit_Declines(t *testing.T) {
	db := database.SetupTestDB(t)
	defer db.Close()
	defer database.CleanupTestDB(t, db)
	setupTestCache(t)

	card := cleanCard(7004)
	req := cleanRequest("pan-hash-7004", decimal.NewFromInt(9000))
	orch := newTestOrchestrator(t, db, map[string]*domain.CardDetails{"pan-hash-7004": card}, decimal.NewFromInt(100000), quietRiskConfig())

	decision, err := orch.Authorize(context.Background(), req, "idem-7004")
	require.NoError(t, err)
	assert.Equal(t, domain.DecisionDeclined, decision.Decision)
	assert.Equal(t, domain.ReasonExceedsTransactionLimit, decision.ReasonCode)
	assert.Nil(t, decision.HoldID)
}

func TestOrchestrator_Authorize_InsufficientFunds_Declines(t *testing.T) {
	db := database.SetupTestDB(t)
	defer db.Close()
	defer database.CleanupTestDB(t, db)
	setupTestCache(t)

	card := cleanCard(7005)
	req := cleanRequest("pan-hash-7005", decimal.NewFromInt(500))
	orch := newTestOrchestrator(t, db, map[string]*domain.CardDetails{"pan-hash-7005": card}, decimal.NewFromInt(10), quietRiskConfig())

	decision, err := orch.Authorize(context.Background(), req, "idem-7005")
	require.NoError(t, err)
	assert.Equal(t, domain.DecisionDeclined, decision.Decision)
	assert.Equal(t, domain.ReasonInsufficientFunds, decision.ReasonCode)
}

func TestOrchestrator_Authorize_HighRiskScore_Challenges(t *testing.T) {
	db := database.SetupTestDB(t)
	defer db.Close()
	defer database.CleanupTestDB(t, db)
	setupTestCache(t)

	card := cleanCard(7006)
	card.IssuerCountry = "US"
	riskCfg := quietRiskConfig()
	riskCfg.ChallengeThreshold = 25 // unusual_country alone (score 30) crosses this

	req := cleanRequest("pan-hash-7006", decimal.NewFromInt(50))
	req.CountryCode = "FR"
	orch := newTestOrchestrator(t, db, map[string]*domain.CardDetails{"pan-hash-7006": card}, decimal.NewFromInt(10000), riskCfg)

	decision, err := orch.Authorize(context.Background(), req, "idem-7006")
	require.NoError(t, err)
	assert.Equal(t, domain.DecisionChallenge, decision.Decision)
	require.NotNil(t, decision.ExpiresAt)
	assert.Nil(t, decision.HoldID)
}

func TestOrchestrator_Authorize_VeryHighRiskScore_Declines(t *testing.T) {
	db := database.SetupTestDB(t)
	defer db.Close()
	defer database.CleanupTestDB(t, db)
	setupTestCache(t)

	card := cleanCard(7007)
	card.IssuerCountry = "US"
	riskCfg := quietRiskConfig()
	riskCfg.DeclineThreshold = 25

	req := cleanRequest("pan-hash-7007", decimal.NewFromInt(50))
	req.CountryCode = "FR"
	orch := newTestOrchestrator(t, db, map[string]*domain.CardDetails{"pan-hash-7007": card}, decimal.NewFromInt(10000), riskCfg)

	decision, err := orch.Authorize(context.Background(), req, "idem-7007")
	require.NoError(t, err)
	assert.Equal(t, domain.DecisionDeclined, decision.Decision)
	assert.Equal(t, domain.ReasonSuspectedFraud, decision.ReasonCode)
}

func TestOrchestrator_ChallengeComplete_Success_ApprovesAndCreatesHold(t *testing.T) {
	db := database.SetupTestDB(t)
	defer db.Close()
	defer database.CleanupTestDB(t, db)
	setupTestCache(t)

	card := cleanCard(7008)
	card.IssuerCountry = "US"
	riskCfg := quietRiskConfig()
	riskCfg.ChallengeThreshold = 25

	req := cleanRequest("pan-hash-7008", decimal.NewFromInt(50))
	req.CountryCode = "FR"
	orch := newTestOrchestrator(t, db, map[string]*domain.CardDetails{"pan-hash-7008": card}, decimal.NewFromInt(10000), riskCfg)

	challenged, err := orch.Authorize(context.Background(), req, "idem-7008")
	require.NoError(t, err)
	require.Equal(t, domain.DecisionChallenge, challenged.Decision)

	completed, err := orch.ChallengeComplete(context.Background(), req.RequestID, "SUCCESS")
	require.NoError(t, err)
	assert.Equal(t, domain.DecisionApproved, completed.Decision)
	require.NotNil(t, completed.HoldID)
}

func TestOrchestrator_ChallengeComplete_Failure_Declines(t *testing.T) {
	db := database.SetupTestDB(t)
	defer db.Close()
	defer database.CleanupTestDB(t, db)
	setupTestCache(t)

	card := cleanCard(7009)
	card.IssuerCountry = "US"
	riskCfg := quietRiskConfig()
	riskCfg.ChallengeThreshold = 25

	req := cleanRequest("pan-hash-7009", decimal.NewFromInt(50))
	req.CountryCode = "FR"
	orch := newTestOrchestrator(t, db, map[string]*domain.CardDetails{"pan-hash-7009": card}, decimal.NewFromInt(10000), riskCfg)

	challenged, err := orch.Authorize(context.Background(), req, "idem-7009")
	require.NoError(t, err)
	require.Equal(t, domain.DecisionChallenge, challenged.Decision)

	completed, err := orch.ChallengeComplete(context.Background(), req.RequestID, "FAILURE")
	require.NoError(t, err)
	assert.Equal(t, domain.DecisionDeclined, completed.Decision)
	assert.Equal(t, domain.ReasonSecurityViolation, completed.ReasonCode)
}

func TestOrchestrator_ChallengeComplete_AfterExpiry_Fails(t *testing.T) {
	db := database.SetupTestDB(t)
	defer db.Close()
	defer database.CleanupTestDB(t, db)
	setupTestCache(t)

	card := cleanCard(7010)
	card.IssuerCountry = "US"
	riskCfg := quietRiskConfig()
	riskCfg.ChallengeThreshold = 25

	req := cleanRequest("pan-hash-7010", decimal.NewFromInt(50))
	req.CountryCode = "FR"
	orch := newTestOrchestrator(t, db, map[string]*domain.CardDetails{"pan-hash-7010": card}, decimal.NewFromInt(10000), riskCfg)

	challenged, err := orch.Authorize(context.Background(), req, "idem-7010")
	require.NoError(t, err)
	require.Equal(t, domain.DecisionChallenge, challenged.Decision)

	_, err = db.Pool().Exec(context.Background(), "UPDATE authorization_decisions SET expires_at = $1 WHERE decision_id = $2",
		time.Now().UTC().Add(-time.Hour), challenged.DecisionID)
	require.NoError(t, err)

	_, err = orch.ChallengeComplete(context.Background(), req.RequestID, "SUCCESS")
	assert.Error(t, err)
}

func TestOrchestrator_ReverseAuthorization_ReleasesHoldAndDeclines(t *testing.T) {
	db := database.SetupTestDB(t)
	defer db.Close()
	defer database.CleanupTestDB(t, db)
	setupTestCache(t)

	card := cleanCard(7011)
	req := cleanRequest("pan-hash-7011", decimal.NewFromInt(50))
	orch := newTestOrchestrator(t, db, map[string]*domain.CardDetails{"pan-hash-7011": card}, decimal.NewFromInt(10000), quietRiskConfig())

	approved, err := orch.Authorize(context.Background(), req, "idem-7011")
	require.NoError(t, err)
	require.Equal(t, domain.DecisionApproved, approved.Decision)

	reversed, err := orch.ReverseAuthorization(context.Background(), req.RequestID, "customer_dispute")
	require.NoError(t, err)
	assert.Equal(t, domain.DecisionDeclined, reversed.Decision)
	assert.Equal(t, domain.ReasonAuthorizationReversed, reversed.ReasonCode)

	holdRepo := database.NewHoldRepository(db)
	h, err := holdRepo.GetByID(context.Background(), *approved.HoldID)
	require.NoError(t, err)
	assert.Equal(t, domain.HoldReleased, h.Status)
}

func TestOrchestrator_ReverseAuthorization_NotApprovedDecision_Fails(t *testing.T) {
	db := database.SetupTestDB(t)
	defer db.Close()
	defer database.CleanupTestDB(t, db)
	setupTestCache(t)

	req := cleanRequest("unknown-pan-hash", decimal.NewFromInt(50))
	orch := newTestOrchestrator(t, db, map[string]*domain.CardDetails{}, decimal.NewFromInt(10000), quietRiskConfig())

	declined, err := orch.Authorize(context.Background(), req, "idem-7012")
	require.NoError(t, err)
	require.Equal(t, domain.DecisionDeclined, declined.Decision)

	_, err = orch.ReverseAuthorization(context.Background(), req.RequestID, "customer_dispute")
	assert.Error(t, err)
}
