package config

type AppConfig struct {
	Database struct {
		Host            string `toml:"host" env:"CBCAC_DB_HOST"`
		Port            string `toml:"port" env:"CBCAC_DB_PORT" env-default:"5432"`
		User            string `toml:"user" env:"CBCAC_DB_USER"`
		Password        string `toml:"password" env:"CBCAC_DB_PASSWORD"`
		DB              string `toml:"db" env:"CBCAC_DB_NAME"`
		SslMode         string `toml:"ssl_mode" env:"CBCAC_DB_SSL_MODE" env-default:"disable"`
		MaxConns        int    `toml:"max_conns" env:"CBCAC_DB_MAX_CONNS" env-default:"25"`
		MinConns        int    `toml:"min_conns" env:"CBCAC_DB_MIN_CONNS" env-default:"5"`
		MaxConnLifetime int    `toml:"max_conn_lifetime" env:"CBCAC_DB_MAX_CONN_LIFETIME" env-default:"5"`
		MaxConnIdleTime int    `toml:"max_conn_idle_time" env:"CBCAC_DB_MAX_CONN_IDLE_TIME" env-default:"1"`
	} `toml:"database"`

	Redis struct {
		Host     string `toml:"host" env:"CBCAC_REDIS_HOST"`
		Port     string `toml:"port" env:"CBCAC_REDIS_PORT" env-default:"6379"`
		Password string `toml:"password" env:"CBCAC_REDIS_PASSWORD"`
		DB       int    `toml:"db" env:"CBCAC_REDIS_DB" env-default:"0"`
	} `toml:"redis"`

	Limits struct {
		DefaultTransactionLimit string `toml:"default_transaction_limit" env:"CBCAC_LIMIT_DEFAULT_TXN" env-default:"2500.0000"`
		DefaultDailyLimit       string `toml:"default_daily_limit" env:"CBCAC_LIMIT_DEFAULT_DAILY" env-default:"5000.0000"`
		DefaultMonthlyLimit     string `toml:"default_monthly_limit" env:"CBCAC_LIMIT_DEFAULT_MONTHLY" env-default:"20000.0000"`

		// ChannelMultipliers scale the effective transaction/daily limit by
		// channel. Keys match domain.Channel values; channels absent from
		// this map default to 1.0.
		ChannelMultipliers map[string]string `toml:"channel_multipliers"`

		// ChannelCaps are absolute per-channel caps (e.g. CONTACTLESS
		// per-transaction, ATM daily, E_COMMERCE online) applied in
		// addition to the multiplier-adjusted limit.
		ChannelCaps map[string]string `toml:"channel_caps"`

		HoldTTLHours int `toml:"hold_ttl_hours" env:"CBCAC_HOLD_TTL_HOURS" env-default:"168"`
	} `toml:"limits"`

	Risk struct {
		ChallengeThreshold int `toml:"challenge_threshold" env:"CBCAC_RISK_CHALLENGE_THRESHOLD" env-default:"70"`
		DeclineThreshold   int `toml:"decline_threshold" env:"CBCAC_RISK_DECLINE_THRESHOLD" env-default:"90"`

		HighValueThresholdUSD string `toml:"high_value_threshold_usd" env-default:"1000.0000"`
		HighValueThresholdEUR string `toml:"high_value_threshold_eur" env-default:"900.0000"`
		HighValueThresholdGBP string `toml:"high_value_threshold_gbp" env-default:"800.0000"`
		HighValueThresholdOther string `toml:"high_value_threshold_other" env-default:"500.0000"`

		HighRiskCountries []string `toml:"high_risk_countries"`
		HighRiskMCCs      []string `toml:"high_risk_mccs"`
	} `toml:"risk"`

	Externals struct {
		CardDirectoryURL string `toml:"card_directory_url" env:"CBCAC_CARD_DIRECTORY_URL"`
		LedgerURL        string `toml:"ledger_url" env:"CBCAC_LEDGER_URL"`
		FXProviderURL    string `toml:"fx_provider_url" env:"CBCAC_FX_PROVIDER_URL"`
		FraudServiceURL  string `toml:"fraud_service_url" env:"CBCAC_FRAUD_SERVICE_URL"`
		TimeoutSeconds   int    `toml:"timeout_seconds" env:"CBCAC_EXTERNALS_TIMEOUT_SECONDS" env-default:"5"`
	} `toml:"externals"`

	Sweep struct {
		IntervalSeconds int `toml:"interval_seconds" env:"CBCAC_SWEEP_INTERVAL_SECONDS" env-default:"60"`
		BatchSize       int `toml:"batch_size" env:"CBCAC_SWEEP_BATCH_SIZE" env-default:"200"`
	} `toml:"sweep"`

	Crypto struct {
		FieldEncryptionKeyBase64 string `toml:"field_encryption_key" env:"CBCAC_FIELD_ENCRYPTION_KEY"`
	} `toml:"crypto"`
}
