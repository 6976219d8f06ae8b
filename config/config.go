package config

import (
	"errors"
	"fmt"
	"time"
)

type Configuration struct {
	// Server config
	Server struct {
		UseSSL   bool   `yaml:"ssl" envconfig:"SERVER_SSL"`
		Addr     string `yaml:"addr" envconfig:"SERVER_ADDR"`
		CertFile string `yaml:"cert_file"`
		KeyFile  string `yaml:"key_file"`
	} `yaml:"server"`

	Logging LoggingConfig `yaml:"logging"`

	Redis struct {
		Host string `yaml:"host" envconfig:"REDIS_HOST"`
		Port int    `yaml:"port" envconfig:"REDIS_PORT"`
	} `yaml:"redis"`

	Mongo struct {
		URI        string `yaml:"uri" envconfig:"MONGODB_URI"`
		Database   string `yaml:"database"`
		Collection string `yaml:"collection"`
	} `yaml:"mongo"`

	// Cardano indexer
	Blockfrost struct {
		BaseURL   string        `yaml:"base_url"`
		ProjectID string        `yaml:"project_id" envconfig:"BLOCKFROST_PROJECT_ID"`
		Timeout   time.Duration `yaml:"timeout"`
		RPS       float64       `yaml:"rps"`
		// bounded attempts while a submitted transaction is not indexed yet
		Attempts int `yaml:"attempts"`
	} `yaml:"blockfrost"`

	Solana struct {
		RPCList []string `yaml:"rpc_list"`
		// important private stuff, comma separated bytes or base58
		SecretKey string `yaml:"secret_key" envconfig:"SOLANA_SECRET_KEY"`
	} `yaml:"solana"`

	Bridge BridgeConfig `yaml:"bridge"`

	Payout PayoutConfig `yaml:"payout"`

	Oracle OracleConfig `yaml:"oracle"`

	AMQP struct {
		URL      string `yaml:"url" envconfig:"AMQP_URL"`
		Exchange string `yaml:"exchange"`
	} `yaml:"amqp"`
}

// LoggingConfig selects zap's production (json) or development encoder.
type LoggingConfig struct {
	Level  string `yaml:"level" envconfig:"LOG_LEVEL"`
	Format string `yaml:"format"`
	// stdout, a file path, or "daily" for logs/log_<date>.txt
	Output string `yaml:"output"`
}

// BridgeConfig describes the bridged asset on both chains.
type BridgeConfig struct {
	// application address on Cardano receiving bridged TRTL
	ReceivingAddress string `yaml:"receiving_address" envconfig:"ADA_BRIDGE_APP_ADDRESS"`
	// policy id + hex asset name
	CardanoAssetID     string `yaml:"cardano_asset_id"`
	CardanoDecimals    uint8  `yaml:"cardano_decimals"`
	CardanoCirculating uint64 `yaml:"cardano_circulating"`
	// fetch Cardano circulating supply from the indexer instead of the value above
	LiveCardanoSupply bool `yaml:"live_cardano_supply"`

	SolanaMint        string `yaml:"solana_mint"`
	SolanaDecimals    uint8  `yaml:"solana_decimals"`
	SolanaCirculating uint64 `yaml:"solana_circulating"`
}

type PayoutConfig struct {
	// cron schedule, empty disables in-process scheduling (external scheduler hits /bridge/cron)
	Schedule  string `yaml:"schedule" envconfig:"PAYOUT_SCHEDULE"`
	BatchSize int    `yaml:"batch_size"`
	// per record retry bound for account resolution and transfer submission
	MaxAttempts    int           `yaml:"max_attempts"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
	// confirmation polling
	ConfirmInterval    time.Duration `yaml:"confirm_interval"`
	ConfirmMaxAttempts int           `yaml:"confirm_max_attempts"`
	// a submitted payout whose signature is still unknown after this is parked for review
	SubmittedTimeout time.Duration `yaml:"submitted_timeout"`
	LockTTL          time.Duration `yaml:"lock_ttl"`
	PassTimeout      time.Duration `yaml:"pass_timeout"`
}

type OracleConfig struct {
	CoinGeckoURL   string        `yaml:"coingecko_url"`
	TapToolsURL    string        `yaml:"taptools_url"`
	TapToolsAPIKey string        `yaml:"taptools_api_key" envconfig:"TAPTOOLS_API_KEY"`
	KoiosURL       string        `yaml:"koios_url"`
	KoiosAPIKey    string        `yaml:"koios_api_key" envconfig:"KOIOS_API_KEY"`
	RaydiumURL     string        `yaml:"raydium_url"`
	CacheTTL       time.Duration `yaml:"cache_ttl"`
	// USD value an LP position must reach
	TargetUSD string `yaml:"target_usd"`
	// CoinGecko id used to value ADA-side pools
	BaseAsset string `yaml:"base_asset"`

	Pools struct {
		ADAV1 LPPool `yaml:"ada_v1"`
		ADAV2 LPPool `yaml:"ada_v2"`
		// Raydium pool id
		SOL string `yaml:"sol"`
	} `yaml:"pools"`
}

// LPPool identifies a Minswap pool on TapTools and its LP token on Koios.
type LPPool struct {
	OnchainID string `yaml:"onchain_id"`
	PolicyID  string `yaml:"policy_id"`
	TokenName string `yaml:"token_name"`
	// when set, LP supply is the quantity held by this address instead of total supply
	SupplyAddress string `yaml:"supply_address"`
}

var ErrMissingConfig = errors.New("missing required configuration")

func (c *Configuration) setDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Redis.Host == "" {
		c.Redis.Host = "localhost"
	}
	if c.Redis.Port == 0 {
		c.Redis.Port = 6379
	}
	if c.Mongo.Database == "" {
		c.Mongo.Database = "TRTL"
	}
	if c.Mongo.Collection == "" {
		c.Mongo.Collection = "trtl-bridge-to-sol"
	}
	if c.Blockfrost.BaseURL == "" {
		c.Blockfrost.BaseURL = "https://cardano-mainnet.blockfrost.io/api/v0"
	}
	if c.Blockfrost.Timeout == 0 {
		c.Blockfrost.Timeout = 30 * time.Second
	}
	if c.Blockfrost.RPS == 0 {
		c.Blockfrost.RPS = 10
	}
	if c.Blockfrost.Attempts == 0 {
		c.Blockfrost.Attempts = 3
	}
	if len(c.Solana.RPCList) == 0 {
		c.Solana.RPCList = []string{"https://api.mainnet-beta.solana.com"}
	}
	if c.Payout.BatchSize == 0 {
		c.Payout.BatchSize = 100
	}
	if c.Payout.MaxAttempts == 0 {
		c.Payout.MaxAttempts = 5
	}
	if c.Payout.InitialBackoff == 0 {
		c.Payout.InitialBackoff = time.Second
	}
	if c.Payout.MaxBackoff == 0 {
		c.Payout.MaxBackoff = 30 * time.Second
	}
	if c.Payout.ConfirmInterval == 0 {
		c.Payout.ConfirmInterval = time.Second
	}
	if c.Payout.ConfirmMaxAttempts == 0 {
		c.Payout.ConfirmMaxAttempts = 60
	}
	if c.Payout.SubmittedTimeout == 0 {
		c.Payout.SubmittedTimeout = 10 * time.Minute
	}
	if c.Payout.LockTTL == 0 {
		c.Payout.LockTTL = 10 * time.Minute
	}
	if c.Payout.PassTimeout == 0 {
		c.Payout.PassTimeout = 300 * time.Second
	}
	if c.Oracle.CoinGeckoURL == "" {
		c.Oracle.CoinGeckoURL = "https://api.coingecko.com/api/v3"
	}
	if c.Oracle.TapToolsURL == "" {
		c.Oracle.TapToolsURL = "https://openapi.taptools.io/api/v1"
	}
	if c.Oracle.KoiosURL == "" {
		c.Oracle.KoiosURL = "https://api.koios.rest/api/v1"
	}
	if c.Oracle.RaydiumURL == "" {
		c.Oracle.RaydiumURL = "https://api-v3.raydium.io"
	}
	if c.Oracle.CacheTTL == 0 {
		c.Oracle.CacheTTL = time.Minute
	}
	if c.Oracle.TargetUSD == "" {
		c.Oracle.TargetUSD = "95"
	}
	if c.Oracle.BaseAsset == "" {
		c.Oracle.BaseAsset = "cardano"
	}
	if c.AMQP.Exchange == "" {
		c.AMQP.Exchange = "bridge"
	}
}

// Validate reports the first missing value the bridge cannot run without.
func (c *Configuration) Validate() error {
	required := map[string]string{
		"mongo.uri":                c.Mongo.URI,
		"blockfrost.project_id":    c.Blockfrost.ProjectID,
		"solana.secret_key":        c.Solana.SecretKey,
		"bridge.receiving_address": c.Bridge.ReceivingAddress,
		"bridge.cardano_asset_id":  c.Bridge.CardanoAssetID,
		"bridge.solana_mint":       c.Bridge.SolanaMint,
	}
	// stable order for error messages
	for _, key := range []string{"mongo.uri", "blockfrost.project_id", "solana.secret_key", "bridge.receiving_address", "bridge.cardano_asset_id", "bridge.solana_mint"} {
		if required[key] == "" {
			return fmt.Errorf("%w: %s", ErrMissingConfig, key)
		}
	}

	if !c.Bridge.LiveCardanoSupply && c.Bridge.CardanoCirculating == 0 {
		return fmt.Errorf("%w: bridge.cardano_circulating", ErrMissingConfig)
	}
	if c.Bridge.SolanaCirculating == 0 {
		return fmt.Errorf("%w: bridge.solana_circulating", ErrMissingConfig)
	}
	if c.Payout.MaxAttempts < 1 {
		return fmt.Errorf("payout.max_attempts must be positive, got %d", c.Payout.MaxAttempts)
	}
	// the lease must outlive the pass holding it
	if c.Payout.LockTTL <= c.Payout.PassTimeout {
		return fmt.Errorf("payout.lock_ttl (%s) must exceed payout.pass_timeout (%s)", c.Payout.LockTTL, c.Payout.PassTimeout)
	}

	return nil
}
