package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testYAML = `
server:
  addr: ":9090"
mongo:
  uri: "mongodb://localhost:27017"
blockfrost:
  project_id: "mainnetXXXX"
  timeout: 5s
solana:
  rpc_list: ["http://localhost:8899"]
bridge:
  receiving_address: "addr1qxyz"
  cardano_asset_id: "52162581184a457fad70470161179c5766f00237d4b67e0f1df1b4e65452544c"
  cardano_decimals: 0
  cardano_circulating: 168000000000
  solana_mint: "9TMuCmQqMBaW8JRPGJEAuetJt94JVruuKVY8r8HvtYKd"
  solana_decimals: 6
  solana_circulating: 60000000000
payout:
  max_attempts: 3
  confirm_interval: 2s
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_FileThenEnv(t *testing.T) {
	t.Setenv("SOLANA_SECRET_KEY", "1,2,3")
	t.Setenv("REDIS_HOST", "redis.internal")

	cfg, err := Load(writeConfig(t, testYAML))
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "redis.internal", cfg.Redis.Host)
	assert.Equal(t, 6379, cfg.Redis.Port)
	assert.Equal(t, "1,2,3", cfg.Solana.SecretKey)
	assert.Equal(t, 5*time.Second, cfg.Blockfrost.Timeout)
	assert.Equal(t, uint8(6), cfg.Bridge.SolanaDecimals)
	assert.Equal(t, uint64(168_000_000_000), cfg.Bridge.CardanoCirculating)
	assert.Equal(t, 3, cfg.Payout.MaxAttempts)
	assert.Equal(t, 2*time.Second, cfg.Payout.ConfirmInterval)
	assert.Equal(t, 60, cfg.Payout.ConfirmMaxAttempts)
	assert.Equal(t, "trtl-bridge-to-sol", cfg.Mongo.Collection)

	require.NoError(t, cfg.Validate())
}

func TestLoad_MissingFileUsesEnvironment(t *testing.T) {
	t.Setenv("MONGODB_URI", "mongodb://db:27017")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yml"))
	require.NoError(t, err)
	assert.Equal(t, "mongodb://db:27017", cfg.Mongo.URI)
	assert.Equal(t, ":8080", cfg.Server.Addr)
}

func TestLoad_BrokenYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "server: [unclosed"))
	require.Error(t, err)
}

func TestValidate_MissingSecret(t *testing.T) {
	cfg, err := Load(writeConfig(t, testYAML))
	require.NoError(t, err)
	cfg.Solana.SecretKey = ""

	err = cfg.Validate()
	require.ErrorIs(t, err, ErrMissingConfig)
	assert.Contains(t, err.Error(), "solana.secret_key")
}

func TestValidate_LiveSupplyNeedsNoStaticCardanoSupply(t *testing.T) {
	t.Setenv("SOLANA_SECRET_KEY", "1,2,3")
	cfg, err := Load(writeConfig(t, testYAML))
	require.NoError(t, err)

	cfg.Bridge.CardanoCirculating = 0
	require.ErrorIs(t, cfg.Validate(), ErrMissingConfig)

	cfg.Bridge.LiveCardanoSupply = true
	require.NoError(t, cfg.Validate())
}

func TestNewLogger_RejectsUnknownLevel(t *testing.T) {
	_, err := NewLogger(LoggingConfig{Level: "loud"})
	require.Error(t, err)

	logger, err := NewLogger(LoggingConfig{Level: "debug", Format: "json"})
	require.NoError(t, err)
	require.NotNil(t, logger)
}
