package config

import (
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bidon15/fieldcoin-deployer/internal/sale"
)

func loadDefaults(t *testing.T) *Config {
	t.Helper()
	cfg, err := Load(NewViper(), "")
	require.NoError(t, err)
	return cfg
}

func TestLoad_Defaults(t *testing.T) {
	cfg := loadDefaults(t)

	assert.Equal(t, "http://127.0.0.1:8545", cfg.Network.RPCURL)
	assert.Equal(t, int64(31337), cfg.Network.ChainID)
	assert.Equal(t, 10*time.Minute, cfg.Network.DeployTimeout)
	assert.Equal(t, "build/contracts", cfg.Artifacts.Dir)
	assert.False(t, cfg.Database.Enabled)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.NoError(t, cfg.Validate())

	params, err := cfg.Sale.Params()
	require.NoError(t, err)
	assert.Equal(t, sale.DefaultParams(), params)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("FIELDCOIN_NETWORK_CHAIN_ID", "5")
	t.Setenv("FIELDCOIN_NETWORK_PRIVATE_KEY", "0xabc")
	t.Setenv("FIELDCOIN_SALE_MAX_CONTRIBUTION", "340282366920938463463374607431768211456")

	cfg := loadDefaults(t)

	assert.Equal(t, int64(5), cfg.Network.ChainID)
	assert.Equal(t, "0xabc", cfg.Network.PrivateKey)

	params, err := cfg.Sale.Params()
	require.NoError(t, err)
	want, _ := new(big.Int).SetString("340282366920938463463374607431768211456", 10)
	assert.Equal(t, want, params.MaxContribution)
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
network:
  rpc_url: https://rpc.example.org
  chain_id: 11155111
artifacts:
  dir: out
  checksums:
    FieldCoin: sha256:abcd
sale:
  eth_usd: 25000
database:
  enabled: true
  host: db
`), 0o644))

	cfg, err := Load(NewViper(), path)
	require.NoError(t, err)

	assert.Equal(t, "https://rpc.example.org", cfg.Network.RPCURL)
	assert.Equal(t, int64(11155111), cfg.Network.ChainID)
	assert.Equal(t, "out", cfg.Artifacts.Dir)
	assert.Equal(t, "sha256:abcd", cfg.Artifacts.Checksums["fieldcoin"])
	assert.True(t, cfg.Database.Enabled)
	assert.Equal(t, "db", cfg.Database.Host)

	params, err := cfg.Sale.Params()
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(25000), params.EthUSD)
	assert.Equal(t, sale.DefaultOpeningTime, params.OpeningTime)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(NewViper(), filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestSaleConfig_Params(t *testing.T) {
	base := SaleConfig{
		OpeningTime:     sale.DefaultOpeningTime,
		ClosingTime:     sale.DefaultClosingTime,
		Wallet:          sale.DefaultWallet,
		EthUSD:          "10000",
		MinContribution: "10000",
		MaxContribution: "100000000",
	}

	tests := []struct {
		name    string
		mutate  func(*SaleConfig)
		wantErr error
	}{
		{name: "valid", mutate: func(*SaleConfig) {}},
		{name: "not a number", mutate: func(c *SaleConfig) { c.EthUSD = "ten" }},
		{name: "hex not accepted", mutate: func(c *SaleConfig) { c.MinContribution = "0x10" }},
		{name: "window inverted", mutate: func(c *SaleConfig) { c.ClosingTime = c.OpeningTime - 1 }, wantErr: sale.ErrInvalidSaleWindow},
		{name: "bounds inverted", mutate: func(c *SaleConfig) { c.MinContribution = "100000001" }, wantErr: sale.ErrInvalidContributionBounds},
		{name: "bad wallet", mutate: func(c *SaleConfig) { c.Wallet = "0x1234" }, wantErr: sale.ErrInvalidWallet},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base
			tt.mutate(&c)
			_, err := c.Params()
			switch {
			case tt.name == "valid":
				assert.NoError(t, err)
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			default:
				assert.Error(t, err)
			}
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	cfg := &Config{
		Network:   NetworkConfig{ChainID: 0, DeployTimeout: 0},
		Artifacts: ArtifactsConfig{},
		Log:       LogConfig{Format: "xml"},
	}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chain_id")
	assert.Contains(t, err.Error(), "artifacts.dir")
	assert.Contains(t, err.Error(), "deploy_timeout")
	assert.Contains(t, err.Error(), "log.format")
}

func TestConfig_Validate_EnabledBackends(t *testing.T) {
	cfg := loadDefaults(t)
	cfg.Redis.Enabled = false
	cfg.Redis.Host = ""
	assert.NoError(t, cfg.Validate())

	cfg.Redis.Enabled = true
	cfg.Database.Enabled = true
	cfg.Database.Host = ""
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis.host")
	assert.Contains(t, err.Error(), "database.host")
}

func TestConfig_Validate_LockTTLCoversDeployTimeout(t *testing.T) {
	cfg := loadDefaults(t)
	cfg.Network.DeployTimeout = 10 * time.Minute
	cfg.Redis.LockTTL = 5 * time.Minute

	assert.NoError(t, cfg.Validate(), "short TTL is ignored while redis is disabled")

	cfg.Redis.Enabled = true
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis.lock_ttl")
	assert.Contains(t, err.Error(), "network.deploy_timeout")

	cfg.Redis.LockTTL = cfg.Network.DeployTimeout
	assert.NoError(t, cfg.Validate())
}

func TestConfig_Validate_RPCURL(t *testing.T) {
	cfg := loadDefaults(t)
	cfg.Network.RPCURL = "not a url"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "network.rpc_url")
}

func TestDatabaseConfig(t *testing.T) {
	c := DatabaseConfig{Host: "db", Port: 5432, User: "u", Password: "p@ss", Database: "fc", SSLMode: "disable"}

	assert.Equal(t, "host=db port=5432 user=u password=p@ss dbname=fc sslmode=disable", c.DSN())
	assert.Equal(t, "postgres://u:p%40ss@db:5432/fc?sslmode=disable", c.URL())
}

func TestNetworkConfig_MinGasPrice(t *testing.T) {
	assert.Nil(t, NetworkConfig{}.MinGasPrice())
	assert.Equal(t, big.NewInt(2_000_000_000), NetworkConfig{MinGasPriceGwei: 2}.MinGasPrice())
}

func TestRedisConfig_Addr(t *testing.T) {
	assert.Equal(t, "redis:6380", RedisConfig{Host: "redis", Port: 6380}.Addr())
}
