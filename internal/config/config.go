// Package config provides configuration loading for the FieldCoin deployer.
package config

import (
	"errors"
	"fmt"
	"math/big"
	"net/url"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/Bidon15/fieldcoin-deployer/internal/sale"
)

// EnvPrefix is the prefix for environment variable overrides, e.g.
// FIELDCOIN_NETWORK_RPC_URL.
const EnvPrefix = "FIELDCOIN"

// Config holds all configuration for the deployer.
type Config struct {
	Network   NetworkConfig   `mapstructure:"network"`
	Artifacts ArtifactsConfig `mapstructure:"artifacts"`
	Sale      SaleConfig      `mapstructure:"sale"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Log       LogConfig       `mapstructure:"log"`
}

// NetworkConfig holds chain connection and gas settings.
type NetworkConfig struct {
	RPCURL               string        `mapstructure:"rpc_url" validate:"required,url"`
	ChainID              int64         `mapstructure:"chain_id" validate:"gt=0"`
	PrivateKey           string        `mapstructure:"private_key"`
	GasPriceBoostPercent int64         `mapstructure:"gas_price_boost_percent" validate:"gte=0,lte=500"`
	MinGasPriceGwei      uint64        `mapstructure:"min_gas_price_gwei"`
	DefaultGasLimit      uint64        `mapstructure:"default_gas_limit" validate:"gte=21000"`
	DeployTimeout        time.Duration `mapstructure:"deploy_timeout" validate:"gt=0"`
	DialAttempts         uint          `mapstructure:"dial_attempts" validate:"gte=1"`
	DialDelay            time.Duration `mapstructure:"dial_delay" validate:"gte=0"`
}

// MinGasPrice returns the gas price floor in wei, or nil when unset.
func (c NetworkConfig) MinGasPrice() *big.Int {
	if c.MinGasPriceGwei == 0 {
		return nil
	}
	return new(big.Int).Mul(new(big.Int).SetUint64(c.MinGasPriceGwei), big.NewInt(1_000_000_000))
}

// ArtifactsConfig locates compiled contract artifacts.
type ArtifactsConfig struct {
	Dir string `mapstructure:"dir" validate:"required"`
	// Checksums maps artifact name to "sha256:<hex>". Keys are matched case-insensitively.
	Checksums map[string]string `mapstructure:"checksums"`
}

// SaleConfig holds the FieldCoinSale constructor parameters. Token amounts
// are decimal strings so values beyond int64 survive YAML and env parsing.
type SaleConfig struct {
	OpeningTime     uint64 `mapstructure:"opening_time"`
	ClosingTime     uint64 `mapstructure:"closing_time"`
	Wallet          string `mapstructure:"wallet"`
	EthUSD          string `mapstructure:"eth_usd"`
	MinContribution string `mapstructure:"min_contribution"`
	MaxContribution string `mapstructure:"max_contribution"`
}

// Params converts the config section into validated sale parameters.
func (c SaleConfig) Params() (sale.Params, error) {
	var errs []error
	parse := func(field, s string) *big.Int {
		n, ok := new(big.Int).SetString(strings.TrimSpace(s), 10)
		if !ok {
			errs = append(errs, fmt.Errorf("sale.%s: %q is not a decimal integer", field, s))
			return nil
		}
		return n
	}

	p := sale.Params{
		OpeningTime:     c.OpeningTime,
		ClosingTime:     c.ClosingTime,
		Wallet:          strings.TrimSpace(c.Wallet),
		EthUSD:          parse("eth_usd", c.EthUSD),
		MinContribution: parse("min_contribution", c.MinContribution),
		MaxContribution: parse("max_contribution", c.MaxContribution),
	}
	if len(errs) > 0 {
		return sale.Params{}, errors.Join(errs...)
	}
	if err := p.Validate(); err != nil {
		return sale.Params{}, err
	}
	return p, nil
}

// DatabaseConfig holds PostgreSQL configuration. Deployment records are
// only kept when Enabled is set.
type DatabaseConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Host            string        `mapstructure:"host" validate:"required_if=Enabled true"`
	Port            int           `mapstructure:"port" validate:"gte=0,lte=65535"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DSN returns the PostgreSQL connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// URL returns the postgres:// URL used by migrations.
func (c DatabaseConfig) URL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.Database,
		RawQuery: "sslmode=" + url.QueryEscape(c.SSLMode),
	}
	return u.String()
}

// RedisConfig holds Redis configuration for the deploy lock.
type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Host     string        `mapstructure:"host" validate:"required_if=Enabled true"`
	Port     int           `mapstructure:"port" validate:"gte=0,lte=65535"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db" validate:"gte=0"`
	LockTTL  time.Duration `mapstructure:"lock_ttl" validate:"required_if=Enabled true"`
}

// Addr returns the Redis address string.
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr" validate:"required_if=Enabled true"`
}

// LogConfig controls log output.
type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error DEBUG INFO WARN ERROR"`
	Format string `mapstructure:"format" validate:"oneof=text json"`
}

var validate = newValidator()

// newValidator reports fields by their config key rather than Go name.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("mapstructure"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	v.RegisterStructValidation(lockOutlivesDeploy, Config{})
	return v
}

// lockOutlivesDeploy keeps the deploy lock held for the whole run.
func lockOutlivesDeploy(sl validator.StructLevel) {
	c := sl.Current().Interface().(Config)
	if c.Redis.Enabled && c.Redis.LockTTL < c.Network.DeployTimeout {
		sl.ReportError(c.Redis.LockTTL, "redis.lock_ttl", "LockTTL", "gtefield", "network.deploy_timeout")
	}
}

// Validate checks settings every command needs. Sale parameters are
// validated separately by SaleConfig.Params.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	errs := make([]error, 0, len(verrs))
	for _, fe := range verrs {
		key := strings.TrimPrefix(fe.Namespace(), "Config.")
		if fe.Param() != "" {
			errs = append(errs, fmt.Errorf("%s: failed %s=%s (got %v)", key, fe.Tag(), fe.Param(), fe.Value()))
		} else {
			errs = append(errs, fmt.Errorf("%s: failed %s", key, fe.Tag()))
		}
	}
	return errors.Join(errs...)
}

// NewViper returns a viper instance with defaults and environment overrides
// applied. Callers may bind flags before calling Load.
func NewViper() *viper.Viper {
	v := viper.New()

	v.SetConfigName("fieldcoin")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/fieldcoin")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Nested keys without defaults are invisible to AutomaticEnv.
	_ = v.BindEnv("network.private_key", EnvPrefix+"_NETWORK_PRIVATE_KEY")
	_ = v.BindEnv("database.password", EnvPrefix+"_DATABASE_PASSWORD")
	_ = v.BindEnv("redis.password", EnvPrefix+"_REDIS_PASSWORD")

	return v
}

// Load reads the config file (optional) and unmarshals v into a Config.
// An explicit configFile must exist.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is OK, we use defaults and env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all settings.
func setDefaults(v *viper.Viper) {
	// Network defaults (local anvil / ganache)
	v.SetDefault("network.rpc_url", "http://127.0.0.1:8545")
	v.SetDefault("network.chain_id", 31337)
	v.SetDefault("network.gas_price_boost_percent", 20)
	v.SetDefault("network.min_gas_price_gwei", 0)
	v.SetDefault("network.default_gas_limit", 6_000_000)
	v.SetDefault("network.deploy_timeout", "10m")
	v.SetDefault("network.dial_attempts", 5)
	v.SetDefault("network.dial_delay", "1s")

	// Artifacts (truffle compile output)
	v.SetDefault("artifacts.dir", "build/contracts")

	// Sale defaults
	v.SetDefault("sale.opening_time", sale.DefaultOpeningTime)
	v.SetDefault("sale.closing_time", sale.DefaultClosingTime)
	v.SetDefault("sale.wallet", sale.DefaultWallet)
	v.SetDefault("sale.eth_usd", fmt.Sprint(sale.DefaultEthUSD))
	v.SetDefault("sale.min_contribution", fmt.Sprint(sale.DefaultMinContrib))
	v.SetDefault("sale.max_contribution", fmt.Sprint(sale.DefaultMaxContrib))

	// Database defaults
	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "fieldcoin")
	v.SetDefault("database.password", "fieldcoin")
	v.SetDefault("database.database", "fieldcoin")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 5)
	v.SetDefault("database.max_idle_conns", 1)
	v.SetDefault("database.conn_max_lifetime", "5m")

	// Redis defaults
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.lock_ttl", "15m")

	// Metrics defaults
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.addr", ":9102")

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}
