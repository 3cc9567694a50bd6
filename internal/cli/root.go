// Package cli implements the fieldcoin-deploy command line.
package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/Bidon15/fieldcoin-deployer/internal/config"
)

// app carries state shared by all subcommands.
type app struct {
	v       *viper.Viper
	cfgFile string
	debug   bool
	jsonOut bool

	cfg    *config.Config
	logger *slog.Logger
	out    io.Writer
}

// NewRootCommand builds the fieldcoin-deploy command tree.
func NewRootCommand() *cobra.Command {
	a := &app{v: config.NewViper(), out: os.Stdout}

	root := &cobra.Command{
		Use:   "fieldcoin-deploy",
		Short: "Deploy the FieldCoin token and its crowdsale",
		Long: `Deploy FieldCoin and FieldCoinSale to an EVM chain.

FieldCoin is deployed first. FieldCoinSale is only deployed once FieldCoin has
been mined with a contract address, and receives that address as its token.

Configuration is read from fieldcoin.yaml (., ./config, /etc/fieldcoin),
FIELDCOIN_* environment variables, and flags, in increasing precedence.

Examples:
  # Preview the constructor arguments without touching a chain
  fieldcoin-deploy plan

  # Deploy to a local anvil node
  FIELDCOIN_NETWORK_PRIVATE_KEY=0x... fieldcoin-deploy deploy --rpc-url http://127.0.0.1:8545

  # Rehearse against a live chain without sending transactions
  fieldcoin-deploy deploy --dry-run --rpc-url https://sepolia.example.org --chain-id 11155111`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "config file (default: fieldcoin.yaml in . or ./config)")
	pf.BoolVar(&a.debug, "debug", false, "enable debug logging")
	pf.BoolVar(&a.jsonOut, "json", false, "print results as JSON")
	pf.String("rpc-url", "", "JSON-RPC endpoint of the target chain")
	pf.Int64("chain-id", 0, "expected chain ID")
	pf.String("artifacts", "", "directory containing compiled contract artifacts")
	pf.String("log-format", "", "log format: text or json")
	pf.String("log-level", "", "log level: debug, info, warn, error")

	a.bindFlags(pf, map[string]string{
		"rpc-url":    "network.rpc_url",
		"chain-id":   "network.chain_id",
		"artifacts":  "artifacts.dir",
		"log-format": "log.format",
		"log-level":  "log.level",
	})

	root.AddCommand(
		newDeployCmd(a),
		newPlanCmd(a),
		newStatusCmd(a),
		newMigrateCmd(a),
	)
	return root
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func (a *app) bindFlags(fs *pflag.FlagSet, keys map[string]string) {
	for flag, key := range keys {
		_ = a.v.BindPFlag(key, fs.Lookup(flag))
	}
}

// init loads configuration and builds the logger. Logs go to stderr so that
// stdout carries only command output.
func (a *app) init(cmd *cobra.Command) error {
	cfg, err := config.Load(a.v, a.cfgFile)
	if err != nil {
		return err
	}
	if a.debug {
		cfg.Log.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := newLogger(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.logger = logger
	a.out = cmd.OutOrStdout()
	slog.SetDefault(logger)
	return nil
}

func newLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	opts := &slog.HandlerOptions{Level: lvl}
	switch format {
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "text", "":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("invalid log format %q", format)
	}
}
