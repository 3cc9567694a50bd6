package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Bidon15/fieldcoin-deployer/internal/database"
	"github.com/Bidon15/fieldcoin-deployer/internal/deploy"
	"github.com/Bidon15/fieldcoin-deployer/internal/fieldcoin"
	"github.com/Bidon15/fieldcoin-deployer/internal/lock"
	"github.com/Bidon15/fieldcoin-deployer/internal/metrics"
	"github.com/Bidon15/fieldcoin-deployer/internal/repository"
	"github.com/Bidon15/fieldcoin-deployer/internal/sale"
	"github.com/Bidon15/fieldcoin-deployer/internal/state"
)

// ErrMissingPrivateKey is returned when deploy runs without a signing key.
var ErrMissingPrivateKey = errors.New("network.private_key is required (set FIELDCOIN_NETWORK_PRIVATE_KEY)")

type deployOptions struct {
	dryRun bool
	fresh  bool
}

func newDeployCmd(a *app) *cobra.Command {
	var opts deployOptions

	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Deploy FieldCoin, then FieldCoinSale",
		Long: `Deploy FieldCoin, then FieldCoinSale with FieldCoin's address as its token.

If database persistence is enabled, progress is recorded after every step and
a rerun with the same parameters resumes where the last run stopped. Use
--fresh to start over.

With --dry-run the chain is only read: the pending nonce is used to predict
contract addresses and constructor arguments are encoded, but nothing is sent.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runDeploy(cmd.Context(), opts)
		},
	}

	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "simulate the deployment without sending transactions")
	cmd.Flags().BoolVar(&opts.fresh, "fresh", false, "ignore previous runs and start a new deployment")
	cmd.Flags().Bool("metrics", false, "serve Prometheus metrics while deploying")
	cmd.Flags().String("metrics-addr", "", "metrics listen address")
	a.bindFlags(cmd.Flags(), map[string]string{
		"metrics":      "metrics.enabled",
		"metrics-addr": "metrics.addr",
	})

	return cmd
}

func (a *app) runDeploy(parent context.Context, opts deployOptions) error {
	cfg := a.cfg
	logger := a.logger

	params, err := a.saleParams()
	if err != nil {
		return err
	}
	plan, err := fieldcoin.NewPlan(params)
	if err != nil {
		return err
	}

	if cfg.Network.PrivateKey == "" {
		return ErrMissingPrivateKey
	}
	signer, err := deploy.NewLocalSigner(cfg.Network.PrivateKey, cfg.Network.ChainID)
	if err != nil {
		return err
	}

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, cfg.Network.DeployTimeout)
	defer cancel()

	if cfg.Metrics.Enabled {
		go func() {
			if err := metrics.Serve(ctx, cfg.Metrics.Addr, logger); err != nil {
				logger.Error("metrics server stopped", slog.String("error", err.Error()))
			}
		}()
	}

	client, err := deploy.NewEthClientFactory(cfg.Network.DialAttempts, cfg.Network.DialDelay, logger).
		Dial(ctx, cfg.Network.RPCURL)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", cfg.Network.RPCURL, err)
	}
	defer client.Close()

	contractDeployer := deploy.NewContractDeployer(client, signer, deploy.DeployerConfig{
		GasPriceBoostPercent: cfg.Network.GasPriceBoostPercent,
		MinGasPrice:          cfg.Network.MinGasPrice(),
		DefaultGasLimit:      cfg.Network.DefaultGasLimit,
	}, logger)
	if err := contractDeployer.Preflight(ctx, !opts.dryRun); err != nil {
		return err
	}

	release, err := a.acquireLock(ctx, signer)
	if err != nil {
		return err
	}
	defer func() {
		if err := release(context.Background()); err != nil {
			logger.Warn("failed to release deploy lock", slog.String("error", err.Error()))
		}
	}()

	var deployer deploy.Deployer = contractDeployer
	if opts.dryRun {
		nonce, err := client.PendingNonceAt(ctx, signer.Address())
		if err != nil {
			return fmt.Errorf("get nonce: %w", err)
		}
		deployer = deploy.NewSimulatedDeployer(signer.Address(), nonce, logger)
		logger.Info("dry run: no transactions will be sent", slog.Uint64("nonce", nonce))
	}

	var store deploy.StateStore
	if cfg.Database.Enabled {
		pg, err := database.NewPostgres(ctx, cfg.Database)
		if err != nil {
			return err
		}
		defer pg.Close()

		configJSON, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("marshal sale parameters: %w", err)
		}
		w, err := state.Open(ctx, repository.NewPostgresRepository(pg.Pool()), state.Options{
			Plan:      plan.Name,
			ChainID:   cfg.Network.ChainID,
			Deployer:  signer.Address(),
			Config:    configJSON,
			Fresh:     opts.fresh,
			Simulated: opts.dryRun,
		}, logger)
		if err != nil {
			return err
		}
		store = w
	}

	resolver := deploy.NewDirectoryResolver(cfg.Artifacts.Dir, cfg.Artifacts.Checksums)
	results, runErr := deploy.NewExecutor(resolver, deployer, store, logger).
		WithCodeCheck(client).
		Run(ctx, plan)

	if results != nil && results.Len() > 0 {
		if err := a.printResults(results); err != nil {
			return err
		}
	}
	return runErr
}

// saleParams reads and validates the sale section, warning on a wallet
// whose mixed-case spelling fails its checksum.
func (a *app) saleParams() (sale.Params, error) {
	params, err := a.cfg.Sale.Params()
	if err != nil {
		return sale.Params{}, fmt.Errorf("invalid sale parameters: %w", err)
	}
	if !params.WalletChecksumValid() {
		a.logger.Warn("sale wallet does not match its EIP-55 checksum",
			slog.String("wallet", params.Wallet),
			slog.String("checksummed", params.WalletAddress().Hex()),
		)
	}
	return params, nil
}

func (a *app) acquireLock(ctx context.Context, signer deploy.TransactionSigner) (lock.ReleaseFunc, error) {
	var locker lock.Locker = lock.NopLocker{}
	if a.cfg.Redis.Enabled {
		rc, err := database.NewRedis(ctx, a.cfg.Redis)
		if err != nil {
			return nil, err
		}
		locker = lock.NewRedisLocker(rc)
		release, err := a.acquire(ctx, locker, signer)
		if err != nil {
			_ = rc.Close()
			return nil, err
		}
		return func(ctx context.Context) error {
			defer rc.Close()
			return release(ctx)
		}, nil
	}
	return a.acquire(ctx, locker, signer)
}

func (a *app) acquire(ctx context.Context, locker lock.Locker, signer deploy.TransactionSigner) (lock.ReleaseFunc, error) {
	key := lock.DeployKey(signer.ChainID(), signer.Address())
	release, err := locker.Acquire(ctx, key, a.cfg.Redis.LockTTL)
	if errors.Is(err, lock.ErrLocked) {
		return nil, fmt.Errorf("another deployment is using this account: %w", err)
	}
	if err != nil {
		return nil, fmt.Errorf("acquire deploy lock: %w", err)
	}
	a.logger.Debug("acquired deploy lock", slog.String("key", key))
	return release, nil
}

func (a *app) printResults(results *deploy.Results) error {
	if a.jsonOut {
		return printJSON(a.out, results.Contracts())
	}
	return printContracts(a.out, results.Contracts())
}
