package deploy

import (
	"context"
	"log/slog"
	"math/big"
	"time"

	"github.com/avast/retry-go"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// ChainClient defines the chain operations needed to deploy contracts.
// It also satisfies bind.DeployBackend.
type ChainClient interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
	Close()
}

var _ ChainClient = (*ethclient.Client)(nil)

// EthClientFactory creates chain clients using go-ethereum's ethclient.
type EthClientFactory struct {
	attempts uint
	delay    time.Duration
	logger   *slog.Logger
}

// NewEthClientFactory creates a new EthClientFactory. Dialing is retried
// with exponential backoff for the given number of attempts.
func NewEthClientFactory(attempts uint, delay time.Duration, logger *slog.Logger) *EthClientFactory {
	if attempts == 0 {
		attempts = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &EthClientFactory{attempts: attempts, delay: delay, logger: logger}
}

// Dial connects to an Ethereum RPC endpoint and confirms it answers eth_chainId.
func (f *EthClientFactory) Dial(ctx context.Context, rpcURL string) (ChainClient, error) {
	var client *ethclient.Client

	err := retry.Do(
		func() error {
			c, err := ethclient.DialContext(ctx, rpcURL)
			if err != nil {
				return err
			}
			if _, err := c.ChainID(ctx); err != nil {
				c.Close()
				return err
			}
			client = c
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(f.attempts),
		retry.Delay(f.delay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			f.logger.Warn("rpc dial failed, retrying",
				slog.String("rpc_url", rpcURL),
				slog.Uint64("attempt", uint64(n+1)),
				slog.String("error", err.Error()),
			)
		}),
	)
	if err != nil {
		return nil, err
	}
	return client, nil
}
