package deploy

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// Default gas parameters
const (
	DefaultGasLimit              = 6_000_000
	DefaultGasLimitBufferPercent = 20
	DefaultGasPriceBoostPercent  = 20
)

// DeployedContract is the outcome of one deployment step.
type DeployedContract struct {
	Step        string         `json:"step"`
	Contract    string         `json:"contract"`
	Address     common.Address `json:"address"`
	TxHash      common.Hash    `json:"txHash"`
	BlockNumber uint64         `json:"blockNumber"`
	GasUsed     uint64         `json:"gasUsed"`
	Simulated   bool           `json:"simulated,omitempty"`
}

// Deployer deploys a single contract and reports where it landed.
type Deployer interface {
	Deploy(ctx context.Context, step string, artifact *ContractArtifact, args ...any) (*DeployedContract, error)
}

// DeployerConfig tunes gas pricing for ContractDeployer.
type DeployerConfig struct {
	// GasPriceBoostPercent is added on top of eth_gasPrice.
	GasPriceBoostPercent int64
	// MinGasPrice is the floor for the boosted gas price (nil for none).
	MinGasPrice *big.Int
	// DefaultGasLimit is used when gas estimation fails.
	DefaultGasLimit uint64
	// GasLimitBufferPercent is added to the estimated gas.
	GasLimitBufferPercent uint64
}

// ContractDeployer sends contract creation transactions and waits for them
// to be mined.
type ContractDeployer struct {
	client ChainClient
	signer TransactionSigner
	config DeployerConfig
	logger *slog.Logger
}

// NewContractDeployer creates a new contract deployer.
func NewContractDeployer(client ChainClient, signer TransactionSigner, config DeployerConfig, logger *slog.Logger) *ContractDeployer {
	if logger == nil {
		logger = slog.Default()
	}
	if config.DefaultGasLimit == 0 {
		config.DefaultGasLimit = DefaultGasLimit
	}
	if config.GasLimitBufferPercent == 0 {
		config.GasLimitBufferPercent = DefaultGasLimitBufferPercent
	}
	if config.GasPriceBoostPercent < 0 {
		config.GasPriceBoostPercent = 0
	}
	return &ContractDeployer{
		client: client,
		signer: signer,
		config: config,
		logger: logger,
	}
}

// Preflight verifies the RPC endpoint serves the signer's chain and that the
// deployer can pay for gas. With requireBalance unset an empty balance is
// only logged.
func (d *ContractDeployer) Preflight(ctx context.Context, requireBalance bool) error {
	chainID, err := d.client.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("get chain ID: %w", err)
	}
	if chainID.Cmp(d.signer.ChainID()) != 0 {
		return fmt.Errorf("%w: expected %s, got %s", ErrChainIDMismatch, d.signer.ChainID(), chainID)
	}

	balance, err := d.client.BalanceAt(ctx, d.signer.Address(), nil)
	if err != nil {
		return fmt.Errorf("get balance: %w", err)
	}
	d.logger.Info("deployer balance",
		slog.String("address", d.signer.Address().Hex()),
		slog.String("balance_wei", balance.String()),
	)
	if balance.Sign() == 0 {
		if !requireBalance {
			d.logger.Warn("deployer has no balance", slog.String("address", d.signer.Address().Hex()))
			return nil
		}
		return fmt.Errorf("%w: %s", ErrInsufficientBalance, d.signer.Address().Hex())
	}
	return nil
}

// Deploy deploys a single contract and waits for confirmation.
func (d *ContractDeployer) Deploy(ctx context.Context, step string, artifact *ContractArtifact, args ...any) (*DeployedContract, error) {
	data, err := artifact.CreationData(args...)
	if err != nil {
		return nil, fmt.Errorf("build creation data: %w", err)
	}

	from := d.signer.Address()

	nonce, err := d.client.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("get nonce: %w", err)
	}

	gasPrice, err := d.gasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("get gas price: %w", err)
	}

	gasLimit := d.gasLimit(ctx, from, gasPrice, data)

	tx := types.NewContractCreation(nonce, big.NewInt(0), gasLimit, gasPrice, data)
	signedTx, err := d.signer.SignTransaction(ctx, tx)
	if err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}

	expected := crypto.CreateAddress(from, nonce)

	d.logger.Info("sending contract creation",
		slog.String("step", step),
		slog.String("contract", artifact.ContractName),
		slog.Uint64("nonce", nonce),
		slog.Uint64("gas_limit", gasLimit),
		slog.String("gas_price", gasPrice.String()),
		slog.String("expected_address", expected.Hex()),
	)

	if err := d.client.SendTransaction(ctx, signedTx); err != nil {
		return nil, fmt.Errorf("send transaction: %w", err)
	}

	d.logger.Info("transaction submitted, waiting for confirmation",
		slog.String("tx_hash", signedTx.Hash().Hex()),
	)

	receipt, err := bind.WaitMined(ctx, d.client, signedTx)
	if err != nil {
		return nil, fmt.Errorf("wait for receipt of %s: %w", signedTx.Hash().Hex(), err)
	}

	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, fmt.Errorf("%w: tx %s in block %d", ErrDeploymentReverted, signedTx.Hash().Hex(), receiptBlock(receipt))
	}

	addr := receipt.ContractAddress
	if addr == (common.Address{}) {
		return nil, fmt.Errorf("%w: receipt for %s has no contract address", ErrNoContractAddress, signedTx.Hash().Hex())
	}
	if addr != expected {
		d.logger.Warn("contract address differs from nonce-derived address",
			slog.String("expected", expected.Hex()),
			slog.String("actual", addr.Hex()),
		)
	}

	code, err := d.client.CodeAt(ctx, addr, nil)
	if err != nil {
		return nil, fmt.Errorf("get code at %s: %w", addr.Hex(), err)
	}
	if len(code) == 0 {
		return nil, fmt.Errorf("%w: no code at %s", ErrNoContractAddress, addr.Hex())
	}

	d.logger.Info("contract deployed",
		slog.String("step", step),
		slog.String("address", addr.Hex()),
		slog.Uint64("block_number", receiptBlock(receipt)),
		slog.Uint64("gas_used", receipt.GasUsed),
	)

	return &DeployedContract{
		Step:        step,
		Contract:    artifact.ContractName,
		Address:     addr,
		TxHash:      signedTx.Hash(),
		BlockNumber: receiptBlock(receipt),
		GasUsed:     receipt.GasUsed,
	}, nil
}

func receiptBlock(r *types.Receipt) uint64 {
	if r.BlockNumber == nil {
		return 0
	}
	return r.BlockNumber.Uint64()
}

// gasPrice returns the boosted gas price, floored at MinGasPrice.
func (d *ContractDeployer) gasPrice(ctx context.Context) (*big.Int, error) {
	price, err := d.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, err
	}

	boosted := new(big.Int).Mul(price, big.NewInt(100+d.config.GasPriceBoostPercent))
	boosted.Div(boosted, big.NewInt(100))

	if d.config.MinGasPrice != nil && boosted.Cmp(d.config.MinGasPrice) < 0 {
		boosted = new(big.Int).Set(d.config.MinGasPrice)
	}
	return boosted, nil
}

// gasLimit estimates creation gas with a buffer, falling back to the default.
func (d *ContractDeployer) gasLimit(ctx context.Context, from common.Address, gasPrice *big.Int, data []byte) uint64 {
	estimated, err := d.client.EstimateGas(ctx, ethereum.CallMsg{
		From:     from,
		To:       nil,
		GasPrice: gasPrice,
		Value:    big.NewInt(0),
		Data:     data,
	})
	if err != nil {
		d.logger.Warn("gas estimation failed, using default",
			slog.Uint64("gas_limit", d.config.DefaultGasLimit),
			slog.String("error", err.Error()),
		)
		return d.config.DefaultGasLimit
	}
	return estimated * (100 + d.config.GasLimitBufferPercent) / 100
}

// SimulatedCall records one contract creation made by a SimulatedDeployer.
type SimulatedCall struct {
	Step     string
	Contract string
	Args     []any
	Address  common.Address
	DataSize int
}

// SimulatedDeployer encodes creation data and assigns nonce-derived addresses
// without sending anything to a chain.
type SimulatedDeployer struct {
	from   common.Address
	nonce  uint64
	calls  []SimulatedCall
	logger *slog.Logger
}

// NewSimulatedDeployer creates a dry-run deployer for the given sender and
// starting nonce.
func NewSimulatedDeployer(from common.Address, nonce uint64, logger *slog.Logger) *SimulatedDeployer {
	if logger == nil {
		logger = slog.Default()
	}
	return &SimulatedDeployer{from: from, nonce: nonce, logger: logger}
}

// Deploy validates the creation data and returns the address the contract
// would receive.
func (s *SimulatedDeployer) Deploy(ctx context.Context, step string, artifact *ContractArtifact, args ...any) (*DeployedContract, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := artifact.CreationData(args...)
	if err != nil {
		return nil, fmt.Errorf("build creation data: %w", err)
	}

	addr := crypto.CreateAddress(s.from, s.nonce)
	s.nonce++

	s.calls = append(s.calls, SimulatedCall{
		Step:     step,
		Contract: artifact.ContractName,
		Args:     args,
		Address:  addr,
		DataSize: len(data),
	})

	s.logger.Info("simulated contract creation",
		slog.String("step", step),
		slog.String("address", addr.Hex()),
		slog.Int("data_bytes", len(data)),
	)

	return &DeployedContract{
		Step:      step,
		Contract:  artifact.ContractName,
		Address:   addr,
		Simulated: true,
	}, nil
}

// Calls returns the simulated creations in order.
func (s *SimulatedDeployer) Calls() []SimulatedCall {
	return s.calls
}

var (
	_ Deployer = (*ContractDeployer)(nil)
	_ Deployer = (*SimulatedDeployer)(nil)
)
