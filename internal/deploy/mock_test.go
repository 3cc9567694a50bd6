package deploy

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/mock"
)

// anvil account #0 (DO NOT use outside tests)
const (
	testPrivateKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	testAddress    = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
	testChainID    = 31337
)

// MockChainClient is a mock implementation of ChainClient.
type MockChainClient struct {
	mock.Mock
}

func (m *MockChainClient) ChainID(ctx context.Context) (*big.Int, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*big.Int), args.Error(1)
}

func (m *MockChainClient) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	args := m.Called(ctx, account, blockNumber)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*big.Int), args.Error(1)
}

func (m *MockChainClient) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	args := m.Called(ctx, account)
	return args.Get(0).(uint64), args.Error(1)
}

func (m *MockChainClient) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*big.Int), args.Error(1)
}

func (m *MockChainClient) EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error) {
	args := m.Called(ctx, call)
	return args.Get(0).(uint64), args.Error(1)
}

func (m *MockChainClient) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	args := m.Called(ctx, tx)
	return args.Error(0)
}

func (m *MockChainClient) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	args := m.Called(ctx, txHash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.Receipt), args.Error(1)
}

func (m *MockChainClient) CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error) {
	args := m.Called(ctx, account, blockNumber)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockChainClient) Close() {
	m.Called()
}

var _ ChainClient = (*MockChainClient)(nil)

// MockDeployer is a mock implementation of Deployer.
type MockDeployer struct {
	mock.Mock
}

func (m *MockDeployer) Deploy(ctx context.Context, step string, artifact *ContractArtifact, args ...any) (*DeployedContract, error) {
	ret := m.Called(ctx, step, artifact, args)
	if ret.Get(0) == nil {
		return nil, ret.Error(1)
	}
	return ret.Get(0).(*DeployedContract), ret.Error(1)
}

var _ Deployer = (*MockDeployer)(nil)

// staticResolver serves artifacts from memory.
type staticResolver map[string]*ContractArtifact

func (r staticResolver) Resolve(_ context.Context, name string) (*ContractArtifact, error) {
	a, ok := r[name]
	if !ok {
		return nil, ErrArtifactNotFound
	}
	return a, nil
}

// memoryState is an in-memory StateStore that records every call.
type memoryState struct {
	mu        sync.Mutex
	completed map[string]*DeployedContract
	events    []string
	failErr   error
	failCtx   error
}

func newMemoryState() *memoryState {
	return &memoryState{completed: make(map[string]*DeployedContract)}
}

func (s *memoryState) CompletedSteps(context.Context) (map[string]*DeployedContract, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]*DeployedContract, len(s.completed))
	for k, v := range s.completed {
		out[k] = v
	}
	return out, nil
}

func (s *memoryState) StepStarted(_ context.Context, step string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, "started:"+step)
	return nil
}

func (s *memoryState) StepCompleted(_ context.Context, c *DeployedContract) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, "completed:"+c.Step)
	s.completed[c.Step] = c
	return nil
}

func (s *memoryState) StepFailed(ctx context.Context, step string, cause error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, "failed:"+step)
	s.failErr = cause
	s.failCtx = ctx.Err()
	return nil
}

// codeMap serves deployed bytecode by address; missing addresses have no code.
type codeMap map[common.Address][]byte

func (c codeMap) CodeAt(_ context.Context, account common.Address, _ *big.Int) ([]byte, error) {
	return c[account], nil
}

var _ CodeReader = codeMap(nil)

func (s *memoryState) Completed(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, "done")
	return nil
}
