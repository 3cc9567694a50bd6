// Package deploy deploys compiled contracts to an EVM chain in dependency order.
package deploy

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ContractArtifact represents a compiled Solidity contract with ABI and bytecode.
type ContractArtifact struct {
	ABI          json.RawMessage `json:"abi"`
	Bytecode     Bytecode        `json:"bytecode"`
	ContractName string          `json:"contractName,omitempty"`
}

// Bytecode contains the contract creation bytecode.
// It handles both formats:
// - Simple string: "0x608060..." (Truffle, Hardhat)
// - Object with "object" field: {"object": "0x608060..."} (Foundry)
type Bytecode struct {
	hex string
}

// UnmarshalJSON handles both string and object bytecode formats.
func (b *Bytecode) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		b.hex = s
		return nil
	}

	var obj struct {
		Object string `json:"object"`
	}
	if err := json.Unmarshal(data, &obj); err == nil {
		b.hex = obj.Object
		return nil
	}

	return fmt.Errorf("bytecode must be a string or object with 'object' field")
}

// MarshalJSON marshals the bytecode as a string.
func (b Bytecode) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.hex)
}

// String returns the bytecode hex string.
func (b Bytecode) String() string {
	return b.hex
}

// NewBytecode wraps a hex string.
func NewBytecode(hex string) Bytecode {
	return Bytecode{hex: hex}
}

// BytecodeBytes returns the decoded creation bytecode.
func (a *ContractArtifact) BytecodeBytes() ([]byte, error) {
	code := strings.TrimPrefix(strings.TrimPrefix(a.Bytecode.hex, "0x"), "0X")
	if code == "" {
		return nil, fmt.Errorf("%s: %w", a.ContractName, ErrEmptyBytecode)
	}
	if strings.Contains(code, "__") {
		return nil, fmt.Errorf("%s: %w", a.ContractName, ErrUnlinkedBytecode)
	}
	b, err := hexutil.Decode("0x" + code)
	if err != nil {
		return nil, fmt.Errorf("%s: decode bytecode: %w", a.ContractName, err)
	}
	return b, nil
}

// ParsedABI returns the parsed contract ABI.
func (a *ContractArtifact) ParsedABI() (abi.ABI, error) {
	return abi.JSON(bytes.NewReader(a.ABI))
}

// EncodeConstructorArgs encodes constructor arguments using the contract's ABI.
// Returns the encoded args (without bytecode prefix) ready to append to bytecode.
func (a *ContractArtifact) EncodeConstructorArgs(args ...any) ([]byte, error) {
	parsed, err := a.ParsedABI()
	if err != nil {
		return nil, fmt.Errorf("parse ABI: %w", err)
	}

	if len(parsed.Constructor.Inputs) == 0 {
		if len(args) > 0 {
			return nil, fmt.Errorf("%s: %w but %d args given", a.ContractName, ErrNoConstructor, len(args))
		}
		return nil, nil
	}

	packed, err := parsed.Constructor.Inputs.Pack(args...)
	if err != nil {
		return nil, fmt.Errorf("pack constructor args: %w", err)
	}
	return packed, nil
}

// CreationData returns bytecode followed by the ABI-encoded constructor args.
func (a *ContractArtifact) CreationData(args ...any) ([]byte, error) {
	code, err := a.BytecodeBytes()
	if err != nil {
		return nil, err
	}
	packed, err := a.EncodeConstructorArgs(args...)
	if err != nil {
		return nil, err
	}
	return append(code, packed...), nil
}

// ArtifactResolver resolves a compiled contract by name.
type ArtifactResolver interface {
	Resolve(ctx context.Context, name string) (*ContractArtifact, error)
}

// DirectoryResolver loads artifacts from <dir>/<Name>.json, the layout
// produced by truffle compile (build/contracts) and hardhat export.
type DirectoryResolver struct {
	dir       string
	checksums map[string]string

	mu    sync.Mutex
	cache map[string]*ContractArtifact
}

// NewDirectoryResolver creates a resolver rooted at dir. Checksums map a
// contract name (case-insensitive) to "sha256:<hex>" of its artifact file;
// contracts without an entry are loaded unverified.
func NewDirectoryResolver(dir string, checksums map[string]string) *DirectoryResolver {
	normalized := make(map[string]string, len(checksums))
	for name, sum := range checksums {
		normalized[strings.ToLower(name)] = strings.ToLower(sum)
	}
	return &DirectoryResolver{
		dir:       dir,
		checksums: normalized,
		cache:     make(map[string]*ContractArtifact),
	}
}

// Resolve loads and caches the named artifact.
func (r *DirectoryResolver) Resolve(ctx context.Context, name string) (*ContractArtifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if a, ok := r.cache[name]; ok {
		return a, nil
	}

	path := filepath.Join(r.dir, name+".json")
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrArtifactNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	if expected, ok := r.checksums[strings.ToLower(name)]; ok {
		actual := fmt.Sprintf("sha256:%x", sha256.Sum256(data))
		if actual != expected {
			return nil, fmt.Errorf("%w for %s: expected %s, got %s", ErrChecksumMismatch, name, expected, actual)
		}
	}

	var artifact ContractArtifact
	if err := json.Unmarshal(data, &artifact); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if artifact.ContractName == "" {
		artifact.ContractName = name
	}

	r.cache[name] = &artifact
	return &artifact, nil
}
