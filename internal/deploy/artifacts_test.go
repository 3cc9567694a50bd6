package deploy

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadTestArtifact(t *testing.T, name string) *ContractArtifact {
	t.Helper()
	a, err := NewDirectoryResolver("testdata", nil).Resolve(context.Background(), name)
	require.NoError(t, err)
	return a
}

func crowdsaleArgs(token common.Address) []any {
	return []any{
		big.NewInt(1554192000),
		big.NewInt(1570003200),
		common.HexToAddress("0x969c1b456D178fFC7E8d7919d71D37E33293A772"),
		token,
		big.NewInt(10000),
		big.NewInt(10000),
		big.NewInt(100000000),
	}
}

func TestBytecode_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "string", input: `"0x6080"`, want: "0x6080"},
		{name: "object", input: `{"object": "0x6080"}`, want: "0x6080"},
		{name: "number", input: `42`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var b Bytecode
			err := json.Unmarshal([]byte(tt.input), &b)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, b.String())
		})
	}
}

func TestContractArtifact_BytecodeBytes(t *testing.T) {
	t.Run("decodes hex", func(t *testing.T) {
		a := &ContractArtifact{Bytecode: NewBytecode("0x6080ff")}
		b, err := a.BytecodeBytes()
		require.NoError(t, err)
		assert.Equal(t, []byte{0x60, 0x80, 0xff}, b)
	})

	t.Run("accepts missing prefix", func(t *testing.T) {
		a := &ContractArtifact{Bytecode: NewBytecode("6080")}
		b, err := a.BytecodeBytes()
		require.NoError(t, err)
		assert.Equal(t, []byte{0x60, 0x80}, b)
	})

	t.Run("empty bytecode", func(t *testing.T) {
		_, err := loadTestArtifact(t, "Abstract").BytecodeBytes()
		assert.ErrorIs(t, err, ErrEmptyBytecode)
	})

	t.Run("unlinked library", func(t *testing.T) {
		_, err := loadTestArtifact(t, "Unlinked").BytecodeBytes()
		assert.ErrorIs(t, err, ErrUnlinkedBytecode)
	})

	t.Run("odd length", func(t *testing.T) {
		a := &ContractArtifact{Bytecode: NewBytecode("0x608")}
		_, err := a.BytecodeBytes()
		assert.Error(t, err)
	})
}

func TestContractArtifact_EncodeConstructorArgs(t *testing.T) {
	t.Run("no constructor and no args", func(t *testing.T) {
		packed, err := loadTestArtifact(t, "Token").EncodeConstructorArgs()
		require.NoError(t, err)
		assert.Empty(t, packed)
	})

	t.Run("no constructor with args", func(t *testing.T) {
		_, err := loadTestArtifact(t, "Token").EncodeConstructorArgs(big.NewInt(1))
		assert.ErrorIs(t, err, ErrNoConstructor)
	})

	t.Run("packs seven words", func(t *testing.T) {
		token := common.HexToAddress("0xAAA")
		packed, err := loadTestArtifact(t, "Crowdsale").EncodeConstructorArgs(crowdsaleArgs(token)...)
		require.NoError(t, err)
		require.Len(t, packed, 7*32)

		assert.Equal(t, big.NewInt(1554192000), new(big.Int).SetBytes(packed[0:32]))
		assert.Equal(t, big.NewInt(1570003200), new(big.Int).SetBytes(packed[32:64]))
		assert.Equal(t, common.HexToAddress("0x969c1b456D178fFC7E8d7919d71D37E33293A772"), common.BytesToAddress(packed[64:96]))
		assert.Equal(t, token, common.BytesToAddress(packed[96:128]))
		assert.Equal(t, big.NewInt(100000000), new(big.Int).SetBytes(packed[192:224]))
	})

	t.Run("wrong arg count", func(t *testing.T) {
		_, err := loadTestArtifact(t, "Crowdsale").EncodeConstructorArgs(big.NewInt(1))
		assert.Error(t, err)
	})

	t.Run("wrong arg type", func(t *testing.T) {
		args := crowdsaleArgs(common.Address{})
		args[0] = "1554192000"
		_, err := loadTestArtifact(t, "Crowdsale").EncodeConstructorArgs(args...)
		assert.Error(t, err)
	})
}

func TestContractArtifact_CreationData(t *testing.T) {
	a := loadTestArtifact(t, "Crowdsale")
	code, err := a.BytecodeBytes()
	require.NoError(t, err)

	data, err := a.CreationData(crowdsaleArgs(common.HexToAddress("0xAAA"))...)
	require.NoError(t, err)

	assert.Len(t, data, len(code)+7*32)
	assert.Equal(t, code, data[:len(code)])
}

func TestDirectoryResolver(t *testing.T) {
	ctx := context.Background()

	t.Run("resolves by file name", func(t *testing.T) {
		r := NewDirectoryResolver("testdata", nil)
		a, err := r.Resolve(ctx, "Crowdsale")
		require.NoError(t, err)
		assert.Equal(t, "Crowdsale", a.ContractName)
		assert.Equal(t, "0x608060405234801561001057600080fd5b50", a.Bytecode.String())
	})

	t.Run("caches artifacts", func(t *testing.T) {
		r := NewDirectoryResolver("testdata", nil)
		a1, err := r.Resolve(ctx, "Token")
		require.NoError(t, err)
		a2, err := r.Resolve(ctx, "Token")
		require.NoError(t, err)
		assert.Same(t, a1, a2)
	})

	t.Run("missing artifact", func(t *testing.T) {
		r := NewDirectoryResolver("testdata", nil)
		_, err := r.Resolve(ctx, "Missing")
		assert.ErrorIs(t, err, ErrArtifactNotFound)
	})

	t.Run("defaults contract name", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "Named.json"), []byte(`{"abi":[],"bytecode":"0x00"}`), 0o644))

		a, err := NewDirectoryResolver(dir, nil).Resolve(ctx, "Named")
		require.NoError(t, err)
		assert.Equal(t, "Named", a.ContractName)
	})

	t.Run("checksum match is case-insensitive on name", func(t *testing.T) {
		data, err := os.ReadFile(filepath.Join("testdata", "Token.json"))
		require.NoError(t, err)
		sum := fmt.Sprintf("sha256:%x", sha256.Sum256(data))

		r := NewDirectoryResolver("testdata", map[string]string{"token": sum})
		_, err = r.Resolve(ctx, "Token")
		assert.NoError(t, err)
	})

	t.Run("checksum mismatch", func(t *testing.T) {
		r := NewDirectoryResolver("testdata", map[string]string{"Token": "sha256:00"})
		_, err := r.Resolve(ctx, "Token")
		assert.ErrorIs(t, err, ErrChecksumMismatch)
	})

	t.Run("cancelled context", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := NewDirectoryResolver("testdata", nil).Resolve(cctx, "Token")
		assert.ErrorIs(t, err, context.Canceled)
	})
}
