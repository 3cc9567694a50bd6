package cli

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bidon15/fieldcoin-deployer/internal/deploy"
	"github.com/Bidon15/fieldcoin-deployer/internal/sale"
)

const testFrom = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := NewRootCommand()
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestPlan_JSON(t *testing.T) {
	out, err := run(t, "plan", "--artifacts", "testdata", "--from", testFrom, "--nonce", "4", "--json")
	require.NoError(t, err)

	var steps []plannedStep
	require.NoError(t, json.Unmarshal([]byte(out), &steps))
	require.Len(t, steps, 2)

	from := common.HexToAddress(testFrom)
	token := crypto.CreateAddress(from, 4)

	assert.Equal(t, "FieldCoin", steps[0].Step)
	assert.Equal(t, token.Hex(), steps[0].Address)
	assert.Empty(t, steps[0].Args)

	assert.Equal(t, "FieldCoinSale", steps[1].Step)
	assert.Equal(t, crypto.CreateAddress(from, 5).Hex(), steps[1].Address)
	assert.Equal(t, []string{
		"1554192000",
		"1570003200",
		common.HexToAddress(sale.DefaultWallet).Hex(),
		token.Hex(),
		"10000",
		"10000",
		"100000000",
	}, steps[1].Args)
}

func TestPlan_Text(t *testing.T) {
	out, err := run(t, "plan", "--artifacts", "testdata", "--from", testFrom)
	require.NoError(t, err)

	assert.Contains(t, out, "1. FieldCoin (FieldCoin)")
	assert.Contains(t, out, "2. FieldCoinSale (FieldCoinSale)")
	assert.Contains(t, out, "arg 6:")
	assert.True(t, strings.Index(out, "FieldCoin (") < strings.Index(out, "FieldCoinSale ("))
}

func TestPlan_InvalidSaleWindow(t *testing.T) {
	t.Setenv("FIELDCOIN_SALE_CLOSING_TIME", "1554191999")

	_, err := run(t, "plan", "--artifacts", "testdata")
	assert.ErrorIs(t, err, sale.ErrInvalidSaleWindow)
}

func TestPlan_MissingArtifacts(t *testing.T) {
	_, err := run(t, "plan", "--artifacts", t.TempDir())
	assert.ErrorIs(t, err, deploy.ErrArtifactNotFound)

	var stepErr *deploy.StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, "FieldCoin", stepErr.Step)
}

func TestPlan_InvalidFrom(t *testing.T) {
	_, err := run(t, "plan", "--artifacts", "testdata", "--from", "0x123")
	assert.Error(t, err)
}

func TestDeploy_RequiresPrivateKey(t *testing.T) {
	t.Setenv("FIELDCOIN_NETWORK_PRIVATE_KEY", "")

	_, err := run(t, "deploy", "--artifacts", "testdata")
	assert.ErrorIs(t, err, ErrMissingPrivateKey)
}

func TestStatus_RequiresDatabase(t *testing.T) {
	_, err := run(t, "status")
	assert.ErrorIs(t, err, ErrDatabaseDisabled)
}

func TestMigrate_RequiresDatabase(t *testing.T) {
	_, err := run(t, "migrate", "up")
	assert.ErrorIs(t, err, ErrDatabaseDisabled)
}

func TestInvalidLogFormat(t *testing.T) {
	_, err := run(t, "plan", "--artifacts", "testdata", "--log-format", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log.format")
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer

	logger, err := newLogger(&buf, "warn", "json")
	require.NoError(t, err)
	logger.Info("hidden")
	logger.Warn("shown", "step", "FieldCoin")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"step":"FieldCoin"`)

	_, err = newLogger(&buf, "loud", "text")
	assert.Error(t, err)
	_, err = newLogger(&buf, "info", "xml")
	assert.Error(t, err)
}
