// Package sale defines the FieldCoinSale constructor parameters.
package sale

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Default sale parameters. These are the values the FieldCoinSale crowdsale
// was originally launched with.
const (
	DefaultOpeningTime uint64 = 1554192000 // 2019-04-02 08:00:00 UTC
	DefaultClosingTime uint64 = 1570003200 // 2019-10-02 08:00:00 UTC
	DefaultWallet             = "0x969c1b456D178fFC7E8d7919d71D37E33293A772"
	DefaultEthUSD      int64  = 10000
	DefaultMinContrib  int64  = 10000
	DefaultMaxContrib  int64  = 100000000
)

// Validation errors.
var (
	ErrInvalidSaleWindow         = errors.New("sale: closing time must be after opening time")
	ErrInvalidContributionBounds = errors.New("sale: min contribution must not exceed max contribution")
	ErrInvalidRate               = errors.New("sale: eth_usd rate must be positive")
	ErrInvalidWallet             = errors.New("sale: wallet is not a valid address")
)

// Params holds the FieldCoinSale constructor arguments other than the token address.
type Params struct {
	OpeningTime     uint64   `json:"openingTime"`
	ClosingTime     uint64   `json:"closingTime"`
	Wallet          string   `json:"wallet"`
	EthUSD          *big.Int `json:"ethUsd"`
	MinContribution *big.Int `json:"minContribution"`
	MaxContribution *big.Int `json:"maxContribution"`
}

// DefaultParams returns the original sale configuration.
func DefaultParams() Params {
	return Params{
		OpeningTime:     DefaultOpeningTime,
		ClosingTime:     DefaultClosingTime,
		Wallet:          DefaultWallet,
		EthUSD:          big.NewInt(DefaultEthUSD),
		MinContribution: big.NewInt(DefaultMinContrib),
		MaxContribution: big.NewInt(DefaultMaxContrib),
	}
}

// Validate checks the parameter invariants. All violations are reported.
func (p Params) Validate() error {
	var errs []error

	if p.ClosingTime <= p.OpeningTime {
		errs = append(errs, fmt.Errorf("%w (opening=%d, closing=%d)", ErrInvalidSaleWindow, p.OpeningTime, p.ClosingTime))
	}

	if p.EthUSD == nil || p.EthUSD.Sign() <= 0 {
		errs = append(errs, ErrInvalidRate)
	}

	switch {
	case p.MinContribution == nil || p.MaxContribution == nil:
		errs = append(errs, fmt.Errorf("%w: bounds must be set", ErrInvalidContributionBounds))
	case p.MinContribution.Sign() < 0:
		errs = append(errs, fmt.Errorf("%w: min contribution is negative", ErrInvalidContributionBounds))
	case p.MinContribution.Cmp(p.MaxContribution) > 0:
		errs = append(errs, fmt.Errorf("%w (min=%s, max=%s)", ErrInvalidContributionBounds, p.MinContribution, p.MaxContribution))
	}

	if !common.IsHexAddress(p.Wallet) {
		errs = append(errs, fmt.Errorf("%w: %q", ErrInvalidWallet, p.Wallet))
	} else if common.HexToAddress(p.Wallet) == (common.Address{}) {
		errs = append(errs, fmt.Errorf("%w: zero address", ErrInvalidWallet))
	}

	return errors.Join(errs...)
}

// WalletAddress returns the parsed wallet address.
func (p Params) WalletAddress() common.Address {
	return common.HexToAddress(p.Wallet)
}

// WalletChecksumValid reports whether a mixed-case wallet string matches its
// EIP-55 checksum. All-lowercase and all-uppercase inputs carry no checksum
// and are reported as valid.
func (p Params) WalletChecksumValid() bool {
	if !common.IsHexAddress(p.Wallet) {
		return false
	}
	hexPart := p.Wallet
	if len(hexPart) >= 2 && (hexPart[:2] == "0x" || hexPart[:2] == "0X") {
		hexPart = hexPart[2:]
	}
	if !hasMixedCase(hexPart) {
		return true
	}
	return p.WalletAddress().Hex()[2:] == hexPart
}

// ConstructorArgs returns the FieldCoinSale constructor arguments in ABI order:
// openingTime, closingTime, wallet, token, rate, minContribution, maxContribution.
// Call Validate first; a nil amount is encoded as zero.
func (p Params) ConstructorArgs(token common.Address) []any {
	return []any{
		new(big.Int).SetUint64(p.OpeningTime),
		new(big.Int).SetUint64(p.ClosingTime),
		p.WalletAddress(),
		token,
		copyInt(p.EthUSD),
		copyInt(p.MinContribution),
		copyInt(p.MaxContribution),
	}
}

func copyInt(x *big.Int) *big.Int {
	if x == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(x)
}

func hasMixedCase(s string) bool {
	var lower, upper bool
	for _, c := range s {
		switch {
		case c >= 'a' && c <= 'f':
			lower = true
		case c >= 'A' && c <= 'F':
			upper = true
		}
	}
	return lower && upper
}
