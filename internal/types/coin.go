package types

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ava-labs/libevm/common"
)

// NativeMarker is the address placeholder that identifies the platform's native coin.
const NativeMarker = "ethereum"

var ErrInvalidCoin = errors.New("invalid coin")

// Coin is a tracked asset. Address is either NativeMarker or a hex contract address.
type Coin struct {
	Symbol   string `yaml:"name"`
	Address  string `yaml:"address"`
	Decimals int32  `yaml:"decimals"`
	Active   bool   `yaml:"active"`
}

// IsNative reports whether the coin is the chain's native currency.
func (c Coin) IsNative() bool {
	return strings.EqualFold(c.Address, NativeMarker)
}

// Contract returns the token contract address. It is the zero address for the native coin.
func (c Coin) Contract() common.Address {
	if c.IsNative() {
		return common.Address{}
	}
	return common.HexToAddress(c.Address)
}

// Validate checks the coin definition.
func (c Coin) Validate() error {
	if c.Symbol == "" {
		return fmt.Errorf("%w: missing symbol", ErrInvalidCoin)
	}
	if c.Decimals < 0 || c.Decimals > 36 {
		return fmt.Errorf("%w: %s decimals %d out of range", ErrInvalidCoin, c.Symbol, c.Decimals)
	}
	if !c.IsNative() && !common.IsHexAddress(c.Address) {
		return fmt.Errorf("%w: %s address %q is neither %q nor a hex address", ErrInvalidCoin, c.Symbol, c.Address, NativeMarker)
	}
	return nil
}

// ActiveCoins returns the active coins in their configured order.
func ActiveCoins(coins []Coin) []Coin {
	out := make([]Coin, 0, len(coins))
	for _, c := range coins {
		if c.Active {
			out = append(out, c)
		}
	}
	return out
}

// Symbols returns the symbols of the given coins.
func Symbols(coins []Coin) []string {
	out := make([]string, len(coins))
	for i, c := range coins {
		out[i] = c.Symbol
	}
	return out
}
