package types

import (
	"errors"
	"fmt"
	"math"

	"github.com/ava-labs/libevm/common"
)

// NativeLogIndex is the log index used for native-currency transfers, which have no event log.
const NativeLogIndex int64 = -1

var ErrInvalidTransfer = errors.New("invalid transfer")

// Transfer is a single coin movement. (Hash, LogIndex) identifies it uniquely on chain.
type Transfer struct {
	Hash        common.Hash    `json:"hash"`
	LogIndex    int64          `json:"logIndex"`
	BlockNumber uint64         `json:"blockNumber"`
	Coin        string         `json:"coin"`
	From        common.Address `json:"from"`
	To          common.Address `json:"to"`
	Amount      int64          `json:"amount"`
	USDValue    *float64       `json:"usdValue,omitempty"`
	IsDEXSwap   bool           `json:"isDexSwap"`
}

// NewTransfer builds a Transfer and rejects rows the ledger must never hold.
func NewTransfer(
	hash common.Hash,
	logIndex int64,
	blockNumber uint64,
	coin string,
	from, to common.Address,
	amount int64,
	usdValue *float64,
) (Transfer, error) {
	switch {
	case coin == "":
		return Transfer{}, fmt.Errorf("%w: empty coin for %s", ErrInvalidTransfer, hash.Hex())
	case logIndex < NativeLogIndex:
		return Transfer{}, fmt.Errorf("%w: log index %d for %s", ErrInvalidTransfer, logIndex, hash.Hex())
	case from == (common.Address{}) || to == (common.Address{}):
		return Transfer{}, fmt.Errorf("%w: zero address in %s/%d", ErrInvalidTransfer, hash.Hex(), logIndex)
	case amount < 0:
		return Transfer{}, fmt.Errorf("%w: negative amount in %s/%d", ErrInvalidTransfer, hash.Hex(), logIndex)
	case usdValue != nil && (math.IsNaN(*usdValue) || math.IsInf(*usdValue, 0)):
		return Transfer{}, fmt.Errorf("%w: non-finite usd value in %s/%d", ErrInvalidTransfer, hash.Hex(), logIndex)
	}
	return Transfer{
		Hash:        hash,
		LogIndex:    logIndex,
		BlockNumber: blockNumber,
		Coin:        coin,
		From:        from,
		To:          to,
		Amount:      amount,
		USDValue:    usdValue,
	}, nil
}

// IsNative reports whether the transfer moved the chain's native currency.
func (t *Transfer) IsNative() bool {
	return t.LogIndex == NativeLogIndex
}

// USD returns the transfer's USD value. It panics when the value is absent:
// callers must filter unvalued transfers before handing blocks to a metric.
func (t *Transfer) USD() float64 {
	if t.USDValue == nil {
		panic(fmt.Sprintf("transfer %s/%d has no usd value", t.Hash.Hex(), t.LogIndex))
	}
	return *t.USDValue
}
