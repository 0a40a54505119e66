package ingestion

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ava-labs/libevm/common"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/ava-labs/wealthgain-indexer/internal/chainclient"
	"github.com/ava-labs/wealthgain-indexer/internal/types"
	"github.com/ava-labs/wealthgain-indexer/pkg/ledger"
)

var (
	eth  = types.Coin{Symbol: "ETH", Address: types.NativeMarker, Decimals: 18, Active: true}
	usdc = types.Coin{Symbol: "USDC", Address: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", Decimals: 6, Active: true}
	dai  = types.Coin{Symbol: "DAI", Address: "0x6B175474E89094C44Da98b954EedeAC495271d0F", Decimals: 18, Active: false}

	alice = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob   = common.HexToAddress("0x00000000000000000000000000000000000000b0")
	carol = common.HexToAddress("0x00000000000000000000000000000000000000c0")

	genesis = time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

	swapEvent = "Swap(address,uint256,uint256,uint256,uint256,address)"
)

// fakeChain serves prepared payloads and counts fetches per block.
type fakeChain struct {
	mu       sync.Mutex
	payloads map[uint64]*chainclient.BlockPayload
	calls    map[uint64]int
	failures map[uint64]int
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		payloads: make(map[uint64]*chainclient.BlockPayload),
		calls:    make(map[uint64]int),
		failures: make(map[uint64]int),
	}
}

func (f *fakeChain) FetchBlock(_ context.Context, number uint64) (*chainclient.BlockPayload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[number]++
	if f.failures[number] > 0 {
		f.failures[number]--
		return nil, fmt.Errorf("fetch block %d: %w: connection reset", number, chainclient.ErrNetwork)
	}
	p, ok := f.payloads[number]
	if !ok {
		return nil, fmt.Errorf("fetch block %d: %w", number, chainclient.ErrBlockNotFound)
	}
	return p, nil
}

func (f *fakeChain) Close() {}

func (f *fakeChain) fetches(number uint64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[number]
}

func (f *fakeChain) totalFetches() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

// add registers block number at genesis + offset.
func (f *fakeChain) add(number uint64, offset time.Duration, txs []chainclient.Transaction, receipts []chainclient.Receipt) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads[number] = &chainclient.BlockPayload{
		Number:       number,
		Time:         genesis.Add(offset),
		Transactions: txs,
		Receipts:     receipts,
	}
}

// fixedValuer prices every coin at a constant USD rate per whole unit.
type fixedValuer struct {
	mu     sync.Mutex
	prices map[string]float64
	errs   map[string]error
	calls  int
}

func (v *fixedValuer) USDValue(_ context.Context, coin types.Coin, _ time.Time, amount *big.Int) (float64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.calls++
	if err := v.errs[coin.Symbol]; err != nil {
		return 0, err
	}
	units := new(big.Float).Quo(new(big.Float).SetInt(amount), new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(coin.Decimals)), nil)))
	usd, _ := new(big.Float).Mul(units, big.NewFloat(v.prices[coin.Symbol])).Float64()
	return usd, nil
}

func txHash(b byte) common.Hash {
	return common.BytesToHash([]byte{0xee, b})
}

func ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1_000_000_000_000_000_000))
}

func nativeTx(hash common.Hash, from, to common.Address, wei *big.Int) chainclient.Transaction {
	return chainclient.Transaction{Hash: hash, From: from, To: &to, Value: wei}
}

func callTx(hash common.Hash, from common.Address, contract common.Address) chainclient.Transaction {
	return chainclient.Transaction{Hash: hash, From: from, To: &contract, Value: big.NewInt(0)}
}

func transferLog(hash common.Hash, index uint, contract common.Address, from, to common.Address, amount *big.Int) chainclient.Log {
	return chainclient.Log{
		Address: contract,
		Topics: []common.Hash{
			TransferTopic,
			common.BytesToHash(from.Bytes()),
			common.BytesToHash(to.Bytes()),
		},
		Data:   common.BigToHash(amount).Bytes(),
		Index:  index,
		TxHash: hash,
	}
}

func swapLog(hash common.Hash, index uint) chainclient.Log {
	return chainclient.Log{
		Address: carol,
		Topics:  []common.Hash{EventTopic(swapEvent)},
		Data:    make([]byte, 64),
		Index:   index,
		TxHash:  hash,
	}
}

func receipt(hash common.Hash, logs ...chainclient.Log) chainclient.Receipt {
	return chainclient.Receipt{TxHash: hash, Logs: logs}
}

type harness struct {
	chain    *fakeChain
	valuer   *fixedValuer
	store    *ledger.Store
	pipeline *Pipeline
}

func newHarness(t *testing.T, batchSize int, opts ...Option) *harness {
	t.Helper()
	return newHarnessWithLogger(t, zaptest.NewLogger(t).Sugar(), batchSize, opts...)
}

func newHarnessWithLogger(t *testing.T, log *zap.SugaredLogger, batchSize int, opts ...Option) *harness {
	t.Helper()
	store, err := ledger.Open(t.Context(), "", log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	h := &harness{
		chain:  newFakeChain(),
		valuer: &fixedValuer{prices: map[string]float64{"ETH": 50, "USDC": 1}, errs: map[string]error{}},
		store:  store,
	}
	h.pipeline, err = New(
		Config{Coins: []types.Coin{eth, usdc, dai}, SwapEvents: []string{swapEvent}, BatchSize: batchSize},
		h.chain, h.valuer, store, log, opts...,
	)
	require.NoError(t, err)
	return h
}
