package ingestion

import (
	"fmt"
	"math"
	"math/big"
	"strings"

	"github.com/ava-labs/libevm/common"
	"github.com/ava-labs/libevm/crypto"

	"github.com/ava-labs/wealthgain-indexer/internal/chainclient"
	"github.com/ava-labs/wealthgain-indexer/internal/types"
)

// TransferTopic is topic 0 of the ERC-20 Transfer(address,address,uint256) event.
var TransferTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

// EventTopic returns topic 0 for a canonical event signature such as
// "Swap(address,uint256,uint256,uint256,uint256,address)".
func EventTopic(signature string) common.Hash {
	return crypto.Keccak256Hash([]byte(strings.ReplaceAll(signature, " ", "")))
}

// movement is a classified transfer before valuation. raw keeps the full on-chain amount.
type movement struct {
	coin      types.Coin
	hash      common.Hash
	logIndex  int64
	from, to  common.Address
	raw       *big.Int
	isDEXSwap bool
}

type classifier struct {
	nativeCoin *types.Coin
	tokens     map[common.Address]types.Coin
	swapTopics map[common.Hash]struct{}
}

func newClassifier(active []types.Coin, swapEvents []string) *classifier {
	c := &classifier{
		tokens:     make(map[common.Address]types.Coin, len(active)),
		swapTopics: make(map[common.Hash]struct{}, len(swapEvents)),
	}
	for _, coin := range active {
		if coin.IsNative() {
			n := coin
			c.nativeCoin = &n
			continue
		}
		c.tokens[coin.Contract()] = coin
	}
	for _, sig := range swapEvents {
		c.swapTopics[EventTopic(sig)] = struct{}{}
	}
	return c
}

// classify extracts the transfers of the wanted coins from a block. A transaction that emits
// any swap event has every one of its transfers flagged as a DEX swap.
func (c *classifier) classify(p *chainclient.BlockPayload, wanted map[string]struct{}) []movement {
	receipts := p.ReceiptsByTx()
	var out []movement
	for i := range p.Transactions {
		tx := &p.Transactions[i]
		start := len(out)

		if m, ok := c.nativeTransfer(tx, wanted); ok {
			out = append(out, m)
		}

		swap := false
		if r := receipts[tx.Hash]; r != nil {
			for j := range r.Logs {
				lg := &r.Logs[j]
				if len(lg.Topics) == 0 {
					continue
				}
				if _, ok := c.swapTopics[lg.Topics[0]]; ok {
					swap = true
					continue
				}
				if m, ok := c.tokenTransfer(tx.Hash, lg, wanted); ok {
					out = append(out, m)
				}
			}
		}
		if swap {
			for k := start; k < len(out); k++ {
				out[k].isDEXSwap = true
			}
		}
	}
	return out
}

func (c *classifier) nativeTransfer(tx *chainclient.Transaction, wanted map[string]struct{}) (movement, bool) {
	if c.nativeCoin == nil {
		return movement{}, false
	}
	if _, ok := wanted[c.nativeCoin.Symbol]; !ok {
		return movement{}, false
	}
	if tx.To == nil || *tx.To == (common.Address{}) || tx.From == (common.Address{}) {
		return movement{}, false
	}
	if tx.Value == nil || tx.Value.Sign() <= 0 {
		return movement{}, false
	}
	return movement{
		coin:     *c.nativeCoin,
		hash:     tx.Hash,
		logIndex: types.NativeLogIndex,
		from:     tx.From,
		to:       *tx.To,
		raw:      new(big.Int).Set(tx.Value),
	}, true
}

// tokenTransfer decodes an ERC-20 Transfer log of a tracked contract. ERC-721 transfers share the
// topic but index the token id, so they carry four topics and are skipped.
func (c *classifier) tokenTransfer(txHash common.Hash, lg *chainclient.Log, wanted map[string]struct{}) (movement, bool) {
	if lg.Topics[0] != TransferTopic || len(lg.Topics) != 3 || len(lg.Data) < common.HashLength {
		return movement{}, false
	}
	coin, ok := c.tokens[lg.Address]
	if !ok {
		return movement{}, false
	}
	if _, ok := wanted[coin.Symbol]; !ok {
		return movement{}, false
	}
	from := common.BytesToAddress(lg.Topics[1].Bytes())
	to := common.BytesToAddress(lg.Topics[2].Bytes())
	if from == (common.Address{}) || to == (common.Address{}) {
		return movement{}, false
	}
	return movement{
		coin:     coin,
		hash:     txHash,
		logIndex: int64(lg.Index),
		from:     from,
		to:       to,
		raw:      new(big.Int).SetBytes(lg.Data[:common.HashLength]),
	}, true
}

// clampAmount fits a raw amount into a signed 64-bit column. It reports whether the value
// had to be clamped.
func clampAmount(raw *big.Int) (int64, bool) {
	if raw.IsInt64() {
		return raw.Int64(), false
	}
	if raw.Sign() < 0 {
		panic(fmt.Sprintf("negative transfer amount %s", raw))
	}
	return math.MaxInt64, true
}
