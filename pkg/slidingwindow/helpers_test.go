package slidingwindow

import (
	"math/rand"
	"time"

	"github.com/ava-labs/libevm/common"

	"github.com/ava-labs/wealthgain-indexer/internal/types"
)

var (
	addrA = common.HexToAddress("0x000000000000000000000000000000000000000a")
	addrB = common.HexToAddress("0x000000000000000000000000000000000000000b")
	addrC = common.HexToAddress("0x000000000000000000000000000000000000000c")

	epoch = time.Unix(1_700_000_000, 0).UTC()
)

func at(seconds int) time.Time {
	return epoch.Add(time.Duration(seconds) * time.Second)
}

func usd(v float64) *float64 { return &v }

func tr(hash byte, from, to common.Address, value float64) types.Transfer {
	return types.Transfer{
		Hash:     common.BytesToHash([]byte{hash}),
		LogIndex: types.NativeLogIndex,
		Coin:     "ETH",
		From:     from,
		To:       to,
		Amount:   1,
		USDValue: usd(value),
	}
}

func block(number uint64, seconds int, transfers ...types.Transfer) *types.Block {
	for i := range transfers {
		transfers[i].BlockNumber = number
	}
	return &types.Block{Number: number, Time: at(seconds), Transfers: transfers}
}

// randomStream returns n blocks spaced 1..15 seconds apart, each with up to four transfers
// among five addresses.
func randomStream(seed int64, n int) []*types.Block {
	rng := rand.New(rand.NewSource(seed))
	addrs := []common.Address{addrA, addrB, addrC,
		common.HexToAddress("0x000000000000000000000000000000000000000d"),
		common.HexToAddress("0x000000000000000000000000000000000000000e"),
	}
	blocks := make([]*types.Block, n)
	ts := 0
	for i := range blocks {
		ts += 1 + rng.Intn(15)
		transfers := make([]types.Transfer, rng.Intn(5))
		for j := range transfers {
			from := addrs[rng.Intn(len(addrs))]
			to := addrs[rng.Intn(len(addrs))]
			for to == from {
				to = addrs[rng.Intn(len(addrs))]
			}
			transfers[j] = tr(byte(rng.Intn(3)), from, to, float64(rng.Intn(1000))+rng.Float64())
		}
		blocks[i] = block(uint64(i), ts, transfers...)
	}
	return blocks
}
