package slidingwindow

import (
	"time"

	"github.com/ava-labs/libevm/common"

	"github.com/ava-labs/wealthgain-indexer/internal/types"
)

// DeFiSubWindow is the window of the per-transaction wealth-gain evaluation.
const DeFiSubWindow = 24 * time.Second

// DeFiTransactions sums, over the window, the wealth gain produced inside single
// transactions.
type DeFiTransactions struct {
	window[struct{}]
}

var _ Metric = (*DeFiTransactions)(nil)

func NewDeFiTransactions(w time.Duration) *DeFiTransactions {
	return &DeFiTransactions{window: window[struct{}]{length: w}}
}

func (d *DeFiTransactions) Name() string          { return KindDeFiTransactions }
func (d *DeFiTransactions) Window() time.Duration { return d.length }
func (d *DeFiTransactions) Value() float64        { return d.total }

func (d *DeFiTransactions) Admit(b *types.Block) float64 {
	d.evict(b.Time, nil)

	gain := 0.0
	for _, group := range groupByTx(b) {
		g := NewWealthGain(DeFiSubWindow)
		gain += g.Admit(&types.Block{Number: b.Number, Time: b.Time, Transfers: group})
	}
	return d.push(b.Time, gain, struct{}{})
}

// groupByTx groups the valued transfers of b by transaction hash, in order of first
// appearance.
func groupByTx(b *types.Block) [][]types.Transfer {
	index := make(map[common.Hash]int)
	var groups [][]types.Transfer
	for i := range b.Transfers {
		t := b.Transfers[i]
		if t.USDValue == nil {
			continue
		}
		j, ok := index[t.Hash]
		if !ok {
			j = len(groups)
			index[t.Hash] = j
			groups = append(groups, nil)
		}
		groups[j] = append(groups[j], t)
	}
	return groups
}
