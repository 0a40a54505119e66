package slidingwindow

import (
	"time"

	"github.com/ava-labs/wealthgain-indexer/internal/types"
)

// TransactionCounting is the USD volume transferred inside the window.
type TransactionCounting struct {
	window[struct{}]
}

var _ Metric = (*TransactionCounting)(nil)

func NewTransactionCounting(w time.Duration) *TransactionCounting {
	return &TransactionCounting{window: window[struct{}]{length: w}}
}

func (c *TransactionCounting) Name() string          { return KindTransactionCounting }
func (c *TransactionCounting) Window() time.Duration { return c.length }
func (c *TransactionCounting) Value() float64        { return c.total }

func (c *TransactionCounting) Admit(b *types.Block) float64 {
	c.evict(b.Time, nil)
	sum := 0.0
	for i := range b.Transfers {
		sum += b.Transfers[i].USD()
	}
	return c.push(b.Time, sum, struct{}{})
}
