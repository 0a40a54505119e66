package slidingwindow

import (
	"math"
	"time"

	"github.com/ava-labs/libevm/common"

	"github.com/ava-labs/wealthgain-indexer/internal/types"
)

// balanceEpsilon is the relative size below which a balance counts as zero. Rolling back a
// long run of float updates rarely lands on exactly 0.
const balanceEpsilon = 1e-9

type flow struct {
	from, to common.Address
	usd      float64
}

// WealthGain tracks how much the non-negative part of address balances grew inside the
// window.
type WealthGain struct {
	window[[]flow]
	balances map[common.Address]float64
}

var _ Metric = (*WealthGain)(nil)

func NewWealthGain(w time.Duration) *WealthGain {
	return &WealthGain{
		window:   window[[]flow]{length: w},
		balances: make(map[common.Address]float64),
	}
}

func (g *WealthGain) Name() string          { return KindWealthGain }
func (g *WealthGain) Window() time.Duration { return g.length }
func (g *WealthGain) Value() float64        { return g.total }

func (g *WealthGain) Admit(b *types.Block) float64 {
	g.evict(b.Time, g.rollback)

	flows := make([]flow, len(b.Transfers))
	gain := 0.0
	for i := range b.Transfers {
		t := &b.Transfers[i]
		flows[i] = flow{from: t.From, to: t.To, usd: t.USD()}
		gain += g.move(t.From, t.To, flows[i].usd)
	}
	return g.push(b.Time, gain, flows)
}

// rollback undoes the balance updates of an evicted block.
func (g *WealthGain) rollback(flows []flow) {
	for _, f := range flows {
		g.move(f.to, f.from, f.usd)
	}
}

// move credits v to a and debits it from b, returning the change in
// max(0, bal[a]) + max(0, bal[b]).
func (g *WealthGain) move(a, b common.Address, v float64) float64 {
	u := g.balances[a]
	w := g.balances[b]
	delta := (max(0, u+v) + max(0, w-v)) - (max(0, u) + max(0, w))
	scale := max(1, math.Abs(u), math.Abs(w), math.Abs(v))
	g.set(a, u+v, scale)
	g.set(b, w-v, scale)
	return delta
}

// set stores a balance. Balances within rounding distance of zero, relative to the operands
// that produced them, are dropped so the map only holds addresses active in the window.
func (g *WealthGain) set(a common.Address, v, scale float64) {
	if math.Abs(v) < balanceEpsilon*scale {
		delete(g.balances, a)
		return
	}
	g.balances[a] = v
}

// Balance returns the running balance of a.
func (g *WealthGain) Balance(a common.Address) float64 {
	return g.balances[a]
}
