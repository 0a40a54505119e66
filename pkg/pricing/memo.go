package pricing

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/ava-labs/wealthgain-indexer/internal/types"
)

// memo remembers the prices of a single calendar day. Looking up or storing a different day
// replaces the slot, so a price is never served for a day other than its own.
type memo struct {
	day    time.Time
	prices map[string]decimal.Decimal
}

func newMemo() *memo {
	return &memo{prices: make(map[string]decimal.Decimal)}
}

func (m *memo) get(coin string, day time.Time) (decimal.Decimal, bool) {
	if !m.day.Equal(types.Day(day)) {
		return decimal.Decimal{}, false
	}
	p, ok := m.prices[coin]
	return p, ok
}

func (m *memo) put(coin string, day time.Time, price decimal.Decimal) {
	d := types.Day(day)
	if !m.day.Equal(d) {
		m.day = d
		clear(m.prices)
	}
	m.prices[coin] = price
}
