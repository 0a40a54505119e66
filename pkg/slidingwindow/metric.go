package slidingwindow

import (
	"errors"
	"fmt"
	"time"

	"github.com/ava-labs/wealthgain-indexer/internal/types"
)

// Metric names.
const (
	KindWealthGain          = "wealth_gain"
	KindTransactionCounting = "transaction_counting"
	KindDeFiTransactions    = "defi_transactions"
)

var (
	ErrUnknownMetric = errors.New("unknown metric")
	ErrInvalidWindow = errors.New("invalid window: must be greater than 0")
)

// Metric is a running aggregate over a trailing window of chain time.
type Metric interface {
	Name() string
	Window() time.Duration
	// Admit adds b, evicts blocks that left the window and returns the new aggregate.
	Admit(b *types.Block) float64
	// Value returns the current aggregate.
	Value() float64
}

// New builds the metric of the given kind.
func New(kind string, w time.Duration) (Metric, error) {
	if w <= 0 {
		return nil, ErrInvalidWindow
	}
	switch kind {
	case KindWealthGain:
		return NewWealthGain(w), nil
	case KindTransactionCounting:
		return NewTransactionCounting(w), nil
	case KindDeFiTransactions:
		return NewDeFiTransactions(w), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownMetric, kind)
}

// summary is what the queue keeps of an admitted block.
type summary[A any] struct {
	ts           time.Time
	contribution float64
	aux          A
}

// window is the skeleton shared by every metric: the queue of admitted summaries and the
// running total.
type window[A any] struct {
	length time.Duration
	total  float64
	queue  ring[summary[A]]
}

// evict pops every summary at or before now-length, handing each to rollback before its
// contribution leaves the total.
func (w *window[A]) evict(now time.Time, rollback func(aux A)) {
	cutoff := now.Add(-w.length)
	for w.queue.len() > 0 && !w.queue.front().ts.After(cutoff) {
		s := w.queue.pop()
		if rollback != nil {
			rollback(s.aux)
		}
		w.total -= s.contribution
	}
	if w.queue.len() == 0 {
		w.total = 0
	}
}

func (w *window[A]) push(ts time.Time, contribution float64, aux A) float64 {
	w.queue.push(summary[A]{ts: ts, contribution: contribution, aux: aux})
	w.total += contribution
	return w.total
}
