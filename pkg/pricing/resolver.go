// Package pricing resolves the USD price of a coin on a calendar day. Lookups go through a
// one-day memo, then the ledger's cached daily prices, then the external price source, which
// is asked for a multi-day span so one call serves many subsequent days.
package pricing

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ava-labs/wealthgain-indexer/internal/types"
	"github.com/ava-labs/wealthgain-indexer/pkg/metrics"
)

// DefaultFetchSpan is how far past the requested day a source fetch reaches.
const DefaultFetchSpan = 91 * 24 * time.Hour

// Source returns daily USD prices of coin for the days in [from, to].
type Source interface {
	Range(ctx context.Context, coin types.Coin, from, to time.Time) ([]types.DailyPrice, error)
}

// Store caches daily prices durably.
type Store interface {
	Price(ctx context.Context, coin string, day time.Time) (decimal.Decimal, bool, error)
	UpsertPrices(ctx context.Context, prices []types.DailyPrice) error
}

type Resolver struct {
	source    Source
	store     Store
	log       *zap.SugaredLogger
	metrics   *metrics.Metrics // nil if metrics disabled
	fetchSpan time.Duration

	mu   sync.Mutex
	memo *memo
}

// Option configures the Resolver.
type Option func(*Resolver)

// WithMetrics enables metrics collection for the resolver.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Resolver) {
		r.metrics = m
	}
}

// WithFetchSpan overrides DefaultFetchSpan.
func WithFetchSpan(d time.Duration) Option {
	return func(r *Resolver) {
		if d > 0 {
			r.fetchSpan = d
		}
	}
}

func NewResolver(source Source, store Store, log *zap.SugaredLogger, opts ...Option) (*Resolver, error) {
	if source == nil {
		return nil, ErrInvalidSource
	}
	if store == nil {
		return nil, ErrInvalidStore
	}
	if log == nil {
		return nil, ErrInvalidLogger
	}
	r := &Resolver{
		source:    source,
		store:     store,
		log:       log,
		fetchSpan: DefaultFetchSpan,
		memo:      newMemo(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// PriceOf returns the USD price of one whole unit of coin on the UTC day of t.
func (r *Resolver) PriceOf(ctx context.Context, coin types.Coin, t time.Time) (decimal.Decimal, error) {
	day := types.Day(t)

	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.memo.get(coin.Symbol, day); ok {
		r.recordLookup(metrics.PriceLayerMemo)
		return p, nil
	}

	p, ok, err := r.store.Price(ctx, coin.Symbol, day)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if ok {
		r.recordLookup(metrics.PriceLayerStore)
		r.memo.put(coin.Symbol, day, p)
		return p, nil
	}

	p, err = r.fetch(ctx, coin, day)
	if err != nil {
		return decimal.Decimal{}, err
	}
	r.recordLookup(metrics.PriceLayerSource)
	r.memo.put(coin.Symbol, day, p)
	return p, nil
}

// fetch loads a span of prices starting at day, caches all of them and returns day's price.
func (r *Resolver) fetch(ctx context.Context, coin types.Coin, day time.Time) (decimal.Decimal, error) {
	prices, err := r.source.Range(ctx, coin, day, day.Add(r.fetchSpan))
	if r.metrics != nil {
		r.metrics.RecordPriceSourceCall(err)
	}
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("fetch %s prices from %s: %w", coin.Symbol, types.DayString(day), err)
	}
	if len(prices) == 0 {
		return decimal.Decimal{}, fmt.Errorf("%w: %s has no prices from %s", ErrPriceUnavailable, coin.Symbol, types.DayString(day))
	}
	for i := range prices {
		prices[i].Coin = coin.Symbol
	}
	if err := r.store.UpsertPrices(ctx, prices); err != nil {
		return decimal.Decimal{}, err
	}
	r.log.Debugw("cached prices",
		"coin", coin.Symbol,
		"from", types.DayString(day),
		"days", len(prices),
	)

	for _, p := range prices {
		if types.Day(p.Day).Equal(day) {
			return p.USD, nil
		}
	}
	return decimal.Decimal{}, fmt.Errorf("%w: %s on %s", ErrPriceUnavailable, coin.Symbol, types.DayString(day))
}

// USDValue converts a raw on-chain amount of coin, transferred at t, to USD.
func (r *Resolver) USDValue(ctx context.Context, coin types.Coin, t time.Time, amount *big.Int) (float64, error) {
	price, err := r.PriceOf(ctx, coin, t)
	if err != nil {
		return 0, err
	}
	return decimal.NewFromBigInt(amount, -coin.Decimals).Mul(price).InexactFloat64(), nil
}

func (r *Resolver) recordLookup(layer string) {
	if r.metrics != nil {
		r.metrics.RecordPriceLookup(layer)
	}
}
