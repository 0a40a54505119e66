package pricing

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ava-labs/wealthgain-indexer/internal/types"
	"github.com/ava-labs/wealthgain-indexer/pkg/metrics"
)

var (
	eth  = types.Coin{Symbol: "ETH", Address: types.NativeMarker, Decimals: 18, Active: true}
	usdc = types.Coin{Symbol: "USDC", Address: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", Decimals: 6, Active: true}
	day0 = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
)

type mockSource struct {
	mock.Mock
}

func (m *mockSource) Range(ctx context.Context, coin types.Coin, from, to time.Time) ([]types.DailyPrice, error) {
	args := m.Called(ctx, coin, from, to)
	prices, _ := args.Get(0).([]types.DailyPrice)
	return prices, args.Error(1)
}

type memStore struct {
	mu      sync.Mutex
	prices  map[string]decimal.Decimal
	upserts int
	readErr error
}

func newMemStore() *memStore {
	return &memStore{prices: make(map[string]decimal.Decimal)}
}

func (s *memStore) Price(_ context.Context, coin string, day time.Time) (decimal.Decimal, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readErr != nil {
		return decimal.Decimal{}, false, s.readErr
	}
	p, ok := s.prices[coin+"@"+types.DayString(day)]
	return p, ok, nil
}

func (s *memStore) UpsertPrices(_ context.Context, prices []types.DailyPrice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upserts++
	for _, p := range prices {
		s.prices[p.Coin+"@"+types.DayString(p.Day)] = p.USD
	}
	return nil
}

func span(coin string, from time.Time, days int, usd ...float64) []types.DailyPrice {
	out := make([]types.DailyPrice, days)
	for i := range out {
		out[i] = types.DailyPrice{Coin: coin, Day: from.AddDate(0, 0, i), USD: decimal.NewFromFloat(usd[i%len(usd)])}
	}
	return out
}

func lookups(t *testing.T, reg *prometheus.Registry, layer string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != metrics.Namespace+"_price_lookups_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "layer" && l.GetValue() == layer {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestNewResolver_Validation(t *testing.T) {
	log := zaptest.NewLogger(t).Sugar()
	_, err := NewResolver(nil, newMemStore(), log)
	require.ErrorIs(t, err, ErrInvalidSource)
	_, err = NewResolver(&mockSource{}, nil, log)
	require.ErrorIs(t, err, ErrInvalidStore)
	_, err = NewResolver(&mockSource{}, newMemStore(), nil)
	require.ErrorIs(t, err, ErrInvalidLogger)
}

func TestResolver_SameDayTwiceCallsSourceOnce(t *testing.T) {
	src := &mockSource{}
	src.On("Range", mock.Anything, eth, day0, day0.Add(DefaultFetchSpan)).
		Return(span("ETH", day0, 3, 3000, 3100, 3200), nil).
		Once()
	store := newMemStore()

	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	require.NoError(t, err)

	r, err := NewResolver(src, store, zaptest.NewLogger(t).Sugar(), WithMetrics(m))
	require.NoError(t, err)

	p, err := r.PriceOf(t.Context(), eth, day0.Add(3*time.Hour))
	require.NoError(t, err)
	require.True(t, p.Equal(decimal.NewFromInt(3000)))

	p, err = r.PriceOf(t.Context(), eth, day0.Add(20*time.Hour))
	require.NoError(t, err)
	require.True(t, p.Equal(decimal.NewFromInt(3000)))

	// The next day is served from the ledger cache filled by the first fetch.
	p, err = r.PriceOf(t.Context(), eth, day0.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.True(t, p.Equal(decimal.NewFromInt(3100)))

	src.AssertNumberOfCalls(t, "Range", 1)
	require.Equal(t, 1, store.upserts)
	require.Len(t, store.prices, 3)
	require.InDelta(t, 1, lookups(t, reg, metrics.PriceLayerSource), 0)
	require.InDelta(t, 1, lookups(t, reg, metrics.PriceLayerMemo), 0)
	require.InDelta(t, 1, lookups(t, reg, metrics.PriceLayerStore), 0)
}

func TestResolver_MemoDoesNotLeakAcrossDays(t *testing.T) {
	store := newMemStore()
	store.prices["USDC@"+types.DayString(day0)] = decimal.NewFromInt(1)
	store.prices["ETH@"+types.DayString(day0)] = decimal.NewFromInt(3000)
	store.prices["ETH@"+types.DayString(day0.AddDate(0, 0, 1))] = decimal.NewFromInt(4000)

	src := &mockSource{}
	day1 := day0.AddDate(0, 0, 1)
	src.On("Range", mock.Anything, usdc, day1, day1.Add(DefaultFetchSpan)).
		Return(span("USDC", day1, 1, 1.01), nil).
		Once()

	r, err := NewResolver(src, store, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)

	_, err = r.PriceOf(t.Context(), usdc, day0)
	require.NoError(t, err)
	_, err = r.PriceOf(t.Context(), eth, day1)
	require.NoError(t, err)

	// USDC was memoized for day0 only; day1 must not reuse it.
	p, err := r.PriceOf(t.Context(), usdc, day1)
	require.NoError(t, err)
	require.True(t, p.Equal(decimal.NewFromFloat(1.01)))
	src.AssertExpectations(t)
}

func TestResolver_Errors(t *testing.T) {
	sourceErr := errors.New("boom")
	tests := []struct {
		name    string
		prices  []types.DailyPrice
		err     error
		wantErr error
	}{
		{name: "empty range", prices: nil, wantErr: ErrPriceUnavailable},
		{name: "requested day missing", prices: span("ETH", day0.AddDate(0, 0, 1), 2, 1), wantErr: ErrPriceUnavailable},
		{name: "source failure", err: sourceErr, wantErr: sourceErr},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			src := &mockSource{}
			src.On("Range", mock.Anything, eth, mock.Anything, mock.Anything).Return(tt.prices, tt.err)

			r, err := NewResolver(src, newMemStore(), zaptest.NewLogger(t).Sugar())
			require.NoError(t, err)
			_, err = r.PriceOf(t.Context(), eth, day0)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestResolver_StoreError(t *testing.T) {
	store := newMemStore()
	store.readErr = errors.New("disk gone")
	src := &mockSource{}

	r, err := NewResolver(src, store, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	_, err = r.PriceOf(t.Context(), eth, day0)
	require.ErrorIs(t, err, store.readErr)
	src.AssertNotCalled(t, "Range", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestResolver_USDValue(t *testing.T) {
	store := newMemStore()
	store.prices["ETH@"+types.DayString(day0)] = decimal.NewFromInt(2000)
	store.prices["USDC@"+types.DayString(day0)] = decimal.RequireFromString("0.9998")

	r, err := NewResolver(&mockSource{}, store, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)

	halfETH, _ := new(big.Int).SetString("500000000000000000", 10)
	v, err := r.USDValue(t.Context(), eth, day0, halfETH)
	require.NoError(t, err)
	require.InDelta(t, 1000.0, v, 1e-9)

	v, err = r.USDValue(t.Context(), usdc, day0, big.NewInt(25_000_000))
	require.NoError(t, err)
	require.InDelta(t, 24.995, v, 1e-9)

	// Amounts beyond 64 bits are valued exactly.
	huge := new(big.Int).Lsh(big.NewInt(1), 70)
	v, err = r.USDValue(t.Context(), eth, day0, huge)
	require.NoError(t, err)
	require.InDelta(t, 2000*1180.591620717411, v, 1e-3)
}

func TestResolver_WithFetchSpan(t *testing.T) {
	week := 7 * 24 * time.Hour
	src := &mockSource{}
	src.On("Range", mock.Anything, eth, day0, day0.Add(week)).
		Return(span("ETH", day0, 8, 3000), nil).
		Once()

	r, err := NewResolver(src, newMemStore(), zaptest.NewLogger(t).Sugar(), WithFetchSpan(week), WithFetchSpan(0))
	require.NoError(t, err)

	p, err := r.PriceOf(t.Context(), eth, day0)
	require.NoError(t, err)
	require.True(t, p.Equal(decimal.NewFromInt(3000)))
	src.AssertExpectations(t)
}
