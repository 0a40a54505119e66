package coingecko

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/ava-labs/wealthgain-indexer/internal/chainclient"
	"github.com/ava-labs/wealthgain-indexer/internal/types"
	"github.com/ava-labs/wealthgain-indexer/pkg/pricing"
)

var (
	eth  = types.Coin{Symbol: "ETH", Address: types.NativeMarker, Decimals: 18, Active: true}
	usdc = types.Coin{Symbol: "USDC", Address: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", Decimals: 6, Active: true}
	day0 = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
)

func TestClient_Range(t *testing.T) {
	var (
		gotPath  string
		gotQuery string
		gotKey   string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotKey = r.Header.Get("x-cg-demo-api-key")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"prices":[
			[1709251200000, 3400.12],
			[1709290800000, 3500],
			[1709337600000, 3333.5]
		],"market_caps":[],"total_volumes":[]}`))
	}))
	defer srv.Close()

	c := New("secret", WithBaseURL(srv.URL), WithRequestsPerMinute(0))
	prices, err := c.Range(t.Context(), eth, day0, day0.Add(48*time.Hour))
	require.NoError(t, err)

	require.Equal(t, "/coins/ethereum/market_chart/range", gotPath)
	require.Contains(t, gotQuery, "vs_currency=usd")
	require.Contains(t, gotQuery, "from=1709251200")
	require.Equal(t, "secret", gotKey)

	// The second point falls on the same day as the first and is dropped.
	require.Len(t, prices, 2)
	require.Equal(t, "ETH", prices[0].Coin)
	require.True(t, prices[0].Day.Equal(day0))
	require.True(t, prices[0].USD.Equal(decimal.RequireFromString("3400.12")))
	require.True(t, prices[1].Day.Equal(day0.AddDate(0, 0, 1)))
}

func TestClient_Range_TokenEndpoint(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_, _ = w.Write([]byte(`{"prices":[]}`))
	}))
	defer srv.Close()

	c := New("", WithBaseURL(srv.URL+"/"), WithRequestsPerMinute(0))
	prices, err := c.Range(t.Context(), usdc, day0, day0.Add(time.Hour))
	require.NoError(t, err)
	require.Empty(t, prices)
	require.Equal(t, "/coins/ethereum/contract/0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48/market_chart/range", gotPath)
}

func TestClient_Range_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{name: "rate limited", status: http.StatusTooManyRequests, body: `{"error":"slow down"}`, wantErr: pricing.ErrPriceSource},
		{name: "server error", status: http.StatusInternalServerError, body: `oops`, wantErr: pricing.ErrPriceSource},
		{name: "malformed body", status: http.StatusOK, body: `{"prices":`, wantErr: pricing.ErrPriceSource},
		{name: "bad price", status: http.StatusOK, body: `{"prices":[[1709251200000,"x"]]}`, wantErr: pricing.ErrPriceSource},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := New("", WithBaseURL(srv.URL), WithRequestsPerMinute(0))
			_, err := c.Range(t.Context(), eth, day0, day0.Add(time.Hour))
			require.ErrorIs(t, err, tt.wantErr)
			require.ErrorIs(t, err, chainclient.ErrNetwork)
		})
	}
}

func TestClient_Range_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()

	c := New("", WithBaseURL(srv.URL), WithRequestsPerMinute(0))
	_, err := c.Range(t.Context(), eth, day0, day0.Add(time.Hour))
	require.ErrorIs(t, err, pricing.ErrPriceSource)
}

func TestClient_ProKeyHeader(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.Header.Get("x-cg-pro-api-key") != "pro" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"prices":[[1709251200000,1]]}`))
	}))
	defer srv.Close()

	c := New("pro", WithPro(), WithBaseURL(srv.URL), WithRequestsPerMinute(0))
	prices, err := c.Range(t.Context(), eth, day0, day0.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, prices, 1)
	require.Equal(t, int32(1), calls.Load())
}

func TestClient_Range_CanceledWhileRateLimited(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"prices":[[1709251200000,1]]}`))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(t.Context())
	c := New("", WithBaseURL(srv.URL))
	c.limiter = cancelingLimiter{cancel: cancel}

	_, err := c.Range(ctx, eth, day0, day0.Add(time.Hour))
	require.ErrorIs(t, err, context.Canceled)
	require.ErrorIs(t, err, pricing.ErrPriceSource)
	require.Zero(t, calls.Load())
}

// cancelingLimiter cancels the caller's context while it waits for a slot.
type cancelingLimiter struct {
	cancel context.CancelFunc
}

func (l cancelingLimiter) Take() time.Time {
	l.cancel()
	return time.Now()
}

func TestClient_PlatformAndHTTPClient(t *testing.T) {
	var gotPath, gotAgent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAgent = r.Header.Get("User-Agent")
		_, _ = w.Write([]byte(`{"prices":[]}`))
	}))
	defer srv.Close()

	hc := &http.Client{Timeout: time.Second, Transport: agentTransport{agent: "wealthgain-test"}}
	c := New("", WithBaseURL(srv.URL), WithRequestsPerMinute(0), WithPlatform("base"), WithHTTPClient(hc))

	_, err := c.Range(t.Context(), usdc, day0, day0.Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, "/coins/base/contract/0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48/market_chart/range", gotPath)
	require.Equal(t, "wealthgain-test", gotAgent)

	_, err = c.Range(t.Context(), eth, day0, day0.Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, "/coins/base/market_chart/range", gotPath)
}

type agentTransport struct {
	agent string
}

func (a agentTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	r = r.Clone(r.Context())
	r.Header.Set("User-Agent", a.agent)
	return http.DefaultTransport.RoundTrip(r)
}
