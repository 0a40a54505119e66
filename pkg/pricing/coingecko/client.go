// Package coingecko is a pricing.Source backed by the CoinGecko v3 market-chart range API.
package coingecko

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/ratelimit"

	"github.com/ava-labs/wealthgain-indexer/internal/types"
	"github.com/ava-labs/wealthgain-indexer/pkg/pricing"
)

const (
	DefaultBaseURL = "https://api.coingecko.com/api/v3"
	ProBaseURL     = "https://pro-api.coingecko.com/api/v3"

	// DefaultPlatform is the asset platform id of Ethereum mainnet. It is also the coin id of
	// the native currency.
	DefaultPlatform = "ethereum"

	// DefaultTimeout bounds one HTTP request, including reading the body.
	DefaultTimeout = 30 * time.Second

	demoKeyHeader = "x-cg-demo-api-key"
	proKeyHeader  = "x-cg-pro-api-key"

	// The demo plan allows 30 calls per minute.
	defaultRequestsPerMinute = 30
	maxErrorBody             = 512
)

type Client struct {
	baseURL    string
	apiKey     string
	keyHeader  string
	platform   string
	httpClient *http.Client
	limiter    ratelimit.Limiter
}

var _ pricing.Source = (*Client)(nil)

// Option configures the Client.
type Option func(*Client)

// WithBaseURL points the client at another API root, e.g. a test server.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSuffix(u, "/")
	}
}

// WithPro switches to the paid API host and key header.
func WithPro() Option {
	return func(c *Client) {
		c.baseURL = ProBaseURL
		c.keyHeader = proKeyHeader
	}
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithRequestsPerMinute caps the request rate. Non-positive values disable limiting.
func WithRequestsPerMinute(n int) Option {
	return func(c *Client) {
		if n <= 0 {
			c.limiter = ratelimit.NewUnlimited()
			return
		}
		c.limiter = ratelimit.New(n, ratelimit.Per(time.Minute))
	}
}

// WithPlatform sets the asset platform id used for token lookups and as the native coin id.
func WithPlatform(p string) Option {
	return func(c *Client) {
		c.platform = p
	}
}

func New(apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		apiKey:     apiKey,
		keyHeader:  demoKeyHeader,
		platform:   DefaultPlatform,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		limiter:    ratelimit.New(defaultRequestsPerMinute, ratelimit.Per(time.Minute)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type marketChart struct {
	Prices [][2]json.Number `json:"prices"`
}

// Range returns one USD price per UTC day in [from, to]. When the API reports several points
// for a day the first one is used.
func (c *Client) Range(ctx context.Context, coin types.Coin, from, to time.Time) ([]types.DailyPrice, error) {
	endpoint := c.endpoint(coin)
	q := url.Values{}
	q.Set("vs_currency", "usd")
	q.Set("from", strconv.FormatInt(from.Unix(), 10))
	q.Set("to", strconv.FormatInt(to.Unix(), 10))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set(c.keyHeader, c.apiKey)
	}

	c.limiter.Take()
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", pricing.ErrPriceSource, err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", pricing.ErrPriceSource, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("%w: %s returned %d: %s", pricing.ErrPriceSource, endpoint, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var chart marketChart
	if err := json.NewDecoder(resp.Body).Decode(&chart); err != nil {
		return nil, fmt.Errorf("%w: decode market chart: %w", pricing.ErrPriceSource, err)
	}
	return dailyPrices(coin.Symbol, chart.Prices)
}

func (c *Client) endpoint(coin types.Coin) string {
	if coin.IsNative() {
		return fmt.Sprintf("%s/coins/%s/market_chart/range", c.baseURL, url.PathEscape(c.platform))
	}
	return fmt.Sprintf("%s/coins/%s/contract/%s/market_chart/range",
		c.baseURL, url.PathEscape(c.platform), strings.ToLower(coin.Contract().Hex()))
}

func dailyPrices(coin string, points [][2]json.Number) ([]types.DailyPrice, error) {
	out := make([]types.DailyPrice, 0, len(points))
	seen := make(map[time.Time]struct{}, len(points))
	for _, pt := range points {
		ms, err := pt[0].Int64()
		if err != nil {
			f, ferr := pt[0].Float64()
			if ferr != nil {
				return nil, fmt.Errorf("%w: bad timestamp %q", pricing.ErrPriceSource, pt[0])
			}
			ms = int64(f)
		}
		day := types.Day(time.UnixMilli(ms))
		if _, dup := seen[day]; dup {
			continue
		}
		usd, err := decimal.NewFromString(pt[1].String())
		if err != nil {
			return nil, fmt.Errorf("%w: bad price %q: %w", pricing.ErrPriceSource, pt[1], err)
		}
		seen[day] = struct{}{}
		out = append(out, types.DailyPrice{Coin: coin, Day: day, USD: usd})
	}
	return out, nil
}
