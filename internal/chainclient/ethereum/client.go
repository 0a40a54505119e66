package ethereum

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ava-labs/libevm/common/hexutil"
	"github.com/ava-labs/libevm/rpc"
	"golang.org/x/sync/errgroup"

	"github.com/ava-labs/wealthgain-indexer/internal/chainclient"
	"github.com/ava-labs/wealthgain-indexer/pkg/metrics"
)

const (
	methodBlockByNumber = "eth_getBlockByNumber"
	methodBlockReceipts = "eth_getBlockReceipts"
	methodBlockNumber   = "eth_blockNumber"

	defaultCloseGrace = 2 * time.Second
)

// Client fetches blocks and receipts over a single long-lived JSON-RPC connection.
type Client struct {
	rpc        *rpc.Client
	metrics    *metrics.Metrics // nil if metrics disabled
	closeGrace time.Duration

	mu        sync.Mutex
	closed    bool
	inflight  sync.WaitGroup
	closeOnce sync.Once
}

var errClosed = errors.New("client closed")

var _ chainclient.ChainClient = (*Client)(nil)

// Option configures the Client.
type Option func(*Client)

// WithMetrics enables metrics collection for the client.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithCloseGrace bounds how long Close waits for in-flight calls.
func WithCloseGrace(d time.Duration) Option {
	return func(c *Client) {
		c.closeGrace = d
	}
}

// New dials the node at url (http(s) or ws(s)).
func New(ctx context.Context, url string, opts ...Option) (*Client, error) {
	c, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w: %w", chainclient.ErrNetwork, err)
	}
	return newWithRPC(c, opts...), nil
}

func newWithRPC(c *rpc.Client, opts ...Option) *Client {
	client := &Client{
		rpc:        c,
		closeGrace: defaultCloseGrace,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// FetchBlock returns block number with full transactions and its receipts. The body and
// the receipts are independent calls and are issued concurrently.
func (c *Client) FetchBlock(ctx context.Context, number uint64) (*chainclient.BlockPayload, error) {
	var (
		block    *rpcBlock
		receipts []rpcReceipt
	)
	tag := hexutil.EncodeUint64(number)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return c.call(gctx, &block, methodBlockByNumber, tag, true)
	})
	g.Go(func() error {
		return c.call(gctx, &receipts, methodBlockReceipts, tag)
	})
	if err := g.Wait(); err != nil {
		if errors.Is(err, rpc.ErrNoResult) {
			return nil, fmt.Errorf("fetch block %d: %w", number, chainclient.ErrBlockNotFound)
		}
		return nil, fmt.Errorf("fetch block %d: %w: %w", number, chainclient.ErrNetwork, err)
	}
	if block == nil {
		return nil, fmt.Errorf("fetch block %d: %w", number, chainclient.ErrBlockNotFound)
	}
	if uint64(block.Number) != number {
		return nil, fmt.Errorf("fetch block %d: %w: node returned block %d", number, chainclient.ErrNetwork, uint64(block.Number))
	}
	return mapToPayload(block, receipts), nil
}

// BlockNumber returns the node's latest block number.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	var n hexutil.Uint64
	if err := c.call(ctx, &n, methodBlockNumber); err != nil {
		return 0, fmt.Errorf("get block number: %w: %w", chainclient.ErrNetwork, err)
	}
	return uint64(n), nil
}

func (c *Client) call(ctx context.Context, result any, method string, args ...any) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("%s: %w: %w", method, chainclient.ErrNetwork, errClosed)
	}
	c.inflight.Add(1)
	c.mu.Unlock()
	defer c.inflight.Done()

	start := time.Now()
	if c.metrics != nil {
		c.metrics.IncRPCInFlight()
		defer c.metrics.DecRPCInFlight()
	}

	err := c.rpc.CallContext(ctx, result, method, args...)

	if c.metrics != nil {
		c.metrics.RecordRPCCall(method, err, time.Since(start).Seconds())
	}
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	return nil
}

// Close rejects new calls, waits up to the close grace period for in-flight calls, then
// closes the connection.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()

		done := make(chan struct{})
		go func() {
			c.inflight.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(c.closeGrace):
		}
		c.rpc.Close()
	})
}
