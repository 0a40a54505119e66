// Package ingestion fills the ledger with the priced transfers of a block range. Only the
// (block, coin) pairs that lack an ingestion mark are fetched, and every batch is committed
// atomically so a block is never marked complete for a coin whose transfers are not stored.
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"slices"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ava-labs/wealthgain-indexer/internal/chainclient"
	"github.com/ava-labs/wealthgain-indexer/internal/types"
	"github.com/ava-labs/wealthgain-indexer/pkg/ledger"
	"github.com/ava-labs/wealthgain-indexer/pkg/metrics"
)

var (
	ErrInvalidRange       = errors.New("invalid block range")
	ErrNoActiveCoins      = errors.New("no active coins configured")
	ErrInvalidLogger      = errors.New("invalid logger: must not be nil")
	ErrInvalidBatchSize   = errors.New("invalid batch size: must be greater than 0")
	ErrInvalidChainClient = errors.New("invalid chain client: must not be nil")
	ErrInvalidValuer      = errors.New("invalid valuer: must not be nil")
	ErrInvalidLedger      = errors.New("invalid ledger: must not be nil")
)

// Valuer converts a raw on-chain amount of a coin, moved at a given time, to USD.
type Valuer interface {
	USDValue(ctx context.Context, coin types.Coin, t time.Time, amount *big.Int) (float64, error)
}

// Ledger is the storage the pipeline reads marks from and commits batches to.
type Ledger interface {
	IngestionMarks(ctx context.Context, start, end uint64) (map[uint64]map[string]struct{}, error)
	Missing(ctx context.Context, start, end uint64, coins []string) ([]types.MissingBlock, error)
	Commit(ctx context.Context, batch ledger.Batch) error
	Blocks(ctx context.Context, start, end uint64, coins []string, includeSwaps bool) ([]types.Block, error)
}

type Config struct {
	Coins      []types.Coin
	SwapEvents []string
	BatchSize  int
}

type Pipeline struct {
	log        *zap.SugaredLogger
	client     chainclient.ChainClient
	valuer     Valuer
	store      Ledger
	metrics    *metrics.Metrics // nil if metrics disabled
	retry      RetryPolicy      // nil disables retries in Run
	active     []types.Coin
	symbols    []string
	batchSize  int
	classifier *classifier
}

// Option configures the Pipeline.
type Option func(*Pipeline)

// WithMetrics enables metrics collection for the pipeline.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

// WithRetryPolicy makes Run retry batches that fail with a network error.
func WithRetryPolicy(r RetryPolicy) Option {
	return func(p *Pipeline) {
		p.retry = r
	}
}

func New(
	cfg Config,
	client chainclient.ChainClient,
	valuer Valuer,
	store Ledger,
	log *zap.SugaredLogger,
	opts ...Option,
) (*Pipeline, error) {
	if log == nil {
		return nil, ErrInvalidLogger
	}
	if client == nil {
		return nil, ErrInvalidChainClient
	}
	if valuer == nil {
		return nil, ErrInvalidValuer
	}
	if store == nil {
		return nil, ErrInvalidLedger
	}
	if cfg.BatchSize <= 0 {
		return nil, ErrInvalidBatchSize
	}
	for _, c := range cfg.Coins {
		if err := c.Validate(); err != nil {
			return nil, err
		}
	}
	active := types.ActiveCoins(cfg.Coins)
	if len(active) == 0 {
		return nil, ErrNoActiveCoins
	}

	p := &Pipeline{
		log:        log,
		client:     client,
		valuer:     valuer,
		store:      store,
		active:     active,
		symbols:    types.Symbols(active),
		batchSize:  cfg.BatchSize,
		classifier: newClassifier(active, cfg.SwapEvents),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// ActiveSymbols returns the symbols of the coins the pipeline ingests.
func (p *Pipeline) ActiveSymbols() []string {
	return slices.Clone(p.symbols)
}

// BatchSize returns the number of blocks fetched per batch.
func (p *Pipeline) BatchSize() int {
	return p.batchSize
}

// EnsureRange makes every block in [start, end) complete for every active coin. Blocks that
// already carry all marks are not fetched again.
func (p *Pipeline) EnsureRange(ctx context.Context, start, end uint64) error {
	if end < start {
		return fmt.Errorf("%w: [%d, %d)", ErrInvalidRange, start, end)
	}
	if end == start {
		return nil
	}
	began := time.Now()

	missing, err := p.store.Missing(ctx, start, end, p.symbols)
	if err != nil {
		return err
	}
	if len(missing) == 0 {
		p.recordBatch(metrics.BatchCacheHit, began)
		p.log.Debugw("range already ingested", "start", start, "end", end)
		return nil
	}

	payloads, err := p.fetch(ctx, missing)
	if err != nil {
		p.recordBatch(metrics.BatchFailed, began)
		return err
	}

	marks, err := p.store.IngestionMarks(ctx, start, end)
	if err != nil {
		p.recordBatch(metrics.BatchFailed, began)
		return err
	}

	batch, err := p.buildBatch(ctx, missing, payloads, marks)
	if err != nil {
		p.recordBatch(metrics.BatchFailed, began)
		return err
	}

	if err := p.store.Commit(ctx, batch); err != nil {
		p.recordBatch(metrics.BatchRolledBack, began)
		return err
	}

	if p.metrics != nil {
		byCoin := make(map[string]int, len(p.symbols))
		for i := range batch.Transfers {
			byCoin[batch.Transfers[i].Coin]++
		}
		p.metrics.CommitBatch(len(payloads), byCoin, len(batch.Marks))
	}
	p.recordBatch(metrics.BatchCommitted, began)
	p.log.Infow("batch committed",
		"start", start,
		"end", end,
		"fetched", len(payloads),
		"transfers", len(batch.Transfers),
		"marks", len(batch.Marks),
		"duration", time.Since(began),
	)
	return nil
}

// fetch loads every missing block with at most batchSize requests in flight. The result is
// aligned with missing.
func (p *Pipeline) fetch(ctx context.Context, missing []types.MissingBlock) ([]*chainclient.BlockPayload, error) {
	payloads := make([]*chainclient.BlockPayload, len(missing))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.batchSize)
	for i := range missing {
		g.Go(func() error {
			payload, err := p.client.FetchBlock(gctx, missing[i].Number)
			if err != nil {
				return err
			}
			payloads[i] = payload
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return payloads, nil
}

// buildBatch classifies and prices the fetched blocks. All valuation happens here, before the
// commit opens its transaction.
func (p *Pipeline) buildBatch(
	ctx context.Context,
	missing []types.MissingBlock,
	payloads []*chainclient.BlockPayload,
	existing map[uint64]map[string]struct{},
) (ledger.Batch, error) {
	var batch ledger.Batch
	for i, mb := range missing {
		payload := payloads[i]

		wanted := make(map[string]struct{}, len(mb.Coins))
		for _, c := range mb.Coins {
			wanted[c] = struct{}{}
		}

		var transfers []types.Transfer
		for _, m := range p.classifier.classify(payload, wanted) {
			t, err := p.price(ctx, mb.Number, payload.Time, m)
			if err != nil {
				return ledger.Batch{}, err
			}
			transfers = append(transfers, t)
		}
		blk, err := types.NewBlock(mb.Number, payload.Time, transfers)
		if err != nil {
			p.incValidationError()
			return ledger.Batch{}, err
		}
		batch.Transfers = append(batch.Transfers, blk.Transfers...)

		for _, c := range mb.Coins {
			batch.Marks = append(batch.Marks, types.IngestionMark{BlockNumber: mb.Number, Coin: c})
		}

		if p.covers(existing[mb.Number], wanted) {
			batch.Blocks = append(batch.Blocks, ledger.BlockRow{Number: blk.Number, Time: blk.Time})
		} else {
			p.log.Warnw("block row withheld: coin coverage incomplete",
				"block", mb.Number,
				"fetched", mb.Coins,
			)
		}
	}
	return batch, nil
}

// covers reports whether the stored marks plus the coins fetched now account for every
// active coin. Only then is the block row written.
func (p *Pipeline) covers(stored, fetched map[string]struct{}) bool {
	for _, s := range p.symbols {
		_, inStored := stored[s]
		_, inFetched := fetched[s]
		if !inStored && !inFetched {
			return false
		}
	}
	return true
}

func (p *Pipeline) price(ctx context.Context, block uint64, at time.Time, m movement) (types.Transfer, error) {
	usd, err := p.valuer.USDValue(ctx, m.coin, at, m.raw)
	if err != nil {
		return types.Transfer{}, fmt.Errorf("value %s/%d in block %d: %w", m.hash.Hex(), m.logIndex, block, err)
	}

	amount, clamped := clampAmount(m.raw)
	if clamped {
		p.log.Warnw("transfer amount clamped",
			"block", block,
			"hash", m.hash.Hex(),
			"logIndex", m.logIndex,
			"coin", m.coin.Symbol,
			"raw", m.raw.String(),
			"stored", amount,
		)
		if p.metrics != nil {
			p.metrics.IncClamped(m.coin.Symbol)
		}
	}

	t, err := types.NewTransfer(m.hash, m.logIndex, block, m.coin.Symbol, m.from, m.to, amount, &usd)
	if err != nil {
		p.incValidationError()
		return types.Transfer{}, err
	}
	t.IsDEXSwap = m.isDEXSwap
	return t, nil
}

// GetBlocks ensures [start, end) and reads it back ordered by timestamp, restricted to the
// active coins. Swap-flagged transfers are kept only when includeSwaps is set.
func (p *Pipeline) GetBlocks(ctx context.Context, start, end uint64, includeSwaps bool) ([]types.Block, error) {
	if err := p.EnsureRange(ctx, start, end); err != nil {
		return nil, err
	}
	return p.store.Blocks(ctx, start, end, p.symbols, includeSwaps)
}

func (p *Pipeline) incValidationError() {
	if p.metrics != nil {
		p.metrics.IncError(metrics.ErrTypeValidation)
	}
}

func (p *Pipeline) recordBatch(outcome string, began time.Time) {
	if p.metrics != nil {
		p.metrics.RecordBatch(outcome, time.Since(began).Seconds())
	}
}
