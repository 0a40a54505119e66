package ingestion

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/ava-labs/wealthgain-indexer/internal/chainclient"
	"github.com/ava-labs/wealthgain-indexer/internal/types"
)

// RetryPolicy builds a fresh backoff for one batch.
type RetryPolicy func() backoff.BackOff

// ConstantRetry retries a batch up to retries times, waiting interval between attempts.
func ConstantRetry(interval time.Duration, retries uint64) RetryPolicy {
	return func() backoff.BackOff {
		return backoff.WithMaxRetries(backoff.NewConstantBackOff(interval), retries)
	}
}

// ExponentialRetry retries a batch with exponential backoff until maxElapsed has passed.
func ExponentialRetry(maxElapsed time.Duration) RetryPolicy {
	return func() backoff.BackOff {
		return backoff.NewExponentialBackOff(backoff.WithMaxElapsedTime(maxElapsed))
	}
}

// BlockFunc receives every block of a range in timestamp order.
type BlockFunc func(b *types.Block) error

// Run walks [start, end] in batches of BatchSize blocks and hands every block to fn.
// Cancellation of ctx is observed only between batches: a batch that has started is fetched
// and committed to completion. It returns ctx.Err() when stopped early.
func (p *Pipeline) Run(ctx context.Context, start, end uint64, includeSwaps bool, fn BlockFunc) error {
	if end < start {
		return ErrInvalidRange
	}
	batchCtx := context.WithoutCancel(ctx)
	bs := uint64(p.batchSize)

	for s := start; s <= end; s += bs {
		if err := ctx.Err(); err != nil {
			p.log.Infow("stopping before next batch", "next", s, "reason", err)
			return err
		}
		e := min(s+bs, end+1)

		blocks, err := p.getBlocksWithRetry(ctx, batchCtx, s, e, includeSwaps)
		if err != nil {
			return err
		}
		for i := range blocks {
			if err := fn(&blocks[i]); err != nil {
				return err
			}
		}
		if e > end {
			break
		}
	}
	return nil
}

// getBlocksWithRetry retries network failures under the configured policy. Attempts run on
// batchCtx, while waiting between attempts stops as soon as ctx is cancelled.
func (p *Pipeline) getBlocksWithRetry(
	ctx, batchCtx context.Context,
	start, end uint64,
	includeSwaps bool,
) ([]types.Block, error) {
	if p.retry == nil {
		return p.GetBlocks(batchCtx, start, end, includeSwaps)
	}
	operation := func() ([]types.Block, error) {
		blocks, err := p.GetBlocks(batchCtx, start, end, includeSwaps)
		if err != nil && !errors.Is(err, chainclient.ErrNetwork) {
			return nil, backoff.Permanent(err)
		}
		return blocks, err
	}
	notify := func(err error, wait time.Duration) {
		p.log.Warnw("batch failed, retrying",
			"start", start,
			"end", end,
			"wait", wait,
			"error", err,
		)
	}
	return backoff.RetryNotifyWithData(operation, backoff.WithContext(p.retry(), ctx), notify)
}
