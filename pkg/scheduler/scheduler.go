// Package scheduler runs a task on a fixed interval for the lifetime of a context.
package scheduler

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

var (
	ErrInvalidInterval = errors.New("invalid interval: must be greater than 0")
	ErrInvalidLogger   = errors.New("invalid logger: must not be nil")
)

// Task is one scheduled unit of work. ctx is bounded by Config.Timeout.
type Task func(ctx context.Context) error

// Config controls the tick interval and the per-tick retry budget.
type Config struct {
	Interval     time.Duration
	Timeout      time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
}

// DefaultConfig returns the settings used for progress reporting.
func DefaultConfig(interval time.Duration) Config {
	return Config{
		Interval:     interval,
		Timeout:      time.Second,
		MaxRetries:   3,
		RetryBackoff: 300 * time.Millisecond,
	}
}

// Start calls task every cfg.Interval until ctx is done. A tick whose task still fails after
// cfg.MaxRetries retries is logged and skipped; the schedule keeps running. Start returns nil
// on cancellation.
func Start(ctx context.Context, cfg Config, task Task, log *zap.SugaredLogger) error {
	if cfg.Interval <= 0 {
		return ErrInvalidInterval
	}
	if log == nil {
		return ErrInvalidLogger
	}
	t := time.NewTicker(cfg.Interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if err := runWithRetry(ctx, cfg, task); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				log.Warnw("scheduled task failed", "error", err, "retries", cfg.MaxRetries)
			}
		}
	}
}

func runWithRetry(ctx context.Context, cfg Config, task Task) error {
	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		taskCtx, cancel := ctx, context.CancelFunc(func() {})
		if cfg.Timeout > 0 {
			taskCtx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		}
		lastErr = task(taskCtx)
		cancel()
		if lastErr == nil {
			return nil
		}
		if attempt < cfg.MaxRetries {
			select {
			case <-time.After(cfg.RetryBackoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return lastErr
}
