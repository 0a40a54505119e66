package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/ava-labs/wealthgain-indexer/internal/chainclient/ethereum"
	"github.com/ava-labs/wealthgain-indexer/internal/ingestion"
	"github.com/ava-labs/wealthgain-indexer/internal/types"
	"github.com/ava-labs/wealthgain-indexer/pkg/clickhouse"
	"github.com/ava-labs/wealthgain-indexer/pkg/data/clickhouse/series"
	"github.com/ava-labs/wealthgain-indexer/pkg/ledger"
	"github.com/ava-labs/wealthgain-indexer/pkg/metrics"
	"github.com/ava-labs/wealthgain-indexer/pkg/pricing"
	"github.com/ava-labs/wealthgain-indexer/pkg/pricing/coingecko"
	"github.com/ava-labs/wealthgain-indexer/pkg/scheduler"
	"github.com/ava-labs/wealthgain-indexer/pkg/utils"
)

const metricsShutdownTimeout = 5 * time.Second

// session holds everything ingest and analyze share.
type session struct {
	cfg      *Config
	log      *zap.SugaredLogger
	metrics  *metrics.Metrics
	store    *ledger.Store
	client   *ethereum.Client
	pipeline *ingestion.Pipeline
	server   *metrics.Server
	serverCh <-chan error
}

func newLogger(cfg *Config) (*zap.SugaredLogger, error) {
	sugar, err := utils.NewSugaredLoggerWithOptions(cfg.Verbose, cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return sugar, nil
}

func openSession(ctx context.Context, cfg *Config, sugar *zap.SugaredLogger) (_ *session, err error) {
	s := &session{cfg: cfg, log: sugar}
	defer func() {
		if err != nil {
			s.close()
		}
	}()

	registry := prometheus.NewRegistry()
	s.metrics, err = metrics.NewWithLabels(registry, metrics.Labels{
		Network:     cfg.Network,
		Environment: cfg.Environment,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics: %w", err)
	}

	s.store, err = ledger.Open(ctx, cfg.File.LedgerPath, sugar)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}

	if cfg.MetricsPort > 0 {
		s.server = metrics.NewServer(cfg.MetricsAddr(), registry, metrics.WithHealthCheck(s.store.Ping))
		s.serverCh = s.server.Start()
		sugar.Infof("metrics server listening on http://%s/metrics", cfg.MetricsAddr())
	}

	s.client, err = ethereum.New(ctx, cfg.RPCURL, ethereum.WithMetrics(s.metrics))
	if err != nil {
		return nil, fmt.Errorf("failed to dial rpc: %w", err)
	}

	resolver, err := pricing.NewResolver(
		coingecko.New(cfg.CoinGeckoAPIKey, cfg.coinGeckoOptions()...),
		s.store,
		sugar,
		pricing.WithMetrics(s.metrics),
		pricing.WithFetchSpan(cfg.PriceFetchSpan),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create price resolver: %w", err)
	}

	opts := []ingestion.Option{ingestion.WithMetrics(s.metrics)}
	if cfg.RetryMaxElapsed > 0 {
		opts = append(opts, ingestion.WithRetryPolicy(ingestion.ExponentialRetry(cfg.RetryMaxElapsed)))
	}
	s.pipeline, err = ingestion.New(ingestion.Config{
		Coins:      cfg.File.Coins,
		SwapEvents: cfg.File.DEXEvents,
		BatchSize:  cfg.File.BatchSize,
	}, s.client, resolver, s.store, sugar, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline: %w", err)
	}
	return s, nil
}

// blockRange resolves the inclusive range, asking the node for its head when no end block
// is configured.
func (s *session) blockRange(ctx context.Context) (uint64, uint64, error) {
	start := s.cfg.File.StartBlock
	if s.cfg.File.EndBlock != nil {
		return start, *s.cfg.File.EndBlock, nil
	}
	end, err := s.client.BlockNumber(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to get latest block height: %w", err)
	}
	s.log.Infof("end block height: not specified, using latest block %d", end)
	if end < start {
		return 0, 0, fmt.Errorf("%w: start %d is past the chain head %d", ingestion.ErrInvalidRange, start, end)
	}
	return start, end, nil
}

// run drives the pipeline over the range and watches the metrics server.
func (s *session) run(ctx context.Context, start, end uint64, includeSwaps bool, fn ingestion.BlockFunc) error {
	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	if s.serverCh != nil {
		go func() {
			select {
			case <-runCtx.Done():
			case err, ok := <-s.serverCh:
				if ok && err != nil {
					cancel(err)
				}
			}
		}()
	}

	if s.cfg.ProgressInterval > 0 {
		report := func(ctx context.Context) error {
			return logCounts(ctx, s.store, s.log)
		}
		wait := startProgress(runCtx, s.cfg.ProgressInterval, report, s.log)
		defer func() {
			cancel(nil)
			wait()
		}()
	}

	s.log.Infow("run started",
		"start", start,
		"end", end,
		"coins", s.pipeline.ActiveSymbols(),
		"batchSize", s.pipeline.BatchSize(),
	)
	err := s.pipeline.Run(runCtx, start, end, includeSwaps, fn)
	if cause := context.Cause(runCtx); cause != nil && !errors.Is(cause, context.Canceled) {
		return fmt.Errorf("metrics server failed: %w", cause)
	}
	return err
}

// startProgress runs task every interval until ctx is done. The returned func blocks until
// the loop has exited.
func startProgress(ctx context.Context, interval time.Duration, task scheduler.Task, log *zap.SugaredLogger) func() {
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := scheduler.Start(ctx, scheduler.DefaultConfig(interval), task, log); err != nil {
			log.Warnw("progress reporting stopped", "error", err)
		}
	}()
	return func() { <-done }
}

func (s *session) close() {
	if s.client != nil {
		s.client.Close()
	}
	if s.server != nil {
		s.log.Info("shutting down metrics server")
		ctx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
		defer cancel()
		if err := s.server.Shutdown(ctx); err != nil {
			s.log.Warnw("metrics server shutdown error", "error", err)
		}
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.log.Warnw("ledger close error", "error", err)
		}
	}
}

func logCounts(ctx context.Context, store *ledger.Store, log *zap.SugaredLogger) error {
	counts, err := store.Counts(ctx)
	if err != nil {
		return err
	}
	log.Infow("ledger",
		"blocks", counts.Blocks,
		"transfers", counts.Transfers,
		"marks", counts.Marks,
		"prices", counts.Prices,
	)
	return nil
}

// stopped reports whether err is the cooperative stop requested by a signal.
func stopped(err error) bool {
	return errors.Is(err, context.Canceled)
}

func runIngest(c *cli.Context) error {
	cfg, err := buildConfig(c)
	if err != nil {
		return fmt.Errorf("failed to build config: %w", err)
	}
	sugar, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer sugar.Desugar().Sync() //nolint:errcheck // best-effort flush; ignore sync errors

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := openSession(ctx, cfg, sugar)
	if err != nil {
		return err
	}
	defer s.close()

	start, end, err := s.blockRange(ctx)
	if err != nil {
		return err
	}
	blocks := 0
	err = s.run(ctx, start, end, true, func(*types.Block) error {
		blocks++
		return nil
	})
	switch {
	case stopped(err):
		sugar.Infow("interrupted, stopped after the current batch", "blocks", blocks)
	case err != nil:
		sugar.Errorw("ingest failed", "error", err)
		return err
	default:
		sugar.Infow("ingest complete", "blocks", blocks)
	}
	if err := logCounts(context.WithoutCancel(ctx), s.store, sugar); err != nil {
		sugar.Warnw("failed to read ledger counts", "error", err)
	}
	return nil
}

func runAnalyze(c *cli.Context) error {
	cfg, err := buildConfig(c)
	if err != nil {
		return fmt.Errorf("failed to build config: %w", err)
	}
	sugar, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer sugar.Desugar().Sync() //nolint:errcheck // best-effort flush; ignore sync errors

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := openSession(ctx, cfg, sugar)
	if err != nil {
		return err
	}
	defer s.close()

	a, err := newAnalyzer(cfg.File.Analysis.Windows(), s.metrics)
	if err != nil {
		return err
	}
	start, end, err := s.blockRange(ctx)
	if err != nil {
		return err
	}

	err = s.run(ctx, start, end, cfg.IncludeSwaps, a.admit)
	switch {
	case stopped(err):
		sugar.Infow("interrupted, summarizing the blocks analyzed so far")
	case err != nil:
		sugar.Errorw("analyze failed", "error", err)
		return err
	}
	a.summarize(sugar)

	if !cfg.ExportClickHouse {
		return nil
	}
	exportCtx := context.WithoutCancel(ctx)
	chCfg, err := clickhouse.Load()
	if err != nil {
		return err
	}
	chClient, err := clickhouse.New(exportCtx, chCfg, sugar)
	if err != nil {
		return fmt.Errorf("failed to create ClickHouse client: %w", err)
	}
	defer chClient.Close()

	repo, err := series.NewRepository(exportCtx, chClient, chCfg.Database, chCfg.Table, sugar)
	if err != nil {
		return fmt.Errorf("failed to create series repository: %w", err)
	}
	return a.export(exportCtx, repo, cfg.SeriesRunID(start, end))
}

func runStats(c *cli.Context) error {
	cfg, err := buildConfig(c)
	if err != nil {
		return fmt.Errorf("failed to build config: %w", err)
	}
	sugar, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer sugar.Desugar().Sync() //nolint:errcheck // best-effort flush; ignore sync errors

	store, err := ledger.Open(c.Context, cfg.File.LedgerPath, sugar)
	if err != nil {
		return fmt.Errorf("failed to open ledger: %w", err)
	}
	defer store.Close()

	counts, err := store.Counts(c.Context)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "blocks\t%d\ntransfers\t%d\nmarks\t%d\nprices\t%d\n",
		counts.Blocks, counts.Transfers, counts.Marks, counts.Prices)
	return nil
}
