package main

import (
	"time"

	"github.com/urfave/cli/v2"

	"github.com/ava-labs/wealthgain-indexer/pkg/pricing"
	"github.com/ava-labs/wealthgain-indexer/pkg/pricing/coingecko"
)

func loggingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"v"},
			Usage:   "Enable verbose logging",
			EnvVars: []string{"VERBOSE"},
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "Override the log level (debug, info, warn, error)",
			EnvVars: []string{"LOG_LEVEL"},
		},
		&cli.StringFlag{
			Name:    "log-format",
			Usage:   "Log encoding (json or console)",
			EnvVars: []string{"LOG_FORMAT"},
		},
	}
}

func ledgerFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to the YAML configuration file",
			EnvVars: []string{"CONFIG_PATH"},
			Value:   "config/config.yaml",
		},
		&cli.StringFlag{
			Name:    "ledger-path",
			Aliases: []string{"d"},
			Usage:   "DuckDB ledger file; overrides ledger_path from the config file",
			EnvVars: []string{"LEDGER_PATH"},
		},
	}
}

func ingestFlags() []cli.Flag {
	flags := append(loggingFlags(), ledgerFlags()...)
	return append(flags,
		&cli.StringFlag{
			Name:     "rpc-url",
			Aliases:  []string{"r"},
			Usage:    "The Ethereum JSON-RPC URL (http(s) or ws(s))",
			EnvVars:  []string{"RPC_URL"},
			Required: true,
		},
		&cli.StringFlag{
			Name:    "coingecko-api-key",
			Usage:   "CoinGecko API key",
			EnvVars: []string{"COIN_GECKO_API_KEY"},
		},
		&cli.BoolFlag{
			Name:    "coingecko-pro",
			Usage:   "Use the CoinGecko Pro endpoint and header",
			EnvVars: []string{"COIN_GECKO_PRO"},
		},
		&cli.IntFlag{
			Name:    "coingecko-requests-per-minute",
			Usage:   "Client-side rate limit for CoinGecko (<= 0 disables it)",
			EnvVars: []string{"COIN_GECKO_REQUESTS_PER_MINUTE"},
			Value:   30,
		},
		&cli.DurationFlag{
			Name:    "coingecko-timeout",
			Usage:   "Timeout of one CoinGecko request",
			EnvVars: []string{"COIN_GECKO_TIMEOUT"},
			Value:   coingecko.DefaultTimeout,
		},
		&cli.StringFlag{
			Name:    "coingecko-platform",
			Usage:   "CoinGecko asset platform id for token lookups; also the native coin id",
			EnvVars: []string{"COIN_GECKO_PLATFORM"},
			Value:   coingecko.DefaultPlatform,
		},
		&cli.DurationFlag{
			Name:    "price-fetch-span",
			Usage:   "How far past the requested day one CoinGecko price fetch reaches",
			EnvVars: []string{"PRICE_FETCH_SPAN"},
			Value:   pricing.DefaultFetchSpan,
		},
		&cli.Uint64Flag{
			Name:    "start-block",
			Aliases: []string{"s"},
			Usage:   "Override start_block from the config file",
			EnvVars: []string{"START_BLOCK"},
		},
		&cli.Uint64Flag{
			Name:    "end-block",
			Aliases: []string{"e"},
			Usage:   "Override end_block (inclusive) from the config file",
			EnvVars: []string{"END_BLOCK"},
		},
		&cli.IntFlag{
			Name:    "batch-size",
			Aliases: []string{"b"},
			Usage:   "Override batch_size from the config file",
			EnvVars: []string{"BATCH_SIZE"},
		},
		&cli.DurationFlag{
			Name:    "retry-max-elapsed",
			Usage:   "How long a batch failing with network errors is retried (0 disables retries)",
			EnvVars: []string{"RETRY_MAX_ELAPSED"},
			Value:   5 * time.Minute,
		},
		&cli.DurationFlag{
			Name:    "progress-interval",
			Usage:   "How often ledger row counts are logged during a run (0 disables it)",
			EnvVars: []string{"PROGRESS_INTERVAL"},
			Value:   30 * time.Second,
		},
		&cli.StringFlag{
			Name:    "metrics-host",
			Usage:   "Host for Prometheus metrics server (empty for all interfaces)",
			EnvVars: []string{"METRICS_HOST"},
			Value:   "",
		},
		&cli.IntFlag{
			Name:    "metrics-port",
			Aliases: []string{"m"},
			Usage:   "Port for Prometheus metrics server (0 disables it)",
			EnvVars: []string{"METRICS_PORT"},
			Value:   0,
		},
		&cli.StringFlag{
			Name:    "network",
			Usage:   "Network label for metrics (e.g., mainnet, sepolia)",
			EnvVars: []string{"NETWORK"},
		},
		&cli.StringFlag{
			Name:    "environment",
			Usage:   "Deployment environment label for metrics (e.g., production, development)",
			EnvVars: []string{"ENVIRONMENT"},
		},
	)
}

func analyzeFlags() []cli.Flag {
	return append(ingestFlags(),
		&cli.BoolFlag{
			Name:    "include-swaps",
			Usage:   "Feed DEX-swap transfers to the metrics as well",
			EnvVars: []string{"INCLUDE_SWAPS"},
		},
		&cli.BoolFlag{
			Name:    "export-clickhouse",
			Usage:   "Export the recorded series to ClickHouse (configured through CLICKHOUSE_* variables)",
			EnvVars: []string{"EXPORT_CLICKHOUSE"},
		},
		&cli.StringFlag{
			Name:    "run-id",
			Usage:   "Identifier of the exported series; defaults to the block range",
			EnvVars: []string{"RUN_ID"},
		},
	)
}

func statsFlags() []cli.Flag {
	return append(loggingFlags(), ledgerFlags()...)
}
