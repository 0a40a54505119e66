package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/ava-labs/wealthgain-indexer/internal/config"
	"github.com/ava-labs/wealthgain-indexer/pkg/pricing/coingecko"
	"github.com/ava-labs/wealthgain-indexer/pkg/utils"
)

// Config holds all configuration for one command: the YAML file plus flag overrides.
type Config struct {
	// Application settings
	Verbose bool
	Log     utils.LogOptions

	// Indexing settings from the config file, after overrides
	File *config.Config

	// Chain and price source
	RPCURL                string
	CoinGeckoAPIKey       string
	CoinGeckoPro          bool
	CoinGeckoRequestsPerM int
	CoinGeckoTimeout      time.Duration
	CoinGeckoPlatform     string
	PriceFetchSpan        time.Duration
	RetryMaxElapsed       time.Duration
	ProgressInterval      time.Duration

	// Analysis settings
	IncludeSwaps     bool
	ExportClickHouse bool
	RunID            string

	// Metrics settings
	MetricsHost string
	MetricsPort int
	Network     string
	Environment string
}

// MetricsAddr returns the formatted metrics address
func (c *Config) MetricsAddr() string {
	return fmt.Sprintf("%s:%d", c.MetricsHost, c.MetricsPort)
}

// SeriesRunID names an exported run after its block range unless one was given.
func (c *Config) SeriesRunID(start, end uint64) string {
	if c.RunID != "" {
		return c.RunID
	}
	return fmt.Sprintf("%d-%d", start, end)
}

func (c *Config) coinGeckoOptions() []coingecko.Option {
	opts := []coingecko.Option{
		coingecko.WithRequestsPerMinute(c.CoinGeckoRequestsPerM),
		coingecko.WithHTTPClient(&http.Client{Timeout: c.CoinGeckoTimeout}),
	}
	if c.CoinGeckoPlatform != "" {
		opts = append(opts, coingecko.WithPlatform(c.CoinGeckoPlatform))
	}
	if c.CoinGeckoPro {
		opts = append(opts, coingecko.WithPro())
	}
	return opts
}

// buildConfig builds a Config from CLI context flags
func buildConfig(c *cli.Context) (*Config, error) {
	file, err := config.Load(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}
	if c.IsSet("ledger-path") {
		file.LedgerPath = c.String("ledger-path")
	}
	if c.IsSet("start-block") {
		file.StartBlock = c.Uint64("start-block")
	}
	if c.IsSet("end-block") {
		end := c.Uint64("end-block")
		file.EndBlock = &end
	}
	if c.IsSet("batch-size") {
		file.BatchSize = c.Int("batch-size")
	}
	if err := file.Validate(); err != nil {
		return nil, err
	}

	return &Config{
		Verbose: c.Bool("verbose"),
		Log: utils.LogOptions{
			Level:  c.String("log-level"),
			Format: c.String("log-format"),
		},
		File:                  file,
		RPCURL:                c.String("rpc-url"),
		CoinGeckoAPIKey:       c.String("coingecko-api-key"),
		CoinGeckoPro:          c.Bool("coingecko-pro"),
		CoinGeckoRequestsPerM: c.Int("coingecko-requests-per-minute"),
		CoinGeckoTimeout:      c.Duration("coingecko-timeout"),
		CoinGeckoPlatform:     c.String("coingecko-platform"),
		PriceFetchSpan:        c.Duration("price-fetch-span"),
		RetryMaxElapsed:       c.Duration("retry-max-elapsed"),
		ProgressInterval:      c.Duration("progress-interval"),
		IncludeSwaps:          c.Bool("include-swaps"),
		ExportClickHouse:      c.Bool("export-clickhouse"),
		RunID:                 c.String("run-id"),
		MetricsHost:           c.String("metrics-host"),
		MetricsPort:           c.Int("metrics-port"),
		Network:               c.String("network"),
		Environment:           c.String("environment"),
	}, nil
}
