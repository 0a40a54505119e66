// Package config loads the indexer's YAML configuration file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ava-labs/wealthgain-indexer/internal/types"
	"github.com/ava-labs/wealthgain-indexer/pkg/slidingwindow"
)

const (
	DefaultBatchSize  = 100
	DefaultLedgerPath = "wealthgain.duckdb"
)

var ErrInvalidConfig = errors.New("invalid config")

// Config is the content of the YAML configuration file.
type Config struct {
	Coins      []types.Coin `yaml:"token"`
	DEXEvents  []string     `yaml:"dex_events"`
	StartBlock uint64       `yaml:"start_block"`
	// EndBlock is inclusive. Nil means the node's latest block at startup.
	EndBlock   *uint64  `yaml:"end_block"`
	BatchSize  int      `yaml:"batch_size"`
	LedgerPath string   `yaml:"ledger_path"`
	Analysis   Analysis `yaml:"analysis"`
}

// Analysis lists window lengths, in seconds, per metric.
type Analysis struct {
	WealthGain          []uint32 `yaml:"cumulative_wealth_gain"`
	TransactionCounting []uint32 `yaml:"transaction_counting"`
	DeFiTransactions    []uint32 `yaml:"defi_transactions"`
}

// Window is one metric instance to run.
type Window struct {
	Kind   string
	Length time.Duration
}

// Windows returns every configured metric instance in a stable order.
func (a Analysis) Windows() []Window {
	var out []Window
	add := func(kind string, secs []uint32) {
		for _, s := range secs {
			out = append(out, Window{Kind: kind, Length: time.Duration(s) * time.Second})
		}
	}
	add(slidingwindow.KindWealthGain, a.WealthGain)
	add(slidingwindow.KindTransactionCounting, a.TransactionCounting)
	add(slidingwindow.KindDeFiTransactions, a.DeFiTransactions)
	return out
}

// Load reads and validates the file at path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse decodes a configuration, applies defaults and validates it. Unknown keys are
// rejected so that a misspelt option is not silently ignored.
func Parse(r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)

	var cfg Config
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.BatchSize == 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.LedgerPath == "" {
		c.LedgerPath = DefaultLedgerPath
	}
}

// Validate checks the coins, the block range, the batch size and the windows.
func (c *Config) Validate() error {
	var errs []error
	seen := make(map[string]struct{}, len(c.Coins))
	for _, coin := range c.Coins {
		if err := coin.Validate(); err != nil {
			errs = append(errs, err)
			continue
		}
		if _, dup := seen[coin.Symbol]; dup {
			errs = append(errs, fmt.Errorf("duplicate coin %q", coin.Symbol))
		}
		seen[coin.Symbol] = struct{}{}
	}
	if len(types.ActiveCoins(c.Coins)) == 0 {
		errs = append(errs, errors.New("at least one active coin is required"))
	}
	if c.EndBlock != nil && *c.EndBlock < c.StartBlock {
		errs = append(errs, fmt.Errorf("end_block %d is before start_block %d", *c.EndBlock, c.StartBlock))
	}
	if c.BatchSize < 0 {
		errs = append(errs, fmt.Errorf("batch_size must be positive, got %d", c.BatchSize))
	}
	for _, w := range c.Analysis.Windows() {
		if w.Length <= 0 {
			errs = append(errs, fmt.Errorf("%s window must be positive", w.Kind))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}
