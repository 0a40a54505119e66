// Package ledger is the embedded relational store for blocks, transfers, ingestion marks and
// cached daily prices. It is backed by DuckDB and is the only durable artifact of the indexer:
// deleting the database file forces a full re-ingestion.
package ledger

import (
	"cmp"
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/ava-labs/libevm/common"
	_ "github.com/marcboeker/go-duckdb/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ava-labs/wealthgain-indexer/internal/types"
)

var (
	ErrStorage       = errors.New("storage error")
	ErrInvalidLogger = errors.New("logger is required")
)

//go:embed queries/schema.sql
var schemaQuery string

//go:embed queries/insert-block.sql
var insertBlockQuery string

//go:embed queries/upsert-transfer.sql
var upsertTransferQuery string

//go:embed queries/insert-mark.sql
var insertMarkQuery string

//go:embed queries/read-marks.sql
var readMarksQuery string

//go:embed queries/upsert-price.sql
var upsertPriceQuery string

//go:embed queries/read-price.sql
var readPriceQuery string

//go:embed queries/read-blocks.sql
var readBlocksQuery string

//go:embed queries/counts.sql
var countsQuery string

// BlockRow is the header row written to the blocks table.
type BlockRow struct {
	Number uint64
	Time   time.Time
}

// Batch is the unit of an atomic commit: block headers, their transfers and the ingestion
// marks that certify them.
type Batch struct {
	Blocks    []BlockRow
	Transfers []types.Transfer
	Marks     []types.IngestionMark
}

// Empty reports whether the batch has nothing to write.
func (b Batch) Empty() bool {
	return len(b.Blocks) == 0 && len(b.Transfers) == 0 && len(b.Marks) == 0
}

// Counts holds the number of rows per table.
type Counts struct {
	Blocks    int64
	Transfers int64
	Marks     int64
	Prices    int64
}

type Store struct {
	db  *sql.DB
	log *zap.SugaredLogger
}

// Open opens (or creates) the DuckDB database at path and applies the schema.
// An empty path opens a private in-memory database.
func Open(ctx context.Context, path string, log *zap.SugaredLogger) (*Store, error) {
	if log == nil {
		return nil, ErrInvalidLogger
	}
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open ledger %q: %w: %w", path, ErrStorage, err)
	}
	s := &Store{db: db, log: log}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	log.Debugw("ledger opened", "path", path)
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	for _, stmt := range strings.Split(schemaQuery, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w: %w", ErrStorage, err)
		}
	}
	return nil
}

// Ping checks that the database is usable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Commit writes the batch in one transaction. Rows are written in block-number order;
// existing blocks and marks are left untouched and existing transfers are overwritten.
// Any failure rolls the whole batch back.
func (s *Store) Commit(ctx context.Context, batch Batch) (err error) {
	if batch.Empty() {
		return nil
	}
	blocks := slices.Clone(batch.Blocks)
	slices.SortFunc(blocks, func(a, b BlockRow) int { return cmp.Compare(a.Number, b.Number) })
	transfers := dedupeTransfers(batch.Transfers)
	marks := slices.Clone(batch.Marks)
	slices.SortFunc(marks, func(a, b types.IngestionMark) int {
		if c := cmp.Compare(a.BlockNumber, b.BlockNumber); c != 0 {
			return c
		}
		return strings.Compare(a.Coin, b.Coin)
	})

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin commit: %w: %w", ErrStorage, err)
	}
	defer func() {
		if err == nil {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			s.log.Errorw("rollback failed", "error", rbErr)
		}
		err = fmt.Errorf("commit batch: %w: %w", ErrStorage, err)
	}()

	for _, b := range blocks {
		if _, err = tx.ExecContext(ctx, insertBlockQuery, int64(b.Number), b.Time.UTC()); err != nil {
			return fmt.Errorf("insert block %d: %w", b.Number, err)
		}
	}
	for i := range transfers {
		t := &transfers[i]
		usd := sql.NullFloat64{}
		if t.USDValue != nil {
			usd = sql.NullFloat64{Float64: *t.USDValue, Valid: true}
		}
		_, err = tx.ExecContext(ctx, upsertTransferQuery,
			t.Hash.Hex(),
			int32(t.LogIndex),
			int64(t.BlockNumber),
			t.Coin,
			strings.ToLower(t.From.Hex()),
			strings.ToLower(t.To.Hex()),
			t.Amount,
			usd,
			t.IsDEXSwap,
		)
		if err != nil {
			return fmt.Errorf("upsert transfer %s/%d: %w", t.Hash.Hex(), t.LogIndex, err)
		}
	}
	for _, m := range marks {
		if _, err = tx.ExecContext(ctx, insertMarkQuery, int64(m.BlockNumber), m.Coin); err != nil {
			return fmt.Errorf("insert mark %d/%s: %w", m.BlockNumber, m.Coin, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return err
	}

	s.log.Debugw("batch committed",
		"blocks", len(blocks),
		"transfers", len(transfers),
		"marks", len(marks),
	)
	return nil
}

// dedupeTransfers keeps the last occurrence of every (hash, log index) and orders the result
// by block number, hash and log index.
func dedupeTransfers(in []types.Transfer) []types.Transfer {
	type key struct {
		hash string
		log  int64
	}
	pos := make(map[key]int, len(in))
	out := make([]types.Transfer, 0, len(in))
	for _, t := range in {
		k := key{t.Hash.Hex(), t.LogIndex}
		if i, ok := pos[k]; ok {
			out[i] = t
			continue
		}
		pos[k] = len(out)
		out = append(out, t)
	}
	slices.SortStableFunc(out, func(a, b types.Transfer) int {
		if c := cmp.Compare(a.BlockNumber, b.BlockNumber); c != 0 {
			return c
		}
		if c := strings.Compare(a.Hash.Hex(), b.Hash.Hex()); c != 0 {
			return c
		}
		return cmp.Compare(a.LogIndex, b.LogIndex)
	})
	return out
}

// IngestionMarks returns, for every block in [start, end), the set of coins already marked.
// Blocks without marks are absent from the map.
func (s *Store) IngestionMarks(ctx context.Context, start, end uint64) (map[uint64]map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx, readMarksQuery, int64(start), int64(end))
	if err != nil {
		return nil, fmt.Errorf("read marks: %w: %w", ErrStorage, err)
	}
	defer rows.Close()

	marks := make(map[uint64]map[string]struct{})
	for rows.Next() {
		var (
			number int64
			coin   string
		)
		if err := rows.Scan(&number, &coin); err != nil {
			return nil, fmt.Errorf("scan mark: %w: %w", ErrStorage, err)
		}
		set, ok := marks[uint64(number)]
		if !ok {
			set = make(map[string]struct{})
			marks[uint64(number)] = set
		}
		set[coin] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read marks: %w: %w", ErrStorage, err)
	}
	return marks, nil
}

// Missing returns the blocks in [start, end) that lack a mark for at least one of coins,
// ordered by block number.
func (s *Store) Missing(ctx context.Context, start, end uint64, coins []string) ([]types.MissingBlock, error) {
	if end <= start || len(coins) == 0 {
		return nil, nil
	}
	marks, err := s.IngestionMarks(ctx, start, end)
	if err != nil {
		return nil, err
	}
	var missing []types.MissingBlock
	for n := start; n < end; n++ {
		have := marks[n]
		var lacking []string
		for _, c := range coins {
			if _, ok := have[c]; !ok {
				lacking = append(lacking, c)
			}
		}
		if len(lacking) > 0 {
			missing = append(missing, types.MissingBlock{Number: n, Coins: lacking})
		}
	}
	return missing, nil
}

// Price returns the cached USD price of coin on day's UTC date.
func (s *Store) Price(ctx context.Context, coin string, day time.Time) (decimal.Decimal, bool, error) {
	var usd float64
	err := s.db.QueryRowContext(ctx, readPriceQuery, coin, types.DayString(day)).Scan(&usd)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Decimal{}, false, nil
	}
	if err != nil {
		return decimal.Decimal{}, false, fmt.Errorf("read price %s@%s: %w: %w", coin, types.DayString(day), ErrStorage, err)
	}
	return decimal.NewFromFloat(usd), true, nil
}

// UpsertPrices stores prices, replacing any cached value for the same coin and day.
func (s *Store) UpsertPrices(ctx context.Context, prices []types.DailyPrice) (err error) {
	if len(prices) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin price upsert: %w: %w", ErrStorage, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
			err = fmt.Errorf("upsert prices: %w: %w", ErrStorage, err)
		}
	}()
	for _, p := range prices {
		if _, err = tx.ExecContext(ctx, upsertPriceQuery, p.Coin, types.DayString(p.Day), p.USD.InexactFloat64()); err != nil {
			return fmt.Errorf("%s@%s: %w", p.Coin, types.DayString(p.Day), err)
		}
	}
	return tx.Commit()
}

// Blocks reads back every stored block in [start, end) ordered by timestamp, with the
// transfers of the given coins nested in (hash, log index) order. Swap-flagged transfers are
// dropped unless includeSwaps is set.
func (s *Store) Blocks(ctx context.Context, start, end uint64, coins []string, includeSwaps bool) ([]types.Block, error) {
	if end <= start {
		return nil, nil
	}
	placeholders := "NULL"
	args := make([]any, 0, len(coins)+3)
	if len(coins) > 0 {
		placeholders = strings.TrimSuffix(strings.Repeat("?, ", len(coins)), ", ")
		for _, c := range coins {
			args = append(args, c)
		}
	}
	args = append(args, includeSwaps, int64(start), int64(end))

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(readBlocksQuery, placeholders), args...)
	if err != nil {
		return nil, fmt.Errorf("read blocks: %w: %w", ErrStorage, err)
	}
	defer rows.Close()

	var blocks []types.Block
	for rows.Next() {
		var (
			number   int64
			ts       time.Time
			hash     sql.NullString
			logIndex sql.NullInt64
			coin     sql.NullString
			from     sql.NullString
			to       sql.NullString
			amount   sql.NullInt64
			usd      sql.NullFloat64
			swap     sql.NullBool
		)
		if err := rows.Scan(&number, &ts, &hash, &logIndex, &coin, &from, &to, &amount, &usd, &swap); err != nil {
			return nil, fmt.Errorf("scan block row: %w: %w", ErrStorage, err)
		}
		if n := len(blocks); n == 0 || blocks[n-1].Number != uint64(number) {
			blocks = append(blocks, types.Block{Number: uint64(number), Time: ts.UTC()})
		}
		if !hash.Valid {
			continue
		}
		t := types.Transfer{
			Hash:        common.HexToHash(hash.String),
			LogIndex:    logIndex.Int64,
			BlockNumber: uint64(number),
			Coin:        coin.String,
			From:        common.HexToAddress(from.String),
			To:          common.HexToAddress(to.String),
			Amount:      amount.Int64,
			IsDEXSwap:   swap.Bool,
		}
		if usd.Valid {
			v := usd.Float64
			t.USDValue = &v
		}
		last := &blocks[len(blocks)-1]
		last.Transfers = append(last.Transfers, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read blocks: %w: %w", ErrStorage, err)
	}
	return blocks, nil
}

// Counts returns the row count of every table.
func (s *Store) Counts(ctx context.Context) (Counts, error) {
	var c Counts
	if err := s.db.QueryRowContext(ctx, countsQuery).Scan(&c.Blocks, &c.Transfers, &c.Marks, &c.Prices); err != nil {
		return Counts{}, fmt.Errorf("count rows: %w: %w", ErrStorage, err)
	}
	return c, nil
}
