// Package series exports recorded sliding-window aggregates to ClickHouse.
package series

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ava-labs/wealthgain-indexer/pkg/clickhouse"
	"github.com/ava-labs/wealthgain-indexer/pkg/slidingwindow"
)

//go:embed queries/create-table.sql
var createTableQuery string

//go:embed queries/insert-points.sql
var insertPointsQuery string

//go:embed queries/delete-run.sql
var deleteRunQuery string

// DefaultMaxBatchRows bounds the rows sent in one ClickHouse batch.
const DefaultMaxBatchRows = 10_000

var (
	ErrInvalidClient = errors.New("invalid clickhouse client: must not be nil")
	ErrInvalidLogger = errors.New("invalid logger: must not be nil")
	ErrInvalidTable  = errors.New("invalid table: database and table name are required")
)

// Series identifies one recorded series. Rows written under the same run id replace each
// other on merge, so re-exporting a run is idempotent.
type Series struct {
	Metric string
	Window time.Duration
	RunID  string
}

// Repository writes metric series.
type Repository interface {
	Initialize(ctx context.Context) error
	Write(ctx context.Context, s Series, points []slidingwindow.Point) error
	DeleteRun(ctx context.Context, runID string) error
}

var _ Repository = (*repository)(nil)

type repository struct {
	client       clickhouse.Client
	database     string
	table        string
	maxBatchRows int
	log          *zap.SugaredLogger
}

// Option configures the repository.
type Option func(*repository)

// WithMaxBatchRows overrides DefaultMaxBatchRows. Values <= 0 are ignored.
func WithMaxBatchRows(n int) Option {
	return func(r *repository) {
		if n > 0 {
			r.maxBatchRows = n
		}
	}
}

// NewRepository creates the series table if needed.
func NewRepository(
	ctx context.Context,
	client clickhouse.Client,
	database, table string,
	log *zap.SugaredLogger,
	opts ...Option,
) (Repository, error) {
	switch {
	case client == nil:
		return nil, ErrInvalidClient
	case log == nil:
		return nil, ErrInvalidLogger
	case database == "" || table == "":
		return nil, ErrInvalidTable
	}
	repo := &repository{
		client:       client,
		database:     database,
		table:        table,
		maxBatchRows: DefaultMaxBatchRows,
		log:          log,
	}
	for _, opt := range opts {
		opt(repo)
	}
	if err := repo.Initialize(ctx); err != nil {
		return nil, err
	}
	return repo, nil
}

// Initialize ensures the series table exists.
// Schema:
//   - metric, window_seconds, run_id, block_number: sort key
//   - inserted_at: version column used by ReplacingMergeTree for deduplication
func (r *repository) Initialize(ctx context.Context) error {
	query := fmt.Sprintf(createTableQuery, r.database, r.table)
	if err := r.client.Conn().Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create series table: %w", err)
	}
	return nil
}

// Write appends points in batches of at most maxBatchRows.
func (r *repository) Write(ctx context.Context, s Series, points []slidingwindow.Point) error {
	if len(points) == 0 {
		return nil
	}
	windowSeconds := uint32(s.Window / time.Second)
	query := fmt.Sprintf(insertPointsQuery, r.database, r.table)

	for start := 0; start < len(points); start += r.maxBatchRows {
		end := min(start+r.maxBatchRows, len(points))
		if err := r.send(ctx, query, s, windowSeconds, points[start:end]); err != nil {
			return fmt.Errorf("write %s/%ds points [%d,%d): %w", s.Metric, windowSeconds, start, end, err)
		}
	}
	r.log.Infow("series exported",
		"metric", s.Metric,
		"window", s.Window,
		"run", s.RunID,
		"points", len(points),
	)
	return nil
}

func (r *repository) send(
	ctx context.Context,
	query string,
	s Series,
	windowSeconds uint32,
	points []slidingwindow.Point,
) error {
	batch, err := r.client.Conn().PrepareBatch(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}
	for _, p := range points {
		if err := batch.Append(s.Metric, windowSeconds, s.RunID, p.BlockNumber, p.Time, p.Value); err != nil {
			_ = batch.Abort()
			return fmt.Errorf("failed to append point for block %d: %w", p.BlockNumber, err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}
	return nil
}

// DeleteRun removes every point written under runID.
func (r *repository) DeleteRun(ctx context.Context, runID string) error {
	query := fmt.Sprintf(deleteRunQuery, r.database, r.table)
	if err := r.client.Conn().Exec(ctx, query, runID); err != nil {
		return fmt.Errorf("failed to delete run %q: %w", runID, err)
	}
	return nil
}
