package main

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/ava-labs/wealthgain-indexer/internal/config"
	"github.com/ava-labs/wealthgain-indexer/internal/types"
	"github.com/ava-labs/wealthgain-indexer/pkg/data/clickhouse/series"
	"github.com/ava-labs/wealthgain-indexer/pkg/metrics"
	"github.com/ava-labs/wealthgain-indexer/pkg/slidingwindow"
)

var errNoWindows = errors.New("no analysis windows configured")

// analyzer feeds every block to one recorder per configured window.
type analyzer struct {
	recorders []*slidingwindow.Recorder
}

func newAnalyzer(windows []config.Window, m *metrics.Metrics) (*analyzer, error) {
	if len(windows) == 0 {
		return nil, errNoWindows
	}
	a := &analyzer{recorders: make([]*slidingwindow.Recorder, 0, len(windows))}
	for _, w := range windows {
		metric, err := slidingwindow.New(w.Kind, w.Length)
		if err != nil {
			return nil, fmt.Errorf("build %s/%s: %w", w.Kind, w.Length, err)
		}
		a.recorders = append(a.recorders, slidingwindow.NewRecorder(metric, slidingwindow.WithMetrics(m)))
	}
	return a, nil
}

// admit only sees valued transfers: a transfer without a USD value cannot move wealth.
func (a *analyzer) admit(b *types.Block) error {
	valued := b.Valued()
	for _, r := range a.recorders {
		r.Admit(valued)
	}
	return nil
}

func (a *analyzer) summarize(log *zap.SugaredLogger) {
	for _, r := range a.recorders {
		last, ok := r.Last()
		if !ok {
			continue
		}
		log.Infow("metric summary",
			"metric", r.Metric().Name(),
			"window", r.Metric().Window(),
			"blocks", len(r.Points()),
			"lastBlock", last.BlockNumber,
			"value", last.Value,
			"buildUpMean", r.BuildUp().Mean(),
			"slidingMean", r.Sliding().Mean(),
		)
	}
}

func (a *analyzer) export(ctx context.Context, repo series.Repository, runID string) error {
	for _, r := range a.recorders {
		s := series.Series{
			Metric: r.Metric().Name(),
			Window: r.Metric().Window(),
			RunID:  runID,
		}
		if err := repo.Write(ctx, s, r.Points()); err != nil {
			return fmt.Errorf("export series: %w", err)
		}
	}
	return nil
}
