package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
)

func main() {
	// A missing .env is fine: every value can also come from the environment or flags.
	_ = godotenv.Load()

	app := &cli.App{
		Name:  "wealthgain",
		Usage: "Index priced Ethereum transfers and compute sliding-window wealth-gain metrics",
		Commands: []*cli.Command{
			{
				Name:   "ingest",
				Usage:  "Fetch, price and store every block of the configured range",
				Flags:  ingestFlags(),
				Action: runIngest,
			},
			{
				Name:   "analyze",
				Usage:  "Ingest the configured range and stream it through every metric window",
				Flags:  analyzeFlags(),
				Action: runAnalyze,
			},
			{
				Name:   "stats",
				Usage:  "Print ledger row counts",
				Flags:  statsFlags(),
				Action: runStats,
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
