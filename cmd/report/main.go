// Command report renders the current performance snapshot from stored
// signals and performance records.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"perp-signal-engine/internal/reporting"
	pgstore "perp-signal-engine/internal/storage/postgres"
)

func main() {
	// Parse flags
	postgresDSN := flag.String("postgres-dsn", "", "PostgreSQL connection string")
	format := flag.String("format", "markdown", "Output format: markdown or csv")
	outPath := flag.String("out", "", "Output file (default stdout)")
	timeout := flag.Duration("timeout", time.Minute, "Report generation timeout")
	flag.Parse()

	if *postgresDSN == "" {
		fmt.Fprintln(os.Stderr, "Error: --postgres-dsn is required")
		os.Exit(1)
	}
	if *format != "markdown" && *format != "csv" {
		fmt.Fprintf(os.Stderr, "Error: unknown format %q (use markdown or csv)\n", *format)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	pool, err := pgstore.NewPool(ctx, *postgresDSN)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error connecting to postgres: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	gen := reporting.NewGenerator(
		pgstore.NewSignalStore(pool),
		pgstore.NewPerformanceStore(pool),
	)

	report, err := gen.Generate(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error generating report: %v\n", err)
		os.Exit(1)
	}

	var rendered string
	switch *format {
	case "markdown":
		rendered = reporting.RenderMarkdown(report)
	case "csv":
		rendered = reporting.RenderCSV(report.Timeframes)
	}

	if *outPath == "" {
		fmt.Print(rendered)
		return
	}

	if err := os.WriteFile(*outPath, []byte(rendered), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing %s: %v\n", *outPath, err)
		os.Exit(1)
	}
	fmt.Printf("Report written to %s\n", *outPath)
}
