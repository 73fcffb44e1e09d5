// Command sweep runs a single monitor pass over the active signals and
// exits. Useful for cron-driven deployments and for poking a stuck signal
// without restarting the engine.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"perp-signal-engine/internal/monitor"
	"perp-signal-engine/internal/provider"
	"perp-signal-engine/internal/queue"
	chstore "perp-signal-engine/internal/storage/clickhouse"
	pgstore "perp-signal-engine/internal/storage/postgres"
)

func main() {
	infoEndpoint := flag.String("hyperliquid-endpoint", "https://api.hyperliquid.xyz/info", "Hyperliquid info API endpoint")
	binanceEndpoint := flag.String("binance-endpoint", "https://fapi.binance.com", "Binance futures API endpoint for price fallback (empty to disable)")
	postgresDSN := flag.String("postgres-dsn", "", "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", "", "ClickHouse connection string for the transition log (empty to disable)")
	clickhouseDB := flag.String("clickhouse-db", "perp_signals", "ClickHouse database name")
	closeSignal := flag.String("close", "", "Force-close this signal ID at the current mark price instead of sweeping")
	timeout := flag.Duration("timeout", 2*time.Minute, "Overall sweep timeout")

	flag.Parse()

	logger := log.New(os.Stdout, "[sweep] ", log.LstdFlags)

	if err := run(logger, *infoEndpoint, *binanceEndpoint, *postgresDSN, *clickhouseDSN, *clickhouseDB, *closeSignal, *timeout); err != nil {
		logger.Fatalf("Error: %v", err)
	}
}

func run(logger *log.Logger, infoEndpoint, binanceEndpoint, postgresDSN, clickhouseDSN, clickhouseDB, closeSignal string, timeout time.Duration) error {
	if postgresDSN == "" {
		return fmt.Errorf("--postgres-dsn is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	pool, err := pgstore.NewPool(ctx, postgresDSN)
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	defer pool.Close()

	opts := &monitor.Options{Logger: logger}

	if clickhouseDSN != "" {
		conn, err := chstore.NewConnWithDatabase(ctx, clickhouseDSN, clickhouseDB)
		if err != nil {
			return fmt.Errorf("connect to clickhouse: %w", err)
		}
		defer conn.Close()
		opts.Transitions = chstore.NewTransitionStore(conn)
	}

	hl := provider.NewHyperliquidClient(infoEndpoint)
	opts.Funding = hl

	sources := []provider.PriceSource{hl}
	if binanceEndpoint != "" {
		sources = append(sources, provider.NewBinanceClient(binanceEndpoint))
	}
	prices := provider.NewChain(logger, sources...)

	// Notifications raised by a one-shot sweep land on an in-process queue
	// and are drained into the log before exit.
	q := queue.NewMemoryQueue()

	mon := monitor.New(
		pgstore.NewSignalStore(pool),
		pgstore.NewPerformanceStore(pool),
		prices,
		q,
		opts,
	)

	if closeSignal != "" {
		if err := mon.CloseManual(ctx, closeSignal); err != nil {
			return err
		}
		logger.Printf("Signal %s closed manually", closeSignal)
	} else {
		stats, err := mon.SweepOnce(ctx)
		if err != nil {
			return err
		}
		logger.Printf("Sweep complete: %d signals, %d targets hit, %d stops, %d completed, %d skipped, %d price failures",
			stats.Signals, stats.TargetsHit, stats.StopsHit, stats.Completed, stats.Skipped, stats.PriceFailures)
	}

	if q.Len(queue.StreamNotifications) > 0 {
		drainCtx, drainCancel := context.WithTimeout(ctx, time.Second)
		defer drainCancel()
		_ = q.Consume(drainCtx, queue.StreamNotifications, func(_ context.Context, msg queue.Message) error {
			logger.Printf("Notification: %s", msg.Payload)
			return nil
		})
	}

	return nil
}
