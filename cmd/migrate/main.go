// Command migrate applies the embedded schema migrations to PostgreSQL
// and, when configured, ClickHouse.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"perp-signal-engine/internal/storage/migrations"
	pgstore "perp-signal-engine/internal/storage/postgres"
)

func main() {
	postgresDSN := flag.String("postgres-dsn", "", "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", "", "ClickHouse connection string (empty to skip)")
	clickhouseDB := flag.String("clickhouse-db", "perp_signals", "ClickHouse database name")
	timeout := flag.Duration("timeout", 2*time.Minute, "Overall migration timeout")

	flag.Parse()

	logger := log.New(os.Stdout, "[migrate] ", log.LstdFlags)

	if err := run(logger, *postgresDSN, *clickhouseDSN, *clickhouseDB, *timeout); err != nil {
		logger.Fatalf("Error: %v", err)
	}

	logger.Println("Migrations complete")
}

func run(logger *log.Logger, postgresDSN, clickhouseDSN, clickhouseDB string, timeout time.Duration) error {
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

	logger.Println("Applying PostgreSQL migrations...")
	if err := migrations.RunPostgres(ctx, pool); err != nil {
		return fmt.Errorf("postgres migrations: %w", err)
	}

	if clickhouseDSN != "" {
		logger.Println("Applying ClickHouse migrations...")
		if err := migrations.RunClickhouse(ctx, clickhouseDSN, clickhouseDB); err != nil {
			return fmt.Errorf("clickhouse migrations: %w", err)
		}
	}

	return nil
}
