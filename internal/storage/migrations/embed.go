// Package migrations carries the embedded schema for both databases:
// PostgreSQL holds the engine's relational state, ClickHouse the
// append-only signal transition log. Files apply in lexical order.
package migrations

import "embed"

// Migration SQL, one numbered file per change.
var (
	//go:embed postgres/*.sql
	PostgresFS embed.FS

	//go:embed clickhouse/*.sql
	ClickhouseFS embed.FS
)
