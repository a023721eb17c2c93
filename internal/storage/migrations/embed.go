// Package migrations carries the schema for both storage engines and
// applies it at startup: the PostgreSQL tables behind the user-record
// cache and the payout audit log, and the ClickHouse table behind the
// eligibility snapshot history.
package migrations

import "embed"

// PostgresFS embeds the user_records and payout_audit migrations.
//
//go:embed postgres/*.sql
var PostgresFS embed.FS

// ClickhouseFS embeds the eligibility_snapshots migrations.
//
//go:embed clickhouse/*.sql
var ClickhouseFS embed.FS
