package migrations

import "embed"

// Engine directories inside FS.
const (
	PostgresDir   = "postgres"
	ClickhouseDir = "clickhouse"
)

// FS holds the SQL migrations of every engine, one directory per engine.
//
//go:embed postgres/*.sql clickhouse/*.sql
var FS embed.FS
