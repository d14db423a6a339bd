// Package migrations embeds the charger bridge's SQLite schema.
package migrations

import "embed"

// FS holds the YYYYMMDD_HHMMSS_name.{up,down}.sql files at its root.
//
//go:embed *.sql
var FS embed.FS
