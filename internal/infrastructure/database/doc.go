// Package database provides the SQLite store behind the charger bridge's
// bay history and command audit.
//
// Open applies WAL mode and a busy timeout through the DSN and limits the
// pool to one connection. Schema changes are plain SQL files named
// YYYYMMDD_HHMMSS_name.up.sql with an optional .down.sql partner, applied
// by Migrate from any fs.FS (normally migrations.FS).
//
// Usage:
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
package database
