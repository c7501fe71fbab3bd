// Package database provides the SQLite device mirror for the Smarteefi bridge.
//
// The mirror caches the cloud's device list (one row per switch, fan, light
// or cover module) so the bridge can serve lookups and republish discovery
// without a network round trip. It is rebuilt from the cloud on every
// refresh cycle, which keeps the schema small and forward-only.
//
// This package manages:
//   - Database connection with WAL mode for concurrent reads during refresh
//   - Forward-only schema migrations embedded via the migrations package
//   - Health checks and pool statistics for the API health endpoint
//
// Usage:
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// Migration files are named DATE_TIME_name.up.sql and applied in version
// order, each in its own transaction. There are no down migrations: the
// mirror can always be rebuilt from the cloud, so schema changes only
// ever add.
package database
