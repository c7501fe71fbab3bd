// Package device maintains the local mirror of the Smarteefi cloud device
// list and exposes it to the rest of the bridge.
//
// The cloud is the source of truth for which devices exist; this package
// keeps a SQLite copy so the bridge can republish MQTT discovery and answer
// API queries immediately after a restart, before the first cloud
// enumeration completes. On every enumeration the mirror is reconciled:
// new devices are inserted, renamed devices updated, and devices that
// disappeared from the account removed.
//
// # Architecture
//
// The package has two layers:
//
//   - Repository: SQLite persistence (SQLiteRepository). All reads and
//     writes go through database/sql with the mattn/go-sqlite3 driver.
//   - Registry: a thread-safe in-memory cache over a Repository. Lookups
//     by ID, MQTT object ID, and push-status match key are served from the
//     cache; mutations write through to the repository and update the
//     cache.
//
// The Registry is the type the bridge and API layers use. The Repository
// interface exists so tests can substitute storage.
//
// # Usage
//
//	repo := device.NewSQLiteRepository(db)
//	registry := device.NewRegistry(repo)
//	if err := registry.RefreshCache(ctx); err != nil {
//	    return err
//	}
//
//	dev, err := registry.GetByObjectID(ctx, "switch_a1b2c3_4")
//	if errors.Is(err, device.ErrDeviceNotFound) {
//	    // unknown entity
//	}
package device
