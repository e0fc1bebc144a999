// Package database provides the SQLite connection used by the device's
// persistent configuration and state storages.
//
// This package manages:
//   - Opening the database file with WAL mode and a busy timeout
//   - Embedded, versioned schema migrations
//   - Transaction helpers for batch commits
//
// The device keeps exactly one writer connection open. Storages load their
// rows into memory at startup and write back in a single transaction on
// commit, so the database is touched rarely and never from timer goroutines.
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: cfg.Storage.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
package database
