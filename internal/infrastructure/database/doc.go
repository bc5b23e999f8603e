// Package database provides SQLite connectivity for Lamp Fleet Core.
//
// This package manages:
//   - Connection setup with WAL mode, busy timeout and foreign keys
//   - Embedded, versioned schema migrations
//   - Transaction helpers for multi-statement writes
//
// All queries in the repositories use parameterised statements and the
// database file is created with 0600 permissions.
//
// Usage:
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migration files are named YYYYMMDD_HHMMSS_description.up.sql with an
// optional matching .down.sql and are registered by the migrations package.
package database
