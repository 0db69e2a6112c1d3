// Package database provides SQLite connectivity for Crofton Core.
//
// This package manages:
//   - Database connection with WAL mode for concurrent access
//   - Embedded schema migrations applied at startup
//   - Connection lifecycle and health checks
//
// All queries use parameterised statements, and the database file is
// created with 0600 permissions.
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path, WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migration files live in the migrations package and are embedded into
// the binary. Each has a .up.sql and a .down.sql, named
// YYYYMMDD_HHMMSS_description.
package database
