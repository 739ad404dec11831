// Package database opens the SQLite file backing the lifecycle journal and
// applies its schema migrations.
//
// The connection uses WAL mode and a busy timeout, is limited to a single
// open connection (SQLite has one writer), and the file is created with
// owner-only permissions.
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: cfg.Journal.Path, WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Migration files are named YYYYMMDD_HHMMSS_description.up.sql with an
// optional matching .down.sql, and are applied oldest first, one
// transaction each.
package database
