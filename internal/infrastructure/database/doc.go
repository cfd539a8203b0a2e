// Package database provides the SQLite store used by the bridge to remember
// which accessories it has registered between restarts.
//
// Connections run in WAL mode with a busy timeout and a single writer.
// Schema changes are versioned migration files read from an fs.FS, so the
// binary can carry them embedded:
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
//
// Migration files are named YYYYMMDD_HHMMSS_description.up.sql with a
// matching .down.sql. The database file is created with 0600 permissions.
package database
