package sqlite

import (
	"context"
	"database/sql"
)

// RunMigrate runs migration on a database (exported for testing)
func RunMigrate(ctx context.Context, db *sql.DB) error {
	return migrate(ctx, db)
}

// NewFromDB creates a journal from an existing db connection (exported for testing)
func NewFromDB(db *sql.DB) (*Journal, error) {
	return newFromDB(db, defaultConfig())
}

// SetDBOpener replaces the opener and returns a function restoring it.
func SetDBOpener(opener func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	prev := dbOpener
	dbOpener = opener
	return func() { dbOpener = prev }
}

// ScanEntries exposes scanEntries for row error tests.
func ScanEntries(rows rowScanner) error {
	_, err := scanEntries(rows)
	return err
}
