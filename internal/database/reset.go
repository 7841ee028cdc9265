package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"ledger-backend/internal/db"
)

// Reset drops every ledger table and the migration history so the next open
// recreates the schema from scratch. It connects directly, without the
// provider, because it is the way out of a failed migration.
func Reset(ctx context.Context, driver, dsn string) error {
	d, err := db.DialectFor(driver)
	if err != nil {
		return err
	}
	conn, err := sql.Open(d.DriverName, dsn)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer conn.Close()

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Reverse dependency order
	tables := []string{"schema_migrations"}
	for i := len(db.AllStores) - 1; i >= 0; i-- {
		tables = append(tables, string(db.AllStores[i]))
	}
	for _, table := range tables {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", table)); err != nil {
			return fmt.Errorf("drop %s: %w", table, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	log.Printf("[Storage] reset %s storage, dropped %d tables", d.Name, len(tables))
	return nil
}
