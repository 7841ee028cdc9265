package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"ledger-backend/internal/apperrors"
	"ledger-backend/internal/db"
)

// Step is one versioned schema upgrade. Apply must check the target shape
// before changing it so that running it against an upgraded schema is a no-op.
type Step struct {
	Version int
	Name    string
	Apply   func(ctx context.Context, s *Schema) error
}

// Migrator handles database schema migrations
type Migrator struct {
	steps []Step
}

// NewMigrator creates a migration runner with the ledger's schema steps
func NewMigrator() *Migrator {
	return &Migrator{steps: ledgerSteps()}
}

// NewMigratorWithSteps creates a migration runner over custom steps
//
// Parameters:
//   - steps: ordered by ascending Version
func NewMigratorWithSteps(steps []Step) *Migrator {
	return &Migrator{steps: steps}
}

// LatestVersion is the version the schema has after all steps ran.
func (m *Migrator) LatestVersion() int {
	latest := 0
	for _, s := range m.steps {
		if s.Version > latest {
			latest = s.Version
		}
	}
	return latest
}

// Migrate executes all pending steps
//
// This function:
//  1. Creates the schema_migrations tracking table if it doesn't exist
//  2. Runs every step in its own transaction, skipping recorded versions
//  3. Records each successful step
//
// Returns:
//   - int: schema version after the upgrade
//   - error: *apperrors.Error with CodeMigration if any step fails
func (m *Migrator) Migrate(ctx context.Context, conn *sql.DB, d db.Dialect) (int, error) {
	log.Println("[Migrate] Starting schema migrations...")

	if err := m.createMigrationsTable(ctx, conn); err != nil {
		return 0, apperrors.Migration("schema_migrations", err)
	}

	applied, err := m.appliedVersions(ctx, conn)
	if err != nil {
		return 0, apperrors.Migration("schema_migrations", err)
	}

	version := 0
	ran := 0
	for _, step := range m.steps {
		if applied[step.Version] {
			version = step.Version
			continue
		}

		log.Printf("[Migrate]   → Running: v%d %s", step.Version, step.Name)
		if err := m.runStep(ctx, conn, d, step); err != nil {
			return version, apperrors.Migration(fmt.Sprintf("v%d %s", step.Version, step.Name), err)
		}
		version = step.Version
		ran++
	}

	if ran > 0 {
		log.Printf("[Migrate] ✓ Applied %d step(s), schema at v%d", ran, version)
	} else {
		log.Printf("[Migrate] ✓ Schema up to date at v%d", version)
	}
	return version, nil
}

func (m *Migrator) runStep(ctx context.Context, conn *sql.DB, d db.Dialect, step Step) (err error) {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = step.Apply(ctx, &Schema{tx: tx, dialect: d}); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		d.Rebind(`INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, ?)`),
		step.Version, step.Name, time.Now().UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("record migration: %w", err)
	}
	return tx.Commit()
}

func (m *Migrator) createMigrationsTable(ctx context.Context, conn *sql.DB) error {
	_, err := conn.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version BIGINT PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at BIGINT NOT NULL
		)`)
	return err
}

func (m *Migrator) appliedVersions(ctx context.Context, conn *sql.DB) (map[int]bool, error) {
	applied := make(map[int]bool)

	rows, err := conn.QueryContext(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		applied[v] = true
	}
	return applied, rows.Err()
}
