package database

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"ledger-backend/internal/apperrors"
	"ledger-backend/internal/db"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newProvider(t *testing.T, path string, m db.Migrator) *db.Provider {
	t.Helper()
	p := db.NewProvider(db.Options{Driver: "sqlite", DSN: path, Migrator: m})
	t.Cleanup(func() { p.Close() })
	return p
}

func TestMigrateCreatesEveryStore(t *testing.T) {
	p := newProvider(t, filepath.Join(t.TempDir(), "ledger.db"), NewMigrator())
	require.NoError(t, p.Open(context.Background()))

	h := p.HandleIfReady()
	require.NotNil(t, h)
	assert.Equal(t, NewMigrator().LatestVersion(), h.SchemaVersion())
	for _, s := range db.AllStores {
		assert.True(t, h.HasStore(s), "store %s missing", s)
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")

	first := newProvider(t, path, NewMigrator())
	require.NoError(t, first.Open(context.Background()))
	v1 := first.HandleIfReady().SchemaVersion()
	require.NoError(t, first.Close())

	second := newProvider(t, path, NewMigrator())
	require.NoError(t, second.Open(context.Background()))
	assert.Equal(t, v1, second.HandleIfReady().SchemaVersion())
}

func TestStepsTolerateExistingShape(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")

	// v1 only, then the full set: v2 must add its columns to existing tables
	p := newProvider(t, path, NewMigratorWithSteps(ledgerSteps()[:1]))
	require.NoError(t, p.Open(context.Background()))
	assert.Equal(t, 1, p.HandleIfReady().SchemaVersion())
	require.NoError(t, p.Close())

	p = newProvider(t, path, NewMigrator())
	require.NoError(t, p.Open(context.Background()))
	assert.Equal(t, 2, p.HandleIfReady().SchemaVersion())
}

func TestFailedStepFailsProvider(t *testing.T) {
	boom := errors.New("boom")
	steps := append(ledgerSteps(), Step{
		Version: 3,
		Name:    "broken",
		Apply:   func(ctx context.Context, s *Schema) error { return boom },
	})

	p := newProvider(t, filepath.Join(t.TempDir(), "ledger.db"), NewMigratorWithSteps(steps))
	err := p.Open(context.Background())

	require.Error(t, err)
	assert.True(t, apperrors.IsMigration(err))
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "v3 broken")
	assert.Equal(t, db.StatusFailed, p.Health())
	assert.Nil(t, p.HandleIfReady())
}

func TestLatestVersion(t *testing.T) {
	assert.Equal(t, 2, NewMigrator().LatestVersion())
	assert.Equal(t, 0, NewMigratorWithSteps(nil).LatestVersion())
}

func TestResetDropsDataAfterFailedMigration(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ledger.db")

	p := newProvider(t, path, NewMigrator())
	require.NoError(t, p.Open(ctx))
	err := p.HandleIfReady().Update(ctx, []db.Store{db.StoreCustomers}, func(tx *db.Tx) error {
		_, err := tx.Exec(ctx, db.StoreCustomers,
			`INSERT INTO customers (name, contact, address, created_at, updated_at) VALUES (?, '', '', 0, 0)`, "Ravi")
		return err
	})
	require.NoError(t, err)
	require.NoError(t, p.Close())

	broken := append(ledgerSteps(), Step{
		Version: 3,
		Name:    "broken",
		Apply:   func(ctx context.Context, s *Schema) error { return errors.New("boom") },
	})
	p = newProvider(t, path, NewMigratorWithSteps(broken))
	require.Error(t, p.Open(ctx))

	require.NoError(t, Reset(ctx, "sqlite", path))

	p = newProvider(t, path, NewMigrator())
	require.NoError(t, p.Open(ctx))
	h := p.HandleIfReady()
	assert.Equal(t, 2, h.SchemaVersion())

	var n int
	err = h.View(ctx, []db.Store{db.StoreCustomers}, func(tx *db.Tx) error {
		return tx.QueryRow(ctx, db.StoreCustomers, `SELECT COUNT(*) FROM customers`).Scan(&n)
	})
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestResetRejectsUnknownDriver(t *testing.T) {
	assert.Error(t, Reset(context.Background(), "mysql", "x"))
}
